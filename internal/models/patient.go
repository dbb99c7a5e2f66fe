package models

import "time"

type Patient struct {
	PatientID    string     `json:"patient_id"`
	QueueNumber  int        `json:"queue_number"`
	Day          string     `json:"day"`
	Status       string     `json:"status"`
	Name         *string    `json:"name"`
	Phone        *string    `json:"phone"`
	Age          *int       `json:"age"`
	Gender       *string    `json:"gender"`
	Notes        *string    `json:"notes"`
	RoomID       *string    `json:"room_id,omitempty"`
	Archived     bool       `json:"archived,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	RegisteredAt *time.Time `json:"registered_at,omitempty"`
	AssignedAt   *time.Time `json:"assigned_at,omitempty"`
	CompletedAt  *time.Time `json:"completed_at,omitempty"`
	CancelledAt  *time.Time `json:"cancelled_at,omitempty"`
}

const (
	StatusUnregistered = "unregistered"
	StatusRegistered   = "registered"
	StatusAssigned     = "assigned"
	StatusCompleted    = "completed"
	StatusCancelled    = "cancelled"
)

// Terminal reports whether no further transition is possible.
func (p Patient) Terminal() bool {
	return p.Status == StatusCompleted || p.Status == StatusCancelled
}

// Snapshot is the denormalized copy stored on a room while the patient is inside.
func (p Patient) Snapshot() PatientSnapshot {
	return PatientSnapshot{
		PatientID:   p.PatientID,
		QueueNumber: p.QueueNumber,
		Name:        deref(p.Name),
		Age:         derefInt(p.Age),
		Gender:      deref(p.Gender),
		Notes:       deref(p.Notes),
	}
}

func deref(value *string) string {
	if value == nil {
		return ""
	}
	return *value
}

func derefInt(value *int) int {
	if value == nil {
		return 0
	}
	return *value
}
