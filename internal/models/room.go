package models

import (
	"fmt"
	"time"
)

type Room struct {
	RoomID         string           `json:"room_id"`
	RoomNumber     int              `json:"room_number"`
	DoctorName     string           `json:"doctor_name"`
	Status         string           `json:"status"`
	CurrentPatient *PatientSnapshot `json:"current_patient"`
	UpdatedAt      time.Time        `json:"updated_at"`
}

type PatientSnapshot struct {
	PatientID   string `json:"patient_id"`
	QueueNumber int    `json:"queue_number"`
	Name        string `json:"name"`
	Age         int    `json:"age"`
	Gender      string `json:"gender"`
	Notes       string `json:"notes,omitempty"`
}

const (
	RoomAvailable = "available"
	RoomBusy      = "busy"
	RoomPaused    = "paused"
)

// Validate checks that a room holds a patient exactly when it is busy.
func (r Room) Validate() error {
	switch r.Status {
	case RoomAvailable, RoomPaused:
		if r.CurrentPatient != nil {
			return fmt.Errorf("room %s is %s but holds patient %s", r.RoomID, r.Status, r.CurrentPatient.PatientID)
		}
	case RoomBusy:
		if r.CurrentPatient == nil {
			return fmt.Errorf("room %s is busy without a patient", r.RoomID)
		}
	default:
		return fmt.Errorf("room %s has unknown status %q", r.RoomID, r.Status)
	}
	return nil
}

// Released returns the room emptied and open for the next patient.
func (r Room) Released(at time.Time) Room {
	r.Status = RoomAvailable
	r.CurrentPatient = nil
	r.UpdatedAt = at
	return r
}
