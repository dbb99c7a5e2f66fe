package queue

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/ameliapapa/queue-manager-v2-sub000/internal/fanout"
	"github.com/ameliapapa/queue-manager-v2-sub000/internal/models"
	"github.com/ameliapapa/queue-manager-v2-sub000/internal/store"
)

const (
	minAge = 1
	maxAge = 150
)

type Registration struct {
	Name   string `json:"name"`
	Phone  string `json:"phone"`
	Age    int    `json:"age"`
	Gender string `json:"gender"`
	Notes  string `json:"notes,omitempty"`
}

func (r Registration) normalized() Registration {
	r.Name = strings.TrimSpace(r.Name)
	r.Phone = normalizePhone(r.Phone)
	r.Gender = strings.TrimSpace(r.Gender)
	r.Notes = strings.TrimSpace(r.Notes)
	return r
}

func (r Registration) Validate() error {
	r = r.normalized()
	switch {
	case r.Name == "":
		return fmt.Errorf("%w: name is required", store.ErrInvalidInput)
	case !isValidPhone(r.Phone):
		return fmt.Errorf("%w: phone must be 8 to 16 digits", store.ErrInvalidInput)
	case r.Age < minAge || r.Age > maxAge:
		return fmt.Errorf("%w: age must be between %d and %d", store.ErrInvalidInput, minAge, maxAge)
	case r.Gender == "":
		return fmt.Errorf("%w: gender is required", store.ErrInvalidInput)
	}
	return nil
}

// normalizePhone drops separators and a leading plus sign.
func normalizePhone(value string) string {
	value = strings.TrimSpace(value)
	value = strings.TrimPrefix(value, "+")
	return strings.NewReplacer(" ", "", "-", "").Replace(value)
}

func isValidPhone(value string) bool {
	if len(value) < 8 || len(value) > 16 {
		return false
	}
	for _, r := range value {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// Register fills in the details of today's ticket queueNumber and marks it registered.
func (s *Service) Register(ctx context.Context, queueNumber int, input Registration) (patient models.Patient, err error) {
	ctx, span := s.startSpan(ctx, "Register")
	defer func() { endSpan(span, err) }()

	if queueNumber <= 0 {
		return models.Patient{}, fmt.Errorf("%w: queue number must be positive", store.ErrInvalidInput)
	}
	if err := input.Validate(); err != nil {
		return models.Patient{}, err
	}
	input = input.normalized()

	now, day := s.instant()
	err = s.runTx(ctx, "register", func(ctx context.Context, tx store.Tx) error {
		current, err := tx.FindPatientByQueueNumber(ctx, day, queueNumber)
		if err != nil {
			return err
		}
		if !store.ValidTransition("register", current.Status) {
			return fmt.Errorf("%w: ticket %d is %s", store.ErrInvalidState, queueNumber, current.Status)
		}

		current.Status = models.StatusRegistered
		current.Name = stringPtr(input.Name)
		current.Phone = stringPtr(input.Phone)
		current.Age = &input.Age
		current.Gender = stringPtr(input.Gender)
		current.Notes = optionalString(input.Notes)
		current.RegisteredAt = &now
		if err := tx.UpdatePatient(ctx, current); err != nil {
			return err
		}
		patient = current
		return nil
	})
	if err != nil {
		return models.Patient{}, err
	}

	s.logger.Info("patient registered",
		zap.String("patient_id", patient.PatientID),
		zap.Int("queue_number", patient.QueueNumber),
	)
	s.publish(ctx, fanout.Event{
		Type:     fanout.EventPatientRegistered,
		EntityID: patient.PatientID,
		Day:      patient.Day,
		Payload: map[string]interface{}{
			"queue_number": patient.QueueNumber,
			"patient_id":   patient.PatientID,
		},
		OccurredAt: now,
	})
	return patient, nil
}

func stringPtr(value string) *string {
	return &value
}

func optionalString(value string) *string {
	if value == "" {
		return nil
	}
	return &value
}
