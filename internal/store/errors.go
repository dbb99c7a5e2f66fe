package store

import "errors"

var (
	ErrQueueFull          = errors.New("queue is full for today")
	ErrPatientNotFound    = errors.New("patient not found")
	ErrRoomNotFound       = errors.New("room not found")
	ErrInvalidState       = errors.New("invalid patient state")
	ErrRoomNotAvailable   = errors.New("room not available")
	ErrPatientNotEligible = errors.New("patient not eligible")
	ErrEmptyRoom          = errors.New("room has no current patient")
	ErrRoomBusy           = errors.New("room is busy")
	ErrInvalidInput       = errors.New("invalid input")

	// ErrConflict marks an optimistic-concurrency loss; the whole operation may be retried.
	ErrConflict = errors.New("transaction conflict")
	// ErrUnavailable marks a store that could not be reached.
	ErrUnavailable = errors.New("store unavailable")
)

// Transient reports whether err is worth retrying from scratch.
func Transient(err error) bool {
	return errors.Is(err, ErrConflict) || errors.Is(err, ErrUnavailable)
}
