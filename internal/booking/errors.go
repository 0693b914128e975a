package booking

import (
	"errors"
	"fmt"
	"time"
)

// Validation failures cross the engine boundary as typed errors so the HTTP
// layer can map them to user-facing messages without inspecting state.
var (
	ErrUnauthenticated   = errors.New("booking requires a signed-in patient")
	ErrForbidden         = errors.New("not allowed")
	ErrSlotUnavailable   = errors.New("slot is no longer available")
	ErrNotFound          = errors.New("booking not found")
	ErrTreatmentNotFound = errors.New("treatment not found")
	ErrAlreadyPaid       = errors.New("booking is already paid")
	ErrPaymentNotSettled = errors.New("payment has not settled")
)

// Store sentinels: implementations must return these (wrapped is fine) when
// the insert hits a uniqueness constraint, so check-then-insert races resolve
// at the database rather than in process memory.
var (
	ErrSlotTaken = errors.New("slot already taken")
	ErrDateTaken = errors.New("patient already booked on this date")
)

// DuplicateError rejects a second booking on the same date, whatever the
// treatment. It carries the conflicting date for the user-facing message.
type DuplicateError struct {
	Date time.Time
}

func (e *DuplicateError) Error() string {
	return fmt.Sprintf("you already have a booking on %s", e.Date.Format(time.DateOnly))
}
