package booking

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidRange        = errors.New("start must be before end")
	ErrInPast              = errors.New("cannot book in the past")
	ErrFacilityNotFound    = errors.New("facility not found")
	ErrRequesterNotFound   = errors.New("requester not found")
	ErrIdentityUnavailable = errors.New("identity service unavailable")
	ErrSlotMismatch        = errors.New("requested window does not match an available slot")
	ErrOverlap             = errors.New("window overlaps an existing booking")
	ErrBookingNotFound     = errors.New("booking not found")
	ErrForbidden           = errors.New("not allowed to modify this booking")
	ErrAlreadyCancelled    = errors.New("booking already cancelled")
)

// OverlapError names the booking that holds the requested window.
type OverlapError struct {
	BookingID int64
}

func (e *OverlapError) Error() string {
	return fmt.Sprintf("window overlaps booking %d", e.BookingID)
}

func (e *OverlapError) Unwrap() error {
	return ErrOverlap
}
