package api

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"labreserve/internal/auth"
	"labreserve/internal/booking"
	"labreserve/internal/database"
	"labreserve/internal/inventory"
	"labreserve/internal/model"
	"labreserve/internal/schedule"
	"labreserve/internal/svcclient"
	"labreserve/internal/users"
)

// statusFor lists domain errors by the status they map to. The first match
// wins, so more specific errors come first.
var statusFor = []struct {
	status int
	errs   []error
}{
	{fiber.StatusBadRequest, []error{
		model.ErrInvalid, model.ErrEmptyUpdate,
		booking.ErrInvalidRange, booking.ErrInPast,
		auth.ErrPasswordTooShort, users.ErrWrongPassword,
		database.ErrConstraint,
	}},
	{fiber.StatusUnauthorized, []error{
		auth.ErrInvalidToken, users.ErrInvalidCredentials,
	}},
	{fiber.StatusForbidden, []error{
		booking.ErrForbidden, inventory.ErrForbidden, users.ErrForbidden,
	}},
	{fiber.StatusNotFound, []error{
		booking.ErrFacilityNotFound, booking.ErrRequesterNotFound, booking.ErrBookingNotFound,
		inventory.ErrCampusNotFound, inventory.ErrFacilityNotFound, inventory.ErrResourceNotFound,
		inventory.ErrLoanNotFound, inventory.ErrUserNotFound,
		schedule.ErrRuleNotFound, schedule.ErrExceptionNotFound, schedule.ErrFacilityNotFound,
		users.ErrUserNotFound, database.ErrNotFound,
	}},
	{fiber.StatusConflict, []error{
		booking.ErrSlotMismatch, booking.ErrOverlap, booking.ErrAlreadyCancelled,
		inventory.ErrCampusInUse, inventory.ErrFacilityInUse, inventory.ErrFacilityBooked,
		inventory.ErrResourceInUse, inventory.ErrInvalidTransition,
		database.ErrDuplicate, database.ErrReferenced,
	}},
	{fiber.StatusServiceUnavailable, []error{
		booking.ErrIdentityUnavailable, inventory.ErrPeerUnavailable, svcclient.ErrUnavailable,
	}},
}

// StatusOf returns the HTTP status for err, 500 when unknown.
func StatusOf(err error) int {
	var fe *fiber.Error
	if errors.As(err, &fe) {
		return fe.Code
	}
	var be *BindError
	if errors.As(err, &be) {
		return fiber.StatusBadRequest
	}
	for _, group := range statusFor {
		for _, target := range group.errs {
			if errors.Is(err, target) {
				return group.status
			}
		}
	}
	return fiber.StatusInternalServerError
}

// ErrorHandler renders every error returned by a handler as an Envelope.
// Internal errors are logged and their text is not exposed.
func ErrorHandler(logger *zerolog.Logger) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		var be *BindError
		if errors.As(err, &be) {
			return ValidationError(c, be.Err)
		}

		code := StatusOf(err)
		if code >= fiber.StatusInternalServerError && code != fiber.StatusServiceUnavailable {
			logger.Error().Err(err).
				Str("method", c.Method()).
				Str("path", c.Path()).
				Interface("request_id", c.Locals(localsRequestID)).
				Msg("request failed")
			return Error(c, code, "internal server error")
		}

		var overlap *booking.OverlapError
		if errors.As(err, &overlap) {
			return ErrorWithDetails(c, code, err.Error(), fiber.Map{"conflicting_booking_id": overlap.BookingID})
		}
		return Error(c, code, message(err))
	}
}

// message hides driver detail behind store sentinels.
func message(err error) string {
	for _, sentinel := range []error{database.ErrDuplicate, database.ErrReferenced, database.ErrConstraint} {
		if errors.Is(err, sentinel) {
			return sentinel.Error()
		}
	}
	return err.Error()
}
