// Package booking validates and records facility reservations.
package booking

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"labreserve/internal/availability"
	"labreserve/internal/calendar"
	"labreserve/internal/database"
	"labreserve/internal/events"
	"labreserve/internal/metrics"
	"labreserve/internal/model"
	"labreserve/internal/svcclient"
)

// Repository persists bookings and serves the schedule inputs.
type Repository interface {
	Reserve(ctx context.Context, b *model.Booking, fromDate, toDate string,
		check func(rules []model.WeeklyRule, exceptions []model.DateException, conflict *model.Booking) error) error
	GetBooking(ctx context.Context, id int64) (*model.Booking, error)
	CancelBooking(ctx context.Context, id int64) error
	SetCalendarRef(ctx context.Context, id int64, ref string) error
	ListFacilityBookings(ctx context.Context, facilityID int64, from, to time.Time) ([]model.Booking, error)
	ListRequesterBookings(ctx context.Context, requesterID int64) ([]model.Booking, error)
	CountActiveBookings(ctx context.Context, facilityID int64, now time.Time) (int64, error)
	RulesFor(ctx context.Context, facilityID int64) ([]model.WeeklyRule, error)
	ExceptionsFor(ctx context.Context, facilityID int64, fromDate, toDate string) ([]model.DateException, error)
}

// FacilityLookup resolves facilities, usually through the cache.
type FacilityLookup interface {
	GetFacility(ctx context.Context, id int64) (*model.Facility, error)
}

// Identity resolves requesters through the users service.
type Identity interface {
	GetUser(ctx context.Context, id int64) (*svcclient.UserInfo, error)
}

// Calendar mirrors bookings into an external calendar.
type Calendar interface {
	CreateEvent(ctx context.Context, ev calendar.Event) (string, error)
	DeleteEvent(ctx context.Context, ref string) error
}

// Publisher receives booking events.
type Publisher interface {
	Publish(ctx context.Context, event events.Event)
}

// ReserveRequest asks for one facility window.
type ReserveRequest struct {
	FacilityID  int64
	RequesterID int64
	Start       time.Time
	End         time.Time
}

// Service provides booking operations.
type Service struct {
	bookings   Repository
	facilities FacilityLookup
	identity   Identity
	calendar   Calendar
	events     Publisher
	evaluator  *availability.Evaluator
	logger     *zerolog.Logger
}

// NewService creates a booking service. A nil calendar disables sync and a
// nil publisher drops events.
func NewService(
	bookings Repository,
	facilities FacilityLookup,
	identity Identity,
	cal Calendar,
	publisher Publisher,
	evaluator *availability.Evaluator,
	logger *zerolog.Logger,
) *Service {
	if cal == nil {
		cal = calendar.Noop{}
	}
	if evaluator == nil {
		evaluator = availability.NewEvaluator(time.UTC)
	}
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &Service{
		bookings:   bookings,
		facilities: facilities,
		identity:   identity,
		calendar:   cal,
		events:     publisher,
		evaluator:  evaluator,
		logger:     logger,
	}
}

// Reserve validates the request against the schedule and existing bookings
// and stores it. Checks run in order and the first failure is returned.
func (s *Service) Reserve(ctx context.Context, req ReserveRequest, now time.Time) (*model.Booking, error) {
	start, end := req.Start.UTC(), req.End.UTC()

	if !start.Before(end) {
		return nil, s.reject("invalid_range", ErrInvalidRange)
	}
	if start.Before(now) {
		return nil, s.reject("in_past", ErrInPast)
	}

	facility, err := s.facility(ctx, req.FacilityID)
	if err != nil {
		return nil, s.reject("facility", err)
	}

	requester, err := s.requester(ctx, req.RequesterID)
	if err != nil {
		return nil, s.reject("requester", err)
	}

	b := &model.Booking{
		RequesterID: req.RequesterID,
		FacilityID:  req.FacilityID,
		Start:       start,
		End:         end,
		Status:      model.BookingActive,
	}

	day := s.evaluator.DayKey(start)
	err = s.bookings.Reserve(ctx, b, day, day,
		func(rules []model.WeeklyRule, exceptions []model.DateException, conflict *model.Booking) error {
			local := start.In(s.evaluator.Location())
			schedule := s.evaluator.ComputeSchedule(req.FacilityID, local, local, rules, exceptions)
			if _, ok := availability.FindExactSlot(schedule[day], start, end, model.KindAvailable); !ok {
				return ErrSlotMismatch
			}
			if conflict != nil {
				return &OverlapError{BookingID: conflict.ID}
			}
			return nil
		})
	switch {
	case errors.Is(err, ErrSlotMismatch):
		return nil, s.reject("slot_mismatch", err)
	case errors.Is(err, ErrOverlap):
		return nil, s.reject("overlap", err)
	case err != nil:
		return nil, fmt.Errorf("reserve: %w", err)
	}

	metrics.IncBookingCreated()
	s.logger.Info().
		Int64("booking_id", b.ID).
		Int64("facility_id", b.FacilityID).
		Int64("requester_id", b.RequesterID).
		Time("start", b.Start).
		Msg("booking created")

	s.syncCreate(ctx, b, facility, requester)
	s.publish(ctx, events.Event{Type: events.BookingCreated, BookingID: b.ID, FacilityID: b.FacilityID})

	return b, nil
}

// Cancel cancels a booking owned by the caller, or any booking for admins.
func (s *Service) Cancel(ctx context.Context, bookingID, callerID int64, callerRole model.Role) (*model.Booking, error) {
	b, err := s.bookings.GetBooking(ctx, bookingID)
	if errors.Is(err, database.ErrNotFound) {
		return nil, ErrBookingNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get booking: %w", err)
	}

	if b.RequesterID != callerID && callerRole != model.RoleAdmin {
		return nil, ErrForbidden
	}
	if !b.Active() {
		return nil, ErrAlreadyCancelled
	}

	if err := s.bookings.CancelBooking(ctx, bookingID); err != nil {
		if errors.Is(err, database.ErrNotFound) {
			// Cancelled concurrently.
			return nil, ErrAlreadyCancelled
		}
		return nil, fmt.Errorf("cancel booking: %w", err)
	}
	b.Status = model.BookingCancelled
	b.UpdatedAt = time.Now().UTC()

	metrics.IncBookingCancelled()
	s.logger.Info().Int64("booking_id", b.ID).Int64("caller_id", callerID).Msg("booking cancelled")

	s.syncCancel(ctx, b)
	s.publish(ctx, events.Event{Type: events.BookingCancelled, BookingID: b.ID, FacilityID: b.FacilityID})

	return b, nil
}

// Schedule computes the facility's slots for [from, to], inclusive days.
func (s *Service) Schedule(ctx context.Context, facilityID int64, from, to time.Time) (availability.Schedule, error) {
	if _, err := s.facility(ctx, facilityID); err != nil {
		return nil, err
	}

	rules, err := s.bookings.RulesFor(ctx, facilityID)
	if err != nil {
		return nil, err
	}
	exceptions, err := s.bookings.ExceptionsFor(ctx, facilityID, from.Format(model.DateLayout), to.Format(model.DateLayout))
	if err != nil {
		return nil, err
	}

	return s.evaluator.ComputeSchedule(facilityID, from, to, rules, exceptions), nil
}

// FacilityBookings lists active bookings touching the days [from, to].
func (s *Service) FacilityBookings(ctx context.Context, facilityID int64, from, to time.Time) ([]model.Booking, error) {
	if _, err := s.facility(ctx, facilityID); err != nil {
		return nil, err
	}

	loc := s.evaluator.Location()
	rangeStart := time.Date(from.Year(), from.Month(), from.Day(), 0, 0, 0, 0, loc)
	rangeEnd := time.Date(to.Year(), to.Month(), to.Day(), 0, 0, 0, 0, loc).AddDate(0, 0, 1)
	if !rangeStart.Before(rangeEnd) {
		return []model.Booking{}, nil
	}

	return s.bookings.ListFacilityBookings(ctx, facilityID, rangeStart, rangeEnd)
}

// RequesterBookings lists a requester's bookings, newest first.
func (s *Service) RequesterBookings(ctx context.Context, requesterID int64) ([]model.Booking, error) {
	return s.bookings.ListRequesterBookings(ctx, requesterID)
}

// ActiveCount counts the facility's active bookings that end after now.
func (s *Service) ActiveCount(ctx context.Context, facilityID int64, now time.Time) (int64, error) {
	return s.bookings.CountActiveBookings(ctx, facilityID, now)
}

func (s *Service) facility(ctx context.Context, id int64) (*model.Facility, error) {
	f, err := s.facilities.GetFacility(ctx, id)
	if errors.Is(err, database.ErrNotFound) {
		return nil, ErrFacilityNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get facility: %w", err)
	}
	return f, nil
}

func (s *Service) requester(ctx context.Context, id int64) (*svcclient.UserInfo, error) {
	user, err := s.identity.GetUser(ctx, id)
	switch {
	case errors.Is(err, svcclient.ErrNotFound):
		return nil, ErrRequesterNotFound
	case err != nil:
		s.logger.Warn().Err(err).Int64("requester_id", id).Msg("identity lookup failed")
		return nil, fmt.Errorf("%w: %v", ErrIdentityUnavailable, err)
	}
	return user, nil
}

func (s *Service) syncCreate(ctx context.Context, b *model.Booking, facility *model.Facility, requester *svcclient.UserInfo) {
	ev := calendar.BookingEvent(b.ID, b.RequesterID, requester.Name, facility.Name, facility.Location, b.Start, b.End)
	ref, err := s.calendar.CreateEvent(ctx, ev)
	if err != nil {
		s.logger.Error().Err(err).Int64("booking_id", b.ID).Msg("calendar event creation failed")
		return
	}
	if ref == "" {
		return
	}
	if err := s.bookings.SetCalendarRef(ctx, b.ID, ref); err != nil {
		s.logger.Error().Err(err).Int64("booking_id", b.ID).Msg("failed to store calendar ref")
		return
	}
	b.ExternalCalendarRef = &ref
}

func (s *Service) syncCancel(ctx context.Context, b *model.Booking) {
	if b.ExternalCalendarRef == nil || *b.ExternalCalendarRef == "" {
		return
	}
	if err := s.calendar.DeleteEvent(ctx, *b.ExternalCalendarRef); err != nil {
		s.logger.Error().Err(err).Int64("booking_id", b.ID).Msg("calendar event deletion failed")
		return
	}
	if err := s.bookings.SetCalendarRef(ctx, b.ID, ""); err != nil {
		s.logger.Error().Err(err).Int64("booking_id", b.ID).Msg("failed to clear calendar ref")
		return
	}
	b.ExternalCalendarRef = nil
}

func (s *Service) publish(ctx context.Context, event events.Event) {
	if s.events != nil {
		s.events.Publish(ctx, event)
	}
}

func (s *Service) reject(reason string, err error) error {
	metrics.IncBookingRejected(reason)
	return err
}
