package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"labreserve/internal/model"
)

// ReserveCheck inspects the facility's rules, exceptions and the first
// active booking overlapping the candidate (nil when none) while the
// facility lock is held. A non-nil error aborts the reservation.
type ReserveCheck = func(rules []model.WeeklyRule, exceptions []model.DateException, conflict *model.Booking) error

// Reserve inserts booking if check accepts the state read under the
// facility lock. fromDate and toDate bound the exceptions loaded.
func (db *DB) Reserve(ctx context.Context, booking *model.Booking, fromDate, toDate string, check ReserveCheck) error {
	return db.inFacilityTx(ctx, booking.FacilityID, func(tx *gorm.DB) error {
		rules, err := rulesFor(tx, booking.FacilityID)
		if err != nil {
			return err
		}
		exceptions, err := exceptionsFor(tx, booking.FacilityID, fromDate, toDate)
		if err != nil {
			return err
		}
		conflict, err := findOverlap(tx, booking.FacilityID, booking.Start, booking.End)
		if err != nil {
			return err
		}

		if err := check(rules, exceptions, conflict); err != nil {
			return err
		}

		if err := tx.Omit("Requester", "Facility").Create(booking).Error; err != nil {
			return fmt.Errorf("create booking: %w", translate(err))
		}
		return nil
	})
}

// FindOverlap returns the first active booking of the facility intersecting
// [start, end), or nil.
func (db *DB) FindOverlap(ctx context.Context, facilityID int64, start, end time.Time) (*model.Booking, error) {
	return findOverlap(db.WithContext(ctx), facilityID, start, end)
}

func findOverlap(tx *gorm.DB, facilityID int64, start, end time.Time) (*model.Booking, error) {
	var booking model.Booking
	err := tx.Where("facility_id = ? AND status = ? AND start_at < ? AND end_at > ?",
		facilityID, model.BookingActive, end.UTC(), start.UTC()).
		Order("start_at ASC, id ASC").
		First(&booking).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find overlap: %w", err)
	}
	return &booking, nil
}

func (db *DB) GetBooking(ctx context.Context, id int64) (*model.Booking, error) {
	var booking model.Booking
	if err := db.WithContext(ctx).First(&booking, id).Error; err != nil {
		return nil, translate(err)
	}
	return &booking, nil
}

// CancelBooking marks an active booking cancelled. It returns ErrNotFound
// when no active booking with that id exists.
func (db *DB) CancelBooking(ctx context.Context, id int64) error {
	res := db.WithContext(ctx).Model(&model.Booking{}).
		Where("id = ? AND status = ?", id, model.BookingActive).
		Updates(map[string]interface{}{"status": model.BookingCancelled, "updated_at": time.Now().UTC()})
	if res.Error != nil {
		return fmt.Errorf("cancel booking: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// SetCalendarRef records the external event id; an empty ref clears it.
func (db *DB) SetCalendarRef(ctx context.Context, id int64, ref string) error {
	var value interface{}
	if ref != "" {
		value = ref
	}
	err := db.WithContext(ctx).Model(&model.Booking{}).Where("id = ?", id).
		Update("external_calendar_ref", value).Error
	if err != nil {
		return fmt.Errorf("set calendar ref: %w", err)
	}
	return nil
}

// ListFacilityBookings returns the facility's active bookings intersecting
// [from, to), ordered by start.
func (db *DB) ListFacilityBookings(ctx context.Context, facilityID int64, from, to time.Time) ([]model.Booking, error) {
	var bookings []model.Booking
	err := db.WithContext(ctx).
		Where("facility_id = ? AND status = ? AND start_at < ? AND end_at > ?",
			facilityID, model.BookingActive, to.UTC(), from.UTC()).
		Order("start_at ASC, id ASC").
		Find(&bookings).Error
	if err != nil {
		return nil, fmt.Errorf("list facility bookings: %w", err)
	}
	return bookings, nil
}

// ListRequesterBookings returns every booking of a requester, newest first.
func (db *DB) ListRequesterBookings(ctx context.Context, requesterID int64) ([]model.Booking, error) {
	var bookings []model.Booking
	err := db.WithContext(ctx).Where("requester_id = ?", requesterID).
		Order("start_at DESC, id DESC").
		Find(&bookings).Error
	if err != nil {
		return nil, fmt.Errorf("list requester bookings: %w", err)
	}
	return bookings, nil
}

// ListBookingsBetween returns all bookings, any status, starting within
// [from, to). Used by exports.
func (db *DB) ListBookingsBetween(ctx context.Context, from, to time.Time) ([]model.Booking, error) {
	var bookings []model.Booking
	err := db.WithContext(ctx).Preload("Requester").Preload("Facility").
		Where("start_at >= ? AND start_at < ?", from.UTC(), to.UTC()).
		Order("start_at ASC, id ASC").
		Find(&bookings).Error
	if err != nil {
		return nil, fmt.Errorf("list bookings: %w", err)
	}
	return bookings, nil
}

// CountActiveBookings counts active bookings of a facility ending after now.
func (db *DB) CountActiveBookings(ctx context.Context, facilityID int64, now time.Time) (int64, error) {
	var n int64
	err := db.WithContext(ctx).Model(&model.Booking{}).
		Where("facility_id = ? AND status = ? AND end_at > ?", facilityID, model.BookingActive, now.UTC()).
		Count(&n).Error
	if err != nil {
		return 0, fmt.Errorf("count active bookings: %w", err)
	}
	return n, nil
}
