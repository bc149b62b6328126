package model

import (
	"time"

	"gorm.io/gorm"
)

// BookingStatus is the lifecycle state of a booking.
type BookingStatus string

const (
	BookingActive    BookingStatus = "active"
	BookingCancelled BookingStatus = "cancelled"
)

// Booking is a confirmed reservation of a facility. Bookings are never
// deleted; cancellation is terminal.
type Booking struct {
	ID                  int64         `gorm:"primaryKey" json:"id"`
	RequesterID         int64         `gorm:"not null;index" json:"requester_id"`
	Requester           *User         `gorm:"constraint:OnDelete:RESTRICT" json:"-"`
	FacilityID          int64         `gorm:"not null;index:idx_bookings_facility_window,priority:1" json:"facility_id"`
	Facility            *Facility     `gorm:"constraint:OnDelete:RESTRICT" json:"-"`
	Start               time.Time     `gorm:"column:start_at;not null;index:idx_bookings_facility_window,priority:2" json:"start"`
	End                 time.Time     `gorm:"column:end_at;not null" json:"end"`
	Status              BookingStatus `gorm:"size:20;not null;index" json:"status"`
	ExternalCalendarRef *string       `gorm:"size:200;index" json:"external_calendar_ref,omitempty"`
	CreatedAt           time.Time     `json:"created_at"`
	UpdatedAt           time.Time     `json:"updated_at"`
}

// Overlaps reports whether the booking intersects [start, end).
func (b *Booking) Overlaps(start, end time.Time) bool {
	return b.Start.Before(end) && start.Before(b.End)
}

// Active reports whether the booking still holds its window.
func (b *Booking) Active() bool {
	return b.Status != BookingCancelled
}

func (b *Booking) BeforeSave(*gorm.DB) error {
	b.Start = b.Start.UTC()
	b.End = b.End.UTC()
	return nil
}

func (b *Booking) AfterFind(*gorm.DB) error {
	b.Start = b.Start.UTC()
	b.End = b.End.UTC()
	b.CreatedAt = b.CreatedAt.UTC()
	b.UpdatedAt = b.UpdatedAt.UTC()
	return nil
}
