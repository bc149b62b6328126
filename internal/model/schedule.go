package model

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Slot kinds produced by the availability evaluator.
const (
	KindAvailable   = "available"
	KindUnavailable = "unavailable"
)

// DateLayout is the ISO date layout used for exception dates and schedule keys.
const DateLayout = "2006-01-02"

var (
	ErrInvalidWeekday   = errors.New("day_of_week must be between 0 (Monday) and 6 (Sunday)")
	ErrInvalidTimeRange = errors.New("start_time must be before end_time")
	ErrHalfOpenTimes    = errors.New("set both start_time and end_time, or neither for a whole day")
)

// WeeklyRule is a recurring open or closed interval on one weekday.
// A nil FacilityID makes it a general rule for every facility.
type WeeklyRule struct {
	ID           int64     `gorm:"primaryKey" json:"id"`
	FacilityID   *int64    `gorm:"index" json:"facility_id"`
	Facility     *Facility `gorm:"constraint:OnDelete:CASCADE" json:"-"`
	DayOfWeek    int       `gorm:"not null;index" json:"day_of_week"`
	StartTime    string    `gorm:"size:8;not null" json:"start_time"`
	EndTime      string    `gorm:"size:8;not null" json:"end_time"`
	IsEnabled    bool      `gorm:"not null" json:"is_enabled"`
	IntervalKind string    `gorm:"size:50;not null" json:"interval_kind"`
}

// Validate checks the weekday and time bounds.
func (r WeeklyRule) Validate() error {
	if r.DayOfWeek < 0 || r.DayOfWeek > 6 {
		return ErrInvalidWeekday
	}
	start, err := ParseClock(r.StartTime)
	if err != nil {
		return fmt.Errorf("start_time: %w", err)
	}
	end, err := ParseClock(r.EndTime)
	if err != nil {
		return fmt.Errorf("end_time: %w", err)
	}
	if start >= end {
		return ErrInvalidTimeRange
	}
	return nil
}

// WeeklyRuleUpdate holds optional rule fields.
type WeeklyRuleUpdate struct {
	FacilityID   *int64  `json:"facility_id" validate:"omitempty,min=1"`
	DayOfWeek    *int    `json:"day_of_week" validate:"omitempty,min=0,max=6"`
	StartTime    *string `json:"start_time"`
	EndTime      *string `json:"end_time"`
	IsEnabled    *bool   `json:"is_enabled"`
	IntervalKind *string `json:"interval_kind" validate:"omitempty,max=50"`
}

func (u WeeklyRuleUpdate) Empty() bool {
	return u.FacilityID == nil && u.DayOfWeek == nil && u.StartTime == nil &&
		u.EndTime == nil && u.IsEnabled == nil && u.IntervalKind == nil
}

func (u WeeklyRuleUpdate) Apply(r *WeeklyRule) {
	if u.FacilityID != nil {
		id := *u.FacilityID
		r.FacilityID = &id
	}
	if u.DayOfWeek != nil {
		r.DayOfWeek = *u.DayOfWeek
	}
	if u.StartTime != nil {
		r.StartTime = strings.TrimSpace(*u.StartTime)
	}
	if u.EndTime != nil {
		r.EndTime = strings.TrimSpace(*u.EndTime)
	}
	if u.IsEnabled != nil {
		r.IsEnabled = *u.IsEnabled
	}
	if u.IntervalKind != nil {
		r.IntervalKind = strings.TrimSpace(*u.IntervalKind)
	}
}

// DateException overrides the weekly rules on one date. Without times it
// covers the whole day. A nil FacilityID applies it to every facility.
type DateException struct {
	ID          int64     `gorm:"primaryKey" json:"id"`
	FacilityID  *int64    `gorm:"index" json:"facility_id"`
	Facility    *Facility `gorm:"constraint:OnDelete:CASCADE" json:"-"`
	Date        string    `gorm:"size:10;not null;index" json:"date"`
	StartTime   *string   `gorm:"size:8" json:"start_time"`
	EndTime     *string   `gorm:"size:8" json:"end_time"`
	IsEnabled   bool      `gorm:"not null" json:"is_enabled"`
	Description *string   `gorm:"size:200" json:"description"`
}

// WholeDay reports whether the exception has no time bounds.
func (e DateException) WholeDay() bool {
	return e.StartTime == nil && e.EndTime == nil
}

// Validate checks the date format and the paired time bounds.
func (e DateException) Validate() error {
	if _, err := time.Parse(DateLayout, e.Date); err != nil {
		return fmt.Errorf("date: expected YYYY-MM-DD")
	}
	if (e.StartTime == nil) != (e.EndTime == nil) {
		return ErrHalfOpenTimes
	}
	if e.WholeDay() {
		return nil
	}
	start, err := ParseClock(*e.StartTime)
	if err != nil {
		return fmt.Errorf("start_time: %w", err)
	}
	end, err := ParseClock(*e.EndTime)
	if err != nil {
		return fmt.Errorf("end_time: %w", err)
	}
	if start >= end {
		return ErrInvalidTimeRange
	}
	return nil
}

// DateExceptionUpdate holds optional exception fields. ClearTimes turns the
// exception into a whole-day one.
type DateExceptionUpdate struct {
	FacilityID  *int64  `json:"facility_id" validate:"omitempty,min=1"`
	Date        *string `json:"date"`
	StartTime   *string `json:"start_time"`
	EndTime     *string `json:"end_time"`
	ClearTimes  bool    `json:"clear_times"`
	IsEnabled   *bool   `json:"is_enabled"`
	Description *string `json:"description" validate:"omitempty,max=200"`
}

func (u DateExceptionUpdate) Empty() bool {
	return u.FacilityID == nil && u.Date == nil && u.StartTime == nil && u.EndTime == nil &&
		!u.ClearTimes && u.IsEnabled == nil && u.Description == nil
}

func (u DateExceptionUpdate) Apply(e *DateException) {
	if u.FacilityID != nil {
		id := *u.FacilityID
		e.FacilityID = &id
	}
	if u.Date != nil {
		e.Date = strings.TrimSpace(*u.Date)
	}
	if u.ClearTimes {
		e.StartTime, e.EndTime = nil, nil
	}
	if u.StartTime != nil {
		v := strings.TrimSpace(*u.StartTime)
		e.StartTime = &v
	}
	if u.EndTime != nil {
		v := strings.TrimSpace(*u.EndTime)
		e.EndTime = &v
	}
	if u.IsEnabled != nil {
		e.IsEnabled = *u.IsEnabled
	}
	if u.Description != nil {
		v := *u.Description
		e.Description = &v
	}
}

// Slot is a labeled interval of one day. It is computed, never stored.
type Slot struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
	Kind  string    `json:"kind"`
}

// ParseClock parses "HH:MM" or "HH:MM:SS" into an offset from midnight.
func ParseClock(s string) (time.Duration, error) {
	parts := strings.Split(strings.TrimSpace(s), ":")
	if len(parts) < 2 || len(parts) > 3 {
		return 0, fmt.Errorf("invalid time format: %q", s)
	}

	hour, err := strconv.Atoi(parts[0])
	if err != nil || hour < 0 || hour > 23 {
		return 0, fmt.Errorf("invalid hour: %q", s)
	}
	minute, err := strconv.Atoi(parts[1])
	if err != nil || minute < 0 || minute > 59 {
		return 0, fmt.Errorf("invalid minute: %q", s)
	}
	second := 0
	if len(parts) == 3 {
		second, err = strconv.Atoi(parts[2])
		if err != nil || second < 0 || second > 59 {
			return 0, fmt.Errorf("invalid second: %q", s)
		}
	}

	return time.Duration(hour)*time.Hour + time.Duration(minute)*time.Minute + time.Duration(second)*time.Second, nil
}
