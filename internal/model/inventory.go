package model

import (
	"strings"
	"time"

	"gorm.io/gorm"
)

// Resource is a piece of equipment kept in a facility.
type Resource struct {
	ID         int64     `gorm:"primaryKey" json:"id"`
	FacilityID int64     `gorm:"not null;index" json:"facility_id"`
	Facility   *Facility `gorm:"constraint:OnDelete:RESTRICT" json:"facility,omitempty"`
	Kind       string    `gorm:"size:80;not null;index" json:"kind"`
	Status     string    `gorm:"size:40;not null;index" json:"status"`
	Specs      string    `gorm:"type:text" json:"specs"`
}

// ResourceUpdate holds optional resource fields.
type ResourceUpdate struct {
	FacilityID *int64  `json:"facility_id" validate:"omitempty,min=1"`
	Kind       *string `json:"kind" validate:"omitempty,min=1,max=80"`
	Status     *string `json:"status" validate:"omitempty,min=1,max=40"`
	Specs      *string `json:"specs"`
}

func (u ResourceUpdate) Empty() bool {
	return u.FacilityID == nil && u.Kind == nil && u.Status == nil && u.Specs == nil
}

func (u ResourceUpdate) Apply(r *Resource) {
	if u.FacilityID != nil {
		r.FacilityID = *u.FacilityID
		r.Facility = nil
	}
	if u.Kind != nil {
		r.Kind = strings.TrimSpace(*u.Kind)
	}
	if u.Status != nil {
		r.Status = strings.TrimSpace(*u.Status)
	}
	if u.Specs != nil {
		r.Specs = *u.Specs
	}
}

// ResourceFilter narrows resource listings. Zero values are ignored.
type ResourceFilter struct {
	CampusID   int64
	FacilityID int64
	Status     string
	Kind       string
}

// LoanStatus is the lifecycle state of a loan request.
type LoanStatus string

const (
	LoanPending  LoanStatus = "pending"
	LoanApproved LoanStatus = "approved"
	LoanRejected LoanStatus = "rejected"
	LoanReturned LoanStatus = "returned"
)

// CanTransition reports whether a loan may move from s to next.
func (s LoanStatus) CanTransition(next LoanStatus) bool {
	switch s {
	case LoanPending:
		return next == LoanApproved || next == LoanRejected
	case LoanApproved:
		return next == LoanReturned
	}
	return false
}

// Loan is a request to borrow a resource for a period.
type Loan struct {
	ID            int64      `gorm:"primaryKey" json:"id"`
	ResourceID    int64      `gorm:"not null;index" json:"resource_id"`
	Resource      *Resource  `gorm:"constraint:OnDelete:RESTRICT" json:"resource,omitempty"`
	UserID        int64      `gorm:"not null;index" json:"user_id"`
	User          *User      `gorm:"constraint:OnDelete:RESTRICT" json:"-"`
	RequesterName string     `gorm:"size:120;not null" json:"requester_name"`
	Quantity      int        `gorm:"not null;check:quantity >= 1" json:"quantity"`
	Start         time.Time  `gorm:"column:start_at;not null" json:"start"`
	End           time.Time  `gorm:"column:end_at;not null" json:"end"`
	Status        LoanStatus `gorm:"size:40;not null;index" json:"status"`
	Comment       string     `gorm:"type:text" json:"comment,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
}

func (l *Loan) BeforeSave(*gorm.DB) error {
	l.Start = l.Start.UTC()
	l.End = l.End.UTC()
	return nil
}

func (l *Loan) AfterFind(*gorm.DB) error {
	l.Start = l.Start.UTC()
	l.End = l.End.UTC()
	l.CreatedAt = l.CreatedAt.UTC()
	return nil
}
