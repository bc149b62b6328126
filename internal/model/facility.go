package model

import "strings"

// Campus groups facilities at one address.
type Campus struct {
	ID      int64  `gorm:"primaryKey" json:"id"`
	Name    string `gorm:"size:160;not null" json:"name"`
	Address string `gorm:"size:200;not null" json:"address"`
}

// CampusUpdate holds optional campus fields.
type CampusUpdate struct {
	Name    *string `json:"name" validate:"omitempty,min=1,max=160"`
	Address *string `json:"address" validate:"omitempty,max=200"`
}

func (u CampusUpdate) Empty() bool { return u.Name == nil && u.Address == nil }

func (u CampusUpdate) Apply(c *Campus) {
	if u.Name != nil {
		c.Name = strings.TrimSpace(*u.Name)
	}
	if u.Address != nil {
		c.Address = strings.TrimSpace(*u.Address)
	}
}

// Facility is a bookable location such as a laboratory.
type Facility struct {
	ID       int64   `gorm:"primaryKey" json:"id"`
	Name     string  `gorm:"size:160;not null" json:"name"`
	Location string  `gorm:"size:160" json:"location"`
	Capacity int     `gorm:"not null" json:"capacity"`
	CampusID *int64  `gorm:"index" json:"campus_id"`
	Campus   *Campus `gorm:"constraint:OnDelete:RESTRICT" json:"campus,omitempty"`
}

// FacilityUpdate holds optional facility fields.
type FacilityUpdate struct {
	Name     *string `json:"name" validate:"omitempty,min=1,max=160"`
	Location *string `json:"location" validate:"omitempty,max=160"`
	Capacity *int    `json:"capacity" validate:"omitempty,min=0"`
	CampusID *int64  `json:"campus_id" validate:"omitempty,min=1"`
}

func (u FacilityUpdate) Empty() bool {
	return u.Name == nil && u.Location == nil && u.Capacity == nil && u.CampusID == nil
}

func (u FacilityUpdate) Apply(f *Facility) {
	if u.Name != nil {
		f.Name = strings.TrimSpace(*u.Name)
	}
	if u.Location != nil {
		f.Location = strings.TrimSpace(*u.Location)
	}
	if u.Capacity != nil {
		f.Capacity = *u.Capacity
	}
	if u.CampusID != nil {
		id := *u.CampusID
		f.CampusID = &id
		f.Campus = nil
	}
}
