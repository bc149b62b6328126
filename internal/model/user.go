package model

import (
	"strings"
	"time"
)

// Role is the access level carried in tokens.
type Role string

const (
	RoleAdmin   Role = "admin"
	RoleTeacher Role = "teacher"
	RoleStudent Role = "student"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleAdmin, RoleTeacher, RoleStudent:
		return true
	}
	return false
}

// User is an account of the users service.
type User struct {
	ID           int64     `gorm:"primaryKey" json:"id"`
	Name         string    `gorm:"size:120;not null" json:"name"`
	Email        string    `gorm:"size:160;not null;uniqueIndex" json:"email"`
	Username     string    `gorm:"size:80;not null;uniqueIndex" json:"username"`
	PasswordHash string    `gorm:"size:200;not null" json:"-"`
	Role         Role      `gorm:"size:20;not null;index" json:"role"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// UserUpdate holds the fields an update may touch. Nil means unchanged.
type UserUpdate struct {
	Name     *string `json:"name" validate:"omitempty,min=1,max=120"`
	Email    *string `json:"email" validate:"omitempty,email,max=160"`
	Username *string `json:"username" validate:"omitempty,min=3,max=80"`
	Role     *Role   `json:"role" validate:"omitempty,oneof=admin teacher student"`
}

// Empty reports whether no field is set.
func (u UserUpdate) Empty() bool {
	return u.Name == nil && u.Email == nil && u.Username == nil && u.Role == nil
}

// Apply copies the set fields onto user.
func (u UserUpdate) Apply(user *User) {
	if u.Name != nil {
		user.Name = strings.TrimSpace(*u.Name)
	}
	if u.Email != nil {
		user.Email = NormalizeEmail(*u.Email)
	}
	if u.Username != nil {
		user.Username = strings.TrimSpace(*u.Username)
	}
	if u.Role != nil {
		user.Role = *u.Role
	}
}

// NormalizeEmail lowercases and trims an address.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
