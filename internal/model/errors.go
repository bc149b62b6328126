package model

import "errors"

var (
	// ErrInvalid marks input that fails domain validation.
	ErrInvalid = errors.New("invalid input")
	// ErrEmptyUpdate is returned when an update carries no fields.
	ErrEmptyUpdate = errors.New("no fields to update")
)
