package domain

import "errors"

var (
	// ErrBookingNotFound is returned when no booking exists for an id.
	ErrBookingNotFound = errors.New("booking not found")

	// ErrInvalidBookingID is returned for blank booking ids.
	ErrInvalidBookingID = errors.New("booking id is required")
)
