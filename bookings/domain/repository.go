package domain

import (
	"context"
	"time"
)

// BookingFilter narrows ListIDs.
type BookingFilter struct {
	ExcludeCancelled bool
	ExcludeManual    bool
	UpdatedSince     *time.Time
	Limit            int
}

// BookingRepository is the subject store read by the notification engine.
type BookingRepository interface {
	Save(ctx context.Context, booking *Booking) error
	GetByID(ctx context.Context, id string) (*Booking, error)
	// GetBatch returns the bookings found for ids. Missing ids are absent from the map.
	GetBatch(ctx context.Context, ids []string) (map[string]*Booking, error)
	ListIDs(ctx context.Context, filter BookingFilter) ([]string, error)
	Delete(ctx context.Context, id string) error
}
