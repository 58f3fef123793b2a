package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/AzielCF/az-bookings/bookings/domain"
	"github.com/google/uuid"
)

// BookingMemoryRepository is the in-process subject store used with DB_DRIVER=memory.
type BookingMemoryRepository struct {
	mu       sync.RWMutex
	bookings map[string]domain.Booking
}

func NewBookingMemoryRepository() *BookingMemoryRepository {
	return &BookingMemoryRepository{bookings: make(map[string]domain.Booking)}
}

func (r *BookingMemoryRepository) Save(_ context.Context, booking *domain.Booking) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if booking.ID == "" {
		booking.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if existing, ok := r.bookings[booking.ID]; ok {
		booking.CreatedAt = existing.CreatedAt
	} else if booking.CreatedAt.IsZero() {
		booking.CreatedAt = now
	}
	booking.UpdatedAt = now
	r.bookings[booking.ID] = clone(booking)
	return nil
}

func (r *BookingMemoryRepository) GetByID(_ context.Context, id string) (*domain.Booking, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	b, ok := r.bookings[id]
	if !ok {
		return nil, domain.ErrBookingNotFound
	}
	out := clone(&b)
	return &out, nil
}

func (r *BookingMemoryRepository) GetBatch(_ context.Context, ids []string) (map[string]*domain.Booking, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make(map[string]*domain.Booking, len(ids))
	for _, id := range ids {
		if b, ok := r.bookings[id]; ok {
			c := clone(&b)
			out[id] = &c
		}
	}
	return out, nil
}

func (r *BookingMemoryRepository) ListIDs(_ context.Context, filter domain.BookingFilter) ([]string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	matched := make([]domain.Booking, 0, len(r.bookings))
	for _, b := range r.bookings {
		if filter.ExcludeCancelled && b.IsCancelled() {
			continue
		}
		if filter.ExcludeManual && b.ManuallyCreated {
			continue
		}
		if filter.UpdatedSince != nil && b.UpdatedAt.Before(*filter.UpdatedSince) {
			continue
		}
		matched = append(matched, b)
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].CreatedAt.Before(matched[j].CreatedAt) })
	if filter.Limit > 0 && len(matched) > filter.Limit {
		matched = matched[:filter.Limit]
	}

	ids := make([]string, 0, len(matched))
	for _, b := range matched {
		ids = append(ids, b.ID)
	}
	return ids, nil
}

func (r *BookingMemoryRepository) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.bookings[id]; !ok {
		return domain.ErrBookingNotFound
	}
	delete(r.bookings, id)
	return nil
}

func clone(b *domain.Booking) domain.Booking {
	c := *b
	if b.EventDate != nil {
		t := *b.EventDate
		c.EventDate = &t
	}
	return c
}
