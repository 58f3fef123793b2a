package application

import (
	"context"
	"errors"
	"fmt"
	"time"

	bookingDomain "github.com/AzielCF/az-bookings/bookings/domain"
	"github.com/AzielCF/az-bookings/notifications/domain"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// Scheduler keeps the ledger in line with what the policy requires for each
// booking. It only ever inserts; existing rows are left untouched.
type Scheduler struct {
	ledger   domain.LedgerRepository
	bookings bookingDomain.BookingRepository
	opts     domain.PolicyOptions
	now      func() time.Time
}

// NewScheduler creates a new instance of the scheduler.
func NewScheduler(
	ledger domain.LedgerRepository,
	bookings bookingDomain.BookingRepository,
	opts domain.PolicyOptions,
) *Scheduler {
	return &Scheduler{
		ledger:   ledger,
		bookings: bookings,
		opts:     opts,
		now:      time.Now,
	}
}

// WithClock overrides the time source. Used by tests and the CLI --now flag.
func (s *Scheduler) WithClock(now func() time.Time) *Scheduler {
	s.now = now
	return s
}

// Reconcile loads the booking and inserts any missing notification rows.
func (s *Scheduler) Reconcile(ctx context.Context, subjectID string) (domain.ReconcileResult, error) {
	booking, err := s.bookings.GetByID(ctx, subjectID)
	if err != nil {
		if errors.Is(err, bookingDomain.ErrBookingNotFound) {
			return domain.ReconcileResult{SubjectID: subjectID}, err
		}
		return domain.ReconcileResult{SubjectID: subjectID}, fmt.Errorf("load booking %s: %w", subjectID, err)
	}
	return s.ReconcileBooking(ctx, booking)
}

// ReconcileBooking is Reconcile for a booking the caller already holds.
// A failed insert does not stop the remaining kinds; all errors are joined.
func (s *Scheduler) ReconcileBooking(ctx context.Context, booking *bookingDomain.Booking) (domain.ReconcileResult, error) {
	result := domain.ReconcileResult{SubjectID: booking.ID, Inserted: []domain.Kind{}}

	required := domain.RequiredNotifications(booking, s.now(), s.opts)
	if len(required) == 0 {
		return result, nil
	}

	existing, err := s.ledger.ListBySubject(ctx, booking.ID)
	if err != nil {
		return result, fmt.Errorf("list notifications for %s: %w", booking.ID, err)
	}
	result.Existing = len(existing)

	present := make(map[domain.Kind]struct{}, len(existing))
	for _, row := range existing {
		present[row.Kind] = struct{}{}
	}

	var errs []error
	for _, req := range required {
		if _, ok := present[req.Kind]; ok {
			continue
		}
		row := &domain.ScheduledNotification{
			ID:        uuid.NewString(),
			SubjectID: booking.ID,
			Kind:      req.Kind,
			DueAt:     req.DueAt.UTC(),
		}
		inserted, err := s.ledger.InsertIfAbsent(ctx, row)
		if err != nil {
			errs = append(errs, fmt.Errorf("insert %s for %s: %w", req.Kind, booking.ID, err))
			continue
		}
		// A concurrent reconcile won the race.
		if !inserted {
			continue
		}
		result.Inserted = append(result.Inserted, req.Kind)
	}

	if len(result.Inserted) > 0 {
		logrus.Debugf("[SCHEDULER] Booking %s: scheduled %v", booking.ID, result.Inserted)
	}
	return result, errors.Join(errs...)
}

// ReconcileAll sweeps every active, non-manual booking. Per-booking errors
// are logged and joined; the sweep always visits every booking.
func (s *Scheduler) ReconcileAll(ctx context.Context) (int, error) {
	ids, err := s.bookings.ListIDs(ctx, bookingDomain.BookingFilter{
		ExcludeCancelled: true,
		ExcludeManual:    true,
	})
	if err != nil {
		return 0, fmt.Errorf("list bookings: %w", err)
	}

	var (
		errs     []error
		inserted int
	)
	for _, id := range ids {
		if ctx.Err() != nil {
			errs = append(errs, ctx.Err())
			break
		}
		res, err := s.Reconcile(ctx, id)
		inserted += len(res.Inserted)
		if err != nil {
			logrus.WithError(err).Errorf("[SCHEDULER] Reconcile failed for booking %s", id)
			errs = append(errs, err)
		}
	}

	logrus.Infof("[SCHEDULER] Sweep finished: %d bookings, %d notifications scheduled", len(ids), inserted)
	return inserted, errors.Join(errs...)
}
