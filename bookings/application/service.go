package application

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/AzielCF/az-bookings/bookings/domain"
	notifApp "github.com/AzielCF/az-bookings/notifications/application"
	notifDomain "github.com/AzielCF/az-bookings/notifications/domain"
	pkgError "github.com/AzielCF/az-bookings/pkg/error"
	"github.com/AzielCF/az-bookings/pkg/timeutils"
	"github.com/AzielCF/az-bookings/validations"
	"github.com/sirupsen/logrus"
)

// Options tunes a Service.
type Options struct {
	// Location interprets event dates given without an offset.
	Location *time.Location
	// ReconcileOnRead reconciles a booking every time it is read.
	ReconcileOnRead bool
}

// Service is the thin booking CRUD layer. Every write and, optionally, every
// read hands the booking to the scheduler so its ledger stays current.
type Service struct {
	repo      domain.BookingRepository
	ledger    notifDomain.LedgerRepository
	scheduler *notifApp.Scheduler
	opts      Options
}

func NewService(
	repo domain.BookingRepository,
	ledger notifDomain.LedgerRepository,
	scheduler *notifApp.Scheduler,
	opts Options,
) *Service {
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	return &Service{
		repo:      repo,
		ledger:    ledger,
		scheduler: scheduler,
		opts:      opts,
	}
}

// Save creates or replaces the booking with id and reconciles it.
// A reconcile failure is logged, not returned: the booking write stands and
// the next read or sweep schedules what is missing.
func (s *Service) Save(ctx context.Context, id string, request domain.UpsertRequest) (*domain.Booking, error) {
	if err := validations.ValidateUpsertBooking(ctx, id, request, s.opts.Location); err != nil {
		return nil, err
	}

	booking := &domain.Booking{
		ID:                id,
		Status:            request.Status,
		PaymentState:      request.PaymentState,
		FinalPaymentState: request.FinalPaymentState,
		ManuallyCreated:   request.ManuallyCreated,
		ClientName:        request.ClientName,
		ClientEmail:       request.ClientEmail,
		ClientPhone:       request.ClientPhone,
	}
	if booking.PaymentState == "" {
		booking.PaymentState = domain.PaymentNone
	}
	if booking.FinalPaymentState == "" {
		booking.FinalPaymentState = domain.PaymentNone
	}
	if request.EventDate != "" {
		eventDate, err := timeutils.ParseInstant(request.EventDate, s.opts.Location)
		if err != nil {
			return nil, pkgError.ValidationError("event_date: " + err.Error())
		}
		utc := eventDate.UTC()
		booking.EventDate = &utc
	}

	if err := s.repo.Save(ctx, booking); err != nil {
		return nil, fmt.Errorf("save booking %s: %w", id, err)
	}

	saved, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("reload booking %s: %w", id, err)
	}
	s.reconcile(ctx, saved)
	return saved, nil
}

// Get returns the booking, reconciling it first when ReconcileOnRead is set.
func (s *Service) Get(ctx context.Context, id string) (*domain.Booking, error) {
	booking, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if s.opts.ReconcileOnRead {
		s.reconcile(ctx, booking)
	}
	return booking, nil
}

// Delete removes the booking and every ledger row scheduled for it.
func (s *Service) Delete(ctx context.Context, id string) error {
	if err := s.repo.Delete(ctx, id); err != nil {
		if errors.Is(err, domain.ErrBookingNotFound) {
			return pkgError.NotFoundError(fmt.Sprintf("booking %s not found", id))
		}
		return fmt.Errorf("delete booking %s: %w", id, err)
	}
	if err := s.ledger.DeleteBySubject(ctx, id); err != nil {
		return fmt.Errorf("delete notifications for %s: %w", id, err)
	}
	logrus.Infof("[BOOKINGS] Deleted booking %s", id)
	return nil
}

// Reconcile schedules whatever the booking is missing and reports it.
func (s *Service) Reconcile(ctx context.Context, id string) (notifDomain.ReconcileResult, error) {
	result, err := s.scheduler.Reconcile(ctx, id)
	if errors.Is(err, domain.ErrBookingNotFound) {
		return result, pkgError.NotFoundError(fmt.Sprintf("booking %s not found", id))
	}
	return result, err
}

// Notifications lists the ledger rows of a booking.
func (s *Service) Notifications(ctx context.Context, id string) ([]notifDomain.ScheduledNotification, error) {
	if _, err := s.Get(ctx, id); err != nil {
		return nil, err
	}
	rows, err := s.ledger.ListBySubject(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("list notifications for %s: %w", id, err)
	}
	return rows, nil
}

func (s *Service) load(ctx context.Context, id string) (*domain.Booking, error) {
	if id == "" {
		return nil, pkgError.ValidationError(domain.ErrInvalidBookingID.Error())
	}
	booking, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, domain.ErrBookingNotFound) {
			return nil, pkgError.NotFoundError(fmt.Sprintf("booking %s not found", id))
		}
		return nil, fmt.Errorf("load booking %s: %w", id, err)
	}
	return booking, nil
}

func (s *Service) reconcile(ctx context.Context, booking *domain.Booking) {
	if _, err := s.scheduler.ReconcileBooking(ctx, booking); err != nil {
		logrus.WithError(err).Warnf("[BOOKINGS] Reconcile failed for booking %s", booking.ID)
	}
}
