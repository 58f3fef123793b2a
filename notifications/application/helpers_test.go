package application

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	bookingDomain "github.com/AzielCF/az-bookings/bookings/domain"
	bookingRepo "github.com/AzielCF/az-bookings/bookings/repository"
	"github.com/AzielCF/az-bookings/notifications/domain"
	"github.com/AzielCF/az-bookings/notifications/repository"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

// fakeTransport records every send and can be told to fail per booking.
type fakeTransport struct {
	channel domain.Channel
	delay   time.Duration

	mu       sync.Mutex
	sent     []string
	failFor  map[string]error
	inFlight int32
	maxSeen  int32
}

func newFakeTransport(ch domain.Channel) *fakeTransport {
	return &fakeTransport{channel: ch, failFor: map[string]error{}}
}

func (f *fakeTransport) Channel() domain.Channel { return f.channel }

func (f *fakeTransport) Send(_ context.Context, spec domain.KindSpec, b *bookingDomain.Booking) error {
	n := atomic.AddInt32(&f.inFlight, 1)
	defer atomic.AddInt32(&f.inFlight, -1)
	for {
		m := atomic.LoadInt32(&f.maxSeen)
		if n <= m || atomic.CompareAndSwapInt32(&f.maxSeen, m, n) {
			break
		}
	}
	if f.delay > 0 {
		time.Sleep(f.delay)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if err, ok := f.failFor[b.ID]; ok {
		return err
	}
	f.sent = append(f.sent, string(spec.Kind)+"/"+b.ID)
	return nil
}

func (f *fakeTransport) sends() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.sent...)
}

func (f *fakeTransport) maxConcurrent() int32 {
	return atomic.LoadInt32(&f.maxSeen)
}

var errSMTPDown = errors.New("smtp: connection refused")

type fixture struct {
	ledger   *repository.LedgerMemoryRepository
	bookings *bookingRepo.BookingMemoryRepository
	email    *fakeTransport
	whatsapp *fakeTransport
}

func newFixture() *fixture {
	return &fixture{
		ledger:   repository.NewLedgerMemoryRepository(),
		bookings: bookingRepo.NewBookingMemoryRepository(),
		email:    newFakeTransport(domain.ChannelEmail),
		whatsapp: newFakeTransport(domain.ChannelWhatsApp),
	}
}

func (f *fixture) scheduler(now time.Time) *Scheduler {
	return NewScheduler(f.ledger, f.bookings, domain.PolicyOptions{}).WithClock(func() time.Time { return now })
}

func (f *fixture) processor(cfg ProcessorConfig) *Processor {
	return NewProcessor(f.ledger, f.bookings, cfg, f.email, f.whatsapp)
}

func (f *fixture) saveBooking(t *testing.T, b *bookingDomain.Booking) {
	t.Helper()
	require.NoError(t, f.bookings.Save(context.Background(), b))
}

// insertDue puts a row straight into the ledger, bypassing the policy.
func (f *fixture) insertDue(t *testing.T, subjectID string, kind domain.Kind, dueAt time.Time) domain.ScheduledNotification {
	t.Helper()
	row := &domain.ScheduledNotification{SubjectID: subjectID, Kind: kind, DueAt: dueAt}
	inserted, err := f.ledger.InsertIfAbsent(context.Background(), row)
	require.NoError(t, err)
	require.True(t, inserted)
	return *row
}

func (f *fixture) row(t *testing.T, subjectID string, kind domain.Kind) domain.ScheduledNotification {
	t.Helper()
	rows, err := f.ledger.ListBySubject(context.Background(), subjectID)
	require.NoError(t, err)
	for _, r := range rows {
		if r.Kind == kind {
			return r
		}
	}
	t.Fatalf("no %s row for %s", kind, subjectID)
	return domain.ScheduledNotification{}
}

func quotedBooking(id string) *bookingDomain.Booking {
	return &bookingDomain.Booking{
		ID:           id,
		Status:       bookingDomain.StatusQuoted,
		PaymentState: bookingDomain.PaymentNone,
		ClientName:   "Lucia",
		ClientEmail:  id + "@example.com",
		ClientPhone:  "51987654321",
		CreatedAt:    t0,
	}
}

func confirmedBooking(id string, eventDate time.Time) *bookingDomain.Booking {
	b := quotedBooking(id)
	b.Status = bookingDomain.StatusConfirmed
	b.PaymentState = bookingDomain.PaymentDepositPaid
	b.EventDate = &eventDate
	return b
}

func kindsOf(rows []domain.ScheduledNotification) []domain.Kind {
	out := make([]domain.Kind, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.Kind)
	}
	return out
}
