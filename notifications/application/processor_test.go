package application

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	bookingDomain "github.com/AzielCF/az-bookings/bookings/domain"
	"github.com/AzielCF/az-bookings/notifications/domain"
	"github.com/AzielCF/az-bookings/notifications/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func farDeadline() time.Time { return time.Now().Add(time.Minute) }

func TestProcessor_SendsDueRowsOnce(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	f.saveBooking(t, quotedBooking("b1"))
	_, err := f.scheduler(t0).Reconcile(ctx, "b1")
	require.NoError(t, err)

	now := t0.Add(6 * time.Hour)
	p := f.processor(ProcessorConfig{})

	res, err := p.RunDueBatch(ctx, now, farDeadline())
	require.NoError(t, err)
	assert.Equal(t, 2, res.Processed)
	assert.Equal(t, int64(0), res.Remaining)
	assert.ElementsMatch(t, []string{"email:followup_3h/b1", "email:followup_6h/b1"}, f.email.sends())

	res, err = p.RunDueBatch(ctx, now, farDeadline())
	require.NoError(t, err)
	assert.Equal(t, 0, res.Processed)
	assert.Len(t, f.email.sends(), 2, "a resolved row must never be sent again")

	row := f.row(t, "b1", domain.KindFollowUp3h)
	assert.True(t, row.Sent)
	assert.Empty(t, row.LastError)
	assert.False(t, f.row(t, "b1", domain.KindFollowUp24h).Sent)
}

func TestProcessor_SkipReasons(t *testing.T) {
	event := t0.Add(20 * 24 * time.Hour)

	tests := []struct {
		name    string
		booking func() *bookingDomain.Booking
		kind    domain.Kind
		reason  string
	}{
		{"missing booking", nil, domain.KindFollowUp3h, domain.ReasonBookingNotFound},
		{"cancelled", func() *bookingDomain.Booking {
			b := quotedBooking("x")
			b.Status = bookingDomain.StatusCancelled
			return b
		}, domain.KindWhatsAppReminder1w, domain.ReasonCancelled},
		{"manual", func() *bookingDomain.Booking {
			b := quotedBooking("x")
			b.ManuallyCreated = true
			return b
		}, domain.KindFollowUp3h, domain.ReasonManuallyCreated},
		{"follow-up after payment", func() *bookingDomain.Booking {
			b := quotedBooking("x")
			b.PaymentState = bookingDomain.PaymentApproved
			return b
		}, domain.KindFollowUp24h, domain.ReasonAdvancePaid},
		{"follow-up after confirmation", func() *bookingDomain.Booking {
			b := quotedBooking("x")
			b.Status = bookingDomain.StatusConfirmed
			return b
		}, domain.KindFollowUp24h, domain.ReasonNoLongerQuoted},
		{"event reminder unpaid", func() *bookingDomain.Booking {
			b := confirmedBooking("x", event)
			b.PaymentState = bookingDomain.PaymentDepositPending
			return b
		}, domain.KindEventReminder24h, domain.ReasonAdvanceMissing},
		{"event reminder for quote", func() *bookingDomain.Booking {
			b := quotedBooking("x")
			b.EventDate = &event
			return b
		}, domain.KindAppointmentDayReminder, domain.ReasonNotConfirmed},
		{"no email", func() *bookingDomain.Booking {
			b := quotedBooking("x")
			b.ClientEmail = ""
			return b
		}, domain.KindFollowUp3h, domain.ReasonNoEmailAddress},
		{"no phone", func() *bookingDomain.Booking {
			b := confirmedBooking("x", event)
			b.ClientPhone = ""
			return b
		}, domain.KindWhatsAppReminder2w, domain.ReasonNoPhoneNumber},
		{"unknown kind", func() *bookingDomain.Booking { return quotedBooking("x") }, domain.Kind("sms:hello"), domain.ReasonUnknownKind},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture()
			if tt.booking != nil {
				f.saveBooking(t, tt.booking())
			}
			f.insertDue(t, "x", tt.kind, t0)

			res, err := f.processor(ProcessorConfig{}).RunDueBatch(context.Background(), t0.Add(time.Hour), farDeadline())
			require.NoError(t, err)
			assert.Equal(t, 1, res.Skipped)
			assert.Empty(t, f.email.sends())
			assert.Empty(t, f.whatsapp.sends())

			row := f.row(t, "x", tt.kind)
			assert.True(t, row.Sent)
			assert.Equal(t, tt.reason, row.LastError)
		})
	}
}

func TestProcessor_DeliversEventAndWhatsAppKinds(t *testing.T) {
	f := newFixture()
	event := t0.Add(20 * 24 * time.Hour)
	f.saveBooking(t, confirmedBooking("b1", event))
	f.insertDue(t, "b1", domain.KindEventReminder24h, t0)
	f.insertDue(t, "b1", domain.KindWhatsAppReminder2w, t0)

	res, err := f.processor(ProcessorConfig{}).RunDueBatch(context.Background(), t0, farDeadline())
	require.NoError(t, err)
	assert.Equal(t, 2, res.Processed)
	assert.Equal(t, []string{"email:event_reminder_24h/b1"}, f.email.sends())
	assert.Equal(t, []string{"whatsapp:reminder_2w/b1"}, f.whatsapp.sends())
}

func TestProcessor_PastDeadlineTouchesNothing(t *testing.T) {
	f := newFixture()
	f.saveBooking(t, quotedBooking("b1"))
	for _, k := range followUps[:3] {
		f.insertDue(t, "b1", k, t0)
	}

	res, err := f.processor(ProcessorConfig{}).RunDueBatch(context.Background(), t0, time.Now().Add(-time.Second))
	require.NoError(t, err)
	assert.Equal(t, int64(3), res.Remaining)
	assert.Zero(t, res.Processed+res.Skipped+res.Failed)
	assert.Empty(t, f.email.sends())
	assert.False(t, f.row(t, "b1", domain.KindFollowUp3h).Sent)
}

func TestProcessor_DeadlineCheckedBetweenGroups(t *testing.T) {
	f := newFixture()
	for i := 0; i < 12; i++ {
		id := fmt.Sprintf("b%02d", i)
		f.saveBooking(t, quotedBooking(id))
		f.insertDue(t, id, domain.KindFollowUp3h, t0.Add(time.Duration(i)*time.Minute))
	}

	// The clock jumps past the deadline once the first group has been sent.
	deadline := t0.Add(time.Hour)
	clock := t0
	p := f.processor(ProcessorConfig{GroupSize: 5}).WithClock(func() time.Time {
		if len(f.email.sends()) >= 5 {
			return deadline.Add(time.Second)
		}
		return clock
	})

	res, err := p.RunDueBatch(context.Background(), t0.Add(time.Hour), deadline)
	require.NoError(t, err)
	assert.Equal(t, 5, res.Processed, "the started group finishes, the next one never starts")
	assert.Equal(t, int64(7), res.Remaining)
	assert.Len(t, f.email.sends(), 5)
}

func TestProcessor_FailureIsolation(t *testing.T) {
	f := newFixture()
	for _, id := range []string{"ok1", "bad", "ok2"} {
		f.saveBooking(t, quotedBooking(id))
		f.insertDue(t, id, domain.KindFollowUp3h, t0)
	}
	f.email.failFor["bad"] = errSMTPDown

	p := f.processor(ProcessorConfig{})
	res, err := p.RunDueBatch(context.Background(), t0, farDeadline())
	require.NoError(t, err)
	assert.Equal(t, 2, res.Processed)
	assert.Equal(t, 1, res.Failed)
	assert.Equal(t, int64(1), res.Remaining)
	require.Len(t, res.Errors, 1)
	assert.Contains(t, res.Errors[0], "connection refused")

	bad := f.row(t, "bad", domain.KindFollowUp3h)
	assert.False(t, bad.Sent)
	assert.Equal(t, 1, bad.Attempts)
	assert.Equal(t, errSMTPDown.Error(), bad.LastError)

	// Retried on the next run without backoff.
	delete(f.email.failFor, "bad")
	res, err = p.RunDueBatch(context.Background(), t0, farDeadline())
	require.NoError(t, err)
	assert.Equal(t, 1, res.Processed)
	assert.True(t, f.row(t, "bad", domain.KindFollowUp3h).Sent)
}

func TestProcessor_RetryPolicy(t *testing.T) {
	f := newFixture()
	f.saveBooking(t, quotedBooking("bad"))
	f.insertDue(t, "bad", domain.KindFollowUp3h, t0)
	f.email.failFor["bad"] = errSMTPDown

	p := f.processor(ProcessorConfig{Retry: domain.RetryPolicy{Backoff: time.Minute, MaxAttempts: 2}})

	_, err := p.RunDueBatch(context.Background(), t0, farDeadline())
	require.NoError(t, err)
	row := f.row(t, "bad", domain.KindFollowUp3h)
	require.NotNil(t, row.NextAttemptAt)
	assert.Equal(t, t0.Add(time.Minute), *row.NextAttemptAt)

	res, err := p.RunDueBatch(context.Background(), t0.Add(30*time.Second), farDeadline())
	require.NoError(t, err)
	assert.Equal(t, 0, res.Failed, "row is backing off")

	res, err = p.RunDueBatch(context.Background(), t0.Add(2*time.Minute), farDeadline())
	require.NoError(t, err)
	assert.Equal(t, 1, res.Failed)

	row = f.row(t, "bad", domain.KindFollowUp3h)
	assert.True(t, row.Sent)
	assert.Equal(t, 2, row.Attempts)
	assert.Equal(t, domain.GaveUpReason(2), row.LastError)
}

func TestProcessor_MissingTransportLeavesRowDue(t *testing.T) {
	f := newFixture()
	f.saveBooking(t, confirmedBooking("b1", t0.Add(30*24*time.Hour)))
	f.insertDue(t, "b1", domain.KindWhatsAppReminder1w, t0)

	p := NewProcessor(f.ledger, f.bookings, ProcessorConfig{}, f.email)
	res, err := p.RunDueBatch(context.Background(), t0, farDeadline())
	require.NoError(t, err)
	assert.Equal(t, 1, res.Failed)
	assert.False(t, f.row(t, "b1", domain.KindWhatsAppReminder1w).Sent)
	assert.Contains(t, res.Errors[0], domain.ErrTransportNotConfigured.Error())
}

func TestProcessor_ConcurrencyCap(t *testing.T) {
	f := newFixture()
	f.email.delay = 5 * time.Millisecond
	for i := 0; i < 20; i++ {
		id := fmt.Sprintf("b%02d", i)
		f.saveBooking(t, quotedBooking(id))
		f.insertDue(t, id, domain.KindFollowUp3h, t0)
	}

	res, err := f.processor(ProcessorConfig{GroupSize: 3}).RunDueBatch(context.Background(), t0, farDeadline())
	require.NoError(t, err)
	assert.Equal(t, 20, res.Processed)
	assert.LessOrEqual(t, f.email.maxConcurrent(), int32(3))
}

func TestProcessor_ErrorCap(t *testing.T) {
	f := newFixture()
	for i := 0; i < 6; i++ {
		id := fmt.Sprintf("b%d", i)
		f.saveBooking(t, quotedBooking(id))
		f.insertDue(t, id, domain.KindFollowUp3h, t0)
		f.email.failFor[id] = errSMTPDown
	}

	res, err := f.processor(ProcessorConfig{ErrorCap: 4}).RunDueBatch(context.Background(), t0, farDeadline())
	require.NoError(t, err)
	assert.Equal(t, 6, res.Failed)
	assert.Len(t, res.Errors, 4)
}

type fakeLocker struct {
	held     bool
	unlocked bool
}

func (l *fakeLocker) TryLock(context.Context, string, time.Duration) (string, bool, error) {
	if l.held {
		return "", false, nil
	}
	l.held = true
	return "token", true, nil
}

func (l *fakeLocker) Unlock(context.Context, string, string) error {
	l.held = false
	l.unlocked = true
	return nil
}

func TestProcessor_RunLock(t *testing.T) {
	f := newFixture()
	f.saveBooking(t, quotedBooking("b1"))
	f.insertDue(t, "b1", domain.KindFollowUp3h, t0)

	locker := &fakeLocker{held: true}
	p := f.processor(ProcessorConfig{}).WithLocker(locker)

	_, err := p.RunDueBatch(context.Background(), t0, farDeadline())
	assert.ErrorIs(t, err, domain.ErrBatchInProgress)
	assert.Empty(t, f.email.sends())

	locker.held = false
	res, err := p.RunDueBatch(context.Background(), t0, farDeadline())
	require.NoError(t, err)
	assert.Equal(t, 1, res.Processed)
	assert.True(t, locker.unlocked)
	assert.False(t, locker.held)
}

// batchFailingLedger wraps the memory ledger and fails the batched update.
type batchFailingLedger struct {
	domain.LedgerRepository
	mock.Mock
}

func (l *batchFailingLedger) MarkResolvedBatch(ctx context.Context, res []domain.Resolution, at time.Time) error {
	return l.Called(ctx, res, at).Error(0)
}

func (l *batchFailingLedger) MarkSent(ctx context.Context, id string, at time.Time) error {
	l.Called(ctx, id, at)
	return l.LedgerRepository.MarkSent(ctx, id, at)
}

func (l *batchFailingLedger) MarkSentWithError(ctx context.Context, id, reason string, at time.Time) error {
	l.Called(ctx, id, reason, at)
	return l.LedgerRepository.MarkSentWithError(ctx, id, reason, at)
}

func TestProcessor_FallsBackToSingleUpdates(t *testing.T) {
	f := newFixture()
	f.saveBooking(t, quotedBooking("ok"))
	paid := quotedBooking("paid")
	paid.PaymentState = bookingDomain.PaymentDepositPaid
	f.saveBooking(t, paid)
	f.insertDue(t, "ok", domain.KindFollowUp3h, t0)
	f.insertDue(t, "paid", domain.KindFollowUp3h, t0)

	ledger := &batchFailingLedger{LedgerRepository: f.ledger}
	ledger.On("MarkResolvedBatch", mock.Anything, mock.Anything, mock.Anything).Return(errors.New("database is locked"))
	ledger.On("MarkSent", mock.Anything, mock.Anything, mock.Anything).Return()
	ledger.On("MarkSentWithError", mock.Anything, mock.Anything, domain.ReasonAdvancePaid, mock.Anything).Return()

	p := NewProcessor(ledger, f.bookings, ProcessorConfig{}, f.email)
	res, err := p.RunDueBatch(context.Background(), t0, farDeadline())
	require.NoError(t, err)
	assert.Equal(t, 1, res.Processed)
	assert.Equal(t, 1, res.Skipped)
	assert.Equal(t, int64(0), res.Remaining)

	ledger.AssertNumberOfCalls(t, "MarkSent", 1)
	ledger.AssertNumberOfCalls(t, "MarkSentWithError", 1)
	assert.True(t, f.row(t, "ok", domain.KindFollowUp3h).Sent)
	assert.Equal(t, domain.ReasonAdvancePaid, f.row(t, "paid", domain.KindFollowUp3h).LastError)
}

func TestProcessor_Stats(t *testing.T) {
	f := newFixture()
	f.insertDue(t, "b1", domain.KindFollowUp3h, t0)

	stats, err := f.processor(ProcessorConfig{GroupSize: 7}).Stats(context.Background(), t0)
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.Due)
	assert.Equal(t, 7, stats.Pool.Size)
}

func newSQLiteLedger(t *testing.T) *repository.LedgerGormRepository {
	t.Helper()
	dsn := "file:" + filepath.Join(t.TempDir(), "ledger.db") + "?_journal_mode=WAL"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	ledger := repository.NewLedgerGormRepository(db)
	require.NoError(t, ledger.InitSchema(context.Background()))
	return ledger
}

// cancellingTransport accepts every message and cancels the caller's context
// on the first one, like a SIGTERM landing mid-send.
type cancellingTransport struct {
	mu     sync.Mutex
	cancel context.CancelFunc
	sent   []string
}

func (c *cancellingTransport) Channel() domain.Channel { return domain.ChannelEmail }

func (c *cancellingTransport) Send(_ context.Context, spec domain.KindSpec, b *bookingDomain.Booking) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sent = append(c.sent, string(spec.Kind)+"/"+b.ID)
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
	return nil
}

func TestProcessor_CancelledRunKeepsDeliveredRowsResolved(t *testing.T) {
	f := newFixture()
	ledger := newSQLiteLedger(t)
	for _, id := range []string{"b1", "b2"} {
		f.saveBooking(t, quotedBooking(id))
		inserted, err := ledger.InsertIfAbsent(context.Background(), &domain.ScheduledNotification{
			SubjectID: id, Kind: domain.KindFollowUp3h, DueAt: t0,
		})
		require.NoError(t, err)
		require.True(t, inserted)
	}

	ctx, cancel := context.WithCancel(context.Background())
	transport := &cancellingTransport{cancel: cancel}
	p := NewProcessor(ledger, f.bookings, ProcessorConfig{GroupSize: 1}, transport)

	res, err := p.RunDueBatch(ctx, t0, farDeadline())
	require.NoError(t, err)
	assert.Equal(t, 1, res.Processed)
	assert.Equal(t, 0, res.Failed)
	assert.Equal(t, int64(1), res.Remaining, "the second group must not start once cancelled")
	require.Len(t, transport.sent, 1)

	res, err = p.RunDueBatch(context.Background(), t0, farDeadline())
	require.NoError(t, err)
	assert.Equal(t, 1, res.Processed)
	assert.Equal(t, int64(0), res.Remaining)
	assert.ElementsMatch(t, []string{
		string(domain.KindFollowUp3h) + "/b1",
		string(domain.KindFollowUp3h) + "/b2",
	}, transport.sent)

	for _, id := range []string{"b1", "b2"} {
		rows, err := ledger.ListBySubject(context.Background(), id)
		require.NoError(t, err)
		require.Len(t, rows, 1)
		assert.True(t, rows[0].Sent, id)
		assert.Zero(t, rows[0].Attempts, id)
	}
}

// gatedTransport blocks every send until release is closed.
type gatedTransport struct {
	*fakeTransport
	started chan struct{}
	release chan struct{}
	once    sync.Once
}

func (g *gatedTransport) Send(ctx context.Context, spec domain.KindSpec, b *bookingDomain.Booking) error {
	g.once.Do(func() { close(g.started) })
	<-g.release
	return g.fakeTransport.Send(ctx, spec, b)
}

func TestProcessor_OverlappingRunsInOneProcess(t *testing.T) {
	f := newFixture()
	f.saveBooking(t, quotedBooking("b1"))
	f.insertDue(t, "b1", domain.KindFollowUp3h, t0)

	gate := &gatedTransport{
		fakeTransport: newFakeTransport(domain.ChannelEmail),
		started:       make(chan struct{}),
		release:       make(chan struct{}),
	}
	p := NewProcessor(f.ledger, f.bookings, ProcessorConfig{}, gate)

	var wg sync.WaitGroup
	var first domain.BatchResult
	var firstErr error
	wg.Add(1)
	go func() {
		defer wg.Done()
		first, firstErr = p.RunDueBatch(context.Background(), t0, farDeadline())
	}()

	select {
	case <-gate.started:
	case <-time.After(5 * time.Second):
		t.Fatal("first run never reached the transport")
	}

	_, err := p.RunDueBatch(context.Background(), t0, farDeadline())
	assert.ErrorIs(t, err, domain.ErrBatchInProgress)

	close(gate.release)
	wg.Wait()
	require.NoError(t, firstErr)
	assert.Equal(t, 1, first.Processed)
	assert.Equal(t, []string{string(domain.KindFollowUp3h) + "/b1"}, gate.sends())

	res, err := p.RunDueBatch(context.Background(), t0, farDeadline())
	require.NoError(t, err, "the lock is released when a run ends")
	assert.Equal(t, 0, res.Processed)
}

// unwritableLedger accepts reads but every write and the backlog count fail.
type unwritableLedger struct {
	domain.LedgerRepository
}

var errLedgerGone = errors.New("database is closed")

func (unwritableLedger) MarkResolvedBatch(context.Context, []domain.Resolution, time.Time) error {
	return errLedgerGone
}

func (unwritableLedger) MarkSent(context.Context, string, time.Time) error {
	return errLedgerGone
}

func (unwritableLedger) MarkSentWithError(context.Context, string, string, time.Time) error {
	return errLedgerGone
}

func (unwritableLedger) CountDue(context.Context, time.Time) (int64, error) {
	return 0, errLedgerGone
}

func TestProcessor_RemainingIncludesUnwrittenResolutions(t *testing.T) {
	f := newFixture()
	f.saveBooking(t, quotedBooking("b1"))
	paid := quotedBooking("b2")
	paid.PaymentState = bookingDomain.PaymentDepositPaid
	f.saveBooking(t, paid)
	f.insertDue(t, "b1", domain.KindFollowUp3h, t0)
	f.insertDue(t, "b2", domain.KindFollowUp3h, t0)

	p := NewProcessor(unwritableLedger{f.ledger}, f.bookings, ProcessorConfig{}, f.email)
	res, err := p.RunDueBatch(context.Background(), t0, farDeadline())
	require.NoError(t, err)
	assert.Equal(t, 1, res.Processed)
	assert.Equal(t, 1, res.Skipped)
	assert.Equal(t, int64(2), res.Remaining)
	assert.Len(t, res.Errors, 3)
	assert.False(t, f.row(t, "b1", domain.KindFollowUp3h).Sent)
}
