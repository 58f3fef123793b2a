package application

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	bookingDomain "github.com/AzielCF/az-bookings/bookings/domain"
	"github.com/AzielCF/az-bookings/notifications/domain"
	"github.com/AzielCF/az-bookings/pkg/dispatchpool"
	"github.com/sirupsen/logrus"
)

const (
	DefaultGroupSize = 5
	DefaultErrorCap  = 20

	batchLockKey = "lock:notifications:batch"
)

// Locker is a cross-node mutex around RunDueBatch. token identifies the
// holder so Unlock never releases a lock taken over by someone else.
type Locker interface {
	TryLock(ctx context.Context, key string, ttl time.Duration) (token string, acquired bool, err error)
	Unlock(ctx context.Context, key, token string) error
}

// ProcessorConfig tunes a Processor. Zero values fall back to defaults.
type ProcessorConfig struct {
	// GroupSize is both the group length and the concurrent send cap.
	GroupSize int
	// BatchLimit caps the rows fetched by RunDueBatch. Zero fetches every due row.
	BatchLimit int
	// ErrorCap bounds BatchResult.Errors.
	ErrorCap int
	// LockTTL overrides the run lock expiry, which otherwise follows the deadline.
	LockTTL time.Duration
	Retry   domain.RetryPolicy
	Policy  domain.PolicyOptions
}

func (c ProcessorConfig) withDefaults() ProcessorConfig {
	if c.GroupSize <= 0 {
		c.GroupSize = DefaultGroupSize
	}
	if c.ErrorCap <= 0 {
		c.ErrorCap = DefaultErrorCap
	}
	return c
}

// EngineStats is the snapshot served by the stats endpoint.
type EngineStats struct {
	Due  int64                  `json:"due"`
	Pool dispatchpool.PoolStats `json:"pool"`
}

// Processor drains due ledger rows: it re-checks each one against the live
// booking, sends what is still deliverable and resolves the rest.
type Processor struct {
	ledger     domain.LedgerRepository
	bookings   bookingDomain.BookingRepository
	transports map[domain.Channel]domain.Transport
	pool       *dispatchpool.Pool
	locker     Locker
	running    sync.Mutex
	cfg        ProcessorConfig
	clock      func() time.Time
}

// NewProcessor wires a processor. Transports are keyed by their Channel; a
// later transport for the same channel replaces an earlier one.
func NewProcessor(
	ledger domain.LedgerRepository,
	bookings bookingDomain.BookingRepository,
	cfg ProcessorConfig,
	transports ...domain.Transport,
) *Processor {
	cfg = cfg.withDefaults()
	byChannel := make(map[domain.Channel]domain.Transport, len(transports))
	for _, t := range transports {
		if t == nil {
			continue
		}
		byChannel[t.Channel()] = t
	}
	return &Processor{
		ledger:     ledger,
		bookings:   bookings,
		transports: byChannel,
		pool:       dispatchpool.New(cfg.GroupSize),
		cfg:        cfg,
		clock:      time.Now,
	}
}

// WithLocker enables the distributed run lock. Runs inside one process are
// always serialised, with or without it.
func (p *Processor) WithLocker(l Locker) *Processor {
	p.locker = l
	return p
}

// WithClock overrides the wall clock used for deadline checks and sent_at.
func (p *Processor) WithClock(clock func() time.Time) *Processor {
	p.clock = clock
	return p
}

// Stats reports the due backlog at now and the dispatch pool counters.
func (p *Processor) Stats(ctx context.Context, now time.Time) (EngineStats, error) {
	due, err := p.ledger.CountDue(ctx, now)
	if err != nil {
		return EngineStats{}, fmt.Errorf("count due: %w", err)
	}
	return EngineStats{Due: due, Pool: p.pool.Stats()}, nil
}

// RunDueBatch fetches the due rows at now and processes them until deadline.
func (p *Processor) RunDueBatch(ctx context.Context, now, deadline time.Time) (domain.BatchResult, error) {
	if !p.running.TryLock() {
		logrus.Info("[PROCESSOR] A batch is already running in this process, skipping")
		return emptyResult(), domain.ErrBatchInProgress
	}
	defer p.running.Unlock()

	if p.locker != nil {
		ttl := p.cfg.LockTTL
		if ttl <= 0 {
			ttl = deadline.Sub(p.clock()) + time.Minute
		}
		if ttl < time.Second {
			ttl = time.Second
		}
		token, acquired, err := p.locker.TryLock(ctx, batchLockKey, ttl)
		if err != nil {
			return emptyResult(), fmt.Errorf("acquire batch lock: %w", err)
		}
		if !acquired {
			logrus.Info("[PROCESSOR] Another node is running the batch, skipping")
			return emptyResult(), domain.ErrBatchInProgress
		}
		defer func() {
			if err := p.locker.Unlock(context.WithoutCancel(ctx), batchLockKey, token); err != nil {
				logrus.WithError(err).Warn("[PROCESSOR] Failed to release batch lock")
			}
		}()
	}

	rows, err := p.ledger.ListDue(ctx, now, p.cfg.BatchLimit)
	if err != nil {
		return emptyResult(), fmt.Errorf("fetch due notifications: %w", err)
	}
	return p.ProcessBatch(ctx, rows, now, deadline)
}

// ProcessBatch handles rows in fixed-size groups. The deadline and ctx are
// checked before each group only, so a started group always finishes.
// Resolutions are committed once at the end, detached from ctx: a send the
// transport accepted is recorded even when the caller has gone away.
func (p *Processor) ProcessBatch(ctx context.Context, rows []domain.ScheduledNotification, now, deadline time.Time) (domain.BatchResult, error) {
	result := emptyResult()
	if len(rows) == 0 {
		return result, nil
	}
	if !p.clock().Before(deadline) {
		result.Remaining = int64(len(rows))
		logrus.Warnf("[PROCESSOR] Deadline already passed, %d rows left untouched", len(rows))
		return result, nil
	}

	bookings, err := p.bookings.GetBatch(ctx, subjectIDs(rows))
	if err != nil {
		return result, fmt.Errorf("load bookings: %w", err)
	}

	store := context.WithoutCancel(ctx)
	run := &batchRun{p: p, result: &result, now: now, store: store}
	processedRows := 0
	for start := 0; start < len(rows); start += p.cfg.GroupSize {
		if !p.clock().Before(deadline) {
			logrus.Infof("[PROCESSOR] Deadline reached after %d of %d rows", processedRows, len(rows))
			break
		}
		if err := ctx.Err(); err != nil {
			logrus.WithError(err).Warnf("[PROCESSOR] Stopping after %d of %d rows", processedRows, len(rows))
			run.addError(fmt.Sprintf("stopped after %d of %d rows: %v", processedRows, len(rows), err))
			break
		}
		end := min(start+p.cfg.GroupSize, len(rows))
		run.group(ctx, rows[start:end], bookings)
		processedRows = end
	}

	unresolved := run.commit()

	remaining, err := p.ledger.CountDue(store, now)
	if err != nil {
		run.addError(fmt.Sprintf("count remaining: %v", err))
		remaining = int64(len(rows)-processedRows+run.stillDue) + int64(unresolved)
	}
	result.Remaining = remaining

	logrus.WithFields(logrus.Fields{
		"processed": result.Processed,
		"skipped":   result.Skipped,
		"failed":    result.Failed,
		"remaining": result.Remaining,
	}).Info("[PROCESSOR] Batch finished")
	return result, nil
}

// batchRun carries the state of one ProcessBatch invocation.
type batchRun struct {
	p           *Processor
	result      *domain.BatchResult
	now         time.Time
	store       context.Context
	resolutions []domain.Resolution
	// stillDue counts handled rows left unresolved: retried failures and
	// sends cut short by cancellation.
	stillDue int
}

type dispatch struct {
	row     domain.ScheduledNotification
	spec    domain.KindSpec
	booking *bookingDomain.Booking
}

func (r *batchRun) group(ctx context.Context, rows []domain.ScheduledNotification, bookings map[string]*bookingDomain.Booking) {
	var (
		pending []dispatch
		jobs    []dispatchpool.Job
	)
	for _, row := range rows {
		spec, ok := r.p.cfg.Policy.Lookup(row.Kind)
		if !ok {
			r.skip(row, domain.ReasonUnknownKind)
			continue
		}
		booking := bookings[row.SubjectID]
		if reason := domain.CheckDeliverable(spec, booking); reason != "" {
			r.skip(row, reason)
			continue
		}
		transport, ok := r.p.transports[spec.Channel]
		if !ok {
			r.fail(row, fmt.Errorf("%w: %s", domain.ErrTransportNotConfigured, spec.Channel))
			continue
		}

		pending = append(pending, dispatch{row: row, spec: spec, booking: booking})
		jobs = append(jobs, dispatchpool.Job{
			Name: string(row.Kind) + "/" + row.SubjectID,
			Handler: func(ctx context.Context) error {
				return transport.Send(ctx, spec, booking)
			},
		})
	}

	errs := r.p.pool.RunGroup(ctx, jobs)
	for i, d := range pending {
		if errs[i] != nil {
			if ctx.Err() != nil && errors.Is(errs[i], ctx.Err()) {
				logrus.Debugf("[PROCESSOR] Send of %s for booking %s interrupted, leaving it due", d.row.Kind, d.row.SubjectID)
				r.stillDue++
				continue
			}
			r.fail(d.row, errs[i])
			continue
		}
		r.resolutions = append(r.resolutions, domain.Resolution{ID: d.row.ID})
		r.result.Processed++
	}
}

func (r *batchRun) skip(row domain.ScheduledNotification, reason string) {
	logrus.Debugf("[PROCESSOR] Skipping %s for booking %s: %s", row.Kind, row.SubjectID, reason)
	r.resolutions = append(r.resolutions, domain.Resolution{ID: row.ID, Reason: reason})
	r.result.Skipped++
}

func (r *batchRun) fail(row domain.ScheduledNotification, sendErr error) {
	r.result.Failed++
	r.addError(fmt.Sprintf("%s (%s, booking %s): %v", row.ID, row.Kind, row.SubjectID, sendErr))

	attempts := row.Attempts + 1
	retry := r.p.cfg.Retry
	if err := r.p.ledger.RecordFailure(r.store, row.ID, sendErr.Error(), retry.NextAttemptAt(r.now, attempts)); err != nil {
		logrus.WithError(err).Errorf("[PROCESSOR] Failed to record failure for %s", row.ID)
		r.addError(fmt.Sprintf("%s: record failure: %v", row.ID, err))
	}
	if !retry.Exhausted(attempts) {
		r.stillDue++
		return
	}
	logrus.Warnf("[PROCESSOR] Giving up on %s after %d attempts", row.ID, attempts)
	r.resolutions = append(r.resolutions, domain.Resolution{ID: row.ID, Reason: domain.GaveUpReason(attempts)})
}

// commit persists the resolutions and returns how many could not be written.
// Those rows are still due and count towards the remaining backlog.
func (r *batchRun) commit() int {
	if len(r.resolutions) == 0 {
		return 0
	}
	at := r.p.clock().UTC()
	err := r.p.ledger.MarkResolvedBatch(r.store, r.resolutions, at)
	if err == nil {
		return 0
	}

	logrus.WithError(err).Warnf("[PROCESSOR] Batch mark failed, falling back to %d single updates", len(r.resolutions))
	unresolved := 0
	for _, res := range r.resolutions {
		var rowErr error
		if res.Skipped() {
			rowErr = r.p.ledger.MarkSentWithError(r.store, res.ID, res.Reason, at)
		} else {
			rowErr = r.p.ledger.MarkSent(r.store, res.ID, at)
		}
		if rowErr != nil && !errors.Is(rowErr, domain.ErrNotificationNotFound) {
			unresolved++
			r.addError(fmt.Sprintf("%s: mark sent: %v", res.ID, rowErr))
		}
	}
	return unresolved
}

func (r *batchRun) addError(msg string) {
	if len(r.result.Errors) < r.p.cfg.ErrorCap {
		r.result.Errors = append(r.result.Errors, msg)
	}
}

func subjectIDs(rows []domain.ScheduledNotification) []string {
	seen := make(map[string]struct{}, len(rows))
	ids := make([]string, 0, len(rows))
	for _, row := range rows {
		if _, ok := seen[row.SubjectID]; ok {
			continue
		}
		seen[row.SubjectID] = struct{}{}
		ids = append(ids, row.SubjectID)
	}
	return ids
}

func emptyResult() domain.BatchResult {
	return domain.BatchResult{Errors: []string{}}
}
