// Package worker runs the notification engine on cron schedules.
package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/AzielCF/az-bookings/notifications/domain"
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

type BatchRunner interface {
	RunDueBatch(ctx context.Context, now, deadline time.Time) (domain.BatchResult, error)
}

type Reconciler interface {
	ReconcileAll(ctx context.Context) (int, error)
}

type Config struct {
	RunSpec       string
	ReconcileSpec string // empty disables the sweep
	Deadline      time.Duration
	Location      *time.Location
}

// Worker owns a cron instance. A job that is still running when its next
// tick fires is skipped, not queued.
type Worker struct {
	cron       *cron.Cron
	runner     BatchRunner
	reconciler Reconciler
	cfg        Config
	clock      func() time.Time
	ctx        context.Context
}

func New(runner BatchRunner, reconciler Reconciler, cfg Config) (*Worker, error) {
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if cfg.Deadline <= 0 {
		return nil, fmt.Errorf("worker deadline must be positive")
	}

	c := cron.New(
		cron.WithLocation(cfg.Location),
		cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)),
	)
	w := &Worker{
		cron:       c,
		runner:     runner,
		reconciler: reconciler,
		cfg:        cfg,
		clock:      time.Now,
		ctx:        context.Background(),
	}

	if _, err := c.AddFunc(cfg.RunSpec, w.runDue); err != nil {
		return nil, fmt.Errorf("add due batch job %q: %w", cfg.RunSpec, err)
	}
	if cfg.ReconcileSpec != "" && reconciler != nil {
		if _, err := c.AddFunc(cfg.ReconcileSpec, w.reconcileAll); err != nil {
			return nil, fmt.Errorf("add reconcile job %q: %w", cfg.ReconcileSpec, err)
		}
	}
	return w, nil
}

// Start runs the schedules until ctx is done, then waits for running jobs.
func (w *Worker) Start(ctx context.Context) {
	w.ctx = ctx
	w.cron.Start()
	logrus.Infof("[CRON] Worker started (TZ: %s, run: %s, reconcile: %s)",
		w.cfg.Location, w.cfg.RunSpec, w.cfg.ReconcileSpec)

	<-ctx.Done()
	w.Stop()
}

func (w *Worker) Stop() {
	<-w.cron.Stop().Done()
	logrus.Info("[CRON] Worker stopped")
}

func (w *Worker) runDue() {
	now := w.clock()
	result, err := w.runner.RunDueBatch(w.ctx, now, now.Add(w.cfg.Deadline))
	if errors.Is(err, domain.ErrBatchInProgress) {
		logrus.Info("[CRON] Due batch already running elsewhere, tick skipped")
		return
	}
	if err != nil {
		logrus.WithError(err).Error("[CRON] Due batch failed")
		return
	}
	logrus.WithFields(logrus.Fields{
		"processed": result.Processed,
		"skipped":   result.Skipped,
		"failed":    result.Failed,
		"remaining": result.Remaining,
	}).Info("[CRON] Due batch finished")
}

func (w *Worker) reconcileAll() {
	inserted, err := w.reconciler.ReconcileAll(w.ctx)
	if err != nil {
		logrus.WithError(err).Errorf("[CRON] Reconcile sweep finished with errors (%d scheduled)", inserted)
	}
}
