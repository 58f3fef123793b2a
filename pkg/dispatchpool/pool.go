package dispatchpool

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// Job is one unit of a group. Name is only used in logs.
type Job struct {
	Name    string
	Handler func(ctx context.Context) error
}

// PoolStats is a point-in-time snapshot of the pool counters.
type PoolStats struct {
	Size           int     `json:"size"`
	ActiveJobs     int64   `json:"active_jobs"`
	PeakActiveJobs int64   `json:"peak_active_jobs"`
	GroupsRun      int64   `json:"groups_run"`
	TotalProcessed int64   `json:"total_processed"`
	TotalErrors    int64   `json:"total_errors"`
	TotalPanics    int64   `json:"total_panics"`
	UptimeSeconds  float64 `json:"uptime_seconds"`
}

// Pool runs groups of dispatch jobs with at most Size of them in flight.
// It owns no goroutines between calls.
type Pool struct {
	size int

	active         int64
	peakActive     int64
	groupsRun      int64
	totalProcessed int64
	totalErrors    int64
	totalPanics    int64
	startTime      time.Time
}

// New returns a pool capped at size concurrent jobs. A non-positive size means 5.
func New(size int) *Pool {
	if size <= 0 {
		size = 5
	}
	return &Pool{size: size, startTime: time.Now()}
}

// Size returns the concurrency cap.
func (p *Pool) Size() int {
	return p.size
}

// RunGroup runs every job and waits for all of them. The returned slice is
// index-aligned with jobs; a nil entry means the job succeeded. A failing job
// never cancels its siblings.
func (p *Pool) RunGroup(ctx context.Context, jobs []Job) []error {
	errs := make([]error, len(jobs))
	if len(jobs) == 0 {
		return errs
	}
	atomic.AddInt64(&p.groupsRun, 1)

	var g errgroup.Group
	g.SetLimit(p.size)
	for i, job := range jobs {
		g.Go(func() error {
			errs[i] = p.run(ctx, job)
			return nil
		})
	}
	_ = g.Wait()
	return errs
}

func (p *Pool) run(ctx context.Context, job Job) (err error) {
	current := atomic.AddInt64(&p.active, 1)
	p.trackPeak(current)

	defer func() {
		if r := recover(); r != nil {
			atomic.AddInt64(&p.totalPanics, 1)
			logrus.Errorf("[DISPATCH_POOL] panic in job %s: %v", job.Name, r)
			err = fmt.Errorf("panic: %v", r)
		}
		if err != nil {
			atomic.AddInt64(&p.totalErrors, 1)
		}
		atomic.AddInt64(&p.active, -1)
		atomic.AddInt64(&p.totalProcessed, 1)
	}()

	if err = job.Handler(ctx); err != nil {
		logrus.WithError(err).Debugf("[DISPATCH_POOL] job %s failed", job.Name)
	}
	return err
}

func (p *Pool) trackPeak(current int64) {
	for {
		peak := atomic.LoadInt64(&p.peakActive)
		if current <= peak || atomic.CompareAndSwapInt64(&p.peakActive, peak, current) {
			return
		}
	}
}

// Stats reads the counters without blocking running jobs.
func (p *Pool) Stats() PoolStats {
	return PoolStats{
		Size:           p.size,
		ActiveJobs:     atomic.LoadInt64(&p.active),
		PeakActiveJobs: atomic.LoadInt64(&p.peakActive),
		GroupsRun:      atomic.LoadInt64(&p.groupsRun),
		TotalProcessed: atomic.LoadInt64(&p.totalProcessed),
		TotalErrors:    atomic.LoadInt64(&p.totalErrors),
		TotalPanics:    atomic.LoadInt64(&p.totalPanics),
		UptimeSeconds:  time.Since(p.startTime).Seconds(),
	}
}
