package domain

import "time"

// retryCeiling bounds an uncapped backoff so doubling never overflows.
const retryCeiling = 365 * 24 * time.Hour

// RetryPolicy is the opt-in extension over unbounded retry. The zero value
// keeps the base behaviour: every failed row is retried on the next run.
type RetryPolicy struct {
	// Backoff is the delay after the first failure; it doubles per attempt.
	Backoff time.Duration
	// MaxBackoff caps the delay. Zero means uncapped, up to one year.
	MaxBackoff time.Duration
	// MaxAttempts resolves the row as skipped once reached. Zero means unbounded.
	MaxAttempts int
}

// NextAttemptAt returns when a row that has failed attempts times may be
// retried, or nil when backoff is disabled.
func (p RetryPolicy) NextAttemptAt(now time.Time, attempts int) *time.Time {
	if p.Backoff <= 0 || attempts <= 0 {
		return nil
	}
	ceiling := p.MaxBackoff
	if ceiling <= 0 || ceiling > retryCeiling {
		ceiling = retryCeiling
	}
	delay := min(p.Backoff, ceiling)
	for i := 1; i < attempts && delay < ceiling; i++ {
		delay = min(delay*2, ceiling)
	}
	next := now.Add(delay)
	return &next
}

// Exhausted reports whether a row with attempts failures should be given up.
func (p RetryPolicy) Exhausted(attempts int) bool {
	return p.MaxAttempts > 0 && attempts >= p.MaxAttempts
}
