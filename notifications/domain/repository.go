package domain

import (
	"context"
	"time"
)

// LedgerRepository persists scheduled notifications.
//
// Every update is guarded by sent = false, so a resolved row can never be
// modified again.
type LedgerRepository interface {
	// InsertIfAbsent atomically inserts the row unless (SubjectID, Kind)
	// already exists. inserted is false for the no-op case.
	InsertIfAbsent(ctx context.Context, n *ScheduledNotification) (inserted bool, err error)
	ListBySubject(ctx context.Context, subjectID string) ([]ScheduledNotification, error)
	// ListDue returns unsent rows due at now, oldest first. limit <= 0 means no limit.
	ListDue(ctx context.Context, now time.Time, limit int) ([]ScheduledNotification, error)
	CountDue(ctx context.Context, now time.Time) (int64, error)
	// MarkResolvedBatch marks every resolution sent in one round of updates.
	MarkResolvedBatch(ctx context.Context, resolutions []Resolution, at time.Time) error
	MarkSent(ctx context.Context, id string, at time.Time) error
	MarkSentWithError(ctx context.Context, id, reason string, at time.Time) error
	// RecordFailure keeps the row due, stores the error and bumps Attempts.
	RecordFailure(ctx context.Context, id, reason string, nextAttemptAt *time.Time) error
	DeleteBySubject(ctx context.Context, subjectID string) error
}
