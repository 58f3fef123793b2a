package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/AzielCF/az-bookings/notifications/domain"
	"github.com/google/uuid"
)

type ledgerKey struct {
	subjectID string
	kind      domain.Kind
}

// LedgerMemoryRepository keeps the ledger in process memory. It is used when
// DB_DRIVER=memory and by tests; state is lost on restart.
type LedgerMemoryRepository struct {
	mu    sync.RWMutex
	rows  map[string]*domain.ScheduledNotification
	index map[ledgerKey]string
}

func NewLedgerMemoryRepository() *LedgerMemoryRepository {
	return &LedgerMemoryRepository{
		rows:  make(map[string]*domain.ScheduledNotification),
		index: make(map[ledgerKey]string),
	}
}

func (r *LedgerMemoryRepository) InsertIfAbsent(_ context.Context, n *domain.ScheduledNotification) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := ledgerKey{subjectID: n.SubjectID, kind: n.Kind}
	if _, exists := r.index[key]; exists {
		return false, nil
	}

	now := time.Now().UTC()
	row := *n
	if row.ID == "" {
		row.ID = uuid.NewString()
	}
	row.DueAt = row.DueAt.UTC()
	row.Sent = false
	row.SentAt = nil
	row.CreatedAt = now
	row.UpdatedAt = now

	r.rows[row.ID] = &row
	r.index[key] = row.ID
	*n = row
	return true, nil
}

func (r *LedgerMemoryRepository) ListBySubject(_ context.Context, subjectID string) ([]domain.ScheduledNotification, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []domain.ScheduledNotification
	for _, row := range r.rows {
		if row.SubjectID == subjectID {
			out = append(out, *row)
		}
	}
	sortByDue(out)
	return out, nil
}

func (r *LedgerMemoryRepository) ListDue(_ context.Context, now time.Time, limit int) ([]domain.ScheduledNotification, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []domain.ScheduledNotification
	for _, row := range r.rows {
		if row.IsDue(now) {
			out = append(out, *row)
		}
	}
	sortByDue(out)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *LedgerMemoryRepository) CountDue(_ context.Context, now time.Time) (int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var count int64
	for _, row := range r.rows {
		if row.IsDue(now) {
			count++
		}
	}
	return count, nil
}

func (r *LedgerMemoryRepository) MarkResolvedBatch(_ context.Context, resolutions []domain.Resolution, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, res := range resolutions {
		if row, ok := r.rows[res.ID]; ok {
			resolve(row, res.Reason, at)
		}
	}
	return nil
}

func (r *LedgerMemoryRepository) MarkSent(ctx context.Context, id string, at time.Time) error {
	return r.MarkSentWithError(ctx, id, "", at)
}

func (r *LedgerMemoryRepository) MarkSentWithError(_ context.Context, id, reason string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	row, ok := r.rows[id]
	if !ok {
		return domain.ErrNotificationNotFound
	}
	resolve(row, reason, at)
	return nil
}

func (r *LedgerMemoryRepository) RecordFailure(_ context.Context, id, reason string, nextAttemptAt *time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	row, ok := r.rows[id]
	if !ok {
		return domain.ErrNotificationNotFound
	}
	if row.Sent {
		return nil
	}
	row.LastError = reason
	row.Attempts++
	row.NextAttemptAt = utcPtr(nextAttemptAt)
	row.UpdatedAt = time.Now().UTC()
	return nil
}

func (r *LedgerMemoryRepository) DeleteBySubject(_ context.Context, subjectID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for id, row := range r.rows {
		if row.SubjectID == subjectID {
			delete(r.index, ledgerKey{subjectID: row.SubjectID, kind: row.Kind})
			delete(r.rows, id)
		}
	}
	return nil
}

// resolve applies the sent = false guard: resolved rows are never touched.
func resolve(row *domain.ScheduledNotification, reason string, at time.Time) {
	if row.Sent {
		return
	}
	sentAt := at.UTC()
	row.Sent = true
	row.SentAt = &sentAt
	row.LastError = reason
	row.NextAttemptAt = nil
	row.UpdatedAt = sentAt
}

func sortByDue(rows []domain.ScheduledNotification) {
	sort.Slice(rows, func(i, j int) bool {
		if !rows[i].DueAt.Equal(rows[j].DueAt) {
			return rows[i].DueAt.Before(rows[j].DueAt)
		}
		return rows[i].ID < rows[j].ID
	})
}
