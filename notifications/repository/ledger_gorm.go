package repository

import (
	"context"
	"errors"
	"time"

	"github.com/AzielCF/az-bookings/notifications/domain"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// --- Persistence Model ---

type scheduledNotificationModel struct {
	ID            string     `gorm:"primaryKey"`
	SubjectID     string     `gorm:"uniqueIndex:idx_notifications_subject_kind,priority:1;not null"`
	Kind          string     `gorm:"uniqueIndex:idx_notifications_subject_kind,priority:2;not null"`
	DueAt         time.Time  `gorm:"index:idx_notifications_due,priority:2;not null"`
	Sent          bool       `gorm:"index:idx_notifications_due,priority:1;not null"`
	SentAt        *time.Time `gorm:"column:sent_at"`
	LastError     string     `gorm:"type:text"`
	Attempts      int        `gorm:"not null;default:0"`
	NextAttemptAt *time.Time `gorm:"column:next_attempt_at"`
	CreatedAt     time.Time  `gorm:"not null"`
	UpdatedAt     time.Time  `gorm:"not null"`
}

func (scheduledNotificationModel) TableName() string {
	return "scheduled_notifications"
}

// --- Repository Implementation ---

// LedgerGormRepository stores the ledger in SQLite or Postgres.
type LedgerGormRepository struct {
	db *gorm.DB
}

func NewLedgerGormRepository(db *gorm.DB) *LedgerGormRepository {
	return &LedgerGormRepository{db: db}
}

func (r *LedgerGormRepository) InitSchema(ctx context.Context) error {
	return r.db.WithContext(ctx).AutoMigrate(&scheduledNotificationModel{})
}

func (r *LedgerGormRepository) InsertIfAbsent(ctx context.Context, n *domain.ScheduledNotification) (bool, error) {
	now := time.Now().UTC()
	m := toNotificationModel(n)
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	m.Sent = false
	m.SentAt = nil
	m.CreatedAt = now
	m.UpdatedAt = now

	// The unique (subject_id, kind) index is the concurrency guard.
	result := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "subject_id"}, {Name: "kind"}},
			DoNothing: true,
		}).
		Create(&m)
	if result.Error != nil {
		return false, result.Error
	}
	if result.RowsAffected == 0 {
		return false, nil
	}

	*n = fromNotificationModel(m)
	return true, nil
}

func (r *LedgerGormRepository) ListBySubject(ctx context.Context, subjectID string) ([]domain.ScheduledNotification, error) {
	var models []scheduledNotificationModel
	if err := r.db.WithContext(ctx).
		Where("subject_id = ?", subjectID).
		Order("due_at ASC").
		Find(&models).Error; err != nil {
		return nil, err
	}
	return fromNotificationModels(models), nil
}

func (r *LedgerGormRepository) dueQuery(ctx context.Context, now time.Time) *gorm.DB {
	now = now.UTC()
	return r.db.WithContext(ctx).
		Model(&scheduledNotificationModel{}).
		Where("sent = ? AND due_at <= ?", false, now).
		Where("next_attempt_at IS NULL OR next_attempt_at <= ?", now)
}

func (r *LedgerGormRepository) ListDue(ctx context.Context, now time.Time, limit int) ([]domain.ScheduledNotification, error) {
	var models []scheduledNotificationModel
	query := r.dueQuery(ctx, now).Order("due_at ASC").Order("id ASC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	if err := query.Find(&models).Error; err != nil {
		return nil, err
	}
	return fromNotificationModels(models), nil
}

func (r *LedgerGormRepository) CountDue(ctx context.Context, now time.Time) (int64, error) {
	var count int64
	if err := r.dueQuery(ctx, now).Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

func resolvedColumns(reason string, at time.Time) map[string]any {
	return map[string]any{
		"sent":            true,
		"sent_at":         at,
		"last_error":      reason,
		"next_attempt_at": nil,
		"updated_at":      at,
	}
}

func (r *LedgerGormRepository) MarkResolvedBatch(ctx context.Context, resolutions []domain.Resolution, at time.Time) error {
	if len(resolutions) == 0 {
		return nil
	}
	at = at.UTC()

	// One UPDATE per distinct reason; delivered rows share the empty reason.
	byReason := make(map[string][]string)
	var order []string
	for _, res := range resolutions {
		if _, ok := byReason[res.Reason]; !ok {
			order = append(order, res.Reason)
		}
		byReason[res.Reason] = append(byReason[res.Reason], res.ID)
	}

	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, reason := range order {
			err := tx.Model(&scheduledNotificationModel{}).
				Where("id IN ? AND sent = ?", byReason[reason], false).
				Updates(resolvedColumns(reason, at)).Error
			if err != nil {
				return err
			}
		}
		return nil
	})
}

func (r *LedgerGormRepository) MarkSent(ctx context.Context, id string, at time.Time) error {
	return r.MarkSentWithError(ctx, id, "", at)
}

func (r *LedgerGormRepository) MarkSentWithError(ctx context.Context, id, reason string, at time.Time) error {
	result := r.db.WithContext(ctx).
		Model(&scheduledNotificationModel{}).
		Where("id = ? AND sent = ?", id, false).
		Updates(resolvedColumns(reason, at.UTC()))
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return r.ensureExists(ctx, id)
	}
	return nil
}

func (r *LedgerGormRepository) RecordFailure(ctx context.Context, id, reason string, nextAttemptAt *time.Time) error {
	var next *time.Time
	if nextAttemptAt != nil {
		t := nextAttemptAt.UTC()
		next = &t
	}
	result := r.db.WithContext(ctx).
		Model(&scheduledNotificationModel{}).
		Where("id = ? AND sent = ?", id, false).
		Updates(map[string]any{
			"last_error":      reason,
			"attempts":        gorm.Expr("attempts + 1"),
			"next_attempt_at": next,
			"updated_at":      time.Now().UTC(),
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return r.ensureExists(ctx, id)
	}
	return nil
}

func (r *LedgerGormRepository) DeleteBySubject(ctx context.Context, subjectID string) error {
	return r.db.WithContext(ctx).
		Where("subject_id = ?", subjectID).
		Delete(&scheduledNotificationModel{}).Error
}

// ensureExists distinguishes "already resolved" (a no-op) from a missing row.
func (r *LedgerGormRepository) ensureExists(ctx context.Context, id string) error {
	var m scheduledNotificationModel
	if err := r.db.WithContext(ctx).Select("id").First(&m, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.ErrNotificationNotFound
		}
		return err
	}
	return nil
}

// --- Mappers ---

func toNotificationModel(n *domain.ScheduledNotification) scheduledNotificationModel {
	return scheduledNotificationModel{
		ID:            n.ID,
		SubjectID:     n.SubjectID,
		Kind:          string(n.Kind),
		DueAt:         n.DueAt.UTC(),
		Sent:          n.Sent,
		SentAt:        utcPtr(n.SentAt),
		LastError:     n.LastError,
		Attempts:      n.Attempts,
		NextAttemptAt: utcPtr(n.NextAttemptAt),
		CreatedAt:     n.CreatedAt,
		UpdatedAt:     n.UpdatedAt,
	}
}

func fromNotificationModel(m scheduledNotificationModel) domain.ScheduledNotification {
	return domain.ScheduledNotification{
		ID:            m.ID,
		SubjectID:     m.SubjectID,
		Kind:          domain.Kind(m.Kind),
		DueAt:         m.DueAt.UTC(),
		Sent:          m.Sent,
		SentAt:        utcPtr(m.SentAt),
		LastError:     m.LastError,
		Attempts:      m.Attempts,
		NextAttemptAt: utcPtr(m.NextAttemptAt),
		CreatedAt:     m.CreatedAt,
		UpdatedAt:     m.UpdatedAt,
	}
}

func fromNotificationModels(models []scheduledNotificationModel) []domain.ScheduledNotification {
	out := make([]domain.ScheduledNotification, 0, len(models))
	for _, m := range models {
		out = append(out, fromNotificationModel(m))
	}
	return out
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}
