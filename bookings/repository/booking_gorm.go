package repository

import (
	"context"
	"errors"
	"time"

	"github.com/AzielCF/az-bookings/bookings/domain"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// --- Persistence Model ---

type bookingModel struct {
	ID                string     `gorm:"primaryKey"`
	Status            string     `gorm:"index:idx_bookings_status;not null;default:'quoted'"`
	PaymentState      string     `gorm:"not null;default:'none'"`
	FinalPaymentState string     `gorm:"not null;default:'none'"`
	EventDate         *time.Time `gorm:"column:event_date;index:idx_bookings_event_date"`
	ManuallyCreated   bool       `gorm:"not null;default:false"`
	ClientName        string
	ClientEmail       string `gorm:"index:idx_bookings_email"`
	ClientPhone       string
	CreatedAt         time.Time `gorm:"not null"`
	UpdatedAt         time.Time `gorm:"index:idx_bookings_updated_at;not null"`
}

func (bookingModel) TableName() string {
	return "bookings"
}

// --- Repository Implementation ---

type BookingGormRepository struct {
	db *gorm.DB
}

func NewBookingGormRepository(db *gorm.DB) *BookingGormRepository {
	return &BookingGormRepository{db: db}
}

func (r *BookingGormRepository) InitSchema(ctx context.Context) error {
	return r.db.WithContext(ctx).AutoMigrate(&bookingModel{})
}

// Save inserts or fully replaces a booking.
func (r *BookingGormRepository) Save(ctx context.Context, booking *domain.Booking) error {
	if booking.ID == "" {
		booking.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if booking.CreatedAt.IsZero() {
		booking.CreatedAt = now
	}
	booking.UpdatedAt = now

	model := toBookingModel(booking)
	// created_at is immutable once the row exists.
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"status", "payment_state", "final_payment_state", "event_date", "manually_created",
			"client_name", "client_email", "client_phone", "updated_at",
		}),
	}).Create(&model).Error
}

func (r *BookingGormRepository) GetByID(ctx context.Context, id string) (*domain.Booking, error) {
	var m bookingModel
	if err := r.db.WithContext(ctx).First(&m, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrBookingNotFound
		}
		return nil, err
	}
	return fromBookingModel(m), nil
}

func (r *BookingGormRepository) GetBatch(ctx context.Context, ids []string) (map[string]*domain.Booking, error) {
	out := make(map[string]*domain.Booking, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	var models []bookingModel
	if err := r.db.WithContext(ctx).Where("id IN ?", ids).Find(&models).Error; err != nil {
		return nil, err
	}
	for _, m := range models {
		out[m.ID] = fromBookingModel(m)
	}
	return out, nil
}

func (r *BookingGormRepository) ListIDs(ctx context.Context, filter domain.BookingFilter) ([]string, error) {
	query := r.db.WithContext(ctx).Model(&bookingModel{})
	if filter.ExcludeCancelled {
		query = query.Where("status <> ?", string(domain.StatusCancelled))
	}
	if filter.ExcludeManual {
		query = query.Where("manually_created = ?", false)
	}
	if filter.UpdatedSince != nil {
		query = query.Where("updated_at >= ?", filter.UpdatedSince.UTC())
	}
	query = query.Order("created_at ASC")
	if filter.Limit > 0 {
		query = query.Limit(filter.Limit)
	}

	var ids []string
	if err := query.Pluck("id", &ids).Error; err != nil {
		return nil, err
	}
	return ids, nil
}

func (r *BookingGormRepository) Delete(ctx context.Context, id string) error {
	result := r.db.WithContext(ctx).Delete(&bookingModel{}, "id = ?", id)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domain.ErrBookingNotFound
	}
	return nil
}

// --- Mappers ---

func toBookingModel(b *domain.Booking) bookingModel {
	var eventDate *time.Time
	if b.HasEventDate() {
		t := b.EventDate.UTC()
		eventDate = &t
	}
	return bookingModel{
		ID:                b.ID,
		Status:            string(b.Status),
		PaymentState:      string(b.PaymentState),
		FinalPaymentState: string(b.FinalPaymentState),
		EventDate:         eventDate,
		ManuallyCreated:   b.ManuallyCreated,
		ClientName:        b.ClientName,
		ClientEmail:       b.ClientEmail,
		ClientPhone:       b.ClientPhone,
		CreatedAt:         b.CreatedAt.UTC(),
		UpdatedAt:         b.UpdatedAt.UTC(),
	}
}

func fromBookingModel(m bookingModel) *domain.Booking {
	var eventDate *time.Time
	if m.EventDate != nil {
		t := m.EventDate.UTC()
		eventDate = &t
	}
	return &domain.Booking{
		ID:                m.ID,
		Status:            domain.LifecycleStatus(m.Status),
		PaymentState:      domain.PaymentState(m.PaymentState),
		FinalPaymentState: domain.PaymentState(m.FinalPaymentState),
		EventDate:         eventDate,
		ManuallyCreated:   m.ManuallyCreated,
		ClientName:        m.ClientName,
		ClientEmail:       m.ClientEmail,
		ClientPhone:       m.ClientPhone,
		CreatedAt:         m.CreatedAt.UTC(),
		UpdatedAt:         m.UpdatedAt.UTC(),
	}
}
