package domain

import "time"

// LifecycleStatus is the commercial state of a booking.
type LifecycleStatus string

const (
	StatusQuoted    LifecycleStatus = "quoted"
	StatusConfirmed LifecycleStatus = "confirmed"
	StatusCancelled LifecycleStatus = "cancelled"
)

// IsValid reports whether s is a known lifecycle status.
func (s LifecycleStatus) IsValid() bool {
	switch s {
	case StatusQuoted, StatusConfirmed, StatusCancelled:
		return true
	}
	return false
}

// PaymentState tracks one payment (advance or final) of a booking.
type PaymentState string

const (
	PaymentNone           PaymentState = "none"
	PaymentDepositPending PaymentState = "deposit_pending"
	PaymentDepositPaid    PaymentState = "deposit_paid"
	PaymentApproved       PaymentState = "payment_approved"
	PaymentRejected       PaymentState = "rejected"
)

// IsValid reports whether p is a known payment state.
func (p PaymentState) IsValid() bool {
	switch p {
	case PaymentNone, PaymentDepositPending, PaymentDepositPaid, PaymentApproved, PaymentRejected:
		return true
	}
	return false
}

// IsPaid reports whether the payment has been received.
func (p PaymentState) IsPaid() bool {
	return p == PaymentDepositPaid || p == PaymentApproved
}

// Booking is a client booking. It is owned by the booking CRUD layer; the
// notification engine only reads it.
type Booking struct {
	ID                string          `json:"id"`
	Status            LifecycleStatus `json:"status"`
	PaymentState      PaymentState    `json:"payment_state"`
	FinalPaymentState PaymentState    `json:"final_payment_state"`
	EventDate         *time.Time      `json:"event_date,omitempty"` // arrival time of the first service
	ManuallyCreated   bool            `json:"manually_created"`
	ClientName        string          `json:"client_name"`
	ClientEmail       string          `json:"client_email,omitempty"`
	ClientPhone       string          `json:"client_phone,omitempty"`
	CreatedAt         time.Time       `json:"created_at"`
	UpdatedAt         time.Time       `json:"updated_at"`
}

// AdvancePaid reports whether the advance payment has been made.
func (b *Booking) AdvancePaid() bool {
	return b.PaymentState.IsPaid()
}

// HasEventDate reports whether the first service date is known.
func (b *Booking) HasEventDate() bool {
	return b.EventDate != nil && !b.EventDate.IsZero()
}

// IsCancelled reports whether the booking was cancelled.
func (b *Booking) IsCancelled() bool {
	return b.Status == StatusCancelled
}
