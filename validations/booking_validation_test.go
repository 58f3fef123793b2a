package validations

import (
	"context"
	"testing"
	"time"

	bookingDomain "github.com/AzielCF/az-bookings/bookings/domain"
	pkgError "github.com/AzielCF/az-bookings/pkg/error"
	"github.com/stretchr/testify/assert"
)

func validRequest() bookingDomain.UpsertRequest {
	return bookingDomain.UpsertRequest{
		Status:       bookingDomain.StatusQuoted,
		PaymentState: bookingDomain.PaymentNone,
		EventDate:    "2026-06-20 06:30",
		ClientName:   "Ana Torres",
		ClientEmail:  "ana@example.com",
		ClientPhone:  "+51 987 654 321",
	}
}

func TestValidateUpsertBooking(t *testing.T) {
	ctx := context.Background()

	assert.NoError(t, ValidateUpsertBooking(ctx, "b1", validRequest(), time.UTC))

	minimal := bookingDomain.UpsertRequest{Status: bookingDomain.StatusConfirmed}
	assert.NoError(t, ValidateUpsertBooking(ctx, "b1", minimal, nil))

	tests := map[string]func(r *bookingDomain.UpsertRequest){
		"missing status":  func(r *bookingDomain.UpsertRequest) { r.Status = "" },
		"unknown status":  func(r *bookingDomain.UpsertRequest) { r.Status = "archived" },
		"unknown payment": func(r *bookingDomain.UpsertRequest) { r.PaymentState = "paid" },
		"unknown final":   func(r *bookingDomain.UpsertRequest) { r.FinalPaymentState = "paid" },
		"bad event date":  func(r *bookingDomain.UpsertRequest) { r.EventDate = "20/06/2026" },
		"bad email":       func(r *bookingDomain.UpsertRequest) { r.ClientEmail = "ana-at-example" },
		"bad phone":       func(r *bookingDomain.UpsertRequest) { r.ClientPhone = "call me" },
	}
	for name, mutate := range tests {
		t.Run(name, func(t *testing.T) {
			r := validRequest()
			mutate(&r)
			err := ValidateUpsertBooking(ctx, "b1", r, time.UTC)
			assert.Error(t, err)
			assert.IsType(t, pkgError.ValidationError(""), err)
		})
	}

	assert.Error(t, ValidateUpsertBooking(ctx, "", validRequest(), time.UTC))
}

func TestValidateRunDeadline(t *testing.T) {
	assert.NoError(t, ValidateRunDeadline(context.Background(), 50))
	assert.Error(t, ValidateRunDeadline(context.Background(), 0))
	assert.Error(t, ValidateRunDeadline(context.Background(), 7200))
}
