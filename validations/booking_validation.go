package validations

import (
	"context"
	"errors"
	"regexp"
	"time"

	bookingDomain "github.com/AzielCF/az-bookings/bookings/domain"
	pkgError "github.com/AzielCF/az-bookings/pkg/error"
	"github.com/AzielCF/az-bookings/pkg/timeutils"
	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"
)

var phonePattern = regexp.MustCompile(`^\+?[0-9 ()-]{6,20}$`)

func ValidateUpsertBooking(ctx context.Context, id string, request bookingDomain.UpsertRequest, loc *time.Location) error {
	if err := validation.Validate(id, validation.Required, validation.Length(1, 64)); err != nil {
		return pkgError.ValidationError("id: " + err.Error())
	}

	err := validation.ValidateStructWithContext(ctx, &request,
		validation.Field(&request.Status, validation.Required, validation.By(func(value any) error {
			if !request.Status.IsValid() {
				return errors.New("must be quoted, confirmed or cancelled")
			}
			return nil
		})),
		validation.Field(&request.PaymentState, validation.By(paymentState(request.PaymentState))),
		validation.Field(&request.FinalPaymentState, validation.By(paymentState(request.FinalPaymentState))),
		validation.Field(&request.EventDate, validation.By(func(value any) error {
			if request.EventDate == "" {
				return nil
			}
			if _, err := timeutils.ParseInstant(request.EventDate, loc); err != nil {
				return errors.New("must be RFC3339 or YYYY-MM-DD HH:MM")
			}
			return nil
		})),
		validation.Field(&request.ClientName, validation.Length(0, 120)),
		validation.Field(&request.ClientEmail, is.EmailFormat),
		validation.Field(&request.ClientPhone, validation.Match(phonePattern).Error("must be a phone number")),
	)

	if err != nil {
		return pkgError.ValidationError(err.Error())
	}

	return nil
}

func ValidateRunDeadline(ctx context.Context, deadlineSeconds int) error {
	err := validation.ValidateWithContext(ctx, deadlineSeconds, validation.Min(1), validation.Max(3600))
	if err != nil {
		return pkgError.ValidationError("deadline_seconds: " + err.Error())
	}
	return nil
}

func paymentState(p bookingDomain.PaymentState) validation.RuleFunc {
	return func(value any) error {
		if p == "" || p.IsValid() {
			return nil
		}
		return errors.New("must be none, deposit_pending, deposit_paid, payment_approved or rejected")
	}
}
