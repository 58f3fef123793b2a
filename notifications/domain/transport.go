package domain

import (
	"context"

	bookingDomain "github.com/AzielCF/az-bookings/bookings/domain"
)

// Transport delivers one notification kind to the client of a booking.
// Implementations own their timeouts; a returned error leaves the row due.
type Transport interface {
	Channel() Channel
	Send(ctx context.Context, spec KindSpec, booking *bookingDomain.Booking) error
}
