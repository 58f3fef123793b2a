// Package logtransport is a dry-run transport: it renders and logs instead
// of contacting a provider.
package logtransport

import (
	"context"

	bookingDomain "github.com/AzielCF/az-bookings/bookings/domain"
	"github.com/AzielCF/az-bookings/notifications/content"
	"github.com/AzielCF/az-bookings/notifications/domain"
	"github.com/sirupsen/logrus"
)

type Transport struct {
	channel  domain.Channel
	renderer *content.Renderer
	logger   logrus.FieldLogger
}

func New(channel domain.Channel, renderer *content.Renderer) *Transport {
	return &Transport{channel: channel, renderer: renderer, logger: logrus.StandardLogger()}
}

// WithLogger redirects the output, mostly for tests.
func (t *Transport) WithLogger(l logrus.FieldLogger) *Transport {
	t.logger = l
	return t
}

func (t *Transport) Channel() domain.Channel {
	return t.channel
}

func (t *Transport) Send(ctx context.Context, spec domain.KindSpec, booking *bookingDomain.Booking) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	msg, err := t.renderer.Render(spec, booking)
	if err != nil {
		return err
	}

	to := booking.ClientEmail
	if t.channel == domain.ChannelWhatsApp {
		to = booking.ClientPhone
	}
	t.logger.WithFields(logrus.Fields{
		"kind":    spec.Kind,
		"booking": booking.ID,
		"to":      to,
		"subject": msg.Subject,
	}).Infof("[DRY_RUN] %s", msg.Body)
	return nil
}
