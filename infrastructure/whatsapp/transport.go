package whatsapp

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode"

	bookingDomain "github.com/AzielCF/az-bookings/bookings/domain"
	"github.com/AzielCF/az-bookings/notifications/content"
	"github.com/AzielCF/az-bookings/notifications/domain"
	"github.com/sirupsen/logrus"
	"go.mau.fi/whatsmeow"
	"go.mau.fi/whatsmeow/proto/waE2E"
	"go.mau.fi/whatsmeow/types"
	"google.golang.org/protobuf/proto"
)

// messenger is the part of *whatsmeow.Client the transport needs.
type messenger interface {
	IsConnected() bool
	SendMessage(ctx context.Context, to types.JID, message *waE2E.Message, extra ...whatsmeow.SendRequestExtra) (whatsmeow.SendResponse, error)
}

// Transport sends WhatsApp reminders from the paired business number.
type Transport struct {
	client      messenger
	renderer    *content.Renderer
	countryCode string
}

// NewTransport wraps a connected client. countryCode is prefixed to local
// numbers that do not already carry it.
func NewTransport(client *whatsmeow.Client, renderer *content.Renderer, countryCode string) *Transport {
	return newTransport(client, renderer, countryCode)
}

func newTransport(client messenger, renderer *content.Renderer, countryCode string) *Transport {
	return &Transport{client: client, renderer: renderer, countryCode: digitsOnly(countryCode)}
}

func (t *Transport) Channel() domain.Channel {
	return domain.ChannelWhatsApp
}

func (t *Transport) Send(ctx context.Context, spec domain.KindSpec, booking *bookingDomain.Booking) error {
	if t.client == nil || !t.client.IsConnected() {
		return errors.New("whatsapp client not connected")
	}

	jid, err := t.recipient(booking.ClientPhone)
	if err != nil {
		return err
	}
	msg, err := t.renderer.Render(spec, booking)
	if err != nil {
		return err
	}

	resp, err := t.client.SendMessage(ctx, jid, &waE2E.Message{
		ExtendedTextMessage: &waE2E.ExtendedTextMessage{
			Text: proto.String(msg.Body),
		},
	})
	if err != nil {
		return fmt.Errorf("send %s to %s: %w", spec.Kind, jid.User, err)
	}

	logrus.Debugf("[WHATSAPP] Sent %s for booking %s (message %s)", spec.Kind, booking.ID, resp.ID)
	return nil
}

// recipient converts a stored phone number to a user JID.
func (t *Transport) recipient(phone string) (types.JID, error) {
	if strings.Contains(phone, "@") {
		return types.ParseJID(phone)
	}
	number := digitsOnly(phone)
	if number == "" {
		return types.JID{}, fmt.Errorf("invalid phone number %q", phone)
	}
	// Local numbers are stored without the country prefix.
	if t.countryCode != "" && !strings.HasPrefix(strings.TrimSpace(phone), "+") && !strings.HasPrefix(number, t.countryCode) {
		number = t.countryCode + number
	}
	return types.NewJID(number, types.DefaultUserServer), nil
}

func digitsOnly(s string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsDigit(r) {
			return r
		}
		return -1
	}, s)
}
