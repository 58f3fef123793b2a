package content

import (
	"testing"
	"time"

	bookingDomain "github.com/AzielCF/az-bookings/bookings/domain"
	"github.com/AzielCF/az-bookings/notifications/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRenderer_EveryKindRenders(t *testing.T) {
	r, err := NewRenderer("Glow Studio", time.UTC)
	require.NoError(t, err)

	event := time.Date(2026, 6, 20, 9, 30, 0, 0, time.UTC)
	b := &bookingDomain.Booking{
		ID:         "b1",
		ClientName: "Ana Torres",
		CreatedAt:  event.Add(-30 * 24 * time.Hour),
		EventDate:  &event,
	}

	for _, spec := range domain.AllKinds() {
		msg, err := r.Render(spec, b)
		require.NoError(t, err, spec.Kind)
		assert.NotEmpty(t, msg.Body, spec.Kind)
		assert.Contains(t, msg.Body, "Ana", spec.Kind)
		if spec.Channel == domain.ChannelEmail {
			assert.NotEmpty(t, msg.Subject, spec.Kind)
		} else {
			assert.Empty(t, msg.Subject, spec.Kind)
		}
	}
}

func TestRenderer_EventPhrasing(t *testing.T) {
	loc := time.FixedZone("PET", -5*3600)
	event := time.Date(2026, 6, 20, 14, 30, 0, 0, time.UTC)
	r, err := NewRenderer("Glow Studio", loc)
	require.NoError(t, err)
	r.WithClock(func() time.Time { return event.Add(-14 * 24 * time.Hour) })

	spec, _ := domain.LookupKind(domain.KindWhatsAppReminder2w)
	msg, err := r.Render(spec, &bookingDomain.Booking{ClientName: "Ana", EventDate: &event})
	require.NoError(t, err)
	assert.Contains(t, msg.Body, "2 weeks from now")
	assert.Contains(t, msg.Body, "Saturday, June 20th")

	spec, _ = domain.LookupKind(domain.KindWhatsAppReminder1w)
	msg, err = r.Render(spec, &bookingDomain.Booking{ClientName: "Ana", EventDate: &event})
	require.NoError(t, err)
	assert.Contains(t, msg.Body, "09:30")
}

func TestRenderer_UnknownTemplate(t *testing.T) {
	r, err := NewRenderer("Glow Studio", nil)
	require.NoError(t, err)

	_, err = r.Render(domain.KindSpec{Kind: "email:nope"}, &bookingDomain.Booking{})
	assert.ErrorIs(t, err, domain.ErrUnknownKind)
}

func TestFirstName(t *testing.T) {
	assert.Equal(t, "Ana", firstName("  Ana  Torres "))
	assert.Equal(t, "there", firstName(""))
}
