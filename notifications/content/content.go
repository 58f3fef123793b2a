// Package content renders the text of a notification for a booking.
package content

import (
	"bytes"
	"fmt"
	"strings"
	"text/template"
	"time"

	bookingDomain "github.com/AzielCF/az-bookings/bookings/domain"
	"github.com/AzielCF/az-bookings/notifications/domain"
	"github.com/dustin/go-humanize"
)

// Message is a rendered notification. Subject is empty for chat channels.
type Message struct {
	Subject string
	Body    string
}

type templateSet struct {
	subject string
	body    string
}

var templates = map[string]templateSet{
	"followup_3h": {
		subject: "Your quote from {{.Business}}",
		body:    "Hi {{.Name}}, thanks for requesting a quote. Reply to this email if you have any questions about the services.",
	},
	"followup_6h": {
		subject: "Any questions about your quote?",
		body:    "Hi {{.Name}}, we are holding your requested dates. A deposit confirms the booking.",
	},
	"followup_24h": {
		subject: "Your dates are still available",
		body:    "Hi {{.Name}}, your quote from {{.Business}} is still open. Let us know if you want to adjust anything.",
	},
	"followup_3d": {
		subject: "Still planning your event?",
		body:    "Hi {{.Name}}, dates fill up quickly. Confirm with a deposit to secure your booking.",
	},
	"followup_6d": {
		subject: "A reminder about your quote",
		body:    "Hi {{.Name}}, your quote was sent {{.CreatedAgo}}. We would love to be part of your event.",
	},
	"followup_30d": {
		subject: "We are still here",
		body:    "Hi {{.Name}}, if your plans changed we understand. Reply any time to pick up where we left off.",
	},
	"event_reminder_24h": {
		subject: "See you tomorrow",
		body:    "Hi {{.Name}}, this is a reminder that your appointment is {{.EventWhen}} ({{.EventDate}}).",
	},
	"appointment_day_reminder": {
		subject: "Today is the day",
		body:    "Hi {{.Name}}, we are on our way. Your appointment is today at {{.EventClock}}.",
	},
	"post_appointment_followup": {
		subject: "How did it go?",
		body:    "Hi {{.Name}}, thank you for choosing {{.Business}}. We would love to hear about your experience.",
	},
	"reminder_2w": {
		body: "Hi {{.Name}}! {{.Business}} here. Your appointment is {{.EventWhen}}, on {{.EventDate}}. Reply if anything changed.",
	},
	"reminder_1w": {
		body: "Hi {{.Name}}! Just one week to go: {{.EventDate}} at {{.EventClock}}. See you soon.",
	},
}

type view struct {
	Business   string
	Name       string
	CreatedAgo string
	EventWhen  string
	EventDate  string
	EventClock string
}

// Renderer turns a kind and a booking into message text in a fixed time zone.
type Renderer struct {
	business string
	loc      *time.Location
	now      func() time.Time
	parsed   map[string]*template.Template
}

// NewRenderer parses every template up front. A nil location means UTC.
func NewRenderer(business string, loc *time.Location) (*Renderer, error) {
	if loc == nil {
		loc = time.UTC
	}
	r := &Renderer{
		business: business,
		loc:      loc,
		now:      time.Now,
		parsed:   make(map[string]*template.Template, len(templates)*2),
	}
	for name, set := range templates {
		for part, text := range map[string]string{"subject": set.subject, "body": set.body} {
			if text == "" {
				continue
			}
			tpl, err := template.New(name + "." + part).Option("missingkey=error").Parse(text)
			if err != nil {
				return nil, fmt.Errorf("parse template %s.%s: %w", name, part, err)
			}
			r.parsed[name+"."+part] = tpl
		}
	}
	return r, nil
}

// WithClock overrides the reference time for relative phrases.
func (r *Renderer) WithClock(now func() time.Time) *Renderer {
	r.now = now
	return r
}

// Render produces the message for spec. Unknown templates return ErrUnknownKind.
func (r *Renderer) Render(spec domain.KindSpec, b *bookingDomain.Booking) (Message, error) {
	name := spec.Template()
	if _, ok := templates[name]; !ok {
		return Message{}, fmt.Errorf("%w: %s", domain.ErrUnknownKind, spec.Kind)
	}

	v := r.view(b)
	subject, err := r.execute(name+".subject", v)
	if err != nil {
		return Message{}, err
	}
	body, err := r.execute(name+".body", v)
	if err != nil {
		return Message{}, err
	}
	return Message{Subject: subject, Body: body}, nil
}

func (r *Renderer) execute(key string, v view) (string, error) {
	tpl, ok := r.parsed[key]
	if !ok {
		return "", nil
	}
	var buf bytes.Buffer
	if err := tpl.Execute(&buf, v); err != nil {
		return "", fmt.Errorf("render %s: %w", key, err)
	}
	return buf.String(), nil
}

func (r *Renderer) view(b *bookingDomain.Booking) view {
	now := r.now()
	v := view{
		Business:   r.business,
		Name:       firstName(b.ClientName),
		CreatedAgo: humanize.RelTime(b.CreatedAt, now, "ago", "from now"),
	}
	if b.HasEventDate() {
		event := b.EventDate.In(r.loc)
		v.EventWhen = humanize.RelTime(event, now, "ago", "from now")
		v.EventDate = fmt.Sprintf("%s, %s %s", event.Weekday(), event.Month(), humanize.Ordinal(event.Day()))
		v.EventClock = event.Format("15:04")
	}
	return v
}

func firstName(full string) string {
	fields := strings.Fields(full)
	if len(fields) == 0 {
		return "there"
	}
	return fields[0]
}
