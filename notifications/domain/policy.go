package domain

import (
	"strconv"
	"time"

	bookingDomain "github.com/AzielCF/az-bookings/bookings/domain"
)

// Skip reasons stored in LastError when a row is resolved without sending.
const (
	ReasonBookingNotFound   = "booking not found"
	ReasonManuallyCreated   = "manually created booking"
	ReasonCancelled         = "booking cancelled"
	ReasonNoLongerQuoted    = "booking no longer quoted"
	ReasonAdvancePaid       = "advance payment already made"
	ReasonNotConfirmed      = "booking not confirmed"
	ReasonAdvanceMissing    = "advance payment missing"
	ReasonEventDateMissing  = "event date missing"
	ReasonNoEmailAddress    = "no email address on booking"
	ReasonNoPhoneNumber     = "no phone number on booking"
	ReasonUnknownKind       = "unknown notification kind"
	reasonGaveUpAfterPrefix = "gave up after "
)

// PolicyOptions tunes offsets that are deployment specific.
type PolicyOptions struct {
	PostAppointmentDelay time.Duration
}

// Requirement is a kind the policy wants in the ledger, with its due time.
type Requirement struct {
	Kind  Kind
	DueAt time.Time
}

// Lookup resolves a kind spec with the configured overrides applied.
func (o PolicyOptions) Lookup(k Kind) (KindSpec, bool) {
	spec, ok := LookupKind(k)
	if !ok {
		return KindSpec{}, false
	}
	return o.apply(spec), true
}

func (o PolicyOptions) apply(spec KindSpec) KindSpec {
	if spec.Kind == KindPostAppointmentFollowUp && o.PostAppointmentDelay > 0 {
		spec.Offset = o.PostAppointmentDelay
	}
	return spec
}

// eligibility holds the two predicates of a kind group. schedulable decides
// whether a row should exist; deliverable is re-checked when the row is due
// and returns a skip reason, or "" to dispatch.
type eligibility struct {
	schedulable func(b *bookingDomain.Booking, dueAt, now time.Time) bool
	deliverable func(b *bookingDomain.Booking) string
}

var groupRules = map[Group]eligibility{
	GroupFollowUp: {
		// Scheduled at creation unconditionally, payment may change before due.
		schedulable: func(*bookingDomain.Booking, time.Time, time.Time) bool { return true },
		deliverable: func(b *bookingDomain.Booking) string {
			if b.AdvancePaid() {
				return ReasonAdvancePaid
			}
			if b.Status != bookingDomain.StatusQuoted {
				return ReasonNoLongerQuoted
			}
			return ""
		},
	},
	GroupEvent: {
		schedulable: func(b *bookingDomain.Booking, _, _ time.Time) bool {
			return b.Status == bookingDomain.StatusConfirmed && b.HasEventDate()
		},
		deliverable: func(b *bookingDomain.Booking) string {
			if b.Status != bookingDomain.StatusConfirmed {
				return ReasonNotConfirmed
			}
			if !b.AdvancePaid() {
				return ReasonAdvanceMissing
			}
			if !b.HasEventDate() {
				return ReasonEventDateMissing
			}
			return ""
		},
	},
	GroupWhatsAppReminder: {
		schedulable: func(b *bookingDomain.Booking, dueAt, now time.Time) bool {
			return b.HasEventDate() && !b.IsCancelled() && dueAt.After(now)
		},
		deliverable: func(b *bookingDomain.Booking) string {
			if !b.HasEventDate() {
				return ReasonEventDateMissing
			}
			return ""
		},
	},
}

func anchorFor(spec KindSpec, b *bookingDomain.Booking) (time.Time, bool) {
	if spec.Anchor == AnchorCreatedAfter {
		return b.CreatedAt, !b.CreatedAt.IsZero()
	}
	if !b.HasEventDate() {
		return time.Time{}, false
	}
	return *b.EventDate, true
}

// RequiredNotifications returns the kinds that should exist in the ledger for
// the booking as it is now. The result only depends on the booking state and,
// for WhatsApp reminders, on whether their due time is still ahead of now.
func RequiredNotifications(b *bookingDomain.Booking, now time.Time, opts PolicyOptions) []Requirement {
	if b == nil || b.ManuallyCreated {
		return nil
	}

	var out []Requirement
	for _, spec := range AllKinds() {
		spec = opts.apply(spec)
		anchor, ok := anchorFor(spec, b)
		if !ok {
			continue
		}
		dueAt := spec.DueAt(anchor)
		if !groupRules[spec.Group].schedulable(b, dueAt, now) {
			continue
		}
		out = append(out, Requirement{Kind: spec.Kind, DueAt: dueAt})
	}
	return out
}

// CheckDeliverable re-evaluates a due row against the current booking state.
// It returns the skip reason, or "" when the notification should be sent.
// A nil booking means the subject no longer exists.
func CheckDeliverable(spec KindSpec, b *bookingDomain.Booking) string {
	switch {
	case b == nil:
		return ReasonBookingNotFound
	case b.ManuallyCreated:
		return ReasonManuallyCreated
	case b.IsCancelled():
		return ReasonCancelled
	}

	rule, ok := groupRules[spec.Group]
	if !ok {
		return ReasonUnknownKind
	}
	if reason := rule.deliverable(b); reason != "" {
		return reason
	}

	switch spec.Channel {
	case ChannelEmail:
		if b.ClientEmail == "" {
			return ReasonNoEmailAddress
		}
	case ChannelWhatsApp:
		if b.ClientPhone == "" {
			return ReasonNoPhoneNumber
		}
	}
	return ""
}

// GaveUpReason is the skip reason used once the retry ceiling is reached.
func GaveUpReason(attempts int) string {
	return reasonGaveUpAfterPrefix + strconv.Itoa(attempts) + " attempts"
}
