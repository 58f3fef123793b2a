package domain

import (
	"sort"
	"strings"
	"time"
)

// Channel is the delivery medium of a notification.
type Channel string

const (
	ChannelEmail    Channel = "email"
	ChannelWhatsApp Channel = "whatsapp"
)

// Group clusters kinds that share the same eligibility rules.
type Group string

const (
	GroupFollowUp         Group = "follow_up"
	GroupEvent            Group = "event"
	GroupWhatsAppReminder Group = "whatsapp_reminder"
)

// Anchor is the booking instant an offset is measured from.
type Anchor int

const (
	AnchorCreatedAfter Anchor = iota // createdAt + offset
	AnchorEventBefore                // eventDate - offset
	AnchorEventAfter                 // eventDate + offset
)

// Kind identifies a notification template on a channel, e.g. "email:followup_3h".
type Kind string

const (
	KindFollowUp3h              Kind = "email:followup_3h"
	KindFollowUp6h              Kind = "email:followup_6h"
	KindFollowUp24h             Kind = "email:followup_24h"
	KindFollowUp3d              Kind = "email:followup_3d"
	KindFollowUp6d              Kind = "email:followup_6d"
	KindFollowUp30d             Kind = "email:followup_30d"
	KindEventReminder24h        Kind = "email:event_reminder_24h"
	KindAppointmentDayReminder  Kind = "email:appointment_day_reminder"
	KindPostAppointmentFollowUp Kind = "email:post_appointment_followup"
	KindWhatsAppReminder2w      Kind = "whatsapp:reminder_2w"
	KindWhatsAppReminder1w      Kind = "whatsapp:reminder_1w"
)

// DefaultPostAppointmentDelay is used when PolicyOptions leaves it unset.
const DefaultPostAppointmentDelay = 24 * time.Hour

// KindSpec is the fixed offset rule of a kind.
type KindSpec struct {
	Kind    Kind
	Channel Channel
	Group   Group
	Anchor  Anchor
	Offset  time.Duration
}

// Template returns the template part of the kind ("followup_3h").
func (s KindSpec) Template() string {
	if i := strings.IndexByte(string(s.Kind), ':'); i >= 0 {
		return string(s.Kind)[i+1:]
	}
	return string(s.Kind)
}

var kindTable = map[Kind]KindSpec{
	KindFollowUp3h:              {Kind: KindFollowUp3h, Channel: ChannelEmail, Group: GroupFollowUp, Anchor: AnchorCreatedAfter, Offset: 3 * time.Hour},
	KindFollowUp6h:              {Kind: KindFollowUp6h, Channel: ChannelEmail, Group: GroupFollowUp, Anchor: AnchorCreatedAfter, Offset: 6 * time.Hour},
	KindFollowUp24h:             {Kind: KindFollowUp24h, Channel: ChannelEmail, Group: GroupFollowUp, Anchor: AnchorCreatedAfter, Offset: 24 * time.Hour},
	KindFollowUp3d:              {Kind: KindFollowUp3d, Channel: ChannelEmail, Group: GroupFollowUp, Anchor: AnchorCreatedAfter, Offset: 3 * 24 * time.Hour},
	KindFollowUp6d:              {Kind: KindFollowUp6d, Channel: ChannelEmail, Group: GroupFollowUp, Anchor: AnchorCreatedAfter, Offset: 6 * 24 * time.Hour},
	KindFollowUp30d:             {Kind: KindFollowUp30d, Channel: ChannelEmail, Group: GroupFollowUp, Anchor: AnchorCreatedAfter, Offset: 30 * 24 * time.Hour},
	KindEventReminder24h:        {Kind: KindEventReminder24h, Channel: ChannelEmail, Group: GroupEvent, Anchor: AnchorEventBefore, Offset: 24 * time.Hour},
	KindAppointmentDayReminder:  {Kind: KindAppointmentDayReminder, Channel: ChannelEmail, Group: GroupEvent, Anchor: AnchorEventBefore, Offset: 0},
	KindPostAppointmentFollowUp: {Kind: KindPostAppointmentFollowUp, Channel: ChannelEmail, Group: GroupEvent, Anchor: AnchorEventAfter, Offset: DefaultPostAppointmentDelay},
	KindWhatsAppReminder2w:      {Kind: KindWhatsAppReminder2w, Channel: ChannelWhatsApp, Group: GroupWhatsAppReminder, Anchor: AnchorEventBefore, Offset: 14 * 24 * time.Hour},
	KindWhatsAppReminder1w:      {Kind: KindWhatsAppReminder1w, Channel: ChannelWhatsApp, Group: GroupWhatsAppReminder, Anchor: AnchorEventBefore, Offset: 7 * 24 * time.Hour},
}

// LookupKind returns the KindSpec registered for k.
func LookupKind(k Kind) (KindSpec, bool) {
	spec, ok := kindTable[k]
	return spec, ok
}

// AllKinds returns every known kind in a stable order.
func AllKinds() []KindSpec {
	specs := make([]KindSpec, 0, len(kindTable))
	for _, s := range kindTable {
		specs = append(specs, s)
	}
	sort.Slice(specs, func(i, j int) bool {
		if specs[i].Group != specs[j].Group {
			return groupOrder(specs[i].Group) < groupOrder(specs[j].Group)
		}
		if specs[i].Anchor != specs[j].Anchor {
			return specs[i].Anchor < specs[j].Anchor
		}
		if specs[i].Anchor == AnchorEventBefore {
			return specs[i].Offset > specs[j].Offset
		}
		return specs[i].Offset < specs[j].Offset
	})
	return specs
}

func groupOrder(g Group) int {
	switch g {
	case GroupFollowUp:
		return 0
	case GroupEvent:
		return 1
	default:
		return 2
	}
}

// DueAt computes the due time of the kind from an anchor instant.
func (s KindSpec) DueAt(anchor time.Time) time.Time {
	switch s.Anchor {
	case AnchorEventBefore:
		return anchor.Add(-s.Offset)
	default:
		return anchor.Add(s.Offset)
	}
}
