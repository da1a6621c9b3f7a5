// Package ical is Televent's RFC 5545 codec: it parses and serializes a
// VCALENDAR containing exactly one VEVENT, the CalDAV resource granularity
// (§4.2). It is built on top of github.com/emersion/go-ical for line
// folding/unfolding and property tokenization, the same library the
// teacher's pkg/ical package used, generalized from the teacher's
// timestamp-ETag/per-instance-expansion model to Televent's content-hash
// ETag and single-VEVENT-with-RRULE response shape.
package ical

import "time"

// Attendee mirrors store.EventAttendee in the codec's vocabulary; the
// caldav engine maps between the two so this package stays independent of
// the storage layer.
type Attendee struct {
	Email    string
	CN       string
	Role     string // ORGANIZER, ATTENDEE
	PartStat string // NEEDS-ACTION, ACCEPTED, DECLINED, TENTATIVE
	RSVP     bool
}

// EventData is the wire-level decomposition of a single VEVENT: every
// field Parse can populate and Serialize can emit.
type EventData struct {
	UID         string
	Summary     string
	Description string
	Location    string

	// Exactly one of (Start, End) or (StartDate, EndDate) is set.
	Start *time.Time
	End   *time.Time

	StartDate *time.Time
	EndDate   *time.Time
	IsAllDay  bool

	Status   string
	RRule    string
	Timezone string

	Sequence int
	Method   string // REQUEST, REPLY, CANCEL; empty for plain CalDAV resources

	// DTStamp is carried through as-is on round-trip; Serialize stamps a
	// fresh value only when nil (first-time creation).
	DTStamp *time.Time

	Organizer *Attendee
	Attendees []Attendee
}
