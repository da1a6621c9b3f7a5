package caldav

import (
	"github.com/kirilledition/televent/internal/dom"
	"github.com/kirilledition/televent/internal/ids"
	"github.com/kirilledition/televent/internal/store"
	"github.com/kirilledition/televent/pkg/ical"
)

// toEventData builds the codec's wire representation of a stored event, for
// GET and for calendar-query/sync-collection's inline calendar-data.
func toEventData(ev *store.Event) *ical.EventData {
	ed := &ical.EventData{
		UID:         ev.UID,
		Summary:     ev.Summary,
		Description: ev.Description,
		Location:    ev.Location,
		Start:       ev.Start,
		End:         ev.End,
		StartDate:   ev.StartDate,
		EndDate:     ev.EndDate,
		IsAllDay:    ev.IsAllDay,
		Status:      string(ev.Status),
		RRule:       ev.RRule,
		Timezone:    ev.Timezone,
		Sequence:    int(ev.Version),
		DTStamp:     &ev.UpdatedAt,
	}
	for _, a := range ev.Attendees {
		attendee := ical.Attendee{
			Email:    a.Email,
			Role:     string(a.Role),
			PartStat: string(a.Status),
		}
		if a.Role == store.RoleOrganizer {
			ed.Organizer = &attendee
		} else {
			ed.Attendees = append(ed.Attendees, attendee)
		}
	}
	return ed
}

// toEventFields maps a parsed VEVENT onto the mutable subset Store.UpsertEvent
// replaces wholesale, folding Organizer back into the attendee list with its
// ORGANIZER role (the codec keeps Organizer separate because RFC 5545 gives
// it a distinct property name; the store keeps both kinds in one table).
//
// A non-empty RRule is validated here (§4.3: "RRULE is validated at write
// — must parse and contain FREQ=") rather than left to fail later at
// calendar-query time, where an unparseable rule would simply be logged
// and silently excluded from results instead of rejecting the write.
func toEventFields(ed *ical.EventData, userID ids.UserID) (store.EventFields, error) {
	fields := store.EventFields{
		Summary:     ed.Summary,
		Description: ed.Description,
		Location:    ed.Location,
		Start:       ed.Start,
		End:         ed.End,
		StartDate:   ed.StartDate,
		EndDate:     ed.EndDate,
		IsAllDay:    ed.IsAllDay,
		Status:      store.EventStatus(ed.Status),
		RRule:       ed.RRule,
		Timezone:    ed.Timezone,
	}
	if fields.Status == "" {
		fields.Status = store.StatusConfirmed
	}
	if ed.RRule != "" {
		anchor := ed.Start
		if ed.IsAllDay {
			anchor = ed.StartDate
		}
		if anchor == nil {
			return store.EventFields{}, dom.New(dom.Invalid, "RRULE requires a DTSTART anchor")
		}
		if err := ical.ValidateRRule(ed.RRule, *anchor); err != nil {
			return store.EventFields{}, dom.Wrap(dom.Invalid, "invalid RRULE", err)
		}
	}
	if ed.Organizer != nil {
		fields.Attendees = append(fields.Attendees, toStoreAttendee(*ed.Organizer, store.RoleOrganizer, userID))
	}
	for _, a := range ed.Attendees {
		fields.Attendees = append(fields.Attendees, toStoreAttendee(a, store.RoleAttendee, userID))
	}
	return fields, nil
}

func toStoreAttendee(a ical.Attendee, role store.AttendeeRole, userID ids.UserID) store.EventAttendee {
	ea := store.EventAttendee{
		Email:  a.Email,
		Role:   role,
		Status: store.AttendeeStatus(a.PartStat),
	}
	if ea.Status == "" {
		ea.Status = store.PartstatNeedsAction
	}
	if tgID, ok := internalAttendeeTelegramID(a.Email); ok {
		ea.TelegramID = &tgID
	}
	_ = userID
	return ea
}
