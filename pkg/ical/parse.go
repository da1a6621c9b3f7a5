package ical

import (
	"bytes"
	"strings"
	"time"

	goical "github.com/emersion/go-ical"
)

// Parse decodes a VCALENDAR body into EventData. Unknown properties and
// parameters are ignored without failing, per §4.2; line-unfolding is
// handled by the underlying decoder before any of this logic runs.
func Parse(data []byte) (*EventData, error) {
	cal, err := goical.NewDecoder(bytes.NewReader(data)).Decode()
	if err != nil {
		return nil, malformedFraming(err.Error())
	}
	if cal.Name != goical.CompCalendar {
		return nil, malformedFraming("missing BEGIN:VCALENDAR")
	}

	var vevent *goical.Component
	for _, child := range cal.Children {
		if child.Name == goical.CompEvent {
			if vevent != nil {
				return nil, malformedFraming("multiple VEVENT components")
			}
			vevent = child
		}
	}
	if vevent == nil {
		return nil, malformedFraming("missing BEGIN:VEVENT")
	}

	ev := &EventData{}

	uid := vevent.Props.Get(goical.PropUID)
	if uid == nil || strings.TrimSpace(uid.Value) == "" {
		return nil, missingRequired("UID")
	}
	ev.UID = uid.Value

	if summary := vevent.Props.Get(goical.PropSummary); summary != nil {
		ev.Summary = summary.Value
	}
	if ev.Summary == "" {
		return nil, missingRequired("SUMMARY")
	}

	if desc := vevent.Props.Get(goical.PropDescription); desc != nil {
		ev.Description = desc.Value
	}
	if loc := vevent.Props.Get(goical.PropLocation); loc != nil {
		ev.Location = loc.Value
	}
	if status := vevent.Props.Get(goical.PropStatus); status != nil {
		ev.Status = status.Value
	}
	if seq := vevent.Props.Get(goical.PropSequence); seq != nil {
		ev.Sequence = parseIntOrZero(seq.Value)
	}
	if stamp := vevent.Props.Get(goical.PropDateTimeStamp); stamp != nil {
		if t, err := time.Parse("20060102T150405Z", strings.TrimSpace(stamp.Value)); err == nil {
			ev.DTStamp = &t
		}
	}

	dtstart := vevent.Props.Get(goical.PropDateTimeStart)
	if dtstart == nil {
		return nil, missingRequired("DTSTART")
	}
	start, startAllDay, startZone, err := parseICalTime(dtstart)
	if err != nil {
		return nil, err
	}

	dtend := vevent.Props.Get(goical.PropDateTimeEnd)
	if dtend == nil {
		return nil, missingRequired("DTEND")
	}
	end, endAllDay, _, err := parseICalTime(dtend)
	if err != nil {
		return nil, err
	}

	if startAllDay != endAllDay {
		return nil, mixedDateAndDateTime("DTSTART and DTEND must both be dates or both be date-times")
	}

	// §3's Event invariant: a timed pair needs end strictly after start; an
	// all-day pair only needs end_date no earlier than start_date (a
	// single-day all-day event has DTSTART==DTEND-1 in wire form, but this
	// package stores the pair as given, not the exclusive-end adjustment).
	if startAllDay {
		if end.Before(start) {
			return nil, invalidRange("DTEND date must not be before DTSTART date")
		}
	} else if !end.After(start) {
		return nil, invalidRange("DTEND must be after DTSTART")
	}

	ev.IsAllDay = startAllDay
	if startAllDay {
		ev.StartDate = &start
		ev.EndDate = &end
	} else {
		ev.Start = &start
		ev.End = &end
	}
	ev.Timezone = startZone

	if rrule := vevent.Props.Get(goical.PropRecurrenceRule); rrule != nil {
		ev.RRule = rrule.Value
	}

	if org := vevent.Props.Get(goical.PropOrganizer); org != nil {
		a := attendeeFromProp(org, "ORGANIZER")
		ev.Organizer = &a
	}
	for _, prop := range vevent.Props.Values(goical.PropAttendee) {
		ev.Attendees = append(ev.Attendees, attendeeFromProp(&prop, "ATTENDEE"))
	}

	if method := cal.Props.Get(goical.PropMethod); method != nil {
		ev.Method = method.Value
	}

	return ev, nil
}

func attendeeFromProp(prop *goical.Prop, role string) Attendee {
	a := Attendee{Role: role, PartStat: "NEEDS-ACTION"}
	v := strings.TrimSpace(prop.Value)
	a.Email = strings.TrimPrefix(strings.ToLower(v), "mailto:")
	if cn := prop.Params.Get("CN"); cn != "" {
		a.CN = cn
	}
	if ps := prop.Params.Get("PARTSTAT"); ps != "" {
		a.PartStat = ps
	}
	if r := prop.Params.Get("ROLE"); r != "" {
		a.Role = r
	}
	if rsvp := prop.Params.Get("RSVP"); strings.EqualFold(rsvp, "TRUE") {
		a.RSVP = true
	}
	return a
}

// parseICalTime handles the three wire forms §4.2 names: a bare UTC
// instant, a TZID-qualified local time, and a VALUE=DATE all-day form. The
// returned time is always a UTC instant (midnight UTC for all-day values);
// the third return value is the originating IANA zone name, empty for
// all-day or bare-UTC values.
func parseICalTime(prop *goical.Prop) (t time.Time, isAllDay bool, zone string, err error) {
	value := prop.Params.Get("VALUE")
	raw := strings.TrimSpace(prop.Value)

	if value == "DATE" || (len(raw) == 8 && !strings.Contains(raw, "T")) {
		parsed, perr := time.Parse("20060102", raw)
		if perr != nil {
			return time.Time{}, false, "", badTime(raw)
		}
		return parsed.UTC(), true, "", nil
	}

	if strings.HasSuffix(raw, "Z") {
		parsed, perr := time.Parse("20060102T150405Z", raw)
		if perr != nil {
			return time.Time{}, false, "", badTime(raw)
		}
		return parsed.UTC(), false, "", nil
	}

	tzid := prop.Params.Get("TZID")
	if tzid == "" {
		parsed, perr := time.Parse("20060102T150405", raw)
		if perr != nil {
			return time.Time{}, false, "", badTime(raw)
		}
		return parsed.UTC(), false, "", nil
	}

	loc, lerr := time.LoadLocation(tzid)
	if lerr != nil {
		return time.Time{}, false, "", unknownTimeZone(tzid)
	}
	parsed, perr := time.ParseInLocation("20060102T150405", raw, loc)
	if perr != nil {
		return time.Time{}, false, "", badTime(raw)
	}
	return parsed.UTC(), false, tzid, nil
}

func parseIntOrZero(s string) int {
	n := 0
	for _, r := range s {
		if r < '0' || r > '9' {
			return 0
		}
		n = n*10 + int(r-'0')
	}
	return n
}
