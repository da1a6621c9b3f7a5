package ical

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// DefaultProdID is used by callers that have no configured ICSConfig (e.g.
// tests constructing EventData in isolation from internal/caldav's Engine).
const DefaultProdID = "-//Televent//CalDAV 1.0//EN"

// Serialize renders an EventData back to VCALENDAR text. Output is
// byte-for-byte deterministic given the same EventData, as required for
// ETag stability (§4.2, §8's round-trip property): fixed property order,
// CRLF line endings, attendees sorted by (role, email).
//
// go-ical's Props type is map-keyed with no defined iteration order, so
// its Encoder cannot give this guarantee; this package hand-writes the
// wire form instead and relies on go-ical only for Parse, where field
// order does not matter.
//
// prodID becomes the PRODID line verbatim; pass DefaultProdID when the
// caller has no configured value of its own.
func Serialize(ev *EventData, prodID string) []byte {
	var b strings.Builder
	b.WriteString("BEGIN:VCALENDAR\r\n")
	b.WriteString("VERSION:2.0\r\n")
	writeLine(&b, "PRODID", prodID)
	if ev.Method != "" {
		writeLine(&b, "METHOD", ev.Method)
	}
	b.WriteString("BEGIN:VEVENT\r\n")

	writeLine(&b, "UID", ev.UID)
	stamp := time.Now().UTC()
	if ev.DTStamp != nil {
		stamp = ev.DTStamp.UTC()
	}
	writeLine(&b, "DTSTAMP", stamp.Format("20060102T150405Z"))

	if ev.IsAllDay {
		writeLine(&b, "DTSTART;VALUE=DATE", ev.StartDate.UTC().Format("20060102"))
		writeLine(&b, "DTEND;VALUE=DATE", ev.EndDate.UTC().Format("20060102"))
	} else {
		writeLine(&b, "DTSTART", ev.Start.UTC().Format("20060102T150405Z"))
		writeLine(&b, "DTEND", ev.End.UTC().Format("20060102T150405Z"))
	}

	writeEscapedLine(&b, "SUMMARY", ev.Summary)
	if ev.Description != "" {
		writeEscapedLine(&b, "DESCRIPTION", ev.Description)
	}
	if ev.Location != "" {
		writeEscapedLine(&b, "LOCATION", ev.Location)
	}
	if ev.Status != "" {
		writeLine(&b, "STATUS", ev.Status)
	}
	writeLine(&b, "SEQUENCE", fmt.Sprintf("%d", ev.Sequence))
	if ev.RRule != "" {
		writeLine(&b, "RRULE", ev.RRule)
	}

	if ev.Organizer != nil {
		writeAttendeeLine(&b, "ORGANIZER", *ev.Organizer)
	}
	attendees := make([]Attendee, len(ev.Attendees))
	copy(attendees, ev.Attendees)
	sort.Slice(attendees, func(i, j int) bool {
		if attendees[i].Role != attendees[j].Role {
			return attendees[i].Role < attendees[j].Role
		}
		return attendees[i].Email < attendees[j].Email
	})
	for _, a := range attendees {
		writeAttendeeLine(&b, "ATTENDEE", a)
	}

	b.WriteString("END:VEVENT\r\n")
	b.WriteString("END:VCALENDAR\r\n")
	return []byte(b.String())
}

func writeAttendeeLine(b *strings.Builder, name string, a Attendee) {
	var params strings.Builder
	if a.CN != "" {
		params.WriteString(";CN=")
		params.WriteString(escapeParam(a.CN))
	}
	if a.Role != "" {
		params.WriteString(";ROLE=")
		params.WriteString(a.Role)
	}
	if a.PartStat != "" {
		params.WriteString(";PARTSTAT=")
		params.WriteString(a.PartStat)
	}
	if a.RSVP {
		params.WriteString(";RSVP=TRUE")
	}
	writeLine(b, name+params.String(), "mailto:"+a.Email)
}

// writeLine folds a property whose value needs no RFC 5545 text escaping
// (already-safe tokens: dates, enums, emails).
func writeLine(b *strings.Builder, name, value string) {
	foldLine(b, name+":"+value)
}

// writeEscapedLine escapes free-text values per §4.2 (backslash, semicolon,
// comma, newline) before folding.
func writeEscapedLine(b *strings.Builder, name, value string) {
	foldLine(b, name+":"+escapeText(value))
}

func escapeText(s string) string {
	r := strings.NewReplacer(
		`\`, `\\`,
		`;`, `\;`,
		`,`, `\,`,
		"\n", `\n`,
	)
	return r.Replace(s)
}

func escapeParam(s string) string {
	if strings.ContainsAny(s, ",:;") {
		return `"` + s + `"`
	}
	return s
}

// foldLine wraps output at 75 octets per RFC 5545, continuation lines
// beginning with a single space, and terminates with CRLF.
func foldLine(b *strings.Builder, line string) {
	const maxLen = 75
	if len(line) <= maxLen {
		b.WriteString(line)
		b.WriteString("\r\n")
		return
	}
	remaining := line
	first := true
	for len(remaining) > 0 {
		lim := maxLen
		if !first {
			lim = maxLen - 1
		}
		if len(remaining) <= lim {
			if !first {
				b.WriteByte(' ')
			}
			b.WriteString(remaining)
			b.WriteString("\r\n")
			break
		}
		chunk := remaining[:lim]
		if !first {
			b.WriteByte(' ')
		}
		b.WriteString(chunk)
		b.WriteString("\r\n")
		remaining = remaining[lim:]
		first = false
	}
}
