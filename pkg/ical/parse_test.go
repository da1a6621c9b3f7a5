package ical

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const timedEvent = "BEGIN:VCALENDAR\r\n" +
	"VERSION:2.0\r\n" +
	"PRODID:-//Test//EN\r\n" +
	"BEGIN:VEVENT\r\n" +
	"UID:event-1@televent\r\n" +
	"DTSTAMP:20260101T120000Z\r\n" +
	"DTSTART:20260115T090000Z\r\n" +
	"DTEND:20260115T100000Z\r\n" +
	"SUMMARY:Standup\r\n" +
	"SEQUENCE:0\r\n" +
	"END:VEVENT\r\n" +
	"END:VCALENDAR\r\n"

func TestParseTimedEvent(t *testing.T) {
	ed, err := Parse([]byte(timedEvent))
	require.NoError(t, err)
	assert.Equal(t, "event-1@televent", ed.UID)
	assert.Equal(t, "Standup", ed.Summary)
	assert.False(t, ed.IsAllDay)
	require.NotNil(t, ed.Start)
	require.NotNil(t, ed.End)
	assert.Equal(t, time.Date(2026, 1, 15, 9, 0, 0, 0, time.UTC), ed.Start.UTC())
	assert.Equal(t, time.Date(2026, 1, 15, 10, 0, 0, 0, time.UTC), ed.End.UTC())
}

func TestParseAllDayEvent(t *testing.T) {
	data := "BEGIN:VCALENDAR\r\n" +
		"VERSION:2.0\r\n" +
		"BEGIN:VEVENT\r\n" +
		"UID:allday-1@televent\r\n" +
		"DTSTAMP:20260101T120000Z\r\n" +
		"DTSTART;VALUE=DATE:20260301\r\n" +
		"DTEND;VALUE=DATE:20260302\r\n" +
		"SUMMARY:Holiday\r\n" +
		"END:VEVENT\r\n" +
		"END:VCALENDAR\r\n"

	ed, err := Parse([]byte(data))
	require.NoError(t, err)
	assert.True(t, ed.IsAllDay)
	require.NotNil(t, ed.StartDate)
	assert.Equal(t, time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC), ed.StartDate.UTC())
}

func TestParseMissingUID(t *testing.T) {
	data := "BEGIN:VCALENDAR\r\n" +
		"VERSION:2.0\r\n" +
		"BEGIN:VEVENT\r\n" +
		"DTSTAMP:20260101T120000Z\r\n" +
		"DTSTART:20260115T090000Z\r\n" +
		"DTEND:20260115T100000Z\r\n" +
		"SUMMARY:No UID\r\n" +
		"END:VEVENT\r\n" +
		"END:VCALENDAR\r\n"

	_, err := Parse([]byte(data))
	require.Error(t, err)
	var perr *ParseError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, MissingRequired, perr.Kind)
}

func TestParseMixedDateAndDateTime(t *testing.T) {
	data := "BEGIN:VCALENDAR\r\n" +
		"VERSION:2.0\r\n" +
		"BEGIN:VEVENT\r\n" +
		"UID:mixed-1@televent\r\n" +
		"DTSTAMP:20260101T120000Z\r\n" +
		"DTSTART;VALUE=DATE:20260301\r\n" +
		"DTEND:20260301T100000Z\r\n" +
		"SUMMARY:Mixed\r\n" +
		"END:VEVENT\r\n" +
		"END:VCALENDAR\r\n"

	_, err := Parse([]byte(data))
	require.Error(t, err)
	var perr *ParseError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, MixedDateAndDateTime, perr.Kind)
}

func TestParseRejectsEndBeforeStart(t *testing.T) {
	data := "BEGIN:VCALENDAR\r\n" +
		"VERSION:2.0\r\n" +
		"BEGIN:VEVENT\r\n" +
		"UID:backwards-1@televent\r\n" +
		"DTSTAMP:20260101T120000Z\r\n" +
		"DTSTART:20260115T100000Z\r\n" +
		"DTEND:20260115T090000Z\r\n" +
		"SUMMARY:Time travel\r\n" +
		"END:VEVENT\r\n" +
		"END:VCALENDAR\r\n"

	_, err := Parse([]byte(data))
	require.Error(t, err)
	var perr *ParseError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, InvalidRange, perr.Kind)
}

func TestParseAllowsEqualAllDayRange(t *testing.T) {
	data := "BEGIN:VCALENDAR\r\n" +
		"VERSION:2.0\r\n" +
		"BEGIN:VEVENT\r\n" +
		"UID:sameday-1@televent\r\n" +
		"DTSTAMP:20260101T120000Z\r\n" +
		"DTSTART;VALUE=DATE:20260301\r\n" +
		"DTEND;VALUE=DATE:20260301\r\n" +
		"SUMMARY:Same-day all-day\r\n" +
		"END:VEVENT\r\n" +
		"END:VCALENDAR\r\n"

	_, err := Parse([]byte(data))
	require.NoError(t, err)
}

func TestParseRejectsAllDayEndBeforeStart(t *testing.T) {
	data := "BEGIN:VCALENDAR\r\n" +
		"VERSION:2.0\r\n" +
		"BEGIN:VEVENT\r\n" +
		"UID:backwards-allday-1@televent\r\n" +
		"DTSTAMP:20260101T120000Z\r\n" +
		"DTSTART;VALUE=DATE:20260302\r\n" +
		"DTEND;VALUE=DATE:20260301\r\n" +
		"SUMMARY:Backwards holiday\r\n" +
		"END:VEVENT\r\n" +
		"END:VCALENDAR\r\n"

	_, err := Parse([]byte(data))
	require.Error(t, err)
	var perr *ParseError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, InvalidRange, perr.Kind)
}

func TestParseMissingVCalendar(t *testing.T) {
	_, err := Parse([]byte("BEGIN:VEVENT\r\nUID:x\r\nEND:VEVENT\r\n"))
	require.Error(t, err)
	var perr *ParseError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, MalformedFraming, perr.Kind)
}

func TestParseAttendeesAndOrganizer(t *testing.T) {
	data := "BEGIN:VCALENDAR\r\n" +
		"VERSION:2.0\r\n" +
		"BEGIN:VEVENT\r\n" +
		"UID:invite-1@televent\r\n" +
		"DTSTAMP:20260101T120000Z\r\n" +
		"DTSTART:20260115T090000Z\r\n" +
		"DTEND:20260115T100000Z\r\n" +
		"SUMMARY:Planning\r\n" +
		"ORGANIZER;CN=Alice:mailto:alice@example.com\r\n" +
		"ATTENDEE;ROLE=REQ-PARTICIPANT;PARTSTAT=NEEDS-ACTION:mailto:bob@example.com\r\n" +
		"END:VEVENT\r\n" +
		"END:VCALENDAR\r\n"

	ed, err := Parse([]byte(data))
	require.NoError(t, err)
	require.NotNil(t, ed.Organizer)
	assert.Equal(t, "alice@example.com", ed.Organizer.Email)
	require.Len(t, ed.Attendees, 1)
	assert.Equal(t, "bob@example.com", ed.Attendees[0].Email)
	assert.Equal(t, "REQ-PARTICIPANT", ed.Attendees[0].Role)
}
