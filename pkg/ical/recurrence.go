package ical

import (
	"strings"
	"time"

	"github.com/teambition/rrule-go"
)

// MaxRecurrenceInstances bounds how many occurrences ValidateRRule/
// OccursInRange will examine per event per query window (§4.3).
const MaxRecurrenceInstances = 500

// ValidateRRule parses rule and requires a FREQ component, per §4.3's
// write-time validation ("must parse and contain FREQ="). dtstart anchors
// the rule the same way the teacher's pkg/ical/recurrence.go does when
// building an rrule-go Rule, but this package stops at validation: it
// never expands the RRULE into per-instance VEVENTs, since spec §4.3
// requires calendar-query to return the single VEVENT carrying the
// original RRULE and let clients expand it themselves.
func ValidateRRule(rule string, dtstart time.Time) error {
	if !strings.Contains(strings.ToUpper(rule), "FREQ=") {
		return malformedFraming("RRULE missing FREQ")
	}
	_, err := rrule.StrToRRule("DTSTART:" + dtstart.UTC().Format("20060102T150405Z") + "\nRRULE:" + rule)
	if err != nil {
		return malformedFraming("invalid RRULE: " + err.Error())
	}
	return nil
}

// OccursInRange reports whether an event with the given RRULE and anchor
// DTSTART has at least one occurrence overlapping [rangeStart, rangeEnd).
// Used by calendar-query's time-range filter to decide whether to include
// a recurring event's single representative VEVENT in the response; it
// does not enumerate or return the occurrences themselves.
func OccursInRange(rule string, dtstart, rangeStart, rangeEnd time.Time) (bool, error) {
	r, err := rrule.StrToRRule("DTSTART:" + dtstart.UTC().Format("20060102T150405Z") + "\nRRULE:" + rule)
	if err != nil {
		return false, malformedFraming("invalid RRULE: " + err.Error())
	}
	occurrences := r.Between(rangeStart, rangeEnd, true)
	if len(occurrences) > MaxRecurrenceInstances {
		occurrences = occurrences[:MaxRecurrenceInstances]
	}
	return len(occurrences) > 0, nil
}
