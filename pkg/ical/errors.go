package ical

import "fmt"

// ParseErrorKind is the closed set of ways a VCALENDAR/VEVENT body can fail
// to parse, per spec §4.2.
type ParseErrorKind int

const (
	MissingRequired ParseErrorKind = iota
	BadTime
	UnknownTimeZone
	MalformedFraming
	MixedDateAndDateTime
	InvalidRange
)

func (k ParseErrorKind) String() string {
	switch k {
	case MissingRequired:
		return "missing_required"
	case BadTime:
		return "bad_time"
	case UnknownTimeZone:
		return "unknown_time_zone"
	case MalformedFraming:
		return "malformed_framing"
	case MixedDateAndDateTime:
		return "mixed_date_and_date_time"
	case InvalidRange:
		return "invalid_range"
	default:
		return "parse_error"
	}
}

// ParseError is returned by Parse for any malformed or unsupported input.
// Detail carries the offending property name or value; it is safe to
// surface to a client as a short diagnostic (§4.5's 400 response body).
type ParseError struct {
	Kind   ParseErrorKind
	Detail string
}

func (e *ParseError) Error() string {
	if e.Detail == "" {
		return e.Kind.String()
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Detail)
}

func missingRequired(name string) error        { return &ParseError{Kind: MissingRequired, Detail: name} }
func badTime(value string) error               { return &ParseError{Kind: BadTime, Detail: value} }
func unknownTimeZone(id string) error          { return &ParseError{Kind: UnknownTimeZone, Detail: id} }
func malformedFraming(detail string) error     { return &ParseError{Kind: MalformedFraming, Detail: detail} }
func mixedDateAndDateTime(detail string) error { return &ParseError{Kind: MixedDateAndDateTime, Detail: detail} }
func invalidRange(detail string) error         { return &ParseError{Kind: InvalidRange, Detail: detail} }
