// Package etag computes the content fingerprint §4.3 of the spec defines:
// a deterministic hash of an event's comparable fields, independent of its
// row id, version counter, or timestamps. Two events are ETag-equal iff
// this canonical tuple is equal.
package etag

import (
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"strings"
	"time"
)

// Fields is the subset of an event's data that participates in the ETag.
// It intentionally excludes attendees: RSVP churn does not change the
// resource's CalDAV identity tuple per §4.3.
type Fields struct {
	UID         string
	Summary     string
	Description string
	Location    string
	Start       *time.Time
	End         *time.Time
	StartDate   *time.Time
	EndDate     *time.Time
	IsAllDay    bool
	Status      string
	RRule       string
	Timezone    string
}

// Compute returns the unquoted hex SHA-256 digest of the canonical tuple.
// Callers are responsible for quoting it on the wire.
func Compute(f Fields) string {
	var b strings.Builder
	b.WriteString(f.UID)
	b.WriteByte('\x1f')
	b.WriteString(f.Summary)
	b.WriteByte('\x1f')
	b.WriteString(f.Description)
	b.WriteByte('\x1f')
	b.WriteString(f.Location)
	b.WriteByte('\x1f')
	b.WriteString(formatTime(f.Start))
	b.WriteByte('\x1f')
	b.WriteString(formatTime(f.End))
	b.WriteByte('\x1f')
	b.WriteString(formatDate(f.StartDate))
	b.WriteByte('\x1f')
	b.WriteString(formatDate(f.EndDate))
	b.WriteByte('\x1f')
	b.WriteString(strconv.FormatBool(f.IsAllDay))
	b.WriteByte('\x1f')
	b.WriteString(f.Status)
	b.WriteByte('\x1f')
	b.WriteString(f.RRule)
	b.WriteByte('\x1f')
	b.WriteString(f.Timezone)

	sum := sha256.Sum256([]byte(b.String()))
	return hex.EncodeToString(sum[:])
}

func formatTime(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

func formatDate(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.UTC().Format("2006-01-02")
}

// Quote wraps a bare hex digest in the double quotes the wire form requires.
func Quote(tag string) string { return `"` + tag + `"` }

// Unquote strips the wire-form quotes for internal comparison.
func Unquote(tag string) string { return strings.Trim(tag, `"`) }
