// Package store defines Televent's persistence contract: the only
// component allowed to mutate durable state (§4.1). Everything above this
// package — CalDAVEngine, Outbox, BotSurface — reaches the database only
// through the Store interface.
package store

import (
	"strconv"
	"time"

	"github.com/kirilledition/televent/internal/ids"
)

func formatSyncToken(n int64) string { return strconv.FormatInt(n, 10) }

// User is both an account and the single calendar collection it owns.
type User struct {
	TelegramID       ids.UserID
	TelegramUsername string
	Timezone         string
	CalendarName     string
	CalendarColor    string
	SyncToken        int64
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// CTag is the string form of SyncToken; any bump to SyncToken changes it.
func (u User) CTag() string {
	return formatSyncToken(u.SyncToken)
}

// EventStatus is the closed set of values an Event.Status may hold.
type EventStatus string

const (
	StatusConfirmed EventStatus = "CONFIRMED"
	StatusTentative EventStatus = "TENTATIVE"
	StatusCancelled EventStatus = "CANCELLED"
)

// Event is a calendar object. Exactly one of the timed pair
// (Start, End) or the all-day pair (StartDate, EndDate) is populated,
// never both and never neither — the XOR integrity invariant (§3).
type Event struct {
	ID          string
	UserID      ids.UserID
	UID         string
	Summary     string
	Description string
	Location    string

	Start *time.Time
	End   *time.Time

	StartDate *time.Time // civil date, stored at midnight UTC
	EndDate   *time.Time

	IsAllDay bool
	Status   EventStatus
	RRule    string
	Timezone string

	Version   int64
	ETag      string
	CreatedAt time.Time
	UpdatedAt time.Time

	Attendees []EventAttendee
}

// AttendeeRole and AttendeeStatus are the closed enums for EventAttendee.
type AttendeeRole string

const (
	RoleOrganizer AttendeeRole = "ORGANIZER"
	RoleAttendee  AttendeeRole = "ATTENDEE"
)

type AttendeeStatus string

const (
	PartstatNeedsAction AttendeeStatus = "NEEDS-ACTION"
	PartstatAccepted    AttendeeStatus = "ACCEPTED"
	PartstatDeclined    AttendeeStatus = "DECLINED"
	PartstatTentative   AttendeeStatus = "TENTATIVE"
)

// EventAttendee tracks RSVP state. Email is either a real address or the
// reserved internal form tg_<telegram_id>@televent.internal.
type EventAttendee struct {
	ID         string
	EventID    string
	Email      string
	TelegramID *ids.UserID
	Role       AttendeeRole
	Status     AttendeeStatus
}

// DevicePassword is a CalDAV credential: a per-device Argon2id hash.
type DevicePassword struct {
	ID           ids.DevicePasswordID
	UserID       ids.UserID
	DeviceName   string
	PasswordHash string
	CreatedAt    time.Time
	LastUsedAt   *time.Time
}

type OutboxStatus string

const (
	OutboxPending    OutboxStatus = "pending"
	OutboxProcessing OutboxStatus = "processing"
	OutboxCompleted  OutboxStatus = "completed"
	OutboxFailed     OutboxStatus = "failed"
)

// OutboxMessage is a durable side-effect record inserted in the same
// transaction as the business change that caused it (§4.6).
type OutboxMessage struct {
	ID           ids.OutboxID
	MessageType  string
	Payload      []byte
	Status       OutboxStatus
	RetryCount   int
	ScheduledAt  time.Time
	ProcessedAt  *time.Time
	ErrorMessage string
	CreatedAt    time.Time
}

// Tombstone records a deletion for CalDAV sync-collection consumption.
type Tombstone struct {
	UserID        ids.UserID
	UID           string
	DeletedAt     time.Time
	DeletionToken int64
}

// Change is one entry of a sync-collection delta: either a live event
// (Deleted == false, carrying the event itself) or a tombstone.
type Change struct {
	UID     string
	Deleted bool
	Event   *Event
}
