package store

import (
	"context"
	"time"

	"github.com/kirilledition/televent/internal/ids"
)

// EventFields is the mutable subset of Event an upsert writes. UserID and
// UID identify the row; everything else is replaced wholesale, matching
// iCalendar's whole-resource PUT semantics.
type EventFields struct {
	Summary     string
	Description string
	Location    string

	Start *time.Time
	End   *time.Time

	StartDate *time.Time
	EndDate   *time.Time

	IsAllDay bool
	Status   EventStatus
	RRule    string
	Timezone string

	Attendees []EventAttendee
}

// UpsertResult reports what upsert_event actually did, so CalDAVEngine can
// map it to 201 vs 204 without a second round trip.
type UpsertResult struct {
	Created   bool
	Event     Event
	SyncToken int64
}

// Store is the single source of truth. It is the only component allowed to
// mutate persistent state (§4.1); every operation below either succeeds
// totally or returns one of the §7 error kinds via *dom.Error — never a
// partial write.
type Store interface {
	Close()

	GetUserByID(ctx context.Context, id ids.UserID) (*User, error)
	GetUserByUsername(ctx context.Context, username string) (*User, error)

	// UpsertEvent creates or updates the (user_id, uid) row per §4.1's
	// upsert_event contract. ifMatch, when non-nil, must equal the current
	// ETag or the call fails with dom.PreconditionFailed. The bump of the
	// user's sync_token, the row write, and the outbox insert described by
	// outboxType/outboxPayload all happen in one transaction.
	UpsertEvent(ctx context.Context, userID ids.UserID, uid string, fields EventFields, ifMatch *string, outboxType string, outboxPayload []byte) (*UpsertResult, error)

	// DeleteEvent conditionally deletes (user_id, uid), writes its
	// tombstone with deletion_token set to the post-bump sync_token, and
	// bumps sync_token, all in one transaction.
	DeleteEvent(ctx context.Context, userID ids.UserID, uid string, ifMatch *string, outboxType string, outboxPayload []byte) error

	GetEvent(ctx context.Context, userID ids.UserID, uid string) (*Event, error)

	// ListEventsInRange returns non-all-day events overlapping [start, end)
	// and all-day events whose civil-date range overlaps the same window.
	// A nil start or end means unbounded on that side.
	ListEventsInRange(ctx context.Context, userID ids.UserID, start, end *time.Time) ([]Event, error)

	// ListChangesSince returns the delta after sinceToken: changed events
	// and tombstones with deletion_token > sinceToken, plus the user's
	// current sync_token.
	ListChangesSince(ctx context.Context, userID ids.UserID, sinceToken int64) (changes []Change, currentToken int64, err error)

	// LeaseOutbox atomically claims up to n pending rows whose
	// scheduled_at <= now, marking them processing under SKIP LOCKED
	// semantics so concurrent workers never observe overlapping sets.
	LeaseOutbox(ctx context.Context, n int) ([]OutboxMessage, error)
	CompleteOutbox(ctx context.Context, id ids.OutboxID) error
	RetryOutbox(ctx context.Context, id ids.OutboxID, backoff time.Duration) error
	FailOutbox(ctx context.Context, id ids.OutboxID, reason string) error
	// ReclaimStaleOutbox reverts processing rows older than the given
	// threshold back to pending, for crash recovery on worker restart.
	ReclaimStaleOutbox(ctx context.Context, olderThan time.Duration) error

	ListDevicePasswords(ctx context.Context, userID ids.UserID, limit int) ([]DevicePassword, error)
	CreateDevicePassword(ctx context.Context, userID ids.UserID, deviceName, passwordHash string) (*DevicePassword, error)
	RevokeDevicePassword(ctx context.Context, userID ids.UserID, id ids.DevicePasswordID) error
	TouchDevicePassword(ctx context.Context, id ids.DevicePasswordID) error
}
