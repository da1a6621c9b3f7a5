package caldav

import (
	"context"
	"sort"
	"time"

	"github.com/kirilledition/televent/internal/dom"
	"github.com/kirilledition/televent/internal/etag"
	"github.com/kirilledition/televent/internal/ids"
	"github.com/kirilledition/televent/internal/store"
)

// fakeStore is a minimal single-user in-memory store.Store, enough to drive
// Engine's HTTP handlers end to end without a real Postgres instance. Only
// the methods CalDAVEngine calls are meaningfully implemented; anything
// else panics so an untested code path surfaces loudly instead of silently
// no-op'ing.
type fakeStore struct {
	user            store.User
	events          map[string]*store.Event
	changes         []store.Change
	devicePasswords []store.DevicePassword
	nextID          int
}

func newFakeStore(userID ids.UserID) *fakeStore {
	return &fakeStore{
		user: store.User{
			TelegramID:   userID,
			Timezone:     "UTC",
			CalendarName: "Personal",
			CalendarColor: "#3A87AD",
		},
		events: make(map[string]*store.Event),
	}
}

func (f *fakeStore) Close() {}

func (f *fakeStore) GetUserByID(ctx context.Context, id ids.UserID) (*store.User, error) {
	if id != f.user.TelegramID {
		return nil, dom.New(dom.NotFound, "no such user")
	}
	u := f.user
	return &u, nil
}

func (f *fakeStore) GetUserByUsername(ctx context.Context, username string) (*store.User, error) {
	panic("not implemented")
}

func (f *fakeStore) UpsertEvent(ctx context.Context, userID ids.UserID, uid string, fields store.EventFields, ifMatch *string, outboxType string, outboxPayload []byte) (*store.UpsertResult, error) {
	existing := f.events[uid]
	if ifMatch != nil {
		if existing == nil || existing.ETag != *ifMatch {
			return nil, dom.New(dom.PreconditionFailed, "etag mismatch")
		}
	}

	now := time.Now().UTC()
	ev := &store.Event{
		ID:          uid,
		UserID:      userID,
		UID:         uid,
		Summary:     fields.Summary,
		Description: fields.Description,
		Location:    fields.Location,
		Start:       fields.Start,
		End:         fields.End,
		StartDate:   fields.StartDate,
		EndDate:     fields.EndDate,
		IsAllDay:    fields.IsAllDay,
		Status:      fields.Status,
		RRule:       fields.RRule,
		Timezone:    fields.Timezone,
		UpdatedAt:   now,
	}
	created := existing == nil
	if existing != nil {
		ev.CreatedAt = existing.CreatedAt
		ev.Version = existing.Version + 1
	} else {
		ev.CreatedAt = now
	}
	for _, a := range fields.Attendees {
		ev.Attendees = append(ev.Attendees, a)
	}
	ev.ETag = etag.Compute(etag.Fields{
		UID: ev.UID, Summary: ev.Summary, Description: ev.Description, Location: ev.Location,
		Start: ev.Start, End: ev.End, StartDate: ev.StartDate, EndDate: ev.EndDate,
		IsAllDay: ev.IsAllDay, Status: string(ev.Status), RRule: ev.RRule, Timezone: ev.Timezone,
	})

	f.events[uid] = ev
	f.user.SyncToken++
	f.changes = append(f.changes, store.Change{UID: uid, Event: ev})

	return &store.UpsertResult{Created: created, Event: *ev, SyncToken: f.user.SyncToken}, nil
}

func (f *fakeStore) DeleteEvent(ctx context.Context, userID ids.UserID, uid string, ifMatch *string, outboxType string, outboxPayload []byte) error {
	existing := f.events[uid]
	if existing == nil {
		return dom.New(dom.NotFound, "no such event")
	}
	if ifMatch != nil && existing.ETag != *ifMatch {
		return dom.New(dom.PreconditionFailed, "etag mismatch")
	}
	delete(f.events, uid)
	f.user.SyncToken++
	f.changes = append(f.changes, store.Change{UID: uid, Deleted: true})
	return nil
}

func (f *fakeStore) GetEvent(ctx context.Context, userID ids.UserID, uid string) (*store.Event, error) {
	ev := f.events[uid]
	if ev == nil {
		return nil, dom.New(dom.NotFound, "no such event")
	}
	return ev, nil
}

func (f *fakeStore) ListEventsInRange(ctx context.Context, userID ids.UserID, start, end *time.Time) ([]store.Event, error) {
	var out []store.Event
	for _, ev := range f.events {
		out = append(out, *ev)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UID < out[j].UID })
	return out, nil
}

func (f *fakeStore) ListChangesSince(ctx context.Context, userID ids.UserID, sinceToken int64) ([]store.Change, int64, error) {
	if sinceToken <= 0 {
		return f.changes, f.user.SyncToken, nil
	}
	if int(sinceToken) >= len(f.changes) {
		return nil, f.user.SyncToken, nil
	}
	return f.changes[sinceToken:], f.user.SyncToken, nil
}

func (f *fakeStore) LeaseOutbox(ctx context.Context, n int) ([]store.OutboxMessage, error) {
	panic("not implemented")
}
func (f *fakeStore) CompleteOutbox(ctx context.Context, id ids.OutboxID) error {
	panic("not implemented")
}
func (f *fakeStore) RetryOutbox(ctx context.Context, id ids.OutboxID, backoff time.Duration) error {
	panic("not implemented")
}
func (f *fakeStore) FailOutbox(ctx context.Context, id ids.OutboxID, reason string) error {
	panic("not implemented")
}
func (f *fakeStore) ReclaimStaleOutbox(ctx context.Context, olderThan time.Duration) error {
	panic("not implemented")
}

func (f *fakeStore) ListDevicePasswords(ctx context.Context, userID ids.UserID, limit int) ([]store.DevicePassword, error) {
	return f.devicePasswords, nil
}
func (f *fakeStore) CreateDevicePassword(ctx context.Context, userID ids.UserID, deviceName, passwordHash string) (*store.DevicePassword, error) {
	panic("not implemented")
}
func (f *fakeStore) RevokeDevicePassword(ctx context.Context, userID ids.UserID, id ids.DevicePasswordID) error {
	panic("not implemented")
}
func (f *fakeStore) TouchDevicePassword(ctx context.Context, id ids.DevicePasswordID) error {
	return nil
}
