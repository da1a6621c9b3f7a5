// Package botsurface is BotSurface (§2): a thin Store-backed writer for
// the Telegram bot's own command handlers (e.g. "/new", "/cancel"). It
// calls the identical Store.UpsertEvent/DeleteEvent operations
// CalDAVEngine uses, so a bot-originated mutation bumps the same
// sync_token a CalDAV client's next sync-collection observes (§2's data-
// flow diagram) — BotSurface is deliberately not a second write path with
// its own concurrency rules.
package botsurface

import (
	"context"

	"github.com/kirilledition/televent/internal/dom"
	"github.com/kirilledition/televent/internal/ids"
	"github.com/kirilledition/televent/internal/store"
	"github.com/kirilledition/televent/pkg/ical"
)

type Surface struct {
	store store.Store
}

func New(s store.Store) *Surface {
	return &Surface{store: s}
}

// CreateOrUpdateEventFromBot mirrors CalDAVEngine's PUT handling without
// the WebDAV precondition machinery: a bot command always writes
// unconditionally (no If-Match), since the chat UI has no concept of a
// stale ETag to send back.
func (s *Surface) CreateOrUpdateEventFromBot(ctx context.Context, userID ids.UserID, ed *ical.EventData) (*store.UpsertResult, error) {
	fields, err := toEventFields(ed)
	if err != nil {
		return nil, err
	}
	return s.store.UpsertEvent(ctx, userID, ed.UID, fields, nil, "", nil)
}

// DeleteEventFromBot mirrors CalDAVEngine's DELETE handling, again without
// an If-Match precondition.
func (s *Surface) DeleteEventFromBot(ctx context.Context, userID ids.UserID, uid string) error {
	return s.store.DeleteEvent(ctx, userID, uid, nil, "", nil)
}

// toEventFields duplicates internal/caldav's conversion in miniature: both
// packages translate the codec's EventData into the store's mutable
// EventFields, but neither has a reason to import the other (BotSurface
// never touches XML, CalDAVEngine never touches chat commands). Both
// copies validate a non-empty RRule the same way (§4.3), since a bot
// command is as much a write path as a PUT.
func toEventFields(ed *ical.EventData) (store.EventFields, error) {
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
	return fields, nil
}
