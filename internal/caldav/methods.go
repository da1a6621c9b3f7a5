package caldav

import (
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/kirilledition/televent/internal/etag"
	"github.com/kirilledition/televent/internal/ids"
	"github.com/kirilledition/televent/internal/store"
	"github.com/kirilledition/televent/pkg/ical"
)

const contentTypeEvent = "text/calendar; charset=utf-8; component=vevent"

func (e *Engine) handleGet(w http.ResponseWriter, r *http.Request, userID ids.UserID, uid string) {
	ev, err := e.store.GetEvent(r.Context(), userID, uid)
	if err != nil {
		e.writeError(w, r, err)
		return
	}
	body := ical.Serialize(toEventData(ev), e.prodID)
	w.Header().Set("ETag", etag.Quote(ev.ETag))
	w.Header().Set("Last-Modified", ev.UpdatedAt.UTC().Format(http.TimeFormat))
	w.Header().Set("Content-Type", contentTypeEvent)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
}

func (e *Engine) handlePut(w http.ResponseWriter, r *http.Request, userID ids.UserID, uid string) {
	if ct := r.Header.Get("Content-Type"); ct != "" && !strings.HasPrefix(ct, "text/calendar") {
		http.Error(w, "Content-Type must be text/calendar", http.StatusBadRequest)
		return
	}

	limited := io.LimitReader(r.Body, e.maxICSBytes+1)
	body, err := io.ReadAll(limited)
	if err != nil {
		http.Error(w, "failed to read body", http.StatusBadRequest)
		return
	}
	if int64(len(body)) > e.maxICSBytes {
		http.Error(w, "request body too large", http.StatusRequestEntityTooLarge)
		return
	}

	ed, err := ical.Parse(body)
	if err != nil {
		http.Error(w, "malformed iCalendar body: "+err.Error(), http.StatusBadRequest)
		return
	}
	if ed.UID != uid {
		http.Error(w, "resource UID does not match request path", http.StatusConflict)
		return
	}

	var ifMatch *string
	if h := r.Header.Get("If-Match"); h != "" {
		first := strings.TrimSpace(strings.SplitN(h, ",", 2)[0])
		unquoted := etag.Unquote(first)
		ifMatch = &unquoted
	}

	fields, err := toEventFields(ed, userID)
	if err != nil {
		e.writeError(w, r, err)
		return
	}
	outboxType, payload := e.inviteOutbox(uid, fields)

	result, err := e.store.UpsertEvent(r.Context(), userID, uid, fields, ifMatch, outboxType, payload)
	if err != nil {
		e.writeError(w, r, err)
		return
	}

	w.Header().Set("ETag", etag.Quote(result.Event.ETag))
	if result.Created {
		w.WriteHeader(http.StatusCreated)
	} else {
		w.WriteHeader(http.StatusNoContent)
	}
}

func (e *Engine) handleDelete(w http.ResponseWriter, r *http.Request, userID ids.UserID, uid string) {
	var ifMatch *string
	if h := r.Header.Get("If-Match"); h != "" {
		first := strings.TrimSpace(strings.SplitN(h, ",", 2)[0])
		unquoted := etag.Unquote(first)
		ifMatch = &unquoted
	}

	existing, err := e.store.GetEvent(r.Context(), userID, uid)
	if err != nil {
		e.writeError(w, r, err)
		return
	}
	outboxType, payload := e.cancellationOutbox(existing)

	if err := e.store.DeleteEvent(r.Context(), userID, uid, ifMatch, outboxType, payload); err != nil {
		e.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// inviteOutbox decides whether a PUT should enqueue a notification: only
// when the event carries attendees beyond its organizer (§4.6's
// calendar_invite message type). Returns an empty messageType when there
// is nothing to notify, which Store.UpsertEvent treats as "skip the
// outbox insert."
func (e *Engine) inviteOutbox(uid string, fields store.EventFields) (string, []byte) {
	var recipients []store.EventAttendee
	for _, a := range fields.Attendees {
		if a.Role != store.RoleOrganizer {
			recipients = append(recipients, a)
		}
	}
	if len(recipients) == 0 {
		return "", nil
	}
	return "calendar_invite", writeJSON(invitePayload{
		UID:        uid,
		Summary:    fields.Summary,
		Start:      fields.Start,
		End:        fields.End,
		Recipients: attendeeEmails(recipients),
		Cancelled:  false,
	})
}

func (e *Engine) cancellationOutbox(ev *store.Event) (string, []byte) {
	var recipients []store.EventAttendee
	for _, a := range ev.Attendees {
		if a.Role != store.RoleOrganizer {
			recipients = append(recipients, a)
		}
	}
	if len(recipients) == 0 {
		return "", nil
	}
	return "calendar_invite", writeJSON(invitePayload{
		UID:        ev.UID,
		Summary:    ev.Summary,
		Start:      ev.Start,
		End:        ev.End,
		Recipients: attendeeEmails(recipients),
		Cancelled:  true,
	})
}

func attendeeEmails(attendees []store.EventAttendee) []string {
	out := make([]string, 0, len(attendees))
	for _, a := range attendees {
		out = append(out, a.Email)
	}
	return out
}

// invitePayload is the calendar_invite outbox message body (§4.6). The
// dispatcher in internal/outbox decides per-recipient whether to route to
// the bot adapter (internal tg_<id>@televent.internal form) or an SMTP
// collaborator.
type invitePayload struct {
	UID        string     `json:"uid"`
	Summary    string     `json:"summary"`
	Start      *time.Time `json:"start,omitempty"`
	End        *time.Time `json:"end,omitempty"`
	Recipients []string   `json:"recipients"`
	Cancelled  bool       `json:"cancelled"`
}
