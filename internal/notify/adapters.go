// Package notify holds the Outbox's delivery adapters (§4.6): the concrete
// collaborators a leased outbox row is dispatched to once the worker has
// decided where a message's recipients live.
package notify

import "context"

// Invite is the decoded form of a calendar_invite outbox payload: enough
// to compose a human-readable notification without the adapter needing to
// know anything about iCalendar.
type Invite struct {
	UID       string
	Summary   string
	StartText string
	Cancelled bool
}

// Adapter delivers one notification. Errors are classified by the caller
// (internal/outbox) via dom.KindOf — an adapter returning a *dom.Error
// distinguishes retryable (Transient) from terminal (Invalid) failures.
// dom.KindOf maps any other error to Internal, which the worker treats as
// non-retryable, so an adapter MUST wrap failures it wants retried as
// dom.Transient explicitly rather than returning a bare error.
type Adapter interface {
	SendTelegram(ctx context.Context, telegramID int64, inv Invite) error
	SendEmail(ctx context.Context, address string, inv Invite) error
}
