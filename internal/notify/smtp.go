package notify

import (
	"context"

	"github.com/kirilledition/televent/internal/dom"
)

// SMTPAdapter is the out-of-scope collaborator §4.6 names for
// calendar_invite recipients whose address does not resolve to a
// telegram_id: spec.md's external interfaces list an SMTP collaborator as
// injected configuration (host/port/credentials) but leave the actual
// delivery integration out of scope. This stub keeps the dispatch switch
// total (every message_type has a branch) while surfacing the gap as a
// retryable Transient error rather than silently dropping the
// notification or panicking on a nil adapter.
type SMTPAdapter struct{}

func NewSMTPAdapter() *SMTPAdapter { return &SMTPAdapter{} }

func (a *SMTPAdapter) SendTelegram(ctx context.Context, telegramID int64, inv Invite) error {
	return dom.New(dom.Invalid, "smtp adapter cannot deliver to a telegram recipient")
}

func (a *SMTPAdapter) SendEmail(ctx context.Context, address string, inv Invite) error {
	return dom.New(dom.Transient, "smtp delivery not configured")
}
