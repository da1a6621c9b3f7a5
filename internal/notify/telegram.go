package notify

import (
	"context"
	"fmt"

	"github.com/mymmrac/telego"

	"github.com/kirilledition/televent/internal/dom"
)

// TelegramAdapter sends notifications through the Televent bot account
// itself — the same bot BotSurface listens on for incoming commands.
// Grounded on the domain stack's choice of github.com/mymmrac/telego (the
// retrieval pack's bot repos depend on a Telegram Bot API client for
// exactly this purpose) for a typed SendMessage call, rather than building
// one over net/http by hand.
type TelegramAdapter struct {
	bot *telego.Bot
}

func NewTelegramAdapter(token string) (*TelegramAdapter, error) {
	bot, err := telego.NewBot(token)
	if err != nil {
		return nil, fmt.Errorf("notify: init telegram bot: %w", err)
	}
	return &TelegramAdapter{bot: bot}, nil
}

func (a *TelegramAdapter) SendTelegram(ctx context.Context, telegramID int64, inv Invite) error {
	_, err := a.bot.SendMessage(ctx, &telego.SendMessageParams{
		ChatID: telego.ChatID{ID: telegramID},
		Text:   formatInvite(inv),
	})
	if err != nil {
		// Bot API failures (rate limits, transient network errors) are
		// retryable; dom.KindOf treats an unwrapped error as Internal
		// (non-retryable), so this must be classified explicitly.
		return dom.Wrap(dom.Transient, "send telegram message", err)
	}
	return nil
}

// SendEmail on the Telegram adapter only runs for attendees whose address
// resolved to a telegram_id (§6's internal email form); a genuinely
// external address never reaches this adapter, so this is a permanent
// misrouting, not a transient delivery failure.
func (a *TelegramAdapter) SendEmail(ctx context.Context, address string, inv Invite) error {
	return dom.New(dom.Invalid, fmt.Sprintf("telegram adapter cannot deliver to external address %q", address))
}

func formatInvite(inv Invite) string {
	if inv.Cancelled {
		return fmt.Sprintf("Event cancelled: %s (%s)", inv.Summary, inv.StartText)
	}
	return fmt.Sprintf("Event invite: %s (%s)", inv.Summary, inv.StartText)
}
