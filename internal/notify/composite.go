package notify

import "context"

// CompositeAdapter routes each delivery to whichever concrete adapter
// actually handles that transport, so internal/outbox can hold a single
// Adapter value regardless of how many downstream collaborators exist.
type CompositeAdapter struct {
	Telegram Adapter
	SMTP     Adapter
}

func NewCompositeAdapter(telegram, smtp Adapter) *CompositeAdapter {
	return &CompositeAdapter{Telegram: telegram, SMTP: smtp}
}

func (a *CompositeAdapter) SendTelegram(ctx context.Context, telegramID int64, inv Invite) error {
	return a.Telegram.SendTelegram(ctx, telegramID, inv)
}

func (a *CompositeAdapter) SendEmail(ctx context.Context, address string, inv Invite) error {
	return a.SMTP.SendEmail(ctx, address, inv)
}
