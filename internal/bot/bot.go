// Package bot is Televent's inbound half of BotSurface (§2): a Telegram
// long-polling loop that turns chat commands into the same
// internal/botsurface writes a "/new"/"/cancel" slash command would
// trigger. Grounded on the domain stack's github.com/mymmrac/telego
// client (already used for outbound delivery in internal/notify) and, for
// the overall "receive update, dispatch by command, reply" shape, on
// tazhate-familybot's cmd/bot/main.go wiring pattern from the retrieval
// pack's other_examples/.
package bot

import (
	"context"
	"fmt"
	"strings"

	"github.com/mymmrac/telego"
	"github.com/rs/zerolog"

	"github.com/kirilledition/televent/internal/botsurface"
	"github.com/kirilledition/televent/internal/ids"
	"github.com/kirilledition/televent/pkg/ical"
)

type Bot struct {
	client  *telego.Bot
	surface *botsurface.Surface
	logger  zerolog.Logger
}

func New(token string, surface *botsurface.Surface, logger zerolog.Logger) (*Bot, error) {
	client, err := telego.NewBot(token)
	if err != nil {
		return nil, fmt.Errorf("bot: init telegram client: %w", err)
	}
	return &Bot{client: client, surface: surface, logger: logger}, nil
}

// Run blocks, polling for updates until ctx is cancelled. It never returns
// a transport error to the caller mid-loop; a failed update is logged and
// skipped so one malformed message cannot take down the whole listener.
func (b *Bot) Run(ctx context.Context) error {
	updates, err := b.client.UpdatesViaLongPolling(ctx, nil)
	if err != nil {
		return fmt.Errorf("bot: start long polling: %w", err)
	}
	for update := range updates {
		b.handleUpdate(ctx, update)
	}
	return nil
}

func (b *Bot) handleUpdate(ctx context.Context, update telego.Update) {
	if update.Message == nil || update.Message.Text == "" {
		return
	}
	msg := update.Message
	userID := ids.UserID(msg.From.ID)
	chatID := telego.ChatID{ID: msg.Chat.ID}

	reply, err := b.dispatch(ctx, userID, msg.Text)
	if err != nil {
		b.logger.Warn().Err(err).Int64("telegram_id", msg.From.ID).Msg("bot: command failed")
		reply = fmt.Sprintf("error: %s", err)
	}
	if reply == "" {
		return
	}
	if _, sendErr := b.client.SendMessage(ctx, &telego.SendMessageParams{ChatID: chatID, Text: reply}); sendErr != nil {
		b.logger.Error().Err(sendErr).Int64("telegram_id", msg.From.ID).Msg("bot: reply failed")
	}
}

// dispatch recognizes two commands: "/new" followed by a full VCALENDAR/
// VEVENT blob (the same iCalendar text a CalDAV client would PUT), and
// "/cancel <uid>". Anything else gets a usage reminder rather than being
// silently ignored.
func (b *Bot) dispatch(ctx context.Context, userID ids.UserID, text string) (string, error) {
	switch {
	case strings.HasPrefix(text, "/new"):
		body := strings.TrimSpace(strings.TrimPrefix(text, "/new"))
		ed, err := ical.Parse([]byte(body))
		if err != nil {
			return "", fmt.Errorf("parse event: %w", err)
		}
		result, err := b.surface.CreateOrUpdateEventFromBot(ctx, userID, ed)
		if err != nil {
			return "", err
		}
		if result.Created {
			return fmt.Sprintf("created %s", ed.UID), nil
		}
		return fmt.Sprintf("updated %s", ed.UID), nil

	case strings.HasPrefix(text, "/cancel"):
		uid := strings.TrimSpace(strings.TrimPrefix(text, "/cancel"))
		if uid == "" {
			return "usage: /cancel <uid>", nil
		}
		if err := b.surface.DeleteEventFromBot(ctx, userID, uid); err != nil {
			return "", err
		}
		return fmt.Sprintf("cancelled %s", uid), nil

	default:
		return "commands: /new <VEVENT...>, /cancel <uid>", nil
	}
}
