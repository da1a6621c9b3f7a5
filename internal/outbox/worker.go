// Package outbox runs Outbox (§4.6): the at-least-once delivery loop that
// leases pending rows written inside the same transaction as the business
// change that caused them, and dispatches each to a notify.Adapter.
package outbox

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/kirilledition/televent/internal/config"
	"github.com/kirilledition/televent/internal/dom"
	"github.com/kirilledition/televent/internal/notify"
	"github.com/kirilledition/televent/internal/store"
)

const (
	messageTypeTelegramNotification = "telegram_notification"
	messageTypeCalendarInvite       = "calendar_invite"
)

// Worker is the outbox poll loop. Grounded on the teacher's
// CleanupService (internal/dav/caldav/cleanup.go): a time.Ticker driving a
// cancellable loop, generalized from a single scheduled GC sweep to two
// independent tickers — one leasing pending work, one reclaiming stale
// `processing` rows left behind by a crashed worker (§5's reclaim pass).
type Worker struct {
	store   store.Store
	adapter notify.Adapter
	cfg     config.OutboxConfig
	logger  zerolog.Logger
}

func NewWorker(s store.Store, adapter notify.Adapter, cfg config.OutboxConfig, logger zerolog.Logger) *Worker {
	return &Worker{store: s, adapter: adapter, cfg: cfg, logger: logger}
}

// Run blocks until ctx is cancelled. Multiple Workers (even across
// processes) may call Run concurrently against the same Store: correctness
// comes from LeaseOutbox's SKIP LOCKED semantics, not from any
// coordination here (§5).
func (w *Worker) Run(ctx context.Context) {
	pollTicker := time.NewTicker(w.cfg.PollInterval)
	defer pollTicker.Stop()
	reclaimTicker := time.NewTicker(w.cfg.LeaseTimeout)
	defer reclaimTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-pollTicker.C:
			w.poll(ctx)
		case <-reclaimTicker.C:
			if err := w.store.ReclaimStaleOutbox(ctx, w.cfg.LeaseTimeout); err != nil {
				w.logger.Error().Err(err).Msg("outbox: reclaim pass failed")
			}
		}
	}
}

func (w *Worker) poll(ctx context.Context) {
	messages, err := w.store.LeaseOutbox(ctx, w.cfg.BatchSize)
	if err != nil {
		w.logger.Error().Err(err).Msg("outbox: lease failed")
		return
	}
	for _, msg := range messages {
		w.process(ctx, msg)
	}
}

func (w *Worker) process(ctx context.Context, msg store.OutboxMessage) {
	err := w.dispatch(ctx, msg)
	if err == nil {
		if cerr := w.store.CompleteOutbox(ctx, msg.ID); cerr != nil {
			w.logger.Error().Err(cerr).Str("outbox_id", msg.ID.String()).Msg("outbox: failed to mark completed")
		}
		return
	}

	if dom.KindOf(err) != dom.Transient {
		w.logger.Warn().Err(err).Str("outbox_id", msg.ID.String()).Msg("outbox: non-retryable failure")
		if ferr := w.store.FailOutbox(ctx, msg.ID, err.Error()); ferr != nil {
			w.logger.Error().Err(ferr).Str("outbox_id", msg.ID.String()).Msg("outbox: failed to mark failed")
		}
		return
	}

	if msg.RetryCount+1 >= w.cfg.MaxRetries {
		w.logger.Warn().Err(err).Str("outbox_id", msg.ID.String()).Msg("outbox: retries exhausted")
		if ferr := w.store.FailOutbox(ctx, msg.ID, err.Error()); ferr != nil {
			w.logger.Error().Err(ferr).Str("outbox_id", msg.ID.String()).Msg("outbox: failed to mark failed")
		}
		return
	}

	backoff := backoffFor(msg.RetryCount + 1)
	w.logger.Info().Err(err).Str("outbox_id", msg.ID.String()).Dur("backoff", backoff).Msg("outbox: retrying")
	if rerr := w.store.RetryOutbox(ctx, msg.ID, backoff); rerr != nil {
		w.logger.Error().Err(rerr).Str("outbox_id", msg.ID.String()).Msg("outbox: failed to reschedule retry")
	}
}

// backoffFor is the exponential backoff §4.6 specifies: base 2 in
// minutes (1, 2, 4, 8, 16, ...).
func backoffFor(retryCount int) time.Duration {
	return time.Duration(1<<uint(retryCount-1)) * time.Minute
}

func (w *Worker) dispatch(ctx context.Context, msg store.OutboxMessage) error {
	switch msg.MessageType {
	case messageTypeTelegramNotification:
		return w.dispatchTelegramNotification(ctx, msg.Payload)
	case messageTypeCalendarInvite:
		return w.dispatchCalendarInvite(ctx, msg.Payload)
	default:
		// §4.6: "other types: adapter-defined." No adapter in this build
		// recognizes any other message_type, so it is a permanent,
		// non-retryable failure rather than a silent drop.
		return dom.New(dom.Invalid, fmt.Sprintf("unrecognized outbox message_type %q", msg.MessageType))
	}
}

type telegramNotificationPayload struct {
	TelegramID int64  `json:"telegram_id"`
	Text       string `json:"text"`
}

func (w *Worker) dispatchTelegramNotification(ctx context.Context, payload []byte) error {
	var p telegramNotificationPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return dom.Wrap(dom.Invalid, "malformed telegram_notification payload", err)
	}
	if err := w.adapter.SendTelegram(ctx, p.TelegramID, notify.Invite{Summary: p.Text}); err != nil {
		return dom.Wrap(dom.KindOf(err), "send telegram notification", err)
	}
	return nil
}

// calendarInvitePayload mirrors internal/caldav's invitePayload wire shape;
// the two packages share a JSON contract, not a Go type, since the codec
// and the dispatcher have no other reason to depend on each other.
type calendarInvitePayload struct {
	UID        string     `json:"uid"`
	Summary    string     `json:"summary"`
	Start      *time.Time `json:"start,omitempty"`
	End        *time.Time `json:"end,omitempty"`
	Recipients []string   `json:"recipients"`
	Cancelled  bool       `json:"cancelled"`
}

func (w *Worker) dispatchCalendarInvite(ctx context.Context, payload []byte) error {
	var p calendarInvitePayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return dom.Wrap(dom.Invalid, "malformed calendar_invite payload", err)
	}

	inv := notify.Invite{UID: p.UID, Summary: p.Summary, StartText: formatStart(p.Start), Cancelled: p.Cancelled}

	// A single outbox row fans out to every recipient; the worst
	// per-recipient failure kind determines the row's outcome, since the
	// outbox has no per-recipient retry state of its own.
	var worst error
	for _, addr := range p.Recipients {
		var err error
		if telegramID, ok := parseInternalAddress(addr); ok {
			err = w.adapter.SendTelegram(ctx, telegramID, inv)
		} else {
			err = w.adapter.SendEmail(ctx, addr, inv)
		}
		if err != nil {
			if worst == nil || dom.KindOf(err) == dom.Transient {
				worst = err
			}
		}
	}
	if worst != nil {
		if dom.KindOf(worst) == dom.Transient {
			return dom.Wrap(dom.Transient, "deliver calendar invite", worst)
		}
		return dom.Wrap(dom.Invalid, "deliver calendar invite", worst)
	}
	return nil
}

const internalEmailSuffix = "@televent.internal"
const internalEmailPrefix = "tg_"

// parseInternalAddress mirrors internal/caldav's internalAttendeeTelegramID
// (§6's tg_<telegram_id>@televent.internal form); duplicated rather than
// imported since the two packages have no other reason to depend on each
// other and the parse is three lines.
func parseInternalAddress(addr string) (int64, bool) {
	if !strings.HasSuffix(addr, internalEmailSuffix) {
		return 0, false
	}
	local := strings.TrimSuffix(addr, internalEmailSuffix)
	if !strings.HasPrefix(local, internalEmailPrefix) {
		return 0, false
	}
	n, err := strconv.ParseInt(strings.TrimPrefix(local, internalEmailPrefix), 10, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}

func formatStart(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.UTC().Format(time.RFC1123)
}
