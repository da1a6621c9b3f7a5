package outbox

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kirilledition/televent/internal/config"
	"github.com/kirilledition/televent/internal/dom"
	"github.com/kirilledition/televent/internal/ids"
	"github.com/kirilledition/televent/internal/notify"
	"github.com/kirilledition/televent/internal/store"
)

// fakeStore records the terminal call (Complete/Retry/Fail) made for each
// outbox id; Worker.process never calls any other store.Store method.
type fakeStore struct {
	completed []ids.OutboxID
	retried   map[ids.OutboxID]time.Duration
	failed    map[ids.OutboxID]string
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		retried: make(map[ids.OutboxID]time.Duration),
		failed:  make(map[ids.OutboxID]string),
	}
}

func (f *fakeStore) Close() {}
func (f *fakeStore) GetUserByID(ctx context.Context, id ids.UserID) (*store.User, error) {
	panic("not implemented")
}
func (f *fakeStore) GetUserByUsername(ctx context.Context, username string) (*store.User, error) {
	panic("not implemented")
}
func (f *fakeStore) UpsertEvent(ctx context.Context, userID ids.UserID, uid string, fields store.EventFields, ifMatch *string, outboxType string, outboxPayload []byte) (*store.UpsertResult, error) {
	panic("not implemented")
}
func (f *fakeStore) DeleteEvent(ctx context.Context, userID ids.UserID, uid string, ifMatch *string, outboxType string, outboxPayload []byte) error {
	panic("not implemented")
}
func (f *fakeStore) GetEvent(ctx context.Context, userID ids.UserID, uid string) (*store.Event, error) {
	panic("not implemented")
}
func (f *fakeStore) ListEventsInRange(ctx context.Context, userID ids.UserID, start, end *time.Time) ([]store.Event, error) {
	panic("not implemented")
}
func (f *fakeStore) ListChangesSince(ctx context.Context, userID ids.UserID, sinceToken int64) ([]store.Change, int64, error) {
	panic("not implemented")
}
func (f *fakeStore) LeaseOutbox(ctx context.Context, n int) ([]store.OutboxMessage, error) {
	panic("not implemented")
}
func (f *fakeStore) CompleteOutbox(ctx context.Context, id ids.OutboxID) error {
	f.completed = append(f.completed, id)
	return nil
}
func (f *fakeStore) RetryOutbox(ctx context.Context, id ids.OutboxID, backoff time.Duration) error {
	f.retried[id] = backoff
	return nil
}
func (f *fakeStore) FailOutbox(ctx context.Context, id ids.OutboxID, reason string) error {
	f.failed[id] = reason
	return nil
}
func (f *fakeStore) ReclaimStaleOutbox(ctx context.Context, olderThan time.Duration) error {
	panic("not implemented")
}
func (f *fakeStore) ListDevicePasswords(ctx context.Context, userID ids.UserID, limit int) ([]store.DevicePassword, error) {
	panic("not implemented")
}
func (f *fakeStore) CreateDevicePassword(ctx context.Context, userID ids.UserID, deviceName, passwordHash string) (*store.DevicePassword, error) {
	panic("not implemented")
}
func (f *fakeStore) RevokeDevicePassword(ctx context.Context, userID ids.UserID, id ids.DevicePasswordID) error {
	panic("not implemented")
}
func (f *fakeStore) TouchDevicePassword(ctx context.Context, id ids.DevicePasswordID) error {
	panic("not implemented")
}

// fakeAdapter lets each test script the exact error (or nil) SendTelegram
// and SendEmail return, plus records every call made.
type fakeAdapter struct {
	telegramErr   error
	emailErr      error
	telegramCalls []int64
	emailCalls    []string
}

func (a *fakeAdapter) SendTelegram(ctx context.Context, telegramID int64, inv notify.Invite) error {
	a.telegramCalls = append(a.telegramCalls, telegramID)
	return a.telegramErr
}

func (a *fakeAdapter) SendEmail(ctx context.Context, address string, inv notify.Invite) error {
	a.emailCalls = append(a.emailCalls, address)
	return a.emailErr
}

func newTestWorker(s *fakeStore, a *fakeAdapter) *Worker {
	return NewWorker(s, a, config.OutboxConfig{MaxRetries: 5}, zerolog.Nop())
}

func telegramPayload(t *testing.T, telegramID int64, text string) []byte {
	t.Helper()
	b, err := json.Marshal(telegramNotificationPayload{TelegramID: telegramID, Text: text})
	require.NoError(t, err)
	return b
}

func TestProcessCompletesOnSuccess(t *testing.T) {
	fs := newFakeStore()
	adapter := &fakeAdapter{}
	w := newTestWorker(fs, adapter)

	msg := store.OutboxMessage{ID: "ob-1", MessageType: messageTypeTelegramNotification, Payload: telegramPayload(t, 42, "hi")}
	w.process(context.Background(), msg)

	assert.Contains(t, fs.completed, ids.OutboxID("ob-1"))
	assert.Empty(t, fs.retried)
	assert.Empty(t, fs.failed)
	assert.Equal(t, []int64{42}, adapter.telegramCalls)
}

func TestProcessFailsImmediatelyOnNonTransientError(t *testing.T) {
	fs := newFakeStore()
	adapter := &fakeAdapter{telegramErr: dom.New(dom.Invalid, "chat not found")}
	w := newTestWorker(fs, adapter)

	msg := store.OutboxMessage{ID: "ob-2", MessageType: messageTypeTelegramNotification, Payload: telegramPayload(t, 42, "hi"), RetryCount: 0}
	w.process(context.Background(), msg)

	assert.Contains(t, fs.failed, ids.OutboxID("ob-2"))
	assert.Empty(t, fs.retried)
	assert.Empty(t, fs.completed)
}

func TestProcessRetriesTransientErrorWithBackoff(t *testing.T) {
	fs := newFakeStore()
	adapter := &fakeAdapter{telegramErr: dom.New(dom.Transient, "telegram api timeout")}
	w := newTestWorker(fs, adapter)

	msg := store.OutboxMessage{ID: "ob-3", MessageType: messageTypeTelegramNotification, Payload: telegramPayload(t, 42, "hi"), RetryCount: 2}
	w.process(context.Background(), msg)

	require.Contains(t, fs.retried, ids.OutboxID("ob-3"))
	assert.Equal(t, backoffFor(3), fs.retried[ids.OutboxID("ob-3")])
	assert.Empty(t, fs.failed)
	assert.Empty(t, fs.completed)
}

func TestProcessFailsWhenRetriesExhausted(t *testing.T) {
	fs := newFakeStore()
	adapter := &fakeAdapter{telegramErr: dom.New(dom.Transient, "telegram api timeout")}
	w := newTestWorker(fs, adapter)

	msg := store.OutboxMessage{ID: "ob-4", MessageType: messageTypeTelegramNotification, Payload: telegramPayload(t, 42, "hi"), RetryCount: 4}
	w.process(context.Background(), msg)

	assert.Contains(t, fs.failed, ids.OutboxID("ob-4"))
	assert.Empty(t, fs.retried)
}

func TestBackoffForIsExponentialBase2Minutes(t *testing.T) {
	assert.Equal(t, 1*time.Minute, backoffFor(1))
	assert.Equal(t, 2*time.Minute, backoffFor(2))
	assert.Equal(t, 4*time.Minute, backoffFor(3))
	assert.Equal(t, 8*time.Minute, backoffFor(4))
	assert.Equal(t, 16*time.Minute, backoffFor(5))
}

func TestDispatchRejectsUnrecognizedMessageType(t *testing.T) {
	fs := newFakeStore()
	adapter := &fakeAdapter{}
	w := newTestWorker(fs, adapter)

	err := w.dispatch(context.Background(), store.OutboxMessage{ID: "ob-5", MessageType: "unknown_type"})
	require.Error(t, err)
	assert.Equal(t, dom.Invalid, dom.KindOf(err))
}

func TestDispatchTelegramNotificationRejectsMalformedPayload(t *testing.T) {
	fs := newFakeStore()
	adapter := &fakeAdapter{}
	w := newTestWorker(fs, adapter)

	err := w.dispatch(context.Background(), store.OutboxMessage{ID: "ob-6", MessageType: messageTypeTelegramNotification, Payload: []byte("not json")})
	require.Error(t, err)
	assert.Equal(t, dom.Invalid, dom.KindOf(err))
}

func calendarInvitePayloadJSON(t *testing.T, recipients []string) []byte {
	t.Helper()
	b, err := json.Marshal(calendarInvitePayload{UID: "ev-1@televent", Summary: "Design review", Recipients: recipients})
	require.NoError(t, err)
	return b
}

func TestDispatchCalendarInviteRoutesInternalAddressesToTelegram(t *testing.T) {
	fs := newFakeStore()
	adapter := &fakeAdapter{}
	w := newTestWorker(fs, adapter)

	payload := calendarInvitePayloadJSON(t, []string{"tg_777@televent.internal", "alice@example.com"})
	err := w.dispatch(context.Background(), store.OutboxMessage{ID: "ob-7", MessageType: messageTypeCalendarInvite, Payload: payload})

	require.NoError(t, err)
	assert.Equal(t, []int64{777}, adapter.telegramCalls)
	assert.Equal(t, []string{"alice@example.com"}, adapter.emailCalls)
}

func TestDispatchCalendarInviteAggregatesWorstFailureKindAsTransient(t *testing.T) {
	fs := newFakeStore()
	adapter := &fakeAdapter{
		telegramErr: dom.New(dom.Invalid, "unknown chat"),
		emailErr:    dom.New(dom.Transient, "smtp connection refused"),
	}
	w := newTestWorker(fs, adapter)

	payload := calendarInvitePayloadJSON(t, []string{"tg_777@televent.internal", "alice@example.com"})
	err := w.dispatch(context.Background(), store.OutboxMessage{ID: "ob-8", MessageType: messageTypeCalendarInvite, Payload: payload})

	require.Error(t, err)
	assert.Equal(t, dom.Transient, dom.KindOf(err))
}

func TestDispatchCalendarInviteReturnsInvalidWhenAllFailuresPermanent(t *testing.T) {
	fs := newFakeStore()
	adapter := &fakeAdapter{
		telegramErr: dom.New(dom.Invalid, "unknown chat"),
	}
	w := newTestWorker(fs, adapter)

	payload := calendarInvitePayloadJSON(t, []string{"tg_777@televent.internal"})
	err := w.dispatch(context.Background(), store.OutboxMessage{ID: "ob-9", MessageType: messageTypeCalendarInvite, Payload: payload})

	require.Error(t, err)
	assert.Equal(t, dom.Invalid, dom.KindOf(err))
}
