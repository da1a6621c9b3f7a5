// Package postgres is Televent's Store implementation atop pgx/v5's
// connection pool, generalized from the teacher's calendar-object schema
// to Televent's user/event/attendee/device/outbox rows. The RecordChange
// pattern (lock the owning row, bump its sequence column, write a change
// record, all in one transaction) carries over unchanged as the backbone
// of UpsertEvent and DeleteEvent's sync_token bump.
package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/kirilledition/televent/internal/dom"
	"github.com/kirilledition/televent/internal/etag"
	"github.com/kirilledition/televent/internal/ids"
	"github.com/kirilledition/televent/internal/store"
)

const uniqueViolation = "23505"

type Store struct {
	pool   *pgxpool.Pool
	logger zerolog.Logger
}

func New(ctx context.Context, dsn string, logger zerolog.Logger) (*Store, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, dom.Wrap(dom.Transient, "connect to database", err)
	}
	return &Store{pool: pool, logger: logger}, nil
}

func (s *Store) Close() { s.pool.Close() }

func (s *Store) GetUserByID(ctx context.Context, id ids.UserID) (*store.User, error) {
	row := s.pool.QueryRow(ctx, `
		select telegram_id, coalesce(telegram_username, ''), timezone, calendar_name,
		       calendar_color, sync_token, created_at, updated_at
		from users where telegram_id = $1`, int64(id))
	return scanUser(row)
}

func (s *Store) GetUserByUsername(ctx context.Context, username string) (*store.User, error) {
	row := s.pool.QueryRow(ctx, `
		select telegram_id, coalesce(telegram_username, ''), timezone, calendar_name,
		       calendar_color, sync_token, created_at, updated_at
		from users where lower(telegram_username) = lower($1)`, username)
	return scanUser(row)
}

func scanUser(row pgx.Row) (*store.User, error) {
	var u store.User
	var id int64
	if err := row.Scan(&id, &u.TelegramUsername, &u.Timezone, &u.CalendarName,
		&u.CalendarColor, &u.SyncToken, &u.CreatedAt, &u.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, dom.New(dom.NotFound, "user not found")
		}
		return nil, dom.Wrap(dom.Transient, "query user", err)
	}
	u.TelegramID = ids.UserID(id)
	return &u, nil
}

func (s *Store) GetEvent(ctx context.Context, userID ids.UserID, uid string) (*store.Event, error) {
	row := s.pool.QueryRow(ctx, eventSelect+` where user_id = $1 and uid = $2`, int64(userID), uid)
	ev, err := scanEvent(row)
	if err != nil {
		return nil, err
	}
	if err := s.loadAttendees(ctx, ev); err != nil {
		return nil, err
	}
	return ev, nil
}

func (s *Store) ListEventsInRange(ctx context.Context, userID ids.UserID, start, end *time.Time) ([]store.Event, error) {
	q := eventSelect + ` where user_id = $1`
	args := []any{int64(userID)}
	if start != nil && end != nil {
		q += ` and (
			(start_at is not null and end_at >= $2 and start_at < $3)
			or (start_date is not null and start_date < $3::date and end_date >= $2::date)
		)`
		args = append(args, *start, *end)
	}
	q += ` order by coalesce(start_at, start_date::timestamptz) asc`

	rows, err := s.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, dom.Wrap(dom.Transient, "query events in range", err)
	}
	defer rows.Close()

	var out []store.Event
	for rows.Next() {
		ev, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *ev)
	}
	if err := rows.Err(); err != nil {
		return nil, dom.Wrap(dom.Transient, "query events in range", err)
	}
	for i := range out {
		if err := s.loadAttendees(ctx, &out[i]); err != nil {
			return nil, err
		}
	}
	return out, nil
}

const eventSelect = `
	select id, user_id, uid, summary, coalesce(description, ''), coalesce(location, ''),
	       start_at, end_at, start_date, end_date, is_all_day, status,
	       coalesce(rrule, ''), timezone, version, etag, created_at, updated_at
	from events`

// eventSelectByUpdatedToken additionally reports the sync_token value the
// event was last written at, so ListChangesSince can select exactly the
// rows changed after a given token without a separate change-log table.
const eventSelectByUpdatedToken = `
	select id, user_id, uid, summary, coalesce(description, ''), coalesce(location, ''),
	       start_at, end_at, start_date, end_date, is_all_day, status,
	       coalesce(rrule, ''), timezone, version, etag, created_at, updated_at, updated_token
	from events`

func scanEvent(row pgx.Row) (*store.Event, error) {
	var ev store.Event
	var userID int64
	var status string
	if err := row.Scan(&ev.ID, &userID, &ev.UID, &ev.Summary, &ev.Description, &ev.Location,
		&ev.Start, &ev.End, &ev.StartDate, &ev.EndDate, &ev.IsAllDay, &status,
		&ev.RRule, &ev.Timezone, &ev.Version, &ev.ETag, &ev.CreatedAt, &ev.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, dom.New(dom.NotFound, "event not found")
		}
		return nil, dom.Wrap(dom.Transient, "query event", err)
	}
	ev.UserID = ids.UserID(userID)
	ev.Status = store.EventStatus(status)
	return &ev, nil
}

func (s *Store) loadAttendees(ctx context.Context, ev *store.Event) error {
	rows, err := s.pool.Query(ctx, `
		select id, event_id, email, telegram_id, role, status
		from event_attendees where event_id = $1 order by role, email`, ev.ID)
	if err != nil {
		return dom.Wrap(dom.Transient, "query attendees", err)
	}
	defer rows.Close()
	for rows.Next() {
		var a store.EventAttendee
		var telegramID *int64
		var role, status string
		if err := rows.Scan(&a.ID, &a.EventID, &a.Email, &telegramID, &role, &status); err != nil {
			return dom.Wrap(dom.Transient, "scan attendee", err)
		}
		a.Role = store.AttendeeRole(role)
		a.Status = store.AttendeeStatus(status)
		if telegramID != nil {
			uid := ids.UserID(*telegramID)
			a.TelegramID = &uid
		}
		ev.Attendees = append(ev.Attendees, a)
	}
	return rows.Err()
}

// UpsertEvent is the transactional heart of the Store: it locks the
// owning user row, decides create-vs-update, computes the new ETag,
// bumps sync_token, writes the outbox row, and replaces the attendee set,
// all inside one transaction (§4.1, §5 ordering guarantees).
func (s *Store) UpsertEvent(ctx context.Context, userID ids.UserID, uid string, fields store.EventFields, ifMatch *string, outboxType string, outboxPayload []byte) (*store.UpsertResult, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, dom.Wrap(dom.Transient, "begin transaction", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	// Lock the user row for the duration of the bump; every event mutation
	// for this user serializes here.
	var syncToken int64
	if err := tx.QueryRow(ctx, `select sync_token from users where telegram_id = $1 for update`, int64(userID)).Scan(&syncToken); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, dom.New(dom.NotFound, "user not found")
		}
		return nil, dom.Wrap(dom.Transient, "lock user row", err)
	}

	newTag := etag.Compute(etag.Fields{
		UID: uid, Summary: fields.Summary, Description: fields.Description, Location: fields.Location,
		Start: fields.Start, End: fields.End, StartDate: fields.StartDate, EndDate: fields.EndDate,
		IsAllDay: fields.IsAllDay, Status: string(fields.Status), RRule: fields.RRule, Timezone: fields.Timezone,
	})

	var existingID string
	var existingTag string
	err = tx.QueryRow(ctx, `select id, etag from events where user_id = $1 and uid = $2`, int64(userID), uid).Scan(&existingID, &existingTag)
	created := errors.Is(err, pgx.ErrNoRows)
	if err != nil && !created {
		return nil, dom.Wrap(dom.Transient, "check existing event", err)
	}

	if !created && ifMatch != nil && etag.Unquote(*ifMatch) != existingTag {
		return nil, dom.New(dom.PreconditionFailed, "etag mismatch")
	}

	newSyncToken := syncToken + 1
	if _, err := tx.Exec(ctx, `update users set sync_token = $1, updated_at = now() where telegram_id = $2`, newSyncToken, int64(userID)); err != nil {
		return nil, dom.Wrap(dom.Transient, "bump sync token", err)
	}

	var eventID string
	var version int64
	var createdAt, updatedAt time.Time
	if created {
		eventID = uuid.NewString()
		version = 1
		err = tx.QueryRow(ctx, `
			insert into events(id, user_id, uid, summary, description, location, start_at, end_at,
			                    start_date, end_date, is_all_day, status, rrule, timezone, version, etag,
			                    updated_token, created_at, updated_at)
			values ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, now(), now())
			returning created_at, updated_at
		`, eventID, int64(userID), uid, fields.Summary, fields.Description, fields.Location,
			fields.Start, fields.End, fields.StartDate, fields.EndDate, fields.IsAllDay,
			string(fields.Status), fields.RRule, fields.Timezone, version, newTag, newSyncToken).Scan(&createdAt, &updatedAt)
		if err != nil {
			var pgErr *pgconn.PgError
			if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
				return nil, dom.Wrap(dom.Conflict, "event uid already exists", err)
			}
			return nil, dom.Wrap(dom.Transient, "insert event", err)
		}
	} else {
		eventID = existingID
		err = tx.QueryRow(ctx, `
			update events set
				summary = $1, description = $2, location = $3, start_at = $4, end_at = $5,
				start_date = $6, end_date = $7, is_all_day = $8, status = $9, rrule = $10,
				timezone = $11, version = version + 1, etag = $12, updated_token = $13, updated_at = now()
			where id = $14
			returning version, created_at, updated_at
		`, fields.Summary, fields.Description, fields.Location, fields.Start, fields.End,
			fields.StartDate, fields.EndDate, fields.IsAllDay, string(fields.Status), fields.RRule,
			fields.Timezone, newTag, newSyncToken, eventID).Scan(&version, &createdAt, &updatedAt)
		if err != nil {
			return nil, dom.Wrap(dom.Internal, "update event returned no row", err)
		}
		if _, err := tx.Exec(ctx, `delete from event_attendees where event_id = $1`, eventID); err != nil {
			return nil, dom.Wrap(dom.Transient, "clear attendees", err)
		}
	}

	for _, a := range fields.Attendees {
		var tgID *int64
		if a.TelegramID != nil {
			v := int64(*a.TelegramID)
			tgID = &v
		}
		if _, err := tx.Exec(ctx, `
			insert into event_attendees(id, event_id, email, telegram_id, role, status)
			values ($1, $2, $3, $4, $5, $6)
		`, uuid.NewString(), eventID, a.Email, tgID, string(a.Role), string(a.Status)); err != nil {
			return nil, dom.Wrap(dom.Invalid, "insert attendee", err)
		}
	}

	if err := insertOutbox(ctx, tx, outboxType, outboxPayload); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, dom.Wrap(dom.Transient, "commit upsert", err)
	}

	ev := store.Event{
		ID: eventID, UserID: userID, UID: uid, Summary: fields.Summary, Description: fields.Description,
		Location: fields.Location, Start: fields.Start, End: fields.End, StartDate: fields.StartDate,
		EndDate: fields.EndDate, IsAllDay: fields.IsAllDay, Status: fields.Status, RRule: fields.RRule,
		Timezone: fields.Timezone, Version: version, ETag: newTag, CreatedAt: createdAt, UpdatedAt: updatedAt,
		Attendees: fields.Attendees,
	}
	return &store.UpsertResult{Created: created, Event: ev, SyncToken: newSyncToken}, nil
}

func (s *Store) DeleteEvent(ctx context.Context, userID ids.UserID, uid string, ifMatch *string, outboxType string, outboxPayload []byte) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return dom.Wrap(dom.Transient, "begin transaction", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var syncToken int64
	if err := tx.QueryRow(ctx, `select sync_token from users where telegram_id = $1 for update`, int64(userID)).Scan(&syncToken); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return dom.New(dom.NotFound, "user not found")
		}
		return dom.Wrap(dom.Transient, "lock user row", err)
	}

	var existingTag string
	err = tx.QueryRow(ctx, `select etag from events where user_id = $1 and uid = $2`, int64(userID), uid).Scan(&existingTag)
	if errors.Is(err, pgx.ErrNoRows) {
		return dom.New(dom.NotFound, "event not found")
	}
	if err != nil {
		return dom.Wrap(dom.Transient, "check existing event", err)
	}
	if ifMatch != nil && etag.Unquote(*ifMatch) != existingTag {
		return dom.New(dom.PreconditionFailed, "etag mismatch")
	}

	newSyncToken := syncToken + 1
	if _, err := tx.Exec(ctx, `update users set sync_token = $1, updated_at = now() where telegram_id = $2`, newSyncToken, int64(userID)); err != nil {
		return dom.Wrap(dom.Transient, "bump sync token", err)
	}

	if _, err := tx.Exec(ctx, `delete from events where user_id = $1 and uid = $2`, int64(userID), uid); err != nil {
		return dom.Wrap(dom.Transient, "delete event", err)
	}

	if _, err := tx.Exec(ctx, `
		insert into deleted_event_tombstones(user_id, uid, deleted_at, deletion_token)
		values ($1, $2, now(), $3)
		on conflict (user_id, uid) do update set deleted_at = excluded.deleted_at, deletion_token = excluded.deletion_token
	`, int64(userID), uid, newSyncToken); err != nil {
		return dom.Wrap(dom.Transient, "write tombstone", err)
	}

	if err := insertOutbox(ctx, tx, outboxType, outboxPayload); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return dom.Wrap(dom.Transient, "commit delete", err)
	}
	return nil
}

func insertOutbox(ctx context.Context, tx pgx.Tx, messageType string, payload []byte) error {
	if messageType == "" {
		return nil
	}
	_, err := tx.Exec(ctx, `
		insert into outbox_messages(id, message_type, payload, status, retry_count, scheduled_at, created_at)
		values ($1, $2, $3, 'pending', 0, now(), now())
	`, uuid.NewString(), messageType, payload)
	if err != nil {
		return dom.Wrap(dom.Transient, "insert outbox row", err)
	}
	return nil
}

func (s *Store) ListChangesSince(ctx context.Context, userID ids.UserID, sinceToken int64) ([]store.Change, int64, error) {
	var currentToken int64
	if err := s.pool.QueryRow(ctx, `select sync_token from users where telegram_id = $1`, int64(userID)).Scan(&currentToken); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, 0, dom.New(dom.NotFound, "user not found")
		}
		return nil, 0, dom.Wrap(dom.Transient, "query sync token", err)
	}

	var out []store.Change

	evRows, err := s.pool.Query(ctx, eventSelectByUpdatedToken+` where user_id = $1 and updated_token > $2 order by updated_token asc`, int64(userID), sinceToken)
	if err != nil {
		return nil, 0, dom.Wrap(dom.Transient, "query changed events", err)
	}
	defer evRows.Close()
	for evRows.Next() {
		var ev store.Event
		var uid int64
		var status string
		var updatedToken int64
		if err := evRows.Scan(&ev.ID, &uid, &ev.UID, &ev.Summary, &ev.Description, &ev.Location,
			&ev.Start, &ev.End, &ev.StartDate, &ev.EndDate, &ev.IsAllDay, &status,
			&ev.RRule, &ev.Timezone, &ev.Version, &ev.ETag, &ev.CreatedAt, &ev.UpdatedAt, &updatedToken); err != nil {
			return nil, 0, dom.Wrap(dom.Transient, "scan changed event", err)
		}
		ev.UserID = ids.UserID(uid)
		ev.Status = store.EventStatus(status)
		evCopy := ev
		if err := s.loadAttendees(ctx, &evCopy); err != nil {
			return nil, 0, err
		}
		out = append(out, store.Change{UID: evCopy.UID, Deleted: false, Event: &evCopy})
	}
	if err := evRows.Err(); err != nil {
		return nil, 0, dom.Wrap(dom.Transient, "iterate changed events", err)
	}

	tombRows, err := s.pool.Query(ctx, `
		select uid from deleted_event_tombstones where user_id = $1 and deletion_token > $2
	`, int64(userID), sinceToken)
	if err != nil {
		return nil, 0, dom.Wrap(dom.Transient, "query tombstones", err)
	}
	defer tombRows.Close()
	for tombRows.Next() {
		var uid string
		if err := tombRows.Scan(&uid); err != nil {
			return nil, 0, dom.Wrap(dom.Transient, "scan tombstone", err)
		}
		out = append(out, store.Change{UID: uid, Deleted: true})
	}

	return out, currentToken, nil
}

func (s *Store) LeaseOutbox(ctx context.Context, n int) ([]store.OutboxMessage, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, dom.Wrap(dom.Transient, "begin lease transaction", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	rows, err := tx.Query(ctx, `
		select id, message_type, payload, status, retry_count, scheduled_at, processed_at,
		       coalesce(error_message, ''), created_at
		from outbox_messages
		where status = 'pending' and scheduled_at <= now()
		order by scheduled_at asc
		limit $1
		for update skip locked
	`, n)
	if err != nil {
		return nil, dom.Wrap(dom.Transient, "query leasable outbox rows", err)
	}
	var claimed []store.OutboxMessage
	var claimedIDs []string
	for rows.Next() {
		var m store.OutboxMessage
		var id, status string
		if err := rows.Scan(&id, &m.MessageType, &m.Payload, &status, &m.RetryCount,
			&m.ScheduledAt, &m.ProcessedAt, &m.ErrorMessage, &m.CreatedAt); err != nil {
			rows.Close()
			return nil, dom.Wrap(dom.Transient, "scan outbox row", err)
		}
		m.ID = ids.OutboxID(id)
		m.Status = store.OutboxStatus(status)
		claimed = append(claimed, m)
		claimedIDs = append(claimedIDs, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, dom.Wrap(dom.Transient, "iterate outbox rows", err)
	}

	if len(claimedIDs) > 0 {
		if _, err := tx.Exec(ctx, `update outbox_messages set status = 'processing' where id = any($1)`, claimedIDs); err != nil {
			return nil, dom.Wrap(dom.Transient, "mark outbox rows processing", err)
		}
		for i := range claimed {
			claimed[i].Status = store.OutboxProcessing
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, dom.Wrap(dom.Transient, "commit lease", err)
	}
	return claimed, nil
}

func (s *Store) CompleteOutbox(ctx context.Context, id ids.OutboxID) error {
	_, err := s.pool.Exec(ctx, `
		update outbox_messages set status = 'completed', processed_at = now() where id = $1
	`, string(id))
	if err != nil {
		return dom.Wrap(dom.Transient, "complete outbox row", err)
	}
	return nil
}

func (s *Store) RetryOutbox(ctx context.Context, id ids.OutboxID, backoff time.Duration) error {
	_, err := s.pool.Exec(ctx, `
		update outbox_messages
		set status = 'pending', retry_count = retry_count + 1, scheduled_at = now() + $1
		where id = $2
	`, backoff, string(id))
	if err != nil {
		return dom.Wrap(dom.Transient, "reschedule outbox row", err)
	}
	return nil
}

func (s *Store) FailOutbox(ctx context.Context, id ids.OutboxID, reason string) error {
	_, err := s.pool.Exec(ctx, `
		update outbox_messages set status = 'failed', error_message = $1, processed_at = now() where id = $2
	`, reason, string(id))
	if err != nil {
		return dom.Wrap(dom.Transient, "fail outbox row", err)
	}
	return nil
}

func (s *Store) ReclaimStaleOutbox(ctx context.Context, olderThan time.Duration) error {
	_, err := s.pool.Exec(ctx, `
		update outbox_messages
		set status = 'pending'
		where status = 'processing' and scheduled_at <= now() - $1
	`, olderThan)
	if err != nil {
		return dom.Wrap(dom.Transient, "reclaim stale outbox rows", err)
	}
	return nil
}

func (s *Store) ListDevicePasswords(ctx context.Context, userID ids.UserID, limit int) ([]store.DevicePassword, error) {
	rows, err := s.pool.Query(ctx, `
		select id, user_id, device_name, password_hash, created_at, last_used_at
		from device_passwords
		where user_id = $1
		order by last_used_at desc nulls last, created_at desc
		limit $2
	`, int64(userID), limit)
	if err != nil {
		return nil, dom.Wrap(dom.Transient, "query device passwords", err)
	}
	defer rows.Close()
	var out []store.DevicePassword
	for rows.Next() {
		var d store.DevicePassword
		var id string
		var userID int64
		if err := rows.Scan(&id, &userID, &d.DeviceName, &d.PasswordHash, &d.CreatedAt, &d.LastUsedAt); err != nil {
			return nil, dom.Wrap(dom.Transient, "scan device password", err)
		}
		d.ID = ids.DevicePasswordID(id)
		d.UserID = ids.UserID(userID)
		out = append(out, d)
	}
	return out, rows.Err()
}

func (s *Store) CreateDevicePassword(ctx context.Context, userID ids.UserID, deviceName, passwordHash string) (*store.DevicePassword, error) {
	id := uuid.NewString()
	var createdAt time.Time
	err := s.pool.QueryRow(ctx, `
		insert into device_passwords(id, user_id, device_name, password_hash, created_at)
		values ($1, $2, $3, $4, now())
		returning created_at
	`, id, int64(userID), deviceName, passwordHash).Scan(&createdAt)
	if err != nil {
		return nil, dom.Wrap(dom.Transient, "insert device password", err)
	}
	return &store.DevicePassword{
		ID: ids.DevicePasswordID(id), UserID: userID, DeviceName: deviceName,
		PasswordHash: passwordHash, CreatedAt: createdAt,
	}, nil
}

func (s *Store) RevokeDevicePassword(ctx context.Context, userID ids.UserID, id ids.DevicePasswordID) error {
	tag, err := s.pool.Exec(ctx, `delete from device_passwords where id = $1 and user_id = $2`, string(id), int64(userID))
	if err != nil {
		return dom.Wrap(dom.Transient, "revoke device password", err)
	}
	if tag.RowsAffected() == 0 {
		return dom.New(dom.NotFound, "device password not found")
	}
	return nil
}

func (s *Store) TouchDevicePassword(ctx context.Context, id ids.DevicePasswordID) error {
	_, err := s.pool.Exec(ctx, `update device_passwords set last_used_at = now() where id = $1`, string(id))
	if err != nil {
		return dom.Wrap(dom.Transient, "touch device password", err)
	}
	return nil
}
