package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/vthunder/agenda/internal/types"
)

const eventColumns = `owner_id, id, title, start_at, end_at, all_day, location, description, alarm,
	external_ref, sync_key, status, created_at, updated_at`

func (s *Store) scanEvent(row rowScanner) (types.Event, error) {
	var (
		e                types.Event
		start            int64
		end              sql.NullInt64
		allDay           int
		status           string
		created, updated int64
	)
	err := row.Scan(&e.OwnerID, &e.ID, &e.Title, &start, &end, &allDay, &e.Location, &e.Description,
		&e.Alarm, &e.ExternalRef, &e.SyncKey, &status, &created, &updated)
	if err != nil {
		return e, err
	}
	e.Start = s.fromMillis(start)
	e.End = s.fromNullMillis(end)
	e.AllDay = allDay != 0
	e.Status = types.EventStatus(status)
	e.CreatedAt = s.fromMillis(created)
	e.UpdatedAt = s.fromMillis(updated)
	return e, nil
}

func (s *Store) collectEvents(rows *sql.Rows) ([]types.Event, error) {
	var out []types.Event
	for rows.Next() {
		e, err := s.scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// AddEvent stores a new event. Without an external ref it starts as Draft;
// an event imported from the remote calendar carries its ref and starts Synced.
func (s *Store) AddEvent(ctx context.Context, e *types.Event) error {
	if e.OwnerID == "" {
		return fmt.Errorf("event without owner")
	}
	now := s.now()
	if e.CreatedAt.IsZero() {
		e.CreatedAt = now
	}
	e.UpdatedAt = e.CreatedAt
	if e.SyncKey == "" {
		e.SyncKey = uuid.NewString()
	}
	e.Status = types.EventDraft
	if e.ExternalRef != "" {
		e.Status = types.EventSynced
	}

	return s.withTx(ctx, func(tx *sql.Tx) error {
		id, err := nextID(ctx, tx, e.OwnerID, "event")
		if err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx, `INSERT INTO events (`+eventColumns+`)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			e.OwnerID, id, e.Title, toMillis(e.Start), nullMillis(e.End), boolInt(e.AllDay), e.Location,
			e.Description, e.Alarm, e.ExternalRef, e.SyncKey, string(e.Status), toMillis(e.CreatedAt), toMillis(e.UpdatedAt))
		if err != nil {
			return fmt.Errorf("failed to insert event: %w", err)
		}
		e.ID = id
		return nil
	})
}

// GetEvent returns a live (not deleted) event
func (s *Store) GetEvent(ctx context.Context, owner string, id int64) (*types.Event, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+eventColumns+` FROM events
		WHERE owner_id = ? AND id = ? AND status != 'deleted'`, owner, id)
	e, err := s.scanEvent(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get event: %w", err)
	}
	return &e, nil
}

// ListEvents returns live events starting in [from, to), ordered by start then
// id. A zero to means no upper bound.
func (s *Store) ListEvents(ctx context.Context, owner string, from, to time.Time) ([]types.Event, error) {
	upper := int64(1<<63 - 1)
	if !to.IsZero() {
		upper = toMillis(to)
	}
	lower := int64(-1 << 63)
	if !from.IsZero() {
		lower = toMillis(from)
	}
	rows, err := s.db.QueryContext(ctx, `SELECT `+eventColumns+` FROM events
		WHERE owner_id = ? AND status != 'deleted' AND start_at >= ? AND start_at < ?
		ORDER BY start_at, id`, owner, lower, upper)
	if err != nil {
		return nil, fmt.Errorf("failed to list events: %w", err)
	}
	defer rows.Close()
	return s.collectEvents(rows)
}

// UpdateEvent writes the editable fields of e. A Synced event becomes
// Modified; Draft and Modified keep their status.
func (s *Store) UpdateEvent(ctx context.Context, e *types.Event) error {
	e.UpdatedAt = s.now()
	return s.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
			UPDATE events SET title = ?, start_at = ?, end_at = ?, all_day = ?, location = ?,
				description = ?, alarm = ?, updated_at = ?,
				status = CASE status WHEN 'synced' THEN 'modified' ELSE status END
			WHERE owner_id = ? AND id = ? AND status != 'deleted'`,
			e.Title, toMillis(e.Start), nullMillis(e.End), boolInt(e.AllDay), e.Location,
			e.Description, e.Alarm, toMillis(e.UpdatedAt), e.OwnerID, e.ID)
		if err != nil {
			return fmt.Errorf("failed to update event: %w", err)
		}
		if n, _ := res.RowsAffected(); n != 1 {
			return ErrNotFound
		}
		var status string
		if err := tx.QueryRowContext(ctx, `SELECT status FROM events WHERE owner_id = ? AND id = ?`, e.OwnerID, e.ID).Scan(&status); err != nil {
			return err
		}
		e.Status = types.EventStatus(status)
		return nil
	})
}

// DeleteEvent soft-deletes an event and clears its external ref. It returns
// the event as it was before deletion so the caller can remove the remote
// copy. Deleting an already deleted event reports changed=false.
func (s *Store) DeleteEvent(ctx context.Context, owner string, id int64) (prev *types.Event, changed bool, err error) {
	err = s.withTx(ctx, func(tx *sql.Tx) error {
		row := tx.QueryRowContext(ctx, `SELECT `+eventColumns+` FROM events WHERE owner_id = ? AND id = ?`, owner, id)
		e, err := s.scanEvent(row)
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("failed to get event: %w", err)
		}
		prev = &e
		if e.Status == types.EventDeleted {
			return nil
		}
		_, err = tx.ExecContext(ctx, `
			UPDATE events SET status = 'deleted', external_ref = '', updated_at = ?
			WHERE owner_id = ? AND id = ?`, toMillis(s.now()), owner, id)
		if err != nil {
			return fmt.Errorf("failed to delete event: %w", err)
		}
		changed = true
		return nil
	})
	return prev, changed, err
}

// MarkSynced records a successful push of the event version stamped at
// version. If the event was edited since, it keeps the ref but stays Modified.
// If it was deleted meanwhile, the ref becomes a tombstone and orphaned is true.
func (s *Store) MarkSynced(ctx context.Context, owner string, id int64, ref string, version time.Time) (orphaned bool, err error) {
	err = s.withTx(ctx, func(tx *sql.Tx) error {
		var status string
		var updated int64
		err := tx.QueryRowContext(ctx, `SELECT status, updated_at FROM events WHERE owner_id = ? AND id = ?`, owner, id).Scan(&status, &updated)
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
		if err != nil {
			return err
		}
		switch {
		case types.EventStatus(status) == types.EventDeleted:
			orphaned = true
			return insertTombstone(ctx, tx, owner, ref, s.now())
		case updated == toMillis(version):
			_, err = tx.ExecContext(ctx, `UPDATE events SET external_ref = ?, status = 'synced', sync_error = '' WHERE owner_id = ? AND id = ?`, ref, owner, id)
		default:
			_, err = tx.ExecContext(ctx, `UPDATE events SET external_ref = ?, status = 'modified', sync_error = '' WHERE owner_id = ? AND id = ?`, ref, owner, id)
		}
		return err
	})
	return orphaned, err
}

// MarkSyncFailed records the last push error. Status is left as Draft or
// Modified so the retry loop picks the event up again.
func (s *Store) MarkSyncFailed(ctx context.Context, owner string, id int64, errMsg string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE events SET sync_error = ? WHERE owner_id = ? AND id = ? AND status != 'deleted'`,
		errMsg, owner, id)
	if err != nil {
		return fmt.Errorf("failed to record sync error: %w", err)
	}
	return nil
}

// SyncError returns the last recorded push error for an event, empty if none
func (s *Store) SyncError(ctx context.Context, owner string, id int64) (string, error) {
	var msg string
	err := s.db.QueryRowContext(ctx, `SELECT sync_error FROM events WHERE owner_id = ? AND id = ?`, owner, id).Scan(&msg)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	return msg, err
}

// PendingSync returns events of every owner that are Draft or Modified
func (s *Store) PendingSync(ctx context.Context) ([]types.Event, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+eventColumns+` FROM events
		WHERE status IN ('draft', 'modified') ORDER BY updated_at, owner_id, id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list pending events: %w", err)
	}
	defer rows.Close()
	return s.collectEvents(rows)
}

// FindEventByRef returns the event holding ref (deleted or not), for imports
func (s *Store) FindEventByRef(ctx context.Context, owner, ref string) (*types.Event, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+eventColumns+` FROM events
		WHERE owner_id = ? AND (external_ref = ? OR sync_key = ?) LIMIT 1`, owner, ref, ref)
	e, err := s.scanEvent(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find event: %w", err)
	}
	return &e, nil
}

func insertTombstone(ctx context.Context, tx *sql.Tx, owner, ref string, at time.Time) error {
	if ref == "" {
		return nil
	}
	_, err := tx.ExecContext(ctx, `INSERT OR IGNORE INTO tombstones (owner_id, external_ref, created_at) VALUES (?, ?, ?)`,
		owner, ref, toMillis(at))
	if err != nil {
		return fmt.Errorf("failed to insert tombstone: %w", err)
	}
	return nil
}

// AddTombstone remembers a remote delete that still has to happen
func (s *Store) AddTombstone(ctx context.Context, owner, ref string) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		return insertTombstone(ctx, tx, owner, ref, s.now())
	})
}

// Tombstones lists outstanding remote deletes, oldest first
func (s *Store) Tombstones(ctx context.Context) ([]types.Tombstone, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT owner_id, external_ref, created_at FROM tombstones ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("failed to list tombstones: %w", err)
	}
	defer rows.Close()
	var out []types.Tombstone
	for rows.Next() {
		var t types.Tombstone
		var created int64
		if err := rows.Scan(&t.OwnerID, &t.ExternalRef, &created); err != nil {
			return nil, err
		}
		t.CreatedAt = s.fromMillis(created)
		out = append(out, t)
	}
	return out, rows.Err()
}

// RemoveTombstone drops a tombstone once the remote delete succeeded
func (s *Store) RemoveTombstone(ctx context.Context, owner, ref string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM tombstones WHERE owner_id = ? AND external_ref = ?`, owner, ref)
	if err != nil {
		return fmt.Errorf("failed to remove tombstone: %w", err)
	}
	return nil
}
