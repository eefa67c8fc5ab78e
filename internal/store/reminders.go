package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/vthunder/agenda/internal/types"
)

const reminderColumns = `owner_id, id, channel_id, text, due_at, status, created_at, fired_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func (s *Store) scanReminder(row rowScanner) (types.Reminder, error) {
	var (
		r       types.Reminder
		due     int64
		created int64
		fired   sql.NullInt64
		status  string
	)
	if err := row.Scan(&r.OwnerID, &r.ID, &r.ChannelID, &r.Text, &due, &status, &created, &fired); err != nil {
		return r, err
	}
	r.DueAt = s.fromMillis(due)
	r.CreatedAt = s.fromMillis(created)
	r.FiredAt = s.fromNullMillis(fired)
	r.Status = types.ReminderStatus(status)
	return r, nil
}

// AddReminder stores a new Scheduled reminder and fills in its id
func (s *Store) AddReminder(ctx context.Context, r *types.Reminder) error {
	if r.OwnerID == "" {
		return fmt.Errorf("reminder without owner")
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = s.now()
	}
	if !r.DueAt.After(r.CreatedAt) {
		return ErrPastDue
	}
	r.Status = types.ReminderScheduled
	r.FiredAt = nil

	return s.withTx(ctx, func(tx *sql.Tx) error {
		id, err := nextID(ctx, tx, r.OwnerID, "reminder")
		if err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO reminders (`+reminderColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, NULL)`,
			r.OwnerID, id, r.ChannelID, r.Text, toMillis(r.DueAt), string(r.Status), toMillis(r.CreatedAt))
		if err != nil {
			return fmt.Errorf("failed to insert reminder: %w", err)
		}
		r.ID = id
		return nil
	})
}

// GetReminder returns a reminder in any status
func (s *Store) GetReminder(ctx context.Context, owner string, id int64) (*types.Reminder, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+reminderColumns+` FROM reminders WHERE owner_id = ? AND id = ?`, owner, id)
	r, err := s.scanReminder(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get reminder: %w", err)
	}
	return &r, nil
}

// ListReminders returns the owner's Scheduled reminders (and Fired ones when
// includeFired is set) ordered by due time, ties by id
func (s *Store) ListReminders(ctx context.Context, owner string, includeFired bool) ([]types.Reminder, error) {
	q := `SELECT ` + reminderColumns + ` FROM reminders WHERE owner_id = ? AND status = 'scheduled' ORDER BY due_at, id`
	if includeFired {
		q = `SELECT ` + reminderColumns + ` FROM reminders WHERE owner_id = ? AND status != 'deleted' ORDER BY due_at, id`
	}
	rows, err := s.db.QueryContext(ctx, q, owner)
	if err != nil {
		return nil, fmt.Errorf("failed to list reminders: %w", err)
	}
	defer rows.Close()
	return s.collectReminders(rows)
}

func (s *Store) collectReminders(rows *sql.Rows) ([]types.Reminder, error) {
	var out []types.Reminder
	for rows.Next() {
		r, err := s.scanReminder(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan reminder: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// DeleteReminder soft-deletes a Scheduled or Fired reminder. Deleting an
// already deleted reminder reports changed=false and no error.
func (s *Store) DeleteReminder(ctx context.Context, owner string, id int64) (changed bool, err error) {
	err = s.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
			UPDATE reminders SET status = 'deleted'
			WHERE owner_id = ? AND id = ? AND status != 'deleted'`, owner, id)
		if err != nil {
			return fmt.Errorf("failed to delete reminder: %w", err)
		}
		n, _ := res.RowsAffected()
		if n == 1 {
			changed = true
			return nil
		}
		var exists int
		if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM reminders WHERE owner_id = ? AND id = ?`, owner, id).Scan(&exists); err != nil {
			return err
		}
		if exists == 0 {
			return ErrNotFound
		}
		return nil
	})
	return changed, err
}

// DueReminders returns a snapshot of every Scheduled reminder due at or
// before now, across all owners, oldest first
func (s *Store) DueReminders(ctx context.Context, now time.Time) ([]types.Reminder, error) {
	var out []types.Reminder
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		rows, err := tx.QueryContext(ctx, `
			SELECT `+reminderColumns+` FROM reminders
			WHERE status = 'scheduled' AND due_at <= ?
			ORDER BY due_at, owner_id, id`, toMillis(now))
		if err != nil {
			return fmt.Errorf("failed to query due reminders: %w", err)
		}
		defer rows.Close()
		out, err = s.collectReminders(rows)
		return err
	})
	return out, err
}

// FireReminder moves a reminder from Scheduled to Fired and queues its
// delivery in the same transaction. It reports false when the reminder was no
// longer Scheduled (deleted or already fired), in which case nothing is queued.
func (s *Store) FireReminder(ctx context.Context, r types.Reminder, firedAt time.Time, content string) (bool, error) {
	fired := false
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
			UPDATE reminders SET status = 'fired', fired_at = ?
			WHERE owner_id = ? AND id = ? AND status = 'scheduled'`,
			toMillis(firedAt), r.OwnerID, r.ID)
		if err != nil {
			return fmt.Errorf("failed to fire reminder: %w", err)
		}
		n, _ := res.RowsAffected()
		if n != 1 {
			return nil
		}
		d := &types.Delivery{
			OwnerID:    r.OwnerID,
			ChannelID:  r.ChannelID,
			Kind:       types.DeliveryReminder,
			Content:    content,
			ReminderID: r.ID,
			CreatedAt:  firedAt,
		}
		if err := insertDelivery(ctx, tx, d); err != nil {
			return err
		}
		fired = true
		return nil
	})
	return fired, err
}
