package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/vthunder/agenda/internal/types"
)

func insertDelivery(ctx context.Context, tx *sql.Tx, d *types.Delivery) error {
	d.Status = types.DeliveryPending
	res, err := tx.ExecContext(ctx, `
		INSERT INTO deliveries (owner_id, channel_id, kind, content, filename, attachment, reminder_id, status, attempts, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, 0, ?)`,
		d.OwnerID, d.ChannelID, string(d.Kind), d.Content, d.Filename, d.Attachment, d.ReminderID,
		string(d.Status), toMillis(d.CreatedAt))
	if err != nil {
		return fmt.Errorf("failed to queue delivery: %w", err)
	}
	d.ID, _ = res.LastInsertId()
	return nil
}

// Enqueue adds an outbound message to the outbox
func (s *Store) Enqueue(ctx context.Context, d *types.Delivery) error {
	if d.CreatedAt.IsZero() {
		d.CreatedAt = s.now()
	}
	return s.withTx(ctx, func(tx *sql.Tx) error {
		return insertDelivery(ctx, tx, d)
	})
}

// PendingDeliveries returns up to limit pending deliveries, oldest first
func (s *Store) PendingDeliveries(ctx context.Context, limit int) ([]types.Delivery, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, owner_id, channel_id, kind, content, filename, attachment, reminder_id, status, attempts, created_at
		FROM deliveries WHERE status = 'pending' ORDER BY id LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list deliveries: %w", err)
	}
	defer rows.Close()

	var out []types.Delivery
	for rows.Next() {
		var (
			d            types.Delivery
			kind, status string
			created      int64
		)
		if err := rows.Scan(&d.ID, &d.OwnerID, &d.ChannelID, &kind, &d.Content, &d.Filename, &d.Attachment,
			&d.ReminderID, &status, &d.Attempts, &created); err != nil {
			return nil, fmt.Errorf("failed to scan delivery: %w", err)
		}
		d.Kind = types.DeliveryKind(kind)
		d.Status = types.DeliveryStatus(status)
		d.CreatedAt = s.fromMillis(created)
		out = append(out, d)
	}
	return out, rows.Err()
}

// MarkDelivered marks a delivery as sent
func (s *Store) MarkDelivered(ctx context.Context, id int64, at time.Time) error {
	_, err := s.db.ExecContext(ctx, `UPDATE deliveries SET status = 'sent', sent_at = ?, attempts = attempts + 1 WHERE id = ?`,
		toMillis(at), id)
	if err != nil {
		return fmt.Errorf("failed to mark delivery sent: %w", err)
	}
	return nil
}

// MarkDeliveryFailed records a failed attempt; permanent failures leave the outbox
func (s *Store) MarkDeliveryFailed(ctx context.Context, id int64, errMsg string, permanent bool) error {
	status := string(types.DeliveryPending)
	if permanent {
		status = string(types.DeliveryFailed)
	}
	_, err := s.db.ExecContext(ctx, `UPDATE deliveries SET status = ?, last_error = ?, attempts = attempts + 1 WHERE id = ?`,
		status, errMsg, id)
	if err != nil {
		return fmt.Errorf("failed to mark delivery failed: %w", err)
	}
	return nil
}

// CleanupDeliveries removes sent and failed deliveries created before cutoff
func (s *Store) CleanupDeliveries(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM deliveries WHERE status != 'pending' AND created_at < ?`, toMillis(cutoff))
	if err != nil {
		return 0, fmt.Errorf("failed to clean deliveries: %w", err)
	}
	return res.RowsAffected()
}
