package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/eventure/ticketing/internal/model"
)

// NotificationRepo provides data access to the durable notification
// log.  Rows are inserted by the dispatcher before any live delivery is
// attempted and are the source of truth for ordering and replay.
type NotificationRepo struct {
	db *sql.DB
}

// NewNotificationRepo returns a new NotificationRepo bound to the provided database.
func NewNotificationRepo(db *sql.DB) *NotificationRepo { return &NotificationRepo{db: db} }

// Create inserts a notification row.  The structured payload is stored
// as JSON text.
func (r *NotificationRepo) Create(ctx context.Context, n *model.Notification) error {
	payload, err := json.Marshal(n.Payload)
	if err != nil {
		return err
	}
	n.CreatedAt = time.Now().UTC()
	const ins = `INSERT INTO notifications (id, user_id, type, title, message, payload, read_flag, created_at)
				 VALUES (?, ?, ?, ?, ?, ?, 0, ?)`
	_, err = r.db.ExecContext(ctx, ins, n.ID, n.UserID, n.Type, n.Title, n.Message, string(payload), n.CreatedAt)
	return err
}

// ListByUser returns up to limit notifications for the user, newest
// first.
func (r *NotificationRepo) ListByUser(ctx context.Context, userID string, limit int) ([]model.Notification, error) {
	const q = `SELECT id, user_id, type, title, message, payload, read_flag, created_at
			   FROM notifications WHERE user_id = ?
			   ORDER BY created_at DESC, id DESC LIMIT ?`
	rows, err := r.db.QueryContext(ctx, q, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanNotifications(rows)
}

// ListSince returns all notifications for the user created strictly
// after the given timestamp, ordered by creation time then id so equal
// timestamps replay in a stable order.  This is the replay query.
func (r *NotificationRepo) ListSince(ctx context.Context, userID string, since time.Time) ([]model.Notification, error) {
	const q = `SELECT id, user_id, type, title, message, payload, read_flag, created_at
			   FROM notifications WHERE user_id = ? AND created_at > ?
			   ORDER BY created_at, id`
	rows, err := r.db.QueryContext(ctx, q, userID, since.UTC())
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanNotifications(rows)
}

// MarkRead flags a notification as read.  The owner check is embedded
// in the WHERE clause; marking an already-read notification again
// reports true so the operation stays idempotent for clients
// reconciling live and replayed copies.
func (r *NotificationRepo) MarkRead(ctx context.Context, id, userID string) (bool, error) {
	const upd = `UPDATE notifications SET read_flag = 1 WHERE id = ? AND user_id = ?`
	result, err := r.db.ExecContext(ctx, upd, id, userID)
	if err != nil {
		return false, err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	if affected == 1 {
		return true, nil
	}
	// MySQL reports zero affected rows when the row exists but the flag
	// is unchanged, so distinguish "already read" from "not yours".
	const q = `SELECT COUNT(*) FROM notifications WHERE id = ? AND user_id = ?`
	var n int
	if err := r.db.QueryRowContext(ctx, q, id, userID).Scan(&n); err != nil {
		return false, err
	}
	return n > 0, nil
}

func scanNotifications(rows *sql.Rows) ([]model.Notification, error) {
	notifications := make([]model.Notification, 0)
	for rows.Next() {
		var n model.Notification
		var payload string
		if err := rows.Scan(&n.ID, &n.UserID, &n.Type, &n.Title, &n.Message, &payload, &n.Read, &n.CreatedAt); err != nil {
			return nil, err
		}
		if payload != "" && payload != "null" {
			if err := json.Unmarshal([]byte(payload), &n.Payload); err != nil {
				return nil, err
			}
		}
		notifications = append(notifications, n)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return notifications, nil
}
