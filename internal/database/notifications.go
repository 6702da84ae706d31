package database

import (
	"context"
	"fmt"
	"time"

	"classbook/internal/models"
)

const notificationColumns = `id, channel, recipient, subject, body, event_type, status, retry_count,
        last_error, created_at, processed_at, next_retry_at`

func (db *DB) CreateNotification(ctx context.Context, n *models.Notification) error {
	if n.Status == "" {
		n.Status = models.NotificationPending
	}
	now := time.Now().UTC()
	id, _, err := insertReturningID(ctx, db.DB, db.driver, `
        INSERT INTO notifications (channel, recipient, subject, body, event_type, status, retry_count, last_error, created_at, next_retry_at)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		n.Channel, n.Recipient, n.Subject, n.Body, n.EventType, n.Status, n.RetryCount, n.LastError, now, n.NextRetryAt)
	if err != nil {
		return fmt.Errorf("failed to create notification: %w", err)
	}
	n.ID = id
	n.CreatedAt = now
	return nil
}

// GetPendingNotifications returns rows due for delivery, oldest first. A
// processing row whose claim lease has run out counts as due again.
func (db *DB) GetPendingNotifications(ctx context.Context, limit int) ([]models.Notification, error) {
	now := time.Now().UTC()
	return db.queryNotifications(ctx, `SELECT `+notificationColumns+`
        FROM notifications
        WHERE (status IN ('pending', 'retry') AND (next_retry_at IS NULL OR next_retry_at <= ?))
           OR (status = 'processing' AND next_retry_at IS NOT NULL AND next_retry_at <= ?)
        ORDER BY created_at ASC, id ASC LIMIT ?`, now, now, limit)
}

func (db *DB) GetFailedNotifications(ctx context.Context) ([]models.Notification, error) {
	return db.queryNotifications(ctx, `SELECT `+notificationColumns+`
        FROM notifications WHERE status = 'failed' ORDER BY created_at DESC, id DESC`)
}

func (db *DB) GetNotification(ctx context.Context, id int64) (*models.Notification, error) {
	list, err := db.queryNotifications(ctx, `SELECT `+notificationColumns+` FROM notifications WHERE id = ?`, id)
	if err != nil {
		return nil, err
	}
	if len(list) == 0 {
		return nil, fmt.Errorf("notification %d not found", id)
	}
	return &list[0], nil
}

// ClaimNotification moves a row to processing until leaseUntil, kept in
// next_retry_at. It reports false when another consumer holds a live lease
// or the row reached a terminal state. An expired lease can be claimed again,
// so a worker that died mid-send does not strand the message.
func (db *DB) ClaimNotification(ctx context.Context, id int64, leaseUntil time.Time) (bool, error) {
	res, err := db.ExecContext(ctx, db.rebind(`UPDATE notifications SET status = ?, next_retry_at = ?
        WHERE id = ? AND (status IN ('pending', 'retry')
            OR (status = 'processing' AND next_retry_at IS NOT NULL AND next_retry_at <= ?))`),
		models.NotificationSending, leaseUntil.UTC(), id, time.Now().UTC())
	if err != nil {
		return false, fmt.Errorf("failed to claim notification: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read affected rows: %w", err)
	}
	return n == 1, nil
}

// UpdateNotificationStatus moves a row through the outbox states. "retry"
// bumps retry_count; terminal states stamp processed_at.
func (db *DB) UpdateNotificationStatus(ctx context.Context, id int64, status, errMsg string, nextRetryAt *time.Time) error {
	var query string
	var args []interface{}
	now := time.Now().UTC()

	var lastErr *string
	if errMsg != "" {
		lastErr = &errMsg
	}

	switch status {
	case models.NotificationRetry:
		query = `UPDATE notifications SET status = ?, last_error = ?, next_retry_at = ?, retry_count = retry_count + 1 WHERE id = ?`
		args = []interface{}{status, lastErr, nextRetryAt, id}
	case models.NotificationCompleted, models.NotificationFailed:
		query = `UPDATE notifications SET status = ?, last_error = ?, next_retry_at = ?, processed_at = ? WHERE id = ?`
		args = []interface{}{status, lastErr, nextRetryAt, now, id}
	default:
		query = `UPDATE notifications SET status = ?, last_error = ?, next_retry_at = ? WHERE id = ?`
		args = []interface{}{status, lastErr, nextRetryAt, id}
	}

	if _, err := db.ExecContext(ctx, db.rebind(query), args...); err != nil {
		return fmt.Errorf("failed to update notification status: %w", err)
	}
	return nil
}

func (db *DB) queryNotifications(ctx context.Context, query string, args ...interface{}) ([]models.Notification, error) {
	rows, err := db.QueryContext(ctx, db.rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query notifications: %w", err)
	}
	defer rows.Close()

	var list []models.Notification
	for rows.Next() {
		var n models.Notification
		if err := rows.Scan(&n.ID, &n.Channel, &n.Recipient, &n.Subject, &n.Body, &n.EventType, &n.Status,
			&n.RetryCount, &n.LastError, &n.CreatedAt, &n.ProcessedAt, &n.NextRetryAt); err != nil {
			return nil, fmt.Errorf("failed to scan notification: %w", err)
		}
		list = append(list, n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate notifications: %w", err)
	}
	return list, nil
}
