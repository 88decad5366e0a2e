package db

import (
	"context"
	"time"
)

type CreateNotificationParams struct {
	UserID     string           `json:"user_id"`
	Type       NotificationType `json:"type"`
	Title      string           `json:"title"`
	Message    string           `json:"message"`
	Payload    []byte           `json:"payload"`
	Actionable bool             `json:"actionable"`
	ActionURL  *string          `json:"action_url"`
	ExpiresAt  *time.Time       `json:"expires_at"`
}

func (store *SQLStore) CreateNotification(ctx context.Context, arg CreateNotificationParams) (Notification, error) {
	const query = `
		INSERT INTO notifications (user_id, type, title, message, payload, actionable, action_url, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id, user_id, type, title, message, payload, actionable, action_url, is_read, read_at, expires_at, created_at`

	var n Notification
	err := store.connPool.QueryRow(ctx, query,
		arg.UserID, arg.Type, arg.Title, arg.Message, arg.Payload, arg.Actionable, arg.ActionURL, arg.ExpiresAt,
	).Scan(&n.ID, &n.UserID, &n.Type, &n.Title, &n.Message, &n.Payload, &n.Actionable, &n.ActionURL,
		&n.IsRead, &n.ReadAt, &n.ExpiresAt, &n.CreatedAt)

	return n, err
}

func (store *SQLStore) GetNotificationByID(ctx context.Context, id int64) (Notification, error) {
	const query = `
		SELECT id, user_id, type, title, message, payload, actionable, action_url, is_read, read_at, expires_at, created_at
		FROM notifications
		WHERE id = $1`

	var n Notification
	err := store.connPool.QueryRow(ctx, query, id).
		Scan(&n.ID, &n.UserID, &n.Type, &n.Title, &n.Message, &n.Payload, &n.Actionable, &n.ActionURL,
			&n.IsRead, &n.ReadAt, &n.ExpiresAt, &n.CreatedAt)

	return n, err
}

type ListUserNotificationsParams struct {
	UserID string `json:"user_id"`
	Limit  int32  `json:"limit"`
	Offset int32  `json:"offset"`
}

func (store *SQLStore) ListUserNotifications(ctx context.Context, arg ListUserNotificationsParams) ([]Notification, error) {
	const query = `
		SELECT id, user_id, type, title, message, payload, actionable, action_url, is_read, read_at, expires_at, created_at
		FROM notifications
		WHERE user_id = $1 AND (expires_at IS NULL OR expires_at > now())
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3`

	rows, err := store.connPool.Query(ctx, query, arg.UserID, arg.Limit, arg.Offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	notifications := []Notification{}
	for rows.Next() {
		var n Notification
		if err = rows.Scan(&n.ID, &n.UserID, &n.Type, &n.Title, &n.Message, &n.Payload, &n.Actionable, &n.ActionURL,
			&n.IsRead, &n.ReadAt, &n.ExpiresAt, &n.CreatedAt); err != nil {
			return nil, err
		}
		notifications = append(notifications, n)
	}

	return notifications, rows.Err()
}

func (store *SQLStore) CountUnreadNotifications(ctx context.Context, userID string) (int64, error) {
	const query = `
		SELECT count(*)
		FROM notifications
		WHERE user_id = $1 AND is_read = false AND (expires_at IS NULL OR expires_at > now())`

	var count int64
	err := store.connPool.QueryRow(ctx, query, userID).Scan(&count)

	return count, err
}

type MarkNotificationAsReadParams struct {
	ID     int64  `json:"id"`
	UserID string `json:"user_id"`
}

// MarkNotificationAsRead is idempotent: re-reading an already-read
// notification keeps the original read timestamp.
func (store *SQLStore) MarkNotificationAsRead(ctx context.Context, arg MarkNotificationAsReadParams) error {
	const query = `
		UPDATE notifications
		SET is_read = true, read_at = now()
		WHERE id = $1 AND user_id = $2 AND is_read = false`

	_, err := store.connPool.Exec(ctx, query, arg.ID, arg.UserID)
	return err
}

func (store *SQLStore) MarkAllNotificationsAsRead(ctx context.Context, userID string) error {
	const query = `
		UPDATE notifications
		SET is_read = true, read_at = now()
		WHERE user_id = $1 AND is_read = false`

	_, err := store.connPool.Exec(ctx, query, userID)
	return err
}

type DeleteNotificationParams struct {
	ID     int64  `json:"id"`
	UserID string `json:"user_id"`
}

func (store *SQLStore) DeleteNotification(ctx context.Context, arg DeleteNotificationParams) error {
	const query = `DELETE FROM notifications WHERE id = $1 AND user_id = $2`

	result, err := store.connPool.Exec(ctx, query, arg.ID, arg.UserID)
	if err != nil {
		return err
	}
	if result.RowsAffected() == 0 {
		return ErrRecordNotFound
	}

	return nil
}

// DeleteExpiredNotifications removes notifications past their expiry.
// Delivery records go with them via ON DELETE CASCADE.
func (store *SQLStore) DeleteExpiredNotifications(ctx context.Context) (int64, error) {
	const query = `DELETE FROM notifications WHERE expires_at IS NOT NULL AND expires_at <= now()`

	result, err := store.connPool.Exec(ctx, query)
	if err != nil {
		return 0, err
	}

	return result.RowsAffected(), nil
}
