package db

import (
	"context"
)

type CreateDeliveryRecordParams struct {
	NotificationID int64           `json:"notification_id"`
	UserID         string          `json:"user_id"`
	Channel        DeliveryChannel `json:"channel"`
	Status         DeliveryStatus  `json:"status"`
	LatencyMs      *int64          `json:"latency_ms"`
}

func (store *SQLStore) CreateDeliveryRecord(ctx context.Context, arg CreateDeliveryRecordParams) (DeliveryRecord, error) {
	const query = `
		INSERT INTO delivery_records (notification_id, user_id, channel, status, latency_ms)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, notification_id, user_id, channel, status, latency_ms, created_at`

	var d DeliveryRecord
	err := store.connPool.QueryRow(ctx, query,
		arg.NotificationID, arg.UserID, arg.Channel, arg.Status, arg.LatencyMs,
	).Scan(&d.ID, &d.NotificationID, &d.UserID, &d.Channel, &d.Status, &d.LatencyMs, &d.CreatedAt)

	return d, err
}

type ListPendingDeliveriesParams struct {
	UserID  string          `json:"user_id"`
	Channel DeliveryChannel `json:"channel"`
}

// ListPendingDeliveries returns undelivered records for a user on one
// channel, oldest first, joined with their notifications for replay.
func (store *SQLStore) ListPendingDeliveries(ctx context.Context, arg ListPendingDeliveriesParams) ([]PendingDelivery, error) {
	const query = `
		SELECT d.id, d.notification_id, d.user_id, d.channel, d.status, d.latency_ms, d.created_at,
		       n.id, n.user_id, n.type, n.title, n.message, n.payload, n.actionable, n.action_url, n.is_read, n.read_at, n.expires_at, n.created_at
		FROM delivery_records d
		JOIN notifications n ON n.id = d.notification_id
		WHERE d.user_id = $1 AND d.channel = $2 AND d.status = 'pending'
		  AND (n.expires_at IS NULL OR n.expires_at > now())
		ORDER BY d.created_at ASC`

	rows, err := store.connPool.Query(ctx, query, arg.UserID, arg.Channel)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	deliveries := []PendingDelivery{}
	for rows.Next() {
		var p PendingDelivery
		d := &p.Delivery
		n := &p.Notification
		if err = rows.Scan(&d.ID, &d.NotificationID, &d.UserID, &d.Channel, &d.Status, &d.LatencyMs, &d.CreatedAt,
			&n.ID, &n.UserID, &n.Type, &n.Title, &n.Message, &n.Payload, &n.Actionable, &n.ActionURL,
			&n.IsRead, &n.ReadAt, &n.ExpiresAt, &n.CreatedAt); err != nil {
			return nil, err
		}
		deliveries = append(deliveries, p)
	}

	return deliveries, rows.Err()
}

type UpdateDeliveryStatusParams struct {
	ID        int64          `json:"id"`
	Status    DeliveryStatus `json:"status"`
	LatencyMs *int64         `json:"latency_ms"`
}

// UpdateDeliveryStatus transitions a record out of pending. The status guard
// makes reconnect flushes idempotent: a record already delivered or failed is
// left untouched.
func (store *SQLStore) UpdateDeliveryStatus(ctx context.Context, arg UpdateDeliveryStatusParams) error {
	const query = `
		UPDATE delivery_records
		SET status = $2, latency_ms = COALESCE($3, latency_ms)
		WHERE id = $1 AND status = 'pending'`

	_, err := store.connPool.Exec(ctx, query, arg.ID, arg.Status, arg.LatencyMs)
	return err
}
