package db

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Store provides all functions to execute db queries and transactions.
// It is the single source of truth for read/unread state; the in-memory
// connection registry is only a live-push optimization on top of it.
type Store interface {
	CreateNotification(ctx context.Context, arg CreateNotificationParams) (Notification, error)
	GetNotificationByID(ctx context.Context, id int64) (Notification, error)
	ListUserNotifications(ctx context.Context, arg ListUserNotificationsParams) ([]Notification, error)
	CountUnreadNotifications(ctx context.Context, userID string) (int64, error)
	MarkNotificationAsRead(ctx context.Context, arg MarkNotificationAsReadParams) error
	MarkAllNotificationsAsRead(ctx context.Context, userID string) error
	DeleteNotification(ctx context.Context, arg DeleteNotificationParams) error
	DeleteExpiredNotifications(ctx context.Context) (int64, error)

	CreateDeliveryRecord(ctx context.Context, arg CreateDeliveryRecordParams) (DeliveryRecord, error)
	ListPendingDeliveries(ctx context.Context, arg ListPendingDeliveriesParams) ([]PendingDelivery, error)
	UpdateDeliveryStatus(ctx context.Context, arg UpdateDeliveryStatusParams) error

	GetUserByID(ctx context.Context, id string) (User, error)
	ListFamilyMembers(ctx context.Context, familyID int64) ([]User, error)

	ShouldSendNotification(ctx context.Context, userID string, notificationType NotificationType, channel DeliveryChannel) (bool, error)
	IsWithinQuietHours(ctx context.Context, userID string) (bool, error)

	Ping(ctx context.Context) error
}

type SQLStore struct {
	connPool *pgxpool.Pool
}

// NewStore creates a new Store.
func NewStore(db *pgxpool.Pool) Store {
	return &SQLStore{
		connPool: db,
	}
}

// Ping checks if the database connection is alive.
func (store *SQLStore) Ping(ctx context.Context) error {
	return store.connPool.Ping(ctx)
}

// ExecTx executes a function within a database transaction.
func (store *SQLStore) ExecTx(ctx context.Context, fn func(tx pgx.Tx) error) error {
	tx, err := store.connPool.Begin(ctx)
	if err != nil {
		return err
	}

	if err = fn(tx); err != nil {
		if rbErr := tx.Rollback(ctx); rbErr != nil {
			return rbErr
		}
		return err
	}

	return tx.Commit(ctx)
}
