package notifier

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/fireflycare/firefly-BE/internal/db"
	"github.com/fireflycare/firefly-BE/internal/event"
	"github.com/fireflycare/firefly-BE/internal/worker"
	"github.com/hibiken/asynq"
	"github.com/rs/zerolog/log"
)

// Service fans a single domain event out to in-app delivery, live broadcast
// and email delivery. It never caches notifications beyond a single call;
// the store remains the source of truth for read state.
type Service struct {
	store           db.Store
	broadcaster     event.Broadcaster
	taskDistributor worker.TaskDistributor
}

func NewService(store db.Store, broadcaster event.Broadcaster, taskDistributor worker.TaskDistributor) *Service {
	return &Service{
		store:           store,
		broadcaster:     broadcaster,
		taskDistributor: taskDistributor,
	}
}

// EmailContext opts a dispatch into the email channel and carries the
// rendering context the templates need.
type EmailContext struct {
	ActorName  string `json:"actor_name"`
	FamilyName string `json:"family_name"`
}

type DispatchParams struct {
	RecipientID string              `json:"recipient_id"`
	Type        db.NotificationType `json:"type"`
	Title       string              `json:"title"`
	Message     string              `json:"message"`
	Payload     map[string]any      `json:"payload"`
	Actionable  bool                `json:"actionable"`
	ActionURL   *string             `json:"action_url"`
	ExpiresAt   *time.Time          `json:"expires_at"`
	Email       *EmailContext       `json:"email"`
}

type DispatchResult struct {
	Notification *db.Notification `json:"notification"`
	EmailQueued  bool             `json:"email_queued"`
	Success      bool             `json:"success"`
	Errors       []string         `json:"errors"`
}

type unreadCountData struct {
	Count int64 `json:"count"`
}

// Dispatch records a notification durably, pushes it over the recipient's
// live connection if one is open, rebroadcasts the unread count, and
// optionally queues email delivery. Only the initial persist is fatal; a
// failed live broadcast simply means the user is offline and leaves a
// pending delivery record to flush on their next reconnect.
func (s *Service) Dispatch(ctx context.Context, arg DispatchParams) DispatchResult {
	result := DispatchResult{}

	var payload []byte
	if arg.Payload != nil {
		var err error
		if payload, err = json.Marshal(arg.Payload); err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("marshal payload: %v", err))
			return result
		}
	}

	notification, err := s.store.CreateNotification(ctx, db.CreateNotificationParams{
		UserID:     arg.RecipientID,
		Type:       arg.Type,
		Title:      arg.Title,
		Message:    arg.Message,
		Payload:    payload,
		Actionable: arg.Actionable,
		ActionURL:  arg.ActionURL,
		ExpiresAt:  arg.ExpiresAt,
	})
	if err != nil {
		log.Error().Err(err).Str("recipient_id", arg.RecipientID).Str("type", string(arg.Type)).
			Msg("failed to persist notification")
		result.Errors = append(result.Errors, fmt.Sprintf("create notification: %v", err))
		return result
	}
	result.Notification = &notification
	result.Success = true

	broadcast := s.broadcaster.Broadcast(arg.RecipientID, event.Event{
		Type: event.EventTypeNotification,
		Data: notification,
	})

	deliveryStatus := db.DeliveryStatusPending
	var latencyMs *int64
	if broadcast.Delivered {
		ms := time.Since(notification.CreatedAt).Milliseconds()
		deliveryStatus = db.DeliveryStatusDelivered
		latencyMs = &ms
	}

	if _, err = s.store.CreateDeliveryRecord(ctx, db.CreateDeliveryRecordParams{
		NotificationID: notification.ID,
		UserID:         arg.RecipientID,
		Channel:        db.DeliveryChannelLive,
		Status:         deliveryStatus,
		LatencyMs:      latencyMs,
	}); err != nil {
		log.Error().Err(err).Int64("notification_id", notification.ID).
			Msg("failed to create live delivery record")
		result.Errors = append(result.Errors, fmt.Sprintf("create delivery record: %v", err))
	}

	if err = s.refreshUnreadCount(ctx, arg.RecipientID); err != nil {
		result.Errors = append(result.Errors, fmt.Sprintf("refresh unread count: %v", err))
	}

	if arg.Email != nil {
		queued, emailErr := s.queueEmailDelivery(ctx, notification, arg)
		result.EmailQueued = queued
		if emailErr != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("email delivery: %v", emailErr))
		}
	}

	return result
}

// queueEmailDelivery applies the recipient's channel preference and
// quiet-hours policy, then hands the rendered message to the task queue.
// Emergency alerts bypass quiet hours unconditionally.
func (s *Service) queueEmailDelivery(ctx context.Context, notification db.Notification, arg DispatchParams) (bool, error) {
	user, err := s.store.GetUserByID(ctx, arg.RecipientID)
	if err != nil {
		return false, fmt.Errorf("resolve recipient: %w", err)
	}

	allowed, err := s.store.ShouldSendNotification(ctx, arg.RecipientID, arg.Type, db.DeliveryChannelEmail)
	if err != nil {
		return false, fmt.Errorf("check preference: %w", err)
	}
	if !allowed {
		return false, nil
	}

	if arg.Type != db.NotificationTypeEmergencyAlert {
		quiet, err := s.store.IsWithinQuietHours(ctx, arg.RecipientID)
		if err != nil {
			return false, fmt.Errorf("check quiet hours: %w", err)
		}
		if quiet {
			log.Debug().Str("recipient_id", arg.RecipientID).Str("type", string(arg.Type)).
				Msg("email suppressed by quiet hours")
			return false, nil
		}
	}

	delivery, err := s.store.CreateDeliveryRecord(ctx, db.CreateDeliveryRecordParams{
		NotificationID: notification.ID,
		UserID:         arg.RecipientID,
		Channel:        db.DeliveryChannelEmail,
		Status:         db.DeliveryStatusPending,
	})
	if err != nil {
		return false, fmt.Errorf("create email delivery record: %w", err)
	}

	queue := worker.QueueDefault
	if arg.Type == db.NotificationTypeEmergencyAlert {
		queue = worker.QueueCritical
	}

	err = s.taskDistributor.DistributeTaskDeliverEmail(ctx, &worker.PayloadDeliverEmail{
		DeliveryID:     delivery.ID,
		NotificationID: notification.ID,
		Email:          renderEmail(user, arg),
		EnqueuedAt:     time.Now(),
	}, asynq.Queue(queue), asynq.MaxRetry(3))
	if err != nil {
		if updateErr := s.store.UpdateDeliveryStatus(ctx, db.UpdateDeliveryStatusParams{
			ID:     delivery.ID,
			Status: db.DeliveryStatusFailed,
		}); updateErr != nil {
			log.Error().Err(updateErr).Int64("delivery_id", delivery.ID).
				Msg("failed to mark email delivery as failed")
		}
		return false, fmt.Errorf("enqueue email task: %w", err)
	}

	return true, nil
}

type BulkResult struct {
	Succeeded int                       `json:"succeeded"`
	Failed    int                       `json:"failed"`
	Results   map[string]DispatchResult `json:"results"`
}

// DispatchBulk runs the single-dispatch path concurrently per recipient.
// Partial failure is expected and reported per recipient, never aborting
// the batch.
func (s *Service) DispatchBulk(ctx context.Context, recipientIDs []string, arg DispatchParams) BulkResult {
	bulk := BulkResult{Results: make(map[string]DispatchResult, len(recipientIDs))}

	var mu sync.Mutex
	var wg sync.WaitGroup
	for _, recipientID := range recipientIDs {
		wg.Add(1)
		go func(recipientID string) {
			defer wg.Done()

			perRecipient := arg
			perRecipient.RecipientID = recipientID
			result := s.Dispatch(ctx, perRecipient)

			mu.Lock()
			defer mu.Unlock()
			bulk.Results[recipientID] = result
			if result.Success {
				bulk.Succeeded++
			} else {
				bulk.Failed++
			}
		}(recipientID)
	}
	wg.Wait()

	return bulk
}

// DispatchFamily resolves the recipient list from family membership,
// excluding the given user ids (typically the actor who triggered the
// event), and delegates to DispatchBulk.
func (s *Service) DispatchFamily(ctx context.Context, familyID int64, excludeUserIDs []string, arg DispatchParams) (BulkResult, error) {
	members, err := s.store.ListFamilyMembers(ctx, familyID)
	if err != nil {
		return BulkResult{}, fmt.Errorf("list family members: %w", err)
	}

	excluded := make(map[string]struct{}, len(excludeUserIDs))
	for _, id := range excludeUserIDs {
		excluded[id] = struct{}{}
	}

	recipientIDs := make([]string, 0, len(members))
	for _, member := range members {
		if _, skip := excluded[member.ID]; skip {
			continue
		}
		recipientIDs = append(recipientIDs, member.ID)
	}

	return s.DispatchBulk(ctx, recipientIDs, arg), nil
}

// MarkNotificationAsRead updates the read flag and rebroadcasts the unread
// count derived from the store, never from local state.
func (s *Service) MarkNotificationAsRead(ctx context.Context, notificationID int64, userID string) error {
	err := s.store.MarkNotificationAsRead(ctx, db.MarkNotificationAsReadParams{
		ID:     notificationID,
		UserID: userID,
	})
	if err != nil {
		return err
	}

	return s.refreshUnreadCount(ctx, userID)
}

// MarkAllNotificationsAsRead marks every unread notification read and
// rebroadcasts the unread count.
func (s *Service) MarkAllNotificationsAsRead(ctx context.Context, userID string) error {
	if err := s.store.MarkAllNotificationsAsRead(ctx, userID); err != nil {
		return err
	}

	return s.refreshUnreadCount(ctx, userID)
}

// RefreshUnreadCount re-derives the unread count and pushes it to the
// user's live connection, if any. Used by every mutation that can change
// the count, including external deletes.
func (s *Service) RefreshUnreadCount(ctx context.Context, userID string) error {
	return s.refreshUnreadCount(ctx, userID)
}

func (s *Service) refreshUnreadCount(ctx context.Context, userID string) error {
	count, err := s.store.CountUnreadNotifications(ctx, userID)
	if err != nil {
		return fmt.Errorf("count unread notifications: %w", err)
	}

	s.broadcaster.Broadcast(userID, event.Event{
		Type: event.EventTypeUnreadCount,
		Data: unreadCountData{Count: count},
	})

	return nil
}
