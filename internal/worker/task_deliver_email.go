package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/fireflycare/firefly-BE/internal/db"
	"github.com/fireflycare/firefly-BE/internal/mailer"
	"github.com/hibiken/asynq"
	"github.com/rs/zerolog/log"
)

// PayloadDeliverEmail contain all data of the task that we want to store in Redis.
type PayloadDeliverEmail struct {
	DeliveryID     int64               `json:"delivery_id"`
	NotificationID int64               `json:"notification_id"`
	Email          mailer.EmailPayload `json:"email"`
	EnqueuedAt     time.Time           `json:"enqueued_at"`
}

func (distributor *RedisTaskDistributor) DistributeTaskDeliverEmail(
	ctx context.Context,
	payload *PayloadDeliverEmail,
	opts ...asynq.Option,
) error {
	jsonPayload, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal task payload: %w", err)
	}

	task := asynq.NewTask(TaskDeliverEmail, jsonPayload, opts...)
	info, err := distributor.client.EnqueueContext(ctx, task)
	if err != nil {
		return fmt.Errorf("failed to enqueue task: %w", err)
	}

	log.Info().Str("type", task.Type()).Int64("delivery_id", payload.DeliveryID).
		Str("queue", info.Queue).Int("max_retry", info.MaxRetry).Msg("task enqueued")

	return nil
}

// ProcessTaskDeliverEmail sends one rendered email and reconciles its
// delivery record. The record stays pending while asynq retries; it is only
// marked failed once the retry budget is spent.
func (processor *RedisTaskProcessor) ProcessTaskDeliverEmail(
	ctx context.Context,
	task *asynq.Task,
) error {
	var payload PayloadDeliverEmail
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return fmt.Errorf("failed to unmarshal payload: %w", asynq.SkipRetry)
	}

	messageID, err := processor.mailer.Send(ctx, payload.Email)
	if err != nil {
		retried, _ := asynq.GetRetryCount(ctx)
		maxRetry, _ := asynq.GetMaxRetry(ctx)
		if retried >= maxRetry {
			if updateErr := processor.store.UpdateDeliveryStatus(ctx, db.UpdateDeliveryStatusParams{
				ID:     payload.DeliveryID,
				Status: db.DeliveryStatusFailed,
			}); updateErr != nil {
				log.Error().Err(updateErr).Int64("delivery_id", payload.DeliveryID).
					Msg("failed to mark email delivery as failed")
			}
		}

		return fmt.Errorf("failed to send email: %w", err)
	}

	latencyMs := time.Since(payload.EnqueuedAt).Milliseconds()
	err = processor.store.UpdateDeliveryStatus(ctx, db.UpdateDeliveryStatusParams{
		ID:        payload.DeliveryID,
		Status:    db.DeliveryStatusDelivered,
		LatencyMs: &latencyMs,
	})
	if err != nil {
		log.Error().Err(err).Int64("delivery_id", payload.DeliveryID).
			Msg("email sent but delivery record update failed")
	}

	log.Info().Str("type", task.Type()).Int64("notification_id", payload.NotificationID).
		Str("message_id", messageID).Msg("task processed")

	return nil
}
