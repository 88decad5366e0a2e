package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/fireflycare/firefly-BE/internal/db"
	"github.com/fireflycare/firefly-BE/internal/event"
	"github.com/fireflycare/firefly-BE/internal/token"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

// writeEvent serializes one event as a single SSE data frame and flushes it
// to the wire. A write error means the transport is gone.
func writeEvent(c *gin.Context, ev event.Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	if _, err = fmt.Fprintf(c.Writer, "data: %s\n\n", data); err != nil {
		return err
	}
	c.Writer.Flush()

	return nil
}

// @Summary		Stream notifications via Server-Sent Events
// @Description	Opens a long-lived SSE connection that pushes notifications, unread counts and heartbeats in real time
// @Tags			notifications
// @Produce		text/event-stream
// @Param			token	query		string	false	"Access token (fallback for EventSource, which cannot set headers)"
// @Success		200		{string}	string	"Event stream. Each frame is 'data: {\"type\":...,\"data\":...}'"
// @Failure		401		{object}	object	"Missing or invalid access token"
// @Router			/v1/notifications/stream [get]
func (server *Server) streamNotifications(c *gin.Context) {
	authPayload := c.MustGet(authorizationPayloadKey).(*token.Payload)
	userID := authPayload.Subject
	ctx := c.Request.Context()

	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")
	c.Writer.Header().Set("X-Accel-Buffering", "no")
	c.Status(http.StatusOK)

	// The token can outlive user provisioning (signup races, cross-service
	// sync lag). That state is terminal for this stream: tell the client so
	// it stops burning reconnect attempts and falls back to polling.
	if _, err := server.dbStore.GetUserByID(ctx, userID); err != nil {
		if errors.Is(err, db.ErrRecordNotFound) {
			_ = writeEvent(c, event.Event{
				Type: event.EventTypeUserNotSynced,
				Data: gin.H{"user_id": userID},
			})
			return
		}

		log.Error().Err(err).Str("user_id", userID).Msg("failed to resolve user for stream")
		return
	}

	conn := server.registry.Register(userID)
	defer server.registry.Unregister(userID, conn.ID)

	err := writeEvent(c, event.Event{
		Type: event.EventTypeConnected,
		Data: gin.H{"connection_id": conn.ID, "user_id": userID},
	})
	if err != nil {
		return
	}

	server.replayPendingDeliveries(c, userID, conn.ID)

	count, err := server.dbStore.CountUnreadNotifications(ctx, userID)
	if err != nil {
		log.Error().Err(err).Str("user_id", userID).Msg("failed to count unread notifications")
	} else if err = writeEvent(c, event.Event{
		Type: event.EventTypeUnreadCount,
		Data: gin.H{"count": count},
	}); err != nil {
		return
	}

	heartbeat := time.NewTicker(event.HeartbeatInterval)
	defer heartbeat.Stop()

	for {
		select {
		case ev, ok := <-conn.Events():
			if !ok {
				// Evicted by the registry (stale, saturated or superseded
				// teardown). The deferred Unregister is a guarded no-op.
				return
			}
			if err = writeEvent(c, ev); err != nil {
				return
			}
			server.registry.RecordDelivery(userID, conn.ID)
		case <-heartbeat.C:
			if err = writeEvent(c, event.Event{Type: event.EventTypeHeartbeat}); err != nil {
				return
			}
			server.registry.RecordHeartbeat(userID, conn.ID)
		case <-ctx.Done():
			return
		}
	}
}

// replayPendingDeliveries flushes the notifications that were dispatched
// while the user was offline, reconciling each record to delivered. The
// replay is best-effort: a failing record is logged and skipped, and the
// pending-status guard on the update keeps concurrent flushes idempotent.
func (server *Server) replayPendingDeliveries(c *gin.Context, userID, connectionID string) {
	ctx := c.Request.Context()

	pending, err := server.dbStore.ListPendingDeliveries(ctx, db.ListPendingDeliveriesParams{
		UserID:  userID,
		Channel: db.DeliveryChannelLive,
	})
	if err != nil {
		log.Error().Err(err).Str("user_id", userID).Msg("failed to list pending deliveries")
		return
	}

	for _, p := range pending {
		if err = writeEvent(c, event.Event{
			Type: event.EventTypeNotification,
			Data: p.Notification,
		}); err != nil {
			log.Warn().Err(err).Int64("delivery_id", p.Delivery.ID).Msg("replay write failed")
			return
		}
		server.registry.RecordDelivery(userID, connectionID)

		latencyMs := time.Since(p.Notification.CreatedAt).Milliseconds()
		if err = server.dbStore.UpdateDeliveryStatus(ctx, db.UpdateDeliveryStatusParams{
			ID:        p.Delivery.ID,
			Status:    db.DeliveryStatusDelivered,
			LatencyMs: &latencyMs,
		}); err != nil {
			log.Warn().Err(err).Int64("delivery_id", p.Delivery.ID).Msg("failed to reconcile replayed delivery")
		}
	}

	if len(pending) > 0 {
		log.Info().Str("user_id", userID).Int("count", len(pending)).Msg("replayed pending deliveries")
	}
}
