package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/fireflycare/firefly-BE/internal/db"
	"github.com/fireflycare/firefly-BE/internal/token"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

type listNotificationsRequest struct {
	Limit  int32 `form:"limit,default=20"`
	Offset int32 `form:"offset,default=0"`
}

type listNotificationsResponse struct {
	Notifications []db.Notification `json:"notifications"`
	UnreadCount   int64             `json:"unread_count"`
	Limit         int32             `json:"limit"`
	Offset        int32             `json:"offset"`
}

// @Summary		List notifications
// @Description	Returns the user's notifications newest first, with the authoritative unread count. Backs the client's polling fallback.
// @Tags			notifications
// @Produce		json
// @Param			limit	query		int	false	"Page size (max 50)"
// @Param			offset	query		int	false	"Page offset"
// @Success		200		{object}	listNotificationsResponse
// @Security		accessToken
// @Router			/v1/notifications [get]
func (server *Server) listNotifications(c *gin.Context) {
	authPayload := c.MustGet(authorizationPayloadKey).(*token.Payload)

	var req listNotificationsRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse(err))
		return
	}
	if req.Limit <= 0 || req.Limit > 50 {
		req.Limit = 20
	}
	if req.Offset < 0 {
		req.Offset = 0
	}

	notifications, err := server.dbStore.ListUserNotifications(c.Request.Context(), db.ListUserNotificationsParams{
		UserID: authPayload.Subject,
		Limit:  req.Limit,
		Offset: req.Offset,
	})
	if err != nil {
		c.JSON(http.StatusInternalServerError, errorResponse(err))
		return
	}

	unreadCount, err := server.dbStore.CountUnreadNotifications(c.Request.Context(), authPayload.Subject)
	if err != nil {
		c.JSON(http.StatusInternalServerError, errorResponse(err))
		return
	}

	c.JSON(http.StatusOK, listNotificationsResponse{
		Notifications: notifications,
		UnreadCount:   unreadCount,
		Limit:         req.Limit,
		Offset:        req.Offset,
	})
}

// @Summary		Get unread notification count
// @Tags			notifications
// @Produce		json
// @Success		200	{object}	object
// @Security		accessToken
// @Router			/v1/notifications/unread-count [get]
func (server *Server) getUnreadCount(c *gin.Context) {
	authPayload := c.MustGet(authorizationPayloadKey).(*token.Payload)

	count, err := server.dbStore.CountUnreadNotifications(c.Request.Context(), authPayload.Subject)
	if err != nil {
		c.JSON(http.StatusInternalServerError, errorResponse(err))
		return
	}

	c.JSON(http.StatusOK, gin.H{"count": count})
}

// @Summary		Mark one notification as read
// @Description	Idempotent. The updated unread count is pushed over the user's live connection if one is open.
// @Tags			notifications
// @Param			id	path	int	true	"Notification ID"
// @Success		204
// @Security		accessToken
// @Router			/v1/notifications/{id}/read [patch]
func (server *Server) markNotificationAsRead(c *gin.Context) {
	authPayload := c.MustGet(authorizationPayloadKey).(*token.Payload)

	notificationID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, errorResponse(errors.New("invalid notification ID")))
		return
	}

	if err = server.notifierService.MarkNotificationAsRead(c.Request.Context(), notificationID, authPayload.Subject); err != nil {
		c.JSON(http.StatusInternalServerError, errorResponse(err))
		return
	}

	c.Status(http.StatusNoContent)
}

// @Summary		Mark all notifications as read
// @Tags			notifications
// @Success		204
// @Security		accessToken
// @Router			/v1/notifications/read-all [patch]
func (server *Server) markAllNotificationsAsRead(c *gin.Context) {
	authPayload := c.MustGet(authorizationPayloadKey).(*token.Payload)

	if err := server.notifierService.MarkAllNotificationsAsRead(c.Request.Context(), authPayload.Subject); err != nil {
		c.JSON(http.StatusInternalServerError, errorResponse(err))
		return
	}

	c.Status(http.StatusNoContent)
}

// @Summary		Delete one notification
// @Description	Deleting an unread notification changes the unread count, so the count is re-derived and rebroadcast.
// @Tags			notifications
// @Param			id	path	int	true	"Notification ID"
// @Success		204
// @Failure		404	{object}	object	"Notification not found"
// @Security		accessToken
// @Router			/v1/notifications/{id} [delete]
func (server *Server) deleteNotification(c *gin.Context) {
	authPayload := c.MustGet(authorizationPayloadKey).(*token.Payload)

	notificationID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, errorResponse(errors.New("invalid notification ID")))
		return
	}

	err = server.dbStore.DeleteNotification(c.Request.Context(), db.DeleteNotificationParams{
		ID:     notificationID,
		UserID: authPayload.Subject,
	})
	if err != nil {
		if errors.Is(err, db.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, errorResponse(ErrNotificationNotFound))
			return
		}

		c.JSON(http.StatusInternalServerError, errorResponse(err))
		return
	}

	if err = server.notifierService.RefreshUnreadCount(c.Request.Context(), authPayload.Subject); err != nil {
		log.Warn().Err(err).Str("user_id", authPayload.Subject).Msg("failed to rebroadcast unread count after delete")
	}

	c.Status(http.StatusNoContent)
}
