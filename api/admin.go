package api

import (
	"net/http"

	"github.com/fireflycare/firefly-BE/internal/event"
	"github.com/gin-gonic/gin"
)

type listConnectionsResponse struct {
	Count       int                     `json:"count"`
	UserIDs     []string                `json:"user_ids"`
	Connections []event.ConnectionStats `json:"connections"`
}

// @Summary		List live stream connections
// @Description	Operational snapshot of every open SSE connection on this instance: age, heartbeat counters, delivered message counts and health.
// @Tags			admin
// @Produce		json
// @Success		200	{object}	listConnectionsResponse
// @Failure		403	{object}	object	"Requires admin role"
// @Security		accessToken
// @Router			/v1/admin/connections [get]
func (server *Server) listConnections(c *gin.Context) {
	c.JSON(http.StatusOK, listConnectionsResponse{
		Count:       server.registry.Count(),
		UserIDs:     server.registry.UserIDs(),
		Connections: server.registry.Stats(),
	})
}
