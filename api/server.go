package api

import (
	"fmt"
	"net/http"

	"github.com/fireflycare/firefly-BE/internal/db"
	"github.com/fireflycare/firefly-BE/internal/event"
	"github.com/fireflycare/firefly-BE/internal/notifier"
	"github.com/fireflycare/firefly-BE/internal/token"
	"github.com/fireflycare/firefly-BE/internal/util"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
)

type Server struct {
	router          *gin.Engine
	dbStore         db.Store
	config          *util.Config
	tokenMaker      token.Maker
	registry        *event.Registry
	notifierService *notifier.Service
}

// NewServer creates a new HTTP server and set up routing.
func NewServer(store db.Store, config *util.Config, registry *event.Registry, notifierService *notifier.Service) (*Server, error) {
	// Create a new JWT token maker
	tokenMaker, err := token.NewJWTMaker(config.TokenSecretKey)
	if err != nil {
		return nil, fmt.Errorf("failed to create token maker: %w", err)
	}
	log.Info().Msg("Token maker created successfully ✅")

	server := &Server{
		dbStore:         store,
		config:          config,
		tokenMaker:      tokenMaker,
		registry:        registry,
		notifierService: notifierService,
	}

	server.setupRouter()
	return server, nil
}

// setupRouter configures the HTTP server routes.
func (server *Server) setupRouter() *gin.Engine {
	gin.ForceConsoleColor()
	router := gin.Default()
	router.Use(cors.New(cors.Config{
		AllowOrigins:     server.config.AllowedOrigins,
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE"},
		AllowHeaders:     []string{"Origin", "Content-Length", "Content-Type", "Authorization"},
		AllowCredentials: true,
	}))

	router.GET("/health", server.checkHealth)

	v1 := router.Group("/v1")

	notificationGroup := v1.Group("/notifications", authMiddleware(server.tokenMaker))
	{
		// EventSource cannot set headers, so the stream route also accepts
		// the token as a query parameter (handled by authMiddleware).
		notificationGroup.GET("/stream", server.streamNotifications)

		notificationGroup.GET("", server.listNotifications)
		notificationGroup.GET("/unread-count", server.getUnreadCount)
		notificationGroup.PATCH("/:id/read", server.markNotificationAsRead)
		notificationGroup.PATCH("/read-all", server.markAllNotificationsAsRead)
		notificationGroup.DELETE("/:id", server.deleteNotification)
	}

	adminGroup := v1.Group("/admin", authMiddleware(server.tokenMaker), requiredAdminRole(server.dbStore))
	{
		adminGroup.GET("/connections", server.listConnections)
	}

	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	server.router = router
	return router
}

// Start runs the HTTP server on a specific address.
func (server *Server) Start(address string) error {
	return server.router.Run(address)
}

// checkHealth reports whether the process can reach its database.
func (server *Server) checkHealth(c *gin.Context) {
	if err := server.dbStore.Ping(c.Request.Context()); err != nil {
		c.JSON(http.StatusServiceUnavailable, errorResponse(err))
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
