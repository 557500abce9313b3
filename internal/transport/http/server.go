package http

import (
	stdhttp "net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/relaychat/relay-server/internal/config"
	"github.com/relaychat/relay-server/internal/core"
	"github.com/relaychat/relay-server/internal/store"
)

// NewServer builds the HTTP server: the WebSocket relay endpoint plus
// the request-response history API.
func NewServer(hub *core.Hub, st store.MessageStore, cfg config.Config, logger *zerolog.Logger) *stdhttp.Server {
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()
	router.Use(gin.Recovery(), LoggerMiddleware(logger))

	router.GET("/health", healthHandler)
	router.GET("/ws", gin.WrapH(NewWSHandler(hub, logger, cfg.IdleTimeout, cfg.MsgRateLimit)))

	history := NewHistoryHandlers(st, logger)
	api := router.Group("/api")
	{
		api.GET("/rooms", history.ListRooms)
		api.GET("/rooms/:room/messages", history.RoomMessages)
	}

	return &stdhttp.Server{
		Addr:              cfg.Addr,
		Handler:           router,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
	}
}

func healthHandler(c *gin.Context) {
	c.String(stdhttp.StatusOK, "ok")
}
