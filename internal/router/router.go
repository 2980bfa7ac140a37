package router

import (
	"context"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/cloudwego/hertz/pkg/app/server"
	"github.com/cloudwego/hertz/pkg/protocol/consts"
	"github.com/hertz-contrib/websocket"

	"github.com/mbeoliero/parley/internal/config"
	"github.com/mbeoliero/parley/internal/gateway"
	"github.com/mbeoliero/parley/internal/handler"
	"github.com/mbeoliero/parley/internal/middleware"
)

// Handlers holds all HTTP handlers
type Handlers struct {
	User         *handler.UserHandler
	Message      *handler.MessageHandler
	Conversation *handler.ConversationHandler
	Contact      *handler.ContactHandler
}

// SetupRouter sets up all routes
func SetupRouter(h *server.Hertz, cfg *config.Config, handlers *Handlers, wsServer *gateway.WsServer) {
	h.Use(middleware.CORS(cfg.Server.AllowedOrigins))

	h.GET("/health", func(ctx context.Context, c *app.RequestContext) {
		c.JSON(consts.StatusOK, map[string]any{
			"status":       "ok",
			"online_conns": wsServer.OnlineConnCount(),
		})
	})

	auth := middleware.JWTAuth(cfg.JWT.Secret)

	// Message routes (auth required)
	msgGroup := h.Group("/msg", auth)
	{
		msgGroup.POST("/send", handlers.Message.SendMessage)
		msgGroup.GET("/list", handlers.Message.GetMessages)
		msgGroup.POST("/read", handlers.Message.MarkRead)
		msgGroup.GET("/unread", handlers.Message.GetUnreadCounts)
		msgGroup.DELETE("/:message_id/all", handlers.Message.DeleteForEveryone)
		msgGroup.DELETE("/:message_id/me", handlers.Message.DeleteForMe)
	}

	// Conversation routes (auth required)
	convGroup := h.Group("/conversation", auth)
	{
		convGroup.POST("/start", handlers.Conversation.StartConversation)
		convGroup.POST("/group", handlers.Conversation.CreateGroup)
		convGroup.GET("/list", handlers.Conversation.ListConversations)
	}

	// Contact routes (auth required)
	contactGroup := h.Group("/contact", auth)
	{
		contactGroup.POST("/add", handlers.Contact.AddContact)
		contactGroup.GET("/list", handlers.Contact.ListContacts)
	}

	// User routes (auth required)
	userGroup := h.Group("/user", auth)
	{
		userGroup.GET("/presence/:user_id", handlers.User.GetPresence)
	}

	// WebSocket route; the handshake authenticates with query parameters
	allowedOrigins := cfg.Server.AllowedOrigins
	upgrader := &websocket.HertzUpgrader{
		CheckOrigin: func(c *app.RequestContext) bool {
			return gateway.OriginAllowed(string(c.Request.Header.Peek("Origin")), allowedOrigins)
		},
	}

	h.GET("/ws", func(ctx context.Context, c *app.RequestContext) {
		wsServer.HandleHertzConnection(ctx, c, upgrader)
	})
}
