package handler

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"github.com/rs/zerolog"

	"github.com/deeplink-chat/deeplink-go-api/internal/middleware"
	"github.com/deeplink-chat/deeplink-go-api/internal/models"
	"github.com/deeplink-chat/deeplink-go-api/internal/realtime"
	"github.com/deeplink-chat/deeplink-go-api/internal/service"
)

// UserResolver looks a user up by id, used to stamp usernames on typing events.
type UserResolver interface {
	GetUser(id string) (models.User, error)
}

// WSHandler upgrades connections and pumps the realtime event stream.
type WSHandler struct {
	identity       service.IdentityService
	dispatcher     *realtime.Dispatcher
	users          UserResolver
	generalChannel string
	logger         zerolog.Logger
}

// NewWSHandler constructs a websocket handler.
func NewWSHandler(identity service.IdentityService, dispatcher *realtime.Dispatcher, users UserResolver, generalChannel string, logger zerolog.Logger) *WSHandler {
	return &WSHandler{
		identity:       identity,
		dispatcher:     dispatcher,
		users:          users,
		generalChannel: generalChannel,
		logger:         logger.With().Str("component", "ws_handler").Logger(),
	}
}

// Register binds the websocket route under the provided router group.
func (h *WSHandler) Register(router fiber.Router) {
	router.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			ctx := c.UserContext()
			if ctx == nil {
				ctx = context.Background()
			}
			ctx = middleware.ContextWithCorrelation(ctx, middleware.GetCorrelationID(c))
			c.Locals("request_ctx", ctx)
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})

	router.Get("/ws", websocket.New(h.handleConnection))
}

// clientFrame is the inbound message shape. Clients only ever send control
// frames; all state changes go through the HTTP API.
type clientFrame struct {
	Type      string `json:"type"`
	ChannelID string `json:"channel_id"`
}

func (h *WSHandler) handleConnection(conn *websocket.Conn) {
	token := strings.TrimSpace(conn.Query("token"))
	userID, err := h.identity.VerifyAccessToken(token)
	if err != nil {
		_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "invalid token"))
		_ = conn.Close()
		return
	}

	ctx, _ := conn.Locals("request_ctx").(context.Context)
	if ctx == nil {
		ctx = context.Background()
	}

	session := realtime.NewWSSession(conn, h.logger)
	h.dispatcher.Attach(ctx, userID, session)
	h.dispatcher.ReplayLast(ctx, h.generalChannel, session)
	h.logger.Info().Str("user_id", userID).Msg("websocket connected")

	defer func() {
		h.dispatcher.Detach(ctx, userID, session)
		h.logger.Info().Str("user_id", userID).Msg("websocket disconnected")
	}()

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return
		}

		var frame clientFrame
		if err := json.Unmarshal(raw, &frame); err != nil {
			continue
		}

		switch frame.Type {
		case "ping":
			_ = session.Send(realtime.Event{Kind: "pong"})
		case "typing":
			h.announceTyping(ctx, userID, frame.ChannelID)
		}
	}
}

func (h *WSHandler) announceTyping(ctx context.Context, userID, channelID string) {
	if channelID == "" {
		channelID = h.generalChannel
	}

	username := userID
	if user, err := h.users.GetUser(userID); err == nil {
		username = user.Username
	}

	h.dispatcher.Publish(ctx, realtime.Event{
		Kind:      realtime.EventUserTyping,
		ChannelID: channelID,
		Payload: map[string]interface{}{
			"user_id":    userID,
			"username":   username,
			"channel_id": channelID,
		},
	}, realtime.ScopeChannel(channelID))
}
