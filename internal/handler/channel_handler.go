package handler

import (
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/deeplink-chat/deeplink-go-api/internal/dto"
	"github.com/deeplink-chat/deeplink-go-api/internal/realtime"
	"github.com/deeplink-chat/deeplink-go-api/internal/service"
	"github.com/deeplink-chat/deeplink-go-api/internal/utils"
)

// ChannelHandler exposes channel listing and creation endpoints.
type ChannelHandler struct {
	channels  service.ChannelService
	publisher service.EventPublisher
	logger    zerolog.Logger
}

// NewChannelHandler constructs a channel handler.
func NewChannelHandler(channels service.ChannelService, publisher service.EventPublisher, logger zerolog.Logger) *ChannelHandler {
	return &ChannelHandler{
		channels:  channels,
		publisher: publisher,
		logger:    logger.With().Str("component", "channel_handler").Logger(),
	}
}

// Register wires channel routes.
func (h *ChannelHandler) Register(router fiber.Router) {
	router.Get("/channels", h.list)
	router.Post("/channels", h.create)
	router.Post("/channels/direct", h.direct)
}

func (h *ChannelHandler) list(c *fiber.Ctx) error {
	response, err := h.channels.List(c.Context())
	if err != nil {
		return sendServiceError(c, requestLogger(h.logger, c), err)
	}
	return utils.SendSuccess(c, "channels", response)
}

func (h *ChannelHandler) create(c *fiber.Ctx) error {
	userID := userIDFromContext(c)
	if userID == "" {
		return utils.SendError(c, fiber.StatusUnauthorized, "authorization required")
	}

	var payload dto.ChannelCreateRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid payload")
	}

	response, events, err := h.channels.Create(c.Context(), userID, payload)
	if err != nil {
		return sendServiceError(c, requestLogger(h.logger, c), err)
	}

	for _, event := range events {
		if event.Kind == "" {
			continue
		}
		h.publisher.Publish(c.Context(), event, realtime.ScopeChannel(event.ChannelID))
	}

	return utils.SendSuccessWithStatus(c, fiber.StatusCreated, "channel created", response)
}

func (h *ChannelHandler) direct(c *fiber.Ctx) error {
	userID := userIDFromContext(c)
	if userID == "" {
		return utils.SendError(c, fiber.StatusUnauthorized, "authorization required")
	}

	var payload dto.DirectChannelRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid payload")
	}

	response, err := h.channels.Direct(c.Context(), userID, payload)
	if err != nil {
		return sendServiceError(c, requestLogger(h.logger, c), err)
	}

	return utils.SendSuccess(c, "direct channel ready", response)
}
