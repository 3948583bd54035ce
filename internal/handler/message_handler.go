package handler

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/deeplink-chat/deeplink-go-api/internal/dto"
	"github.com/deeplink-chat/deeplink-go-api/internal/realtime"
	"github.com/deeplink-chat/deeplink-go-api/internal/service"
	"github.com/deeplink-chat/deeplink-go-api/internal/utils"
)

// Summarizer produces a digest of recent channel activity.
type Summarizer interface {
	Summarize(channelID string) (dto.ChatSummaryResponse, error)
}

// MessageHandler exposes message CRUD, interactions and the chat summary.
type MessageHandler struct {
	messages     service.MessageService
	summarizer   Summarizer
	publisher    service.EventPublisher
	historyLimit int
	logger       zerolog.Logger
}

// NewMessageHandler constructs a message handler. historyLimit caps listings
// when the client does not ask for a specific page size.
func NewMessageHandler(messages service.MessageService, summarizer Summarizer, publisher service.EventPublisher, historyLimit int, logger zerolog.Logger) *MessageHandler {
	return &MessageHandler{
		messages:     messages,
		summarizer:   summarizer,
		publisher:    publisher,
		historyLimit: historyLimit,
		logger:       logger.With().Str("component", "message_handler").Logger(),
	}
}

// Register wires message routes.
func (h *MessageHandler) Register(router fiber.Router) {
	router.Get("/messages", h.list)
	router.Post("/messages", h.send)
	router.Post("/messages/react", h.react)
	router.Post("/messages/complete", h.complete)
	router.Post("/messages/vote", h.vote)
	router.Patch("/messages", h.edit)
	router.Delete("/messages", h.remove)
	router.Get("/chat/summary", h.summary)
}

func (h *MessageHandler) list(c *fiber.Ctx) error {
	channelID := strings.TrimSpace(c.Query("channel_id"))
	if channelID == "" {
		return utils.SendError(c, fiber.StatusBadRequest, "channel_id required")
	}

	limit, err := parseQueryInt(c, "limit")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid limit")
	}
	if limit <= 0 {
		limit = h.historyLimit
	}

	messages, err := h.messages.List(c.Context(), channelID, limit)
	if err != nil {
		return sendServiceError(c, requestLogger(h.logger, c), err)
	}

	return utils.SendSuccess(c, "messages", messages)
}

func (h *MessageHandler) send(c *fiber.Ctx) error {
	userID := userIDFromContext(c)
	if userID == "" {
		return utils.SendError(c, fiber.StatusUnauthorized, "authorization required")
	}

	var payload dto.MessageSendRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid payload")
	}

	response, event, err := h.messages.Send(c.Context(), userID, payload)
	if err != nil {
		return sendServiceError(c, requestLogger(h.logger, c), err)
	}
	h.publish(c, event)

	return utils.SendSuccessWithStatus(c, fiber.StatusCreated, "message sent", response)
}

func (h *MessageHandler) react(c *fiber.Ctx) error {
	userID := userIDFromContext(c)
	if userID == "" {
		return utils.SendError(c, fiber.StatusUnauthorized, "authorization required")
	}

	var payload dto.ReactionRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid payload")
	}

	response, event, err := h.messages.React(c.Context(), userID, payload)
	if err != nil {
		return sendServiceError(c, requestLogger(h.logger, c), err)
	}
	h.publish(c, event)

	return utils.SendSuccess(c, "reaction updated", response)
}

func (h *MessageHandler) complete(c *fiber.Ctx) error {
	userID := userIDFromContext(c)
	if userID == "" {
		return utils.SendError(c, fiber.StatusUnauthorized, "authorization required")
	}

	var payload dto.TaskActionRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid payload")
	}

	response, event, err := h.messages.CompleteTask(c.Context(), userID, payload)
	if err != nil {
		return sendServiceError(c, requestLogger(h.logger, c), err)
	}
	h.publish(c, event)

	return utils.SendSuccess(c, "task updated", response)
}

func (h *MessageHandler) vote(c *fiber.Ctx) error {
	userID := userIDFromContext(c)
	if userID == "" {
		return utils.SendError(c, fiber.StatusUnauthorized, "authorization required")
	}

	var payload dto.VoteRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid payload")
	}

	response, event, err := h.messages.Vote(c.Context(), userID, payload)
	if err != nil {
		return sendServiceError(c, requestLogger(h.logger, c), err)
	}
	h.publish(c, event)

	return utils.SendSuccess(c, "vote recorded", response)
}

func (h *MessageHandler) edit(c *fiber.Ctx) error {
	userID := userIDFromContext(c)
	if userID == "" {
		return utils.SendError(c, fiber.StatusUnauthorized, "authorization required")
	}

	var payload dto.MessageEditRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid payload")
	}

	response, event, err := h.messages.Edit(c.Context(), userID, payload)
	if err != nil {
		return sendServiceError(c, requestLogger(h.logger, c), err)
	}
	h.publish(c, event)

	return utils.SendSuccess(c, "message edited", response)
}

func (h *MessageHandler) remove(c *fiber.Ctx) error {
	userID := userIDFromContext(c)
	if userID == "" {
		return utils.SendError(c, fiber.StatusUnauthorized, "authorization required")
	}

	var payload dto.MessageDeleteRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid payload")
	}

	response, event, err := h.messages.Delete(c.Context(), userID, payload)
	if err != nil {
		return sendServiceError(c, requestLogger(h.logger, c), err)
	}
	h.publish(c, event)

	return utils.SendSuccess(c, "message deleted", response)
}

func (h *MessageHandler) summary(c *fiber.Ctx) error {
	channelID := strings.TrimSpace(c.Query("channel_id"))
	if channelID == "" {
		return utils.SendError(c, fiber.StatusBadRequest, "channel_id required")
	}

	response, err := h.summarizer.Summarize(channelID)
	if err != nil {
		return sendServiceError(c, requestLogger(h.logger, c), err)
	}

	return utils.SendSuccess(c, "chat summary", response)
}

func (h *MessageHandler) publish(c *fiber.Ctx, event realtime.Event) {
	if event.Kind == "" {
		return
	}
	h.publisher.Publish(c.Context(), event, realtime.ScopeChannel(event.ChannelID))
}
