package handler

import (
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/deeplink-chat/deeplink-go-api/internal/dto"
	"github.com/deeplink-chat/deeplink-go-api/internal/service"
	"github.com/deeplink-chat/deeplink-go-api/internal/utils"
)

// AuthHandler exposes registration, login and profile endpoints.
type AuthHandler struct {
	identity service.IdentityService
	logger   zerolog.Logger
}

// NewAuthHandler constructs an auth handler.
func NewAuthHandler(identity service.IdentityService, logger zerolog.Logger) *AuthHandler {
	return &AuthHandler{
		identity: identity,
		logger:   logger.With().Str("component", "auth_handler").Logger(),
	}
}

// Register wires auth routes. Registration and login stay public; the
// profile update requires a valid token.
func (h *AuthHandler) Register(router fiber.Router, jwtMiddleware fiber.Handler) {
	router.Post("/register", h.register)
	router.Post("/login", h.login)
	router.Patch("/profile", jwtMiddleware, h.profile)
}

func (h *AuthHandler) register(c *fiber.Ctx) error {
	var payload dto.RegisterRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid payload")
	}

	response, err := h.identity.Register(c.Context(), payload)
	if err != nil {
		return sendServiceError(c, requestLogger(h.logger, c), err)
	}

	message := "user registered"
	if response.Existing {
		message = "welcome back"
	}
	return utils.SendSuccessWithStatus(c, fiber.StatusCreated, message, response)
}

func (h *AuthHandler) login(c *fiber.Ctx) error {
	var payload dto.LoginRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid payload")
	}

	response, err := h.identity.Login(c.Context(), payload)
	if err != nil {
		return sendServiceError(c, requestLogger(h.logger, c), err)
	}

	return utils.SendSuccess(c, "login successful", response)
}

func (h *AuthHandler) profile(c *fiber.Ctx) error {
	userID := userIDFromContext(c)
	if userID == "" {
		return utils.SendError(c, fiber.StatusUnauthorized, "authorization required")
	}

	var payload dto.ProfileUpdateRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid payload")
	}

	response, err := h.identity.UpdateProfile(c.Context(), userID, payload)
	if err != nil {
		return sendServiceError(c, requestLogger(h.logger, c), err)
	}

	return utils.SendSuccess(c, "profile updated", response)
}
