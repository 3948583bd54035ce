package service

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/deeplink-chat/deeplink-go-api/internal/dto"
	"github.com/deeplink-chat/deeplink-go-api/internal/models"
	"github.com/deeplink-chat/deeplink-go-api/internal/store"
)

// avatarPalette is assigned round-robin to new users.
var avatarPalette = []string{"👤", "👨", "👩", "🐱", "🦊", "🐶", "🦁"}

const accessTokenTTL = 24 * time.Hour

// IdentityService handles registration, authentication and profile updates.
type IdentityService interface {
	Register(ctx context.Context, payload dto.RegisterRequest) (dto.AuthResponse, error)
	Login(ctx context.Context, payload dto.LoginRequest) (dto.AuthResponse, error)
	UpdateProfile(ctx context.Context, userID string, payload dto.ProfileUpdateRequest) (dto.UserResponse, error)
	VerifyAccessToken(token string) (string, error)
}

type identityService struct {
	store     *store.Store
	validator *validator.Validate
	jwtSecret []byte
	logger    zerolog.Logger
}

// NewIdentityService constructs the identity service.
func NewIdentityService(st *store.Store, validate *validator.Validate, jwtSecret string, logger zerolog.Logger) IdentityService {
	return &identityService{
		store:     st,
		validator: validate,
		jwtSecret: []byte(jwtSecret),
		logger:    logger.With().Str("component", "identity_service").Logger(),
	}
}

// Register creates a new user, or returns the existing one when the username
// is already taken: re-registering is an auto-login, not an error.
func (s *identityService) Register(ctx context.Context, payload dto.RegisterRequest) (dto.AuthResponse, error) {
	if err := s.validator.Struct(payload); err != nil {
		return dto.AuthResponse{}, err
	}

	username := strings.TrimSpace(payload.Username)
	if username == "" {
		return dto.AuthResponse{}, fmt.Errorf("%w: username required", ErrValidation)
	}

	if existing, err := s.store.FindUserByUsername(username); err == nil {
		return s.authResponse(existing, true)
	} else if !errors.Is(err, store.ErrNotFound) {
		return dto.AuthResponse{}, err
	}

	token, err := randomToken()
	if err != nil {
		return dto.AuthResponse{}, err
	}

	user := models.User{
		ID:       uuid.NewString()[:8],
		Username: username,
		Nickname: strings.TrimSpace(payload.Nickname),
		Avatar:   avatarPalette[s.store.UserCount()%len(avatarPalette)],
		Token:    token,
	}

	created, err := s.store.CreateUser(ctx, user)
	if err != nil {
		return dto.AuthResponse{}, err
	}

	s.store.AddUserToPublicChannels(ctx, created.ID)
	s.logger.Info().Str("user_id", created.ID).Str("username", created.Username).Msg("user registered")

	return s.authResponse(created, false)
}

// Login re-authenticates a known user against their opaque token.
func (s *identityService) Login(ctx context.Context, payload dto.LoginRequest) (dto.AuthResponse, error) {
	if err := s.validator.Struct(payload); err != nil {
		return dto.AuthResponse{}, err
	}

	user, err := s.store.GetUser(payload.UserID)
	if err != nil {
		return dto.AuthResponse{}, ErrUnauthorized
	}
	if subtle.ConstantTimeCompare([]byte(user.Token), []byte(payload.Token)) != 1 {
		return dto.AuthResponse{}, ErrUnauthorized
	}

	return s.authResponse(user, true)
}

// UpdateProfile applies display attribute changes for the user.
func (s *identityService) UpdateProfile(ctx context.Context, userID string, payload dto.ProfileUpdateRequest) (dto.UserResponse, error) {
	if err := s.validator.Struct(payload); err != nil {
		return dto.UserResponse{}, err
	}

	updated, err := s.store.UpdateUser(ctx, userID, func(user *models.User) {
		if payload.Nickname != nil {
			user.Nickname = strings.TrimSpace(*payload.Nickname)
		}
		if payload.Avatar != nil {
			user.Avatar = strings.TrimSpace(*payload.Avatar)
		}
		if payload.Bio != nil {
			user.Bio = strings.TrimSpace(*payload.Bio)
		}
	})
	if err != nil {
		return dto.UserResponse{}, err
	}

	return dto.NewUserResponse(updated), nil
}

// VerifyAccessToken validates a signed access token and returns the user id.
func (s *identityService) VerifyAccessToken(tokenString string) (string, error) {
	token, err := jwt.Parse(tokenString, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method")
		}
		return s.jwtSecret, nil
	})
	if err != nil || !token.Valid {
		return "", ErrUnauthorized
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return "", ErrUnauthorized
	}
	userID, _ := claims["sub"].(string)
	if userID == "" {
		return "", ErrUnauthorized
	}
	if _, err := s.store.GetUser(userID); err != nil {
		return "", ErrUnauthorized
	}
	return userID, nil
}

func (s *identityService) authResponse(user models.User, existing bool) (dto.AuthResponse, error) {
	access, err := s.signAccessToken(user.ID)
	if err != nil {
		return dto.AuthResponse{}, err
	}

	return dto.AuthResponse{
		User:        dto.NewUserResponse(user),
		Token:       user.Token,
		AccessToken: access,
		Existing:    existing,
	}, nil
}

func (s *identityService) signAccessToken(userID string) (string, error) {
	claims := jwt.MapClaims{
		"sub": userID,
		"iat": time.Now().Unix(),
		"exp": time.Now().Add(accessTokenTTL).Unix(),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.jwtSecret)
}

func randomToken() (string, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}
