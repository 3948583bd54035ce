package dto

import (
	"time"

	"github.com/deeplink-chat/deeplink-go-api/internal/models"
)

// RegisterRequest is the payload to register (or auto-login) a user.
type RegisterRequest struct {
	Username string `json:"username" validate:"required,min=2,max=64"`
	Nickname string `json:"nickname" validate:"omitempty,max=64"`
}

// LoginRequest is the payload to re-authenticate a known user.
type LoginRequest struct {
	UserID string `json:"user_id" validate:"required,max=64"`
	Token  string `json:"token" validate:"required,max=128"`
}

// ProfileUpdateRequest carries optional display attribute changes.
type ProfileUpdateRequest struct {
	Nickname *string `json:"nickname" validate:"omitempty,max=64"`
	Avatar   *string `json:"avatar" validate:"omitempty,max=16"`
	Bio      *string `json:"bio" validate:"omitempty,max=1000"`
}

// UserResponse is the serialized representation of a user.
type UserResponse struct {
	ID       string    `json:"id"`
	Username string    `json:"username"`
	Nickname string    `json:"nickname,omitempty"`
	Avatar   string    `json:"avatar"`
	Bio      string    `json:"bio,omitempty"`
	Online   bool      `json:"online"`
	LastSeen time.Time `json:"last_seen"`
}

// AuthResponse bundles the user with their credentials after register/login.
type AuthResponse struct {
	User        UserResponse `json:"user"`
	Token       string       `json:"token"`
	AccessToken string       `json:"access_token"`
	Existing    bool         `json:"existing"`
}

// NewUserResponse converts a user model into a DTO.
func NewUserResponse(user models.User) UserResponse {
	return UserResponse{
		ID:       user.ID,
		Username: user.Username,
		Nickname: user.Nickname,
		Avatar:   user.Avatar,
		Bio:      user.Bio,
		Online:   user.Online,
		LastSeen: user.LastSeen,
	}
}

// NewUserResponseSlice converts a slice of user models into DTOs.
func NewUserResponseSlice(users []models.User) []UserResponse {
	out := make([]UserResponse, 0, len(users))
	for _, user := range users {
		out = append(out, NewUserResponse(user))
	}
	return out
}
