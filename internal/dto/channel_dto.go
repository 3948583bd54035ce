package dto

import (
	"time"

	"github.com/deeplink-chat/deeplink-go-api/internal/models"
)

// ChannelCreateRequest is the payload to create a named channel.
type ChannelCreateRequest struct {
	Name string `json:"name" validate:"required,min=1,max=255"`
	Kind string `json:"kind" validate:"omitempty,oneof=chat kanban media private group self"`
}

// DirectChannelRequest asks for the private 1:1 channel with another user.
type DirectChannelRequest struct {
	PeerID string `json:"peer_id" validate:"required,max=64"`
}

// ChannelResponse is the serialized representation of a channel.
type ChannelResponse struct {
	ID        string                 `json:"id"`
	Name      string                 `json:"name"`
	Kind      string                 `json:"kind"`
	Members   []string               `json:"members"`
	Settings  map[string]interface{} `json:"settings,omitempty"`
	Unread    int                    `json:"unread"`
	CreatedAt time.Time              `json:"created_at"`
}

// ChannelListResponse bundles channels with the currently online users.
type ChannelListResponse struct {
	Channels []ChannelResponse `json:"channels"`
	Users    []UserResponse    `json:"users"`
}

// NewChannelResponse converts a channel model into a DTO.
func NewChannelResponse(channel models.Channel, unread int) ChannelResponse {
	return ChannelResponse{
		ID:        channel.ID,
		Name:      channel.Name,
		Kind:      channel.Kind,
		Members:   channel.Members,
		Settings:  channel.Settings,
		Unread:    unread,
		CreatedAt: channel.CreatedAt,
	}
}
