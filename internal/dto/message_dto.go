package dto

import (
	"time"

	"github.com/deeplink-chat/deeplink-go-api/internal/models"
)

// MessageSendRequest is the payload to append a message to a channel.
type MessageSendRequest struct {
	ChannelID string                 `json:"channel_id" validate:"required,max=64"`
	Type      string                 `json:"type" validate:"omitempty,oneof=text task poll link code"`
	Content   string                 `json:"content" validate:"required,min=1,max=4000"`
	Metadata  map[string]interface{} `json:"metadata"`
}

// ReactionRequest toggles a user's reaction on a message.
type ReactionRequest struct {
	ChannelID string `json:"channel_id" validate:"required,max=64"`
	MessageID string `json:"message_id" validate:"required,max=64"`
	Emoji     string `json:"emoji" validate:"required,max=16"`
}

// TaskActionRequest marks a task message completed.
type TaskActionRequest struct {
	ChannelID string `json:"channel_id" validate:"required,max=64"`
	MessageID string `json:"message_id" validate:"required,max=64"`
}

// VoteRequest records a user's poll choice.
type VoteRequest struct {
	ChannelID string `json:"channel_id" validate:"required,max=64"`
	MessageID string `json:"message_id" validate:"required,max=64"`
	Option    string `json:"option" validate:"required,max=255"`
}

// MessageEditRequest replaces a message's content.
type MessageEditRequest struct {
	ChannelID string `json:"channel_id" validate:"required,max=64"`
	MessageID string `json:"message_id" validate:"required,max=64"`
	Content   string `json:"content" validate:"required,min=1,max=4000"`
}

// MessageDeleteRequest tombstones a message.
type MessageDeleteRequest struct {
	ChannelID string `json:"channel_id" validate:"required,max=64"`
	MessageID string `json:"message_id" validate:"required,max=64"`
}

// MessageResponse is the serialized representation of a message, enriched
// with display attributes of its sender.
type MessageResponse struct {
	ID           string                 `json:"id"`
	ChannelID    string                 `json:"channel_id"`
	SenderID     string                 `json:"sender_id"`
	SenderName   string                 `json:"sender_name,omitempty"`
	SenderAvatar string                 `json:"sender_avatar,omitempty"`
	Type         string                 `json:"type"`
	Content      string                 `json:"content"`
	Metadata     map[string]interface{} `json:"metadata"`
	Reactions    map[string][]string    `json:"reactions"`
	Read         bool                   `json:"read"`
	Edited       bool                   `json:"edited"`
	Deleted      bool                   `json:"deleted"`
	EditedAt     *time.Time             `json:"edited_at,omitempty"`
	CreatedAt    time.Time              `json:"created_at"`
}

// ChatSummaryResponse is the heuristic digest of recent channel activity.
type ChatSummaryResponse struct {
	ChannelID    string   `json:"channel_id"`
	Summary      string   `json:"summary"`
	Participants []string `json:"participants,omitempty"`
	Topics       []string `json:"topics,omitempty"`
	Total        int      `json:"total"`
}

// NewMessageResponse converts a message model into a DTO.
func NewMessageResponse(message models.Message, sender models.User) MessageResponse {
	return MessageResponse{
		ID:           message.ID,
		ChannelID:    message.ChannelID,
		SenderID:     message.SenderID,
		SenderName:   sender.Username,
		SenderAvatar: sender.Avatar,
		Type:         message.Type,
		Content:      message.Content,
		Metadata:     message.Metadata,
		Reactions:    message.Reactions,
		Read:         message.Read,
		Edited:       message.Edited,
		Deleted:      message.Deleted,
		EditedAt:     message.EditedAt,
		CreatedAt:    message.CreatedAt,
	}
}
