package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"gorm.io/datatypes"
)

// Message types supported by the engine.
const (
	MessageTypeText = "text"
	MessageTypeTask = "task"
	MessageTypePoll = "poll"
	MessageTypeLink = "link"
	MessageTypeCode = "code"
)

// ValidMessageType reports whether t is one of the supported message types.
func ValidMessageType(t string) bool {
	switch t {
	case MessageTypeText, MessageTypeTask, MessageTypePoll, MessageTypeLink, MessageTypeCode:
		return true
	}
	return false
}

// ReactionSet maps an emoji to the set of user ids that reacted with it.
type ReactionSet map[string][]string

// Value serialises the reaction set as JSON for storage.
func (r ReactionSet) Value() (driver.Value, error) {
	if r == nil {
		r = ReactionSet{}
	}
	return json.Marshal(r)
}

// Scan restores the reaction set from its stored JSON form.
func (r *ReactionSet) Scan(value interface{}) error {
	if value == nil {
		*r = ReactionSet{}
		return nil
	}
	var raw []byte
	switch v := value.(type) {
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return fmt.Errorf("unsupported reaction set source type %T", value)
	}
	if len(raw) == 0 {
		*r = ReactionSet{}
		return nil
	}
	return json.Unmarshal(raw, r)
}

// Message is a single entry in a channel's ordered history.
type Message struct {
	ID        string            `gorm:"primaryKey;size:64" json:"id"`
	ChannelID string            `gorm:"size:64;index;not null" json:"channel_id"`
	SenderID  string            `gorm:"size:64;index" json:"sender_id"`
	Type      string            `gorm:"size:16;default:text" json:"type"`
	Content   string            `gorm:"type:text" json:"content"`
	Metadata  datatypes.JSONMap `gorm:"type:json" json:"metadata"`
	Reactions ReactionSet       `gorm:"type:json" json:"reactions"`
	Read      bool              `gorm:"not null;default:false" json:"read"`
	Edited    bool              `gorm:"not null;default:false" json:"edited"`
	Deleted   bool              `gorm:"not null;default:false" json:"deleted"`
	EditedAt  *time.Time        `json:"edited_at,omitempty"`
	CreatedAt time.Time         `json:"created_at"`
	UpdatedAt time.Time         `json:"updated_at"`
}

// Clone returns a deep copy so callers never observe in-place mutations.
func (m Message) Clone() Message {
	cp := m
	if m.Metadata != nil {
		cp.Metadata = make(datatypes.JSONMap, len(m.Metadata))
		for k, v := range m.Metadata {
			cp.Metadata[k] = cloneMetadataValue(v)
		}
	}
	if m.Reactions != nil {
		cp.Reactions = make(ReactionSet, len(m.Reactions))
		for emoji, users := range m.Reactions {
			cp.Reactions[emoji] = append([]string(nil), users...)
		}
	}
	if m.EditedAt != nil {
		at := *m.EditedAt
		cp.EditedAt = &at
	}
	return cp
}

// TaskCompleted reports the completion state of a task message.
func (m Message) TaskCompleted() bool {
	completed, _ := m.Metadata["completed"].(bool)
	return completed
}

// PollOptions returns the poll's option list, tolerating JSON round-trips.
func (m Message) PollOptions() []string {
	return toStringSlice(m.Metadata["options"])
}

// PollVotes returns the user-id to option mapping, tolerating JSON round-trips.
func (m Message) PollVotes() map[string]string {
	switch votes := m.Metadata["votes"].(type) {
	case map[string]string:
		out := make(map[string]string, len(votes))
		for k, v := range votes {
			out[k] = v
		}
		return out
	case map[string]interface{}:
		out := make(map[string]string, len(votes))
		for k, v := range votes {
			if s, ok := v.(string); ok {
				out[k] = s
			}
		}
		return out
	}
	return map[string]string{}
}

func toStringSlice(value interface{}) []string {
	switch v := value.(type) {
	case []string:
		return append([]string(nil), v...)
	case []interface{}:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

func cloneMetadataValue(value interface{}) interface{} {
	switch v := value.(type) {
	case map[string]string:
		out := make(map[string]string, len(v))
		for k, item := range v {
			out[k] = item
		}
		return out
	case map[string]interface{}:
		out := make(map[string]interface{}, len(v))
		for k, item := range v {
			out[k] = cloneMetadataValue(item)
		}
		return out
	case []string:
		return append([]string(nil), v...)
	case []interface{}:
		out := make([]interface{}, len(v))
		for i, item := range v {
			out[i] = cloneMetadataValue(item)
		}
		return out
	default:
		return v
	}
}
