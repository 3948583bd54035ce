package models

import (
	"time"

	"gorm.io/datatypes"
)

// Channel kinds understood by the clients.
const (
	ChannelKindChat    = "chat"
	ChannelKindKanban  = "kanban"
	ChannelKindMedia   = "media"
	ChannelKindPrivate = "private"
	ChannelKindGroup   = "group"
	ChannelKindSelf    = "self"
)

// ValidChannelKind reports whether kind is one of the supported channel kinds.
func ValidChannelKind(kind string) bool {
	switch kind {
	case ChannelKindChat, ChannelKindKanban, ChannelKindMedia, ChannelKindPrivate, ChannelKindGroup, ChannelKindSelf:
		return true
	}
	return false
}

// Channel is a named container of messages and members.
type Channel struct {
	ID        string                     `gorm:"primaryKey;size:64" json:"id"`
	Name      string                     `gorm:"size:255;not null" json:"name"`
	Kind      string                     `gorm:"size:32;default:chat" json:"kind"`
	Members   datatypes.JSONSlice[string] `gorm:"type:json" json:"members"`
	Settings  datatypes.JSONMap          `gorm:"type:json" json:"settings"`
	CreatedAt time.Time                  `json:"created_at"`
	UpdatedAt time.Time                  `json:"updated_at"`
}

// HasMember reports whether userID belongs to the channel.
func (c Channel) HasMember(userID string) bool {
	for _, id := range c.Members {
		if id == userID {
			return true
		}
	}
	return false
}

// Clone returns an independent copy of the channel and its member list.
func (c Channel) Clone() Channel {
	cp := c
	cp.Members = append(datatypes.JSONSlice[string]{}, c.Members...)
	if c.Settings != nil {
		cp.Settings = make(datatypes.JSONMap, len(c.Settings))
		for k, v := range c.Settings {
			cp.Settings[k] = v
		}
	}
	return cp
}
