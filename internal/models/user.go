package models

import "time"

// Reserved sender ids recognised by the message engine without a user record.
const (
	SystemSenderID = "system"
	BotSenderID    = "ai_bot"
)

// User represents a registered messenger participant.
type User struct {
	ID        string    `gorm:"primaryKey;size:64" json:"id"`
	Username  string    `gorm:"size:64;uniqueIndex;not null" json:"username"`
	Nickname  string    `gorm:"size:64" json:"nickname,omitempty"`
	Avatar    string    `gorm:"size:16" json:"avatar"`
	Bio       string    `gorm:"type:text" json:"bio,omitempty"`
	Token     string    `gorm:"size:128" json:"token,omitempty"`
	Online    bool      `gorm:"not null;default:false" json:"online"`
	LastSeen  time.Time `json:"last_seen"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Clone returns an independent copy safe to hand to concurrent readers.
func (u User) Clone() User {
	return u
}
