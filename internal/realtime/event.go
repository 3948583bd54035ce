package realtime

// Outbound event kinds delivered to sessions.
const (
	EventNewMessage     = "new_message"
	EventMessageUpdated = "message_updated"
	EventMessageDeleted = "message_deleted"
	EventMessageEdited  = "message_edited"
	EventUserOnline     = "user_online"
	EventUserOffline    = "user_offline"
	EventUserTyping     = "user_typing"
)

// Event is the descriptor raised by every mutating core operation and fanned
// out to live sessions by the dispatcher.
type Event struct {
	Kind      string                 `json:"type"`
	ChannelID string                 `json:"channel_id,omitempty"`
	MessageID string                 `json:"message_id,omitempty"`
	Payload   map[string]interface{} `json:"payload,omitempty"`
}

// Scope selects which sessions an event is delivered to.
type Scope struct {
	ChannelID string
}

// ScopeAll targets every known session.
func ScopeAll() Scope { return Scope{} }

// ScopeChannel targets sessions whose user is a member of the channel.
func ScopeChannel(channelID string) Scope { return Scope{ChannelID: channelID} }

// Global reports whether the scope targets all sessions.
func (s Scope) Global() bool { return s.ChannelID == "" }
