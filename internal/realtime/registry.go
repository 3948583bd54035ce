package realtime

import (
	"sync"

	"github.com/rs/zerolog"
)

// Session is the live binding between a user and one transport connection.
// Send must enqueue without blocking and report a closed or saturated peer
// through its error.
type Session interface {
	Send(event Event) error
	Close()
}

// Registry maps user ids to their single active session. Registration and
// dispatch race by design (a user can disconnect mid-broadcast), so every
// access is mutex-guarded.
type Registry struct {
	mu       sync.Mutex
	sessions map[string]Session
	logger   zerolog.Logger
}

// NewRegistry constructs an empty session registry.
func NewRegistry(logger zerolog.Logger) *Registry {
	return &Registry{
		sessions: make(map[string]Session),
		logger:   logger.With().Str("component", "session_registry").Logger(),
	}
}

// Register binds the session to the user, superseding and closing any prior
// session for the same user. The replaced session, if any, is returned.
func (r *Registry) Register(userID string, session Session) Session {
	r.mu.Lock()
	previous := r.sessions[userID]
	r.sessions[userID] = session
	r.mu.Unlock()

	if previous != nil {
		previous.Close()
		r.logger.Debug().Str("user_id", userID).Msg("superseded existing session")
	}
	return previous
}

// Unregister drops the mapping only while it still points at the given
// session, so a superseded connection cannot tear down its replacement.
// Unregistering an absent user is a no-op. Reports whether a mapping was
// removed.
func (r *Registry) Unregister(userID string, session Session) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	current, ok := r.sessions[userID]
	if !ok {
		return false
	}
	if session != nil && current != session {
		return false
	}
	delete(r.sessions, userID)
	return true
}

// SessionFor returns the active session for the user, if any.
func (r *Registry) SessionFor(userID string) (Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	session, ok := r.sessions[userID]
	return session, ok
}

// Snapshot returns a copy of the current user-to-session mapping so callers
// can iterate without holding the registry lock.
func (r *Registry) Snapshot() map[string]Session {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make(map[string]Session, len(r.sessions))
	for userID, session := range r.sessions {
		out[userID] = session
	}
	return out
}

// Online returns the ids of users with an active session.
func (r *Registry) Online() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]string, 0, len(r.sessions))
	for userID := range r.sessions {
		out = append(out, userID)
	}
	return out
}

// Len reports the number of active sessions.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}
