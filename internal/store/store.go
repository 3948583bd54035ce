// Package store holds the in-memory source of truth for users, channels and
// messages. All access is serialised through a single mutex so every operation
// appears atomic to concurrent connection handlers; a narrow repository layer
// persists mutations write-through for restart recovery.
package store

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"gorm.io/datatypes"

	"github.com/deeplink-chat/deeplink-go-api/internal/models"
	"github.com/deeplink-chat/deeplink-go-api/internal/repository"
)

// ErrNotFound indicates the requested user, channel or message does not exist.
var ErrNotFound = errors.New("entity not found")

// ErrConflict indicates a uniqueness invariant would be violated.
var ErrConflict = errors.New("entity already exists")

// ErrInvalid indicates the entity is malformed and was never stored.
var ErrInvalid = errors.New("invalid entity")

// Persistence groups the repositories the store writes through to. Any field
// may be nil, in which case that entity kind lives in memory only.
type Persistence struct {
	Users    repository.UserRepository
	Channels repository.ChannelRepository
	Messages repository.MessageRepository
}

// Store owns all entity state. The zero value is not usable; use New.
type Store struct {
	mu        sync.Mutex
	users     map[string]*models.User
	usernames map[string]string // lowercase username -> user id
	channels  map[string]*models.Channel
	ordered   []string                     // channel ids in creation order
	messages  map[string][]*models.Message // channel id -> insertion order
	byID      map[string]*models.Message   // message id -> message

	persist Persistence
	logger  zerolog.Logger
	now     func() time.Time
}

// New constructs an empty store. Call Load to hydrate it from persistence.
func New(persist Persistence, logger zerolog.Logger) *Store {
	return &Store{
		users:     make(map[string]*models.User),
		usernames: make(map[string]string),
		channels:  make(map[string]*models.Channel),
		messages:  make(map[string][]*models.Message),
		byID:      make(map[string]*models.Message),
		persist:   persist,
		logger:    logger.With().Str("component", "store").Logger(),
		now:       time.Now,
	}
}

// Load hydrates the store from the repositories. Messages are re-attached to
// their channels in creation order.
func (s *Store) Load(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.persist.Users != nil {
		users, err := s.persist.Users.List(ctx)
		if err != nil {
			return err
		}
		for i := range users {
			user := users[i]
			user.Online = false
			s.users[user.ID] = &user
			s.usernames[strings.ToLower(user.Username)] = user.ID
		}
	}

	if s.persist.Channels != nil {
		channels, err := s.persist.Channels.List(ctx)
		if err != nil {
			return err
		}
		for i := range channels {
			channel := channels[i]
			s.channels[channel.ID] = &channel
			s.ordered = append(s.ordered, channel.ID)
		}
	}

	if s.persist.Messages != nil {
		messages, err := s.persist.Messages.ListAll(ctx)
		if err != nil {
			return err
		}
		sort.SliceStable(messages, func(i, j int) bool {
			return messages[i].CreatedAt.Before(messages[j].CreatedAt)
		})
		for i := range messages {
			message := messages[i]
			s.messages[message.ChannelID] = append(s.messages[message.ChannelID], &message)
			s.byID[message.ID] = &message
		}
	}

	s.logger.Info().
		Int("users", len(s.users)).
		Int("channels", len(s.channels)).
		Int("messages", len(s.byID)).
		Msg("store hydrated")

	return nil
}

// CreateUser registers a new user. Username uniqueness is case-insensitive.
func (s *Store) CreateUser(ctx context.Context, user models.User) (models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := strings.ToLower(strings.TrimSpace(user.Username))
	if key == "" {
		return models.User{}, ErrInvalid
	}
	if _, taken := s.usernames[key]; taken {
		return models.User{}, ErrConflict
	}

	now := s.now()
	user.CreatedAt = now
	user.UpdatedAt = now
	user.LastSeen = now

	stored := user.Clone()
	s.users[stored.ID] = &stored
	s.usernames[key] = stored.ID
	s.persistUser(ctx, stored)

	return stored.Clone(), nil
}

// FindUserByUsername resolves a user by case-insensitive username.
func (s *Store) FindUserByUsername(username string) (models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, ok := s.usernames[strings.ToLower(strings.TrimSpace(username))]
	if !ok {
		return models.User{}, ErrNotFound
	}
	return s.users[id].Clone(), nil
}

// GetUser resolves a user by id.
func (s *Store) GetUser(id string) (models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	user, ok := s.users[id]
	if !ok {
		return models.User{}, ErrNotFound
	}
	return user.Clone(), nil
}

// ListUsers returns every registered user in no particular order.
func (s *Store) ListUsers() []models.User {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]models.User, 0, len(s.users))
	for _, user := range s.users {
		out = append(out, user.Clone())
	}
	return out
}

// UserCount returns the number of registered users.
func (s *Store) UserCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.users)
}

// UpdateUser applies fn to the user under the store lock and persists the result.
func (s *Store) UpdateUser(ctx context.Context, id string, fn func(*models.User)) (models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	user, ok := s.users[id]
	if !ok {
		return models.User{}, ErrNotFound
	}

	fn(user)
	user.UpdatedAt = s.now()
	s.persistUser(ctx, *user)

	return user.Clone(), nil
}

// SetPresence flips the session-independent online flag and stamps last_seen.
func (s *Store) SetPresence(ctx context.Context, id string, online bool) (models.User, error) {
	return s.UpdateUser(ctx, id, func(user *models.User) {
		user.Online = online
		user.LastSeen = s.now()
	})
}

// CreateChannel registers a new channel.
func (s *Store) CreateChannel(ctx context.Context, channel models.Channel) (models.Channel, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.createChannelLocked(ctx, channel)
}

func (s *Store) createChannelLocked(ctx context.Context, channel models.Channel) (models.Channel, error) {
	if _, exists := s.channels[channel.ID]; exists {
		return models.Channel{}, ErrConflict
	}

	now := s.now()
	channel.CreatedAt = now
	channel.UpdatedAt = now

	stored := channel.Clone()
	s.channels[stored.ID] = &stored
	s.ordered = append(s.ordered, stored.ID)
	s.persistChannel(ctx, stored)

	return stored.Clone(), nil
}

// GetChannel resolves a channel by id.
func (s *Store) GetChannel(id string) (models.Channel, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	channel, ok := s.channels[id]
	if !ok {
		return models.Channel{}, ErrNotFound
	}
	return channel.Clone(), nil
}

// ListChannels returns all channels in creation order.
func (s *Store) ListChannels() []models.Channel {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]models.Channel, 0, len(s.ordered))
	for _, id := range s.ordered {
		out = append(out, s.channels[id].Clone())
	}
	return out
}

// FindOrCreatePrivateChannel returns the private channel for the unordered
// pair (a, b), creating it with the supplied template only when no existing
// channel matches. The boolean reports whether a channel was created.
func (s *Store) FindOrCreatePrivateChannel(ctx context.Context, a, b string, template models.Channel) (models.Channel, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, id := range s.ordered {
		channel := s.channels[id]
		if channel.Kind != models.ChannelKindPrivate || len(channel.Members) != 2 {
			continue
		}
		if (channel.Members[0] == a && channel.Members[1] == b) ||
			(channel.Members[0] == b && channel.Members[1] == a) {
			return channel.Clone(), false, nil
		}
	}

	template.Kind = models.ChannelKindPrivate
	template.Members = datatypes.JSONSlice[string]{a, b}
	created, err := s.createChannelLocked(ctx, template)
	if err != nil {
		return models.Channel{}, false, err
	}
	return created, true, nil
}

// AddChannelMember adds userID to the channel's member set; idempotent.
func (s *Store) AddChannelMember(ctx context.Context, channelID, userID string) (models.Channel, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	channel, ok := s.channels[channelID]
	if !ok {
		return models.Channel{}, ErrNotFound
	}
	if !channel.HasMember(userID) {
		channel.Members = append(channel.Members, userID)
		channel.UpdatedAt = s.now()
		s.persistChannel(ctx, *channel)
	}
	return channel.Clone(), nil
}

// AddUserToPublicChannels joins the user to every non-private channel.
func (s *Store) AddUserToPublicChannels(ctx context.Context, userID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, id := range s.ordered {
		channel := s.channels[id]
		if channel.Kind == models.ChannelKindPrivate || channel.Kind == models.ChannelKindSelf {
			continue
		}
		if !channel.HasMember(userID) {
			channel.Members = append(channel.Members, userID)
			channel.UpdatedAt = s.now()
			s.persistChannel(ctx, *channel)
		}
	}
}

// AppendMessage appends a message to its channel's ordered history.
func (s *Store) AppendMessage(ctx context.Context, message models.Message) (models.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.channels[message.ChannelID]; !ok {
		return models.Message{}, ErrNotFound
	}
	if _, exists := s.byID[message.ID]; exists {
		return models.Message{}, ErrConflict
	}

	now := s.now()
	message.CreatedAt = now
	message.UpdatedAt = now

	stored := message.Clone()
	s.messages[stored.ChannelID] = append(s.messages[stored.ChannelID], &stored)
	s.byID[stored.ID] = &stored
	s.persistMessage(ctx, stored)

	return stored.Clone(), nil
}

// ListMessages returns the most recent limit non-deleted messages of the
// channel, oldest first.
func (s *Store) ListMessages(channelID string, limit int) ([]models.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.channels[channelID]; !ok {
		return nil, ErrNotFound
	}
	if limit <= 0 {
		limit = 50
	}

	history := s.messages[channelID]
	visible := make([]*models.Message, 0, len(history))
	for _, message := range history {
		if !message.Deleted {
			visible = append(visible, message)
		}
	}
	if len(visible) > limit {
		visible = visible[len(visible)-limit:]
	}

	out := make([]models.Message, 0, len(visible))
	for _, message := range visible {
		out = append(out, message.Clone())
	}
	return out, nil
}

// GetMessage resolves a message by id within its channel. Tombstoned messages
// remain resolvable for idempotent deletes and concurrent viewers.
func (s *Store) GetMessage(channelID, messageID string) (models.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	message, ok := s.byID[messageID]
	if !ok || message.ChannelID != channelID {
		return models.Message{}, ErrNotFound
	}
	return message.Clone(), nil
}

// UnreadCount reports the number of unread, non-deleted messages in a channel.
func (s *Store) UnreadCount(channelID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	count := 0
	for _, message := range s.messages[channelID] {
		if !message.Read && !message.Deleted {
			count++
		}
	}
	return count
}

// UpdateMessage applies fn to the message under the store lock. When fn
// returns an error no mutation is persisted and the error is passed through.
func (s *Store) UpdateMessage(ctx context.Context, channelID, messageID string, fn func(*models.Message) error) (models.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	message, ok := s.byID[messageID]
	if !ok || message.ChannelID != channelID {
		return models.Message{}, ErrNotFound
	}

	// fn runs against a clone so a failed update leaves the stored message
	// untouched. The commit writes through the shared pointer, which both
	// byID and the channel slice reference.
	updated := message.Clone()
	if err := fn(&updated); err != nil {
		return models.Message{}, err
	}

	updated.UpdatedAt = s.now()
	*message = updated
	s.persistMessage(ctx, updated)

	return updated.Clone(), nil
}

// ChannelMembers resolves the member ids of a channel, used by the broadcast
// dispatcher to scope fan-out.
func (s *Store) ChannelMembers(channelID string) ([]string, error) {
	channel, err := s.GetChannel(channelID)
	if err != nil {
		return nil, err
	}
	return channel.Members, nil
}

// Persistence failures are logged and swallowed: the in-memory state stays
// authoritative and no caller-visible mutation is rolled back.

func (s *Store) persistUser(ctx context.Context, user models.User) {
	if s.persist.Users == nil {
		return
	}
	if err := s.persist.Users.Save(ctx, &user); err != nil {
		s.logger.Warn().Err(err).Str("user_id", user.ID).Msg("failed to persist user")
	}
}

func (s *Store) persistChannel(ctx context.Context, channel models.Channel) {
	if s.persist.Channels == nil {
		return
	}
	if err := s.persist.Channels.Save(ctx, &channel); err != nil {
		s.logger.Warn().Err(err).Str("channel_id", channel.ID).Msg("failed to persist channel")
	}
}

func (s *Store) persistMessage(ctx context.Context, message models.Message) {
	if s.persist.Messages == nil {
		return
	}
	if err := s.persist.Messages.Save(ctx, &message); err != nil {
		s.logger.Warn().Err(err).Str("message_id", message.ID).Msg("failed to persist message")
	}
}
