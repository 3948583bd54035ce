package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/deeplink-chat/deeplink-go-api/internal/dto"
	"github.com/deeplink-chat/deeplink-go-api/internal/models"
	"github.com/deeplink-chat/deeplink-go-api/internal/realtime"
	"github.com/deeplink-chat/deeplink-go-api/internal/store"
)

// ChannelService exposes channel listing and creation use-cases.
type ChannelService interface {
	List(ctx context.Context) (dto.ChannelListResponse, error)
	Create(ctx context.Context, creatorID string, payload dto.ChannelCreateRequest) (dto.ChannelResponse, []realtime.Event, error)
	Direct(ctx context.Context, userID string, payload dto.DirectChannelRequest) (dto.ChannelResponse, error)
}

type channelService struct {
	store          *store.Store
	messages       MessageService
	validator      *validator.Validate
	generalChannel string
	logger         zerolog.Logger
}

// NewChannelService constructs the channel service. The message service is
// used to author the system announcement when a channel is created.
func NewChannelService(st *store.Store, messages MessageService, validate *validator.Validate, generalChannel string, logger zerolog.Logger) ChannelService {
	return &channelService{
		store:          st,
		messages:       messages,
		validator:      validate,
		generalChannel: generalChannel,
		logger:         logger.With().Str("component", "channel_service").Logger(),
	}
}

// List returns all channels plus the users currently flagged online.
func (s *channelService) List(ctx context.Context) (dto.ChannelListResponse, error) {
	channels := s.store.ListChannels()
	out := make([]dto.ChannelResponse, 0, len(channels))
	for _, channel := range channels {
		out = append(out, dto.NewChannelResponse(channel, s.store.UnreadCount(channel.ID)))
	}

	online := make([]models.User, 0)
	for _, user := range s.store.ListUsers() {
		if user.Online {
			online = append(online, user)
		}
	}

	return dto.ChannelListResponse{
		Channels: out,
		Users:    dto.NewUserResponseSlice(online),
	}, nil
}

// Create allocates a new channel with every registered user as a member and
// announces it with a system message in the general channel.
func (s *channelService) Create(ctx context.Context, creatorID string, payload dto.ChannelCreateRequest) (dto.ChannelResponse, []realtime.Event, error) {
	if err := s.validator.Struct(payload); err != nil {
		return dto.ChannelResponse{}, nil, err
	}

	name := strings.TrimSpace(payload.Name)
	if name == "" {
		return dto.ChannelResponse{}, nil, fmt.Errorf("%w: channel name required", ErrValidation)
	}

	kind := payload.Kind
	if kind == "" {
		kind = models.ChannelKindChat
	}
	if !models.ValidChannelKind(kind) {
		return dto.ChannelResponse{}, nil, fmt.Errorf("%w: unknown channel kind %q", ErrValidation, kind)
	}

	if _, err := s.store.GetUser(creatorID); err != nil {
		return dto.ChannelResponse{}, nil, err
	}

	members := make([]string, 0)
	for _, user := range s.store.ListUsers() {
		members = append(members, user.ID)
	}

	channel := models.Channel{
		ID:      uuid.NewString()[:8],
		Name:    name,
		Kind:    kind,
		Members: members,
	}

	created, err := s.store.CreateChannel(ctx, channel)
	if err != nil {
		return dto.ChannelResponse{}, nil, err
	}
	s.logger.Info().Str("channel_id", created.ID).Str("kind", created.Kind).Msg("channel created")

	var events []realtime.Event
	_, announce, err := s.messages.Send(ctx, models.SystemSenderID, dto.MessageSendRequest{
		ChannelID: s.generalChannel,
		Type:      models.MessageTypeText,
		Content:   fmt.Sprintf("🔔 New channel created: %s", created.Name),
		Metadata:  map[string]interface{}{"system": true},
	})
	if err != nil {
		s.logger.Warn().Err(err).Msg("failed to announce channel creation")
	} else {
		events = append(events, announce)
	}

	return dto.NewChannelResponse(created, 0), events, nil
}

// Direct returns the private 1:1 channel for the caller and peer, creating it
// only when no channel exists for the unordered pair.
func (s *channelService) Direct(ctx context.Context, userID string, payload dto.DirectChannelRequest) (dto.ChannelResponse, error) {
	if err := s.validator.Struct(payload); err != nil {
		return dto.ChannelResponse{}, err
	}
	if payload.PeerID == userID {
		return dto.ChannelResponse{}, fmt.Errorf("%w: cannot open a direct channel with yourself", ErrValidation)
	}

	user, err := s.store.GetUser(userID)
	if err != nil {
		return dto.ChannelResponse{}, err
	}
	peer, err := s.store.GetUser(payload.PeerID)
	if err != nil {
		return dto.ChannelResponse{}, err
	}

	template := models.Channel{
		ID:   uuid.NewString()[:8],
		Name: fmt.Sprintf("%s ↔ %s", user.Username, peer.Username),
	}
	channel, created, err := s.store.FindOrCreatePrivateChannel(ctx, userID, payload.PeerID, template)
	if err != nil {
		return dto.ChannelResponse{}, err
	}
	if created {
		s.logger.Info().Str("channel_id", channel.ID).Msg("direct channel created")
	}

	return dto.NewChannelResponse(channel, s.store.UnreadCount(channel.ID)), nil
}
