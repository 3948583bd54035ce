package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/microcosm-cc/bluemonday"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/datatypes"

	"github.com/deeplink-chat/deeplink-go-api/internal/dto"
	"github.com/deeplink-chat/deeplink-go-api/internal/models"
	"github.com/deeplink-chat/deeplink-go-api/internal/observability"
	"github.com/deeplink-chat/deeplink-go-api/internal/realtime"
	"github.com/deeplink-chat/deeplink-go-api/internal/store"
)

// ReplyScheduler schedules an automated reply to the given message. The call
// must never block.
type ReplyScheduler interface {
	Schedule(message models.Message)
}

// MessageService validates and appends messages, applies per-type payload
// transitions and raises the change events the dispatcher consumes. It never
// talks to transport itself.
type MessageService interface {
	Send(ctx context.Context, senderID string, payload dto.MessageSendRequest) (dto.MessageResponse, realtime.Event, error)
	React(ctx context.Context, userID string, payload dto.ReactionRequest) (dto.MessageResponse, realtime.Event, error)
	CompleteTask(ctx context.Context, userID string, payload dto.TaskActionRequest) (dto.MessageResponse, realtime.Event, error)
	Vote(ctx context.Context, userID string, payload dto.VoteRequest) (dto.MessageResponse, realtime.Event, error)
	Edit(ctx context.Context, userID string, payload dto.MessageEditRequest) (dto.MessageResponse, realtime.Event, error)
	Delete(ctx context.Context, userID string, payload dto.MessageDeleteRequest) (dto.MessageResponse, realtime.Event, error)
	List(ctx context.Context, channelID string, limit int) ([]dto.MessageResponse, error)
	SetReplyScheduler(scheduler ReplyScheduler)
}

type messageService struct {
	store          *store.Store
	validator      *validator.Validate
	sanitizer      *bluemonday.Policy
	logger         zerolog.Logger
	tracer         trace.Tracer
	generalChannel string
	scheduler      ReplyScheduler
}

// NewMessageService constructs the message engine. generalChannel names the
// channel whose question-bearing text messages trigger the responder.
func NewMessageService(st *store.Store, validate *validator.Validate, generalChannel string, logger zerolog.Logger) MessageService {
	sanitizer := bluemonday.UGCPolicy()
	sanitizer.AllowElements("br")

	return &messageService{
		store:          st,
		validator:      validate,
		sanitizer:      sanitizer,
		logger:         logger.With().Str("component", "message_service").Logger(),
		tracer:         otel.Tracer("github.com/deeplink-chat/deeplink-go-api/internal/service/message"),
		generalChannel: generalChannel,
	}
}

// SetReplyScheduler wires the ancillary responder after construction; the
// responder itself sends through this service.
func (s *messageService) SetReplyScheduler(scheduler ReplyScheduler) {
	s.scheduler = scheduler
}

func (s *messageService) Send(ctx context.Context, senderID string, payload dto.MessageSendRequest) (dto.MessageResponse, realtime.Event, error) {
	if err := s.validator.Struct(payload); err != nil {
		return dto.MessageResponse{}, realtime.Event{}, err
	}

	messageType := payload.Type
	if messageType == "" {
		messageType = models.MessageTypeText
	}
	if !models.ValidMessageType(messageType) {
		return dto.MessageResponse{}, realtime.Event{}, fmt.Errorf("%w: unknown message type %q", ErrValidation, messageType)
	}

	content := strings.TrimSpace(s.sanitizer.Sanitize(payload.Content))
	if content == "" {
		return dto.MessageResponse{}, realtime.Event{}, fmt.Errorf("%w: content empty after sanitization", ErrValidation)
	}

	sender, err := s.resolveSender(senderID)
	if err != nil {
		return dto.MessageResponse{}, realtime.Event{}, err
	}

	spanCtx, span := s.tracer.Start(ctx, "message.send", trace.WithAttributes(
		attribute.String("message.channel_id", payload.ChannelID),
		attribute.String("message.sender_id", senderID),
		attribute.String("message.type", messageType),
	))
	defer span.End()

	message := models.Message{
		ID:        uuid.NewString(),
		ChannelID: payload.ChannelID,
		SenderID:  senderID,
		Type:      messageType,
		Content:   content,
		Metadata:  s.defaultMetadata(messageType, content, sender, payload.Metadata),
		Reactions: models.ReactionSet{},
	}

	stored, err := s.store.AppendMessage(spanCtx, message)
	if err != nil {
		span.RecordError(err)
		return dto.MessageResponse{}, realtime.Event{}, err
	}

	observability.MessagesSent().WithLabelValues(messageType).Inc()

	if s.scheduler != nil &&
		messageType == models.MessageTypeText &&
		stored.ChannelID == s.generalChannel &&
		strings.Contains(stored.Content, "?") &&
		senderID != models.SystemSenderID && senderID != models.BotSenderID {
		s.scheduler.Schedule(stored)
	}

	response := dto.NewMessageResponse(stored, sender)
	event := realtime.Event{
		Kind:      realtime.EventNewMessage,
		ChannelID: stored.ChannelID,
		MessageID: stored.ID,
		Payload:   map[string]interface{}{"message": response},
	}
	return response, event, nil
}

// React toggles the user's membership in the emoji's reaction set: absent
// adds, present removes.
func (s *messageService) React(ctx context.Context, userID string, payload dto.ReactionRequest) (dto.MessageResponse, realtime.Event, error) {
	if err := s.validator.Struct(payload); err != nil {
		return dto.MessageResponse{}, realtime.Event{}, err
	}
	if _, err := s.store.GetUser(userID); err != nil {
		return dto.MessageResponse{}, realtime.Event{}, err
	}

	updated, err := s.mutateLive(ctx, payload.ChannelID, payload.MessageID, func(message *models.Message) error {
		if message.Reactions == nil {
			message.Reactions = models.ReactionSet{}
		}
		users := message.Reactions[payload.Emoji]
		for i, id := range users {
			if id == userID {
				users = append(users[:i], users[i+1:]...)
				if len(users) == 0 {
					delete(message.Reactions, payload.Emoji)
				} else {
					message.Reactions[payload.Emoji] = users
				}
				return nil
			}
		}
		message.Reactions[payload.Emoji] = append(users, userID)
		return nil
	})
	if err != nil {
		return dto.MessageResponse{}, realtime.Event{}, err
	}

	return s.updatedEvent(updated)
}

// CompleteTask transitions a task message to completed exactly once;
// repeating the call is a no-op that returns the current state.
func (s *messageService) CompleteTask(ctx context.Context, userID string, payload dto.TaskActionRequest) (dto.MessageResponse, realtime.Event, error) {
	if err := s.validator.Struct(payload); err != nil {
		return dto.MessageResponse{}, realtime.Event{}, err
	}
	if _, err := s.store.GetUser(userID); err != nil {
		return dto.MessageResponse{}, realtime.Event{}, err
	}

	alreadyDone := false
	updated, err := s.mutateLive(ctx, payload.ChannelID, payload.MessageID, func(message *models.Message) error {
		if message.Type != models.MessageTypeTask {
			return fmt.Errorf("%w: message is not a task", ErrValidation)
		}
		if message.TaskCompleted() {
			alreadyDone = true
			return nil
		}
		message.Metadata["completed"] = true
		message.Metadata["completed_by"] = userID
		return nil
	})
	if err != nil {
		return dto.MessageResponse{}, realtime.Event{}, err
	}

	if alreadyDone {
		return s.enrich(updated), realtime.Event{}, nil
	}
	return s.updatedEvent(updated)
}

// Vote upserts the user's poll choice; the last vote wins.
func (s *messageService) Vote(ctx context.Context, userID string, payload dto.VoteRequest) (dto.MessageResponse, realtime.Event, error) {
	if err := s.validator.Struct(payload); err != nil {
		return dto.MessageResponse{}, realtime.Event{}, err
	}
	if _, err := s.store.GetUser(userID); err != nil {
		return dto.MessageResponse{}, realtime.Event{}, err
	}

	updated, err := s.mutateLive(ctx, payload.ChannelID, payload.MessageID, func(message *models.Message) error {
		if message.Type != models.MessageTypePoll {
			return fmt.Errorf("%w: message is not a poll", ErrValidation)
		}
		valid := false
		for _, option := range message.PollOptions() {
			if option == payload.Option {
				valid = true
				break
			}
		}
		if !valid {
			return fmt.Errorf("%w: unknown poll option %q", ErrValidation, payload.Option)
		}
		votes := message.PollVotes()
		votes[userID] = payload.Option
		message.Metadata["votes"] = votes
		return nil
	})
	if err != nil {
		return dto.MessageResponse{}, realtime.Event{}, err
	}

	return s.updatedEvent(updated)
}

// Edit replaces a message's content; only the original sender may edit.
func (s *messageService) Edit(ctx context.Context, userID string, payload dto.MessageEditRequest) (dto.MessageResponse, realtime.Event, error) {
	if err := s.validator.Struct(payload); err != nil {
		return dto.MessageResponse{}, realtime.Event{}, err
	}

	content := strings.TrimSpace(s.sanitizer.Sanitize(payload.Content))
	if content == "" {
		return dto.MessageResponse{}, realtime.Event{}, fmt.Errorf("%w: content empty after sanitization", ErrValidation)
	}

	updated, err := s.mutateLive(ctx, payload.ChannelID, payload.MessageID, func(message *models.Message) error {
		if message.SenderID != userID {
			return ErrForbidden
		}
		now := time.Now()
		message.Content = content
		message.Edited = true
		message.EditedAt = &now
		return nil
	})
	if err != nil {
		return dto.MessageResponse{}, realtime.Event{}, err
	}

	response := s.enrich(updated)
	event := realtime.Event{
		Kind:      realtime.EventMessageEdited,
		ChannelID: updated.ChannelID,
		MessageID: updated.ID,
		Payload: map[string]interface{}{
			"content":   updated.Content,
			"edited_at": updated.EditedAt,
		},
	}
	return response, event, nil
}

// Delete tombstones a message. The sender or any member of the channel may
// delete; re-deleting is a no-op. The record is retained so the id stays
// resolvable.
func (s *messageService) Delete(ctx context.Context, userID string, payload dto.MessageDeleteRequest) (dto.MessageResponse, realtime.Event, error) {
	if err := s.validator.Struct(payload); err != nil {
		return dto.MessageResponse{}, realtime.Event{}, err
	}

	channel, err := s.store.GetChannel(payload.ChannelID)
	if err != nil {
		return dto.MessageResponse{}, realtime.Event{}, err
	}

	alreadyDeleted := false
	updated, err := s.store.UpdateMessage(ctx, payload.ChannelID, payload.MessageID, func(message *models.Message) error {
		if message.SenderID != userID && !channel.HasMember(userID) {
			return ErrForbidden
		}
		if message.Deleted {
			alreadyDeleted = true
			return nil
		}
		message.Deleted = true
		return nil
	})
	if err != nil {
		return dto.MessageResponse{}, realtime.Event{}, err
	}

	response := s.enrich(updated)
	if alreadyDeleted {
		return response, realtime.Event{}, nil
	}

	event := realtime.Event{
		Kind:      realtime.EventMessageDeleted,
		ChannelID: updated.ChannelID,
		MessageID: updated.ID,
	}
	return response, event, nil
}

// List returns the channel's most recent non-deleted messages, oldest first.
func (s *messageService) List(ctx context.Context, channelID string, limit int) ([]dto.MessageResponse, error) {
	messages, err := s.store.ListMessages(channelID, limit)
	if err != nil {
		return nil, err
	}

	out := make([]dto.MessageResponse, 0, len(messages))
	for _, message := range messages {
		out = append(out, s.enrich(message))
	}
	return out, nil
}

// mutateLive applies fn to a message that must not be tombstoned.
func (s *messageService) mutateLive(ctx context.Context, channelID, messageID string, fn func(*models.Message) error) (models.Message, error) {
	return s.store.UpdateMessage(ctx, channelID, messageID, func(message *models.Message) error {
		if message.Deleted {
			return store.ErrNotFound
		}
		return fn(message)
	})
}

func (s *messageService) updatedEvent(message models.Message) (dto.MessageResponse, realtime.Event, error) {
	response := s.enrich(message)
	event := realtime.Event{
		Kind:      realtime.EventMessageUpdated,
		ChannelID: message.ChannelID,
		MessageID: message.ID,
		Payload: map[string]interface{}{
			"reactions": message.Reactions,
			"metadata":  message.Metadata,
		},
	}
	return response, event, nil
}

func (s *messageService) enrich(message models.Message) dto.MessageResponse {
	sender, err := s.resolveSender(message.SenderID)
	if err != nil {
		sender = models.User{ID: message.SenderID, Username: "unknown"}
	}
	return dto.NewMessageResponse(message, sender)
}

// resolveSender looks the sender up in the store, short-circuiting the two
// reserved ids that have no user record.
func (s *messageService) resolveSender(senderID string) (models.User, error) {
	switch senderID {
	case models.SystemSenderID:
		return models.User{ID: models.SystemSenderID, Username: "System", Avatar: "🔔"}, nil
	case models.BotSenderID:
		return models.User{ID: models.BotSenderID, Username: "LinkBot", Avatar: "🤖"}, nil
	}
	return s.store.GetUser(senderID)
}

func (s *messageService) defaultMetadata(messageType, content string, sender models.User, seed map[string]interface{}) datatypes.JSONMap {
	metadata := datatypes.JSONMap{}
	for k, v := range seed {
		metadata[k] = v
	}

	switch messageType {
	case models.MessageTypeTask:
		metadata["completed"] = false
		delete(metadata, "completed_by")
	case models.MessageTypePoll:
		if _, ok := metadata["options"]; !ok {
			metadata["options"] = []string{"Yes", "No"}
		}
		metadata["votes"] = map[string]string{}
	case models.MessageTypeLink:
		if strings.HasPrefix(content, "http://") || strings.HasPrefix(content, "https://") {
			metadata["preview"] = true
			metadata["title"] = fmt.Sprintf("Link from %s", sender.Username)
			metadata["description"] = "Open to follow"
		}
	}
	return metadata
}
