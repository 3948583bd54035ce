package service

import (
	"context"
	"fmt"
	"math/rand/v2"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/deeplink-chat/deeplink-go-api/internal/dto"
	"github.com/deeplink-chat/deeplink-go-api/internal/models"
	"github.com/deeplink-chat/deeplink-go-api/internal/observability"
	"github.com/deeplink-chat/deeplink-go-api/internal/realtime"
	"github.com/deeplink-chat/deeplink-go-api/internal/store"
	"github.com/deeplink-chat/deeplink-go-api/pkg/ai"
)

// cannedReplies are used when no AI backend is configured or it fails.
var cannedReplies = []string{
	"🤖 That's an interesting question! Happy to dig into it together.",
	"🤖 Based on earlier discussion, I'd recommend checking the documentation.",
	"🤖 I'm LinkBot! I see you have a question. Try asking it more specifically.",
	"🤖 I'm still learning, but I'll give better answers soon!",
	"🤖 Noted your question. When the experts show up, they'll help out.",
}

const replierTimeout = 10 * time.Second

// EventPublisher is the dispatcher surface the responder needs.
type EventPublisher interface {
	Publish(ctx context.Context, event realtime.Event, scope realtime.Scope)
}

// Responder appends delayed automated replies to question-bearing messages.
// Scheduled jobs are keyed by the triggering message id and cancelled only by
// process shutdown, never by user action.
type Responder struct {
	messages  MessageService
	publisher EventPublisher
	store     *store.Store
	replier   ai.Replier
	delay     time.Duration
	logger    zerolog.Logger

	mu      sync.Mutex
	ctx     context.Context
	pending map[string]struct{}
}

// NewResponder constructs the responder. replier may be nil.
func NewResponder(messages MessageService, publisher EventPublisher, st *store.Store, replier ai.Replier, delay time.Duration, logger zerolog.Logger) *Responder {
	if delay <= 0 {
		delay = time.Second
	}
	return &Responder{
		messages:  messages,
		publisher: publisher,
		store:     st,
		replier:   replier,
		delay:     delay,
		logger:    logger.With().Str("component", "responder").Logger(),
		ctx:       context.Background(),
		pending:   make(map[string]struct{}),
	}
}

// Start binds the responder to the process lifetime; cancelling ctx drops all
// pending replies.
func (r *Responder) Start(ctx context.Context) {
	r.mu.Lock()
	r.ctx = ctx
	r.mu.Unlock()
}

// Schedule queues a reply to the message after the configured delay. It
// returns immediately and never blocks the triggering send. Re-scheduling the
// same message id is a no-op.
func (r *Responder) Schedule(message models.Message) {
	r.mu.Lock()
	if _, exists := r.pending[message.ID]; exists {
		r.mu.Unlock()
		return
	}
	r.pending[message.ID] = struct{}{}
	ctx := r.ctx
	r.mu.Unlock()

	go func() {
		defer func() {
			r.mu.Lock()
			delete(r.pending, message.ID)
			r.mu.Unlock()
		}()

		timer := time.NewTimer(r.delay)
		defer timer.Stop()

		select {
		case <-timer.C:
		case <-ctx.Done():
			return
		}

		r.reply(ctx, message)
	}()
}

func (r *Responder) reply(ctx context.Context, trigger models.Message) {
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error().Interface("panic", rec).Msg("responder reply panicked")
		}
	}()

	content := r.pickReply(ctx, trigger.Content)

	_, event, err := r.messages.Send(ctx, models.BotSenderID, dto.MessageSendRequest{
		ChannelID: trigger.ChannelID,
		Type:      models.MessageTypeText,
		Content:   content,
		Metadata: map[string]interface{}{
			"ai":            true,
			"responding_to": trigger.ID,
		},
	})
	if err != nil {
		r.logger.Warn().Err(err).Str("message_id", trigger.ID).Msg("failed to append automated reply")
		return
	}

	observability.ResponderReplies().Inc()
	r.publisher.Publish(ctx, event, realtime.ScopeChannel(trigger.ChannelID))
}

func (r *Responder) pickReply(ctx context.Context, prompt string) string {
	if r.replier != nil {
		replyCtx, cancel := context.WithTimeout(ctx, replierTimeout)
		defer cancel()
		if answer, err := r.replier.Reply(replyCtx, prompt); err == nil {
			return "🤖 " + answer
		} else {
			r.logger.Warn().Err(err).Msg("ai reply failed, falling back to canned reply")
		}
	}
	return cannedReplies[rand.IntN(len(cannedReplies))]
}

// topicKeywords drives the summary heuristic.
var topicKeywords = map[string][]string{
	"tasks":     {"task", "todo", "need to", "must"},
	"questions": {"question", "why", "how", "?"},
	"ideas":     {"idea", "proposal", "suggest"},
}

// Summarize produces a keyword digest of the channel's recent activity.
func (r *Responder) Summarize(channelID string) (dto.ChatSummaryResponse, error) {
	recent, err := r.store.ListMessages(channelID, 10)
	if err != nil {
		return dto.ChatSummaryResponse{}, err
	}
	if len(recent) < 3 {
		return dto.ChatSummaryResponse{
			ChannelID: channelID,
			Summary:   "Not enough messages to analyze",
			Total:     len(recent),
		}, nil
	}

	participantSet := make(map[string]struct{})
	topicSet := make(map[string]struct{})
	for _, message := range recent {
		participantSet[r.senderName(message.SenderID)] = struct{}{}
		lower := strings.ToLower(message.Content)
		for topic, keywords := range topicKeywords {
			for _, keyword := range keywords {
				if strings.Contains(lower, keyword) {
					topicSet[topic] = struct{}{}
					break
				}
			}
		}
	}

	participants := sortedKeys(participantSet)
	topics := sortedKeys(topicSet)

	topicsLabel := strings.Join(topics, ", ")
	if topicsLabel == "" {
		topicsLabel = "various topics"
	}

	return dto.ChatSummaryResponse{
		ChannelID:    channelID,
		Participants: participants,
		Topics:       topics,
		Total:        len(recent),
		Summary: fmt.Sprintf("📊 Recent participants: %s. Topics discussed: %s. Messages analyzed: %d.",
			strings.Join(participants, ", "), topicsLabel, len(recent)),
	}, nil
}

func (r *Responder) senderName(senderID string) string {
	switch senderID {
	case models.SystemSenderID:
		return "System"
	case models.BotSenderID:
		return "LinkBot"
	}
	if user, err := r.store.GetUser(senderID); err == nil {
		return user.Username
	}
	return senderID
}

func sortedKeys(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for key := range set {
		out = append(out, key)
	}
	sort.Strings(out)
	return out
}
