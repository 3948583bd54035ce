package service

import (
	"context"
	"sync"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/deeplink-chat/deeplink-go-api/internal/dto"
	"github.com/deeplink-chat/deeplink-go-api/internal/models"
	"github.com/deeplink-chat/deeplink-go-api/internal/realtime"
	"github.com/deeplink-chat/deeplink-go-api/internal/store"
)

type schedulerStub struct {
	mu        sync.Mutex
	scheduled []models.Message
}

func (s *schedulerStub) Schedule(message models.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.scheduled = append(s.scheduled, message)
}

func (s *schedulerStub) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.scheduled)
}

func newMessageFixture(t *testing.T) (*store.Store, MessageService) {
	t.Helper()
	st := store.New(store.Persistence{}, zerolog.Nop())

	ctx := context.Background()
	for _, id := range []string{"alice", "bob"} {
		_, err := st.CreateUser(ctx, models.User{ID: id, Username: id})
		require.NoError(t, err)
	}
	_, err := st.CreateUser(ctx, models.User{ID: "mallory", Username: "mallory"})
	require.NoError(t, err)

	_, err = st.CreateChannel(ctx, models.Channel{
		ID:      "general",
		Name:    "general",
		Kind:    models.ChannelKindChat,
		Members: []string{"alice", "bob"},
	})
	require.NoError(t, err)

	svc := NewMessageService(st, validator.New(validator.WithRequiredStructEnabled()), "general", zerolog.Nop())
	return st, svc
}

func sendText(t *testing.T, svc MessageService, sender, content string) dto.MessageResponse {
	t.Helper()
	response, event, err := svc.Send(context.Background(), sender, dto.MessageSendRequest{
		ChannelID: "general",
		Content:   content,
	})
	require.NoError(t, err)
	require.Equal(t, realtime.EventNewMessage, event.Kind)
	return response
}

func TestSendDefaultsToText(t *testing.T) {
	_, svc := newMessageFixture(t)

	response, event, err := svc.Send(context.Background(), "alice", dto.MessageSendRequest{
		ChannelID: "general",
		Content:   "hello there",
	})
	require.NoError(t, err)
	require.Equal(t, models.MessageTypeText, response.Type)
	require.Equal(t, "alice", response.SenderName)
	require.Equal(t, realtime.EventNewMessage, event.Kind)
	require.Equal(t, "general", event.ChannelID)
	require.Equal(t, response.ID, event.MessageID)
}

func TestSendStripsMarkup(t *testing.T) {
	_, svc := newMessageFixture(t)

	response := sendText(t, svc, "alice", `<script>alert("x")</script>hello`)
	require.Equal(t, "hello", response.Content)

	_, _, err := svc.Send(context.Background(), "alice", dto.MessageSendRequest{
		ChannelID: "general",
		Content:   `<script>alert("x")</script>`,
	})
	require.ErrorIs(t, err, ErrValidation)
}

func TestSendUnknownSender(t *testing.T) {
	_, svc := newMessageFixture(t)

	_, _, err := svc.Send(context.Background(), "ghost", dto.MessageSendRequest{
		ChannelID: "general",
		Content:   "hello",
	})
	require.ErrorIs(t, err, store.ErrNotFound)
}

func TestSendTaskAndPollDefaults(t *testing.T) {
	_, svc := newMessageFixture(t)

	task, _, err := svc.Send(context.Background(), "alice", dto.MessageSendRequest{
		ChannelID: "general",
		Type:      models.MessageTypeTask,
		Content:   "ship the release",
	})
	require.NoError(t, err)
	require.Equal(t, false, task.Metadata["completed"])

	poll, _, err := svc.Send(context.Background(), "alice", dto.MessageSendRequest{
		ChannelID: "general",
		Type:      models.MessageTypePoll,
		Content:   "deploy on friday?",
	})
	require.NoError(t, err)
	require.Equal(t, []string{"Yes", "No"}, poll.Metadata["options"])
	require.Empty(t, poll.Metadata["votes"])
}

func TestSendLinkPreviewMetadata(t *testing.T) {
	_, svc := newMessageFixture(t)

	link, _, err := svc.Send(context.Background(), "alice", dto.MessageSendRequest{
		ChannelID: "general",
		Type:      models.MessageTypeLink,
		Content:   "https://example.com/launch",
	})
	require.NoError(t, err)
	require.Equal(t, true, link.Metadata["preview"])
	require.Equal(t, "Link from alice", link.Metadata["title"])

	plain, _, err := svc.Send(context.Background(), "alice", dto.MessageSendRequest{
		ChannelID: "general",
		Type:      models.MessageTypeLink,
		Content:   "not a url",
	})
	require.NoError(t, err)
	require.NotContains(t, plain.Metadata, "preview")
}

func TestSendSchedulesReplyForQuestions(t *testing.T) {
	_, svc := newMessageFixture(t)
	scheduler := &schedulerStub{}
	svc.SetReplyScheduler(scheduler)

	sendText(t, svc, "alice", "how does this work?")
	require.Equal(t, 1, scheduler.count())

	// Statements, bot traffic and system traffic never trigger a reply.
	sendText(t, svc, "alice", "just an update")
	sendText(t, svc, models.BotSenderID, "is this recursive?")
	sendText(t, svc, models.SystemSenderID, "maintenance window?")
	require.Equal(t, 1, scheduler.count())
}

func TestReactToggles(t *testing.T) {
	_, svc := newMessageFixture(t)
	message := sendText(t, svc, "alice", "hello")

	payload := dto.ReactionRequest{ChannelID: "general", MessageID: message.ID, Emoji: "🔥"}

	reacted, event, err := svc.React(context.Background(), "bob", payload)
	require.NoError(t, err)
	require.Equal(t, realtime.EventMessageUpdated, event.Kind)
	require.Equal(t, []string{"bob"}, reacted.Reactions["🔥"])

	// Reacting again removes the user and drops the empty emoji key.
	removed, _, err := svc.React(context.Background(), "bob", payload)
	require.NoError(t, err)
	require.NotContains(t, removed.Reactions, "🔥")
}

func TestCompleteTaskIsOneWay(t *testing.T) {
	_, svc := newMessageFixture(t)

	task, _, err := svc.Send(context.Background(), "alice", dto.MessageSendRequest{
		ChannelID: "general",
		Type:      models.MessageTypeTask,
		Content:   "write the report",
	})
	require.NoError(t, err)

	payload := dto.TaskActionRequest{ChannelID: "general", MessageID: task.ID}

	done, event, err := svc.CompleteTask(context.Background(), "bob", payload)
	require.NoError(t, err)
	require.Equal(t, realtime.EventMessageUpdated, event.Kind)
	require.Equal(t, true, done.Metadata["completed"])
	require.Equal(t, "bob", done.Metadata["completed_by"])

	// Completing again changes nothing and raises no event.
	again, event, err := svc.CompleteTask(context.Background(), "alice", payload)
	require.NoError(t, err)
	require.Empty(t, event.Kind)
	require.Equal(t, "bob", again.Metadata["completed_by"])
}

func TestCompleteTaskRejectsNonTask(t *testing.T) {
	_, svc := newMessageFixture(t)
	message := sendText(t, svc, "alice", "hello")

	_, _, err := svc.CompleteTask(context.Background(), "bob", dto.TaskActionRequest{ChannelID: "general", MessageID: message.ID})
	require.ErrorIs(t, err, ErrValidation)
}

func TestVoteLastChoiceWins(t *testing.T) {
	_, svc := newMessageFixture(t)

	poll, _, err := svc.Send(context.Background(), "alice", dto.MessageSendRequest{
		ChannelID: "general",
		Type:      models.MessageTypePoll,
		Content:   "deploy on friday?",
	})
	require.NoError(t, err)

	_, _, err = svc.Vote(context.Background(), "bob", dto.VoteRequest{ChannelID: "general", MessageID: poll.ID, Option: "Yes"})
	require.NoError(t, err)

	updated, _, err := svc.Vote(context.Background(), "bob", dto.VoteRequest{ChannelID: "general", MessageID: poll.ID, Option: "No"})
	require.NoError(t, err)

	votes, ok := updated.Metadata["votes"].(map[string]string)
	require.True(t, ok)
	require.Equal(t, "No", votes["bob"])

	_, _, err = svc.Vote(context.Background(), "bob", dto.VoteRequest{ChannelID: "general", MessageID: poll.ID, Option: "Maybe"})
	require.ErrorIs(t, err, ErrValidation)
}

func TestEditOnlyBySender(t *testing.T) {
	_, svc := newMessageFixture(t)
	message := sendText(t, svc, "alice", "first draft")

	_, _, err := svc.Edit(context.Background(), "bob", dto.MessageEditRequest{
		ChannelID: "general",
		MessageID: message.ID,
		Content:   "hijacked",
	})
	require.ErrorIs(t, err, ErrForbidden)

	edited, event, err := svc.Edit(context.Background(), "alice", dto.MessageEditRequest{
		ChannelID: "general",
		MessageID: message.ID,
		Content:   "second draft",
	})
	require.NoError(t, err)
	require.Equal(t, realtime.EventMessageEdited, event.Kind)
	require.Equal(t, "second draft", edited.Content)
	require.True(t, edited.Edited)
	require.NotNil(t, edited.EditedAt)
}

func TestDeletePolicy(t *testing.T) {
	_, svc := newMessageFixture(t)
	message := sendText(t, svc, "alice", "delete me")

	// A registered user outside the channel may not delete someone else's message.
	_, _, err := svc.Delete(context.Background(), "mallory", dto.MessageDeleteRequest{ChannelID: "general", MessageID: message.ID})
	require.ErrorIs(t, err, ErrForbidden)

	// Any member of the channel may.
	deleted, event, err := svc.Delete(context.Background(), "bob", dto.MessageDeleteRequest{ChannelID: "general", MessageID: message.ID})
	require.NoError(t, err)
	require.Equal(t, realtime.EventMessageDeleted, event.Kind)
	require.True(t, deleted.Deleted)

	// Re-deleting is a silent no-op.
	_, event, err = svc.Delete(context.Background(), "alice", dto.MessageDeleteRequest{ChannelID: "general", MessageID: message.ID})
	require.NoError(t, err)
	require.Empty(t, event.Kind)

	listed, err := svc.List(context.Background(), "general", 0)
	require.NoError(t, err)
	require.Empty(t, listed)
}

func TestMutationsRejectTombstonedMessages(t *testing.T) {
	_, svc := newMessageFixture(t)
	message := sendText(t, svc, "alice", "short lived")

	_, _, err := svc.Delete(context.Background(), "alice", dto.MessageDeleteRequest{ChannelID: "general", MessageID: message.ID})
	require.NoError(t, err)

	_, _, err = svc.React(context.Background(), "bob", dto.ReactionRequest{ChannelID: "general", MessageID: message.ID, Emoji: "🔥"})
	require.ErrorIs(t, err, store.ErrNotFound)
}
