package handler_test

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/deeplink-chat/deeplink-go-api/internal/dto"
	"github.com/deeplink-chat/deeplink-go-api/internal/handler"
	"github.com/deeplink-chat/deeplink-go-api/internal/realtime"
	"github.com/deeplink-chat/deeplink-go-api/internal/service"
	"github.com/deeplink-chat/deeplink-go-api/internal/store"
)

type mockMessageService struct {
	response dto.MessageResponse
	event    realtime.Event
	err      error
	listed   []dto.MessageResponse
	listErr  error
}

func (m *mockMessageService) Send(_ context.Context, senderID string, payload dto.MessageSendRequest) (dto.MessageResponse, realtime.Event, error) {
	return m.response, m.event, m.err
}

func (m *mockMessageService) React(_ context.Context, userID string, payload dto.ReactionRequest) (dto.MessageResponse, realtime.Event, error) {
	return m.response, m.event, m.err
}

func (m *mockMessageService) CompleteTask(_ context.Context, userID string, payload dto.TaskActionRequest) (dto.MessageResponse, realtime.Event, error) {
	return m.response, m.event, m.err
}

func (m *mockMessageService) Vote(_ context.Context, userID string, payload dto.VoteRequest) (dto.MessageResponse, realtime.Event, error) {
	return m.response, m.event, m.err
}

func (m *mockMessageService) Edit(_ context.Context, userID string, payload dto.MessageEditRequest) (dto.MessageResponse, realtime.Event, error) {
	return m.response, m.event, m.err
}

func (m *mockMessageService) Delete(_ context.Context, userID string, payload dto.MessageDeleteRequest) (dto.MessageResponse, realtime.Event, error) {
	return m.response, m.event, m.err
}

func (m *mockMessageService) List(_ context.Context, channelID string, limit int) ([]dto.MessageResponse, error) {
	return m.listed, m.listErr
}

func (m *mockMessageService) SetReplyScheduler(scheduler service.ReplyScheduler) {}

type recordingPublisher struct {
	mu     sync.Mutex
	events []realtime.Event
}

func (p *recordingPublisher) Publish(_ context.Context, event realtime.Event, scope realtime.Scope) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
}

func (p *recordingPublisher) published() []realtime.Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]realtime.Event, len(p.events))
	copy(out, p.events)
	return out
}

type mockSummarizer struct {
	response dto.ChatSummaryResponse
	err      error
}

func (m *mockSummarizer) Summarize(channelID string) (dto.ChatSummaryResponse, error) {
	if m.err != nil {
		return dto.ChatSummaryResponse{}, m.err
	}
	return m.response, nil
}

func newMessageApp(svc service.MessageService, summarizer handler.Summarizer, publisher *recordingPublisher) *fiber.App {
	app := fiber.New()
	group := app.Group("/api/v1", stubAuth("u1"))
	handler.NewMessageHandler(svc, summarizer, publisher, 50, zerolog.New(io.Discard)).Register(group)
	return app
}

func TestMessageHandler_SendPublishesEvent(t *testing.T) {
	publisher := &recordingPublisher{}
	svc := &mockMessageService{
		response: dto.MessageResponse{ID: "m1", ChannelID: "general"},
		event:    realtime.Event{Kind: realtime.EventNewMessage, ChannelID: "general", MessageID: "m1"},
	}
	app := newMessageApp(svc, &mockSummarizer{}, publisher)

	resp, err := app.Test(jsonRequest(t, http.MethodPost, "/api/v1/messages", dto.MessageSendRequest{ChannelID: "general", Content: "hi"}))
	require.NoError(t, err)
	require.Equal(t, fiber.StatusCreated, resp.StatusCode)

	events := publisher.published()
	require.Len(t, events, 1)
	require.Equal(t, realtime.EventNewMessage, events[0].Kind)
}

func TestMessageHandler_NoopMutationPublishesNothing(t *testing.T) {
	publisher := &recordingPublisher{}
	svc := &mockMessageService{
		response: dto.MessageResponse{ID: "m1", ChannelID: "general", Deleted: true},
		event:    realtime.Event{},
	}
	app := newMessageApp(svc, &mockSummarizer{}, publisher)

	req := jsonRequest(t, http.MethodDelete, "/api/v1/messages", dto.MessageDeleteRequest{ChannelID: "general", MessageID: "m1"})
	resp, err := app.Test(req)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	require.Empty(t, publisher.published())
}

func TestMessageHandler_ListRequiresChannel(t *testing.T) {
	app := newMessageApp(&mockMessageService{}, &mockSummarizer{}, &recordingPublisher{})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/messages", nil)
	resp, err := app.Test(req)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
}

func TestMessageHandler_ListUnknownChannel(t *testing.T) {
	svc := &mockMessageService{listErr: store.ErrNotFound}
	app := newMessageApp(svc, &mockSummarizer{}, &recordingPublisher{})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/messages?channel_id=missing", nil)
	resp, err := app.Test(req)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusNotFound, resp.StatusCode)
}

func TestMessageHandler_Summary(t *testing.T) {
	summarizer := &mockSummarizer{response: dto.ChatSummaryResponse{
		ChannelID: "general",
		Summary:   "📊 Recent participants: alice. Topics discussed: tasks. Messages analyzed: 3.",
		Total:     3,
	}}
	app := newMessageApp(&mockMessageService{}, summarizer, &recordingPublisher{})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/chat/summary?channel_id=general", nil)
	resp, err := app.Test(req)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	var response struct {
		Data dto.ChatSummaryResponse `json:"data"`
	}
	decodeResponse(t, resp, &response)
	require.Equal(t, 3, response.Data.Total)
	require.Contains(t, response.Data.Summary, "Recent participants")
}

func TestMessageHandler_ForbiddenDelete(t *testing.T) {
	svc := &mockMessageService{err: service.ErrForbidden}
	app := newMessageApp(svc, &mockSummarizer{}, &recordingPublisher{})

	req := jsonRequest(t, http.MethodDelete, "/api/v1/messages", dto.MessageDeleteRequest{ChannelID: "general", MessageID: "m1"})
	resp, err := app.Test(req)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusForbidden, resp.StatusCode)
}
