package handler_test

import (
	"context"
	"fmt"
	"io"
	"net"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/deeplink-chat/deeplink-go-api/internal/dto"
	"github.com/deeplink-chat/deeplink-go-api/internal/handler"
	"github.com/deeplink-chat/deeplink-go-api/internal/models"
	"github.com/deeplink-chat/deeplink-go-api/internal/realtime"
	"github.com/deeplink-chat/deeplink-go-api/internal/service"
	"github.com/deeplink-chat/deeplink-go-api/internal/store"
)

type wsTestServer struct {
	addr     string
	identity service.IdentityService
	app      *fiber.App
}

func startWSServer(t *testing.T) *wsTestServer {
	t.Helper()
	logger := zerolog.New(io.Discard)

	entityStore := store.New(store.Persistence{}, logger)
	_, err := entityStore.CreateChannel(context.Background(), models.Channel{
		ID:   "general",
		Name: "general",
		Kind: models.ChannelKindChat,
	})
	require.NoError(t, err)

	validate := validator.New(validator.WithRequiredStructEnabled())
	identity := service.NewIdentityService(entityStore, validate, "ws-test-secret", logger)

	registry := realtime.NewRegistry(logger)
	dispatcher := realtime.NewDispatcher(registry, entityStore, entityStore, nil, nil, "", logger)

	app := fiber.New(fiber.Config{DisableStartupMessage: true})
	handler.NewWSHandler(identity, dispatcher, entityStore, "general", logger).Register(app.Group("/api/v1"))

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	go func() {
		_ = app.Listener(ln)
	}()
	t.Cleanup(func() {
		_ = app.Shutdown()
	})

	return &wsTestServer{addr: ln.Addr().String(), identity: identity, app: app}
}

func (s *wsTestServer) registerUser(t *testing.T, username string) dto.AuthResponse {
	t.Helper()
	response, err := s.identity.Register(context.Background(), dto.RegisterRequest{Username: username})
	require.NoError(t, err)
	return response
}

func (s *wsTestServer) dial(t *testing.T, token string) *websocket.Conn {
	t.Helper()
	url := fmt.Sprintf("ws://%s/api/v1/ws?token=%s", s.addr, token)
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = conn.Close()
	})
	return conn
}

func readEventOfKind(t *testing.T, conn *websocket.Conn, kind string) realtime.Event {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	for {
		var event realtime.Event
		require.NoError(t, conn.ReadJSON(&event))
		if event.Kind == kind {
			return event
		}
	}
}

func TestWebsocketRejectsInvalidToken(t *testing.T) {
	server := startWSServer(t)

	url := fmt.Sprintf("ws://%s/api/v1/ws?token=garbage", server.addr)
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		return // handshake refused outright, also acceptable
	}
	defer conn.Close()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var event realtime.Event
	require.Error(t, conn.ReadJSON(&event))
}

func TestWebsocketAnnouncesPresenceAndTyping(t *testing.T) {
	server := startWSServer(t)

	alice := server.registerUser(t, "alice")
	bob := server.registerUser(t, "bob")

	aliceConn := server.dial(t, alice.AccessToken)
	online := readEventOfKind(t, aliceConn, realtime.EventUserOnline)
	require.Equal(t, alice.User.ID, online.Payload["user_id"])

	bobConn := server.dial(t, bob.AccessToken)
	bobOnline := readEventOfKind(t, aliceConn, realtime.EventUserOnline)
	require.Equal(t, bob.User.ID, bobOnline.Payload["user_id"])

	require.NoError(t, bobConn.WriteJSON(map[string]string{
		"type":       "typing",
		"channel_id": "general",
	}))

	typing := readEventOfKind(t, aliceConn, realtime.EventUserTyping)
	require.Equal(t, bob.User.ID, typing.Payload["user_id"])
	require.Equal(t, "bob", typing.Payload["username"])
	require.Equal(t, "general", typing.ChannelID)
}

func TestWebsocketPingPong(t *testing.T) {
	server := startWSServer(t)
	alice := server.registerUser(t, "alice")

	conn := server.dial(t, alice.AccessToken)
	readEventOfKind(t, conn, realtime.EventUserOnline)

	require.NoError(t, conn.WriteJSON(map[string]string{"type": "ping"}))
	pong := readEventOfKind(t, conn, "pong")
	require.Equal(t, "pong", pong.Kind)
}
