package realtime

import (
	"errors"
	"sync"
	"time"

	"github.com/gofiber/websocket/v2"
	"github.com/rs/zerolog"
)

const (
	sessionSendBuffer = 32
	keepaliveInterval = 30 * time.Second
)

// ErrSessionClosed is returned by Send after the session has been torn down.
var ErrSessionClosed = errors.New("session closed")

// ErrSessionBusy is returned when the peer cannot keep up with delivery.
var ErrSessionBusy = errors.New("session send buffer full")

// Conn is the subset of a websocket connection the session writer needs.
// Both gofiber and gorilla connections satisfy it.
type Conn interface {
	WriteJSON(v interface{}) error
	WriteMessage(messageType int, data []byte) error
	Close() error
}

// WSSession adapts a websocket connection into a Session with a buffered,
// order-preserving delivery queue drained by a dedicated writer goroutine.
type WSSession struct {
	conn   Conn
	send   chan Event
	closed chan struct{}
	once   sync.Once
	logger zerolog.Logger
}

// NewWSSession wraps the connection and starts its writer goroutine.
func NewWSSession(conn Conn, logger zerolog.Logger) *WSSession {
	s := &WSSession{
		conn:   conn,
		send:   make(chan Event, sessionSendBuffer),
		closed: make(chan struct{}),
		logger: logger.With().Str("component", "ws_session").Logger(),
	}
	go s.writer()
	return s
}

// Send enqueues the event for ordered delivery without blocking the caller.
func (s *WSSession) Send(event Event) error {
	select {
	case <-s.closed:
		return ErrSessionClosed
	default:
	}

	select {
	case s.send <- event:
		return nil
	default:
		return ErrSessionBusy
	}
}

// Close tears the session down; safe to call more than once.
func (s *WSSession) Close() {
	s.once.Do(func() {
		close(s.closed)
		_ = s.conn.Close()
	})
}

// Done is closed once the session has been torn down.
func (s *WSSession) Done() <-chan struct{} {
	return s.closed
}

func (s *WSSession) writer() {
	keepalive := time.NewTicker(keepaliveInterval)
	defer keepalive.Stop()

	for {
		select {
		case event := <-s.send:
			if err := s.conn.WriteJSON(event); err != nil {
				s.logger.Debug().Err(err).Msg("session write failed")
				s.Close()
				return
			}
		case <-keepalive.C:
			if err := s.conn.WriteMessage(websocket.PingMessage, []byte("keepalive")); err != nil {
				s.logger.Debug().Err(err).Msg("session ping failed")
				s.Close()
				return
			}
		case <-s.closed:
			return
		}
	}
}
