package realtime

import (
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

// fakeConn captures writes so tests can assert delivery order.
type fakeConn struct {
	mu     sync.Mutex
	writes []Event
	closed bool
}

func (f *fakeConn) WriteJSON(v interface{}) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if event, ok := v.(Event); ok {
		f.writes = append(f.writes, event)
	}
	return nil
}

func (f *fakeConn) WriteMessage(messageType int, data []byte) error {
	return nil
}

func (f *fakeConn) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *fakeConn) written() []Event {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]Event, len(f.writes))
	copy(out, f.writes)
	return out
}

func TestWSSessionDeliversInOrder(t *testing.T) {
	conn := &fakeConn{}
	session := NewWSSession(conn, zerolog.Nop())
	defer session.Close()

	kinds := []string{EventNewMessage, EventMessageUpdated, EventMessageDeleted}
	for _, kind := range kinds {
		require.NoError(t, session.Send(Event{Kind: kind}))
	}

	require.Eventually(t, func() bool {
		return len(conn.written()) == len(kinds)
	}, time.Second, 5*time.Millisecond)

	written := conn.written()
	for i, kind := range kinds {
		require.Equal(t, kind, written[i].Kind)
	}
}

func TestWSSessionSendAfterClose(t *testing.T) {
	conn := &fakeConn{}
	session := NewWSSession(conn, zerolog.Nop())

	session.Close()
	session.Close() // second close is a no-op

	require.ErrorIs(t, session.Send(Event{Kind: EventNewMessage}), ErrSessionClosed)

	conn.mu.Lock()
	closed := conn.closed
	conn.mu.Unlock()
	require.True(t, closed)

	select {
	case <-session.Done():
	default:
		t.Fatal("expected done channel to be closed")
	}
}
