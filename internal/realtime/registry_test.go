package realtime

import (
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

// fakeSession records delivered events and close calls.
type fakeSession struct {
	mu      sync.Mutex
	events  []Event
	sendErr error
	closed  bool
}

func (f *fakeSession) Send(event Event) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return f.sendErr
	}
	f.events = append(f.events, event)
	return nil
}

func (f *fakeSession) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
}

func (f *fakeSession) isClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

func (f *fakeSession) delivered() []Event {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]Event, len(f.events))
	copy(out, f.events)
	return out
}

func TestRegistryRegisterSupersedesPrevious(t *testing.T) {
	registry := NewRegistry(zerolog.Nop())

	first := &fakeSession{}
	second := &fakeSession{}

	require.Nil(t, registry.Register("u1", first))
	replaced := registry.Register("u1", second)

	require.Same(t, Session(first), replaced)
	require.True(t, first.isClosed())
	require.False(t, second.isClosed())

	current, ok := registry.SessionFor("u1")
	require.True(t, ok)
	require.Same(t, Session(second), current)
	require.Equal(t, 1, registry.Len())
}

func TestRegistryUnregisterOnlyRemovesCurrentSession(t *testing.T) {
	registry := NewRegistry(zerolog.Nop())

	first := &fakeSession{}
	second := &fakeSession{}
	registry.Register("u1", first)
	registry.Register("u1", second)

	// The superseded connection's teardown must not evict the replacement.
	require.False(t, registry.Unregister("u1", first))
	_, ok := registry.SessionFor("u1")
	require.True(t, ok)

	require.True(t, registry.Unregister("u1", second))
	_, ok = registry.SessionFor("u1")
	require.False(t, ok)

	require.False(t, registry.Unregister("u1", second))
}

func TestRegistryOnlineSnapshot(t *testing.T) {
	registry := NewRegistry(zerolog.Nop())
	registry.Register("u1", &fakeSession{})
	registry.Register("u2", &fakeSession{})

	require.ElementsMatch(t, []string{"u1", "u2"}, registry.Online())
	require.Len(t, registry.Snapshot(), 2)
}
