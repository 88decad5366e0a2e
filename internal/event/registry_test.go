package event

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestRegisterSupersedesPreviousConnection(t *testing.T) {
	registry := NewRegistry()

	first := registry.Register("user-1")
	second := registry.Register("user-1")

	require.NotEqual(t, first.ID, second.ID)
	require.Equal(t, 1, registry.Count())

	conn, ok := registry.Lookup("user-1")
	require.True(t, ok)
	require.Equal(t, second.ID, conn.ID)

	// Broadcasts target the superseding connection only.
	result := registry.Broadcast("user-1", Event{Type: EventTypeHeartbeat})
	require.True(t, result.Delivered)
	require.Equal(t, second.ID, result.ConnectionID)
	require.Len(t, second.Events(), 1)
	require.Len(t, first.Events(), 0)
}

func TestUnregisterGuardedByConnectionID(t *testing.T) {
	registry := NewRegistry()

	first := registry.Register("user-1")
	second := registry.Register("user-1")

	// The superseded stream tearing down must not evict its successor.
	registry.Unregister("user-1", first.ID)
	require.Equal(t, 1, registry.Count())

	registry.Unregister("user-1", second.ID)
	require.Equal(t, 0, registry.Count())

	// Idempotent.
	registry.Unregister("user-1", second.ID)
	require.Equal(t, 0, registry.Count())
}

func TestUnregisterClosesEventChannel(t *testing.T) {
	registry := NewRegistry()

	conn := registry.Register("user-1")
	registry.Unregister("user-1", conn.ID)

	_, open := <-conn.Events()
	require.False(t, open)
}

func TestIsHealthyDecaysWithoutHeartbeat(t *testing.T) {
	registry := NewRegistry()

	conn := registry.Register("user-1")
	require.True(t, registry.IsHealthy("user-1"))

	// Age the connection past the threshold without any timer firing.
	registry.mu.Lock()
	conn.LastHeartbeat = time.Now().Add(-HealthyThreshold - time.Second)
	registry.mu.Unlock()

	require.False(t, registry.IsHealthy("user-1"))
}

func TestIsHealthyWithoutConnection(t *testing.T) {
	registry := NewRegistry()
	require.False(t, registry.IsHealthy("nobody"))
}

func TestBroadcastEvictsStaleConnection(t *testing.T) {
	registry := NewRegistry()

	conn := registry.Register("user-1")
	registry.mu.Lock()
	conn.LastHeartbeat = time.Now().Add(-HealthyThreshold - time.Second)
	registry.mu.Unlock()

	result := registry.Broadcast("user-1", Event{Type: EventTypeNotification})
	require.False(t, result.Delivered)
	require.ErrorIs(t, result.Err, ErrConnectionStale)
	require.Equal(t, 0, registry.Count())

	_, open := <-conn.Events()
	require.False(t, open)
}

func TestBroadcastWithoutConnection(t *testing.T) {
	registry := NewRegistry()

	result := registry.Broadcast("nobody", Event{Type: EventTypeNotification})
	require.False(t, result.Delivered)
	require.ErrorIs(t, result.Err, ErrNoConnection)
}

func TestBroadcastEvictsSaturatedConnection(t *testing.T) {
	registry := NewRegistry()
	registry.Register("user-1")

	for i := 0; i < sendBufferSize; i++ {
		result := registry.Broadcast("user-1", Event{Type: EventTypeNotification, Data: i})
		require.True(t, result.Delivered)
	}

	result := registry.Broadcast("user-1", Event{Type: EventTypeNotification})
	require.False(t, result.Delivered)
	require.ErrorIs(t, result.Err, ErrSendBufferFull)
	require.Equal(t, 0, registry.Count())
}

func TestRecordHeartbeatAndDelivery(t *testing.T) {
	registry := NewRegistry()
	conn := registry.Register("user-1")

	registry.mu.Lock()
	conn.LastHeartbeat = time.Now().Add(-HealthyThreshold + time.Second)
	registry.mu.Unlock()

	registry.RecordHeartbeat("user-1", conn.ID)
	registry.RecordDelivery("user-1", conn.ID)

	// Stale connection id is ignored.
	registry.RecordHeartbeat("user-1", "someone-else")

	stats := registry.Stats()
	require.Len(t, stats, 1)
	require.Equal(t, int64(1), stats[0].HeartbeatCount)
	require.Equal(t, int64(1), stats[0].MessagesDelivered)
	require.True(t, stats[0].Healthy)
	require.WithinDuration(t, time.Now(), stats[0].LastHeartbeat, time.Second)
}

func TestUserIDs(t *testing.T) {
	registry := NewRegistry()
	registry.Register("user-1")
	registry.Register("user-2")

	require.ElementsMatch(t, []string{"user-1", "user-2"}, registry.UserIDs())
}
