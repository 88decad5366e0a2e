package client

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/fireflycare/firefly-BE/internal/db"
	"github.com/stretchr/testify/require"
)

// fakeTransport serves a scripted sequence of OpenStream results. Attempts
// past the end of the script fail.
type fakeTransport struct {
	mu      sync.Mutex
	streams []func() (io.ReadCloser, error)
	opens   int

	notifications []db.Notification
	unreadCount   int64
	listErr       error
	polls         int
}

func (f *fakeTransport) OpenStream(_ context.Context) (io.ReadCloser, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	i := f.opens
	f.opens++
	if i < len(f.streams) {
		return f.streams[i]()
	}
	return nil, fmt.Errorf("connection refused")
}

func (f *fakeTransport) ListNotifications(_ context.Context) ([]db.Notification, int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.polls++
	if f.listErr != nil {
		return nil, 0, f.listErr
	}
	return f.notifications, f.unreadCount, nil
}

func failedOpen() (io.ReadCloser, error) {
	return nil, fmt.Errorf("connection refused")
}

func streamOf(frames ...string) func() (io.ReadCloser, error) {
	var b strings.Builder
	for _, frame := range frames {
		b.WriteString("data: " + frame + "\n\n")
	}
	body := b.String()
	return func() (io.ReadCloser, error) {
		return io.NopCloser(strings.NewReader(body)), nil
	}
}

func frame(t *testing.T, eventType string, data any) string {
	raw, err := json.Marshal(map[string]any{"type": eventType, "data": data})
	require.NoError(t, err)
	return string(raw)
}

// harness wires a controller with a recording sleep that cancels the run
// after a fixed number of sleeps.
type harness struct {
	ctrl   *Controller
	sleeps []time.Duration
	states []State
	cancel context.CancelFunc
}

func newHarness(t *testing.T, transport Transport, opts Options, cancelAfterSleeps int) (*harness, context.Context) {
	h := &harness{}

	prev := opts.OnStateChange
	opts.OnStateChange = func(s State) {
		h.states = append(h.states, s)
		if prev != nil {
			prev(s)
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	h.cancel = cancel
	t.Cleanup(cancel)

	h.ctrl = New(transport, opts)
	h.ctrl.sleep = func(ctx context.Context, d time.Duration) error {
		h.sleeps = append(h.sleeps, d)
		if len(h.sleeps) >= cancelAfterSleeps {
			cancel()
			return ctx.Err()
		}
		return nil
	}

	return h, ctx
}

func TestBackoffGrowsThenFallsBackToPolling(t *testing.T) {
	transport := &fakeTransport{}
	h, ctx := newHarness(t, transport, Options{}, 4)

	err := h.ctrl.Run(ctx)
	require.ErrorIs(t, err, context.Canceled)

	// Three doubling retries, then the polling interval.
	require.Equal(t, []time.Duration{
		2 * time.Second,
		4 * time.Second,
		8 * time.Second,
		60 * time.Second,
	}, h.sleeps)

	require.Contains(t, h.states, StateRetrying)
	require.Contains(t, h.states, StatePolling)
	require.NotContains(t, h.states, StateConnected)
	require.Equal(t, 1, transport.polls, "polling mode must fetch over REST")
	require.Equal(t, StateDisconnected, h.ctrl.State())
}

func TestUserNotSyncedShortCircuitsToPolling(t *testing.T) {
	transport := &fakeTransport{
		streams: []func() (io.ReadCloser, error){
			streamOf(frame(t, "user_not_synced", map[string]any{"user_id": "ghost"})),
		},
		notifications: []db.Notification{{ID: 1, Title: "polled"}, {ID: 2, Title: "older"}},
		unreadCount:   2,
	}
	h, ctx := newHarness(t, transport, Options{}, 1)

	err := h.ctrl.Run(ctx)
	require.ErrorIs(t, err, context.Canceled)

	// Straight to polling: no retry ladder for a user that does not exist.
	require.Equal(t, []State{StateConnecting, StatePolling, StateDisconnected}, h.states)
	require.Equal(t, int64(2), h.ctrl.UnreadCount())
	require.Len(t, h.ctrl.Notifications(), 2)
}

func TestStreamFrameHandling(t *testing.T) {
	var received []db.Notification
	var counts []int64

	transport := &fakeTransport{
		streams: []func() (io.ReadCloser, error){
			streamOf(
				frame(t, "connected", map[string]any{"connection_id": "c-1"}),
				frame(t, "notification", db.Notification{ID: 42, Title: "hello"}),
				frame(t, "unread_count", map[string]any{"count": 7}),
				frame(t, "heartbeat", nil),
				frame(t, "some_future_event", map[string]any{"x": 1}),
			),
		},
	}
	h, ctx := newHarness(t, transport, Options{
		OnNotification: func(n db.Notification) { received = append(received, n) },
		OnUnreadCount:  func(c int64) { counts = append(counts, c) },
	}, 1)

	err := h.ctrl.Run(ctx)
	require.ErrorIs(t, err, context.Canceled)

	require.Contains(t, h.states, StateConnected)
	require.Len(t, received, 1)
	require.Equal(t, "hello", received[0].Title)
	require.Equal(t, []int64{7}, counts)

	// Heartbeats and unknown event types leave no trace.
	notifications := h.ctrl.Notifications()
	require.Len(t, notifications, 1)
	require.Equal(t, int64(42), notifications[0].ID)
}

func TestNotificationListIsCappedNewestFirst(t *testing.T) {
	transport := &fakeTransport{
		streams: []func() (io.ReadCloser, error){
			streamOf(
				frame(t, "connected", nil),
				frame(t, "notification", db.Notification{ID: 1, Title: "first"}),
				frame(t, "notification", db.Notification{ID: 2, Title: "second"}),
				frame(t, "notification", db.Notification{ID: 3, Title: "third"}),
			),
		},
	}
	h, ctx := newHarness(t, transport, Options{MaxBuffered: 2}, 1)

	err := h.ctrl.Run(ctx)
	require.ErrorIs(t, err, context.Canceled)

	notifications := h.ctrl.Notifications()
	require.Len(t, notifications, 2)
	require.Equal(t, int64(3), notifications[0].ID)
	require.Equal(t, int64(2), notifications[1].ID)
}

func TestPollingReconnectResetsRetryLadder(t *testing.T) {
	transport := &fakeTransport{
		streams: []func() (io.ReadCloser, error){
			failedOpen,
			failedOpen,
			failedOpen,
			failedOpen, // retry budget spent, controller enters polling
			streamOf(frame(t, "connected", nil)), // reconnect from polling succeeds, then drops
		},
	}
	h, ctx := newHarness(t, transport, Options{}, 4)

	err := h.ctrl.Run(ctx)
	require.ErrorIs(t, err, context.Canceled)

	// After the reconnect-from-polling the ladder restarts at the base
	// delay instead of continuing to climb.
	require.Equal(t, []time.Duration{
		2 * time.Second,
		4 * time.Second,
		8 * time.Second,
		2 * time.Second,
	}, h.sleeps)

	require.Contains(t, h.states, StatePolling)
	require.Contains(t, h.states, StateConnected)
}
