package client

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/fireflycare/firefly-BE/internal/db"
	"github.com/fireflycare/firefly-BE/internal/event"
	"github.com/rs/zerolog/log"
)

// State is the connection indicator exposed to the embedding application.
// Raw transport errors are never surfaced; the state is the whole story.
type State string

const (
	StateDisconnected State = "disconnected"
	StateConnecting   State = "connecting"
	StateConnected    State = "connected"
	StateRetrying     State = "retrying"
	StatePolling      State = "polling"
)

const (
	defaultMaxRetries   = 3
	defaultBaseBackoff  = 2 * time.Second
	defaultPollInterval = 60 * time.Second
	defaultMaxBuffered  = 50
)

// Transport abstracts the two ways the controller reaches the server: the
// live SSE stream and the REST polling fallback.
type Transport interface {
	OpenStream(ctx context.Context) (io.ReadCloser, error)
	ListNotifications(ctx context.Context) ([]db.Notification, int64, error)
}

// Options configures a Controller. Zero values fall back to the defaults.
type Options struct {
	// OnNotification fires for every notification received, streamed or
	// polled.
	OnNotification func(db.Notification)

	// OnUnreadCount fires whenever the authoritative unread counter changes.
	OnUnreadCount func(int64)

	// OnStateChange fires on every connection state transition.
	OnStateChange func(State)

	MaxRetries   int
	BaseBackoff  time.Duration
	PollInterval time.Duration
	MaxBuffered  int
}

// Controller maintains one live notification stream for one user, retrying
// with exponential backoff and degrading to REST polling when the stream
// cannot be held open.
type Controller struct {
	transport Transport
	opts      Options

	// sleep is swapped out in tests to make backoff observable.
	sleep func(ctx context.Context, d time.Duration) error

	mu            sync.Mutex
	state         State
	retries       int
	unreadCount   int64
	notifications []db.Notification
}

func New(transport Transport, opts Options) *Controller {
	if opts.MaxRetries <= 0 {
		opts.MaxRetries = defaultMaxRetries
	}
	if opts.BaseBackoff <= 0 {
		opts.BaseBackoff = defaultBaseBackoff
	}
	if opts.PollInterval < defaultPollInterval {
		opts.PollInterval = defaultPollInterval
	}
	if opts.MaxBuffered <= 0 {
		opts.MaxBuffered = defaultMaxBuffered
	}

	return &Controller{
		transport: transport,
		opts:      opts,
		sleep:     sleepContext,
		state:     StateDisconnected,
	}
}

type outcome int

const (
	outcomeConnectFailed outcome = iota
	outcomeStreamClosed
	outcomeNotSynced
	outcomeCanceled
)

// Run drives the connection state machine until ctx is cancelled. It always
// returns the ctx error.
func (c *Controller) Run(ctx context.Context) error {
	defer c.setState(StateDisconnected)

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		switch c.runStream(ctx) {
		case outcomeCanceled:
			return ctx.Err()
		case outcomeNotSynced:
			// The server told us our user row does not exist yet.
			// Reconnecting cannot fix that; go straight to polling.
			if err := c.runPolling(ctx); err != nil {
				return err
			}
		case outcomeConnectFailed, outcomeStreamClosed:
			retry := c.bumpRetries()
			if retry > c.opts.MaxRetries {
				if err := c.runPolling(ctx); err != nil {
					return err
				}
				continue
			}

			c.setState(StateRetrying)
			if err := c.sleep(ctx, c.opts.BaseBackoff<<(retry-1)); err != nil {
				return err
			}
		}
	}
}

func (c *Controller) runStream(ctx context.Context) outcome {
	c.setState(StateConnecting)

	stream, err := c.transport.OpenStream(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return outcomeCanceled
		}
		log.Debug().Err(err).Msg("stream open failed")
		return outcomeConnectFailed
	}

	return c.consumeStream(ctx, stream)
}

// runPolling is the degraded mode: fetch notifications over REST on every
// tick and attempt one stream reconnect per tick. A successful reconnect
// hands control back to Run with the retry counter reset.
func (c *Controller) runPolling(ctx context.Context) error {
	c.setState(StatePolling)

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		c.pollOnce(ctx)

		if stream, err := c.transport.OpenStream(ctx); err == nil {
			c.resetRetries()
			switch c.consumeStream(ctx, stream) {
			case outcomeCanceled:
				return ctx.Err()
			case outcomeNotSynced:
				c.setState(StatePolling)
			default:
				// The stream was live and then dropped; resume the normal
				// retry ladder from the top.
				return nil
			}
		}

		if err := c.sleep(ctx, c.opts.PollInterval); err != nil {
			return err
		}
	}
}

// consumeStream reads SSE frames until the stream ends. Malformed frames and
// unknown event types are skipped so newer servers stay compatible with
// older clients.
func (c *Controller) consumeStream(ctx context.Context, stream io.ReadCloser) outcome {
	defer stream.Close()

	// Unblock the scanner when ctx ends mid-read.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			stream.Close()
		case <-done:
		}
	}()

	scanner := bufio.NewScanner(stream)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if !strings.HasPrefix(line, "data: ") {
			continue
		}

		var frame struct {
			Type string          `json:"type"`
			Data json.RawMessage `json:"data"`
		}
		if err := json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &frame); err != nil {
			log.Debug().Err(err).Msg("skipping malformed frame")
			continue
		}

		switch frame.Type {
		case event.EventTypeConnected:
			c.resetRetries()
			c.setState(StateConnected)
		case event.EventTypeNotification:
			var n db.Notification
			if err := json.Unmarshal(frame.Data, &n); err != nil {
				log.Debug().Err(err).Msg("skipping malformed notification frame")
				continue
			}
			c.pushNotification(n)
		case event.EventTypeUnreadCount:
			var data struct {
				Count int64 `json:"count"`
			}
			if err := json.Unmarshal(frame.Data, &data); err != nil {
				continue
			}
			c.setUnreadCount(data.Count)
		case event.EventTypeUserNotSynced:
			return outcomeNotSynced
		case event.EventTypeHeartbeat:
			// liveness only
		}
	}

	if ctx.Err() != nil {
		return outcomeCanceled
	}
	return outcomeStreamClosed
}

// pollOnce refreshes the local cache over REST. Errors are swallowed; the
// polling state already tells the application things are degraded.
func (c *Controller) pollOnce(ctx context.Context) {
	notifications, unreadCount, err := c.transport.ListNotifications(ctx)
	if err != nil {
		log.Debug().Err(err).Msg("poll failed")
		return
	}

	if len(notifications) > c.opts.MaxBuffered {
		notifications = notifications[:c.opts.MaxBuffered]
	}

	c.mu.Lock()
	c.notifications = notifications
	c.mu.Unlock()

	c.setUnreadCount(unreadCount)
}

func (c *Controller) pushNotification(n db.Notification) {
	c.mu.Lock()
	c.notifications = append([]db.Notification{n}, c.notifications...)
	if len(c.notifications) > c.opts.MaxBuffered {
		c.notifications = c.notifications[:c.opts.MaxBuffered]
	}
	c.mu.Unlock()

	if c.opts.OnNotification != nil {
		c.opts.OnNotification(n)
	}
}

func (c *Controller) setUnreadCount(count int64) {
	c.mu.Lock()
	changed := c.unreadCount != count
	c.unreadCount = count
	c.mu.Unlock()

	if changed && c.opts.OnUnreadCount != nil {
		c.opts.OnUnreadCount(count)
	}
}

func (c *Controller) setState(state State) {
	c.mu.Lock()
	changed := c.state != state
	c.state = state
	c.mu.Unlock()

	if changed && c.opts.OnStateChange != nil {
		c.opts.OnStateChange(state)
	}
}

func (c *Controller) bumpRetries() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.retries++
	return c.retries
}

func (c *Controller) resetRetries() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.retries = 0
}

// State returns the current connection state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.state
}

// UnreadCount returns the last unread counter received from the server.
func (c *Controller) UnreadCount() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.unreadCount
}

// Notifications returns a copy of the cached notification list, newest
// first.
func (c *Controller) Notifications() []db.Notification {
	c.mu.Lock()
	defer c.mu.Unlock()

	return append([]db.Notification{}, c.notifications...)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
