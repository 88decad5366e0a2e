package event

import (
	"errors"
	"sync"
	"time"

	"github.com/fireflycare/firefly-BE/internal/util"
	"github.com/rs/zerolog/log"
)

var (
	ErrNoConnection    = errors.New("no live connection registered for user")
	ErrConnectionStale = errors.New("connection missed its heartbeat window")
	ErrSendBufferFull  = errors.New("connection send buffer is full")
)

// Connection is the in-memory state of one open stream. It is owned by the
// Registry for its lifetime; the stream endpoint only holds a transient
// reference while the transport is open. All mutable fields are guarded by
// the registry mutex.
type Connection struct {
	ID     string
	UserID string

	ch     chan Event
	closed bool

	ConnectedAt       time.Time
	LastHeartbeat     time.Time
	HeartbeatCount    int64
	MessagesDelivered int64
}

// Events returns the receive side of the connection's send buffer. The
// channel is closed when the connection is evicted or unregistered.
func (c *Connection) Events() <-chan Event {
	return c.ch
}

// BroadcastResult reports the outcome of one push attempt. Transport-level
// problems are converted into Err; Broadcast never panics.
type BroadcastResult struct {
	Delivered    bool
	ConnectionID string
	Err          error
}

// ConnectionStats is an operational snapshot of one live connection.
type ConnectionStats struct {
	ConnectionID      string    `json:"connection_id"`
	UserID            string    `json:"user_id"`
	ConnectedAt       time.Time `json:"connected_at"`
	LastHeartbeat     time.Time `json:"last_heartbeat"`
	HeartbeatCount    int64     `json:"heartbeat_count"`
	MessagesDelivered int64     `json:"messages_delivered"`
	AgeSeconds        int64     `json:"age_seconds"`
	Healthy           bool      `json:"healthy"`
}

// Registry is the process-wide map from user id to their single live
// connection. At most one connection is registered per user; a new stream
// silently supersedes the old one. The registry only reaches users connected
// to this process instance — a multi-instance deployment needs a shared
// pub/sub layer behind the same Broadcaster interface.
type Registry struct {
	mu    sync.Mutex
	conns map[string]*Connection
}

func NewRegistry() *Registry {
	return &Registry{
		conns: make(map[string]*Connection),
	}
}

// Register creates the connection state for a user and returns it. Any
// previous connection for the same user becomes unreachable for lookups and
// broadcasts, but is not closed here: if its stream is still physically
// open it keeps running until its own heartbeat fails or the client goes
// away, and its guarded Unregister cannot evict the successor.
func (r *Registry) Register(userID string) *Connection {
	now := time.Now()
	conn := &Connection{
		ID:            util.GenerateConnectionID(),
		UserID:        userID,
		ch:            make(chan Event, sendBufferSize),
		ConnectedAt:   now,
		LastHeartbeat: now,
	}

	r.mu.Lock()
	prev := r.conns[userID]
	r.conns[userID] = conn
	total := len(r.conns)
	r.mu.Unlock()

	evt := log.Info().Str("user_id", userID).Str("connection_id", conn.ID).Int("total_connections", total)
	if prev != nil {
		evt = evt.Str("superseded_connection_id", prev.ID)
	}
	evt.Msg("stream connection registered")

	return conn
}

// Lookup returns the currently registered connection for a user, if any.
func (r *Registry) Lookup(userID string) (*Connection, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	conn, ok := r.conns[userID]
	return conn, ok
}

// IsHealthy reports whether a user has a registered connection whose last
// successful heartbeat or delivery is within the healthy threshold. It is
// evaluated lazily so a broadcast right after a silent transport failure
// does not push to a half-dead connection.
func (r *Registry) IsHealthy(userID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	conn, ok := r.conns[userID]
	return ok && time.Since(conn.LastHeartbeat) < HealthyThreshold
}

// Unregister removes a user's connection and closes its send channel. The
// connection id guard keeps a superseded stream's teardown from evicting the
// connection that replaced it. Idempotent.
func (r *Registry) Unregister(userID, connectionID string) {
	r.mu.Lock()
	conn, ok := r.conns[userID]
	if !ok || conn.ID != connectionID {
		r.mu.Unlock()
		return
	}
	delete(r.conns, userID)
	r.closeLocked(conn)
	remaining := len(r.conns)
	r.mu.Unlock()

	log.Info().Str("user_id", userID).Str("connection_id", connectionID).
		Int("total_connections", remaining).Msg("stream connection unregistered")
}

// Broadcast pushes an event onto a user's live connection. Stale or
// saturated connections are evicted on the spot and reported in the result;
// the caller decides whether that matters (for the dispatcher it never does,
// the user may simply be offline).
func (r *Registry) Broadcast(userID string, ev Event) BroadcastResult {
	r.mu.Lock()
	defer r.mu.Unlock()

	conn, ok := r.conns[userID]
	if !ok {
		return BroadcastResult{Err: ErrNoConnection}
	}

	if time.Since(conn.LastHeartbeat) >= HealthyThreshold {
		delete(r.conns, userID)
		r.closeLocked(conn)
		log.Warn().Str("user_id", userID).Str("connection_id", conn.ID).
			Msg("evicted stale connection during broadcast")
		return BroadcastResult{ConnectionID: conn.ID, Err: ErrConnectionStale}
	}

	select {
	case conn.ch <- ev:
		return BroadcastResult{Delivered: true, ConnectionID: conn.ID}
	default:
		delete(r.conns, userID)
		r.closeLocked(conn)
		log.Warn().Str("user_id", userID).Str("connection_id", conn.ID).
			Msg("evicted connection with saturated send buffer")
		return BroadcastResult{ConnectionID: conn.ID, Err: ErrSendBufferFull}
	}
}

// RecordHeartbeat marks a successful heartbeat write on the wire.
func (r *Registry) RecordHeartbeat(userID, connectionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if conn, ok := r.conns[userID]; ok && conn.ID == connectionID {
		conn.LastHeartbeat = time.Now()
		conn.HeartbeatCount++
	}
}

// RecordDelivery marks a successful event write on the wire. Deliveries
// count toward liveness the same as heartbeats.
func (r *Registry) RecordDelivery(userID, connectionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if conn, ok := r.conns[userID]; ok && conn.ID == connectionID {
		conn.LastHeartbeat = time.Now()
		conn.MessagesDelivered++
	}
}

// Count returns the number of registered connections.
func (r *Registry) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	return len(r.conns)
}

// UserIDs returns the ids of all users with a registered connection.
func (r *Registry) UserIDs() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	ids := make([]string, 0, len(r.conns))
	for id := range r.conns {
		ids = append(ids, id)
	}

	return ids
}

// Stats returns an operational snapshot of every registered connection.
func (r *Registry) Stats() []ConnectionStats {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	stats := make([]ConnectionStats, 0, len(r.conns))
	for _, conn := range r.conns {
		stats = append(stats, ConnectionStats{
			ConnectionID:      conn.ID,
			UserID:            conn.UserID,
			ConnectedAt:       conn.ConnectedAt,
			LastHeartbeat:     conn.LastHeartbeat,
			HeartbeatCount:    conn.HeartbeatCount,
			MessagesDelivered: conn.MessagesDelivered,
			AgeSeconds:        int64(now.Sub(conn.ConnectedAt).Seconds()),
			Healthy:           now.Sub(conn.LastHeartbeat) < HealthyThreshold,
		})
	}

	return stats
}

// closeLocked closes a connection's channel exactly once. Callers must hold
// r.mu, which also serializes closes against in-flight sends.
func (r *Registry) closeLocked(conn *Connection) {
	if !conn.closed {
		conn.closed = true
		close(conn.ch)
	}
}
