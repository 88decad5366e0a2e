package event

import (
	"time"
)

// Event is the envelope for one SSE frame. It is serialized as a single
// `data: {"type":...,"data":...}` line followed by a blank line.
type Event struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

const (
	EventTypeConnected     = "connected"      // stream accepted, carries the connection id
	EventTypeNotification  = "notification"   // one notification payload
	EventTypeUnreadCount   = "unread_count"   // authoritative unread counter
	EventTypeHeartbeat     = "heartbeat"      // liveness probe, no-op for clients
	EventTypeUserNotSynced = "user_not_synced" // identity known but user row not provisioned yet
)

const (
	// HeartbeatInterval is how often the stream endpoint probes an open
	// connection.
	HeartbeatInterval = 10 * time.Second

	// HealthyThreshold is how long a connection may go without a successful
	// heartbeat or delivery before broadcasts stop targeting it. Three missed
	// heartbeats.
	HealthyThreshold = 30 * time.Second

	sendBufferSize = 16
)

// Broadcaster pushes an event to a single user's live connection. The
// dispatcher and the stream endpoint both depend on this interface, which
// keeps them decoupled from each other.
type Broadcaster interface {
	Broadcast(userID string, ev Event) BroadcastResult
}
