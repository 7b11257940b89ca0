package kafka

import "context"

// BroadcastEvent represents a broadcast state change event.
type BroadcastEvent struct {
	Type          string `json:"type"` // "broadcast_started" | "broadcast_stopped"
	RoomID        string `json:"room_id"`
	BroadcasterID string `json:"broadcaster_id"`
	ClientID      string `json:"client_id"`
	InstanceID    string `json:"instance_id,omitempty"`
	Reason        string `json:"reason,omitempty"`
	Timestamp     int64  `json:"timestamp"`
}

// Event types
const (
	EventBroadcastStarted = "broadcast_started"
	EventBroadcastStopped = "broadcast_stopped"
)

// Stop reasons
const (
	ReasonExplicit   = "explicit"
	ReasonDisconnect = "disconnect"
	ReasonReplaced   = "replaced"
	ReasonTimeout    = "timeout"
)

// BroadcastEventProducer defines the interface for producing broadcast events.
type BroadcastEventProducer interface {
	ProduceBroadcastStarted(ctx context.Context, roomID, broadcasterID, clientID string) error
	ProduceBroadcastStopped(ctx context.Context, roomID, broadcasterID, clientID, reason string) error
	Close() error
}
