package kafka

import "time"

// NewStartedEvent builds a broadcast_started event.
func NewStartedEvent(roomID, broadcasterID, clientID, instanceID string, at time.Time) *BroadcastEvent {
	return &BroadcastEvent{
		Type:          EventBroadcastStarted,
		RoomID:        roomID,
		BroadcasterID: broadcasterID,
		ClientID:      clientID,
		InstanceID:    instanceID,
		Timestamp:     at.Unix(),
	}
}

// NewStoppedEvent builds a broadcast_stopped event. An empty reason is
// recorded as explicit.
func NewStoppedEvent(roomID, broadcasterID, clientID, instanceID, reason string, at time.Time) *BroadcastEvent {
	if reason == "" {
		reason = ReasonExplicit
	}
	return &BroadcastEvent{
		Type:          EventBroadcastStopped,
		RoomID:        roomID,
		BroadcasterID: broadcasterID,
		ClientID:      clientID,
		InstanceID:    instanceID,
		Reason:        reason,
		Timestamp:     at.Unix(),
	}
}
