package domain

import (
	"encoding/json"
	"time"
)

// WebSocket message types from client.
const (
	MsgTypeJoin      = "join"
	MsgTypeLeave     = "leave"
	MsgTypeChat      = "chat"
	MsgTypeReaction  = "reaction"
	MsgTypeCheckLive = "check-live"
	MsgTypePing      = "ping"
)

// Negotiation message types, relayed in both directions.
const (
	MsgTypeOffer        = "offer"
	MsgTypeAnswer       = "answer"
	MsgTypeICECandidate = "ice-candidate"
)

// WebSocket message types to client.
const (
	MsgTypeConnected      = "connected"
	MsgTypeJoined         = "joined"
	MsgTypePeerJoined     = "peer-joined"
	MsgTypePeerLeft       = "peer-left"
	MsgTypeRoomSnapshot   = "room-snapshot"
	MsgTypeLiveStatus     = "admin-live-status"
	MsgTypeDeliveryFailed = "delivery-failed"
	MsgTypeError          = "error"
	MsgTypePong           = "pong"
)

// IsRelayType reports whether t is an opaque negotiation message.
func IsRelayType(t string) bool {
	switch t {
	case MsgTypeOffer, MsgTypeAnswer, MsgTypeICECandidate:
		return true
	}
	return false
}

// BaseMessage is the base structure for all WebSocket messages.
type BaseMessage struct {
	Type string `json:"type"`
}

// Client -> Server messages

// JoinMessage is sent by a client to enter a room.
type JoinMessage struct {
	Type     string    `json:"type"`
	RoomID   string    `json:"room_id"`
	Role     string    `json:"role"`
	Identity *Identity `json:"identity,omitempty"`
}

// LeaveMessage is sent by a client to leave its room. An empty RoomID
// leaves whatever room the connection is in.
type LeaveMessage struct {
	Type   string `json:"type"`
	RoomID string `json:"room_id,omitempty"`
}

// ChatMessage is sent by a client to post text to its room.
type ChatMessage struct {
	Type   string `json:"type"`
	RoomID string `json:"room_id"`
	Text   string `json:"text"`
}

// ReactionMessage is sent by a client to fire an ephemeral reaction.
type ReactionMessage struct {
	Type   string `json:"type"`
	RoomID string `json:"room_id"`
	Emoji  string `json:"emoji,omitempty"`
}

// CheckLiveMessage asks whether a room is live without joining it.
type CheckLiveMessage struct {
	Type   string `json:"type"`
	RoomID string `json:"room_id"`
}

// RelayMessage carries an opaque offer, answer or ICE candidate. SenderID is
// stamped by the hub on the way out.
type RelayMessage struct {
	Type     string          `json:"type"`
	RoomID   string          `json:"room_id"`
	TargetID string          `json:"target_id,omitempty"`
	SenderID string          `json:"sender_id,omitempty"`
	Payload  json.RawMessage `json:"payload"`
}

// Server -> Client messages

// ConnectedMessage acknowledges a new hub connection.
type ConnectedMessage struct {
	Type     string `json:"type"`
	ClientID string `json:"client_id"`
}

// JoinedMessage acknowledges a join.
type JoinedMessage struct {
	Type     string       `json:"type"`
	RoomID   string       `json:"room_id"`
	ClientID string       `json:"client_id"`
	Role     Role         `json:"role"`
	Room     RoomSnapshot `json:"room"`
}

// PeerEvent is the presence delta sent on peer-joined and peer-left.
type PeerEvent struct {
	Type        string          `json:"type"`
	RoomID      string          `json:"room_id"`
	Participant ParticipantInfo `json:"participant"`
	Counts      Counts          `json:"counts"`
}

// RoomSnapshotMessage carries the full roster of a room.
type RoomSnapshotMessage struct {
	Type string `json:"type"`
	RoomSnapshot
}

// ChatEvent is a chat message as broadcast to room members.
type ChatEvent struct {
	Type      string    `json:"type"`
	ID        string    `json:"id"`
	RoomID    string    `json:"room_id"`
	SenderID  string    `json:"sender_id"`
	UserID    string    `json:"user_id"`
	Sender    string    `json:"sender"`
	Avatar    string    `json:"avatar,omitempty"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
}

// ReactionEvent is a reaction as broadcast to room members.
type ReactionEvent struct {
	Type      string    `json:"type"`
	ID        string    `json:"id"`
	RoomID    string    `json:"room_id"`
	SenderID  string    `json:"sender_id"`
	UserID    string    `json:"user_id"`
	Sender    string    `json:"sender"`
	Emoji     string    `json:"emoji"`
	Timestamp time.Time `json:"timestamp"`
}

// LiveStatusMessage announces a live status change to every client.
type LiveStatusMessage struct {
	Type string `json:"type"`
	LiveStatus
}

// DeliveryFailedMessage tells a sender its targeted relay had no recipient.
type DeliveryFailedMessage struct {
	Type     string `json:"type"`
	Kind     string `json:"kind"`
	RoomID   string `json:"room_id"`
	TargetID string `json:"target_id"`
}

// ErrorMessage is sent when an error occurs.
type ErrorMessage struct {
	Type    string `json:"type"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Error codes
const (
	ErrCodeBadRequest          = "BAD_REQUEST"
	ErrCodeUnauthorized        = "UNAUTHORIZED"
	ErrCodeJoinFailed          = "JOIN_FAILED"
	ErrCodeNotInRoom           = "NOT_IN_ROOM"
	ErrCodeBroadcasterReplaced = "BROADCASTER_REPLACED"
	ErrCodeInternalError       = "INTERNAL_ERROR"
)

// DefaultEmoji is used for reactions that name none.
const DefaultEmoji = "heart"

// NewErrorMessage creates a new error message.
func NewErrorMessage(code, message string) *ErrorMessage {
	return &ErrorMessage{
		Type:    MsgTypeError,
		Code:    code,
		Message: message,
	}
}

// NewLiveStatusMessage wraps a live status for the wire.
func NewLiveStatusMessage(status LiveStatus) *LiveStatusMessage {
	return &LiveStatusMessage{Type: MsgTypeLiveStatus, LiveStatus: status}
}
