package domain

import "time"

// ParticipantInfo is the public view of a room member.
type ParticipantInfo struct {
	ClientID    string    `json:"client_id"`
	UserID      string    `json:"user_id"`
	Role        Role      `json:"role"`
	DisplayName string    `json:"display_name"`
	AvatarURL   string    `json:"avatar_url,omitempty"`
	JoinedAt    time.Time `json:"joined_at"`
}

// Counts are the derived presence numbers of a room.
type Counts struct {
	Participants int `json:"participants"`
	Viewers      int `json:"viewers"`
}

// RoomSnapshot is the authoritative state of a room at one instant.
type RoomSnapshot struct {
	RoomID        string            `json:"room_id"`
	IsStreaming   bool              `json:"is_streaming"`
	BroadcasterID string            `json:"broadcaster_id,omitempty"`
	Roster        []ParticipantInfo `json:"roster"`
	Counts        Counts            `json:"counts"`
	CreatedAt     time.Time         `json:"created_at"`
}

// LiveStatus describes whether a room currently has a broadcaster.
type LiveStatus struct {
	RoomID    string `json:"room_id"`
	IsLive    bool   `json:"is_live"`
	AdminName string `json:"admin_name,omitempty"`
}
