package room

import (
	"time"

	"github.com/weiawesome/pawfect-live/internal/domain"
)

// Participant is one live connection's membership in a room.
type Participant struct {
	ClientID    string
	UserID      string
	DisplayName string
	AvatarURL   string
	Role        domain.Role
	RoomID      string
	JoinedAt    time.Time
}

// NewParticipant builds a participant for clientID from a resolved identity.
func NewParticipant(clientID string, id domain.Identity, role domain.Role, now time.Time) *Participant {
	name := id.DisplayName
	if name == "" {
		name = role.Placeholder()
	}
	return &Participant{
		ClientID:    clientID,
		UserID:      id.UserID,
		DisplayName: name,
		AvatarURL:   id.AvatarURL,
		Role:        role,
		JoinedAt:    now,
	}
}

// Info returns the public view of the participant.
func (p *Participant) Info() domain.ParticipantInfo {
	return domain.ParticipantInfo{
		ClientID:    p.ClientID,
		UserID:      p.UserID,
		Role:        p.Role,
		DisplayName: p.DisplayName,
		AvatarURL:   p.AvatarURL,
		JoinedAt:    p.JoinedAt,
	}
}
