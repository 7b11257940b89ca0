package orchestrator

import (
	"sort"
	"time"

	"github.com/weiawesome/pawfect-live/internal/domain"
	"github.com/weiawesome/pawfect-live/internal/peer"
)

// RemoteStream is the media received from one remote participant.
type RemoteStream struct {
	PeerID string
	Tracks []peer.RemoteTrack
}

// Reaction is a reaction still on screen.
type Reaction struct {
	ID        string
	SenderID  string
	Sender    string
	Emoji     string
	ExpiresAt time.Time
}

// UIState is the projection rendered by a front end.
type UIState struct {
	Status         Status
	RoomID         string
	Role           domain.Role
	ClientID       string
	IsLive         bool
	RemoteStream   *RemoteStream
	Counts         domain.Counts
	Roster         []domain.ParticipantInfo
	Chat           []domain.ChatEvent
	Reactions      []Reaction
	ConnectedPeers []string
}

func (o *Orchestrator) snapshotLocked() UIState {
	st := UIState{
		Status:    o.status,
		RoomID:    o.opts.RoomID,
		Role:      o.opts.Role,
		ClientID:  o.clientID,
		IsLive:    o.isLive,
		Counts:    o.counts,
		Roster:    append([]domain.ParticipantInfo(nil), o.roster...),
		Chat:      append([]domain.ChatEvent(nil), o.chat...),
		Reactions: append([]Reaction(nil), o.reactions...),
	}
	if o.remote != nil {
		st.RemoteStream = &RemoteStream{
			PeerID: o.remote.PeerID,
			Tracks: append([]peer.RemoteTrack(nil), o.remote.Tracks...),
		}
	}
	for id := range o.connectedPeers {
		st.ConnectedPeers = append(st.ConnectedPeers, id)
	}
	sort.Strings(st.ConnectedPeers)
	return st
}
