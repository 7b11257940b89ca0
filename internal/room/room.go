package room

import (
	"sort"
	"time"

	"github.com/weiawesome/pawfect-live/internal/domain"
)

// Room is a broadcast session with at most one broadcaster.
type Room struct {
	ID          string
	Broadcaster *Participant
	Viewers     map[string]*Participant
	CreatedAt   time.Time
	// EmptySince is zero while the room has members.
	EmptySince time.Time
}

func newRoom(id string, now time.Time) *Room {
	return &Room{
		ID:        id,
		Viewers:   make(map[string]*Participant),
		CreatedAt: now,
	}
}

// IsStreaming is true iff the broadcaster slot is occupied.
func (r *Room) IsStreaming() bool {
	return r.Broadcaster != nil
}

// ViewerCount returns the number of viewers.
func (r *Room) ViewerCount() int {
	return len(r.Viewers)
}

// ParticipantCount returns viewers plus the broadcaster, if any.
func (r *Room) ParticipantCount() int {
	n := len(r.Viewers)
	if r.Broadcaster != nil {
		n++
	}
	return n
}

// IsEmpty reports whether the room has no members.
func (r *Room) IsEmpty() bool {
	return r.ParticipantCount() == 0
}

// Counts returns the derived presence counts.
func (r *Room) Counts() domain.Counts {
	return domain.Counts{
		Participants: r.ParticipantCount(),
		Viewers:      r.ViewerCount(),
	}
}

// Members returns every participant, broadcaster first, then viewers in
// join order.
func (r *Room) Members() []*Participant {
	members := make([]*Participant, 0, r.ParticipantCount())
	if r.Broadcaster != nil {
		members = append(members, r.Broadcaster)
	}
	viewers := make([]*Participant, 0, len(r.Viewers))
	for _, v := range r.Viewers {
		viewers = append(viewers, v)
	}
	sort.Slice(viewers, func(i, j int) bool {
		if viewers[i].JoinedAt.Equal(viewers[j].JoinedAt) {
			return viewers[i].ClientID < viewers[j].ClientID
		}
		return viewers[i].JoinedAt.Before(viewers[j].JoinedAt)
	})
	return append(members, viewers...)
}

// MemberIDs returns the client ids of every member except exclude.
func (r *Room) MemberIDs(exclude string) []string {
	ids := make([]string, 0, r.ParticipantCount())
	for _, p := range r.Members() {
		if p.ClientID != exclude {
			ids = append(ids, p.ClientID)
		}
	}
	return ids
}

// Roster returns the ordered public view of every member.
func (r *Room) Roster() []domain.ParticipantInfo {
	members := r.Members()
	roster := make([]domain.ParticipantInfo, 0, len(members))
	for _, p := range members {
		roster = append(roster, p.Info())
	}
	return roster
}

// Snapshot returns the authoritative state of the room.
func (r *Room) Snapshot() domain.RoomSnapshot {
	s := domain.RoomSnapshot{
		RoomID:      r.ID,
		IsStreaming: r.IsStreaming(),
		Roster:      r.Roster(),
		Counts:      r.Counts(),
		CreatedAt:   r.CreatedAt,
	}
	if r.Broadcaster != nil {
		s.BroadcasterID = r.Broadcaster.ClientID
	}
	return s
}

// LiveStatus returns the room's live status.
func (r *Room) LiveStatus() domain.LiveStatus {
	s := domain.LiveStatus{RoomID: r.ID, IsLive: r.IsStreaming()}
	if r.Broadcaster != nil {
		s.AdminName = r.Broadcaster.DisplayName
	}
	return s
}
