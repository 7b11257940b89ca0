package room

import (
	"sort"
	"time"

	"github.com/weiawesome/pawfect-live/internal/domain"
)

// Registry maps room ids to rooms and client ids to their participant.
// It is not safe for concurrent use; a single owner goroutine drives it.
type Registry struct {
	rooms        map[string]*Room
	participants map[string]*Participant
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		rooms:        make(map[string]*Room),
		participants: make(map[string]*Participant),
	}
}

// Room looks up a room by id.
func (r *Registry) Room(roomID string) (*Room, bool) {
	rm, ok := r.rooms[roomID]
	return rm, ok
}

// Participant looks up the participant for a client id.
func (r *Registry) Participant(clientID string) (*Participant, bool) {
	p, ok := r.participants[clientID]
	return p, ok
}

// Rooms returns every room ordered by id.
func (r *Registry) Rooms() []*Room {
	rooms := make([]*Room, 0, len(r.rooms))
	for _, rm := range r.rooms {
		rooms = append(rooms, rm)
	}
	sort.Slice(rooms, func(i, j int) bool { return rooms[i].ID < rooms[j].ID })
	return rooms
}

// Participants returns every participant across all rooms.
func (r *Registry) Participants() []*Participant {
	ps := make([]*Participant, 0, len(r.participants))
	for _, p := range r.participants {
		ps = append(ps, p)
	}
	sort.Slice(ps, func(i, j int) bool { return ps[i].ClientID < ps[j].ClientID })
	return ps
}

// Len returns the number of rooms.
func (r *Registry) Len() int {
	return len(r.rooms)
}

// Add places p into roomID, creating the room on first use. The caller must
// have removed p from any previous room. When p is a broadcaster and the slot
// is held by another client, that client is displaced and returned.
func (r *Registry) Add(roomID string, p *Participant, now time.Time) (rm *Room, displaced *Participant) {
	rm, ok := r.rooms[roomID]
	if !ok {
		rm = newRoom(roomID, now)
		r.rooms[roomID] = rm
	}

	p.RoomID = roomID
	switch p.Role {
	case domain.RoleBroadcaster:
		if prev := rm.Broadcaster; prev != nil && prev.ClientID != p.ClientID {
			displaced = prev
			prev.RoomID = ""
			delete(r.participants, prev.ClientID)
		}
		rm.Broadcaster = p
	default:
		rm.Viewers[p.ClientID] = p
	}

	rm.EmptySince = time.Time{}
	r.participants[p.ClientID] = p
	return rm, displaced
}

// Remove takes clientID out of its room. It reports false when the client is
// not in any room, which makes repeated removal a no-op. A room left empty
// is deleted immediately and reported through deleted.
func (r *Registry) Remove(clientID string, now time.Time) (p *Participant, rm *Room, deleted bool) {
	p, ok := r.participants[clientID]
	if !ok {
		return nil, nil, false
	}
	delete(r.participants, clientID)

	rm, ok = r.rooms[p.RoomID]
	p.RoomID = ""
	if !ok {
		return p, nil, false
	}

	if rm.Broadcaster != nil && rm.Broadcaster.ClientID == clientID {
		rm.Broadcaster = nil
	}
	delete(rm.Viewers, clientID)

	if rm.IsEmpty() {
		rm.EmptySince = now
		delete(r.rooms, rm.ID)
		return p, rm, true
	}
	return p, rm, false
}

// Sweep deletes rooms that have been empty for longer than grace and returns
// their ids.
func (r *Registry) Sweep(now time.Time, grace time.Duration) []string {
	var removed []string
	for id, rm := range r.rooms {
		if !rm.IsEmpty() {
			continue
		}
		if rm.EmptySince.IsZero() {
			rm.EmptySince = now
		}
		if now.Sub(rm.EmptySince) >= grace {
			delete(r.rooms, id)
			removed = append(removed, id)
		}
	}
	sort.Strings(removed)
	return removed
}
