package peer

import (
	"errors"
	"fmt"
	"sync"

	"github.com/pion/webrtc/v4"
)

var (
	ErrLinkClosed       = errors.New("peer link closed")
	ErrUnexpectedAnswer = errors.New("answer without pending offer")
	ErrNoRemote         = errors.New("remote description not set")
)

// NegotiationState tracks the offer/answer exchange of a Link.
type NegotiationState int

const (
	StateStable NegotiationState = iota
	StateHaveLocalOffer
	StateHaveRemoteOffer
	StateClosed
)

func (s NegotiationState) String() string {
	switch s {
	case StateStable:
		return "stable"
	case StateHaveLocalOffer:
		return "have-local-offer"
	case StateHaveRemoteOffer:
		return "have-remote-offer"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Link is the media session with one remote participant.
type Link struct {
	PeerID string

	mu        sync.Mutex
	conn      Conn
	state     NegotiationState
	remoteSet bool
	senders   []Sender
}

// NewLink wraps conn for the participant peerID.
func NewLink(peerID string, conn Conn) *Link {
	return &Link{PeerID: peerID, conn: conn}
}

// State returns the current negotiation state.
func (l *Link) State() NegotiationState {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}

// HasRemoteDescription reports whether remote candidates can be applied.
func (l *Link) HasRemoteDescription() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.remoteSet
}

// Offer creates a local offer.
func (l *Link) Offer() (webrtc.SessionDescription, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.state == StateClosed {
		return webrtc.SessionDescription{}, ErrLinkClosed
	}
	offer, err := l.conn.CreateOffer()
	if err != nil {
		return webrtc.SessionDescription{}, err
	}
	l.state = StateHaveLocalOffer
	return offer, nil
}

// AcceptOffer applies a remote offer and returns the local answer.
func (l *Link) AcceptOffer(offer webrtc.SessionDescription) (webrtc.SessionDescription, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.state == StateClosed {
		return webrtc.SessionDescription{}, ErrLinkClosed
	}
	if err := l.conn.SetRemoteDescription(offer); err != nil {
		return webrtc.SessionDescription{}, fmt.Errorf("set remote offer: %w", err)
	}
	l.state = StateHaveRemoteOffer
	l.remoteSet = true

	answer, err := l.conn.CreateAnswer()
	if err != nil {
		return webrtc.SessionDescription{}, err
	}
	l.state = StateStable
	return answer, nil
}

// AcceptAnswer applies the answer to a pending local offer.
func (l *Link) AcceptAnswer(answer webrtc.SessionDescription) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	switch l.state {
	case StateClosed:
		return ErrLinkClosed
	case StateHaveLocalOffer:
	default:
		return ErrUnexpectedAnswer
	}
	if err := l.conn.SetRemoteDescription(answer); err != nil {
		return fmt.Errorf("set remote answer: %w", err)
	}
	l.state = StateStable
	l.remoteSet = true
	return nil
}

// AddCandidate applies a remote candidate. It returns ErrNoRemote when the
// candidate arrived ahead of the remote description and must be buffered.
func (l *Link) AddCandidate(candidate webrtc.ICECandidateInit) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.state == StateClosed {
		return ErrLinkClosed
	}
	if !l.remoteSet {
		return ErrNoRemote
	}
	return l.conn.AddICECandidate(candidate)
}

// AttachTracks adds outbound tracks.
func (l *Link) AttachTracks(tracks []webrtc.TrackLocal) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.state == StateClosed {
		return ErrLinkClosed
	}
	for _, track := range tracks {
		sender, err := l.conn.AddTrack(track)
		if err != nil {
			return fmt.Errorf("add %s track: %w", track.Kind(), err)
		}
		l.senders = append(l.senders, sender)
	}
	return nil
}

// ReplaceTracks swaps the outbound tracks. When the new set has the same
// kinds in the same order the existing senders are reused and no
// renegotiation is needed. Otherwise the senders are rebuilt and the
// caller must send a new offer.
func (l *Link) ReplaceTracks(tracks []webrtc.TrackLocal) (renegotiate bool, err error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.state == StateClosed {
		return false, ErrLinkClosed
	}

	if sameKinds(l.senders, tracks) {
		for i, sender := range l.senders {
			if err := sender.ReplaceTrack(tracks[i]); err != nil {
				return false, fmt.Errorf("replace %s track: %w", tracks[i].Kind(), err)
			}
		}
		return false, nil
	}

	for _, sender := range l.senders {
		if err := l.conn.RemoveTrack(sender); err != nil {
			return false, fmt.Errorf("remove track: %w", err)
		}
	}
	l.senders = l.senders[:0]
	for _, track := range tracks {
		sender, err := l.conn.AddTrack(track)
		if err != nil {
			return false, fmt.Errorf("add %s track: %w", track.Kind(), err)
		}
		l.senders = append(l.senders, sender)
	}
	return true, nil
}

// Close tears the link down. Safe to call more than once.
func (l *Link) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.state == StateClosed {
		return nil
	}
	l.state = StateClosed
	l.senders = nil
	return l.conn.Close()
}

func sameKinds(senders []Sender, tracks []webrtc.TrackLocal) bool {
	if len(senders) != len(tracks) {
		return false
	}
	for i, sender := range senders {
		current := sender.Track()
		if current == nil || current.Kind() != tracks[i].Kind() {
			return false
		}
	}
	return true
}
