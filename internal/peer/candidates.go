package peer

import (
	"time"

	"github.com/pion/webrtc/v4"
)

type bufferedCandidate struct {
	candidate webrtc.ICECandidateInit
	at        time.Time
}

// CandidateBuffer holds remote ICE candidates that arrived before their
// link could accept them, keyed by sender. Each sender keeps at most
// maxPerSender entries (oldest dropped) and entries older than ttl are
// discarded. Not safe for concurrent use.
type CandidateBuffer struct {
	maxPerSender int
	ttl          time.Duration
	now          func() time.Time
	pending      map[string][]bufferedCandidate
}

// NewCandidateBuffer creates a buffer. Zero limits disable the bound.
func NewCandidateBuffer(maxPerSender int, ttl time.Duration) *CandidateBuffer {
	return &CandidateBuffer{
		maxPerSender: maxPerSender,
		ttl:          ttl,
		now:          time.Now,
		pending:      make(map[string][]bufferedCandidate),
	}
}

// Add buffers a candidate and returns how many were dropped to make room
// or because they expired.
func (b *CandidateBuffer) Add(senderID string, candidate webrtc.ICECandidateInit) int {
	now := b.now()
	list := b.prune(b.pending[senderID], now)
	dropped := len(b.pending[senderID]) - len(list)

	list = append(list, bufferedCandidate{candidate: candidate, at: now})
	if b.maxPerSender > 0 && len(list) > b.maxPerSender {
		over := len(list) - b.maxPerSender
		list = append([]bufferedCandidate(nil), list[over:]...)
		dropped += over
	}
	b.pending[senderID] = list
	return dropped
}

// Take removes and returns the live candidates for senderID in arrival order.
func (b *CandidateBuffer) Take(senderID string) []webrtc.ICECandidateInit {
	list := b.prune(b.pending[senderID], b.now())
	delete(b.pending, senderID)

	out := make([]webrtc.ICECandidateInit, 0, len(list))
	for _, c := range list {
		out = append(out, c.candidate)
	}
	return out
}

// Len returns the number of buffered candidates for senderID.
func (b *CandidateBuffer) Len(senderID string) int {
	return len(b.pending[senderID])
}

// Drop discards everything buffered for senderID.
func (b *CandidateBuffer) Drop(senderID string) {
	delete(b.pending, senderID)
}

// Clear discards every buffer.
func (b *CandidateBuffer) Clear() {
	b.pending = make(map[string][]bufferedCandidate)
}

func (b *CandidateBuffer) prune(list []bufferedCandidate, now time.Time) []bufferedCandidate {
	if b.ttl <= 0 || len(list) == 0 {
		return list
	}
	i := 0
	for i < len(list) && now.Sub(list[i].at) > b.ttl {
		i++
	}
	if i == 0 {
		return list
	}
	return append([]bufferedCandidate(nil), list[i:]...)
}
