package peer

import (
	"fmt"
	"testing"
	"time"

	"github.com/pion/webrtc/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func candidate(i int) webrtc.ICECandidateInit {
	return webrtc.ICECandidateInit{Candidate: fmt.Sprintf("candidate:%d", i)}
}

func TestCandidateBuffer_TakeInOrder(t *testing.T) {
	b := NewCandidateBuffer(10, time.Minute)
	b.Add("a", candidate(1))
	b.Add("a", candidate(2))
	b.Add("b", candidate(3))

	got := b.Take("a")
	require.Len(t, got, 2)
	assert.Equal(t, "candidate:1", got[0].Candidate)
	assert.Equal(t, "candidate:2", got[1].Candidate)

	assert.Zero(t, b.Len("a"))
	assert.Equal(t, 1, b.Len("b"))
	assert.Empty(t, b.Take("a"))
}

func TestCandidateBuffer_BoundDropsOldest(t *testing.T) {
	b := NewCandidateBuffer(2, 0)
	assert.Zero(t, b.Add("a", candidate(1)))
	assert.Zero(t, b.Add("a", candidate(2)))
	assert.Equal(t, 1, b.Add("a", candidate(3)))

	got := b.Take("a")
	require.Len(t, got, 2)
	assert.Equal(t, "candidate:2", got[0].Candidate)
	assert.Equal(t, "candidate:3", got[1].Candidate)
}

func TestCandidateBuffer_TTL(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	b := NewCandidateBuffer(0, 30*time.Second)
	b.now = func() time.Time { return now }

	b.Add("a", candidate(1))
	now = now.Add(20 * time.Second)
	b.Add("a", candidate(2))

	now = now.Add(15 * time.Second)
	assert.Equal(t, 1, b.Add("a", candidate(3)))

	got := b.Take("a")
	require.Len(t, got, 2)
	assert.Equal(t, "candidate:2", got[0].Candidate)

	b.Add("a", candidate(4))
	now = now.Add(time.Minute)
	assert.Empty(t, b.Take("a"))
}

func TestCandidateBuffer_DropAndClear(t *testing.T) {
	b := NewCandidateBuffer(0, 0)
	b.Add("a", candidate(1))
	b.Add("b", candidate(2))

	b.Drop("a")
	assert.Zero(t, b.Len("a"))
	assert.Equal(t, 1, b.Len("b"))

	b.Clear()
	assert.Zero(t, b.Len("b"))
}
