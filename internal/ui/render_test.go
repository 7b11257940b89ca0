package ui

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/weiawesome/pawfect-live/internal/domain"
	"github.com/weiawesome/pawfect-live/internal/orchestrator"
)

func joinedState() orchestrator.UIState {
	return orchestrator.UIState{
		Status: orchestrator.Status{State: orchestrator.StateJoined},
		RoomID: "r1",
		Role:   domain.RoleViewer,
		Counts: domain.Counts{Participants: 2, Viewers: 1},
		Roster: []domain.ParticipantInfo{
			{ClientID: "b", DisplayName: "Shelter", Role: domain.RoleBroadcaster},
			{ClientID: "v", DisplayName: "Vera", Role: domain.RoleViewer},
		},
		IsLive: true,
	}
}

func TestRenderer_FirstRender(t *testing.T) {
	var buf bytes.Buffer
	NewRenderer(&buf).Render(joinedState())

	out := buf.String()
	assert.Contains(t, out, "Waiting for stream")
	assert.Contains(t, out, "room r1 is live")
	assert.Contains(t, out, "1 watching, 2 in room")
	assert.Contains(t, out, "Shelter, Vera")
}

func TestRenderer_OnlyDeltas(t *testing.T) {
	var buf bytes.Buffer
	r := NewRenderer(&buf)
	st := joinedState()
	r.Render(st)
	buf.Reset()

	r.Render(st)
	assert.Empty(t, buf.String())

	st.Chat = []domain.ChatEvent{{ID: "c1", Sender: "Vera", Text: "what a good dog", Timestamp: time.Now()}}
	r.Render(st)
	assert.Contains(t, buf.String(), "Vera:")
	assert.Contains(t, buf.String(), "what a good dog")
	buf.Reset()

	// Same chat log again prints nothing.
	r.Render(st)
	assert.Empty(t, buf.String())
}

func TestRenderer_StreamAndOffline(t *testing.T) {
	var buf bytes.Buffer
	r := NewRenderer(&buf)
	st := joinedState()
	r.Render(st)
	buf.Reset()

	st.Status = orchestrator.Status{State: orchestrator.StateStreamConnected}
	st.RemoteStream = &orchestrator.RemoteStream{PeerID: "b"}
	r.Render(st)
	assert.Contains(t, buf.String(), "Live")
	assert.Contains(t, buf.String(), "receiving stream from b")
	buf.Reset()

	st.Status = orchestrator.Status{State: orchestrator.StateJoined}
	st.RemoteStream = nil
	st.IsLive = false
	r.Render(st)
	assert.Contains(t, buf.String(), "Stream offline")
	assert.Contains(t, buf.String(), "Remote stream ended")
}

func TestRenderer_ReactionsPrintOnce(t *testing.T) {
	var buf bytes.Buffer
	r := NewRenderer(&buf)
	st := joinedState()
	st.Reactions = []orchestrator.Reaction{{ID: "x1", Sender: "Vera", Emoji: "paw"}}
	r.Render(st)
	assert.Contains(t, buf.String(), "🐾")
	buf.Reset()

	r.Render(st)
	assert.Empty(t, buf.String())
}

func TestStatusLine_ErrorOffersReconnect(t *testing.T) {
	line := StatusLine(orchestrator.Status{State: orchestrator.StateError, Reason: orchestrator.ReasonGaveUp})
	assert.Contains(t, line, "Could not reach the live room")
	assert.Contains(t, line, "/reconnect")
}

func TestReactionIcon(t *testing.T) {
	assert.Equal(t, "❤️", ReactionIcon(""))
	assert.Equal(t, "❤️", ReactionIcon("heart"))
	assert.Equal(t, "🦴", ReactionIcon("🦴"))
}
