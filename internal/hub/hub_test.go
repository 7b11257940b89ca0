package hub

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/weiawesome/pawfect-live/internal/config"
)

func newTestHub(t *testing.T, buffer int) *Hub {
	t.Helper()
	h := NewHub(config.WebSocketConfig{SendBuffer: buffer})
	ctx, cancel := context.WithCancel(context.Background())
	go h.Run(ctx)
	t.Cleanup(cancel)
	return h
}

func frame(t *testing.T, c *Client) map[string]interface{} {
	t.Helper()
	select {
	case data, ok := <-c.Send:
		require.True(t, ok, "send channel closed")
		var m map[string]interface{}
		require.NoError(t, json.Unmarshal(data, &m))
		return m
	case <-time.After(time.Second):
		t.Fatalf("no frame for %s", c.ID)
		return nil
	}
}

func waitClosed(t *testing.T, c *Client) {
	t.Helper()
	deadline := time.After(time.Second)
	for {
		select {
		case _, ok := <-c.Send:
			if !ok {
				return
			}
		case <-deadline:
			t.Fatalf("send channel of %s not closed", c.ID)
		}
	}
}

func TestHub_SendTo(t *testing.T) {
	h := newTestHub(t, 8)
	a := NewClient("a", h, nil, nil)
	h.Register(a)

	assert.True(t, h.SendTo("a", map[string]string{"type": "pong"}))
	assert.Equal(t, "pong", frame(t, a)["type"])

	assert.False(t, h.SendTo("missing", map[string]string{"type": "pong"}))
}

func TestHub_SendToManyAndBroadcast(t *testing.T) {
	h := newTestHub(t, 8)
	a := NewClient("a", h, nil, nil)
	b := NewClient("b", h, nil, nil)
	c := NewClient("c", h, nil, nil)
	for _, cl := range []*Client{a, b, c} {
		h.Register(cl)
	}
	assert.Equal(t, 3, h.Count())

	h.SendToMany([]string{"a", "c", "gone"}, map[string]string{"type": "chat"})
	assert.Equal(t, "chat", frame(t, a)["type"])
	assert.Equal(t, "chat", frame(t, c)["type"])
	assert.Len(t, b.Send, 0)

	h.Broadcast(map[string]string{"type": "admin-live-status"})
	for _, cl := range []*Client{a, b, c} {
		assert.Equal(t, "admin-live-status", frame(t, cl)["type"])
	}
}

func TestHub_UnregisterClosesSend(t *testing.T) {
	h := newTestHub(t, 8)
	a := NewClient("a", h, nil, nil)
	h.Register(a)

	h.Unregister(a)
	waitClosed(t, a)

	_, ok := h.LastSeen("a")
	assert.False(t, ok)
	assert.False(t, h.SendTo("a", map[string]string{"type": "pong"}))

	// A second unregister is a no-op.
	h.Unregister(a)
}

func TestHub_ReRegisterKeepsNewClient(t *testing.T) {
	h := newTestHub(t, 8)
	old := NewClient("a", h, nil, nil)
	h.Register(old)
	fresh := NewClient("a", h, nil, nil)
	h.Register(fresh)

	h.Unregister(old)
	assert.True(t, h.SendTo("a", map[string]string{"type": "pong"}))
	assert.Equal(t, "pong", frame(t, fresh)["type"])
}

func TestHub_FullBufferDropsClient(t *testing.T) {
	h := newTestHub(t, 1)
	a := NewClient("a", h, nil, nil)
	h.Register(a)

	h.SendTo("a", map[string]string{"type": "one"})
	h.SendTo("a", map[string]string{"type": "two"})

	require.Eventually(t, func() bool { return h.Count() == 0 }, time.Second, 10*time.Millisecond)
}

func TestHub_LastSeen(t *testing.T) {
	h := newTestHub(t, 1)
	a := NewClient("a", h, nil, nil)
	h.Register(a)

	first, ok := h.LastSeen("a")
	require.True(t, ok)

	time.Sleep(5 * time.Millisecond)
	a.Touch()
	second, _ := h.LastSeen("a")
	assert.True(t, second.After(first))
}

func TestHub_RunStopClosesClients(t *testing.T) {
	h := NewHub(config.WebSocketConfig{SendBuffer: 4})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		h.Run(ctx)
		close(done)
	}()

	a := NewClient("a", h, nil, nil)
	h.Register(a)
	cancel()
	<-done

	waitClosed(t, a)
	// Unregister after shutdown must not block.
	h.Unregister(a)
}
