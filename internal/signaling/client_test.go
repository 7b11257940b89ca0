package signaling

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/weiawesome/pawfect-live/internal/domain"
)

var upgrader = websocket.Upgrader{}

// echoServer greets each connection and echoes every text frame back.
func echoServer(t *testing.T) (*httptest.Server, chan string) {
	t.Helper()
	auth := make(chan string, 4)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth <- r.Header.Get("Authorization")
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		conn.WriteJSON(domain.ConnectedMessage{Type: domain.MsgTypeConnected, ClientID: "c-1"})
		for {
			mt, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			if err := conn.WriteMessage(mt, data); err != nil {
				return
			}
		}
	}))
	t.Cleanup(srv.Close)
	return srv, auth
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func nextFrame(t *testing.T, c *Client) Frame {
	t.Helper()
	select {
	case f, ok := <-c.Incoming():
		require.True(t, ok, "incoming closed")
		return f
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for frame")
		return Frame{}
	}
}

func TestDial_HandshakeAndEcho(t *testing.T) {
	srv, auth := echoServer(t)

	c, err := Dial(context.Background(), Config{URL: wsURL(srv), Token: "tok"})
	require.NoError(t, err)
	defer c.Close()

	assert.Equal(t, "Bearer tok", <-auth)

	f := nextFrame(t, c)
	require.Equal(t, domain.MsgTypeConnected, f.Type)
	var connected domain.ConnectedMessage
	require.NoError(t, f.Decode(&connected))
	assert.Equal(t, "c-1", connected.ClientID)

	require.NoError(t, c.Send(domain.ChatMessage{Type: domain.MsgTypeChat, RoomID: "r1", Text: "hi"}))
	f = nextFrame(t, c)
	require.Equal(t, domain.MsgTypeChat, f.Type)
	var chat domain.ChatMessage
	require.NoError(t, f.Decode(&chat))
	assert.Equal(t, "hi", chat.Text)
}

func TestDial_InvalidURL(t *testing.T) {
	_, err := Dial(context.Background(), Config{URL: "http://example.com"})
	assert.ErrorIs(t, err, ErrInvalidURL)
}

func TestDial_GivesUpAfterAttempts(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := wsURL(srv)
	srv.Close()

	start := time.Now()
	_, err := Dial(context.Background(), Config{URL: url, DialAttempts: 3, DialBackoff: 10 * time.Millisecond})
	assert.ErrorIs(t, err, ErrDialGaveUp)
	assert.GreaterOrEqual(t, time.Since(start), 20*time.Millisecond)
}

func TestDial_ContextCancelledDuringBackoff(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := wsURL(srv)
	srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := Dial(ctx, Config{URL: url, DialAttempts: 10, DialBackoff: time.Second})
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestClose_ClosesIncomingAndRejectsSend(t *testing.T) {
	srv, _ := echoServer(t)

	c, err := Dial(context.Background(), Config{URL: wsURL(srv)})
	require.NoError(t, err)
	nextFrame(t, c)

	require.NoError(t, c.Close())
	require.NoError(t, c.Close())

	assert.Eventually(t, func() bool {
		select {
		case _, ok := <-c.Incoming():
			return !ok
		default:
			return false
		}
	}, 2*time.Second, 10*time.Millisecond)
	assert.ErrorIs(t, c.Send(domain.BaseMessage{Type: domain.MsgTypePing}), ErrClosed)
}

func TestServerHangupClosesIncoming(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		conn.Close()
	}))
	defer srv.Close()

	c, err := Dial(context.Background(), Config{URL: wsURL(srv)})
	require.NoError(t, err)

	select {
	case _, ok := <-c.Incoming():
		assert.False(t, ok)
	case <-time.After(2 * time.Second):
		t.Fatal("incoming not closed after server hangup")
	}
	assert.Error(t, c.Err())
}

func TestReadPump_DropsMalformedFrames(t *testing.T) {
	srv, _ := echoServer(t)

	c, err := Dial(context.Background(), Config{URL: wsURL(srv)})
	require.NoError(t, err)
	defer c.Close()
	require.Equal(t, domain.MsgTypeConnected, nextFrame(t, c).Type)

	// A bare JSON string is echoed back and cannot be parsed as a frame.
	require.NoError(t, c.Send("not a frame"))
	require.NoError(t, c.Send(domain.ChatMessage{Type: domain.MsgTypeChat, RoomID: "r1", Text: "after"}))

	f := nextFrame(t, c)
	require.Equal(t, domain.MsgTypeChat, f.Type)
	var chat domain.ChatMessage
	require.NoError(t, f.Decode(&chat))
	assert.Equal(t, "after", chat.Text)
	assert.NoError(t, c.Err())
}
