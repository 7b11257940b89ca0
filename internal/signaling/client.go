package signaling

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	pkglog "github.com/weiawesome/pawfect-live/pkg/log"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 * 1024
)

var (
	ErrClosed      = errors.New("signaling connection closed")
	ErrInvalidURL  = errors.New("invalid hub url")
	ErrDialGaveUp  = errors.New("hub unreachable")
	ErrSendTimeout = errors.New("send queue full")
)

// Config controls how the hub connection is established.
type Config struct {
	URL   string
	Token string

	// DialAttempts bounds low-level redials inside one Dial call.
	DialAttempts int
	DialBackoff  time.Duration
}

// Client manages the WebSocket connection to the signaling hub.
type Client struct {
	conn     *websocket.Conn
	incoming chan Frame
	outgoing chan []byte
	done     chan struct{}

	closeOnce sync.Once
	mu        sync.Mutex
	err       error
}

// Dial connects to the hub, retrying up to cfg.DialAttempts times. The
// returned client already runs its read and write pumps.
func Dial(ctx context.Context, cfg Config) (*Client, error) {
	u, err := url.Parse(cfg.URL)
	if err != nil || (u.Scheme != "ws" && u.Scheme != "wss") {
		return nil, fmt.Errorf("%w: %q", ErrInvalidURL, cfg.URL)
	}

	header := http.Header{}
	if cfg.Token != "" {
		header.Set("Authorization", "Bearer "+cfg.Token)
	}

	attempts := cfg.DialAttempts
	if attempts <= 0 {
		attempts = 1
	}
	backoff := cfg.DialBackoff
	if backoff <= 0 {
		backoff = 500 * time.Millisecond
	}

	logger := pkglog.Ctx(ctx)
	dialer := websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: 10 * time.Second,
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		conn, resp, err := dialer.DialContext(ctx, u.String(), header)
		if err == nil {
			return newClient(conn), nil
		}
		lastErr = err
		if resp != nil && resp.StatusCode == http.StatusUnauthorized {
			// A rejected token will not succeed on retry.
			return nil, fmt.Errorf("dial hub: %w", err)
		}

		logger.Debug().Err(err).Int(pkglog.FieldAttempt, attempt).Msg("hub dial failed")
		if attempt == attempts {
			break
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(backoff):
		}
	}

	return nil, fmt.Errorf("%w after %d attempts: %v", ErrDialGaveUp, attempts, lastErr)
}

func newClient(conn *websocket.Conn) *Client {
	c := &Client{
		conn:     conn,
		incoming: make(chan Frame, 64),
		outgoing: make(chan []byte, 64),
		done:     make(chan struct{}),
	}

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	go c.readPump()
	go c.writePump()

	return c
}

// readPump reads frames until the connection fails, then closes Incoming.
func (c *Client) readPump() {
	defer func() {
		c.shutdown(nil)
		close(c.incoming)
	}()

	c.conn.SetReadDeadline(time.Now().Add(pongWait))

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			c.shutdown(err)
			return
		}

		frame, err := parseFrame(data)
		if err != nil {
			l := pkglog.L()
			l.Warn().Err(err).Msg("dropping malformed hub frame")
			continue
		}

		select {
		case c.incoming <- frame:
		case <-c.done:
			return
		}
	}
}

// writePump writes queued frames and sends periodic pings.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)

	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case data := <-c.outgoing:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				c.shutdown(err)
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.shutdown(err)
				return
			}

		case <-c.done:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}

// Send queues v for delivery. It never blocks on the network.
func (c *Client) Send(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal frame: %w", err)
	}

	select {
	case <-c.done:
		return ErrClosed
	default:
	}

	select {
	case c.outgoing <- data:
		return nil
	case <-c.done:
		return ErrClosed
	default:
		return ErrSendTimeout
	}
}

// Incoming returns the channel of received frames. It is closed when the
// connection ends.
func (c *Client) Incoming() <-chan Frame {
	return c.incoming
}

// Err returns the error that ended the connection, if any.
func (c *Client) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

// Close ends the connection. Safe to call more than once.
func (c *Client) Close() error {
	c.shutdown(nil)
	return nil
}

func (c *Client) shutdown(err error) {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.err = err
		c.mu.Unlock()
		close(c.done)
		// Unblocks a pending ReadMessage.
		c.conn.SetReadDeadline(time.Now().Add(writeWait))
	})
}
