package hubapi

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/pion/webrtc/v4"

	"github.com/weiawesome/pawfect-live/internal/domain"
	"github.com/weiawesome/pawfect-live/pkg/response"
)

// HTTPError is returned for non-2xx responses.
type HTTPError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *HTTPError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("HTTP %d %s: %s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.Message)
}

// envelope mirrors response.Response with a raw payload.
type envelope struct {
	Success bool                `json:"success"`
	Data    json.RawMessage     `json:"data"`
	Error   *response.ErrorInfo `json:"error"`
}

type iceServer struct {
	URLs       []string `json:"urls"`
	Username   string   `json:"username"`
	Credential string   `json:"credential"`
}

// Client talks to the hub's REST surface.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

// New creates a client for the hub API rooted at baseURL.
func New(baseURL, token string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// CheckLive reports whether a room has a broadcaster.
func (c *Client) CheckLive(ctx context.Context, roomID string) (domain.LiveStatus, error) {
	var status domain.LiveStatus
	if err := c.get(ctx, "/api/v1/rooms/"+url.PathEscape(roomID)+"/live", &status); err != nil {
		return domain.LiveStatus{}, fmt.Errorf("hubapi.CheckLive: %w", err)
	}
	return status, nil
}

// Room fetches the room snapshot.
func (c *Client) Room(ctx context.Context, roomID string) (domain.RoomSnapshot, error) {
	var snap domain.RoomSnapshot
	if err := c.get(ctx, "/api/v1/rooms/"+url.PathEscape(roomID), &snap); err != nil {
		return domain.RoomSnapshot{}, fmt.Errorf("hubapi.Room: %w", err)
	}
	return snap, nil
}

// LiveRooms lists every room that is currently streaming.
func (c *Client) LiveRooms(ctx context.Context) ([]domain.LiveStatus, error) {
	var rooms []domain.LiveStatus
	if err := c.get(ctx, "/api/v1/live-rooms", &rooms); err != nil {
		return nil, fmt.Errorf("hubapi.LiveRooms: %w", err)
	}
	return rooms, nil
}

// ICEServers fetches the ICE configuration in pion form.
func (c *Client) ICEServers(ctx context.Context) ([]webrtc.ICEServer, error) {
	var body struct {
		ICEServers []iceServer `json:"ice_servers"`
	}
	if err := c.get(ctx, "/api/v1/ice-servers", &body); err != nil {
		return nil, fmt.Errorf("hubapi.ICEServers: %w", err)
	}

	servers := make([]webrtc.ICEServer, 0, len(body.ICEServers))
	for _, s := range body.ICEServers {
		server := webrtc.ICEServer{URLs: s.URLs, Username: s.Username}
		if s.Credential != "" {
			server.Credential = s.Credential
		}
		servers = append(servers, server)
	}
	return servers, nil
}

func (c *Client) get(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("read body: %w", err)
	}

	var env envelope
	decodeErr := json.Unmarshal(raw, &env)

	if resp.StatusCode >= 400 {
		httpErr := &HTTPError{StatusCode: resp.StatusCode, Message: strings.TrimSpace(string(raw))}
		if decodeErr == nil && env.Error != nil {
			httpErr.Code = env.Error.Code
			httpErr.Message = env.Error.Message
		}
		return httpErr
	}
	if decodeErr != nil {
		return fmt.Errorf("decode response: %w", decodeErr)
	}
	if !env.Success {
		return fmt.Errorf("request failed without error detail")
	}
	if out != nil && len(env.Data) > 0 && string(env.Data) != "null" {
		if err := json.Unmarshal(env.Data, out); err != nil {
			return fmt.Errorf("decode data: %w", err)
		}
	}
	return nil
}
