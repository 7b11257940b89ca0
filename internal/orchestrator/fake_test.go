package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"sync"
	"testing"

	"github.com/pion/interceptor"
	"github.com/pion/rtp"
	"github.com/pion/webrtc/v4"
	"github.com/stretchr/testify/require"

	"github.com/weiawesome/pawfect-live/internal/domain"
	"github.com/weiawesome/pawfect-live/internal/peer"
	"github.com/weiawesome/pawfect-live/internal/signaling"
)

// fakeHub is an in-memory hub connection.
type fakeHub struct {
	in        chan signaling.Frame
	closeOnce sync.Once

	mu     sync.Mutex
	sent   []signaling.Frame
	closed bool
}

func newFakeHub(clientID string) *fakeHub {
	h := &fakeHub{in: make(chan signaling.Frame, 64)}
	if clientID != "" {
		h.in <- mustFrame(domain.ConnectedMessage{Type: domain.MsgTypeConnected, ClientID: clientID})
	}
	return h
}

func mustFrame(v any) signaling.Frame {
	data, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	var base domain.BaseMessage
	if err := json.Unmarshal(data, &base); err != nil {
		panic(err)
	}
	return signaling.Frame{Type: base.Type, Data: data}
}

func (h *fakeHub) push(v any) {
	h.in <- mustFrame(v)
}

func (h *fakeHub) Send(v any) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return signaling.ErrClosed
	}
	h.sent = append(h.sent, mustFrame(v))
	return nil
}

func (h *fakeHub) Incoming() <-chan signaling.Frame { return h.in }

func (h *fakeHub) Close() error {
	h.mu.Lock()
	h.closed = true
	h.mu.Unlock()
	h.closeOnce.Do(func() { close(h.in) })
	return nil
}

func (h *fakeHub) isClosed() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.closed
}

// sentOf returns the frames of type t sent so far.
func (h *fakeHub) sentOf(t string) []signaling.Frame {
	h.mu.Lock()
	defer h.mu.Unlock()
	var out []signaling.Frame
	for _, f := range h.sent {
		if f.Type == t {
			out = append(out, f)
		}
	}
	return out
}

func (h *fakeHub) relays(t string) []domain.RelayMessage {
	var out []domain.RelayMessage
	for _, f := range h.sentOf(t) {
		var msg domain.RelayMessage
		if err := f.Decode(&msg); err == nil {
			out = append(out, msg)
		}
	}
	return out
}

// fakeDialer hands out queued hubs; with none queued it fails.
type fakeDialer struct {
	mu    sync.Mutex
	hubs  []*fakeHub
	calls int
	gate  chan struct{}
}

func (d *fakeDialer) queue(h ...*fakeHub) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.hubs = append(d.hubs, h...)
}

func (d *fakeDialer) callCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.calls
}

func (d *fakeDialer) dial(ctx context.Context) (HubConn, error) {
	d.mu.Lock()
	d.calls++
	gate := d.gate
	d.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.hubs) == 0 {
		return nil, errors.New("connection refused")
	}
	h := d.hubs[0]
	d.hubs = d.hubs[1:]
	return h, nil
}

// fakePeerConn is a scripted peer connection.
type fakePeerConn struct {
	mu         sync.Mutex
	remote     []webrtc.SessionDescription
	candidates []webrtc.ICECandidateInit
	tracks     []webrtc.TrackLocal
	offers     int
	closed     bool

	onICE   func(webrtc.ICECandidateInit)
	onTrack func(peer.RemoteTrack)
	onState func(webrtc.PeerConnectionState)
}

func (c *fakePeerConn) CreateOffer() (webrtc.SessionDescription, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.offers++
	return webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: "offer-sdp"}, nil
}

func (c *fakePeerConn) CreateAnswer() (webrtc.SessionDescription, error) {
	return webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: "answer-sdp"}, nil
}

func (c *fakePeerConn) SetRemoteDescription(desc webrtc.SessionDescription) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.remote = append(c.remote, desc)
	return nil
}

func (c *fakePeerConn) AddICECandidate(candidate webrtc.ICECandidateInit) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.candidates = append(c.candidates, candidate)
	return nil
}

func (c *fakePeerConn) AddTrack(track webrtc.TrackLocal) (peer.Sender, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.tracks = append(c.tracks, track)
	return &fakeSender{track: track}, nil
}

func (c *fakePeerConn) RemoveTrack(peer.Sender) error { return nil }

func (c *fakePeerConn) OnICECandidate(fn func(webrtc.ICECandidateInit)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onICE = fn
}

func (c *fakePeerConn) OnTrack(fn func(peer.RemoteTrack)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onTrack = fn
}

func (c *fakePeerConn) OnConnectionStateChange(fn func(webrtc.PeerConnectionState)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onState = fn
}

func (c *fakePeerConn) fireICE(candidate webrtc.ICECandidateInit) {
	c.mu.Lock()
	fn := c.onICE
	c.mu.Unlock()
	fn(candidate)
}

func (c *fakePeerConn) fireTrack(track peer.RemoteTrack) {
	c.mu.Lock()
	fn := c.onTrack
	c.mu.Unlock()
	fn(track)
}

func (c *fakePeerConn) fireState(state webrtc.PeerConnectionState) {
	c.mu.Lock()
	fn := c.onState
	c.mu.Unlock()
	fn(state)
}

func (c *fakePeerConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

func (c *fakePeerConn) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *fakePeerConn) snapshot() (remote []webrtc.SessionDescription, candidates []webrtc.ICECandidateInit, offers int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append(remote, c.remote...), append(candidates, c.candidates...), c.offers
}

type fakeSender struct {
	track webrtc.TrackLocal
}

func (s *fakeSender) Track() webrtc.TrackLocal { return s.track }

func (s *fakeSender) ReplaceTrack(track webrtc.TrackLocal) error {
	s.track = track
	return nil
}

type fakeFactory struct {
	mu    sync.Mutex
	conns []*fakePeerConn
}

func (f *fakeFactory) NewConn() (peer.Conn, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c := &fakePeerConn{}
	f.conns = append(f.conns, c)
	return c, nil
}

func (f *fakeFactory) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.conns)
}

func (f *fakeFactory) conn(i int) *fakePeerConn {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.conns[i]
}

type fakeRemoteTrack struct {
	kind webrtc.RTPCodecType
}

func (t *fakeRemoteTrack) ID() string                { return "remote-" + t.kind.String() }
func (t *fakeRemoteTrack) Kind() webrtc.RTPCodecType { return t.kind }
func (t *fakeRemoteTrack) Codec() webrtc.RTPCodecParameters {
	return webrtc.RTPCodecParameters{RTPCodecCapability: webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeVP8}}
}
func (t *fakeRemoteTrack) ReadRTP() (*rtp.Packet, interceptor.Attributes, error) {
	return nil, nil, io.EOF
}

type fakeStream struct {
	tracks []webrtc.TrackLocal
}

func (s *fakeStream) Tracks() []webrtc.TrackLocal { return s.tracks }

func newStream(t *testing.T, mimes ...string) *fakeStream {
	t.Helper()
	s := &fakeStream{}
	for i, mime := range mimes {
		track, err := webrtc.NewTrackLocalStaticSample(webrtc.RTPCodecCapability{MimeType: mime}, mime+string(rune('a'+i)), "stream")
		require.NoError(t, err)
		s.tracks = append(s.tracks, track)
	}
	return s
}

func payload(t *testing.T, v any) json.RawMessage {
	t.Helper()
	data, err := json.Marshal(v)
	require.NoError(t, err)
	return data
}
