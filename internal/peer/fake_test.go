package peer

import (
	"errors"
	"sync"

	"github.com/pion/webrtc/v4"
)

type fakeSender struct {
	track    webrtc.TrackLocal
	replaced int
}

func (s *fakeSender) Track() webrtc.TrackLocal { return s.track }

func (s *fakeSender) ReplaceTrack(track webrtc.TrackLocal) error {
	s.track = track
	s.replaced++
	return nil
}

type fakeConn struct {
	mu         sync.Mutex
	remote     []webrtc.SessionDescription
	candidates []webrtc.ICECandidateInit
	added      int
	removed    int
	closed     bool
	failRemote bool
}

func (c *fakeConn) CreateOffer() (webrtc.SessionDescription, error) {
	return webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: "offer"}, nil
}

func (c *fakeConn) CreateAnswer() (webrtc.SessionDescription, error) {
	return webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: "answer"}, nil
}

func (c *fakeConn) SetRemoteDescription(desc webrtc.SessionDescription) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.failRemote {
		return errors.New("bad sdp")
	}
	c.remote = append(c.remote, desc)
	return nil
}

func (c *fakeConn) AddICECandidate(candidate webrtc.ICECandidateInit) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.candidates = append(c.candidates, candidate)
	return nil
}

func (c *fakeConn) AddTrack(track webrtc.TrackLocal) (Sender, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.added++
	return &fakeSender{track: track}, nil
}

func (c *fakeConn) RemoveTrack(Sender) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.removed++
	return nil
}

func (c *fakeConn) OnICECandidate(func(webrtc.ICECandidateInit))             {}
func (c *fakeConn) OnTrack(func(RemoteTrack))                                {}
func (c *fakeConn) OnConnectionStateChange(func(webrtc.PeerConnectionState)) {}

func (c *fakeConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}
