package peer

import (
	"github.com/pion/interceptor"
	"github.com/pion/rtp"
	"github.com/pion/webrtc/v4"
)

// Conn is the part of a WebRTC peer connection a Link drives.
type Conn interface {
	CreateOffer() (webrtc.SessionDescription, error)
	CreateAnswer() (webrtc.SessionDescription, error)
	SetRemoteDescription(desc webrtc.SessionDescription) error
	AddICECandidate(candidate webrtc.ICECandidateInit) error
	AddTrack(track webrtc.TrackLocal) (Sender, error)
	RemoveTrack(sender Sender) error
	OnICECandidate(fn func(webrtc.ICECandidateInit))
	OnTrack(fn func(RemoteTrack))
	OnConnectionStateChange(fn func(webrtc.PeerConnectionState))
	Close() error
}

// Sender is an outbound track slot. *webrtc.RTPSender satisfies it.
type Sender interface {
	Track() webrtc.TrackLocal
	ReplaceTrack(track webrtc.TrackLocal) error
}

// RemoteTrack is an inbound media track. *webrtc.TrackRemote satisfies it.
type RemoteTrack interface {
	ID() string
	Kind() webrtc.RTPCodecType
	Codec() webrtc.RTPCodecParameters
	ReadRTP() (*rtp.Packet, interceptor.Attributes, error)
}

// Factory creates peer connections.
type Factory interface {
	NewConn() (Conn, error)
}

// FactoryFunc adapts a function to Factory.
type FactoryFunc func() (Conn, error)

func (f FactoryFunc) NewConn() (Conn, error) { return f() }
