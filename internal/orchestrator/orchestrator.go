package orchestrator

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog"

	"github.com/weiawesome/pawfect-live/internal/domain"
	"github.com/weiawesome/pawfect-live/internal/peer"
	"github.com/weiawesome/pawfect-live/internal/signaling"
	pkglog "github.com/weiawesome/pawfect-live/pkg/log"
)

// HubConn is one live connection to the signaling hub.
// *signaling.Client satisfies it.
type HubConn interface {
	Send(v any) error
	Incoming() <-chan signaling.Frame
	Close() error
}

// DialFunc opens a hub connection.
type DialFunc func(ctx context.Context) (HubConn, error)

// LocalStream is the broadcaster's outbound media.
type LocalStream interface {
	Tracks() []webrtc.TrackLocal
}

// TrackHandler receives every remote track as it arrives.
type TrackHandler func(peerID string, track peer.RemoteTrack)

// Options configures an Orchestrator.
type Options struct {
	RoomID   string
	Role     domain.Role
	Identity *domain.Identity

	ConnectTimeout time.Duration
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	// MaxAttempts bounds automatic reconnects. Zero retries forever and a
	// negative value disables them.
	MaxAttempts int

	CandidateMaxPerPeer int
	CandidateTTL        time.Duration
	ReactionDisplay     time.Duration
	ChatHistory         int

	OnTrack TrackHandler
}

func (o *Options) setDefaults() {
	if o.Role == "" {
		o.Role = domain.RoleViewer
	}
	if o.ConnectTimeout <= 0 {
		o.ConnectTimeout = 30 * time.Second
	}
	if o.InitialBackoff <= 0 {
		o.InitialBackoff = time.Second
	}
	if o.MaxBackoff <= 0 {
		o.MaxBackoff = 30 * time.Second
	}
	if o.CandidateMaxPerPeer == 0 {
		o.CandidateMaxPerPeer = 64
	}
	if o.CandidateTTL == 0 {
		o.CandidateTTL = 30 * time.Second
	}
	if o.ReactionDisplay <= 0 {
		o.ReactionDisplay = 3 * time.Second
	}
	if o.ChatHistory <= 0 {
		o.ChatHistory = 200
	}
}

// Orchestrator owns the client side of a live room: one hub connection,
// one peer link per remote participant and the state shown to the user.
type Orchestrator struct {
	dial   DialFunc
	peers  peer.Factory
	opts   Options
	now    func() time.Time
	logger zerolog.Logger

	mu         sync.Mutex
	gen        uint64
	status     Status
	conn       HubConn
	connecting bool
	wantJoin   bool
	joined     bool
	clientID   string
	attempts   int
	retry      *time.Timer

	local          LocalStream
	links          map[string]*peer.Link
	candidates     *peer.CandidateBuffer
	remote         *RemoteStream
	connectedPeers map[string]bool
	isLive         bool
	counts         domain.Counts
	roster         []domain.ParticipantInfo
	chat           []domain.ChatEvent
	reactions      []Reaction

	updates chan UIState
}

// New creates an orchestrator in the Disconnected state.
func New(dial DialFunc, peers peer.Factory, opts Options) *Orchestrator {
	opts.setDefaults()
	return &Orchestrator{
		dial:  dial,
		peers: peers,
		opts:  opts,
		now:   time.Now,
		logger: pkglog.L().With().
			Str(pkglog.FieldRoomID, opts.RoomID).
			Str(pkglog.FieldRole, string(opts.Role)).
			Logger(),
		status:         Status{State: StateDisconnected},
		links:          make(map[string]*peer.Link),
		candidates:     peer.NewCandidateBuffer(opts.CandidateMaxPerPeer, opts.CandidateTTL),
		connectedPeers: make(map[string]bool),
		updates:        make(chan UIState, 1),
	}
}

// Connect opens the hub connection and waits for the hub's handshake. It is
// a no-op when already connected and fails with ErrConnectInProgress while
// another connect is running.
func (o *Orchestrator) Connect(ctx context.Context) error {
	o.mu.Lock()
	if o.conn != nil {
		o.mu.Unlock()
		return nil
	}
	if o.connecting {
		o.mu.Unlock()
		return newOpError("connect", ErrConnectInProgress)
	}
	o.connecting = true
	o.stopRetryLocked()
	gen := o.gen
	o.setStatusLocked(Status{State: StateConnecting})
	o.mu.Unlock()

	conn, clientID, err := o.handshake(ctx)

	o.mu.Lock()
	defer o.mu.Unlock()

	if gen != o.gen {
		// Leave ran while dialing.
		if conn != nil {
			conn.Close()
		}
		return newOpError("connect", ErrAborted)
	}
	o.connecting = false

	if err != nil {
		reason := err.Error()
		if errors.Is(err, ErrConnectTimeout) {
			reason = ReasonConnectTimeout
		}
		o.logger.Warn().Err(err).Int(pkglog.FieldAttempt, o.attempts).Msg("hub connect failed")
		o.setStatusLocked(Status{State: StateError, Reason: reason})
		o.scheduleReconnectLocked()
		return newOpError("connect", err)
	}

	o.conn = conn
	o.clientID = clientID
	o.attempts = 0
	o.setStatusLocked(Status{State: StateConnectedToHub})
	o.logger.Info().Str(pkglog.FieldClientID, clientID).Msg("connected to hub")

	go o.readLoop(gen, conn)

	if o.wantJoin {
		o.sendJoinLocked()
	}
	return nil
}

// Join connects if needed and asks the hub to join the configured room.
// The Joined status follows once the hub acknowledges.
func (o *Orchestrator) Join(ctx context.Context) error {
	o.mu.Lock()
	o.wantJoin = true
	if o.conn != nil {
		err := o.sendJoinLocked()
		o.mu.Unlock()
		return err
	}
	o.mu.Unlock()

	// A connect already in flight sends the join when it completes.
	if err := o.Connect(ctx); err != nil && !errors.Is(err, ErrConnectInProgress) {
		return err
	}
	return nil
}

// Reconnect drops the current hub connection, if any, and connects again
// with the backoff reset. The room is rejoined once the hub answers.
func (o *Orchestrator) Reconnect(ctx context.Context) error {
	o.mu.Lock()
	conn := o.dropHubLocked()
	o.wantJoin = true
	o.setStatusLocked(Status{State: StateDisconnected})
	o.mu.Unlock()

	if conn != nil {
		conn.Close()
	}
	return o.Connect(ctx)
}

// Leave tears down every peer link, disconnects and resets the state. It is
// synchronous; an in-flight Connect completes as aborted.
func (o *Orchestrator) Leave() {
	o.mu.Lock()
	conn := o.dropHubLocked()
	o.wantJoin = false
	o.isLive = false
	o.counts = domain.Counts{}
	o.roster = nil
	o.chat = nil
	o.setStatusLocked(Status{State: StateDisconnected})
	o.mu.Unlock()

	if conn != nil {
		conn.Close()
	}
}

// dropHubLocked invalidates the current generation, leaves the room if
// joined and detaches the hub connection. The caller closes the returned
// conn after unlocking.
func (o *Orchestrator) dropHubLocked() HubConn {
	o.gen++
	o.stopRetryLocked()

	conn := o.conn
	if conn != nil && o.joined {
		if err := conn.Send(domain.LeaveMessage{Type: domain.MsgTypeLeave, RoomID: o.opts.RoomID}); err != nil {
			o.logger.Debug().Err(err).Msg("leave not sent")
		}
	}

	o.resetSessionLocked()
	o.conn = nil
	o.connecting = false
	o.attempts = 0
	o.clientID = ""
	return conn
}

// SetLocalStream sets or replaces the broadcaster's outbound media. On
// existing links tracks are swapped in place when their kinds match;
// otherwise the link renegotiates with a fresh offer.
func (o *Orchestrator) SetLocalStream(stream LocalStream) error {
	if stream == nil {
		return newOpError("set stream", ErrNoLocalStream)
	}

	o.mu.Lock()
	defer o.mu.Unlock()

	if o.opts.Role != domain.RoleBroadcaster {
		return newOpError("set stream", ErrNotBroadcaster)
	}

	prev := o.local
	o.local = stream
	if prev == nil {
		if o.joined {
			o.offerToViewersLocked()
		}
		return nil
	}

	tracks := stream.Tracks()
	for id, link := range o.links {
		renegotiate, err := link.ReplaceTracks(tracks)
		if err != nil {
			o.logger.Error().Err(err).Str(pkglog.FieldTargetID, id).Msg("replace tracks failed")
			o.closeLinkLocked(id)
			continue
		}
		if renegotiate {
			o.sendOfferLocked(link)
		}
	}
	return nil
}

// SendChat posts a chat message to the room.
func (o *Orchestrator) SendChat(text string) error {
	return o.sendInRoom("chat", domain.ChatMessage{Type: domain.MsgTypeChat, RoomID: o.opts.RoomID, Text: text})
}

// SendReaction posts a reaction. An empty emoji uses the hub default.
func (o *Orchestrator) SendReaction(emoji string) error {
	return o.sendInRoom("reaction", domain.ReactionMessage{Type: domain.MsgTypeReaction, RoomID: o.opts.RoomID, Emoji: emoji})
}

// CheckLive asks the hub for the room's live status without joining.
func (o *Orchestrator) CheckLive() error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.conn == nil {
		return newOpError("check live", ErrNotConnected)
	}
	if err := o.conn.Send(domain.CheckLiveMessage{Type: domain.MsgTypeCheckLive, RoomID: o.opts.RoomID}); err != nil {
		return newOpError("check live", err)
	}
	return nil
}

// Status returns the current connection status.
func (o *Orchestrator) Status() Status {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.status
}

// State returns a snapshot of everything the UI shows.
func (o *Orchestrator) State() UIState {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.pruneReactionsLocked()
	return o.snapshotLocked()
}

// Updates delivers the latest UIState after every change. Only the most
// recent snapshot is kept for slow readers.
func (o *Orchestrator) Updates() <-chan UIState {
	return o.updates
}

func (o *Orchestrator) sendInRoom(op string, msg any) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.conn == nil {
		return newOpError(op, ErrNotConnected)
	}
	if !o.joined {
		return newOpError(op, ErrNotJoined)
	}
	if err := o.conn.Send(msg); err != nil {
		return newOpError(op, err)
	}
	return nil
}

func (o *Orchestrator) handshake(ctx context.Context) (HubConn, string, error) {
	ctx, cancel := context.WithTimeout(ctx, o.opts.ConnectTimeout)
	defer cancel()

	conn, err := o.dial(ctx)
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, "", ErrConnectTimeout
		}
		return nil, "", err
	}

	for {
		select {
		case frame, ok := <-conn.Incoming():
			if !ok {
				conn.Close()
				return nil, "", ErrHandshake
			}
			if frame.Type != domain.MsgTypeConnected {
				continue
			}
			var msg domain.ConnectedMessage
			if err := frame.Decode(&msg); err != nil {
				conn.Close()
				return nil, "", err
			}
			return conn, msg.ClientID, nil

		case <-ctx.Done():
			conn.Close()
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				return nil, "", ErrConnectTimeout
			}
			return nil, "", ctx.Err()
		}
	}
}

func (o *Orchestrator) sendJoinLocked() error {
	msg := domain.JoinMessage{
		Type:     domain.MsgTypeJoin,
		RoomID:   o.opts.RoomID,
		Role:     string(o.opts.Role),
		Identity: o.opts.Identity,
	}
	if err := o.conn.Send(msg); err != nil {
		o.logger.Error().Err(err).Msg("join not sent")
		return newOpError("join", err)
	}
	return nil
}

func (o *Orchestrator) readLoop(gen uint64, conn HubConn) {
	for frame := range conn.Incoming() {
		o.handleFrame(gen, frame)
	}
	o.connectionLost(gen, conn)
}

func (o *Orchestrator) connectionLost(gen uint64, conn HubConn) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if gen != o.gen || o.conn != conn {
		return
	}

	o.gen++
	o.resetSessionLocked()
	o.conn = nil
	o.logger.Warn().Msg("hub connection lost")
	o.setStatusLocked(Status{State: StateError, Reason: ReasonConnectionLost})
	o.scheduleReconnectLocked()
}

func (o *Orchestrator) scheduleReconnectLocked() {
	if o.opts.MaxAttempts < 0 {
		return
	}

	o.attempts++
	if o.opts.MaxAttempts > 0 && o.attempts > o.opts.MaxAttempts {
		o.logger.Error().Int(pkglog.FieldAttempt, o.attempts-1).Msg("giving up on hub")
		o.setStatusLocked(Status{State: StateError, Reason: ReasonGaveUp})
		return
	}

	delay := Backoff(o.attempts, o.opts.InitialBackoff, o.opts.MaxBackoff)
	gen := o.gen
	o.logger.Info().Int(pkglog.FieldAttempt, o.attempts).Dur("delay", delay).Msg("reconnect scheduled")
	o.retry = time.AfterFunc(delay, func() { o.retryConnect(gen) })
}

func (o *Orchestrator) retryConnect(gen uint64) {
	o.mu.Lock()
	stale := gen != o.gen || o.conn != nil || o.connecting
	o.mu.Unlock()
	if stale {
		return
	}

	// Failures reschedule from inside Connect.
	_ = o.Connect(context.Background())
}

func (o *Orchestrator) stopRetryLocked() {
	if o.retry != nil {
		o.retry.Stop()
		o.retry = nil
	}
}

// resetSessionLocked drops everything tied to the current hub session.
func (o *Orchestrator) resetSessionLocked() {
	for id, link := range o.links {
		if err := link.Close(); err != nil {
			o.logger.Debug().Err(err).Str(pkglog.FieldTargetID, id).Msg("close link")
		}
	}
	o.links = make(map[string]*peer.Link)
	o.candidates.Clear()
	o.connectedPeers = make(map[string]bool)
	o.remote = nil
	o.reactions = nil
	o.joined = false
}

func (o *Orchestrator) setStatusLocked(s Status) {
	if o.status == s {
		return
	}
	o.logger.Info().Str(pkglog.FieldState, s.State.String()).Str(pkglog.FieldReason, s.Reason).Msg("status changed")
	o.status = s
	o.publishLocked()
}

// refreshStreamStatusLocked moves between Joined and StreamConnected as
// links come and go.
func (o *Orchestrator) refreshStreamStatusLocked() {
	if !o.joined {
		return
	}
	if o.status.State != StateJoined && o.status.State != StateStreamConnected {
		return
	}

	streaming := o.remote != nil
	if o.opts.Role == domain.RoleBroadcaster {
		streaming = len(o.connectedPeers) > 0
	}
	if streaming {
		o.setStatusLocked(Status{State: StateStreamConnected})
	} else {
		o.setStatusLocked(Status{State: StateJoined})
	}
}

func (o *Orchestrator) publishLocked() {
	st := o.snapshotLocked()
	select {
	case <-o.updates:
	default:
	}
	select {
	case o.updates <- st:
	default:
	}
}
