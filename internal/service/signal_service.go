package service

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/weiawesome/pawfect-live/internal/domain"
	"github.com/weiawesome/pawfect-live/internal/identity"
	"github.com/weiawesome/pawfect-live/internal/kafka"
	"github.com/weiawesome/pawfect-live/internal/room"
	pkglog "github.com/weiawesome/pawfect-live/pkg/log"
)

var (
	ErrStopped      = errors.New("signal service stopped")
	ErrRoomNotFound = errors.New("room not found")
	ErrNotInRoom    = errors.New("client is not in the room")
	ErrInvalidJoin  = errors.New("invalid join request")
	ErrEmptyChat    = errors.New("chat text is empty")
)

const (
	inboxSize       = 1024
	liveOutboxSize  = 64
	publishTimeout  = 3 * time.Second
	defaultSweep    = 5 * time.Minute
	defaultGrace    = time.Hour
	defaultPartTime = 2 * time.Minute
)

// Options tunes the event loop.
type Options struct {
	SweepInterval      time.Duration
	GracePeriod        time.Duration
	ParticipantTimeout time.Duration
	InstanceID         string
}

type eventKind int

const (
	evConnect eventKind = iota
	evMessage
	evDisconnect
	evRemoteLive
	evQuery
)

type event struct {
	kind     eventKind
	clientID string
	data     []byte
	identity *domain.Identity
	status   domain.LiveStatus
	query    func()
}

// conn is the loop's view of one hub connection.
type conn struct {
	verified *domain.Identity
	guestID  string
}

type signalService struct {
	notifier Notifier
	producer kafka.BroadcastEventProducer
	live     LiveStatusPublisher
	opts     Options

	// Owned by the loop goroutine.
	registry   *room.Registry
	conns      map[string]*conn
	remoteLive map[string]domain.LiveStatus

	inbox      chan event
	liveOutbox chan domain.LiveStatus
	done       chan struct{}
	now        func() time.Time
}

// NewSignalService creates a new SignalService instance. producer and live
// may be nil.
func NewSignalService(
	notifier Notifier,
	producer kafka.BroadcastEventProducer,
	live LiveStatusPublisher,
	opts Options,
) SignalService {
	return newSignalService(notifier, producer, live, opts)
}

func newSignalService(notifier Notifier, producer kafka.BroadcastEventProducer, live LiveStatusPublisher, opts Options) *signalService {
	if opts.SweepInterval <= 0 {
		opts.SweepInterval = defaultSweep
	}
	if opts.GracePeriod <= 0 {
		opts.GracePeriod = defaultGrace
	}
	if opts.ParticipantTimeout < 0 {
		opts.ParticipantTimeout = defaultPartTime
	}
	return &signalService{
		notifier:   notifier,
		producer:   producer,
		live:       live,
		opts:       opts,
		registry:   room.NewRegistry(),
		conns:      make(map[string]*conn),
		remoteLive: make(map[string]domain.LiveStatus),
		inbox:      make(chan event, inboxSize),
		liveOutbox: make(chan domain.LiveStatus, liveOutboxSize),
		done:       make(chan struct{}),
		now:        time.Now,
	}
}

func (s *signalService) enqueue(ev event) {
	select {
	case s.inbox <- ev:
	case <-s.done:
	}
}

func (s *signalService) HandleConnect(clientID string, verified *domain.Identity) {
	s.enqueue(event{kind: evConnect, clientID: clientID, identity: verified})
}

func (s *signalService) HandleMessage(clientID string, data []byte) {
	s.enqueue(event{kind: evMessage, clientID: clientID, data: data})
}

func (s *signalService) HandleDisconnect(clientID string) {
	s.enqueue(event{kind: evDisconnect, clientID: clientID})
}

func (s *signalService) ApplyRemoteLiveStatus(status domain.LiveStatus) {
	s.enqueue(event{kind: evRemoteLive, status: status})
}

func (s *signalService) CheckLive(ctx context.Context, roomID string) (domain.LiveStatus, error) {
	var status domain.LiveStatus
	err := s.query(ctx, func() { status = s.liveStatus(roomID) })
	return status, err
}

func (s *signalService) RoomSnapshot(ctx context.Context, roomID string) (domain.RoomSnapshot, error) {
	var (
		snap  domain.RoomSnapshot
		found bool
	)
	err := s.query(ctx, func() {
		if rm, ok := s.registry.Room(roomID); ok {
			snap, found = rm.Snapshot(), true
		}
	})
	if err != nil {
		return snap, err
	}
	if !found {
		return snap, ErrRoomNotFound
	}
	return snap, nil
}

func (s *signalService) LiveRooms(ctx context.Context) ([]domain.LiveStatus, error) {
	var rooms []domain.LiveStatus
	err := s.query(ctx, func() {
		rooms = make([]domain.LiveStatus, 0)
		seen := make(map[string]bool)
		for _, rm := range s.registry.Rooms() {
			if rm.IsStreaming() {
				rooms = append(rooms, rm.LiveStatus())
				seen[rm.ID] = true
			}
		}
		for id, status := range s.remoteLive {
			if !seen[id] {
				rooms = append(rooms, status)
			}
		}
	})
	return rooms, err
}

// query runs fn on the loop goroutine and waits for it.
func (s *signalService) query(ctx context.Context, fn func()) error {
	done := make(chan struct{})
	ev := event{kind: evQuery, query: func() {
		defer close(done)
		fn()
	}}

	select {
	case s.inbox <- ev:
	case <-ctx.Done():
		return ctx.Err()
	case <-s.done:
		return ErrStopped
	}

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-s.done:
		return ErrStopped
	}
}

func (s *signalService) Run(ctx context.Context) error {
	l := pkglog.L()
	defer close(s.done)

	if s.live != nil {
		go s.publishLive(ctx)
	}

	ticker := time.NewTicker(s.opts.SweepInterval)
	defer ticker.Stop()

	l.Info().
		Dur("sweep_interval", s.opts.SweepInterval).
		Dur("grace_period", s.opts.GracePeriod).
		Dur("participant_timeout", s.opts.ParticipantTimeout).
		Msg("signal service started")

	for {
		select {
		case <-ctx.Done():
			l.Info().Msg("signal service stopped")
			return nil
		case ev := <-s.inbox:
			s.process(ev)
		case <-ticker.C:
			s.sweep(s.now())
		}
	}
}

func (s *signalService) process(ev event) {
	l := pkglog.L()
	defer func() {
		if r := recover(); r != nil {
			l.Error().Interface("panic", r).Str(pkglog.FieldClientID, ev.clientID).Msg("signal handler panic")
		}
	}()

	switch ev.kind {
	case evConnect:
		s.conns[ev.clientID] = &conn{verified: ev.identity}
	case evMessage:
		s.dispatch(ev.clientID, ev.data)
	case evDisconnect:
		s.leave(ev.clientID, kafka.ReasonDisconnect)
		delete(s.conns, ev.clientID)
	case evRemoteLive:
		s.applyRemoteLive(ev.status)
	case evQuery:
		ev.query()
	}
}

func (s *signalService) dispatch(clientID string, data []byte) {
	l := pkglog.L().With().Str(pkglog.FieldClientID, clientID).Logger()

	var base domain.BaseMessage
	if err := json.Unmarshal(data, &base); err != nil {
		s.sendError(clientID, domain.ErrCodeBadRequest, "Invalid message format")
		return
	}

	switch base.Type {
	case domain.MsgTypeJoin:
		var msg domain.JoinMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			s.sendError(clientID, domain.ErrCodeJoinFailed, "Invalid join message")
			return
		}
		if err := s.handleJoin(clientID, msg); err != nil {
			l.Error().Err(err).Str(pkglog.FieldRoomID, msg.RoomID).Msg("join failed")
		}

	case domain.MsgTypeOffer, domain.MsgTypeAnswer, domain.MsgTypeICECandidate:
		var msg domain.RelayMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			s.sendError(clientID, domain.ErrCodeBadRequest, "Invalid "+base.Type+" message")
			return
		}
		s.handleRelay(clientID, msg)

	case domain.MsgTypeChat:
		var msg domain.ChatMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			s.sendError(clientID, domain.ErrCodeBadRequest, "Invalid chat message")
			return
		}
		if err := s.handleChat(clientID, msg); err != nil {
			l.Error().Err(err).Str(pkglog.FieldRoomID, msg.RoomID).Msg("chat failed")
		}

	case domain.MsgTypeReaction:
		var msg domain.ReactionMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			s.sendError(clientID, domain.ErrCodeBadRequest, "Invalid reaction message")
			return
		}
		if err := s.handleReaction(clientID, msg); err != nil {
			l.Error().Err(err).Str(pkglog.FieldRoomID, msg.RoomID).Msg("reaction failed")
		}

	case domain.MsgTypeLeave:
		var msg domain.LeaveMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			s.sendError(clientID, domain.ErrCodeBadRequest, "Invalid leave message")
			return
		}
		s.handleLeave(clientID, msg)

	case domain.MsgTypeCheckLive:
		var msg domain.CheckLiveMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			s.sendError(clientID, domain.ErrCodeBadRequest, "Invalid check-live message")
			return
		}
		s.notifier.SendTo(clientID, domain.NewLiveStatusMessage(s.liveStatus(msg.RoomID)))

	case domain.MsgTypePing:
		s.notifier.SendTo(clientID, &domain.BaseMessage{Type: domain.MsgTypePong})

	default:
		s.sendError(clientID, domain.ErrCodeBadRequest, "Unknown message type")
	}
}

func (s *signalService) handleJoin(clientID string, msg domain.JoinMessage) error {
	l := pkglog.L()

	roomID := strings.TrimSpace(msg.RoomID)
	if roomID == "" {
		s.sendError(clientID, domain.ErrCodeJoinFailed, "room_id is required")
		return ErrInvalidJoin
	}
	if msg.Role == "" {
		msg.Role = string(domain.RoleViewer)
	}
	role, err := domain.ParseRole(msg.Role)
	if err != nil {
		s.sendError(clientID, domain.ErrCodeJoinFailed, err.Error())
		return errors.Join(ErrInvalidJoin, err)
	}

	c := s.conn(clientID)

	if p, ok := s.registry.Participant(clientID); ok {
		if p.RoomID == roomID && p.Role == role {
			rm, _ := s.registry.Room(roomID)
			s.sendJoined(p, rm)
			return nil
		}
		s.leave(clientID, kafka.ReasonExplicit)
	}

	id := identity.ForJoin(c.verified, msg.Identity)
	if id.Guest {
		if c.guestID == "" {
			c.guestID = id.UserID
		}
		id.UserID = c.guestID
	}

	now := s.now()
	p := room.NewParticipant(clientID, id, role, now)
	rm, displaced := s.registry.Add(roomID, p, now)
	if displaced != nil {
		s.displace(rm, displaced, p)
	}

	s.sendJoined(p, rm)
	s.notifier.SendToMany(rm.MemberIDs(clientID), &domain.PeerEvent{
		Type:        domain.MsgTypePeerJoined,
		RoomID:      roomID,
		Participant: p.Info(),
		Counts:      rm.Counts(),
	})

	if role == domain.RoleBroadcaster {
		s.announceLive(rm.LiveStatus())
		if s.producer != nil {
			if err := s.producer.ProduceBroadcastStarted(context.Background(), roomID, p.UserID, clientID); err != nil {
				l.Warn().Err(err).Str(pkglog.FieldRoomID, roomID).Msg("failed to produce broadcast_started event")
			}
		}
	}

	l.Info().
		Str(pkglog.FieldClientID, clientID).
		Str(pkglog.FieldRoomID, roomID).
		Str(pkglog.FieldRole, string(role)).
		Int("participants", rm.ParticipantCount()).
		Msg("participant joined")
	return nil
}

func (s *signalService) sendJoined(p *room.Participant, rm *room.Room) {
	snap := rm.Snapshot()
	s.notifier.SendTo(p.ClientID, &domain.JoinedMessage{
		Type:     domain.MsgTypeJoined,
		RoomID:   rm.ID,
		ClientID: p.ClientID,
		Role:     p.Role,
		Room:     snap,
	})
	s.notifier.SendTo(p.ClientID, &domain.RoomSnapshotMessage{
		Type:         domain.MsgTypeRoomSnapshot,
		RoomSnapshot: snap,
	})
}

// displace tells a broadcaster it lost its slot and tells the room it left.
func (s *signalService) displace(rm *room.Room, old, by *room.Participant) {
	l := pkglog.L()

	s.sendError(old.ClientID, domain.ErrCodeBroadcasterReplaced, "Another broadcaster took over room "+rm.ID)
	s.notifier.SendToMany(rm.MemberIDs(by.ClientID), &domain.PeerEvent{
		Type:        domain.MsgTypePeerLeft,
		RoomID:      rm.ID,
		Participant: old.Info(),
		Counts:      rm.Counts(),
	})
	if s.producer != nil {
		if err := s.producer.ProduceBroadcastStopped(context.Background(), rm.ID, old.UserID, old.ClientID, kafka.ReasonReplaced); err != nil {
			l.Warn().Err(err).Str(pkglog.FieldRoomID, rm.ID).Msg("failed to produce broadcast_stopped event")
		}
	}

	l.Info().
		Str(pkglog.FieldRoomID, rm.ID).
		Str(pkglog.FieldClientID, old.ClientID).
		Str("replaced_by", by.ClientID).
		Msg("broadcaster replaced")
}

func (s *signalService) handleRelay(clientID string, msg domain.RelayMessage) {
	l := pkglog.L()

	roomID := msg.RoomID
	if p, ok := s.registry.Participant(clientID); ok && roomID == "" {
		roomID = p.RoomID
	}

	out := &domain.RelayMessage{
		Type:     msg.Type,
		RoomID:   roomID,
		TargetID: msg.TargetID,
		SenderID: clientID,
		Payload:  msg.Payload,
	}

	if msg.TargetID != "" {
		if !s.notifier.SendTo(msg.TargetID, out) {
			s.notifier.SendTo(clientID, &domain.DeliveryFailedMessage{
				Type:     domain.MsgTypeDeliveryFailed,
				Kind:     msg.Type,
				RoomID:   roomID,
				TargetID: msg.TargetID,
			})
			l.Debug().
				Str(pkglog.FieldClientID, clientID).
				Str(pkglog.FieldTargetID, msg.TargetID).
				Str(pkglog.FieldEvent, msg.Type).
				Msg("relay target not connected")
		}
		return
	}

	rm, ok := s.registry.Room(roomID)
	if !ok {
		l.Debug().
			Str(pkglog.FieldClientID, clientID).
			Str(pkglog.FieldRoomID, roomID).
			Str(pkglog.FieldEvent, msg.Type).
			Msg("relay to unknown room dropped")
		return
	}
	s.notifier.SendToMany(rm.MemberIDs(clientID), out)
}

// member returns the participant for clientID when it is in roomID. An empty
// roomID matches the participant's current room.
func (s *signalService) member(clientID, roomID string) (*room.Participant, *room.Room, bool) {
	p, ok := s.registry.Participant(clientID)
	if !ok || (roomID != "" && roomID != p.RoomID) {
		return nil, nil, false
	}
	rm, ok := s.registry.Room(p.RoomID)
	if !ok {
		return nil, nil, false
	}
	return p, rm, true
}

func (s *signalService) handleChat(clientID string, msg domain.ChatMessage) error {
	p, rm, ok := s.member(clientID, msg.RoomID)
	if !ok {
		s.sendError(clientID, domain.ErrCodeNotInRoom, "Join the room before chatting")
		return ErrNotInRoom
	}

	text := strings.TrimSpace(msg.Text)
	if text == "" {
		s.sendError(clientID, domain.ErrCodeBadRequest, "text is required")
		return ErrEmptyChat
	}

	s.notifier.SendToMany(rm.MemberIDs(""), &domain.ChatEvent{
		Type:      domain.MsgTypeChat,
		ID:        uuid.New().String(),
		RoomID:    rm.ID,
		SenderID:  clientID,
		UserID:    p.UserID,
		Sender:    p.DisplayName,
		Avatar:    p.AvatarURL,
		Text:      text,
		Timestamp: s.now(),
	})
	return nil
}

func (s *signalService) handleReaction(clientID string, msg domain.ReactionMessage) error {
	p, rm, ok := s.member(clientID, msg.RoomID)
	if !ok {
		s.sendError(clientID, domain.ErrCodeNotInRoom, "Join the room before reacting")
		return ErrNotInRoom
	}

	emoji := strings.TrimSpace(msg.Emoji)
	if emoji == "" {
		emoji = domain.DefaultEmoji
	}

	s.notifier.SendToMany(rm.MemberIDs(""), &domain.ReactionEvent{
		Type:      domain.MsgTypeReaction,
		ID:        uuid.New().String(),
		RoomID:    rm.ID,
		SenderID:  clientID,
		UserID:    p.UserID,
		Sender:    p.DisplayName,
		Emoji:     emoji,
		Timestamp: s.now(),
	})
	return nil
}

func (s *signalService) handleLeave(clientID string, msg domain.LeaveMessage) {
	if _, _, ok := s.member(clientID, msg.RoomID); !ok {
		return
	}
	s.leave(clientID, kafka.ReasonExplicit)
}

// leave removes clientID from its room. It is a no-op when the client is in
// no room.
func (s *signalService) leave(clientID, reason string) bool {
	l := pkglog.L()

	p, rm, deleted := s.registry.Remove(clientID, s.now())
	if p == nil {
		return false
	}

	roomID := ""
	if rm != nil {
		roomID = rm.ID
	}

	if p.Role == domain.RoleBroadcaster && rm != nil {
		s.announceLive(domain.LiveStatus{RoomID: roomID, IsLive: false})
		if s.producer != nil {
			if err := s.producer.ProduceBroadcastStopped(context.Background(), roomID, p.UserID, clientID, reason); err != nil {
				l.Warn().Err(err).Str(pkglog.FieldRoomID, roomID).Msg("failed to produce broadcast_stopped event")
			}
		}
	}

	if rm != nil && !deleted {
		s.notifier.SendToMany(rm.MemberIDs(""), &domain.PeerEvent{
			Type:        domain.MsgTypePeerLeft,
			RoomID:      roomID,
			Participant: p.Info(),
			Counts:      rm.Counts(),
		})
	}

	evt := l.Info().
		Str(pkglog.FieldClientID, clientID).
		Str(pkglog.FieldRoomID, roomID).
		Str(pkglog.FieldRole, string(p.Role)).
		Str(pkglog.FieldReason, reason)
	if deleted {
		evt = evt.Bool("room_deleted", true)
	}
	evt.Msg("participant left")
	return true
}

func (s *signalService) liveStatus(roomID string) domain.LiveStatus {
	if rm, ok := s.registry.Room(roomID); ok && rm.IsStreaming() {
		return rm.LiveStatus()
	}
	if status, ok := s.remoteLive[roomID]; ok {
		return status
	}
	return domain.LiveStatus{RoomID: roomID, IsLive: false}
}

// announceLive sends a live status change to every local client and queues
// it for other instances.
func (s *signalService) announceLive(status domain.LiveStatus) {
	s.notifier.Broadcast(domain.NewLiveStatusMessage(status))

	if s.live == nil {
		return
	}
	select {
	case s.liveOutbox <- status:
	default:
		l := pkglog.L()
		l.Warn().Str(pkglog.FieldRoomID, status.RoomID).Msg("live status outbox full, dropping")
	}
}

// publishLive drains liveOutbox in order so remote instances see the same
// sequence of transitions.
func (s *signalService) publishLive(ctx context.Context) {
	l := pkglog.L()
	for {
		select {
		case <-ctx.Done():
			return
		case status := <-s.liveOutbox:
			pctx, cancel := context.WithTimeout(ctx, publishTimeout)
			if err := s.live.PublishLiveStatus(pctx, status); err != nil {
				l.Warn().Err(err).Str(pkglog.FieldRoomID, status.RoomID).Msg("failed to publish live status")
			}
			cancel()
		}
	}
}

func (s *signalService) applyRemoteLive(status domain.LiveStatus) {
	if status.IsLive {
		s.remoteLive[status.RoomID] = status
	} else {
		delete(s.remoteLive, status.RoomID)
	}
	s.notifier.Broadcast(domain.NewLiveStatusMessage(status))
}

// sweep evicts silent participants and reclaims stale empty rooms.
func (s *signalService) sweep(now time.Time) {
	l := pkglog.L()

	evicted := 0
	if s.opts.ParticipantTimeout > 0 {
		for _, p := range s.registry.Participants() {
			last, ok := s.notifier.LastSeen(p.ClientID)
			if ok && now.Sub(last) <= s.opts.ParticipantTimeout {
				continue
			}
			if s.leave(p.ClientID, kafka.ReasonTimeout) {
				evicted++
			}
			s.notifier.Close(p.ClientID)
		}
	}

	removed := s.registry.Sweep(now, s.opts.GracePeriod)

	if evicted > 0 || len(removed) > 0 {
		l.Info().
			Int("evicted", evicted).
			Strs("rooms_removed", removed).
			Int("rooms", s.registry.Len()).
			Msg("sweep completed")
	}
}

func (s *signalService) conn(clientID string) *conn {
	c, ok := s.conns[clientID]
	if !ok {
		c = &conn{}
		s.conns[clientID] = c
	}
	return c
}

func (s *signalService) sendError(clientID, code, message string) {
	s.notifier.SendTo(clientID, domain.NewErrorMessage(code, message))
}
