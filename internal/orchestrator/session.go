package orchestrator

import (
	"encoding/json"
	"time"

	"github.com/pion/webrtc/v4"

	"github.com/weiawesome/pawfect-live/internal/domain"
	"github.com/weiawesome/pawfect-live/internal/peer"
	"github.com/weiawesome/pawfect-live/internal/signaling"
	pkglog "github.com/weiawesome/pawfect-live/pkg/log"
)

func (o *Orchestrator) handleFrame(gen uint64, frame signaling.Frame) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if gen != o.gen {
		return
	}

	var err error
	switch frame.Type {
	case domain.MsgTypeJoined:
		err = o.onJoinedLocked(frame)
	case domain.MsgTypeRoomSnapshot:
		err = o.onRoomSnapshotLocked(frame)
	case domain.MsgTypePeerJoined:
		err = o.onPeerJoinedLocked(frame)
	case domain.MsgTypePeerLeft:
		err = o.onPeerLeftLocked(frame)
	case domain.MsgTypeLiveStatus:
		err = o.onLiveStatusLocked(frame)
	case domain.MsgTypeOffer, domain.MsgTypeAnswer, domain.MsgTypeICECandidate:
		err = o.onRelayLocked(frame)
	case domain.MsgTypeChat:
		err = o.onChatLocked(frame)
	case domain.MsgTypeReaction:
		err = o.onReactionLocked(frame)
	case domain.MsgTypeDeliveryFailed:
		err = o.onDeliveryFailedLocked(frame)
	case domain.MsgTypeError:
		err = o.onErrorLocked(frame)
	case domain.MsgTypePong, domain.MsgTypeConnected:
	default:
		o.logger.Debug().Str(pkglog.FieldEvent, frame.Type).Msg("unhandled hub frame")
	}

	if err != nil {
		o.logger.Warn().Err(err).Str(pkglog.FieldEvent, frame.Type).Msg("bad hub frame")
		return
	}
	o.publishLocked()
}

func (o *Orchestrator) onJoinedLocked(frame signaling.Frame) error {
	var msg domain.JoinedMessage
	if err := frame.Decode(&msg); err != nil {
		return err
	}

	o.joined = true
	if msg.ClientID != "" {
		o.clientID = msg.ClientID
	}
	o.applySnapshotLocked(msg.Room)
	o.logger.Info().Str(pkglog.FieldClientID, o.clientID).Int("participants", msg.Room.Counts.Participants).Msg("joined room")

	if o.status.State != StateStreamConnected {
		o.setStatusLocked(Status{State: StateJoined})
	}
	if o.opts.Role == domain.RoleBroadcaster {
		o.offerToViewersLocked()
	}
	return nil
}

func (o *Orchestrator) onRoomSnapshotLocked(frame signaling.Frame) error {
	var msg domain.RoomSnapshotMessage
	if err := frame.Decode(&msg); err != nil {
		return err
	}
	if msg.RoomID != o.opts.RoomID {
		return nil
	}

	o.applySnapshotLocked(msg.RoomSnapshot)
	if o.joined && o.opts.Role == domain.RoleBroadcaster {
		o.offerToViewersLocked()
	}
	return nil
}

func (o *Orchestrator) applySnapshotLocked(snap domain.RoomSnapshot) {
	o.counts = snap.Counts
	o.roster = append([]domain.ParticipantInfo(nil), snap.Roster...)
	o.isLive = snap.IsStreaming
}

func (o *Orchestrator) onPeerJoinedLocked(frame signaling.Frame) error {
	var ev domain.PeerEvent
	if err := frame.Decode(&ev); err != nil {
		return err
	}
	if ev.RoomID != o.opts.RoomID {
		return nil
	}

	o.counts = ev.Counts
	o.upsertRosterLocked(ev.Participant)

	if o.joined && o.opts.Role == domain.RoleBroadcaster && ev.Participant.Role == domain.RoleViewer {
		o.offerToLocked(ev.Participant.ClientID)
	}
	return nil
}

func (o *Orchestrator) onPeerLeftLocked(frame signaling.Frame) error {
	var ev domain.PeerEvent
	if err := frame.Decode(&ev); err != nil {
		return err
	}
	if ev.RoomID != o.opts.RoomID {
		return nil
	}

	o.counts = ev.Counts
	o.removeRosterLocked(ev.Participant.ClientID)
	o.closeLinkLocked(ev.Participant.ClientID)
	return nil
}

func (o *Orchestrator) onLiveStatusLocked(frame signaling.Frame) error {
	var msg domain.LiveStatusMessage
	if err := frame.Decode(&msg); err != nil {
		return err
	}
	if msg.RoomID != o.opts.RoomID {
		return nil
	}

	o.isLive = msg.IsLive
	if !msg.IsLive && o.opts.Role == domain.RoleViewer {
		for id := range o.links {
			o.closeLinkLocked(id)
		}
	}
	return nil
}

func (o *Orchestrator) onRelayLocked(frame signaling.Frame) error {
	var msg domain.RelayMessage
	if err := frame.Decode(&msg); err != nil {
		return err
	}
	if msg.SenderID == "" {
		o.logger.Debug().Str(pkglog.FieldEvent, msg.Type).Msg("relay without sender")
		return nil
	}

	switch msg.Type {
	case domain.MsgTypeOffer:
		o.onOfferLocked(msg)
	case domain.MsgTypeAnswer:
		o.onAnswerLocked(msg)
	case domain.MsgTypeICECandidate:
		o.onCandidateLocked(msg)
	}
	return nil
}

func (o *Orchestrator) onOfferLocked(msg domain.RelayMessage) {
	logger := o.logger.With().Str("sender", msg.SenderID).Logger()

	var offer webrtc.SessionDescription
	if err := json.Unmarshal(msg.Payload, &offer); err != nil {
		logger.Warn().Err(err).Msg("undecodable offer")
		return
	}

	link, ok := o.links[msg.SenderID]
	if !ok {
		var err error
		link, err = o.newLinkLocked(msg.SenderID)
		if err != nil {
			logger.Error().Err(err).Msg("create peer link")
			return
		}
	}

	answer, err := link.AcceptOffer(offer)
	if err != nil {
		logger.Error().Err(err).Msg("answer offer")
		o.closeLinkLocked(msg.SenderID)
		return
	}

	o.flushCandidatesLocked(link)
	o.relayLocked(domain.MsgTypeAnswer, msg.SenderID, answer)
}

func (o *Orchestrator) onAnswerLocked(msg domain.RelayMessage) {
	logger := o.logger.With().Str("sender", msg.SenderID).Logger()

	link, ok := o.links[msg.SenderID]
	if !ok {
		logger.Debug().Msg("answer for unknown link")
		return
	}

	var answer webrtc.SessionDescription
	if err := json.Unmarshal(msg.Payload, &answer); err != nil {
		logger.Warn().Err(err).Msg("undecodable answer")
		return
	}

	if err := link.AcceptAnswer(answer); err != nil {
		logger.Error().Err(err).Msg("apply answer")
		o.closeLinkLocked(msg.SenderID)
		return
	}
	o.flushCandidatesLocked(link)
}

func (o *Orchestrator) onCandidateLocked(msg domain.RelayMessage) {
	var candidate webrtc.ICECandidateInit
	if err := json.Unmarshal(msg.Payload, &candidate); err != nil {
		o.logger.Warn().Err(err).Str("sender", msg.SenderID).Msg("undecodable candidate")
		return
	}

	if link, ok := o.links[msg.SenderID]; ok && link.HasRemoteDescription() {
		if err := link.AddCandidate(candidate); err != nil {
			o.logger.Debug().Err(err).Str("sender", msg.SenderID).Msg("add candidate")
		}
		return
	}

	if dropped := o.candidates.Add(msg.SenderID, candidate); dropped > 0 {
		o.logger.Debug().Int("dropped", dropped).Str("sender", msg.SenderID).Msg("candidate buffer trimmed")
	}
}

func (o *Orchestrator) flushCandidatesLocked(link *peer.Link) {
	for _, candidate := range o.candidates.Take(link.PeerID) {
		if err := link.AddCandidate(candidate); err != nil {
			o.logger.Debug().Err(err).Str("sender", link.PeerID).Msg("add buffered candidate")
		}
	}
}

func (o *Orchestrator) onChatLocked(frame signaling.Frame) error {
	var ev domain.ChatEvent
	if err := frame.Decode(&ev); err != nil {
		return err
	}
	if ev.RoomID != o.opts.RoomID {
		return nil
	}

	o.chat = append(o.chat, ev)
	if over := len(o.chat) - o.opts.ChatHistory; over > 0 {
		o.chat = append([]domain.ChatEvent(nil), o.chat[over:]...)
	}
	return nil
}

func (o *Orchestrator) onReactionLocked(frame signaling.Frame) error {
	var ev domain.ReactionEvent
	if err := frame.Decode(&ev); err != nil {
		return err
	}
	if ev.RoomID != o.opts.RoomID {
		return nil
	}

	o.pruneReactionsLocked()
	o.reactions = append(o.reactions, Reaction{
		ID:        ev.ID,
		SenderID:  ev.SenderID,
		Sender:    ev.Sender,
		Emoji:     ev.Emoji,
		ExpiresAt: o.now().Add(o.opts.ReactionDisplay),
	})

	gen := o.gen
	time.AfterFunc(o.opts.ReactionDisplay, func() { o.expireReactions(gen) })
	return nil
}

func (o *Orchestrator) expireReactions(gen uint64) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if gen != o.gen {
		return
	}
	if o.pruneReactionsLocked() {
		o.publishLocked()
	}
}

func (o *Orchestrator) pruneReactionsLocked() bool {
	now := o.now()
	kept := o.reactions[:0]
	for _, r := range o.reactions {
		if now.Before(r.ExpiresAt) {
			kept = append(kept, r)
		}
	}
	changed := len(kept) != len(o.reactions)
	o.reactions = kept
	return changed
}

func (o *Orchestrator) onDeliveryFailedLocked(frame signaling.Frame) error {
	var msg domain.DeliveryFailedMessage
	if err := frame.Decode(&msg); err != nil {
		return err
	}

	o.logger.Warn().Str(pkglog.FieldTargetID, msg.TargetID).Str("kind", msg.Kind).Msg("negotiation not delivered")
	o.closeLinkLocked(msg.TargetID)
	return nil
}

func (o *Orchestrator) onErrorLocked(frame signaling.Frame) error {
	var msg domain.ErrorMessage
	if err := frame.Decode(&msg); err != nil {
		return err
	}

	switch msg.Code {
	case domain.ErrCodeBroadcasterReplaced:
		o.logger.Warn().Msg(msg.Message)
		o.wantJoin = false
		o.resetSessionLocked()
		o.setStatusLocked(Status{State: StateError, Reason: ReasonReplaced})
	case domain.ErrCodeJoinFailed:
		o.logger.Error().Str("code", msg.Code).Msg(msg.Message)
		o.wantJoin = false
		o.setStatusLocked(Status{State: StateError, Reason: msg.Message})
	default:
		o.logger.Warn().Str("code", msg.Code).Msg(msg.Message)
	}
	return nil
}

// offerToViewersLocked opens a link to every viewer in the roster that
// does not have one yet.
func (o *Orchestrator) offerToViewersLocked() {
	for _, p := range o.roster {
		if p.Role == domain.RoleViewer {
			o.offerToLocked(p.ClientID)
		}
	}
}

func (o *Orchestrator) offerToLocked(peerID string) {
	if o.local == nil || peerID == o.clientID {
		return
	}
	if _, ok := o.links[peerID]; ok {
		return
	}

	link, err := o.newLinkLocked(peerID)
	if err != nil {
		o.logger.Error().Err(err).Str(pkglog.FieldTargetID, peerID).Msg("create peer link")
		return
	}
	if err := link.AttachTracks(o.local.Tracks()); err != nil {
		o.logger.Error().Err(err).Str(pkglog.FieldTargetID, peerID).Msg("attach tracks")
		o.closeLinkLocked(peerID)
		return
	}
	o.sendOfferLocked(link)
}

func (o *Orchestrator) sendOfferLocked(link *peer.Link) {
	offer, err := link.Offer()
	if err != nil {
		o.logger.Error().Err(err).Str(pkglog.FieldTargetID, link.PeerID).Msg("create offer")
		o.closeLinkLocked(link.PeerID)
		return
	}
	o.relayLocked(domain.MsgTypeOffer, link.PeerID, offer)
}

func (o *Orchestrator) relayLocked(kind, target string, payload any) {
	if o.conn == nil {
		return
	}
	if err := o.conn.Send(newRelay(kind, o.opts.RoomID, target, payload)); err != nil {
		o.logger.Warn().Err(err).Str(pkglog.FieldTargetID, target).Str("kind", kind).Msg("relay not sent")
	}
}

func newRelay(kind, roomID, target string, payload any) domain.RelayMessage {
	data, _ := json.Marshal(payload)
	return domain.RelayMessage{Type: kind, RoomID: roomID, TargetID: target, Payload: data}
}

func (o *Orchestrator) newLinkLocked(peerID string) (*peer.Link, error) {
	conn, err := o.peers.NewConn()
	if err != nil {
		return nil, err
	}

	link := peer.NewLink(peerID, conn)
	gen := o.gen
	hub := o.conn
	roomID := o.opts.RoomID

	conn.OnICECandidate(func(candidate webrtc.ICECandidateInit) {
		if hub == nil {
			return
		}
		if err := hub.Send(newRelay(domain.MsgTypeICECandidate, roomID, peerID, candidate)); err != nil {
			o.logger.Debug().Err(err).Str(pkglog.FieldTargetID, peerID).Msg("candidate not sent")
		}
	})
	conn.OnTrack(func(track peer.RemoteTrack) {
		o.onRemoteTrack(gen, link, track)
	})
	conn.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
		o.onLinkState(gen, link, state)
	})

	o.links[peerID] = link
	return link, nil
}

func (o *Orchestrator) closeLinkLocked(peerID string) {
	o.candidates.Drop(peerID)
	delete(o.connectedPeers, peerID)
	if o.remote != nil && o.remote.PeerID == peerID {
		o.remote = nil
	}

	if link, ok := o.links[peerID]; ok {
		delete(o.links, peerID)
		if err := link.Close(); err != nil {
			o.logger.Debug().Err(err).Str(pkglog.FieldTargetID, peerID).Msg("close link")
		}
	}
	o.refreshStreamStatusLocked()
}

func (o *Orchestrator) onRemoteTrack(gen uint64, link *peer.Link, track peer.RemoteTrack) {
	o.mu.Lock()
	if gen != o.gen || o.links[link.PeerID] != link {
		o.mu.Unlock()
		return
	}

	if o.remote == nil || o.remote.PeerID != link.PeerID {
		o.remote = &RemoteStream{PeerID: link.PeerID}
	}
	o.remote.Tracks = append(o.remote.Tracks, track)
	o.logger.Info().Str("sender", link.PeerID).Str("kind", track.Kind().String()).Msg("remote track")
	o.refreshStreamStatusLocked()
	o.publishLocked()
	handler := o.opts.OnTrack
	o.mu.Unlock()

	if handler != nil {
		go handler(link.PeerID, track)
	}
}

// onLinkState applies connection changes. A failed link is closed without
// retry; the next offer opens a fresh one.
func (o *Orchestrator) onLinkState(gen uint64, link *peer.Link, state webrtc.PeerConnectionState) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if gen != o.gen || o.links[link.PeerID] != link {
		return
	}

	o.logger.Debug().Str(pkglog.FieldTargetID, link.PeerID).Str(pkglog.FieldState, state.String()).Msg("peer link state")
	switch state {
	case webrtc.PeerConnectionStateConnected:
		o.connectedPeers[link.PeerID] = true
		o.refreshStreamStatusLocked()
	case webrtc.PeerConnectionStateDisconnected:
		delete(o.connectedPeers, link.PeerID)
		if o.remote != nil && o.remote.PeerID == link.PeerID {
			o.remote = nil
		}
		o.refreshStreamStatusLocked()
	case webrtc.PeerConnectionStateFailed, webrtc.PeerConnectionStateClosed:
		o.closeLinkLocked(link.PeerID)
	default:
		return
	}
	o.publishLocked()
}

func (o *Orchestrator) upsertRosterLocked(p domain.ParticipantInfo) {
	for i := range o.roster {
		if o.roster[i].ClientID == p.ClientID {
			o.roster[i] = p
			return
		}
	}
	o.roster = append(o.roster, p)
}

func (o *Orchestrator) removeRosterLocked(clientID string) {
	for i := range o.roster {
		if o.roster[i].ClientID == clientID {
			o.roster = append(o.roster[:i], o.roster[i+1:]...)
			return
		}
	}
}
