package livestatus

import (
	"context"
	"errors"
	"time"

	"github.com/weiawesome/pawfect-live/internal/domain"
	pkglog "github.com/weiawesome/pawfect-live/pkg/log"
	"github.com/weiawesome/pawfect-live/pkg/pubsub"
)

var errSubscriptionClosed = errors.New("live status subscription closed")

// ApplyFunc receives live status changes published by other hub instances.
type ApplyFunc func(domain.LiveStatus)

// Bridge shares admin-live-status transitions between hub instances over a
// pub/sub channel. Events carry the publishing instance id so an instance
// ignores its own.
type Bridge struct {
	ps         pubsub.PubSub
	channel    string
	instanceID string
	retryDelay time.Duration
	doneCh     chan struct{}
}

// NewBridge creates a bridge on channel.
func NewBridge(ps pubsub.PubSub, channel, instanceID string) *Bridge {
	if channel == "" {
		channel = pubsub.ChannelLiveStatus
	}
	return &Bridge{
		ps:         ps,
		channel:    channel,
		instanceID: instanceID,
		retryDelay: 2 * time.Second,
		doneCh:     make(chan struct{}),
	}
}

// Done returns a channel that is closed when Run() exits.
func (b *Bridge) Done() <-chan struct{} { return b.doneCh }

// PublishLiveStatus announces a local live status change.
func (b *Bridge) PublishLiveStatus(ctx context.Context, status domain.LiveStatus) error {
	event, err := pubsub.NewEvent(pubsub.EventLiveStatus, status.RoomID, &pubsub.LiveStatusPayload{
		RoomID:    status.RoomID,
		IsLive:    status.IsLive,
		AdminName: status.AdminName,
	})
	if err != nil {
		return err
	}
	event.Origin = b.instanceID
	return b.ps.Publish(ctx, b.channel, event)
}

// Run delivers remote live status changes to apply until ctx is done.
// Resubscribes on subscription errors.
func (b *Bridge) Run(ctx context.Context, apply ApplyFunc) {
	defer close(b.doneCh)
	l := pkglog.L()

	for {
		err := b.runSubscription(ctx, apply)
		if ctx.Err() != nil {
			return
		}
		l.Warn().Err(err).Dur("retry_in", b.retryDelay).Msg("live status subscription error, reconnecting")
		select {
		case <-ctx.Done():
			return
		case <-time.After(b.retryDelay):
		}
	}
}

func (b *Bridge) runSubscription(ctx context.Context, apply ApplyFunc) error {
	ch, err := b.ps.Subscribe(ctx, b.channel)
	if err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-ch:
			if !ok {
				return errSubscriptionClosed
			}
			b.handleEvent(event, apply)
		}
	}
}

func (b *Bridge) handleEvent(event *pubsub.Event, apply ApplyFunc) {
	if event.Type != pubsub.EventLiveStatus || event.Origin == b.instanceID {
		return
	}

	var payload pubsub.LiveStatusPayload
	if err := event.UnmarshalPayload(&payload); err != nil {
		l := pkglog.L()
		l.Warn().Err(err).Msg("live status: invalid payload")
		return
	}
	if payload.RoomID == "" {
		return
	}

	apply(domain.LiveStatus{
		RoomID:    payload.RoomID,
		IsLive:    payload.IsLive,
		AdminName: payload.AdminName,
	})
}
