package pubsub

import (
	"context"
	"errors"
	"sync"
)

// ErrClosed is returned by operations on a closed bus.
var ErrClosed = errors.New("pubsub closed")

const localBuffer = 100

type localSub struct {
	ch   chan *Event
	done chan struct{}
}

// LocalPubSub is an in-process bus for single-instance deployments and tests.
type LocalPubSub struct {
	subs   map[string]map[*localSub]struct{}
	closed bool
	mu     sync.RWMutex
}

// NewLocalPubSub creates an in-process PubSub.
func NewLocalPubSub() *LocalPubSub {
	return &LocalPubSub{subs: make(map[string]map[*localSub]struct{})}
}

// Publish delivers event to every current subscriber of channel. Slow
// subscribers miss events rather than block the publisher.
func (l *LocalPubSub) Publish(ctx context.Context, channel string, event *Event) error {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if l.closed {
		return ErrClosed
	}
	for sub := range l.subs[channel] {
		select {
		case sub.ch <- event:
		default:
		}
	}
	return nil
}

// Subscribe registers a subscriber on channel until ctx is done.
func (l *LocalPubSub) Subscribe(ctx context.Context, channel string) (<-chan *Event, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return nil, ErrClosed
	}

	sub := &localSub{ch: make(chan *Event, localBuffer), done: make(chan struct{})}
	if l.subs[channel] == nil {
		l.subs[channel] = make(map[*localSub]struct{})
	}
	l.subs[channel][sub] = struct{}{}

	go func() {
		select {
		case <-ctx.Done():
		case <-sub.done:
			return
		}
		l.mu.Lock()
		if _, ok := l.subs[channel][sub]; ok {
			delete(l.subs[channel], sub)
			close(sub.ch)
		}
		l.mu.Unlock()
	}()

	return sub.ch, nil
}

// Close closes every subscription channel.
func (l *LocalPubSub) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return nil
	}
	l.closed = true
	for channel, subs := range l.subs {
		for sub := range subs {
			close(sub.ch)
			close(sub.done)
		}
		delete(l.subs, channel)
	}
	return nil
}
