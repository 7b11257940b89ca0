package service

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/weiawesome/pawfect-live/internal/domain"
)

// fakeNotifier records every frame per client, as the hub would encode it.
type fakeNotifier struct {
	mu        sync.Mutex
	connected map[string]bool
	frames    map[string][][]byte
	lastSeen  map[string]time.Time
	closed    []string
}

func newFakeNotifier() *fakeNotifier {
	return &fakeNotifier{
		connected: make(map[string]bool),
		frames:    make(map[string][][]byte),
		lastSeen:  make(map[string]time.Time),
	}
}

func (f *fakeNotifier) connect(id string, at time.Time) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connected[id] = true
	f.lastSeen[id] = at
}

func (f *fakeNotifier) record(id string, message interface{}) {
	data, err := json.Marshal(message)
	if err != nil {
		panic(err)
	}
	f.frames[id] = append(f.frames[id], data)
}

func (f *fakeNotifier) SendTo(clientID string, message interface{}) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.connected[clientID] {
		return false
	}
	f.record(clientID, message)
	return true
}

func (f *fakeNotifier) SendToMany(clientIDs []string, message interface{}) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, id := range clientIDs {
		if f.connected[id] {
			f.record(id, message)
		}
	}
}

func (f *fakeNotifier) Broadcast(message interface{}) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for id, ok := range f.connected {
		if ok {
			f.record(id, message)
		}
	}
}

func (f *fakeNotifier) LastSeen(clientID string) (time.Time, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.connected[clientID] {
		return time.Time{}, false
	}
	return f.lastSeen[clientID], true
}

func (f *fakeNotifier) Close(clientID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = append(f.closed, clientID)
	delete(f.connected, clientID)
}

// drain returns and clears the frames recorded for id.
func (f *fakeNotifier) drain(id string) []frame {
	f.mu.Lock()
	defer f.mu.Unlock()
	raw := f.frames[id]
	f.frames[id] = nil

	out := make([]frame, 0, len(raw))
	for _, data := range raw {
		var base domain.BaseMessage
		_ = json.Unmarshal(data, &base)
		out = append(out, frame{Type: base.Type, data: data})
	}
	return out
}

type frame struct {
	Type string
	data []byte
}

func types(frames []frame) []string {
	out := make([]string, 0, len(frames))
	for _, f := range frames {
		out = append(out, f.Type)
	}
	return out
}

func decode[T any](t *testing.T, f frame) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(f.data, &v))
	return v
}

func only(t *testing.T, frames []frame, typ string) []frame {
	t.Helper()
	var out []frame
	for _, f := range frames {
		if f.Type == typ {
			out = append(out, f)
		}
	}
	return out
}

// fakeProducer records broadcast lifecycle events.
type fakeProducer struct {
	mu     sync.Mutex
	events []string
}

func (p *fakeProducer) ProduceBroadcastStarted(ctx context.Context, roomID, broadcasterID, clientID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, "started:"+roomID+":"+clientID)
	return nil
}

func (p *fakeProducer) ProduceBroadcastStopped(ctx context.Context, roomID, broadcasterID, clientID, reason string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, "stopped:"+roomID+":"+clientID+":"+reason)
	return nil
}

func (p *fakeProducer) Close() error { return nil }

func (p *fakeProducer) list() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.events...)
}

// fakeLive records published live statuses.
type fakeLive struct {
	ch chan domain.LiveStatus
}

func (f *fakeLive) PublishLiveStatus(ctx context.Context, status domain.LiveStatus) error {
	f.ch <- status
	return nil
}
