package service

import (
	"context"
	"time"

	"github.com/weiawesome/pawfect-live/internal/domain"
)

// SignalService handles signaling operations. All room state is owned by
// one event loop started with Run; the Handle methods only enqueue work.
type SignalService interface {
	// HandleConnect records a new hub connection.
	HandleConnect(clientID string, verified *domain.Identity)

	// HandleMessage handles one raw frame from a client.
	HandleMessage(clientID string, data []byte)

	// HandleDisconnect handles a client disconnecting.
	HandleDisconnect(clientID string)

	// ApplyRemoteLiveStatus relays a live status change from another instance.
	ApplyRemoteLiveStatus(status domain.LiveStatus)

	// CheckLive reports whether a room is live without joining it.
	CheckLive(ctx context.Context, roomID string) (domain.LiveStatus, error)

	// RoomSnapshot returns the current state of a room.
	RoomSnapshot(ctx context.Context, roomID string) (domain.RoomSnapshot, error)

	// LiveRooms lists every room that currently has a broadcaster.
	LiveRooms(ctx context.Context) ([]domain.LiveStatus, error)

	// Run drives the event loop until ctx is done.
	Run(ctx context.Context) error
}

// Notifier delivers messages to connected clients.
type Notifier interface {
	SendTo(clientID string, message interface{}) bool
	SendToMany(clientIDs []string, message interface{})
	Broadcast(message interface{})
	LastSeen(clientID string) (time.Time, bool)
	Close(clientID string)
}

// LiveStatusPublisher shares live status changes with other instances.
type LiveStatusPublisher interface {
	PublishLiveStatus(ctx context.Context, status domain.LiveStatus) error
}
