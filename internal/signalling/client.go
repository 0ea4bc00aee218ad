// Package signalling implements the videoroom gateway protocol the recorder
// uses to pull publisher streams: session and plugin handle management, room
// joins, and RTP forward control. Two transports are provided; the HTTP
// variant answers each verb synchronously, the WebSocket variant additionally
// streams room events (publishers arriving and leaving, hangups).
package signalling

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jmylchreest/roomrec/internal/config"
)

// ForwardRequest asks the gateway to forward one publisher's RTP streams to
// the recorder host.
type ForwardRequest struct {
	Room      int64
	Publisher int64
	Host      string
	AudioPort int
	VideoPort int
	AudioPT   int
	VideoPT   int
}

// ForwardReply carries the gateway-assigned stream IDs needed to stop the
// forward later. A zero ID means the corresponding media kind was not
// forwarded.
type ForwardReply struct {
	AudioStreamID uint64
	VideoStreamID uint64
}

// EventKind distinguishes asynchronous gateway notifications.
type EventKind string

// Event kinds delivered on the Events channel.
const (
	// EventPublishers reports the active publishers in a room, either from
	// the initial join or because someone new started publishing.
	EventPublishers EventKind = "publishers"
	// EventPublisherLeft reports a publisher leaving or unpublishing.
	EventPublisherLeft EventKind = "publisher_left"
	// EventHangup reports the gateway hanging up a handle unexpectedly.
	EventHangup EventKind = "hangup"
	// EventDisconnected reports the transport connection being lost. All
	// gateway-side state is gone; owners must fail their sessions.
	EventDisconnected EventKind = "disconnected"
)

// Event is an asynchronous notification from the gateway.
type Event struct {
	Kind       EventKind
	Room       int64
	Publisher  int64
	Publishers []Publisher
	Reason     string
}

// Client is the transport-independent signalling surface. Verbs are
// room-scoped because one client multiplexes every room the recorder is
// working in.
//
// The HTTP transport treats JoinRoom and Keepalive as no-ops: forwards are
// authorized by the admin secret alone and HTTP sessions are refreshed per
// exchange. Events returns nil for transports with no event stream.
type Client interface {
	// OpenSession establishes the gateway session for a room.
	OpenSession(ctx context.Context, room int64) error
	// AttachPlugin attaches the videoroom plugin to the room's session.
	AttachPlugin(ctx context.Context, room int64) error
	// JoinRoom joins the room as a recorder participant.
	JoinRoom(ctx context.Context, room int64, pin, display string) error
	// RequestForward starts forwarding one publisher's RTP to the recorder.
	RequestForward(ctx context.Context, req ForwardRequest) (ForwardReply, error)
	// StopForward stops a single forwarded stream.
	StopForward(ctx context.Context, room, publisher int64, streamID uint64) error
	// LeaveRoom destroys the room's gateway session.
	LeaveRoom(ctx context.Context, room int64) error
	// Keepalive refreshes the room's session so the gateway keeps it alive.
	Keepalive(ctx context.Context, room int64) error
	// Events exposes asynchronous gateway notifications, or nil when the
	// transport has none.
	Events() <-chan Event
	// Close releases the transport and all gateway sessions.
	Close() error
}

// NewClient builds the signalling client selected by cfg.Transport.
func NewClient(cfg config.SignallingConfig, logger *slog.Logger) (Client, error) {
	switch cfg.Transport {
	case "http":
		return NewHTTPClient(cfg, logger), nil
	case "websocket":
		return NewWSClient(cfg, logger), nil
	default:
		return nil, fmt.Errorf("unknown signalling transport %q", cfg.Transport)
	}
}
