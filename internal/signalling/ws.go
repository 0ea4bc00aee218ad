package signalling

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/jmylchreest/roomrec/internal/config"
)

// wsSubprotocol is the subprotocol the gateway requires on WebSocket
// connections.
const wsSubprotocol = "janus-protocol"

// wsRoom tracks the gateway session and plugin handle serving one room.
type wsRoom struct {
	sessionID uint64
	handleID  uint64
	joined    bool
}

// WSClient is the event-stream signalling transport. One connection
// multiplexes every room: requests are correlated to replies by transaction,
// while room events (publishers arriving and leaving, hangups) are delivered
// on the Events channel.
//
// All writes go through a single mutex and a single receiver goroutine owns
// the connection's read side.
type WSClient struct {
	cfg    config.SignallingConfig
	logger *slog.Logger
	dialer *websocket.Dialer

	writeMu sync.Mutex
	conn    *websocket.Conn

	mu      sync.Mutex
	rooms   map[int64]*wsRoom
	handles map[uint64]int64
	pending map[string]chan *Response
	closed  bool

	events chan Event
	done   chan struct{}
}

// NewWSClient creates a WebSocket signalling client. The connection is
// established lazily on the first OpenSession.
func NewWSClient(cfg config.SignallingConfig, logger *slog.Logger) *WSClient {
	if logger == nil {
		logger = slog.Default()
	}
	return &WSClient{
		cfg:    cfg,
		logger: logger,
		dialer: &websocket.Dialer{
			HandshakeTimeout: 10 * time.Second,
			Subprotocols:     []string{wsSubprotocol},
		},
		rooms:   make(map[int64]*wsRoom),
		handles: make(map[uint64]int64),
		pending: make(map[string]chan *Response),
		events:  make(chan Event, 64),
		done:    make(chan struct{}),
	}
}

// OpenSession establishes the gateway session for a room, dialing the
// gateway first if this is the first room.
func (c *WSClient) OpenSession(ctx context.Context, room int64) error {
	if err := c.ensureConnected(ctx); err != nil {
		return err
	}

	resp, err := c.request(ctx, &Request{
		Janus:       TypeCreate,
		Transaction: uuid.NewString(),
	})
	if err != nil {
		return fmt.Errorf("creating session: %w", err)
	}
	if resp.Janus != TypeSuccess || resp.Data == nil {
		return fmt.Errorf("creating session: %w", responseError(resp))
	}

	c.mu.Lock()
	c.rooms[room] = &wsRoom{sessionID: resp.Data.ID}
	c.mu.Unlock()

	c.logger.Debug("signalling session opened",
		slog.Int64("room", room),
		slog.Uint64("session_id", resp.Data.ID))
	return nil
}

// AttachPlugin attaches the videoroom plugin to the room's session.
func (c *WSClient) AttachPlugin(ctx context.Context, room int64) error {
	state, err := c.roomState(room)
	if err != nil {
		return err
	}

	resp, err := c.request(ctx, &Request{
		Janus:       TypeAttach,
		Plugin:      c.cfg.Plugin,
		SessionID:   state.sessionID,
		Transaction: uuid.NewString(),
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrAttachRejected, err)
	}
	if resp.Janus != TypeSuccess || resp.Data == nil {
		return fmt.Errorf("%w: %v", ErrAttachRejected, responseError(resp))
	}

	c.mu.Lock()
	state.handleID = resp.Data.ID
	c.handles[resp.Data.ID] = room
	c.mu.Unlock()

	c.logger.Debug("plugin attached",
		slog.Int64("room", room),
		slog.Uint64("handle_id", resp.Data.ID))
	return nil
}

// JoinRoom joins the room as a recorder participant. The reply doubles as
// the first publisher roster; it is delivered on the Events channel like any
// later roster change.
func (c *WSClient) JoinRoom(ctx context.Context, room int64, pin, display string) error {
	state, err := c.roomState(room)
	if err != nil {
		return err
	}

	body := map[string]any{
		"request": "join",
		"ptype":   "publisher",
		"room":    room,
		"display": display,
		"id":      c.cfg.Publishers.Recorder,
	}
	if pin != "" {
		body["pin"] = pin
	}

	resp, err := c.request(ctx, &Request{
		Janus:       TypeMessage,
		SessionID:   state.sessionID,
		HandleID:    state.handleID,
		Transaction: uuid.NewString(),
		Body:        body,
	})
	if err != nil {
		return fmt.Errorf("joining room: %w", err)
	}
	if resp.Janus == TypeError {
		return fmt.Errorf("joining room: %w", responseError(resp))
	}
	if data, err := DecodeVideoRoomData(resp.PluginData); err == nil {
		if data.ErrorCode != 0 || data.ErrorReason != "" {
			return fmt.Errorf("joining room: videoroom error %d: %s",
				data.ErrorCode, data.ErrorReason)
		}
	}

	c.mu.Lock()
	state.joined = true
	c.mu.Unlock()
	return nil
}

// RequestForward starts forwarding one publisher's RTP to the recorder.
func (c *WSClient) RequestForward(ctx context.Context, req ForwardRequest) (ForwardReply, error) {
	state, err := c.roomState(req.Room)
	if err != nil {
		return ForwardReply{}, err
	}

	resp, err := c.request(ctx, &Request{
		Janus:       TypeMessage,
		SessionID:   state.sessionID,
		HandleID:    state.handleID,
		Transaction: uuid.NewString(),
		Body: map[string]any{
			"request":      "rtp_forward",
			"secret":       c.cfg.AdminSecret,
			"room":         req.Room,
			"publisher_id": req.Publisher,
			"host":         req.Host,
			"audio_port":   req.AudioPort,
			"video_port":   req.VideoPort,
			"audio_pt":     req.AudioPT,
			"video_pt":     req.VideoPT,
		},
	})
	if err != nil {
		return ForwardReply{}, fmt.Errorf("%w: %v", ErrForwardRejected, err)
	}
	return parseForwardReply(resp)
}

// StopForward stops a single forwarded stream.
func (c *WSClient) StopForward(ctx context.Context, room, publisher int64, streamID uint64) error {
	state, err := c.roomState(room)
	if err != nil {
		return err
	}

	resp, err := c.request(ctx, &Request{
		Janus:       TypeMessage,
		SessionID:   state.sessionID,
		HandleID:    state.handleID,
		Transaction: uuid.NewString(),
		Body: map[string]any{
			"request":      "stop_rtp_forward",
			"secret":       c.cfg.AdminSecret,
			"room":         room,
			"publisher_id": publisher,
			"stream_id":    streamID,
		},
	})
	if err != nil {
		return fmt.Errorf("stopping forward: %w", err)
	}
	if resp.Janus == TypeError {
		return fmt.Errorf("stopping forward: %w", responseError(resp))
	}
	return nil
}

// LeaveRoom destroys the room's gateway session.
func (c *WSClient) LeaveRoom(ctx context.Context, room int64) error {
	c.mu.Lock()
	state, ok := c.rooms[room]
	if ok {
		delete(c.rooms, room)
		delete(c.handles, state.handleID)
	}
	c.mu.Unlock()
	if !ok {
		return ErrSessionNotFound
	}

	resp, err := c.request(ctx, &Request{
		Janus:       TypeDestroy,
		SessionID:   state.sessionID,
		Transaction: uuid.NewString(),
	})
	if err != nil {
		return fmt.Errorf("destroying session: %w", err)
	}
	if resp.Janus == TypeError {
		return fmt.Errorf("destroying session: %w", responseError(resp))
	}

	c.logger.Debug("signalling session destroyed", slog.Int64("room", room))
	return nil
}

// Keepalive refreshes the room's session. The client also runs its own
// keepalive ticker; this is for callers that want an immediate refresh.
func (c *WSClient) Keepalive(ctx context.Context, room int64) error {
	state, err := c.roomState(room)
	if err != nil {
		return err
	}
	return c.write(&Request{
		Janus:       TypeKeepalive,
		SessionID:   state.sessionID,
		HandleID:    state.handleID,
		Transaction: uuid.NewString(),
	})
}

// Events exposes asynchronous gateway notifications.
func (c *WSClient) Events() <-chan Event {
	return c.events
}

// Close tears down the connection and all gateway sessions.
func (c *WSClient) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	close(c.done)
	conn := c.conn
	c.conn = nil
	c.failPendingLocked()
	c.mu.Unlock()

	if conn != nil {
		return conn.Close()
	}
	return nil
}

// ensureConnected dials the gateway and starts the receiver and keepalive
// goroutines on first use.
func (c *WSClient) ensureConnected(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}
	if c.conn != nil {
		return nil
	}

	conn, _, err := c.dialer.DialContext(ctx, c.cfg.WebSocketURL, nil)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	c.conn = conn

	go c.readLoop(conn)
	go c.keepaliveLoop(conn)

	c.logger.Info("signalling connected", slog.String("url", c.cfg.WebSocketURL))
	return nil
}

// request writes one envelope and waits for the correlated reply. Acks are
// swallowed; the reply is the first success, error, or plugin event carrying
// the same transaction.
func (c *WSClient) request(ctx context.Context, req *Request) (*Response, error) {
	ch := make(chan *Response, 1)

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, ErrClosed
	}
	c.pending[req.Transaction] = ch
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		delete(c.pending, req.Transaction)
		c.mu.Unlock()
	}()

	if err := c.write(req); err != nil {
		return nil, err
	}

	timeout := c.cfg.RequestTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case resp := <-ch:
		if resp == nil {
			return nil, ErrUnavailable
		}
		return resp, nil
	case <-timer.C:
		return nil, ErrTimeout
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-c.done:
		return nil, ErrClosed
	}
}

// write serializes a single envelope onto the connection.
func (c *WSClient) write(req *Request) error {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return ErrUnavailable
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := conn.WriteJSON(req); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

// readLoop owns the connection's read side until it fails or the client
// closes. Replies are routed to waiting requests; everything else becomes an
// Event.
func (c *WSClient) readLoop(conn *websocket.Conn) {
	for {
		var resp Response
		if err := conn.ReadJSON(&resp); err != nil {
			select {
			case <-c.done:
				return
			default:
			}
			c.logger.Warn("signalling connection lost", slog.String("error", err.Error()))
			c.handleDisconnect()
			return
		}
		c.dispatch(&resp)
	}
}

// dispatch routes one inbound envelope.
func (c *WSClient) dispatch(resp *Response) {
	switch resp.Janus {
	case TypeAck:
		// Transaction continues; the real reply follows.
		return
	case TypeSuccess, TypeError:
		if c.completePending(resp) {
			return
		}
	case TypeEvent:
		// Plugin events answer an in-flight request when they carry its
		// transaction (join confirmations, forward replies). A roster
		// change in the payload is surfaced to event consumers either way,
		// so the initial joined roster is not lost to the reply path.
		c.completePending(resp)
		c.handleRoomEvent(resp)
		return
	case TypeHangup:
		c.handleHangup(resp)
		return
	case TypeWebRTCUp, TypeMedia, TypeSlowLink:
		c.logger.Debug("gateway media notification",
			slog.String("kind", resp.Janus),
			slog.Uint64("sender", resp.Sender))
		return
	}

	c.logger.Debug("unhandled gateway message", slog.String("kind", resp.Janus))
}

// completePending hands a reply to the request waiting on its transaction.
func (c *WSClient) completePending(resp *Response) bool {
	if resp.Transaction == "" {
		return false
	}
	c.mu.Lock()
	ch, ok := c.pending[resp.Transaction]
	if ok {
		delete(c.pending, resp.Transaction)
	}
	c.mu.Unlock()
	if ok {
		ch <- resp
	}
	return ok
}

// handleRoomEvent turns an unsolicited videoroom event into an Event.
func (c *WSClient) handleRoomEvent(resp *Response) {
	data, err := DecodeVideoRoomData(resp.PluginData)
	if err != nil {
		return
	}

	room := data.Room
	if room == 0 {
		room = c.roomForHandle(resp.Sender)
	}

	if len(data.Publishers) > 0 {
		c.emit(Event{Kind: EventPublishers, Room: room, Publishers: data.Publishers})
		return
	}
	if publisher, ok := data.LeavingPublisher(); ok {
		c.emit(Event{Kind: EventPublisherLeft, Room: room, Publisher: publisher})
	}
}

// handleHangup reports the gateway hanging up the handle serving a room.
func (c *WSClient) handleHangup(resp *Response) {
	room := c.roomForHandle(resp.Sender)
	c.logger.Warn("gateway hangup",
		slog.Int64("room", room),
		slog.String("reason", resp.Reason))
	c.emit(Event{Kind: EventHangup, Room: room, Reason: resp.Reason})
}

// handleDisconnect fails every in-flight request and tells owners their
// sessions are gone.
func (c *WSClient) handleDisconnect() {
	c.mu.Lock()
	c.conn = nil
	c.failPendingLocked()
	rooms := make([]int64, 0, len(c.rooms))
	for room := range c.rooms {
		rooms = append(rooms, room)
	}
	c.rooms = make(map[int64]*wsRoom)
	c.handles = make(map[uint64]int64)
	c.mu.Unlock()

	for _, room := range rooms {
		c.emit(Event{Kind: EventDisconnected, Room: room})
	}
}

// failPendingLocked completes every waiting request with a nil reply, which
// surfaces as ErrUnavailable. The caller holds c.mu.
func (c *WSClient) failPendingLocked() {
	for transaction, ch := range c.pending {
		delete(c.pending, transaction)
		close(ch)
	}
}

// keepaliveLoop refreshes every open session on the configured interval. It
// is bound to one connection and exits when that connection is replaced, so
// a reconnect never leaves two loops running.
func (c *WSClient) keepaliveLoop(conn *websocket.Conn) {
	interval := c.cfg.KeepaliveInterval
	if interval <= 0 {
		interval = 30 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			c.mu.Lock()
			current := c.conn == conn
			states := make([]*wsRoom, 0, len(c.rooms))
			for _, state := range c.rooms {
				states = append(states, state)
			}
			c.mu.Unlock()
			if !current {
				return
			}

			for _, state := range states {
				err := c.write(&Request{
					Janus:       TypeKeepalive,
					SessionID:   state.sessionID,
					HandleID:    state.handleID,
					Transaction: uuid.NewString(),
				})
				if err != nil {
					return
				}
			}
		}
	}
}

// roomForHandle maps a plugin handle back to its room.
func (c *WSClient) roomForHandle(handleID uint64) int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.handles[handleID]
}

// roomState fetches the gateway state serving a room.
func (c *WSClient) roomState(room int64) (*wsRoom, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, ErrClosed
	}
	state, ok := c.rooms[room]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return state, nil
}

// emit delivers an event without blocking the receiver goroutine; consumers
// that fall behind lose events rather than stalling the protocol.
func (c *WSClient) emit(ev Event) {
	select {
	case c.events <- ev:
	default:
		c.logger.Warn("event channel full, dropping event",
			slog.String("kind", string(ev.Kind)),
			slog.Int64("room", ev.Room))
	}
}
