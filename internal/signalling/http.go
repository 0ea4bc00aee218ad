package signalling

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jmylchreest/roomrec/internal/config"
	"github.com/jmylchreest/roomrec/internal/httpclient"
	"github.com/jmylchreest/roomrec/internal/urlutil"
	"github.com/jmylchreest/roomrec/internal/version"
)

// httpRoom tracks the gateway session and plugin handle serving one room.
type httpRoom struct {
	sessionID uint64
	handleID  uint64
}

// HTTPClient is the request/response signalling transport. Each verb POSTs a
// JSON envelope to the gateway REST mount: session-level verbs to the base
// path, session verbs to <base>/<session>.
//
// Forwards are authorized by the admin secret, so the recorder never joins
// the room on this transport; JoinRoom and Keepalive are no-ops and there is
// no event stream.
type HTTPClient struct {
	cfg    config.SignallingConfig
	base   string
	client *httpclient.Client
	logger *slog.Logger

	mu     sync.Mutex
	rooms  map[int64]*httpRoom
	closed bool
}

// NewHTTPClient creates an HTTP signalling client.
func NewHTTPClient(cfg config.SignallingConfig, logger *slog.Logger) *HTTPClient {
	if logger == nil {
		logger = slog.Default()
	}

	hcfg := httpclient.DefaultConfig()
	hcfg.Timeout = cfg.RequestTimeout
	hcfg.Logger = logger
	hcfg.UserAgent = version.UserAgent()
	// The recording manager owns the connect retry policy; a transport-level
	// retry would resend an already-consumed POST body.
	hcfg.RetryAttempts = 0

	return &HTTPClient{
		cfg:    cfg,
		base:   urlutil.NormalizeBaseURL(cfg.HTTPURL),
		client: httpclient.New(hcfg),
		logger: logger,
		rooms:  make(map[int64]*httpRoom),
	}
}

// OpenSession establishes the gateway session for a room.
func (c *HTTPClient) OpenSession(ctx context.Context, room int64) error {
	resp, err := c.post(ctx, c.base, &Request{
		Janus:       TypeCreate,
		Transaction: uuid.NewString(),
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if resp.Janus != TypeSuccess || resp.Data == nil {
		return fmt.Errorf("creating session: %w", responseError(resp))
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}
	c.rooms[room] = &httpRoom{sessionID: resp.Data.ID}

	c.logger.Debug("signalling session opened",
		slog.Int64("room", room),
		slog.Uint64("session_id", resp.Data.ID))
	return nil
}

// AttachPlugin attaches the videoroom plugin to the room's session.
func (c *HTTPClient) AttachPlugin(ctx context.Context, room int64) error {
	state, err := c.roomState(room)
	if err != nil {
		return err
	}

	resp, err := c.post(ctx, c.sessionURL(state.sessionID), &Request{
		Janus:       TypeAttach,
		Plugin:      c.cfg.Plugin,
		Transaction: uuid.NewString(),
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if resp.Janus != TypeSuccess || resp.Data == nil {
		return fmt.Errorf("%w: %v", ErrAttachRejected, responseError(resp))
	}

	c.mu.Lock()
	state.handleID = resp.Data.ID
	c.mu.Unlock()

	c.logger.Debug("plugin attached",
		slog.Int64("room", room),
		slog.Uint64("handle_id", resp.Data.ID))
	return nil
}

// JoinRoom is a no-op: admin-authorized forwards do not require membership,
// and without an event stream a join confirmation could never be observed.
func (c *HTTPClient) JoinRoom(ctx context.Context, room int64, pin, display string) error {
	return nil
}

// RequestForward starts forwarding one publisher's RTP to the recorder.
func (c *HTTPClient) RequestForward(ctx context.Context, req ForwardRequest) (ForwardReply, error) {
	state, err := c.roomState(req.Room)
	if err != nil {
		return ForwardReply{}, err
	}

	body := map[string]any{
		"request":      "rtp_forward",
		"secret":       c.cfg.AdminSecret,
		"room":         req.Room,
		"publisher_id": req.Publisher,
		"host":         req.Host,
		"audio_port":   req.AudioPort,
		"video_port":   req.VideoPort,
		"audio_pt":     req.AudioPT,
		"video_pt":     req.VideoPT,
	}

	resp, err := c.post(ctx, c.sessionURL(state.sessionID), &Request{
		Janus:       TypeMessage,
		Transaction: uuid.NewString(),
		SessionID:   state.sessionID,
		HandleID:    state.handleID,
		Body:        body,
	})
	if err != nil {
		return ForwardReply{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return parseForwardReply(resp)
}

// StopForward stops a single forwarded stream.
func (c *HTTPClient) StopForward(ctx context.Context, room, publisher int64, streamID uint64) error {
	state, err := c.roomState(room)
	if err != nil {
		return err
	}

	resp, err := c.post(ctx, c.sessionURL(state.sessionID), &Request{
		Janus:       TypeMessage,
		Transaction: uuid.NewString(),
		SessionID:   state.sessionID,
		HandleID:    state.handleID,
		Body: map[string]any{
			"request":      "stop_rtp_forward",
			"secret":       c.cfg.AdminSecret,
			"room":         room,
			"publisher_id": publisher,
			"stream_id":    streamID,
		},
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if resp.Janus == TypeError {
		return fmt.Errorf("stopping forward: %w", responseError(resp))
	}
	return nil
}

// LeaveRoom destroys the room's gateway session.
func (c *HTTPClient) LeaveRoom(ctx context.Context, room int64) error {
	c.mu.Lock()
	state, ok := c.rooms[room]
	delete(c.rooms, room)
	c.mu.Unlock()
	if !ok {
		return ErrSessionNotFound
	}

	resp, err := c.post(ctx, c.sessionURL(state.sessionID), &Request{
		Janus:       TypeDestroy,
		Transaction: uuid.NewString(),
		SessionID:   state.sessionID,
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if resp.Janus == TypeError {
		return fmt.Errorf("destroying session: %w", responseError(resp))
	}

	c.logger.Debug("signalling session destroyed", slog.Int64("room", room))
	return nil
}

// Keepalive is a no-op: HTTP sessions are kept alive by the gateway for the
// duration of each exchange and recreated on the next configure.
func (c *HTTPClient) Keepalive(ctx context.Context, room int64) error {
	return nil
}

// Events returns nil; the HTTP transport has no event stream.
func (c *HTTPClient) Events() <-chan Event {
	return nil
}

// Close releases all gateway sessions.
func (c *HTTPClient) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	rooms := make([]*httpRoom, 0, len(c.rooms))
	for _, state := range c.rooms {
		rooms = append(rooms, state)
	}
	c.rooms = make(map[int64]*httpRoom)
	c.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	for _, state := range rooms {
		_, _ = c.post(ctx, c.sessionURL(state.sessionID), &Request{
			Janus:       TypeDestroy,
			Transaction: uuid.NewString(),
			SessionID:   state.sessionID,
		})
	}
	return nil
}

func (c *HTTPClient) roomState(room int64) (*httpRoom, error) {
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

func (c *HTTPClient) sessionURL(sessionID uint64) string {
	return urlutil.JoinPath(c.base, "/"+strconv.FormatUint(sessionID, 10))
}

// post sends one JSON envelope and decodes the reply.
func (c *HTTPClient) post(ctx context.Context, url string, req *Request) (*Response, error) {
	payload, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("encoding request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	httpResp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer httpResp.Body.Close()

	raw, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}
	if httpResp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d: %s", httpResp.StatusCode, raw)
	}

	var resp Response
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, fmt.Errorf("decoding response: %w", err)
	}
	return &resp, nil
}

// parseForwardReply extracts stream IDs from an rtp_forward reply.
func parseForwardReply(resp *Response) (ForwardReply, error) {
	if resp.Janus == TypeError {
		return ForwardReply{}, fmt.Errorf("%w: %v", ErrForwardRejected, responseError(resp))
	}

	data, err := DecodeVideoRoomData(resp.PluginData)
	if err != nil {
		return ForwardReply{}, fmt.Errorf("%w: %v", ErrForwardRejected, err)
	}
	if data.ErrorCode != 0 || data.ErrorReason != "" {
		return ForwardReply{}, fmt.Errorf("%w: videoroom error %d: %s",
			ErrForwardRejected, data.ErrorCode, data.ErrorReason)
	}
	if data.RTPStream == nil {
		return ForwardReply{}, fmt.Errorf("%w: reply carries no rtp_stream", ErrForwardRejected)
	}

	var reply ForwardReply
	if data.RTPStream.AudioStreamID != nil {
		reply.AudioStreamID = *data.RTPStream.AudioStreamID
	}
	if data.RTPStream.VideoStreamID != nil {
		reply.VideoStreamID = *data.RTPStream.VideoStreamID
	}
	return reply, nil
}

// responseError normalizes an error reply into a descriptive error.
func responseError(resp *Response) error {
	if resp.Error != nil {
		return resp.Error
	}
	return fmt.Errorf("unexpected %q reply", resp.Janus)
}
