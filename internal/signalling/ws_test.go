package signalling

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeWSGateway speaks just enough of the protocol for transport tests: the
// handshake verbs get canned replies and tests can push unsolicited events.
type fakeWSGateway struct {
	t        *testing.T
	upgrader websocket.Upgrader

	mu   sync.Mutex
	conn *websocket.Conn
}

func newFakeWSGateway(t *testing.T) (*fakeWSGateway, *httptest.Server) {
	gateway := &fakeWSGateway{
		t:        t,
		upgrader: websocket.Upgrader{Subprotocols: []string{wsSubprotocol}},
	}
	server := httptest.NewServer(http.HandlerFunc(gateway.serve))
	t.Cleanup(server.Close)
	return gateway, server
}

func (g *fakeWSGateway) serve(w http.ResponseWriter, r *http.Request) {
	conn, err := g.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	g.mu.Lock()
	g.conn = conn
	g.mu.Unlock()

	for {
		var req Request
		if err := conn.ReadJSON(&req); err != nil {
			return
		}
		g.reply(&req)
	}
}

func (g *fakeWSGateway) reply(req *Request) {
	switch req.Janus {
	case TypeCreate:
		g.send(Response{Janus: TypeSuccess, Transaction: req.Transaction, Data: &SessionData{ID: testSessionID}})
	case TypeAttach:
		g.send(Response{Janus: TypeSuccess, Transaction: req.Transaction, Data: &SessionData{ID: testHandleID}})
	case TypeKeepalive:
		g.send(Response{Janus: TypeAck, Transaction: req.Transaction})
	case TypeDestroy:
		g.send(Response{Janus: TypeSuccess, Transaction: req.Transaction})
	case TypeMessage:
		request, _ := req.Body["request"].(string)
		switch request {
		case "join":
			// Real gateways ack the message first, then deliver the joined
			// confirmation as an event on the same transaction.
			g.send(Response{Janus: TypeAck, Transaction: req.Transaction})
			g.send(Response{
				Janus:       TypeEvent,
				Transaction: req.Transaction,
				Sender:      testHandleID,
				PluginData: &PluginData{
					Plugin: "janus.plugin.videoroom",
					Data:   json.RawMessage(`{"videoroom":"joined","room":1234,"publishers":[{"id":1,"display":"cam1"},{"id":9,"display":"screen"}]}`),
				},
			})
		case "rtp_forward":
			g.send(Response{
				Janus:       TypeSuccess,
				Transaction: req.Transaction,
				Sender:      testHandleID,
				PluginData: &PluginData{
					Plugin: "janus.plugin.videoroom",
					Data:   json.RawMessage(`{"videoroom":"rtp_forward","room":1234,"publisher_id":1,"rtp_stream":{"audio_stream_id":21,"video_stream_id":22}}`),
				},
			})
		case "stop_rtp_forward":
			g.send(Response{
				Janus:       TypeSuccess,
				Transaction: req.Transaction,
				Sender:      testHandleID,
				PluginData: &PluginData{
					Plugin: "janus.plugin.videoroom",
					Data:   json.RawMessage(`{"videoroom":"stop_rtp_forward","room":1234}`),
				},
			})
		default:
			g.t.Errorf("unexpected videoroom request %q", request)
		}
	}
}

func (g *fakeWSGateway) send(resp Response) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.conn != nil {
		_ = g.conn.WriteJSON(resp)
	}
}

func (g *fakeWSGateway) dropConnection() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.conn != nil {
		_ = g.conn.Close()
		g.conn = nil
	}
}

func wsURL(server *httptest.Server) string {
	return "ws" + strings.TrimPrefix(server.URL, "http")
}

func newTestWSClient(t *testing.T, server *httptest.Server) *WSClient {
	cfg := testSignallingConfig("")
	cfg.Transport = "websocket"
	cfg.WebSocketURL = wsURL(server)
	cfg.Publishers.Recorder = 911
	client := NewWSClient(cfg, nil)
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func waitForEvent(t *testing.T, events <-chan Event, kind EventKind) Event {
	t.Helper()
	deadline := time.After(3 * time.Second)
	for {
		select {
		case ev := <-events:
			if ev.Kind == kind {
				return ev
			}
		case <-deadline:
			t.Fatalf("timed out waiting for %s event", kind)
			return Event{}
		}
	}
}

func TestWSClient_HandshakeAndForward(t *testing.T) {
	_, server := newFakeWSGateway(t)
	client := newTestWSClient(t, server)
	ctx := context.Background()

	require.NoError(t, client.OpenSession(ctx, 1234))
	require.NoError(t, client.AttachPlugin(ctx, 1234))
	require.NoError(t, client.JoinRoom(ctx, 1234, "1234", "record_1234"))

	// The joined confirmation carries the initial roster.
	ev := waitForEvent(t, client.Events(), EventPublishers)
	assert.Equal(t, int64(1234), ev.Room)
	require.Len(t, ev.Publishers, 2)
	assert.Equal(t, int64(1), ev.Publishers[0].ID)
	assert.Equal(t, int64(9), ev.Publishers[1].ID)

	reply, err := client.RequestForward(ctx, ForwardRequest{
		Room:      1234,
		Publisher: 1,
		Host:      "127.0.0.1",
		AudioPort: 23456,
		VideoPort: 23458,
		AudioPT:   96,
		VideoPT:   102,
	})
	require.NoError(t, err)
	assert.Equal(t, uint64(21), reply.AudioStreamID)
	assert.Equal(t, uint64(22), reply.VideoStreamID)

	require.NoError(t, client.StopForward(ctx, 1234, 1, reply.AudioStreamID))
	require.NoError(t, client.LeaveRoom(ctx, 1234))
}

func TestWSClient_PublisherLeftEvent(t *testing.T) {
	gateway, server := newFakeWSGateway(t)
	client := newTestWSClient(t, server)
	ctx := context.Background()

	require.NoError(t, client.OpenSession(ctx, 1234))
	require.NoError(t, client.AttachPlugin(ctx, 1234))

	gateway.send(Response{
		Janus:  TypeEvent,
		Sender: testHandleID,
		PluginData: &PluginData{
			Plugin: "janus.plugin.videoroom",
			Data:   json.RawMessage(`{"videoroom":"event","room":1234,"leaving":9}`),
		},
	})

	ev := waitForEvent(t, client.Events(), EventPublisherLeft)
	assert.Equal(t, int64(1234), ev.Room)
	assert.Equal(t, int64(9), ev.Publisher)
}

func TestWSClient_HangupEvent(t *testing.T) {
	gateway, server := newFakeWSGateway(t)
	client := newTestWSClient(t, server)
	ctx := context.Background()

	require.NoError(t, client.OpenSession(ctx, 1234))
	require.NoError(t, client.AttachPlugin(ctx, 1234))

	gateway.send(Response{Janus: TypeHangup, Sender: testHandleID, Reason: "DTLS alert"})

	ev := waitForEvent(t, client.Events(), EventHangup)
	assert.Equal(t, int64(1234), ev.Room)
	assert.Equal(t, "DTLS alert", ev.Reason)
}

func TestWSClient_DisconnectFailsSessions(t *testing.T) {
	gateway, server := newFakeWSGateway(t)
	client := newTestWSClient(t, server)
	ctx := context.Background()

	require.NoError(t, client.OpenSession(ctx, 1234))
	require.NoError(t, client.AttachPlugin(ctx, 1234))

	gateway.dropConnection()

	ev := waitForEvent(t, client.Events(), EventDisconnected)
	assert.Equal(t, int64(1234), ev.Room)

	// Gateway-side state is gone; the room must be re-established.
	_, err := client.RequestForward(ctx, ForwardRequest{Room: 1234, Publisher: 1})
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestWSClient_RequestTimeout(t *testing.T) {
	// A gateway that never answers messages.
	upgrader := websocket.Upgrader{Subprotocols: []string{wsSubprotocol}}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	t.Cleanup(server.Close)

	cfg := testSignallingConfig("")
	cfg.Transport = "websocket"
	cfg.WebSocketURL = wsURL(server)
	cfg.RequestTimeout = 200 * time.Millisecond
	client := NewWSClient(cfg, nil)
	t.Cleanup(func() { _ = client.Close() })

	err := client.OpenSession(context.Background(), 1234)
	assert.ErrorIs(t, err, ErrTimeout)
}

func TestWSClient_ClosedClientRejectsRequests(t *testing.T) {
	_, server := newFakeWSGateway(t)
	client := newTestWSClient(t, server)

	require.NoError(t, client.Close())
	err := client.OpenSession(context.Background(), 1234)
	assert.ErrorIs(t, err, ErrClosed)
}
