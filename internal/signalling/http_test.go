package signalling

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jmylchreest/roomrec/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testSessionID = uint64(4574061985075210)
	testHandleID  = uint64(1815153248)
)

// fakeGateway is a minimal videoroom REST endpoint for transport tests.
type fakeGateway struct {
	t            *testing.T
	forwards     atomic.Int64
	stops        atomic.Int64
	destroys     atomic.Int64
	rejectSecret string
}

func (g *fakeGateway) handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req Request
		require.NoError(g.t, json.NewDecoder(r.Body).Decode(&req))
		require.NotEmpty(g.t, req.Transaction)

		switch req.Janus {
		case TypeCreate:
			writeJSON(w, Response{
				Janus:       TypeSuccess,
				Transaction: req.Transaction,
				Data:        &SessionData{ID: testSessionID},
			})
		case TypeAttach:
			require.True(g.t, strings.HasSuffix(r.URL.Path, "/4574061985075210"))
			require.Equal(g.t, "janus.plugin.videoroom", req.Plugin)
			writeJSON(w, Response{
				Janus:       TypeSuccess,
				Transaction: req.Transaction,
				Data:        &SessionData{ID: testHandleID},
			})
		case TypeMessage:
			g.handleMessage(w, &req)
		case TypeDestroy:
			g.destroys.Add(1)
			writeJSON(w, Response{Janus: TypeSuccess, Transaction: req.Transaction})
		default:
			g.t.Errorf("unexpected janus verb %q", req.Janus)
		}
	}
}

func (g *fakeGateway) handleMessage(w http.ResponseWriter, req *Request) {
	request, _ := req.Body["request"].(string)
	secret, _ := req.Body["secret"].(string)

	if g.rejectSecret != "" && secret != g.rejectSecret {
		writeJSON(w, Response{
			Janus:       TypeSuccess,
			Transaction: req.Transaction,
			PluginData: &PluginData{
				Plugin: "janus.plugin.videoroom",
				Data:   json.RawMessage(`{"videoroom":"event","error_code":403,"error":"Unauthorized"}`),
			},
		})
		return
	}

	switch request {
	case "rtp_forward":
		g.forwards.Add(1)
		writeJSON(w, Response{
			Janus:       TypeSuccess,
			Transaction: req.Transaction,
			PluginData: &PluginData{
				Plugin: "janus.plugin.videoroom",
				Data: json.RawMessage(`{
					"videoroom": "rtp_forward",
					"room": 1234,
					"publisher_id": 1,
					"rtp_stream": {"audio_stream_id": 11, "video_stream_id": 12}
				}`),
			},
		})
	case "stop_rtp_forward":
		g.stops.Add(1)
		writeJSON(w, Response{
			Janus:       TypeSuccess,
			Transaction: req.Transaction,
			PluginData: &PluginData{
				Plugin: "janus.plugin.videoroom",
				Data:   json.RawMessage(`{"videoroom":"stop_rtp_forward","room":1234}`),
			},
		})
	default:
		g.t.Errorf("unexpected videoroom request %q", request)
	}
}

func writeJSON(w http.ResponseWriter, resp Response) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}

func testSignallingConfig(url string) config.SignallingConfig {
	return config.SignallingConfig{
		Transport:         "http",
		HTTPURL:           url,
		Plugin:            "janus.plugin.videoroom",
		AdminSecret:       "adminpwd",
		Display:           "recorder",
		ForwardHost:       "127.0.0.1",
		KeepaliveInterval: 30 * time.Second,
		RequestTimeout:    5 * time.Second,
	}
}

func TestHTTPClient_FullForwardLifecycle(t *testing.T) {
	gateway := &fakeGateway{t: t}
	server := httptest.NewServer(gateway.handler())
	defer server.Close()

	client := NewHTTPClient(testSignallingConfig(server.URL), nil)
	defer client.Close()
	ctx := context.Background()

	require.NoError(t, client.OpenSession(ctx, 1234))
	require.NoError(t, client.AttachPlugin(ctx, 1234))
	require.NoError(t, client.JoinRoom(ctx, 1234, "", "recorder"))

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
	assert.Equal(t, uint64(11), reply.AudioStreamID)
	assert.Equal(t, uint64(12), reply.VideoStreamID)

	require.NoError(t, client.StopForward(ctx, 1234, 1, reply.AudioStreamID))
	require.NoError(t, client.StopForward(ctx, 1234, 1, reply.VideoStreamID))
	require.NoError(t, client.LeaveRoom(ctx, 1234))

	assert.Equal(t, int64(1), gateway.forwards.Load())
	assert.Equal(t, int64(2), gateway.stops.Load())
	assert.Equal(t, int64(1), gateway.destroys.Load())
}

func TestHTTPClient_ForwardRejectedBySecret(t *testing.T) {
	gateway := &fakeGateway{t: t, rejectSecret: "other"}
	server := httptest.NewServer(gateway.handler())
	defer server.Close()

	client := NewHTTPClient(testSignallingConfig(server.URL), nil)
	defer client.Close()
	ctx := context.Background()

	require.NoError(t, client.OpenSession(ctx, 1234))
	require.NoError(t, client.AttachPlugin(ctx, 1234))

	_, err := client.RequestForward(ctx, ForwardRequest{Room: 1234, Publisher: 1, Host: "127.0.0.1"})
	assert.ErrorIs(t, err, ErrForwardRejected)
}

func TestHTTPClient_RequestWithoutSession(t *testing.T) {
	client := NewHTTPClient(testSignallingConfig("http://127.0.0.1:1"), nil)
	defer client.Close()

	_, err := client.RequestForward(context.Background(), ForwardRequest{Room: 42})
	assert.ErrorIs(t, err, ErrSessionNotFound)

	err = client.StopForward(context.Background(), 42, 1, 7)
	assert.ErrorIs(t, err, ErrSessionNotFound)

	err = client.LeaveRoom(context.Background(), 42)
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestHTTPClient_GatewayUnreachable(t *testing.T) {
	cfg := testSignallingConfig("http://127.0.0.1:1")
	cfg.RequestTimeout = 500 * time.Millisecond

	client := NewHTTPClient(cfg, nil)
	defer client.Close()

	err := client.OpenSession(context.Background(), 1234)
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestHTTPClient_EventsIsNil(t *testing.T) {
	client := NewHTTPClient(testSignallingConfig("http://127.0.0.1:1"), nil)
	defer client.Close()
	assert.Nil(t, client.Events())
}

func TestNewClient_TransportSelection(t *testing.T) {
	cfg := testSignallingConfig("http://127.0.0.1:1")

	client, err := NewClient(cfg, nil)
	require.NoError(t, err)
	_, ok := client.(*HTTPClient)
	assert.True(t, ok)
	_ = client.Close()

	cfg.Transport = "websocket"
	client, err = NewClient(cfg, nil)
	require.NoError(t, err)
	_, ok = client.(*WSClient)
	assert.True(t, ok)
	_ = client.Close()

	cfg.Transport = "carrier-pigeon"
	_, err = NewClient(cfg, nil)
	assert.Error(t, err)
}
