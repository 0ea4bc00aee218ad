package handlers

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmylchreest/roomrec/internal/config"
	"github.com/jmylchreest/roomrec/internal/encoder"
	"github.com/jmylchreest/roomrec/internal/recording"
	"github.com/jmylchreest/roomrec/internal/signalling"
	"github.com/jmylchreest/roomrec/internal/storage"
)

type stubChild struct {
	output string
	done   chan struct{}
	once   sync.Once
}

func newStubChild(output string) *stubChild {
	return &stubChild{output: output, done: make(chan struct{})}
}

func (c *stubChild) PID() int       { return 4242 }
func (c *stubChild) Output() string { return c.output }

func (c *stubChild) Stop() error {
	c.once.Do(func() { close(c.done) })
	return nil
}

func (c *stubChild) Wait() error {
	<-c.done
	return nil
}

func (c *stubChild) Alive() bool {
	select {
	case <-c.done:
		return false
	default:
		return true
	}
}

func (c *stubChild) Stopped() bool         { return true }
func (c *stubChild) Done() <-chan struct{} { return c.done }

type stubLauncher struct{}

func (stubLauncher) Start(_ context.Context, spec encoder.Spec) (recording.Child, error) {
	_ = os.WriteFile(spec.Output, []byte("ts"), 0640)
	return newStubChild(spec.Output), nil
}

func (stubLauncher) Run(_ context.Context, spec encoder.Spec) error {
	_ = os.WriteFile(spec.Output, []byte("ts"), 0640)
	return nil
}

type stubSignal struct{}

func (stubSignal) OpenSession(context.Context, int64) error            { return nil }
func (stubSignal) AttachPlugin(context.Context, int64) error           { return nil }
func (stubSignal) JoinRoom(context.Context, int64, string, string) error { return nil }
func (stubSignal) RequestForward(context.Context, signalling.ForwardRequest) (signalling.ForwardReply, error) {
	return signalling.ForwardReply{AudioStreamID: 1, VideoStreamID: 2}, nil
}
func (stubSignal) StopForward(context.Context, int64, int64, uint64) error { return nil }
func (stubSignal) LeaveRoom(context.Context, int64) error                  { return nil }
func (stubSignal) Keepalive(context.Context, int64) error                  { return nil }
func (stubSignal) Events() <-chan signalling.Event                         { return nil }
func (stubSignal) Close() error                                            { return nil }

type stubPost struct{}

func (stubPost) Process(context.Context, *recording.RecordingFile, encoder.Profile) (recording.PostResult, error) {
	return recording.PostResult{OutputPath: "out.mp4", ThumbnailPath: "thumb.png", Segments: 1}, nil
}

type handlerFixture struct {
	router  *chi.Mux
	manager *recording.Manager
}

func newHandlerFixture(t *testing.T) *handlerFixture {
	t.Helper()

	store, err := storage.NewStore(config.StorageConfig{Root: t.TempDir()}, slog.Default())
	require.NoError(t, err)

	manager := recording.NewManager(recording.ManagerConfig{
		Signalling:    stubSignal{},
		Ports:         signalling.NewPortPool(21001, 21100),
		Store:         store,
		Launcher:      stubLauncher{},
		PostProcessor: stubPost{},
		Recording:     config.RecordingConfig{OutputWait: time.Second},
		SignallingCfg: config.SignallingConfig{
			ConnectAttempts: 1,
			ForwardHost:     "127.0.0.1",
			Publishers:      config.PublisherConfig{Cam1: 1, Cam2: 2, Screen: 9, Recorder: 911},
		},
		FFmpegPath: "ffmpeg",
		Logger:     slog.Default(),
	})
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go manager.Run(ctx)

	router := chi.NewRouter()
	NewRecordHandler(manager, slog.Default()).RegisterRoutes(router)
	return &handlerFixture{router: router, manager: manager}
}

// post sends an urlencoded form the way the classroom clients do and decodes
// the legacy envelope.
func (f *handlerFixture) post(t *testing.T, path string, form url.Values) legacyEnvelope {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var env legacyEnvelope
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&env))
	return env
}

func (f *handlerFixture) configure(t *testing.T, room string) {
	t.Helper()
	env := f.post(t, "/record/configure", url.Values{
		"room":          {room},
		"upload_server": {"http://classes.example/api"},
		"class_id":      {"c-77"},
		"cam1":          {"rtsp://cam-a"},
		"cam2":          {"rtsp://cam-b"},
	})
	require.Equal(t, 1, env.State)
}

func TestIndex(t *testing.T) {
	f := newHandlerFixture(t)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	body, _ := io.ReadAll(rec.Body)
	assert.Equal(t, "Recording the conference!", string(body))
}

func TestConfigureEnvelope(t *testing.T) {
	f := newHandlerFixture(t)

	tests := []struct {
		name  string
		form  url.Values
		state int
	}{
		{"missing room", url.Values{"upload_server": {"http://u"}, "class_id": {"c"}}, -1},
		{"bad upload url", url.Values{"room": {"1001"}, "upload_server": {"ftp://u"}, "class_id": {"c"}}, -2},
		{"non-digit room", url.Values{"room": {"lab-a"}, "upload_server": {"http://u"}, "class_id": {"c"}}, -3},
		{"missing class id", url.Values{"room": {"1001"}, "upload_server": {"http://u"}}, -4},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := f.post(t, "/record/configure", tt.form)
			assert.Equal(t, tt.state, env.State)
			assert.NotEmpty(t, env.Code)
		})
	}

	t.Run("success then duplicate", func(t *testing.T) {
		form := url.Values{
			"room":          {"1001"},
			"upload_server": {"http://classes.example/api"},
			"class_id":      {"c-77"},
		}
		env := f.post(t, "/record/configure", form)
		assert.Equal(t, 1, env.State)
		assert.Equal(t, "Room 1001 is configured", env.Code)

		env = f.post(t, "/record/configure", form)
		assert.Equal(t, -6, env.State)
	})
}

func TestStartEnvelope(t *testing.T) {
	f := newHandlerFixture(t)
	f.configure(t, "1001")

	t.Run("bad cam", func(t *testing.T) {
		env := f.post(t, "/record/start", url.Values{"room": {"1001"}, "cam": {"http://not-rtsp"}})
		assert.Equal(t, -3, env.State)
	})

	t.Run("unconfigured room", func(t *testing.T) {
		env := f.post(t, "/record/start", url.Values{"room": {"2002"}, "cam": {"rtsp://cam-a"}})
		assert.Equal(t, -3, env.State)
	})

	t.Run("success then already recording", func(t *testing.T) {
		env := f.post(t, "/record/start", url.Values{"room": {"1001"}, "cam": {"rtsp://cam-a"}})
		require.Equal(t, 1, env.State)
		assert.Equal(t, "Room 1001 is recording", env.Code)

		env = f.post(t, "/record/start", url.Values{"room": {"1001"}, "cam": {"rtsp://cam-a"}})
		assert.Equal(t, -9, env.State)
	})
}

func TestStopPauseEnvelope(t *testing.T) {
	f := newHandlerFixture(t)

	env := f.post(t, "/record/stop", url.Values{"room": {"9999"}})
	assert.Equal(t, -3, env.State)

	env = f.post(t, "/record/pause", url.Values{"room": {"9999"}})
	assert.Equal(t, -3, env.State)

	f.configure(t, "1001")
	env = f.post(t, "/record/start", url.Values{"room": {"1001"}, "cam": {"rtsp://cam-a"}})
	require.Equal(t, 1, env.State)

	env = f.post(t, "/record/pause", url.Values{"room": {"1001"}})
	assert.Equal(t, 1, env.State)
	assert.Equal(t, "Room 1001 is paused", env.Code)

	env = f.post(t, "/record/stop", url.Values{"room": {"1001"}})
	assert.Equal(t, 1, env.State)
	assert.Equal(t, "Room 1001 is stopped", env.Code)
}

func TestScreenEnvelope(t *testing.T) {
	f := newHandlerFixture(t)

	env := f.post(t, "/record/screen", url.Values{"room": {"9999"}, "cmd": {"1"}})
	assert.Equal(t, -4, env.State)

	f.configure(t, "1001")
	env = f.post(t, "/record/start", url.Values{"room": {"1001"}, "cam": {"rtsp://cam-a"}})
	require.Equal(t, 1, env.State)

	t.Run("bad cmd", func(t *testing.T) {
		env := f.post(t, "/record/screen", url.Values{"room": {"1001"}, "cmd": {"up"}})
		assert.Equal(t, -5, env.State)
	})

	t.Run("demote without screen", func(t *testing.T) {
		env := f.post(t, "/record/screen", url.Values{"room": {"1001"}, "cmd": {"2"}})
		assert.Equal(t, -4, env.State)
	})

	t.Run("promote", func(t *testing.T) {
		env := f.post(t, "/record/screen", url.Values{"room": {"1001"}, "cmd": {"1"}})
		assert.Equal(t, 1, env.State)
	})
}

func TestCameraEnvelope(t *testing.T) {
	f := newHandlerFixture(t)

	env := f.post(t, "/record/camera", url.Values{"room": {"9999"}, "cam": {"rtsp://cam-b"}})
	assert.Equal(t, -3, env.State)

	f.configure(t, "1001")
	env = f.post(t, "/record/start", url.Values{"room": {"1001"}, "cam": {"rtsp://cam-a"}})
	require.Equal(t, 1, env.State)

	env = f.post(t, "/record/camera", url.Values{"room": {"1001"}, "cam": {"rtsp://cam-a"}})
	assert.Equal(t, -3, env.State, "unchanged camera is rejected")

	env = f.post(t, "/record/camera", url.Values{"room": {"1001"}, "cam": {"rtsp://cam-b"}})
	assert.Equal(t, 1, env.State)
}

func TestResetEnvelope(t *testing.T) {
	f := newHandlerFixture(t)

	env := f.post(t, "/record/reset", url.Values{"room": {"9999"}})
	assert.Equal(t, -3, env.State)

	f.configure(t, "1001")
	env = f.post(t, "/record/reset", url.Values{"room": {"1001"}})
	assert.Equal(t, 1, env.State)
	assert.Equal(t, "Room 1001 is reset", env.Code)
}

func TestStatusEnvelope(t *testing.T) {
	f := newHandlerFixture(t)
	f.configure(t, "1001")

	get := func(path string) legacyEnvelope {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		rec := httptest.NewRecorder()
		f.router.ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code)
		var env legacyEnvelope
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&env))
		return env
	}

	env := get("/record/status")
	assert.Equal(t, 1, env.State)
	assert.Equal(t, "See data.", env.Code)
	rooms, ok := env.Data.([]any)
	require.True(t, ok)
	assert.Len(t, rooms, 1)

	env = get("/record/status?room=1001")
	assert.Equal(t, 1, env.State)
	room, ok := env.Data.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "1001", room["room"])
	assert.Equal(t, "starting", room["state"])

	env = get("/record/status?room=9999")
	assert.Equal(t, -3, env.State)
}
