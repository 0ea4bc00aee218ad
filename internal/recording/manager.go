package recording

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/jmylchreest/roomrec/internal/config"
	"github.com/jmylchreest/roomrec/internal/encoder"
	"github.com/jmylchreest/roomrec/internal/models"
	"github.com/jmylchreest/roomrec/internal/repository"
	"github.com/jmylchreest/roomrec/internal/signalling"
	"github.com/jmylchreest/roomrec/internal/storage"
	"github.com/jmylchreest/roomrec/internal/urlutil"
)

// completion is the message a detached post-process/upload goroutine sends
// back to the manager when a recording reaches a terminal state.
type completion struct {
	room   string
	result PostResult
	upload UploadResult
	err    error
}

// Manager owns the room table and is the sole mutator of room state.
// Commands for one room are serialized on the room's mutex; different rooms
// proceed concurrently. Post-processing and upload run on detached
// goroutines and report back through the completions channel.
type Manager struct {
	d          *deps
	post       PostProcessor
	uploader   Uploader
	repo       repository.RecordingRepository
	hwPriority []string
	logger     *slog.Logger

	mu    sync.RWMutex
	rooms map[string]*Room

	completions chan completion
}

// ManagerConfig bundles the collaborators a manager needs.
type ManagerConfig struct {
	Signalling    signalling.Client
	Ports         *signalling.PortPool
	Store         *storage.Store
	Launcher      Launcher
	PostProcessor PostProcessor
	Uploader      Uploader
	Repository    repository.RecordingRepository
	Recording     config.RecordingConfig
	SignallingCfg config.SignallingConfig
	FFmpegPath    string
	HWPriority    []string
	Logger        *slog.Logger
}

// NewManager creates a room manager.
func NewManager(cfg ManagerConfig) *Manager {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		d: &deps{
			signal:   cfg.Signalling,
			ports:    cfg.Ports,
			store:    cfg.Store,
			launcher: cfg.Launcher,
			recCfg:   cfg.Recording,
			sigCfg:   cfg.SignallingCfg,
			ffmpeg:   cfg.FFmpegPath,
			logger:   logger,
		},
		post:        cfg.PostProcessor,
		uploader:    cfg.Uploader,
		repo:        cfg.Repository,
		hwPriority:  cfg.HWPriority,
		logger:      logger,
		rooms:       make(map[string]*Room),
		completions: make(chan completion, 16),
	}
}

// Run consumes completion messages and asynchronous signalling events until
// the context is cancelled. It must be running for stop commands to reach
// their terminal states.
func (m *Manager) Run(ctx context.Context) {
	events := m.d.signal.Events()
	for {
		select {
		case <-ctx.Done():
			return
		case c := <-m.completions:
			m.handleCompletion(ctx, c)
		case ev, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			m.handleEvent(ctx, ev)
		}
	}
}

// ConfigureRequest carries the configure command's fields.
type ConfigureRequest struct {
	Room         string
	ClassID      string
	CloudClassID string
	UploadServer string
	Cam1         string
	Cam2         string
	Mic          string
	Monitor      string
}

// Configure creates a room: validates the request, selects the encoder
// profile for the host, performs the signalling handshake (with boot-time
// retries) and registers the room in Starting state.
func (m *Manager) Configure(ctx context.Context, req ConfigureRequest) (string, error) {
	if req.Room == "" {
		return "", cmdErr(-1, "missing room")
	}
	if !urlutil.IsPlainHTTPURL(req.UploadServer) {
		return "", cmdErr(-2, "upload_server must be an http url")
	}
	roomNum, err := strconv.ParseInt(req.Room, 10, 64)
	if err != nil || !isDigits(req.Room) {
		return "", cmdErr(-3, "room must be all digits")
	}
	if req.ClassID == "" {
		return "", cmdErr(-4, "missing class id")
	}
	if m.get(req.Room) != nil {
		return "", cmdErr(-6, "Room %s is already configured", req.Room)
	}

	profile := encoder.SelectProfile(ctx, m.hwPriority, m.logger)

	if err := m.handshake(ctx, roomNum); err != nil {
		return "", cmdErr(-10, "connecting to media server: %v", err)
	}

	cloud := req.CloudClassID
	if cloud == "" {
		cloud = req.ClassID
	}
	room := &Room{
		ID:           req.Room,
		roomNum:      roomNum,
		ClassID:      req.ClassID,
		CloudClassID: cloud,
		UploadServer: req.UploadServer,
		Cam1:         req.Cam1,
		Cam2:         req.Cam2,
		Mic:          req.Mic,
		Monitor:      req.Monitor,
		Profile:      profile,
		CreatedAt:    time.Now(),
		state:        RoomStarting,
		sessions:     make(map[string]*Session),
	}

	m.mu.Lock()
	if _, exists := m.rooms[req.Room]; exists {
		m.mu.Unlock()
		return "", cmdErr(-6, "Room %s is already configured", req.Room)
	}
	m.rooms[req.Room] = room
	m.mu.Unlock()

	m.logger.Info("room configured",
		slog.String("room", req.Room),
		slog.String("class_id", req.ClassID),
		slog.String("profile", string(profile)))
	return fmt.Sprintf("Room %s is configured", req.Room), nil
}

// handshake performs open/attach/join against the gateway, retrying with a
// backoff to ride out boot-time races. A zero attempt budget retries until
// the context is cancelled.
func (m *Manager) handshake(ctx context.Context, roomNum int64) error {
	attempts := m.d.sigCfg.ConnectAttempts
	backoff := m.d.sigCfg.ConnectBackoff
	if backoff <= 0 {
		backoff = 3 * time.Second
	}

	var lastErr error
	for attempt := 1; ; attempt++ {
		lastErr = m.tryHandshake(ctx, roomNum)
		if lastErr == nil {
			return nil
		}
		if attempts > 0 && attempt >= attempts {
			return lastErr
		}
		m.logger.Warn("signalling handshake failed, retrying",
			slog.Int64("room", roomNum),
			slog.Int("attempt", attempt),
			slog.String("error", lastErr.Error()))
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
	}
}

func (m *Manager) tryHandshake(ctx context.Context, roomNum int64) error {
	if err := m.d.signal.OpenSession(ctx, roomNum); err != nil {
		return err
	}
	if err := m.d.signal.AttachPlugin(ctx, roomNum); err != nil {
		return err
	}
	return m.d.signal.JoinRoom(ctx, roomNum, m.d.sigCfg.RoomPin, m.d.sigCfg.Display)
}

// Reset drops all in-memory state for a room and discards any active or
// paused recording. Files on disk are untouched.
func (m *Manager) Reset(ctx context.Context, roomID string) (string, error) {
	room := m.get(roomID)
	if room == nil {
		return "", cmdErr(-3, "Room %s not found", roomID)
	}

	room.mu.Lock()
	room.stopSessions(ctx)
	room.file = nil
	room.paused = nil
	room.mu.Unlock()

	m.remove(roomID)
	if err := m.d.signal.LeaveRoom(ctx, room.roomNum); err != nil {
		m.logger.Warn("leaving room on reset",
			slog.String("room", roomID),
			slog.String("error", err.Error()))
	}

	m.logger.Info("room reset", slog.String("room", roomID))
	return fmt.Sprintf("Room %s is reset", roomID), nil
}

// StartRequest carries the start command's fields.
type StartRequest struct {
	Room   string
	Cam    string
	Mic    string
	Screen bool
}

// Start begins a new segment. Resuming from Paused links onto the parked
// recording chain so the final concat spans the pause.
func (m *Manager) Start(ctx context.Context, req StartRequest) (string, error) {
	if !isDigits(req.Room) {
		return "", cmdErr(-1, "room must be all digits")
	}
	if !urlutil.IsRTSPURL(req.Cam) {
		return "", cmdErr(-3, "cam must be an rtsp url")
	}
	room := m.get(req.Room)
	if room == nil {
		return "", cmdErr(-3, "Room %s is not configured", req.Room)
	}

	room.mu.Lock()
	defer room.mu.Unlock()

	switch room.state {
	case RoomRecording:
		return "", cmdErr(-9, "Room %s is already recording", req.Room)
	case RoomStarting, RoomPaused:
	default:
		return "", cmdErr(-3, "Room %s is %s", req.Room, room.state)
	}

	if err := m.d.store.CheckFreeSpace(); err != nil {
		return "", cmdErr(-10, "%v", err)
	}

	file := room.paused
	if file == nil {
		folder, err := m.d.store.EnsureRoomDir(room.ID)
		if err != nil {
			return "", cmdErr(-10, "preparing room folder: %v", err)
		}
		file = NewRecordingFile(room.ID, folder)
	}

	sess := newSession(room.ID, room.roomNum, req.Cam, room.slugFor(req.Cam), req.Mic, room.Profile, m.d)
	var err error
	if req.Screen {
		err = sess.startPaired(ctx, file)
	} else {
		err = sess.startCamera(ctx, file)
	}
	if err != nil {
		return "", cmdErr(-10, "starting capture: %v", err)
	}

	room.paused = nil
	room.file = file
	room.sessions[req.Cam] = sess
	room.recordingCam = req.Cam
	room.screenActive = req.Screen
	room.state = RoomRecording

	return fmt.Sprintf("Room %s is recording", req.Room), nil
}

// Stop finalizes the tail segment and hands the chain to post-processing on
// a detached goroutine; the command returns as soon as the synchronous state
// transition is applied.
func (m *Manager) Stop(ctx context.Context, roomID string) (string, error) {
	room := m.get(roomID)
	if room == nil {
		return "", cmdErr(-3, "Room %s is not recording", roomID)
	}

	room.mu.Lock()
	defer room.mu.Unlock()

	if room.state != RoomRecording && room.state != RoomPaused {
		return "", cmdErr(-3, "Room %s is not recording", roomID)
	}

	room.stopSessions(ctx)
	file := room.activeFile()
	room.file = nil
	room.paused = nil
	room.recordingCam = ""
	room.screenActive = false
	room.state = RoomProcessing

	meta := finishMeta{
		room:         room.ID,
		profile:      room.Profile,
		server:       room.UploadServer,
		classID:      room.ClassID,
		cloudClassID: room.CloudClassID,
	}
	go m.finish(meta, file)

	return fmt.Sprintf("Room %s is stopped", roomID), nil
}

// Pause finalizes the tail segment but parks the chain so the next start
// concatenates onto it.
func (m *Manager) Pause(ctx context.Context, roomID string) (string, error) {
	room := m.get(roomID)
	if room == nil {
		return "", cmdErr(-3, "Room %s is not recording", roomID)
	}

	room.mu.Lock()
	defer room.mu.Unlock()

	if room.state != RoomRecording {
		return "", cmdErr(-3, "Room %s is not recording", roomID)
	}

	room.stopSessions(ctx)
	room.paused = room.file
	room.file = nil
	room.recordingCam = ""
	room.screenActive = false
	room.state = RoomPaused

	return fmt.Sprintf("Room %s is paused", roomID), nil
}

// CameraRequest carries the switch-camera command's fields.
type CameraRequest struct {
	Room string
	Cam  string
	Mic  string
}

// SwitchCamera atomically replaces the foreground camera. When the screen is
// active the screen capture is re-spawned too, so the paired-segment
// invariant holds for the new segment.
func (m *Manager) SwitchCamera(ctx context.Context, req CameraRequest) (string, error) {
	room := m.get(req.Room)
	if room == nil {
		return "", cmdErr(-3, "Room %s is not recording", req.Room)
	}

	room.mu.Lock()
	defer room.mu.Unlock()

	if room.state != RoomRecording {
		return "", cmdErr(-3, "Room %s is not recording", req.Room)
	}
	if req.Cam == room.recordingCam {
		return "", cmdErr(-3, "camera unchanged")
	}
	if !urlutil.IsRTSPURL(req.Cam) {
		return "", cmdErr(-3, "cam must be an rtsp url")
	}

	room.stopSessions(ctx)

	mic := req.Mic
	if mic == "" {
		mic = room.Mic
	}
	sess := newSession(room.ID, room.roomNum, req.Cam, room.slugFor(req.Cam), mic, room.Profile, m.d)
	var err error
	if room.screenActive {
		err = sess.startPaired(ctx, room.file)
	} else {
		err = sess.startCamera(ctx, room.file)
	}
	if err != nil {
		return "", cmdErr(-10, "switching camera: %v", err)
	}

	room.sessions[req.Cam] = sess
	room.recordingCam = req.Cam

	return fmt.Sprintf("Room %s switched camera", req.Room), nil
}

// Screen toggles screen capture for the current recording: cmd 1 promotes
// the next segment to a screen+camera pair, cmd 2 drops back to camera-only.
func (m *Manager) Screen(ctx context.Context, roomID string, cmd int) (string, error) {
	room := m.get(roomID)
	if room == nil {
		return "", cmdErr(-4, "Room %s is not recording", roomID)
	}

	room.mu.Lock()
	defer room.mu.Unlock()

	if room.state != RoomRecording {
		return "", cmdErr(-4, "Room %s is not recording", roomID)
	}
	if cmd != 1 && cmd != 2 {
		return "", cmdErr(-5, "bad screen cmd %d", cmd)
	}
	if cmd == 1 && room.screenActive {
		return "", cmdErr(-4, "screen already active")
	}
	if cmd == 2 && !room.screenActive {
		return "", cmdErr(-4, "screen not active")
	}

	room.stopSessions(ctx)

	sess := newSession(room.ID, room.roomNum, room.recordingCam, room.slugFor(room.recordingCam), room.Mic, room.Profile, m.d)
	var err error
	if cmd == 1 {
		err = sess.startPaired(ctx, room.file)
	} else {
		err = sess.startCamera(ctx, room.file)
	}
	if err != nil {
		return "", cmdErr(-4, "restarting capture: %v", err)
	}

	room.sessions[room.recordingCam] = sess
	room.screenActive = cmd == 1

	if cmd == 1 {
		return fmt.Sprintf("Room %s screen capture on", roomID), nil
	}
	return fmt.Sprintf("Room %s screen capture off", roomID), nil
}

// finishMeta is the room snapshot a detached finish goroutine works from, so
// it holds no pointer into manager state.
type finishMeta struct {
	room         string
	profile      encoder.Profile
	server       string
	classID      string
	cloudClassID string
}

// finish runs post-processing then upload and reports the outcome on the
// completions channel.
func (m *Manager) finish(meta finishMeta, file *RecordingFile) {
	ctx := context.Background()

	if file == nil || file.Len() == 0 {
		m.completions <- completion{room: meta.room, err: errors.New("no segments recorded")}
		return
	}

	res, err := m.post.Process(ctx, file, meta.profile)
	if err != nil {
		m.completions <- completion{room: meta.room, err: fmt.Errorf("post-processing: %w", err)}
		return
	}

	m.setState(meta.room, RoomUploading)

	var up UploadResult
	if m.uploader != nil && meta.server != "" {
		up, err = m.uploader.Upload(ctx, UploadRequest{
			Server:        meta.server,
			ClassID:       meta.classID,
			CloudClassID:  meta.cloudClassID,
			VideoPath:     res.OutputPath,
			ThumbnailPath: res.ThumbnailPath,
			DurationSec:   res.DurationSeconds,
			SizeBytes:     res.SizeBytes,
		})
		if err != nil {
			m.completions <- completion{room: meta.room, result: res, err: fmt.Errorf("uploading: %w", err)}
			return
		}
	}

	m.completions <- completion{room: meta.room, result: res, upload: up}
}

// handleCompletion applies a terminal outcome: writes the catalog row, and
// on success deletes auxiliary files and removes the room from the table.
// Failed rooms stay in the table (state Failed) until reset.
func (m *Manager) handleCompletion(ctx context.Context, c completion) {
	room := m.get(c.room)

	rec := &models.Recording{
		Room:            c.room,
		OutputPath:      c.result.OutputPath,
		ThumbnailPath:   c.result.ThumbnailPath,
		DurationSeconds: c.result.DurationSeconds,
		SizeBytes:       c.result.SizeBytes,
		Segments:        c.result.Segments,
		PlayURL:         c.upload.PlayURL,
		CoverURL:        c.upload.CoverURL,
	}
	if room != nil {
		rec.ClassID = room.ClassID
		rec.CloudClassID = room.CloudClassID
	}

	if c.err != nil {
		rec.State = models.RecordingStateFailed
		rec.Error = c.err.Error()
		if room != nil {
			room.mu.Lock()
			room.state = RoomFailed
			room.failReason = c.err.Error()
			room.mu.Unlock()
		}
		m.logger.Error("recording failed",
			slog.String("room", c.room),
			slog.String("error", c.err.Error()))
	} else {
		rec.State = models.RecordingStateFinished
		if err := m.d.store.RemoveAll(c.result.Auxiliary); err != nil {
			m.logger.Warn("cleaning auxiliary files",
				slog.String("room", c.room),
				slog.String("error", err.Error()))
		}
		if room != nil {
			room.mu.Lock()
			room.state = RoomFinished
			room.mu.Unlock()
			m.remove(c.room)
			if err := m.d.signal.LeaveRoom(ctx, room.roomNum); err != nil {
				m.logger.Warn("leaving room after finish",
					slog.String("room", c.room),
					slog.String("error", err.Error()))
			}
		}
		m.logger.Info("recording finished",
			slog.String("room", c.room),
			slog.String("output", c.result.OutputPath),
			slog.Int64("duration_seconds", c.result.DurationSeconds))
	}

	if m.repo != nil {
		if err := m.repo.Create(ctx, rec); err != nil {
			m.logger.Warn("writing recording catalog row",
				slog.String("room", c.room),
				slog.String("error", err.Error()))
		}
	}
}

// handleEvent reacts to asynchronous gateway notifications. A hangup fails
// its room; a transport disconnect invalidates every forwarding room.
func (m *Manager) handleEvent(ctx context.Context, ev signalling.Event) {
	switch ev.Kind {
	case signalling.EventHangup:
		roomID := strconv.FormatInt(ev.Room, 10)
		if room := m.get(roomID); room != nil {
			m.failRoom(ctx, room, "gateway hangup: "+ev.Reason)
		}
	case signalling.EventDisconnected:
		for _, room := range m.all() {
			m.failRoom(ctx, room, "signalling connection lost")
		}
	}
}

// failRoom fails a live room's sessions and marks the room Failed. Rooms
// already in a terminal or processing state are left alone.
func (m *Manager) failRoom(ctx context.Context, room *Room, reason string) {
	room.mu.Lock()
	defer room.mu.Unlock()

	switch room.state {
	case RoomStarting, RoomRecording, RoomPaused:
	default:
		return
	}
	room.failSessions(ctx)
	room.state = RoomFailed
	room.failReason = reason

	m.logger.Error("room failed",
		slog.String("room", room.ID),
		slog.String("reason", reason))
}

// StopAll interrupts every live session; used on shutdown so no encoder
// children are orphaned.
func (m *Manager) StopAll(ctx context.Context) {
	for _, room := range m.all() {
		room.mu.Lock()
		room.stopSessions(ctx)
		room.mu.Unlock()
	}
}

// Rooms returns a snapshot of every live room, sorted by identifier.
func (m *Manager) Rooms() []RoomStatus {
	rooms := m.all()
	out := make([]RoomStatus, 0, len(rooms))
	for _, room := range rooms {
		out = append(out, room.status())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Room < out[j].Room })
	return out
}

// Status returns one room's snapshot.
func (m *Manager) Status(roomID string) (RoomStatus, bool) {
	room := m.get(roomID)
	if room == nil {
		return RoomStatus{}, false
	}
	return room.status(), true
}

func (m *Manager) get(roomID string) *Room {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.rooms[roomID]
}

func (m *Manager) all() []*Room {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*Room, 0, len(m.rooms))
	for _, room := range m.rooms {
		out = append(out, room)
	}
	return out
}

func (m *Manager) remove(roomID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.rooms, roomID)
}

func (m *Manager) setState(roomID string, state RoomState) {
	if room := m.get(roomID); room != nil {
		room.mu.Lock()
		room.state = state
		room.mu.Unlock()
	}
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
