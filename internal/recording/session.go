// Package recording implements the room lifecycle: per-publisher recording
// sessions, the per-room state machine, segment bookkeeping across
// pause/resume and camera switches, and the hand-off to post-processing and
// upload. The room manager is the sole mutator of room state.
package recording

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/jmylchreest/roomrec/internal/config"
	"github.com/jmylchreest/roomrec/internal/encoder"
	"github.com/jmylchreest/roomrec/internal/signalling"
	"github.com/jmylchreest/roomrec/internal/storage"
)

// SessionState tracks one recording session's lifecycle. Failed is absorbing.
type SessionState int

const (
	SessionDefault SessionState = iota
	SessionStarted
	SessionForwarding
	SessionRecording
	SessionStopped
	SessionFailed
)

func (s SessionState) String() string {
	switch s {
	case SessionDefault:
		return "default"
	case SessionStarted:
		return "started"
	case SessionForwarding:
		return "forwarding"
	case SessionRecording:
		return "recording"
	case SessionStopped:
		return "stopped"
	case SessionFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// deps bundles the collaborators every session needs. One instance is shared
// by all rooms of a manager.
type deps struct {
	signal   signalling.Client
	ports    *signalling.PortPool
	store    *storage.Store
	launcher Launcher
	recCfg   config.RecordingConfig
	sigCfg   config.SignallingConfig
	ffmpeg   string
	logger   *slog.Logger
}

// forwardGrant records one active RTP forward so stop can tear it down and
// return its ports.
type forwardGrant struct {
	publisher int64
	streams   []uint64
	ports     []int
}

// Session is one publisher's recording state within a room. A camera-only
// session owns one encoder child; a paired session owns the camera child and
// the screen child, producing a paired segment merged in post-processing.
type Session struct {
	room      string
	roomNum   int64
	publisher string // camera RTSP URL
	slug      string // filename-safe publisher label
	mic       string
	profile   encoder.Profile
	d         *deps

	mu          sync.Mutex
	state       SessionState
	startedAt   time.Time
	camChild    Child
	screenChild Child
	seg         *Segment
	grants      []forwardGrant
}

// SessionStatus is a point-in-time snapshot for the status API.
type SessionStatus struct {
	Publisher string    `json:"publisher"`
	Mic       string    `json:"mic,omitempty"`
	State     string    `json:"state"`
	StartedAt time.Time `json:"started_at"`
	Paired    bool      `json:"paired"`
	PIDs      []int     `json:"pids,omitempty"`
}

func newSession(room string, roomNum int64, publisher, slug, mic string, profile encoder.Profile, d *deps) *Session {
	return &Session{
		room:      room,
		roomNum:   roomNum,
		publisher: publisher,
		slug:      slug,
		mic:       mic,
		profile:   profile,
		d:         d,
	}
}

// startCamera begins a camera-only capture and appends its segment to the
// recording chain.
func (s *Session) startCamera(ctx context.Context, file *RecordingFile) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	folder, err := s.d.store.EnsureRoomDir(s.room)
	if err != nil {
		return fmt.Errorf("ensuring room folder: %w", err)
	}
	s.state = SessionStarted

	begin := time.Now()
	out, err := s.d.store.SegmentPath(s.room, s.slug, begin)
	if err != nil {
		s.state = SessionFailed
		return err
	}

	// Children outlive the command's request context; bind them to the
	// process instead so a disconnecting caller cannot kill a capture.
	child, err := s.d.launcher.Start(context.Background(), encoder.CaptureRTSP(s.d.ffmpeg, s.publisher, out))
	if err != nil {
		s.state = SessionFailed
		return fmt.Errorf("starting camera capture: %w", err)
	}

	s.camChild = child
	s.watch(child)

	seg := NewSegment(s.room, s.slug, folder, out, begin)
	s.seg = seg
	file.Append(seg)

	s.startedAt = begin
	s.state = SessionRecording

	s.d.logger.Info("camera capture started",
		slog.String("room", s.room),
		slog.String("publisher", s.slug),
		slog.Int("pid", child.PID()),
		slog.String("output", out))
	return nil
}

// startPaired begins a screen+camera capture: the screen publisher is
// forwarded by the gateway into locally allocated UDP ports and captured via
// a generated SDP, the camera is captured directly; both share one begin
// timestamp on a paired segment.
func (s *Session) startPaired(ctx context.Context, file *RecordingFile) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	folder, err := s.d.store.EnsureRoomDir(s.room)
	if err != nil {
		return fmt.Errorf("ensuring room folder: %w", err)
	}
	s.state = SessionStarted
	begin := time.Now()

	audioPort, videoPort, err := s.d.ports.AllocatePair()
	if err != nil {
		s.state = SessionFailed
		return fmt.Errorf("allocating forward ports: %w", err)
	}

	screenFeed := int64(s.d.sigCfg.Publishers.Screen)
	reply, err := s.d.signal.RequestForward(ctx, signalling.ForwardRequest{
		Room:      s.roomNum,
		Publisher: screenFeed,
		Host:      s.d.sigCfg.ForwardHost,
		AudioPort: audioPort,
		VideoPort: videoPort,
		AudioPT:   s.d.recCfg.AudioPayloadType,
		VideoPT:   s.d.recCfg.VideoPayloadType,
	})
	if err != nil {
		s.d.ports.Release(audioPort, videoPort)
		s.state = SessionFailed
		return fmt.Errorf("requesting screen forward: %w", err)
	}
	s.state = SessionForwarding

	grant := forwardGrant{
		publisher: screenFeed,
		ports:     []int{audioPort, videoPort},
	}
	if reply.AudioStreamID != 0 {
		grant.streams = append(grant.streams, reply.AudioStreamID)
	}
	if reply.VideoStreamID != 0 {
		grant.streams = append(grant.streams, reply.VideoStreamID)
	}

	teardown := func() {
		for _, id := range grant.streams {
			if err := s.d.signal.StopForward(ctx, s.roomNum, grant.publisher, id); err != nil {
				s.d.logger.Warn("stopping forward after failed start",
					slog.String("room", s.room),
					slog.String("error", err.Error()))
			}
		}
		s.d.ports.Release(grant.ports...)
	}

	sdpPath, err := s.d.store.SDPPath(s.room, "screen", begin)
	if err != nil {
		teardown()
		s.state = SessionFailed
		return err
	}
	err = signalling.WriteSDP(sdpPath, signalling.SDPSpec{
		Name:      "screen",
		Host:      s.d.sigCfg.ForwardHost,
		AudioPort: audioPort,
		VideoPort: videoPort,
		AudioPT:   s.d.recCfg.AudioPayloadType,
		VideoPT:   s.d.recCfg.VideoPayloadType,
	})
	if err != nil {
		teardown()
		s.state = SessionFailed
		return err
	}

	screenOut, err := s.d.store.SegmentPath(s.room, "screen", begin)
	if err != nil {
		teardown()
		s.state = SessionFailed
		return err
	}
	camOut, err := s.d.store.SegmentPath(s.room, s.slug, begin)
	if err != nil {
		teardown()
		s.state = SessionFailed
		return err
	}

	screenChild, err := s.d.launcher.Start(context.Background(), encoder.CaptureForward(s.d.ffmpeg, sdpPath, screenOut))
	if err != nil {
		teardown()
		s.state = SessionFailed
		return fmt.Errorf("starting screen capture: %w", err)
	}
	camChild, err := s.d.launcher.Start(context.Background(), encoder.CaptureRTSP(s.d.ffmpeg, s.publisher, camOut))
	if err != nil {
		_ = screenChild.Stop()
		teardown()
		s.state = SessionFailed
		return fmt.Errorf("starting camera capture: %w", err)
	}

	s.screenChild = screenChild
	s.camChild = camChild
	s.grants = append(s.grants, grant)
	s.watch(screenChild)
	s.watch(camChild)

	seg := NewPairedSegment(s.room, folder, screenOut, camOut, sdpPath, begin)
	s.seg = seg
	file.Append(seg)

	s.startedAt = begin
	s.state = SessionRecording

	s.d.logger.Info("paired capture started",
		slog.String("room", s.room),
		slog.String("publisher", s.slug),
		slog.Int("screen_pid", screenChild.PID()),
		slog.Int("cam_pid", camChild.PID()))
	return nil
}

// stop interrupts the session's children, finalizes its segment and tears
// down any active forwards. For paired segments the background PiP merge is
// scheduled once both children have exited; Stop on a handle only returns
// after the child is gone, so the ordering holds by construction.
func (s *Session) stop(ctx context.Context) {
	s.mu.Lock()
	if s.state == SessionStopped {
		s.mu.Unlock()
		return
	}
	cam, screen := s.camChild, s.screenChild
	seg, grants := s.seg, s.grants
	s.camChild, s.screenChild = nil, nil
	s.grants = nil
	// Failed is absorbing; a clean stop only applies to a live session.
	if s.state != SessionFailed {
		s.state = SessionStopped
	}
	s.mu.Unlock()

	if cam != nil {
		_ = cam.Stop()
	}
	if screen != nil {
		_ = screen.Stop()
	}

	for _, g := range grants {
		for _, id := range g.streams {
			if err := s.d.signal.StopForward(ctx, s.roomNum, g.publisher, id); err != nil {
				s.d.logger.Warn("stopping rtp forward",
					slog.String("room", s.room),
					slog.Uint64("stream", id),
					slog.String("error", err.Error()))
			}
		}
		s.d.ports.Release(g.ports...)
	}

	if seg == nil {
		return
	}
	if err := seg.Finalize(time.Now()); err != nil && !errors.Is(err, ErrAlreadyFinalized) {
		s.d.logger.Warn("finalizing segment",
			slog.String("room", s.room),
			slog.String("error", err.Error()))
	}
	if seg.Paired() {
		go s.merge(seg)
	}

	s.d.logger.Info("session stopped",
		slog.String("room", s.room),
		slog.String("publisher", s.slug))
}

// merge composites the camera inset over the screen capture, replacing the
// screen file with the merged stream. The outcome is published on the
// segment for the post-processor to await.
func (s *Session) merge(seg *Segment) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	tmp := strings.TrimSuffix(seg.File, ".ts") + "_pip.ts"
	err := s.d.launcher.Run(ctx, encoder.MergePiP(s.d.ffmpeg, s.profile, seg.File, seg.CamFile, tmp))
	if err == nil {
		err = os.Rename(tmp, seg.File)
	}
	if err != nil {
		s.d.logger.Error("pip merge failed",
			slog.String("room", s.room),
			slog.String("screen", seg.File),
			slog.String("error", err.Error()))
	}
	seg.MarkMerged(err)
}

// fail marks the session failed unless it already stopped cleanly.
func (s *Session) fail() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == SessionStopped || s.state == SessionFailed {
		return
	}
	s.state = SessionFailed
}

// watch fails the session when a child exits without having been stopped.
// The child's partial output remains a segment; the room stays usable.
func (s *Session) watch(child Child) {
	go func() {
		<-child.Done()
		if child.Stopped() {
			return
		}
		s.mu.Lock()
		failed := false
		if s.state != SessionStopped && s.state != SessionFailed {
			s.state = SessionFailed
			failed = true
		}
		s.mu.Unlock()
		if failed {
			s.d.logger.Warn("encoder child died, session failed",
				slog.String("room", s.room),
				slog.String("publisher", s.slug),
				slog.Int("pid", child.PID()))
		}
	}()
}

// status returns a snapshot of the session.
func (s *Session) status() SessionStatus {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := SessionStatus{
		Publisher: s.publisher,
		Mic:       s.mic,
		State:     s.state.String(),
		StartedAt: s.startedAt,
		Paired:    s.screenChild != nil,
	}
	if s.camChild != nil && s.camChild.Alive() {
		st.PIDs = append(st.PIDs, s.camChild.PID())
	}
	if s.screenChild != nil && s.screenChild.Alive() {
		st.PIDs = append(st.PIDs, s.screenChild.PID())
	}
	return st
}
