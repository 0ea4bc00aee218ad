package recording

import (
	"context"
	"sync"
	"time"

	"github.com/jmylchreest/roomrec/internal/encoder"
)

// RoomState is the per-room lifecycle position.
type RoomState int

const (
	RoomStarting RoomState = iota + 1
	RoomRecording
	RoomPaused
	RoomProcessing
	RoomUploading
	RoomFinished
	RoomFailed
)

func (s RoomState) String() string {
	switch s {
	case RoomStarting:
		return "starting"
	case RoomRecording:
		return "recording"
	case RoomPaused:
		return "paused"
	case RoomProcessing:
		return "processing"
	case RoomUploading:
		return "uploading"
	case RoomFinished:
		return "finished"
	case RoomFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Room is one live recording room. The manager is its sole mutator; every
// command locks the room for its duration so per-room operations are
// linearizable.
type Room struct {
	ID           string
	roomNum      int64
	ClassID      string
	CloudClassID string
	UploadServer string
	Cam1         string
	Cam2         string
	Mic          string
	Monitor      string
	Profile      encoder.Profile
	CreatedAt    time.Time

	mu           sync.Mutex
	state        RoomState
	sessions     map[string]*Session
	file         *RecordingFile
	paused       *RecordingFile
	screenActive bool
	recordingCam string
	failReason   string
}

// RoomStatus is a point-in-time snapshot for the status API.
type RoomStatus struct {
	Room         string          `json:"room"`
	ClassID      string          `json:"class_id"`
	State        string          `json:"state"`
	Profile      string          `json:"profile"`
	ScreenActive bool            `json:"screen_active"`
	RecordingCam string          `json:"recording_cam,omitempty"`
	Segments     int             `json:"segments"`
	Sessions     []SessionStatus `json:"sessions,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
	Error        string          `json:"error,omitempty"`
}

// slugFor maps a camera URL to its filename-safe publisher label.
func (r *Room) slugFor(cam string) string {
	switch cam {
	case r.Cam1:
		return "cam1"
	case r.Cam2:
		return "cam2"
	default:
		return "cam"
	}
}

// stopSessions stops every session and clears the map. Callers hold r.mu.
func (r *Room) stopSessions(ctx context.Context) {
	for _, sess := range r.sessions {
		sess.stop(ctx)
	}
	r.sessions = make(map[string]*Session)
}

// failSessions marks every session failed without stopping children cleanly
// first; used when the signalling channel is gone and forwards are already
// dead. Children are still interrupted so no orphans linger.
func (r *Room) failSessions(ctx context.Context) {
	for _, sess := range r.sessions {
		sess.fail()
		sess.stop(ctx)
	}
	r.sessions = make(map[string]*Session)
}

// activeFile returns the chain a stop should hand to post-processing: the
// live chain while recording, the parked one when stopped from pause.
func (r *Room) activeFile() *RecordingFile {
	if r.file != nil {
		return r.file
	}
	return r.paused
}

// status snapshots the room. Callers must not hold r.mu.
func (r *Room) status() RoomStatus {
	r.mu.Lock()
	defer r.mu.Unlock()

	st := RoomStatus{
		Room:         r.ID,
		ClassID:      r.ClassID,
		State:        r.state.String(),
		Profile:      string(r.Profile),
		ScreenActive: r.screenActive,
		RecordingCam: r.recordingCam,
		CreatedAt:    r.CreatedAt,
		Error:        r.failReason,
	}
	if f := r.activeFile(); f != nil {
		st.Segments = f.Len()
	}
	for _, sess := range r.sessions {
		st.Sessions = append(st.Sessions, sess.status())
	}
	return st
}
