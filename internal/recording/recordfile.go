package recording

import (
	"sync"
)

// RecordingFile is the room-level ordered chain of segments spanning one
// logical recording, across any number of pause/resume boundaries. The
// post-processor consumes it after the final stop. It holds no reference
// back to its room; completion travels by message.
type RecordingFile struct {
	room   string
	folder string

	mu       sync.Mutex
	segments []*Segment
}

// NewRecordingFile creates an empty chain for a room.
func NewRecordingFile(room, folder string) *RecordingFile {
	return &RecordingFile{room: room, folder: folder}
}

// Room returns the owning room identifier.
func (f *RecordingFile) Room() string {
	return f.room
}

// Folder returns the room folder the segments live in.
func (f *RecordingFile) Folder() string {
	return f.folder
}

// Append adds a segment to the chain. Segments arrive in begin-timestamp
// order by construction; Append preserves that order.
func (f *RecordingFile) Append(seg *Segment) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.segments = append(f.segments, seg)
}

// Tail returns the most recently appended segment, or nil for an empty chain.
func (f *RecordingFile) Tail() *Segment {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.segments) == 0 {
		return nil
	}
	return f.segments[len(f.segments)-1]
}

// Segments returns a snapshot of the chain in append order.
func (f *RecordingFile) Segments() []*Segment {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]*Segment, len(f.segments))
	copy(out, f.segments)
	return out
}

// Len returns the number of segments in the chain.
func (f *RecordingFile) Len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.segments)
}
