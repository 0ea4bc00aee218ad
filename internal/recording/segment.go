package recording

import (
	"context"
	"sync"
	"time"
)

// Segment is one contiguous encoder invocation's output. A paired segment
// carries both the screen and the camera capture sharing one begin timestamp;
// after post-processing's background merge the screen file holds the
// composited stream and the camera file becomes auxiliary.
type Segment struct {
	Room      string
	Publisher string
	Folder    string

	// File is the capture output, or the screen capture for paired segments.
	File string
	// CamFile is the camera capture of a paired segment, empty otherwise.
	CamFile string
	// SDPFile is the session description a forwarded capture read, if any.
	SDPFile string

	Begin time.Time

	mu        sync.Mutex
	end       time.Time
	finalized bool

	merged   chan struct{}
	mergeErr error
}

// NewSegment mints a single-capture segment.
func NewSegment(room, publisher, folder, file string, begin time.Time) *Segment {
	s := &Segment{
		Room:      room,
		Publisher: publisher,
		Folder:    folder,
		File:      file,
		Begin:     begin,
		merged:    make(chan struct{}),
	}
	// Nothing to merge; unblock waiters immediately.
	close(s.merged)
	return s
}

// NewPairedSegment mints a screen+camera segment. Both captures share the
// begin timestamp; the merge channel stays open until the background PiP
// merge reports in.
func NewPairedSegment(room, folder, screenFile, camFile, sdpFile string, begin time.Time) *Segment {
	return &Segment{
		Room:      room,
		Publisher: "screen",
		Folder:    folder,
		File:      screenFile,
		CamFile:   camFile,
		SDPFile:   sdpFile,
		Begin:     begin,
		merged:    make(chan struct{}),
	}
}

// Paired reports whether the segment carries a screen+camera pair.
func (s *Segment) Paired() bool {
	return s.CamFile != ""
}

// Finalize sets the end timestamp. The end is set exactly once; a second
// call returns ErrAlreadyFinalized.
func (s *Segment) Finalize(end time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.finalized {
		return ErrAlreadyFinalized
	}
	if end.Before(s.Begin) {
		end = s.Begin
	}
	s.end = end
	s.finalized = true
	return nil
}

// Finalized reports whether the end timestamp has been set.
func (s *Segment) Finalized() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.finalized
}

// End returns the end timestamp; zero until finalized.
func (s *Segment) End() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.end
}

// MarkMerged records the background merge outcome and unblocks AwaitMerge.
func (s *Segment) MarkMerged(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	select {
	case <-s.merged:
		return
	default:
	}
	s.mergeErr = err
	close(s.merged)
}

// AwaitMerge blocks until the segment's merge has completed (immediately for
// single-capture segments) and returns the merge outcome.
func (s *Segment) AwaitMerge(ctx context.Context) error {
	select {
	case <-s.merged:
		s.mu.Lock()
		defer s.mu.Unlock()
		return s.mergeErr
	case <-ctx.Done():
		return ctx.Err()
	}
}
