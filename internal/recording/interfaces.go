package recording

import (
	"context"

	"github.com/jmylchreest/roomrec/internal/encoder"
)

// Child is one supervised encoder process owned by a session. Satisfied by
// *encoder.Handle; faked in tests.
type Child interface {
	// PID returns the child's process identifier.
	PID() int
	// Output returns the file the child writes.
	Output() string
	// Stop interrupts the child and blocks until it has exited.
	Stop() error
	// Wait blocks until the child exits and returns its exit status.
	Wait() error
	// Alive reports whether the child is still running.
	Alive() bool
	// Stopped reports whether Stop was requested before the child exited.
	Stopped() bool
	// Done is closed when the child has exited.
	Done() <-chan struct{}
}

// Launcher spawns and runs encoder processes.
type Launcher interface {
	// Start spawns a long-running capture child.
	Start(ctx context.Context, spec encoder.Spec) (Child, error)
	// Run executes a batch invocation to completion.
	Run(ctx context.Context, spec encoder.Spec) error
}

// SupervisorLauncher adapts *encoder.Supervisor to the Launcher interface.
type SupervisorLauncher struct {
	Supervisor *encoder.Supervisor
}

func (l SupervisorLauncher) Start(ctx context.Context, spec encoder.Spec) (Child, error) {
	h, err := l.Supervisor.Start(ctx, spec)
	if err != nil {
		return nil, err
	}
	return h, nil
}

func (l SupervisorLauncher) Run(ctx context.Context, spec encoder.Spec) error {
	return l.Supervisor.Run(ctx, spec)
}

// PostResult carries the artifacts of a completed post-processing run.
type PostResult struct {
	// OutputPath is the final mp4.
	OutputPath string
	// ThumbnailPath is the extracted frame.
	ThumbnailPath string
	// DurationSeconds is the probed container duration, rounded down.
	DurationSeconds int64
	// SizeBytes is the probed output size.
	SizeBytes int64
	// Segments is how many segments the chain contained.
	Segments int
	// Auxiliary lists the intermediate files to delete after a successful
	// upload: capture segments, SDP files, the join list, the joined ts.
	Auxiliary []string
}

// PostProcessor turns a finished recording chain into the final artifacts.
type PostProcessor interface {
	Process(ctx context.Context, file *RecordingFile, profile encoder.Profile) (PostResult, error)
}

// UploadRequest asks the uploader to publish one finished recording.
type UploadRequest struct {
	Server        string
	ClassID       string
	CloudClassID  string
	VideoPath     string
	ThumbnailPath string
	DurationSec   int64
	SizeBytes     int64
}

// UploadResult carries the remote paths the classroom service registered.
type UploadResult struct {
	PlayURL  string
	CoverURL string
}

// Uploader publishes artifacts to the classroom service.
type Uploader interface {
	Upload(ctx context.Context, req UploadRequest) (UploadResult, error)
}
