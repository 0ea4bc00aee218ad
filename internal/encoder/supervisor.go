package encoder

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"runtime"
	"sync"
	"time"

	"github.com/jmylchreest/roomrec/pkg/format"
)

// maxStderrLines bounds the per-child stderr ring buffer.
const maxStderrLines = 50

// Handle is one supervised encoder child. The handle owns the child for its
// whole lifetime: when the process exits, by itself or because Stop was
// called, Done is closed and the exit status is recorded.
type Handle struct {
	spec    Spec
	cmd     *exec.Cmd
	pid     int
	started time.Time
	grace   time.Duration
	logger  *slog.Logger

	done chan struct{}

	mu       sync.Mutex
	waitErr  error
	exited   bool
	stopping bool

	stderrMu    sync.Mutex
	stderrLines []string
}

// PID returns the child's process identifier.
func (h *Handle) PID() int {
	return h.pid
}

// Output returns the file the child writes.
func (h *Handle) Output() string {
	return h.spec.Output
}

// Done is closed when the child has exited and been reaped.
func (h *Handle) Done() <-chan struct{} {
	return h.done
}

// Alive reports whether the child is still running.
func (h *Handle) Alive() bool {
	select {
	case <-h.done:
		return false
	default:
		return true
	}
}

// Stopped reports whether Stop was requested before the child exited. A
// child that exited with Stopped() false died on its own and its session
// must be failed.
func (h *Handle) Stopped() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.stopping
}

// Wait blocks until the child exits and returns its exit status. Safe to
// call concurrently with the reaper and with Stop.
func (h *Handle) Wait() error {
	<-h.done
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.waitErr
}

// Stop delivers an interrupt to the child, waits up to the stop grace for a
// clean exit, then escalates to a kill. When Stop returns, no further writes
// to the output file occur.
func (h *Handle) Stop() error {
	h.mu.Lock()
	if h.exited {
		h.mu.Unlock()
		return nil
	}
	h.stopping = true
	h.mu.Unlock()

	if stats, err := h.Stats(); err == nil {
		h.logger.Debug("stopping encoder",
			slog.Int("pid", h.pid),
			slog.Float64("cpu_percent", stats.CPUPercent),
			slog.String("rss", format.Bytes(int64(stats.RSSBytes))))
	}

	// Windows has no interruptible signal; kill immediately there.
	if runtime.GOOS == "windows" {
		_ = h.cmd.Process.Kill()
	} else if err := h.cmd.Process.Signal(os.Interrupt); err != nil {
		_ = h.cmd.Process.Kill()
	}

	select {
	case <-h.done:
		return nil
	case <-time.After(h.grace):
	}

	h.logger.Warn("encoder ignored interrupt, killing",
		slog.Int("pid", h.pid),
		slog.String("output", h.spec.Output))
	_ = h.cmd.Process.Kill()
	<-h.done
	return nil
}

// StderrTail returns the most recent stderr lines the child produced.
func (h *Handle) StderrTail() []string {
	h.stderrMu.Lock()
	defer h.stderrMu.Unlock()
	lines := make([]string, len(h.stderrLines))
	copy(lines, h.stderrLines)
	return lines
}

// captureStderr keeps a bounded tail of the child's stderr for diagnostics.
func (h *Handle) captureStderr(r io.Reader) {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := scanner.Text()
		h.stderrMu.Lock()
		if len(h.stderrLines) >= maxStderrLines {
			h.stderrLines = h.stderrLines[1:]
		}
		h.stderrLines = append(h.stderrLines, line)
		h.stderrMu.Unlock()
	}
}

// Supervisor spawns and reaps encoder children.
type Supervisor struct {
	stopGrace time.Duration
	logger    *slog.Logger
}

// NewSupervisor creates a supervisor. stopGrace is how long Stop waits after
// an interrupt before escalating to a kill.
func NewSupervisor(stopGrace time.Duration, logger *slog.Logger) *Supervisor {
	if stopGrace <= 0 {
		stopGrace = 2 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Supervisor{stopGrace: stopGrace, logger: logger}
}

// Start spawns an encoder child for the spec. A spawn failure surfaces as
// ErrUnavailable; a started child is reaped by a background goroutine that
// closes the handle's Done channel on exit.
func (s *Supervisor) Start(ctx context.Context, spec Spec) (*Handle, error) {
	cmd := exec.CommandContext(ctx, spec.Binary, spec.Args...)

	h := &Handle{
		spec:   spec,
		cmd:    cmd,
		grace:  s.stopGrace,
		logger: s.logger,
		done:   make(chan struct{}),
	}

	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("%w: stderr pipe: %v", ErrUnavailable, err)
	}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	h.pid = cmd.Process.Pid
	h.started = time.Now()

	s.logger.Debug("encoder started",
		slog.String("name", spec.Name),
		slog.Int("pid", h.pid),
		slog.String("output", spec.Output))

	go h.captureStderr(stderr)
	go s.reap(h)

	return h, nil
}

// reap waits for the child and records its exit.
func (s *Supervisor) reap(h *Handle) {
	err := h.cmd.Wait()

	h.mu.Lock()
	h.waitErr = err
	h.exited = true
	stopped := h.stopping
	h.mu.Unlock()
	close(h.done)

	// An interrupt-triggered non-zero exit is the normal stop path; only
	// self-exits are noteworthy.
	if err != nil && !stopped {
		s.logger.Warn("encoder exited on its own",
			slog.String("name", h.spec.Name),
			slog.Int("pid", h.pid),
			slog.String("error", err.Error()))
	}
}

// Run executes a spec to completion, for the post-processing steps that are
// plain batch invocations. A non-zero exit surfaces as ErrFailed carrying
// the stderr tail.
func (s *Supervisor) Run(ctx context.Context, spec Spec) error {
	h, err := s.Start(ctx, spec)
	if err != nil {
		return err
	}
	if err := h.Wait(); err != nil {
		tail := h.StderrTail()
		last := ""
		if len(tail) > 0 {
			last = tail[len(tail)-1]
		}
		return fmt.Errorf("%w: %s: %v (stderr: %s)", ErrFailed, spec.Name, err, last)
	}
	return nil
}

// StopGrace returns the configured interrupt-to-kill grace period.
func (s *Supervisor) StopGrace() time.Duration {
	return s.stopGrace
}
