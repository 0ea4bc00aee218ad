package storage

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/shirou/gopsutil/v3/disk"

	"github.com/jmylchreest/roomrec/internal/config"
)

// ErrNoSpace is returned when free space on the recordings volume has
// dropped below the configured minimum.
var ErrNoSpace = errors.New("insufficient disk space")

// ErrBadName is returned for room or publisher names that would escape the
// recordings root.
var ErrBadName = errors.New("invalid name")

// Store manages the recordings directory tree. Layout is one folder per
// room under the root, holding capture segments, the join list, the merged
// output and its thumbnail:
//
//	<root>/<room>/<publisher>_<begin>.ts
//	<root>/<room>/join_<ts>.txt
//	<root>/<room>/joined_<ts>.ts
//	<root>/<room>/output_<ts>.mp4
//	<root>/<room>/thumbnail_<ts>.png
type Store struct {
	sandbox *Sandbox
	minFree uint64
	logger  *slog.Logger
}

// NewStore creates a store rooted at the configured recordings directory,
// creating it if needed.
func NewStore(cfg config.StorageConfig, logger *slog.Logger) (*Store, error) {
	root, err := cfg.RootDir()
	if err != nil {
		return nil, err
	}
	sandbox, err := NewSandbox(root)
	if err != nil {
		return nil, fmt.Errorf("creating recordings root: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		sandbox: sandbox,
		minFree: uint64(cfg.MinFree),
		logger:  logger,
	}, nil
}

// Root returns the absolute recordings root directory.
func (s *Store) Root() string {
	return s.sandbox.BaseDir()
}

// CheckFreeSpace returns ErrNoSpace when the recordings volume is below the
// configured minimum. A zero minimum disables the check.
func (s *Store) CheckFreeSpace() error {
	if s.minFree == 0 {
		return nil
	}
	usage, err := disk.Usage(s.sandbox.BaseDir())
	if err != nil {
		// A failed probe must not block recording.
		s.logger.Warn("disk usage probe failed", slog.String("error", err.Error()))
		return nil
	}
	if usage.Free < s.minFree {
		return fmt.Errorf("%w: %d bytes free, %d required", ErrNoSpace, usage.Free, s.minFree)
	}
	return nil
}

// EnsureRoomDir creates (if needed) and returns the absolute folder for a
// room. Room names with path separators or traversal components are
// rejected.
func (s *Store) EnsureRoomDir(room string) (string, error) {
	if err := validateName(room); err != nil {
		return "", err
	}
	if err := s.sandbox.MkdirAll(room); err != nil {
		return "", err
	}
	return s.sandbox.ResolvePath(room)
}

// RoomDir returns the absolute folder for a room without creating it.
func (s *Store) RoomDir(room string) (string, error) {
	if err := validateName(room); err != nil {
		return "", err
	}
	return s.sandbox.ResolvePath(room)
}

// MintPath returns an absolute path `<root>/<room>/<prefix>_<ts><ext>` that
// does not yet exist. When two artifacts land in the same second the
// timestamp is bumped until the name is free, so segments never overwrite
// each other.
func (s *Store) MintPath(room, prefix, ext string, at time.Time) (string, error) {
	if err := validateName(room); err != nil {
		return "", err
	}
	if err := validateName(prefix); err != nil {
		return "", err
	}
	ts := at.Unix()
	for {
		rel := filepath.Join(room, fmt.Sprintf("%s_%d%s", prefix, ts, ext))
		abs, err := s.sandbox.ResolvePath(rel)
		if err != nil {
			return "", err
		}
		if _, err := os.Stat(abs); os.IsNotExist(err) {
			return abs, nil
		}
		ts++
	}
}

// SegmentPath mints a capture segment path for a publisher.
func (s *Store) SegmentPath(room, publisher string, at time.Time) (string, error) {
	return s.MintPath(room, publisher, ".ts", at)
}

// SDPPath mints a session description path for a forwarded publisher.
func (s *Store) SDPPath(room, publisher string, at time.Time) (string, error) {
	return s.MintPath(room, publisher, ".sdp", at)
}

// JoinListPath mints the concat list path for a room's post-processing run.
func (s *Store) JoinListPath(room string, at time.Time) (string, error) {
	return s.MintPath(room, "join", ".txt", at)
}

// JoinedPath mints the concatenated intermediate path.
func (s *Store) JoinedPath(room string, at time.Time) (string, error) {
	return s.MintPath(room, "joined", ".ts", at)
}

// OutputPath mints the final mp4 path.
func (s *Store) OutputPath(room string, at time.Time) (string, error) {
	return s.MintPath(room, "output", ".mp4", at)
}

// ThumbnailPath mints the thumbnail path alongside an output.
func (s *Store) ThumbnailPath(room string, at time.Time) (string, error) {
	return s.MintPath(room, "thumbnail", ".png", at)
}

// Remove deletes a single artifact. The path must resolve inside the
// recordings root; anything else is refused.
func (s *Store) Remove(absPath string) error {
	rel, err := s.relInRoot(absPath)
	if err != nil {
		return err
	}
	if err := s.sandbox.Remove(rel); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return err
	}
	return nil
}

// RemoveAll deletes a set of artifacts, continuing past missing files and
// returning the first refusal or I/O error encountered.
func (s *Store) RemoveAll(absPaths []string) error {
	var firstErr error
	for _, p := range absPaths {
		if p == "" {
			continue
		}
		if err := s.Remove(p); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Size returns the on-disk size of an artifact.
func (s *Store) Size(absPath string) (int64, error) {
	rel, err := s.relInRoot(absPath)
	if err != nil {
		return 0, err
	}
	return s.sandbox.Size(rel)
}

// relInRoot converts an absolute artifact path to a root-relative one,
// refusing paths outside the recordings root.
func (s *Store) relInRoot(absPath string) (string, error) {
	rel, err := filepath.Rel(s.sandbox.BaseDir(), absPath)
	if err != nil || rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %s is outside the recordings root", ErrBadName, absPath)
	}
	return rel, nil
}

func validateName(name string) error {
	if name == "" || name == "." || name == ".." ||
		strings.ContainsAny(name, `/\`) {
		return fmt.Errorf("%w: %q", ErrBadName, name)
	}
	return nil
}
