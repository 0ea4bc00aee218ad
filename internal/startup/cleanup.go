// Package startup provides boot-time housekeeping tasks.
package startup

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

// CleanupScratchFiles removes capture scratch left behind by a previous run:
// generated SDP files and ffconcat join lists under the recordings root. It
// runs before any session exists, so everything matching is orphaned.
// Capture segments and final artifacts (.ts, .mp4, .png) are never touched;
// they are either recoverable evidence of a failed run or the product.
//
// Returns the number of files removed.
func CleanupScratchFiles(logger *slog.Logger, root string) (int, error) {
	if _, err := os.Stat(root); os.IsNotExist(err) {
		logger.Debug("recordings root does not exist, skipping cleanup",
			slog.String("path", root))
		return 0, nil
	}

	rooms, err := os.ReadDir(root)
	if err != nil {
		return 0, err
	}

	var removed int
	for _, room := range rooms {
		if !room.IsDir() {
			continue
		}
		dir := filepath.Join(root, room.Name())
		entries, err := os.ReadDir(dir)
		if err != nil {
			logger.Warn("reading room directory",
				slog.String("path", dir),
				slog.String("error", err.Error()))
			continue
		}
		for _, entry := range entries {
			if entry.IsDir() || !isScratch(entry.Name()) {
				continue
			}
			path := filepath.Join(dir, entry.Name())
			if err := os.Remove(path); err != nil {
				logger.Warn("removing scratch file",
					slog.String("path", path),
					slog.String("error", err.Error()))
				continue
			}
			logger.Debug("removed scratch file", slog.String("path", path))
			removed++
		}
	}

	if removed > 0 {
		logger.Info("cleaned up scratch files from previous run",
			slog.Int("removed", removed))
	}
	return removed, nil
}

// isScratch reports whether a file name is capture scratch.
func isScratch(name string) bool {
	if strings.HasSuffix(name, ".sdp") {
		return true
	}
	return strings.HasPrefix(name, "join_") && strings.HasSuffix(name, ".txt")
}
