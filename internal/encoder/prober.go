package encoder

import (
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strconv"
	"time"
)

// probeTimeout bounds a single ffprobe invocation.
const probeTimeout = 15 * time.Second

// MediaInfo is the metadata the upload protocol needs from the final output.
type MediaInfo struct {
	// DurationSeconds is the container duration, rounded down.
	DurationSeconds int64 `json:"duration_seconds"`
	// SizeBytes is the file size reported by the container probe.
	SizeBytes int64 `json:"size_bytes"`
}

// probeResult mirrors the ffprobe -show_format JSON output.
type probeResult struct {
	Format probeFormat `json:"format"`
}

type probeFormat struct {
	Duration string `json:"duration"`
	Size     string `json:"size"`
}

// Prober extracts media metadata via ffprobe.
type Prober struct {
	binary string
}

// NewProber creates a prober using the given ffprobe binary.
func NewProber(ffprobePath string) *Prober {
	return &Prober{binary: ffprobePath}
}

// Probe returns duration and size of a media file.
func (p *Prober) Probe(ctx context.Context, path string) (MediaInfo, error) {
	ctx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, p.binary,
		"-v", "quiet",
		"-print_format", "json",
		"-show_format",
		path)

	out, err := cmd.Output()
	if err != nil {
		return MediaInfo{}, fmt.Errorf("probing %s: %w", path, err)
	}

	var result probeResult
	if err := json.Unmarshal(out, &result); err != nil {
		return MediaInfo{}, fmt.Errorf("decoding probe output: %w", err)
	}

	info := MediaInfo{}
	if result.Format.Duration != "" {
		seconds, err := strconv.ParseFloat(result.Format.Duration, 64)
		if err != nil {
			return MediaInfo{}, fmt.Errorf("parsing duration %q: %w", result.Format.Duration, err)
		}
		info.DurationSeconds = int64(seconds)
	}
	if result.Format.Size != "" {
		size, err := strconv.ParseInt(result.Format.Size, 10, 64)
		if err != nil {
			return MediaInfo{}, fmt.Errorf("parsing size %q: %w", result.Format.Size, err)
		}
		info.SizeBytes = size
	}
	return info, nil
}
