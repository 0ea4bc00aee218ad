// Package encoder wraps the external FFmpeg toolchain: binary resolution,
// argument-vector construction for the recorder's capture and post-processing
// commands, child process supervision, and ffprobe metadata extraction.
package encoder

import (
	"fmt"

	"github.com/jmylchreest/roomrec/internal/config"
	"github.com/jmylchreest/roomrec/internal/util"
)

// Binaries holds the resolved paths of the FFmpeg toolchain.
type Binaries struct {
	FFmpeg  string `json:"ffmpeg"`
	FFprobe string `json:"ffprobe"`
}

// FindBinaries resolves the ffmpeg and ffprobe binaries. Explicit paths from
// the configuration win; otherwise the ROOMREC_FFMPEG_BINARY and
// ROOMREC_FFPROBE_BINARY environment variables, the working directory, and
// PATH are searched in that order.
func FindBinaries(cfg config.FFmpegConfig) (Binaries, error) {
	bins := Binaries{
		FFmpeg:  cfg.BinaryPath,
		FFprobe: cfg.ProbePath,
	}

	if bins.FFmpeg == "" {
		path, err := util.FindBinary("ffmpeg", "ROOMREC_FFMPEG_BINARY")
		if err != nil {
			return Binaries{}, fmt.Errorf("ffmpeg not found: %w", err)
		}
		bins.FFmpeg = path
	}

	if bins.FFprobe == "" {
		path, err := util.FindBinary("ffprobe", "ROOMREC_FFPROBE_BINARY")
		if err != nil {
			return Binaries{}, fmt.Errorf("ffprobe not found: %w", err)
		}
		bins.FFprobe = path
	}

	return bins, nil
}
