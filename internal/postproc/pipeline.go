// Package postproc turns a finished recording chain into the final
// artifacts: awaits pending picture-in-picture merges, concatenates the
// segments, transcodes to mp4, extracts a thumbnail and probes the output.
package postproc

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/jmylchreest/roomrec/internal/encoder"
	"github.com/jmylchreest/roomrec/internal/recording"
	"github.com/jmylchreest/roomrec/internal/storage"
)

// ErrNoSegments is returned for an empty recording chain.
var ErrNoSegments = errors.New("recording chain has no segments")

// ErrOutputMissing is returned when an expected file never materialized
// within the output wait.
var ErrOutputMissing = errors.New("expected output file missing")

// Prober extracts media metadata from a finished output. Satisfied by
// *encoder.Prober.
type Prober interface {
	Probe(ctx context.Context, path string) (encoder.MediaInfo, error)
}

// Pipeline implements recording.PostProcessor.
type Pipeline struct {
	launcher   recording.Launcher
	prober     Prober
	store      *storage.Store
	ffmpeg     string
	outputWait time.Duration
	logger     *slog.Logger
}

// NewPipeline creates a post-processing pipeline. outputWait bounds how long
// each expected file may take to appear.
func NewPipeline(launcher recording.Launcher, prober Prober, store *storage.Store, ffmpeg string, outputWait time.Duration, logger *slog.Logger) *Pipeline {
	if outputWait <= 0 {
		outputWait = 20 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{
		launcher:   launcher,
		prober:     prober,
		store:      store,
		ffmpeg:     ffmpeg,
		outputWait: outputWait,
		logger:     logger,
	}
}

// Process runs merge-await → concat → transcode → thumbnail → probe for one
// chain. On failure every file is left in place for inspection.
func (p *Pipeline) Process(ctx context.Context, file *recording.RecordingFile, profile encoder.Profile) (recording.PostResult, error) {
	segs := file.Segments()
	if len(segs) == 0 {
		return recording.PostResult{}, ErrNoSegments
	}
	room := file.Room()

	p.logger.Info("post-processing started",
		slog.String("room", room),
		slog.Int("segments", len(segs)))

	// Paired segments are still being composited by their sessions' merge
	// goroutines; the chain is only concat-able once every merge reports.
	for _, seg := range segs {
		if err := seg.AwaitMerge(ctx); err != nil {
			return recording.PostResult{}, fmt.Errorf("awaiting merge of %s: %w", seg.File, err)
		}
	}

	for _, seg := range segs {
		if err := p.waitForFile(ctx, seg.File); err != nil {
			return recording.PostResult{}, err
		}
	}

	now := time.Now()
	joinList, err := p.store.JoinListPath(room, now)
	if err != nil {
		return recording.PostResult{}, err
	}
	if err := writeJoinList(joinList, segs); err != nil {
		return recording.PostResult{}, err
	}

	joined, err := p.store.JoinedPath(room, now)
	if err != nil {
		return recording.PostResult{}, err
	}
	if err := p.launcher.Run(ctx, encoder.Concat(p.ffmpeg, joinList, joined)); err != nil {
		return recording.PostResult{}, fmt.Errorf("concatenating segments: %w", err)
	}
	if err := p.waitForFile(ctx, joined); err != nil {
		return recording.PostResult{}, err
	}

	output, err := p.store.OutputPath(room, now)
	if err != nil {
		return recording.PostResult{}, err
	}
	if err := p.launcher.Run(ctx, encoder.Transcode(p.ffmpeg, joined, output)); err != nil {
		return recording.PostResult{}, fmt.Errorf("transcoding: %w", err)
	}
	if err := p.waitForFile(ctx, output); err != nil {
		return recording.PostResult{}, err
	}

	thumbnail, err := p.store.ThumbnailPath(room, now)
	if err != nil {
		return recording.PostResult{}, err
	}
	if err := p.launcher.Run(ctx, encoder.Thumbnail(p.ffmpeg, output, thumbnail)); err != nil {
		return recording.PostResult{}, fmt.Errorf("extracting thumbnail: %w", err)
	}

	info, err := p.prober.Probe(ctx, output)
	if err != nil {
		return recording.PostResult{}, fmt.Errorf("probing output: %w", err)
	}

	result := recording.PostResult{
		OutputPath:      output,
		ThumbnailPath:   thumbnail,
		DurationSeconds: info.DurationSeconds,
		SizeBytes:       info.SizeBytes,
		Segments:        len(segs),
		Auxiliary:       auxiliaryFiles(segs, joinList, joined),
	}

	p.logger.Info("post-processing finished",
		slog.String("room", room),
		slog.String("output", output),
		slog.Int64("duration_seconds", info.DurationSeconds),
		slog.Int64("size_bytes", info.SizeBytes))
	return result, nil
}

// waitForFile polls until path exists and is non-empty, up to the configured
// output wait. Capture children flush asynchronously after stop, so a short
// window between stop and a visible file is normal.
func (p *Pipeline) waitForFile(ctx context.Context, path string) error {
	deadline := time.Now().Add(p.outputWait)
	for {
		info, err := os.Stat(path)
		if err == nil && info.Size() > 0 {
			return nil
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("%w: %s", ErrOutputMissing, path)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(200 * time.Millisecond):
		}
	}
}

// writeJoinList writes the ffconcat list, one segment per line in append
// order.
func writeJoinList(path string, segs []*recording.Segment) error {
	var b strings.Builder
	for _, seg := range segs {
		fmt.Fprintf(&b, "file '%s'\n", seg.File)
	}
	if err := os.WriteFile(path, []byte(b.String()), 0o644); err != nil {
		return fmt.Errorf("writing join list: %w", err)
	}
	return nil
}

// auxiliaryFiles lists everything deleted after a successful upload: capture
// segments, camera halves of merged pairs, SDP files, the join list and the
// intermediate concat output.
func auxiliaryFiles(segs []*recording.Segment, joinList, joined string) []string {
	aux := make([]string, 0, len(segs)*3+2)
	for _, seg := range segs {
		aux = append(aux, seg.File)
		if seg.CamFile != "" {
			aux = append(aux, seg.CamFile)
		}
		if seg.SDPFile != "" {
			aux = append(aux, seg.SDPFile)
		}
	}
	return append(aux, joinList, joined)
}
