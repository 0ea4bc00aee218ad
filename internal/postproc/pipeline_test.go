package postproc

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmylchreest/roomrec/internal/config"
	"github.com/jmylchreest/roomrec/internal/encoder"
	"github.com/jmylchreest/roomrec/internal/recording"
	"github.com/jmylchreest/roomrec/internal/storage"
)

// runLauncher executes no processes; it records specs and writes each
// invocation's output file.
type runLauncher struct {
	mu      sync.Mutex
	ran     []encoder.Spec
	failOn  string
	content string
}

func (l *runLauncher) Start(context.Context, encoder.Spec) (recording.Child, error) {
	panic("pipeline never starts capture children")
}

func (l *runLauncher) Run(_ context.Context, spec encoder.Spec) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.ran = append(l.ran, spec)
	if l.failOn != "" && spec.Name == l.failOn {
		return errors.New(spec.Name + " exited 1")
	}
	content := l.content
	if content == "" {
		content = "media"
	}
	_ = os.WriteFile(spec.Output, []byte(content), 0640)
	return nil
}

func (l *runLauncher) specNames() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	names := make([]string, len(l.ran))
	for i, s := range l.ran {
		names[i] = s.Name
	}
	return names
}

type fakeProber struct {
	info encoder.MediaInfo
	err  error
}

func (p *fakeProber) Probe(context.Context, string) (encoder.MediaInfo, error) {
	return p.info, p.err
}

type pipelineFixture struct {
	pipeline *Pipeline
	launcher *runLauncher
	store    *storage.Store
	room     string
	folder   string
}

func newPipelineFixture(t *testing.T) *pipelineFixture {
	t.Helper()
	store, err := storage.NewStore(config.StorageConfig{Root: t.TempDir()}, slog.Default())
	require.NoError(t, err)
	folder, err := store.EnsureRoomDir("1001")
	require.NoError(t, err)

	launcher := &runLauncher{}
	return &pipelineFixture{
		pipeline: NewPipeline(launcher, &fakeProber{info: encoder.MediaInfo{DurationSeconds: 7, SizeBytes: 4096}},
			store, "ffmpeg", time.Second, slog.Default()),
		launcher: launcher,
		store:    store,
		room:     "1001",
		folder:   folder,
	}
}

// addSegment writes a capture file and appends a finalized segment.
func (f *pipelineFixture) addSegment(t *testing.T, file *recording.RecordingFile, name string) *recording.Segment {
	t.Helper()
	path := filepath.Join(f.folder, name)
	require.NoError(t, os.WriteFile(path, []byte("segment"), 0640))
	seg := recording.NewSegment(f.room, "cam1", f.folder, path, time.Now())
	require.NoError(t, seg.Finalize(time.Now()))
	file.Append(seg)
	return seg
}

func TestProcess(t *testing.T) {
	f := newPipelineFixture(t)
	file := recording.NewRecordingFile(f.room, f.folder)
	f.addSegment(t, file, "cam1_100.ts")
	f.addSegment(t, file, "cam1_200.ts")

	res, err := f.pipeline.Process(context.Background(), file, encoder.ProfileSoftware)
	require.NoError(t, err)

	assert.Equal(t, []string{"concat", "transcode", "thumbnail"}, f.launcher.specNames())
	assert.Equal(t, int64(7), res.DurationSeconds)
	assert.Equal(t, int64(4096), res.SizeBytes)
	assert.Equal(t, 2, res.Segments)
	assert.Contains(t, filepath.Base(res.OutputPath), "output_")
	assert.Contains(t, filepath.Base(res.ThumbnailPath), "thumbnail_")

	// The join list names every segment in append order.
	var joinList string
	for _, aux := range res.Auxiliary {
		if strings.Contains(filepath.Base(aux), "join_") {
			joinList = aux
		}
	}
	require.NotEmpty(t, joinList)
	data, err := os.ReadFile(joinList)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], "cam1_100.ts")
	assert.Contains(t, lines[1], "cam1_200.ts")

	// Auxiliary covers segments, join list and the intermediate ts; the
	// final artifacts are not listed for deletion.
	assert.Len(t, res.Auxiliary, 4)
	assert.NotContains(t, res.Auxiliary, res.OutputPath)
	assert.NotContains(t, res.Auxiliary, res.ThumbnailPath)
}

func TestProcessAwaitsMerges(t *testing.T) {
	f := newPipelineFixture(t)
	file := recording.NewRecordingFile(f.room, f.folder)

	screen := filepath.Join(f.folder, "screen_100.ts")
	cam := filepath.Join(f.folder, "cam1_100.ts")
	sdp := filepath.Join(f.folder, "screen_100.sdp")
	for _, p := range []string{screen, cam, sdp} {
		require.NoError(t, os.WriteFile(p, []byte("x"), 0640))
	}
	seg := recording.NewPairedSegment(f.room, f.folder, screen, cam, sdp, time.Now())
	require.NoError(t, seg.Finalize(time.Now()))
	file.Append(seg)

	// Release the merge shortly after Process starts waiting on it.
	go func() {
		time.Sleep(50 * time.Millisecond)
		seg.MarkMerged(nil)
	}()

	res, err := f.pipeline.Process(context.Background(), file, encoder.ProfileSoftware)
	require.NoError(t, err)
	assert.Contains(t, res.Auxiliary, cam)
	assert.Contains(t, res.Auxiliary, sdp)
}

func TestProcessFailures(t *testing.T) {
	t.Run("empty chain", func(t *testing.T) {
		f := newPipelineFixture(t)
		_, err := f.pipeline.Process(context.Background(), recording.NewRecordingFile(f.room, f.folder), encoder.ProfileSoftware)
		assert.ErrorIs(t, err, ErrNoSegments)
	})

	t.Run("missing segment file", func(t *testing.T) {
		f := newPipelineFixture(t)
		f.pipeline.outputWait = 50 * time.Millisecond
		file := recording.NewRecordingFile(f.room, f.folder)
		seg := recording.NewSegment(f.room, "cam1", f.folder, filepath.Join(f.folder, "gone.ts"), time.Now())
		require.NoError(t, seg.Finalize(time.Now()))
		file.Append(seg)

		_, err := f.pipeline.Process(context.Background(), file, encoder.ProfileSoftware)
		assert.ErrorIs(t, err, ErrOutputMissing)
	})

	t.Run("merge failure propagates", func(t *testing.T) {
		f := newPipelineFixture(t)
		file := recording.NewRecordingFile(f.room, f.folder)
		screen := filepath.Join(f.folder, "screen_1.ts")
		cam := filepath.Join(f.folder, "cam1_1.ts")
		require.NoError(t, os.WriteFile(screen, []byte("x"), 0640))
		require.NoError(t, os.WriteFile(cam, []byte("x"), 0640))
		seg := recording.NewPairedSegment(f.room, f.folder, screen, cam, "", time.Now())
		require.NoError(t, seg.Finalize(time.Now()))
		seg.MarkMerged(errors.New("nvenc rejected input"))
		file.Append(seg)

		_, err := f.pipeline.Process(context.Background(), file, encoder.ProfileSoftware)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "nvenc rejected input")
	})

	t.Run("concat failure", func(t *testing.T) {
		f := newPipelineFixture(t)
		f.launcher.failOn = "concat"
		file := recording.NewRecordingFile(f.room, f.folder)
		f.addSegment(t, file, "cam1_1.ts")

		_, err := f.pipeline.Process(context.Background(), file, encoder.ProfileSoftware)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "concatenating")
	})

	t.Run("transcode failure", func(t *testing.T) {
		f := newPipelineFixture(t)
		f.launcher.failOn = "transcode"
		file := recording.NewRecordingFile(f.room, f.folder)
		f.addSegment(t, file, "cam1_1.ts")

		_, err := f.pipeline.Process(context.Background(), file, encoder.ProfileSoftware)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "transcoding")
	})
}
