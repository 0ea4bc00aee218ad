package scheduler

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmylchreest/roomrec/internal/config"
	"github.com/jmylchreest/roomrec/internal/models"
	"github.com/jmylchreest/roomrec/internal/storage"
)

type sweepRepo struct {
	mu     sync.Mutex
	rows   []*models.Recording
	reaped []models.ULID
	err    error
}

func (r *sweepRepo) Create(context.Context, *models.Recording) error { return nil }
func (r *sweepRepo) GetByID(context.Context, models.ULID) (*models.Recording, error) {
	return nil, errors.New("not implemented")
}
func (r *sweepRepo) GetRecent(context.Context, int) ([]*models.Recording, error) { return nil, nil }
func (r *sweepRepo) GetByRoom(context.Context, string) ([]*models.Recording, error) {
	return nil, nil
}
func (r *sweepRepo) GetFinishedBefore(context.Context, time.Time) ([]*models.Recording, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rows, r.err
}
func (r *sweepRepo) Update(context.Context, *models.Recording) error { return nil }
func (r *sweepRepo) MarkReaped(_ context.Context, id models.ULID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.reaped = append(r.reaped, id)
	return nil
}
func (r *sweepRepo) Delete(context.Context, models.ULID) error { return nil }

func (r *sweepRepo) reapedCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.reaped)
}

type sweeperFixture struct {
	sweeper *Sweeper
	repo    *sweepRepo
	store   *storage.Store
	folder  string
}

func newSweeperFixture(t *testing.T, cfg config.RetentionConfig) *sweeperFixture {
	t.Helper()

	store, err := storage.NewStore(config.StorageConfig{Root: t.TempDir()}, slog.Default())
	require.NoError(t, err)
	folder, err := store.EnsureRoomDir("1001")
	require.NoError(t, err)

	repo := &sweepRepo{}
	return &sweeperFixture{
		sweeper: NewSweeper(cfg, repo, store),
		repo:    repo,
		store:   store,
		folder:  folder,
	}
}

// addAgedRow writes artifact files and a catalog row pointing at them.
func (f *sweeperFixture) addAgedRow(t *testing.T, name string) (*models.Recording, string, string) {
	t.Helper()
	output := filepath.Join(f.folder, name+".mp4")
	thumb := filepath.Join(f.folder, name+".png")
	require.NoError(t, os.WriteFile(output, []byte("mp4"), 0640))
	require.NoError(t, os.WriteFile(thumb, []byte("png"), 0640))

	rec := &models.Recording{
		Room:          "1001",
		State:         models.RecordingStateFinished,
		OutputPath:    output,
		ThumbnailPath: thumb,
	}
	rec.ID = models.NewULID()
	f.repo.rows = append(f.repo.rows, rec)
	return rec, output, thumb
}

func retentionConfig() config.RetentionConfig {
	return config.RetentionConfig{
		Enabled: true,
		Cron:    "0 0 3 * * *",
		MaxAge:  config.Duration(30 * 24 * time.Hour),
	}
}

func TestSweepRemovesAgedArtifacts(t *testing.T) {
	f := newSweeperFixture(t, retentionConfig())
	rec, output, thumb := f.addAgedRow(t, "output_100")

	f.sweeper.Sweep(context.Background())

	assert.NoFileExists(t, output)
	assert.NoFileExists(t, thumb)
	require.Len(t, f.repo.reaped, 1)
	assert.Equal(t, rec.ID, f.repo.reaped[0])
}

func TestSweepSkipsRowsOutsideRoot(t *testing.T) {
	f := newSweeperFixture(t, retentionConfig())

	outside := filepath.Join(t.TempDir(), "elsewhere.mp4")
	require.NoError(t, os.WriteFile(outside, []byte("mp4"), 0640))
	rec := &models.Recording{Room: "1001", State: models.RecordingStateFinished, OutputPath: outside}
	rec.ID = models.NewULID()
	f.repo.rows = append(f.repo.rows, rec)

	f.sweeper.Sweep(context.Background())

	assert.FileExists(t, outside, "files outside the store root are never deleted")
	assert.Empty(t, f.repo.reaped)
}

func TestSweepToleratesRepoError(t *testing.T) {
	f := newSweeperFixture(t, retentionConfig())
	f.repo.err = errors.New("db gone")

	f.sweeper.Sweep(context.Background())
	assert.Empty(t, f.repo.reaped)
}

func TestStartValidatesConfig(t *testing.T) {
	t.Run("bad cron", func(t *testing.T) {
		cfg := retentionConfig()
		cfg.Cron = "not a schedule"
		f := newSweeperFixture(t, cfg)
		require.Error(t, f.sweeper.Start(context.Background()))
	})

	t.Run("zero max age", func(t *testing.T) {
		cfg := retentionConfig()
		cfg.MaxAge = 0
		f := newSweeperFixture(t, cfg)
		require.Error(t, f.sweeper.Start(context.Background()))
	})

	t.Run("double start", func(t *testing.T) {
		f := newSweeperFixture(t, retentionConfig())
		require.NoError(t, f.sweeper.Start(context.Background()))
		defer f.sweeper.Stop()
		require.Error(t, f.sweeper.Start(context.Background()))
	})
}

func TestSweeperRunsOnSchedule(t *testing.T) {
	cfg := retentionConfig()
	cfg.Cron = "* * * * * *" // every second
	f := newSweeperFixture(t, cfg)
	f.addAgedRow(t, "output_100")
	f.sweeper.WithSyncInterval(20 * time.Millisecond)

	require.NoError(t, f.sweeper.Start(context.Background()))
	defer f.sweeper.Stop()

	assert.Eventually(t, func() bool {
		return f.repo.reapedCount() == 1
	}, 3*time.Second, 20*time.Millisecond)
}
