// Package scheduler runs roomrec's background retention sweep: aged
// recording artifacts are removed from disk on a cron schedule and their
// catalog rows marked reaped.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/jmylchreest/roomrec/internal/config"
	"github.com/jmylchreest/roomrec/internal/repository"
	"github.com/jmylchreest/roomrec/internal/storage"
	"github.com/jmylchreest/roomrec/pkg/format"
)

// Sweeper periodically deletes finished recordings older than the retention
// age. Only the catalog decides what is reaped; files outside the store root
// are never touched.
type Sweeper struct {
	mu sync.RWMutex

	repo   repository.RecordingRepository
	store  *storage.Store
	logger *slog.Logger

	// parser accepts the 6-field cron form used in the config file.
	parser cron.Parser

	cronExpr string
	maxAge   time.Duration

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	syncInterval time.Duration
	lastSweep    time.Time
}

// NewSweeper creates a retention sweeper from the retention config section.
func NewSweeper(cfg config.RetentionConfig, repo repository.RecordingRepository, store *storage.Store) *Sweeper {
	return &Sweeper{
		repo:         repo,
		store:        store,
		logger:       slog.Default(),
		parser:       cron.NewParser(cron.Second | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow),
		cronExpr:     cfg.Cron,
		maxAge:       time.Duration(cfg.MaxAge),
		syncInterval: time.Minute,
	}
}

// WithLogger sets a custom logger.
func (s *Sweeper) WithLogger(logger *slog.Logger) *Sweeper {
	s.logger = logger
	return s
}

// WithSyncInterval overrides how often the schedule is checked.
func (s *Sweeper) WithSyncInterval(interval time.Duration) *Sweeper {
	if interval > 0 {
		s.syncInterval = interval
	}
	return s
}

// Start begins the sweeper's background loop. The cron expression is
// validated up front so a bad config fails at boot rather than silently
// never sweeping.
func (s *Sweeper) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ctx != nil {
		return fmt.Errorf("sweeper already started")
	}
	if _, err := s.parser.Parse(s.cronExpr); err != nil {
		return fmt.Errorf("parsing retention cron %q: %w", s.cronExpr, err)
	}
	if s.maxAge <= 0 {
		return fmt.Errorf("retention max_age must be positive")
	}

	s.ctx, s.cancel = context.WithCancel(ctx)

	s.wg.Add(1)
	go s.syncLoop()

	s.logger.Info("retention sweeper started",
		slog.String("cron", s.cronExpr),
		slog.String("schedule", format.CronDescription(s.cronExpr)),
		slog.Duration("max_age", s.maxAge))
	return nil
}

// Stop stops the sweeper and waits for an in-flight sweep to finish.
func (s *Sweeper) Stop() {
	s.mu.Lock()
	if s.cancel != nil {
		s.cancel()
	}
	s.mu.Unlock()

	s.wg.Wait()

	s.mu.Lock()
	s.ctx = nil
	s.cancel = nil
	s.mu.Unlock()

	s.logger.Info("retention sweeper stopped")
}

// syncLoop wakes every sync interval and sweeps when the schedule is due.
func (s *Sweeper) syncLoop() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.syncInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			if s.isDue() {
				s.Sweep(s.ctx)
			}
		}
	}
}

// isDue reports whether the cron schedule fired within the last sync
// interval and no sweep has run for it yet.
func (s *Sweeper) isDue() bool {
	schedule, err := s.parser.Parse(s.cronExpr)
	if err != nil {
		return false
	}

	now := time.Now()
	next := schedule.Next(now.Add(-s.syncInterval))
	if next.After(now) {
		return false
	}

	s.mu.RLock()
	swept := !s.lastSweep.Before(next)
	s.mu.RUnlock()
	return !swept
}

// Sweep removes artifacts of finished recordings older than the retention
// age and marks their rows reaped. It is safe to call directly, e.g. from an
// admin command.
func (s *Sweeper) Sweep(ctx context.Context) {
	s.mu.Lock()
	s.lastSweep = time.Now()
	s.mu.Unlock()

	cutoff := time.Now().Add(-s.maxAge)
	rows, err := s.repo.GetFinishedBefore(ctx, cutoff)
	if err != nil {
		s.logger.Error("listing recordings for retention sweep",
			slog.Any("error", err))
		return
	}
	if len(rows) == 0 {
		return
	}

	reaped := 0
	for _, rec := range rows {
		var paths []string
		if rec.OutputPath != "" {
			paths = append(paths, rec.OutputPath)
		}
		if rec.ThumbnailPath != "" {
			paths = append(paths, rec.ThumbnailPath)
		}
		if err := s.store.RemoveAll(paths); err != nil {
			s.logger.Warn("removing aged artifacts",
				slog.String("room", rec.Room),
				slog.String("output", rec.OutputPath),
				slog.Any("error", err))
			continue
		}
		if err := s.repo.MarkReaped(ctx, rec.ID); err != nil {
			s.logger.Error("marking recording reaped",
				slog.String("room", rec.Room),
				slog.Any("error", err))
			continue
		}
		reaped++
	}

	s.logger.Info("retention sweep finished",
		slog.Int("eligible", len(rows)),
		slog.Int("reaped", reaped),
		slog.Time("cutoff", cutoff))
}
