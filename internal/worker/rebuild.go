package worker

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/rampline/progression/internal/config"
	"github.com/rampline/progression/internal/postgres"
	"github.com/rampline/progression/internal/redis"
)

// RebuildWorker periodically reloads the Redis XP board from PostgreSQL.
// Postgres is the source of truth for xp totals; the board is a derived
// view, so the rebuild repairs drift and restores the board after a Redis
// restart.
type RebuildWorker struct {
	board    *redis.Board
	postgres *postgres.Repository
	config   *config.RebuildConfig
	logger   *slog.Logger
	stopCh   chan struct{}
	doneCh   chan struct{}
	mu       sync.Mutex
	running  bool
}

// NewRebuildWorker creates a new rebuild worker
func NewRebuildWorker(
	board *redis.Board,
	postgres *postgres.Repository,
	cfg *config.RebuildConfig,
	logger *slog.Logger,
) *RebuildWorker {
	return &RebuildWorker{
		board:    board,
		postgres: postgres,
		config:   cfg,
		logger:   logger,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
}

// Start begins the background rebuild process
func (w *RebuildWorker) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return nil
	}
	w.running = true
	w.mu.Unlock()

	w.logger.Info("rebuild worker started", "interval", w.config.Interval)

	go w.run(ctx)
	return nil
}

// Stop stops the background rebuild process
func (w *RebuildWorker) Stop() error {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return nil
	}
	w.mu.Unlock()

	close(w.stopCh)
	<-w.doneCh

	w.mu.Lock()
	w.running = false
	w.mu.Unlock()

	w.logger.Info("rebuild worker stopped")
	return nil
}

// run is the main worker loop
func (w *RebuildWorker) run(ctx context.Context) {
	defer close(w.doneCh)

	ticker := time.NewTicker(w.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopCh:
			return
		case <-ticker.C:
			if err := w.Rebuild(ctx); err != nil {
				w.logger.Error("rebuild cycle failed", "error", err)
			}
		}
	}
}

// Rebuild reloads every skater's XP total from PostgreSQL onto the board
func (w *RebuildWorker) Rebuild(ctx context.Context) error {
	w.logger.Info("starting leaderboard rebuild")
	startTime := time.Now()

	totals, err := w.postgres.AllSkaterXP(ctx)
	if err != nil {
		return err
	}

	if len(totals) == 0 {
		w.logger.Debug("no xp totals to load")
		return nil
	}

	// Write in batches to avoid one oversized pipeline
	batchSize := w.config.BatchSize
	if batchSize == 0 {
		batchSize = 1000
	}

	batch := make(map[string]int64, batchSize)
	for skaterID, xp := range totals {
		batch[skaterID] = xp

		if len(batch) >= batchSize {
			if err := w.board.BatchSetXP(ctx, batch); err != nil {
				return err
			}
			batch = make(map[string]int64, batchSize)
		}
	}

	// Write remaining batch
	if len(batch) > 0 {
		if err := w.board.BatchSetXP(ctx, batch); err != nil {
			return err
		}
	}

	w.logger.Info("leaderboard rebuild completed",
		"duration", time.Since(startTime),
		"skater_count", len(totals),
	)
	return nil
}

// IsRunning returns whether the worker is currently running
func (w *RebuildWorker) IsRunning() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.running
}

// RunOnce runs a single rebuild cycle (useful for manual triggers)
func (w *RebuildWorker) RunOnce(ctx context.Context) error {
	return w.Rebuild(ctx)
}
