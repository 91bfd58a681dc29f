// Package worker runs the background loops: the sweep cycle that reclaims
// expired entities and stale sessions, and the drone spawn cycle.
package worker

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/geostrike/internal/config"
)

// World is the game surface the sweeper drives.
type World interface {
	EvictExpired(ctx context.Context, now time.Time) int
	ReapStaleSessions(ctx context.Context, now time.Time, maxIdle time.Duration) int
}

// Sweeper periodically reclaims expired ephemeral entities and idle sessions.
type Sweeper struct {
	world   World
	config  *config.SweepConfig
	logger  *slog.Logger
	stopCh  chan struct{}
	doneCh  chan struct{}
	mu      sync.Mutex
	running bool
}

// NewSweeper creates a stopped sweeper.
func NewSweeper(world World, cfg *config.SweepConfig, logger *slog.Logger) *Sweeper {
	return &Sweeper{
		world:  world,
		config: cfg,
		logger: logger,
	}
}

// Start begins the background sweep loop. A stopped sweeper can be started
// again; each start gets fresh lifecycle channels.
func (w *Sweeper) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return nil
	}
	w.stopCh = make(chan struct{})
	w.doneCh = make(chan struct{})
	stopCh, doneCh := w.stopCh, w.doneCh
	w.running = true
	w.mu.Unlock()

	w.logger.Info("sweeper started",
		"interval", w.config.Interval,
		"session_max_idle", w.config.SessionMaxIdle,
	)

	go w.run(ctx, stopCh, doneCh)
	return nil
}

// Stop halts the loop and waits for the in-flight cycle to finish.
func (w *Sweeper) Stop() error {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return nil
	}
	stopCh, doneCh := w.stopCh, w.doneCh
	w.mu.Unlock()

	close(stopCh)
	<-doneCh

	w.mu.Lock()
	w.running = false
	w.mu.Unlock()

	w.logger.Info("sweeper stopped")
	return nil
}

func (w *Sweeper) run(ctx context.Context, stopCh <-chan struct{}, doneCh chan struct{}) {
	defer close(doneCh)

	ticker := time.NewTicker(w.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-stopCh:
			return
		case <-ticker.C:
			w.sweep(ctx)
		}
	}
}

// sweep runs one cycle. Cycles never overlap: the next tick only fires after
// this one returns to the select. A failing cycle, panics included, is logged
// and the loop carries on at the next tick.
func (w *Sweeper) sweep(ctx context.Context) {
	defer func() {
		if rec := recover(); rec != nil {
			w.logger.Error("panic in sweep cycle", "panic", rec)
		}
	}()

	start := time.Now()

	evicted := w.world.EvictExpired(ctx, start)
	reaped := w.world.ReapStaleSessions(ctx, start, w.config.SessionMaxIdle)

	if evicted > 0 || reaped > 0 {
		w.logger.Info("sweep cycle completed",
			"duration", time.Since(start),
			"entities_evicted", evicted,
			"sessions_reaped", reaped,
		)
	}
}

// IsRunning reports whether the loop is active.
func (w *Sweeper) IsRunning() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.running
}

// RunOnce runs a single sweep cycle outside the ticker.
func (w *Sweeper) RunOnce(ctx context.Context) {
	w.sweep(ctx)
}
