package worker

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// DroneField is the game surface the spawner drives.
type DroneField interface {
	SpawnDrones(ctx context.Context)
}

// Spawner periodically offers each connected player a new drone.
type Spawner struct {
	field    DroneField
	interval time.Duration
	logger   *slog.Logger
	stopCh   chan struct{}
	doneCh   chan struct{}
	mu       sync.Mutex
	running  bool
}

// NewSpawner creates a stopped spawner ticking at the given interval.
func NewSpawner(field DroneField, interval time.Duration, logger *slog.Logger) *Spawner {
	return &Spawner{
		field:    field,
		interval: interval,
		logger:   logger,
	}
}

// Start begins the background spawn loop. A stopped spawner can be started
// again; each start gets fresh lifecycle channels.
func (w *Spawner) Start(ctx context.Context) error {
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

	w.logger.Info("drone spawner started", "interval", w.interval)

	go w.run(ctx, stopCh, doneCh)
	return nil
}

// Stop halts the loop and waits for the in-flight round to finish.
func (w *Spawner) Stop() error {
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

	w.logger.Info("drone spawner stopped")
	return nil
}

func (w *Spawner) run(ctx context.Context, stopCh <-chan struct{}, doneCh chan struct{}) {
	defer close(doneCh)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-stopCh:
			return
		case <-ticker.C:
			w.round(ctx)
		}
	}
}

// round runs one spawn pass, containing panics so a bad pass never kills
// the loop.
func (w *Spawner) round(ctx context.Context) {
	defer func() {
		if rec := recover(); rec != nil {
			w.logger.Error("panic in spawn round", "panic", rec)
		}
	}()
	w.field.SpawnDrones(ctx)
}

// IsRunning reports whether the loop is active.
func (w *Spawner) IsRunning() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.running
}
