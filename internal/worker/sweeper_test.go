package worker

import (
	"context"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/geostrike/internal/config"
)

type countingWorld struct {
	evictions int64
	reaps     int64
}

func (w *countingWorld) EvictExpired(ctx context.Context, now time.Time) int {
	atomic.AddInt64(&w.evictions, 1)
	return 2
}

func (w *countingWorld) ReapStaleSessions(ctx context.Context, now time.Time, maxIdle time.Duration) int {
	atomic.AddInt64(&w.reaps, 1)
	return 1
}

type panickyWorld struct {
	calls int64
}

func (w *panickyWorld) EvictExpired(ctx context.Context, now time.Time) int {
	atomic.AddInt64(&w.calls, 1)
	panic("sweep failure")
}

func (w *panickyWorld) ReapStaleSessions(ctx context.Context, now time.Time, maxIdle time.Duration) int {
	return 0
}

type panickyField struct {
	calls int64
}

func (f *panickyField) SpawnDrones(ctx context.Context) {
	atomic.AddInt64(&f.calls, 1)
	panic("spawn failure")
}

type countingField struct {
	rounds int64
}

func (f *countingField) SpawnDrones(ctx context.Context) {
	atomic.AddInt64(&f.rounds, 1)
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func sweepConfig(interval time.Duration) *config.SweepConfig {
	return &config.SweepConfig{Interval: interval, SessionMaxIdle: 10 * time.Minute}
}

func TestSweeperRunOnce(t *testing.T) {
	world := &countingWorld{}
	s := NewSweeper(world, sweepConfig(time.Hour), testLogger())

	s.RunOnce(context.Background())
	s.RunOnce(context.Background())

	assert.Equal(t, int64(2), atomic.LoadInt64(&world.evictions))
	assert.Equal(t, int64(2), atomic.LoadInt64(&world.reaps))
}

func TestSweeperStartStop(t *testing.T) {
	world := &countingWorld{}
	s := NewSweeper(world, sweepConfig(5*time.Millisecond), testLogger())

	require.NoError(t, s.Start(context.Background()))
	assert.True(t, s.IsRunning())

	// Second start is a no-op on an already running sweeper.
	require.NoError(t, s.Start(context.Background()))

	time.Sleep(30 * time.Millisecond)
	require.NoError(t, s.Stop())
	assert.False(t, s.IsRunning())

	cycles := atomic.LoadInt64(&world.evictions)
	assert.Greater(t, cycles, int64(0))

	// No more cycles after Stop returns.
	time.Sleep(15 * time.Millisecond)
	assert.Equal(t, cycles, atomic.LoadInt64(&world.evictions))
}

func TestSweeperSurvivesPanickingCycle(t *testing.T) {
	world := &panickyWorld{}
	s := NewSweeper(world, sweepConfig(5*time.Millisecond), testLogger())

	require.NoError(t, s.Start(context.Background()))
	time.Sleep(30 * time.Millisecond)
	require.NoError(t, s.Stop())

	// Every cycle panicked, yet the loop kept ticking past the first one.
	assert.Greater(t, atomic.LoadInt64(&world.calls), int64(1))
}

func TestSweeperRunOnceContainsPanic(t *testing.T) {
	world := &panickyWorld{}
	s := NewSweeper(world, sweepConfig(time.Hour), testLogger())

	assert.NotPanics(t, func() {
		s.RunOnce(context.Background())
	})
	assert.Equal(t, int64(1), atomic.LoadInt64(&world.calls))
}

func TestSweeperRestarts(t *testing.T) {
	world := &countingWorld{}
	s := NewSweeper(world, sweepConfig(5*time.Millisecond), testLogger())

	require.NoError(t, s.Start(context.Background()))
	time.Sleep(15 * time.Millisecond)
	require.NoError(t, s.Stop())
	first := atomic.LoadInt64(&world.evictions)

	require.NoError(t, s.Start(context.Background()))
	assert.True(t, s.IsRunning())
	time.Sleep(15 * time.Millisecond)
	require.NoError(t, s.Stop())

	assert.Greater(t, atomic.LoadInt64(&world.evictions), first)
}

func TestSweeperStopsOnContextCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	s := NewSweeper(&countingWorld{}, sweepConfig(5*time.Millisecond), testLogger())
	require.NoError(t, s.Start(ctx))

	cancel()
	time.Sleep(15 * time.Millisecond)

	// The loop has exited; Stop must not block on an already done loop.
	done := make(chan struct{})
	go func() {
		s.Stop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Stop blocked after context cancellation")
	}
}

func TestSpawnerTicks(t *testing.T) {
	field := &countingField{}
	s := NewSpawner(field, 5*time.Millisecond, testLogger())

	require.NoError(t, s.Start(context.Background()))
	assert.True(t, s.IsRunning())

	time.Sleep(30 * time.Millisecond)
	require.NoError(t, s.Stop())
	assert.False(t, s.IsRunning())

	assert.Greater(t, atomic.LoadInt64(&field.rounds), int64(0))
}

func TestSpawnerSurvivesPanickingRound(t *testing.T) {
	field := &panickyField{}
	s := NewSpawner(field, 5*time.Millisecond, testLogger())

	require.NoError(t, s.Start(context.Background()))
	time.Sleep(30 * time.Millisecond)
	require.NoError(t, s.Stop())

	assert.Greater(t, atomic.LoadInt64(&field.calls), int64(1))
}

func TestSpawnerRestarts(t *testing.T) {
	field := &countingField{}
	s := NewSpawner(field, 5*time.Millisecond, testLogger())

	require.NoError(t, s.Start(context.Background()))
	time.Sleep(15 * time.Millisecond)
	require.NoError(t, s.Stop())
	first := atomic.LoadInt64(&field.rounds)

	require.NoError(t, s.Start(context.Background()))
	time.Sleep(15 * time.Millisecond)
	require.NoError(t, s.Stop())

	assert.Greater(t, atomic.LoadInt64(&field.rounds), first)
}

func TestSpawnerStopBeforeFirstTick(t *testing.T) {
	field := &countingField{}
	s := NewSpawner(field, time.Hour, testLogger())

	require.NoError(t, s.Start(context.Background()))
	require.NoError(t, s.Stop())

	assert.Equal(t, int64(0), atomic.LoadInt64(&field.rounds))
}
