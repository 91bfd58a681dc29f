package entity

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/geostrike/internal/config"
	"github.com/geostrike/internal/domain"
)

type fakeStore struct {
	mu        sync.Mutex
	inserted  map[string]domain.EphemeralEntity
	deleted   []string
	insertErr error
	deleteErr error
}

func newFakeStore() *fakeStore {
	return &fakeStore{inserted: make(map[string]domain.EphemeralEntity)}
}

func (s *fakeStore) InsertEntity(ctx context.Context, e *domain.EphemeralEntity) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.insertErr != nil {
		return s.insertErr
	}
	s.inserted[e.EntityID] = *e
	return nil
}

func (s *fakeStore) DeleteEntity(ctx context.Context, entityID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.deleteErr != nil {
		return s.deleteErr
	}
	s.deleted = append(s.deleted, entityID)
	return nil
}

func (s *fakeStore) deletedCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.deleted)
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func droneConfig() config.DroneConfig {
	return config.DroneConfig{
		MaxPerPlayer:  5,
		TTL:           60 * time.Second,
		MinSeparation: 0.5,
		RetryBudget:   10,
		MinX:          -3, MaxX: 3,
		MinY: 0, MaxY: 3,
		MinZ: -2, MaxZ: -1,
	}
}

func pickupConfig() config.GeoObjectConfig {
	return config.GeoObjectConfig{
		MinRadius: 10,
		MaxRadius: 100,
		TTL:       time.Hour,
	}
}

func pickupRewards() map[string]int64 {
	return map[string]int64{
		domain.PickupWeapon:  5,
		domain.PickupTarget:  10,
		domain.PickupPowerup: 1,
	}
}

func TestSpawnDroneWithinBounds(t *testing.T) {
	m := NewDroneManager(droneConfig(), 2, newFakeStore(), testLogger())

	drone, err := m.SpawnDrone(context.Background(), "alice")
	require.NoError(t, err)

	assert.NotEmpty(t, drone.EntityID)
	assert.Equal(t, domain.KindDrone, drone.Kind)
	assert.Equal(t, "alice", drone.OwnerPlayerID)
	assert.Equal(t, int64(2), drone.Reward)

	assert.GreaterOrEqual(t, drone.Position.X, -3.0)
	assert.LessOrEqual(t, drone.Position.X, 3.0)
	assert.GreaterOrEqual(t, drone.Position.Y, 0.0)
	assert.LessOrEqual(t, drone.Position.Y, 3.0)
	assert.GreaterOrEqual(t, drone.Position.Z, -2.0)
	assert.LessOrEqual(t, drone.Position.Z, -1.0)
}

func TestSpawnDroneRefusedAtCap(t *testing.T) {
	cfg := droneConfig()
	cfg.MaxPerPlayer = 2
	m := NewDroneManager(cfg, 2, newFakeStore(), testLogger())
	ctx := context.Background()

	_, err := m.SpawnDrone(ctx, "alice")
	require.NoError(t, err)
	_, err = m.SpawnDrone(ctx, "alice")
	require.NoError(t, err)

	_, err = m.SpawnDrone(ctx, "alice")
	assert.ErrorIs(t, err, domain.ErrSpawnRefused)

	// The cap is per owner, not global.
	_, err = m.SpawnDrone(ctx, "bob")
	assert.NoError(t, err)
}

func TestSpawnDroneExhaustsRetryBudget(t *testing.T) {
	// A degenerate box forces every candidate onto the same point, so the
	// second spawn can never satisfy the separation requirement.
	cfg := droneConfig()
	cfg.MinX, cfg.MaxX = 1, 1
	cfg.MinY, cfg.MaxY = 1, 1
	cfg.MinZ, cfg.MaxZ = -1, -1
	cfg.RetryBudget = 3
	m := NewDroneManager(cfg, 2, newFakeStore(), testLogger())
	ctx := context.Background()

	_, err := m.SpawnDrone(ctx, "alice")
	require.NoError(t, err)

	_, err = m.SpawnDrone(ctx, "alice")
	assert.ErrorIs(t, err, domain.ErrSpawnExhausted)
	assert.Equal(t, 1, m.Count("alice"))
}

func TestSpawnDroneRollsBackOnStoreFailure(t *testing.T) {
	store := newFakeStore()
	store.insertErr = errors.New("db down")
	m := NewDroneManager(droneConfig(), 2, store, testLogger())

	_, err := m.SpawnDrone(context.Background(), "alice")
	require.Error(t, err)
	assert.Equal(t, 0, m.Count("alice"))
}

func TestClaimAcceptsExactlyOnce(t *testing.T) {
	m := NewDroneManager(droneConfig(), 2, newFakeStore(), testLogger())
	drone, err := m.SpawnDrone(context.Background(), "alice")
	require.NoError(t, err)

	const claimants = 32
	var accepted, rejected int64
	var mu sync.Mutex
	var wg sync.WaitGroup
	start := make(chan struct{})

	for i := 0; i < claimants; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			claimed, err := m.Claim(context.Background(), drone.EntityID, "alice")
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				accepted++
				assert.Equal(t, int64(2), claimed.Reward)
			} else {
				rejected++
				assert.ErrorIs(t, err, domain.ErrEntityNotFound)
			}
		}()
	}
	close(start)
	wg.Wait()

	assert.Equal(t, int64(1), accepted)
	assert.Equal(t, int64(claimants-1), rejected)
	_, live := m.Get(drone.EntityID)
	assert.False(t, live)
}

func TestClaimRejectsWrongOwner(t *testing.T) {
	m := NewDroneManager(droneConfig(), 2, newFakeStore(), testLogger())
	drone, err := m.SpawnDrone(context.Background(), "alice")
	require.NoError(t, err)

	_, err = m.Claim(context.Background(), drone.EntityID, "bob")
	assert.ErrorIs(t, err, domain.ErrNotEntityOwner)

	// Still claimable by its owner.
	claimed, err := m.Claim(context.Background(), drone.EntityID, "alice")
	require.NoError(t, err)
	assert.Equal(t, int64(2), claimed.Reward)
}

func TestClaimCommitsDespiteStoreFailure(t *testing.T) {
	store := newFakeStore()
	m := NewDroneManager(droneConfig(), 2, store, testLogger())
	drone, err := m.SpawnDrone(context.Background(), "alice")
	require.NoError(t, err)

	store.mu.Lock()
	store.deleteErr = errors.New("db down")
	store.mu.Unlock()

	claimed, err := m.Claim(context.Background(), drone.EntityID, "alice")
	require.NoError(t, err)
	assert.Equal(t, int64(2), claimed.Reward)

	// The entity never comes back, even though the durable delete failed.
	_, err = m.Claim(context.Background(), drone.EntityID, "alice")
	assert.ErrorIs(t, err, domain.ErrEntityNotFound)
}

func TestPickupSingleOutstanding(t *testing.T) {
	m := NewPickupManager(pickupConfig(), pickupRewards(), newFakeStore(), testLogger())
	ctx := context.Background()
	origin := domain.Location{Latitude: 40.7128, Longitude: -74.0060}

	first, err := m.SpawnPickup(ctx, "alice", origin)
	require.NoError(t, err)

	_, err = m.SpawnPickup(ctx, "alice", origin)
	assert.ErrorIs(t, err, domain.ErrSpawnRefused)

	_, err = m.Claim(ctx, first.EntityID, "alice")
	require.NoError(t, err)

	_, err = m.SpawnPickup(ctx, "alice", origin)
	assert.NoError(t, err)
}

func TestPickupOffsetWithinRadiusBand(t *testing.T) {
	m := NewPickupManager(pickupConfig(), pickupRewards(), newFakeStore(), testLogger())
	origin := domain.Location{Latitude: 40.7128, Longitude: -74.0060}

	for i := 0; i < 50; i++ {
		pickup, err := m.SpawnPickup(context.Background(), "alice", origin)
		require.NoError(t, err)
		require.NotNil(t, pickup.Coordinate)

		dLat := (pickup.Coordinate.Latitude - origin.Latitude) * 111320
		dLon := (pickup.Coordinate.Longitude - origin.Longitude) *
			111320 * math.Cos(origin.Latitude*math.Pi/180)
		dist := math.Sqrt(dLat*dLat + dLon*dLon)

		assert.InDelta(t, 55, dist, 45.5, "spawn %d at distance %.2f", i, dist)
		assert.Contains(t, pickupRewards(), pickup.Subtype)
		assert.Equal(t, pickupRewards()[pickup.Subtype], pickup.Reward)

		_, err = m.Claim(context.Background(), pickup.EntityID, "alice")
		require.NoError(t, err)
	}
}

func TestRemoveOwnerDisposesAll(t *testing.T) {
	store := newFakeStore()
	m := NewDroneManager(droneConfig(), 2, store, testLogger())
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := m.SpawnDrone(ctx, "alice")
		require.NoError(t, err)
	}
	_, err := m.SpawnDrone(ctx, "bob")
	require.NoError(t, err)

	assert.Equal(t, 3, m.RemoveOwner(ctx, "alice"))
	assert.Equal(t, 0, m.Count("alice"))
	assert.Equal(t, 1, m.Count("bob"))
	assert.Equal(t, 3, store.deletedCount())

	assert.Equal(t, 0, m.RemoveOwner(ctx, "alice"))
}

func TestEvictExpired(t *testing.T) {
	store := newFakeStore()
	m := NewDroneManager(droneConfig(), 2, store, testLogger())
	ctx := context.Background()

	drone, err := m.SpawnDrone(ctx, "alice")
	require.NoError(t, err)

	assert.Equal(t, 0, m.EvictExpired(ctx, time.Now()))

	cutoff := time.Now().Add(61 * time.Second)
	assert.Equal(t, 1, m.EvictExpired(ctx, cutoff))
	assert.Equal(t, 1, store.deletedCount())

	_, err = m.Claim(ctx, drone.EntityID, "alice")
	assert.ErrorIs(t, err, domain.ErrEntityNotFound)
}
