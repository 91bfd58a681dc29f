// Package entity implements spawning, tracking and single-claim arbitration
// of short-lived collectible world objects.
package entity

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/geostrike/internal/config"
	"github.com/geostrike/internal/domain"
)

// metersPerDegree approximates one degree of latitude.
const metersPerDegree = 111320.0

// Store is the durable-store surface the manager needs. Claims delete the
// persisted row; spawns insert it.
type Store interface {
	InsertEntity(ctx context.Context, e *domain.EphemeralEntity) error
	DeleteEntity(ctx context.Context, entityID string) error
}

// Manager owns the live set for one entity kind. The entity map and the
// per-owner index are only touched under mu; the accept decision of a claim
// and the removal from the live set are a single locked step, so at most one
// claim per entity can ever succeed.
type Manager struct {
	kind        domain.EntityKind
	maxPerOwner int
	ttl         time.Duration

	drones  config.DroneConfig
	pickups config.GeoObjectConfig

	droneReward   int64
	pickupRewards map[string]int64

	store  Store
	logger *slog.Logger
	rng    *rand.Rand

	mu       sync.Mutex
	entities map[string]*domain.EphemeralEntity
	byOwner  map[string]map[string]struct{}
}

// NewDroneManager creates the manager for aerial drones.
func NewDroneManager(cfg config.DroneConfig, reward int64, store Store, logger *slog.Logger) *Manager {
	return &Manager{
		kind:        domain.KindDrone,
		maxPerOwner: cfg.MaxPerPlayer,
		ttl:         cfg.TTL,
		drones:      cfg,
		droneReward: reward,
		store:       store,
		logger:      logger,
		rng:         rand.New(rand.NewSource(time.Now().UnixNano())),
		entities:    make(map[string]*domain.EphemeralEntity),
		byOwner:     make(map[string]map[string]struct{}),
	}
}

// NewPickupManager creates the manager for geo-anchored pickups. Each player
// holds at most one outstanding pickup.
func NewPickupManager(cfg config.GeoObjectConfig, rewards map[string]int64, store Store, logger *slog.Logger) *Manager {
	return &Manager{
		kind:          domain.KindGeoPickup,
		maxPerOwner:   1,
		ttl:           cfg.TTL,
		pickups:       cfg,
		pickupRewards: rewards,
		store:         store,
		logger:        logger,
		rng:           rand.New(rand.NewSource(time.Now().UnixNano())),
		entities:      make(map[string]*domain.EphemeralEntity),
		byOwner:       make(map[string]map[string]struct{}),
	}
}

// Kind returns the entity kind this manager owns.
func (m *Manager) Kind() domain.EntityKind {
	return m.kind
}

// Count returns the number of live entities held by owner.
func (m *Manager) Count(ownerID string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.byOwner[ownerID])
}

// SpawnDrone spawns a drone for owner, refusing when the owner is at the
// per-player cap. The position is rejection-sampled inside the configured
// bounding box: candidates closer than the minimum separation to the owner's
// other live drones are regenerated, and exhausting the retry budget fails
// the spawn attempt outright.
func (m *Manager) SpawnDrone(ctx context.Context, ownerID string) (*domain.EphemeralEntity, error) {
	m.mu.Lock()
	if len(m.byOwner[ownerID]) >= m.maxPerOwner {
		m.mu.Unlock()
		return nil, domain.ErrSpawnRefused
	}

	pos, ok := m.samplePositionLocked(ownerID)
	if !ok {
		m.mu.Unlock()
		return nil, domain.ErrSpawnExhausted
	}

	e := &domain.EphemeralEntity{
		EntityID:      uuid.New().String(),
		Kind:          domain.KindDrone,
		OwnerPlayerID: ownerID,
		Position:      pos,
		Reward:        m.droneReward,
		SpawnedAt:     time.Now(),
	}
	m.insertLocked(e)
	m.mu.Unlock()

	if err := m.store.InsertEntity(ctx, e); err != nil {
		m.removeEntity(e.EntityID)
		return nil, fmt.Errorf("persisting drone: %w", err)
	}
	return e, nil
}

// samplePositionLocked generates a drone position, regenerating on each
// rejection up to the retry budget.
func (m *Manager) samplePositionLocked(ownerID string) (domain.DronePosition, bool) {
	budget := m.drones.RetryBudget
	for attempt := 0; attempt < budget; attempt++ {
		pos := domain.DronePosition{
			X: m.randFloat(m.drones.MinX, m.drones.MaxX),
			Y: m.randFloat(m.drones.MinY, m.drones.MaxY),
			Z: m.randFloat(m.drones.MinZ, m.drones.MaxZ),
		}
		if !m.tooCloseLocked(ownerID, pos) {
			return pos, true
		}
	}
	return domain.DronePosition{}, false
}

// tooCloseLocked checks the candidate against the owner's other live drones.
func (m *Manager) tooCloseLocked(ownerID string, pos domain.DronePosition) bool {
	for id := range m.byOwner[ownerID] {
		other := m.entities[id]
		dx := pos.X - other.Position.X
		dy := pos.Y - other.Position.Y
		dz := pos.Z - other.Position.Z
		if math.Sqrt(dx*dx+dy*dy+dz*dz) < m.drones.MinSeparation {
			return true
		}
	}
	return false
}

// SpawnPickup spawns a geo pickup offset from the owner's coordinate by a
// random bearing and a distance inside the configured radius band. Refused
// while the owner already has an outstanding pickup.
func (m *Manager) SpawnPickup(ctx context.Context, ownerID string, origin domain.Location) (*domain.EphemeralEntity, error) {
	m.mu.Lock()
	if len(m.byOwner[ownerID]) >= m.maxPerOwner {
		m.mu.Unlock()
		return nil, domain.ErrSpawnRefused
	}

	subtype := m.randomSubtypeLocked()
	coord := m.offsetLocked(origin)
	e := &domain.EphemeralEntity{
		EntityID:      uuid.New().String(),
		Kind:          domain.KindGeoPickup,
		OwnerPlayerID: ownerID,
		Coordinate:    &coord,
		Subtype:       subtype,
		Reward:        m.pickupRewards[subtype],
		SpawnedAt:     time.Now(),
	}
	m.insertLocked(e)
	m.mu.Unlock()

	if err := m.store.InsertEntity(ctx, e); err != nil {
		m.removeEntity(e.EntityID)
		return nil, fmt.Errorf("persisting pickup: %w", err)
	}
	return e, nil
}

func (m *Manager) randomSubtypeLocked() string {
	subtypes := []string{domain.PickupWeapon, domain.PickupTarget, domain.PickupPowerup}
	return subtypes[m.rng.Intn(len(subtypes))]
}

// offsetLocked places a coordinate a random distance (in meters, inside the
// configured band) and bearing away from origin.
func (m *Manager) offsetLocked(origin domain.Location) domain.Location {
	distance := m.randFloat(m.pickups.MinRadius, m.pickups.MaxRadius)
	bearing := m.rng.Float64() * 2 * math.Pi

	latOffset := distance * math.Cos(bearing) / metersPerDegree
	lonScale := metersPerDegree * math.Cos(origin.Latitude*math.Pi/180)
	if lonScale == 0 {
		lonScale = metersPerDegree
	}
	lonOffset := distance * math.Sin(bearing) / lonScale

	return domain.Location{
		Latitude:  origin.Latitude + latOffset,
		Longitude: origin.Longitude + lonOffset,
		Altitude:  origin.Altitude,
	}
}

func (m *Manager) randFloat(min, max float64) float64 {
	return min + m.rng.Float64()*(max-min)
}

func (m *Manager) insertLocked(e *domain.EphemeralEntity) {
	m.entities[e.EntityID] = e
	owned, ok := m.byOwner[e.OwnerPlayerID]
	if !ok {
		owned = make(map[string]struct{})
		m.byOwner[e.OwnerPlayerID] = owned
	}
	owned[e.EntityID] = struct{}{}
}

func (m *Manager) deleteLocked(e *domain.EphemeralEntity) {
	delete(m.entities, e.EntityID)
	if owned, ok := m.byOwner[e.OwnerPlayerID]; ok {
		delete(owned, e.EntityID)
		if len(owned) == 0 {
			delete(m.byOwner, e.OwnerPlayerID)
		}
	}
}

// removeEntity drops an entity from the live set if still present.
func (m *Manager) removeEntity(entityID string) {
	m.mu.Lock()
	if e, ok := m.entities[entityID]; ok {
		m.deleteLocked(e)
	}
	m.mu.Unlock()
}

// Claim arbitrates a claim on entityID by ownerID. The lookup, the owner
// check and the removal from the live set happen in one locked step, so
// concurrent claims for the same entity yield exactly one accepted outcome.
// Once accepted, the claim is committed from the player's perspective: a
// failure deleting the durable row is logged for reconciliation and does not
// resurrect the entity. The claimed entity is returned so callers can settle
// its reward and subtype.
func (m *Manager) Claim(ctx context.Context, entityID, ownerID string) (*domain.EphemeralEntity, error) {
	m.mu.Lock()
	e, ok := m.entities[entityID]
	if !ok {
		m.mu.Unlock()
		return nil, domain.ErrEntityNotFound
	}
	if e.OwnerPlayerID != ownerID {
		m.mu.Unlock()
		return nil, domain.ErrNotEntityOwner
	}
	m.deleteLocked(e)
	m.mu.Unlock()

	if err := m.store.DeleteEntity(ctx, entityID); err != nil {
		m.logger.Error("claimed entity not deleted from store, needs reconciliation",
			"entity_id", entityID,
			"kind", m.kind,
			"player_id", ownerID,
			"error", err,
		)
	}
	return e, nil
}

// RemoveOwner disposes every live entity held by ownerID, returning how many
// were removed. Used on disconnect and for explicit removeDrones requests.
func (m *Manager) RemoveOwner(ctx context.Context, ownerID string) int {
	m.mu.Lock()
	var removed []*domain.EphemeralEntity
	for id := range m.byOwner[ownerID] {
		removed = append(removed, m.entities[id])
	}
	for _, e := range removed {
		m.deleteLocked(e)
	}
	m.mu.Unlock()

	for _, e := range removed {
		if err := m.store.DeleteEntity(ctx, e.EntityID); err != nil {
			m.logger.Warn("failed to delete entity from store",
				"entity_id", e.EntityID, "error", err)
		}
	}
	return len(removed)
}

// EvictExpired removes entities older than the kind's max age. Idempotent
// and safe to run concurrently with claims: an entity claimed between the
// scan and the delete is simply no longer present.
func (m *Manager) EvictExpired(ctx context.Context, now time.Time) int {
	m.mu.Lock()
	var expired []*domain.EphemeralEntity
	for _, e := range m.entities {
		if e.Expired(now, m.ttl) {
			expired = append(expired, e)
		}
	}
	for _, e := range expired {
		m.deleteLocked(e)
	}
	m.mu.Unlock()

	for _, e := range expired {
		if err := m.store.DeleteEntity(ctx, e.EntityID); err != nil {
			m.logger.Warn("failed to delete expired entity from store",
				"entity_id", e.EntityID, "error", err)
		}
	}

	if len(expired) > 0 {
		m.logger.Debug("evicted expired entities", "kind", m.kind, "count", len(expired))
	}
	return len(expired)
}

// OwnedBy returns copies of every live entity held by ownerID.
func (m *Manager) OwnedBy(ownerID string) []domain.EphemeralEntity {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.EphemeralEntity
	for id := range m.byOwner[ownerID] {
		out = append(out, *m.entities[id])
	}
	return out
}

// Get returns a copy of a live entity, for tests and diagnostics.
func (m *Manager) Get(entityID string) (domain.EphemeralEntity, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if e, ok := m.entities[entityID]; ok {
		return *e, true
	}
	return domain.EphemeralEntity{}, false
}
