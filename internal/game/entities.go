package game

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/geostrike/internal/domain"
	"github.com/geostrike/internal/redis"
)

// handleShootDrone arbitrates a drone claim. The manager decides atomically;
// this handler only translates the outcome into a confirmation or rejection
// for the claimant and settles the rewards on success.
func (d *Dispatcher) handleShootDrone(ctx context.Context, env domain.Envelope) error {
	var payload domain.ShootDronePayload
	if err := json.Unmarshal(env.Data, &payload); err != nil {
		return fmt.Errorf("decoding shootDrone payload: %w", err)
	}
	droneID := payload.Drone.DroneID
	if droneID == "" {
		return nil
	}

	drone, err := d.drones.Claim(ctx, droneID, env.PlayerID)
	if err != nil {
		if domain.IsRejection(err) {
			d.registry.SendTo(env.PlayerID, domain.NewEnvelope(
				domain.MessageTypeDroneShootRejected, env.PlayerID,
				domain.DronePayload{Kind: string(domain.KindDrone), DroneID: droneID},
			))
			return nil
		}
		return fmt.Errorf("claiming drone %s: %w", droneID, err)
	}

	stats, err := d.store.ApplyStatsDelta(ctx, env.PlayerID, domain.StatsDelta{DroneHits: 1})
	if err != nil {
		d.logger.Error("failed to record drone hit", "player_id", env.PlayerID, "error", err)
	}
	if err := d.ledger.Credit(ctx, env.PlayerID, domain.RewardDrone, drone.Reward); err != nil {
		d.logger.Error("failed to credit drone reward", "player_id", env.PlayerID, "error", err)
	}
	d.grant(ctx, env.PlayerID, "droneHits", stats.DroneHits)
	d.bumpScoreboard(ctx, redis.BoardDroneHits, env.PlayerID, 1)

	d.registry.SendTo(env.PlayerID, domain.NewEnvelope(
		domain.MessageTypeDroneShootConfirmed, env.PlayerID,
		domain.DronePayload{Kind: string(domain.KindDrone), DroneID: droneID, Reward: drone.Reward},
	))
	return nil
}

// handleRemoveDrones clears every drone owned by the requesting player.
func (d *Dispatcher) handleRemoveDrones(ctx context.Context, env domain.Envelope) error {
	removed := d.drones.RemoveOwner(ctx, env.PlayerID)
	d.logger.Debug("removed drones on request", "player_id", env.PlayerID, "count", removed)
	return nil
}

// handleGeoObjectHit arbitrates a pickup claim, credits the collector on
// success, appends the item to the collector's durable inventory and spawns
// the player's next pickup.
func (d *Dispatcher) handleGeoObjectHit(ctx context.Context, env domain.Envelope) error {
	var payload domain.GeoObjectHitPayload
	if err := json.Unmarshal(env.Data, &payload); err != nil {
		return fmt.Errorf("decoding geoObjectHit payload: %w", err)
	}
	if payload.ID == "" {
		return nil
	}

	pickup, err := d.pickups.Claim(ctx, payload.ID, env.PlayerID)
	if err != nil {
		if domain.IsRejection(err) {
			d.registry.SendTo(env.PlayerID, domain.NewEnvelope(
				domain.MessageTypeGeoObjectShootRejected, env.PlayerID,
				domain.GeoObjectPayload{ID: payload.ID, Reason: "object not found or already collected"},
			))
			return nil
		}
		return fmt.Errorf("claiming pickup %s: %w", payload.ID, err)
	}

	item := domain.InventoryItem{
		ItemID:      pickup.EntityID,
		PlayerID:    env.PlayerID,
		Type:        pickup.Subtype,
		Reward:      pickup.Reward,
		CollectedAt: time.Now(),
	}
	if err := d.store.InsertInventoryItem(ctx, item); err != nil {
		d.logger.Error("failed to store inventory item",
			"player_id", env.PlayerID, "item_id", item.ItemID, "error", err)
	}

	stats, err := d.store.ApplyStatsDelta(ctx, env.PlayerID, domain.StatsDelta{GeoObjectsCollected: 1})
	if err != nil {
		d.logger.Error("failed to record pickup collection", "player_id", env.PlayerID, "error", err)
	}
	if err := d.ledger.Credit(ctx, env.PlayerID, domain.RewardGeoObject, pickup.Reward); err != nil {
		d.logger.Error("failed to credit pickup reward", "player_id", env.PlayerID, "error", err)
	}
	d.grant(ctx, env.PlayerID, "geoObjectsCollected", stats.GeoObjectsCollected)

	d.registry.SendTo(env.PlayerID, domain.NewEnvelope(
		domain.MessageTypeGeoObjectShootConfirmed, env.PlayerID,
		domain.GeoObjectPayload{ID: payload.ID, Reward: pickup.Reward, Item: &item},
	))

	// Keep one pickup outstanding per player.
	d.spawnPickupFor(ctx, env.PlayerID)
	return nil
}

// spawnPickupFor places a fresh pickup around the player's last known
// location and pushes it. Players without a location, and players who
// already have an outstanding pickup, get nothing.
func (d *Dispatcher) spawnPickupFor(ctx context.Context, playerID string) {
	conn := d.registry.Resolve(playerID)
	if conn == nil {
		return
	}
	var origin *domain.Location
	for _, sess := range d.registry.Snapshot() {
		if sess.PlayerID == playerID {
			origin = sess.Location
			break
		}
	}
	if origin == nil {
		return
	}

	pickup, err := d.pickups.SpawnPickup(ctx, playerID, *origin)
	if err != nil {
		if !domain.IsRejection(err) {
			d.logger.Error("failed to spawn pickup", "player_id", playerID, "error", err)
		}
		return
	}

	d.registry.SendTo(playerID, domain.NewEnvelope(
		domain.MessageTypeNewGeoObject, playerID,
		domain.GeoObjectPayload{
			ID:         pickup.EntityID,
			Type:       pickup.Subtype,
			Coordinate: pickup.Coordinate,
			Reward:     pickup.Reward,
		},
	))
}

// SpawnDrones runs one spawn round: each connected player under the drone
// cap gets one new drone pushed. Exhausted placement budgets and cap refusals
// are quiet; the next round tries again.
func (d *Dispatcher) SpawnDrones(ctx context.Context) {
	for _, sess := range d.registry.Snapshot() {
		drone, err := d.drones.SpawnDrone(ctx, sess.PlayerID)
		if err != nil {
			if !domain.IsRejection(err) {
				d.logger.Error("failed to spawn drone", "player_id", sess.PlayerID, "error", err)
			}
			continue
		}
		d.registry.SendTo(sess.PlayerID, domain.NewEnvelope(
			domain.MessageTypeNewDrone, sess.PlayerID,
			domain.DronePayload{
				Kind:     string(domain.KindDrone),
				DroneID:  drone.EntityID,
				Position: drone.Position,
				Reward:   drone.Reward,
			},
		))
	}
}

// EvictExpired removes timed-out drones and pickups, returning how many
// entities were evicted.
func (d *Dispatcher) EvictExpired(ctx context.Context, now time.Time) int {
	return d.drones.EvictExpired(ctx, now) + d.pickups.EvictExpired(ctx, now)
}

// ReapStaleSessions evicts sessions idle past maxIdle and runs their
// disconnect obligations. The registry entry is already gone by the time the
// transport close callback fires, so disposal happens exactly once, here.
func (d *Dispatcher) ReapStaleSessions(ctx context.Context, now time.Time, maxIdle time.Duration) int {
	stale := d.registry.ReapStale(now, maxIdle)
	for _, sess := range stale {
		d.logger.Info("reaping stale session",
			"player_id", sess.PlayerID, "last_active", sess.LastActive)
		sess.Conn.Close()

		d.drones.RemoveOwner(ctx, sess.PlayerID)
		d.pickups.RemoveOwner(ctx, sess.PlayerID)
		d.grantSurvival(ctx, sess.PlayerID, sess.JoinedAt)
		d.registry.Broadcast(domain.NewEnvelope(domain.MessageTypeLeave, sess.PlayerID, domain.LeavePayload{
			Player: &domain.PlayerInfo{PlayerID: sess.PlayerID},
		}), sess.PlayerID)
	}
	return len(stale)
}
