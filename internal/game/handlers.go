package game

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/geostrike/internal/domain"
	"github.com/geostrike/internal/redis"
	"github.com/geostrike/internal/websocket"
)

// handleJoin binds the player to its connection, announces presence in both
// directions within the proximity scope, ensures the durable player row and
// pushes the opening stats snapshot.
func (d *Dispatcher) handleJoin(ctx context.Context, conn *websocket.Conn, env domain.Envelope) error {
	var payload domain.JoinPayload
	if len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, &payload); err != nil {
			return fmt.Errorf("decoding join payload: %w", err)
		}
	}
	playerID := env.PlayerID
	payload.Player.PlayerID = playerID

	isNew := d.registry.Register(playerID, conn)

	player, err := d.store.EnsurePlayer(ctx, playerID, d.cfg.Ammunition, d.cfg.Lives)
	if err != nil {
		return fmt.Errorf("ensuring player row: %w", err)
	}

	// A player idle past the replenish window comes back with a full
	// magazine and full lives.
	if idle := timeSinceLastActive(player); idle >= d.cfg.ReplenishAfter {
		if err := d.store.ReplenishStats(ctx, playerID, d.cfg.Ammunition, d.cfg.Lives); err != nil {
			d.logger.Warn("failed to replenish stats", "player_id", playerID, "error", err)
		}
	}

	if payload.Player.Location != nil {
		d.registry.UpdateLocation(playerID, payload.Player.Location)
		if err := d.store.UpdateLocation(ctx, playerID, payload.Player.Location); err != nil {
			d.logger.Warn("failed to persist location", "player_id", playerID, "error", err)
		}
	}
	if err := d.store.TouchPlayer(ctx, playerID); err != nil {
		d.logger.Warn("failed to touch player", "player_id", playerID, "error", err)
	}

	if isNew {
		d.announce(playerID, payload.Player)
		d.spawnPickupFor(ctx, playerID)
	}

	return d.sendStats(ctx, playerID)
}

// announce tells every nearby player about the joiner and tells the joiner
// about every nearby player, so both sides render each other immediately.
func (d *Dispatcher) announce(playerID string, info domain.PlayerInfo) {
	for _, sess := range d.Nearby(playerID) {
		d.registry.SendTo(sess.PlayerID, domain.NewEnvelope(
			domain.MessageTypeAnnounced, playerID,
			domain.JoinPayload{Player: info},
		))
		d.registry.SendTo(playerID, domain.NewEnvelope(
			domain.MessageTypeAnnounced, sess.PlayerID,
			domain.JoinPayload{Player: domain.PlayerInfo{
				PlayerID: sess.PlayerID,
				Location: sess.Location,
			}},
		))
	}
}

// handleShoot records the shot against the durable counters, spends one round
// and relays the message to everyone else.
func (d *Dispatcher) handleShoot(ctx context.Context, env domain.Envelope) error {
	var payload domain.ShootPayload
	if len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, &payload); err != nil {
			return fmt.Errorf("decoding shoot payload: %w", err)
		}
	}

	if payload.Location != nil {
		d.registry.UpdateLocation(env.PlayerID, payload.Location)
		if err := d.store.UpdateLocation(ctx, env.PlayerID, payload.Location); err != nil {
			d.logger.Warn("failed to persist location", "player_id", env.PlayerID, "error", err)
		}
	}

	stats, err := d.store.ApplyStatsDelta(ctx, env.PlayerID, domain.StatsDelta{Shots: 1, Ammo: -1})
	if err != nil {
		return fmt.Errorf("recording shot: %w", err)
	}
	d.updateAccuracy(ctx, env.PlayerID, stats)

	d.registry.Broadcast(env, env.PlayerID)
	return nil
}

// handleShootConfirmed records a shot that a peer vouched for. No relay.
func (d *Dispatcher) handleShootConfirmed(ctx context.Context, env domain.Envelope) error {
	stats, err := d.store.ApplyStatsDelta(ctx, env.PlayerID, domain.StatsDelta{Shots: 1})
	if err != nil {
		return fmt.Errorf("recording confirmed shot: %w", err)
	}
	d.updateAccuracy(ctx, env.PlayerID, stats)
	return nil
}

// handleHit relays an unverified hit claim to its target. A target without a
// live session means the message is silently dropped.
func (d *Dispatcher) handleHit(ctx context.Context, env domain.Envelope) error {
	var payload domain.HitPayload
	if len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, &payload); err != nil {
			return fmt.Errorf("decoding hit payload: %w", err)
		}
	}
	if payload.TargetPlayerID == "" {
		return nil
	}
	d.registry.SendTo(payload.TargetPlayerID, env)
	return nil
}

// handleHitConfirmed credits the shooter for a hit its target acknowledged:
// durable counter, token reward, achievements, hall of fame, then an echo so
// the shooter's client can react.
func (d *Dispatcher) handleHitConfirmed(ctx context.Context, env domain.Envelope) error {
	shooter := senderOf(env)

	stats, err := d.store.ApplyStatsDelta(ctx, shooter, domain.StatsDelta{Hits: 1})
	if err != nil {
		return fmt.Errorf("recording hit for %s: %w", shooter, err)
	}
	accuracy := d.updateAccuracy(ctx, shooter, stats)

	if err := d.ledger.Credit(ctx, shooter, domain.RewardHit, d.cfg.Tokens.Hit); err != nil {
		d.logger.Error("failed to credit hit reward", "player_id", shooter, "error", err)
	}
	d.grant(ctx, shooter, "hits", stats.Hits)
	d.grant(ctx, shooter, "accuracy", accuracy)
	d.bumpScoreboard(ctx, redis.BoardHits, shooter, 1)

	d.registry.SendTo(shooter, env)
	return nil
}

// handleKill credits the killer and settles the victim. The envelope's
// playerId names the victim and senderId names the killer.
func (d *Dispatcher) handleKill(ctx context.Context, env domain.Envelope) error {
	victim := env.PlayerID
	killer := env.SenderID
	if killer == "" || killer == victim {
		d.logger.Warn("dropping kill without a distinct sender", "player_id", victim)
		return nil
	}

	if _, err := d.store.ApplyStatsDelta(ctx, victim, domain.StatsDelta{Deaths: 1, Lives: -1}); err != nil {
		if !domain.IsNotFoundError(err) {
			d.logger.Error("failed to record death", "player_id", victim, "error", err)
		}
	}

	stats, err := d.store.ApplyStatsDelta(ctx, killer, domain.StatsDelta{Kills: 1})
	if err != nil {
		if domain.IsNotFoundError(err) {
			return nil
		}
		return fmt.Errorf("recording kill for %s: %w", killer, err)
	}

	if err := d.ledger.Credit(ctx, killer, domain.RewardKill, d.cfg.Tokens.Kill); err != nil {
		d.logger.Error("failed to credit kill reward", "player_id", killer, "error", err)
	}
	d.grant(ctx, killer, "kills", stats.Kills)
	d.bumpScoreboard(ctx, redis.BoardKills, killer, 1)

	d.registry.SendTo(killer, env)
	if err := d.sendStats(ctx, victim); err != nil && !domain.IsNotFoundError(err) {
		return err
	}
	return nil
}

// handleReload refills the magazine when it is low enough and pushes the
// resulting stats either way.
func (d *Dispatcher) handleReload(ctx context.Context, env domain.Envelope) error {
	refilled, err := d.store.RefillAmmo(ctx, env.PlayerID, d.cfg.Ammunition, d.cfg.ReloadThreshold)
	if err != nil {
		return fmt.Errorf("refilling ammo: %w", err)
	}
	if refilled {
		d.logger.Debug("magazine refilled", "player_id", env.PlayerID)
	}
	return d.sendStats(ctx, env.PlayerID)
}

// updateAccuracy derives and persists the accuracy percentage after a
// hits or shots counter moved, returning the derived value.
func (d *Dispatcher) updateAccuracy(ctx context.Context, playerID string, stats domain.PlayerStats) int {
	accuracy := domain.DeriveAccuracy(stats.Hits, stats.Shots)
	if err := d.store.SetAccuracy(ctx, playerID, accuracy); err != nil {
		d.logger.Warn("failed to persist accuracy", "player_id", playerID, "error", err)
	}
	return accuracy
}

// grant runs achievement evaluation for one counter and logs failures
// without interrupting the gameplay path.
func (d *Dispatcher) grant(ctx context.Context, playerID, counterType string, value int) {
	if _, err := d.ledger.GrantAchievements(ctx, playerID, counterType, value); err != nil {
		d.logger.Error("achievement evaluation failed",
			"player_id", playerID, "counter", counterType, "error", err)
	}
}

func timeSinceLastActive(player *domain.Player) time.Duration {
	if player == nil || player.LastActive.IsZero() {
		return 0
	}
	return time.Since(player.LastActive)
}
