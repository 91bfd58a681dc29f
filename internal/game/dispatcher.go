// Package game routes inbound envelopes to the gameplay handlers and fans
// results back out through the connection registry.
package game

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/geostrike/internal/config"
	"github.com/geostrike/internal/domain"
	"github.com/geostrike/internal/entity"
	"github.com/geostrike/internal/websocket"
)

// Store is the durable-store surface consumed by the gameplay handlers.
type Store interface {
	EnsurePlayer(ctx context.Context, playerID string, ammo, lives int) (*domain.Player, error)
	FindPlayer(ctx context.Context, playerID string) (*domain.Player, error)
	UpdateLocation(ctx context.Context, playerID string, loc *domain.Location) error
	TouchPlayer(ctx context.Context, playerID string) error
	ApplyStatsDelta(ctx context.Context, playerID string, delta domain.StatsDelta) (domain.PlayerStats, error)
	SetAccuracy(ctx context.Context, playerID string, accuracy int) error
	ReplenishStats(ctx context.Context, playerID string, ammo, lives int) error
	RefillAmmo(ctx context.Context, playerID string, magazine, threshold int) (bool, error)
	InsertInventoryItem(ctx context.Context, item domain.InventoryItem) error
}

// Ledger credits verified gameplay events and evaluates achievements.
type Ledger interface {
	Credit(ctx context.Context, playerID, rewardType string, amount int64) error
	Balance(ctx context.Context, playerID string) (domain.Balance, error)
	GrantAchievements(ctx context.Context, playerID, counterType string, value int) ([]domain.Achievement, error)
}

// Scoreboard is the optional hall-of-fame sink for verified counters.
type Scoreboard interface {
	Increment(ctx context.Context, board, playerID string, delta int64) error
}

// Dispatcher decodes inbound envelopes, routes them by message kind and owns
// the gameplay side effects. One Route call runs per inbound frame, on the
// connection's read loop, so a single player's messages are handled in
// arrival order.
type Dispatcher struct {
	registry   *websocket.Registry
	store      Store
	ledger     Ledger
	drones     *entity.Manager
	pickups    *entity.Manager
	scoreboard Scoreboard
	cfg        config.GameConfig
	logger     *slog.Logger
}

// NewDispatcher wires the dispatcher to its collaborators.
func NewDispatcher(
	registry *websocket.Registry,
	store Store,
	ledger Ledger,
	drones *entity.Manager,
	pickups *entity.Manager,
	cfg config.GameConfig,
	logger *slog.Logger,
) *Dispatcher {
	return &Dispatcher{
		registry: registry,
		store:    store,
		ledger:   ledger,
		drones:   drones,
		pickups:  pickups,
		cfg:      cfg,
		logger:   logger,
	}
}

// SetScoreboard attaches an optional hall-of-fame sink.
func (d *Dispatcher) SetScoreboard(sb Scoreboard) {
	d.scoreboard = sb
}

// Registry exposes the connection registry for the HTTP surface.
func (d *Dispatcher) Registry() *websocket.Registry {
	return d.registry
}

// Route implements websocket.Router. A malformed frame is dropped with a
// log line; an unknown message kind is a no-op for forward compatibility.
// Handler failures are contained here and never tear down the connection.
func (d *Dispatcher) Route(conn *websocket.Conn, raw []byte) {
	defer func() {
		if rec := recover(); rec != nil {
			d.logger.Error("panic in message handler", "panic", rec)
		}
	}()

	var env domain.Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		d.logger.Warn("dropping malformed envelope", "conn_id", conn.ID(), "error", err)
		return
	}
	if env.PlayerID == "" {
		d.logger.Warn("dropping envelope without playerId", "type", env.Type)
		return
	}

	conn.BindPlayer(env.PlayerID)
	d.registry.Touch(env.PlayerID)

	// Each message gets its own context: closing the connection does not
	// cancel durable writes already triggered by its last message.
	ctx := context.Background()

	var err error
	switch env.Type {
	case domain.MessageTypeJoin:
		err = d.handleJoin(ctx, conn, env)
	case domain.MessageTypeShoot:
		err = d.handleShoot(ctx, env)
	case domain.MessageTypeShootConfirmed:
		err = d.handleShootConfirmed(ctx, env)
	case domain.MessageTypeHit:
		err = d.handleHit(ctx, env)
	case domain.MessageTypeHitConfirmed:
		err = d.handleHitConfirmed(ctx, env)
	case domain.MessageTypeKill:
		err = d.handleKill(ctx, env)
	case domain.MessageTypeShootDrone:
		err = d.handleShootDrone(ctx, env)
	case domain.MessageTypeRemoveDrones:
		err = d.handleRemoveDrones(ctx, env)
	case domain.MessageTypeGeoObjectHit:
		err = d.handleGeoObjectHit(ctx, env)
	case domain.MessageTypeReload:
		err = d.handleReload(ctx, env)
	case domain.MessageTypeStats:
		err = d.sendStats(ctx, env.PlayerID)
	default:
		d.logger.Debug("ignoring unknown message type", "type", env.Type, "player_id", env.PlayerID)
	}

	if err != nil {
		d.logger.Error("handler failed",
			"type", env.Type,
			"player_id", env.PlayerID,
			"sender_id", env.SenderID,
			"error", err,
		)
	}
}

// Disconnected implements websocket.Router. The registry removal and the
// cleanup obligations run at most once, even when an explicit leave and the
// transport close race; a close of a connection that was already replaced
// leaves the replacement session alone.
func (d *Dispatcher) Disconnected(playerID string, conn *websocket.Conn) {
	if playerID == "" {
		return
	}

	var joinedAt time.Time
	for _, sess := range d.registry.Snapshot() {
		if sess.PlayerID == playerID {
			joinedAt = sess.JoinedAt
			break
		}
	}

	if !d.registry.Remove(playerID, conn) {
		return
	}

	d.logger.Info("player disconnected", "player_id", playerID)

	ctx := context.Background()
	d.drones.RemoveOwner(ctx, playerID)
	d.pickups.RemoveOwner(ctx, playerID)
	d.grantSurvival(ctx, playerID, joinedAt)

	leave := domain.NewEnvelope(domain.MessageTypeLeave, playerID, domain.LeavePayload{
		Player: &domain.PlayerInfo{PlayerID: playerID},
	})
	d.registry.Broadcast(leave, playerID)
}

// grantSurvival evaluates the session's lifetime in seconds against the
// survivalTime milestones when the session ends.
func (d *Dispatcher) grantSurvival(ctx context.Context, playerID string, joinedAt time.Time) {
	if joinedAt.IsZero() {
		return
	}
	d.grant(ctx, playerID, "survivalTime", int(time.Since(joinedAt).Seconds()))
}

// senderOf returns the crediting identity of an envelope: senderId when
// present, otherwise playerId.
func senderOf(env domain.Envelope) string {
	if env.SenderID != "" {
		return env.SenderID
	}
	return env.PlayerID
}

// sendStats pushes the durable stats snapshot plus balances to one player.
func (d *Dispatcher) sendStats(ctx context.Context, playerID string) error {
	player, err := d.store.FindPlayer(ctx, playerID)
	if err != nil {
		return err
	}

	balance, err := d.ledger.Balance(ctx, playerID)
	if err != nil {
		d.logger.Warn("failed to read balance for stats", "player_id", playerID, "error", err)
	}

	payload := domain.StatsPayload{
		Kind:        "stats",
		PlayerStats: player.Stats,
		Pending:     balance.Pending,
		Minted:      balance.Minted,
	}
	d.registry.SendTo(playerID, domain.NewEnvelope(domain.MessageTypeStats, playerID, payload))
	return nil
}

// bumpScoreboard records a counter on the hall of fame when one is attached.
func (d *Dispatcher) bumpScoreboard(ctx context.Context, board, playerID string, delta int64) {
	if d.scoreboard == nil {
		return
	}
	if err := d.scoreboard.Increment(ctx, board, playerID, delta); err != nil {
		d.logger.Warn("failed to update hall of fame",
			"board", board, "player_id", playerID, "error", err)
	}
}
