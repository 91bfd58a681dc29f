package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/geostrike/internal/config"
	"github.com/geostrike/internal/domain"
)

// Repository provides PostgreSQL-based data access
type Repository struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// NewRepository creates a new PostgreSQL repository
func NewRepository(cfg *config.PostgresConfig, logger *slog.Logger) (*Repository, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.ConnectionString())
	if err != nil {
		return nil, fmt.Errorf("parsing connection string: %w", err)
	}

	poolConfig.MaxConns = int32(cfg.MaxConnections)
	poolConfig.MinConns = int32(cfg.MinConnections)
	poolConfig.MaxConnLifetime = cfg.MaxConnLifetime
	poolConfig.MaxConnIdleTime = cfg.MaxConnIdleTime

	pool, err := pgxpool.NewWithConfig(context.Background(), poolConfig)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}

	// Test connection
	if err := pool.Ping(context.Background()); err != nil {
		pool.Close()
		return nil, fmt.Errorf("connecting to database: %w", err)
	}

	return &Repository{
		pool:   pool,
		logger: logger,
	}, nil
}

// Close closes the database connection pool
func (r *Repository) Close() {
	r.pool.Close()
}

// Pool returns the underlying connection pool
func (r *Repository) Pool() *pgxpool.Pool {
	return r.pool
}

// RunMigrations executes database migrations
func (r *Repository) RunMigrations(ctx context.Context) error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS players (
			player_id VARCHAR(64) PRIMARY KEY,
			location JSONB,
			kills INT NOT NULL DEFAULT 0,
			hits INT NOT NULL DEFAULT 0,
			deaths INT NOT NULL DEFAULT 0,
			shots INT NOT NULL DEFAULT 0,
			drone_hits INT NOT NULL DEFAULT 0,
			geo_objects_collected INT NOT NULL DEFAULT 0,
			accuracy INT NOT NULL DEFAULT 0,
			current_ammo INT NOT NULL DEFAULT 0,
			current_lives INT NOT NULL DEFAULT 0,
			last_active TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS token_balances (
			player_id VARCHAR(64) PRIMARY KEY,
			pending_balance BIGINT NOT NULL DEFAULT 0,
			minted_balance BIGINT NOT NULL DEFAULT 0,
			updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS achievements (
			id BIGSERIAL PRIMARY KEY,
			player_id VARCHAR(64) NOT NULL,
			type VARCHAR(32) NOT NULL,
			milestone INT NOT NULL,
			unlocked_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			UNIQUE(player_id, type, milestone)
		)`,
		`CREATE TABLE IF NOT EXISTS reward_events (
			id BIGSERIAL PRIMARY KEY,
			player_id VARCHAR(64) NOT NULL,
			reward_type VARCHAR(32) NOT NULL,
			amount BIGINT NOT NULL,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS entities (
			entity_id VARCHAR(64) PRIMARY KEY,
			kind VARCHAR(16) NOT NULL,
			owner_player_id VARCHAR(64) NOT NULL,
			subtype VARCHAR(16),
			reward BIGINT NOT NULL,
			position JSONB,
			coordinate JSONB,
			spawned_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS inventory_items (
			item_id VARCHAR(64) PRIMARY KEY,
			player_id VARCHAR(64) NOT NULL,
			type VARCHAR(16) NOT NULL,
			reward BIGINT NOT NULL DEFAULT 0,
			collected_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			used BOOLEAN NOT NULL DEFAULT FALSE,
			used_at TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_reward_events_player ON reward_events(player_id, created_at DESC)`,
		`CREATE INDEX IF NOT EXISTS idx_achievements_player ON achievements(player_id)`,
		`CREATE INDEX IF NOT EXISTS idx_entities_owner ON entities(owner_player_id)`,
		`CREATE INDEX IF NOT EXISTS idx_inventory_player ON inventory_items(player_id, collected_at DESC)`,
	}

	for _, migration := range migrations {
		_, err := r.pool.Exec(ctx, migration)
		if err != nil {
			return fmt.Errorf("executing migration: %w", err)
		}
	}

	r.logger.Info("database migrations completed")
	return nil
}

const playerColumns = `player_id, location, kills, hits, deaths, shots, drone_hits,
	geo_objects_collected, accuracy, current_ammo, current_lives, last_active, created_at`

// scanPlayer scans one player row.
func scanPlayer(row pgx.Row) (*domain.Player, error) {
	var p domain.Player
	var location []byte
	err := row.Scan(
		&p.PlayerID,
		&location,
		&p.Stats.Kills,
		&p.Stats.Hits,
		&p.Stats.Deaths,
		&p.Stats.Shots,
		&p.Stats.DroneHits,
		&p.Stats.GeoObjectsCollected,
		&p.Stats.Accuracy,
		&p.Stats.CurrentAmmo,
		&p.Stats.CurrentLives,
		&p.LastActive,
		&p.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	if len(location) > 0 {
		var loc domain.Location
		if err := json.Unmarshal(location, &loc); err == nil {
			p.Location = &loc
		}
	}
	return &p, nil
}

// FindPlayer retrieves a player by ID
func (r *Repository) FindPlayer(ctx context.Context, playerID string) (*domain.Player, error) {
	query := `SELECT ` + playerColumns + ` FROM players WHERE player_id = $1`
	p, err := scanPlayer(r.pool.QueryRow(ctx, query, playerID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrPlayerNotFound
		}
		return nil, fmt.Errorf("getting player: %w", err)
	}
	return p, nil
}

// EnsurePlayer fetches a player, creating the row with starting ammo and
// lives on first sight.
func (r *Repository) EnsurePlayer(ctx context.Context, playerID string, ammo, lives int) (*domain.Player, error) {
	query := `
		INSERT INTO players (player_id, current_ammo, current_lives, last_active, created_at)
		VALUES ($1, $2, $3, $4, $4)
		ON CONFLICT (player_id) DO UPDATE SET player_id = players.player_id
		RETURNING ` + playerColumns
	p, err := scanPlayer(r.pool.QueryRow(ctx, query, playerID, ammo, lives, time.Now()))
	if err != nil {
		return nil, fmt.Errorf("ensuring player: %w", err)
	}
	return p, nil
}

// UpdateLocation stores the player's last known coordinate and refreshes
// last_active.
func (r *Repository) UpdateLocation(ctx context.Context, playerID string, loc *domain.Location) error {
	locJSON, err := json.Marshal(loc)
	if err != nil {
		return fmt.Errorf("marshaling location: %w", err)
	}
	query := `UPDATE players SET location = $2, last_active = $3 WHERE player_id = $1`
	result, err := r.pool.Exec(ctx, query, playerID, locJSON, time.Now())
	if err != nil {
		return fmt.Errorf("updating location: %w", err)
	}
	if result.RowsAffected() == 0 {
		return domain.ErrPlayerNotFound
	}
	return nil
}

// TouchPlayer refreshes the player's last_active timestamp
func (r *Repository) TouchPlayer(ctx context.Context, playerID string) error {
	query := `UPDATE players SET last_active = $2 WHERE player_id = $1`
	_, err := r.pool.Exec(ctx, query, playerID, time.Now())
	if err != nil {
		return fmt.Errorf("touching player: %w", err)
	}
	return nil
}

// ApplyStatsDelta applies counter increments in one read-modify-write and
// returns the updated stats. Ammo and lives floor at zero.
func (r *Repository) ApplyStatsDelta(ctx context.Context, playerID string, delta domain.StatsDelta) (domain.PlayerStats, error) {
	query := `
		UPDATE players SET
			kills = kills + $2,
			hits = hits + $3,
			deaths = deaths + $4,
			shots = shots + $5,
			drone_hits = drone_hits + $6,
			geo_objects_collected = geo_objects_collected + $7,
			current_ammo = GREATEST(0, current_ammo + $8),
			current_lives = GREATEST(0, current_lives + $9),
			last_active = $10
		WHERE player_id = $1
		RETURNING kills, hits, deaths, shots, drone_hits, geo_objects_collected,
			accuracy, current_ammo, current_lives
	`
	var stats domain.PlayerStats
	err := r.pool.QueryRow(ctx, query, playerID,
		delta.Kills, delta.Hits, delta.Deaths, delta.Shots,
		delta.DroneHits, delta.GeoObjectsCollected, delta.Ammo, delta.Lives,
		time.Now(),
	).Scan(
		&stats.Kills,
		&stats.Hits,
		&stats.Deaths,
		&stats.Shots,
		&stats.DroneHits,
		&stats.GeoObjectsCollected,
		&stats.Accuracy,
		&stats.CurrentAmmo,
		&stats.CurrentLives,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return stats, domain.ErrPlayerNotFound
		}
		return stats, fmt.Errorf("applying stats delta: %w", err)
	}
	return stats, nil
}

// SetAccuracy persists the derived accuracy percentage
func (r *Repository) SetAccuracy(ctx context.Context, playerID string, accuracy int) error {
	query := `UPDATE players SET accuracy = $2 WHERE player_id = $1`
	_, err := r.pool.Exec(ctx, query, playerID, accuracy)
	if err != nil {
		return fmt.Errorf("setting accuracy: %w", err)
	}
	return nil
}

// ReplenishStats resets ammo and lives to their configured maximums
func (r *Repository) ReplenishStats(ctx context.Context, playerID string, ammo, lives int) error {
	query := `UPDATE players SET current_ammo = $2, current_lives = $3, last_active = $4 WHERE player_id = $1`
	_, err := r.pool.Exec(ctx, query, playerID, ammo, lives, time.Now())
	if err != nil {
		return fmt.Errorf("replenishing stats: %w", err)
	}
	return nil
}

// RefillAmmo refills the magazine when the current ammo is at or below the
// threshold, reporting whether a refill happened.
func (r *Repository) RefillAmmo(ctx context.Context, playerID string, magazine, threshold int) (bool, error) {
	query := `
		UPDATE players SET current_ammo = $2
		WHERE player_id = $1 AND current_ammo <= $3
	`
	result, err := r.pool.Exec(ctx, query, playerID, magazine, threshold)
	if err != nil {
		return false, fmt.Errorf("refilling ammo: %w", err)
	}
	return result.RowsAffected() > 0, nil
}

// IncrementPendingBalance adds tokens to the player's pending balance
func (r *Repository) IncrementPendingBalance(ctx context.Context, playerID string, amount int64) error {
	query := `
		INSERT INTO token_balances (player_id, pending_balance, updated_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (player_id)
		DO UPDATE SET pending_balance = token_balances.pending_balance + $2, updated_at = $3
	`
	_, err := r.pool.Exec(ctx, query, playerID, amount, time.Now())
	if err != nil {
		return fmt.Errorf("incrementing pending balance: %w", err)
	}
	return nil
}

// GetBalance reads the player's token balances
func (r *Repository) GetBalance(ctx context.Context, playerID string) (domain.Balance, error) {
	query := `SELECT pending_balance, minted_balance FROM token_balances WHERE player_id = $1`
	b := domain.Balance{PlayerID: playerID}
	err := r.pool.QueryRow(ctx, query, playerID).Scan(&b.Pending, &b.Minted)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return b, nil
		}
		return b, fmt.Errorf("getting balance: %w", err)
	}
	b.Total = b.Pending + b.Minted
	return b, nil
}

// FindAchievement reports whether the (player, type, milestone) row exists
func (r *Repository) FindAchievement(ctx context.Context, playerID, counterType string, milestone int) (bool, error) {
	query := `SELECT EXISTS(SELECT 1 FROM achievements WHERE player_id = $1 AND type = $2 AND milestone = $3)`
	var exists bool
	err := r.pool.QueryRow(ctx, query, playerID, counterType, milestone).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("checking achievement existence: %w", err)
	}
	return exists, nil
}

// InsertAchievement records an unlocked milestone
func (r *Repository) InsertAchievement(ctx context.Context, a domain.Achievement) error {
	query := `
		INSERT INTO achievements (player_id, type, milestone, unlocked_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (player_id, type, milestone) DO NOTHING
	`
	_, err := r.pool.Exec(ctx, query, a.PlayerID, a.Type, a.Milestone, a.UnlockedAt)
	if err != nil {
		return fmt.Errorf("inserting achievement: %w", err)
	}
	return nil
}

// ListAchievements returns all milestones a player has unlocked
func (r *Repository) ListAchievements(ctx context.Context, playerID string) ([]domain.Achievement, error) {
	query := `
		SELECT player_id, type, milestone, unlocked_at
		FROM achievements
		WHERE player_id = $1
		ORDER BY unlocked_at
	`
	rows, err := r.pool.Query(ctx, query, playerID)
	if err != nil {
		return nil, fmt.Errorf("listing achievements: %w", err)
	}
	defer rows.Close()

	var achievements []domain.Achievement
	for rows.Next() {
		var a domain.Achievement
		if err := rows.Scan(&a.PlayerID, &a.Type, &a.Milestone, &a.UnlockedAt); err != nil {
			return nil, fmt.Errorf("scanning achievement: %w", err)
		}
		achievements = append(achievements, a)
	}
	return achievements, nil
}

// InsertRewardEvent appends one reward event row
func (r *Repository) InsertRewardEvent(ctx context.Context, ev domain.RewardEvent) error {
	query := `
		INSERT INTO reward_events (player_id, reward_type, amount, created_at)
		VALUES ($1, $2, $3, $4)
	`
	_, err := r.pool.Exec(ctx, query, ev.PlayerID, ev.Type, ev.Amount, ev.Timestamp)
	if err != nil {
		return fmt.Errorf("inserting reward event: %w", err)
	}
	return nil
}

// InsertEntity persists a spawned ephemeral entity
func (r *Repository) InsertEntity(ctx context.Context, e *domain.EphemeralEntity) error {
	posJSON, err := json.Marshal(e.Position)
	if err != nil {
		return fmt.Errorf("marshaling position: %w", err)
	}
	var coordJSON []byte
	if e.Coordinate != nil {
		coordJSON, err = json.Marshal(e.Coordinate)
		if err != nil {
			return fmt.Errorf("marshaling coordinate: %w", err)
		}
	}

	query := `
		INSERT INTO entities (entity_id, kind, owner_player_id, subtype, reward, position, coordinate, spawned_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	_, err = r.pool.Exec(ctx, query,
		e.EntityID,
		string(e.Kind),
		e.OwnerPlayerID,
		e.Subtype,
		e.Reward,
		posJSON,
		coordJSON,
		e.SpawnedAt,
	)
	if err != nil {
		return fmt.Errorf("inserting entity: %w", err)
	}
	return nil
}

// InsertInventoryItem appends one collected pickup to the owner's inventory.
// Re-inserting an item ID is a no-op; collection already happens at most once
// upstream.
func (r *Repository) InsertInventoryItem(ctx context.Context, item domain.InventoryItem) error {
	query := `
		INSERT INTO inventory_items (item_id, player_id, type, reward, collected_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (item_id) DO NOTHING
	`
	_, err := r.pool.Exec(ctx, query, item.ItemID, item.PlayerID, item.Type, item.Reward, item.CollectedAt)
	if err != nil {
		return fmt.Errorf("inserting inventory item: %w", err)
	}
	return nil
}

// ListInventory returns every item a player has collected, newest first
func (r *Repository) ListInventory(ctx context.Context, playerID string) ([]domain.InventoryItem, error) {
	query := `
		SELECT item_id, player_id, type, reward, collected_at, used, used_at
		FROM inventory_items
		WHERE player_id = $1
		ORDER BY collected_at DESC
	`
	rows, err := r.pool.Query(ctx, query, playerID)
	if err != nil {
		return nil, fmt.Errorf("listing inventory: %w", err)
	}
	defer rows.Close()

	var items []domain.InventoryItem
	for rows.Next() {
		var item domain.InventoryItem
		if err := rows.Scan(
			&item.ItemID,
			&item.PlayerID,
			&item.Type,
			&item.Reward,
			&item.CollectedAt,
			&item.Used,
			&item.UsedAt,
		); err != nil {
			return nil, fmt.Errorf("scanning inventory item: %w", err)
		}
		items = append(items, item)
	}
	return items, nil
}

// UseInventoryItem marks one unused item consumed and returns it. A missing
// or already used item maps to ErrItemNotFound.
func (r *Repository) UseInventoryItem(ctx context.Context, playerID, itemID string) (*domain.InventoryItem, error) {
	query := `
		UPDATE inventory_items
		SET used = TRUE, used_at = NOW()
		WHERE item_id = $1 AND player_id = $2 AND NOT used
		RETURNING item_id, player_id, type, reward, collected_at, used, used_at
	`
	var item domain.InventoryItem
	err := r.pool.QueryRow(ctx, query, itemID, playerID).Scan(
		&item.ItemID,
		&item.PlayerID,
		&item.Type,
		&item.Reward,
		&item.CollectedAt,
		&item.Used,
		&item.UsedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrItemNotFound
		}
		return nil, fmt.Errorf("using inventory item: %w", err)
	}
	return &item, nil
}

// DeleteEntity removes a persisted entity by ID
func (r *Repository) DeleteEntity(ctx context.Context, entityID string) error {
	query := `DELETE FROM entities WHERE entity_id = $1`
	_, err := r.pool.Exec(ctx, query, entityID)
	if err != nil {
		return fmt.Errorf("deleting entity: %w", err)
	}
	return nil
}
