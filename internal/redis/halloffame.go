package redis

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"github.com/geostrike/internal/config"
	"github.com/geostrike/internal/domain"
)

// Boards tracked in the hall of fame.
const (
	BoardKills     = "kills"
	BoardHits      = "hits"
	BoardDroneHits = "droneHits"
)

// Entry is one ranked row of a hall-of-fame board.
type Entry struct {
	Rank     int64  `json:"rank"`
	PlayerID string `json:"player_id"`
	Score    int64  `json:"score"`
}

// HallOfFame maintains per-counter rankings on Redis sorted sets.
type HallOfFame struct {
	client *redis.Client
	logger *slog.Logger
}

// NewHallOfFame creates a hall-of-fame service backed by Redis
func NewHallOfFame(cfg *config.RedisConfig, logger *slog.Logger) (*HallOfFame, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	})

	// Test connection
	ctx := context.Background()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connecting to redis: %w", err)
	}

	return &HallOfFame{
		client: client,
		logger: logger,
	}, nil
}

// Close closes the Redis connection
func (h *HallOfFame) Close() error {
	return h.client.Close()
}

// boardKey returns the Redis key for one board's sorted set
func (h *HallOfFame) boardKey(board string) string {
	return fmt.Sprintf("halloffame:%s", board)
}

// Increment bumps a player's score on a board
func (h *HallOfFame) Increment(ctx context.Context, board, playerID string, delta int64) error {
	key := h.boardKey(board)
	err := h.client.ZIncrBy(ctx, key, float64(delta), playerID).Err()
	if err != nil {
		return fmt.Errorf("incrementing board score: %w", err)
	}
	return nil
}

// TopN returns the highest-ranked players on a board
func (h *HallOfFame) TopN(ctx context.Context, board string, n int) ([]Entry, error) {
	key := h.boardKey(board)
	results, err := h.client.ZRevRangeWithScores(ctx, key, 0, int64(n-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("getting top players: %w", err)
	}

	entries := make([]Entry, 0, len(results))
	for i, z := range results {
		playerID, ok := z.Member.(string)
		if !ok {
			continue
		}
		entries = append(entries, Entry{
			Rank:     int64(i + 1),
			PlayerID: playerID,
			Score:    int64(z.Score),
		})
	}
	return entries, nil
}

// PlayerRank returns a player's rank and score on a board
func (h *HallOfFame) PlayerRank(ctx context.Context, board, playerID string) (*Entry, error) {
	key := h.boardKey(board)

	rank, err := h.client.ZRevRank(ctx, key, playerID).Result()
	if err != nil {
		if err == redis.Nil {
			return nil, domain.ErrPlayerNotFound
		}
		return nil, fmt.Errorf("getting player rank: %w", err)
	}

	score, err := h.client.ZScore(ctx, key, playerID).Result()
	if err != nil {
		return nil, fmt.Errorf("getting player score: %w", err)
	}

	return &Entry{
		Rank:     rank + 1,
		PlayerID: playerID,
		Score:    int64(score),
	}, nil
}

// RemovePlayer drops a player from every board
func (h *HallOfFame) RemovePlayer(ctx context.Context, playerID string) error {
	for _, board := range []string{BoardKills, BoardHits, BoardDroneHits} {
		if err := h.client.ZRem(ctx, h.boardKey(board), playerID).Err(); err != nil {
			return fmt.Errorf("removing player from board %s: %w", board, err)
		}
	}
	return nil
}
