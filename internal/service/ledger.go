package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/geostrike/internal/achievement"
	"github.com/geostrike/internal/domain"
)

// Store is the durable-store surface the ledger needs.
type Store interface {
	IncrementPendingBalance(ctx context.Context, playerID string, amount int64) error
	GetBalance(ctx context.Context, playerID string) (domain.Balance, error)
	InsertRewardEvent(ctx context.Context, ev domain.RewardEvent) error
	FindAchievement(ctx context.Context, playerID, counterType string, milestone int) (bool, error)
	InsertAchievement(ctx context.Context, a domain.Achievement) error
	ListAchievements(ctx context.Context, playerID string) ([]domain.Achievement, error)
}

// EventPublisher mirrors reward events to an external stream.
type EventPublisher interface {
	Publish(event domain.RewardEvent) error
}

// Ledger applies token credits and achievement milestones as side effects of
// verified gameplay events. All credits land in the pending balance; the
// promotion to minted is an external, administrative concern.
type Ledger struct {
	store     Store
	engine    *achievement.Engine
	publisher EventPublisher
	logger    *slog.Logger
}

// NewLedger creates a reward ledger over the durable store
func NewLedger(store Store, engine *achievement.Engine, logger *slog.Logger) *Ledger {
	return &Ledger{
		store:  store,
		engine: engine,
		logger: logger,
	}
}

// SetPublisher attaches an optional reward event stream.
func (l *Ledger) SetPublisher(p EventPublisher) {
	l.publisher = p
}

// Credit adds tokens to the player's pending balance and appends one reward
// event. The balance increment is the authoritative step; a failure recording
// or publishing the event is logged and does not undo the credit.
func (l *Ledger) Credit(ctx context.Context, playerID, rewardType string, amount int64) error {
	if amount <= 0 {
		return nil
	}

	if err := l.store.IncrementPendingBalance(ctx, playerID, amount); err != nil {
		return fmt.Errorf("crediting balance: %w", err)
	}

	event := domain.RewardEvent{
		PlayerID:  playerID,
		Type:      rewardType,
		Amount:    amount,
		Timestamp: time.Now(),
	}
	if err := l.store.InsertRewardEvent(ctx, event); err != nil {
		l.logger.Warn("failed to record reward event",
			"player_id", playerID, "type", rewardType, "error", err)
	}

	if l.publisher != nil {
		if err := l.publisher.Publish(event); err != nil {
			l.logger.Warn("failed to publish reward event",
				"player_id", playerID, "type", rewardType, "error", err)
		}
	}

	return nil
}

// Balance reads the player's token balances through to the durable store.
func (l *Ledger) Balance(ctx context.Context, playerID string) (domain.Balance, error) {
	return l.store.GetBalance(ctx, playerID)
}

// Achievements lists the milestones a player has unlocked.
func (l *Ledger) Achievements(ctx context.Context, playerID string) ([]domain.Achievement, error) {
	return l.store.ListAchievements(ctx, playerID)
}

// GrantAchievements evaluates a counter's new value against the configured
// milestones and unlocks every newly qualifying one. The existence check
// against the store is what makes re-evaluation of the same value a no-op;
// each freshly unlocked milestone is persisted before its reward is credited.
func (l *Ledger) GrantAchievements(ctx context.Context, playerID, counterType string, value int) ([]domain.Achievement, error) {
	var unlocked []domain.Achievement

	for _, m := range l.engine.Evaluate(counterType, value) {
		exists, err := l.store.FindAchievement(ctx, playerID, counterType, m.Value)
		if err != nil {
			return unlocked, fmt.Errorf("checking achievement: %w", err)
		}
		if exists {
			continue
		}

		a := domain.Achievement{
			PlayerID:   playerID,
			Type:       counterType,
			Milestone:  m.Value,
			UnlockedAt: time.Now(),
		}
		if err := l.store.InsertAchievement(ctx, a); err != nil {
			return unlocked, fmt.Errorf("persisting achievement: %w", err)
		}

		if m.Reward > 0 {
			if err := l.Credit(ctx, playerID, domain.RewardAchievement, m.Reward); err != nil {
				l.logger.Error("failed to credit achievement reward",
					"player_id", playerID, "type", counterType,
					"milestone", m.Value, "error", err)
			}
		}

		l.logger.Info("achievement unlocked",
			"player_id", playerID, "type", counterType, "milestone", m.Value)
		unlocked = append(unlocked, a)
	}

	return unlocked, nil
}
