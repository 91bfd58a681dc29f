package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/geostrike/internal/achievement"
	"github.com/geostrike/internal/config"
	"github.com/geostrike/internal/domain"
)

type achievementKey struct {
	playerID string
	counter  string
	value    int
}

type memStore struct {
	balances     map[string]int64
	events       []domain.RewardEvent
	achievements map[achievementKey]domain.Achievement

	eventErr error
	findErr  error
}

func newMemStore() *memStore {
	return &memStore{
		balances:     make(map[string]int64),
		achievements: make(map[achievementKey]domain.Achievement),
	}
}

func (s *memStore) IncrementPendingBalance(ctx context.Context, playerID string, amount int64) error {
	s.balances[playerID] += amount
	return nil
}

func (s *memStore) GetBalance(ctx context.Context, playerID string) (domain.Balance, error) {
	pending := s.balances[playerID]
	return domain.Balance{Pending: pending, Total: pending}, nil
}

func (s *memStore) InsertRewardEvent(ctx context.Context, ev domain.RewardEvent) error {
	if s.eventErr != nil {
		return s.eventErr
	}
	s.events = append(s.events, ev)
	return nil
}

func (s *memStore) FindAchievement(ctx context.Context, playerID, counterType string, milestone int) (bool, error) {
	if s.findErr != nil {
		return false, s.findErr
	}
	_, ok := s.achievements[achievementKey{playerID, counterType, milestone}]
	return ok, nil
}

func (s *memStore) InsertAchievement(ctx context.Context, a domain.Achievement) error {
	s.achievements[achievementKey{a.PlayerID, a.Type, a.Milestone}] = a
	return nil
}

func (s *memStore) ListAchievements(ctx context.Context, playerID string) ([]domain.Achievement, error) {
	var out []domain.Achievement
	for _, a := range s.achievements {
		if a.PlayerID == playerID {
			out = append(out, a)
		}
	}
	return out, nil
}

type recordingPublisher struct {
	published []domain.RewardEvent
	err       error
}

func (p *recordingPublisher) Publish(event domain.RewardEvent) error {
	if p.err != nil {
		return p.err
	}
	p.published = append(p.published, event)
	return nil
}

func testEngine() *achievement.Engine {
	return achievement.NewEngine(map[string][]config.Milestone{
		"kills": {
			{Value: 1, Reward: 10},
			{Value: 5, Reward: 25},
			{Value: 10, Reward: 50},
		},
	})
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestCreditAddsToPendingBalance(t *testing.T) {
	store := newMemStore()
	ledger := NewLedger(store, testEngine(), testLogger())
	ctx := context.Background()

	require.NoError(t, ledger.Credit(ctx, "alice", domain.RewardHit, 1))
	require.NoError(t, ledger.Credit(ctx, "alice", domain.RewardKill, 5))

	balance, err := ledger.Balance(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, int64(6), balance.Pending)
	assert.Equal(t, int64(0), balance.Minted)

	require.Len(t, store.events, 2)
	assert.Equal(t, domain.RewardHit, store.events[0].Type)
	assert.Equal(t, int64(5), store.events[1].Amount)
}

func TestCreditIgnoresNonPositiveAmounts(t *testing.T) {
	store := newMemStore()
	ledger := NewLedger(store, testEngine(), testLogger())

	require.NoError(t, ledger.Credit(context.Background(), "alice", domain.RewardHit, 0))
	require.NoError(t, ledger.Credit(context.Background(), "alice", domain.RewardHit, -3))

	assert.Empty(t, store.balances)
	assert.Empty(t, store.events)
}

func TestCreditSurvivesEventRecordFailure(t *testing.T) {
	store := newMemStore()
	store.eventErr = errors.New("db down")
	ledger := NewLedger(store, testEngine(), testLogger())

	require.NoError(t, ledger.Credit(context.Background(), "alice", domain.RewardHit, 1))
	assert.Equal(t, int64(1), store.balances["alice"])
}

func TestCreditPublishesEvents(t *testing.T) {
	store := newMemStore()
	pub := &recordingPublisher{}
	ledger := NewLedger(store, testEngine(), testLogger())
	ledger.SetPublisher(pub)

	require.NoError(t, ledger.Credit(context.Background(), "alice", domain.RewardDrone, 2))

	require.Len(t, pub.published, 1)
	assert.Equal(t, "alice", pub.published[0].PlayerID)
	assert.Equal(t, domain.RewardDrone, pub.published[0].Type)
}

func TestCreditSurvivesPublishFailure(t *testing.T) {
	store := newMemStore()
	ledger := NewLedger(store, testEngine(), testLogger())
	ledger.SetPublisher(&recordingPublisher{err: errors.New("broker down")})

	require.NoError(t, ledger.Credit(context.Background(), "alice", domain.RewardHit, 1))
	assert.Equal(t, int64(1), store.balances["alice"])
}

func TestGrantAchievementsUnlocksAllReached(t *testing.T) {
	store := newMemStore()
	ledger := NewLedger(store, testEngine(), testLogger())

	// A counter jumping straight to 7 unlocks both passed milestones.
	unlocked, err := ledger.GrantAchievements(context.Background(), "alice", "kills", 7)
	require.NoError(t, err)
	require.Len(t, unlocked, 2)
	assert.Equal(t, 1, unlocked[0].Milestone)
	assert.Equal(t, 5, unlocked[1].Milestone)

	// Milestone rewards were credited alongside.
	assert.Equal(t, int64(35), store.balances["alice"])
}

func TestGrantAchievementsIsIdempotent(t *testing.T) {
	store := newMemStore()
	ledger := NewLedger(store, testEngine(), testLogger())
	ctx := context.Background()

	unlocked, err := ledger.GrantAchievements(ctx, "alice", "kills", 1)
	require.NoError(t, err)
	require.Len(t, unlocked, 1)

	unlocked, err = ledger.GrantAchievements(ctx, "alice", "kills", 1)
	require.NoError(t, err)
	assert.Empty(t, unlocked)

	unlocked, err = ledger.GrantAchievements(ctx, "alice", "kills", 5)
	require.NoError(t, err)
	require.Len(t, unlocked, 1)
	assert.Equal(t, 5, unlocked[0].Milestone)

	assert.Equal(t, int64(35), store.balances["alice"])
}

func TestGrantAchievementsUnknownCounter(t *testing.T) {
	ledger := NewLedger(newMemStore(), testEngine(), testLogger())

	unlocked, err := ledger.GrantAchievements(context.Background(), "alice", "browsingTime", 100)
	require.NoError(t, err)
	assert.Empty(t, unlocked)
}

func TestGrantAchievementsStopsOnStoreError(t *testing.T) {
	store := newMemStore()
	store.findErr = errors.New("db down")
	ledger := NewLedger(store, testEngine(), testLogger())

	_, err := ledger.GrantAchievements(context.Background(), "alice", "kills", 3)
	assert.Error(t, err)
}
