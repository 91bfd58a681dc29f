package game

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/geostrike/internal/domain"
	"github.com/geostrike/internal/websocket"
)

func TestRoundCoord(t *testing.T) {
	assert.Equal(t, 40.713, roundCoord(40.7128, 3))
	assert.Equal(t, -74.006, roundCoord(-74.0060, 3))
	assert.Equal(t, 40.712, roundCoord(40.7122, 3))
	assert.Equal(t, 41.0, roundCoord(40.7128, 0))
}

func TestSameCell(t *testing.T) {
	a := &domain.Location{Latitude: 40.7128, Longitude: -74.0060}
	b := &domain.Location{Latitude: 40.7129, Longitude: -74.0061}
	c := &domain.Location{Latitude: 40.7222, Longitude: -74.0060}

	assert.True(t, sameCell(a, b, 3))
	assert.False(t, sameCell(a, c, 3))
	assert.False(t, sameCell(a, nil, 3))
	assert.False(t, sameCell(nil, b, 3))

	// Coarser precision merges the cells.
	assert.True(t, sameCell(a, c, 1))
}

func sessionAt(playerID string, lat, lon float64, lastActive time.Time) websocket.Session {
	return websocket.Session{
		PlayerID:   playerID,
		Location:   &domain.Location{Latitude: lat, Longitude: lon},
		LastActive: lastActive,
	}
}

func TestNearbySessionsMutualAtSharedCell(t *testing.T) {
	now := time.Now()
	sessions := []websocket.Session{
		sessionAt("alice", 40.7128, -74.0060, now),
		sessionAt("bob", 40.7129, -74.0061, now),
		sessionAt("carol", 40.7222, -74.0060, now),
	}

	nearAlice := nearbySessions(sessions, "alice", 3, 5*time.Minute, now)
	require.Len(t, nearAlice, 1)
	assert.Equal(t, "bob", nearAlice[0].PlayerID)

	nearBob := nearbySessions(sessions, "bob", 3, 5*time.Minute, now)
	require.Len(t, nearBob, 1)
	assert.Equal(t, "alice", nearBob[0].PlayerID)

	assert.Empty(t, nearbySessions(sessions, "carol", 3, 5*time.Minute, now))
}

func TestNearbySessionsExcludesSelf(t *testing.T) {
	now := time.Now()
	sessions := []websocket.Session{
		sessionAt("alice", 40.7128, -74.0060, now),
	}
	assert.Empty(t, nearbySessions(sessions, "alice", 3, 5*time.Minute, now))
}

func TestNearbySessionsSkipsMissingLocation(t *testing.T) {
	now := time.Now()
	sessions := []websocket.Session{
		sessionAt("alice", 40.7128, -74.0060, now),
		{PlayerID: "bob", LastActive: now},
	}

	assert.Empty(t, nearbySessions(sessions, "alice", 3, 5*time.Minute, now))

	// A subject without a location sees nobody.
	assert.Empty(t, nearbySessions(sessions, "bob", 3, 5*time.Minute, now))
}

func TestNearbySessionsFreshnessWindow(t *testing.T) {
	now := time.Now()
	sessions := []websocket.Session{
		sessionAt("alice", 40.7128, -74.0060, now),
		sessionAt("bob", 40.7129, -74.0061, now.Add(-6*time.Minute)),
		sessionAt("carol", 40.7129, -74.0060, now.Add(-4*time.Minute)),
	}

	near := nearbySessions(sessions, "alice", 3, 5*time.Minute, now)
	require.Len(t, near, 1)
	assert.Equal(t, "carol", near[0].PlayerID)
}

func TestNearbySessionsUnknownSubject(t *testing.T) {
	now := time.Now()
	sessions := []websocket.Session{
		sessionAt("alice", 40.7128, -74.0060, now),
	}
	assert.Empty(t, nearbySessions(sessions, "ghost", 3, 5*time.Minute, now))
}
