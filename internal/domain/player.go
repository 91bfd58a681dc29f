package domain

import (
	"math"
	"time"
)

// Location is a player's last reported geo-coordinate.
type Location struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Altitude  float64 `json:"altitude"`
	Accuracy  float64 `json:"accuracy"`
}

// Player represents a player's durable record.
type Player struct {
	PlayerID   string       `json:"playerId"`
	Location   *Location    `json:"location,omitempty"`
	Stats      PlayerStats  `json:"stats"`
	LastActive time.Time    `json:"lastActive"`
	CreatedAt  time.Time    `json:"createdAt"`
}

// PlayerStats holds the durable gameplay counters. Accuracy is derived from
// hits/shots and persisted redundantly for fast reads.
type PlayerStats struct {
	Kills               int `json:"kills"`
	Hits                int `json:"hits"`
	Deaths              int `json:"deaths"`
	Shots               int `json:"shots"`
	DroneHits           int `json:"droneHits"`
	GeoObjectsCollected int `json:"geoObjectsCollected"`
	Accuracy            int `json:"accuracy"`
	CurrentAmmo         int `json:"currentAmmo"`
	CurrentLives        int `json:"currentLives"`
}

// StatsDelta is a read-modify-write increment applied to PlayerStats.
// Ammo and lives are clamped at zero when decremented past empty.
type StatsDelta struct {
	Kills               int
	Hits                int
	Deaths              int
	Shots               int
	DroneHits           int
	GeoObjectsCollected int
	Ammo                int
	Lives               int
}

// DeriveAccuracy computes the percentage of shots that hit, rounded and
// clamped to [0, 100]. Zero shots yields zero, and inconsistent counters
// (hits > shots) clamp rather than exceed 100.
func DeriveAccuracy(hits, shots int) int {
	if shots <= 0 {
		return 0
	}
	acc := int(math.Round(float64(hits) / float64(shots) * 100))
	if acc > 100 {
		return 100
	}
	if acc < 0 {
		return 0
	}
	return acc
}

// Balance is the two-stage token accounting for a player. Pending accrues
// from gameplay; minted is finalized by an external promotion policy that
// this core never applies.
type Balance struct {
	PlayerID string `json:"playerId"`
	Minted   int64  `json:"mintedBalance"`
	Pending  int64  `json:"pendingBalance"`
	Total    int64  `json:"totalBalance"`
}

// Reward types recorded in the ledger.
const (
	RewardHit         = "HIT"
	RewardKill        = "KILL"
	RewardDrone       = "DRONE"
	RewardGeoObject   = "GEO_OBJECT"
	RewardAchievement = "ACHIEVEMENT"
)

// RewardEvent is one append-only row per granted reward.
type RewardEvent struct {
	PlayerID  string    `json:"playerId"`
	Type      string    `json:"type"`
	Amount    int64     `json:"amount"`
	Timestamp time.Time `json:"timestamp"`
}

// Achievement marks a milestone a player has unlocked. The row's existence
// is authoritative for "already unlocked".
type Achievement struct {
	PlayerID   string    `json:"playerId"`
	Type       string    `json:"type"`
	Milestone  int       `json:"milestone"`
	UnlockedAt time.Time `json:"unlockedAt"`
}
