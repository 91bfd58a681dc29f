package domain

import "time"

// EntityKind distinguishes the two ephemeral entity variants.
type EntityKind string

const (
	KindDrone     EntityKind = "drone"
	KindGeoPickup EntityKind = "geoPickup"
)

// DronePosition is a local 3D offset relative to the owner's device.
type DronePosition struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// EphemeralEntity is a transient collectible world object with one owner and
// one valid claimant. Reward is fixed at spawn time and never mutated.
type EphemeralEntity struct {
	EntityID      string        `json:"entityId"`
	Kind          EntityKind    `json:"kind"`
	OwnerPlayerID string        `json:"ownerPlayerId"`
	Position      DronePosition `json:"position,omitempty"`
	Coordinate    *Location     `json:"coordinate,omitempty"`
	Subtype       string        `json:"subtype,omitempty"`
	Reward        int64         `json:"reward"`
	SpawnedAt     time.Time     `json:"spawnedAt"`
}

// Expired reports whether the entity has outlived the given max age at now.
func (e *EphemeralEntity) Expired(now time.Time, maxAge time.Duration) bool {
	return now.Sub(e.SpawnedAt) > maxAge
}

// Geo pickup subtypes.
const (
	PickupWeapon  = "weapon"
	PickupTarget  = "target"
	PickupPowerup = "powerup"
)
