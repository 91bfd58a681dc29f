package domain

import (
	"encoding/json"
	"time"
)

// Inbound message types
const (
	MessageTypeJoin           = "join"
	MessageTypeShoot          = "shoot"
	MessageTypeShootConfirmed = "shootConfirmed"
	MessageTypeHit            = "hit"
	MessageTypeHitConfirmed   = "hitConfirmed"
	MessageTypeKill           = "kill"
	MessageTypeShootDrone     = "shootDrone"
	MessageTypeRemoveDrones   = "removeDrones"
	MessageTypeGeoObjectHit   = "geoObjectHit"
	MessageTypeReload         = "reload"
	MessageTypeStats          = "stats"
)

// Outbound message types
const (
	MessageTypeAnnounced              = "announced"
	MessageTypeLeave                  = "leave"
	MessageTypeNewDrone               = "newDrone"
	MessageTypeDroneShootConfirmed    = "droneShootConfirmed"
	MessageTypeDroneShootRejected     = "droneShootRejected"
	MessageTypeNewGeoObject           = "newGeoObject"
	MessageTypeGeoObjectShootConfirmed = "geoObjectShootConfirmed"
	MessageTypeGeoObjectShootRejected  = "geoObjectShootRejected"
)

// Envelope is the wire frame exchanged over the socket. Data is kept raw on
// the inbound path and decoded per message type by the dispatcher.
type Envelope struct {
	Type      string          `json:"type"`
	PlayerID  string          `json:"playerId"`
	SenderID  string          `json:"senderId,omitempty"`
	Data      json.RawMessage `json:"data,omitempty"`
	Timestamp string          `json:"timestamp,omitempty"`
}

// NewEnvelope builds an outbound envelope, marshaling the payload into Data.
// A payload that cannot be marshaled leaves Data empty rather than failing;
// every payload type in this package is marshal-safe.
func NewEnvelope(msgType, playerID string, payload any) Envelope {
	env := Envelope{
		Type:      msgType,
		PlayerID:  playerID,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}
	if payload != nil {
		if data, err := json.Marshal(payload); err == nil {
			env.Data = data
		}
	}
	return env
}

// PlayerInfo is the player snapshot carried by join and announce messages.
type PlayerInfo struct {
	PlayerID string    `json:"playerId"`
	Location *Location `json:"location,omitempty"`
	Heading  float64   `json:"heading,omitempty"`
}

// JoinPayload is the data of a join message.
type JoinPayload struct {
	Player    PlayerInfo `json:"player"`
	PushToken string     `json:"pushToken,omitempty"`
}

// ShootPayload is the data of shoot and shootConfirmed messages.
type ShootPayload struct {
	Location *Location `json:"location,omitempty"`
}

// HitPayload is the data of hit, hitConfirmed and kill messages.
type HitPayload struct {
	TargetPlayerID string `json:"targetPlayerId,omitempty"`
	Damage         int    `json:"damage,omitempty"`
}

// ShootDronePayload is the data of a shootDrone message.
type ShootDronePayload struct {
	Drone DroneRef `json:"drone"`
}

// DroneRef identifies a drone in a shootDrone message.
type DroneRef struct {
	DroneID string `json:"droneId"`
}

// GeoObjectHitPayload is the data of a geoObjectHit message.
type GeoObjectHitPayload struct {
	ID string `json:"id"`
}

// DronePayload is the data of newDrone and drone claim outcome messages.
type DronePayload struct {
	Kind     string        `json:"kind"`
	DroneID  string        `json:"droneId"`
	Position DronePosition `json:"position"`
	Reward   int64         `json:"reward"`
}

// GeoObjectPayload is the data of newGeoObject and pickup claim outcome
// messages.
type GeoObjectPayload struct {
	ID         string         `json:"id"`
	Type       string         `json:"type,omitempty"`
	Coordinate *Location      `json:"coordinate,omitempty"`
	Reward     int64          `json:"reward"`
	Item       *InventoryItem `json:"item,omitempty"`
	Reason     string         `json:"reason,omitempty"`
}

// StatsPayload is the data of a stats message.
type StatsPayload struct {
	Kind string `json:"kind"`
	PlayerStats
	Pending int64 `json:"pendingBalance"`
	Minted  int64 `json:"mintedBalance"`
}

// LeavePayload is the data of a leave broadcast.
type LeavePayload struct {
	Player *PlayerInfo `json:"player"`
}
