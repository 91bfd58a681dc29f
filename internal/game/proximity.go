package game

import (
	"math"
	"time"

	"github.com/geostrike/internal/domain"
	"github.com/geostrike/internal/websocket"
)

// roundCoord rounds a coordinate to the configured decimal precision. At
// three decimals one cell spans roughly 110 meters of latitude.
func roundCoord(v float64, precision int) float64 {
	p := math.Pow10(precision)
	return math.Round(v*p) / p
}

// sameCell reports whether two locations fall in the same geocell.
func sameCell(a, b *domain.Location, precision int) bool {
	if a == nil || b == nil {
		return false
	}
	return roundCoord(a.Latitude, precision) == roundCoord(b.Latitude, precision) &&
		roundCoord(a.Longitude, precision) == roundCoord(b.Longitude, precision)
}

// nearbySessions filters a session snapshot down to the peers sharing the
// subject's geocell. Sessions without a location, sessions idle past the
// freshness window and the subject itself are excluded. A subject with no
// location sees nobody.
func nearbySessions(sessions []websocket.Session, selfID string, precision int, freshness time.Duration, now time.Time) []websocket.Session {
	var self *websocket.Session
	for i := range sessions {
		if sessions[i].PlayerID == selfID {
			self = &sessions[i]
			break
		}
	}
	if self == nil || self.Location == nil {
		return nil
	}

	var nearby []websocket.Session
	for _, sess := range sessions {
		if sess.PlayerID == selfID || sess.Location == nil {
			continue
		}
		if freshness > 0 && now.Sub(sess.LastActive) > freshness {
			continue
		}
		if sameCell(self.Location, sess.Location, precision) {
			nearby = append(nearby, sess)
		}
	}
	return nearby
}

// Nearby returns the live sessions in the same geocell as playerID.
func (d *Dispatcher) Nearby(playerID string) []websocket.Session {
	return nearbySessions(
		d.registry.Snapshot(),
		playerID,
		d.cfg.Proximity.Precision,
		d.cfg.Proximity.Freshness,
		time.Now(),
	)
}
