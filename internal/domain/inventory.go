package domain

import "time"

// InventoryItem is one collected pickup held durably by a player. Items are
// append-only on collection; using an item marks it consumed in place.
type InventoryItem struct {
	ItemID      string     `json:"itemId"`
	PlayerID    string     `json:"playerId"`
	Type        string     `json:"type"`
	Reward      int64      `json:"reward"`
	CollectedAt time.Time  `json:"collectedAt"`
	Used        bool       `json:"used"`
	UsedAt      *time.Time `json:"usedAt,omitempty"`
}
