package models

import "time"

type InventoryItem struct {
	AccountID  string    `json:"account_id" db:"account_id"`
	ItemID     string    `json:"item_id" db:"item_id"`
	Quantity   int64     `json:"quantity" db:"quantity"`
	AcquiredAt time.Time `json:"acquired_at" db:"acquired_at"`
	UpdatedAt  time.Time `json:"updated_at" db:"updated_at"`
}

type RewardClaim struct {
	AccountID string    `json:"account_id" db:"account_id"`
	Level     int       `json:"level" db:"level"`
	ClaimedAt time.Time `json:"claimed_at" db:"claimed_at"`
}
