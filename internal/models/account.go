package models

import (
	"time"
)

// Account is one member's economy state. Level always equals the level reached by TotalEarned.
type Account struct {
	ID          string    `json:"id" db:"id" example:"284102384756293632"`
	Balance     int64     `json:"balance" db:"balance" example:"1500"`
	TotalEarned int64     `json:"total_earned" db:"total_earned" example:"4200"`
	Level       int       `json:"level" db:"level" example:"4"`
	Version     int       `json:"version" db:"version"` // for optimistic locking
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time `json:"updated_at" db:"updated_at"`
}

// NewAccount returns the zero state an account has before its first write.
func NewAccount(id string) Account {
	return Account{ID: id}
}

// LeaderboardEntry is one ranked row of the leaderboard.
type LeaderboardEntry struct {
	Rank        int    `json:"rank"`
	AccountID   string `json:"account_id"`
	Balance     int64  `json:"balance"`
	TotalEarned int64  `json:"total_earned"`
	Level       int    `json:"level"`
}

// EconomyStats summarizes the whole economy.
type EconomyStats struct {
	Accounts           int64 `json:"accounts"`
	TotalBalance       int64 `json:"total_balance"`
	TotalEarned        int64 `json:"total_earned"`
	Transactions       int64 `json:"transactions"`
	HighestLevel       int   `json:"highest_level"`
	ItemsInCirculation int64 `json:"items_in_circulation"`
	RewardsClaimed     int64 `json:"rewards_claimed"`
}
