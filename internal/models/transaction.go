package models

import (
	"time"
)

// Transaction kinds
const (
	KindEarn     = "earn"
	KindSpend    = "spend"
	KindTransfer = "transfer"
	KindReward   = "reward"
	KindAdmin    = "admin"
)

// Transaction is one append-only ledger row. All rows written by one batch share TransactionID.
type Transaction struct {
	ID             int64     `json:"id" db:"id"`
	TransactionID  string    `json:"transaction_id" db:"transaction_id"`
	AccountID      string    `json:"account_id" db:"account_id"`
	CounterpartyID string    `json:"counterparty_id,omitempty" db:"counterparty_id"`
	Amount         int64     `json:"amount" db:"amount"` // signed
	Kind           string    `json:"kind" db:"kind" example:"earn"`
	Category       string    `json:"category" db:"category" example:"work:developer"`
	BalanceAfter   int64     `json:"balance_after" db:"balance_after"`
	CreatedAt      time.Time `json:"created_at" db:"created_at"`
}
