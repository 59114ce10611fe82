package audit

import (
	"time"

	"go.uber.org/zap"
)

// Event types
const (
	EventEarn        = "EARN"
	EventSpend       = "SPEND"
	EventTransfer    = "TRANSFER"
	EventRewardClaim = "REWARD_CLAIM"
	EventInventory   = "INVENTORY"
	EventAdmin       = "ADMIN"
	EventError       = "ERROR"
)

type Event struct {
	Timestamp     time.Time
	EventType     string
	TransactionID string
	AccountID     string
	Amount        int64
	Status        string
	Details       map[string]string
}

// Logger writes audit events as structured entries on a dedicated named logger.
type Logger struct {
	log *zap.Logger
}

func NewLogger(log *zap.Logger) *Logger {
	if log == nil {
		log = zap.NewNop()
	}
	return &Logger{log: log.Named("audit")}
}

func (a *Logger) LogTransfer(transactionID, fromAccount, toAccount string, amount int64, status string) {
	a.write(Event{
		Timestamp:     time.Now(),
		EventType:     EventTransfer,
		TransactionID: transactionID,
		AccountID:     fromAccount,
		Amount:        amount,
		Status:        status,
		Details: map[string]string{
			"from_account": fromAccount,
			"to_account":   toAccount,
		},
	})
}

func (a *Logger) LogError(transactionID, accountID string, err error) {
	a.write(Event{
		Timestamp:     time.Now(),
		EventType:     EventError,
		TransactionID: transactionID,
		AccountID:     accountID,
		Status:        "FAILED",
		Details:       map[string]string{"error": err.Error()},
	})
}

// LogOperation records a completed single-account operation.
func (a *Logger) LogOperation(eventType, transactionID, accountID string, amount int64, details map[string]string) {
	a.write(Event{
		Timestamp:     time.Now(),
		EventType:     eventType,
		TransactionID: transactionID,
		AccountID:     accountID,
		Amount:        amount,
		Status:        "SUCCESS",
		Details:       details,
	})
}

// LogAdmin records an administrative action together with the acting id.
func (a *Logger) LogAdmin(actorID, accountID, action string, details map[string]string) {
	if details == nil {
		details = map[string]string{}
	}
	details["actor"] = actorID
	details["action"] = action
	a.write(Event{
		Timestamp: time.Now(),
		EventType: EventAdmin,
		AccountID: accountID,
		Status:    "SUCCESS",
		Details:   details,
	})
}

func (a *Logger) write(event Event) {
	fields := []zap.Field{
		zap.Time("timestamp", event.Timestamp),
		zap.String("event_type", event.EventType),
		zap.String("account_id", event.AccountID),
		zap.String("status", event.Status),
	}
	if event.TransactionID != "" {
		fields = append(fields, zap.String("transaction_id", event.TransactionID))
	}
	if event.Amount != 0 {
		fields = append(fields, zap.Int64("amount", event.Amount))
	}
	for k, v := range event.Details {
		fields = append(fields, zap.String(k, v))
	}
	if event.Status == "FAILED" {
		a.log.Warn("AUDIT", fields...)
		return
	}
	a.log.Info("AUDIT", fields...)
}
