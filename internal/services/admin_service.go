package services

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/guildledger/backend/internal/audit"
	"github.com/guildledger/backend/internal/models"
)

// AccountStats is the admin view of one account.
type AccountStats struct {
	Account       models.Account         `json:"account"`
	Title         string                 `json:"title,omitempty"`
	Inventory     []models.InventoryItem `json:"inventory"`
	ItemCount     int64                  `json:"item_count"`
	ClaimedLevels []int                  `json:"claimed_levels"`
	Transactions  []models.Transaction   `json:"recent_transactions"`
}

// AdminService runs privileged economy operations. Every method authorizes the
// actor before touching the ledger.
type AdminService struct {
	economy *EconomyService
	audit   *audit.Logger
	log     *zap.Logger
}

func NewAdminService(economy *EconomyService, auditLog *audit.Logger, log *zap.Logger) *AdminService {
	if log == nil {
		log = zap.NewNop()
	}
	if auditLog == nil {
		auditLog = audit.NewLogger(log)
	}
	return &AdminService{economy: economy, audit: auditLog, log: log.Named("admin")}
}

func (s *AdminService) authorize(ctx context.Context, authz Authorizer, actorID, operation string) error {
	if authz == nil {
		observe(operation, ErrForbidden)
		return ErrForbidden
	}
	if err := authz.Authorize(ctx, actorID, CapabilityAdmin); err != nil {
		observe(operation, err)
		s.log.Warn("admin operation denied", zap.String("actor_id", actorID), zap.String("operation", operation))
		return err
	}
	return nil
}

// Credit adds amount as earnings, so it may level the account up.
func (s *AdminService) Credit(ctx context.Context, authz Authorizer, actorID, accountID string, amount int64) (*Result, error) {
	if err := s.authorize(ctx, authz, actorID, "admin_credit"); err != nil {
		return nil, err
	}
	if amount <= 0 {
		return nil, ErrInvalidAmount
	}

	result, err := s.economy.commit(ctx, "admin_credit", accountID, Batch{
		Deltas: []Delta{{AccountID: accountID, Amount: amount, Earned: true, Kind: models.KindAdmin, Category: "admin_credit"}},
	})
	if err != nil {
		return nil, err
	}
	s.audit.LogAdmin(actorID, accountID, "credit", map[string]string{"amount": fmt.Sprint(amount)})
	return result, nil
}

func (s *AdminService) Debit(ctx context.Context, authz Authorizer, actorID, accountID string, amount int64) (*Result, error) {
	if err := s.authorize(ctx, authz, actorID, "admin_debit"); err != nil {
		return nil, err
	}
	if amount <= 0 {
		return nil, ErrInvalidAmount
	}

	result, err := s.economy.commit(ctx, "admin_debit", accountID, Batch{
		Deltas: []Delta{{AccountID: accountID, Amount: -amount, Kind: models.KindAdmin, Category: "admin_debit"}},
	})
	if err != nil {
		return nil, err
	}
	s.audit.LogAdmin(actorID, accountID, "debit", map[string]string{"amount": fmt.Sprint(amount)})
	return result, nil
}

func (s *AdminService) GrantItem(ctx context.Context, authz Authorizer, actorID, accountID, itemID string, quantity int64) (*Result, error) {
	if err := s.authorize(ctx, authz, actorID, "admin_grant_item"); err != nil {
		return nil, err
	}
	if quantity <= 0 {
		return nil, ErrInvalidQuantity
	}

	result, err := s.economy.AdjustInventory(ctx, accountID, itemID, quantity)
	if err != nil {
		return nil, err
	}
	s.audit.LogAdmin(actorID, accountID, "grant_item", map[string]string{"item": itemID, "quantity": fmt.Sprint(quantity)})
	return result, nil
}

// RemoveItem takes every unit of itemID from the account.
func (s *AdminService) RemoveItem(ctx context.Context, authz Authorizer, actorID, accountID, itemID string) (*Result, error) {
	if err := s.authorize(ctx, authz, actorID, "admin_remove_item"); err != nil {
		return nil, err
	}

	result, err := s.economy.commit(ctx, "admin_remove_item", accountID, Batch{
		Accounts: []string{accountID},
		Prepare: func(snap *Snapshot, b *Batch) error {
			qty, err := snap.Quantity(accountID, itemID)
			if err != nil {
				return persistence("read inventory", err)
			}
			if qty == 0 {
				return ErrInsufficientItems
			}
			b.Items = append(b.Items, ItemDelta{AccountID: accountID, ItemID: itemID, Quantity: -qty})
			return nil
		},
	})
	if err != nil {
		return nil, err
	}
	s.audit.LogAdmin(actorID, accountID, "remove_item", map[string]string{"item": itemID})
	return result, nil
}

func clearInventory(accountID string) func(*Snapshot, *Batch) error {
	return func(snap *Snapshot, b *Batch) error {
		items, err := snap.Inventory(accountID)
		if err != nil {
			return persistence("read inventory", err)
		}
		for _, it := range items {
			b.Items = append(b.Items, ItemDelta{AccountID: accountID, ItemID: it.ItemID, Quantity: -it.Quantity})
		}
		return nil
	}
}

// ClearInventory removes every item the account holds. An empty inventory is not an error.
func (s *AdminService) ClearInventory(ctx context.Context, authz Authorizer, actorID, accountID string) (*Result, error) {
	if err := s.authorize(ctx, authz, actorID, "admin_clear_inventory"); err != nil {
		return nil, err
	}

	result, err := s.economy.commit(ctx, "admin_clear_inventory", accountID, Batch{
		Accounts: []string{accountID},
		Prepare:  clearInventory(accountID),
	})
	if err != nil {
		return nil, err
	}
	s.audit.LogAdmin(actorID, accountID, "clear_inventory", map[string]string{"items": fmt.Sprint(len(result.Items))})
	return result, nil
}

// SetLevel raises the account to level by crediting the missing lifetime earnings.
// Levels are never lowered.
func (s *AdminService) SetLevel(ctx context.Context, authz Authorizer, actorID, accountID string, level int) (*Result, error) {
	if err := s.authorize(ctx, authz, actorID, "admin_set_level"); err != nil {
		return nil, err
	}
	threshold, ok := s.economy.rewards.Threshold(level)
	if !ok || level < 1 {
		return nil, ErrUnknownLevel
	}

	result, err := s.economy.commit(ctx, "admin_set_level", accountID, Batch{
		Accounts: []string{accountID},
		Prepare: func(snap *Snapshot, b *Batch) error {
			acc := snap.Account(accountID)
			if acc.Level >= level {
				return fmt.Errorf("%w: account is already level %d", ErrLevelNotRaised, acc.Level)
			}
			b.Deltas = append(b.Deltas, Delta{
				AccountID: accountID,
				Amount:    threshold - acc.TotalEarned,
				Earned:    true,
				Kind:      models.KindAdmin,
				Category:  fmt.Sprintf("admin_set_level:%d", level),
			})
			return nil
		},
	})
	if err != nil {
		return nil, err
	}
	s.audit.LogAdmin(actorID, accountID, "set_level", map[string]string{"level": fmt.Sprint(level)})
	return result, nil
}

// Reset zeroes the balance and empties the inventory. History, lifetime earnings and
// claims are kept.
func (s *AdminService) Reset(ctx context.Context, authz Authorizer, actorID, accountID string) (*Result, error) {
	if err := s.authorize(ctx, authz, actorID, "admin_reset"); err != nil {
		return nil, err
	}

	emptyInventory := clearInventory(accountID)
	result, err := s.economy.commit(ctx, "admin_reset", accountID, Batch{
		Accounts: []string{accountID},
		Prepare: func(snap *Snapshot, b *Batch) error {
			if balance := snap.Account(accountID).Balance; balance > 0 {
				b.Deltas = append(b.Deltas, Delta{AccountID: accountID, Amount: -balance, Kind: models.KindAdmin, Category: "admin_reset"})
			}
			return emptyInventory(snap, b)
		},
	})
	if err != nil {
		return nil, err
	}
	s.audit.LogAdmin(actorID, accountID, "reset", nil)
	return result, nil
}

func (s *AdminService) AccountStats(ctx context.Context, authz Authorizer, actorID, accountID string) (*AccountStats, error) {
	if err := s.authorize(ctx, authz, actorID, "admin_account_stats"); err != nil {
		return nil, err
	}

	ledger := s.economy.ledger
	acc, err := ledger.GetAccount(ctx, accountID)
	if err != nil {
		return nil, err
	}
	items, err := ledger.Inventory(ctx, accountID)
	if err != nil {
		return nil, err
	}
	claimed, err := ledger.ClaimedLevels(ctx, accountID)
	if err != nil {
		return nil, err
	}
	txs, err := ledger.ListTransactions(ctx, accountID, 10, 0)
	if err != nil {
		return nil, err
	}

	stats := &AccountStats{
		Account:       acc,
		Title:         s.economy.rewards.Title(acc.Level),
		Inventory:     items,
		ClaimedLevels: []int{},
		Transactions:  txs,
	}
	for _, it := range items {
		stats.ItemCount += it.Quantity
	}
	for level := 1; level <= MaxLevel; level++ {
		if claimed[level] {
			stats.ClaimedLevels = append(stats.ClaimedLevels, level)
		}
	}
	return stats, nil
}

func (s *AdminService) EconomyStats(ctx context.Context, authz Authorizer, actorID string) (models.EconomyStats, error) {
	if err := s.authorize(ctx, authz, actorID, "admin_economy_stats"); err != nil {
		return models.EconomyStats{}, err
	}
	return s.economy.Stats(ctx)
}
