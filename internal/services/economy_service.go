package services

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"go.uber.org/zap"

	"github.com/guildledger/backend/internal/audit"
	"github.com/guildledger/backend/internal/metrics"
	"github.com/guildledger/backend/internal/models"
)

// maxPurchaseQuantity bounds a single purchase so price*quantity cannot overflow.
const maxPurchaseQuantity = 1000

// LevelUp is emitted once per newly reached level.
type LevelUp struct {
	AccountID string             `json:"account_id"`
	Level     int                `json:"level"`
	Reward    models.RewardEntry `json:"reward"`
}

// Result describes the committed effect of one economy operation.
type Result struct {
	TransactionID string                 `json:"transaction_id"`
	Account       models.Account         `json:"account"`
	Counterparty  *models.Account        `json:"counterparty,omitempty"`
	Transactions  []models.Transaction   `json:"transactions,omitempty"`
	Items         []models.InventoryItem `json:"items,omitempty"`
	LevelUps      []LevelUp              `json:"level_ups,omitempty"`
	Rewards       []models.RewardEntry   `json:"rewards,omitempty"`
}

// Transaction returns the row written for the acting account, if any.
func (r *Result) Transaction() (models.Transaction, bool) {
	for _, t := range r.Transactions {
		if t.AccountID == r.Account.ID {
			return t, true
		}
	}
	return models.Transaction{}, false
}

// Progress describes where an account stands on the level curve.
type Progress struct {
	Account       models.Account      `json:"account"`
	Title         string              `json:"title,omitempty"`
	NextLevel     int                 `json:"next_level,omitempty"`
	NextThreshold int64               `json:"next_threshold,omitempty"`
	Remaining     int64               `json:"remaining"`
	Percent       float64             `json:"percent"`
	NextReward    *models.RewardEntry `json:"next_reward,omitempty"`
	MaxLevel      bool                `json:"max_level"`
}

// RewardStatus lists claimed and claimable rewards of an account.
type RewardStatus struct {
	Level   int                  `json:"level"`
	Claimed []int                `json:"claimed"`
	Pending []models.RewardEntry `json:"pending"`
}

// InventoryEntry joins a held quantity with its catalog entry.
type InventoryEntry struct {
	models.InventoryItem
	Item models.ShopItem `json:"item"`
}

// EconomyService applies the economy rules on top of the ledger.
type EconomyService struct {
	ledger  *LedgerService
	rewards *RewardTable
	catalog *Catalog
	audit   *audit.Logger
	log     *zap.Logger
}

func NewEconomyService(ledger *LedgerService, rewards *RewardTable, catalog *Catalog, auditLog *audit.Logger, log *zap.Logger) *EconomyService {
	if log == nil {
		log = zap.NewNop()
	}
	if auditLog == nil {
		auditLog = audit.NewLogger(log)
	}
	return &EconomyService{
		ledger:  ledger,
		rewards: rewards,
		catalog: catalog,
		audit:   auditLog,
		log:     log.Named("economy"),
	}
}

func (s *EconomyService) Rewards() *RewardTable { return s.rewards }
func (s *EconomyService) Catalog() *Catalog     { return s.catalog }

func observe(operation string, err error) {
	outcome := metrics.OutcomeSuccess
	switch {
	case err == nil:
	case IsRejection(err):
		outcome = metrics.OutcomeRejected
	default:
		outcome = metrics.OutcomeError
	}
	metrics.Operations.WithLabelValues(operation, outcome).Inc()
}

// commit applies b and shapes the receipt around the acting account.
func (s *EconomyService) commit(ctx context.Context, operation, accountID string, b Batch) (*Result, error) {
	receipt, err := s.ledger.Apply(ctx, b)
	observe(operation, err)
	if err != nil {
		if !IsRejection(err) {
			s.log.Error("ledger batch failed",
				zap.String("operation", operation),
				zap.String("account_id", accountID),
				zap.Error(err),
			)
			s.audit.LogError("", accountID, err)
		}
		return nil, err
	}

	result := &Result{
		TransactionID: receipt.TransactionID,
		Account:       receipt.After[accountID],
		Transactions:  receipt.Entries,
		Items:         receipt.Items,
	}

	ids := make([]string, 0, len(receipt.After))
	for id := range receipt.After {
		ids = append(ids, id)
	}
	slices.Sort(ids)

	// the actor's own entry names its counterparty; otherwise the lowest other id
	counterparty := ""
	for _, e := range receipt.Entries {
		if e.AccountID == accountID && e.CounterpartyID != "" {
			counterparty = e.CounterpartyID
			break
		}
	}
	if counterparty == "" {
		for _, id := range ids {
			if id != accountID {
				counterparty = id
				break
			}
		}
	}
	if other, ok := receipt.After[counterparty]; ok && counterparty != accountID {
		result.Counterparty = &other
	}
	for _, id := range ids {
		for level := receipt.Before[id].Level + 1; level <= receipt.After[id].Level; level++ {
			reward, _ := s.rewards.Reward(level)
			result.LevelUps = append(result.LevelUps, LevelUp{AccountID: id, Level: level, Reward: reward})
		}
	}
	for _, c := range receipt.Claims {
		reward, _ := s.rewards.Reward(c.Level)
		result.Rewards = append(result.Rewards, reward)
	}

	if len(result.LevelUps) > 0 {
		metrics.LevelUps.Add(float64(len(result.LevelUps)))
		s.log.Info("level up",
			zap.String("account_id", accountID),
			zap.Int("level", result.Account.Level),
			zap.Int("levels_gained", len(result.LevelUps)),
		)
	}
	if len(result.Rewards) > 0 {
		metrics.RewardClaims.Add(float64(len(result.Rewards)))
	}
	return result, nil
}

func category(value, fallback string) string {
	if value = strings.TrimSpace(value); value != "" {
		return value
	}
	return fallback
}

// Earn credits amount as earnings and reports every level crossed.
func (s *EconomyService) Earn(ctx context.Context, accountID string, amount int64, reason string) (*Result, error) {
	if amount <= 0 {
		observe("earn", ErrInvalidAmount)
		return nil, ErrInvalidAmount
	}

	result, err := s.commit(ctx, "earn", accountID, Batch{
		Deltas: []Delta{{
			AccountID: accountID,
			Amount:    amount,
			Earned:    true,
			Kind:      models.KindEarn,
			Category:  category(reason, "earn"),
		}},
	})
	if err != nil {
		return nil, err
	}

	s.audit.LogOperation(audit.EventEarn, result.TransactionID, accountID, amount, map[string]string{"category": category(reason, "earn")})
	return result, nil
}

// Spend debits amount. Lifetime earnings are not affected.
func (s *EconomyService) Spend(ctx context.Context, accountID string, amount int64, reason string) (*Result, error) {
	if amount <= 0 {
		observe("spend", ErrInvalidAmount)
		return nil, ErrInvalidAmount
	}

	result, err := s.commit(ctx, "spend", accountID, Batch{
		Deltas: []Delta{{
			AccountID: accountID,
			Amount:    -amount,
			Kind:      models.KindSpend,
			Category:  category(reason, "spend"),
		}},
	})
	if err != nil {
		return nil, err
	}

	s.audit.LogOperation(audit.EventSpend, result.TransactionID, accountID, amount, map[string]string{"category": category(reason, "spend")})
	return result, nil
}

// Transfer moves amount between two accounts. Transfers are not earnings.
func (s *EconomyService) Transfer(ctx context.Context, fromID, toID string, amount int64) (*Result, error) {
	if fromID == toID {
		observe("transfer", ErrInvalidTarget)
		return nil, ErrInvalidTarget
	}
	if amount <= 0 {
		observe("transfer", ErrInvalidAmount)
		return nil, ErrInvalidAmount
	}

	result, err := s.commit(ctx, "transfer", fromID, Batch{
		Deltas: []Delta{
			{AccountID: fromID, Amount: -amount, Kind: models.KindTransfer, Category: "transfer", CounterpartyID: toID},
			{AccountID: toID, Amount: amount, Kind: models.KindTransfer, Category: "transfer", CounterpartyID: fromID},
		},
	})
	if err != nil {
		s.audit.LogTransfer("", fromID, toID, amount, "FAILED")
		return nil, err
	}

	s.audit.LogTransfer(result.TransactionID, fromID, toID, amount, "SUCCESS")
	return result, nil
}

// ClaimLevelReward grants the one-time reward for level. The credits do not count
// as earnings, so claiming never changes the account level.
func (s *EconomyService) ClaimLevelReward(ctx context.Context, accountID string, level int) (*Result, error) {
	reward, ok := s.rewards.Reward(level)
	if !ok {
		observe("claim_reward", ErrUnknownLevel)
		return nil, ErrUnknownLevel
	}

	result, err := s.commit(ctx, "claim_reward", accountID, Batch{
		Accounts: []string{accountID},
		Prepare: func(snap *Snapshot, b *Batch) error {
			if snap.Account(accountID).Level < level {
				return ErrLevelNotReached
			}
			s.addReward(b, accountID, reward)
			return nil
		},
	})
	if err != nil {
		return nil, err
	}

	s.audit.LogOperation(audit.EventRewardClaim, result.TransactionID, accountID, reward.Credits,
		map[string]string{"level": fmt.Sprint(level)})
	return result, nil
}

// ClaimPendingRewards claims every unclaimed level up to the current one in one batch.
func (s *EconomyService) ClaimPendingRewards(ctx context.Context, accountID string) (*Result, error) {
	result, err := s.commit(ctx, "claim_all_rewards", accountID, Batch{
		Accounts: []string{accountID},
		Prepare: func(snap *Snapshot, b *Batch) error {
			current := snap.Account(accountID).Level
			if current < 1 {
				return ErrLevelNotReached
			}
			claimed, err := snap.ClaimedLevels(accountID)
			if err != nil {
				return persistence("read claims", err)
			}
			for level := 1; level <= current; level++ {
				if claimed[level] {
					continue
				}
				reward, _ := s.rewards.Reward(level)
				s.addReward(b, accountID, reward)
			}
			if len(b.Claims) == 0 {
				return ErrAlreadyClaimed
			}
			return nil
		},
	})
	if err != nil {
		return nil, err
	}

	var total int64
	for _, r := range result.Rewards {
		total += r.Credits
	}
	s.audit.LogOperation(audit.EventRewardClaim, result.TransactionID, accountID, total,
		map[string]string{"levels": fmt.Sprint(len(result.Rewards))})
	return result, nil
}

func (s *EconomyService) addReward(b *Batch, accountID string, reward models.RewardEntry) {
	b.Deltas = append(b.Deltas, Delta{
		AccountID: accountID,
		Amount:    reward.Credits,
		Kind:      models.KindReward,
		Category:  fmt.Sprintf("level_reward:%d", reward.Level),
	})
	for _, item := range reward.Items {
		b.Items = append(b.Items, ItemDelta{AccountID: accountID, ItemID: item, Quantity: 1})
	}
	b.Claims = append(b.Claims, Claim{AccountID: accountID, Level: reward.Level})
}

// AdjustInventory adds or removes units of a catalog item.
func (s *EconomyService) AdjustInventory(ctx context.Context, accountID, itemID string, delta int64) (*Result, error) {
	if delta == 0 {
		observe("adjust_inventory", ErrInvalidQuantity)
		return nil, ErrInvalidQuantity
	}
	if _, ok := s.catalog.Item(itemID); !ok {
		observe("adjust_inventory", ErrUnknownItem)
		return nil, ErrUnknownItem
	}

	result, err := s.commit(ctx, "adjust_inventory", accountID, Batch{
		Items: []ItemDelta{{AccountID: accountID, ItemID: itemID, Quantity: delta}},
	})
	if err != nil {
		return nil, err
	}

	s.audit.LogOperation(audit.EventInventory, result.TransactionID, accountID, 0,
		map[string]string{"item": itemID, "delta": fmt.Sprint(delta)})
	return result, nil
}

// Purchase debits the catalog price and grants the items in one batch.
func (s *EconomyService) Purchase(ctx context.Context, accountID, itemID string, quantity int64) (*Result, error) {
	if quantity <= 0 || quantity > maxPurchaseQuantity {
		observe("purchase", ErrInvalidQuantity)
		return nil, ErrInvalidQuantity
	}
	item, ok := s.catalog.Item(itemID)
	if !ok {
		observe("purchase", ErrUnknownItem)
		return nil, ErrUnknownItem
	}
	cost := item.Price * quantity

	result, err := s.commit(ctx, "purchase", accountID, Batch{
		Deltas: []Delta{{AccountID: accountID, Amount: -cost, Kind: models.KindSpend, Category: "shop:" + itemID}},
		Items:  []ItemDelta{{AccountID: accountID, ItemID: itemID, Quantity: quantity}},
	})
	if err != nil {
		return nil, err
	}

	s.audit.LogOperation(audit.EventSpend, result.TransactionID, accountID, cost,
		map[string]string{"item": itemID, "quantity": fmt.Sprint(quantity)})
	return result, nil
}

func (s *EconomyService) Account(ctx context.Context, accountID string) (models.Account, error) {
	return s.ledger.GetAccount(ctx, accountID)
}

// Progress reports the account's position towards its next level.
func (s *EconomyService) Progress(ctx context.Context, accountID string) (*Progress, error) {
	acc, err := s.ledger.GetAccount(ctx, accountID)
	if err != nil {
		return nil, err
	}

	p := &Progress{Account: acc, Title: s.rewards.Title(acc.Level)}
	if acc.Level >= MaxLevel {
		p.MaxLevel = true
		p.Percent = 100
		return p, nil
	}

	current, _ := s.rewards.Threshold(acc.Level)
	next, _ := s.rewards.Threshold(acc.Level + 1)
	reward, _ := s.rewards.Reward(acc.Level + 1)

	p.NextLevel = acc.Level + 1
	p.NextThreshold = next
	p.Remaining = next - acc.TotalEarned
	p.Percent = float64(acc.TotalEarned-current) / float64(next-current) * 100
	p.NextReward = &reward
	return p, nil
}

func (s *EconomyService) Transactions(ctx context.Context, accountID string, limit int, before int64) ([]models.Transaction, error) {
	return s.ledger.ListTransactions(ctx, accountID, limit, before)
}

// Inventory lists held items with their catalog details. Items no longer in the
// catalog are reported with only their id.
func (s *EconomyService) Inventory(ctx context.Context, accountID string) ([]InventoryEntry, error) {
	items, err := s.ledger.Inventory(ctx, accountID)
	if err != nil {
		return nil, err
	}

	out := make([]InventoryEntry, 0, len(items))
	for _, it := range items {
		item, ok := s.catalog.Item(it.ItemID)
		if !ok {
			item = models.ShopItem{ID: it.ItemID, Name: it.ItemID}
		}
		out = append(out, InventoryEntry{InventoryItem: it, Item: item})
	}
	return out, nil
}

// RewardStatus reports claimed levels and the rewards still waiting to be claimed.
func (s *EconomyService) RewardStatus(ctx context.Context, accountID string) (*RewardStatus, error) {
	acc, err := s.ledger.GetAccount(ctx, accountID)
	if err != nil {
		return nil, err
	}
	claimed, err := s.ledger.ClaimedLevels(ctx, accountID)
	if err != nil {
		return nil, err
	}

	status := &RewardStatus{Level: acc.Level, Claimed: []int{}, Pending: []models.RewardEntry{}}
	for level := 1; level <= acc.Level; level++ {
		if claimed[level] {
			status.Claimed = append(status.Claimed, level)
			continue
		}
		reward, _ := s.rewards.Reward(level)
		status.Pending = append(status.Pending, reward)
	}
	return status, nil
}

func (s *EconomyService) Leaderboard(ctx context.Context, by string, limit int) ([]models.LeaderboardEntry, error) {
	return s.ledger.Leaderboard(ctx, by, limit)
}

func (s *EconomyService) Stats(ctx context.Context) (models.EconomyStats, error) {
	return s.ledger.Stats(ctx)
}
