package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"slices"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/guildledger/backend/internal/database"
	"github.com/guildledger/backend/internal/metrics"
	"github.com/guildledger/backend/internal/models"
)

// Delta is one signed balance change.
type Delta struct {
	AccountID      string
	Amount         int64
	Earned         bool // also counts towards lifetime earnings
	Kind           string
	Category       string
	CounterpartyID string
}

// ItemDelta is one signed inventory change.
type ItemDelta struct {
	AccountID string
	ItemID    string
	Quantity  int64
}

// Claim marks a level reward as taken.
type Claim struct {
	AccountID string
	Level     int
}

// Batch is applied atomically by LedgerService.Apply.
type Batch struct {
	// Accounts lists ids to lock that are not named by a delta, e.g. when Prepare decides the deltas.
	Accounts []string
	Deltas   []Delta
	Items    []ItemDelta
	Claims   []Claim
	// Prepare runs against the locked pre-state and may extend the batch or reject it.
	Prepare func(snap *Snapshot, b *Batch) error
}

func (b *Batch) accountIDs() []string {
	ids := slices.Clone(b.Accounts)
	for _, d := range b.Deltas {
		ids = append(ids, d.AccountID)
	}
	for _, it := range b.Items {
		ids = append(ids, it.AccountID)
	}
	for _, c := range b.Claims {
		ids = append(ids, c.AccountID)
	}
	slices.Sort(ids)
	return slices.Compact(ids)
}

func (b *Batch) validate() error {
	for _, id := range b.accountIDs() {
		if id == "" {
			return ErrInvalidAccount
		}
	}
	for _, d := range b.Deltas {
		if d.Amount == 0 || (d.Earned && d.Amount < 0) {
			return ErrInvalidAmount
		}
	}
	for _, it := range b.Items {
		if it.ItemID == "" {
			return ErrUnknownItem
		}
		if it.Quantity == 0 {
			return ErrInvalidQuantity
		}
	}
	for _, c := range b.Claims {
		if c.Level < 1 {
			return ErrUnknownLevel
		}
	}
	return nil
}

// Receipt describes a committed batch.
type Receipt struct {
	TransactionID string
	Before        map[string]models.Account
	After         map[string]models.Account
	Entries       []models.Transaction
	// Items holds the resulting quantity of every touched inventory row; zero means removed.
	Items  []models.InventoryItem
	Claims []models.RewardClaim
}

// Snapshot exposes the locked pre-state of a batch.
type Snapshot struct {
	ctx      context.Context
	tx       *sql.Tx
	ledger   *LedgerService
	accounts map[string]models.Account
}

// Account returns the locked state of id. Unlocked ids read as a zero account.
func (s *Snapshot) Account(id string) models.Account {
	if acc, ok := s.accounts[id]; ok {
		return acc
	}
	return models.NewAccount(id)
}

func (s *Snapshot) Quantity(accountID, itemID string) (int64, error) {
	return s.ledger.quantity(s.ctx, s.tx, accountID, itemID)
}

func (s *Snapshot) ClaimedLevels(accountID string) (map[int]bool, error) {
	return s.ledger.claimedLevels(s.ctx, s.tx, accountID)
}

func (s *Snapshot) Inventory(accountID string) ([]models.InventoryItem, error) {
	return s.ledger.inventory(s.ctx, s.tx, accountID)
}

// LedgerService is the single writer of balances, inventories and reward claims.
type LedgerService struct {
	db       *sql.DB
	dialect  database.Dialect
	locker   *AccountLocker
	levelFor func(int64) int
	now      func() time.Time
	log      *zap.Logger
}

func NewLedgerService(db *sql.DB, dialect database.Dialect, levelFor func(int64) int, log *zap.Logger) *LedgerService {
	if log == nil {
		log = zap.NewNop()
	}
	return &LedgerService{
		db:       db,
		dialect:  dialect,
		locker:   NewAccountLocker(),
		levelFor: levelFor,
		now:      time.Now,
		log:      log.Named("ledger"),
	}
}

// Apply commits every change in b or none of them.
func (s *LedgerService) Apply(ctx context.Context, b Batch) (*Receipt, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := b.validate(); err != nil {
		return nil, err
	}

	ids := b.accountIDs()
	unlock := s.locker.Lock(ids...)
	defer unlock()

	start := time.Now()
	defer metrics.ObserveLedger(start)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, persistence("begin", err)
	}
	defer tx.Rollback()

	now := s.now().UTC()
	before := make(map[string]models.Account, len(ids))
	// Lock accounts in consistent order to prevent deadlocks
	for _, id := range ids {
		if err := s.ensureAccount(ctx, tx, id, now); err != nil {
			return nil, persistence("create account", err)
		}
		acc, err := s.lockAccount(ctx, tx, id)
		if err != nil {
			return nil, persistence("lock account", err)
		}
		before[id] = acc
	}

	if b.Prepare != nil {
		snap := &Snapshot{ctx: ctx, tx: tx, ledger: s, accounts: before}
		if err := b.Prepare(snap, &b); err != nil {
			return nil, err
		}
		if err := b.validate(); err != nil {
			return nil, err
		}
		for _, id := range b.accountIDs() {
			if _, ok := before[id]; !ok {
				return nil, fmt.Errorf("account %s was not locked by the batch", id)
			}
		}
	}

	receipt := &Receipt{
		TransactionID: uuid.NewString(),
		Before:        before,
		After:         make(map[string]models.Account, len(before)),
	}
	for id, acc := range before {
		receipt.After[id] = acc
	}

	for _, d := range b.Deltas {
		acc := receipt.After[d.AccountID]
		if d.Amount > 0 && acc.Balance > math.MaxInt64-d.Amount {
			return nil, fmt.Errorf("%w: balance of %s would overflow", ErrInvalidAmount, d.AccountID)
		}
		acc.Balance += d.Amount
		if acc.Balance < 0 {
			return nil, ErrInsufficientFunds
		}
		if d.Earned {
			if acc.TotalEarned > math.MaxInt64-d.Amount {
				return nil, fmt.Errorf("%w: lifetime earnings of %s would overflow", ErrInvalidAmount, d.AccountID)
			}
			acc.TotalEarned += d.Amount
		}
		acc.Level = s.levelFor(acc.TotalEarned)
		receipt.After[d.AccountID] = acc

		receipt.Entries = append(receipt.Entries, models.Transaction{
			TransactionID:  receipt.TransactionID,
			AccountID:      d.AccountID,
			CounterpartyID: d.CounterpartyID,
			Amount:         d.Amount,
			Kind:           d.Kind,
			Category:       d.Category,
			BalanceAfter:   acc.Balance,
			CreatedAt:      now,
		})
	}

	items, err := s.applyItems(ctx, tx, b.Items, now)
	if err != nil {
		return nil, err
	}
	receipt.Items = items

	for _, c := range b.Claims {
		claimed, err := s.claimExists(ctx, tx, c.AccountID, c.Level)
		if err != nil {
			return nil, persistence("read claim", err)
		}
		if claimed {
			return nil, ErrAlreadyClaimed
		}
		if err := s.insertClaim(ctx, tx, c, now); err != nil {
			return nil, persistence("record claim", err)
		}
		receipt.Claims = append(receipt.Claims, models.RewardClaim{AccountID: c.AccountID, Level: c.Level, ClaimedAt: now})
	}

	for i := range receipt.Entries {
		if err := s.createLedgerEntry(ctx, tx, &receipt.Entries[i]); err != nil {
			return nil, persistence("write transaction", err)
		}
	}

	for _, id := range ids {
		prev, next := before[id], receipt.After[id]
		if prev.Balance == next.Balance && prev.TotalEarned == next.TotalEarned && prev.Level == next.Level {
			continue
		}
		next.Version = prev.Version + 1
		next.UpdatedAt = now
		if err := s.updateAccount(ctx, tx, next, prev.Version); err != nil {
			return nil, persistence("update account", err)
		}
		receipt.After[id] = next
	}

	if err := tx.Commit(); err != nil {
		return nil, persistence("commit", err)
	}

	for _, e := range receipt.Entries {
		amount := e.Amount
		if amount < 0 {
			amount = -amount
		}
		metrics.CreditsMoved.WithLabelValues(e.Kind).Add(float64(amount))
	}

	s.log.Debug("ledger batch committed",
		zap.String("transaction_id", receipt.TransactionID),
		zap.Strings("accounts", ids),
		zap.Int("entries", len(receipt.Entries)),
		zap.Int("items", len(receipt.Items)),
		zap.Int("claims", len(receipt.Claims)),
	)
	return receipt, nil
}

type itemKey struct{ account, item string }

func (s *LedgerService) applyItems(ctx context.Context, tx *sql.Tx, deltas []ItemDelta, now time.Time) ([]models.InventoryItem, error) {
	if len(deltas) == 0 {
		return nil, nil
	}

	var order []itemKey
	sums := make(map[itemKey]int64)
	for _, d := range deltas {
		k := itemKey{d.AccountID, d.ItemID}
		if _, seen := sums[k]; !seen {
			order = append(order, k)
		}
		sums[k] += d.Quantity
	}

	out := make([]models.InventoryItem, 0, len(order))
	for _, k := range order {
		current, err := s.quantity(ctx, tx, k.account, k.item)
		if err != nil {
			return nil, persistence("read inventory", err)
		}
		next := current + sums[k]
		if next < 0 {
			return nil, ErrInsufficientItems
		}

		switch {
		case next == current:
		case next == 0:
			_, err = tx.ExecContext(ctx, s.dialect.Rebind(
				`DELETE FROM economy_inventory WHERE account_id = ? AND item_id = ?`),
				k.account, k.item)
		case current == 0:
			_, err = tx.ExecContext(ctx, s.dialect.Rebind(
				`INSERT INTO economy_inventory (account_id, item_id, quantity, acquired_at, updated_at) VALUES (?, ?, ?, ?, ?)`),
				k.account, k.item, next, now.UnixMilli(), now.UnixMilli())
		default:
			_, err = tx.ExecContext(ctx, s.dialect.Rebind(
				`UPDATE economy_inventory SET quantity = ?, updated_at = ? WHERE account_id = ? AND item_id = ?`),
				next, now.UnixMilli(), k.account, k.item)
		}
		if err != nil {
			return nil, persistence("write inventory", err)
		}

		out = append(out, models.InventoryItem{AccountID: k.account, ItemID: k.item, Quantity: next, UpdatedAt: now})
	}
	return out, nil
}

func (s *LedgerService) ensureAccount(ctx context.Context, tx *sql.Tx, id string, now time.Time) error {
	_, err := tx.ExecContext(ctx, s.dialect.Rebind(`
		INSERT INTO economy_accounts (id, balance, total_earned, level, version, created_at, updated_at)
		VALUES (?, 0, 0, 0, 0, ?, ?)
		ON CONFLICT (id) DO NOTHING`),
		id, now.UnixMilli(), now.UnixMilli())
	return err
}

const accountColumns = `id, balance, total_earned, level, version, created_at, updated_at`

func (s *LedgerService) lockAccount(ctx context.Context, tx *sql.Tx, id string) (models.Account, error) {
	row := tx.QueryRowContext(ctx, s.dialect.Rebind(
		`SELECT `+accountColumns+` FROM economy_accounts WHERE id = ?`+s.dialect.ForUpdate()), id)
	return scanAccount(row)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAccount(row rowScanner) (models.Account, error) {
	var (
		acc                  models.Account
		createdAt, updatedAt int64
	)
	if err := row.Scan(&acc.ID, &acc.Balance, &acc.TotalEarned, &acc.Level, &acc.Version, &createdAt, &updatedAt); err != nil {
		return models.Account{}, err
	}
	acc.CreatedAt = fromMillis(createdAt)
	acc.UpdatedAt = fromMillis(updatedAt)
	return acc, nil
}

func (s *LedgerService) createLedgerEntry(ctx context.Context, tx *sql.Tx, e *models.Transaction) error {
	var counterparty sql.NullString
	if e.CounterpartyID != "" {
		counterparty = sql.NullString{String: e.CounterpartyID, Valid: true}
	}
	return tx.QueryRowContext(ctx, s.dialect.Rebind(`
		INSERT INTO economy_transactions (transaction_id, account_id, counterparty_id, amount, kind, category, balance_after, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		RETURNING id`),
		e.TransactionID, e.AccountID, counterparty, e.Amount, e.Kind, e.Category, e.BalanceAfter, e.CreatedAt.UnixMilli(),
	).Scan(&e.ID)
}

func (s *LedgerService) updateAccount(ctx context.Context, tx *sql.Tx, acc models.Account, version int) error {
	result, err := tx.ExecContext(ctx, s.dialect.Rebind(`
		UPDATE economy_accounts
		SET balance = ?, total_earned = ?, level = ?, version = version + 1, updated_at = ?
		WHERE id = ? AND version = ?`),
		acc.Balance, acc.TotalEarned, acc.Level, acc.UpdatedAt.UnixMilli(), acc.ID, version)
	if err != nil {
		return err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rowsAffected == 0 {
		return fmt.Errorf("optimistic lock failed for account %s", acc.ID)
	}
	return nil
}

type queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *LedgerService) quantity(ctx context.Context, q queryer, accountID, itemID string) (int64, error) {
	var qty int64
	err := q.QueryRowContext(ctx, s.dialect.Rebind(
		`SELECT quantity FROM economy_inventory WHERE account_id = ? AND item_id = ?`),
		accountID, itemID).Scan(&qty)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	return qty, err
}

func (s *LedgerService) claimExists(ctx context.Context, q queryer, accountID string, level int) (bool, error) {
	var one int
	err := q.QueryRowContext(ctx, s.dialect.Rebind(
		`SELECT 1 FROM economy_reward_claims WHERE account_id = ? AND level = ?`),
		accountID, level).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	return err == nil, err
}

func (s *LedgerService) insertClaim(ctx context.Context, tx *sql.Tx, c Claim, now time.Time) error {
	_, err := tx.ExecContext(ctx, s.dialect.Rebind(
		`INSERT INTO economy_reward_claims (account_id, level, claimed_at) VALUES (?, ?, ?)`),
		c.AccountID, c.Level, now.UnixMilli())
	return err
}

func (s *LedgerService) claimedLevels(ctx context.Context, q queryer, accountID string) (map[int]bool, error) {
	rows, err := q.QueryContext(ctx, s.dialect.Rebind(
		`SELECT level FROM economy_reward_claims WHERE account_id = ?`), accountID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	claimed := make(map[int]bool)
	for rows.Next() {
		var level int
		if err := rows.Scan(&level); err != nil {
			return nil, err
		}
		claimed[level] = true
	}
	return claimed, rows.Err()
}

// GetAccount returns committed state; an unknown id reads as a zero account.
func (s *LedgerService) GetAccount(ctx context.Context, id string) (models.Account, error) {
	if err := ctx.Err(); err != nil {
		return models.Account{}, err
	}
	row := s.db.QueryRowContext(ctx, s.dialect.Rebind(
		`SELECT `+accountColumns+` FROM economy_accounts WHERE id = ?`), id)
	acc, err := scanAccount(row)
	if errors.Is(err, sql.ErrNoRows) {
		return models.NewAccount(id), nil
	}
	if err != nil {
		return models.Account{}, persistence("read account", err)
	}
	return acc, nil
}

// ListTransactions returns the newest rows first. before > 0 pages past that row id.
func (s *LedgerService) ListTransactions(ctx context.Context, accountID string, limit int, before int64) ([]models.Transaction, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if limit <= 0 || limit > 100 {
		limit = 20
	}

	query := `SELECT id, transaction_id, account_id, counterparty_id, amount, kind, category, balance_after, created_at
		FROM economy_transactions WHERE account_id = ?`
	args := []any{accountID}
	if before > 0 {
		query += ` AND id < ?`
		args = append(args, before)
	}
	query += ` ORDER BY id DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, s.dialect.Rebind(query), args...)
	if err != nil {
		return nil, persistence("list transactions", err)
	}
	defer rows.Close()

	var out []models.Transaction
	for rows.Next() {
		var (
			t            models.Transaction
			counterparty sql.NullString
			createdAt    int64
		)
		if err := rows.Scan(&t.ID, &t.TransactionID, &t.AccountID, &counterparty, &t.Amount, &t.Kind, &t.Category, &t.BalanceAfter, &createdAt); err != nil {
			return nil, persistence("scan transaction", err)
		}
		t.CounterpartyID = counterparty.String
		t.CreatedAt = fromMillis(createdAt)
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, persistence("list transactions", err)
	}
	return out, nil
}

// Inventory lists the items an account holds, ordered by item id.
func (s *LedgerService) Inventory(ctx context.Context, accountID string) ([]models.InventoryItem, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	items, err := s.inventory(ctx, s.db, accountID)
	if err != nil {
		return nil, persistence("read inventory", err)
	}
	return items, nil
}

func (s *LedgerService) inventory(ctx context.Context, q queryer, accountID string) ([]models.InventoryItem, error) {
	rows, err := q.QueryContext(ctx, s.dialect.Rebind(
		`SELECT account_id, item_id, quantity, acquired_at, updated_at
		FROM economy_inventory WHERE account_id = ? ORDER BY item_id`), accountID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.InventoryItem
	for rows.Next() {
		var (
			it                    models.InventoryItem
			acquiredAt, updatedAt int64
		)
		if err := rows.Scan(&it.AccountID, &it.ItemID, &it.Quantity, &acquiredAt, &updatedAt); err != nil {
			return nil, err
		}
		it.AcquiredAt = fromMillis(acquiredAt)
		it.UpdatedAt = fromMillis(updatedAt)
		out = append(out, it)
	}
	return out, rows.Err()
}

// ItemQuantity returns how many of itemID the account holds.
func (s *LedgerService) ItemQuantity(ctx context.Context, accountID, itemID string) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	qty, err := s.quantity(ctx, s.db, accountID, itemID)
	if err != nil {
		return 0, persistence("read inventory", err)
	}
	return qty, nil
}

// ClaimedLevels returns the levels whose reward the account already took.
func (s *LedgerService) ClaimedLevels(ctx context.Context, accountID string) (map[int]bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	claimed, err := s.claimedLevels(ctx, s.db, accountID)
	if err != nil {
		return nil, persistence("read claims", err)
	}
	return claimed, nil
}

// Leaderboard orders
const (
	RankByBalance = "balance"
	RankByEarned  = "earned"
	RankByLevel   = "level"
)

func (s *LedgerService) Leaderboard(ctx context.Context, by string, limit int) ([]models.LeaderboardEntry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	order := "balance DESC, id"
	switch by {
	case RankByEarned:
		order = "total_earned DESC, id"
	case RankByLevel:
		order = "level DESC, total_earned DESC, id"
	}
	if limit <= 0 {
		limit = 10
	}

	rows, err := s.db.QueryContext(ctx, s.dialect.Rebind(
		`SELECT id, balance, total_earned, level FROM economy_accounts ORDER BY `+order+` LIMIT ?`), limit)
	if err != nil {
		return nil, persistence("read leaderboard", err)
	}
	defer rows.Close()

	var out []models.LeaderboardEntry
	for rows.Next() {
		e := models.LeaderboardEntry{Rank: len(out) + 1}
		if err := rows.Scan(&e.AccountID, &e.Balance, &e.TotalEarned, &e.Level); err != nil {
			return nil, persistence("scan leaderboard", err)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, persistence("read leaderboard", err)
	}
	return out, nil
}

func (s *LedgerService) Stats(ctx context.Context) (models.EconomyStats, error) {
	if err := ctx.Err(); err != nil {
		return models.EconomyStats{}, err
	}
	var stats models.EconomyStats
	err := s.db.QueryRowContext(ctx, `
		SELECT
			(SELECT COUNT(*) FROM economy_accounts),
			(SELECT COALESCE(SUM(balance), 0) FROM economy_accounts),
			(SELECT COALESCE(SUM(total_earned), 0) FROM economy_accounts),
			(SELECT COALESCE(MAX(level), 0) FROM economy_accounts),
			(SELECT COUNT(*) FROM economy_transactions),
			(SELECT COALESCE(SUM(quantity), 0) FROM economy_inventory),
			(SELECT COUNT(*) FROM economy_reward_claims)`,
	).Scan(&stats.Accounts, &stats.TotalBalance, &stats.TotalEarned, &stats.HighestLevel,
		&stats.Transactions, &stats.ItemsInCirculation, &stats.RewardsClaimed)
	if err != nil {
		return models.EconomyStats{}, persistence("read stats", err)
	}
	return stats, nil
}

func fromMillis(value int64) time.Time {
	return time.UnixMilli(value).UTC()
}
