package services

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/guildledger/backend/internal/database"
)

type testEnv struct {
	db      *sql.DB
	ledger  *LedgerService
	rewards *RewardTable
	catalog *Catalog
	economy *EconomyService
}

// newTestEnv opens a migrated SQLite ledger in a temp dir.
func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	db, err := database.OpenSQLite(filepath.Join(t.TempDir(), "economy.db"), zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	catalog, err := DefaultCatalog()
	require.NoError(t, err)

	rewards := NewRewardTable()
	ledger := NewLedgerService(db, database.SQLite(), rewards.LevelFor, zap.NewNop())
	return &testEnv{
		db:      db,
		ledger:  ledger,
		rewards: rewards,
		catalog: catalog,
		economy: NewEconomyService(ledger, rewards, catalog, nil, zap.NewNop()),
	}
}

func (e *testEnv) account(t *testing.T, id string) (balance, earned int64, level int) {
	t.Helper()
	acc, err := e.ledger.GetAccount(context.Background(), id)
	require.NoError(t, err)
	return acc.Balance, acc.TotalEarned, acc.Level
}

func (e *testEnv) seed(t *testing.T, id string, amount int64) {
	t.Helper()
	_, err := e.economy.Earn(context.Background(), id, amount, "seed")
	require.NoError(t, err)
}

func (e *testEnv) countRows(t *testing.T, table string) int {
	t.Helper()
	var n int
	require.NoError(t, e.db.QueryRow(`SELECT COUNT(*) FROM `+table).Scan(&n))
	return n
}

// scriptedRand replays fixed values; an exhausted script yields zeros.
type scriptedRand struct {
	ints   []int64
	floats []float64
}

func (r *scriptedRand) Int64N(n int64) int64 {
	if len(r.ints) == 0 {
		return 0
	}
	v := r.ints[0]
	r.ints = r.ints[1:]
	return min(v, n-1)
}

func (r *scriptedRand) Float64() float64 {
	if len(r.floats) == 0 {
		return 0
	}
	v := r.floats[0]
	r.floats = r.floats[1:]
	return v
}
