package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/guildledger/backend/internal/database"
)

var errClearFailed = errors.New("redis down")

// failingClearStore is a working cooldown store whose Clear always fails.
type failingClearStore struct {
	*SQLCooldownStore
	clears int
}

func (s *failingClearStore) Clear(context.Context, string, []string) error {
	s.clears++
	return errClearFailed
}

func newActivityService(t *testing.T, rnd *scriptedRand) (*testEnv, *ActivityService, *SQLCooldownStore) {
	t.Helper()
	env := newTestEnv(t)
	cooldowns := NewSQLCooldownStore(env.db, database.SQLite())
	return env, NewActivityService(env.economy, cooldowns, rnd, DefaultActivityConfig(), zap.NewNop()), cooldowns
}

func TestActivityService_Daily(t *testing.T) {
	ctx := context.Background()
	_, svc, cooldowns := newActivityService(t, &scriptedRand{ints: []int64{30}})

	result, err := svc.Daily(ctx, "1001")
	require.NoError(t, err)
	assert.Equal(t, int64(130), result.Amount)
	assert.Equal(t, int64(130), result.Account.Balance)
	require.Len(t, result.LevelUps, 1)

	_, err = svc.Daily(ctx, "1001")
	assert.ErrorIs(t, err, ErrOnCooldown)

	remaining, err := cooldowns.Remaining(ctx, "1001", ActionDaily)
	require.NoError(t, err)
	assert.InDelta(t, (24 * time.Hour).Seconds(), remaining.Seconds(), 5)
}

func TestActivityService_DailyLevelBonus(t *testing.T) {
	ctx := context.Background()
	env, svc, _ := newActivityService(t, &scriptedRand{ints: []int64{0}})
	env.seed(t, "1001", 2000)

	result, err := svc.Daily(ctx, "1001")
	require.NoError(t, err)
	// base 100 + 25 * level 3
	assert.Equal(t, int64(175), result.Amount)
}

func TestActivityService_Work(t *testing.T) {
	ctx := context.Background()

	t.Run("pays the job range plus bonuses", func(t *testing.T) {
		env, svc, _ := newActivityService(t, &scriptedRand{ints: []int64{10, 5}})
		env.seed(t, "1001", 1000)

		result, err := svc.Work(ctx, "1001", "helper")
		require.NoError(t, err)
		// 50+10 from the range, 5*2 for level 2, 5 performance
		assert.Equal(t, int64(75), result.Amount)
		assert.Equal(t, "Helper", result.Scenario)

		tx, ok := result.Transaction()
		require.True(t, ok)
		assert.Equal(t, "work:helper", tx.Category)

		_, err = svc.Work(ctx, "1001", "helper")
		assert.ErrorIs(t, err, ErrOnCooldown)
	})

	t.Run("job level requirement", func(t *testing.T) {
		_, svc, cooldowns := newActivityService(t, &scriptedRand{})

		_, err := svc.Work(ctx, "1001", "moderator")
		assert.ErrorIs(t, err, ErrLevelNotReached)

		remaining, err := cooldowns.Remaining(ctx, "1001", workAction("moderator"))
		require.NoError(t, err)
		assert.Zero(t, remaining)
	})

	t.Run("unknown job", func(t *testing.T) {
		_, svc, _ := newActivityService(t, &scriptedRand{})

		_, err := svc.Work(ctx, "1001", "astronaut")
		assert.ErrorIs(t, err, ErrUnknownJob)
	})
}

func TestActivityService_Crime(t *testing.T) {
	ctx := context.Background()

	t.Run("success earns the reward", func(t *testing.T) {
		_, svc, _ := newActivityService(t, &scriptedRand{ints: []int64{0, 50}, floats: []float64{0.1}})

		result, err := svc.Crime(ctx, "1001")
		require.NoError(t, err)
		assert.True(t, result.Success)
		assert.Equal(t, "Pickpocket", result.Scenario)
		assert.Equal(t, int64(100), result.Amount)
		assert.Equal(t, int64(100), result.Account.TotalEarned)

		_, err = svc.Crime(ctx, "1001")
		assert.ErrorIs(t, err, ErrOnCooldown)
	})

	t.Run("fine is capped at the balance", func(t *testing.T) {
		env, svc, _ := newActivityService(t, &scriptedRand{ints: []int64{0, 100}, floats: []float64{0.9}})
		env.seed(t, "1001", 80)

		result, err := svc.Crime(ctx, "1001")
		require.NoError(t, err)
		assert.False(t, result.Success)
		assert.Equal(t, int64(-80), result.Amount)
		assert.Equal(t, int64(0), result.Account.Balance)
		assert.Equal(t, int64(80), result.Account.TotalEarned)
	})

	t.Run("broke accounts pay nothing", func(t *testing.T) {
		env, svc, _ := newActivityService(t, &scriptedRand{ints: []int64{2}, floats: []float64{0.99}})

		result, err := svc.Crime(ctx, "1001")
		require.NoError(t, err)
		assert.False(t, result.Success)
		assert.Equal(t, "Rob Bank", result.Scenario)
		assert.Zero(t, result.Amount)
		assert.Equal(t, 0, env.countRows(t, "economy_transactions"))
	})
}

func TestActivityService_Gamble(t *testing.T) {
	ctx := context.Background()
	env, svc, _ := newActivityService(t, &scriptedRand{ints: []int64{0, 1}})
	env.seed(t, "1001", 100)

	won, err := svc.Gamble(ctx, "1001", 50)
	require.NoError(t, err)
	assert.True(t, won.Success)
	assert.Equal(t, int64(150), won.Account.Balance)

	lost, err := svc.Gamble(ctx, "1001", 50)
	require.NoError(t, err)
	assert.False(t, lost.Success)
	assert.Equal(t, int64(-50), lost.Amount)
	assert.Equal(t, int64(100), lost.Account.Balance)

	_, err = svc.Gamble(ctx, "1001", 101)
	assert.ErrorIs(t, err, ErrInsufficientFunds)

	_, err = svc.Gamble(ctx, "1001", 0)
	assert.ErrorIs(t, err, ErrInvalidAmount)
}

func TestActivityService_UseItem(t *testing.T) {
	ctx := context.Background()

	t.Run("consumable credit is used up", func(t *testing.T) {
		env, svc, _ := newActivityService(t, &scriptedRand{ints: []int64{20}})
		_, err := env.economy.AdjustInventory(ctx, "1001", "coffee", 2)
		require.NoError(t, err)

		result, err := svc.UseItem(ctx, "1001", "coffee")
		require.NoError(t, err)
		assert.Equal(t, int64(70), result.Amount)
		assert.Equal(t, int64(70), result.Account.Balance)

		qty, err := env.ledger.ItemQuantity(ctx, "1001", "coffee")
		require.NoError(t, err)
		assert.Equal(t, int64(1), qty)
	})

	t.Run("missing or unknown items", func(t *testing.T) {
		_, svc, _ := newActivityService(t, &scriptedRand{})

		_, err := svc.UseItem(ctx, "1001", "coffee")
		assert.ErrorIs(t, err, ErrInsufficientItems)

		_, err = svc.UseItem(ctx, "1001", "warp_drive")
		assert.ErrorIs(t, err, ErrUnknownItem)
	})

	t.Run("lottery miss still consumes the ticket", func(t *testing.T) {
		env, svc, _ := newActivityService(t, &scriptedRand{floats: []float64{0.5}})
		_, err := env.economy.AdjustInventory(ctx, "1001", "lottery_ticket", 1)
		require.NoError(t, err)

		result, err := svc.UseItem(ctx, "1001", "lottery_ticket")
		require.NoError(t, err)
		assert.Zero(t, result.Amount)
		assert.Contains(t, result.Message, "Better luck")

		qty, err := env.ledger.ItemQuantity(ctx, "1001", "lottery_ticket")
		require.NoError(t, err)
		assert.Zero(t, qty)
	})

	t.Run("mystery box can contain an item", func(t *testing.T) {
		env, svc, _ := newActivityService(t, &scriptedRand{ints: []int64{2}, floats: []float64{0.5}})
		_, err := env.economy.AdjustInventory(ctx, "1001", "mystery_box", 1)
		require.NoError(t, err)

		result, err := svc.UseItem(ctx, "1001", "mystery_box")
		require.NoError(t, err)
		assert.Equal(t, "pizza", result.FoundItem)

		items, err := env.economy.Inventory(ctx, "1001")
		require.NoError(t, err)
		require.Len(t, items, 1)
		assert.Equal(t, "pizza", items[0].ItemID)
	})

	t.Run("health potion clears cooldowns", func(t *testing.T) {
		env, svc, _ := newActivityService(t, &scriptedRand{})
		_, err := env.economy.AdjustInventory(ctx, "1001", "health_potion", 1)
		require.NoError(t, err)

		_, err = svc.Daily(ctx, "1001")
		require.NoError(t, err)
		active, err := svc.Cooldowns(ctx, "1001")
		require.NoError(t, err)
		assert.Contains(t, active, ActionDaily)

		result, err := svc.UseItem(ctx, "1001", "health_potion")
		require.NoError(t, err)
		assert.Contains(t, result.CooldownsCleared, ActionDaily)

		_, err = svc.Daily(ctx, "1001")
		assert.NoError(t, err)
	})

	t.Run("failed cooldown clear keeps the potion", func(t *testing.T) {
		env := newTestEnv(t)
		cooldowns := &failingClearStore{SQLCooldownStore: NewSQLCooldownStore(env.db, database.SQLite())}
		svc := NewActivityService(env.economy, cooldowns, &scriptedRand{}, DefaultActivityConfig(), zap.NewNop())
		_, err := env.economy.AdjustInventory(ctx, "1001", "health_potion", 1)
		require.NoError(t, err)

		_, err = svc.UseItem(ctx, "1001", "health_potion")
		require.ErrorIs(t, err, errClearFailed)

		qty, err := env.ledger.ItemQuantity(ctx, "1001", "health_potion")
		require.NoError(t, err)
		assert.Equal(t, int64(1), qty)
	})

	t.Run("missing potion clears nothing", func(t *testing.T) {
		env := newTestEnv(t)
		cooldowns := &failingClearStore{SQLCooldownStore: NewSQLCooldownStore(env.db, database.SQLite())}
		svc := NewActivityService(env.economy, cooldowns, &scriptedRand{}, DefaultActivityConfig(), zap.NewNop())

		_, err := svc.UseItem(ctx, "1001", "health_potion")
		assert.ErrorIs(t, err, ErrInsufficientItems)
		assert.Zero(t, cooldowns.clears)
	})

	t.Run("tools are kept and cooldown guarded", func(t *testing.T) {
		env, svc, cooldowns := newActivityService(t, &scriptedRand{floats: []float64{0.1}})
		_, err := env.economy.AdjustInventory(ctx, "1001", "fishing_rod", 1)
		require.NoError(t, err)

		result, err := svc.UseItem(ctx, "1001", "fishing_rod")
		require.NoError(t, err)
		assert.Equal(t, int64(150), result.Amount)

		qty, err := env.ledger.ItemQuantity(ctx, "1001", "fishing_rod")
		require.NoError(t, err)
		assert.Equal(t, int64(1), qty)

		_, err = svc.UseItem(ctx, "1001", "fishing_rod")
		assert.ErrorIs(t, err, ErrOnCooldown)

		// a failed use gives the reservation back
		_, err = svc.UseItem(ctx, "1001", "pickaxe")
		assert.ErrorIs(t, err, ErrInsufficientItems)
		remaining, err := cooldowns.Remaining(ctx, "1001", useAction("pickaxe"))
		require.NoError(t, err)
		assert.Zero(t, remaining)
	})

	t.Run("passive items report their benefit", func(t *testing.T) {
		env, svc, _ := newActivityService(t, &scriptedRand{})
		_, err := env.economy.AdjustInventory(ctx, "1001", "vip_badge", 1)
		require.NoError(t, err)

		result, err := svc.UseItem(ctx, "1001", "vip_badge")
		require.NoError(t, err)
		assert.Contains(t, result.Message, "passive benefits")

		qty, err := env.ledger.ItemQuantity(ctx, "1001", "vip_badge")
		require.NoError(t, err)
		assert.Equal(t, int64(1), qty)
	})
}
