package services

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/guildledger/backend/internal/models"
)

func TestEconomyService_DailyAndClaimScenario(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)

	result, err := env.economy.Earn(ctx, "1001", 150, "daily")
	require.NoError(t, err)
	assert.Equal(t, int64(150), result.Account.Balance)
	assert.Equal(t, 1, result.Account.Level)
	require.Len(t, result.LevelUps, 1)
	assert.Equal(t, 1, result.LevelUps[0].Level)
	assert.Equal(t, int64(100), result.LevelUps[0].Reward.Credits)

	tx, ok := result.Transaction()
	require.True(t, ok)
	assert.Equal(t, models.KindEarn, tx.Kind)
	assert.Equal(t, "daily", tx.Category)

	claimed, err := env.economy.ClaimLevelReward(ctx, "1001", 1)
	require.NoError(t, err)
	assert.Equal(t, int64(250), claimed.Account.Balance)
	assert.Equal(t, int64(150), claimed.Account.TotalEarned)
	assert.Empty(t, claimed.LevelUps)
	require.Len(t, claimed.Rewards, 1)

	_, err = env.economy.ClaimLevelReward(ctx, "1001", 1)
	assert.ErrorIs(t, err, ErrAlreadyClaimed)

	balance, _, _ := env.account(t, "1001")
	assert.Equal(t, int64(250), balance)
}

func TestEconomyService_Spend(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	env.seed(t, "1001", 150)

	_, err := env.economy.Spend(ctx, "1001", 200, "shop")
	assert.ErrorIs(t, err, ErrInsufficientFunds)

	balance, earned, _ := env.account(t, "1001")
	assert.Equal(t, int64(150), balance)
	assert.Equal(t, int64(150), earned)

	result, err := env.economy.Spend(ctx, "1001", 100, "shop")
	require.NoError(t, err)
	assert.Equal(t, int64(50), result.Account.Balance)
	assert.Equal(t, int64(150), result.Account.TotalEarned)

	_, err = env.economy.Spend(ctx, "1001", 0, "shop")
	assert.ErrorIs(t, err, ErrInvalidAmount)
}

func TestEconomyService_Earn(t *testing.T) {
	ctx := context.Background()

	t.Run("crossing several thresholds emits ascending level ups", func(t *testing.T) {
		env := newTestEnv(t)

		result, err := env.economy.Earn(ctx, "1001", 2100, "event")
		require.NoError(t, err)
		assert.Equal(t, 3, result.Account.Level)
		require.Len(t, result.LevelUps, 3)
		for i, up := range result.LevelUps {
			assert.Equal(t, i+1, up.Level)
			assert.Equal(t, i+1, up.Reward.Level)
		}
	})

	t.Run("non positive amounts are rejected", func(t *testing.T) {
		env := newTestEnv(t)

		_, err := env.economy.Earn(ctx, "1001", 0, "x")
		assert.ErrorIs(t, err, ErrInvalidAmount)
		_, err = env.economy.Earn(ctx, "1001", -10, "x")
		assert.ErrorIs(t, err, ErrInvalidAmount)
		assert.Equal(t, 0, env.countRows(t, "economy_accounts"))
	})

	t.Run("concurrent earns all land", func(t *testing.T) {
		env := newTestEnv(t)

		var wg sync.WaitGroup
		for i := 0; i < 20; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := env.economy.Earn(ctx, "1001", 10, "chat")
				assert.NoError(t, err)
			}()
		}
		wg.Wait()

		balance, earned, level := env.account(t, "1001")
		assert.Equal(t, int64(200), balance)
		assert.Equal(t, int64(200), earned)
		assert.Equal(t, 1, level)
		assert.Equal(t, 20, env.countRows(t, "economy_transactions"))
	})
}

func TestEconomyService_Transfer(t *testing.T) {
	ctx := context.Background()

	t.Run("conserves the combined balance", func(t *testing.T) {
		env := newTestEnv(t)
		env.seed(t, "1001", 500)
		env.seed(t, "2002", 50)

		result, err := env.economy.Transfer(ctx, "1001", "2002", 200)
		require.NoError(t, err)
		assert.Equal(t, int64(300), result.Account.Balance)
		require.NotNil(t, result.Counterparty)
		assert.Equal(t, "2002", result.Counterparty.ID)
		assert.Equal(t, int64(250), result.Counterparty.Balance)
		require.Len(t, result.Transactions, 2)
		assert.Equal(t, result.Transactions[0].TransactionID, result.Transactions[1].TransactionID)

		a, _, _ := env.account(t, "1001")
		b, earnedB, _ := env.account(t, "2002")
		assert.Equal(t, int64(550), a+b)
		assert.Equal(t, int64(50), earnedB)
	})

	t.Run("counterparty follows the actor's entry in a three-way batch", func(t *testing.T) {
		env := newTestEnv(t)
		env.seed(t, "1001", 500)

		for i := 0; i < 20; i++ {
			result, err := env.economy.commit(ctx, "split", "1001", Batch{Deltas: []Delta{
				{AccountID: "1001", Amount: -20, Kind: models.KindTransfer, Category: "transfer", CounterpartyID: "3003"},
				{AccountID: "3003", Amount: 10, Kind: models.KindTransfer, Category: "transfer", CounterpartyID: "1001"},
				{AccountID: "2002", Amount: 10, Kind: models.KindTransfer, Category: "transfer", CounterpartyID: "1001"},
			}})
			require.NoError(t, err)
			require.NotNil(t, result.Counterparty)
			assert.Equal(t, "3003", result.Counterparty.ID)
			assert.Equal(t, int64(10*(i+1)), result.Counterparty.Balance)
		}
	})

	t.Run("counterparty without a named entry is the lowest other id", func(t *testing.T) {
		env := newTestEnv(t)
		env.seed(t, "1001", 500)

		for i := 0; i < 20; i++ {
			result, err := env.economy.commit(ctx, "split", "1001", Batch{Deltas: []Delta{
				{AccountID: "1001", Amount: -20, Kind: models.KindSpend, Category: "split"},
				{AccountID: "3003", Amount: 10, Kind: models.KindReward, Category: "split"},
				{AccountID: "2002", Amount: 10, Kind: models.KindReward, Category: "split"},
			}})
			require.NoError(t, err)
			require.NotNil(t, result.Counterparty)
			assert.Equal(t, "2002", result.Counterparty.ID)
		}
	})

	t.Run("rejections", func(t *testing.T) {
		env := newTestEnv(t)
		env.seed(t, "1001", 100)

		_, err := env.economy.Transfer(ctx, "1001", "1001", 10)
		assert.ErrorIs(t, err, ErrInvalidTarget)

		_, err = env.economy.Transfer(ctx, "1001", "2002", 0)
		assert.ErrorIs(t, err, ErrInvalidAmount)

		_, err = env.economy.Transfer(ctx, "1001", "2002", 101)
		assert.ErrorIs(t, err, ErrInsufficientFunds)

		a, _, _ := env.account(t, "1001")
		b, _, _ := env.account(t, "2002")
		assert.Equal(t, int64(100), a)
		assert.Equal(t, int64(0), b)
	})

	t.Run("opposite transfers do not deadlock", func(t *testing.T) {
		env := newTestEnv(t)
		env.seed(t, "1001", 1000)
		env.seed(t, "2002", 1000)

		var wg sync.WaitGroup
		for i := 0; i < 10; i++ {
			wg.Add(2)
			go func() {
				defer wg.Done()
				_, err := env.economy.Transfer(ctx, "1001", "2002", 7)
				assert.NoError(t, err)
			}()
			go func() {
				defer wg.Done()
				_, err := env.economy.Transfer(ctx, "2002", "1001", 3)
				assert.NoError(t, err)
			}()
		}
		wg.Wait()

		a, _, _ := env.account(t, "1001")
		b, _, _ := env.account(t, "2002")
		assert.Equal(t, int64(2000), a+b)
		assert.Equal(t, int64(1000-40), a)
	})
}

func TestEconomyService_ClaimLevelReward(t *testing.T) {
	ctx := context.Background()

	t.Run("level not reached", func(t *testing.T) {
		env := newTestEnv(t)
		env.seed(t, "1001", 50)

		_, err := env.economy.ClaimLevelReward(ctx, "1001", 1)
		assert.ErrorIs(t, err, ErrLevelNotReached)
	})

	t.Run("unknown level", func(t *testing.T) {
		env := newTestEnv(t)

		_, err := env.economy.ClaimLevelReward(ctx, "1001", MaxLevel+1)
		assert.ErrorIs(t, err, ErrUnknownLevel)
	})

	t.Run("milestone reward grants its items", func(t *testing.T) {
		env := newTestEnv(t)
		threshold, _ := env.rewards.Threshold(5)
		env.seed(t, "1001", threshold)

		result, err := env.economy.ClaimLevelReward(ctx, "1001", 5)
		require.NoError(t, err)
		require.Len(t, result.Items, 1)
		assert.Equal(t, "lucky_charm", result.Items[0].ItemID)

		qty, err := env.ledger.ItemQuantity(ctx, "1001", "lucky_charm")
		require.NoError(t, err)
		assert.Equal(t, int64(1), qty)
	})

	t.Run("concurrent claims credit once", func(t *testing.T) {
		env := newTestEnv(t)
		env.seed(t, "1001", 150)

		var (
			wg      sync.WaitGroup
			mu      sync.Mutex
			success int
		)
		for i := 0; i < 8; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := env.economy.ClaimLevelReward(ctx, "1001", 1)
				if err == nil {
					mu.Lock()
					success++
					mu.Unlock()
					return
				}
				assert.ErrorIs(t, err, ErrAlreadyClaimed)
			}()
		}
		wg.Wait()

		assert.Equal(t, 1, success)
		balance, _, _ := env.account(t, "1001")
		assert.Equal(t, int64(250), balance)
	})
}

func TestEconomyService_ClaimPendingRewards(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)

	_, err := env.economy.ClaimPendingRewards(ctx, "1001")
	assert.ErrorIs(t, err, ErrLevelNotReached)

	env.seed(t, "1001", 2000)
	_, err = env.economy.ClaimLevelReward(ctx, "1001", 2)
	require.NoError(t, err)

	result, err := env.economy.ClaimPendingRewards(ctx, "1001")
	require.NoError(t, err)
	require.Len(t, result.Rewards, 2)
	assert.Equal(t, 1, result.Rewards[0].Level)
	assert.Equal(t, 3, result.Rewards[1].Level)
	// level 1, 2 and 3 rewards: 100 + 200 + 300
	assert.Equal(t, int64(2000+600), result.Account.Balance)

	status, err := env.economy.RewardStatus(ctx, "1001")
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2, 3}, status.Claimed)
	assert.Empty(t, status.Pending)

	_, err = env.economy.ClaimPendingRewards(ctx, "1001")
	assert.ErrorIs(t, err, ErrAlreadyClaimed)
}

func TestEconomyService_Inventory(t *testing.T) {
	ctx := context.Background()

	t.Run("adjust inventory", func(t *testing.T) {
		env := newTestEnv(t)

		_, err := env.economy.AdjustInventory(ctx, "1001", "coffee", 2)
		require.NoError(t, err)

		_, err = env.economy.AdjustInventory(ctx, "1001", "coffee", -3)
		assert.ErrorIs(t, err, ErrInsufficientItems)

		_, err = env.economy.AdjustInventory(ctx, "1001", "coffee", 0)
		assert.ErrorIs(t, err, ErrInvalidQuantity)

		_, err = env.economy.AdjustInventory(ctx, "1001", "no_such_item", 1)
		assert.ErrorIs(t, err, ErrUnknownItem)

		items, err := env.economy.Inventory(ctx, "1001")
		require.NoError(t, err)
		require.Len(t, items, 1)
		assert.Equal(t, int64(2), items[0].Quantity)
		assert.Equal(t, "Coffee", items[0].Item.Name)
	})

	t.Run("purchase debits and grants in one batch", func(t *testing.T) {
		env := newTestEnv(t)
		env.seed(t, "1001", 200)

		result, err := env.economy.Purchase(ctx, "1001", "coffee", 3)
		require.NoError(t, err)
		assert.Equal(t, int64(50), result.Account.Balance)
		require.Len(t, result.Items, 1)
		assert.Equal(t, int64(3), result.Items[0].Quantity)

		tx, ok := result.Transaction()
		require.True(t, ok)
		assert.Equal(t, "shop:coffee", tx.Category)

		_, err = env.economy.Purchase(ctx, "1001", "coffee", 2)
		assert.ErrorIs(t, err, ErrInsufficientFunds)
		qty, err := env.ledger.ItemQuantity(ctx, "1001", "coffee")
		require.NoError(t, err)
		assert.Equal(t, int64(3), qty)

		for _, q := range []int64{0, -1, maxPurchaseQuantity + 1} {
			_, err = env.economy.Purchase(ctx, "1001", "coffee", q)
			assert.ErrorIs(t, err, ErrInvalidQuantity, fmt.Sprint(q))
		}
		_, err = env.economy.Purchase(ctx, "1001", "unknown", 1)
		assert.ErrorIs(t, err, ErrUnknownItem)
	})
}

func TestEconomyService_Progress(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)

	p, err := env.economy.Progress(ctx, "1001")
	require.NoError(t, err)
	assert.Equal(t, 1, p.NextLevel)
	assert.Equal(t, int64(100), p.Remaining)
	assert.Equal(t, float64(0), p.Percent)

	env.seed(t, "1001", 550)
	p, err = env.economy.Progress(ctx, "1001")
	require.NoError(t, err)
	assert.Equal(t, 2, p.NextLevel)
	assert.Equal(t, int64(1000), p.NextThreshold)
	assert.Equal(t, int64(450), p.Remaining)
	assert.InDelta(t, 50.0, p.Percent, 0.001)
	require.NotNil(t, p.NextReward)
	assert.Equal(t, int64(200), p.NextReward.Credits)
	assert.False(t, p.MaxLevel)
}
