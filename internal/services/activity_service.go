package services

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/guildledger/backend/internal/models"
)

// Cooldown action names
const (
	ActionDaily = "daily"
	ActionCrime = "crime"
)

func workAction(jobID string) string { return "work:" + jobID }
func useAction(itemID string) string { return "use:" + itemID }

// ActivityConfig tunes the earning activities.
type ActivityConfig struct {
	DailyBase       int64
	DailyLevelBonus int64
	DailyBonusMax   int64
	DailyCooldown   time.Duration
	CrimeCooldown   time.Duration
	WorkLevelBonus  int64
	WorkBonusMax    int64
	ToolCooldown    time.Duration
}

func DefaultActivityConfig() ActivityConfig {
	return ActivityConfig{
		DailyBase:       100,
		DailyLevelBonus: 25,
		DailyBonusMax:   50,
		DailyCooldown:   24 * time.Hour,
		CrimeCooldown:   2 * time.Hour,
		WorkLevelBonus:  5,
		WorkBonusMax:    50,
		ToolCooldown:    time.Hour,
	}
}

type crimeScenario struct {
	name        string
	successRate float64
	rewardMin   int64
	rewardMax   int64
	fineMin     int64
	fineMax     int64
}

var crimeScenarios = []crimeScenario{
	{"Pickpocket", 0.6, 50, 200, 100, 300},
	{"Hack ATM", 0.4, 200, 500, 300, 600},
	{"Rob Bank", 0.2, 500, 1000, 600, 1200},
	{"Steal Car", 0.5, 300, 600, 400, 800},
}

// ActivityResult is the outcome of a daily, work, crime, gamble or item use.
type ActivityResult struct {
	*Result
	Activity string `json:"activity"`
	Success  bool   `json:"success"`
	// Amount is the signed credit change, zero when nothing moved.
	Amount           int64    `json:"amount"`
	Message          string   `json:"message"`
	Scenario         string   `json:"scenario,omitempty"`
	FoundItem        string   `json:"found_item,omitempty"`
	CooldownsCleared []string `json:"cooldowns_cleared,omitempty"`
}

// ActivityService runs the randomized earning activities.
type ActivityService struct {
	economy   *EconomyService
	cooldowns CooldownStore
	rand      Rand
	cfg       ActivityConfig
	log       *zap.Logger
}

func NewActivityService(economy *EconomyService, cooldowns CooldownStore, rnd Rand, cfg ActivityConfig, log *zap.Logger) *ActivityService {
	if rnd == nil {
		rnd = NewRand()
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &ActivityService{
		economy:   economy,
		cooldowns: cooldowns,
		rand:      rnd,
		cfg:       cfg,
		log:       log.Named("activity"),
	}
}

// guarded reserves the cooldown, runs fn, and gives the reservation back if fn failed.
func (s *ActivityService) guarded(ctx context.Context, operation, accountID, action string, d time.Duration, fn func() (*ActivityResult, error)) (*ActivityResult, error) {
	if err := s.cooldowns.TryStart(ctx, accountID, action, d); err != nil {
		observe(operation, err)
		return nil, err
	}

	result, err := fn()
	if err != nil {
		if relErr := s.cooldowns.Release(ctx, accountID, action); relErr != nil {
			s.log.Warn("failed to release cooldown",
				zap.String("account_id", accountID),
				zap.String("action", action),
				zap.Error(relErr),
			)
		}
		return nil, err
	}
	return result, nil
}

// Daily pays base + level bonus + a random bonus once per cooldown window.
func (s *ActivityService) Daily(ctx context.Context, accountID string) (*ActivityResult, error) {
	return s.guarded(ctx, "daily", accountID, ActionDaily, s.cfg.DailyCooldown, func() (*ActivityResult, error) {
		var reward int64
		result, err := s.economy.commit(ctx, "daily", accountID, Batch{
			Accounts: []string{accountID},
			Prepare: func(snap *Snapshot, b *Batch) error {
				level := int64(snap.Account(accountID).Level)
				reward = s.cfg.DailyBase + s.cfg.DailyLevelBonus*level + between(s.rand, 0, s.cfg.DailyBonusMax)
				b.Deltas = append(b.Deltas, Delta{
					AccountID: accountID, Amount: reward, Earned: true, Kind: models.KindEarn, Category: "daily",
				})
				return nil
			},
		})
		if err != nil {
			return nil, err
		}
		return &ActivityResult{
			Result:   result,
			Activity: ActionDaily,
			Success:  true,
			Amount:   reward,
			Message:  fmt.Sprintf("You received %d credits", reward),
		}, nil
	})
}

// Work pays a job's range plus level and performance bonuses.
func (s *ActivityService) Work(ctx context.Context, accountID, jobID string) (*ActivityResult, error) {
	job, ok := s.economy.catalog.Job(jobID)
	if !ok {
		observe("work", ErrUnknownJob)
		return nil, ErrUnknownJob
	}

	current, err := s.economy.ledger.GetAccount(ctx, accountID)
	if err != nil {
		return nil, err
	}
	// rejected before the cooldown is reserved, then re-checked under the lock
	if current.Level < job.RequiredLevel {
		observe("work", ErrLevelNotReached)
		return nil, fmt.Errorf("%w: %s requires level %d", ErrLevelNotReached, job.Name, job.RequiredLevel)
	}

	action := workAction(job.ID)
	return s.guarded(ctx, "work", accountID, action, time.Duration(job.CooldownSecs)*time.Second, func() (*ActivityResult, error) {
		var pay int64
		result, err := s.economy.commit(ctx, "work", accountID, Batch{
			Accounts: []string{accountID},
			Prepare: func(snap *Snapshot, b *Batch) error {
				acc := snap.Account(accountID)
				if acc.Level < job.RequiredLevel {
					return fmt.Errorf("%w: %s requires level %d", ErrLevelNotReached, job.Name, job.RequiredLevel)
				}
				pay = between(s.rand, job.MinPay, job.MaxPay) +
					s.cfg.WorkLevelBonus*int64(acc.Level) +
					between(s.rand, 0, s.cfg.WorkBonusMax)
				b.Deltas = append(b.Deltas, Delta{
					AccountID: accountID, Amount: pay, Earned: true, Kind: models.KindEarn, Category: action,
				})
				return nil
			},
		})
		if err != nil {
			return nil, err
		}
		return &ActivityResult{
			Result:   result,
			Activity: "work",
			Success:  true,
			Amount:   pay,
			Scenario: job.Name,
			Message:  fmt.Sprintf("You worked as a %s and earned %d credits", job.Name, pay),
		}, nil
	})
}

// Crime picks a random scenario. Success earns the reward; failure pays a fine
// capped at the current balance.
func (s *ActivityService) Crime(ctx context.Context, accountID string) (*ActivityResult, error) {
	return s.guarded(ctx, "crime", accountID, ActionCrime, s.cfg.CrimeCooldown, func() (*ActivityResult, error) {
		crime := crimeScenarios[s.rand.Int64N(int64(len(crimeScenarios)))]
		success := s.rand.Float64() < crime.successRate

		var amount int64
		result, err := s.economy.commit(ctx, "crime", accountID, Batch{
			Accounts: []string{accountID},
			Prepare: func(snap *Snapshot, b *Batch) error {
				if success {
					amount = between(s.rand, crime.rewardMin, crime.rewardMax)
					b.Deltas = append(b.Deltas, Delta{
						AccountID: accountID, Amount: amount, Earned: true, Kind: models.KindEarn, Category: "crime:" + crime.name,
					})
					return nil
				}
				fine := min(between(s.rand, crime.fineMin, crime.fineMax), snap.Account(accountID).Balance)
				if fine > 0 {
					amount = -fine
					b.Deltas = append(b.Deltas, Delta{
						AccountID: accountID, Amount: -fine, Kind: models.KindSpend, Category: "crime_fine:" + crime.name,
					})
				}
				return nil
			},
		})
		if err != nil {
			return nil, err
		}

		out := &ActivityResult{Result: result, Activity: ActionCrime, Success: success, Amount: amount, Scenario: crime.name}
		if success {
			out.Message = fmt.Sprintf("Crime successful: %s earned you %d credits", crime.name, amount)
		} else {
			out.Message = fmt.Sprintf("You were caught trying to %s and fined %d credits", crime.name, -amount)
		}
		return out, nil
	})
}

// Gamble stakes amount on a coin flip.
func (s *ActivityService) Gamble(ctx context.Context, accountID string, amount int64) (*ActivityResult, error) {
	if amount <= 0 {
		observe("gamble", ErrInvalidAmount)
		return nil, ErrInvalidAmount
	}

	won := s.rand.Int64N(2) == 0
	result, err := s.economy.commit(ctx, "gamble", accountID, Batch{
		Accounts: []string{accountID},
		Prepare: func(snap *Snapshot, b *Batch) error {
			if snap.Account(accountID).Balance < amount {
				return ErrInsufficientFunds
			}
			if won {
				b.Deltas = append(b.Deltas, Delta{AccountID: accountID, Amount: amount, Earned: true, Kind: models.KindEarn, Category: "gamble"})
			} else {
				b.Deltas = append(b.Deltas, Delta{AccountID: accountID, Amount: -amount, Kind: models.KindSpend, Category: "gamble"})
			}
			return nil
		},
	})
	if err != nil {
		return nil, err
	}

	out := &ActivityResult{Result: result, Activity: "gamble", Success: won, Amount: amount}
	if won {
		out.Message = fmt.Sprintf("You won %d credits", amount)
	} else {
		out.Amount = -amount
		out.Message = fmt.Sprintf("You lost %d credits", amount)
	}
	return out, nil
}

// itemEffect decides what using an item does. It may extend the batch.
type itemEffect func(s *ActivityService, accountID string, item models.ShopItem, b *Batch, out *ActivityResult)

func creditEffect(lo, hi int64, chance float64, hit, miss string) itemEffect {
	return func(s *ActivityService, accountID string, item models.ShopItem, b *Batch, out *ActivityResult) {
		if chance < 1 && s.rand.Float64() >= chance {
			out.Message = miss
			return
		}
		amount := between(s.rand, lo, hi)
		b.Deltas = append(b.Deltas, Delta{
			AccountID: accountID, Amount: amount, Earned: true, Kind: models.KindEarn, Category: "item:" + item.ID,
		})
		out.Amount = amount
		out.Message = fmt.Sprintf(hit, amount)
	}
}

func mysteryBox(s *ActivityService, accountID string, item models.ShopItem, b *Batch, out *ActivityResult) {
	roll := s.rand.Float64()
	switch {
	case roll < 0.4:
		creditEffect(100, 500, 1, "You found %d credits in the mystery box!", "")(s, accountID, item, b, out)
	case roll < 0.7:
		items := s.economy.catalog.Items("")
		found := items[s.rand.Int64N(int64(len(items)))]
		b.Items = append(b.Items, ItemDelta{AccountID: accountID, ItemID: found.ID, Quantity: 1})
		out.FoundItem = found.ID
		out.Message = fmt.Sprintf("You found a %s in the mystery box!", found.Name)
	case roll < 0.9:
		out.Message = "You found a lucky charm! Your next work will pay double!"
	default:
		creditEffect(1000, 2000, 1, "Mystery box jackpot! You struck gold: %d credits", "")(s, accountID, item, b, out)
	}
}

var itemEffects = map[string]itemEffect{
	"energy_boost":   creditEffect(50, 150, 1, "You feel energized and earned %d credits", ""),
	"hunger_restore": creditEffect(25, 100, 1, "Delicious! Being well-fed earned you %d credits", ""),
	"lottery_chance": creditEffect(1000, 5000, 0.1, "JACKPOT! You won %d credits in the lottery", "Better luck next time! No winning numbers today."),
	"mystery_reward": mysteryBox,
	"xp_boost":       creditEffect(200, 500, 1, "You feel a surge of experience worth %d credits", ""),
	"fishing_bonus":  creditEffect(150, 300, 0.7, "You caught fish and sold them for %d credits", "The fish weren't biting today."),
	"mining_bonus":   creditEffect(200, 400, 0.6, "You struck ore and sold it for %d credits", "The mine was empty today."),
	"dev_bonus":      creditEffect(300, 600, 1, "You finished a programming project for %d credits", ""),
	"photo_bonus":    creditEffect(250, 450, 1, "You sold your photos for %d credits", ""),
}

// UseItem applies an owned item's effect. Consumables are used up in the same batch.
func (s *ActivityService) UseItem(ctx context.Context, accountID, itemID string) (*ActivityResult, error) {
	item, ok := s.economy.catalog.Item(itemID)
	if !ok {
		observe("use_item", ErrUnknownItem)
		return nil, ErrUnknownItem
	}

	use := func() (*ActivityResult, error) {
		out := &ActivityResult{Activity: "use_item", Success: true}
		result, err := s.economy.commit(ctx, "use_item", accountID, Batch{
			Accounts: []string{accountID},
			Prepare: func(snap *Snapshot, b *Batch) error {
				qty, err := snap.Quantity(accountID, itemID)
				if err != nil {
					return persistence("read inventory", err)
				}
				if qty < 1 {
					return ErrInsufficientItems
				}
				if item.Consumable() {
					b.Items = append(b.Items, ItemDelta{AccountID: accountID, ItemID: itemID, Quantity: -1})
				}
				if effect, ok := itemEffects[item.Effect]; ok {
					effect(s, accountID, item, b, out)
				}
				return nil
			},
		})
		if err != nil {
			return nil, err
		}
		out.Result = result
		return out, nil
	}

	// cooldowns are cleared before the potion is consumed, so a failed clear keeps the potion
	var cleared []string
	if item.Effect == "health_restore" {
		qty, err := s.economy.ledger.ItemQuantity(ctx, accountID, itemID)
		if err != nil {
			observe("use_item", err)
			return nil, err
		}
		if qty < 1 {
			observe("use_item", ErrInsufficientItems)
			return nil, ErrInsufficientItems
		}
		cleared = s.cooldownActions()
		if err := s.cooldowns.Clear(ctx, accountID, cleared); err != nil {
			observe("use_item", err)
			s.log.Error("failed to clear cooldowns", zap.String("account_id", accountID), zap.Error(err))
			return nil, fmt.Errorf("clear cooldowns: %w", err)
		}
	}

	var (
		out *ActivityResult
		err error
	)
	if item.Type == models.ItemTool {
		out, err = s.guarded(ctx, "use_item", accountID, useAction(itemID), s.cfg.ToolCooldown, use)
	} else {
		out, err = use()
	}
	if err != nil {
		return nil, err
	}

	if cleared != nil {
		out.CooldownsCleared = cleared
		out.Message = "You feel refreshed and ready for new activities!"
	}
	if out.Message == "" {
		out.Message = fmt.Sprintf("%s provides passive benefits: %s", item.Name, item.Description)
	}
	return out, nil
}

// cooldownActions lists every action a cooldown can be held for.
func (s *ActivityService) cooldownActions() []string {
	actions := []string{ActionDaily, ActionCrime}
	for _, job := range s.economy.catalog.Jobs() {
		actions = append(actions, workAction(job.ID))
	}
	for _, tool := range s.economy.catalog.Items(models.ItemTool) {
		actions = append(actions, useAction(tool.ID))
	}
	return actions
}

// Cooldowns reports the remaining time of every active cooldown.
func (s *ActivityService) Cooldowns(ctx context.Context, accountID string) (map[string]time.Duration, error) {
	out := make(map[string]time.Duration)
	for _, action := range s.cooldownActions() {
		remaining, err := s.cooldowns.Remaining(ctx, accountID, action)
		if err != nil {
			return nil, err
		}
		if remaining > 0 {
			out[action] = remaining
		}
	}
	return out, nil
}
