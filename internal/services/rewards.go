package services

import (
	"sort"

	"github.com/guildledger/backend/internal/models"
)

// MaxLevel is the highest reachable level.
const MaxLevel = 600

type milestone struct {
	title   string
	items   []string
	special string
}

var milestones = map[int]milestone{
	5:   {title: "Newcomer", items: []string{"lucky_charm"}},
	10:  {title: "Apprentice", items: []string{"boost_multiplier"}},
	25:  {title: "Skilled Worker", items: []string{"vip_badge"}},
	50:  {title: "Expert", items: []string{"golden_touch", "premium_badge"}},
	100: {title: "Master", items: []string{"legend_badge", "dragon_egg"}, special: "Unlock all jobs"},
	200: {title: "Grandmaster", items: []string{"mythical_crown"}, special: "Double daily rewards"},
	300: {title: "Legendary", items: []string{"infinity_stone"}, special: "Triple work earnings"},
	400: {title: "Mythical", items: []string{"cosmic_orb"}, special: "Quadruple crime success rate"},
	500: {title: "Cosmic", items: []string{"universe_crystal"}, special: "Quintuple gambling wins"},
	600: {title: "Omnipotent", items: []string{"omnipotence_relic"}, special: "Maximum economy power"},
}

var collectibles = []string{"rare_diamond", "gold_coin", "ruby_gem", "emerald_stone", "sapphire_crystal"}

// RewardTable maps levels to thresholds and one-time rewards. It is built once and
// only read afterwards.
type RewardTable struct {
	thresholds []int64              // thresholds[L] is the lifetime earnings needed for level L
	entries    []models.RewardEntry // entries[L] for 1 <= L <= MaxLevel
}

// NewRewardTable builds the standard table.
func NewRewardTable() *RewardTable {
	t := &RewardTable{
		thresholds: make([]int64, MaxLevel+1),
		entries:    make([]models.RewardEntry, MaxLevel+1),
	}

	for level := 1; level <= MaxLevel; level++ {
		t.thresholds[level] = threshold(level)
		t.entries[level] = rewardFor(level)
	}
	return t
}

func threshold(level int) int64 {
	if level == 1 {
		return 100
	}
	return int64(level-1) * 1000
}

func rewardFor(level int) models.RewardEntry {
	l := int64(level)
	var credits int64
	switch {
	case level <= 10:
		credits = l * 100
	case level <= 50:
		credits = l * 200
	case level <= 100:
		credits = l * 500
	case level <= 200:
		credits = l * 1000
	case level <= 400:
		credits = l * 2000
	default:
		credits = l * 5000
	}

	entry := models.RewardEntry{Level: level, Credits: credits}
	if m, ok := milestones[level]; ok {
		entry.Title = m.title
		entry.Special = m.special
		entry.Items = append(entry.Items, m.items...)
	}
	if level%50 == 0 {
		idx := min(level/50-1, len(collectibles)-1)
		entry.Items = append(entry.Items, collectibles[idx])
	}
	return entry
}

// LevelFor returns the largest level whose threshold does not exceed earned.
func (t *RewardTable) LevelFor(earned int64) int {
	// first index whose threshold is above earned, minus one
	return sort.Search(len(t.thresholds), func(i int) bool {
		return t.thresholds[i] > earned
	}) - 1
}

// Threshold returns the lifetime earnings needed for level.
func (t *RewardTable) Threshold(level int) (int64, bool) {
	if level < 0 || level > MaxLevel {
		return 0, false
	}
	return t.thresholds[level], true
}

// Reward returns the reward granted for reaching level.
func (t *RewardTable) Reward(level int) (models.RewardEntry, bool) {
	if level < 1 || level > MaxLevel {
		return models.RewardEntry{}, false
	}
	return t.entries[level], true
}

// Title returns the most recent milestone title at or below level.
func (t *RewardTable) Title(level int) string {
	for l := min(level, MaxLevel); l >= 1; l-- {
		if t.entries[l].Title != "" {
			return t.entries[l].Title
		}
	}
	return ""
}

// Milestones returns every entry that carries a title, in level order.
func (t *RewardTable) Milestones() []models.RewardEntry {
	var out []models.RewardEntry
	for level := 1; level <= MaxLevel; level++ {
		if t.entries[level].Title != "" {
			out = append(out, t.entries[level])
		}
	}
	return out
}
