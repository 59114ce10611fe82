package models

// Item types
const (
	ItemConsumable  = "consumable"
	ItemTool        = "tool"
	ItemUpgrade     = "upgrade"
	ItemBadge       = "badge"
	ItemCollectible = "collectible"
)

// ShopItem is a static catalog entry.
type ShopItem struct {
	ID          string `json:"id" toml:"id" example:"coffee"`
	Name        string `json:"name" toml:"name" example:"Coffee"`
	Description string `json:"description" toml:"description"`
	Price       int64  `json:"price" toml:"price" example:"50"`
	Type        string `json:"type" toml:"type" example:"consumable"`
	Effect      string `json:"effect" toml:"effect"`
	Emoji       string `json:"emoji,omitempty" toml:"emoji"`
}

// Consumable reports whether using the item uses it up.
func (i ShopItem) Consumable() bool {
	return i.Type == ItemConsumable
}

// Job is a static work option.
type Job struct {
	ID            string `json:"id" toml:"id" example:"developer"`
	Name          string `json:"name" toml:"name" example:"Developer"`
	Description   string `json:"description" toml:"description"`
	MinPay        int64  `json:"min_pay" toml:"min_pay" example:"200"`
	MaxPay        int64  `json:"max_pay" toml:"max_pay" example:"400"`
	CooldownSecs  int64  `json:"cooldown_seconds" toml:"cooldown_seconds" example:"7200"`
	RequiredLevel int    `json:"required_level" toml:"required_level" example:"8"`
	Emoji         string `json:"emoji,omitempty" toml:"emoji"`
}

// RewardEntry is what reaching a level grants.
type RewardEntry struct {
	Level   int      `json:"level" example:"5"`
	Credits int64    `json:"credits" example:"500"`
	Items   []string `json:"items,omitempty"`
	Title   string   `json:"title,omitempty" example:"Newcomer"`
	Special string   `json:"special,omitempty"`
}
