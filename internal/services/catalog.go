package services

import (
	_ "embed"
	"fmt"
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/guildledger/backend/internal/models"
)

//go:embed catalog.toml
var defaultCatalog []byte

// Catalog is the static set of shop items and jobs.
type Catalog struct {
	items    []models.ShopItem
	jobs     []models.Job
	itemByID map[string]models.ShopItem
	jobByID  map[string]models.Job
}

type catalogFile struct {
	Items []models.ShopItem `toml:"items"`
	Jobs  []models.Job      `toml:"jobs"`
}

// DefaultCatalog loads the catalog compiled into the binary.
func DefaultCatalog() (*Catalog, error) {
	return LoadCatalog(defaultCatalog)
}

// LoadCatalog parses and validates a TOML catalog.
func LoadCatalog(data []byte) (*Catalog, error) {
	var file catalogFile
	if _, err := toml.Decode(string(data), &file); err != nil {
		return nil, fmt.Errorf("decode catalog: %w", err)
	}

	c := &Catalog{
		itemByID: make(map[string]models.ShopItem, len(file.Items)),
		jobByID:  make(map[string]models.Job, len(file.Jobs)),
	}

	for _, item := range file.Items {
		item.ID = strings.TrimSpace(item.ID)
		switch {
		case item.ID == "":
			return nil, fmt.Errorf("catalog item without id")
		case item.Price <= 0:
			return nil, fmt.Errorf("catalog item %q: price must be positive", item.ID)
		case !validItemType(item.Type):
			return nil, fmt.Errorf("catalog item %q: unknown type %q", item.ID, item.Type)
		}
		if _, dup := c.itemByID[item.ID]; dup {
			return nil, fmt.Errorf("catalog item %q defined twice", item.ID)
		}
		c.itemByID[item.ID] = item
		c.items = append(c.items, item)
	}

	for _, job := range file.Jobs {
		job.ID = strings.TrimSpace(job.ID)
		switch {
		case job.ID == "":
			return nil, fmt.Errorf("catalog job without id")
		case job.MinPay <= 0 || job.MaxPay < job.MinPay:
			return nil, fmt.Errorf("catalog job %q: invalid pay range %d-%d", job.ID, job.MinPay, job.MaxPay)
		case job.CooldownSecs <= 0:
			return nil, fmt.Errorf("catalog job %q: cooldown must be positive", job.ID)
		}
		if _, dup := c.jobByID[job.ID]; dup {
			return nil, fmt.Errorf("catalog job %q defined twice", job.ID)
		}
		c.jobByID[job.ID] = job
		c.jobs = append(c.jobs, job)
	}

	return c, nil
}

func validItemType(t string) bool {
	switch t {
	case models.ItemConsumable, models.ItemTool, models.ItemUpgrade, models.ItemBadge, models.ItemCollectible:
		return true
	}
	return false
}

func (c *Catalog) Item(id string) (models.ShopItem, bool) {
	item, ok := c.itemByID[id]
	return item, ok
}

// Items returns catalog items in file order, optionally filtered by type.
func (c *Catalog) Items(itemType string) []models.ShopItem {
	out := make([]models.ShopItem, 0, len(c.items))
	for _, item := range c.items {
		if itemType == "" || item.Type == itemType {
			out = append(out, item)
		}
	}
	return out
}

func (c *Catalog) Job(id string) (models.Job, bool) {
	job, ok := c.jobByID[id]
	return job, ok
}

func (c *Catalog) Jobs() []models.Job {
	out := make([]models.Job, len(c.jobs))
	copy(out, c.jobs)
	return out
}
