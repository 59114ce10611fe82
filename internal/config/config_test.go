package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(viper.New(), "")
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, "sqlite", cfg.Database.Driver)
	assert.Equal(t, "economy.db", cfg.Database.Path)
	assert.False(t, cfg.Redis.Enabled)
	assert.Equal(t, "Credits", cfg.Economy.CurrencyName)
	assert.Equal(t, int64(100), cfg.Economy.DailyBase)
	assert.Equal(t, int64(25), cfg.Economy.DailyLevelBonus)
	assert.Equal(t, 24*time.Hour, cfg.Economy.DailyCooldown)
	assert.Equal(t, 2*time.Hour, cfg.Economy.CrimeCooldown)
	assert.Equal(t, 5*time.Minute, cfg.Economy.PaymentRequestTTL)
	assert.Empty(t, cfg.Admin.UserIDs)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("DATABASE_DRIVER", "POSTGRES")
	t.Setenv("ADMIN_USER_IDS", "1001, 1002,,1003")
	t.Setenv("ECONOMY_DAILY_COOLDOWN", "12h")

	cfg, err := Load(viper.New(), "")
	require.NoError(t, err)

	assert.Equal(t, "postgres", cfg.Database.Driver)
	assert.Equal(t, []string{"1001", "1002", "1003"}, cfg.Admin.UserIDs)
	assert.Equal(t, 12*time.Hour, cfg.Economy.DailyCooldown)
}

func TestLoad_ConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "economy.toml")
	content := `
[database]
path = "/var/lib/guild/economy.db"

[economy]
currency_name = "Gems"
leaderboard_size = 25

[admin]
user_ids = ["42"]
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	cfg, err := Load(viper.New(), path)
	require.NoError(t, err)

	assert.Equal(t, "/var/lib/guild/economy.db", cfg.Database.Path)
	assert.Equal(t, "Gems", cfg.Economy.CurrencyName)
	assert.Equal(t, 25, cfg.Economy.LeaderboardSize)
	assert.Equal(t, []string{"42"}, cfg.Admin.UserIDs)
}

func TestLoad_MissingConfigFile(t *testing.T) {
	_, err := Load(viper.New(), filepath.Join(t.TempDir(), "absent.toml"))
	assert.Error(t, err)
}
