package database

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/guildledger/backend/internal/config"
)

func TestOpenSQLite_AppliesMigrations(t *testing.T) {
	path := filepath.Join(t.TempDir(), "economy.db")
	db, err := OpenSQLite(path, zap.NewNop())
	require.NoError(t, err)
	defer db.Close()

	for _, table := range []string{
		"economy_accounts",
		"economy_transactions",
		"economy_inventory",
		"economy_reward_claims",
		"economy_cooldowns",
	} {
		var name string
		err := db.QueryRow(`SELECT name FROM sqlite_master WHERE type = 'table' AND name = ?`, table).Scan(&name)
		require.NoError(t, err, table)
		assert.Equal(t, table, name)
	}

	t.Run("migrating twice is a no-op", func(t *testing.T) {
		m, err := NewMigrator(db, SQLite(), zap.NewNop())
		require.NoError(t, err)
		require.NoError(t, m.Up())

		version, dirty, err := m.Version()
		require.NoError(t, err)
		assert.Equal(t, uint(1), version)
		assert.False(t, dirty)
	})
}

func TestOpenSQLite_RejectsNegativeBalance(t *testing.T) {
	db, err := OpenSQLite(filepath.Join(t.TempDir(), "economy.db"), zap.NewNop())
	require.NoError(t, err)
	defer db.Close()

	_, err = db.Exec(`INSERT INTO economy_accounts (id, balance, created_at, updated_at) VALUES ('1', -1, 0, 0)`)
	assert.Error(t, err)
}

func TestInitDB(t *testing.T) {
	t.Run("sqlite", func(t *testing.T) {
		cfg := config.DatabaseConfig{Driver: "sqlite", Path: filepath.Join(t.TempDir(), "economy.db")}
		db, dialect, err := InitDB(cfg, zap.NewNop())
		require.NoError(t, err)
		defer db.Close()
		assert.Equal(t, DriverSQLite, dialect.Name)
	})

	t.Run("missing path", func(t *testing.T) {
		_, _, err := InitDB(config.DatabaseConfig{Driver: "sqlite"}, zap.NewNop())
		assert.Error(t, err)
	})

	t.Run("unknown driver", func(t *testing.T) {
		_, _, err := InitDB(config.DatabaseConfig{Driver: "oracle"}, zap.NewNop())
		assert.Error(t, err)
	})
}

func TestInitRedis_Disabled(t *testing.T) {
	assert.Nil(t, InitRedis(config.RedisConfig{Enabled: false}, zap.NewNop()))
}
