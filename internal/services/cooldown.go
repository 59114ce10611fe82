package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/guildledger/backend/internal/database"
)

// CooldownStore reserves per-account action windows.
type CooldownStore interface {
	// TryStart reserves action for d, or returns a *CooldownError while a reservation is live.
	TryStart(ctx context.Context, accountID, action string, d time.Duration) error
	// Release drops a reservation, used when the guarded write failed.
	Release(ctx context.Context, accountID, action string) error
	Clear(ctx context.Context, accountID string, actions []string) error
	Remaining(ctx context.Context, accountID, action string) (time.Duration, error)
}

// NewCooldownStore prefers Redis and falls back to the ledger database.
func NewCooldownStore(rdb *redis.Client, db *sql.DB, dialect database.Dialect) CooldownStore {
	if rdb != nil {
		return NewRedisCooldownStore(rdb)
	}
	return NewSQLCooldownStore(db, dialect)
}

type RedisCooldownStore struct {
	redis *redis.Client
}

func NewRedisCooldownStore(rdb *redis.Client) *RedisCooldownStore {
	return &RedisCooldownStore{redis: rdb}
}

func cooldownKey(accountID, action string) string {
	return fmt.Sprintf("cooldown:%s:%s", accountID, action)
}

func (s *RedisCooldownStore) TryStart(ctx context.Context, accountID, action string, d time.Duration) error {
	key := cooldownKey(accountID, action)
	ok, err := s.redis.SetNX(ctx, key, time.Now().Add(d).UnixMilli(), d).Result()
	if err != nil {
		return fmt.Errorf("reserve cooldown: %w", err)
	}
	if ok {
		return nil
	}

	remaining, err := s.redis.PTTL(ctx, key).Result()
	if err != nil {
		return fmt.Errorf("read cooldown: %w", err)
	}
	return &CooldownError{Action: action, Remaining: max(remaining, 0)}
}

func (s *RedisCooldownStore) Release(ctx context.Context, accountID, action string) error {
	return s.redis.Del(ctx, cooldownKey(accountID, action)).Err()
}

func (s *RedisCooldownStore) Clear(ctx context.Context, accountID string, actions []string) error {
	if len(actions) == 0 {
		return nil
	}
	keys := make([]string, len(actions))
	for i, action := range actions {
		keys[i] = cooldownKey(accountID, action)
	}
	return s.redis.Del(ctx, keys...).Err()
}

func (s *RedisCooldownStore) Remaining(ctx context.Context, accountID, action string) (time.Duration, error) {
	remaining, err := s.redis.PTTL(ctx, cooldownKey(accountID, action)).Result()
	if err != nil {
		return 0, err
	}
	// -2 (missing) and -1 (no expiry) both read as free
	return max(remaining, 0), nil
}

// SQLCooldownStore keeps cooldowns in economy_cooldowns when Redis is not configured.
type SQLCooldownStore struct {
	db      *sql.DB
	dialect database.Dialect
	now     func() time.Time
}

func NewSQLCooldownStore(db *sql.DB, dialect database.Dialect) *SQLCooldownStore {
	return &SQLCooldownStore{db: db, dialect: dialect, now: time.Now}
}

func (s *SQLCooldownStore) TryStart(ctx context.Context, accountID, action string, d time.Duration) error {
	now := s.now()
	// the conditional upsert only replaces an expired row, so exactly one caller wins
	result, err := s.db.ExecContext(ctx, s.dialect.Rebind(`
		INSERT INTO economy_cooldowns (account_id, action, expires_at)
		VALUES (?, ?, ?)
		ON CONFLICT (account_id, action) DO UPDATE SET expires_at = excluded.expires_at
		WHERE economy_cooldowns.expires_at <= ?`),
		accountID, action, now.Add(d).UnixMilli(), now.UnixMilli())
	if err != nil {
		return fmt.Errorf("reserve cooldown: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("reserve cooldown: %w", err)
	}
	if n > 0 {
		return nil
	}

	remaining, err := s.Remaining(ctx, accountID, action)
	if err != nil {
		return err
	}
	return &CooldownError{Action: action, Remaining: remaining}
}

func (s *SQLCooldownStore) Release(ctx context.Context, accountID, action string) error {
	_, err := s.db.ExecContext(ctx, s.dialect.Rebind(
		`DELETE FROM economy_cooldowns WHERE account_id = ? AND action = ?`), accountID, action)
	return err
}

func (s *SQLCooldownStore) Clear(ctx context.Context, accountID string, actions []string) error {
	for _, action := range actions {
		if err := s.Release(ctx, accountID, action); err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLCooldownStore) Remaining(ctx context.Context, accountID, action string) (time.Duration, error) {
	var expiresAt int64
	err := s.db.QueryRowContext(ctx, s.dialect.Rebind(
		`SELECT expires_at FROM economy_cooldowns WHERE account_id = ? AND action = ?`),
		accountID, action).Scan(&expiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("read cooldown: %w", err)
	}
	return max(time.UnixMilli(expiresAt).Sub(s.now()), 0), nil
}
