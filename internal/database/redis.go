package database

import (
	"context"
	"net"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"

	"github.com/guildledger/backend/internal/config"
)

// InitRedis initializes the Redis client. It returns nil when Redis is disabled or
// unreachable; callers fall back to SQL cooldowns and disable payment requests.
func InitRedis(cfg config.RedisConfig, log *zap.Logger) *redis.Client {
	if !cfg.Enabled {
		log.Info("Redis disabled")
		return nil
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     net.JoinHostPort(cfg.Host, cfg.Port),
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		log.Warn("Redis connection failed, continuing without Redis", zap.Error(err))
		_ = rdb.Close()
		return nil
	}

	log.Info("Redis connection established")
	return rdb
}
