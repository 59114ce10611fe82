package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the typed view of everything the service reads from viper.
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Redis    RedisConfig
	JWT      JWTConfig
	Log      LogConfig
	Admin    AdminConfig
	Economy  EconomyConfig
}

type ServerConfig struct {
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
}

// DatabaseConfig selects the ledger backend. Driver is "sqlite" (a local file at Path)
// or "postgres" (Host/Port/... connection settings).
type DatabaseConfig struct {
	Driver          string
	Path            string
	Host            string
	Port            string
	User            string
	Password        string
	Name            string
	SSLMode         string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

type RedisConfig struct {
	Enabled  bool
	Host     string
	Port     string
	Password string
	DB       int
}

type JWTConfig struct {
	SecretKey string
	// Expiry bounds tokens minted by the token command.
	Expiry time.Duration
}

type LogConfig struct {
	Level  string
	Format string
	Output string
}

// AdminConfig lists the account ids holding the admin capability.
type AdminConfig struct {
	UserIDs []string
}

// EconomyConfig holds the tunable economy rules.
type EconomyConfig struct {
	CurrencyName      string
	DailyBase         int64
	DailyLevelBonus   int64
	DailyCooldown     time.Duration
	CrimeCooldown     time.Duration
	WorkLevelBonus    int64
	PaymentRequestTTL time.Duration
	LeaderboardSize   int
}

var envBindings = map[string]string{
	"server.port":                 "PORT",
	"database.driver":             "DATABASE_DRIVER",
	"database.path":               "DATABASE_PATH",
	"database.host":               "DATABASE_HOST",
	"database.port":               "DATABASE_PORT",
	"database.user":               "DATABASE_USER",
	"database.password":           "DATABASE_PASSWORD",
	"database.name":               "DATABASE_NAME",
	"database.ssl_mode":           "DATABASE_SSL_MODE",
	"redis.enabled":               "REDIS_ENABLED",
	"redis.host":                  "REDIS_HOST",
	"redis.port":                  "REDIS_PORT",
	"redis.password":              "REDIS_PASSWORD",
	"redis.db":                    "REDIS_DB",
	"jwt.secret_key":              "JWT_SECRET_KEY",
	"jwt.expiry":                  "JWT_EXPIRY",
	"log.level":                   "LOG_LEVEL",
	"log.format":                  "LOG_FORMAT",
	"log.output":                  "LOG_OUTPUT",
	"admin.user_ids":              "ADMIN_USER_IDS",
	"economy.currency_name":       "ECONOMY_CURRENCY_NAME",
	"economy.daily_cooldown":      "ECONOMY_DAILY_COOLDOWN",
	"economy.crime_cooldown":      "ECONOMY_CRIME_COOLDOWN",
	"economy.payment_request_ttl": "ECONOMY_PAYMENT_REQUEST_TTL",
}

// SetDefaults registers a default for every key the service reads.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("server.port", "8080")
	v.SetDefault("server.read_timeout", 15*time.Second)
	v.SetDefault("server.write_timeout", 15*time.Second)
	v.SetDefault("server.shutdown_timeout", 30*time.Second)

	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.path", "economy.db")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", "5432")
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.password", "password")
	v.SetDefault("database.name", "guild_economy")
	v.SetDefault("database.ssl_mode", "disable")
	v.SetDefault("database.max_open_conns", 25)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", 5*time.Minute)

	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", "6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)

	v.SetDefault("jwt.secret_key", "")
	v.SetDefault("jwt.expiry", 24*time.Hour)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")
	v.SetDefault("log.output", "stdout")

	v.SetDefault("admin.user_ids", []string{})

	v.SetDefault("economy.currency_name", "Credits")
	v.SetDefault("economy.daily_base", 100)
	v.SetDefault("economy.daily_level_bonus", 25)
	v.SetDefault("economy.daily_cooldown", 24*time.Hour)
	v.SetDefault("economy.crime_cooldown", 2*time.Hour)
	v.SetDefault("economy.work_level_bonus", 5)
	v.SetDefault("economy.payment_request_ttl", 5*time.Minute)
	v.SetDefault("economy.leaderboard_size", 10)
}

// BindEnv maps the documented environment variables onto their viper keys.
func BindEnv(v *viper.Viper) {
	v.AutomaticEnv()
	for key, env := range envBindings {
		_ = v.BindEnv(key, env)
	}
}

// Load reads the optional config file, applies env overrides and defaults, and
// returns the typed configuration. A missing config file is not an error.
func Load(v *viper.Viper, configFile string) (*Config, error) {
	SetDefaults(v)
	BindEnv(v)

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, err
		}
	}

	return FromViper(v), nil
}

// FromViper builds the typed configuration from an already populated viper instance.
func FromViper(v *viper.Viper) *Config {
	return &Config{
		Server: ServerConfig{
			Port:            v.GetString("server.port"),
			ReadTimeout:     v.GetDuration("server.read_timeout"),
			WriteTimeout:    v.GetDuration("server.write_timeout"),
			ShutdownTimeout: v.GetDuration("server.shutdown_timeout"),
		},
		Database: DatabaseConfig{
			Driver:          strings.ToLower(v.GetString("database.driver")),
			Path:            v.GetString("database.path"),
			Host:            v.GetString("database.host"),
			Port:            v.GetString("database.port"),
			User:            v.GetString("database.user"),
			Password:        v.GetString("database.password"),
			Name:            v.GetString("database.name"),
			SSLMode:         v.GetString("database.ssl_mode"),
			MaxOpenConns:    v.GetInt("database.max_open_conns"),
			MaxIdleConns:    v.GetInt("database.max_idle_conns"),
			ConnMaxLifetime: v.GetDuration("database.conn_max_lifetime"),
		},
		Redis: RedisConfig{
			Enabled:  v.GetBool("redis.enabled"),
			Host:     v.GetString("redis.host"),
			Port:     v.GetString("redis.port"),
			Password: v.GetString("redis.password"),
			DB:       v.GetInt("redis.db"),
		},
		JWT: JWTConfig{
			SecretKey: v.GetString("jwt.secret_key"),
			Expiry:    v.GetDuration("jwt.expiry"),
		},
		Log: LogConfig{
			Level:  v.GetString("log.level"),
			Format: v.GetString("log.format"),
			Output: v.GetString("log.output"),
		},
		Admin: AdminConfig{
			UserIDs: splitIDs(v.GetStringSlice("admin.user_ids")),
		},
		Economy: EconomyConfig{
			CurrencyName:      v.GetString("economy.currency_name"),
			DailyBase:         v.GetInt64("economy.daily_base"),
			DailyLevelBonus:   v.GetInt64("economy.daily_level_bonus"),
			DailyCooldown:     v.GetDuration("economy.daily_cooldown"),
			CrimeCooldown:     v.GetDuration("economy.crime_cooldown"),
			WorkLevelBonus:    v.GetInt64("economy.work_level_bonus"),
			PaymentRequestTTL: v.GetDuration("economy.payment_request_ttl"),
			LeaderboardSize:   v.GetInt("economy.leaderboard_size"),
		},
	}
}

// splitIDs accepts both list values and a single comma separated env string.
func splitIDs(values []string) []string {
	var ids []string
	for _, value := range values {
		for _, id := range strings.Split(value, ",") {
			if id = strings.TrimSpace(id); id != "" {
				ids = append(ids, id)
			}
		}
	}
	return ids
}
