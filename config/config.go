package config

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v6"
	"github.com/go-redis/redis/v8"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Config contains configuration data read from the environment.
type Config struct {
	Port     string `env:"PORT" envDefault:"8080"`
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`

	DBDriver   string `env:"DB_DRIVER" envDefault:"postgres"` // postgres or sqlite
	DBHost     string `env:"DB_HOST" envDefault:"localhost"`
	DBPort     string `env:"DB_PORT" envDefault:"5432"`
	DBUser     string `env:"DB_USER" envDefault:"postgres"`
	DBPassword string `env:"DB_PASSWORD"`
	DBName     string `env:"DB_NAME" envDefault:"finance"`
	DBPath     string `env:"DB_PATH" envDefault:"finance.db"`

	RedisAddr     string `env:"REDIS_ADDR" envDefault:"127.0.0.1:6379"`
	RedisPassword string `env:"REDIS_PASSWORD"`
	RedisDB       int    `env:"REDIS_DB" envDefault:"0"`

	SessionSecret string        `env:"SESSION_SECRET"`
	SessionTTL    time.Duration `env:"SESSION_TTL" envDefault:"24h"`

	AlphaVantageKey string        `env:"ALPHA_VANTAGE_API_KEY"`
	AlphaVantageURL string        `env:"ALPHA_VANTAGE_URL" envDefault:"https://www.alphavantage.co/query"`
	QuoteCacheTTL   time.Duration `env:"QUOTE_CACHE_TTL" envDefault:"5m"`
	QuoteTimeout    time.Duration `env:"QUOTE_TIMEOUT" envDefault:"10s"`

	StartingCash    string `env:"STARTING_CASH" envDefault:"10000.00"`
	RefreshSchedule string `env:"REFRESH_SCHEDULE" envDefault:"@every 15m"`
}

// Load parses the environment into a Config and validates it.
func Load() (*Config, error) {
	cfg := new(Config)
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the values env.Parse cannot.
func (c *Config) Validate() error {
	if c.DBDriver != "postgres" && c.DBDriver != "sqlite" {
		return fmt.Errorf("DB_DRIVER must be postgres or sqlite, got %q", c.DBDriver)
	}
	if c.SessionSecret == "" {
		return fmt.Errorf("SESSION_SECRET is required")
	}
	cash, err := c.Cash()
	if err != nil {
		return err
	}
	if cash.IsNegative() {
		return fmt.Errorf("STARTING_CASH must not be negative")
	}
	return nil
}

// Cash returns the starting cash balance of new users.
func (c *Config) Cash() (decimal.Decimal, error) {
	cash, err := decimal.NewFromString(c.StartingCash)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid STARTING_CASH %q: %w", c.StartingCash, err)
	}
	return cash, nil
}

// DSN builds the connection string for the configured driver. SQLite
// transactions take the write lock on BEGIN, FOR UPDATE being a no-op there.
func (c *Config) DSN() string {
	if c.DBDriver == "sqlite" {
		sep := "?"
		if strings.Contains(c.DBPath, "?") {
			sep = "&"
		}
		return c.DBPath + sep + "_txlock=immediate&_busy_timeout=5000"
	}
	return fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%s sslmode=disable TimeZone=UTC",
		c.DBHost, c.DBUser, c.DBPassword, c.DBName, c.DBPort)
}

// OpenDB connects to the relational store.
func OpenDB(cfg *Config, log *logrus.Logger) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch cfg.DBDriver {
	case "sqlite":
		dialector = sqlite.Open(cfg.DSN())
	default:
		dialector = postgres.Open(cfg.DSN())
	}

	level := logger.Warn
	if log.IsLevelEnabled(logrus.DebugLevel) {
		level = logger.Info
	}
	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: logger.New(log, logger.Config{
			SlowThreshold:             200 * time.Millisecond,
			LogLevel:                  level,
			IgnoreRecordNotFoundError: true,
		}),
		TranslateError: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to the database: %w", err)
	}
	return db, nil
}

// OpenRedis connects to Redis and checks the connection.
func OpenRedis(ctx context.Context, cfg *Config) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})

	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	return rdb, nil
}
