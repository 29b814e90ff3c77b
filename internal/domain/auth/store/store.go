package store

import (
	"context"
	"errors"
	"time"

	"partybot-server-go/internal/domain/auth/model"
	"partybot-server-go/internal/platform/config"
)

// ErrNotFound is returned by Get for missing or expired tokens.
var ErrNotFound = errors.New("token not found")

// Store persists access tokens so a restart does not force every account
// through a credential exchange.
type Store interface {
	Save(ctx context.Context, token model.Token) error
	// Get returns ErrNotFound when no unexpired token is stored.
	Get(ctx context.Context, accountID, scope string) (model.Token, error)
	Remove(ctx context.Context, accountID, scope string) error
	// RemoveAccount drops the tokens of every scope of accountID.
	RemoveAccount(ctx context.Context, accountID string) error
	Stats(ctx context.Context) (Stats, error)
	Close(ctx context.Context) error
}

// Stats summarizes a store for the health endpoint.
type Stats struct {
	Driver string `json:"driver"`
	Total  int    `json:"total"`
	Active int    `json:"active"`
}

// Config describes the high level store selection parameters.
type Config struct {
	Driver string
	Redis  *RedisConfig
	Memory *MemoryConfig
}

// MemoryConfig holds in-memory tuning knobs.
type MemoryConfig struct {
	GCInterval time.Duration
}

// RedisConfig captures connection options.
type RedisConfig struct {
	Addr     string
	Username string
	Password string
	DB       int
	Prefix   string
}

// ConfigFrom maps the application's token store section.
func ConfigFrom(c config.StoreConfig) Config {
	return Config{
		Driver: c.Type,
		Memory: &MemoryConfig{GCInterval: c.Memory.Cleanup},
		Redis: &RedisConfig{
			Addr:     c.Redis.Addr,
			Username: c.Redis.Username,
			Password: c.Redis.Password,
			DB:       c.Redis.DB,
			Prefix:   c.Redis.Prefix,
		},
	}
}
