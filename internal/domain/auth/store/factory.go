package store

import (
	"fmt"
)

// Driver identifiers supported by the token store.
const (
	DriverMemory = "memory"
	DriverRedis  = "redis"
)

// New creates a token store based on the provided configuration.
func New(cfg Config) (Store, error) {
	driver := cfg.Driver
	if driver == "" {
		driver = DriverMemory
	}

	switch driver {
	case DriverMemory:
		return NewMemory(cfg), nil
	case DriverRedis:
		return NewRedis(cfg)
	default:
		return nil, fmt.Errorf("unsupported token store driver: %s", driver)
	}
}
