package config

import (
	"context"
	"fmt"

	"github.com/fortuna/volleysync/internal/store"
)

// DriverMemory selects the in-process store.
const DriverMemory = "memory"

// Store is an opened document store with its lifecycle hooks.
type Store struct {
	store.DocumentStore
	close  func() error
	health func(ctx context.Context) error
}

// Close releases the backend connection.
func (s *Store) Close() error {
	if s.close == nil {
		return nil
	}
	return s.close()
}

// HealthCheck pings the backend. The memory driver is always healthy.
func (s *Store) HealthCheck(ctx context.Context) error {
	if s.health == nil {
		return nil
	}
	return s.health(ctx)
}

// Open connects to the environment's document store.
func (e Environment) Open(ctx context.Context) (*Store, error) {
	switch e.Driver {
	case DriverMemory:
		return &Store{DocumentStore: store.NewMemoryStore()}, nil
	case store.DriverPostgres, store.DriverSQLite:
		db, err := store.NewDatabase(ctx, e.Driver, e.DSN)
		if err != nil {
			return nil, fmt.Errorf("opening %s store: %w", e.Driver, err)
		}
		return &Store{DocumentStore: db, close: db.Close, health: db.HealthCheck}, nil
	default:
		return nil, invalid("unsupported driver %q", e.Driver)
	}
}

// Env looks up a named environment.
func (c *Config) Env(name string) (Environment, error) {
	env, ok := c.Environments[name]
	if !ok {
		return Environment{}, invalid("unknown environment %q", name)
	}
	return env, nil
}
