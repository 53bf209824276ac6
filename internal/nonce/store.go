// Package nonce provides the key-value store used for single-use token
// consumption and for shared counters. Every backend implements Consume as
// one atomic check-and-mark operation.
package nonce

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrNotFound is returned by Get when the key is absent or expired.
var ErrNotFound = errors.New("nonce: key not found")

// Store is the nonce/consumption store collaborator.
type Store interface {
	// Get returns the value at key, or ErrNotFound.
	Get(ctx context.Context, key string) (string, error)
	// SetTTL stores value at key. A zero ttl never expires.
	SetTTL(ctx context.Context, key, value string, ttl time.Duration) error
	// Consume marks key as spent. It returns true only for the first caller;
	// the check and the mark are a single atomic operation.
	Consume(ctx context.Context, key string, ttl time.Duration) (bool, error)
	// Exists reports whether key is present and unexpired.
	Exists(ctx context.Context, key string) (bool, error)
	// Incr increments the counter at key, starting its ttl on first use.
	Incr(ctx context.Context, key string, ttl time.Duration) (int64, error)
	Close() error
}

// Backend names accepted by Open.
const (
	BackendMemory = "memory"
	BackendRedis  = "redis"
	BackendSQLite = "sqlite"
)

// Config selects and configures a backend.
type Config struct {
	Backend    string `yaml:"backend"`
	RedisAddr  string `yaml:"redis_addr"`
	RedisDB    int    `yaml:"redis_db"`
	SQLitePath string `yaml:"sqlite_path"`
	Prefix     string `yaml:"prefix"`
}

// DefaultSQLitePath returns the default SQLite nonce database path.
func DefaultSQLitePath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), "stancewatch-nonce.db")
	}
	return filepath.Join(home, ".stancewatch", "nonce.db")
}

// Open creates the configured backend. Empty backend means memory.
func Open(ctx context.Context, cfg Config) (Store, error) {
	switch cfg.Backend {
	case "", BackendMemory:
		return NewMemoryStore(), nil
	case BackendRedis:
		if cfg.RedisAddr == "" {
			return nil, fmt.Errorf("nonce: redis backend requires redis_addr")
		}
		client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, DB: cfg.RedisDB})
		if err := client.Ping(ctx).Err(); err != nil {
			client.Close()
			return nil, fmt.Errorf("nonce: redis unavailable: %w", err)
		}
		return NewRedisStore(client, cfg.Prefix), nil
	case BackendSQLite:
		path := cfg.SQLitePath
		if path == "" {
			path = DefaultSQLitePath()
		}
		return OpenSQLite(ctx, path)
	default:
		return nil, fmt.Errorf("nonce: unknown backend %q", cfg.Backend)
	}
}
