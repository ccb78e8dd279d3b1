// Package cache stores serialized validation results keyed by file path.
// Stores hold opaque bytes; the engine decides what goes in them and when
// an entry may be reused.
package cache

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/c360studio/semguard/config"
)

// ErrNotFound is returned when a key has no entry.
var ErrNotFound = errors.New("cache entry not found")

// Store is a key/value store for cache entries.
// Implementations must be safe for concurrent use.
type Store interface {
	// Get returns the entry for key, or ErrNotFound
	Get(ctx context.Context, key string) ([]byte, error)

	// Put replaces the entry for key
	Put(ctx context.Context, key string, value []byte) error

	// Delete removes the entry for key; deleting a missing key is not an error
	Delete(ctx context.Context, key string) error

	Close() error
}

// Open creates the store selected by cfg.
func Open(ctx context.Context, cfg config.CacheConfig, logger *slog.Logger) (Store, error) {
	if logger == nil {
		logger = slog.Default()
	}

	switch cfg.Backend {
	case config.CacheMemory, "":
		logger.Debug("Using in-memory cache")
		return NewMemory(), nil
	case config.CacheNone:
		logger.Debug("Result cache disabled")
		return Nop{}, nil
	case config.CacheSQLite:
		logger.Debug("Using SQLite cache", "path", cfg.Path)
		return NewSQLite(cfg.Path)
	case config.CacheNATS:
		logger.Debug("Using NATS KV cache", "url", cfg.NATSURL, "bucket", cfg.Bucket)
		return NewNATS(ctx, cfg.NATSURL, cfg.Bucket)
	default:
		return nil, fmt.Errorf("unknown cache backend %q", cfg.Backend)
	}
}

// Nop is a store that never holds anything.
type Nop struct{}

func (Nop) Get(context.Context, string) ([]byte, error) { return nil, ErrNotFound }
func (Nop) Put(context.Context, string, []byte) error { return nil }
func (Nop) Delete(context.Context, string) error { return nil }
func (Nop) Close() error { return nil }
