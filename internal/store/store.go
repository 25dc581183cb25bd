// Package store defines the key-value persistence interface and its
// implementations. Two tiers exist: a durable tier (SQLite) that survives
// restarts, and a session tier (Redis or in-process memory) for
// high-churn ephemeral state.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

// ErrNotFound is returned by Get when a key has never been set.
var ErrNotFound = errors.New("key not found")

// Store is the interface for all key-value persistence operations.
// Implementations are best-effort, not transactional: callers are
// expected to fall back to defaults on read failure.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Remove(ctx context.Context, key string) error
	Close() error
}

// Well-known state keys.
const (
	KeyConfig       = "config"
	KeySeenSet      = "seenSet"
	KeyLatestHitTS  = "latestHitTimestamp"
	KeyHitsCache    = "hitsCache"
	KeyRateLimits   = "rateLimits"
	KeyNextFireUnix = "nextFireUnix"
)

// GetJSON loads the value for key and unmarshals it into out.
// Returns ErrNotFound when the key is absent.
func GetJSON(ctx context.Context, s Store, key string, out any) error {
	raw, err := s.Get(ctx, key)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("unmarshal %s: %w", key, err)
	}
	return nil
}

// SetJSON marshals v and stores it under key.
func SetJSON(ctx context.Context, s Store, key string, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", key, err)
	}
	return s.Set(ctx, key, raw)
}
