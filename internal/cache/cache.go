// Package cache provides the token display metadata cache used by the navigator.
//
// Two backends are available: an in-process TTL/LRU cache and a Redis-backed cache
// for deployments that share metadata across instances.
package cache

import (
	"context"
	"errors"

	"solana-activity-engine/internal/domain"
)

// ErrNotFound is returned when a mint has no cached entry or the entry expired.
var ErrNotFound = errors.New("token info not found")

// TokenInfoCache stores display metadata keyed by mint.
type TokenInfoCache interface {
	// Get returns cached metadata. Returns ErrNotFound on miss or expiry.
	Get(ctx context.Context, mint string) (*domain.TokenInfo, error)

	// Put stores metadata, replacing any previous entry for the mint.
	Put(ctx context.Context, info domain.TokenInfo) error

	// Delete removes the entry for mint. Missing entries are not an error.
	Delete(ctx context.Context, mint string) error
}
