// Package idempotency tracks in-flight and recently-completed resource
// fingerprints so two callers racing on the same URL+Options never both
// pay for a render (spec §4.1, §3.2). Store satisfies the Resource
// Manager's IdempotencyStore port directly so either backend below can be
// wired into resource.Manager without it knowing which one it got.
package idempotency

import (
	"context"
	"time"

	"github.com/foofork/riptide/internal/types"
)

// Store is the persistence-agnostic idempotency port. TryAcquire/Release
// match resource.IdempotencyStore; the claim TTL passed to the backend's
// constructor (NewInMemoryStore, NewMongoStore) governs how long an
// unreleased claim survives before cleanup reclaims it (guards against a
// crashed caller holding a claim forever).
type Store interface {
	TryAcquire(ctx context.Context, fp types.ResourceFingerprint) (ok bool, err error)
	Release(fp types.ResourceFingerprint)

	// StoreResult caches a completed pipeline result under fp for ttl, so
	// a caller that loses the TryAcquire race can read the winner's
	// result instead of being told only "already in flight".
	StoreResult(fp types.ResourceFingerprint, result []byte, ttl time.Duration)

	// GetResult returns a previously cached result, if any remains unexpired.
	GetResult(fp types.ResourceFingerprint) ([]byte, bool)

	// Close stops any background cleanup and releases resources.
	Close() error
}
