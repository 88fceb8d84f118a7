// Package cache implements the Cache Port (spec §6.5): a byte-exact,
// TTL-bounded store keyed by the same ResourceFingerprint the
// Idempotency Store uses, so a cache hit and an in-flight claim for the
// same work always collide on identity (spec §3.2's cache-coherence
// invariant).
package cache

import (
	"context"
	"time"

	"github.com/foofork/riptide/internal/types"
)

// Port is what the Pipeline Orchestrator's caching stage reads and
// writes through. Get's second return reports whether fp was present
// and unexpired; byte-exact round-trip means the caller is responsible
// for (de)serializing types.Document.
type Port interface {
	Get(ctx context.Context, fp types.ResourceFingerprint) ([]byte, bool, error)
	Set(ctx context.Context, fp types.ResourceFingerprint, value []byte, ttl time.Duration) error
	Invalidate(ctx context.Context, fp types.ResourceFingerprint) error
	Close() error
}
