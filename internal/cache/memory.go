package cache

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/foofork/riptide/internal/types"
)

type memEntry struct {
	value     []byte
	expiresAt time.Time
}

func (e *memEntry) expired(now time.Time) bool { return now.After(e.expiresAt) }

// MemoryStore is a process-local Port backed by a mutex-guarded map with
// a background sweep goroutine, the same shape idempotency.InMemoryStore
// uses for its own claim/result expiry.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[types.ResourceFingerprint]*memEntry

	logger *slog.Logger
	cancel context.CancelFunc
	done   chan struct{}
}

// NewMemoryStore builds a MemoryStore that sweeps expired entries every
// cleanupInterval. Call Close to stop the sweep goroutine.
func NewMemoryStore(cleanupInterval time.Duration, logger *slog.Logger) *MemoryStore {
	ctx, cancel := context.WithCancel(context.Background())
	s := &MemoryStore{
		entries: make(map[types.ResourceFingerprint]*memEntry),
		logger:  logger.With("component", "cache_store"),
		cancel:  cancel,
		done:    make(chan struct{}),
	}
	go s.backgroundSweep(ctx, cleanupInterval)
	return s
}

func (s *MemoryStore) Get(_ context.Context, fp types.ResourceFingerprint) ([]byte, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[fp]
	if !ok || e.expired(time.Now()) {
		return nil, false, nil
	}
	return e.value, true, nil
}

func (s *MemoryStore) Set(_ context.Context, fp types.ResourceFingerprint, value []byte, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries[fp] = &memEntry{value: value, expiresAt: time.Now().Add(ttl)}
	return nil
}

func (s *MemoryStore) Invalidate(_ context.Context, fp types.ResourceFingerprint) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.entries, fp)
	return nil
}

func (s *MemoryStore) Close() error {
	s.cancel()
	<-s.done
	return nil
}

func (s *MemoryStore) backgroundSweep(ctx context.Context, interval time.Duration) {
	defer close(s.done)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.sweep()
		}
	}
}

func (s *MemoryStore) sweep() {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	removed := 0
	for fp, e := range s.entries {
		if e.expired(now) {
			delete(s.entries, fp)
			removed++
		}
	}
	if removed > 0 {
		s.logger.Debug("swept expired cache entries", "count", removed)
	}
}
