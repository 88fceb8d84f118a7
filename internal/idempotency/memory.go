package idempotency

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/foofork/riptide/internal/types"
)

// entry tracks one claimed fingerprint: when the claim itself expires (a
// safety net against a caller that panics before Release), and an
// independently-expiring cached result for callers that lost the race.
type entry struct {
	claimExpiresAt time.Time

	result          []byte
	hasResult       bool
	resultExpiresAt time.Time
}

func (e *entry) claimExpired(now time.Time) bool {
	return now.After(e.claimExpiresAt)
}

func (e *entry) resultExpired(now time.Time) bool {
	return !e.hasResult || now.After(e.resultExpiresAt)
}

// InMemoryStore is a process-local Store backed by a mutex-guarded map,
// with a background goroutine sweeping expired claims and results
// (grounded on the ported crate's InMemoryIdempotencyStore: TTL-tracked
// entries plus periodic cleanup in place of its DashMap + spawned task).
type InMemoryStore struct {
	mu      sync.Mutex
	entries map[types.ResourceFingerprint]*entry

	claimTTL        time.Duration
	cleanupInterval time.Duration

	logger *slog.Logger
	cancel context.CancelFunc
	done   chan struct{}
}

// NewInMemoryStore builds a store whose claims expire after claimTTL and
// are swept every cleanupInterval. It starts the cleanup goroutine
// immediately; callers must call Close to stop it.
func NewInMemoryStore(claimTTL, cleanupInterval time.Duration, logger *slog.Logger) *InMemoryStore {
	ctx, cancel := context.WithCancel(context.Background())
	s := &InMemoryStore{
		entries:         make(map[types.ResourceFingerprint]*entry),
		claimTTL:        claimTTL,
		cleanupInterval: cleanupInterval,
		logger:          logger.With("component", "idempotency_store"),
		cancel:          cancel,
		done:            make(chan struct{}),
	}
	go s.backgroundCleanup(ctx)
	return s
}

// TryAcquire claims fp unless an unexpired claim on it is already held.
// A claim younger than claimTTL blocks new acquisitions even without a
// cached result yet, since that means the original caller is still
// working on it. A cached result does not block a new claim, and it is
// kept when one is made.
func (s *InMemoryStore) TryAcquire(_ context.Context, fp types.ResourceFingerprint) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	if e, ok := s.entries[fp]; ok {
		if !e.claimExpired(now) {
			return false, nil
		}
		e.claimExpiresAt = now.Add(s.claimTTL)
		return true, nil
	}

	s.entries[fp] = &entry{claimExpiresAt: now.Add(s.claimTTL)}
	return true, nil
}

// Release drops fp's claim. Any cached result already stored survives.
func (s *InMemoryStore) Release(fp types.ResourceFingerprint) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[fp]
	if !ok {
		return
	}
	if e.hasResult {
		e.claimExpiresAt = time.Time{} // let the next acquire through immediately
		return
	}
	delete(s.entries, fp)
}

// StoreResult caches result under fp for ttl so a caller that loses the
// TryAcquire race can retrieve it instead of re-doing the work.
func (s *InMemoryStore) StoreResult(fp types.ResourceFingerprint, result []byte, ttl time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[fp]
	if !ok {
		e = &entry{}
		s.entries[fp] = e
	}
	e.result = result
	e.hasResult = true
	e.resultExpiresAt = time.Now().Add(ttl)
}

// GetResult returns fp's cached result if one exists and hasn't expired.
func (s *InMemoryStore) GetResult(fp types.ResourceFingerprint) ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[fp]
	if !ok || e.resultExpired(time.Now()) {
		return nil, false
	}
	return e.result, true
}

// Close stops the background cleanup goroutine and blocks until it exits.
func (s *InMemoryStore) Close() error {
	s.cancel()
	<-s.done
	return nil
}

func (s *InMemoryStore) backgroundCleanup(ctx context.Context) {
	defer close(s.done)

	ticker := time.NewTicker(s.cleanupInterval)
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

func (s *InMemoryStore) sweep() {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	removed := 0
	for fp, e := range s.entries {
		if e.claimExpired(now) && e.resultExpired(now) {
			delete(s.entries, fp)
			removed++
		}
	}
	if removed > 0 {
		s.logger.Debug("swept expired idempotency entries", "count", removed)
	}
}
