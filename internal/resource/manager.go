package resource

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/foofork/riptide/internal/types"
)

// IdempotencyStore tracks in-flight and recently-completed fingerprints so
// two callers racing on the same URL+Options never both pay for a render
// (spec §4.1, §3.2's cache-coherence invariant).
type IdempotencyStore interface {
	// TryAcquire claims fp for the caller. ok is false if fp is already
	// claimed by another in-flight acquisition.
	TryAcquire(ctx context.Context, fp types.ResourceFingerprint) (ok bool, err error)
	Release(fp types.ResourceFingerprint)
}

// RateLimiter decides whether a request to host may proceed right now.
type RateLimiter interface {
	// Allow reports whether a token is available for host. If not,
	// retryAfter estimates how long the caller should wait.
	Allow(host string) (allowed bool, retryAfter time.Duration)
}

// RenderSlotProvider hands out browser-pool render slots (spec §4.4).
type RenderSlotProvider interface {
	Acquire(ctx context.Context) (release func(), err error)
}

// Manager is the single admission gate composing the Idempotency Store,
// Rate Limiter, Memory Monitor, Browser Pool and PDF Semaphore (spec
// §4.1). Every fetch acquires a Guard here before doing any network or
// browser work, and must Release it exactly once when done.
type Manager struct {
	idempotency IdempotencyStore
	rateLimiter RateLimiter
	memory      *MemoryMonitor
	renderSlots RenderSlotProvider
	pdfSlots    *PDFSemaphore
	logger      *slog.Logger

	timeouts atomic.Int64
}

// New builds a Manager from its component ports.
func New(idempotency IdempotencyStore, limiter RateLimiter, memory *MemoryMonitor, renderSlots RenderSlotProvider, pdfSlots *PDFSemaphore, logger *slog.Logger) *Manager {
	return &Manager{
		idempotency: idempotency,
		rateLimiter: limiter,
		memory:      memory,
		renderSlots: renderSlots,
		pdfSlots:    pdfSlots,
		logger:      logger.With("component", "resource_manager"),
	}
}

// AcquireOptions describes which resources a pipeline stage needs beyond
// the idempotency claim and rate-limit token every fetch requires.
type AcquireOptions struct {
	Host        string
	NeedsRender bool
	NeedsPDF    bool
}

// Acquire runs the ordered admission checks spec §4.1 fixes — memory
// pressure, rate limit, idempotency, then resource slots, so a caller
// under memory pressure or rate-limited fails fast before ever touching
// the idempotency store — and returns a Guard releasing everything it
// claimed. On any failure, resources already claimed in this call are
// released before the error is returned.
func (m *Manager) Acquire(ctx context.Context, fp types.ResourceFingerprint, opts AcquireOptions) (*Guard, error) {
	var releases []func()
	rollback := func() {
		for i := len(releases) - 1; i >= 0; i-- {
			releases[i]()
		}
	}

	if m.memory.UnderPressure() {
		return nil, types.NewMemoryPressure()
	}

	if opts.Host != "" {
		allowed, retryAfter := m.rateLimiter.Allow(opts.Host)
		if !allowed {
			return nil, types.NewRateLimited(retryAfter)
		}
	}

	ok, err := m.idempotency.TryAcquire(ctx, fp)
	if err != nil {
		return nil, types.NewInternal(err)
	}
	if !ok {
		return nil, types.NewAlreadyExists()
	}
	releases = append(releases, func() { m.idempotency.Release(fp) })

	if opts.NeedsRender {
		release, err := m.renderSlots.Acquire(ctx)
		if err != nil {
			rollback()
			return nil, types.NewResourceExhausted(err)
		}
		releases = append(releases, release)
	}

	if opts.NeedsPDF {
		release, err := m.pdfSlots.Acquire(ctx)
		if err != nil {
			rollback()
			return nil, types.NewResourceExhausted(err)
		}
		releases = append(releases, release)
	}

	return newGuard(releases...), nil
}

// RecordTimeout accounts for a timeout observed at stage, feeding the
// health degradation score, without touching any guard's release chain
// (spec §4.1's "separate timeout-accounting entry point"). Call it from
// wherever the timeout fired; the guard that was already acquired still
// releases normally on its own path.
func (m *Manager) RecordTimeout(stage types.TimeoutStage) {
	m.timeouts.Add(1)
	m.logger.Warn("timeout recorded", "stage", stage)
}

// TimeoutCount returns the cumulative number of timeouts recorded since
// the Manager was created.
func (m *Manager) TimeoutCount() int64 {
	return m.timeouts.Load()
}
