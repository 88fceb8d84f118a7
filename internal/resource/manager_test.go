package resource

import (
	"context"
	"log/slog"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/foofork/riptide/internal/types"
)

var testLogger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))

type fakeIdempotency struct {
	mu      sync.Mutex
	claimed map[types.ResourceFingerprint]bool
}

func newFakeIdempotency() *fakeIdempotency {
	return &fakeIdempotency{claimed: make(map[types.ResourceFingerprint]bool)}
}

func (f *fakeIdempotency) TryAcquire(_ context.Context, fp types.ResourceFingerprint) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.claimed[fp] {
		return false, nil
	}
	f.claimed[fp] = true
	return true, nil
}

func (f *fakeIdempotency) Release(fp types.ResourceFingerprint) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.claimed, fp)
}

type fakeLimiter struct {
	allow bool
}

func (f *fakeLimiter) Allow(string) (bool, time.Duration) {
	if f.allow {
		return true, 0
	}
	return false, time.Second
}

type fakeRenderSlots struct {
	fail bool
}

func (f *fakeRenderSlots) Acquire(ctx context.Context) (func(), error) {
	if f.fail {
		return nil, context.DeadlineExceeded
	}
	return func() {}, nil
}

func newManager(idem IdempotencyStore, limiter RateLimiter, renderSlots RenderSlotProvider, pdfMax int) *Manager {
	mem := NewMemoryMonitor(1<<30, testLogger) // effectively never under pressure
	return New(idem, limiter, mem, renderSlots, NewPDFSemaphore(pdfMax), testLogger)
}

func TestAcquireSucceedsAndReleases(t *testing.T) {
	idem := newFakeIdempotency()
	m := newManager(idem, &fakeLimiter{allow: true}, &fakeRenderSlots{}, 2)

	fp := types.ResourceFingerprint("fp-1")
	guard, err := m.Acquire(context.Background(), fp, AcquireOptions{Host: "example.com"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if ok, _ := idem.TryAcquire(context.Background(), fp); ok {
		t.Fatalf("expected fingerprint to remain claimed while guard is held")
	}

	guard.Release()
	if ok, _ := idem.TryAcquire(context.Background(), fp); !ok {
		t.Fatalf("expected fingerprint to be released")
	}
}

func TestAcquireDuplicateFingerprintIsRejected(t *testing.T) {
	idem := newFakeIdempotency()
	m := newManager(idem, &fakeLimiter{allow: true}, &fakeRenderSlots{}, 2)

	fp := types.ResourceFingerprint("fp-dup")
	guard, err := m.Acquire(context.Background(), fp, AcquireOptions{})
	if err != nil {
		t.Fatalf("unexpected error on first acquire: %v", err)
	}
	defer guard.Release()

	_, err = m.Acquire(context.Background(), fp, AcquireOptions{})
	re, ok := types.AsRiptideError(err)
	if !ok || re.Kind() != types.KindAlreadyExists {
		t.Fatalf("expected AlreadyExists error, got %v", err)
	}
}

func TestAcquireRateLimitedNeverTouchesIdempotency(t *testing.T) {
	idem := newFakeIdempotency()
	m := newManager(idem, &fakeLimiter{allow: false}, &fakeRenderSlots{}, 2)

	fp := types.ResourceFingerprint("fp-rl")
	_, err := m.Acquire(context.Background(), fp, AcquireOptions{Host: "example.com"})
	re, ok := types.AsRiptideError(err)
	if !ok || re.Kind() != types.KindRateLimited {
		t.Fatalf("expected RateLimited error, got %v", err)
	}

	if ok, _ := idem.TryAcquire(context.Background(), fp); !ok {
		t.Fatalf("expected fingerprint to still be unclaimed: rate limit check must run before idempotency is touched")
	}
}

// TestAcquireUnderMemoryPressureNeverTouchesIdempotency pins the other
// half of §4.1's fail-fast ordering: a duplicate fingerprint submitted
// while the process is under memory pressure must surface
// MemoryPressure, not AlreadyExists.
func TestAcquireUnderMemoryPressureNeverTouchesIdempotency(t *testing.T) {
	idem := newFakeIdempotency()
	m := newManager(idem, &fakeLimiter{allow: true}, &fakeRenderSlots{}, 2)
	m.memory = NewMemoryMonitor(0, testLogger) // high-water of 0 bytes: any heap alloc trips pressure
	m.memory.Sample()

	fp := types.ResourceFingerprint("fp-mem")
	_, err := m.Acquire(context.Background(), fp, AcquireOptions{Host: "example.com"})
	re, ok := types.AsRiptideError(err)
	if !ok || re.Kind() != types.KindMemoryPressure {
		t.Fatalf("expected MemoryPressure error, got %v", err)
	}

	if ok, _ := idem.TryAcquire(context.Background(), fp); !ok {
		t.Fatalf("expected fingerprint to still be unclaimed: memory check must run before idempotency is touched")
	}
}

func TestAcquireRenderSlotFailureRollsBack(t *testing.T) {
	idem := newFakeIdempotency()
	m := newManager(idem, &fakeLimiter{allow: true}, &fakeRenderSlots{fail: true}, 2)

	fp := types.ResourceFingerprint("fp-render")
	_, err := m.Acquire(context.Background(), fp, AcquireOptions{NeedsRender: true})
	re, ok := types.AsRiptideError(err)
	if !ok || re.Kind() != types.KindResourceExhausted {
		t.Fatalf("expected ResourceExhausted error, got %v", err)
	}
	if ok, _ := idem.TryAcquire(context.Background(), fp); !ok {
		t.Fatalf("expected idempotency claim to be rolled back on render-slot failure")
	}
}

func TestAcquirePDFSemaphoreBounds(t *testing.T) {
	idem := newFakeIdempotency()
	m := newManager(idem, &fakeLimiter{allow: true}, &fakeRenderSlots{}, 1)

	g1, err := m.Acquire(context.Background(), types.ResourceFingerprint("pdf-1"), AcquireOptions{NeedsPDF: true})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer g1.Release()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = m.Acquire(ctx, types.ResourceFingerprint("pdf-2"), AcquireOptions{NeedsPDF: true})
	if err == nil {
		t.Fatalf("expected second PDF acquisition to block until timeout")
	}
}

func TestMemoryMonitorReflectsPressure(t *testing.T) {
	mon := NewMemoryMonitor(1, testLogger) // 1MB high-water, trivially exceeded
	mon.Sample()
	if !mon.UnderPressure() {
		t.Fatalf("expected memory monitor to report pressure at a 1MB ceiling")
	}
}
