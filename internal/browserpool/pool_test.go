package browserpool

import (
	"context"
	"log/slog"
	"os"
	"sync/atomic"
	"testing"
	"time"
)

var testLogger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))

func fakeLauncher(closed *atomic.Int64) Launcher {
	return func() (any, func() error, error) {
		return "fake-browser", func() error {
			closed.Add(1)
			return nil
		}, nil
	}
}

func TestPoolWarmLaunchesMinWarm(t *testing.T) {
	var closed atomic.Int64
	p := New(Config{MinWarm: 2, MaxInstances: 4, IdleTimeout: time.Minute, MaxPagesPerTab: 10, WarmupTimeout: time.Second}, fakeLauncher(&closed), testLogger)

	if err := p.Warm(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.Size() != 2 {
		t.Fatalf("expected pool size 2 after warm, got %d", p.Size())
	}
}

func TestCheckoutAndReturnReusesInstance(t *testing.T) {
	var closed atomic.Int64
	p := New(Config{MinWarm: 0, MaxInstances: 2, IdleTimeout: time.Minute, MaxPagesPerTab: 10, WarmupTimeout: time.Second}, fakeLauncher(&closed), testLogger)

	inst, err := p.Checkout(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if inst.State() != StateInUse {
		t.Fatalf("expected checked-out instance to be in_use, got %s", inst.State())
	}

	p.Return(inst)
	if inst.State() != StateAvailable {
		t.Fatalf("expected returned instance to be available, got %s", inst.State())
	}

	inst2, err := p.Checkout(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if inst2.ID() != inst.ID() {
		t.Fatalf("expected checkout to reuse the returned instance, got a new one")
	}
}

func TestReturnRetiresAfterMaxPagesPerTab(t *testing.T) {
	var closed atomic.Int64
	p := New(Config{MinWarm: 0, MaxInstances: 2, IdleTimeout: time.Minute, MaxPagesPerTab: 1, WarmupTimeout: time.Second}, fakeLauncher(&closed), testLogger)

	inst, err := p.Checkout(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	p.Return(inst)

	if inst.State() != StateClosed {
		t.Fatalf("expected instance to be retired after exceeding max pages per tab, got %s", inst.State())
	}
	if closed.Load() != 1 {
		t.Fatalf("expected close callback to fire exactly once, got %d", closed.Load())
	}
	if p.Size() != 0 {
		t.Fatalf("expected pool size 0 after retirement, got %d", p.Size())
	}
}

func TestCheckoutSpawnsUpToMaxInstances(t *testing.T) {
	var closed atomic.Int64
	p := New(Config{MinWarm: 0, MaxInstances: 2, IdleTimeout: time.Minute, MaxPagesPerTab: 10, WarmupTimeout: time.Second}, fakeLauncher(&closed), testLogger)

	inst1, err := p.Checkout(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	_, err = p.Checkout(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = p.Checkout(ctx)
	if err == nil {
		t.Fatalf("expected third checkout to block until timeout at max instances")
	}

	p.Return(inst1)
}

func TestAcquireAdaptsToRenderSlotProvider(t *testing.T) {
	var closed atomic.Int64
	p := New(Config{MinWarm: 0, MaxInstances: 1, IdleTimeout: time.Minute, MaxPagesPerTab: 10, WarmupTimeout: time.Second}, fakeLauncher(&closed), testLogger)

	release, err := p.Acquire(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	release()

	if p.Size() != 1 {
		t.Fatalf("expected one tracked instance after release, got %d", p.Size())
	}
}

func TestSweepIdleRetiresStaleInstances(t *testing.T) {
	var closed atomic.Int64
	p := New(Config{MinWarm: 1, MaxInstances: 1, IdleTimeout: time.Millisecond, MaxPagesPerTab: 10, WarmupTimeout: time.Second}, fakeLauncher(&closed), testLogger)

	if err := p.Warm(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	time.Sleep(5 * time.Millisecond)

	p.SweepIdle()
	if p.Size() != 0 {
		t.Fatalf("expected idle instance to be retired, got pool size %d", p.Size())
	}
}

func TestSweepIdleRespectsMinPoolSize(t *testing.T) {
	var closed atomic.Int64
	p := New(Config{MinWarm: 2, MaxInstances: 2, IdleTimeout: time.Millisecond, MaxPagesPerTab: 10, WarmupTimeout: time.Second, MinPoolSize: 1}, fakeLauncher(&closed), testLogger)

	if err := p.Warm(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	time.Sleep(5 * time.Millisecond)

	p.SweepIdle()
	if p.Size() != 1 {
		t.Fatalf("expected sweep to stop at min_pool_size 1, got pool size %d", p.Size())
	}
}

func TestCheckoutPrefersMostRecentlyReturnedInstance(t *testing.T) {
	var closed atomic.Int64
	p := New(Config{MinWarm: 0, MaxInstances: 2, IdleTimeout: time.Minute, MaxPagesPerTab: 10, WarmupTimeout: time.Second}, fakeLauncher(&closed), testLogger)

	first, err := p.Checkout(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	second, err := p.Checkout(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	p.Return(first)
	p.Return(second)

	next, err := p.Checkout(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if next.ID() != second.ID() {
		t.Fatalf("expected LIFO checkout to reuse the most recently returned instance %s, got %s", second.ID(), next.ID())
	}
}

func TestReturnRetiresCrashedInstance(t *testing.T) {
	var closed atomic.Int64
	p := New(Config{MinWarm: 0, MaxInstances: 1, IdleTimeout: time.Minute, MaxPagesPerTab: 10, WarmupTimeout: time.Second}, fakeLauncher(&closed), testLogger)

	inst, err := p.Checkout(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	inst.MarkCrashed()
	p.Return(inst)

	if inst.State() != StateClosed {
		t.Fatalf("expected crashed instance to be retired, got %s", inst.State())
	}
	if p.Size() != 0 {
		t.Fatalf("expected pool size 0 after retiring crashed instance, got %d", p.Size())
	}
}

func TestStatsReportsCreationsAndRetirements(t *testing.T) {
	var closed atomic.Int64
	p := New(Config{MinWarm: 0, MaxInstances: 2, IdleTimeout: time.Minute, MaxPagesPerTab: 1, WarmupTimeout: time.Second}, fakeLauncher(&closed), testLogger)

	inst, err := p.Checkout(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	p.Return(inst) // MaxPagesPerTab=1 retires it immediately

	stats := p.Stats()
	if stats.TotalCapacity != 2 {
		t.Errorf("TotalCapacity = %d, want 2", stats.TotalCapacity)
	}
	if stats.Creations != 1 {
		t.Errorf("Creations = %d, want 1", stats.Creations)
	}
	if stats.Retirements != 1 {
		t.Errorf("Retirements = %d, want 1", stats.Retirements)
	}
	if stats.Available != 0 || stats.InUse != 0 {
		t.Errorf("Available/InUse = %d/%d, want 0/0 after retirement", stats.Available, stats.InUse)
	}
}
