// Package browserpool manages the headless browser pool the Dynamic and
// Stealth extractors render pages through (spec §4.4): a bounded set of
// browser instances cycling Created -> Warming -> Available <-> InUse ->
// Retiring -> Closed, fed through the same checkout/return idiom the
// fetch engine's page pool used for individual tabs.
package browserpool

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// Launcher creates a new browser instance on demand. Production wiring
// passes a function that launches a Chromium process via go-rod; tests
// pass a fake.
type Launcher func() (handle any, closeFn func() error, err error)

// Config sizes and times out the pool (spec §4.4).
type Config struct {
	MinWarm        int
	MaxInstances   int
	IdleTimeout    time.Duration
	MaxPagesPerTab int
	WarmupTimeout  time.Duration
	// MaxLifetime retires an instance once it has run this long,
	// regardless of page count or idle time. Zero disables age-based
	// retirement.
	MaxLifetime time.Duration
	// MinPoolSize is the floor SweepIdle will not retire instances
	// below.
	MinPoolSize int
}

// Stats reports the pool's current occupancy and lifetime counters
// (spec §4.2).
type Stats struct {
	TotalCapacity int
	Available     int
	InUse         int
	Creations     int64
	Retirements   int64
}

// Pool hands out warm browser instances and retires them once they've
// served too many pages, sat idle too long, run past their max lifetime,
// or crashed. Checkout favors the most-recently-returned instance (spec
// §4.2's LIFO selection policy, which keeps the browser process that is
// most likely still warm in OS page cache), so the free list is a
// mutex-guarded stack rather than the FIFO a plain channel would give.
type Pool struct {
	cfg    Config
	launch Launcher
	logger *slog.Logger

	mu        sync.Mutex
	freeStack []*Instance
	total     int
	closed    bool

	ready chan struct{}

	nextID      atomic.Int64
	creations   atomic.Int64
	retirements atomic.Int64
}

// New creates a Pool. Call Warm to pre-launch cfg.MinWarm instances.
func New(cfg Config, launch Launcher, logger *slog.Logger) *Pool {
	return &Pool{
		cfg:    cfg,
		launch: launch,
		logger: logger.With("component", "browser_pool"),
		ready:  make(chan struct{}, cfg.MaxInstances),
	}
}

// Warm launches cfg.MinWarm instances up front so the first real requests
// don't pay cold-start latency.
func (p *Pool) Warm(ctx context.Context) error {
	for i := 0; i < p.cfg.MinWarm; i++ {
		inst, err := p.spawn(ctx)
		if err != nil {
			return fmt.Errorf("warm instance %d: %w", i, err)
		}
		inst.transition(StateWarming, StateAvailable)
		p.pushFree(inst)
	}
	return nil
}

// Acquire satisfies resource.RenderSlotProvider: it checks out an
// instance and returns a release closure, discarding the instance handle
// for callers that only need slot admission.
func (p *Pool) Acquire(ctx context.Context) (func(), error) {
	inst, err := p.Checkout(ctx)
	if err != nil {
		return nil, err
	}
	return func() { p.Return(inst) }, nil
}

// Checkout returns a ready-to-use Instance, spawning a new one if the
// pool is below MaxInstances and none are free. An instance popped off
// the free stack that has crashed or outlived MaxLifetime is retired in
// place and checkout tries again instead of handing out stale work.
func (p *Pool) Checkout(ctx context.Context) (*Instance, error) {
	for {
		if inst, ok := p.popFree(); ok {
			if !inst.transition(StateAvailable, StateInUse) {
				// Lost a race with retirement; try the next free instance.
				continue
			}
			if inst.Crashed() || (p.cfg.MaxLifetime > 0 && inst.Age() >= p.cfg.MaxLifetime) {
				p.retire(inst)
				continue
			}
			inst.touch()
			return inst, nil
		}

		p.mu.Lock()
		canSpawn := p.total < p.cfg.MaxInstances
		p.mu.Unlock()

		if canSpawn {
			return p.spawnInUse(ctx)
		}

		select {
		case <-p.ready:
			continue
		case <-ctx.Done():
			return nil, fmt.Errorf("browser pool: %w", ctx.Err())
		}
	}
}

func (p *Pool) spawnInUse(ctx context.Context) (*Instance, error) {
	inst, err := p.spawn(ctx)
	if err != nil {
		return nil, err
	}
	inst.transition(StateWarming, StateInUse)
	return inst, nil
}

func (p *Pool) spawn(ctx context.Context) (*Instance, error) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil, fmt.Errorf("browser pool is closed")
	}
	p.total++
	p.mu.Unlock()

	launchCtx := ctx
	var cancel context.CancelFunc
	if p.cfg.WarmupTimeout > 0 {
		launchCtx, cancel = context.WithTimeout(ctx, p.cfg.WarmupTimeout)
		defer cancel()
	}
	_ = launchCtx // the real launcher uses this; the interface here is synchronous

	handle, closeFn, err := p.launch()
	if err != nil {
		p.mu.Lock()
		p.total--
		p.mu.Unlock()
		return nil, fmt.Errorf("launch browser: %w", err)
	}

	id := fmt.Sprintf("browser-%d", p.nextID.Add(1))
	inst := newInstance(id, handle, closeFn)
	inst.transition(StateCreated, StateWarming)
	p.creations.Add(1)
	p.logger.Debug("browser instance spawned", "id", id)
	return inst, nil
}

// Return hands inst back to the pool, retiring it instead if it has
// reached MaxPagesPerTab, run past MaxLifetime, crashed, or the pool is
// shutting down.
func (p *Pool) Return(inst *Instance) {
	served := inst.pagesServed.Add(1)
	inst.touch()

	retireNow := served >= int64(p.cfg.MaxPagesPerTab) || inst.Crashed()
	if !retireNow && p.cfg.MaxLifetime > 0 {
		retireNow = inst.Age() >= p.cfg.MaxLifetime
	}
	if retireNow {
		p.retire(inst)
		return
	}

	if !inst.transition(StateInUse, StateAvailable) {
		// Already retiring/closed elsewhere; nothing to return.
		return
	}

	p.pushFree(inst)
}

func (p *Pool) pushFree(inst *Instance) {
	p.mu.Lock()
	p.freeStack = append(p.freeStack, inst)
	p.mu.Unlock()

	select {
	case p.ready <- struct{}{}:
	default:
	}
}

// popFree pops the most-recently-pushed instance off the free stack.
func (p *Pool) popFree() (*Instance, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := len(p.freeStack)
	if n == 0 {
		return nil, false
	}
	inst := p.freeStack[n-1]
	p.freeStack[n-1] = nil
	p.freeStack = p.freeStack[:n-1]
	return inst, true
}

func (p *Pool) retire(inst *Instance) {
	inst.state.Store(int32(StateRetiring))
	if err := inst.close(); err != nil {
		p.logger.Warn("error closing retired browser instance", "id", inst.ID(), "error", err)
	}
	p.retirements.Add(1)
	p.mu.Lock()
	p.total--
	p.mu.Unlock()
}

// SweepIdle retires available instances that have sat idle longer than
// IdleTimeout, stopping once the pool would drop to MinPoolSize so a
// quiet period never empties it below its configured floor. Callers run
// this on a ticker.
func (p *Pool) SweepIdle() {
	p.mu.Lock()
	candidates := p.freeStack
	p.freeStack = nil
	p.mu.Unlock()

	var keep []*Instance
	for _, inst := range candidates {
		p.mu.Lock()
		aboveFloor := p.total > p.cfg.MinPoolSize
		p.mu.Unlock()

		if aboveFloor && inst.IdleFor() >= p.cfg.IdleTimeout {
			p.retire(inst)
		} else {
			keep = append(keep, inst)
		}
	}
	for _, inst := range keep {
		p.pushFree(inst)
	}
}

// Size returns the number of instances currently tracked by the pool
// (both available and checked out).
func (p *Pool) Size() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.total
}

// Stats reports the pool's current occupancy and lifetime creation/
// retirement counters (spec §4.2's health/capabilities contract).
func (p *Pool) Stats() Stats {
	p.mu.Lock()
	total := p.total
	available := len(p.freeStack)
	p.mu.Unlock()

	return Stats{
		TotalCapacity: p.cfg.MaxInstances,
		Available:     available,
		InUse:         total - available,
		Creations:     p.creations.Load(),
		Retirements:   p.retirements.Load(),
	}
}

// Close retires every instance and marks the pool closed.
func (p *Pool) Close() error {
	p.mu.Lock()
	p.closed = true
	candidates := p.freeStack
	p.freeStack = nil
	p.mu.Unlock()

	for _, inst := range candidates {
		p.retire(inst)
	}
	return nil
}
