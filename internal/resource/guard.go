// Package resource implements the Resource Manager: the single gate every
// fetch must pass through before it is allowed to spend a render slot, a
// PDF worker slot, or a rate-limit token (spec §4.1).
package resource

import "sync"

// Guard is a composite, idempotent release handle returned by a
// successful Acquire. Release may be called any number of times from any
// goroutine; only the first call has effect, the same RAII-via-Drop
// pattern the original Rust BackpressureGuard relied on, reimplemented
// here with sync.Once since Go has no destructors.
type Guard struct {
	once     sync.Once
	releases []func()
}

// newGuard composes zero or more release callbacks into a single Guard.
// Callbacks run in reverse acquisition order, mirroring stack unwind.
func newGuard(releases ...func()) *Guard {
	return &Guard{releases: releases}
}

// Release returns every resource this guard holds. Safe to call multiple
// times and from a deferred statement alongside an explicit call.
func (g *Guard) Release() {
	g.once.Do(func() {
		for i := len(g.releases) - 1; i >= 0; i-- {
			g.releases[i]()
		}
	})
}
