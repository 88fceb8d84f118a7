package resource

import (
	"context"
	"fmt"
)

// PDFSemaphore bounds concurrent PDF extractions independently of the
// render slot pool, the same buffered-channel-as-semaphore idiom the
// fetch engine's page pool uses for browser tabs (spec §4.1, §4.8).
type PDFSemaphore struct {
	slots chan struct{}
}

// NewPDFSemaphore creates a semaphore admitting at most max concurrent
// PDF extractions.
func NewPDFSemaphore(max int) *PDFSemaphore {
	return &PDFSemaphore{slots: make(chan struct{}, max)}
}

// Acquire blocks until a slot is free or ctx is done.
func (s *PDFSemaphore) Acquire(ctx context.Context) (func(), error) {
	select {
	case s.slots <- struct{}{}:
		return func() { <-s.slots }, nil
	case <-ctx.Done():
		return nil, fmt.Errorf("pdf semaphore: %w", ctx.Err())
	}
}

// InUse returns the number of PDF slots currently held.
func (s *PDFSemaphore) InUse() int {
	return len(s.slots)
}

// Capacity returns the maximum number of concurrent PDF extractions.
func (s *PDFSemaphore) Capacity() int {
	return cap(s.slots)
}
