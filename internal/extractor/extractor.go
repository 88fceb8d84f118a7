// Package extractor turns a fetched Response into a Document using one of
// four interchangeable backends (spec §4.8): Static (sandboxed goquery
// parse), Dynamic (headless browser render), Stealth (Dynamic wrapped in
// fingerprint randomization), and PDF (text/metadata extraction).
package extractor

import (
	"context"

	"github.com/foofork/riptide/internal/types"
)

// Extractor is the uniform interface every engine implements: extract
// bytes+URL+options to a Document or an ExtractionError.
type Extractor interface {
	// Extract produces a Document from resp under opts. ctx governs any
	// hard timeout the caller wants enforced (spec §4.9's render_hard_cap
	// for Dynamic/Stealth, pipeline_timeout overall).
	Extract(ctx context.Context, resp *types.Response, opts types.Options) (*types.Document, error)

	// Name identifies the engine, matching analyzer.Engine string values
	// ("static", "dynamic", "stealth", "pdf") and populating
	// Document.Engine.
	Name() string
}

// Registry resolves an analyzer.Engine name to its Extractor, letting the
// orchestrator walk a fallback chain without a type switch.
type Registry struct {
	extractors map[string]Extractor
}

// NewRegistry builds a Registry from a set of extractors, keyed by Name().
func NewRegistry(extractors ...Extractor) *Registry {
	r := &Registry{extractors: make(map[string]Extractor, len(extractors))}
	for _, e := range extractors {
		r.extractors[e.Name()] = e
	}
	return r
}

// Get returns the extractor registered under name, or false if none is.
func (r *Registry) Get(name string) (Extractor, bool) {
	e, ok := r.extractors[name]
	return e, ok
}
