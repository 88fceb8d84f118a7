// Package pipeline post-processes a Document once an extractor has
// produced one, the same middleware-chain idiom the fetch engine uses
// for requests applied to the extraction output instead.
package pipeline

import (
	"log/slog"
	"strings"
	"sync"

	"github.com/foofork/riptide/internal/types"
)

// Middleware transforms a Document and returns the (possibly modified)
// result. Return nil to drop the document from the chain.
type Middleware interface {
	// Name returns the middleware's identifier.
	Name() string

	// Process transforms a document. Return nil to drop it.
	Process(doc *types.Document) (*types.Document, error)
}

// Pipeline chains Document post-processors together (spec §4.9's
// post-extraction stage, ahead of the cache-write and emit steps).
type Pipeline struct {
	middlewares []Middleware
	logger      *slog.Logger
}

// New creates a new Pipeline.
func New(logger *slog.Logger) *Pipeline {
	return &Pipeline{
		logger: logger.With("component", "pipeline"),
	}
}

// Use adds a middleware to the pipeline chain.
func (p *Pipeline) Use(mw Middleware) {
	p.middlewares = append(p.middlewares, mw)
	p.logger.Debug("middleware added", "name", mw.Name(), "position", len(p.middlewares))
}

// Process runs the document through all middleware in order.
func (p *Pipeline) Process(doc *types.Document) (*types.Document, error) {
	current := doc

	for _, mw := range p.middlewares {
		result, err := mw.Process(current)
		if err != nil {
			return nil, types.NewExtractionFailed(mw.Name(), err)
		}
		if result == nil {
			p.logger.Debug("document dropped", "stage", mw.Name(), "url", doc.FinalURL)
			return nil, nil
		}
		current = result
	}

	return current, nil
}

// Len returns the number of middleware in the chain.
func (p *Pipeline) Len() int {
	return len(p.middlewares)
}

// --- Built-in Middleware ---

// MetadataFilterMiddleware keeps only the listed metadata keys.
type MetadataFilterMiddleware struct {
	Keys map[string]bool
}

func (m *MetadataFilterMiddleware) Name() string { return "metadata_filter" }

func (m *MetadataFilterMiddleware) Process(doc *types.Document) (*types.Document, error) {
	if len(m.Keys) == 0 {
		return doc, nil
	}
	for key := range doc.Metadata {
		if !m.Keys[key] {
			delete(doc.Metadata, key)
		}
	}
	return doc, nil
}

// MetadataRenameMiddleware renames metadata keys.
type MetadataRenameMiddleware struct {
	Mapping map[string]string // old key -> new key
}

func (m *MetadataRenameMiddleware) Name() string { return "metadata_rename" }

func (m *MetadataRenameMiddleware) Process(doc *types.Document) (*types.Document, error) {
	for oldKey, newKey := range m.Mapping {
		if val, ok := doc.Metadata[oldKey]; ok {
			doc.Metadata[newKey] = val
			delete(doc.Metadata, oldKey)
		}
	}
	return doc, nil
}

// RequiredFieldsMiddleware drops documents missing a non-empty body or
// title.
type RequiredFieldsMiddleware struct {
	RequireTitle bool
	RequireBody  bool
}

func (m *RequiredFieldsMiddleware) Name() string { return "required_fields" }

func (m *RequiredFieldsMiddleware) Process(doc *types.Document) (*types.Document, error) {
	if m.RequireTitle && strings.TrimSpace(doc.Title) == "" {
		return nil, nil
	}
	if m.RequireBody && strings.TrimSpace(doc.Body) == "" {
		return nil, nil
	}
	return doc, nil
}

// DedupMiddleware drops documents whose raw HTML hash has already been
// seen in this process's lifetime.
type DedupMiddleware struct {
	mu   sync.Mutex
	seen map[string]struct{}
}

func NewDedupMiddleware() *DedupMiddleware {
	return &DedupMiddleware{seen: make(map[string]struct{})}
}

func (m *DedupMiddleware) Name() string { return "dedup" }

func (m *DedupMiddleware) Process(doc *types.Document) (*types.Document, error) {
	key := doc.RawHTMLHash
	if key == "" {
		key = doc.FinalURL
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.seen[key]; exists {
		return nil, nil
	}
	m.seen[key] = struct{}{}
	return doc, nil
}

// DefaultMetadataMiddleware sets default values for missing metadata keys.
type DefaultMetadataMiddleware struct {
	Defaults map[string]string
}

func (m *DefaultMetadataMiddleware) Name() string { return "default_metadata" }

func (m *DefaultMetadataMiddleware) Process(doc *types.Document) (*types.Document, error) {
	if doc.Metadata == nil {
		doc.Metadata = make(map[string]string, len(m.Defaults))
	}
	for key, val := range m.Defaults {
		if _, ok := doc.Metadata[key]; !ok {
			doc.Metadata[key] = val
		}
	}
	return doc, nil
}

// TrimMiddleware trims whitespace from title, byline, body and all
// metadata values.
type TrimMiddleware struct{}

func (m *TrimMiddleware) Name() string { return "trim" }

func (m *TrimMiddleware) Process(doc *types.Document) (*types.Document, error) {
	doc.Title = strings.TrimSpace(doc.Title)
	doc.Byline = strings.TrimSpace(doc.Byline)
	doc.Body = strings.TrimSpace(doc.Body)
	for k, v := range doc.Metadata {
		doc.Metadata[k] = strings.TrimSpace(v)
	}
	return doc, nil
}
