package types

import (
	"fmt"
	"net/http"
	"net/url"
	"time"
)

// OutputFormat selects how a Document's body is rendered.
type OutputFormat string

const (
	OutputMarkdown OutputFormat = "markdown"
	OutputPlain    OutputFormat = "plain"
	OutputJSON     OutputFormat = "json"
)

// CacheMode controls how the pipeline consults and populates the cache
// port for a given request (spec §3.1, §4.9 cache-gate decision).
type CacheMode string

const (
	CacheReadThrough CacheMode = "read-through"
	CacheWriteOnly   CacheMode = "write-only"
	CacheBypass      CacheMode = "bypass"
	CacheDisabled    CacheMode = "disabled"
)

// StealthPreset names a bundle of anti-detection measures applied by the
// Stealth extractor (spec §4.8).
type StealthPreset string

const (
	StealthNone   StealthPreset = "none"
	StealthLow    StealthPreset = "low"
	StealthMedium StealthPreset = "medium"
	StealthHigh   StealthPreset = "high"
)

// ChunkingConfig controls how a long Document body is split for
// downstream consumers that want bounded-size chunks instead of one
// monolithic body.
type ChunkingConfig struct {
	Enabled      bool
	MaxChunkSize int
	Overlap      int
}

// Options configures how every URL in a CrawlRequest is processed. It is
// part of the ResourceFingerprint key, minus fields that don't affect the
// extracted content (see Fingerprint).
type Options struct {
	OutputFormat  OutputFormat
	CacheMode     CacheMode
	Concurrency   int // 1..64, spec §5
	PerURLTimeout time.Duration
	StealthPreset StealthPreset
	Chunking      ChunkingConfig
}

// DefaultOptions returns the baseline Options a CLI invocation starts from
// before config/flag overrides are applied.
func DefaultOptions() Options {
	return Options{
		OutputFormat:  OutputMarkdown,
		CacheMode:     CacheReadThrough,
		Concurrency:   8,
		PerURLTimeout: 30 * time.Second,
		StealthPreset: StealthNone,
	}
}

// Validate checks Options against the bounds spec.md fixes (§3.1, §5).
func (o Options) Validate() error {
	if o.Concurrency < 1 || o.Concurrency > 64 {
		return NewValidation("concurrency", "must be between 1 and 64")
	}
	switch o.OutputFormat {
	case OutputMarkdown, OutputPlain, OutputJSON:
	default:
		return NewValidation("output_format", fmt.Sprintf("unsupported format %q", o.OutputFormat))
	}
	switch o.CacheMode {
	case CacheReadThrough, CacheWriteOnly, CacheBypass, CacheDisabled:
	default:
		return NewValidation("cache_mode", fmt.Sprintf("unsupported mode %q", o.CacheMode))
	}
	return nil
}

// CrawlRequest is the caller-facing unit of work: a set of absolute URLs
// processed under one set of Options (spec §3.1).
type CrawlRequest struct {
	URLs    []string
	Options Options
}

// Validate rejects an empty batch or any non-absolute URL before a single
// resource is acquired.
func (c *CrawlRequest) Validate() error {
	if len(c.URLs) == 0 {
		return ErrEmptyBatch
	}
	for _, raw := range c.URLs {
		u, err := url.Parse(raw)
		if err != nil || !u.IsAbs() {
			return NewValidation("urls", fmt.Sprintf("%q is not an absolute URL", raw))
		}
	}
	return c.Options.Validate()
}

// FetchRequest is the per-URL unit the Resource Manager, Browser Pool and
// Fetch Engine pass between them once a CrawlRequest has been expanded
// (one per URL) and admitted.
type FetchRequest struct {
	URL *url.URL

	Method  string
	Headers http.Header
	Body    []byte

	RetryCount int
	MaxRetries int

	Timeout time.Duration
	Meta    map[string]any

	// FetcherType is set by the Engine Selector once analysis completes;
	// empty until then.
	FetcherType string

	CreatedAt time.Time
	ID        string
}

// NewFetchRequest builds a FetchRequest for a single URL with the
// defaults a freshly admitted CrawlRequest item starts from.
func NewFetchRequest(rawURL string, opts Options) (*FetchRequest, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("invalid URL %q: %w", rawURL, err)
	}

	return &FetchRequest{
		URL:        u,
		Method:     http.MethodGet,
		Headers:    make(http.Header),
		MaxRetries: 3,
		Timeout:    opts.PerURLTimeout,
		Meta:       make(map[string]any),
		CreatedAt:  time.Now(),
		ID:         fmt.Sprintf("%s-%d", u.String(), time.Now().UnixNano()),
	}, nil
}

// URLString returns the string representation of the request URL.
func (r *FetchRequest) URLString() string {
	if r.URL == nil {
		return ""
	}
	return r.URL.String()
}

// Domain returns the hostname of the request URL.
func (r *FetchRequest) Domain() string {
	if r.URL == nil {
		return ""
	}
	return r.URL.Hostname()
}

// Clone creates a deep copy of the request, the same defensive idiom
// retry loops and fallback-chain re-dispatch rely on elsewhere in this
// codebase.
func (r *FetchRequest) Clone() *FetchRequest {
	clone := *r
	if r.URL != nil {
		u := *r.URL
		clone.URL = &u
	}
	clone.Headers = r.Headers.Clone()
	clone.Meta = make(map[string]any, len(r.Meta))
	for k, v := range r.Meta {
		clone.Meta[k] = v
	}
	clone.Body = append([]byte(nil), r.Body...)
	return &clone
}
