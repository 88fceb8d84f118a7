package orchestrator

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/foofork/riptide/internal/analyzer"
	"github.com/foofork/riptide/internal/cache"
	"github.com/foofork/riptide/internal/config"
	"github.com/foofork/riptide/internal/extractor"
	"github.com/foofork/riptide/internal/idempotency"
	"github.com/foofork/riptide/internal/observability"
	"github.com/foofork/riptide/internal/pipeline"
	"github.com/foofork/riptide/internal/ratelimit"
	"github.com/foofork/riptide/internal/resource"
	"github.com/foofork/riptide/internal/types"
)

var testLogger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))

type fakeFetcher struct {
	resp *types.Response
	err  error

	// failTimes makes Fetch return a retryable 502 for the first
	// failTimes calls before falling through to resp/err.
	failTimes int
	calls     int
}

func (f *fakeFetcher) Fetch(_ context.Context, req *types.FetchRequest) (*types.Response, error) {
	f.calls++
	if f.calls <= f.failTimes {
		return nil, types.NewFetchError(502, errors.New("upstream unavailable"))
	}
	if f.err != nil {
		return nil, f.err
	}
	r := *f.resp
	r.Request = req
	return &r, nil
}
func (f *fakeFetcher) Close() error { return nil }
func (f *fakeFetcher) Type() string { return "fake" }

type fakeExtractor struct {
	name string
	doc  *types.Document
	err  error
}

func (e *fakeExtractor) Name() string { return e.name }
func (e *fakeExtractor) Extract(context.Context, *types.Response, types.Options) (*types.Document, error) {
	if e.err != nil {
		return nil, e.err
	}
	d := *e.doc
	return &d, nil
}

func newTestEngine(t *testing.T, httpFetcher *fakeFetcher, extractors *extractor.Registry) *Engine {
	t.Helper()

	idemStore := idempotency.NewInMemoryStore(time.Minute, time.Hour, testLogger)
	t.Cleanup(func() { idemStore.Close() })

	mem := resource.NewMemoryMonitor(4096, testLogger)
	limiter := ratelimit.New(100, 10, 0, false, testLogger)
	pool := browserpoolStub{}
	pdfSlots := resource.NewPDFSemaphore(2)

	mgr := resource.New(idemStore, limiter, mem, pool, pdfSlots, testLogger)

	cachePort := cache.NewMemoryStore(time.Hour, testLogger)
	t.Cleanup(func() { cachePort.Close() })

	post := pipeline.New(testLogger)

	return New(mgr, pdfSlots, httpFetcher, analyzer.NewCache(128, time.Hour), extractors, cachePort, post,
		config.PipelineConfig{FetchTimeout: time.Second, RenderHardCap: time.Second, PipelineTimeout: 5 * time.Second},
		time.Hour, testLogger)
}

type browserpoolStub struct{}

func (browserpoolStub) Acquire(context.Context) (func(), error) { return func() {}, nil }

func TestProcessURLStaticExtractionSucceeds(t *testing.T) {
	resp := &types.Response{
		StatusCode:  200,
		Body:        []byte(`<html><body><article><p>hi</p></article></body></html>`),
		ContentType: "text/html",
		FinalURL:    "https://example.com/a",
	}
	reg := extractor.NewRegistry(&fakeExtractor{name: "static", doc: &types.Document{Title: "A"}})
	e := newTestEngine(t, &fakeFetcher{resp: resp}, reg)

	result := e.ProcessURL(context.Background(), "https://example.com/a", types.DefaultOptions())
	if !result.Success() {
		t.Fatalf("ProcessURL failed: %v", result.Err)
	}
	if result.Document.Title != "A" {
		t.Errorf("Document.Title = %q, want A", result.Document.Title)
	}
	if result.GateDecision != "miss" {
		t.Errorf("GateDecision = %q, want miss", result.GateDecision)
	}
}

func TestProcessURLFailsWhenSelectedEngineHasNoFallback(t *testing.T) {
	resp := &types.Response{
		StatusCode: 200,
		// Anti-scraping marker selects stealth with an empty fallback
		// chain; only static is registered, so extraction must fail.
		Body:        []byte(`<html><body>cloudflare challenge<article><p>x</p></article></body></html>`),
		ContentType: "text/html",
		FinalURL:    "https://example.com/protected",
	}
	reg := extractor.NewRegistry(&fakeExtractor{name: "static", doc: &types.Document{Title: "fallback"}})
	e := newTestEngine(t, &fakeFetcher{resp: resp}, reg)

	result := e.ProcessURL(context.Background(), "https://example.com/protected", types.DefaultOptions())
	if result.Success() {
		t.Fatal("ProcessURL succeeded, want failure: stealth unregistered and stealth has no fallback chain")
	}
}

func TestProcessURLCachesAndServesReadThrough(t *testing.T) {
	resp := &types.Response{
		StatusCode:  200,
		Body:        []byte(`<html><body><article><p>hi</p></article></body></html>`),
		ContentType: "text/html",
		FinalURL:    "https://example.com/cached",
	}
	reg := extractor.NewRegistry(&fakeExtractor{name: "static", doc: &types.Document{Title: "cached-doc"}})
	fetcher := &fakeFetcher{resp: resp}
	e := newTestEngine(t, fetcher, reg)

	opts := types.DefaultOptions()
	opts.CacheMode = types.CacheReadThrough

	first := e.ProcessURL(context.Background(), "https://example.com/cached", opts)
	if !first.Success() || first.FromCache {
		t.Fatalf("first call: success=%v fromCache=%v err=%v", first.Success(), first.FromCache, first.Err)
	}

	second := e.ProcessURL(context.Background(), "https://example.com/cached", opts)
	if !second.Success() || !second.FromCache {
		t.Fatalf("second call: success=%v fromCache=%v err=%v", second.Success(), second.FromCache, second.Err)
	}
	if second.GateDecision != "hit" {
		t.Errorf("GateDecision = %q, want hit", second.GateDecision)
	}
}

func TestProcessURLPropagatesFetchError(t *testing.T) {
	reg := extractor.NewRegistry(&fakeExtractor{name: "static", doc: &types.Document{}})
	e := newTestEngine(t, &fakeFetcher{err: types.NewFetchError(0, context.DeadlineExceeded)}, reg)

	result := e.ProcessURL(context.Background(), "https://example.com/b", types.DefaultOptions())
	if result.Success() {
		t.Fatal("ProcessURL succeeded, want fetch error propagated")
	}
}

func TestProcessURLRecordsMetricsWhenWired(t *testing.T) {
	resp := &types.Response{
		StatusCode:  200,
		Body:        []byte(`<html><body><article><p>hi</p></article></body></html>`),
		ContentType: "text/html",
		FinalURL:    "https://example.com/metrics",
	}
	reg := extractor.NewRegistry(&fakeExtractor{name: "static", doc: &types.Document{Title: "A"}})
	e := newTestEngine(t, &fakeFetcher{resp: resp}, reg)

	metrics := observability.NewMetrics(testLogger)
	e.SetMetrics(metrics)

	e.ProcessURL(context.Background(), "https://example.com/metrics", types.DefaultOptions())

	snap := metrics.Snapshot()
	if snap["requests_total"] != 1 {
		t.Errorf("requests_total = %d, want 1", snap["requests_total"])
	}
	if snap["cache_misses"] != 1 {
		t.Errorf("cache_misses = %d, want 1", snap["cache_misses"])
	}
	if snap["requests_failed"] != 0 {
		t.Errorf("requests_failed = %d, want 0", snap["requests_failed"])
	}
}

// TestProcessURLRetriesAcquireOnRateLimited exercises a RateLimited
// admission failure, sleeping retry_after and retrying rather than
// failing the whole URL immediately.
func TestProcessURLRetriesAcquireOnRateLimited(t *testing.T) {
	resp := &types.Response{
		StatusCode:  200,
		Body:        []byte(`<html><body><article><p>hi</p></article></body></html>`),
		ContentType: "text/html",
		FinalURL:    "https://example.com/a",
	}
	reg := extractor.NewRegistry(&fakeExtractor{name: "static", doc: &types.Document{Title: "A"}})

	idemStore := idempotency.NewInMemoryStore(time.Minute, time.Hour, testLogger)
	t.Cleanup(func() { idemStore.Close() })
	mem := resource.NewMemoryMonitor(4096, testLogger)
	// burst of 1 refilling at 1000/sec: the second Acquire on the same
	// host exhausts the bucket and must wait roughly a millisecond for a
	// token, fast enough to keep this test sub-second.
	limiter := ratelimit.New(1000, 1, 0, false, testLogger)
	pdfSlots := resource.NewPDFSemaphore(2)
	mgr := resource.New(idemStore, limiter, mem, browserpoolStub{}, pdfSlots, testLogger)
	cachePort := cache.NewMemoryStore(time.Hour, testLogger)
	t.Cleanup(func() { cachePort.Close() })
	post := pipeline.New(testLogger)

	e := New(mgr, pdfSlots, &fakeFetcher{resp: resp}, analyzer.NewCache(128, time.Hour), reg, cachePort, post,
		config.PipelineConfig{FetchTimeout: time.Second, RenderHardCap: time.Second, PipelineTimeout: 5 * time.Second, AcquireMaxRetries: 3},
		time.Hour, testLogger)

	first := e.ProcessURL(context.Background(), "https://example.com/a", types.DefaultOptions())
	if !first.Success() {
		t.Fatalf("first call: %v", first.Err)
	}

	second := e.ProcessURL(context.Background(), "https://example.com/b", types.DefaultOptions())
	if !second.Success() {
		t.Fatalf("second call should succeed after retrying past the host rate limit, got err: %v", second.Err)
	}
}

// TestProcessURLRetriesRetryableFetchError exercises a retryable
// (5xx/transport) fetch failure, backing off and retrying instead of
// failing the whole URL on the first attempt.
func TestProcessURLRetriesRetryableFetchError(t *testing.T) {
	resp := &types.Response{
		StatusCode:  200,
		Body:        []byte(`<html><body><article><p>hi</p></article></body></html>`),
		ContentType: "text/html",
		FinalURL:    "https://example.com/flaky",
	}
	reg := extractor.NewRegistry(&fakeExtractor{name: "static", doc: &types.Document{Title: "A"}})
	httpFetcher := &fakeFetcher{resp: resp, failTimes: 1}

	idemStore := idempotency.NewInMemoryStore(time.Minute, time.Hour, testLogger)
	t.Cleanup(func() { idemStore.Close() })
	mem := resource.NewMemoryMonitor(4096, testLogger)
	limiter := ratelimit.New(100, 10, 0, false, testLogger)
	pdfSlots := resource.NewPDFSemaphore(2)
	mgr := resource.New(idemStore, limiter, mem, browserpoolStub{}, pdfSlots, testLogger)
	cachePort := cache.NewMemoryStore(time.Hour, testLogger)
	t.Cleanup(func() { cachePort.Close() })
	post := pipeline.New(testLogger)

	e := New(mgr, pdfSlots, httpFetcher, analyzer.NewCache(128, time.Hour), reg, cachePort, post,
		config.PipelineConfig{FetchTimeout: time.Second, RenderHardCap: time.Second, PipelineTimeout: 5 * time.Second, FetchMaxRetries: 2},
		time.Hour, testLogger)

	result := e.ProcessURL(context.Background(), "https://example.com/flaky", types.DefaultOptions())
	if !result.Success() {
		t.Fatalf("ProcessURL failed, want the one transient 502 retried away: %v", result.Err)
	}
	if httpFetcher.calls != 2 {
		t.Errorf("fetch attempts = %d, want 2 (1 failure + 1 success)", httpFetcher.calls)
	}
}

func TestFetchBackoffBaseDoublesAndCaps(t *testing.T) {
	cases := []struct {
		attempt int
		want    time.Duration
	}{
		{0, 100 * time.Millisecond},
		{1, 200 * time.Millisecond},
		{5, 3200 * time.Millisecond},
		{10, 5 * time.Second},
	}
	for _, c := range cases {
		if got := fetchBackoffBase(c.attempt); got != c.want {
			t.Errorf("fetchBackoffBase(%d) = %v, want %v", c.attempt, got, c.want)
		}
	}
}
