package streaming

import (
	"context"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/foofork/riptide/internal/analyzer"
	"github.com/foofork/riptide/internal/cache"
	"github.com/foofork/riptide/internal/config"
	"github.com/foofork/riptide/internal/extractor"
	"github.com/foofork/riptide/internal/idempotency"
	"github.com/foofork/riptide/internal/orchestrator"
	"github.com/foofork/riptide/internal/pipeline"
	"github.com/foofork/riptide/internal/ratelimit"
	"github.com/foofork/riptide/internal/resource"
	"github.com/foofork/riptide/internal/types"
)

var testLogger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))

type fakeFetcher struct{ resp *types.Response }

func (f *fakeFetcher) Fetch(_ context.Context, req *types.FetchRequest) (*types.Response, error) {
	r := *f.resp
	r.Request = req
	return &r, nil
}
func (f *fakeFetcher) Close() error { return nil }
func (f *fakeFetcher) Type() string { return "fake" }

type fakeExtractor struct{ doc *types.Document }

func (e *fakeExtractor) Name() string { return "static" }
func (e *fakeExtractor) Extract(context.Context, *types.Response, types.Options) (*types.Document, error) {
	d := *e.doc
	return &d, nil
}

type fakePool struct{}

func (fakePool) Acquire(context.Context) (func(), error) { return func() {}, nil }

func newTestRunner(t *testing.T) *orchestrator.Runner {
	t.Helper()

	idemStore := idempotency.NewInMemoryStore(time.Minute, time.Hour, testLogger)
	t.Cleanup(func() { idemStore.Close() })

	mem := resource.NewMemoryMonitor(4096, testLogger)
	limiter := ratelimit.New(100, 10, 0, false, testLogger)
	pdfSlots := resource.NewPDFSemaphore(2)
	mgr := resource.New(idemStore, limiter, mem, fakePool{}, pdfSlots, testLogger)

	cachePort := cache.NewMemoryStore(time.Hour, testLogger)
	t.Cleanup(func() { cachePort.Close() })

	post := pipeline.New(testLogger)

	resp := &types.Response{StatusCode: 200, Body: []byte(`<html><body><article><p>hi</p></article></body></html>`), ContentType: "text/html"}
	reg := extractor.NewRegistry(&fakeExtractor{doc: &types.Document{Title: "doc"}})

	eng := orchestrator.New(mgr, pdfSlots, &fakeFetcher{resp: resp}, analyzer.NewCache(128, time.Hour), reg, cachePort, post,
		config.PipelineConfig{FetchTimeout: time.Second, RenderHardCap: time.Second, PipelineTimeout: 5 * time.Second, BatchConcurrency: 4},
		time.Hour, testLogger)

	return orchestrator.NewRunner(eng, testLogger)
}

func TestFrameProducerEmitsStartedResultsAndComplete(t *testing.T) {
	runner := newTestRunner(t)
	producer := NewFrameProducer(runner, testLogger)
	buf := NewDynamicBuffer()
	handler := NewBackpressureHandler("test-conn", buf)

	opts := types.DefaultOptions()
	opts.CacheMode = types.CacheDisabled
	req := &types.CrawlRequest{URLs: []string{"https://example.com/a", "https://example.com/b"}, Options: opts}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	frames, err := producer.Produce(ctx, req, handler)
	if err != nil {
		t.Fatalf("Produce: %v", err)
	}

	var sawStarted, sawComplete bool
	resultCount := 0
	for frame := range frames {
		switch frame.Type {
		case types.FrameStarted:
			sawStarted = true
			if frame.Total != 2 {
				t.Errorf("started frame Total = %d, want 2", frame.Total)
			}
		case types.FrameResult:
			resultCount++
		case types.FrameComplete:
			sawComplete = true
		}
	}

	if !sawStarted {
		t.Error("never saw a Started frame")
	}
	if !sawComplete {
		t.Error("never saw a Complete frame")
	}
	if resultCount != 2 {
		t.Errorf("resultCount = %d, want 2", resultCount)
	}
}
