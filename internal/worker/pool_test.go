package worker

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
	"github.com/foofork/riptide/internal/observability"
	"github.com/foofork/riptide/internal/orchestrator"
	"github.com/foofork/riptide/internal/pipeline"
	"github.com/foofork/riptide/internal/ratelimit"
	"github.com/foofork/riptide/internal/resource"
	"github.com/foofork/riptide/internal/types"
)

var testLogger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))

type fakeFetcher struct {
	resp *types.Response
	err  error
}

func (f *fakeFetcher) Fetch(_ context.Context, req *types.FetchRequest) (*types.Response, error) {
	if f.err != nil {
		return nil, f.err
	}
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

func newTestRunner(t *testing.T, httpFetcher *fakeFetcher) *orchestrator.Runner {
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
	reg := extractor.NewRegistry(&fakeExtractor{doc: &types.Document{Title: "doc"}})

	eng := orchestrator.New(mgr, pdfSlots, httpFetcher, analyzer.NewCache(128, time.Hour), reg, cachePort, post,
		config.PipelineConfig{FetchTimeout: time.Second, RenderHardCap: time.Second, PipelineTimeout: 5 * time.Second, BatchConcurrency: 4},
		time.Hour, testLogger)

	return orchestrator.NewRunner(eng, testLogger)
}

func TestPoolRunsQueuedJobToCompletion(t *testing.T) {
	resp := &types.Response{StatusCode: 200, Body: []byte(`<html><body><article><p>hi</p></article></body></html>`), ContentType: "text/html"}
	runner := newTestRunner(t, &fakeFetcher{resp: resp})
	store := NewMemoryStore()
	pool := New(runner, store, 2, testLogger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	pool.Start(ctx)
	defer pool.Stop()

	opts := types.DefaultOptions()
	opts.CacheMode = types.CacheDisabled
	job := NewJob("job-1", KindSingle, []string{"https://example.com/a"}, opts)
	if err := pool.Submit(ctx, job); err != nil {
		t.Fatalf("Submit: %v", err)
	}

	deadline := time.After(2 * time.Second)
	for {
		select {
		case <-deadline:
			t.Fatal("timed out waiting for job to complete")
		default:
		}
		got, ok, err := pool.Status(ctx, "job-1")
		if err != nil {
			t.Fatalf("Status: %v", err)
		}
		if ok && (got.Status == StatusDone || got.Status == StatusFailed) {
			if got.Status != StatusDone {
				t.Fatalf("job status = %s, want done", got.Status)
			}
			if len(got.Results) != 1 || !got.Results[0].Success() {
				t.Fatalf("job results = %+v, want one successful result", got.Results)
			}
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestPoolRetriesFailedJobUntilMaxAttempts(t *testing.T) {
	runner := newTestRunner(t, &fakeFetcher{err: types.NewFetchError(0, context.DeadlineExceeded)})
	store := NewMemoryStore()
	pool := New(runner, store, 1, testLogger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	pool.Start(ctx)
	defer pool.Stop()

	job := NewJob("job-2", KindSingle, []string{"https://example.com/a"}, types.DefaultOptions())
	job.MaxAttempts = 2
	if err := pool.Submit(ctx, job); err != nil {
		t.Fatalf("Submit: %v", err)
	}

	deadline := time.After(5 * time.Second)
	for {
		select {
		case <-deadline:
			t.Fatal("timed out waiting for job to fail permanently")
		default:
		}
		got, ok, err := pool.Status(ctx, "job-2")
		if err != nil {
			t.Fatalf("Status: %v", err)
		}
		if ok && got.Status == StatusFailed {
			if got.Attempts != 2 {
				t.Errorf("Attempts = %d, want 2 (MaxAttempts)", got.Attempts)
			}
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestPoolRecordsMetricsWhenWired(t *testing.T) {
	runner := newTestRunner(t, &fakeFetcher{err: types.NewFetchError(0, context.DeadlineExceeded)})
	store := NewMemoryStore()
	pool := New(runner, store, 1, testLogger)
	metrics := observability.NewMetrics(testLogger)
	pool.SetMetrics(metrics)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	pool.Start(ctx)
	defer pool.Stop()

	job := NewJob("job-3", KindSingle, []string{"https://example.com/a"}, types.DefaultOptions())
	job.MaxAttempts = 2
	if err := pool.Submit(ctx, job); err != nil {
		t.Fatalf("Submit: %v", err)
	}

	deadline := time.After(5 * time.Second)
	for {
		select {
		case <-deadline:
			t.Fatal("timed out waiting for job to fail permanently")
		default:
		}
		got, ok, err := pool.Status(ctx, "job-3")
		if err != nil {
			t.Fatalf("Status: %v", err)
		}
		if ok && got.Status == StatusFailed {
			snap := metrics.Snapshot()
			if snap["jobs_submitted"] != 1 {
				t.Errorf("jobs_submitted = %d, want 1", snap["jobs_submitted"])
			}
			if snap["jobs_retried"] != 1 {
				t.Errorf("jobs_retried = %d, want 1", snap["jobs_retried"])
			}
			if snap["jobs_failed"] != 1 {
				t.Errorf("jobs_failed = %d, want 1", snap["jobs_failed"])
			}
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
}
