package api

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
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
	"github.com/foofork/riptide/internal/streaming"
	"github.com/foofork/riptide/internal/types"
	"github.com/foofork/riptide/internal/worker"
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

type fakeExtractor struct{}

func (fakeExtractor) Name() string { return "static" }
func (fakeExtractor) Extract(context.Context, *types.Response, types.Options) (*types.Document, error) {
	return &types.Document{Title: "doc"}, nil
}

type fakeRenderPool struct{}

func (fakeRenderPool) Acquire(context.Context) (func(), error) { return func() {}, nil }

func newTestDeps(t *testing.T) *Deps {
	t.Helper()

	idemStore := idempotency.NewInMemoryStore(time.Minute, time.Hour, testLogger)
	t.Cleanup(func() { idemStore.Close() })

	mem := resource.NewMemoryMonitor(4096, testLogger)
	limiter := ratelimit.New(100, 10, 0, false, testLogger)
	pdfSlots := resource.NewPDFSemaphore(2)
	mgr := resource.New(idemStore, limiter, mem, fakeRenderPool{}, pdfSlots, testLogger)

	cachePort := cache.NewMemoryStore(time.Hour, testLogger)
	t.Cleanup(func() { cachePort.Close() })

	post := pipeline.New(testLogger)
	reg := extractor.NewRegistry(fakeExtractor{})

	resp := &types.Response{StatusCode: 200, Body: []byte(`<html><body><article><p>hi</p></article></body></html>`), ContentType: "text/html"}
	eng := orchestrator.New(mgr, pdfSlots, &fakeFetcher{resp: resp}, analyzer.NewCache(128, time.Hour), reg, cachePort, post,
		config.PipelineConfig{FetchTimeout: time.Second, RenderHardCap: time.Second, PipelineTimeout: 5 * time.Second, BatchConcurrency: 4},
		time.Hour, testLogger)

	runner := orchestrator.NewRunner(eng, testLogger)

	store := worker.NewMemoryStore()
	pool := worker.New(runner, store, 2, testLogger)
	ctx, cancel := context.WithCancel(context.Background())
	pool.Start(ctx)
	t.Cleanup(func() {
		cancel()
		pool.Stop()
	})

	metrics := observability.NewMetrics(testLogger)
	monitor := observability.NewMonitor(metrics, mem, mgr, nil, 0, pdfSlots, limiter.Rate(),
		[]string{"static"}, []string{"none"}, pool.QueueDepth, observability.DefaultThresholds())

	return &Deps{
		Runner:   runner,
		Pool:     pool,
		Producer: streaming.NewFrameProducer(runner, testLogger),
		Buffers:  streaming.NewBufferManager(),
		Monitor:  monitor,
		Logger:   testLogger,
	}
}

func TestSubmitSyncReturnsResults(t *testing.T) {
	router := NewRouter(newTestDeps(t))

	body := `{"urls":["https://example.com/a"],"options":{"cache_mode":"disabled"}}`
	req := httptest.NewRequest(http.MethodPost, "/v1/extract", strings.NewReader(body))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}

	var resp submitResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Stats.Total != 1 || resp.Stats.Successful != 1 {
		t.Errorf("stats = %+v, want total=1 successful=1", resp.Stats)
	}
}

func TestSubmitSyncRejectsEmptyURLs(t *testing.T) {
	router := NewRouter(newTestDeps(t))

	req := httptest.NewRequest(http.MethodPost, "/v1/extract", strings.NewReader(`{"urls":[]}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestCreateJobAndPollStatus(t *testing.T) {
	router := NewRouter(newTestDeps(t))

	req := httptest.NewRequest(http.MethodPost, "/v1/jobs", strings.NewReader(`{"kind":"single","urls":["https://example.com/a"]}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var created jobResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &created); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if created.ID == "" {
		t.Fatal("expected non-empty job id")
	}

	deadline := time.After(2 * time.Second)
	for {
		select {
		case <-deadline:
			t.Fatal("timed out waiting for job to complete")
		default:
		}

		statusReq := httptest.NewRequest(http.MethodGet, "/v1/jobs/"+created.ID, nil)
		statusRec := httptest.NewRecorder()
		router.ServeHTTP(statusRec, statusReq)
		if statusRec.Code != http.StatusOK {
			t.Fatalf("status = %d, body = %s", statusRec.Code, statusRec.Body.String())
		}

		var job worker.Job
		if err := json.Unmarshal(statusRec.Body.Bytes(), &job); err != nil {
			t.Fatalf("decode job: %v", err)
		}
		if job.Status == worker.StatusDone {
			return
		}
		if job.Status == worker.StatusFailed {
			t.Fatalf("job failed: %s", job.Err)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestJobStatusUnknownIDReturnsNotFound(t *testing.T) {
	router := NewRouter(newTestDeps(t))

	req := httptest.NewRequest(http.MethodGet, "/v1/jobs/does-not-exist", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}

func TestHealthReturnsReport(t *testing.T) {
	router := NewRouter(newTestDeps(t))

	req := httptest.NewRequest(http.MethodGet, "/v1/health", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var report observability.Report
	if err := json.Unmarshal(rec.Body.Bytes(), &report); err != nil {
		t.Fatalf("decode report: %v", err)
	}
	if report.Level == "" {
		t.Error("expected non-empty health level")
	}
}

func TestSubmitStreamWritesNDJSONFrames(t *testing.T) {
	router := NewRouter(newTestDeps(t))

	body := `{"urls":["https://example.com/a","https://example.com/b"],"options":{"cache_mode":"disabled"}}`
	req := httptest.NewRequest(http.MethodPost, "/v1/extract/stream", strings.NewReader(body))
	req.Header.Set("Accept", "application/x-ndjson")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}

	var sawComplete bool
	scanner := bufio.NewScanner(bytes.NewReader(rec.Body.Bytes()))
	for scanner.Scan() {
		var frame types.StreamFrame
		if err := json.Unmarshal(scanner.Bytes(), &frame); err != nil {
			t.Fatalf("decode frame: %v", err)
		}
		if frame.Type == types.FrameComplete {
			sawComplete = true
		}
	}
	if !sawComplete {
		t.Error("expected a complete frame in the ndjson stream")
	}
}
