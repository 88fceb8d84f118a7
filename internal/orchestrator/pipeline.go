// Package orchestrator drives one URL through the per-URL state machine
// (spec §4.9): Queued -> Acquiring -> Fetching -> Analyzing -> Extracting
// -> Caching -> Emitting -> Terminal, the same straight-line
// fetch-then-callback sequence the teacher's Scheduler.processRequest
// runs per dequeued request, generalized from "fetch and hand off to
// parser/callbacks" to "fetch, classify, extract, cache, emit".
package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math/rand"
	"time"

	"github.com/foofork/riptide/internal/analyzer"
	"github.com/foofork/riptide/internal/cache"
	"github.com/foofork/riptide/internal/config"
	"github.com/foofork/riptide/internal/extractor"
	"github.com/foofork/riptide/internal/fetcher"
	"github.com/foofork/riptide/internal/observability"
	"github.com/foofork/riptide/internal/pipeline"
	"github.com/foofork/riptide/internal/resource"
	"github.com/foofork/riptide/internal/types"
)

// stage names one point in the per-URL state machine, used only for log
// correlation; the machine itself is expressed as straight-line Go
// control flow rather than an explicit state enum, since every
// transition here is unconditional forward progress or an early return.
type stage string

const (
	stageAcquiring  stage = "acquiring"
	stageFetching   stage = "fetching"
	stageAnalyzing  stage = "analyzing"
	stageExtracting stage = "extracting"
	stageCaching    stage = "caching"
)

// Engine wires the Resource Manager, Fetch Engine, Content Analyzer,
// Extractor Registry, Cache Port and the post-extraction Pipeline into
// the single-URL pipeline the Batch Runner fans out over.
type Engine struct {
	resourceMgr   *resource.Manager
	pdfSlots      *resource.PDFSemaphore
	httpFetcher   fetcher.Fetcher
	selectorCache *analyzer.Cache
	extractors    *extractor.Registry
	cachePort     cache.Port
	post          *pipeline.Pipeline
	cfg           config.PipelineConfig
	cacheTTL      time.Duration
	logger        *slog.Logger

	metrics *observability.Metrics
}

// SetMetrics wires an observability.Metrics instance so every ProcessURL
// call records request/cache/failure counters. Optional: a nil metrics
// or a never-called SetMetrics leaves recording a no-op, which is what
// every existing Engine construction site (tests, the streaming and
// worker packages) relies on.
func (e *Engine) SetMetrics(m *observability.Metrics) {
	e.metrics = m
}

// New builds an Engine from its component ports.
func New(
	resourceMgr *resource.Manager,
	pdfSlots *resource.PDFSemaphore,
	httpFetcher fetcher.Fetcher,
	selectorCache *analyzer.Cache,
	extractors *extractor.Registry,
	cachePort cache.Port,
	post *pipeline.Pipeline,
	cfg config.PipelineConfig,
	cacheTTL time.Duration,
	logger *slog.Logger,
) *Engine {
	return &Engine{
		resourceMgr:   resourceMgr,
		pdfSlots:      pdfSlots,
		httpFetcher:   httpFetcher,
		selectorCache: selectorCache,
		extractors:    extractors,
		cachePort:     cachePort,
		post:          post,
		cfg:           cfg,
		cacheTTL:      cacheTTL,
		logger:        logger.With("component", "orchestrator"),
	}
}

// ProcessURL runs rawURL through the full pipeline and always returns a
// PipelineResult — errors are carried in the result, never returned
// separately, so a Batch Runner can emit in completion order without a
// second error channel.
func (e *Engine) ProcessURL(ctx context.Context, rawURL string, opts types.Options) *types.PipelineResult {
	start := time.Now()
	result := &types.PipelineResult{URL: rawURL}
	defer e.recordMetrics(result)

	req, err := types.NewFetchRequest(rawURL, opts)
	if err != nil {
		result.Err = types.NewValidation("url", err.Error())
		return result
	}

	pipelineCtx, cancel := context.WithTimeout(ctx, e.effectivePipelineTimeout(opts))
	defer cancel()

	fp := types.Fingerprint(rawURL, opts)
	result.CacheKey = fp.String()
	log := e.logger.With("url", rawURL, "fingerprint", fp.String())

	if opts.CacheMode == types.CacheReadThrough {
		if doc, ok := e.readCache(pipelineCtx, fp); ok {
			result.FromCache = true
			result.GateDecision = "hit"
			result.Document = doc
			result.ProcessingTime = time.Since(start)
			return result
		}
	}
	result.GateDecision = "miss"

	log.Debug("stage", "name", stageAcquiring)
	guard, err := e.acquireWithRetry(pipelineCtx, fp, resource.AcquireOptions{Host: req.URL.Host})
	if err != nil {
		result.Err = err
		return result
	}
	defer guard.Release()

	log.Debug("stage", "name", stageFetching)
	resp, err := e.fetchWithRetry(pipelineCtx, req)
	if err != nil {
		result.Err = err
		return result
	}
	if e.metrics != nil {
		e.metrics.BytesDownloaded.Add(int64(len(resp.Body)))
	}

	log.Debug("stage", "name", stageAnalyzing)
	primary, fallbacks := e.selectEngine(resp)

	log.Debug("stage", "name", stageExtracting, "engine", primary)
	doc, engineUsed, err := e.extractWithFallback(pipelineCtx, resp, opts, primary, fallbacks)
	if err != nil {
		if pipelineCtx.Err() == context.DeadlineExceeded {
			e.resourceMgr.RecordTimeout(types.TimeoutRender)
			if e.metrics != nil {
				e.metrics.TimeoutsTotal.Add(1)
			}
		}
		result.Err = err
		return result
	}
	doc.QualityScore = analyzer.ContentRatio(string(resp.Body))

	processed, err := e.post.Process(doc)
	if err != nil {
		result.Err = err
		return result
	}
	if processed == nil {
		result.Err = types.NewExtractionFailed(engineUsed, fmt.Errorf("document dropped by post-processing pipeline"))
		return result
	}
	doc = processed

	if opts.CacheMode == types.CacheReadThrough || opts.CacheMode == types.CacheWriteOnly {
		log.Debug("stage", "name", stageCaching)
		e.writeCache(pipelineCtx, fp, doc)
	}

	result.Document = doc
	result.ProcessingTime = time.Since(start)
	return result
}

// recordMetrics folds one ProcessURL outcome into the wired Metrics, if
// any. Reading the final result after every return point is simpler than
// threading a counter increment into each of ProcessURL's early returns.
func (e *Engine) recordMetrics(result *types.PipelineResult) {
	if e.metrics == nil {
		return
	}
	e.metrics.RequestsTotal.Add(1)
	if result.Err != nil {
		e.metrics.RequestsFailed.Add(1)
	}
	switch result.GateDecision {
	case "hit":
		e.metrics.CacheHits.Add(1)
	case "miss":
		e.metrics.CacheMisses.Add(1)
	}
}

// acquireWithRetry runs the Resource Manager's admission gate, sleeping
// retry_after and retrying on RateLimited up to cfg.AcquireMaxRetries
// times (spec §4.9). Any other admission failure, or a RateLimited that
// survives every retry, is returned as-is.
func (e *Engine) acquireWithRetry(ctx context.Context, fp types.ResourceFingerprint, opts resource.AcquireOptions) (*resource.Guard, error) {
	var lastErr error
	for attempt := 0; attempt <= e.cfg.AcquireMaxRetries; attempt++ {
		guard, err := e.resourceMgr.Acquire(ctx, fp, opts)
		if err == nil {
			return guard, nil
		}
		lastErr = err

		rerr, ok := types.AsRiptideError(err)
		if !ok || rerr.Kind() != types.KindRateLimited || attempt == e.cfg.AcquireMaxRetries {
			return nil, err
		}
		if sleepErr := sleepCtx(ctx, rerr.RetryAfter); sleepErr != nil {
			return nil, types.NewCancelled(sleepErr)
		}
	}
	return nil, lastErr
}

// fetchWithRetry runs the fetch stage, applying exponential backoff with
// full jitter (a uniform draw in [0, fetchBackoffBase(attempt)]) to
// retryable 5xx/transport failures up to cfg.FetchMaxRetries attempts
// (spec §4.9). A fetch-stage timeout
// is recorded on every attempt it occurs on, not just the final one.
func (e *Engine) fetchWithRetry(ctx context.Context, req *types.FetchRequest) (*types.Response, error) {
	var lastErr error
	for attempt := 0; attempt <= e.cfg.FetchMaxRetries; attempt++ {
		fetchCtx, cancel := context.WithTimeout(ctx, e.cfg.FetchTimeout)
		resp, err := e.httpFetcher.Fetch(fetchCtx, req)
		timedOut := fetchCtx.Err() == context.DeadlineExceeded
		cancel()

		if err == nil {
			return resp, nil
		}
		lastErr = err
		if timedOut {
			e.resourceMgr.RecordTimeout(types.TimeoutFetch)
			if e.metrics != nil {
				e.metrics.TimeoutsTotal.Add(1)
			}
		}

		rerr, ok := types.AsRiptideError(err)
		retryable := ok && rerr.Kind() == types.KindFetch && rerr.IsRetryable()
		if !retryable || attempt == e.cfg.FetchMaxRetries {
			return nil, err
		}
		wait := time.Duration(rand.Int63n(int64(fetchBackoffBase(attempt)) + 1))
		if sleepErr := sleepCtx(ctx, wait); sleepErr != nil {
			return nil, types.NewCancelled(sleepErr)
		}
	}
	return nil, lastErr
}

// fetchBackoffBase doubles from a 100ms base per retry attempt
// (0-indexed), capped at five seconds; fetchWithRetry then sleeps a
// uniformly random duration up to that bound. Mirrors worker/job.go's
// backoff() shape, scaled down since a fetch retry budget is one pipeline
// run, not a job queue.
func fetchBackoffBase(attempt int) time.Duration {
	if attempt >= 6 {
		return 5 * time.Second
	}
	d := 100 * time.Millisecond << uint(attempt)
	if d > 5*time.Second {
		d = 5 * time.Second
	}
	return d
}

// sleepCtx blocks for d or until ctx is done, whichever comes first.
func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (e *Engine) effectivePipelineTimeout(opts types.Options) time.Duration {
	if opts.PerURLTimeout > 0 {
		return opts.PerURLTimeout
	}
	return e.cfg.PipelineTimeout
}

func (e *Engine) readCache(ctx context.Context, fp types.ResourceFingerprint) (*types.Document, bool) {
	raw, ok, err := e.cachePort.Get(ctx, fp)
	if err != nil || !ok {
		return nil, false
	}
	var doc types.Document
	if err := json.Unmarshal(raw, &doc); err != nil {
		e.logger.Warn("corrupt cache entry, treating as miss", "fingerprint", fp.String(), "error", err)
		return nil, false
	}
	return &doc, true
}

func (e *Engine) writeCache(ctx context.Context, fp types.ResourceFingerprint, doc *types.Document) {
	raw, err := json.Marshal(doc)
	if err != nil {
		e.logger.Warn("failed to marshal document for cache", "error", err)
		return
	}
	if err := e.cachePort.Set(ctx, fp, raw, e.cacheTTL); err != nil {
		e.logger.Warn("failed to write cache entry", "error", err)
	}
}

// selectEngine consults the decision cache keyed by origin before
// running the Content Analyzer, per spec §4.7's per-origin cache.
func (e *Engine) selectEngine(resp *types.Response) (analyzer.Engine, []analyzer.Engine) {
	origin := resp.Request.URL.Scheme + "://" + resp.Request.URL.Host

	if decision, ok := e.selectorCache.Get(origin); ok {
		return decision.Primary, decision.Fallbacks
	}

	signals := analyzer.Analyze(string(resp.Body), resp.ContentType, resp.FinalURL, resp.Body)
	primary, fallbacks := analyzer.Select(signals)
	e.selectorCache.Put(origin, primary, fallbacks)
	return primary, fallbacks
}

// extractWithFallback tries primary then each fallback in order,
// gating PDF extraction on the PDF semaphore the way the Dynamic and
// Stealth extractors gate themselves on the browser pool's own checkout.
func (e *Engine) extractWithFallback(ctx context.Context, resp *types.Response, opts types.Options, primary analyzer.Engine, fallbacks []analyzer.Engine) (*types.Document, string, error) {
	candidates := append([]analyzer.Engine{primary}, fallbacks...)

	var lastErr error
	for _, engine := range candidates {
		ext, ok := e.extractors.Get(string(engine))
		if !ok {
			lastErr = types.NewExtractionFailed(string(engine), fmt.Errorf("no extractor registered"))
			continue
		}

		doc, err := e.runExtractor(ctx, ext, engine, resp, opts)
		if err == nil {
			doc.Engine = string(engine)
			return doc, string(engine), nil
		}
		e.logger.Warn("extractor failed, trying fallback", "engine", engine, "error", err)
		lastErr = err
	}
	return nil, "", lastErr
}

func (e *Engine) runExtractor(ctx context.Context, ext extractor.Extractor, engine analyzer.Engine, resp *types.Response, opts types.Options) (*types.Document, error) {
	if engine != analyzer.EnginePDF {
		if e.metrics != nil && (engine == analyzer.EngineDynamic || engine == analyzer.EngineStealth) {
			e.metrics.RendersTotal.Add(1)
		}
		return ext.Extract(ctx, resp, opts)
	}

	if e.metrics != nil {
		e.metrics.PDFExtractionsTotal.Add(1)
	}

	release, err := e.pdfSlots.Acquire(ctx)
	if err != nil {
		return nil, types.NewResourceExhausted(fmt.Errorf("pdf semaphore: %w", err))
	}
	defer release()
	return ext.Extract(ctx, resp, opts)
}
