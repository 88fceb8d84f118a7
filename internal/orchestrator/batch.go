package orchestrator

import (
	"context"
	"log/slog"
	"net/url"
	"sort"
	"strings"
	"sync"

	"github.com/foofork/riptide/internal/types"
)

// IndexedResult pairs a PipelineResult with its position in the
// originally submitted batch, the same "index" field spec §4.9's
// completion-order emission carries so a streaming consumer can re-sort
// or correlate frames without waiting for the whole batch.
type IndexedResult struct {
	Index  int
	Result *types.PipelineResult
}

// Runner fans a CrawlRequest's URLs out across Engine.ProcessURL with
// bounded concurrency, the same worker-pool-over-a-job-channel idiom the
// teacher's Scheduler uses for its frontier, adapted from an unbounded
// frontier to one fixed batch of jobs.
type Runner struct {
	engine *Engine
	logger *slog.Logger
}

// NewRunner builds a Runner driving eng.
func NewRunner(eng *Engine, logger *slog.Logger) *Runner {
	return &Runner{engine: eng, logger: logger.With("component", "batch_runner")}
}

// dedup canonicalizes req.URLs and returns, for every submitted index,
// the index of the first occurrence of its canonical form — "stable
// dedup, earliest wins" (spec §4.9): every duplicate shares the first
// occurrence's extraction instead of paying for it twice.
func dedup(urls []string) (uniqueIndices []int, owner []int) {
	seen := make(map[string]int, len(urls))
	owner = make([]int, len(urls))

	for i, u := range urls {
		canonical := canonicalizeURL(u)
		if firstIdx, ok := seen[canonical]; ok {
			owner[i] = firstIdx
			continue
		}
		seen[canonical] = i
		owner[i] = i
		uniqueIndices = append(uniqueIndices, i)
	}
	return uniqueIndices, owner
}

// Stream runs req and emits each unique URL's result on the returned
// channel as soon as it completes — completion order, not submission
// order — carrying the submission index so callers can correlate or
// re-sort. The channel is closed once every unique URL has emitted and
// every duplicate has been resolved from its owner's result.
func (r *Runner) Stream(ctx context.Context, req *types.CrawlRequest) (<-chan IndexedResult, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	uniqueIndices, owner := dedup(req.URLs)
	concurrency := clampConcurrency(req.Options.Concurrency, r.engine.cfg.BatchConcurrency)

	out := make(chan IndexedResult, len(req.URLs))
	jobs := make(chan int, len(uniqueIndices))
	for _, idx := range uniqueIndices {
		jobs <- idx
	}
	close(jobs)

	results := make(map[int]*types.PipelineResult, len(uniqueIndices))
	var mu sync.Mutex

	var wg sync.WaitGroup
	for w := 0; w < concurrency; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for idx := range jobs {
				res := r.engine.ProcessURL(ctx, req.URLs[idx], req.Options)

				mu.Lock()
				results[idx] = res
				mu.Unlock()

				out <- IndexedResult{Index: idx, Result: res}
			}
		}()
	}

	go func() {
		wg.Wait()

		mu.Lock()
		for i := range req.URLs {
			if owner[i] == i {
				continue
			}
			ownerResult := results[owner[i]]
			dup := *ownerResult
			dup.URL = req.URLs[i]
			out <- IndexedResult{Index: i, Result: &dup}
		}
		mu.Unlock()

		close(out)
	}()

	return out, nil
}

// Run collects Stream's completion-order output back into submission
// order for the synchronous batch surface (spec §6.1).
func (r *Runner) Run(ctx context.Context, req *types.CrawlRequest) ([]*types.PipelineResult, error) {
	stream, err := r.Stream(ctx, req)
	if err != nil {
		return nil, err
	}

	ordered := make([]*types.PipelineResult, len(req.URLs))
	for ir := range stream {
		ordered[ir.Index] = ir.Result
	}
	return ordered, nil
}

// canonicalizeURL normalizes a URL for dedup purposes: lowercases
// scheme/host, drops the fragment and default port, sorts query
// parameters, and trims a trailing slash. Falls back to the raw string
// on parse failure so a malformed URL still dedups against itself.
func canonicalizeURL(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}

	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = strings.ToLower(u.Host)
	u.Fragment = ""

	host, port := u.Hostname(), u.Port()
	if (u.Scheme == "http" && port == "80") || (u.Scheme == "https" && port == "443") {
		u.Host = host
	}

	if u.RawQuery != "" {
		params := u.Query()
		keys := make([]string, 0, len(params))
		for k := range params {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		var sorted []string
		for _, k := range keys {
			vals := params[k]
			sort.Strings(vals)
			for _, v := range vals {
				sorted = append(sorted, url.QueryEscape(k)+"="+url.QueryEscape(v))
			}
		}
		u.RawQuery = strings.Join(sorted, "&")
	}

	if u.Path != "/" && strings.HasSuffix(u.Path, "/") {
		u.Path = strings.TrimRight(u.Path, "/")
	}
	if u.Path == "" {
		u.Path = "/"
	}

	return u.String()
}

func clampConcurrency(requested, fallback int) int {
	c := requested
	if c <= 0 {
		c = fallback
	}
	if c < 1 {
		c = 1
	}
	if c > 64 {
		c = 64
	}
	return c
}
