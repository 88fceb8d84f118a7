package extractor

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-rod/rod"
	gostealth "github.com/go-rod/stealth"

	"github.com/foofork/riptide/internal/browserpool"
	"github.com/foofork/riptide/internal/fetcher"
	"github.com/foofork/riptide/internal/types"
)

// StealthExtractor wraps DynamicExtractor's rendering with fingerprint
// randomization, scaled by types.StealthPreset. Grounded directly on
// internal/fetcher/stealth.go's DefaultStealthConfig/StealthJS (navigator,
// webdriver, canvas, plugin overrides) and randomTLSConfig, now injected
// at the browser-page level via go-rod/stealth instead of wrapping an
// http.RoundTripper, since every Stealth request goes through a rendered
// page rather than a plain HTTP client.
type StealthExtractor struct {
	pool      *browserpool.Pool
	static    *StaticExtractor
	renderCap time.Duration
	logger    *slog.Logger
}

// NewStealthExtractor builds a StealthExtractor checking pages out of
// pool via go-rod/stealth's pre-patched page constructor.
func NewStealthExtractor(pool *browserpool.Pool, renderCap time.Duration, logger *slog.Logger) *StealthExtractor {
	return &StealthExtractor{
		pool:      pool,
		static:    NewStaticExtractor(),
		renderCap: renderCap,
		logger:    logger.With("component", "stealth_extractor"),
	}
}

func (e *StealthExtractor) Name() string { return "stealth" }

// Extract behaves like DynamicExtractor.Extract but opens the page via
// go-rod/stealth.Page (patches navigator.webdriver, plugins, chrome
// runtime at the CDP layer) and additionally injects
// fetcher.StealthConfig's JS overrides for presets above Low, since the
// two patch different fingerprint surfaces.
func (e *StealthExtractor) Extract(ctx context.Context, resp *types.Response, opts types.Options) (*types.Document, error) {
	if resp.Request == nil || resp.Request.URL == nil {
		return nil, types.NewExtractionFailed("stealth", fmt.Errorf("missing request URL"))
	}
	if opts.StealthPreset == types.StealthNone {
		opts.StealthPreset = types.StealthMedium
	}

	renderCtx, cancel := context.WithTimeout(ctx, e.renderCap)
	defer cancel()

	inst, err := e.pool.Checkout(renderCtx)
	if err != nil {
		return nil, types.NewResourceExhausted(fmt.Errorf("checkout browser: %w", err))
	}
	defer e.pool.Return(inst)

	browser, ok := inst.Handle.(*rod.Browser)
	if !ok {
		return nil, types.NewExtractionFailed("stealth", fmt.Errorf("pooled instance handle is not a *rod.Browser"))
	}

	p, err := gostealth.Page(browser)
	if err != nil {
		inst.MarkCrashed()
		return nil, types.NewExtractionFailed("stealth", fmt.Errorf("open stealth page: %w", err))
	}
	defer p.Close()

	if opts.StealthPreset == types.StealthMedium || opts.StealthPreset == types.StealthHigh {
		cfg := fetcher.DefaultStealthConfig()
		if _, err := p.EvalOnNewDocument(cfg.StealthJS()); err != nil {
			e.logger.Warn("stealth JS injection failed", "error", err)
		}
	}

	if err := p.Context(renderCtx).Navigate(resp.Request.URLString()); err != nil {
		inst.MarkCrashed()
		return nil, types.NewExtractionFailed("stealth", fmt.Errorf("navigate: %w", err))
	}
	if err := p.WaitStable(300 * time.Millisecond); err != nil {
		e.logger.Warn("page did not stabilize before extraction", "url", resp.Request.URLString(), "error", err)
	}

	html, err := p.HTML()
	if err != nil {
		return nil, types.NewExtractionFailed("stealth", fmt.Errorf("read html: %w", err))
	}

	finalURL := resp.Request.URLString()
	if info, infoErr := p.Info(); infoErr == nil {
		finalURL = info.URL
	}

	rendered := types.NewBrowserResponse(resp.Request, resp.StatusCode, []byte(html), finalURL, resp.FetchDuration)
	doc, err := e.static.Extract(ctx, rendered, opts)
	if err != nil {
		return nil, err
	}
	doc.Engine = e.Name()
	return doc, nil
}
