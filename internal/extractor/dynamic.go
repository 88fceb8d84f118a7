package extractor

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"

	"github.com/foofork/riptide/internal/browserpool"
	"github.com/foofork/riptide/internal/types"
)

// WaitCondition tells the Dynamic extractor when a navigated page is
// ready to scrape: a selector appearing, a custom JS expression (evaluated
// once; its result is not checked), or the DOM staying stable for
// StableFor (300ms when none of the three is set).
type WaitCondition struct {
	Selector  string
	JSExpr    string
	StableFor time.Duration // passed to rod's WaitStable if no selector/expr given
}

// Action is one browser interaction to run after navigation and before
// extraction (click/scroll/type), mirroring the teacher's automation
// Action/Macro vocabulary so a caller can script interaction sequences
// the same way (spec §4.8's "actions" in the Dynamic extractor row).
type Action struct {
	Type     string // "click", "scroll", "type", "wait"
	Selector string
	Value    string
	Delay    time.Duration
}

// DynamicExtractor renders a page in a pooled headless browser, runs any
// configured wait condition and actions, then hands the resulting HTML to
// a StaticExtractor for content extraction. Grounded on the teacher's
// internal/automation/browser.go (Click/ScrollBy/TypeText/EvalJS,
// WaitStable) repurposed as the wait-for-condition + action-execution
// surface, with page acquisition now going through browserpool instead of
// a bespoke fetcher-owned page pool.
type DynamicExtractor struct {
	pool      *browserpool.Pool
	static    *StaticExtractor
	renderCap time.Duration
	logger    *slog.Logger
}

// NewDynamicExtractor builds a DynamicExtractor checking pages out of
// pool. renderCap enforces spec §4.9's render_hard_cap regardless of what
// a caller's wait condition asks for.
func NewDynamicExtractor(pool *browserpool.Pool, renderCap time.Duration, logger *slog.Logger) *DynamicExtractor {
	return &DynamicExtractor{
		pool:      pool,
		static:    NewStaticExtractor(),
		renderCap: renderCap,
		logger:    logger.With("component", "dynamic_extractor"),
	}
}

func (e *DynamicExtractor) Name() string { return "dynamic" }

// Extract navigates to resp.Request's URL in a pooled browser tab,
// applies any wait condition and actions found in resp.Request.Meta, and
// extracts the rendered DOM the same way StaticExtractor does.
func (e *DynamicExtractor) Extract(ctx context.Context, resp *types.Response, opts types.Options) (*types.Document, error) {
	if resp.Request == nil || resp.Request.URL == nil {
		return nil, types.NewExtractionFailed("dynamic", fmt.Errorf("missing request URL"))
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
		return nil, types.NewExtractionFailed("dynamic", fmt.Errorf("pooled instance handle is not a *rod.Browser"))
	}

	p, err := browser.Page(proto.TargetCreateTarget{URL: "about:blank"})
	if err != nil {
		inst.MarkCrashed()
		return nil, types.NewExtractionFailed("dynamic", fmt.Errorf("open page: %w", err))
	}
	defer p.Close()

	if err := p.Context(renderCtx).Navigate(resp.Request.URLString()); err != nil {
		inst.MarkCrashed()
		return nil, types.NewExtractionFailed("dynamic", fmt.Errorf("navigate: %w", err))
	}

	wait, _ := resp.Request.Meta["wait_condition"].(WaitCondition)
	if err := e.applyWaitCondition(p, wait); err != nil {
		e.logger.Warn("wait condition failed, proceeding with current DOM", "url", resp.Request.URLString(), "error", err)
	}

	if actions, ok := resp.Request.Meta["actions"].([]Action); ok {
		if err := e.runActions(p, actions); err != nil {
			e.logger.Warn("action sequence failed, proceeding with current DOM", "url", resp.Request.URLString(), "error", err)
		}
	}

	html, err := p.HTML()
	if err != nil {
		return nil, types.NewExtractionFailed("dynamic", fmt.Errorf("read html: %w", err))
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

func (e *DynamicExtractor) applyWaitCondition(p *rod.Page, wait WaitCondition) error {
	switch {
	case wait.Selector != "":
		_, err := p.Timeout(e.renderCap).Element(wait.Selector)
		return err
	case wait.JSExpr != "":
		_, err := p.Timeout(e.renderCap).Eval(wait.JSExpr)
		return err
	case wait.StableFor > 0:
		return p.WaitStable(wait.StableFor)
	default:
		return p.WaitStable(300 * time.Millisecond)
	}
}

func (e *DynamicExtractor) runActions(p *rod.Page, actions []Action) error {
	for _, a := range actions {
		if a.Delay > 0 {
			time.Sleep(a.Delay)
		}
		var err error
		switch a.Type {
		case "click":
			var el *rod.Element
			el, err = p.Timeout(10 * time.Second).Element(a.Selector)
			if err == nil {
				err = el.Click(proto.InputMouseButtonLeft, 1)
			}
		case "type":
			var el *rod.Element
			el, err = p.Timeout(10 * time.Second).Element(a.Selector)
			if err == nil {
				err = el.Input(a.Value)
			}
		case "scroll":
			_, err = p.Eval(`window.scrollTo(0, document.body.scrollHeight)`)
		case "wait":
			// handled via Delay above
		}
		if err != nil {
			return fmt.Errorf("action %s on %q: %w", a.Type, a.Selector, err)
		}
	}
	return nil
}
