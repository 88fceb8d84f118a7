// Package api exposes the External Interfaces surface (spec §6.1-§6.4)
// over HTTP: sync submit, content-negotiated streaming submit, async job
// create/status, and a health/capabilities document. Grounded on the
// teacher's command layer in shape only — webstalk drives its engine
// directly from a CLI subcommand; here the same engine is driven from a
// gorilla/mux router, the routing idiom used by the noisefs announce-webui
// command in the same retrieval pack.
package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/foofork/riptide/internal/types"
)

// submitOptions is the wire shape of Options: every field optional, with
// DefaultOptions() filling in anything the caller omits. types.Options
// itself carries no JSON tags since it is also used as part of the cache
// fingerprint key, not as a wire format.
type submitOptions struct {
	OutputFormat     string `json:"output_format,omitempty"`
	CacheMode        string `json:"cache_mode,omitempty"`
	Concurrency      int    `json:"concurrency,omitempty"`
	PerURLTimeoutMs  int64  `json:"per_url_timeout_ms,omitempty"`
	StealthPreset    string `json:"stealth_preset,omitempty"`
}

type submitRequest struct {
	URLs    []string      `json:"urls"`
	Options submitOptions `json:"options"`
}

// toCrawlRequest builds a types.CrawlRequest from the decoded wire
// request, starting from types.DefaultOptions() and overriding only the
// fields the caller actually set.
func (r submitRequest) toCrawlRequest() (*types.CrawlRequest, error) {
	opts := types.DefaultOptions()

	if r.Options.OutputFormat != "" {
		opts.OutputFormat = types.OutputFormat(r.Options.OutputFormat)
	}
	if r.Options.CacheMode != "" {
		opts.CacheMode = types.CacheMode(r.Options.CacheMode)
	}
	if r.Options.Concurrency != 0 {
		opts.Concurrency = r.Options.Concurrency
	}
	if r.Options.PerURLTimeoutMs != 0 {
		opts.PerURLTimeout = time.Duration(r.Options.PerURLTimeoutMs) * time.Millisecond
	}
	if r.Options.StealthPreset != "" {
		opts.StealthPreset = types.StealthPreset(r.Options.StealthPreset)
	}

	req := &types.CrawlRequest{URLs: r.URLs, Options: opts}
	if err := req.Validate(); err != nil {
		return nil, err
	}
	return req, nil
}

func decodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("decode request body: %w", err)
	}
	return nil
}
