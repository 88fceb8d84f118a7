package types

import "time"

// Link is an anchor discovered in a Document's body.
type Link struct {
	URL  string
	Text string
}

// Image is an image reference discovered in a Document's body.
type Image struct {
	URL string
	Alt string
}

// Table is a structured table extracted from a Document's body (spec
// §4.8's table-aware extraction, supplemented from the PDF table setting
// and the static extractor's DOM table handling).
type Table struct {
	Caption string
	Headers []string
	Rows    [][]string
}

// Document is the final, engine-agnostic extraction result produced by
// the pipeline for one URL (spec §3.1).
type Document struct {
	FinalURL   string
	HTTPStatus int

	Title  string
	Byline string
	Body   string // rendered per Options.OutputFormat
	Lang   string

	RawHTMLHash string // sha256 hex of the pre-extraction HTML/PDF bytes

	Links  []Link
	Images []Image
	Tables []Table

	Metadata map[string]string

	// QualityScore in [0,1] reflects extraction confidence (spec §4.7's
	// content-ratio heuristic folded forward into the final result).
	QualityScore float64

	ExtractedAt time.Time

	// Engine names which extractor produced this Document, e.g.
	// "static", "dynamic", "stealth", "pdf".
	Engine string
}

// PipelineResult is what the orchestrator emits per URL, win or lose
// (spec §4.9, §6 delivery surfaces).
type PipelineResult struct {
	URL string

	FromCache      bool
	CacheKey       string
	GateDecision   string // "hit" on a cache hit, otherwise "miss"
	ProcessingTime time.Duration

	Document *Document
	Err      error
}

// Success reports whether this result carries a usable Document.
func (r *PipelineResult) Success() bool {
	return r.Err == nil && r.Document != nil
}
