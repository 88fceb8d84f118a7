package extractor

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"time"

	"github.com/ledongthuc/pdf"

	"github.com/foofork/riptide/internal/types"
)

// PDFConfig controls the PDF extractor, supplemented from
// original_source/crates/riptide-core/src/pdf.rs's PdfConfig/
// TextExtractionSettings shape (image/table extraction are narrowed here
// to what ledongthuc/pdf, the only PDF library in the ecosystem the
// example pack touches, can actually produce: text and page count).
type PDFConfig struct {
	MaxSizeBytes    int64
	ExtractText     bool
	ExtractMetadata bool
	ExtractTables   bool
	MaxImages       int
	Timeout         time.Duration
}

// PDFExtractor extracts text and metadata from PDF payloads.
type PDFExtractor struct {
	cfg PDFConfig
}

// NewPDFExtractor builds a PDFExtractor bounded by cfg.
func NewPDFExtractor(cfg PDFConfig) *PDFExtractor { return &PDFExtractor{cfg: cfg} }

func (e *PDFExtractor) Name() string { return "pdf" }

// Extract reads resp.Body as a PDF, copying the document's plain-text
// stream into the Document body and surfacing page count plus document
// info dictionary fields as metadata. A payload larger than the
// configured size ceiling is rejected before any parsing.
func (e *PDFExtractor) Extract(ctx context.Context, resp *types.Response, opts types.Options) (*types.Document, error) {
	if e.cfg.MaxSizeBytes > 0 && int64(len(resp.Body)) > e.cfg.MaxSizeBytes {
		return nil, types.NewExtractionFailed("pdf", fmt.Errorf("pdf size %d exceeds max %d bytes", len(resp.Body), e.cfg.MaxSizeBytes))
	}

	done := make(chan struct{})
	var doc *types.Document
	var extractErr error

	go func() {
		defer close(done)
		doc, extractErr = e.extract(resp)
	}()

	timeout := e.cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	select {
	case <-done:
		if extractErr != nil {
			return nil, types.NewExtractionFailed("pdf", extractErr)
		}
		return doc, nil
	case <-time.After(timeout):
		return nil, types.NewTimeout(types.TimeoutRender)
	case <-ctx.Done():
		return nil, types.NewExtractionFailed("pdf", ctx.Err())
	}
}

func (e *PDFExtractor) extract(resp *types.Response) (*types.Document, error) {
	reader, err := pdf.NewReader(bytes.NewReader(resp.Body), int64(len(resp.Body)))
	if err != nil {
		return nil, fmt.Errorf("open pdf: %w", err)
	}

	metadata := make(map[string]string)
	var body string

	if e.cfg.ExtractText {
		var buf bytes.Buffer
		textReader, err := reader.GetPlainText()
		if err != nil {
			return nil, fmt.Errorf("extract text: %w", err)
		}
		if _, err := io.Copy(&buf, textReader); err != nil {
			return nil, fmt.Errorf("read text stream: %w", err)
		}
		body = buf.String()
	}

	numPages := reader.NumPage()
	metadata["page_count"] = fmt.Sprintf("%d", numPages)

	if e.cfg.ExtractMetadata {
		trailer := reader.Trailer()
		if info := trailer.Key("Info"); !info.IsNull() {
			for _, key := range []string{"Title", "Author", "Subject", "Creator", "Producer"} {
				if v := info.Key(key); !v.IsNull() {
					if text := v.Text(); text != "" {
						metadata[key] = text
					}
				}
			}
		}
	}

	hash := sha256.Sum256(resp.Body)

	return &types.Document{
		FinalURL:    resp.FinalURL,
		HTTPStatus:  resp.StatusCode,
		Title:       metadata["Title"],
		Body:        body,
		RawHTMLHash: hex.EncodeToString(hash[:]),
		Metadata:    metadata,
		ExtractedAt: time.Now(),
		Engine:      e.Name(),
	}, nil
}
