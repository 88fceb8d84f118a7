package pipeline

import (
	"fmt"
	"html"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/foofork/riptide/internal/types"
)

// --- Advanced Middleware ---

// HTMLSanitizeMiddleware strips residual HTML tags from the title, byline,
// body and metadata values an extractor left un-sanitized.
type HTMLSanitizeMiddleware struct {
	stripRe *regexp.Regexp
}

func NewHTMLSanitizeMiddleware() *HTMLSanitizeMiddleware {
	return &HTMLSanitizeMiddleware{
		stripRe: regexp.MustCompile(`<[^>]*>`),
	}
}

func (m *HTMLSanitizeMiddleware) Name() string { return "html_sanitize" }

func (m *HTMLSanitizeMiddleware) Process(doc *types.Document) (*types.Document, error) {
	doc.Title = m.clean(doc.Title)
	doc.Byline = m.clean(doc.Byline)
	doc.Body = m.clean(doc.Body)
	for k, v := range doc.Metadata {
		doc.Metadata[k] = m.clean(v)
	}
	return doc, nil
}

func (m *HTMLSanitizeMiddleware) clean(s string) string {
	if s == "" {
		return s
	}
	cleaned := m.stripRe.ReplaceAllString(s, "")
	cleaned = html.UnescapeString(cleaned)
	return strings.Join(strings.Fields(cleaned), " ")
}

// DateNormalizeMiddleware normalizes date-valued metadata fields to a
// standard format.
type DateNormalizeMiddleware struct {
	fields    []string
	outFormat string
	inFormats []string
}

func NewDateNormalizeMiddleware(fields []string, outFormat string) *DateNormalizeMiddleware {
	if outFormat == "" {
		outFormat = time.RFC3339
	}
	return &DateNormalizeMiddleware{
		fields:    fields,
		outFormat: outFormat,
		inFormats: []string{
			time.RFC3339,
			time.RFC1123,
			time.RFC1123Z,
			time.RFC822,
			time.RFC822Z,
			"2006-01-02",
			"2006-01-02T15:04:05",
			"2006-01-02 15:04:05",
			"01/02/2006",
			"02/01/2006",
			"January 2, 2006",
			"Jan 2, 2006",
			"2 January 2006",
			"2 Jan 2006",
			"Mon, 02 Jan 2006",
			"02-Jan-2006",
			"2006/01/02",
			"01-02-2006",
			"Mon Jan 2 15:04:05 2006",
		},
	}
}

func (m *DateNormalizeMiddleware) Name() string { return "date_normalize" }

func (m *DateNormalizeMiddleware) Process(doc *types.Document) (*types.Document, error) {
	for _, field := range m.fields {
		s, ok := doc.Metadata[field]
		if !ok || s == "" {
			continue
		}
		s = strings.TrimSpace(s)

		for _, format := range m.inFormats {
			t, err := time.Parse(format, s)
			if err == nil {
				doc.Metadata[field] = t.Format(m.outFormat)
				break
			}
		}
	}
	return doc, nil
}

// CurrencyNormalizeMiddleware normalizes currency-valued metadata fields
// to a bare numeric string.
type CurrencyNormalizeMiddleware struct {
	fields  []string
	stripRe *regexp.Regexp
}

func NewCurrencyNormalizeMiddleware(fields []string) *CurrencyNormalizeMiddleware {
	return &CurrencyNormalizeMiddleware{
		fields:  fields,
		stripRe: regexp.MustCompile(`[^0-9.,\-]`),
	}
}

func (m *CurrencyNormalizeMiddleware) Name() string { return "currency_normalize" }

func (m *CurrencyNormalizeMiddleware) Process(doc *types.Document) (*types.Document, error) {
	for _, field := range m.fields {
		s, ok := doc.Metadata[field]
		if !ok || s == "" {
			continue
		}

		numeric := m.stripRe.ReplaceAllString(s, "")

		if strings.Contains(numeric, ",") {
			lastComma := strings.LastIndex(numeric, ",")
			lastDot := strings.LastIndex(numeric, ".")
			if lastComma > lastDot {
				// European: 1.234,56
				numeric = strings.ReplaceAll(numeric, ".", "")
				numeric = strings.Replace(numeric, ",", ".", 1)
			} else {
				// US: 1,234.56
				numeric = strings.ReplaceAll(numeric, ",", "")
			}
		}

		doc.Metadata[field] = numeric
	}
	return doc, nil
}

// PIIRedactMiddleware detects and redacts personally identifiable
// information from the body and metadata values.
type PIIRedactMiddleware struct {
	patterns map[string]*regexp.Regexp
	logger   *slog.Logger
}

func NewPIIRedactMiddleware(logger *slog.Logger) *PIIRedactMiddleware {
	return &PIIRedactMiddleware{
		patterns: map[string]*regexp.Regexp{
			"email":       regexp.MustCompile(`[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}`),
			"phone_us":    regexp.MustCompile(`\b\d{3}[-.]?\d{3}[-.]?\d{4}\b`),
			"phone_intl":  regexp.MustCompile(`\+\d{1,3}[-.\s]?\(?\d{1,4}\)?[-.\s]?\d{1,4}[-.\s]?\d{1,9}`),
			"ssn":         regexp.MustCompile(`\b\d{3}-\d{2}-\d{4}\b`),
			"credit_card": regexp.MustCompile(`\b(?:\d{4}[-\s]?){3}\d{4}\b`),
			"ip_v4":       regexp.MustCompile(`\b\d{1,3}\.\d{1,3}\.\d{1,3}\.\d{1,3}\b`),
		},
		logger: logger.With("component", "pii_redact"),
	}
}

func (m *PIIRedactMiddleware) Name() string { return "pii_redact" }

func (m *PIIRedactMiddleware) Process(doc *types.Document) (*types.Document, error) {
	doc.Body = m.redact("body", doc.Body)
	for k, v := range doc.Metadata {
		doc.Metadata[k] = m.redact(k, v)
	}
	return doc, nil
}

func (m *PIIRedactMiddleware) redact(field, s string) string {
	if s == "" {
		return s
	}
	for piiType, re := range m.patterns {
		if re.MatchString(s) {
			s = re.ReplaceAllString(s, "[REDACTED_"+strings.ToUpper(piiType)+"]")
			m.logger.Debug("PII redacted", "field", field, "type", piiType)
		}
	}
	return s
}

// FieldValidateMiddleware validates metadata values with regex patterns,
// either dropping the document or clearing the offending field.
type FieldValidateMiddleware struct {
	validations map[string]*regexp.Regexp
	dropInvalid bool
}

func NewFieldValidateMiddleware(patterns map[string]string, dropInvalid bool) (*FieldValidateMiddleware, error) {
	compiled := make(map[string]*regexp.Regexp, len(patterns))
	for field, pattern := range patterns {
		re, err := regexp.Compile(pattern)
		if err != nil {
			return nil, fmt.Errorf("invalid validation regex for %q: %w", field, err)
		}
		compiled[field] = re
	}
	return &FieldValidateMiddleware{
		validations: compiled,
		dropInvalid: dropInvalid,
	}, nil
}

func (m *FieldValidateMiddleware) Name() string { return "field_validate" }

func (m *FieldValidateMiddleware) Process(doc *types.Document) (*types.Document, error) {
	for field, re := range m.validations {
		s, ok := doc.Metadata[field]
		if !ok || s == "" {
			continue
		}
		if !re.MatchString(s) {
			if m.dropInvalid {
				return nil, nil
			}
			delete(doc.Metadata, field)
		}
	}
	return doc, nil
}

// WordCountMiddleware adds a word_count metadata field computed from the
// document body.
type WordCountMiddleware struct{}

func NewWordCountMiddleware() *WordCountMiddleware {
	return &WordCountMiddleware{}
}

func (m *WordCountMiddleware) Name() string { return "word_count" }

func (m *WordCountMiddleware) Process(doc *types.Document) (*types.Document, error) {
	if doc.Body == "" {
		return doc, nil
	}
	words := strings.Fields(doc.Body)
	if doc.Metadata == nil {
		doc.Metadata = make(map[string]string, 1)
	}
	doc.Metadata["word_count"] = fmt.Sprintf("%d", len(words))
	return doc, nil
}
