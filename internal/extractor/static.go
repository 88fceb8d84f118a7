package extractor

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html/charset"

	"github.com/foofork/riptide/internal/types"
)

// StaticExtractor parses HTML with goquery and renders the body per
// Options.OutputFormat without executing any JavaScript. Grounded on the
// teacher's response-parsing idiom (lazy goquery document) generalized
// into a standalone extraction stage with encoding detection and a
// minimal markdown renderer, since no markdown-render library appears
// anywhere in the example pack.
type StaticExtractor struct{}

// NewStaticExtractor builds a StaticExtractor. It holds no state; content
// selection and rendering are pure functions of the input.
func NewStaticExtractor() *StaticExtractor { return &StaticExtractor{} }

func (e *StaticExtractor) Name() string { return "static" }

// Extract decodes resp.Body to UTF-8 (detecting the declared or sniffed
// charset), parses it, and produces a Document with the main content
// rendered per opts.OutputFormat.
func (e *StaticExtractor) Extract(_ context.Context, resp *types.Response, opts types.Options) (*types.Document, error) {
	utf8Reader, err := charset.NewReader(bytes.NewReader(resp.Body), resp.ContentType)
	if err != nil {
		return nil, types.NewExtractionFailed("static", fmt.Errorf("charset detection: %w", err))
	}

	doc, err := goquery.NewDocumentFromReader(utf8Reader)
	if err != nil {
		return nil, types.NewExtractionFailed("static", fmt.Errorf("parse html: %w", err))
	}

	title := strings.TrimSpace(doc.Find("title").First().Text())
	byline := strings.TrimSpace(doc.Find(`meta[name="author"]`).AttrOr("content", ""))
	lang, _ := doc.Find("html").Attr("lang")

	content := mainContentSelection(doc)
	body := renderBody(content, opts.OutputFormat)

	hash := sha256.Sum256(resp.Body)

	return &types.Document{
		FinalURL:    resp.FinalURL,
		HTTPStatus:  resp.StatusCode,
		Title:       title,
		Byline:      byline,
		Body:        body,
		Lang:        lang,
		RawHTMLHash: hex.EncodeToString(hash[:]),
		Links:       extractLinks(doc, resp.FinalURL),
		Images:      extractImages(doc, resp.FinalURL),
		Tables:      extractTables(content),
		Metadata:    extractMetaTags(doc),
		ExtractedAt: time.Now(),
		Engine:      e.Name(),
	}, nil
}

// mainContentSelection returns the best candidate content container,
// preferring explicit semantic anchors over the whole document (spec
// §4.7's main-content markers reused here as a selection priority list).
func mainContentSelection(doc *goquery.Document) *goquery.Selection {
	for _, sel := range []string{"article", "main", ".content", "#content", ".main-content"} {
		if found := doc.Find(sel).First(); found.Length() > 0 {
			return found
		}
	}
	return doc.Find("body")
}

func renderBody(sel *goquery.Selection, format types.OutputFormat) string {
	switch format {
	case types.OutputPlain:
		return strings.TrimSpace(sel.Text())
	case types.OutputJSON, types.OutputMarkdown:
		return renderMarkdown(sel)
	default:
		return strings.TrimSpace(sel.Text())
	}
}

// renderMarkdown walks block-level elements in document order and emits
// their plain-text content with minimal markdown markup. It is not a
// general HTML-to-markdown converter, just enough structure preservation
// (headings, paragraphs, list items) for readable downstream output.
func renderMarkdown(sel *goquery.Selection) string {
	var b strings.Builder

	sel.Find("h1,h2,h3,h4,h5,h6,p,li,blockquote").Each(func(_ int, s *goquery.Selection) {
		text := strings.TrimSpace(s.Text())
		if text == "" {
			return
		}
		switch goquery.NodeName(s) {
		case "h1":
			b.WriteString("# " + text + "\n\n")
		case "h2":
			b.WriteString("## " + text + "\n\n")
		case "h3":
			b.WriteString("### " + text + "\n\n")
		case "h4", "h5", "h6":
			b.WriteString("#### " + text + "\n\n")
		case "li":
			b.WriteString("- " + text + "\n")
		case "blockquote":
			b.WriteString("> " + text + "\n\n")
		default:
			b.WriteString(text + "\n\n")
		}
	})

	if b.Len() == 0 {
		return strings.TrimSpace(sel.Text())
	}
	return strings.TrimSpace(b.String())
}

func extractLinks(doc *goquery.Document, base string) []types.Link {
	var links []types.Link
	doc.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		href, _ := s.Attr("href")
		if href == "" {
			return
		}
		links = append(links, types.Link{URL: resolveURL(base, href), Text: strings.TrimSpace(s.Text())})
	})
	return links
}

func extractImages(doc *goquery.Document, base string) []types.Image {
	var images []types.Image
	doc.Find("img[src]").Each(func(_ int, s *goquery.Selection) {
		src, _ := s.Attr("src")
		if src == "" {
			return
		}
		images = append(images, types.Image{URL: resolveURL(base, src), Alt: s.AttrOr("alt", "")})
	})
	return images
}

func extractTables(sel *goquery.Selection) []types.Table {
	var tables []types.Table
	sel.Find("table").Each(func(_ int, tbl *goquery.Selection) {
		t := types.Table{Caption: strings.TrimSpace(tbl.Find("caption").First().Text())}

		tbl.Find("thead tr, tr:has(th)").First().Find("th").Each(func(_ int, th *goquery.Selection) {
			t.Headers = append(t.Headers, strings.TrimSpace(th.Text()))
		})

		tbl.Find("tbody tr, tr").Each(func(_ int, tr *goquery.Selection) {
			if tr.Find("th").Length() > 0 && tr.Find("td").Length() == 0 {
				return
			}
			var row []string
			tr.Find("td").Each(func(_ int, td *goquery.Selection) {
				row = append(row, strings.TrimSpace(td.Text()))
			})
			if len(row) > 0 {
				t.Rows = append(t.Rows, row)
			}
		})

		if len(t.Headers) > 0 || len(t.Rows) > 0 {
			tables = append(tables, t)
		}
	})
	return tables
}

func extractMetaTags(doc *goquery.Document) map[string]string {
	meta := make(map[string]string)
	doc.Find("meta[name][content]").Each(func(_ int, s *goquery.Selection) {
		name, _ := s.Attr("name")
		content, _ := s.Attr("content")
		if name != "" {
			meta[name] = content
		}
	})
	doc.Find("meta[property][content]").Each(func(_ int, s *goquery.Selection) {
		prop, _ := s.Attr("property")
		content, _ := s.Attr("content")
		if prop != "" {
			meta[prop] = content
		}
	})
	return meta
}

// resolveURL best-effort resolves href against base, falling back to href
// unchanged if either fails to parse.
func resolveURL(base, href string) string {
	b, err := parseURL(base)
	if err != nil {
		return href
	}
	h, err := parseURL(href)
	if err != nil {
		return href
	}
	return b.ResolveReference(h).String()
}
