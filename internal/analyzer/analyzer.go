// Package analyzer inspects fetched content and recommends which
// extraction engine should handle it (spec §4.7): detecting JS-framework
// / SPA markers, anti-scraping measures, and the content-to-markup ratio
// that separates a simple article page from a client-rendered shell.
package analyzer

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// Signals is the raw detection output for one document, before the
// Engine Selector turns it into a recommendation.
type Signals struct {
	HasReact        bool
	HasVue          bool
	HasAngular      bool
	HasSPAMarkers   bool
	HasAntiScraping bool
	HasMainContent  bool
	IsPDF           bool
	ContentRatio    float64
}

var reactMarkers = []string{"__NEXT_DATA__", "__next", "_reactRoot", "__webpack_require__"}
var vueMarkers = []string{"v-app", "Vue.createApp", "createApp(", "data-vue-app"}
var angularMarkers = []string{"ng-app", "ng-version", "platformBrowserDynamic", "[ngClass]"}
var spaMarkers = []string{"<!-- rendered by", "__INITIAL_STATE__", "webpack", "data-react-helmet", "__webpack"}
var antiScrapingMarkers = []string{"cloudflare", "cf-browser-verification", "grecaptcha", "h-captcha", "PerimeterX"}
var mainContentMarkers = []string{"<article", "<main", `class="content"`, `id="content"`, "main-content"}

func containsAny(haystack string, needles []string) bool {
	for _, n := range needles {
		if strings.Contains(haystack, n) {
			return true
		}
	}
	return false
}

// DetectReact reports whether html carries a React/Next.js fingerprint.
func DetectReact(html string) bool { return containsAny(html, reactMarkers) }

// DetectVue reports whether html carries a Vue fingerprint.
func DetectVue(html string) bool { return containsAny(html, vueMarkers) }

// DetectAngular reports whether html carries an Angular fingerprint.
func DetectAngular(html string) bool { return containsAny(html, angularMarkers) }

// DetectSPAMarkers reports generic single-page-app build tooling markers.
func DetectSPAMarkers(html string) bool { return containsAny(html, spaMarkers) }

// DetectAntiScraping reports Cloudflare/reCAPTCHA/hCaptcha/PerimeterX tokens.
func DetectAntiScraping(html string) bool { return containsAny(html, antiScrapingMarkers) }

// DetectMainContent reports whether html has a recognizable content anchor
// (<article>, <main>, .content/#content, .main-content).
func DetectMainContent(html string) bool { return containsAny(html, mainContentMarkers) }

// ContentRatio estimates the fraction of html that is text content rather
// than markup: the combined length of text nodes divided by total byte
// length. A ratio below ~0.1 suggests a client-rendered shell with no
// server-delivered content.
func ContentRatio(html string) float64 {
	total := float64(len(html))
	if total == 0 {
		return 0
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return 0
	}

	textLen := len(strings.TrimSpace(doc.Text()))
	return float64(textLen) / total
}

// IsPDF reports whether contentType, the URL path, or the first bytes of
// body indicate a PDF payload (spec §4.7).
func IsPDF(contentType, url string, body []byte) bool {
	if strings.Contains(strings.ToLower(contentType), "application/pdf") {
		return true
	}
	if strings.HasSuffix(strings.ToLower(url), ".pdf") {
		return true
	}
	return len(body) >= 5 && string(body[:5]) == "%PDF-"
}

// Analyze runs every detector over html and returns the combined Signals.
func Analyze(html, contentType, url string, body []byte) Signals {
	return Signals{
		HasReact:        DetectReact(html),
		HasVue:          DetectVue(html),
		HasAngular:      DetectAngular(html),
		HasSPAMarkers:   DetectSPAMarkers(html),
		HasAntiScraping: DetectAntiScraping(html),
		HasMainContent:  DetectMainContent(html),
		IsPDF:           IsPDF(contentType, url, body),
		ContentRatio:    ContentRatio(html),
	}
}
