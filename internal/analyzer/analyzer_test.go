package analyzer

import "testing"

func TestDetectReact(t *testing.T) {
	cases := []struct {
		html string
		want bool
	}{
		{`<script>window.__NEXT_DATA__={}</script>`, true},
		{`<div id="__next"></div>`, true},
		{`<script>window._reactRoot</script>`, true},
		{`<script>window.__webpack_require__</script>`, true},
		{`<div>No React here</div>`, false},
	}
	for _, c := range cases {
		if got := DetectReact(c.html); got != c.want {
			t.Errorf("DetectReact(%q) = %v, want %v", c.html, got, c.want)
		}
	}
}

func TestDetectVue(t *testing.T) {
	cases := []struct {
		html string
		want bool
	}{
		{`<div v-app></div>`, true},
		{`<script>Vue.createApp()</script>`, true},
		{`<script>const app = createApp()</script>`, true},
		{`<div data-vue-app></div>`, true},
		{`<div>No Vue here</div>`, false},
	}
	for _, c := range cases {
		if got := DetectVue(c.html); got != c.want {
			t.Errorf("DetectVue(%q) = %v, want %v", c.html, got, c.want)
		}
	}
}

func TestDetectAngular(t *testing.T) {
	cases := []struct {
		html string
		want bool
	}{
		{`<div ng-app></div>`, true},
		{`<script>ng-version</script>`, true},
		{`<script>platformBrowserDynamic()</script>`, true},
		{`<div [ngClass]=""></div>`, true},
		{`<div>No Angular here</div>`, false},
	}
	for _, c := range cases {
		if got := DetectAngular(c.html); got != c.want {
			t.Errorf("DetectAngular(%q) = %v, want %v", c.html, got, c.want)
		}
	}
}

func TestDetectAntiScraping(t *testing.T) {
	cases := []struct {
		html string
		want bool
	}{
		{`<script src="cloudflare.js"></script>`, true},
		{`<div id="cf-browser-verification"></div>`, true},
		{`<script>grecaptcha.render()</script>`, true},
		{`<div class="h-captcha"></div>`, true},
		{`<script src="PerimeterX.js"></script>`, true},
		{`<div>Normal content</div>`, false},
	}
	for _, c := range cases {
		if got := DetectAntiScraping(c.html); got != c.want {
			t.Errorf("DetectAntiScraping(%q) = %v, want %v", c.html, got, c.want)
		}
	}
}

func TestDetectMainContent(t *testing.T) {
	cases := []struct {
		html string
		want bool
	}{
		{`<article>Content</article>`, true},
		{`<main>Content</main>`, true},
		{`<div class="content">Content</div>`, true},
		{`<div id="content">Content</div>`, true},
		{`<section class="main-content">Content</section>`, true},
		{`<div>Just a div</div>`, false},
	}
	for _, c := range cases {
		if got := DetectMainContent(c.html); got != c.want {
			t.Errorf("DetectMainContent(%q) = %v, want %v", c.html, got, c.want)
		}
	}
}

func TestIsPDF(t *testing.T) {
	if !IsPDF("application/pdf", "https://example.com/x", nil) {
		t.Fatal("expected content-type application/pdf to be detected")
	}
	if !IsPDF("", "https://example.com/report.pdf", nil) {
		t.Fatal("expected .pdf suffix to be detected")
	}
	if !IsPDF("", "https://example.com/x", []byte("%PDF-1.4 rest")) {
		t.Fatal("expected %PDF- magic bytes to be detected")
	}
	if IsPDF("text/html", "https://example.com/x", []byte("<html>")) {
		t.Fatal("expected plain HTML to not be detected as PDF")
	}
}

func TestSelectDecisionPriority(t *testing.T) {
	cases := []struct {
		name string
		sig  Signals
		want Engine
	}{
		{"anti-scraping wins over everything", Signals{HasAntiScraping: true, HasReact: true, IsPDF: true}, EngineStealth},
		{"pdf wins over SPA", Signals{IsPDF: true, HasReact: true}, EnginePDF},
		{"react forces dynamic", Signals{HasReact: true, ContentRatio: 0.9}, EngineDynamic},
		{"low ratio forces dynamic", Signals{ContentRatio: 0.05}, EngineDynamic},
		{"plain article is static", Signals{ContentRatio: 0.5, HasMainContent: true}, EngineStatic},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			got, _ := Select(c.sig)
			if got != c.want {
				t.Errorf("Select() = %v, want %v", got, c.want)
			}
		})
	}
}

func TestSelectFallbackChains(t *testing.T) {
	_, fb := Select(Signals{ContentRatio: 0.5})
	if len(fb) != 1 || fb[0] != EngineDynamic {
		t.Fatalf("expected static to fall back to [dynamic], got %v", fb)
	}

	_, fb = Select(Signals{HasReact: true})
	if len(fb) != 2 || fb[0] != EngineStealth || fb[1] != EngineStatic {
		t.Fatalf("expected dynamic to fall back to [stealth, static], got %v", fb)
	}

	_, fb = Select(Signals{HasAntiScraping: true})
	if len(fb) != 0 {
		t.Fatalf("expected stealth to have no fallback, got %v", fb)
	}
}
