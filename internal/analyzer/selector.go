package analyzer

// Engine names an extraction backend (spec §4.8).
type Engine string

const (
	EngineStatic  Engine = "static"
	EngineDynamic Engine = "dynamic"
	EngineStealth Engine = "stealth"
	EnginePDF     Engine = "pdf"
)

// lowContentRatioThreshold below which a page is assumed to be a
// client-rendered shell even without an explicit framework fingerprint.
const lowContentRatioThreshold = 0.1

// fallbackChains lists, per primary engine, the ordered engines to retry
// with on extraction failure (spec §4.7). Stealth and PDF have no
// fallback: stealth is already the most capable renderer, and a PDF
// misclassification isn't recoverable by trying a different engine.
var fallbackChains = map[Engine][]Engine{
	EngineStatic:  {EngineDynamic},
	EngineDynamic: {EngineStealth, EngineStatic},
	EngineStealth: {},
	EnginePDF:     {},
}

// Select applies the priority-ordered decision rule: anti-bot measures
// force stealth, a PDF payload forces the PDF extractor, SPA markers or a
// low content ratio force dynamic rendering, and everything else is
// handled by the cheap static extractor.
func Select(s Signals) (primary Engine, fallbacks []Engine) {
	switch {
	case s.HasAntiScraping:
		primary = EngineStealth
	case s.IsPDF:
		primary = EnginePDF
	case s.HasReact || s.HasVue || s.HasAngular || s.HasSPAMarkers:
		primary = EngineDynamic
	case s.ContentRatio < lowContentRatioThreshold:
		primary = EngineDynamic
	default:
		primary = EngineStatic
	}
	return primary, fallbackChains[primary]
}
