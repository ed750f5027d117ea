// Package scrape contains the resilient scraping engine: session
// acquisition, obstacle classification, the per-record page state machine,
// the batch coordinator and the shared CAPTCHA backoff.
package scrape

import (
	"strings"

	"github.com/PuerkitoBio/goquery"

	"poitharvest/browser"
)

// Obstruction classifies what stands between a loaded page and its
// content. Produced fresh on every inspection, never persisted.
type Obstruction int

const (
	ObstructionNone Obstruction = iota
	ObstructionCookieBanner
	ObstructionCaptcha
	ObstructionRateLimited
	ObstructionRedirectLanding
	ObstructionAccessDenied
	ObstructionUnknown
)

func (o Obstruction) String() string {
	switch o {
	case ObstructionNone:
		return "none"
	case ObstructionCookieBanner:
		return "cookie_banner"
	case ObstructionCaptcha:
		return "captcha"
	case ObstructionRateLimited:
		return "rate_limited"
	case ObstructionRedirectLanding:
		return "redirect_landing"
	case ObstructionAccessDenied:
		return "access_denied"
	default:
		return "unknown"
	}
}

// landingSegment is the intermediate redirect-only path on the portal.
const landingSegment = "/enskild/"

var (
	cookiePhrases = []string{"cookie", "kakor"}

	rateLimitPhrases = []string{
		"too many requests", "429", "try again later", "för många förfrågningar",
	}

	captchaPhrases = []string{
		"captcha", "human visitor", "verify you are human", "robot",
	}

	accessDeniedPhrases = []string{
		"access denied", "forbidden", "403", "not authorized", "åtkomst nekad",
	}
)

// bannerContainers are the markup patterns a consent overlay lives in.
var bannerContainers = []string{
	`[class*="cookie"]`,
	`[id*="cookie"]`,
	`[class*="consent"]`,
	`button[data-cf-action="accept"]`,
	".cf-btn-accept",
	"#accept-cookies",
}

// PageView is the classifier's input: everything it may inspect, captured
// from a page in one shot so classification itself is a pure function.
type PageView struct {
	URL  string
	Text string
	// Doc is the parsed rendered HTML; may be nil when HTML capture failed.
	Doc *goquery.Document
}

// Classification is an ordered (predicate, state) chain; the first match
// wins. The order encodes priority: higher entries are both more common
// and more trivially resolved, and a page showing several signals at once
// must still classify deterministically.
var rules = []struct {
	state Obstruction
	match func(v PageView) bool
}{
	{ObstructionRedirectLanding, func(v PageView) bool {
		return strings.Contains(v.URL, landingSegment)
	}},
	{ObstructionCookieBanner, func(v PageView) bool {
		return containsAny(v.Text, cookiePhrases) && bannerVisible(v.Doc)
	}},
	{ObstructionRateLimited, func(v PageView) bool {
		return containsAny(v.Text, rateLimitPhrases)
	}},
	{ObstructionCaptcha, func(v PageView) bool {
		return containsAny(v.Text, captchaPhrases)
	}},
	{ObstructionAccessDenied, func(v PageView) bool {
		return containsAny(v.Text, accessDeniedPhrases)
	}},
}

// Classify returns exactly one Obstruction for the view.
func Classify(v PageView) Obstruction {
	for _, r := range rules {
		if r.match(v) {
			return r.state
		}
	}
	return ObstructionNone
}

// ClassifyPage captures a live page into a PageView and classifies it.
// Any inspection failure (e.g. the page closed mid-check) yields
// ObstructionUnknown, which callers treat as retry-once-then-fail.
func ClassifyPage(p browser.Page) Obstruction {
	text, err := p.Text()
	if err != nil {
		return ObstructionUnknown
	}
	var doc *goquery.Document
	if html, herr := p.HTML(); herr == nil {
		doc, _ = goquery.NewDocumentFromReader(strings.NewReader(html))
	}
	return Classify(PageView{URL: p.URL(), Text: text, Doc: doc})
}

func containsAny(text string, phrases []string) bool {
	lowered := strings.ToLower(text)
	for _, p := range phrases {
		if strings.Contains(lowered, p) {
			return true
		}
	}
	return false
}

// bannerVisible reports whether a recognized consent container is present
// and not hidden. Computed styles are not available from static HTML, so
// hidden-ness is judged from inline style and hidden attributes.
func bannerVisible(doc *goquery.Document) bool {
	if doc == nil {
		return false
	}
	for _, sel := range bannerContainers {
		visible := false
		doc.Find(sel).EachWithBreak(func(_ int, s *goquery.Selection) bool {
			if style, ok := s.Attr("style"); ok {
				compact := strings.ReplaceAll(strings.ToLower(style), " ", "")
				if strings.Contains(compact, "display:none") || strings.Contains(compact, "visibility:hidden") {
					return true
				}
			}
			if _, hidden := s.Attr("hidden"); hidden {
				return true
			}
			if v, ok := s.Attr("aria-hidden"); ok && v == "true" {
				return true
			}
			visible = true
			return false
		})
		if visible {
			return true
		}
	}
	return false
}
