package scrape

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"poitharvest/browser"
	"poitharvest/config"
	"poitharvest/models"
	"poitharvest/store"
)

// Humanizing delay applied right after every record navigation. The portal
// renders content asynchronously; inspecting too early yields false
// negatives.
var initialWait = config.Range{Min: 4 * time.Second, Max: 5500 * time.Millisecond}

// Bounds on the obstruction-handling loops.
const (
	maxBannerRetries  = 3
	maxLandingRetries = 3
)

// landingRedirectWait is how long a landing page gets to auto-redirect
// before we go looking for the anchor ourselves.
var landingRedirectWait = config.Range{Min: 2 * time.Second, Max: 3 * time.Second}

// reinspectWait separates an obstruction-handling action from the next
// classification pass.
var reinspectWait = 2 * time.Second

// contentMarkers always appear on a real announcement page. A page
// missing all of them is a shell, whatever its URL says.
var contentMarkers = []string{"Kungörelsetext", "Org nr:", "Registreringsdatum"}

// minContentChars rejects structurally valid but truncated shells.
const minContentChars = 500

// anchorLocators find the link from a landing page to the real record.
var anchorLocators = []browser.Locator{
	{CSS: `a[href*="/kungorelse/K"]`},
	{CSS: `a.btn-link[href*="/kungorelse"]`},
}

// Sink is where confirmed content goes. *store.Store satisfies it.
type Sink interface {
	Exists(normalizedID string) bool
	Write(normalizedID string, a store.Artifact) error
}

// Scraper scrapes individual record pages through the shared browser
// session. Each attempt runs in its own tab, closed on every exit path.
type Scraper struct {
	browser  browser.Browser
	site     config.SiteConfig
	sink     Sink
	backoff  *Backoff
	pageWait config.Range

	// budget bounds one attempt end to end, backoff included.
	budget time.Duration
}

// NewScraper wires a page scraper. The backoff instance must be the run's
// shared one.
func NewScraper(b browser.Browser, site config.SiteConfig, sink Sink, backoff *Backoff, harvest config.HarvestConfig, backoffCfg config.BackoffConfig) *Scraper {
	return &Scraper{
		browser:  b,
		site:     site,
		sink:     sink,
		backoff:  backoff,
		pageWait: harvest.PageWait,
		budget:   2*time.Minute + backoffCfg.Max,
	}
}

// ScrapeRecord runs the state machine for one record identifier and always
// returns a ScrapeResult; browser errors never escape as raw errors.
func (s *Scraper) ScrapeRecord(ctx context.Context, id string) models.ScrapeResult {
	normalized := models.NormalizeID(id)
	url := s.site.RecordURL(normalized)

	ctx, cancel := context.WithTimeout(ctx, s.budget)
	defer cancel()

	page, err := s.browser.NewPage(ctx)
	if err != nil {
		return models.FailureResult(id, models.ErrCodeBrowserCrash, err)
	}
	defer page.Close()

	if err := page.Navigate(url); err != nil {
		return navFailure(id, ctx, err)
	}
	if !sleepRange(ctx, initialWait) {
		return models.FailureResult(id, models.ErrCodeNavTimeout, ctx.Err())
	}

	var (
		bannerTries  int
		landingTried bool
		captchaTried bool
		unknownTried bool
	)

	for {
		switch state := ClassifyPage(page); state {
		case ObstructionCookieBanner:
			if bannerTries >= maxBannerRetries {
				return models.FailureResult(id, models.ErrCodeUnknown, errBannerStuck)
			}
			bannerTries++
			if el, ok := page.FindVisible(consentLocators...); ok {
				_ = el.Click()
			}
			if !sleepCtx(ctx, reinspectWait) {
				return models.FailureResult(id, models.ErrCodeNavTimeout, ctx.Err())
			}

		case ObstructionRateLimited:
			// Abort immediately; the batch coordinator slows the whole
			// run down on this signal instead of hammering the endpoint.
			return models.FailureResult(id, models.ErrCodeRateLimited, nil)

		case ObstructionCaptcha:
			if captchaTried {
				return models.FailureResult(id, models.ErrCodeCaptcha, nil)
			}
			captchaTried = true
			s.backoff.Wait(ctx, func() bool {
				return ClassifyPage(page) != ObstructionCaptcha
			})
			if err := page.Navigate(url); err != nil {
				return navFailure(id, ctx, err)
			}
			if !sleepRange(ctx, initialWait) {
				return models.FailureResult(id, models.ErrCodeNavTimeout, ctx.Err())
			}

		case ObstructionAccessDenied:
			// Not retried: this usually means the session is stale and a
			// fresh cookie acquisition is needed.
			return models.FailureResult(id, models.ErrCodeAccessDenied, nil)

		case ObstructionRedirectLanding:
			if landingTried {
				return models.FailureResult(id, models.ErrCodeRedirectNoLink, nil)
			}
			landingTried = true
			if res, done := s.resolveLanding(ctx, page, id); done {
				return res
			}

		case ObstructionUnknown:
			if unknownTried {
				return models.FailureResult(id, models.ErrCodeUnknown, nil)
			}
			unknownTried = true
			if !sleepCtx(ctx, reinspectWait) {
				return models.FailureResult(id, models.ErrCodeNavTimeout, ctx.Err())
			}

		case ObstructionNone:
			return s.extract(ctx, page, id, normalized, url)
		}
	}
}

// resolveLanding works through the intermediate landing page: wait for the
// auto-redirect, then click the anchor to the real record. Returns
// (result, true) on terminal failure, (_, false) once resolved or when the
// page deserves re-classification.
func (s *Scraper) resolveLanding(ctx context.Context, page browser.Page, id string) (models.ScrapeResult, bool) {
	for try := 0; try < maxLandingRetries; try++ {
		if !strings.Contains(page.URL(), landingSegment) {
			return models.ScrapeResult{}, false
		}
		if !sleepRange(ctx, landingRedirectWait) {
			return models.FailureResult(id, models.ErrCodeNavTimeout, ctx.Err()), true
		}
		if !strings.Contains(page.URL(), landingSegment) {
			return models.ScrapeResult{}, false
		}

		if el, ok := page.FindVisible(anchorLocators...); ok {
			_ = el.Click()
			if !sleepRange(ctx, s.pageWait) {
				return models.FailureResult(id, models.ErrCodeNavTimeout, ctx.Err()), true
			}
			continue
		}

		// No anchor; the landing page may itself be hidden behind a
		// consent overlay. Clear it and look again.
		if el, ok := page.FindVisible(consentLocators...); ok {
			_ = el.Click()
			if !sleepCtx(ctx, reinspectWait) {
				return models.FailureResult(id, models.ErrCodeNavTimeout, ctx.Err()), true
			}
			continue
		}

		return models.FailureResult(id, models.ErrCodeRedirectNoLink, nil), true
	}
	if strings.Contains(page.URL(), landingSegment) {
		return models.FailureResult(id, models.ErrCodeRedirectNoLink, nil), true
	}
	return models.ScrapeResult{}, false
}

// extract confirms real content and persists the artifact. Both checks
// must hold: the URL names the record path, and the text carries a known
// structural marker with enough length; some pages load a structurally
// valid but empty shell.
func (s *Scraper) extract(ctx context.Context, page browser.Page, id, normalized, recordURL string) models.ScrapeResult {
	current := page.URL()

	// A silent redirect back to the portal home is retried once.
	if s.isHomeURL(current) {
		if err := page.Navigate(recordURL); err != nil {
			return navFailure(id, ctx, err)
		}
		if !sleepRange(ctx, s.pageWait) {
			return models.FailureResult(id, models.ErrCodeNavTimeout, ctx.Err())
		}
		current = page.URL()
	}

	if !strings.Contains(current, "/kungorelse/") || strings.Contains(current, landingSegment) {
		return models.FailureResult(id, models.ErrCodeWrongPage, errPageType(current))
	}

	text, err := page.Text()
	if err != nil {
		return models.FailureResult(id, models.ErrCodeUnknown, err)
	}

	// The floor is strict: exactly minContentChars is still a shell.
	if !hasContentMarker(text) || utf8.RuneCountInString(text) <= minContentChars {
		return models.FailureResult(id, models.ErrCodeInsufficientContent, nil)
	}

	artifact := store.Artifact{
		URL:        current,
		Title:      page.Title(),
		CapturedAt: time.Now(),
		Body:       text,
	}
	if err := s.sink.Write(normalized, artifact); err != nil {
		slog.Error("artifact write failed", "id", id, "error", err)
		return models.FailureResult(id, models.ErrCodeUnknown, err)
	}

	return models.ScrapeResult{
		ID:        id,
		Success:   true,
		CharCount: utf8.RuneCountInString(text),
	}
}

func (s *Scraper) isHomeURL(u string) bool {
	trimmed := strings.TrimSuffix(u, "/")
	entry := strings.TrimSuffix(s.site.EntryURL(), "/")
	return trimmed == entry
}

func hasContentMarker(text string) bool {
	for _, m := range contentMarkers {
		if strings.Contains(text, m) {
			return true
		}
	}
	return false
}

// navFailure maps a navigation error to a result, distinguishing timeouts
// from other navigation faults.
func navFailure(id string, ctx context.Context, err error) models.ScrapeResult {
	if ctx.Err() != nil {
		return models.FailureResult(id, models.ErrCodeNavTimeout, ctx.Err())
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return models.FailureResult(id, models.ErrCodeNavTimeout, err)
	}
	return models.FailureResult(id, models.ErrCodeUnknown, err)
}

type strError string

func (e strError) Error() string { return string(e) }

const errBannerStuck = strError("consent banner still present after retries")

// errPageType names the page type we ended up on, mirroring the two final
// path segments for the diagnostic.
func errPageType(u string) error {
	parts := strings.Split(strings.TrimSuffix(u, "/"), "/")
	if len(parts) >= 2 {
		return strError("wrong page type: " + parts[len(parts)-2])
	}
	return strError("wrong page type")
}
