package scrape

import (
	"context"
	"log/slog"
	"math/rand"
	"net/url"
	"strings"
	"time"

	"poitharvest/browser"
	"poitharvest/config"
	"poitharvest/models"
)

// entrySettleWait gives the entry page time to render before the consent
// overlay is searched for.
var entrySettleWait = 3 * time.Second

// scrollPause separates the humanizing scrolls.
var scrollPause = 2 * time.Second

// consentLocators are tried in order; the first visible match is clicked.
var consentLocators = []browser.Locator{
	{CSS: `button[data-cf-action="accept"]`},
	{CSS: "button", Text: "Acceptera"},
	{CSS: "button", Text: "Godkänn"},
	{CSS: ".cf-btn-accept"},
	{CSS: "#accept-cookies"},
	{CSS: "button", Text: `^OK$`},
}

// AcquireCookies drives the browser to the portal entry page, dismisses
// the consent overlay and extracts the cookie set scoped to the target
// domain. An empty result is a hard failure for the run: every subsequent
// API or page call would be rejected.
func AcquireCookies(ctx context.Context, b browser.Browser, site config.SiteConfig, cookieWait time.Duration) (map[string]string, error) {
	page, err := b.NewPage(ctx)
	if err != nil {
		return nil, err
	}
	defer page.Close()

	domain := registrableDomain(site.BaseURL)

	if !strings.Contains(page.URL(), domain) {
		slog.Info("navigating to entry page", "url", site.EntryURL())
		if err := page.Navigate(site.EntryURL()); err != nil {
			return nil, models.NewHarvestError(models.ErrCodeNoCookies, "entry navigation failed", err)
		}
	}
	if !sleepCtx(ctx, entrySettleWait) {
		return nil, ctx.Err()
	}

	if el, ok := page.FindVisible(consentLocators...); ok {
		slog.Info("consent banner found, accepting")
		if err := el.Click(); err != nil {
			slog.Warn("consent click failed, continuing", "error", err)
		}
		// Protection cookies are often issued several seconds after the
		// consent click; waiting too little here yields a cookie set that
		// passes the emptiness check but fails on first use.
		slog.Info("waiting for protection cookies", "wait", cookieWait)
		if !sleepCtx(ctx, cookieWait) {
			return nil, ctx.Err()
		}
	}

	// Two small scrolls with pauses to look less like a bot to the WAF.
	_ = page.Scroll(300)
	if !sleepCtx(ctx, scrollPause) {
		return nil, ctx.Err()
	}
	_ = page.Scroll(0)
	if !sleepCtx(ctx, scrollPause) {
		return nil, ctx.Err()
	}

	cookies, err := b.Cookies(domain)
	if err != nil {
		return nil, models.NewHarvestError(models.ErrCodeNoCookies, "cookie read failed", err)
	}
	if len(cookies) == 0 {
		return nil, models.NewHarvestError(models.ErrCodeNoCookies, "no cookies for target domain", nil)
	}
	slog.Info("session cookies acquired", "count", len(cookies))
	return cookies, nil
}

// registrableDomain reduces a base URL to its last two host labels
// ("poit.bolagsverket.se" -> "bolagsverket.se") so cookies set on parent
// domains are kept.
func registrableDomain(baseURL string) string {
	u, err := url.Parse(baseURL)
	if err != nil {
		return baseURL
	}
	labels := strings.Split(u.Hostname(), ".")
	if len(labels) <= 2 {
		return u.Hostname()
	}
	return strings.Join(labels[len(labels)-2:], ".")
}

// sleepCtx sleeps for d unless ctx is done first; reports whether the full
// sleep completed.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	select {
	case <-ctx.Done():
		return false
	case <-time.After(d):
		return true
	}
}

// sleepRange sleeps a random duration drawn from r.
func sleepRange(ctx context.Context, r config.Range) bool {
	return sleepCtx(ctx, randDuration(r))
}

func randDuration(r config.Range) time.Duration {
	if r.Max <= r.Min {
		return r.Min
	}
	return r.Min + time.Duration(rand.Int63n(int64(r.Max-r.Min)))
}
