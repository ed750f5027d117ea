package browser

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/launcher/flags"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"
	"github.com/ysmood/gson"

	"poitharvest/config"
	"poitharvest/models"
)

const chromeUA = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

// Session is the shared rod browser behind the Browser interface. It is
// safe for concurrent tab creation.
type Session struct {
	browser  *rod.Browser
	headers  map[string]string
	attached bool
	navWait  time.Duration
}

// Connect obtains a browser context. With AttachURL set it attaches to an
// already-running browser over CDP; otherwise it launches a managed
// Chromium, visible or off-screen per config. Both paths yield the same
// downstream scraping behavior.
func Connect(cfg config.BrowserConfig, extraHeaders map[string]string) (*Session, error) {
	if cfg.AttachURL != "" {
		b := rod.New().ControlURL(cfg.AttachURL)
		if err := b.Connect(); err != nil {
			return nil, models.NewHarvestError(
				models.ErrCodeBrowserCrash,
				"failed to attach to browser over CDP",
				err,
			)
		}
		slog.Info("attached to running browser", "controlURL", cfg.AttachURL)
		return &Session{browser: b, headers: extraHeaders, attached: true, navWait: cfg.NavTimeout}, nil
	}

	l := launcher.New().
		Headless(!cfg.Visible).
		NoSandbox(cfg.NoSandbox)

	if cfg.Bin != "" {
		l = l.Bin(cfg.Bin)
	}

	// Flags that keep background tabs rendering and hide the most obvious
	// automation tells.
	l.Set(flags.Flag("disable-blink-features"), "AutomationControlled")
	l.Delete(flags.Flag("enable-automation"))
	l.Set(flags.Flag("disable-background-timer-throttling"))
	l.Set(flags.Flag("disable-backgrounding-occluded-windows"))
	l.Set(flags.Flag("disable-renderer-backgrounding"))
	l.Set(flags.Flag("disable-dev-shm-usage"))
	l.Set(flags.Flag("no-first-run"))

	controlURL, err := l.Launch()
	if err != nil {
		return nil, models.NewHarvestError(
			models.ErrCodeBrowserCrash,
			"failed to launch browser",
			err,
		)
	}
	slog.Info("browser launched", "controlURL", controlURL, "visible", cfg.Visible)

	b := rod.New().ControlURL(controlURL)
	if err := b.Connect(); err != nil {
		return nil, models.NewHarvestError(
			models.ErrCodeBrowserCrash,
			"failed to connect to launched browser",
			err,
		)
	}
	return &Session{browser: b, headers: extraHeaders, navWait: cfg.NavTimeout}, nil
}

// NewPage opens a fresh tab with stealth JS and browser-like headers
// installed before any navigation.
func (s *Session) NewPage(ctx context.Context) (Page, error) {
	page, err := s.browser.Page(proto.TargetCreateTarget{})
	if err != nil {
		return nil, models.NewHarvestError(
			models.ErrCodeBrowserCrash,
			"failed to open tab",
			err,
		)
	}

	if _, evalErr := page.EvalOnNewDocument(stealth.JS); evalErr != nil {
		slog.Warn("stealth injection failed, proceeding without stealth", "error", evalErr)
	}

	headers := map[string]string{"User-Agent": chromeUA}
	for k, v := range s.headers {
		headers[k] = v
	}
	_ = proto.NetworkSetExtraHTTPHeaders{Headers: toHeadersMap(headers)}.Call(page)

	return &rodPage{page: page.Context(ctx), raw: page, navWait: s.navWait}, nil
}

// Cookies reads the session cookie set, keeping only cookies whose domain
// contains the given substring.
func (s *Session) Cookies(domainSubstr string) (map[string]string, error) {
	cookies, err := s.browser.GetCookies()
	if err != nil {
		return nil, err
	}
	out := make(map[string]string)
	for _, c := range cookies {
		if strings.Contains(c.Domain, domainSubstr) {
			out[c.Name] = c.Value
		}
	}
	return out, nil
}

// Close kills a launched browser. An attached browser is left running so
// the user's own Chrome survives the run.
func (s *Session) Close() error {
	if s.attached {
		return nil
	}
	s.browser.MustClose()
	return nil
}

// rodPage adapts *rod.Page to the Page interface. The raw reference keeps
// cleanup working even after the bound context has expired.
type rodPage struct {
	page    *rod.Page
	raw     *rod.Page
	navWait time.Duration
}

func (p *rodPage) Navigate(url string) error {
	nav := p.page
	if p.navWait > 0 {
		nav = nav.Timeout(p.navWait)
	}
	if err := nav.Navigate(url); err != nil {
		return err
	}
	if err := nav.WaitDOMStable(300*time.Millisecond, 0.1); err != nil {
		slog.Debug("DOM did not stabilize, proceeding", "url", url, "error", err)
	}
	return nil
}

func (p *rodPage) URL() string {
	info, err := p.page.Info()
	if err != nil {
		return ""
	}
	return info.URL
}

func (p *rodPage) Title() string {
	res, err := p.page.Eval(`() => document.title`)
	if err != nil {
		return ""
	}
	return res.Value.Str()
}

func (p *rodPage) Text() (string, error) {
	body, err := p.page.Element("body")
	if err != nil {
		return "", err
	}
	return body.Text()
}

func (p *rodPage) HTML() (string, error) {
	return p.page.HTML()
}

func (p *rodPage) FindVisible(locators ...Locator) (Element, bool) {
	for _, loc := range locators {
		var (
			found bool
			el    *rod.Element
			err   error
		)
		if loc.Text != "" {
			found, el, err = p.page.HasR(loc.CSS, loc.Text)
		} else {
			found, el, err = p.page.Has(loc.CSS)
		}
		if err != nil || !found {
			continue
		}
		if visible, verr := el.Visible(); verr == nil && visible {
			return &rodElement{el: el}, true
		}
	}
	return nil, false
}

func (p *rodPage) Scroll(y int) error {
	_, err := p.page.Eval(`(y) => window.scrollTo(0, y)`, y)
	return err
}

// Close uses the raw page reference so the tab is released even when the
// request context has already expired.
func (p *rodPage) Close() error {
	return p.raw.Close()
}

type rodElement struct {
	el *rod.Element
}

func (e *rodElement) Click() error {
	return e.el.Click(proto.InputMouseButtonLeft, 1)
}

// toHeadersMap converts a plain string map to the proto.NetworkHeaders type
// (map[string]gson.JSON) required by NetworkSetExtraHTTPHeaders.
func toHeadersMap(headers map[string]string) proto.NetworkHeaders {
	m := make(proto.NetworkHeaders, len(headers))
	for k, v := range headers {
		m[k] = gson.New(v)
	}
	return m
}
