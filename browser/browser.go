// Package browser defines the narrow browser-automation surface the
// harvester depends on, plus its go-rod implementation. Scraping logic is
// written against these interfaces so the state machines can be tested
// with fakes.
package browser

import "context"

// Locator names an element either by CSS selector alone or by a CSS
// selector filtered on visible text (regex).
type Locator struct {
	CSS  string
	Text string
}

// Element is a clickable handle on a located page element.
type Element interface {
	Click() error
}

// Page is one isolated tab. A Page is always closed by its owner
// regardless of outcome.
type Page interface {
	// Navigate loads the URL and waits for the DOM to settle.
	Navigate(url string) error

	// URL returns the current page URL.
	URL() string

	// Title returns the document title, best effort.
	Title() string

	// Text returns the rendered body text.
	Text() (string, error)

	// HTML returns the current rendered HTML.
	HTML() (string, error)

	// FindVisible returns the first visible element matching any of the
	// locators, in order. It does not wait for elements to appear.
	FindVisible(locators ...Locator) (Element, bool)

	// Scroll scrolls the viewport to the given vertical offset.
	Scroll(y int) error

	Close() error
}

// Browser is the shared session from which tabs are opened.
type Browser interface {
	// NewPage opens an isolated tab bound to ctx; ctx cancellation or
	// deadline aborts in-flight operations on the page.
	NewPage(ctx context.Context) (Page, error)

	// Cookies returns the name->value cookie set whose domain contains
	// the given substring.
	Cookies(domainSubstr string) (map[string]string, error)

	// Close releases the session. A launched browser process is killed;
	// an attached one is only disconnected.
	Close() error
}
