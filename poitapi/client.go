// Package poitapi calls the portal's internal search API using cookies
// extracted from a live browser session.
package poitapi

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-resty/resty/v2"

	"poitharvest/config"
	"poitharvest/models"
)

const chromeUA = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

// searchPath is the internal list endpoint under the site root.
const searchPath = "/poit/rest/SokKungorelse"

// Category codes selecting the announcement subtype of interest.
const (
	subjectAreaID    = "2"
	announcementType = "4"
	subHeadingID     = "6"
)

// Client queries the internal search API with a browser-equivalent request
// shape: session cookies, browser headers and a Chrome TLS fingerprint.
type Client struct {
	http *resty.Client
	site config.SiteConfig
}

// NewClient builds a client around the given session cookies. The cookie
// set must come from a live browser session; without it every call is
// rejected by the WAF.
func NewClient(site config.SiteConfig, cookies map[string]string) *Client {
	c := resty.New().
		SetTransport(newChromeTransport()).
		SetHeaders(map[string]string{
			"Accept":             "application/json, text/plain, */*",
			"Accept-Language":    "sv-SE,sv;q=0.9,en;q=0.8",
			"User-Agent":         chromeUA,
			"Referer":            site.EntryURL(),
			"Origin":             site.BaseURL,
			"x-security-request": "required",
		})

	for name, value := range cookies {
		c.SetCookie(&http.Cookie{Name: name, Value: value})
	}

	return &Client{http: c, site: site}
}

// SearchAnnouncements fetches the announcement list for one date
// (YYYY-MM-DD). A non-200 response, empty body or parse failure yields an
// empty list, not an error: the category filter legitimately matches
// nothing on many dates, and the caller decides what an empty result
// means. No retry happens at this layer.
func (c *Client) SearchAnnouncements(ctx context.Context, date string) ([]models.Record, error) {
	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"sokord":                            "",
			"kungorelseid":                      "",
			"kungorelseObjektPersonOrgnummer":   "",
			"kungorelseObjektNamn":              "",
			"tidsperiod":                        "ANNAN_PERIOD",
			"tidsperiodFrom":                    date,
			"tidsperiodTom":                     date,
			"amnesomradeId":                     subjectAreaID,
			"kungorelsetypId":                   announcementType,
			"underRubrikId":                     subHeadingID,
		}).
		Get(c.site.BaseURL + searchPath)
	if err != nil {
		slog.Warn("list fetch failed", "date", date, "error", err)
		return nil, nil
	}

	body := resp.Body()
	if resp.StatusCode() != http.StatusOK || len(strings.TrimSpace(string(body))) == 0 {
		c.logNonResult(date, resp.StatusCode(), body)
		return nil, nil
	}

	var records []models.Record
	if err := json.Unmarshal(body, &records); err != nil {
		c.logNonResult(date, resp.StatusCode(), body)
		return nil, nil
	}
	return records, nil
}

func (c *Client) logNonResult(date string, status int, body []byte) {
	attrs := []any{"date", date, "status", status}
	if title := blockPageTitle(body); title != "" {
		attrs = append(attrs, "blockPage", title)
	}
	slog.Warn("list fetch returned no usable result", attrs...)
}
