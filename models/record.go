package models

import "strings"

// Record is one announcement entry returned by the registry search API.
// The identifier is opaque (e.g. "K123456/25"); the name is the display
// name of the announcing company.
type Record struct {
	ID   string `json:"kungorelseid"`
	Name string `json:"namn"`
}

// NormalizeID converts a record identifier to its URL- and filesystem-safe
// form by replacing the slash with a hyphen ("K123456/25" -> "K123456-25").
// Normalizing an already-normalized identifier is a no-op.
func NormalizeID(id string) string {
	return strings.ReplaceAll(id, "/", "-")
}

// ScrapeResult is the outcome of one page-scrape attempt. Exactly one of
// the success fields or the failure fields is meaningful.
type ScrapeResult struct {
	ID        string
	Success   bool
	CharCount int
	// Reason holds the error code for failures, plus a short truncated
	// diagnostic. Never a raw stack trace.
	Reason string
}

// FailureResult builds a failed ScrapeResult with a truncated diagnostic.
func FailureResult(id, code string, err error) ScrapeResult {
	reason := code
	if err != nil {
		msg := err.Error()
		if len(msg) > 80 {
			msg = msg[:80]
		}
		reason = code + ": " + msg
	}
	return ScrapeResult{ID: id, Reason: reason}
}
