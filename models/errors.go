package models

import "fmt"

// Error codes used across the pipeline. Per-record codes are carried in
// ScrapeResult reasons; run-level codes abort the whole harvest.
const (
	// Run-fatal.
	ErrCodeNoCookies    = "NO_COOKIES"
	ErrCodeBrowserCrash = "BROWSER_CRASH"

	// Per-record, non-fatal.
	ErrCodeRateLimited         = "RATE_LIMITED"
	ErrCodeCaptcha             = "CAPTCHA"
	ErrCodeAccessDenied        = "ACCESS_DENIED"
	ErrCodeRedirectNoLink      = "REDIRECT_NO_LINK"
	ErrCodeInsufficientContent = "INSUFFICIENT_CONTENT"
	ErrCodeWrongPage           = "WRONG_PAGE"
	ErrCodeNavTimeout          = "NAV_TIMEOUT"
	ErrCodeUnknown             = "UNKNOWN"

	// Informational.
	ErrCodeNoListResults = "NO_LIST_RESULTS"
)

// HarvestError is the internal error type carrying an error code.
// It implements the error interface and supports error wrapping via Unwrap.
type HarvestError struct {
	Code    string
	Message string
	Err     error // wrapped original error
}

func (e *HarvestError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *HarvestError) Unwrap() error {
	return e.Err
}

// NewHarvestError creates a new HarvestError.
func NewHarvestError(code, message string, err error) *HarvestError {
	return &HarvestError{Code: code, Message: message, Err: err}
}
