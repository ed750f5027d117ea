package poitapi

import (
	"regexp"
	"strings"

	"poitharvest/models"
)

// Name fragments marking companies that are never worth scraping:
// holding structures, foundations, housing co-ops and shelf-company mills.
var excludeKeywords = []string{
	"förening", "holding", "lagerbolag", "lagerbolaget", "startplattan",
	"stiftelse", "bostadsrättsförening", "brf ", "ideell", "kapital",
}

// Shelf companies are registered under serial names like
// "Startplattan 201499 Aktiebolag" or "Lagerbolaget C 28068 AB".
var shelfPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)^[A-Za-zÅÄÖåäö]+\s+\d{5,6}\s+Aktiebolag$`),
	regexp.MustCompile(`(?i)^[A-Za-zÅÄÖåäö]+\s+[A-Z]\s+\d{4,6}\s+AB$`),
	regexp.MustCompile(`(?i)^[A-Za-zÅÄÖåäö]+\s+\d{4,6}\s+AB$`),
}

// ShouldSkip reports whether a company name matches the exclusion rules.
// Empty names are kept; exclusion only ever acts on positive evidence.
func ShouldSkip(name string) bool {
	if name == "" {
		return false
	}
	lowered := strings.ToLower(name)
	for _, kw := range excludeKeywords {
		if strings.Contains(lowered, kw) {
			return true
		}
	}
	stripped := strings.TrimSpace(name)
	for _, p := range shelfPatterns {
		if p.MatchString(stripped) {
			return true
		}
	}
	return false
}

// FilterRecords drops excluded companies before any page is scraped,
// preserving input order. It returns the kept records and how many were
// dropped.
func FilterRecords(records []models.Record) ([]models.Record, int) {
	kept := make([]models.Record, 0, len(records))
	skipped := 0
	for _, r := range records {
		if ShouldSkip(r.Name) {
			skipped++
			continue
		}
		kept = append(kept, r)
	}
	return kept, skipped
}
