// Package store persists harvest output: one artifact directory per
// scraped record plus the list snapshot, all under a per-date folder.
// These files are the sole contract consumed by downstream processing.
package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"poitharvest/models"
)

// artifactFile is the per-record output file name.
const artifactFile = "content.txt"

// separator sits between the artifact header and the body text.
var separator = strings.Repeat("=", 60)

// Artifact is the persisted record: provenance header plus the full
// extracted body text.
type Artifact struct {
	URL        string
	Title      string
	CapturedAt time.Time
	Body       string
}

// Store manages one date folder. It is safe for concurrent Write calls on
// distinct record identifiers.
type Store struct {
	dir string
}

// Open creates (if needed) and returns the store for a date. The date is
// accepted as YYYY-MM-DD and stored compact (YYYYMMDD), matching what the
// downstream tooling expects.
func Open(root, date string) (*Store, error) {
	dir := filepath.Join(root, compactDate(date))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create output folder: %w", err)
	}
	return &Store{dir: dir}, nil
}

// OpenRead returns the store for a date without creating anything,
// reporting whether the date folder exists. Read-side callers use this so
// probing a date is free of filesystem side effects.
func OpenRead(root, date string) (*Store, bool) {
	dir := filepath.Join(root, compactDate(date))
	info, err := os.Stat(dir)
	return &Store{dir: dir}, err == nil && info.IsDir()
}

// Dir returns the date folder path.
func (s *Store) Dir() string { return s.dir }

// Exists reports whether an artifact has already been written for the
// normalized identifier. Records with an artifact are done: re-runs skip
// them.
func (s *Store) Exists(normalizedID string) bool {
	_, err := os.Stat(filepath.Join(s.dir, normalizedID, artifactFile))
	return err == nil
}

// Write persists the artifact for a record. Writing is deterministic:
// a second write for the same record replaces the file wholesale, never
// leaving duplicates or partial merges.
func (s *Store) Write(normalizedID string, a Artifact) error {
	folder := filepath.Join(s.dir, normalizedID)
	if err := os.MkdirAll(folder, 0o755); err != nil {
		return fmt.Errorf("create record folder: %w", err)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "URL: %s\n", a.URL)
	fmt.Fprintf(&b, "Title: %s\n", a.Title)
	fmt.Fprintf(&b, "Timestamp: %s\n", a.CapturedAt.Format(time.RFC3339))
	b.WriteString(separator + "\n\n")
	b.WriteString(a.Body)

	return os.WriteFile(filepath.Join(folder, artifactFile), []byte(b.String()), 0o644)
}

// ArtifactPath returns where the record's artifact lives (whether or not
// it exists yet).
func (s *Store) ArtifactPath(normalizedID string) string {
	return filepath.Join(s.dir, normalizedID, artifactFile)
}

// ListScraped returns the normalized identifiers that have artifacts,
// sorted for stable output.
func (s *Store) ListScraped() ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, err
	}
	var ids []string
	for _, e := range entries {
		if e.IsDir() && s.Exists(e.Name()) {
			ids = append(ids, e.Name())
		}
	}
	sort.Strings(ids)
	return ids, nil
}

// ListMeta describes a saved list snapshot.
type ListMeta struct {
	Timestamp     string `json:"timestamp"`
	Date          string `json:"date"`
	ItemCount     int    `json:"item_count"`
	OriginalCount int    `json:"original_count"`
	FilteredOut   int    `json:"filtered_out"`
}

type listSnapshot struct {
	Meta ListMeta        `json:"meta"`
	Data []models.Record `json:"data"`
}

// SaveList writes the (filtered) candidate list as
// kungorelser_<YYYYMMDD>.json next to the artifacts.
func (s *Store) SaveList(date string, records []models.Record, originalCount int) error {
	snap := listSnapshot{
		Meta: ListMeta{
			Timestamp:     time.Now().Format(time.RFC3339),
			Date:          date,
			ItemCount:     len(records),
			OriginalCount: originalCount,
			FilteredOut:   originalCount - len(records),
		},
		Data: records,
	}
	raw, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return err
	}
	name := fmt.Sprintf("kungorelser_%s.json", compactDate(date))
	return os.WriteFile(filepath.Join(s.dir, name), raw, 0o644)
}

func compactDate(date string) string {
	return strings.ReplaceAll(date, "-", "")
}
