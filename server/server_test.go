package server

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"poitharvest/config"
	"poitharvest/store"
)

func newTestRouter(t *testing.T) (*httptest.Server, string) {
	t.Helper()
	root := t.TempDir()
	r := NewRouter(config.ServerConfig{Mode: "test"}, root, time.Now())
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv, root
}

func seedArtifact(t *testing.T, root, date, id, body string) {
	t.Helper()
	st, err := store.Open(root, date)
	if err != nil {
		t.Fatal(err)
	}
	a := store.Artifact{
		URL:        "https://poit.bolagsverket.se/poit-app/kungorelse/" + id,
		Title:      "Kungörelse " + id,
		CapturedAt: time.Now(),
		Body:       body,
	}
	if err := st.Write(id, a); err != nil {
		t.Fatal(err)
	}
}

func TestHealth(t *testing.T) {
	srv, _ := newTestRouter(t)

	resp, err := http.Get(srv.URL + "/health")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	var body struct {
		Status string `json:"status"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatal(err)
	}
	if body.Status != "healthy" {
		t.Errorf("status = %q", body.Status)
	}
}

func TestList(t *testing.T) {
	srv, root := newTestRouter(t)
	seedArtifact(t, root, "2025-12-08", "K100-25", "text")
	seedArtifact(t, root, "2025-12-08", "K101-25", "text")

	resp, err := http.Get(srv.URL + "/list?date=2025-12-08")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	var body struct {
		Date  string   `json:"date"`
		Count int      `json:"count"`
		Items []string `json:"items"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatal(err)
	}
	if body.Count != 2 || len(body.Items) != 2 {
		t.Errorf("body = %+v", body)
	}
	if body.Items[0] != "K100-25" || body.Items[1] != "K101-25" {
		t.Errorf("items = %v", body.Items)
	}
}

func TestList_UnharvestedDateIsEmptyAndCreatesNothing(t *testing.T) {
	srv, root := newTestRouter(t)

	resp, err := http.Get(srv.URL + "/list?date=1999-01-01")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	var body struct {
		Count int      `json:"count"`
		Items []string `json:"items"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatal(err)
	}
	if body.Count != 0 || len(body.Items) != 0 {
		t.Errorf("body = %+v, want empty list", body)
	}
	// Listing must stay read-only: no date folder may appear.
	if _, err := os.Stat(filepath.Join(root, "19990101")); err == nil {
		t.Error("list request created the date folder")
	}
}

func TestList_BadDate(t *testing.T) {
	srv, _ := newTestRouter(t)

	resp, err := http.Get(srv.URL + "/list?date=../../etc")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", resp.StatusCode)
	}
}

func TestFile(t *testing.T) {
	srv, root := newTestRouter(t)
	seedArtifact(t, root, "2025-12-08", "K100-25", "Kungörelsetext hela innehållet")

	resp, err := http.Get(srv.URL + "/file/2025-12-08/K100-25")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatal(err)
	}
	content := string(raw)
	if !strings.HasPrefix(content, "URL: ") {
		t.Errorf("artifact header missing:\n%s", content)
	}
	if !strings.Contains(content, "Kungörelsetext hela innehållet") {
		t.Error("artifact body missing")
	}
}

func TestFile_NotFoundAndTraversal(t *testing.T) {
	srv, root := newTestRouter(t)

	resp, err := http.Get(srv.URL + "/file/1999-01-01/K1-25")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("unharvested date: status = %d, want 404", resp.StatusCode)
	}
	if _, err := os.Stat(filepath.Join(root, "19990101")); err == nil {
		t.Error("file request created the date folder")
	}

	seedArtifact(t, root, "2025-12-08", "K100-25", "text")
	resp, err = http.Get(srv.URL + "/file/2025-12-08/K999-25")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("missing artifact: status = %d, want 404", resp.StatusCode)
	}

	resp, err = http.Get(srv.URL + "/file/2025-12-08/..%2F..%2Fsecret")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode == http.StatusOK {
		t.Error("traversal path served with 200")
	}
}
