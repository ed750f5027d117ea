package scrape

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"poitharvest/config"
)

func TestChunkIDs(t *testing.T) {
	ids := []string{"a", "b", "c", "d", "e", "f", "g"}

	got := chunkIDs(ids, 3)
	want := [][]string{{"a", "b", "c"}, {"d", "e", "f"}, {"g"}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("chunkIDs mismatch (-want +got):\n%s", diff)
	}

	if got := chunkIDs(ids, 0); len(got) != len(ids) {
		t.Errorf("width 0: %d chunks, want %d singletons", len(got), len(ids))
	}
	if got := chunkIDs(nil, 3); got != nil {
		t.Errorf("nil ids produced %v", got)
	}
	if got := chunkIDs(ids, 10); len(got) != 1 || len(got[0]) != 7 {
		t.Errorf("oversized width: %v", got)
	}
}

func batchSite(ids []string) map[string]pageState {
	body := "Kungörelsetext Org nr: 556677-8899 " + strings.Repeat("innehåll ", 70)
	states := make(map[string]pageState, len(ids))
	for _, id := range ids {
		url := testSite.RecordURL(id)
		states[url] = pageState{url: url, title: "Kungörelse " + id, text: body, html: "<html></html>"}
	}
	return states
}

func newTestCoordinator(t *testing.T, parallel int, states map[string]pageState) (*Coordinator, *fakeSink, *int) {
	t.Helper()
	fastWaits(t)

	sink := &fakeSink{}
	harvest := config.HarvestConfig{
		Parallel:    parallel,
		PageWait:    config.Range{Min: time.Millisecond, Max: 2 * time.Millisecond},
		BetweenWait: config.Range{Min: time.Millisecond, Max: 2 * time.Millisecond},
	}
	backoffCfg := config.BackoffConfig{Seed: time.Second, Max: 2 * time.Second}
	s := NewScraper(&fakeBrowser{states: states}, testSite, sink, NewBackoff(backoffCfg), harvest, backoffCfg)

	c := NewCoordinator(s, harvest)
	pauses := 0
	c.pause = func(ctx context.Context, r config.Range) bool {
		pauses++
		return true
	}
	return c, sink, &pauses
}

func TestCoordinatorRun_ResultsInInputOrder(t *testing.T) {
	ids := []string{"K1-25", "K2-25", "K3-25", "K4-25", "K5-25", "K6-25", "K7-25"}
	c, sink, pauses := newTestCoordinator(t, 3, batchSite(ids))

	results, err := c.Run(context.Background(), ids)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(results) != len(ids) {
		t.Fatalf("got %d results, want %d", len(results), len(ids))
	}
	for i, r := range results {
		if r.ID != ids[i] {
			t.Errorf("result %d is %q, want %q", i, r.ID, ids[i])
		}
		if !r.Success {
			t.Errorf("record %s failed: %s", r.ID, r.Reason)
		}
	}
	if len(sink.written) != len(ids) {
		t.Errorf("%d artifacts written, want %d", len(sink.written), len(ids))
	}
	// 7 ids at width 3 form 3 chunks; the pause runs between chunks only,
	// never after the last one.
	if *pauses != 2 {
		t.Errorf("pauses = %d, want 2", *pauses)
	}
}

func TestCoordinatorRun_SequentialHasNoIntraChunkStagger(t *testing.T) {
	ids := []string{"K1-25", "K2-25"}
	c, _, pauses := newTestCoordinator(t, 1, batchSite(ids))

	start := time.Now()
	results, err := c.Run(context.Background(), ids)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("got %d results", len(results))
	}
	if *pauses != 1 {
		t.Errorf("pauses = %d, want 1", *pauses)
	}
	// Two sequential chunks must not accumulate the 1.5s worker stagger.
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("sequential run took %v", elapsed)
	}
}

func TestCoordinatorRun_FailuresDoNotAbortTheRun(t *testing.T) {
	ids := []string{"K1-25", "K2-25", "K3-25"}
	states := batchSite([]string{"K1-25", "K3-25"})
	// K2 serves a block page; the other two must still complete.
	blocked := testSite.RecordURL("K2-25")
	states[blocked] = pageState{url: blocked, text: "429 too many requests", html: "<html></html>"}

	c, sink, _ := newTestCoordinator(t, 1, states)
	results, err := c.Run(context.Background(), ids)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if !results[0].Success || !results[2].Success {
		t.Errorf("healthy records failed: %+v", results)
	}
	if results[1].Success {
		t.Error("blocked record reported as success")
	}
	if len(sink.written) != 2 {
		t.Errorf("%d artifacts written, want 2", len(sink.written))
	}
}

func TestCoordinatorRun_RateLimitExtendsPause(t *testing.T) {
	ids := []string{"K1-25", "K2-25", "K3-25"}
	states := batchSite([]string{"K1-25", "K3-25"})
	blocked := testSite.RecordURL("K2-25")
	states[blocked] = pageState{url: blocked, text: "429 too many requests", html: "<html></html>"}

	c, _, pauses := newTestCoordinator(t, 1, states)
	if _, err := c.Run(context.Background(), ids); err != nil {
		t.Fatalf("Run: %v", err)
	}
	// One pause after each of the first two chunks, plus one extra after
	// the rate-limited middle chunk.
	if *pauses != 3 {
		t.Errorf("pauses = %d, want 3", *pauses)
	}
}

func TestCoordinatorRun_CancelledContextStopsNewChunks(t *testing.T) {
	ids := []string{"K1-25", "K2-25", "K3-25"}
	c, _, _ := newTestCoordinator(t, 1, batchSite(ids))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	results, err := c.Run(ctx, ids)
	if err == nil {
		t.Error("Run returned nil error on a cancelled context")
	}
	if len(results) == len(ids) {
		t.Error("all records ran despite cancellation")
	}
}