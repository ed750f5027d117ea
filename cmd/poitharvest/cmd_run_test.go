package main

import (
	"testing"
	"time"

	"poitharvest/models"
	"poitharvest/store"
)

func seededStore(t *testing.T, scraped ...string) *store.Store {
	t.Helper()
	st, err := store.Open(t.TempDir(), "2025-12-08")
	if err != nil {
		t.Fatal(err)
	}
	a := store.Artifact{URL: "u", Title: "t", CapturedAt: time.Now(), Body: "x"}
	for _, id := range scraped {
		if err := st.Write(id, a); err != nil {
			t.Fatal(err)
		}
	}
	return st
}

func TestSelectWork(t *testing.T) {
	records := []models.Record{
		{ID: "K1/25", Name: "Ettan AB"},
		{ID: "K2/25", Name: "Tvåan AB"},
		{ID: "K3/25", Name: "Trean AB"},
		{ID: "K4/25", Name: "Fyran AB"},
	}

	cases := []struct {
		name    string
		scraped []string
		max     int
		want    []string
	}{
		{"all fresh, uncapped", nil, 0, []string{"K1/25", "K2/25", "K3/25", "K4/25"}},
		{"existing artifacts skipped", []string{"K1-25", "K3-25"}, 0, []string{"K2/25", "K4/25"}},
		{"capped", nil, 2, []string{"K1/25", "K2/25"}},
		{"cap counts remaining work only", []string{"K1-25"}, 2, []string{"K2/25", "K3/25"}},
		{"everything done", []string{"K1-25", "K2-25", "K3-25", "K4-25"}, 0, []string{}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			st := seededStore(t, tc.scraped...)
			got := selectWork(st, records, tc.max)
			if len(got) != len(tc.want) {
				t.Fatalf("selectWork = %v, want %v", got, tc.want)
			}
			for i := range tc.want {
				if got[i] != tc.want[i] {
					t.Errorf("selectWork[%d] = %q, want %q", i, got[i], tc.want[i])
				}
			}
		})
	}
}
