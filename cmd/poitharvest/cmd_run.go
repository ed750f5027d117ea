package main

import (
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"poitharvest/browser"
	"poitharvest/config"
	"poitharvest/models"
	"poitharvest/poitapi"
	"poitharvest/scrape"
	"poitharvest/store"
)

var runFlags struct {
	date     string
	count    int
	parallel int
	visible  bool
	attach   string
	output   string
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run one harvest pass: list, filter, scrape, store",
	RunE:  runHarvest,
}

func init() {
	runCmd.Flags().StringVar(&runFlags.date, "date", "", "harvest date YYYY-MM-DD (default today)")
	runCmd.Flags().IntVar(&runFlags.count, "count", 0, "max records to scrape this pass")
	runCmd.Flags().IntVar(&runFlags.parallel, "parallel", 0, "concurrent scrape workers")
	runCmd.Flags().BoolVar(&runFlags.visible, "visible", false, "run the browser with a visible window")
	runCmd.Flags().StringVar(&runFlags.attach, "attach", "", "attach to a running browser at this devtools URL")
	runCmd.Flags().StringVar(&runFlags.output, "output", "", "output directory root")
}

func runHarvest(cmd *cobra.Command, _ []string) error {
	// ── 1. Load configuration, apply flag overrides ─────────────────
	cfg := config.Load()
	applyRunFlags(cfg, cmd)

	initLogger(cfg.Log)

	date := cfg.Harvest.Date
	if date == "" {
		date = time.Now().Format("2006-01-02")
	}

	slog.Info("harvest starting",
		"date", date,
		"maxRecords", cfg.Harvest.MaxRecords,
		"parallel", cfg.Harvest.Parallel,
		"output", cfg.Harvest.OutputDir,
	)

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── 2. Single-run lock ──────────────────────────────────────────
	lock, err := store.AcquireLock(cfg.Harvest.OutputDir)
	if err != nil {
		return err
	}
	defer lock.Release()

	st, err := store.Open(cfg.Harvest.OutputDir, date)
	if err != nil {
		return err
	}

	// ── 3. Browser session and cookies ──────────────────────────────
	session, err := browser.Connect(cfg.Browser, map[string]string{
		"Accept-Language": "sv-SE,sv;q=0.9,en;q=0.8",
	})
	if err != nil {
		return fmt.Errorf("browser connect: %w", err)
	}
	defer session.Close()

	cookies, err := scrape.AcquireCookies(ctx, session, cfg.Site, cfg.Harvest.CookieWait)
	if err != nil {
		// Without session cookies every list call and record page is
		// served the block shell, so the whole run is pointless.
		return fmt.Errorf("cookie acquisition: %w", err)
	}
	slog.Info("session established", "cookies", len(cookies))

	// ── 4. Announcement list ────────────────────────────────────────
	client := poitapi.NewClient(cfg.Site, cookies)
	records, err := client.SearchAnnouncements(ctx, date)
	if err != nil {
		return err
	}
	if len(records) == 0 {
		slog.Info("no announcements listed", "date", date)
		return nil
	}

	kept, skipped := poitapi.FilterRecords(records)
	if err := st.SaveList(date, kept, len(records)); err != nil {
		slog.Warn("list snapshot not saved", "error", err)
	}
	slog.Info("list fetched",
		"total", len(records),
		"kept", len(kept),
		"filtered", skipped,
	)

	// ── 5. Select work: skip already-scraped, cap at max ────────────
	ids := selectWork(st, kept, cfg.Harvest.MaxRecords)
	if len(ids) == 0 {
		slog.Info("nothing left to scrape", "date", date)
		return nil
	}

	// ── 6. Scrape ───────────────────────────────────────────────────
	backoff := scrape.NewBackoff(cfg.Backoff)
	scraper := scrape.NewScraper(session, cfg.Site, st, backoff, cfg.Harvest, cfg.Backoff)
	coord := scrape.NewCoordinator(scraper, cfg.Harvest)

	started := time.Now()
	results, runErr := coord.Run(ctx, ids)

	// ── 7. Summary ──────────────────────────────────────────────────
	succeeded := 0
	for _, r := range results {
		if r.Success {
			succeeded++
		}
	}
	elapsed := time.Since(started).Round(time.Second)
	perRecord := time.Duration(0)
	if len(results) > 0 {
		perRecord = (elapsed / time.Duration(len(results))).Round(time.Second)
	}
	slog.Info("harvest finished",
		"candidates", len(kept),
		"attempted", len(results),
		"succeeded", succeeded,
		"elapsed", elapsed.String(),
		"perRecord", perRecord.String(),
		"backoffs", backoff.Encounters(),
	)

	if runErr != nil {
		slog.Warn("harvest ended early", "error", runErr)
	}
	return nil
}

func applyRunFlags(cfg *config.Config, cmd *cobra.Command) {
	if cmd.Flags().Changed("date") {
		cfg.Harvest.Date = runFlags.date
	}
	if cmd.Flags().Changed("count") {
		cfg.Harvest.MaxRecords = runFlags.count
	}
	if cmd.Flags().Changed("parallel") {
		cfg.Harvest.Parallel = runFlags.parallel
	}
	if cmd.Flags().Changed("visible") {
		cfg.Browser.Visible = runFlags.visible
	}
	if cmd.Flags().Changed("attach") {
		cfg.Browser.AttachURL = runFlags.attach
	}
	if cmd.Flags().Changed("output") {
		cfg.Harvest.OutputDir = runFlags.output
	}
}

// selectWork drops records that already have an artifact and caps the rest.
func selectWork(st *store.Store, records []models.Record, max int) []string {
	ids := make([]string, 0, len(records))
	for _, r := range records {
		if st.Exists(models.NormalizeID(r.ID)) {
			continue
		}
		ids = append(ids, r.ID)
		if max > 0 && len(ids) >= max {
			break
		}
	}
	return ids
}
