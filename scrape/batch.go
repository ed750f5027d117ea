package scrape

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"poitharvest/config"
	"poitharvest/models"
)

// staggerStep delays each worker within a chunk so concurrent tabs do not
// hit the portal at the same instant.
const staggerStep = 1500 * time.Millisecond

// Coordinator fans record IDs out over a bounded number of concurrent
// scrape workers, pacing chunks with a randomized pause between them.
type Coordinator struct {
	scraper  *Scraper
	parallel int
	between  config.Range
	limiter  *rate.Limiter

	// pause is swapped out in tests.
	pause func(ctx context.Context, r config.Range) bool
}

// NewCoordinator builds a coordinator around a page scraper. Parallelism
// below one is clamped to sequential operation.
func NewCoordinator(s *Scraper, harvest config.HarvestConfig) *Coordinator {
	parallel := harvest.Parallel
	if parallel < 1 {
		parallel = 1
	}
	// At most one chunk launch per minimum inter-chunk interval. The
	// limiter is a hard floor underneath the randomized pause.
	interval := harvest.BetweenWait.Min
	if interval <= 0 {
		interval = time.Second
	}
	return &Coordinator{
		scraper:  s,
		parallel: parallel,
		between:  harvest.BetweenWait,
		limiter:  rate.NewLimiter(rate.Every(interval), 1),
		pause:    sleepRange,
	}
}

// Run scrapes every ID and returns one result per ID, in input order.
// A cancelled context stops new chunks; results gathered so far are still
// returned alongside the context error.
func (c *Coordinator) Run(ctx context.Context, ids []string) ([]models.ScrapeResult, error) {
	results := make([]models.ScrapeResult, 0, len(ids))

	chunks := chunkIDs(ids, c.parallel)
	for ci, chunk := range chunks {
		if err := c.limiter.Wait(ctx); err != nil {
			return results, err
		}

		chunkResults := make([]models.ScrapeResult, len(chunk))
		g, gctx := errgroup.WithContext(ctx)
		for wi, id := range chunk {
			wi, id := wi, id
			g.Go(func() error {
				if wi > 0 {
					if !sleepCtx(gctx, time.Duration(wi)*staggerStep) {
						chunkResults[wi] = models.FailureResult(id, models.ErrCodeNavTimeout, gctx.Err())
						return nil
					}
				}
				chunkResults[wi] = c.scrapeSafe(gctx, id)
				return nil
			})
		}
		_ = g.Wait()

		rateLimited := false
		for _, r := range chunkResults {
			if r.Success {
				slog.Info("record scraped", "id", r.ID, "chars", r.CharCount)
			} else {
				slog.Warn("record failed", "id", r.ID, "reason", r.Reason)
				if strings.HasPrefix(r.Reason, models.ErrCodeRateLimited) {
					rateLimited = true
				}
			}
		}
		results = append(results, chunkResults...)

		if ctx.Err() != nil {
			return results, ctx.Err()
		}
		if ci < len(chunks)-1 {
			if !c.pause(ctx, c.between) {
				return results, ctx.Err()
			}
			// A rate-limited record means the server is already scoring
			// this session; double the pause before the next chunk.
			if rateLimited {
				slog.Warn("rate limit observed, extending inter-chunk pause")
				if !c.pause(ctx, c.between) {
					return results, ctx.Err()
				}
			}
		}
	}
	return results, nil
}

// scrapeSafe keeps a panicking worker from taking down the whole run.
func (c *Coordinator) scrapeSafe(ctx context.Context, id string) (res models.ScrapeResult) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("scrape worker panic", "id", id, "panic", r)
			res = models.FailureResult(id, models.ErrCodeBrowserCrash, fmt.Errorf("worker panic: %v", r))
		}
	}()
	return c.scraper.ScrapeRecord(ctx, id)
}

// chunkIDs splits ids into consecutive groups of at most width, preserving
// order. Width below one behaves as one.
func chunkIDs(ids []string, width int) [][]string {
	if width < 1 {
		width = 1
	}
	var chunks [][]string
	for start := 0; start < len(ids); start += width {
		end := start + width
		if end > len(ids) {
			end = len(ids)
		}
		chunks = append(chunks, ids[start:end])
	}
	return chunks
}
