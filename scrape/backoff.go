package scrape

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"poitharvest/config"
)

// Backoff is the process-wide escalating wait shared across all CAPTCHA
// encounters in a run. One shared instance is passed to every scrape task:
// the server keeps a single flag per client, so every task must observe
// the same escalation. Construct a fresh instance per run (or per test).
type Backoff struct {
	mu   sync.Mutex
	seed time.Duration
	max  time.Duration

	encounters int
	wait       time.Duration
}

// NewBackoff creates a Backoff with no prior encounters.
func NewBackoff(cfg config.BackoffConfig) *Backoff {
	return &Backoff{seed: cfg.Seed, max: cfg.Max}
}

// Encounters returns the consecutive CAPTCHA encounter count.
func (b *Backoff) Encounters() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.encounters
}

// CurrentWait returns the wait that the next encounter would start from.
func (b *Backoff) CurrentWait() time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.wait
}

// escalate records one encounter and returns the wait to apply: the seed
// on the first encounter, then doubling up to the ceiling.
func (b *Backoff) escalate() (time.Duration, int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.encounters++
	if b.wait == 0 {
		b.wait = b.seed
	} else {
		b.wait *= 2
		if b.wait > b.max {
			b.wait = b.max
		}
	}
	return b.wait, b.encounters
}

// relax halves the wait after a confirmed unblock, never below the seed.
func (b *Backoff) relax() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.wait /= 2
	if b.wait < b.seed {
		b.wait = b.seed
	}
}

// Wait blocks for the escalated duration, polling cleared once per second.
// If the obstruction clears before the countdown ends (a human solved the
// challenge in a visible window), Wait returns true immediately and the
// escalation is relaxed. If the countdown exhausts, Wait returns false and
// the caller re-attempts anyway. Context cancellation also returns false.
func (b *Backoff) Wait(ctx context.Context, cleared func() bool) bool {
	wait, n := b.escalate()
	slog.Warn("captcha encountered, backing off",
		"encounter", n,
		"wait", wait,
	)

	remaining := wait
	for remaining > 0 {
		fmt.Fprintf(os.Stderr, "\r  captcha backoff: %3.0fs remaining ", remaining.Seconds())
		select {
		case <-ctx.Done():
			fmt.Fprintln(os.Stderr)
			return false
		case <-time.After(time.Second):
		}
		remaining -= time.Second

		if cleared != nil && cleared() {
			fmt.Fprintln(os.Stderr)
			slog.Info("obstruction cleared before countdown ended", "encounter", n)
			b.relax()
			return true
		}
	}
	fmt.Fprintln(os.Stderr)
	slog.Info("backoff exhausted, re-attempting", "encounter", n)
	return false
}
