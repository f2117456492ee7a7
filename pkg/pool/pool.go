// Package pool runs per-target collections through a bounded worker
// pool. Pages within one timeline are always fetched sequentially;
// only distinct targets run in parallel.
package pool

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// Config holds worker pool configuration.
type Config struct {
	// MaxConcurrency is the number of targets collected in parallel.
	MaxConcurrency int

	// Timeout bounds one target's collection. Zero means no bound.
	Timeout time.Duration
}

// DefaultConfig returns safe defaults. Two workers keeps the combined
// request rate polite toward upstream.
func DefaultConfig() Config {
	return Config{
		MaxConcurrency: 2,
	}
}

// CollectFunc runs a full collection for one target.
type CollectFunc func(ctx context.Context, target string) error

// Result reports the outcome of one target's collection.
type Result struct {
	Target string
	Err    error
}

// Pool fans targets out to workers.
type Pool struct {
	config Config
}

// New creates a worker pool.
func New(config Config) *Pool {
	if config.MaxConcurrency <= 0 {
		config.MaxConcurrency = 2
	}
	return &Pool{config: config}
}

// Run collects every target and returns one Result per target, in
// completion order. A cancelled context stops dispatching new targets;
// targets already in flight finish on their own terms (the collector
// treats cancellation as a normal stop). The first error encountered is
// returned alongside the full result set.
func (p *Pool) Run(ctx context.Context, targets []string, collect CollectFunc) ([]Result, error) {
	start := time.Now()

	log.Info().
		Str("component", "pool").
		Int("targets", len(targets)).
		Int("workers", p.config.MaxConcurrency).
		Msg("Starting collection pool")

	queue := make(chan string)
	results := make(chan Result, len(targets))

	var wg sync.WaitGroup
	for i := 0; i < p.config.MaxConcurrency; i++ {
		wg.Add(1)
		go p.worker(ctx, queue, results, &wg, i, collect)
	}

	dispatched := 0
	for _, target := range targets {
		select {
		case queue <- target:
			dispatched++
		case <-ctx.Done():
		}
		if ctx.Err() != nil {
			break
		}
	}
	close(queue)
	wg.Wait()
	close(results)

	out := make([]Result, 0, dispatched)
	var firstErr error
	failed := 0
	for r := range results {
		if r.Err != nil {
			failed++
			if firstErr == nil {
				firstErr = r.Err
			}
		}
		out = append(out, r)
	}

	log.Info().
		Str("component", "pool").
		Int("completed", len(out)).
		Int("failed", failed).
		Dur("duration", time.Since(start)).
		Msg("Collection pool finished")

	return out, firstErr
}

// worker processes targets from the queue.
func (p *Pool) worker(ctx context.Context, queue <-chan string, results chan<- Result, wg *sync.WaitGroup, workerID int, collect CollectFunc) {
	defer wg.Done()

	for target := range queue {
		err := p.collectBounded(ctx, target, collect)
		if err != nil {
			log.Warn().
				Str("component", "pool").
				Int("worker_id", workerID).
				Str("target", target).
				Err(err).
				Msg("Target collection failed")
		}

		results <- Result{Target: target, Err: err}
	}
}

// collectBounded applies the per-target timeout when configured.
func (p *Pool) collectBounded(ctx context.Context, target string, collect CollectFunc) error {
	if p.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.config.Timeout)
		defer cancel()
	}
	return collect(ctx, target)
}
