// Package collector implements the timeline pagination engine: it
// drives an injected page-fetch capability cursor by cursor, normalizes
// each page, filters duplicates, and enforces the run's stop conditions.
package collector

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/xid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/davidBerries/twitter-timeline/pkg/dedup"
	"github.com/davidBerries/twitter-timeline/pkg/normalize"
	"github.com/davidBerries/twitter-timeline/pkg/retry"
	"github.com/davidBerries/twitter-timeline/pkg/schema"
)

// Prometheus metrics for collection runs.
var (
	pagesFetchedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "timeline_pages_fetched_total",
		Help: "Total timeline pages fetched by target",
	}, []string{"target"})

	postsEmittedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "timeline_posts_emitted_total",
		Help: "Total posts emitted by target",
	}, []string{"target"})

	duplicatesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "timeline_duplicates_total",
		Help: "Total duplicate posts dropped across pages by target",
	}, []string{"target"})

	entriesSkippedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "timeline_entries_skipped_total",
		Help: "Total raw entries dropped during normalization by target",
	}, []string{"target"})

	runsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "timeline_runs_total",
		Help: "Total collection runs by termination reason",
	}, []string{"reason"})
)

// RawPage is one upstream response to a single page fetch.
type RawPage struct {
	// Body is the raw response payload; the normalizer owns its shape.
	Body []byte

	// RateLimitHint, when positive, is upstream's requested minimum
	// spacing before the next fetch. It widens the configured request
	// delay for the remainder of the run.
	RateLimitHint time.Duration
}

// Fetcher is the injected page-fetch capability. Implementations
// classify failures by returning *retry.FailureError; any other error is
// treated as transient-network.
type Fetcher interface {
	FetchPage(ctx context.Context, targetID, cursor string) (*RawPage, error)
}

// FetchFunc adapts a function to the Fetcher interface.
type FetchFunc func(ctx context.Context, targetID, cursor string) (*RawPage, error)

// FetchPage implements Fetcher.
func (f FetchFunc) FetchPage(ctx context.Context, targetID, cursor string) (*RawPage, error) {
	return f(ctx, targetID, cursor)
}

// Reason is the termination reason of a run.
type Reason string

const (
	// ReasonLimitReached means the configured post maximum was hit.
	ReasonLimitReached Reason = "limit-reached"

	// ReasonExhausted means upstream signaled the end of the timeline.
	ReasonExhausted Reason = "exhausted"

	// ReasonNoProgress means two consecutive pages produced no new
	// records and the defensive loop-break fired.
	ReasonNoProgress Reason = "no-progress"

	// ReasonCancelled means the caller cancelled the run. Not an error;
	// records emitted so far are valid.
	ReasonCancelled Reason = "cancelled"

	// ReasonAborted means a terminal fetch failure ended the run.
	ReasonAborted Reason = "aborted"
)

// Config holds the per-run collection settings.
type Config struct {
	// TargetID identifies the timeline owner (upstream rest_id).
	TargetID string

	// MaxPosts bounds the number of emitted records. Defaults to 100.
	MaxPosts int

	// RequestDelay is the minimum spacing between page fetches.
	RequestDelay time.Duration

	// Policy decides retries; defaults to retry.NewPolicy().
	Policy *retry.Policy

	// Source is stamped into each record's _source field.
	Source string
}

// DefaultConfig returns a safe default configuration for one target.
func DefaultConfig(targetID string) Config {
	return Config{
		TargetID: targetID,
		MaxPosts: 100,
		Source:   "twitter",
	}
}

// Summary reports what a run did, regardless of how it ended.
type Summary struct {
	RunID        string
	TargetID     string
	Reason       Reason
	PagesFetched int
	PostsEmitted int
	Duplicates   int
	Skipped      int
}

// Controller paginates one target's timeline. A Controller is owned by a
// single goroutine; concurrent multi-target collection uses one
// Controller per target with no shared state.
type Controller struct {
	cfg     Config
	fetcher Fetcher
	policy  *retry.Policy
	logger  zerolog.Logger
	runID   string
}

// New creates a controller for one target.
func New(fetcher Fetcher, cfg Config) (*Controller, error) {
	if fetcher == nil {
		return nil, fmt.Errorf("fetcher is required")
	}
	if cfg.TargetID == "" {
		return nil, fmt.Errorf("target id is required")
	}
	if cfg.MaxPosts < 0 {
		return nil, fmt.Errorf("max posts must be positive (got %d)", cfg.MaxPosts)
	}
	if cfg.MaxPosts == 0 {
		cfg.MaxPosts = 100
	}
	if cfg.Policy == nil {
		cfg.Policy = retry.NewPolicy()
	}
	if cfg.Source == "" {
		cfg.Source = "twitter"
	}

	runID := xid.New().String()
	logger := log.With().
		Str("component", "collector").
		Str("target", cfg.TargetID).
		Str("run_id", runID).
		Logger()

	return &Controller{
		cfg:     cfg,
		fetcher: fetcher,
		policy:  cfg.Policy,
		logger:  logger,
		runID:   runID,
	}, nil
}

// RunID returns the identifier stamped into this controller's records.
func (c *Controller) RunID() string {
	return c.runID
}

// Run drives a full collection, invoking emit for each accepted record
// in upstream order. Every call starts fresh from cursor null; runs are
// not resumable mid-stream.
//
// The returned Summary is always non-nil. A non-nil error is terminal
// (*RunError for fetch failures); records already emitted remain valid.
// Cancellation is reported via ReasonCancelled with a nil error.
func (c *Controller) Run(ctx context.Context, emit func(schema.Post) error) (*Summary, error) {
	start := time.Now()
	state := &PaginationState{}
	seen := dedup.NewTracker()
	summary := &Summary{RunID: c.runID, TargetID: c.cfg.TargetID}
	delay := c.cfg.RequestDelay

	finish := func(reason Reason, err error) (*Summary, error) {
		summary.Reason = reason
		summary.PagesFetched = state.PagesFetched
		summary.PostsEmitted = state.PostsEmitted
		runsTotal.WithLabelValues(string(reason)).Inc()

		evt := c.logger.Info()
		if reason == ReasonAborted {
			evt = c.logger.Error().Err(err)
		}
		evt.Str("reason", string(reason)).
			Int("pages", summary.PagesFetched).
			Int("posts", summary.PostsEmitted).
			Int("duplicates", summary.Duplicates).
			Int("skipped", summary.Skipped).
			Dur("duration", time.Since(start)).
			Msg("Collection run finished")
		return summary, err
	}

	c.logger.Debug().Int("max_posts", c.cfg.MaxPosts).Msg("Starting collection run")

	for {
		if state.PagesFetched > 0 && delay > 0 {
			if err := c.wait(ctx, delay); err != nil {
				return finish(ReasonCancelled, nil)
			}
		}

		page, hint, err := c.fetchWithRetry(ctx, state.Cursor)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, retry.ErrContextCancelled) {
				return finish(ReasonCancelled, nil)
			}
			return finish(ReasonAborted, &RunError{
				Kind:         retry.KindOf(err),
				Message:      fmt.Sprintf("page %d fetch failed", state.PagesFetched+1),
				PartialCount: state.PostsEmitted,
				Err:          err,
			})
		}

		state.PagesFetched++
		pagesFetchedTotal.WithLabelValues(c.cfg.TargetID).Inc()

		newRecords := 0
		for _, post := range page.Posts {
			if state.PostsEmitted >= c.cfg.MaxPosts {
				// Overshoot on the last page is truncated.
				break
			}
			if !seen.Accept(post.ID) {
				summary.Duplicates++
				duplicatesTotal.WithLabelValues(c.cfg.TargetID).Inc()
				continue
			}

			post.FetchedAt = time.Now().UTC().Format(time.RFC3339)
			post.Source = c.cfg.Source
			post.RunID = c.runID

			if err := emit(post); err != nil {
				return finish(ReasonAborted, fmt.Errorf("emit record %s: %w", post.ID, err))
			}
			state.PostsEmitted++
			newRecords++
			postsEmittedTotal.WithLabelValues(c.cfg.TargetID).Inc()
		}

		if page.Skipped > 0 {
			summary.Skipped += page.Skipped
			entriesSkippedTotal.WithLabelValues(c.cfg.TargetID).Add(float64(page.Skipped))
			c.logger.Warn().
				Int("skipped", page.Skipped).
				Int("page", state.PagesFetched).
				Msg("Dropped malformed entries, keeping page")
		}

		c.logger.Debug().
			Int("page", state.PagesFetched).
			Int("new_records", newRecords).
			Int("total", state.PostsEmitted).
			Msg("Page processed")

		if state.PostsEmitted >= c.cfg.MaxPosts {
			return finish(ReasonLimitReached, nil)
		}
		if state.Exhausted(page.NextCursor) {
			return finish(ReasonExhausted, nil)
		}
		if state.RecordProgress(newRecords) {
			c.logger.Warn().
				Str("cursor", page.NextCursor).
				Msg("No new records on consecutive pages, breaking loop")
			return finish(ReasonNoProgress, nil)
		}

		state.Advance(page.NextCursor)
		if hint > delay {
			delay = hint
		}
	}
}

// Collect runs the controller and gathers accepted records into a slice.
// The slice is valid even when err is non-nil (partial output).
func (c *Controller) Collect(ctx context.Context) ([]schema.Post, *Summary, error) {
	posts := make([]schema.Post, 0, c.cfg.MaxPosts)
	summary, err := c.Run(ctx, func(p schema.Post) error {
		posts = append(posts, p)
		return nil
	})
	return posts, summary, err
}

// fetchWithRetry fetches and normalizes one page, retrying the same
// cursor per the policy. The attempt counter is scoped to this cursor.
func (c *Controller) fetchWithRetry(ctx context.Context, cursor string) (*normalize.Page, time.Duration, error) {
	attempt := 0
	for {
		if ctx.Err() != nil {
			return nil, 0, fmt.Errorf("%w: %v", retry.ErrContextCancelled, ctx.Err())
		}

		raw, err := c.fetcher.FetchPage(ctx, c.cfg.TargetID, cursor)
		if err == nil {
			page, perr := normalize.ParsePage(raw.Body)
			if perr == nil {
				return page, raw.RateLimitHint, nil
			}
			err = &retry.FailureError{
				Kind:    retry.KindMalformedResponse,
				Message: "normalize page",
				Err:     perr,
			}
		}
		if ctx.Err() != nil {
			return nil, 0, fmt.Errorf("%w: %v", retry.ErrContextCancelled, ctx.Err())
		}

		attempt++
		kind := retry.KindOf(err)
		decision := c.policy.Decide(kind, attempt, retry.HintOf(err))
		if !decision.Retry {
			if kind.Retryable() {
				return nil, 0, fmt.Errorf("%w after %d attempts: %w", retry.ErrRetryExhausted, attempt, err)
			}
			return nil, 0, err
		}

		c.logger.Debug().
			Str("kind", string(kind)).
			Int("attempt", attempt).
			Dur("backoff", decision.Delay).
			Msg("Retrying page after backoff")

		if werr := c.wait(ctx, decision.Delay); werr != nil {
			return nil, 0, fmt.Errorf("%w: %v", retry.ErrContextCancelled, ctx.Err())
		}
	}
}

// wait blocks for d or until ctx is done.
func (c *Controller) wait(ctx context.Context, d time.Duration) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}
