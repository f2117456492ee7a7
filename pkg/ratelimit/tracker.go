package ratelimit

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// Prometheus metrics for rate limit tracking.
var (
	rateLimitRemaining = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "timeline_rate_limit_remaining",
		Help: "Requests remaining in the current upstream rate limit window",
	})

	rateLimitBlocksTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "timeline_rate_limit_blocks_total",
		Help: "Total number of fetches blocked due to critical budget",
	})

	rateLimitThrottlesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "timeline_rate_limit_throttles_total",
		Help: "Total number of fetches throttled due to low budget",
	})
)

// Tracker monitors the upstream request budget and gates fetches.
type Tracker struct {
	redis  *redis.Client
	logger zerolog.Logger
}

// NewTracker creates a new rate limit tracker.
func NewTracker(redisClient *redis.Client, logger zerolog.Logger) *Tracker {
	return &Tracker{
		redis:  redisClient,
		logger: logger,
	}
}

// GetState retrieves the current rate limit state from Redis. Returns a
// default healthy state when no data exists yet.
func (t *Tracker) GetState(ctx context.Context) (*State, error) {
	remaining, err := t.redis.Get(ctx, RedisKeyRemaining).Int()
	if err != nil && err != redis.Nil {
		return nil, fmt.Errorf("get remaining: %w", err)
	}

	resetTimestamp, err := t.redis.Get(ctx, RedisKeyResetTimestamp).Int64()
	if err != nil && err != redis.Nil {
		return nil, fmt.Errorf("get reset timestamp: %w", err)
	}

	lastUpdateStr, err := t.redis.Get(ctx, RedisKeyLastUpdate).Result()
	if err != nil && err != redis.Nil {
		return nil, fmt.Errorf("get last update: %w", err)
	}

	if err == redis.Nil {
		t.logger.Debug().Msg("No rate limit state in Redis, returning default healthy state")
		return &State{
			Remaining:  50, // Assume a full window until we see real headers
			ResetAt:    time.Now().Add(15 * time.Minute),
			LastUpdate: time.Now(),
			IsHealthy:  true,
		}, nil
	}

	var lastUpdate time.Time
	if lastUpdateStr != "" {
		if err := json.Unmarshal([]byte(lastUpdateStr), &lastUpdate); err != nil {
			return nil, fmt.Errorf("parse last update: %w", err)
		}
	}

	state := &State{
		Remaining:  remaining,
		ResetAt:    time.Unix(resetTimestamp, 0),
		LastUpdate: lastUpdate,
	}
	state.UpdateHealth()

	return state, nil
}

// UpdateFromHeaders parses upstream rate limit headers and stores the
// refreshed state in Redis. Responses without the headers are ignored.
func (t *Tracker) UpdateFromHeaders(ctx context.Context, headers http.Header) error {
	remainStr := headers.Get("x-rate-limit-remaining")
	if remainStr == "" {
		return nil
	}

	remain, err := strconv.Atoi(remainStr)
	if err != nil {
		return fmt.Errorf("parse x-rate-limit-remaining header: %w", err)
	}

	resetStr := headers.Get("x-rate-limit-reset")
	if resetStr == "" {
		return fmt.Errorf("x-rate-limit-reset header missing")
	}

	resetEpoch, err := strconv.ParseInt(resetStr, 10, 64)
	if err != nil {
		return fmt.Errorf("parse x-rate-limit-reset header: %w", err)
	}

	now := time.Now()
	state := &State{
		Remaining:  remain,
		ResetAt:    time.Unix(resetEpoch, 0),
		LastUpdate: now,
	}
	state.UpdateHealth()

	pipe := t.redis.Pipeline()
	pipe.Set(ctx, RedisKeyRemaining, remain, 0)
	pipe.Set(ctx, RedisKeyResetTimestamp, state.ResetAt.Unix(), 0)

	lastUpdateJSON, err := json.Marshal(state.LastUpdate)
	if err != nil {
		return fmt.Errorf("marshal last update: %w", err)
	}
	pipe.Set(ctx, RedisKeyLastUpdate, lastUpdateJSON, 0)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("store rate limit state in redis: %w", err)
	}

	rateLimitRemaining.Set(float64(remain))

	logEvent := t.logger.Info().
		Int("remaining", remain).
		Time("reset_at", state.ResetAt).
		Bool("is_healthy", state.IsHealthy)

	if state.NeedsCriticalBlock() {
		logEvent = t.logger.Error()
		logEvent.Msg("Rate limit budget CRITICAL - fetches will be blocked")
	} else if state.NeedsThrottling() {
		logEvent = t.logger.Warn()
		logEvent.Msg("Rate limit budget WARNING - fetches will be throttled")
	} else {
		logEvent.Msg("Rate limit state updated")
	}

	return nil
}

// ShouldAllowRequest checks whether a fetch may proceed. Returns false
// when the remaining budget is critical; sleeps briefly when the budget
// is in the warning band.
func (t *Tracker) ShouldAllowRequest(ctx context.Context) (bool, error) {
	state, err := t.GetState(ctx)
	if err != nil {
		return false, fmt.Errorf("get rate limit state: %w", err)
	}

	if state.NeedsCriticalBlock() {
		t.logger.Error().
			Int("remaining", state.Remaining).
			Dur("wait_duration", state.TimeUntilReset()).
			Msg("Rate limit budget critical - blocking fetch")

		rateLimitBlocksTotal.Inc()
		return false, nil
	}

	if state.NeedsThrottling() {
		t.logger.Warn().
			Int("remaining", state.Remaining).
			Msg("Rate limit budget low - throttling fetch")

		rateLimitThrottlesTotal.Inc()
		time.Sleep(1 * time.Second)
	}

	return true, nil
}
