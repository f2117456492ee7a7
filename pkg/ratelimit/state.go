// Package ratelimit tracks the upstream request budget exposed through
// the x-rate-limit-remaining and x-rate-limit-reset response headers and
// gates fetches before the budget runs dry. State lives in Redis so
// concurrent collector processes sharing one session stay coordinated.
package ratelimit

import (
	"time"
)

// Redis keys for rate limit state storage.
const (
	RedisKeyRemaining      = "timeline:rate_limit:remaining"
	RedisKeyResetTimestamp = "timeline:rate_limit:reset_timestamp"
	RedisKeyLastUpdate     = "timeline:rate_limit:last_update"
)

// Thresholds for rate limit decisions. The UserTweets endpoint budget is
// small (on the order of 50 requests per window), so the bands are tight.
const (
	// ThresholdCritical blocks all requests when the remaining budget
	// falls below this value.
	ThresholdCritical = 2

	// ThresholdWarning applies throttling when the remaining budget
	// falls below this value.
	ThresholdWarning = 10

	// ThresholdHealthy indicates normal operation.
	ThresholdHealthy = 25
)

// State is the current upstream rate limit window, shared across
// collector instances via Redis.
type State struct {
	// Remaining is the number of requests left in the current window,
	// from the x-rate-limit-remaining header.
	Remaining int `json:"remaining"`

	// ResetAt is when the window resets, from the x-rate-limit-reset
	// header (unix epoch seconds).
	ResetAt time.Time `json:"reset_at"`

	// LastUpdate is when this state was last refreshed from headers.
	LastUpdate time.Time `json:"last_update"`

	// IsHealthy is true when Remaining >= ThresholdHealthy.
	IsHealthy bool `json:"is_healthy"`
}

// IsStale returns true if the state is older than maxAge.
func (s *State) IsStale(maxAge time.Duration) bool {
	return time.Since(s.LastUpdate) > maxAge
}

// NeedsCriticalBlock returns true if requests should be blocked until
// the window resets.
func (s *State) NeedsCriticalBlock() bool {
	return s.Remaining < ThresholdCritical
}

// NeedsThrottling returns true if requests should be slowed down.
func (s *State) NeedsThrottling() bool {
	return s.Remaining < ThresholdWarning && !s.NeedsCriticalBlock()
}

// TimeUntilReset returns the duration until the window resets, or 0 if
// the reset time has passed.
func (s *State) TimeUntilReset() time.Duration {
	d := time.Until(s.ResetAt)
	if d < 0 {
		return 0
	}
	return d
}

// UpdateHealth recomputes IsHealthy from Remaining.
func (s *State) UpdateHealth() {
	s.IsHealthy = s.Remaining >= ThresholdHealthy
}
