// Package transport implements the Twitter GraphQL upstream client used
// to fetch timeline pages and resolve screen names to user ids.
package transport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/tidwall/gjson"

	"github.com/davidBerries/twitter-timeline/pkg/collector"
	"github.com/davidBerries/twitter-timeline/pkg/ratelimit"
	"github.com/davidBerries/twitter-timeline/pkg/retry"
)

// Prometheus metrics for upstream requests.
var (
	upstreamRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "timeline_upstream_requests_total",
		Help: "Total upstream requests by endpoint and status",
	}, []string{"endpoint", "status"})

	upstreamRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "timeline_upstream_request_duration_seconds",
		Help:    "Upstream request duration in seconds by endpoint",
		Buckets: []float64{0.1, 0.5, 1, 2, 5, 10},
	}, []string{"endpoint"})
)

// GraphQL operation ids change with Twitter frontend deploys. These are
// the last known working defaults; override via Config when they rotate.
const (
	defaultUserTweetsQueryID       = "V1ze5q3ijDS1VeLwLY0m7g"
	defaultUserByScreenNameQueryID = "G3KGOASz96M-Qu0nwmGXNg"
)

// Config holds the upstream client configuration.
type Config struct {
	// BaseURL is the API origin (default: https://twitter.com/i/api).
	BaseURL string

	// BearerToken authorizes GraphQL requests (REQUIRED).
	BearerToken string

	// Cookie is the full session cookie string. The ct0 value inside it
	// doubles as the CSRF token.
	Cookie string

	// UserAgent identifies the client to upstream.
	UserAgent string

	// UserTweetsQueryID and UserByScreenNameQueryID are the GraphQL
	// operation ids embedded in request paths.
	UserTweetsQueryID       string
	UserByScreenNameQueryID string

	// PageSize is the requested entries per page.
	PageSize int

	// Timeout bounds a single HTTP request.
	Timeout time.Duration

	// RateLimiter, when set, gates requests on shared budget state and
	// records the budget headers of every response.
	RateLimiter *ratelimit.Tracker
}

// DefaultConfig returns a safe default configuration.
func DefaultConfig(bearerToken string) Config {
	return Config{
		BaseURL:                 "https://twitter.com/i/api",
		BearerToken:             bearerToken,
		UserAgent:               "timeline-collector/1.0",
		UserTweetsQueryID:       defaultUserTweetsQueryID,
		UserByScreenNameQueryID: defaultUserByScreenNameQueryID,
		PageSize:                20,
		Timeout:                 15 * time.Second,
	}
}

// Client fetches timeline pages from the Twitter GraphQL API. It
// implements the page-fetch capability consumed by the collector and
// classifies every failure into a retry kind.
type Client struct {
	httpClient  *http.Client
	config      Config
	csrfToken   string
	rateLimiter *ratelimit.Tracker
	logger      zerolog.Logger
}

// New creates a new upstream client.
func New(cfg Config) (*Client, error) {
	if cfg.BearerToken == "" {
		return nil, fmt.Errorf("bearer token is required")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://twitter.com/i/api"
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.UserTweetsQueryID == "" {
		cfg.UserTweetsQueryID = defaultUserTweetsQueryID
	}
	if cfg.UserByScreenNameQueryID == "" {
		cfg.UserByScreenNameQueryID = defaultUserByScreenNameQueryID
	}
	if cfg.PageSize <= 0 {
		cfg.PageSize = 20
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}

	logger := log.With().Str("component", "transport").Logger()

	return &Client{
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		config:      cfg,
		csrfToken:   csrfFromCookie(cfg.Cookie),
		rateLimiter: cfg.RateLimiter,
		logger:      logger,
	}, nil
}

// csrfFromCookie extracts the ct0 value. Twitter requires it mirrored
// into the x-csrf-token header.
func csrfFromCookie(cookie string) string {
	for _, p := range strings.Split(cookie, ";") {
		parts := strings.SplitN(p, "=", 2)
		if strings.TrimSpace(parts[0]) == "ct0" && len(parts) == 2 {
			return strings.TrimSpace(parts[1])
		}
	}
	return ""
}

// FetchPage retrieves one timeline page for the given user id. The
// cursor is passed through opaque; an empty cursor fetches the first
// page. The raw GraphQL body is returned unparsed.
func (c *Client) FetchPage(ctx context.Context, targetID, cursor string) (*collector.RawPage, error) {
	variables := map[string]interface{}{
		"userId":                                 targetID,
		"count":                                  c.config.PageSize,
		"includePromotedContent":                 true,
		"withQuickPromoteEligibilityTweetFields": true,
		"withVoice":                              true,
		"withV2Timeline":                         true,
	}
	if cursor != "" {
		variables["cursor"] = cursor
	}

	endpoint := fmt.Sprintf("/graphql/%s/UserTweets", c.config.UserTweetsQueryID)
	body, hint, err := c.doGraphQL(ctx, endpoint, variables, userTweetsFeatures, map[string]interface{}{
		"withArticleRichContentState": false,
	})
	if err != nil {
		return nil, err
	}

	return &collector.RawPage{Body: body, RateLimitHint: hint}, nil
}

// ResolveUser resolves a screen name to the user's rest_id.
func (c *Client) ResolveUser(ctx context.Context, screenName string) (string, error) {
	variables := map[string]interface{}{
		"screen_name":              screenName,
		"withSafetyModeUserFields": true,
	}

	endpoint := fmt.Sprintf("/graphql/%s/UserByScreenName", c.config.UserByScreenNameQueryID)
	body, _, err := c.doGraphQL(ctx, endpoint, variables, userByScreenNameFeatures, nil)
	if err != nil {
		return "", err
	}

	restID := gjson.GetBytes(body, "data.user.result.rest_id").String()
	if restID == "" {
		return "", &retry.FailureError{
			Kind:    retry.KindMalformedResponse,
			Message: fmt.Sprintf("no rest_id for screen name %q", screenName),
		}
	}
	return restID, nil
}

// doGraphQL executes a single GET against a GraphQL endpoint and returns
// the response body plus any rate limit spacing hint.
func (c *Client) doGraphQL(ctx context.Context, endpoint string, variables, features, fieldToggles map[string]interface{}) ([]byte, time.Duration, error) {
	operation := endpoint[strings.LastIndex(endpoint, "/")+1:]

	startTime := time.Now()
	defer func() {
		upstreamRequestDuration.WithLabelValues(operation).Observe(time.Since(startTime).Seconds())
	}()

	if c.rateLimiter != nil {
		allowed, err := c.rateLimiter.ShouldAllowRequest(ctx)
		if err != nil {
			c.logger.Warn().Err(err).Msg("Rate limit check failed, proceeding")
		} else if !allowed {
			upstreamRequestsTotal.WithLabelValues(operation, "rate_limited").Inc()
			return nil, 0, &retry.FailureError{
				Kind:    retry.KindRateLimited,
				Message: "request blocked: rate limit budget critical",
				Hint:    c.blockHint(ctx),
			}
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.config.BaseURL+endpoint, nil)
	if err != nil {
		return nil, 0, fmt.Errorf("create request: %w", err)
	}

	q := req.URL.Query()
	if variables != nil {
		b, _ := json.Marshal(variables)
		q.Add("variables", string(b))
	}
	if features != nil {
		b, _ := json.Marshal(features)
		q.Add("features", string(b))
	}
	if fieldToggles != nil {
		b, _ := json.Marshal(fieldToggles)
		q.Add("fieldToggles", string(b))
	}
	req.URL.RawQuery = q.Encode()

	req.Header.Set("Authorization", "Bearer "+c.config.BearerToken)
	req.Header.Set("User-Agent", c.config.UserAgent)
	req.Header.Set("Accept", "application/json")
	if c.config.Cookie != "" {
		req.Header.Set("Cookie", c.config.Cookie)
	}
	if c.csrfToken != "" {
		req.Header.Set("X-Csrf-Token", c.csrfToken)
	}

	c.logger.Debug().
		Str("endpoint", operation).
		Msg("Executing upstream request")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		upstreamRequestsTotal.WithLabelValues(operation, "network_error").Inc()
		return nil, 0, classifyNetworkError(err)
	}
	defer resp.Body.Close()

	if c.rateLimiter != nil {
		if err := c.rateLimiter.UpdateFromHeaders(ctx, resp.Header); err != nil {
			c.logger.Warn().Err(err).Msg("Failed to update rate limit from headers")
		}
	}

	upstreamRequestsTotal.WithLabelValues(operation, strconv.Itoa(resp.StatusCode)).Inc()

	if resp.StatusCode != http.StatusOK {
		ferr := classifyStatus(resp)
		c.logger.Warn().
			Str("endpoint", operation).
			Int("status", resp.StatusCode).
			Str("kind", string(ferr.Kind)).
			Msg("Upstream request error")
		return nil, 0, ferr
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, 0, &retry.FailureError{
			Kind:    retry.KindTransientNetwork,
			Message: "read response body",
			Err:     err,
		}
	}

	return body, spacingHint(resp.Header), nil
}

// blockHint turns the shared budget's reset time into a retry hint so the
// policy can wait out the window instead of using the floor.
func (c *Client) blockHint(ctx context.Context) time.Duration {
	state, err := c.rateLimiter.GetState(ctx)
	if err != nil {
		return 0
	}
	return state.TimeUntilReset()
}

// classifyNetworkError maps transport-level failures. Context
// cancellation passes through for the collector to recognize.
func classifyNetworkError(err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return &retry.FailureError{
			Kind:    retry.KindTransientNetwork,
			Message: "request timeout",
			Err:     err,
		}
	}
	return &retry.FailureError{
		Kind:    retry.KindTransientNetwork,
		Message: "network error",
		Err:     err,
	}
}

// classifyStatus maps non-200 responses to failure kinds. 429 carries a
// wait hint derived from the reset header when present.
func classifyStatus(resp *http.Response) *retry.FailureError {
	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return &retry.FailureError{
			Kind:       retry.KindRateLimited,
			Message:    resp.Status,
			StatusCode: resp.StatusCode,
			Hint:       spacingHint(resp.Header),
		}
	case resp.StatusCode >= 500:
		return &retry.FailureError{
			Kind:       retry.KindUpstreamError,
			Message:    resp.Status,
			StatusCode: resp.StatusCode,
		}
	default:
		return &retry.FailureError{
			Kind:       retry.KindClientError,
			Message:    resp.Status,
			StatusCode: resp.StatusCode,
		}
	}
}

// spacingHint derives a wait duration from the x-rate-limit-reset header
// (epoch seconds). Zero means no hint.
func spacingHint(headers http.Header) time.Duration {
	resetStr := headers.Get("x-rate-limit-reset")
	if resetStr == "" {
		return 0
	}
	epoch, err := strconv.ParseInt(resetStr, 10, 64)
	if err != nil {
		return 0
	}
	until := time.Until(time.Unix(epoch, 0))
	if until < 0 {
		return 0
	}
	return until
}

// Feature flag sets the GraphQL endpoints require. Upstream rejects
// requests missing expected flags, so these mirror the web client.
var userTweetsFeatures = map[string]interface{}{
	"responsive_web_graphql_exclude_directive_enabled":                        true,
	"verified_phone_label_enabled":                                            false,
	"creator_subscriptions_tweet_preview_api_enabled":                         true,
	"responsive_web_graphql_timeline_navigation_enabled":                      true,
	"responsive_web_graphql_skip_user_profile_image_extensions_enabled":       false,
	"communities_web_enable_tweet_community_results_fetch":                    true,
	"c9s_tweet_anatomy_moderator_badge_enabled":                               true,
	"tweetypie_unmention_optimization_enabled":                                true,
	"responsive_web_edit_tweet_api_enabled":                                   true,
	"graphql_is_translatable_rweb_tweet_is_translatable_enabled":              true,
	"view_counts_everywhere_api_enabled":                                      true,
	"longform_notetweets_consumption_enabled":                                 true,
	"responsive_web_twitter_article_tweet_consumption_enabled":                true,
	"tweet_awards_web_tipping_enabled":                                        false,
	"freedom_of_speech_not_reach_fetch_enabled":                               true,
	"standardized_nudges_misinfo":                                             true,
	"tweet_with_visibility_results_prefer_gql_limited_actions_policy_enabled": true,
	"rweb_video_timestamps_enabled":                                           true,
	"longform_notetweets_rich_text_read_enabled":                              true,
	"longform_notetweets_inline_media_enabled":                                true,
	"responsive_web_enhance_cards_enabled":                                    false,
}

var userByScreenNameFeatures = map[string]interface{}{
	"hidden_profile_likes_enabled":                                      true,
	"hidden_profile_subscriptions_enabled":                              true,
	"responsive_web_graphql_exclude_directive_enabled":                  true,
	"verified_phone_label_enabled":                                      false,
	"subscriptions_verification_info_is_identity_verified_enabled":      true,
	"subscriptions_verification_info_verified_since_enabled":            true,
	"highlights_tweets_tab_ui_enabled":                                  true,
	"responsive_web_twitter_article_notes_tab_enabled":                  true,
	"creator_subscriptions_tweet_preview_api_enabled":                   true,
	"responsive_web_graphql_skip_user_profile_image_extensions_enabled": false,
	"responsive_web_graphql_timeline_navigation_enabled":                true,
}
