// Package retry implements failure classification and the backoff policy
// consulted by the pagination controller. The policy only decides; the
// controller owns the actual waiting so the wait stays cancellable with
// the rest of the run.
package retry

import (
	"math/rand"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus metrics for retry decisions.
var (
	retriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "timeline_retries_total",
		Help: "Total number of retry decisions by failure kind",
	}, []string{"kind"})

	retryBackoffSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "timeline_retry_backoff_seconds",
		Help:    "Backoff duration handed to the controller by failure kind",
		Buckets: []float64{0.5, 1, 2, 5, 10, 30, 60, 120},
	}, []string{"kind"})

	retryExhaustedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "timeline_retry_exhausted_total",
		Help: "Total number of times the attempt ceiling was exceeded by failure kind",
	}, []string{"kind"})
)

// Config holds per-kind retry tuning.
type Config struct {
	// MaxRetries is the number of retries after the initial attempt.
	// A page therefore sees at most MaxRetries+1 fetch attempts.
	MaxRetries int

	// InitialBackoff is the delay before the first retry.
	InitialBackoff time.Duration

	// MaxBackoff caps the exponential growth.
	MaxBackoff time.Duration

	// BackoffMultiplier is the exponential growth factor.
	BackoffMultiplier float64

	// Floor is the fixed minimum delay used for rate-limited failures
	// when upstream provides no reset hint.
	Floor time.Duration
}

// DefaultConfigs returns the per-kind retry table.
func DefaultConfigs() map[Kind]Config {
	return map[Kind]Config{
		KindTransientNetwork: {
			MaxRetries:        5,
			InitialBackoff:    1 * time.Second,
			MaxBackoff:        30 * time.Second,
			BackoffMultiplier: 2.0,
		},
		KindUpstreamError: {
			MaxRetries:        5,
			InitialBackoff:    1 * time.Second,
			MaxBackoff:        30 * time.Second,
			BackoffMultiplier: 2.0,
		},
		KindRateLimited: {
			// Rate limits are expected to clear, so the ceiling is
			// higher and the delay follows the upstream reset hint.
			MaxRetries:        10,
			InitialBackoff:    60 * time.Second,
			MaxBackoff:        15 * time.Minute,
			BackoffMultiplier: 1.0,
			Floor:             60 * time.Second,
		},
		KindMalformedResponse: {
			// One retry covers a transient upstream glitch; a second
			// malformed payload is a data-integrity problem.
			MaxRetries:        1,
			InitialBackoff:    1 * time.Second,
			MaxBackoff:        1 * time.Second,
			BackoffMultiplier: 1.0,
		},
	}
}

// Decision is the policy's answer for one failed attempt.
type Decision struct {
	Retry bool
	Delay time.Duration
}

// Policy decides whether a classified failure should be retried and how
// long to wait. Configs may be replaced wholesale for testing or tuning.
type Policy struct {
	Configs map[Kind]Config
}

// NewPolicy returns a policy with the default per-kind table.
func NewPolicy() *Policy {
	return &Policy{Configs: DefaultConfigs()}
}

// Decide evaluates a failure of the given kind after `attempt` failed
// attempts for the current page (attempt starts at 1). hint is an
// upstream-provided reset duration, honored for rate-limited failures.
func (p *Policy) Decide(kind Kind, attempt int, hint time.Duration) Decision {
	if !kind.Retryable() {
		return Decision{}
	}

	cfg, ok := p.Configs[kind]
	if !ok {
		cfg = DefaultConfigs()[KindTransientNetwork]
	}

	if attempt > cfg.MaxRetries {
		retryExhaustedTotal.WithLabelValues(string(kind)).Inc()
		return Decision{}
	}

	delay := p.delayFor(kind, cfg, attempt, hint)

	retriesTotal.WithLabelValues(string(kind)).Inc()
	retryBackoffSeconds.WithLabelValues(string(kind)).Observe(delay.Seconds())

	return Decision{Retry: true, Delay: delay}
}

func (p *Policy) delayFor(kind Kind, cfg Config, attempt int, hint time.Duration) time.Duration {
	var base time.Duration
	if kind == KindRateLimited {
		base = cfg.Floor
		if hint > 0 {
			base = hint
		}
	} else {
		base = cfg.InitialBackoff
		for i := 1; i < attempt; i++ {
			base = time.Duration(float64(base) * cfg.BackoffMultiplier)
			if base > cfg.MaxBackoff {
				base = cfg.MaxBackoff
				break
			}
		}
		if base > cfg.MaxBackoff {
			base = cfg.MaxBackoff
		}
	}

	// ±20% jitter to avoid synchronized hammering across targets.
	return time.Duration(float64(base) * (0.8 + rand.Float64()*0.4))
}
