// Package testutil provides scripted upstream doubles for collector and
// transport tests.
package testutil

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/davidBerries/twitter-timeline/pkg/collector"
)

// FetchStep is one scripted response of a ScriptedFetcher.
type FetchStep struct {
	Body []byte
	Hint time.Duration
	Err  error
}

// ScriptedFetcher replays a fixed sequence of page results. The last
// step repeats forever, which makes "upstream always fails" scenarios
// trivial to script.
type ScriptedFetcher struct {
	mu    sync.Mutex
	steps []FetchStep

	// Cursors records the cursor of every FetchPage call, in order.
	Cursors []string
}

// NewScriptedFetcher creates a fetcher replaying the given steps.
func NewScriptedFetcher(steps ...FetchStep) *ScriptedFetcher {
	return &ScriptedFetcher{steps: steps}
}

// FetchPage implements collector.Fetcher.
func (f *ScriptedFetcher) FetchPage(_ context.Context, _ string, cursor string) (*collector.RawPage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.Cursors = append(f.Cursors, cursor)

	if len(f.steps) == 0 {
		return nil, fmt.Errorf("scripted fetcher exhausted")
	}
	step := f.steps[0]
	if len(f.steps) > 1 {
		f.steps = f.steps[1:]
	}

	if step.Err != nil {
		return nil, step.Err
	}
	return &collector.RawPage{Body: step.Body, RateLimitHint: step.Hint}, nil
}

// Calls returns how many times FetchPage was invoked.
func (f *ScriptedFetcher) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.Cursors)
}
