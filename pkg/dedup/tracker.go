// Package dedup tracks post identifiers already emitted within one
// collection run so duplicates appearing on later pages are dropped.
package dedup

// Tracker is a per-run set of seen identifiers. It is owned by exactly
// one controller and is not safe for concurrent use; cross-target runs
// each get their own Tracker.
type Tracker struct {
	seen map[string]struct{}
}

// NewTracker creates an empty tracker. Memory is bounded by the run's
// post limit; there is no eviction.
func NewTracker() *Tracker {
	return &Tracker{seen: make(map[string]struct{})}
}

// Accept records id and reports whether it was seen for the first time.
// Every subsequent call with the same id returns false.
func (t *Tracker) Accept(id string) bool {
	if _, ok := t.seen[id]; ok {
		return false
	}
	t.seen[id] = struct{}{}
	return true
}

// Seen reports whether id was already accepted, without recording it.
func (t *Tracker) Seen(id string) bool {
	_, ok := t.seen[id]
	return ok
}

// Len returns the number of distinct identifiers accepted so far.
func (t *Tracker) Len() int {
	return len(t.seen)
}
