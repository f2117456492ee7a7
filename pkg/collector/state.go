package collector

// PaginationState is the per-run cursor bookkeeping. It is created at
// run start, mutated only by the owning Controller, and discarded at run
// end; there is no cross-run persistence.
type PaginationState struct {
	// Cursor is the opaque token for the next fetch; empty means start.
	Cursor string

	// LastCursor is the cursor used for the previous page, kept for
	// loop detection. Cursor values are only ever echoed, never parsed.
	LastCursor string

	PagesFetched int
	PostsEmitted int

	// emptyPages counts consecutive pages that produced zero new
	// records; two in a row break the loop defensively.
	emptyPages int
}

// Advance moves the state to the next cursor after a successful page.
func (s *PaginationState) Advance(next string) {
	s.LastCursor = s.Cursor
	s.Cursor = next
}

// Exhausted reports whether the cursor returned by the page signals the
// end of the timeline: upstream sent no cursor, or re-sent one already
// used.
func (s *PaginationState) Exhausted(next string) bool {
	return next == "" || next == s.Cursor || next == s.LastCursor
}

// RecordProgress tracks new-record yield per page and reports whether
// the defensive loop-break threshold was reached.
func (s *PaginationState) RecordProgress(newRecords int) (loopDetected bool) {
	if newRecords == 0 {
		s.emptyPages++
		return s.emptyPages >= 2
	}
	s.emptyPages = 0
	return false
}
