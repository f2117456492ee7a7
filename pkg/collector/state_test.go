package collector

import "testing"

func TestPaginationState_Advance(t *testing.T) {
	s := &PaginationState{}

	s.Advance("c1")
	if s.Cursor != "c1" || s.LastCursor != "" {
		t.Errorf("after first advance: cursor=%q last=%q", s.Cursor, s.LastCursor)
	}

	s.Advance("c2")
	if s.Cursor != "c2" || s.LastCursor != "c1" {
		t.Errorf("after second advance: cursor=%q last=%q", s.Cursor, s.LastCursor)
	}
}

func TestPaginationState_Exhausted(t *testing.T) {
	tests := []struct {
		name string
		s    PaginationState
		next string
		want bool
	}{
		{"empty cursor", PaginationState{Cursor: "c1"}, "", true},
		{"same as current", PaginationState{Cursor: "c1"}, "c1", true},
		{"same as previous", PaginationState{Cursor: "c2", LastCursor: "c1"}, "c1", true},
		{"fresh cursor", PaginationState{Cursor: "c2", LastCursor: "c1"}, "c3", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.s.Exhausted(tt.next); got != tt.want {
				t.Errorf("Exhausted(%q) = %v, want %v", tt.next, got, tt.want)
			}
		})
	}
}

func TestPaginationState_RecordProgress(t *testing.T) {
	s := &PaginationState{}

	if s.RecordProgress(3) {
		t.Error("page with new records must not trigger loop break")
	}
	if s.RecordProgress(0) {
		t.Error("single empty page must not trigger loop break")
	}
	if !s.RecordProgress(0) {
		t.Error("two consecutive empty pages must trigger loop break")
	}

	// A productive page resets the streak.
	s = &PaginationState{}
	s.RecordProgress(0)
	s.RecordProgress(1)
	if s.RecordProgress(0) {
		t.Error("streak must reset after a productive page")
	}
}
