package collector

import (
	"fmt"

	"github.com/davidBerries/twitter-timeline/pkg/retry"
)

// RunError is the terminal error of a collection run. Records emitted
// before the failure remain valid; PartialCount reports how many.
type RunError struct {
	Kind         retry.Kind
	Message      string
	PartialCount int
	Err          error
}

// Error implements the error interface.
func (e *RunError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("collection aborted (%s, %d records kept): %s: %v",
			e.Kind, e.PartialCount, e.Message, e.Err)
	}
	return fmt.Sprintf("collection aborted (%s, %d records kept): %s",
		e.Kind, e.PartialCount, e.Message)
}

// Unwrap implements error unwrapping for errors.Is/As.
func (e *RunError) Unwrap() error {
	return e.Err
}
