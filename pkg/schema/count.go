package schema

import (
	"bytes"
	"fmt"
	"strconv"
)

// Count is an engagement counter that distinguishes "upstream reported
// zero" from "upstream omitted the field". The zero value is null.
type Count struct {
	Value int64
	Valid bool
}

// NewCount returns a valid Count.
func NewCount(v int64) Count {
	return Count{Value: v, Valid: true}
}

// NullCount returns the absent counter.
func NullCount() Count {
	return Count{}
}

// MarshalJSON renders null when the counter is absent.
func (c Count) MarshalJSON() ([]byte, error) {
	if !c.Valid {
		return []byte("null"), nil
	}
	return []byte(strconv.FormatInt(c.Value, 10)), nil
}

// UnmarshalJSON accepts a JSON number, a quoted decimal string (upstream
// ships view counts as strings), or null.
func (c *Count) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*c = Count{}
		return nil
	}
	s := string(data)
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		s = s[1 : len(s)-1]
	}
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return fmt.Errorf("parse count %q: %w", string(data), err)
	}
	*c = Count{Value: v, Valid: true}
	return nil
}

// String implements fmt.Stringer; absent counters render as "null".
func (c Count) String() string {
	if !c.Valid {
		return "null"
	}
	return strconv.FormatInt(c.Value, 10)
}
