package pagination

import (
	"fmt"
	"time"
)

// EncodeCursor renders a cursor for the wire. A nil cursor is "".
func EncodeCursor(c *time.Time) string {
	if c == nil {
		return ""
	}
	return c.UTC().Format(time.RFC3339Nano)
}

func DecodeCursor(s string) (*time.Time, error) {
	if s == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return nil, fmt.Errorf("invalid cursor %q: %w", s, err)
	}
	return &t, nil
}
