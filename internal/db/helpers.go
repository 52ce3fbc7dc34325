package db

import "time"

// nilIfEmpty returns nil for empty strings so optional columns store NULL
// instead of "".
func nilIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// nilIfZeroTime returns nil for zero times so the database DEFAULT applies.
func nilIfZeroTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t
}
