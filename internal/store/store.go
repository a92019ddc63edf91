package store

import (
	"errors"
	"time"
)

var ErrNotFound = errors.New("not found")

// Instants are stored as unix milliseconds so equality checks in WHERE
// clauses are exact.
func toMillis(t time.Time) int64 {
	return t.UnixMilli()
}

func fromMillis(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
