package store

import (
	"errors"
	"fmt"
)

// ErrNotFound is returned when no record exists for a key.
var ErrNotFound = errors.New("store: not found")

// Record kinds named by CorruptionError.
const (
	RecordSession    = "session"
	RecordEvent      = "event"
	RecordStatistics = "statistics"
)

// CorruptionError reports a cached record that failed validation on load.
// The record must be rebuilt from the remote log; it is never repaired in place.
type CorruptionError struct {
	Record string // RecordSession, RecordEvent or RecordStatistics
	Key    string
	Reason string
	Err    error
}

func (e *CorruptionError) Error() string {
	msg := fmt.Sprintf("corrupt %s record %q: %s", e.Record, e.Key, e.Reason)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *CorruptionError) Unwrap() error {
	return e.Err
}

// IsCorruption reports whether err is or wraps a *CorruptionError.
func IsCorruption(err error) bool {
	var ce *CorruptionError
	return errors.As(err, &ce)
}
