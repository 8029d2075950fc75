package gate

import (
	"errors"
	"fmt"
)

// ErrBusy is returned when Run is called on a processor that is already running
var ErrBusy = errors.New("gate processor is already running")

// ConfigError reports invalid configuration. It is always raised before any
// buffer is read or any I/O is attempted.
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("invalid gate config: %s %s", e.Field, e.Reason)
}

// DataError reports input that cannot be gated: empty buffers, sample counts
// that do not fit the channel layout, or a stream shorter or longer than it
// declared.
type DataError struct {
	Reason string
}

func (e *DataError) Error() string {
	return "invalid gate input: " + e.Reason
}

// IOError wraps a read or write failure from a Source or Sink. The cause is
// passed through untouched.
type IOError struct {
	Op  string
	Err error
}

func (e *IOError) Error() string {
	return fmt.Sprintf("gate %s: %v", e.Op, e.Err)
}

func (e *IOError) Unwrap() error {
	return e.Err
}
