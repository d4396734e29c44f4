package ingest

import (
	"errors"
	"fmt"
)

// ErrNoData reports that a poll interval elapsed without a complete record.
// It is not a failure.
var ErrNoData = errors.New("no data within poll interval")

var errMissingPrefix = errors.New("missing " + RecordPrefix + " prefix")

// ParseError is a malformed transport record.
type ParseError struct {
	Line string
	Err  error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse record %q: %v", e.Line, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// RangeError is a reading outside [0, Max].
type RangeError struct {
	Value int
	Max   int
}

func (e *RangeError) Error() string {
	return fmt.Sprintf("reading %d outside [0, %d]", e.Value, e.Max)
}

// TransportError is an unavailable or broken hardware link.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// ConfigurationError means no usable source could be set up at startup.
type ConfigurationError struct {
	Reason string
	Err    error
}

func (e *ConfigurationError) Error() string {
	if e.Err == nil {
		return "configuration: " + e.Reason
	}
	return fmt.Sprintf("configuration: %s: %v", e.Reason, e.Err)
}

func (e *ConfigurationError) Unwrap() error { return e.Err }
