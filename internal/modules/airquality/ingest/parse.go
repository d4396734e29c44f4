package ingest

import (
	"strconv"
	"strings"
)

// RecordPrefix starts every hardware record, e.g. "MQ:512".
const RecordPrefix = "MQ:"

// ParseLine extracts the integer from one "MQ:<integer>" record. Range
// checks are left to the ingestor.
func ParseLine(line string) (int, error) {
	s := strings.TrimSpace(line)
	rest, ok := strings.CutPrefix(s, RecordPrefix)
	if !ok {
		return 0, &ParseError{Line: line, Err: errMissingPrefix}
	}
	v, err := strconv.Atoi(strings.TrimSpace(rest))
	if err != nil {
		return 0, &ParseError{Line: line, Err: err}
	}
	return v, nil
}
