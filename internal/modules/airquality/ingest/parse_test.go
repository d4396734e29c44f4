package ingest

import (
	"errors"
	"strconv"
	"testing"
)

func TestParseLine(t *testing.T) {
	tests := []struct {
		name    string
		line    string
		want    int
		wantErr bool
	}{
		{name: "plain", line: "MQ:512", want: 512},
		{name: "trailing newline", line: "MQ:300\r\n", want: 300},
		{name: "inner spaces", line: "  MQ: 42 ", want: 42},
		{name: "zero", line: "MQ:0", want: 0},
		{name: "negative parses", line: "MQ:-5", want: -5},
		{name: "out of range parses", line: "MQ:5000", want: 5000},
		{name: "not a number", line: "MQ:abc", wantErr: true},
		{name: "empty value", line: "MQ:", wantErr: true},
		{name: "missing prefix", line: "512", wantErr: true},
		{name: "lowercase prefix", line: "mq:512", wantErr: true},
		{name: "float", line: "MQ:1.5", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseLine(tt.line)
			if tt.wantErr {
				var pe *ParseError
				if !errors.As(err, &pe) {
					t.Fatalf("ParseLine(%q) err = %v, want *ParseError", tt.line, err)
				}
				if pe.Line != tt.line {
					t.Errorf("ParseError.Line = %q, want %q", pe.Line, tt.line)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseLine(%q): %v", tt.line, err)
			}
			if got != tt.want {
				t.Errorf("ParseLine(%q) = %d, want %d", tt.line, got, tt.want)
			}
		})
	}
}

func TestParseError_UnwrapsCause(t *testing.T) {
	_, err := ParseLine("MQ:xyz")
	if !errors.Is(err, strconv.ErrSyntax) {
		t.Fatalf("err = %v, want wrapping strconv.ErrSyntax", err)
	}
}
