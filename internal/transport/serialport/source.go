package serialport

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.bug.st/serial"

	"streetlight-server/internal/modules/airquality/ingest"
)

const maxLineLength = 256

// Port is the subset of serial.Port the source needs.
type Port interface {
	Read(p []byte) (int, error)
	SetReadTimeout(t time.Duration) error
	ResetInputBuffer() error
	Close() error
}

// OpenFunc opens a named device at baud.
type OpenFunc func(name string, baud int) (Port, error)

func openSystemPort(name string, baud int) (Port, error) {
	return serial.Open(name, &serial.Mode{BaudRate: baud})
}

type Options struct {
	// Port is an explicit device path. Empty means discover on every open.
	Port         string
	Baud         int
	PollInterval time.Duration
	// Settle is the pause after opening while the board resets.
	Settle time.Duration
	Lister Lister
	Open   OpenFunc
	Logger *slog.Logger
}

// Source implements a poll-bounded line reader over a serial port. It is
// used by one producer goroutine.
type Source struct {
	opts Options

	mu      sync.Mutex
	port    Port
	name    string
	pending []byte
	buf     []byte
}

func New(opts Options) *Source {
	if opts.Baud <= 0 {
		opts.Baud = 9600
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = 100 * time.Millisecond
	}
	if opts.Settle < 0 {
		opts.Settle = 0
	}
	if opts.Lister == nil {
		opts.Lister = SystemPorts
	}
	if opts.Open == nil {
		opts.Open = openSystemPort
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Source{opts: opts, buf: make([]byte, 64)}
}

// Resolve returns the device the next Open would use. A missing device is
// reported as *ingest.ConfigurationError.
func (s *Source) Resolve() (string, error) {
	if s.opts.Port != "" {
		return s.opts.Port, nil
	}
	ports, err := s.opts.Lister()
	if err != nil {
		return "", &ingest.ConfigurationError{Reason: "serial port discovery failed", Err: err}
	}
	p, ok := Select(ports)
	if !ok {
		return "", &ingest.ConfigurationError{Reason: "no serial port found"}
	}
	return p.Name, nil
}

func (s *Source) Name() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.name == "" {
		return "serial"
	}
	return "serial:" + s.name
}

func (s *Source) Open(ctx context.Context) error {
	name, err := s.Resolve()
	if err != nil {
		return err
	}
	port, err := s.opts.Open(name, s.opts.Baud)
	if err != nil {
		return &ingest.TransportError{Op: "open " + name, Err: err}
	}
	if err := port.SetReadTimeout(s.opts.PollInterval); err != nil {
		_ = port.Close()
		return &ingest.TransportError{Op: "configure " + name, Err: err}
	}

	if s.opts.Settle > 0 {
		t := time.NewTimer(s.opts.Settle)
		select {
		case <-ctx.Done():
			t.Stop()
			_ = port.Close()
			return ctx.Err()
		case <-t.C:
		}
	}
	if err := port.ResetInputBuffer(); err != nil {
		s.opts.Logger.Debug("serial input reset failed", "port", name, "error", err)
	}

	s.mu.Lock()
	s.port = port
	s.name = name
	s.pending = s.pending[:0]
	s.mu.Unlock()

	s.opts.Logger.Info("serial port opened", "port", name, "baud", s.opts.Baud)
	return nil
}

// ReadLine returns the next complete line without its terminator. It blocks
// for at most about one poll interval and returns ingest.ErrNoData when no
// full line arrived in that time.
func (s *Source) ReadLine(ctx context.Context) (string, error) {
	s.mu.Lock()
	port := s.port
	s.mu.Unlock()
	if port == nil {
		return "", &ingest.TransportError{Op: "read", Err: errors.New("port not open")}
	}

	deadline := time.Now().Add(s.opts.PollInterval)
	for {
		if line, ok := s.takeLine(); ok {
			return line, nil
		}
		if err := ctx.Err(); err != nil {
			return "", err
		}

		n, err := port.Read(s.buf)
		if err != nil {
			return "", &ingest.TransportError{Op: "read " + s.name, Err: err}
		}
		if n == 0 {
			return "", ingest.ErrNoData
		}
		s.pending = append(s.pending, s.buf[:n]...)

		if time.Now().After(deadline) {
			if line, ok := s.takeLine(); ok {
				return line, nil
			}
			return "", ingest.ErrNoData
		}
	}
}

// takeLine pops one line from the pending buffer. An over-long fragment is
// returned as-is so the parser rejects it instead of growing forever.
func (s *Source) takeLine() (string, bool) {
	if i := bytes.IndexByte(s.pending, '\n'); i >= 0 {
		line := string(bytes.TrimRight(s.pending[:i], "\r"))
		s.pending = append(s.pending[:0], s.pending[i+1:]...)
		return line, true
	}
	if len(s.pending) > maxLineLength {
		line := string(s.pending)
		s.pending = s.pending[:0]
		return line, true
	}
	return "", false
}

func (s *Source) Close() error {
	s.mu.Lock()
	port := s.port
	s.port = nil
	s.mu.Unlock()
	if port == nil {
		return nil
	}
	if err := port.Close(); err != nil {
		return fmt.Errorf("close %s: %w", s.name, err)
	}
	return nil
}
