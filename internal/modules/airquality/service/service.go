// Package service runs the single producer task that feeds the state store,
// from either the waveform generator or a hardware source, and fans each
// published snapshot out to the optional sinks.
package service

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"streetlight-server/internal/modules/airquality/generator"
	"streetlight-server/internal/modules/airquality/ingest"
	"streetlight-server/internal/modules/airquality/store"
	"streetlight-server/internal/modules/airquality/types"
)

const (
	SourceSynthetic = "synthetic"
	SourceNone      = "none"
)

type Options struct {
	SampleInterval   time.Duration
	ReconnectBackoff time.Duration
	ReconnectRetry   time.Duration
	Sinks            []Sink
	Logger           *slog.Logger
	Now              func() time.Time
}

func (o *Options) setDefaults() {
	if o.SampleInterval <= 0 {
		o.SampleInterval = time.Second
	}
	if o.ReconnectBackoff <= 0 {
		o.ReconnectBackoff = 2 * time.Second
	}
	if o.ReconnectRetry <= 0 {
		o.ReconnectRetry = 5 * time.Second
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	if o.Now == nil {
		o.Now = time.Now
	}
}

type Service struct {
	store    *store.Store
	ingestor *ingest.Ingestor
	opts     Options
	fan      *fanout

	gen  generator.Generator
	link link
	// idleReason is set when no producer could be configured.
	idleReason error

	running atomic.Bool
}

func newService(st *store.Store, ing *ingest.Ingestor, opts Options) *Service {
	opts.setDefaults()
	return &Service{
		store:    st,
		ingestor: ing,
		opts:     opts,
		fan:      newFanout(opts.Sinks, opts.Logger),
	}
}

// NewSynthetic drives the store from gen at SampleInterval.
func NewSynthetic(st *store.Store, ing *ingest.Ingestor, gen generator.Generator, opts Options) *Service {
	s := newService(st, ing, opts)
	s.gen = gen
	return s
}

// NewLineReader drives the store from a line-oriented hardware source.
func NewLineReader(st *store.Store, ing *ingest.Ingestor, src LineSource, opts Options) *Service {
	s := newService(st, ing, opts)
	s.link = lineLink{src}
	return s
}

// NewSampleReader drives the store from a source yielding raw codes.
func NewSampleReader(st *store.Store, ing *ingest.Ingestor, src SampleSource, opts Options) *Service {
	s := newService(st, ing, opts)
	s.link = sampleLink{src}
	return s
}

// NewIdle serves the default snapshot forever. reason is reported by
// Source and logged once at start.
func NewIdle(st *store.Store, ing *ingest.Ingestor, reason error, opts Options) *Service {
	s := newService(st, ing, opts)
	s.idleReason = reason
	return s
}

// Run blocks until ctx is cancelled.
func (s *Service) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	s.fan.start(ctx)
	defer func() {
		cancel()
		s.fan.wait()
	}()

	switch {
	case s.gen != nil:
		s.running.Store(true)
		defer s.running.Store(false)
		s.opts.Logger.Info("producer started", "source", s.Source(), "interval", s.opts.SampleInterval)
		return s.runSynthetic(ctx)
	case s.link != nil:
		s.running.Store(true)
		defer s.running.Store(false)
		s.opts.Logger.Info("producer started", "source", s.Source())
		return s.runLink(ctx, s.link)
	default:
		s.opts.Logger.Warn("no producer configured; serving idle snapshot", "reason", s.idleReason)
		<-ctx.Done()
		return ctx.Err()
	}
}

func (s *Service) runSynthetic(ctx context.Context) error {
	ticker := time.NewTicker(s.opts.SampleInterval)
	defer ticker.Stop()

	var tick uint64
	for {
		s.emit(s.ingestor.Ingest(s.gen.Produce(tick, s.opts.Now())))
		tick++

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (s *Service) runLink(ctx context.Context, l link) error {
	if err := s.open(ctx, l); err != nil {
		return err
	}
	defer func() {
		if err := l.Close(); err != nil {
			s.opts.Logger.Warn("source close", "source", l.Name(), "error", err)
		}
	}()

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		res, err := l.pull(ctx, s.ingestor)
		if err != nil {
			if isNoData(err) {
				continue
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			res = s.ingestor.TransportFailure(err)
		}
		s.emit(res)

		if res.Reconnect {
			if err := s.reconnect(ctx, l); err != nil {
				return err
			}
		}
	}
}

// open retries until the source opens or ctx ends. Failures are counted as
// transport errors and spaced by ReconnectRetry.
func (s *Service) open(ctx context.Context, l link) error {
	for {
		err := l.Open(ctx)
		if err == nil {
			s.opts.Logger.Info("source opened", "source", l.Name())
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		s.ingestor.TransportFailure(&ingest.TransportError{Op: "open", Err: err})
		if err := sleep(ctx, s.opts.ReconnectRetry); err != nil {
			return err
		}
	}
}

func (s *Service) reconnect(ctx context.Context, l link) error {
	s.opts.Logger.Error("failure threshold reached, reconnecting",
		"source", l.Name(),
		"backoff", s.opts.ReconnectBackoff,
	)
	if err := l.Close(); err != nil {
		s.opts.Logger.Warn("source close", "source", l.Name(), "error", err)
	}
	if err := sleep(ctx, s.opts.ReconnectBackoff); err != nil {
		return err
	}
	for {
		err := l.Open(ctx)
		s.ingestor.Reconnected(err)
		if err == nil {
			s.opts.Logger.Info("source reconnected", "source", l.Name())
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		s.opts.Logger.Error("reconnect failed", "source", l.Name(), "error", err, "retry", s.opts.ReconnectRetry)
		if err := sleep(ctx, s.opts.ReconnectRetry); err != nil {
			return err
		}
	}
}

func (s *Service) emit(res ingest.Result) {
	if res.Outcome == ingest.Accepted {
		s.fan.publish(res.Snapshot)
	}
}

// Snapshot returns the last published state.
func (s *Service) Snapshot() types.Snapshot { return s.store.Snapshot() }

func (s *Service) Stats() ingest.Stats { return s.ingestor.Stats() }

// Running reports whether a producer loop is active.
func (s *Service) Running() bool { return s.running.Load() }

// Source names the active producer.
func (s *Service) Source() string {
	switch {
	case s.gen != nil:
		return SourceSynthetic
	case s.link != nil:
		return s.link.Name()
	default:
		return SourceNone
	}
}

// IdleReason is non-nil when the service was built without a producer.
func (s *Service) IdleReason() error { return s.idleReason }

// Capacity reports the rolling window size.
func (s *Service) Capacity() int { return s.store.Capacity() }

// DroppedBySink reports how many snapshots each sink missed because its
// queue was full.
func (s *Service) DroppedBySink() map[string]uint64 { return s.fan.dropped() }

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
