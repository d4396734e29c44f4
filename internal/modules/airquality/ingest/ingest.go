// Package ingest validates raw codes from the generator or a hardware
// transport and publishes the accepted ones into the state store.
package ingest

import (
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	"streetlight-server/internal/modules/airquality/types"
)

// Outcome classifies the result of handing one record to the ingestor.
type Outcome int

const (
	Accepted Outcome = iota
	Rejected
	TransportFailed
)

func (o Outcome) String() string {
	switch o {
	case Accepted:
		return "accepted"
	case Rejected:
		return "rejected"
	case TransportFailed:
		return "transport_failed"
	default:
		return "unknown"
	}
}

// Result is returned for every record or transport failure; nothing panics
// or escapes as an error to the caller's loop.
type Result struct {
	Outcome  Outcome
	Value    int
	Err      error
	Snapshot types.Snapshot
	// Reconnect is set once the consecutive-failure threshold is reached.
	// The failure counter has already been reset when it is returned.
	Reconnect bool
}

// Appender is the producer side of the state store.
type Appender interface {
	Append(raw int, now time.Time) types.Snapshot
}

// Journal records diagnostic events. Errors are logged and dropped.
type Journal interface {
	RecordEvent(ev types.IngestEvent) error
}

// Observer receives counters for metrics.
type Observer interface {
	ObserveAccepted(snap types.Snapshot)
	ObserveRejected(reason string)
	ObserveTransportError()
	ObserveReconnect()
}

// Stats is a point-in-time copy of the ingest counters.
type Stats struct {
	Accepted            uint64 `json:"accepted"`
	Rejected            uint64 `json:"rejected"`
	TransportErrors     uint64 `json:"transport_errors"`
	Reconnects          uint64 `json:"reconnects"`
	ConsecutiveFailures int64  `json:"consecutive_failures"`
}

type Options struct {
	DeviceMax        int
	FailureThreshold int
	Journal          Journal
	Observer         Observer
	Logger           *slog.Logger
	Now              func() time.Time
}

// Ingestor is driven by the single producer goroutine. Its counters may be
// read concurrently through Stats.
type Ingestor struct {
	store     Appender
	deviceMax int
	threshold int64
	journal   Journal
	observer  Observer
	logger    *slog.Logger
	now       func() time.Time

	accepted        atomic.Uint64
	rejected        atomic.Uint64
	transportErrors atomic.Uint64
	reconnects      atomic.Uint64
	consecutive     atomic.Int64
}

func New(store Appender, opts Options) *Ingestor {
	if opts.DeviceMax <= 0 {
		opts.DeviceMax = types.DefaultDeviceMax
	}
	if opts.FailureThreshold <= 0 {
		opts.FailureThreshold = 10
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Ingestor{
		store:     store,
		deviceMax: opts.DeviceMax,
		threshold: int64(opts.FailureThreshold),
		journal:   opts.Journal,
		observer:  opts.Observer,
		logger:    opts.Logger,
		now:       opts.Now,
	}
}

// Ingest validates code and publishes it.
func (i *Ingestor) Ingest(code int) Result {
	if code < 0 || code > i.deviceMax {
		v := code
		return i.reject(types.EventRange, &RangeError{Value: code, Max: i.deviceMax}, &v)
	}

	snap := i.store.Append(code, i.now())
	i.accepted.Add(1)
	i.consecutive.Store(0)
	if i.observer != nil {
		i.observer.ObserveAccepted(snap)
	}
	i.logger.Debug("reading accepted",
		"raw", code,
		"aqi", snap.Classification.Index,
		"category", snap.Classification.Category.String(),
	)
	return Result{Outcome: Accepted, Value: code, Snapshot: snap}
}

// IngestLine parses one "MQ:<integer>" record and ingests it.
func (i *Ingestor) IngestLine(line string) Result {
	v, err := ParseLine(line)
	if err != nil {
		return i.reject(types.EventParse, err, nil)
	}
	return i.Ingest(v)
}

// TransportFailure counts a failed read or open on the hardware link.
func (i *Ingestor) TransportFailure(err error) Result {
	var te *TransportError
	if !errors.As(err, &te) {
		te = &TransportError{Op: "read", Err: err}
	}
	i.transportErrors.Add(1)
	if i.observer != nil {
		i.observer.ObserveTransportError()
	}
	n := i.consecutive.Load() + 1
	i.logger.Warn("transport error", "error", te, "consecutive", n)
	i.record(types.EventTransport, te.Error(), nil)
	return Result{Outcome: TransportFailed, Err: te, Reconnect: i.fail()}
}

// Reconnected records a completed reconnect attempt; err is nil on success.
func (i *Ingestor) Reconnected(err error) {
	i.reconnects.Add(1)
	if i.observer != nil {
		i.observer.ObserveReconnect()
	}
	detail := "reconnected"
	if err != nil {
		detail = "reconnect failed: " + err.Error()
	}
	i.record(types.EventReconnect, detail, nil)
}

func (i *Ingestor) Stats() Stats {
	return Stats{
		Accepted:            i.accepted.Load(),
		Rejected:            i.rejected.Load(),
		TransportErrors:     i.transportErrors.Load(),
		Reconnects:          i.reconnects.Load(),
		ConsecutiveFailures: i.consecutive.Load(),
	}
}

func (i *Ingestor) reject(kind string, err error, value *int) Result {
	i.rejected.Add(1)
	if i.observer != nil {
		i.observer.ObserveRejected(kind)
	}
	i.logger.Warn("reading rejected", "reason", kind, "error", err)
	i.record(kind, err.Error(), value)

	res := Result{Outcome: Rejected, Err: err, Reconnect: i.fail()}
	if value != nil {
		res.Value = *value
	}
	return res
}

func (i *Ingestor) fail() bool {
	if i.consecutive.Add(1) < i.threshold {
		return false
	}
	i.consecutive.Store(0)
	return true
}

func (i *Ingestor) record(kind, detail string, value *int) {
	if i.journal == nil {
		return
	}
	ev := types.IngestEvent{
		Time:   i.now(),
		Kind:   kind,
		Detail: detail,
		Value:  value,
	}
	if err := i.journal.RecordEvent(ev); err != nil {
		i.logger.Warn("journal write failed", "kind", kind, "error", err)
	}
}
