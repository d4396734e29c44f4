package service

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"

	"streetlight-server/internal/modules/airquality/types"
)

// Sink receives every published snapshot. Publish may block; each sink is
// drained by its own goroutine.
type Sink interface {
	Name() string
	Publish(ctx context.Context, snap types.Snapshot) error
}

const sinkQueueSize = 16

type sinkWorker struct {
	sink    Sink
	queue   chan types.Snapshot
	dropped atomic.Uint64
}

// fanout delivers snapshots to sinks without ever blocking the producer.
// A full queue drops the snapshot for that sink only.
type fanout struct {
	workers []*sinkWorker
	logger  *slog.Logger
	wg      sync.WaitGroup
}

func newFanout(sinks []Sink, logger *slog.Logger) *fanout {
	f := &fanout{logger: logger}
	for _, s := range sinks {
		if s == nil {
			continue
		}
		f.workers = append(f.workers, &sinkWorker{
			sink:  s,
			queue: make(chan types.Snapshot, sinkQueueSize),
		})
	}
	return f
}

func (f *fanout) start(ctx context.Context) {
	for _, w := range f.workers {
		f.wg.Add(1)
		go func(w *sinkWorker) {
			defer f.wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case snap := <-w.queue:
					if err := w.sink.Publish(ctx, snap); err != nil && ctx.Err() == nil {
						f.logger.Warn("sink publish failed", "sink", w.sink.Name(), "error", err)
					}
				}
			}
		}(w)
	}
}

func (f *fanout) publish(snap types.Snapshot) {
	for _, w := range f.workers {
		select {
		case w.queue <- snap:
		default:
			n := w.dropped.Add(1)
			f.logger.Debug("sink queue full, snapshot dropped", "sink", w.sink.Name(), "dropped", n)
		}
	}
}

func (f *fanout) wait() { f.wg.Wait() }

// dropped reports per-sink drop counts keyed by sink name.
func (f *fanout) dropped() map[string]uint64 {
	out := make(map[string]uint64, len(f.workers))
	for _, w := range f.workers {
		out[w.sink.Name()] = w.dropped.Load()
	}
	return out
}
