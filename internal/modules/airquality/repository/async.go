package repository

import (
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"

	"streetlight-server/internal/modules/airquality/types"
)

const journalQueueSize = 64

// ErrJournalFull is returned when the write queue is full and the event
// was dropped.
var ErrJournalFull = errors.New("journal queue full")

var errJournalClosed = errors.New("journal closed")

// AsyncJournal moves journal inserts off the producer goroutine. Events are
// written in order by a single worker; a full queue drops the event.
type AsyncJournal struct {
	repo   JournalRepository
	logger *slog.Logger
	queue  chan types.IngestEvent

	mu      sync.RWMutex
	closed  bool
	done    chan struct{}
	dropped atomic.Uint64
}

func NewAsyncJournal(repo JournalRepository, logger *slog.Logger) *AsyncJournal {
	if logger == nil {
		logger = slog.Default()
	}
	j := &AsyncJournal{
		repo:   repo,
		logger: logger,
		queue:  make(chan types.IngestEvent, journalQueueSize),
		done:   make(chan struct{}),
	}
	go j.run()
	return j
}

func (j *AsyncJournal) run() {
	defer close(j.done)
	for ev := range j.queue {
		if err := j.repo.RecordEvent(ev); err != nil {
			j.logger.Warn("journal write failed", "kind", ev.Kind, "error", err)
		}
	}
}

// RecordEvent enqueues ev without blocking.
func (j *AsyncJournal) RecordEvent(ev types.IngestEvent) error {
	j.mu.RLock()
	defer j.mu.RUnlock()
	if j.closed {
		return errJournalClosed
	}
	select {
	case j.queue <- ev:
		return nil
	default:
		j.dropped.Add(1)
		return ErrJournalFull
	}
}

// Dropped counts events lost to a full queue.
func (j *AsyncJournal) Dropped() uint64 { return j.dropped.Load() }

// Close flushes queued events and stops the worker. Idempotent.
func (j *AsyncJournal) Close() {
	j.mu.Lock()
	if !j.closed {
		j.closed = true
		close(j.queue)
	}
	j.mu.Unlock()
	<-j.done
}
