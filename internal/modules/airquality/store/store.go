// Package store holds the rolling reading window and the latest derived
// snapshot. Append is reserved for the single producer; Snapshot may be
// called from any goroutine.
package store

import (
	"sync"
	"sync/atomic"
	"time"

	"streetlight-server/internal/modules/airquality/types"
)

// Classifier maps a raw reading to an AQI tier.
type Classifier interface {
	Classify(raw int) types.Classification
}

// Decomposer derives the gas estimates for a raw reading.
type Decomposer interface {
	Decompose(raw int, hour int) types.GasLevels
}

type Store struct {
	classifier Classifier
	decomposer Decomposer

	// writeMu serializes producers should more than one ever be wired.
	writeMu sync.Mutex
	window  *Window
	samples uint64

	current atomic.Pointer[types.Snapshot]
}

func New(capacity int, classifier Classifier, decomposer Decomposer) (*Store, error) {
	w, err := NewWindow(capacity)
	if err != nil {
		return nil, err
	}
	s := &Store{
		classifier: classifier,
		decomposer: decomposer,
		window:     w,
	}
	initial := types.DefaultSnapshot()
	s.current.Store(&initial)
	return s, nil
}

// Append records raw, recomputes the derived fields and publishes a new
// immutable snapshot in one pointer swap.
func (s *Store) Append(raw int, now time.Time) types.Snapshot {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	s.window.Push(raw)
	s.samples++

	next := types.Snapshot{
		Window:         s.window.Values(),
		Latest:         raw,
		Classification: s.classifier.Classify(raw),
		Gas:            s.decomposer.Decompose(raw, now.Hour()),
		Samples:        s.samples,
	}
	s.current.Store(&next)
	return next
}

// Snapshot returns the last published state. The returned Window slice is
// shared with other readers and must not be modified.
func (s *Store) Snapshot() types.Snapshot {
	return *s.current.Load()
}

// Capacity reports the configured window size.
func (s *Store) Capacity() int { return s.window.Cap() }
