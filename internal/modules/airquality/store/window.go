package store

import "fmt"

// Window is a bounded FIFO of raw readings, oldest first.
type Window struct {
	values   []int
	capacity int
}

func NewWindow(capacity int) (*Window, error) {
	if capacity < 1 {
		return nil, fmt.Errorf("window capacity must be >= 1, got %d", capacity)
	}
	return &Window{
		values:   make([]int, 0, capacity),
		capacity: capacity,
	}, nil
}

// Push appends v, evicting the oldest reading when the window is full.
func (w *Window) Push(v int) {
	if len(w.values) >= w.capacity {
		copy(w.values, w.values[1:])
		w.values = w.values[:len(w.values)-1]
	}
	w.values = append(w.values, v)
}

// Values returns a copy of the readings, oldest first.
func (w *Window) Values() []int {
	out := make([]int, len(w.values))
	copy(out, w.values)
	return out
}

func (w *Window) Len() int { return len(w.values) }

func (w *Window) Cap() int { return w.capacity }
