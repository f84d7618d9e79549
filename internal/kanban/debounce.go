package kanban

import (
	"sync"
	"time"

	"leadline/internal/config"
)

// Debouncer delays a call until no newer call has arrived for Delay. Only
// the most recent value is delivered.
type Debouncer[T any] struct {
	Delay time.Duration

	mu    sync.Mutex
	timer *time.Timer
	seq   uint64
	fn    func(T)
}

func NewDebouncer[T any](delay time.Duration, fn func(T)) *Debouncer[T] {
	if delay <= 0 {
		delay = config.DefaultDebounce
	}
	return &Debouncer[T]{Delay: delay, fn: fn}
}

// Call schedules fn(v), replacing any call still waiting.
func (d *Debouncer[T]) Call(v T) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.timer != nil {
		d.timer.Stop()
	}
	d.seq++
	seq := d.seq
	d.timer = time.AfterFunc(d.Delay, func() {
		d.mu.Lock()
		if seq != d.seq {
			d.mu.Unlock()
			return
		}
		d.timer = nil
		d.mu.Unlock()
		d.fn(v)
	})
}

// Flush delivers a waiting value immediately.
func (d *Debouncer[T]) Flush(v T) {
	d.Cancel()
	d.fn(v)
}

// Cancel drops any waiting call.
func (d *Debouncer[T]) Cancel() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	d.seq++
}
