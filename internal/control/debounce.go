package control

import (
	"sync"
	"time"
)

// DefaultResizeInterval is how long a ResizeDebouncer waits before
// issuing a coalesced resize. Interactive drags generate dozens of sizes
// per second; one command per 100ms keeps the transport quiet without
// visible lag.
const DefaultResizeInterval = 100 * time.Millisecond

// ResizeDebouncer coalesces bursts of resize requests per pane: within
// each interval only the most recent size is issued. Safe for concurrent
// use.
type ResizeDebouncer struct {
	interval time.Duration
	resize   func(pane, cols, rows int)

	mu     sync.Mutex
	latest map[int][2]int
	timers map[int]*time.Timer
}

// NewResizeDebouncer creates a debouncer that calls resize with the last
// requested size for a pane once per interval. interval <= 0 uses
// DefaultResizeInterval.
func NewResizeDebouncer(interval time.Duration, resize func(pane, cols, rows int)) *ResizeDebouncer {
	if interval <= 0 {
		interval = DefaultResizeInterval
	}
	return &ResizeDebouncer{
		interval: interval,
		resize:   resize,
		latest:   make(map[int][2]int),
		timers:   make(map[int]*time.Timer),
	}
}

// Request records the desired size for a pane. The first request for a
// quiet pane arms a timer; requests that land before it fires only
// overwrite the recorded size.
func (d *ResizeDebouncer) Request(pane, cols, rows int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.latest[pane] = [2]int{cols, rows}
	if _, armed := d.timers[pane]; armed {
		return
	}
	d.timers[pane] = time.AfterFunc(d.interval, func() {
		d.fire(pane)
	})
}

func (d *ResizeDebouncer) fire(pane int) {
	d.mu.Lock()
	size, ok := d.latest[pane]
	delete(d.latest, pane)
	delete(d.timers, pane)
	d.mu.Unlock()
	if ok {
		d.resize(pane, size[0], size[1])
	}
}

// Stop cancels all armed timers and drops pending sizes.
func (d *ResizeDebouncer) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	for pane, timer := range d.timers {
		timer.Stop()
		delete(d.timers, pane)
		delete(d.latest, pane)
	}
}
