package hub

import (
	"sync"
	"time"
)

// OutputBatcher coalesces pane output so a chatty program does not turn
// into one websocket frame per write. Bytes accumulate per pane; the
// first Add after a flush arms a timer, and the flush delivers everything
// collected in the interval as one payload.
type OutputBatcher struct {
	mu       sync.Mutex
	pending  map[int]*pendingOutput
	interval time.Duration
	onFlush  func(pane int, data []byte)
}

type pendingOutput struct {
	data  []byte
	timer *time.Timer
}

func NewOutputBatcher(interval time.Duration, onFlush func(int, []byte)) *OutputBatcher {
	return &OutputBatcher{
		pending:  make(map[int]*pendingOutput),
		interval: interval,
		onFlush:  onFlush,
	}
}

// Add appends bytes to a pane's batch. Cheap and non-blocking; safe to
// call from the coordinator's dispatch goroutine.
func (b *OutputBatcher) Add(pane int, p []byte) {
	b.mu.Lock()
	defer b.mu.Unlock()

	pend, ok := b.pending[pane]
	if !ok {
		pend = &pendingOutput{}
		b.pending[pane] = pend
	}
	pend.data = append(pend.data, p...)

	if pend.timer == nil {
		pend.timer = time.AfterFunc(b.interval, func() {
			b.Flush(pane)
		})
	}
}

// Flush delivers a pane's batch immediately, if it has one.
func (b *OutputBatcher) Flush(pane int) {
	b.mu.Lock()
	pend, ok := b.pending[pane]
	if ok {
		delete(b.pending, pane)
		pend.timer.Stop()
	}
	b.mu.Unlock()

	if ok && len(pend.data) > 0 && b.onFlush != nil {
		b.onFlush(pane, pend.data)
	}
}

// FlushAll delivers every pending batch.
func (b *OutputBatcher) FlushAll() {
	b.mu.Lock()
	panes := make([]int, 0, len(b.pending))
	for p := range b.pending {
		panes = append(panes, p)
	}
	b.mu.Unlock()

	for _, p := range panes {
		b.Flush(p)
	}
}
