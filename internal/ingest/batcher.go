// Package ingest polls the signal feed, maps caller records to bearing lines
// and batches them into the entity store.
package ingest

import (
	"sync"
	"time"

	"github.com/dfmap/dfmap/internal/clock"
	"github.com/dfmap/dfmap/internal/queue"
	"github.com/dfmap/dfmap/pkg/core"
)

// DefaultBatchWindow is how long candidate lines are held before being flushed.
const DefaultBatchWindow = 300 * time.Millisecond

// LineAdder accepts candidate lines. Implemented by the store and the Batcher.
type LineAdder interface {
	AddLines(lines []core.Line)
}

// Batcher buffers candidate lines and hands them to the sink in one call
// once the window opened by the first buffered line has elapsed.
type Batcher struct {
	sink   LineAdder
	window time.Duration
	clock  clock.Clock
	buf    *queue.Queue[core.Line]

	mu     sync.Mutex
	timer  clock.Timer
	closed bool
}

// NewBatcher creates a Batcher in front of sink.
func NewBatcher(sink LineAdder, window time.Duration, c clock.Clock) *Batcher {
	if window <= 0 {
		window = DefaultBatchWindow
	}
	if c == nil {
		c = clock.Real()
	}
	return &Batcher{
		sink:   sink,
		window: window,
		clock:  c,
		buf:    queue.New[core.Line](),
	}
}

// AddLines buffers lines. After Close lines are passed straight through.
func (b *Batcher) AddLines(lines []core.Line) {
	if len(lines) == 0 {
		return
	}

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		b.sink.AddLines(lines)
		return
	}
	b.buf.Push(lines...)
	if b.timer == nil {
		b.timer = b.clock.AfterFunc(b.window, b.Flush)
	}
	b.mu.Unlock()
}

// Pending returns the number of buffered lines.
func (b *Batcher) Pending() int {
	return b.buf.Len()
}

// Flush hands every buffered line to the sink now.
func (b *Batcher) Flush() {
	b.mu.Lock()
	if b.timer != nil {
		b.timer.Stop()
		b.timer = nil
	}
	b.mu.Unlock()

	if lines := b.buf.Drain(); len(lines) > 0 {
		b.sink.AddLines(lines)
	}
}

// Close stops the flush timer and flushes what is left.
func (b *Batcher) Close() {
	b.mu.Lock()
	b.closed = true
	b.mu.Unlock()
	b.Flush()
}
