// Package dispatcher routes pointer events from the rendering layer to the
// handler registered for the active interaction mode.
package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/dfmap/dfmap/pkg/core"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Commands that are not bound to a mode.
const (
	CommandContextMenu = ":CONTEXTMENU:"
	CommandMove        = ":MOVE:"
)

// Queued is the result of an event accepted by an async route.
const Queued = "queued"

var (
	// ErrClosed is returned by Dispatch after Close.
	ErrClosed = errors.New("dispatcher closed")
	// ErrQueueFull is returned when an async route drops an event.
	ErrQueueFull = errors.New("pointer queue full")
)

// ClickCommand returns the command a left click dispatches in the given mode.
func ClickCommand(m core.Mode) string {
	return ":CLICK:" + string(m) + ":"
}

// CommandFor maps a pointer event to its command under the active mode.
func CommandFor(e core.PointerEvent, m core.Mode) string {
	switch e.Button {
	case core.ButtonRight:
		return CommandContextMenu
	case core.ButtonMove:
		return CommandMove
	default:
		return ClickCommand(m)
	}
}

// Event is a pointer event routed by command.
type Event struct {
	Command   string
	Pointer   core.PointerEvent
	Timestamp time.Time
}

// HandlerFunc processes an event and returns a result.
type HandlerFunc func(Event) (any, error)

// Option configures a route.
type Option func(*routeOptions)

type routeOptions struct {
	queueSize int
	logged    bool
}

// Async hands events to a worker goroutine through a queue of the given
// size. Dispatch then returns Queued instead of the handler's result.
func Async(size int) Option {
	return func(o *routeOptions) { o.queueSize = size }
}

// Logged logs every event at debug level and failures at error level.
func Logged() Option {
	return func(o *routeOptions) { o.logged = true }
}

type route struct {
	command string
	handle  HandlerFunc
	queue   chan Event // nil for synchronous routes
	attrs   metric.MeasurementOption
}

// Dispatcher routes events to registered handlers. Routes are registered
// up front; Dispatch may be called concurrently afterwards.
type Dispatcher struct {
	logger *slog.Logger
	routes map[string]*route

	handled metric.Int64Counter
	dropped metric.Int64Counter
	pending metric.Int64UpDownCounter

	mu      sync.RWMutex
	closed  bool
	workers sync.WaitGroup
}

// New creates a Dispatcher. Metrics go to the global OTel meter, which is a
// no-op until a provider is installed.
func New(logger *slog.Logger) (*Dispatcher, error) {
	if logger == nil {
		logger = slog.Default()
	}
	d := &Dispatcher{logger: logger, routes: make(map[string]*route)}

	m := meter()
	var err error
	if d.handled, err = m.Int64Counter("dispatcher.pointer.handled",
		metric.WithDescription("Pointer events handed to a handler")); err != nil {
		return nil, fmt.Errorf("creating handled counter: %w", err)
	}
	if d.dropped, err = m.Int64Counter("dispatcher.pointer.dropped",
		metric.WithDescription("Pointer events dropped because the route queue was full")); err != nil {
		return nil, fmt.Errorf("creating dropped counter: %w", err)
	}
	if d.pending, err = m.Int64UpDownCounter("dispatcher.pointer.pending",
		metric.WithDescription("Pointer events waiting in route queues")); err != nil {
		return nil, fmt.Errorf("creating pending counter: %w", err)
	}
	return d, nil
}

// Register binds a handler to a command.
func (d *Dispatcher) Register(command string, h HandlerFunc, opts ...Option) {
	var o routeOptions
	for _, opt := range opts {
		opt(&o)
	}

	r := &route{
		command: command,
		handle:  h,
		attrs:   metric.WithAttributes(attribute.String("command", command)),
	}
	if o.logged {
		r.handle = d.logged(command, h)
	}
	if o.queueSize > 0 {
		r.queue = make(chan Event, o.queueSize)
		d.workers.Add(1)
		go d.work(r)
	}
	d.routes[command] = r
}

// Dispatch routes an event to its handler, stamping it when the caller did not.
func (d *Dispatcher) Dispatch(e Event) (any, error) {
	r, ok := d.routes[e.Command]
	if !ok {
		return nil, fmt.Errorf("unknown command: %s", e.Command)
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now()
	}
	if r.queue == nil {
		d.handled.Add(context.Background(), 1, r.attrs)
		return r.handle(e)
	}
	return d.enqueue(r, e)
}

func (d *Dispatcher) enqueue(r *route, e Event) (any, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return nil, ErrClosed
	}

	select {
	case r.queue <- e:
	default:
		d.dropped.Add(context.Background(), 1, r.attrs)
		return nil, fmt.Errorf("%s: %w", r.command, ErrQueueFull)
	}
	d.pending.Add(context.Background(), 1, r.attrs)
	return Queued, nil
}

func (d *Dispatcher) work(r *route) {
	defer d.workers.Done()
	for e := range r.queue {
		d.pending.Add(context.Background(), -1, r.attrs)
		_, _ = r.handle(e)
		d.handled.Add(context.Background(), 1, r.attrs)
	}
}

// Close rejects further async events and waits until queued ones are handled.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	for _, r := range d.routes {
		if r.queue != nil {
			close(r.queue)
		}
	}
	d.mu.Unlock()
	d.workers.Wait()
}

func (d *Dispatcher) logged(command string, h HandlerFunc) HandlerFunc {
	return func(e Event) (any, error) {
		start := time.Now()
		d.logger.Debug("pointer event", "command", command, "lat", e.Pointer.Lat, "lng", e.Pointer.Lng)

		result, err := h(e)
		if err != nil {
			d.logger.Error("pointer event failed", "command", command, "duration", time.Since(start), "error", err)
		} else {
			d.logger.Debug("pointer event handled", "command", command, "duration", time.Since(start))
		}
		return result, err
	}
}
