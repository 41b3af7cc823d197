package dispatcher

import (
	"bytes"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dfmap/dfmap/pkg/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

// Lines returns the logged records, one per line.
func (b *lockedBuffer) Lines() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return strings.FieldsFunc(b.buf.String(), func(r rune) bool { return r == '\n' })
}

func newTestDispatcher(t *testing.T) (*Dispatcher, *lockedBuffer) {
	t.Helper()
	out := &lockedBuffer{}
	logger := slog.New(slog.NewTextHandler(out, &slog.HandlerOptions{Level: slog.LevelDebug}))

	d, err := New(logger)
	require.NoError(t, err)
	t.Cleanup(d.Close)

	return d, out
}

func TestCommandFor(t *testing.T) {
	assert.Equal(t, ":CLICK:Signal:", CommandFor(core.PointerEvent{Button: core.ButtonLeft}, core.ModeSignal))
	assert.Equal(t, ":CLICK:area:", CommandFor(core.PointerEvent{}, core.ModeArea))
	assert.Equal(t, CommandContextMenu, CommandFor(core.PointerEvent{Button: core.ButtonRight}, core.ModeArea))
	assert.Equal(t, CommandMove, CommandFor(core.PointerEvent{Button: core.ButtonMove}, core.ModeLines))
}

func TestDispatcher_SyncHandler(t *testing.T) {
	d, _ := newTestDispatcher(t)

	var got Event
	d.Register(ClickCommand(core.ModeBoat), func(e Event) (any, error) {
		got = e
		return "result", nil
	})

	result, err := d.Dispatch(Event{
		Command: ClickCommand(core.ModeBoat),
		Pointer: core.PointerEvent{Lat: 1, Lng: 2},
	})

	require.NoError(t, err)
	assert.Equal(t, "result", result)
	assert.Equal(t, core.Point{Lat: 1, Lng: 2}, got.Pointer.LatLng())
	assert.False(t, got.Timestamp.IsZero(), "dispatch stamps events")
}

func TestDispatcher_UnknownCommand(t *testing.T) {
	d, _ := newTestDispatcher(t)

	_, err := d.Dispatch(Event{Command: ":UNKNOWN:"})
	assert.ErrorContains(t, err, "unknown command")
}

func TestDispatcher_AsyncHandler(t *testing.T) {
	d, _ := newTestDispatcher(t)

	var processed atomic.Int32
	d.Register(CommandMove, func(e Event) (any, error) {
		processed.Add(1)
		return nil, nil
	}, Async(10))

	for i := 0; i < 3; i++ {
		result, err := d.Dispatch(Event{Command: CommandMove})
		require.NoError(t, err)
		assert.Equal(t, Queued, result)
	}

	require.Eventually(t, func() bool { return processed.Load() == 3 }, time.Second, 5*time.Millisecond)
}

func TestDispatcher_AsyncDropsWhenFull(t *testing.T) {
	d, _ := newTestDispatcher(t)

	block := make(chan struct{})
	started := make(chan struct{}, 1)
	d.Register(":FULL:", func(e Event) (any, error) {
		select {
		case started <- struct{}{}:
		default:
		}
		<-block
		return nil, nil
	}, Async(2))

	d.Dispatch(Event{Command: ":FULL:"}) // being processed
	<-started
	d.Dispatch(Event{Command: ":FULL:"}) // queued
	d.Dispatch(Event{Command: ":FULL:"}) // queued

	_, err := d.Dispatch(Event{Command: ":FULL:"})
	assert.ErrorIs(t, err, ErrQueueFull)

	close(block)
}

func TestDispatcher_LoggedHandler(t *testing.T) {
	d, logger := newTestDispatcher(t)

	d.Register(ClickCommand(core.ModeCircles), func(e Event) (any, error) {
		return "ok", nil
	}, Logged())

	_, err := d.Dispatch(Event{Command: ClickCommand(core.ModeCircles)})
	require.NoError(t, err)

	assert.GreaterOrEqual(t, len(logger.Lines()), 2)
}

func TestDispatcher_LoggedHandlerError(t *testing.T) {
	d, logger := newTestDispatcher(t)

	d.Register(":ERROR:", func(e Event) (any, error) {
		return nil, fmt.Errorf("test error")
	}, Logged())

	_, err := d.Dispatch(Event{Command: ":ERROR:"})
	require.Error(t, err)

	hasError := false
	for _, msg := range logger.Lines() {
		if strings.Contains(msg, "level=ERROR") {
			hasError = true
			break
		}
	}
	assert.True(t, hasError, "expected error log message")
}
