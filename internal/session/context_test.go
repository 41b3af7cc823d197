package session

import (
	"sync"
	"testing"
	"time"

	"github.com/dfmap/dfmap/pkg/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestContext_Defaults(t *testing.T) {
	ctx := NewContext(30 * time.Second)

	assert.Equal(t, core.ModeDragging, ctx.Mode())
	assert.Equal(t, 30*time.Second, ctx.DecayRate())
}

func TestContext_SetDecayRate_ClampsNegative(t *testing.T) {
	ctx := NewContext(time.Second)

	ctx.SetDecayRate(-time.Second)
	assert.Zero(t, ctx.DecayRate())
}

func TestContext_ModeListeners(t *testing.T) {
	ctx := NewContext(0)

	var changes [][2]core.Mode
	ctx.OnModeChange(func(prev, next core.Mode) {
		changes = append(changes, [2]core.Mode{prev, next})
	})

	ctx.SetMode(core.ModeArea)
	ctx.SetMode(core.ModeArea)
	ctx.SetMode(core.ModeSignal)

	require.Len(t, changes, 2)
	assert.Equal(t, [2]core.Mode{core.ModeDragging, core.ModeArea}, changes[0])
	assert.Equal(t, [2]core.Mode{core.ModeArea, core.ModeSignal}, changes[1])
}

func TestContext_LogAttrs(t *testing.T) {
	ctx := NewContext(5 * time.Second)
	ctx.SetMode(core.ModeLines)

	attrs := ctx.LogAttrs()
	require.Len(t, attrs, 2)
	assert.Equal(t, "mode", attrs[0].Key)
	assert.Equal(t, "lines", attrs[0].Value.String())
	assert.Equal(t, "decayRate", attrs[1].Key)
	assert.Equal(t, 5*time.Second, attrs[1].Value.Duration())
}

func TestContext_ThreadSafe(t *testing.T) {
	ctx := NewContext(time.Second)
	var wg sync.WaitGroup

	for i := 0; i < 100; i++ {
		wg.Add(2)
		go func(i int) {
			defer wg.Done()
			ctx.SetDecayRate(time.Duration(i) * time.Millisecond)
			ctx.SetMode(core.Modes[i%len(core.Modes)])
		}(i)
		go func() {
			defer wg.Done()
			_ = ctx.Mode()
			_ = ctx.DecayRate()
			_ = ctx.LogAttrs()
		}()
	}
	wg.Wait()
}
