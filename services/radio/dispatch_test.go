package radio

import (
	"bytes"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wmbus-radio-go/types"
)

func TestDispatchOrderAndIsolation(t *testing.T) {
	for name, h2 := range map[string]FrameHandler{
		"error": func(types.Frame) error { return errors.New("decoder rejected frame") },
		"panic": func(types.Frame) error { panic("decoder bug") },
	} {
		t.Run(name, func(t *testing.T) {
			var buf bytes.Buffer
			d := NewDispatcher(zerolog.New(&buf))

			var calls []string
			d.AddFrameHandler(func(types.Frame) error { calls = append(calls, "h1"); return nil })
			d.AddFrameHandler(func(f types.Frame) error { calls = append(calls, "h2"); return h2(f) })
			d.AddFrameHandler(func(types.Frame) error { calls = append(calls, "h3"); return nil })

			failed := d.Dispatch(types.NewFrame([]byte{0xAB, 0xCD}, -42, time.Now()))

			assert.Equal(t, []string{"h1", "h2", "h3"}, calls)
			assert.Equal(t, 1, failed)
			assert.EqualValues(t, 1, d.Failures())
			assert.EqualValues(t, 1, d.Frames())
			assert.Contains(t, buf.String(), "frame handler failed")
			assert.Contains(t, buf.String(), `"handler":1`)
		})
	}
}

func TestDispatchPassesFrame(t *testing.T) {
	d := NewDispatcher(zerolog.Nop())
	var got string
	d.AddFrameHandler(func(f types.Frame) error { got = f.AsRTLWMBus(); return nil })
	d.Dispatch(types.NewFrame([]byte{0xAB, 0xCD}, -42, time.Now()))
	assert.Equal(t, "T1;-42;ABCD", got)
}

func TestAddNilHandlerIgnored(t *testing.T) {
	d := NewDispatcher(zerolog.Nop())
	d.AddFrameHandler(nil)
	assert.Equal(t, 0, d.Len())
	require.Equal(t, 0, d.Dispatch(types.NewFrame(nil, 0, time.Now())))
}
