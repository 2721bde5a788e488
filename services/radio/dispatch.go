package radio

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"

	"wmbus-radio-go/types"
)

// FrameHandler consumes one completed frame. The frame's data is only valid
// for the duration of the call.
type FrameHandler func(types.Frame) error

// Dispatcher fans completed frames out to registered handlers, in
// registration order, on the caller's goroutine. A handler that returns an
// error or panics is logged and counted; the remaining handlers still run.
type Dispatcher struct {
	mu       sync.RWMutex
	handlers []FrameHandler
	log      zerolog.Logger
	failures atomic.Uint64
	frames   atomic.Uint64
}

func NewDispatcher(log zerolog.Logger) *Dispatcher {
	return &Dispatcher{log: log}
}

// AddFrameHandler appends h. A nil handler is ignored.
func (d *Dispatcher) AddFrameHandler(h FrameHandler) {
	if h == nil {
		return
	}
	d.mu.Lock()
	d.handlers = append(d.handlers, h)
	d.mu.Unlock()
}

// Len returns the number of registered handlers.
func (d *Dispatcher) Len() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.handlers)
}

// Dispatch runs every handler for f and returns how many failed.
func (d *Dispatcher) Dispatch(f types.Frame) int {
	d.mu.RLock()
	hs := d.handlers
	d.mu.RUnlock()

	d.frames.Add(1)
	failed := 0
	for i, h := range hs {
		if err := invoke(h, f); err != nil {
			failed++
			d.failures.Add(1)
			d.log.Error().Err(err).Int("handler", i).Int("len", f.Len()).Msg("frame handler failed")
		}
	}
	d.log.Debug().Int("len", f.Len()).Int8("rssi", f.RSSI()).Int("handlers", len(hs)).Msg("frame dispatched")
	return failed
}

// Failures counts failed handler invocations.
func (d *Dispatcher) Failures() uint64 { return d.failures.Load() }

// Frames counts dispatched frames.
func (d *Dispatcher) Frames() uint64 { return d.frames.Load() }

func invoke(h FrameHandler, f types.Frame) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return h(f)
}
