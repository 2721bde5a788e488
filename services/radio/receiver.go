// Package radio runs the receive pipeline of a wM-Bus transceiver and
// publishes its frames and state on the bus.
//
// The pipeline has three contexts:
//
//   - trigger: an interrupt handler (or any caller of Notify) that only posts
//     a wake token and never touches the bus;
//   - rx worker: drains the chip FIFO whenever woken or polled and pushes
//     bytes into a bounded SPSC ring, restarting RX when the ring is full;
//   - assembler: pops bytes, forms frames and runs the frame handlers.
package radio

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"wmbus-radio-go/services/radio/internal/util"
	"wmbus-radio-go/types"
	"wmbus-radio-go/x/mathx"
	"wmbus-radio-go/x/shmring"
)

// Defaults and bounds for Options.
const (
	DefaultQueueSize    = 256
	DefaultPollInterval = 4 * time.Millisecond
	DefaultFrameGap     = 20 * time.Millisecond
	DefaultMaxFrameLen  = 512

	minFrameLen = 16
	maxFrameLen = 4096
)

// Options tune the pipeline. Zero values select the defaults.
type Options struct {
	// QueueSize is the ring capacity, rounded up to a power of two.
	QueueSize int
	// PollInterval is the fallback drain cadence. Negative disables polling,
	// leaving only Notify as the wake source.
	PollInterval time.Duration
	// FrameGap is the idle time that ends a frame and marks the next byte as
	// a frame start.
	FrameGap time.Duration
	// MaxFrameLen bounds a frame, clamped to 16..4096.
	MaxFrameLen int
	// LengthFunc optionally ends a frame at a length derived from its prefix.
	LengthFunc LengthFunc
	Logger     *zerolog.Logger
}

func (o Options) withDefaults() Options {
	if o.QueueSize <= 0 {
		o.QueueSize = DefaultQueueSize
	}
	o.QueueSize = util.CeilPow2(o.QueueSize)
	if o.PollInterval == 0 {
		o.PollInterval = DefaultPollInterval
	}
	if o.FrameGap <= 0 {
		o.FrameGap = DefaultFrameGap
	}
	if o.MaxFrameLen == 0 {
		o.MaxFrameLen = DefaultMaxFrameLen
	}
	o.MaxFrameLen = mathx.Clamp(o.MaxFrameLen, minFrameLen, maxFrameLen)
	return o
}

// Receiver is the pipeline for one transceiver. The transceiver must have
// completed Setup before Start; afterwards only the rx worker touches it.
type Receiver struct {
	dev  types.Transceiver
	opts Options
	log  zerolog.Logger
	ring *shmring.Ring[item]
	disp *Dispatcher

	wake    chan struct{} // trigger -> worker, coalesced
	resync  chan struct{} // worker -> assembler after overflow, coalesced
	restart atomic.Bool   // restart requested from outside the worker

	// overflow is set by the worker when the ring rejects a byte and cleared
	// by the assembler after it discards the queue.
	overflow atomic.Bool

	// worker-only state
	needStart bool
	lastByte  time.Time

	bytesReceived atomic.Uint64
	bytesDropped  atomic.Uint64
	overflows     atomic.Uint64
	restarts      atomic.Uint64
	readErrors    atomic.Uint64
	wakeups       atomic.Uint64

	started atomic.Bool
	wg      sync.WaitGroup
	done    chan struct{}
}

// NewReceiver builds a pipeline for dev. Nothing runs until Start.
func NewReceiver(dev types.Transceiver, opts Options) *Receiver {
	opts = opts.withDefaults()
	log := zerolog.Nop()
	if opts.Logger != nil {
		log = opts.Logger.With().Str("radio", dev.Name()).Logger()
	}
	return &Receiver{
		dev:       dev,
		opts:      opts,
		log:       log,
		ring:      shmring.New[item](opts.QueueSize),
		disp:      NewDispatcher(log),
		wake:      make(chan struct{}, 1),
		resync:    make(chan struct{}, 1),
		needStart: true,
		done:      make(chan struct{}),
	}
}

// AddFrameHandler registers h; see Dispatcher.AddFrameHandler.
func (r *Receiver) AddFrameHandler(h FrameHandler) { r.disp.AddFrameHandler(h) }

// Notify wakes the rx worker. It never blocks and is safe to call from an
// interrupt handler.
func (r *Receiver) Notify() {
	select {
	case r.wake <- struct{}{}:
	default:
	}
}

// AttachIRQ arms pin to call Notify on edge. The returned func disarms it.
func (r *Receiver) AttachIRQ(pin types.IRQPin, edge types.Edge) (func(), error) {
	if err := pin.ConfigureInput(types.PullNone); err != nil {
		return nil, err
	}
	if err := pin.SetIRQ(edge, r.Notify); err != nil {
		return nil, err
	}
	r.log.Debug().Str("pin", pin.Name()).Str("edge", edge.String()).Msg("irq armed")
	return func() { _ = pin.ClearIRQ() }, nil
}

// RequestRestart asks the worker to restart RX at its next wake.
func (r *Receiver) RequestRestart() {
	r.restart.Store(true)
	r.Notify()
}

// Start launches the worker and assembler. They stop when ctx is done.
// Start may only be called once.
func (r *Receiver) Start(ctx context.Context) {
	if !r.started.CompareAndSwap(false, true) {
		return
	}
	r.wg.Add(2)
	go func() { defer r.wg.Done(); r.runWorker(ctx) }()
	go func() { defer r.wg.Done(); r.runAssembler(ctx) }()
	go func() { r.wg.Wait(); close(r.done) }()
}

// Done is closed once both goroutines have exited.
func (r *Receiver) Done() <-chan struct{} { return r.done }

// Stats snapshots the pipeline counters.
func (r *Receiver) Stats() types.Stats {
	return types.Stats{
		BytesReceived:   r.bytesReceived.Load(),
		BytesDropped:    r.bytesDropped.Load(),
		FramesReceived:  r.disp.Frames(),
		Overflows:       r.overflows.Load(),
		Restarts:        r.restarts.Load(),
		ReadErrors:      r.readErrors.Load(),
		HandlerFailures: r.disp.Failures(),
		Wakeups:         r.wakeups.Load(),
	}
}
