package radio

import (
	"context"
	"time"

	"wmbus-radio-go/errcode"
	"wmbus-radio-go/services/radio/internal/util"
	"wmbus-radio-go/types"
)

func (r *Receiver) runWorker(ctx context.Context) {
	var tick <-chan time.Time
	if r.opts.PollInterval > 0 {
		t := time.NewTicker(r.opts.PollInterval)
		defer t.Stop()
		tick = t.C
	}
	for {
		select {
		case <-ctx.Done():
			return
		case <-r.wake:
			r.wakeups.Add(1)
		case <-tick:
		}
		if r.restart.Swap(false) {
			r.restartRX("requested")
		}
		r.drain(time.Now)
	}
}

// drain reads the chip FIFO until it reports empty and queues every byte.
func (r *Receiver) drain(now func() time.Time) {
	for {
		b, ok, err := r.dev.Read()
		if err != nil {
			r.readErrors.Add(1)
			r.log.Warn().Err(err).Msg("fifo read failed")
			r.restartRX("read error")
			return
		}
		if !ok {
			return
		}
		t := now()
		if r.overflow.Load() {
			// assembler has not resynchronised yet
			r.bytesDropped.Add(1)
			r.lastByte = t
			continue
		}

		it := item{b: b}
		if r.needStart || t.Sub(r.lastByte) >= r.opts.FrameGap {
			it.start, it.ts = true, t
			it.rssi = r.sampleRSSI()
			r.needStart = false
		}
		r.lastByte = t

		if !r.ring.TryWrite(it) {
			r.onOverflow()
			return
		}
		r.bytesReceived.Add(1)
	}
}

// onOverflow applies the drop-and-restart policy: queued bytes belong to a
// frame that can no longer be completed, so the assembler is told to discard
// them and the chip FIFO is flushed.
func (r *Receiver) onOverflow() {
	r.bytesDropped.Add(1)
	r.overflows.Add(1)
	r.overflow.Store(true)
	select {
	case r.resync <- struct{}{}:
	default:
	}
	r.log.Warn().
		Str("code", string(errcode.QueueOverflow)).
		Int("queued", r.ring.Available()).
		Msg("queue overflow, restarting rx")
	r.restartRX("queue overflow")
}

func (r *Receiver) restartRX(reason string) {
	r.restarts.Add(1)
	r.needStart = true
	if err := r.dev.RestartRX(); err != nil {
		r.log.Error().Err(err).Str("reason", reason).Msg("rx restart failed")
		return
	}
	r.log.Warn().Str("reason", reason).Msg("rx restarted")
}

func (r *Receiver) sampleRSSI() int8 {
	v, err := r.dev.RSSI()
	if err != nil {
		r.log.Debug().Err(err).Msg("rssi read failed")
		return 0
	}
	return v
}

func (r *Receiver) runAssembler(ctx context.Context) {
	asm := newAssembler(r.opts.MaxFrameLen, r.opts.LengthFunc, func(f types.Frame) {
		r.disp.Dispatch(f)
	})
	idle := util.StoppedTimer()
	defer idle.Stop()

	for {
		if asm.pending() {
			util.ResetTimer(idle, r.opts.FrameGap)
		}
		select {
		case <-ctx.Done():
			return
		case <-r.resync:
			r.consume(asm)
		case <-r.ring.Readable():
			r.consume(asm)
		case <-idle.C:
			asm.flush()
			continue
		}
	}
}

// consume drains the ring into asm. After an overflow it drops everything
// queued and the in-flight frame before clearing the flag.
func (r *Receiver) consume(asm *assembler) {
	for {
		if r.overflow.Load() {
			if n := r.ring.Discard(); n > 0 {
				r.bytesDropped.Add(uint64(n))
			}
			asm.reset()
			r.overflow.Store(false)
		}
		it, ok := r.ring.TryRead()
		if !ok {
			return
		}
		asm.push(it)
	}
}
