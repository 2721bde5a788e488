package main

import (
	"context"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"wmbus-radio-go/drivers/cc1101/ccsim"
	"wmbus-radio-go/services/config"
	"wmbus-radio-go/services/radio"
)

// Sample T1 telegrams (water, heat and electricity meters).
var sampleFrames = []string{
	"2E44931578563412330333637A2A0020255923C95AAA26D1B2E7493B2A8B013EC4A6F6D3529B520EDFF0EA6DEFC955B29D6D69EBF3EC8A",
	"1844AE4C4455223368077A55000000041389E20100023B0000",
	"3644A511640010180804A0C8000000007B1A0000002F2F0413040000000C2B0000000000000000000000000000000000000000000000000000",
}

type simOptions struct {
	frames   []string
	count    int
	interval time.Duration
	rssi     int
	chunk    int
}

func newSimulateCmd(opts *rootOptions) *cobra.Command {
	so := &simOptions{}
	cmd := &cobra.Command{
		Use:   "simulate",
		Short: "Run the receive pipeline against a simulated CC1101",
		Long: `simulate runs the same pipeline as listen, with the transceiver replaced by
an in-memory CC1101 whose RX FIFO is fed with sample telegrams. Frames are
injected in FIFO sized bursts so the data-ready interrupt path is exercised.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, log, closer, err := opts.setup()
			if err != nil {
				return err
			}
			defer closer.Close()
			return runSimulate(cmd.Context(), cfg, so, log)
		},
	}
	cmd.Flags().StringSliceVar(&so.frames, "frame", nil, "telegram to inject as hex (repeatable, default sample set)")
	cmd.Flags().IntVar(&so.count, "count", 1, "rounds through the frame set, 0 runs until interrupted")
	cmd.Flags().DurationVar(&so.interval, "interval", 200*time.Millisecond, "pause between frames")
	cmd.Flags().IntVar(&so.rssi, "rssi", -80, "signal strength reported by the chip in dBm")
	cmd.Flags().IntVar(&so.chunk, "chunk", 32, "bytes per FIFO burst")
	return cmd
}

func runSimulate(ctx context.Context, cfg *config.Config, so *simOptions, log zerolog.Logger) error {
	frames, err := parseFrames(so.frames)
	if err != nil {
		return err
	}

	chip := ccsim.New()
	chip.SetRSSIRaw(rssiRaw(so.rssi))
	r, err := radio.OpenSimulated(chip, cfg.Radio.FrequencyMHz, &log)
	if err != nil {
		return err
	}
	defer r.Close()

	sctx, cancel := context.WithCancel(ctx)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- runStack(sctx, cfg, r, log) }()

	inj := injector{chip: chip, chunk: so.chunk, interval: so.interval}
	if err := inj.waitRX(sctx); err != nil {
		cancel()
		if serr := <-done; serr != nil {
			return serr
		}
		return err
	}
	log.Info().Int("frames", len(frames)).Int("count", so.count).Msg("simulation started")

	for round := 0; so.count == 0 || round < so.count; round++ {
		for _, f := range frames {
			if !inj.send(sctx, f) {
				return <-done
			}
		}
	}

	// let the last frame close on the idle gap
	settle := 3*cfg.Pipeline.FrameGap + 100*time.Millisecond
	select {
	case <-time.After(settle):
	case <-ctx.Done():
	}
	cancel()
	return <-done
}

func parseFrames(in []string) ([][]byte, error) {
	if len(in) == 0 {
		in = sampleFrames
	}
	out := make([][]byte, 0, len(in))
	for _, s := range in {
		b, err := hex.DecodeString(strings.TrimSpace(s))
		if err != nil {
			return nil, fmt.Errorf("frame %q: %w", s, err)
		}
		if len(b) == 0 {
			return nil, fmt.Errorf("frame %q: empty", s)
		}
		out = append(out, b)
	}
	return out, nil
}

// rssiRaw encodes dBm the way the chip reports it.
func rssiRaw(dbm int) byte {
	v := (dbm + 74) * 2
	if v < -128 {
		v = -128
	}
	if v > 127 {
		v = 127
	}
	return byte(int8(v))
}

type injector struct {
	chip     *ccsim.Chip
	chunk    int
	interval time.Duration
}

func (in injector) waitRX(ctx context.Context) error {
	t := time.NewTicker(time.Millisecond)
	defer t.Stop()
	for in.chip.MarcState() != ccsim.MarcRX {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
		}
	}
	return nil
}

// send feeds f into the FIFO burst by burst, waiting for each burst to be
// drained, then pauses for the interval.
func (in injector) send(ctx context.Context, f []byte) bool {
	chunk := in.chunk
	if chunk <= 0 || chunk > ccsim.FIFOSize {
		chunk = ccsim.FIFOSize
	}
	for len(f) > 0 {
		n := min(chunk, len(f))
		n = in.chip.Inject(f[:n])
		if n == 0 {
			// restarting; the FIFO accepts bytes again once back in RX
			if in.waitRX(ctx) != nil {
				return false
			}
			continue
		}
		f = f[n:]
		if !in.drain(ctx) {
			return false
		}
	}
	select {
	case <-ctx.Done():
		return false
	case <-time.After(in.interval):
		return true
	}
}

func (in injector) drain(ctx context.Context) bool {
	t := time.NewTicker(200 * time.Microsecond)
	defer t.Stop()
	for in.chip.Pending() > 0 {
		select {
		case <-ctx.Done():
			return false
		case <-t.C:
		}
	}
	return true
}
