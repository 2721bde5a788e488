// Package cc1101 drives a TI CC1101 sub-GHz transceiver as a wM-Bus T-mode
// receiver.
//
// The chip runs in infinite packet length mode with no hardware framing; the
// driver only delivers the raw byte stream from the RX FIFO, one byte per
// Read, and leaves framing to the caller. All register access goes through a
// spibus.Delegate, one bus session per register operation.
//
//	d := cc1101.New(session, cc1101.Config{FrequencyMHz: 868.95})
//	if err := d.Setup(); err != nil { ... }
//	for {
//		b, ok, err := d.Read()
//		...
//	}
package cc1101

import (
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"wmbus-radio-go/drivers/spibus"
	"wmbus-radio-go/errcode"
	"wmbus-radio-go/types"
	"wmbus-radio-go/x/mathx"
)

// Name is returned by Device.Name.
const Name = "CC1101"

// Errors returned by the driver.
var (
	ErrChipNotResponding = errors.New("cc1101: chip not responding")
	ErrInvalidFrequency  = errors.New("cc1101: frequency out of range")
	ErrIRQPinUnsupported = errors.New("cc1101: irq_pin is not supported, use data_pin")
)

// Settle times from the datasheet.
const (
	resetHold     = 100 * time.Microsecond
	resetSettle   = time.Millisecond
	calibrateWait = 750 * time.Microsecond
	rxSettle      = 100 * time.Microsecond
)

// Config controls non-bus wiring. All fields are optional.
type Config struct {
	// FrequencyMHz defaults to types.DefaultFrequencyMHz if zero.
	FrequencyMHz float64
	// ResetPin is pulsed low during Setup when set.
	ResetPin types.Pin
	// Logger defaults to a disabled logger.
	Logger *zerolog.Logger
	// Sleep defaults to time.Sleep. Tests replace it to skip settle delays.
	Sleep func(time.Duration)
}

// ConfigFrom maps the host transceiver wiring onto a driver Config. The
// CC1101 signals data through GDO0 (DataPin); an IRQPin is rejected and
// SyncPin (GDO2) is not used.
func ConfigFrom(tc types.TransceiverConfig) (Config, error) {
	if tc.IRQPin != nil {
		return Config{}, ErrIRQPinUnsupported
	}
	return Config{FrequencyMHz: tc.FrequencyMHz, ResetPin: tc.ResetPin}, nil
}

// Device is a CC1101 on a register bus. It is not safe for concurrent use
// except for State, which may be read from any goroutine.
type Device struct {
	bus   spibus.Delegate
	cfg   Config
	log   zerolog.Logger
	sleep func(time.Duration)

	state   atomic.Uint32
	partnum byte
	version byte
	actual  uint32 // programmed frequency in Hz
}

var _ types.Transceiver = (*Device)(nil)
var _ types.Stater = (*Device)(nil)

// New creates a Device. It does not touch the chip.
func New(bus spibus.Delegate, cfg Config) *Device {
	if cfg.FrequencyMHz == 0 {
		cfg.FrequencyMHz = types.DefaultFrequencyMHz
	}
	d := &Device{bus: bus, cfg: cfg, sleep: cfg.Sleep}
	if d.sleep == nil {
		d.sleep = time.Sleep
	}
	if cfg.Logger != nil {
		d.log = cfg.Logger.With().Str("chip", Name).Logger()
	} else {
		d.log = zerolog.Nop()
	}
	return d
}

func (d *Device) Name() string { return Name }

// State reports the driver state machine position.
func (d *Device) State() types.State { return types.State(d.state.Load()) }

func (d *Device) setState(s types.State) { d.state.Store(uint32(s)) }

// Version returns the PARTNUM and VERSION bytes read by the last Setup.
func (d *Device) Version() (partnum, version byte) { return d.partnum, d.version }

// FrequencyHz returns the frequency read back from the chip after Setup.
func (d *Device) FrequencyHz() uint32 { return d.actual }

// Setup resets the chip, verifies it answers, programs the T-mode register
// table and frequency, calibrates and enters RX.
//
// A chip that reads back 0x00 or 0xFF as its version is reported as
// ErrChipNotResponding; the device stays uninitialized and no RX strobe is
// issued. Setup may be called again to retry or to apply a new frequency.
func (d *Device) Setup() error {
	f := d.cfg.FrequencyMHz
	if !mathx.Between(f, MinFrequencyMHz, MaxFrequencyMHz) {
		return errcode.Wrap(errcode.InvalidConfig, "cc1101.setup", fmt.Errorf("%w: %.3f MHz", ErrInvalidFrequency, f))
	}
	d.setState(types.StateUninitialized)
	d.log.Debug().Msg("setting up")

	if err := d.reset(); err != nil {
		return err
	}
	d.sleep(resetSettle)

	version, err := d.readStatus(StatusVERSION)
	if err != nil {
		return err
	}
	if version == 0x00 || version == 0xFF {
		d.log.Error().Str("version", fmt.Sprintf("0x%02X", version)).Msg("chip not responding, check wiring")
		return errcode.Wrap(errcode.ChipNotResponding, "cc1101.setup",
			fmt.Errorf("%w (version 0x%02X)", ErrChipNotResponding, version))
	}
	partnum, err := d.readStatus(StatusPARTNUM)
	if err != nil {
		return err
	}
	d.partnum, d.version = partnum, version
	d.setState(types.StateIdle)
	d.log.Info().
		Str("partnum", fmt.Sprintf("0x%02X", partnum)).
		Str("version", fmt.Sprintf("0x%02X", version)).
		Msg("chip detected")

	for _, r := range tModeTable {
		if err := spibus.WriteRegister(d.bus, r.addr, r.val); err != nil {
			return err
		}
	}

	if err := d.programFrequency(f * 1e6); err != nil {
		return err
	}

	if err := d.strobe(StrobeSCAL); err != nil {
		return err
	}
	d.sleep(calibrateWait)
	if err := d.strobe(StrobeSFRX); err != nil {
		return err
	}
	if err := d.strobe(StrobeSFTX); err != nil {
		return err
	}
	if err := d.strobe(StrobeSRX); err != nil {
		return err
	}
	d.sleep(rxSettle)
	d.setState(types.StateReceiving)

	marc, err := d.readStatus(StatusMARCSTATE)
	if err != nil {
		return err
	}
	d.log.Debug().Str("marcstate", fmt.Sprintf("0x%02X", marc&0x1F)).Msg("entered rx")
	d.log.Info().Uint32("freq_hz", d.actual).Msg("setup complete")
	return nil
}

func (d *Device) reset() error {
	p := d.cfg.ResetPin
	if p == nil {
		return nil
	}
	if err := p.ConfigureOutput(true); err != nil {
		return errcode.Wrap(errcode.BusError, "cc1101.reset", err)
	}
	p.Set(false)
	d.sleep(resetHold)
	p.Set(true)
	d.sleep(resetHold)
	return nil
}

func (d *Device) programFrequency(hz float64) error {
	w := TuningWord(hz)
	for i, reg := range [...]byte{regFREQ2, regFREQ1, regFREQ0} {
		if err := spibus.WriteRegister(d.bus, reg, byte(w>>(8*(2-i)))); err != nil {
			return err
		}
	}

	var rb [3]byte
	for i, reg := range [...]byte{regFREQ2, regFREQ1, regFREQ0} {
		v, err := spibus.ReadRegister(d.bus, reg)
		if err != nil {
			return err
		}
		rb[i] = v
	}
	actual := uint32(rb[0])<<16 | uint32(rb[1])<<8 | uint32(rb[2])
	d.actual = FrequencyFromWord(actual)
	d.log.Debug().
		Uint32("freq_hz", d.actual).
		Str("word", fmt.Sprintf("0x%02X%02X%02X", rb[0], rb[1], rb[2])).
		Msg("frequency programmed")
	return nil
}

// Read returns one byte from the RX FIFO when RXBYTES reports data pending.
func (d *Device) Read() (byte, bool, error) {
	n, err := d.readStatus(StatusRXBYTES)
	if err != nil {
		return 0, false, err
	}
	if n&rxBytesMask == 0 {
		return 0, false, nil
	}
	b, err := spibus.Transaction(d.bus, spibus.FlagRead|spibus.FlagBurst, FIFO, []byte{0})
	if err != nil {
		return 0, false, err
	}
	return b, true, nil
}

// RestartRX idles the chip, flushes the RX FIFO and re-enters RX. It can be
// called from any state and leaves the device receiving.
func (d *Device) RestartRX() error {
	if err := d.strobe(StrobeSIDLE); err != nil {
		return err
	}
	d.sleep(rxSettle)
	if err := d.strobe(StrobeSFRX); err != nil {
		return err
	}
	if err := d.strobe(StrobeSRX); err != nil {
		return err
	}
	d.sleep(rxSettle)
	d.setState(types.StateReceiving)
	d.log.Trace().Msg("rx restarted")
	return nil
}

// RSSI samples the signal strength in dBm, saturated to the int8 range.
func (d *Device) RSSI() (int8, error) {
	raw, err := d.readStatus(StatusRSSI)
	if err != nil {
		return 0, err
	}
	return mathx.SaturateInt8(RSSIDBm(raw)), nil
}

func (d *Device) readStatus(addr byte) (byte, error) {
	return spibus.Transaction(d.bus, statusAccess, addr, []byte{0})
}

func (d *Device) strobe(cmd byte) error {
	_, err := spibus.Strobe(d.bus, cmd)
	return err
}
