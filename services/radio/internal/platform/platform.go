// Package platform wires transceiver buses and pins to host hardware.
package platform

import (
	"errors"

	"tinygo.org/x/drivers"

	"wmbus-radio-go/types"
)

// ErrUnsupported is returned by Open on hosts without a hardware backend.
var ErrUnsupported = errors.New("platform: no hardware backend for this host")

// HW names the hardware resources. Pin names are host specific
// (e.g. "GPIO25" on a Raspberry Pi). Empty means not connected.
type HW struct {
	SPIPort    string // e.g. "/dev/spidev0.0"; empty selects the first port
	SPIClockHz int64
	CSPin      string
	ResetPin   string
	DataPin    string
	IRQPin     string
}

// Board is the opened hardware for one transceiver.
type Board struct {
	SPI   drivers.SPI
	CS    types.Pin
	Reset types.Pin
	Data  types.IRQPin
	IRQ   types.IRQPin

	closers []func() error
}

func (b *Board) onClose(fn func() error) { b.closers = append(b.closers, fn) }

// Close releases the hardware in reverse order of acquisition.
func (b *Board) Close() error {
	var errs []error
	for i := len(b.closers) - 1; i >= 0; i-- {
		if err := b.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	b.closers = nil
	return errors.Join(errs...)
}
