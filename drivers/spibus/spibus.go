// Package spibus provides the register-level transaction primitives shared by
// SPI transceiver drivers.
//
// A transaction is one exclusive bus session: chip select asserted, a control
// byte (opcode flags | register address), zero or more data bytes, chip select
// released. The session is the unit of mutual exclusion when the bus is shared
// with other peripherals. Acquiring it blocks without a timeout; callers that
// need bounded latency must arrange that externally.
package spibus

import (
	"sync"

	"tinygo.org/x/drivers"

	"wmbus-radio-go/errcode"
	"wmbus-radio-go/types"
)

// Opcode flags combined with the register address in the control byte.
const (
	FlagWrite byte = 0x00
	FlagRead  byte = 0x80
	FlagBurst byte = 0x40
)

// Delegate is an exclusive bus session as provided by the host SPI layer.
type Delegate interface {
	BeginTransaction()
	EndTransaction()
	Transfer(b byte) (byte, error)
}

// Session adapts a TinyGo drivers.SPI plus a chip-select pin into a Delegate.
//
// Devices sharing one physical bus must share the same lock so that their
// sessions never interleave.
type Session struct {
	spi  drivers.SPI
	cs   types.Pin // active low; nil when the port asserts CS itself
	lock sync.Locker

	rx [1]byte
	tx [1]byte
}

// NewSession builds a Session and drives cs high. lock may be nil for a bus
// with one device.
func NewSession(spi drivers.SPI, cs types.Pin, lock sync.Locker) (*Session, error) {
	if lock == nil {
		lock = &sync.Mutex{}
	}
	if cs != nil {
		if err := cs.ConfigureOutput(true); err != nil {
			return nil, errcode.Wrap(errcode.BusError, "spibus.cs", err)
		}
	}
	return &Session{spi: spi, cs: cs, lock: lock}, nil
}

// BeginTransaction blocks until the bus is free, then asserts chip select.
func (s *Session) BeginTransaction() {
	s.lock.Lock()
	if s.cs != nil {
		s.cs.Set(false)
	}
}

// EndTransaction releases chip select and the bus.
func (s *Session) EndTransaction() {
	if s.cs != nil {
		s.cs.Set(true)
	}
	s.lock.Unlock()
}

// Transfer clocks one byte out and returns the byte clocked in.
func (s *Session) Transfer(b byte) (byte, error) {
	s.tx[0] = b
	if err := s.spi.Tx(s.tx[:], s.rx[:]); err != nil {
		return 0, err
	}
	return s.rx[0], nil
}

// Transaction runs one session: control byte op|addr, then each data byte in
// order. It returns the last byte clocked in (the reply to the final data
// byte, or the chip status byte when data is empty).
func Transaction(d Delegate, op, addr byte, data []byte) (last byte, err error) {
	d.BeginTransaction()
	defer d.EndTransaction()

	if last, err = d.Transfer(op | addr); err != nil {
		return 0, errcode.Wrap(errcode.BusError, "transaction", err)
	}
	for _, b := range data {
		if last, err = d.Transfer(b); err != nil {
			return 0, errcode.Wrap(errcode.BusError, "transaction", err)
		}
	}
	return last, nil
}

// ReadRegister reads a single register.
func ReadRegister(d Delegate, addr byte) (byte, error) {
	return Transaction(d, FlagRead, addr, []byte{0})
}

// ReadBurst reads len(dst) consecutive bytes starting at addr in one session.
func ReadBurst(d Delegate, addr byte, dst []byte) error {
	d.BeginTransaction()
	defer d.EndTransaction()

	if _, err := d.Transfer(FlagRead | FlagBurst | addr); err != nil {
		return errcode.Wrap(errcode.BusError, "read_burst", err)
	}
	for i := range dst {
		b, err := d.Transfer(0)
		if err != nil {
			return errcode.Wrap(errcode.BusError, "read_burst", err)
		}
		dst[i] = b
	}
	return nil
}

// WriteRegister writes a single register.
func WriteRegister(d Delegate, addr, val byte) error {
	_, err := Transaction(d, FlagWrite, addr, []byte{val})
	return err
}

// Strobe sends a command byte with no address or data phase and returns the
// status byte the chip clocks back.
func Strobe(d Delegate, cmd byte) (byte, error) {
	return Transaction(d, 0, cmd, nil)
}
