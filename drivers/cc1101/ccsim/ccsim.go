// Package ccsim simulates a CC1101 at the SPI byte level.
//
// Chip implements drivers.SPI and exposes its chip-select line as a
// types.Pin, so it plugs into spibus.NewSession exactly like real hardware:
//
//	chip := ccsim.New()
//	sess, err := spibus.NewSession(chip, chip.CS(), nil)
//	...
//	dev := cc1101.New(sess, cc1101.Config{})
//
// It models the register file, status registers, command strobes, the RX FIFO
// with its overflow condition and the GDO0 data-ready line. Every strobe and
// register write is recorded for inspection.
package ccsim

import (
	"sync"

	"wmbus-radio-go/types"
)

// FIFOSize is the depth of the RX FIFO.
const FIFOSize = 64

// MARCSTATE values produced by the simulator.
const (
	MarcSleep      = 0x00
	MarcIdle       = 0x01
	MarcRX         = 0x0D
	MarcRXOverflow = 0x11
)

const (
	flagRead  = 0x80
	flagBurst = 0x40

	addrPARTNUM   = 0x30
	addrVERSION   = 0x31
	addrRSSI      = 0x34
	addrMARCSTATE = 0x35
	addrRXBYTES   = 0x3B
	addrFIFO      = 0x3F

	strobeSRES  = 0x30
	strobeSCAL  = 0x33
	strobeSRX   = 0x34
	strobeSIDLE = 0x36
	strobeSFRX  = 0x3A
	strobeSFTX  = 0x3B
	strobeSNOP  = 0x3D
)

// Write is one recorded register write.
type Write struct {
	Addr byte
	Val  byte
}

// Chip is a simulated CC1101. Safe for concurrent use.
type Chip struct {
	mu sync.Mutex

	regs    [0x30]byte
	version byte
	partnum byte
	rssi    byte
	marc    byte

	fifo     []byte
	overflow bool

	// current SPI session
	selected bool
	header   bool // control byte seen
	addr     byte
	read     bool
	burst    bool

	strobes []byte
	writes  []Write

	gdo0 types.Pin
	cs   *csPin
}

// New returns a powered-up chip answering with VERSION 0x14.
func New() *Chip {
	c := &Chip{version: 0x14, marc: MarcIdle}
	c.cs = &csPin{chip: c, level: true}
	return c
}

// SetVersion sets the VERSION status register. 0x00 or 0xFF models a chip
// that is absent or not powered.
func (c *Chip) SetVersion(v byte) { c.mu.Lock(); c.version = v; c.mu.Unlock() }

// SetRSSIRaw sets the raw RSSI status register.
func (c *Chip) SetRSSIRaw(v byte) { c.mu.Lock(); c.rssi = v; c.mu.Unlock() }

// SetMarcState forces the radio state, e.g. to model a chip left in SLEEP.
func (c *Chip) SetMarcState(v byte) { c.mu.Lock(); c.marc = v; c.mu.Unlock() }

// AttachGDO0 routes the data-ready line to p. The line is high while the RX
// FIFO holds data.
func (c *Chip) AttachGDO0(p types.Pin) { c.mu.Lock(); c.gdo0 = p; c.mu.Unlock() }

// CS returns the active-low chip-select line.
func (c *Chip) CS() types.Pin { return c.cs }

// Inject delivers received bytes into the RX FIFO. Bytes are only accepted
// in RX. A full FIFO sets the overflow condition and the chip stops
// receiving until SFRX. It returns the number of bytes accepted.
func (c *Chip) Inject(p []byte) int {
	c.mu.Lock()
	n := 0
	for _, b := range p {
		if c.marc != MarcRX {
			break
		}
		if len(c.fifo) >= FIFOSize {
			c.overflow = true
			c.marc = MarcRXOverflow
			break
		}
		c.fifo = append(c.fifo, b)
		n++
	}
	pin := c.gdo0
	level := len(c.fifo) > 0
	c.mu.Unlock()
	if pin != nil && n > 0 {
		pin.Set(level)
	}
	return n
}

// Pending returns the number of bytes in the RX FIFO.
func (c *Chip) Pending() int { c.mu.Lock(); defer c.mu.Unlock(); return len(c.fifo) }

// MarcState returns the radio state.
func (c *Chip) MarcState() byte { c.mu.Lock(); defer c.mu.Unlock(); return c.marc }

// Register returns a configuration register value.
func (c *Chip) Register(addr byte) byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	if int(addr) >= len(c.regs) {
		return 0
	}
	return c.regs[addr]
}

// Strobes returns the strobes received so far, in order.
func (c *Chip) Strobes() []byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]byte(nil), c.strobes...)
}

// Writes returns the register writes received so far, in order.
func (c *Chip) Writes() []Write {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Write(nil), c.writes...)
}

// ResetLog clears the strobe and write logs.
func (c *Chip) ResetLog() {
	c.mu.Lock()
	c.strobes, c.writes = nil, nil
	c.mu.Unlock()
}

// Tx implements drivers.SPI.
func (c *Chip) Tx(w, r []byte) error {
	for i, b := range w {
		out := c.transfer(b)
		if i < len(r) {
			r[i] = out
		}
	}
	return nil
}

// Transfer implements drivers.SPI.
func (c *Chip) Transfer(b byte) (byte, error) {
	return c.transfer(b), nil
}

func (c *Chip) selectChip(sel bool) {
	c.mu.Lock()
	c.selected = sel
	c.header = false
	c.mu.Unlock()
}

func (c *Chip) transfer(b byte) byte {
	c.mu.Lock()
	if !c.selected {
		c.mu.Unlock()
		return 0xFF
	}
	if !c.header {
		c.header = true
		c.addr = b & 0x3F
		c.read = b&flagRead != 0
		c.burst = b&flagBurst != 0
		st := c.statusByte()
		// Strobes are header-only. Reads with the burst bit reach the status
		// registers instead.
		if c.addr >= 0x30 && c.addr != addrFIFO && !(c.read && c.burst) {
			c.strobe(c.addr)
		}
		c.mu.Unlock()
		return st
	}
	fifoRead := c.addr == addrFIFO && c.read
	out := c.data(b)
	pin, drained := c.gdo0, len(c.fifo) == 0
	c.mu.Unlock()
	if fifoRead && drained && pin != nil {
		pin.Set(false)
	}
	return out
}

// data handles one byte after the control byte. Caller holds mu.
func (c *Chip) data(b byte) byte {
	a := c.addr
	if c.burst && a != addrFIFO && a < 0x30 {
		c.addr++
	}
	switch {
	case a == addrFIFO:
		if !c.read || len(c.fifo) == 0 {
			return 0
		}
		v := c.fifo[0]
		c.fifo = c.fifo[1:]
		return v
	case a >= 0x30:
		return c.status(a)
	case c.read:
		return c.regs[a]
	default:
		c.regs[a] = b
		c.writes = append(c.writes, Write{Addr: a, Val: b})
		return c.statusByte()
	}
}

func (c *Chip) status(a byte) byte {
	switch a {
	case addrPARTNUM:
		return c.partnum
	case addrVERSION:
		return c.version
	case addrRSSI:
		return c.rssi
	case addrMARCSTATE:
		return c.marc
	case addrRXBYTES:
		n := byte(len(c.fifo))
		if c.overflow {
			n |= 0x80
		}
		return n
	}
	return 0
}

func (c *Chip) strobe(cmd byte) {
	c.strobes = append(c.strobes, cmd)
	switch cmd {
	case strobeSRES:
		c.regs = [0x30]byte{}
		c.fifo, c.overflow = nil, false
		c.marc = MarcIdle
	case strobeSCAL, strobeSIDLE:
		c.marc = MarcIdle
	case strobeSRX:
		if !c.overflow {
			c.marc = MarcRX
		}
	case strobeSFRX:
		if c.marc == MarcIdle || c.marc == MarcRXOverflow {
			c.fifo, c.overflow = nil, false
			c.marc = MarcIdle
		}
	case strobeSFTX, strobeSNOP:
	}
}

// statusByte is the chip status returned on every header byte: state in
// bits 6:4, FIFO bytes available (capped at 15) in bits 3:0.
func (c *Chip) statusByte() byte {
	var st byte
	switch c.marc {
	case MarcRX:
		st = 1
	case MarcRXOverflow:
		st = 6
	}
	n := len(c.fifo)
	if n > 15 {
		n = 15
	}
	return st<<4 | byte(n)
}

// csPin is the chip-select input. Driving it low opens an SPI session.
type csPin struct {
	chip  *Chip
	mu    sync.Mutex
	level bool
}

func (p *csPin) ConfigureInput(types.Pull) error { return nil }
func (p *csPin) ConfigureOutput(initial bool) error {
	p.Set(initial)
	return nil
}
func (p *csPin) Set(level bool) {
	p.mu.Lock()
	p.level = level
	p.mu.Unlock()
	p.chip.selectChip(!level)
}
func (p *csPin) Get() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.level
}
func (p *csPin) Name() string { return "ccsim.cs" }
