//go:build linux

package platform

import (
	"fmt"
	"sync"
	"time"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/conn/v3/spi"
	"periph.io/x/conn/v3/spi/spireg"
	"periph.io/x/host/v3"

	"wmbus-radio-go/types"
)

const defaultClockHz = 4_000_000

// Open initialises periph.io and opens the SPI port and pins named in hw.
//
// Chip select is driven from a GPIO so one select spans a whole register
// transaction; the kernel's per-transfer CS handling is disabled.
func Open(hw HW) (*Board, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("platform: periph host init: %w", err)
	}
	if hw.CSPin == "" {
		return nil, fmt.Errorf("platform: spi cs_pin is required")
	}

	b := &Board{}
	port, err := spireg.Open(hw.SPIPort)
	if err != nil {
		return nil, fmt.Errorf("platform: open spi %q: %w", hw.SPIPort, err)
	}
	b.onClose(port.Close)

	clk := hw.SPIClockHz
	if clk <= 0 {
		clk = defaultClockHz
	}
	conn, err := port.Connect(physic.Frequency(clk)*physic.Hertz, spi.Mode0|spi.NoCS, 8)
	if err != nil {
		_ = b.Close()
		return nil, fmt.Errorf("platform: spi connect: %w", err)
	}
	b.SPI = &spiConn{c: conn}

	pins := []struct {
		name string
		dst  *types.Pin
	}{
		{hw.CSPin, &b.CS},
		{hw.ResetPin, &b.Reset},
	}
	for _, p := range pins {
		if p.name == "" {
			continue
		}
		pin, err := lookup(p.name)
		if err != nil {
			_ = b.Close()
			return nil, err
		}
		*p.dst = pin
	}
	for _, p := range []struct {
		name string
		dst  *types.IRQPin
	}{
		{hw.DataPin, &b.Data},
		{hw.IRQPin, &b.IRQ},
	} {
		if p.name == "" {
			continue
		}
		pin, err := lookup(p.name)
		if err != nil {
			_ = b.Close()
			return nil, err
		}
		*p.dst = pin
		b.onClose(pin.ClearIRQ)
	}
	return b, nil
}

func lookup(name string) (*periphPin, error) {
	p := gpioreg.ByName(name)
	if p == nil {
		return nil, fmt.Errorf("platform: unknown gpio %q", name)
	}
	return &periphPin{io: p}, nil
}

// spiConn adapts a periph spi.Conn to drivers.SPI.
type spiConn struct {
	c  spi.Conn
	tx [1]byte
	rx [1]byte
}

func (s *spiConn) Tx(w, r []byte) error {
	if len(r) < len(w) {
		buf := make([]byte, len(w))
		if err := s.c.Tx(w, buf); err != nil {
			return err
		}
		copy(r, buf)
		return nil
	}
	return s.c.Tx(w, r[:len(w)])
}

func (s *spiConn) Transfer(b byte) (byte, error) {
	s.tx[0] = b
	if err := s.c.Tx(s.tx[:], s.rx[:]); err != nil {
		return 0, err
	}
	return s.rx[0], nil
}

// periphPin adapts a periph gpio.PinIO to types.IRQPin. Interrupts are
// delivered by a goroutine blocked in WaitForEdge.
type periphPin struct {
	io gpio.PinIO

	mu   sync.Mutex
	stop chan struct{}
	done chan struct{}
}

func (p *periphPin) ConfigureInput(pull types.Pull) error {
	return p.io.In(toPull(pull), gpio.NoEdge)
}

func (p *periphPin) ConfigureOutput(initial bool) error {
	return p.io.Out(gpio.Level(initial))
}

func (p *periphPin) Set(level bool) { _ = p.io.Out(gpio.Level(level)) }
func (p *periphPin) Get() bool      { return p.io.Read() == gpio.High }
func (p *periphPin) Name() string   { return p.io.Name() }

func (p *periphPin) SetIRQ(edge types.Edge, handler func()) error {
	if err := p.ClearIRQ(); err != nil {
		return err
	}
	if err := p.io.In(gpio.PullNoChange, toEdge(edge)); err != nil {
		return fmt.Errorf("platform: %s edge: %w", p.io.Name(), err)
	}
	stop, done := make(chan struct{}), make(chan struct{})
	p.mu.Lock()
	p.stop, p.done = stop, done
	p.mu.Unlock()

	go func() {
		defer close(done)
		for {
			select {
			case <-stop:
				return
			default:
			}
			if p.io.WaitForEdge(100 * time.Millisecond) {
				handler()
			}
		}
	}()
	return nil
}

func (p *periphPin) ClearIRQ() error {
	p.mu.Lock()
	stop, done := p.stop, p.done
	p.stop, p.done = nil, nil
	p.mu.Unlock()
	if stop == nil {
		return nil
	}
	close(stop)
	<-done
	return p.io.In(gpio.PullNoChange, gpio.NoEdge)
}

func toPull(p types.Pull) gpio.Pull {
	switch p {
	case types.PullUp:
		return gpio.PullUp
	case types.PullDown:
		return gpio.PullDown
	default:
		return gpio.Float
	}
}

func toEdge(e types.Edge) gpio.Edge {
	switch e {
	case types.EdgeRising:
		return gpio.RisingEdge
	case types.EdgeFalling:
		return gpio.FallingEdge
	case types.EdgeBoth:
		return gpio.BothEdges
	default:
		return gpio.NoEdge
	}
}
