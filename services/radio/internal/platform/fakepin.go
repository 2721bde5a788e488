package platform

import (
	"sync"

	"wmbus-radio-go/types"
)

// FakePin implements types.IRQPin in memory. Set fires the registered
// handler synchronously on a matching edge, standing in for an interrupt.
type FakePin struct {
	mu      sync.RWMutex
	name    string
	level   bool
	modeOut bool
	irqEdge types.Edge
	irqFunc func()
	fired   int
}

var _ types.IRQPin = (*FakePin)(nil)

func NewFakePin(name string) *FakePin { return &FakePin{name: name} }

func (p *FakePin) ConfigureInput(types.Pull) error {
	p.mu.Lock()
	p.modeOut = false
	p.mu.Unlock()
	return nil
}

func (p *FakePin) ConfigureOutput(initial bool) error {
	p.mu.Lock()
	p.modeOut = true
	p.level = initial
	p.mu.Unlock()
	return nil
}

func (p *FakePin) Set(level bool) {
	p.mu.Lock()
	edge := edgeFrom(p.level, level)
	p.level = level
	irq := p.irqFunc
	want := irq != nil && irqWanted(p.irqEdge, edge)
	if want {
		p.fired++
	}
	p.mu.Unlock()
	if want {
		irq()
	}
}

func (p *FakePin) Get() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.level
}

func (p *FakePin) Name() string { return p.name }

// Fired counts handler invocations.
func (p *FakePin) Fired() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.fired
}

func (p *FakePin) SetIRQ(edge types.Edge, handler func()) error {
	p.mu.Lock()
	p.irqEdge = edge
	p.irqFunc = handler
	p.mu.Unlock()
	return nil
}

func (p *FakePin) ClearIRQ() error {
	p.mu.Lock()
	p.irqEdge = types.EdgeNone
	p.irqFunc = nil
	p.mu.Unlock()
	return nil
}

func edgeFrom(old, new bool) types.Edge {
	switch {
	case !old && new:
		return types.EdgeRising
	case old && !new:
		return types.EdgeFalling
	default:
		return types.EdgeNone
	}
}

func irqWanted(cfg, seen types.Edge) bool {
	if seen == types.EdgeNone {
		return false
	}
	if cfg == types.EdgeBoth {
		return true
	}
	return cfg == seen
}
