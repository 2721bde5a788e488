package platform

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wmbus-radio-go/types"
)

func TestFakePinFiresOnConfiguredEdge(t *testing.T) {
	p := NewFakePin("gdo0")
	calls := 0
	require.NoError(t, p.SetIRQ(types.EdgeRising, func() { calls++ }))

	p.Set(true)  // rising
	p.Set(true)  // no edge
	p.Set(false) // falling
	p.Set(true)  // rising
	assert.Equal(t, 2, calls)
	assert.Equal(t, 2, p.Fired())

	require.NoError(t, p.ClearIRQ())
	p.Set(false)
	p.Set(true)
	assert.Equal(t, 2, calls)
}

func TestFakePinBothEdges(t *testing.T) {
	p := NewFakePin("gdo0")
	calls := 0
	require.NoError(t, p.SetIRQ(types.EdgeBoth, func() { calls++ }))
	p.Set(true)
	p.Set(false)
	assert.Equal(t, 2, calls)
}

func TestBoardCloseOrder(t *testing.T) {
	var order []int
	b := &Board{}
	b.onClose(func() error { order = append(order, 1); return nil })
	b.onClose(func() error { order = append(order, 2); return nil })
	require.NoError(t, b.Close())
	assert.Equal(t, []int{2, 1}, order)
	require.NoError(t, b.Close())
	assert.Equal(t, []int{2, 1}, order)
}
