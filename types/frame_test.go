package types

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFrameRenderings(t *testing.T) {
	f := NewFrame([]byte{0xAB, 0xCD}, -42, time.Unix(0, 0))
	assert.Equal(t, "ABCD", f.AsHex())
	assert.Equal(t, "T1;-42;ABCD", f.AsRTLWMBus())
	assert.Equal(t, f.AsRTLWMBus(), f.String())
	assert.Equal(t, 2, f.Len())
	assert.Equal(t, int8(-42), f.RSSI())
}

func TestFrameCopiesInput(t *testing.T) {
	src := []byte{1, 2, 3}
	f := NewFrame(src, 0, time.Time{})
	src[0] = 0xFF
	require.Equal(t, []byte{1, 2, 3}, f.Data())
}

func TestFrameEmptyAndPositiveRSSI(t *testing.T) {
	assert.Equal(t, "T1;0;", NewFrame(nil, 0, time.Time{}).AsRTLWMBus())
	assert.Equal(t, "T1;12;00", NewFrame([]byte{0}, 12, time.Time{}).AsRTLWMBus())
}

func TestStateAndEdgeStrings(t *testing.T) {
	assert.Equal(t, "uninitialized", StateUninitialized.String())
	assert.Equal(t, "idle", StateIdle.String())
	assert.Equal(t, "receiving", StateReceiving.String())
	assert.Equal(t, "rising", EdgeRising.String())
	assert.Equal(t, "none", EdgeNone.String())
}
