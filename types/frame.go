package types

import (
	"time"

	"wmbus-radio-go/x/conv"
)

// Frame is one received radio frame: the raw payload bytes as they left the
// transceiver FIFO and the signal strength sampled when the frame started.
//
// A Frame is immutable once built. Handlers may keep a reference to Data()
// only for the duration of the callback; copy it to retain it.
type Frame struct {
	data []byte
	rssi int8
	ts   time.Time
}

// NewFrame copies data into a new Frame.
func NewFrame(data []byte, rssi int8, ts time.Time) Frame {
	return Frame{
		data: append([]byte(nil), data...),
		rssi: rssi,
		ts:   ts,
	}
}

// Data returns the payload. Callers must not modify it.
func (f Frame) Data() []byte { return f.data }

// Len returns the payload length in bytes.
func (f Frame) Len() int { return len(f.data) }

// RSSI returns the signal strength in dBm.
func (f Frame) RSSI() int8 { return f.rssi }

// ReceivedAt is the time the first byte of the frame was read from the chip.
func (f Frame) ReceivedAt() time.Time { return f.ts }

// AsHex renders the payload as uppercase hex without separators.
func (f Frame) AsHex() string {
	return string(conv.AppendHex(make([]byte, 0, 2*len(f.data)), f.data))
}

// AsRTLWMBus renders the frame in the rtl_wmbus capture line format
// "T1;<rssi>;<HEX>" consumed by existing wM-Bus decoding tools.
func (f Frame) AsRTLWMBus() string {
	return string(f.AppendRTLWMBus(make([]byte, 0, 8+2*len(f.data))))
}

// AppendRTLWMBus appends the rtl_wmbus line (without newline) to dst.
func (f Frame) AppendRTLWMBus(dst []byte) []byte {
	dst = append(dst, "T1;"...)
	dst = conv.AppendInt(dst, int64(f.rssi))
	dst = append(dst, ';')
	return conv.AppendHex(dst, f.data)
}

func (f Frame) String() string { return f.AsRTLWMBus() }
