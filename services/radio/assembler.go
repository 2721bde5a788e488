package radio

import (
	"time"

	"wmbus-radio-go/types"
)

// LengthFunc inspects the bytes of a frame received so far and returns the
// total frame length once the prefix determines it, or 0 while unknown.
type LengthFunc func(prefix []byte) int

// item is one queued byte. Start marks the first byte after a gap or a
// receiver restart; only start items carry RSSI and timestamp.
type item struct {
	b     byte
	start bool
	rssi  int8
	ts    time.Time
}

// assembler groups queued bytes into frames. A frame ends at the next start
// marker, when the length reported by length is reached, at max bytes, or
// when the owner calls flush after an idle gap.
type assembler struct {
	buf    []byte
	rssi   int8
	ts     time.Time
	want   int
	max    int
	length LengthFunc
	emit   func(types.Frame)
}

func newAssembler(max int, length LengthFunc, emit func(types.Frame)) *assembler {
	return &assembler{buf: make([]byte, 0, max), max: max, length: length, emit: emit}
}

func (a *assembler) push(it item) {
	if it.start {
		a.flush()
		a.rssi, a.ts = it.rssi, it.ts
	}
	if len(a.buf) == 0 && a.ts.IsZero() {
		a.ts = time.Now()
	}
	a.buf = append(a.buf, it.b)

	if a.want == 0 && a.length != nil {
		if n := a.length(a.buf); n > 0 {
			a.want = min(n, a.max)
		}
	}
	if (a.want > 0 && len(a.buf) >= a.want) || len(a.buf) >= a.max {
		a.flush()
	}
}

// pending reports whether a frame is in flight.
func (a *assembler) pending() bool { return len(a.buf) > 0 }

// flush emits the in-flight frame, if any. RSSI carries over to bytes that
// follow without a new start marker.
func (a *assembler) flush() {
	if len(a.buf) > 0 {
		a.emit(types.NewFrame(a.buf, a.rssi, a.ts))
	}
	a.buf = a.buf[:0]
	a.want = 0
	a.ts = time.Time{}
}

// reset drops the in-flight frame.
func (a *assembler) reset() {
	a.buf = a.buf[:0]
	a.want = 0
	a.ts = time.Time{}
}
