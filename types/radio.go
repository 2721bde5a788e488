package types

// Transceiver is the capability set every supported radio chip provides.
// The receiver pipeline only talks to this interface.
//
// Implementations are not safe for concurrent use; the pipeline calls them
// from a single worker goroutine.
type Transceiver interface {
	// Setup resets and programs the chip and enters receive mode.
	Setup() error
	// Read returns one byte from the receive FIFO. ok is false when the FIFO
	// is empty. Read never waits for data.
	Read() (b byte, ok bool, err error)
	// RestartRX drops FIFO contents and re-enters receive mode.
	RestartRX() error
	// RSSI samples the current signal strength in dBm.
	RSSI() (int8, error)
	// Name identifies the chip for logs and diagnostics.
	Name() string
}

// State is the driver state machine position.
type State uint8

const (
	StateUninitialized State = iota
	StateIdle
	StateReceiving
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateReceiving:
		return "receiving"
	default:
		return "uninitialized"
	}
}

// Stater is implemented by transceivers that expose their state machine.
type Stater interface {
	State() State
}

// DefaultFrequencyMHz is the wM-Bus T-mode centre frequency.
const DefaultFrequencyMHz = 868.95

// TransceiverConfig is the host-supplied wiring for one transceiver. Pins are
// optional; nil means "not connected".
type TransceiverConfig struct {
	ResetPin     Pin    // drives the chip reset line
	DataPin      IRQPin // data-ready / GDO0
	SyncPin      Pin    // secondary status / GDO2
	IRQPin       IRQPin // interrupt source on chips that have one
	FrequencyMHz float64
}
