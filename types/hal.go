package types

// ------------------------
// Radio state (retained)
// ------------------------

// Level is the coarse radio condition published on the state topic.
type Level string

const (
	LevelIdle      Level = "idle"
	LevelReceiving Level = "receiving"
	LevelError     Level = "error"
	LevelStopped   Level = "stopped"
)

type RadioState struct {
	Radio  string `json:"radio"`
	Chip   string `json:"chip"`
	Level  Level  `json:"level"`
	Status string `json:"status"`                 // short machine string
	Driver string `json:"driver_state,omitempty"` // chip driver State, if it reports one
	Error  string `json:"error,omitempty"`        // errcode value
	TS     int64  `json:"ts_ms"`
}

// ------------------------
// Frame event (not retained)
// ------------------------

// FrameEvent is the bus payload for one received frame.
type FrameEvent struct {
	ID    string `json:"id"` // ULID, sorts by reception time
	Radio string `json:"radio"`
	Frame Frame  `json:"-"`
	RSSI  int8   `json:"rssi"`
	Hex   string `json:"hex"`
	TS    int64  `json:"ts_ms"`
}

// ------------------------
// Pipeline counters (retained)
// ------------------------

type Stats struct {
	BytesReceived   uint64 `json:"bytes_received"`
	BytesDropped    uint64 `json:"bytes_dropped"`
	FramesReceived  uint64 `json:"frames_received"`
	Overflows       uint64 `json:"overflows"`
	Restarts        uint64 `json:"restarts"`
	ReadErrors      uint64 `json:"read_errors"`
	HandlerFailures uint64 `json:"handler_failures"`
	Wakeups         uint64 `json:"wakeups"`
}
