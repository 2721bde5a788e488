package radio

import (
	"fmt"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"wmbus-radio-go/drivers/cc1101"
	"wmbus-radio-go/drivers/cc1101/ccsim"
	"wmbus-radio-go/drivers/spibus"
	"wmbus-radio-go/services/config"
	"wmbus-radio-go/services/radio/internal/platform"
	"wmbus-radio-go/types"
)

// Radio is an opened transceiver with its data-ready line.
type Radio struct {
	Dev types.Transceiver
	// DataPin raises an edge when the chip has bytes; nil means poll only.
	DataPin types.IRQPin

	close func() error
}

// Close releases the hardware.
func (r *Radio) Close() error {
	if r.close == nil {
		return nil
	}
	return r.close()
}

// busLock serialises every session on the host SPI buses.
var busLock sync.Mutex

// OpenHardware opens the transceiver described by rc on the host SPI bus.
func OpenHardware(rc config.RadioConfig, log *zerolog.Logger) (*Radio, error) {
	if !strings.EqualFold(rc.Chip, "cc1101") {
		return nil, fmt.Errorf("radio: unsupported chip %q", rc.Chip)
	}
	board, err := platform.Open(hardwareFor(rc, log))
	if err != nil {
		return nil, err
	}

	ccfg, err := cc1101.ConfigFrom(types.TransceiverConfig{
		ResetPin:     board.Reset,
		DataPin:      board.Data,
		IRQPin:       board.IRQ,
		FrequencyMHz: rc.FrequencyMHz,
	})
	if err != nil {
		_ = board.Close()
		return nil, err
	}
	ccfg.Logger = log

	sess, err := spibus.NewSession(board.SPI, board.CS, &busLock)
	if err != nil {
		_ = board.Close()
		return nil, err
	}
	return &Radio{
		Dev:     cc1101.New(sess, ccfg),
		DataPin: board.Data,
		close:   board.Close,
	}, nil
}

// hardwareFor maps rc onto the pins to open. The CC1101 path signals through
// GDO0 only, so a configured sync_pin is reported and left unopened.
func hardwareFor(rc config.RadioConfig, log *zerolog.Logger) platform.HW {
	if rc.SyncPin != "" && log != nil {
		log.Warn().Str("radio_id", rc.ID).Str("sync_pin", rc.SyncPin).Msg("sync_pin not used by cc1101, ignoring")
	}
	return platform.HW{
		SPIPort:    rc.SPI.Port,
		SPIClockHz: rc.SPI.ClockHz,
		CSPin:      rc.SPI.CSPin,
		ResetPin:   rc.ResetPin,
		DataPin:    rc.DataPin,
		IRQPin:     rc.IRQPin,
	}
}

// OpenSimulated wires a CC1101 driver to a simulated chip. The chip's GDO0
// line is routed to an in-memory pin so injected bytes raise interrupts the
// same way hardware does.
func OpenSimulated(chip *ccsim.Chip, frequencyMHz float64, log *zerolog.Logger) (*Radio, error) {
	sess, err := spibus.NewSession(chip, chip.CS(), nil)
	if err != nil {
		return nil, err
	}
	gdo0 := platform.NewFakePin("sim.gdo0")
	chip.AttachGDO0(gdo0)
	dev := cc1101.New(sess, cc1101.Config{
		FrequencyMHz: frequencyMHz,
		Logger:       log,
	})
	return &Radio{Dev: dev, DataPin: gdo0}, nil
}
