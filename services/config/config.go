// Package config loads the receiver configuration from YAML and publishes
// its sections as retained messages under config/<section>.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"wmbus-radio-go/bus"
	"wmbus-radio-go/errcode"
	"wmbus-radio-go/x/mathx"
)

const configPrefix = "config"

// Validation errors.
var (
	ErrUnsupportedChip = errors.New("config: unsupported chip")
	ErrFrequencyRange  = errors.New("config: frequency_mhz out of range")
	ErrIRQPin          = errors.New("config: irq_pin is not supported by this chip, use data_pin")
	ErrSinkType        = errors.New("config: unknown sink type")
	ErrSinkTarget      = errors.New("config: sink needs a path or address")
	ErrPipeline        = errors.New("config: invalid pipeline setting")
)

// Frequency bounds accepted for any supported chip.
const (
	MinFrequencyMHz = 300.0
	MaxFrequencyMHz = 928.0
)

type Config struct {
	Radio     RadioConfig     `yaml:"radio"`
	Pipeline  PipelineConfig  `yaml:"pipeline"`
	Sink      SinkConfig      `yaml:"sink"`
	Heartbeat HeartbeatConfig `yaml:"heartbeat"`
	Log       LogConfig       `yaml:"log"`
}

// RadioConfig names the transceiver and its wiring.
type RadioConfig struct {
	ID           string    `yaml:"id"` // bus id, topic wmbus/<id>/...
	Chip         string    `yaml:"chip"`
	FrequencyMHz float64   `yaml:"frequency_mhz"`
	SPI          SPIConfig `yaml:"spi"`
	ResetPin     string    `yaml:"reset_pin"`
	DataPin      string    `yaml:"data_pin"` // GDO0 data-ready
	SyncPin      string    `yaml:"sync_pin"`
	IRQPin       string    `yaml:"irq_pin"`
}

type SPIConfig struct {
	Port    string `yaml:"port"`
	CSPin   string `yaml:"cs_pin"`
	ClockHz int64  `yaml:"clock_hz"`
}

type PipelineConfig struct {
	QueueSize     int           `yaml:"queue_size"`
	PollInterval  time.Duration `yaml:"poll_interval"`
	FrameGap      time.Duration `yaml:"frame_gap"`
	MaxFrameLen   int           `yaml:"max_frame_len"`
	StatsInterval time.Duration `yaml:"stats_interval"`
}

// SinkConfig selects where frame lines go.
type SinkConfig struct {
	Type    string `yaml:"type"`   // stdout | file | tcp | none
	Format  string `yaml:"format"` // rtlwmbus | hex
	Path    string `yaml:"path"`
	Address string `yaml:"address"`
	// DedupWindow drops a frame identical to one written within the window.
	DedupWindow time.Duration `yaml:"dedup_window"`
}

type HeartbeatConfig struct {
	Interval time.Duration `yaml:"interval"`
}

// LogConfig represents logging configuration.
type LogConfig struct {
	Level      string `yaml:"level"`
	Console    bool   `yaml:"console"`     // human readable output on stderr
	FilePath   string `yaml:"file_path"`   // JSON lines, rotated
	MaxSize    int    `yaml:"max_size"`    // MB
	MaxBackups int    `yaml:"max_backups"` // files kept
	MaxAge     int    `yaml:"max_age"`     // days
	Compress   bool   `yaml:"compress"`
}

// LoadDefaultConfig returns the built-in configuration.
func LoadDefaultConfig() *Config {
	cfg, err := Parse([]byte(defaultYAML))
	if err != nil {
		panic("config: built-in default is invalid: " + err.Error())
	}
	return cfg
}

// LoadConfig reads a YAML file. Keys absent from the file keep their
// built-in default values.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	return Parse(data)
}

// Parse decodes YAML over the built-in defaults and validates the result.
func Parse(data []byte) (*Config, error) {
	cfg := &Config{}
	if err := yaml.Unmarshal([]byte(defaultYAML), cfg); err != nil {
		return nil, fmt.Errorf("config: parse defaults: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, errcode.Wrap(errcode.InvalidConfig, "config.parse", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks option ranges and chip-specific constraints.
func (c *Config) Validate() error {
	if err := c.Radio.Validate(); err != nil {
		return errcode.Wrap(errcode.InvalidConfig, "config.radio", err)
	}
	if err := c.Pipeline.Validate(); err != nil {
		return errcode.Wrap(errcode.InvalidConfig, "config.pipeline", err)
	}
	if err := c.Sink.Validate(); err != nil {
		return errcode.Wrap(errcode.InvalidConfig, "config.sink", err)
	}
	return nil
}

func (r *RadioConfig) Validate() error {
	if r.ID == "" || strings.ContainsAny(r.ID, "/+#") {
		return fmt.Errorf("config: invalid radio id %q", r.ID)
	}
	switch strings.ToLower(r.Chip) {
	case "cc1101":
		if r.IRQPin != "" {
			return ErrIRQPin
		}
	default:
		return fmt.Errorf("%w: %q", ErrUnsupportedChip, r.Chip)
	}
	if !mathx.Between(r.FrequencyMHz, MinFrequencyMHz, MaxFrequencyMHz) {
		return fmt.Errorf("%w: %.3f (want %.0f..%.0f)", ErrFrequencyRange, r.FrequencyMHz, MinFrequencyMHz, MaxFrequencyMHz)
	}
	return nil
}

func (p *PipelineConfig) Validate() error {
	if p.QueueSize < 0 {
		return fmt.Errorf("%w: queue_size %d", ErrPipeline, p.QueueSize)
	}
	if p.FrameGap < 0 || p.StatsInterval < 0 {
		return fmt.Errorf("%w: negative duration", ErrPipeline)
	}
	if p.MaxFrameLen < 0 {
		return fmt.Errorf("%w: max_frame_len %d", ErrPipeline, p.MaxFrameLen)
	}
	return nil
}

func (s *SinkConfig) Validate() error {
	if s.DedupWindow < 0 {
		return fmt.Errorf("%w: negative dedup_window", ErrSinkType)
	}
	switch s.Format {
	case "", "rtlwmbus", "hex":
	default:
		return fmt.Errorf("%w: format %q", ErrSinkType, s.Format)
	}
	switch s.Type {
	case "stdout", "none", "":
		return nil
	case "file":
		if s.Path == "" {
			return ErrSinkTarget
		}
	case "tcp":
		if s.Address == "" {
			return ErrSinkTarget
		}
	default:
		return fmt.Errorf("%w: %q", ErrSinkType, s.Type)
	}
	return nil
}

// Topic returns the bus topic a section is published on.
func Topic(section string) bus.Topic { return bus.T(configPrefix, section) }

// Publish posts each section as a retained message on config/<section>.
// Services subscribe to their section and reconfigure on change.
func Publish(conn *bus.Connection, c *Config) {
	for section, v := range map[string]any{
		"radio":     c.Radio,
		"pipeline":  c.Pipeline,
		"sink":      c.Sink,
		"heartbeat": c.Heartbeat,
		"log":       c.Log,
	} {
		conn.Publish(conn.NewMessage(Topic(section), v, true))
	}
}
