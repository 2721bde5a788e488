package main

import (
	"context"
	"io"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"wmbus-radio-go/bus"
	"wmbus-radio-go/services/config"
	"wmbus-radio-go/services/heartbeat"
	"wmbus-radio-go/services/radio"
	"wmbus-radio-go/services/sink"
)

// Set with -ldflags "-X main.version=...".
var version = "dev"

type rootOptions struct {
	configPath string
	logLevel   string
	frequency  float64
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:   "wmbusrx",
		Short: "wM-Bus T-mode receiver for CC1101 transceivers",
		Long: `wmbusrx drives a CC1101 over SPI, reassembles received wM-Bus frames and
writes one line per frame in rtl_wmbus format ("T1;<rssi>;<HEX>").

Examples:
  wmbusrx listen --config /etc/wmbusrx.yaml
  wmbusrx simulate --count 3
  wmbusrx listen --frequency 868.95 --log-level debug`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "", "YAML configuration file (built-in defaults when empty)")
	cmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "override log.level")
	cmd.PersistentFlags().Float64Var(&opts.frequency, "frequency", 0, "override radio.frequency_mhz")

	cmd.AddCommand(newListenCmd(opts), newSimulateCmd(opts), newVersionCmd())
	return cmd
}

// load reads the configuration and applies flag overrides.
func (o *rootOptions) load() (*config.Config, error) {
	var (
		cfg *config.Config
		err error
	)
	if o.configPath != "" {
		cfg, err = config.LoadConfig(o.configPath)
		if err != nil {
			return nil, err
		}
	} else {
		cfg = config.LoadDefaultConfig()
	}
	if o.logLevel != "" {
		cfg.Log.Level = o.logLevel
	}
	if o.frequency != 0 {
		cfg.Radio.FrequencyMHz = o.frequency
	}
	return cfg, cfg.Validate()
}

func (o *rootOptions) setup() (*config.Config, zerolog.Logger, io.Closer, error) {
	cfg, err := o.load()
	if err != nil {
		return nil, zerolog.Nop(), nil, err
	}
	log, closer, err := config.SetupLogger(&cfg.Log, "wmbusrx")
	if err != nil {
		return nil, zerolog.Nop(), nil, err
	}
	return cfg, log, closer, nil
}

// runStack publishes the configuration and runs the radio service with the
// sink and heartbeat services attached until ctx ends.
func runStack(ctx context.Context, cfg *config.Config, r *radio.Radio, log zerolog.Logger) error {
	b := bus.NewBus(64)
	config.Publish(b.NewConnection("config"), cfg)

	sk := sink.New(b.NewConnection("sink"), log)
	sinkDone := make(chan struct{})
	go func() {
		defer close(sinkDone)
		sk.Run(ctx)
	}()
	if err := heartbeat.New(log).Start(ctx, b.NewConnection("heartbeat")); err != nil {
		return err
	}

	svc := radio.NewService(b.NewConnection("radio"), r, radio.ServiceConfig{
		ID:            cfg.Radio.ID,
		Pipeline:      radio.OptionsFrom(cfg.Pipeline),
		StatsInterval: cfg.Pipeline.StatsInterval,
		Logger:        &log,
	})
	err := svc.Run(ctx)
	<-sinkDone
	log.Info().Uint64("lines", sk.Lines()).Uint64("duplicates", sk.Duplicates()).Msg("sink stopped")
	return err
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			cmd.Println("wmbusrx", version)
		},
	}
}
