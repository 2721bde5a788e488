package main

import (
	"github.com/spf13/cobra"

	"wmbus-radio-go/services/radio"
)

func newListenCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "listen",
		Short: "Receive frames from the configured CC1101",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, log, closer, err := opts.setup()
			if err != nil {
				return err
			}
			defer closer.Close()

			r, err := radio.OpenHardware(cfg.Radio, &log)
			if err != nil {
				log.Error().Err(err).Str("spi", cfg.Radio.SPI.Port).Msg("open radio")
				return err
			}
			defer r.Close()

			log.Info().
				Str("radio_id", cfg.Radio.ID).
				Float64("frequency_mhz", cfg.Radio.FrequencyMHz).
				Str("sink", cfg.Sink.Type).
				Msg("listening")
			return runStack(cmd.Context(), cfg, r, log)
		},
	}
}
