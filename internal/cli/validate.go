package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/GabrielNunesIT/go-libs/logger"
	"github.com/GabrielNunesIT/heartlog/internal/config"
	"github.com/GabrielNunesIT/heartlog/internal/heartbeat"
	"github.com/GabrielNunesIT/heartlog/internal/sink"
)

// NewValidateCmd creates the validate command. It reports the sink that run
// would install without opening files or connections.
func NewValidateCmd(cfgFile *string) *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Validate the configuration file",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*cfgFile)
			if err != nil {
				return fmt.Errorf("configuration error: %w", err)
			}
			if err := cfg.Validate(); err != nil {
				return fmt.Errorf("configuration error: %w", err)
			}

			log := logger.NewConsoleLogger(io.Discard)

			kind, err := sink.NewFactory(log).Resolve(sink.ParamsFromConfig(cfg.Sink))
			if err != nil {
				return fmt.Errorf("sink configuration error: %w", err)
			}

			interval := heartbeat.ParseInterval(cfg.Heartbeat.Interval, cfg.Heartbeat.DefaultInterval)

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Configuration valid:\n")
			fmt.Fprintf(out, "  Sink:      %s (level %s)\n", kind, cfg.Sink.Level)
			if interval > 0 {
				fmt.Fprintf(out, "  Heartbeat: %s every %ds\n", cfg.Heartbeat.Name, interval)
			} else {
				fmt.Fprintf(out, "  Heartbeat: disabled\n")
			}
			return nil
		},
	}
}
