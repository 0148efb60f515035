package cli

import (
	"github.com/spf13/cobra"
)

// Execute builds and runs the CLI.
func Execute() error {
	return NewRootCmd().Execute()
}

// NewRootCmd builds the command tree.
func NewRootCmd() *cobra.Command {
	var (
		cfgFile  string
		logLevel string
	)

	rootCmd := &cobra.Command{
		Use:   "heartlog",
		Short: "Log lines from stdin through a configurable sink with a periodic heartbeat",
		Long: `heartlog reads lines from standard input and logs each one through a single
configured sink: rotating or watched files, syslog, the systemd journal, TCP or
UDP sockets, SMTP, HTTP, Elasticsearch, Loki, NATS or a console stream.

A heartbeat record ("Heart beat ----- alive. Logged every N seconds.") is
written through the same sink whenever the configured interval has elapsed.

Hot-reload: When a config file is specified, heartbeat settings are applied
on change or on SIGHUP without requiring a restart.`,
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file (default: ./heartlog.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "diagnostic log level (trace, debug, info, warn, error)")

	rootCmd.AddCommand(
		NewRunCmd(&cfgFile, &logLevel),
		NewValidateCmd(&cfgFile),
		NewVersionCmd(),
	)

	return rootCmd
}
