package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/GabrielNunesIT/go-libs/logger"
	"github.com/GabrielNunesIT/heartlog/internal/config"
	"github.com/GabrielNunesIT/heartlog/internal/ingestor"
	"github.com/GabrielNunesIT/heartlog/internal/pipeline"
	"github.com/GabrielNunesIT/heartlog/internal/sink"
)

// NewRunCmd creates the run command.
func NewRunCmd(cfgFile, logLevel *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Log stdin through the configured sink with a heartbeat",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runHeartlog(cmd, cfgFile, logLevel)
		},
	}

	// Sink flags
	cmd.Flags().String("sink", "", "sink kind (stream, rotating-file, syslog, journal, http, loki, ...)")
	cmd.Flags().String("destination", "", "destination file for file sinks")
	cmd.Flags().String("sink-level", "", "minimum level of records passed to the sink")

	// Heartbeat flags
	cmd.Flags().String("heartbeat-interval", "", "heartbeat interval in seconds (0 disables)")
	cmd.Flags().String("heartbeat-name", "", "source name shown on heartbeat records")
	cmd.Flags().String("heartbeat-message", "", "text appended to the heartbeat record")

	// Hot-reload flag
	cmd.Flags().Bool("hot-reload", true, "enable hot-reload of config file")

	return cmd
}

func runHeartlog(cmd *cobra.Command, cfgFile, logLevel *string) error {
	cfg, err := config.Load(*cfgFile)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	applyCLIOverrides(cmd, cfg)

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	level := *logLevel
	if f := cmd.Flag("log-level"); f == nil || !f.Changed {
		level = cfg.LogLevel
	}
	log := SetupLogging(level)

	lc := sink.NewContext()
	h, err := sink.NewFactory(log).Configure(lc, sink.ParamsFromConfig(cfg.Sink))
	if err != nil {
		return fmt.Errorf("configuring sink: %w", err)
	}
	defer func() {
		if err := lc.Close(); err != nil {
			log.Warningf("closing sink: %v", err)
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	opts := []pipeline.Option{
		pipeline.WithOverrides(func(c *config.Config) { applyCLIOverrides(cmd, c) }),
	}

	hotReloadEnabled, _ := cmd.Flags().GetBool("hot-reload")
	if *cfgFile != "" && hotReloadEnabled && cfg.Run.WatchConfig {
		opts = append(opts, pipeline.WithConfigSource(config.NewConfigWatcher(*cfgFile, log)))
		log.Infof("hot-reload enabled: config=%s", *cfgFile)
	}

	p := pipeline.New(cfg, lc, ingestor.NewLineReader(log), log, opts...)

	go handleReload(ctx, cfgFile, p, log)

	log.Infof("starting heartlog: sink=%s heartbeat=%ds", h.Name(), p.HeartbeatInterval())

	if err := p.Run(ctx); err != nil {
		return fmt.Errorf("pipeline error: %w", err)
	}

	log.Info("heartlog stopped")
	return nil
}

// handleReload reloads the config file on SIGHUP until ctx ends.
func handleReload(ctx context.Context, cfgFile *string, p *pipeline.Pipeline, log logger.ILogger) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGHUP)
	defer signal.Stop(sigChan)

	for {
		select {
		case <-sigChan:
			log.Info("received SIGHUP, reloading config")
			newCfg, err := config.Load(*cfgFile)
			if err != nil {
				log.Errorf("failed to reload config: %v", err)
				continue
			}
			if err := newCfg.Validate(); err != nil {
				log.Errorf("reloaded config is invalid: %v", err)
				continue
			}
			p.Reconfigure(newCfg)
		case <-ctx.Done():
			return
		}
	}
}

func applyCLIOverrides(cmd *cobra.Command, cfg *config.Config) {
	if v, _ := cmd.Flags().GetString("sink"); v != "" {
		cfg.Sink.Kind = v
	}
	if v, _ := cmd.Flags().GetString("destination"); v != "" {
		cfg.Sink.Destination = v
	}
	if v, _ := cmd.Flags().GetString("sink-level"); v != "" {
		cfg.Sink.Level = v
	}
	if cmd.Flags().Changed("heartbeat-interval") {
		cfg.Heartbeat.Interval, _ = cmd.Flags().GetString("heartbeat-interval")
	}
	if v, _ := cmd.Flags().GetString("heartbeat-name"); v != "" {
		cfg.Heartbeat.Name = v
	}
	if cmd.Flags().Changed("heartbeat-message") {
		cfg.Heartbeat.Message, _ = cmd.Flags().GetString("heartbeat-message")
	}
}
