package commands

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"esaj-crawler/internal/components/telemetry"
	"esaj-crawler/internal/config"

	"github.com/spf13/cobra"
)

var (
	configPath string
	verbose    bool

	cfg      config.Config
	otlp     telemetry.Telemetry
	reporter telemetry.API = telemetry.SlogAPI{}
)

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "config.json5", "The json5 config file, a config.local.json5 next to it overrides it.")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Log debug reports.")
}

var rootCmd = &cobra.Command{
	Use:           "esaj-crawler",
	Short:         "esaj-crawler sweeps OAB registrations on the e-SAJ portal and collects their cases and documents.",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		telemetry.InitSlog(verbose)

		var err error
		cfg, err = config.Load(configPath)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}

		otlp, err = telemetry.Setup(cmd.Context(), "esaj-crawler", cfg.Telemetry)
		if err != nil {
			return fmt.Errorf("setup telemetry: %w", err)
		}
		return nil
	},
}

// execute runs cmd and flushes telemetry whether or not the command failed.
func execute(ctx context.Context, cmd *cobra.Command) error {
	defer flushTelemetry()
	return cmd.ExecuteContext(ctx)
}

func flushTelemetry() {
	err := otlp.Shutdown(context.Background())
	if err != nil {
		slog.Warn("failed to flush telemetry", "err", err)
	}
}

func ExecuteContext(ctx context.Context) {
	if err := execute(ctx, rootCmd); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
