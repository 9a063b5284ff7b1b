package main

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"
)

const defaultConfigPath = "config/feedd.yaml"

var (
	configPath string
	debug      bool
)

func newRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "feedd",
		Short:         "Vertical media feed daemon with windowed player preloading.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(_ *cobra.Command, _ []string) {
			setupLogger(debug)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	cmd.PersistentFlags().StringVarP(&configPath, "config", "c", defaultConfigPath, "Path to configuration file")
	cmd.PersistentFlags().BoolVar(&debug, "debug", false, "Enable debug logging")

	addRun(cmd)
	addSeed(cmd)
	addVersion(cmd)
	return cmd
}

// setupLogger installs a JSON slog handler as the default logger.
func setupLogger(debug bool) {
	logLevel := slog.LevelInfo
	if debug {
		logLevel = slog.LevelDebug
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	}))
	slog.SetDefault(logger)
}
