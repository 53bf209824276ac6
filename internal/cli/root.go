package cli

import (
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/ppiankov/stancewatch/internal/config"
	"github.com/ppiankov/stancewatch/internal/telemetry"
)

var (
	configPath string
	logLevel   string
	logFormat  string
)

var rootCmd = &cobra.Command{
	Use:          "stancewatch",
	Short:        "Safety decision pipeline for AI assistants",
	Long:         "Decides, before a reply is generated, whether to refuse, ask for acknowledgment, verify live data, or answer freely.\nUnverified figures never reach the user.",
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to config YAML (default ~/.stancewatch/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level override (debug|info|warn|error)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "", "Log format override (json|console)")
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// loadConfig reads the config file and builds the process logger from its
// log section, applying flag overrides.
func loadConfig() (*config.Config, string, zerolog.Logger, error) {
	cfg, hash, err := config.LoadWithHash(configPath)
	if err != nil {
		return nil, "", zerolog.Nop(), err
	}
	lc := cfg.Log
	if logLevel != "" {
		lc.Level = logLevel
	}
	if logFormat != "" {
		lc.Format = logFormat
	}
	logger, err := telemetry.NewLogger(lc, os.Stderr)
	if err != nil {
		return nil, "", zerolog.Nop(), fmt.Errorf("invalid log settings: %w", err)
	}
	telemetry.SetGlobal(logger)
	return cfg, hash, logger, nil
}
