// Package cmd implements the sieve command line.
package cmd

import (
	"context"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"gitlab.com/tozd/go/errors"

	"github.com/solatis/sieve/internal/core/config"
	"github.com/solatis/sieve/internal/logging"
)

// Version is the sieve release.
const Version = "0.1.0"

var (
	configFile string
	dbURL      string
	dataDir    string
	logLevel   string
	logFormat  string

	// cfg is loaded once per invocation in PersistentPreRunE.
	cfg *config.Config
)

var rootCmd = &cobra.Command{
	Use:           "sieve",
	Short:         "sieve text filter rules",
	Long:          `sieve keeps an ordered list of text filter rules, tests titles against them and rewrites text under a hard per-rule time budget.`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		loaded, err := config.LoadConfig(configFile, cmd.Flags())
		if err != nil {
			return errors.Errorf("failed to load config: %w", err)
		}
		logger, err := logging.Setup(loaded.Log.Level, loaded.Log.Format, cmd.ErrOrStderr())
		if err != nil {
			return err
		}
		cfg = loaded

		ctx := cmd.Context()
		if ctx == nil {
			ctx = context.Background()
		}
		cmd.SetContext(logger.WithContext(ctx))
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "config file path")
	rootCmd.PersistentFlags().StringVar(&dbURL, "db-url", "", "database connection URL (sqlite://path or postgres://...)")
	rootCmd.PersistentFlags().StringVar(&dataDir, "data-dir", "", "directory for the default database and diagnostics")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "text", "log format (json, text)")
}

// Execute runs the root command and logs a failure.
func Execute() error {
	err := rootCmd.Execute()
	if err != nil {
		if cfg == nil {
			// Logging is not set up before the config loads.
			rootCmd.PrintErrln("Error:", err)
		} else {
			zerolog.Ctx(context.Background()).Error().Err(err).Msg("command failed")
		}
	}
	return err
}
