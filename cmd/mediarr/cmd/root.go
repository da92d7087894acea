// Package cmd implements the CLI commands for mediarr.
package cmd

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/jmylchreest/mediarr/internal/config"
	"github.com/jmylchreest/mediarr/internal/observability"
	"github.com/jmylchreest/mediarr/internal/version"
)

var (
	// cfgFile holds the config file path from CLI flag.
	cfgFile string

	// cfg and logger are populated before any subcommand runs.
	cfg    *config.Config
	logger *slog.Logger
)

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:     "mediarr",
	Short:   "Video library catalog service",
	Version: version.Short(),
	Long: `mediarr serves a video library catalog: media titles with their videos,
genres and actors, user ratings and reviews, and per-user watch history.

Listings, rankings and the full catalog snapshot are cached in memory and
invalidated precisely when the catalog changes.`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	if err := rootCmd.Execute(); err != nil {
		return fmt.Errorf("executing root command: %w", err)
	}
	return nil
}

func init() {
	// Set PersistentPreRunE here to avoid initialization cycle
	// (initLogging references rootCmd.PersistentFlags)
	rootCmd.PersistentPreRunE = func(_ *cobra.Command, _ []string) error {
		if err := initConfig(); err != nil {
			return err
		}
		return initLogging()
	}

	rootCmd.SetGlobalNormalizationFunc(normalizeFlagName)

	// These flags are not bound to viper; they override config and env
	// values only when set explicitly.
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./mediarr.yaml)")
	rootCmd.PersistentFlags().String("log-level", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("log-format", "json", "log format (text, json)")
}

// normalizeFlagName accepts underscores in place of dashes, so --log_level
// and --log-level name the same flag.
func normalizeFlagName(_ *pflag.FlagSet, name string) pflag.NormalizedName {
	return pflag.NormalizedName(strings.ReplaceAll(name, "_", "-"))
}

// initConfig loads configuration from file and MEDIARR_ environment variables.
func initConfig() error {
	loaded, err := config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	cfg = loaded
	return nil
}

// initLogging configures the slog logger.
//
// Priority order (highest to lowest):
//  1. CLI flags (--log-level, --log-format) - only if explicitly provided
//  2. Environment variables (MEDIARR_LOGGING_LEVEL, MEDIARR_LOGGING_FORMAT)
//  3. Config file values
//  4. Built-in defaults (info, json)
func initLogging() error {
	logCfg := cfg.Logging

	if rootCmd.PersistentFlags().Changed("log-level") {
		level, _ := rootCmd.PersistentFlags().GetString("log-level")
		logCfg.Level = strings.ToLower(level)
	}
	if rootCmd.PersistentFlags().Changed("log-format") {
		format, _ := rootCmd.PersistentFlags().GetString("log-format")
		logCfg.Format = strings.ToLower(format)
	}
	if logCfg.Level == "warning" {
		logCfg.Level = "warn"
	}

	logger = observability.NewLoggerWithWriter(logCfg, os.Stderr).With(slog.String("app", version.ApplicationName))
	slog.SetDefault(logger)
	return nil
}
