// Package commands implements the offloader CLI commands.
package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/mediaoffload/offloader/internal/app"
	"github.com/mediaoffload/offloader/internal/config"
	"github.com/mediaoffload/offloader/internal/logging"
	"github.com/spf13/cobra"
)

var (
	// Version information injected at build time.
	Version = "dev"

	// Global flags.
	cfgFile   string
	logLevel  string
	logFormat string
)

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "offloader",
	Short: "Offload media assets to S3-compatible object storage",
	Long: `offloader moves a media library between a local asset root and an
S3-compatible object store (R2, S3, GCS, Azure Blob) in small resumable
batches, and keeps a catalog of which assets live where.

Use "offloader [command] --help" for more information about a command.`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "offloader.yaml", "path to configuration file")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level: debug, info, warn, error (default: from config)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "", "log format: text, json (default: from config)")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(stepCmd)
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(progressCmd)
	rootCmd.AddCommand(resetCmd)
	rootCmd.AddCommand(scanCmd)
	rootCmd.AddCommand(cleanCmd)
	rootCmd.AddCommand(assetCmd)
	rootCmd.AddCommand(catalogCmd)
}

// loadConfig reads the config file and applies the logging flags.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if logLevel != "" {
		cfg.Logging.Level = logLevel
	}
	if logFormat != "" {
		cfg.Logging.Format = logFormat
	}
	return cfg, nil
}

// openApp loads configuration, sets up logging and builds the App. Logs go to
// stderr so command output on stdout stays machine-readable.
func openApp(ctx context.Context) (*app.App, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	logger := logging.Setup(cfg.Logging.Level, cfg.Logging.Format, os.Stderr)
	return app.New(ctx, cfg, logger)
}

// printJSON writes v to w as indented JSON.
func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
