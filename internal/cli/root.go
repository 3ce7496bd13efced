// Package cli provides the command-line interface for prodscope.
package cli

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/prodscope/prodscope/internal/config"
	"github.com/spf13/cobra"
)

var (
	// Version is set at build time.
	Version = "0.1.0"

	// Global flags
	configFile string
	liveMode   bool

	// Global config and logger
	cfg        config.Config
	logger     *slog.Logger
	logCleanup func() error
)

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "prodscope",
	Short: "Product analytics insight dashboard",
	Long: `ProdScope is a terminal dashboard for the six-layer insight pipeline:
it tracks analysis progress across LLM providers, chats with the analyst
backend, and monitors the data sources feeding each stage.

By default everything is simulated locally; pass --live to drive the
dashboard from a running backend.`,
	Version: Version,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Name() == "version" || cmd.Name() == "help" {
			return nil
		}

		var err error
		cfg, err = config.LoadWithFile(configFile)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		if liveMode {
			cfg.Simulate = false
		}

		// The dashboard owns the terminal, so it logs to file only.
		if cmd.Name() == "dash" {
			logger, logCleanup = config.SetupFileLogger(cfg.LogFile, cfg.LogLevel)
		} else {
			logger, logCleanup = config.SetupLogger(cfg.LogFile, cfg.LogLevel)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logCleanup != nil {
			if err := logCleanup(); err != nil {
				fmt.Fprintf(os.Stderr, "Warning: failed to close log file: %v\n", err)
			}
		}
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "YAML config overlay file")
	rootCmd.PersistentFlags().BoolVar(&liveMode, "live", false, "use the real backend instead of the simulation")

	rootCmd.AddCommand(dashCmd)
	rootCmd.AddCommand(chatCmd)
	rootCmd.AddCommand(statusCmd)
}
