package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/usernameweb/acctdash/internal/config"
)

var (
	cfgFile  string
	homeDir  string
	verbose  bool
	useLocal bool // Force local database even when remote is configured
	cfg      *config.Config
	logger   *slog.Logger
)

var rootCmd = &cobra.Command{
	Use:   "acctdash",
	Short: "Account session dashboard",
	Long: `acctdash manages stored account sessions: a filterable, paginated grid
with bulk group/tag edits, bulk deletes and XLSX/CSV exports.

Run it as an interactive terminal UI, as an HTTP API with scheduled exports,
as an MCP tool server, or through the batch commands below.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// Skip config loading for commands that don't need it
		if cmd.Name() == "version" {
			return nil
		}

		// Set up logging
		level := slog.LevelInfo
		if verbose {
			level = slog.LevelDebug
		}
		logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
			Level: level,
		}))

		// Load config (--home is passed through so it influences
		// where config.toml is loaded from, like ACCTDASH_HOME).
		var err error
		cfg, err = config.Load(cfgFile, homeDir)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}

		// Ensure home directory exists on first use
		if err := cfg.EnsureHomeDir(); err != nil {
			return fmt.Errorf("create data directory %s: %w", cfg.HomeDir, err)
		}

		return nil
	},
}

// Execute runs the root command with a background context.
// Prefer ExecuteContext for signal-aware execution.
func Execute() error {
	return ExecuteContext(context.Background())
}

// ExecuteContext runs the root command with the given context,
// enabling graceful shutdown when the context is cancelled.
func ExecuteContext(ctx context.Context) error {
	return rootCmd.ExecuteContext(ctx)
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ~/.acctdash/config.toml)")
	rootCmd.PersistentFlags().StringVar(&homeDir, "home", "", "home directory (overrides ACCTDASH_HOME)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().BoolVar(&useLocal, "local", false, "force local database (override remote config)")
}
