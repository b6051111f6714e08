package cmd

import (
	"io"
	"log/slog"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/usernameweb/acctdash/internal/fileutil"
	"github.com/usernameweb/acctdash/internal/tui"
)

var tuiPageSize int

var tuiCmd = &cobra.Command{
	Use:   "tui",
	Short: "Open the interactive dashboard",
	Long: `Open the account dashboard in the terminal.

Navigation:
  ↑/k, ↓/j    Move up/down
  ←/h, →/l    Previous/next page
  [ / ]       First/last page
  +/-         Change rows per page

Filters:
  /           Search (applied after you stop typing)
  g / t       Filter by group / tag, with suggestions
  d           Filter by age
  r           Reset all filters

Selection & Actions:
  Space       Toggle row
  a           Toggle all rows on this page
  x / Esc     Clear selection
  G / T       Set group / tag on selection
  D           Delete selection
  e / c       Export selection to XLSX / CSV
  Ctrl+R      Reload
  q           Quit`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cls, err := newClassifier(cfg)
		if err != nil {
			return err
		}
		dest, err := exportDestination(cmd.Context(), cfg)
		if err != nil {
			return err
		}

		b, err := OpenBackend(cmd.Context())
		if err != nil {
			return err
		}
		defer b.Close()

		owner, err := requireOwner(cmd.Context(), b)
		if err != nil {
			return err
		}

		pageSize := tuiPageSize
		if pageSize == 0 {
			pageSize = cfg.Display.PageSize
		}

		// The TUI owns the terminal; log to a file instead of stderr.
		tuiLogger, closeLog := fileLogger(filepath.Join(cfg.HomeDir, "tui.log"))
		defer closeLog()

		return tui.Run(cmd.Context(), b, tui.Options{
			Owner:       owner,
			Version:     Version,
			PageSize:    pageSize,
			Classifier:  cls,
			Profile:     exportProfile(cfg),
			Destination: dest,
			Logger:      tuiLogger,
		})
	},
}

func init() {
	rootCmd.AddCommand(tuiCmd)
	tuiCmd.Flags().IntVar(&tuiPageSize, "page-size", 0, "initial rows per page (default from [display] page_size)")
}

// fileLogger returns a logger appending to path at the root logger's level.
// When the file cannot be opened logging is discarded.
func fileLogger(path string) (*slog.Logger, func()) {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	f, err := fileutil.AppendPrivate(path)
	if err != nil {
		return slog.New(slog.NewTextHandler(io.Discard, nil)), func() {}
	}
	return slog.New(slog.NewTextHandler(f, &slog.HandlerOptions{Level: level})), func() { f.Close() }
}
