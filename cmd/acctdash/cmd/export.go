package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/usernameweb/acctdash/internal/export"
)

var (
	exportFilters filterFlags
	exportFormat  string
	exportAll     bool
	exportOut     string
)

var exportCmd = &cobra.Command{
	Use:   "export [id]...",
	Short: "Export accounts to XLSX or CSV",
	Long: `Export accounts to an XLSX sheet or a CSV file.

Pass account IDs to export a selection, or --all to export every account
matching the filters. IDs outside the filters are skipped, the same way the
dashboard only exports selected rows that are still visible.

Files go to the configured destination ([export] dir, or S3 when
destination = "s3"); --out writes to a local directory instead.

Examples:
  acctdash export 12 13 14
  acctdash export --all --group batch-1 --format csv
  acctdash export --all --duration 365+ --out ./exports`,
	RunE: func(cmd *cobra.Command, args []string) error {
		format, err := export.ParseFormat(exportFormat)
		if err != nil {
			return err
		}
		ids, err := parseIDs(args)
		if err != nil {
			return err
		}
		if len(ids) == 0 && !exportAll {
			return fmt.Errorf("no accounts selected: pass IDs or --all")
		}
		st, err := exportFilters.state(cfg.Display.PageSize)
		if err != nil {
			return err
		}

		cls, err := newClassifier(cfg)
		if err != nil {
			return err
		}
		var dest export.Destination = export.DirDestination{Dir: exportOut}
		if exportOut == "" {
			dest, err = exportDestination(cmd.Context(), cfg)
			if err != nil {
				return err
			}
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

		exp := export.NewExporter(b, cls).
			WithProfile(exportProfile(cfg)).
			WithDestination(dest).
			WithLogger(logger).
			WithProgress(NewExportProgress(progressWriter()))
		res, err := exp.Export(cmd.Context(), owner, export.Request{
			Format:  format,
			Filters: st,
			IDs:     ids,
			All:     exportAll,
		})
		var empty *export.ExportEmptyError
		if errors.As(err, &empty) {
			fmt.Println("No data to export")
			return nil
		}
		if err != nil {
			return fmt.Errorf("export: %w", err)
		}

		fmt.Println(res.Message())
		fmt.Printf("  %s\n", res.Location)
		if res.Simplified {
			fmt.Println("  Written with the simplified column layout.")
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(exportCmd)
	exportFilters.register(exportCmd)
	exportCmd.Flags().StringVar(&exportFormat, "format", "xlsx", "xlsx or csv")
	exportCmd.Flags().BoolVar(&exportAll, "all", false, "export every account matching the filters")
	exportCmd.Flags().StringVar(&exportOut, "out", "", "write to this directory instead of the configured destination")
}
