package cmd

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
)

var exportsCmd = &cobra.Command{
	Use:   "exports",
	Short: "Show scheduled exports on the remote server",
	Long: `Show the status of the scheduled exports running on the server
configured in [remote].

Examples:
  acctdash exports
  acctdash exports run nightly`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		rs, err := OpenRemoteStore()
		if err != nil {
			return err
		}
		defer rs.Close()

		statuses, err := rs.ListExports(cmd.Context())
		if err != nil {
			return fmt.Errorf("list exports: %w", err)
		}
		if len(statuses) == 0 {
			fmt.Println("No scheduled exports.")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "NAME\tSCHEDULE\tSTATE\tLAST RUN\tNEXT RUN\tLAST RESULT")
		for _, st := range statuses {
			state := "idle"
			if st.Running {
				state = "running"
			}
			result := st.Location
			if st.LastError != "" {
				result = "error: " + st.LastError
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
				st.Name, st.Schedule, state, formatTime(st.LastRun), formatTime(st.NextRun), dash(result))
		}
		return w.Flush()
	},
}

var exportsRunCmd = &cobra.Command{
	Use:   "run <name>",
	Short: "Trigger a scheduled export now",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		rs, err := OpenRemoteStore()
		if err != nil {
			return err
		}
		defer rs.Close()

		if err := rs.TriggerExport(cmd.Context(), args[0]); err != nil {
			return fmt.Errorf("trigger export %s: %w", args[0], err)
		}
		fmt.Printf("Export %s started.\n", args[0])
		return nil
	},
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Local().Format("2006-01-02 15:04")
}

func init() {
	rootCmd.AddCommand(exportsCmd)
	exportsCmd.AddCommand(exportsRunCmd)
}
