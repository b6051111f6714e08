package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/usernameweb/acctdash/internal/grid"
	"github.com/usernameweb/acctdash/internal/query"
)

var (
	listFilters  filterFlags
	listPage     int
	listPageSize int
	listJSON     bool
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List accounts one grid page at a time",
	Long: `List the signed-in owner's accounts with the same filters, paging and
age display as the dashboard grid.

Examples:
  acctdash list
  acctdash list --group batch-1 --duration 8-30
  acctdash list --search shop --page 2 --page-size 50 --json`,
	RunE: func(cmd *cobra.Command, args []string) error {
		pageSize := listPageSize
		if pageSize == 0 {
			pageSize = cfg.Display.PageSize
		}
		st, err := listFilters.state(pageSize)
		if err != nil {
			return err
		}
		st.SetPage(listPage)

		cls, err := newClassifier(cfg)
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

		ctl := grid.NewController(b, owner, grid.WithClassifier(cls), grid.WithLogger(logger))
		ctl.Apply(ctl.Fetch(cmd.Context(), grid.LoadRequest{State: st}))
		if err := ctl.Err(); err != nil {
			return fmt.Errorf("%s: %s", grid.ErrorText, query.Cause(err))
		}

		if listJSON {
			return outputListJSON(os.Stdout, ctl)
		}
		outputListTable(os.Stdout, ctl)
		return nil
	},
}

func outputListTable(out io.Writer, ctl *grid.Controller) {
	rows := ctl.Rows()
	if len(rows) == 0 {
		fmt.Fprintln(out, ctl.EmptyText())
		return
	}
	cls := ctl.Classifier()

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tUSERNAME\tGROUP\tTAG\tCREATED\tAGE")
	fmt.Fprintln(w, "──\t────────\t─────\t───\t───────\t───")
	for _, a := range rows {
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\t%s\n",
			a.ID, a.Username, dash(a.Group), dash(a.Tag),
			cls.FormatDate(a.CreatedAt), cls.Display(a.CreatedAt))
	}
	w.Flush()

	p := ctl.Pagination()
	fmt.Fprintf(out, "\n%s\n", p.Summary())
	if p.Visible() {
		fmt.Fprintf(out, "Page %d of %d\n", p.Current, p.TotalPages)
	}
}

type listRow struct {
	query.Account
	Age         string `json:"age"`
	CreatedDate string `json:"created_date"`
}

func outputListJSON(out io.Writer, ctl *grid.Controller) error {
	cls := ctl.Classifier()
	p := ctl.Pagination()
	rows := make([]listRow, len(ctl.Rows()))
	for i, a := range ctl.Rows() {
		rows[i] = listRow{Account: a, Age: cls.Display(a.CreatedAt), CreatedDate: cls.FormatDate(a.CreatedAt)}
	}
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(map[string]any{
		"rows":        rows,
		"total":       p.Total,
		"page":        p.Current,
		"total_pages": p.TotalPages,
		"summary":     p.Summary(),
	})
}

func dash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func init() {
	rootCmd.AddCommand(listCmd)
	listFilters.register(listCmd)
	listCmd.Flags().IntVar(&listPage, "page", 1, "page number")
	listCmd.Flags().IntVar(&listPageSize, "page-size", 0, fmt.Sprintf("rows per page (one of %v; default from [display] page_size)", query.PageSizes))
	listCmd.Flags().BoolVar(&listJSON, "json", false, "Output as JSON")
}
