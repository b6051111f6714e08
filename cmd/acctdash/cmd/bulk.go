package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/usernameweb/acctdash/internal/bulk"
	"github.com/usernameweb/acctdash/internal/query"
)

var (
	bulkField string
	bulkValue string
	bulkYes   bool
)

var bulkEditCmd = &cobra.Command{
	Use:   "bulk-edit <id>...",
	Short: "Set the group or tag of several accounts",
	Long: `Set the group or tag of the listed accounts in one atomic call.
IDs may be given as separate arguments or comma-separated.

Without --value an interactive prompt offers the existing values.

Examples:
  acctdash bulk-edit --field group --value batch-2 12 13 14
  acctdash bulk-edit --field tag 12,13,14`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ids, err := parseIDs(args)
		if err != nil {
			return err
		}
		field, err := query.ParseField(bulkField)
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

		value := bulkValue
		if !cmd.Flags().Changed("value") {
			suggestions, err := b.Distinct(cmd.Context(), owner, field, "")
			if err != nil {
				logger.Warn("load suggestions failed", "field", field, "error", err)
			}
			value, err = promptValue(fmt.Sprintf("Set %s on %d account(s)", field, len(ids)), suggestions)
			if err != nil {
				return err
			}
		}

		return runBulk(cmd, b, owner, bulk.Update(field, value), ids)
	},
}

var bulkDeleteCmd = &cobra.Command{
	Use:   "bulk-delete <id>...",
	Short: "Delete several accounts",
	Long: `Delete the listed accounts in one atomic call.
IDs may be given as separate arguments or comma-separated.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ids, err := parseIDs(args)
		if err != nil {
			return err
		}
		if !bulkYes {
			ok, err := confirm(fmt.Sprintf("Delete %d selected account(s)?", len(ids)), "This cannot be undone.")
			if err != nil {
				return err
			}
			if !ok {
				fmt.Println("Cancelled.")
				return nil
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
		return runBulk(cmd, b, owner, bulk.Delete(), ids)
	},
}

func runBulk(cmd *cobra.Command, b Backend, owner string, op bulk.Operation, ids []int64) error {
	exec := bulk.NewExecutor(b).
		WithLogger(logger).
		WithProgress(NewBulkProgress(progressWriter()))
	res, err := exec.Execute(cmd.Context(), owner, bulk.Request{Operation: op, IDs: ids})
	if errors.Is(err, bulk.ErrEmptyValue) || errors.Is(err, bulk.ErrNoSelection) {
		return err
	}
	if err != nil {
		return errors.New(bulk.ErrorMessage(op, err))
	}
	fmt.Println(res.Message())
	return nil
}

func init() {
	rootCmd.AddCommand(bulkEditCmd)
	bulkEditCmd.Flags().StringVar(&bulkField, "field", "group", "field to set: group or tag")
	bulkEditCmd.Flags().StringVar(&bulkValue, "value", "", "value to set")

	rootCmd.AddCommand(bulkDeleteCmd)
	bulkDeleteCmd.Flags().BoolVarP(&bulkYes, "yes", "y", false, "skip confirmation")
}
