package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/usernameweb/acctdash/internal/grid"
	"github.com/usernameweb/acctdash/internal/query"
)

var (
	editUsername  string
	editUserAgent string
	editGroup     string
	editTag       string
	editNote      string
)

var editCmd = &cobra.Command{
	Use:   "edit <id>",
	Short: "Edit one account",
	Long: `Edit fields of one account. Only flags that are given are changed;
pass an empty value (--tag "") to clear a field. The owner email cannot
be edited.

Example:
  acctdash edit 42 --group batch-2 --note "moved"`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ids, err := parseIDs(args)
		if err != nil {
			return err
		}
		p := editPatch(cmd)
		if p.IsEmpty() {
			return fmt.Errorf("nothing to change: pass at least one of --username, --user-agent, --group, --tag, --note")
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

		ctl := grid.NewController(b, owner, grid.WithLogger(logger))
		a, err := ctl.Edit(cmd.Context(), ids[0], p)
		if errors.Is(err, query.ErrNotFound) {
			return fmt.Errorf("account %d not found", ids[0])
		}
		if err != nil {
			return fmt.Errorf("update account %d: %s", ids[0], query.Cause(err))
		}
		fmt.Printf("Updated account %d (%s): group=%s tag=%s\n", a.ID, a.Username, dash(a.Group), dash(a.Tag))
		return nil
	},
}

// editPatch builds a patch from the flags the user actually set.
func editPatch(cmd *cobra.Command) query.Patch {
	var p query.Patch
	flags := cmd.Flags()
	if flags.Changed("username") {
		p.Username = &editUsername
	}
	if flags.Changed("user-agent") {
		p.UserAgent = &editUserAgent
	}
	if flags.Changed("group") {
		p.Group = &editGroup
	}
	if flags.Changed("tag") {
		p.Tag = &editTag
	}
	if flags.Changed("note") {
		p.Note = &editNote
	}
	return p
}

var deleteYes bool

var deleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete one account",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ids, err := parseIDs(args)
		if err != nil {
			return err
		}
		if !deleteYes {
			ok, err := confirm(fmt.Sprintf("Delete account %d?", ids[0]), "This cannot be undone.")
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

		ctl := grid.NewController(b, owner, grid.WithLogger(logger))
		err = ctl.DeleteOne(cmd.Context(), ids[0])
		if errors.Is(err, query.ErrNotFound) {
			return fmt.Errorf("account %d not found", ids[0])
		}
		if err != nil {
			return fmt.Errorf("delete account %d: %s", ids[0], query.Cause(err))
		}
		fmt.Printf("Deleted account %d\n", ids[0])
		return nil
	},
}

func init() {
	rootCmd.AddCommand(editCmd)
	editCmd.Flags().StringVar(&editUsername, "username", "", "new username")
	editCmd.Flags().StringVar(&editUserAgent, "user-agent", "", "new user agent")
	editCmd.Flags().StringVar(&editGroup, "group", "", "new group (empty clears)")
	editCmd.Flags().StringVar(&editTag, "tag", "", "new tag (empty clears)")
	editCmd.Flags().StringVar(&editNote, "note", "", "new note")

	rootCmd.AddCommand(deleteCmd)
	deleteCmd.Flags().BoolVarP(&deleteYes, "yes", "y", false, "skip confirmation")
}
