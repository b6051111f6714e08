package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var whoamiSignOut bool

var whoamiCmd = &cobra.Command{
	Use:   "whoami",
	Short: "Show the signed-in owner",
	Long: `Show the owner whose accounts the other commands operate on.

Locally this is [account] email. Against a remote server it is the owner
bound to [remote] api_key; --sign-out revokes that credential on the server.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		b, err := OpenBackend(cmd.Context())
		if err != nil {
			return err
		}
		defer b.Close()

		if whoamiSignOut {
			if err := b.SignOut(cmd.Context()); err != nil {
				return fmt.Errorf("sign out: %w", err)
			}
			fmt.Println("Signed out.")
			return nil
		}

		u, err := b.CurrentUser(cmd.Context())
		if err != nil {
			if _, oerr := requireOwner(cmd.Context(), b); oerr != nil {
				return oerr
			}
			return err
		}
		where := "local database"
		if IsRemoteMode() {
			where = cfg.Remote.URL
		}
		fmt.Printf("%s (%s, %s)\n", u.Email, u.Method, where)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(whoamiCmd)
	whoamiCmd.Flags().BoolVar(&whoamiSignOut, "sign-out", false, "revoke the current credentials")
}
