package cmd

import (
	"github.com/spf13/cobra"

	mcpserver "github.com/usernameweb/acctdash/internal/mcp"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Run MCP server for assistant integration",
	Long: `Start an MCP (Model Context Protocol) server over stdio.

This lets an MCP client browse and manage the signed-in owner's accounts
with tools like list_accounts, get_account, suggest_values, update_account,
bulk_update, bulk_delete and export_accounts.

Add to the client's config:
  {
    "mcpServers": {
      "acctdash": {
        "command": "acctdash",
        "args": ["mcp"]
      }
    }
  }`,
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

		return mcpserver.Serve(cmd.Context(), b, owner, mcpserver.Options{
			Classifier:  cls,
			Profile:     exportProfile(cfg),
			Destination: dest,
		})
	},
}

func init() {
	rootCmd.AddCommand(mcpCmd)
}
