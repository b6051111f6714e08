package cmd

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/usernameweb/acctdash/internal/query"
)

var importCmd = &cobra.Command{
	Use:   "import <file.json>",
	Short: "Import account records from a JSON file",
	Long: `Import account records for the signed-in owner.

The file holds either a JSON array of accounts or an object with an
"accounts" array. Records without owner_email are assigned to the signed-in
owner; records for another owner are rejected. Use "-" to read stdin.

Example record:
  {"username": "shop01", "user_agent": "Mozilla/5.0 ...",
   "group": "batch-1", "tag": "vip",
   "created_at": "Kamis, 17 Juli 2025", "cookies": "[...]"}`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := readInput(args[0])
		if err != nil {
			return err
		}
		accounts, err := decodeAccounts(data)
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
		if err := assignOwner(accounts, owner); err != nil {
			return err
		}

		ids, err := b.Insert(cmd.Context(), accounts)
		if err != nil {
			return fmt.Errorf("import accounts: %w", err)
		}
		logger.Info("accounts imported", "count", len(ids), "owner", owner)
		fmt.Printf("Imported %d account(s)\n", len(ids))
		return nil
	},
}

func readInput(path string) ([]byte, error) {
	if path == "-" {
		return io.ReadAll(os.Stdin)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return data, nil
}

// decodeAccounts accepts a bare array or {"accounts": [...]}.
func decodeAccounts(data []byte) ([]query.Account, error) {
	data = bytes.TrimSpace(data)
	var accounts []query.Account
	if len(data) > 0 && data[0] == '[' {
		if err := json.Unmarshal(data, &accounts); err != nil {
			return nil, fmt.Errorf("decode accounts: %w", err)
		}
	} else {
		var wrapped struct {
			Accounts []query.Account `json:"accounts"`
		}
		if err := json.Unmarshal(data, &wrapped); err != nil {
			return nil, fmt.Errorf("decode accounts: %w", err)
		}
		accounts = wrapped.Accounts
	}
	if len(accounts) == 0 {
		return nil, fmt.Errorf("no accounts to import")
	}
	return accounts, nil
}

// assignOwner stamps owner on every record and rejects foreign ones.
func assignOwner(accounts []query.Account, owner string) error {
	for i := range accounts {
		a := &accounts[i]
		if a.OwnerEmail != "" && !strings.EqualFold(strings.TrimSpace(a.OwnerEmail), owner) {
			return fmt.Errorf("account %d (%s) belongs to %s, not %s", i+1, a.Username, a.OwnerEmail, owner)
		}
		a.OwnerEmail = owner
		a.ID = 0
	}
	return nil
}

func init() {
	rootCmd.AddCommand(importCmd)
}
