package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var initDBCmd = &cobra.Command{
	Use:   "init-db",
	Short: "Initialize the database schema",
	Long: `Initialize the acctdash database with the required schema.

Migrations are embedded in the binary and applied for the configured
dialect (SQLite by default, PostgreSQL when [data] database_url is a
postgres:// URL). It is safe to run multiple times.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := MustBeLocal("init-db"); err != nil {
			return err
		}

		dsn := cfg.DatabaseDSN()
		logger.Info("initializing database", "dsn", redactDSN(dsn))

		s, err := openLocalStore(cmd.Context())
		if err != nil {
			return err
		}
		defer s.Close()

		logger.Info("database initialized successfully")

		stats, err := s.GetStats(cmd.Context())
		if err != nil {
			return fmt.Errorf("get stats: %w", err)
		}

		fmt.Printf("Database: %s (%s)\n", redactDSN(dsn), s.Dialect())
		fmt.Printf("  Accounts: %d\n", stats.AccountCount)
		fmt.Printf("  Owners:   %d\n", stats.OwnerCount)
		if stats.DatabaseSize > 0 {
			fmt.Printf("  Size:     %.2f MB\n", float64(stats.DatabaseSize)/(1024*1024))
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(initDBCmd)
}
