package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/auscope/vgljobs/internal/observability"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create or upgrade the job store schema",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd, nil)
		if err != nil {
			return err
		}
		store, err := openStore(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		defer func() { _ = store.Close() }()

		observability.CLILogger.Info("Job store migrated")
		_, err = fmt.Fprintf(cmd.OutOrStdout(), "migrated %s job store\n", cfg.Database.Driver)
		return err
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}
