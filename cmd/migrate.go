package cmd

import (
	"github.com/spf13/cobra"

	"github.com/koopa0/pgmirror/db"
)

func newMigrateCmd(deps *dependencies) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending schema migrations to the primary",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := deps.load()
			if err != nil {
				return err
			}
			return db.Migrate(cfg.PostgresURL(), logger)
		},
	}
}
