package cmd

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

func newSyncCmd(deps *dependencies) *cobra.Command {
	return &cobra.Command{
		Use:   "sync",
		Short: "Force a mirror rebuild from the configured dump file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := deps.load()
			if err != nil {
				return err
			}

			m := newMirror(cfg, logger)
			if m == nil {
				return errors.New("mirror is disabled; set PGMIRROR_MIRROR_ENABLED=true")
			}
			if !m.SyncFromDump(cmd.Context(), true) {
				return fmt.Errorf("mirror rebuild failed; check dump file at %s", cfg.MirrorDumpPath)
			}

			report := m.LastReport()
			if report == nil {
				return nil
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Mirror rebuilt: %s\n", cfg.MirrorPath)
			fmt.Fprintf(out, "  statements: %d executed, %d skipped\n",
				report.StatementsExecuted, report.StatementsSkipped)
			fmt.Fprintf(out, "  copy blocks: %d loaded, %d skipped\n",
				report.BlocksLoaded, report.BlocksSkipped)
			fmt.Fprintf(out, "  rows: %d loaded, %d skipped\n",
				report.RowsLoaded, report.RowsSkipped)
			if len(report.TablesLoaded) > 0 {
				fmt.Fprintf(out, "  tables: %s\n", strings.Join(report.TablesLoaded, ", "))
			}
			return nil
		},
	}
}
