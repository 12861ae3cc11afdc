package cmd

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/koopa0/pgmirror/internal/rowset"
)

func newQueryCmd(deps *dependencies) *cobra.Command {
	return &cobra.Command{
		Use:   "query <sql>",
		Short: "Run a SELECT against the primary, falling back to the mirror",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := deps.load()
			if err != nil {
				return err
			}

			r, err := newRouter(cmd.Context(), cfg, logger)
			if err != nil {
				return err
			}
			defer r.Close()

			result, err := r.QueryRows(cmd.Context(), args[0])
			if err != nil {
				return fmt.Errorf("query failed: %w", err)
			}
			printRowSet(cmd.OutOrStdout(), result)
			return nil
		},
	}
}

// printRowSet writes a result as tab-separated lines, header first.
func printRowSet(w io.Writer, rs *rowset.RowSet) {
	if rs == nil || rs.Empty() {
		fmt.Fprintln(w, "(no rows)")
		return
	}
	fmt.Fprintln(w, strings.Join(rs.Columns, "\t"))
	for _, row := range rs.Rows {
		cells := make([]string, len(row))
		for i, v := range row {
			if v == nil {
				cells[i] = "NULL"
				continue
			}
			cells[i] = fmt.Sprint(v)
		}
		fmt.Fprintln(w, strings.Join(cells, "\t"))
	}
}
