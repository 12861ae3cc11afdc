package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newPingCmd(deps *dependencies) *cobra.Command {
	return &cobra.Command{
		Use:   "ping",
		Short: "Check primary connectivity and mirror readiness",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := deps.load()
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()

			r, err := newRouter(cmd.Context(), cfg, logger)
			if err != nil {
				return err
			}
			defer r.Close()

			if pingErr := r.Ping(cmd.Context()); pingErr != nil {
				fmt.Fprintf(out, "primary: unreachable (%v)\n", pingErr)
			} else {
				fmt.Fprintln(out, "primary: ok")
			}

			m := newMirror(cfg, logger)
			switch {
			case m == nil:
				fmt.Fprintln(out, "mirror: disabled")
			case m.IsReady(cmd.Context()):
				fmt.Fprintf(out, "mirror: ready (%s)\n", cfg.MirrorPath)
			default:
				fmt.Fprintf(out, "mirror: not ready (%s)\n", cfg.MirrorPath)
			}
			return nil
		},
	}
}
