package cmd

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
)

func newSimilarCmd(deps *dependencies) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "similar <vector>",
		Short: "Find products nearest to an embedding vector",
		Long: `Runs a nearest-neighbor product search. The vector is a comma-separated
list of floats, e.g. "0.12,-0.5,0.33". The search runs natively on the
primary via pgvector and falls back to the mirror when the primary is
unreachable.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			query, err := parseVector(args[0])
			if err != nil {
				return err
			}

			cfg, logger, err := deps.load()
			if err != nil {
				return err
			}

			r, err := newRouter(cmd.Context(), cfg, logger)
			if err != nil {
				return err
			}
			defer r.Close()

			result, err := r.VectorSimilarity(cmd.Context(), query, limit)
			if err != nil {
				return fmt.Errorf("similarity search failed: %w", err)
			}
			printRowSet(cmd.OutOrStdout(), result)
			return nil
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 5, "maximum number of results")
	return cmd
}

func parseVector(raw string) ([]float32, error) {
	parts := strings.Split(raw, ",")
	vec := make([]float32, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		f, err := strconv.ParseFloat(p, 32)
		if err != nil {
			return nil, fmt.Errorf("invalid vector component %q: %w", p, err)
		}
		vec = append(vec, float32(f))
	}
	if len(vec) == 0 {
		return nil, fmt.Errorf("empty vector %q", raw)
	}
	return vec, nil
}
