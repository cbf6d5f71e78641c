package main

import (
	"context"
	"encoding/json"
	"io"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/venue-enricher/internal/store"
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Print enrichment coverage for the venue table",
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := initStore(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		return printCoverage(cmd.Context(), st, cmd.OutOrStdout())
	},
}

func printCoverage(ctx context.Context, st store.Store, w io.Writer) error {
	cov, err := st.Coverage(ctx)
	if err != nil {
		return eris.Wrap(err, "stats: coverage")
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(cov)
}

func init() {
	rootCmd.AddCommand(statsCmd)
}
