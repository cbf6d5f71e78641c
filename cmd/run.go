package main

import (
	"context"
	"encoding/json"
	"io"
	"os/signal"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/venue-enricher/internal/batch"
	"github.com/sells-group/venue-enricher/internal/model"
)

var (
	runLimit int
	runDry   bool
	runAfter string
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run one enrichment batch and print the report",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initEnv(ctx, cfg)
		if err != nil {
			return err
		}
		defer env.Close()

		limit := runLimit
		if limit == 0 {
			limit = cfg.Batch.DefaultLimit
		}
		if limit < 1 || limit > cfg.Batch.MaxLimit {
			return eris.Errorf("run: --limit must be between 1 and %d", cfg.Batch.MaxLimit)
		}

		return runBatch(ctx, env.Runner, batch.Options{Limit: limit, Dry: runDry, After: runAfter}, cmd.OutOrStdout())
	},
}

// batchRunner is satisfied by *batch.Runner.
type batchRunner interface {
	Run(ctx context.Context, opts batch.Options) (*model.BatchReport, error)
}

// runBatch runs one batch and writes the report as indented JSON. The
// report is printed even when the batch ends with an error.
func runBatch(ctx context.Context, r batchRunner, opts batch.Options, w io.Writer) error {
	report, runErr := r.Run(ctx, opts)
	if report != nil {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		if err := enc.Encode(report); err != nil {
			return eris.Wrap(err, "run: encode report")
		}
	}
	if runErr != nil {
		return eris.Wrap(runErr, "run: batch")
	}
	return nil
}

func init() {
	runCmd.Flags().IntVar(&runLimit, "limit", 0, "rows to process (default from config)")
	runCmd.Flags().BoolVar(&runDry, "dry", false, "plan changes without writing")
	runCmd.Flags().StringVar(&runAfter, "after", "", "only rows whose key sorts after this value")
	rootCmd.AddCommand(runCmd)
}
