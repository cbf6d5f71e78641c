package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/venue-enricher/internal/batch"
	"github.com/sells-group/venue-enricher/internal/model"
	"github.com/sells-group/venue-enricher/internal/store"
)

type fakeRunner struct {
	report *model.BatchReport
	err    error
	got    batch.Options
}

func (f *fakeRunner) Run(_ context.Context, opts batch.Options) (*model.BatchReport, error) {
	f.got = opts
	return f.report, f.err
}

func TestRunBatch_PrintsReport(t *testing.T) {
	rep := &model.BatchReport{RunID: "r1", Limit: 3, Dry: true, Rows: []model.RowOutcome{}}
	rep.Finish(model.ReasonCompleted, "", time.Second)
	r := &fakeRunner{report: rep}

	var buf bytes.Buffer
	require.NoError(t, runBatch(context.Background(), r, batch.Options{Limit: 3, Dry: true, After: "M"}, &buf))
	assert.Equal(t, batch.Options{Limit: 3, Dry: true, After: "M"}, r.got)

	var got model.BatchReport
	require.NoError(t, json.Unmarshal(buf.Bytes(), &got))
	assert.Equal(t, "r1", got.RunID)
	assert.True(t, got.Dry)
}

func TestRunBatch_ErrorStillPrints(t *testing.T) {
	rep := &model.BatchReport{Limit: 3, Rows: []model.RowOutcome{}}
	rep.Finish(model.ReasonError, "warehouse down", 0)
	r := &fakeRunner{report: rep, err: errors.Join(store.ErrBackendUnavailable, errors.New("warehouse down"))}

	var buf bytes.Buffer
	err := runBatch(context.Background(), r, batch.Options{Limit: 3}, &buf)
	require.Error(t, err)
	assert.True(t, store.IsBackendUnavailable(err))
	assert.Contains(t, buf.String(), `"reason": "error"`)
}

func TestRootCommands(t *testing.T) {
	names := make(map[string]bool)
	for _, c := range rootCmd.Commands() {
		names[c.Name()] = true
	}
	for _, want := range []string{"serve", "run", "stats", "migrate"} {
		assert.True(t, names[want], want)
	}

	f := runCmd.Flags()
	for _, flag := range []string{"limit", "dry", "after"} {
		assert.NotNil(t, f.Lookup(flag), flag)
	}
	assert.NotNil(t, serveCmd.Flags().Lookup("port"))
}
