// Package batch runs one enrichment batch: select pending rows, run the
// enrichers on each row in turn, merge and write back.
package batch

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/venue-enricher/internal/enricher"
	"github.com/sells-group/venue-enricher/internal/metrics"
	"github.com/sells-group/venue-enricher/internal/model"
	"github.com/sells-group/venue-enricher/internal/resilience"
	"github.com/sells-group/venue-enricher/internal/store"
	"github.com/sells-group/venue-enricher/internal/waterfall"
)

// Options are the per-request batch parameters.
type Options struct {
	Limit int
	Dry   bool
	After string
}

// Config holds runner behaviour that does not change between batches.
type Config struct {
	StopOnQuota    bool
	TouchUnmatched bool
	// WriteRetry governs ApplyPatch retries. Backend failures are retried.
	WriteRetry resilience.RetryConfig
}

// Runner executes batches. It holds no per-batch state, so one Runner can
// serve concurrent requests.
type Runner struct {
	store    store.Store
	registry *enricher.Registry
	merger   *waterfall.Merger
	pacer    *Pacer
	cfg      Config
	metrics  *metrics.Manager
	now      func() time.Time
}

// Option configures a Runner.
type Option func(*Runner)

// WithMetrics records row, batch and enricher metrics.
func WithMetrics(m *metrics.Manager) Option {
	return func(r *Runner) { r.metrics = m }
}

// WithClock overrides time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(r *Runner) { r.now = now }
}

// New creates a runner. A nil pacer never sleeps; a nil merger uses the
// default waterfall.
func New(st store.Store, reg *enricher.Registry, merger *waterfall.Merger, pacer *Pacer, cfg Config, opts ...Option) *Runner {
	if merger == nil {
		merger = waterfall.NewMerger(nil, waterfall.WithAliases(enricher.Sources))
	}
	if pacer == nil {
		pacer = NewPacer(0, 0)
	}
	if reg == nil {
		reg = enricher.NewRegistry()
	}
	r := &Runner{
		store:    st,
		registry: reg,
		merger:   merger,
		pacer:    pacer,
		cfg:      cfg,
		now:      time.Now,
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// state is scoped to one batch: breakers and quota-disabled enrichers do
// not leak into the next request.
type state struct {
	breakers *resilience.ServiceBreakers
	disabled map[string]bool
}

func (r *Runner) newState() *state {
	s := &state{
		breakers: resilience.NewServiceBreakers(resilience.DefaultCircuitBreakerConfig()),
		disabled: make(map[string]bool),
	}
	for _, e := range r.registry.Entries() {
		name := e.Name()
		cfg := e.Policy.Breaker
		cfg.OnStateChange = func(from, to resilience.CircuitState) {
			zap.L().Warn("batch: enricher breaker state change",
				zap.String("enricher", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		}
		s.breakers.Configure(name, cfg)
	}
	return s
}

// Run processes up to opts.Limit rows one after another. The report is
// always returned, also alongside an error. Errors are a backend failure
// (store.IsBackendUnavailable) or a cancelled context.
func (r *Runner) Run(ctx context.Context, opts Options) (*model.BatchReport, error) {
	start := r.now()
	report := &model.BatchReport{
		RunID: uuid.New().String(),
		Limit: opts.Limit,
		Dry:   opts.Dry,
		Rows:  []model.RowOutcome{},
	}
	log := zap.L().With(zap.String("run_id", report.RunID))

	st := r.newState()
	finish := func(reason model.StopReason, msg string) {
		report.Tripped = st.breakers.Tripped()
		report.Finish(reason, msg, r.now().Sub(start))
		r.metrics.RecordBatch(string(reason))
		log.Info("batch: finished",
			zap.String("reason", string(reason)),
			zap.String("message", msg),
			zap.Int("examined", report.Examined),
			zap.Int("updated", report.Updated),
			zap.Int("skipped", report.Skipped),
			zap.Int("failed", report.Failed),
			zap.Float64("cost_usd", report.Usage.CostUSD),
			zap.Strings("tripped", report.Tripped),
			zap.String("elapsed", report.Elapsed),
		)
	}

	if opts.Dry {
		n, err := r.store.CountPending(ctx)
		if err != nil {
			finish(model.ReasonError, err.Error())
			return report, eris.Wrap(err, "batch: count pending")
		}
		report.Pending = &n
	}

	rows, err := r.store.SelectPending(ctx, store.Query{Limit: opts.Limit, After: opts.After})
	if err != nil {
		finish(model.ReasonError, err.Error())
		return report, eris.Wrap(err, "batch: select pending")
	}
	log.Info("batch: selected rows", zap.Int("rows", len(rows)), zap.Bool("dry", opts.Dry))

	for i, v := range rows {
		if err := r.pacer.Wait(ctx, i); err != nil {
			finish(model.ReasonError, err.Error())
			return report, err
		}

		report.Examined++
		out, usage, err := r.processRow(ctx, v, opts.Dry, st)
		report.Usage.Add(&usage)

		if qe, ok := resilience.AsQuota(err); ok {
			out.Outcome = model.OutcomeSkipped
			out.Error = qe.Error()
			r.record(report, out)
			finish(model.ReasonQuotaStopped, fmt.Sprintf("quota exceeded: %s", qe.Provider))
			return report, nil
		}
		if err != nil {
			out.Outcome = model.OutcomeFailed
			if ctx.Err() != nil {
				// Interrupted before the write; the row is untouched.
				out.Outcome = model.OutcomeSkipped
			}
			out.Error = err.Error()
			r.record(report, out)
			finish(model.ReasonError, err.Error())
			return report, err
		}
		r.record(report, out)
	}

	finish(model.ReasonCompleted, "")
	return report, nil
}

func (r *Runner) record(report *model.BatchReport, out model.RowOutcome) {
	report.Record(out)
	r.metrics.RecordRow(string(out.Outcome))
	zap.L().Info("batch: row",
		zap.String("run_id", report.RunID),
		zap.String("venue", out.Key),
		zap.String("outcome", string(out.Outcome)),
		zap.String("status", string(out.Status)),
		zap.Int("fields", len(out.Fields)),
		zap.String("error", out.Error),
	)
}

// processRow enriches, merges and writes one row. A returned error stops
// the batch: a quota signal with stop_on_quota, a cancelled context, or a
// backend that rejected even the FAILED status write.
func (r *Runner) processRow(ctx context.Context, v *model.Venue, dry bool, st *state) (model.RowOutcome, model.TokenUsage, error) {
	out := model.RowOutcome{Key: v.Key, Name: v.Name}
	in := enricher.NewInput(v)

	var (
		results []*model.Result
		notes   []string
		usage   model.TokenUsage
	)
	for _, e := range r.registry.Entries() {
		name := e.Name()
		if st.disabled[name] || !enricher.Wants(e, in) {
			continue
		}
		if err := ctx.Err(); err != nil {
			return out, usage, err
		}

		started := r.now()
		res, err := resilience.ExecuteVal(ctx, st.breakers.Get(name), func(ctx context.Context) (*model.Result, error) {
			return e.Call(ctx, in)
		})
		elapsed := r.now().Sub(started)

		switch {
		case err == nil:
			r.metrics.RecordEnricherCall(name, callOutcome(res), elapsed)
			usage.Add(res.Usage)
			results = append(results, res)
			notes = append(notes, res.Notes...)
			in.Absorb(res, r.merger.Threshold)
		case resilience.IsQuota(err):
			r.metrics.RecordEnricherCall(name, "quota", elapsed)
			if r.cfg.StopOnQuota {
				return out, usage, err
			}
			st.disabled[name] = true
			notes = append(notes, name+": quota exceeded, disabled for batch")
			zap.L().Warn("batch: enricher quota exceeded, disabling",
				zap.String("venue", v.Key),
				zap.String("enricher", name),
				zap.Error(err),
			)
		case eris.Is(err, resilience.ErrCircuitOpen):
			r.metrics.RecordEnricherCall(name, "circuit_open", elapsed)
		case ctx.Err() != nil:
			return out, usage, ctx.Err()
		default:
			r.metrics.RecordEnricherCall(name, "error", elapsed)
			notes = append(notes, name+": error")
			zap.L().Warn("batch: enricher failed",
				zap.String("venue", v.Key),
				zap.String("enricher", name),
				zap.Error(err),
			)
		}
	}

	merged := r.merger.Merge(v, results)
	patch := merged.Patch(v, notes, r.now())
	out.Status = patch.Status
	out.Fields = merged.Fields()
	out.Merge = merged.Resolutions
	out.Notes = notes

	if !merged.Changed() {
		out.Outcome = model.OutcomeSkipped
		if !r.cfg.TouchUnmatched {
			out.Status = v.Status
			return out, usage, nil
		}
		if dry {
			out.Patch = patch
			return out, usage, nil
		}
		if err := r.write(ctx, patch, &out); err != nil {
			return out, usage, err
		}
		return out, usage, nil
	}

	if dry {
		out.Outcome = model.OutcomePlanned
		out.Patch = patch
		return out, usage, nil
	}

	out.Outcome = model.OutcomeUpdated
	if err := r.write(ctx, patch, &out); err != nil {
		return out, usage, err
	}
	return out, usage, nil
}

// write applies patch with retries. When it keeps failing the row is marked
// failed and a status-only FAILED write is attempted. Only a backend that
// rejects that write too stops the batch; a row deleted mid-batch does not.
func (r *Runner) write(ctx context.Context, patch *model.Patch, out *model.RowOutcome) error {
	retry := r.cfg.WriteRetry
	retry.ShouldRetry = func(err error) bool {
		return store.IsBackendUnavailable(err) || resilience.IsTransient(err)
	}
	if retry.OnRetry == nil {
		retry.OnRetry = resilience.RetryLogger("store", "apply patch")
	}

	err := resilience.Do(ctx, retry, func(ctx context.Context) error {
		return r.store.ApplyPatch(ctx, patch)
	})
	if err == nil {
		return nil
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}

	out.Outcome = model.OutcomeFailed
	out.Status = model.StatusFailed
	out.Error = err.Error()
	zap.L().Error("batch: write failed", zap.String("venue", patch.Key), zap.Error(err))
	if store.IsRowNotFound(err) {
		return nil
	}

	failed := &model.Patch{
		Key:       patch.Key,
		Status:    model.StatusFailed,
		Notes:     []string{"write failed: " + err.Error()},
		UpdatedAt: r.now().UTC(),
	}
	ferr := r.store.ApplyPatch(ctx, failed)
	switch {
	case ferr == nil:
		return nil
	case store.IsBackendUnavailable(ferr):
		return eris.Wrapf(ferr, "batch: mark %s failed", patch.Key)
	default:
		zap.L().Warn("batch: could not mark row failed", zap.String("venue", patch.Key), zap.Error(ferr))
		return nil
	}
}

func callOutcome(res *model.Result) string {
	if res.Empty() {
		return "no_match"
	}
	return "ok"
}
