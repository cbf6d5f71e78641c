package batch

import (
	"context"
	"database/sql"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/venue-enricher/internal/enricher"
	"github.com/sells-group/venue-enricher/internal/model"
	"github.com/sells-group/venue-enricher/internal/resilience"
	"github.com/sells-group/venue-enricher/internal/store"
)

// --- Store Mock ---

type mockStore struct {
	mock.Mock
}

func (m *mockStore) SelectPending(ctx context.Context, q store.Query) ([]*model.Venue, error) {
	args := m.Called(ctx, q)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*model.Venue), args.Error(1)
}

func (m *mockStore) CountPending(ctx context.Context) (int64, error) {
	args := m.Called(ctx)
	return args.Get(0).(int64), args.Error(1)
}

func (m *mockStore) ApplyPatch(ctx context.Context, p *model.Patch) error {
	return m.Called(ctx, p).Error(0)
}

func (m *mockStore) Coverage(ctx context.Context) (*model.Coverage, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Coverage), args.Error(1)
}

func (m *mockStore) Info() store.Info            { return store.Info{Driver: "mock", Table: "venues"} }
func (m *mockStore) Ping(_ context.Context) error { return nil }
func (m *mockStore) Migrate(_ context.Context) error {
	return nil
}
func (m *mockStore) Close() error { return nil }

// --- Enricher stub ---

type stubEnricher struct {
	name   string
	fields []model.Field
	calls  atomic.Int32
	fn     func(ctx context.Context, in *enricher.Input) (*model.Result, error)
}

func (s *stubEnricher) Name() string          { return s.name }
func (s *stubEnricher) Fields() []model.Field { return s.fields }
func (s *stubEnricher) Enrich(ctx context.Context, in *enricher.Input) (*model.Result, error) {
	s.calls.Add(1)
	return s.fn(ctx, in)
}

// capacityFrom returns an enricher that offers a capacity for every row.
func capacityFrom(name string, n int64) *stubEnricher {
	return &stubEnricher{
		name:   name,
		fields: []model.Field{model.FieldCapacity},
		fn: func(_ context.Context, _ *enricher.Input) (*model.Result, error) {
			r := model.NewResult(enricher.Sources[name])
			r.Put(model.FieldCapacity, n, 0.9, "stub")
			return r, nil
		},
	}
}

func testPolicy() enricher.Policy {
	return enricher.Policy{
		Timeout: time.Second,
		Retry: resilience.RetryConfig{
			MaxAttempts:    1,
			InitialBackoff: time.Millisecond,
			MaxBackoff:     time.Millisecond,
		},
		Breaker: resilience.CircuitBreakerConfig{FailureThreshold: 2, ResetTimeout: time.Hour},
	}
}

func registry(es ...enricher.Enricher) *enricher.Registry {
	r := enricher.NewRegistry()
	for _, e := range es {
		r.Register(e, testPolicy())
	}
	return r
}

func fastWrites() resilience.RetryConfig {
	return resilience.RetryConfig{MaxAttempts: 2, InitialBackoff: time.Millisecond, MaxBackoff: time.Millisecond}
}

var fixedNow = time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)

func clock() time.Time { return fixedNow }

// --- SQLite fixture ---

func newSQLite(t *testing.T, names ...string) *store.SQLiteStore {
	t.Helper()
	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "venues.db"), "venues", store.DefaultColumns())
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))
	for i, n := range names {
		_, err := st.DB().Exec(`INSERT INTO venues (name, domain, city, country, last_updated) VALUES (?, ?, 'Madrid', 'ES', ?)`,
			n, n+".example", time.Date(2026, 1, 1+i, 0, 0, 0, 0, time.UTC).Format("2006-01-02T15:04:05.000000Z"))
		require.NoError(t, err)
	}
	return st
}

type dbRow struct {
	status   sql.NullString
	capacity sql.NullInt64
	source   sql.NullString
	notes    sql.NullString
}

func readRow(t *testing.T, st *store.SQLiteStore, name string) dbRow {
	t.Helper()
	var r dbRow
	err := st.DB().QueryRow(`SELECT enrichment_status, capacity, capacity_source, notes FROM venues WHERE name = ?`, name).
		Scan(&r.status, &r.capacity, &r.source, &r.notes)
	require.NoError(t, err)
	return r
}
