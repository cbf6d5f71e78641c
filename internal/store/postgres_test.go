package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/venue-enricher/internal/model"
)

// newMockPostgresStore creates a PostgresStore backed by pgxmock for unit testing.
func newMockPostgresStore(t *testing.T) (*PostgresStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { mock.Close() })

	return newPostgresStore(mock, "venues", DefaultColumns()), mock
}

const describeSQL = `SELECT column_name FROM information_schema.columns WHERE table_name = \$1`

func expectDescribe(mock pgxmock.PgxPoolIface, cols ...string) {
	rows := pgxmock.NewRows([]string{"column_name"})
	for _, c := range cols {
		rows.AddRow(c)
	}
	mock.ExpectQuery(describeSQL).WithArgs("venues", "").WillReturnRows(rows)
}

var fullSchema = []string{
	"name", "domain", "city", "country", "category", "enrichment_status", "last_updated", "notes", "segment",
	"avg_ticket_price", "avg_ticket_price_source", "capacity", "capacity_source",
	"ticket_vendor", "ticket_vendor_source", "annual_revenue", "annual_revenue_source",
	"ticketing_revenue", "ticketing_revenue_source",
}

func strPtr(s string) *string { return &s }
func f64Ptr(f float64) *float64 { return &f }

func TestPostgresStore_SelectPending(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	expectDescribe(mock, fullSchema...)

	updated := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	rows := pgxmock.NewRows([]string{
		"row_key", "venue_name", "website", "city", "country", "category", "status", "updated_at",
		"avg_ticket_price", "capacity", "ticket_vendor", "annual_revenue", "ticketing_revenue",
	}).AddRow(
		"Sala Sol", strPtr("Sala Sol"), strPtr("salasol.com"), strPtr("Madrid"), strPtr("ES"), strPtr("club"),
		strPtr("partial"), updated,
		f64Ptr(15), f64Ptr(450.4), strPtr("Ticketmaster"), f64Ptr(2e6), f64Ptr(1.2e6),
	)
	mock.ExpectQuery(`SELECT CAST\("name" AS TEXT\) AS row_key, .* FROM "venues" WHERE "name" IS NOT NULL AND .* ORDER BY "last_updated" ASC NULLS FIRST, row_key ASC LIMIT \$1`).
		WithArgs(int64(10)).
		WillReturnRows(rows)

	venues, err := s.SelectPending(context.Background(), Query{Limit: 10})
	require.NoError(t, err)
	require.Len(t, venues, 1)

	v := venues[0]
	assert.Equal(t, "Sala Sol", v.Key)
	assert.Equal(t, "salasol.com", v.Website)
	assert.Equal(t, model.StatusPartial, v.Status)
	require.NotNil(t, v.Capacity)
	assert.Equal(t, int64(450), *v.Capacity)
	require.NotNil(t, v.UpdatedAt)
	assert.True(t, updated.Equal(*v.UpdatedAt))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_SelectPending_AfterCursor(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	expectDescribe(mock, fullSchema...)

	mock.ExpectQuery(`AND CAST\("name" AS TEXT\) > \$1 ORDER BY row_key ASC LIMIT \$2`).
		WithArgs("Sala B", int64(3)).
		WillReturnRows(pgxmock.NewRows([]string{"row_key"}))

	venues, err := s.SelectPending(context.Background(), Query{Limit: 3, After: "Sala B"})
	require.NoError(t, err)
	assert.Empty(t, venues)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_CountPending_CachesSchema(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	expectDescribe(mock, fullSchema...)

	for i := 0; i < 2; i++ {
		mock.ExpectQuery(`SELECT COUNT\(\*\) FROM "venues" WHERE`).
			WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(int64(7)))
	}

	for i := 0; i < 2; i++ {
		n, err := s.CountPending(context.Background())
		require.NoError(t, err)
		assert.Equal(t, int64(7), n)
	}
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ApplyPatch_FiltersColumns(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	expectDescribe(mock, "name", "domain", "enrichment_status", "last_updated", "capacity", "capacity_source", "ticket_vendor")

	mock.ExpectExec(`UPDATE "venues" SET "capacity" = \$1, "capacity_source" = \$2, "ticket_vendor" = \$3, "enrichment_status" = \$4, "last_updated" = \$5 WHERE CAST\("name" AS TEXT\) = \$6`).
		WithArgs(int64(500), "wikidata", "DICE", "PARTIAL", pgxmock.AnyArg(), "Sala").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	err := s.ApplyPatch(context.Background(), &model.Patch{
		Key: "Sala",
		Values: map[model.Field]any{
			model.FieldCapacity:      int64(500),
			model.FieldTicketVendor:  "DICE",
			model.FieldAnnualRevenue: 3e6,
		},
		Sources: map[model.Field]string{
			model.FieldCapacity:     "wikidata",
			model.FieldTicketVendor: "website",
		},
		Status:    model.StatusPartial,
		Segment:   model.SegmentGold,
		Notes:     []string{"ignored"},
		UpdatedAt: time.Now(),
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ApplyPatch_ExecError(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	expectDescribe(mock, fullSchema...)

	mock.ExpectExec(`UPDATE "venues" SET "enrichment_status" = \$1, "last_updated" = \$2, "notes" = \$3 WHERE CAST\("name" AS TEXT\) = \$4`).
		WithArgs("PARTIAL", pgxmock.AnyArg(), "", "Sala").
		WillReturnError(errors.New("connection reset by peer"))

	err := s.ApplyPatch(context.Background(), &model.Patch{Key: "Sala", Status: model.StatusPartial, UpdatedAt: time.Now()})
	require.Error(t, err)
	assert.True(t, IsBackendUnavailable(err))
	assert.Contains(t, err.Error(), "postgres: update Sala")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ApplyPatch_RowNotFound(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	expectDescribe(mock, fullSchema...)

	mock.ExpectExec(`UPDATE "venues" SET "enrichment_status" = \$1, "notes" = \$2 WHERE CAST\("name" AS TEXT\) = \$3`).
		WithArgs("FAILED", "write failed", "ghost").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	err := s.ApplyPatch(context.Background(), &model.Patch{Key: "ghost", Status: model.StatusFailed, Notes: []string{"write failed"}})
	require.Error(t, err)
	assert.True(t, IsRowNotFound(err))
	assert.False(t, IsBackendUnavailable(err))
	assert.Contains(t, err.Error(), "postgres: update ghost")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_DescribeFailure(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	mock.ExpectQuery(describeSQL).WithArgs("venues", "").WillReturnError(errors.New("dial tcp: connection refused"))

	_, err := s.SelectPending(context.Background(), Query{Limit: 1})
	require.Error(t, err)
	assert.True(t, IsBackendUnavailable(err))
	assert.Contains(t, err.Error(), "postgres: describe table")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_MissingKeyColumn(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	expectDescribe(mock, "domain", "capacity")

	_, err := s.CountPending(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), `no column "name"`)
}

func TestPostgresStore_Coverage(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	expectDescribe(mock, "name", "enrichment_status", "capacity", "ticket_vendor")

	mock.ExpectQuery(`SELECT COUNT\(\*\), COUNT\("capacity"\), COUNT\(NULLIF\(TRIM\("ticket_vendor"\), ''\)\) FROM "venues"`).
		WillReturnRows(pgxmock.NewRows([]string{"total", "capacity", "ticket_vendor"}).AddRow(int64(10), int64(6), int64(4)))
	mock.ExpectQuery(`SELECT COALESCE\(UPPER\("enrichment_status"\), ''\) AS status, COUNT\(\*\) AS n FROM "venues" GROUP BY 1`).
		WillReturnRows(pgxmock.NewRows([]string{"status", "n"}).
			AddRow("", int64(3)).
			AddRow("DONE", int64(4)).
			AddRow("PENDING", int64(1)).
			AddRow("PARTIAL", int64(2)))
	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM "venues" WHERE`).
		WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(int64(6)))

	cov, err := s.Coverage(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(10), cov.Total)
	assert.Equal(t, int64(6), cov.Pending)
	assert.Equal(t, int64(4), cov.ByStatus["PENDING"])
	assert.Equal(t, int64(4), cov.ByStatus["DONE"])
	assert.Equal(t, int64(6), cov.ByField[model.FieldCapacity])
	assert.Equal(t, int64(4), cov.ByField[model.FieldTicketVendor])
	_, hasPrice := cov.ByField[model.FieldAvgTicketPrice]
	assert.False(t, hasPrice)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_Migrate(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	mock.ExpectExec(`CREATE TABLE IF NOT EXISTS "venues" \(\s+"name" TEXT PRIMARY KEY`).
		WillReturnResult(pgxmock.NewResult("CREATE", 0))

	require.NoError(t, s.Migrate(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}
