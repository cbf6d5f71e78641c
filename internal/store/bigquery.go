package store

import (
	"context"
	"fmt"
	"math"
	"strings"

	"cloud.google.com/go/bigquery"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"

	"github.com/sells-group/venue-enricher/internal/model"
)

// BigQueryConfig locates the venue table in the warehouse.
type BigQueryConfig struct {
	ProjectID string
	DatasetID string
	Table     string
	Location  string
}

// FullTable returns the project.dataset.table path.
func (c BigQueryConfig) FullTable() string {
	return fmt.Sprintf("%s.%s.%s", c.ProjectID, c.DatasetID, c.Table)
}

// BigQueryStore implements Store on a BigQuery table.
type BigQueryStore struct {
	client *bigquery.Client
	cfg    BigQueryConfig
	base   *builder
	schema schemaCache
}

// NewBigQuery creates a client for the configured project. Credentials come
// from the environment unless opts override them.
func NewBigQuery(ctx context.Context, cfg BigQueryConfig, cols Columns, opts ...option.ClientOption) (*BigQueryStore, error) {
	if cfg.ProjectID == "" || cfg.DatasetID == "" || cfg.Table == "" {
		return nil, eris.New("bigquery: project, dataset and table are required")
	}
	client, err := bigquery.NewClient(ctx, cfg.ProjectID, opts...)
	if err != nil {
		return nil, unavailable(eris.Wrap(err, "bigquery: create client"))
	}
	if cfg.Location != "" {
		client.Location = cfg.Location
	}
	return &BigQueryStore{
		client: client,
		cfg:    cfg,
		base:   newBigQueryBuilder(cfg, cols),
	}, nil
}

func newBigQueryBuilder(cfg BigQueryConfig, cols Columns) *builder {
	return newBuilder(bigqueryDialect, cols, bigqueryDialect.quote(cfg.FullTable()))
}

// bqVenueRow mirrors the select list; every column is nullable.
type bqVenueRow struct {
	RowKey           bigquery.NullString    `bigquery:"row_key"`
	Name             bigquery.NullString    `bigquery:"venue_name"`
	Website          bigquery.NullString    `bigquery:"website"`
	City             bigquery.NullString    `bigquery:"city"`
	Country          bigquery.NullString    `bigquery:"country"`
	Category         bigquery.NullString    `bigquery:"category"`
	Status           bigquery.NullString    `bigquery:"status"`
	UpdatedAt        bigquery.NullTimestamp `bigquery:"updated_at"`
	AvgTicketPrice   bigquery.NullFloat64   `bigquery:"avg_ticket_price"`
	Capacity         bigquery.NullFloat64   `bigquery:"capacity"`
	TicketVendor     bigquery.NullString    `bigquery:"ticket_vendor"`
	AnnualRevenue    bigquery.NullFloat64   `bigquery:"annual_revenue"`
	TicketingRevenue bigquery.NullFloat64   `bigquery:"ticketing_revenue"`
}

func (r *bqVenueRow) venue() *model.Venue {
	str := func(n bigquery.NullString) string {
		if !n.Valid {
			return ""
		}
		return strings.TrimSpace(n.StringVal)
	}
	num := func(n bigquery.NullFloat64) *float64 {
		if !n.Valid {
			return nil
		}
		x := n.Float64
		return &x
	}

	v := &model.Venue{
		Key:              str(r.RowKey),
		Name:             str(r.Name),
		Website:          str(r.Website),
		City:             str(r.City),
		Country:          str(r.Country),
		Category:         str(r.Category),
		Status:           model.Status(strings.ToUpper(str(r.Status))),
		AvgTicketPrice:   num(r.AvgTicketPrice),
		AnnualRevenue:    num(r.AnnualRevenue),
		TicketingRevenue: num(r.TicketingRevenue),
	}
	if r.Capacity.Valid {
		c := int64(math.Round(r.Capacity.Float64))
		v.Capacity = &c
	}
	if r.TicketVendor.Valid {
		s := strings.TrimSpace(r.TicketVendor.StringVal)
		v.TicketVendor = &s
	}
	if r.UpdatedAt.Valid {
		t := r.UpdatedAt.Timestamp
		v.UpdatedAt = &t
	}
	return v
}

// queryParams names positional values p1..pN to match the builder's binds.
func queryParams(vals []any) []bigquery.QueryParameter {
	params := make([]bigquery.QueryParameter, len(vals))
	for i, v := range vals {
		params[i] = bigquery.QueryParameter{Name: fmt.Sprintf("p%d", i+1), Value: v}
	}
	return params
}

func (s *BigQueryStore) query(sql string, vals []any) *bigquery.Query {
	q := s.client.Query(sql)
	q.Parameters = queryParams(vals)
	return q
}

func (s *BigQueryStore) builder(ctx context.Context) (*builder, error) {
	cols, err := s.schema.load(ctx, s.columns)
	if err != nil {
		return nil, err
	}
	b := s.base.withSchema(cols)
	if err := b.check(); err != nil {
		return nil, unavailable(err)
	}
	return b, nil
}

func (s *BigQueryStore) columns(ctx context.Context) ([]string, error) {
	md, err := s.client.Dataset(s.cfg.DatasetID).Table(s.cfg.Table).Metadata(ctx)
	if err != nil {
		return nil, unavailable(eris.Wrap(err, "bigquery: describe table"))
	}
	out := make([]string, 0, len(md.Schema))
	for _, f := range md.Schema {
		out = append(out, f.Name)
	}
	return out, nil
}

func (s *BigQueryStore) SelectPending(ctx context.Context, q Query) ([]*model.Venue, error) {
	b, err := s.builder(ctx)
	if err != nil {
		return nil, err
	}
	sql, vals := b.selectPending(q)
	it, err := s.query(sql, vals).Read(ctx)
	if err != nil {
		return nil, unavailable(eris.Wrap(err, "bigquery: select pending"))
	}

	var venues []*model.Venue
	for {
		var row bqVenueRow
		err := it.Next(&row)
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, unavailable(eris.Wrap(err, "bigquery: read pending"))
		}
		venues = append(venues, row.venue())
	}
	return venues, nil
}

// readInts reads the single result row of an aggregate query.
func (s *BigQueryStore) readInts(ctx context.Context, sql string) ([]int64, error) {
	it, err := s.query(sql, nil).Read(ctx)
	if err != nil {
		return nil, err
	}
	var row []bigquery.Value
	if err := it.Next(&row); err != nil {
		return nil, err
	}
	out := make([]int64, len(row))
	for i, v := range row {
		n, ok := v.(int64)
		if !ok {
			return nil, eris.Errorf("bigquery: column %d: unexpected %T", i, v)
		}
		out[i] = n
	}
	return out, nil
}

func (s *BigQueryStore) CountPending(ctx context.Context) (int64, error) {
	b, err := s.builder(ctx)
	if err != nil {
		return 0, err
	}
	counts, err := s.readInts(ctx, b.countPending())
	if err != nil {
		return 0, unavailable(eris.Wrap(err, "bigquery: count pending"))
	}
	return counts[0], nil
}

func (s *BigQueryStore) ApplyPatch(ctx context.Context, p *model.Patch) error {
	b, err := s.builder(ctx)
	if err != nil {
		return err
	}
	sql, vals, ok := b.update(p)
	if !ok {
		return nil
	}
	job, err := s.query(sql, vals).Run(ctx)
	if err != nil {
		return unavailable(eris.Wrapf(err, "bigquery: update %s", p.Key))
	}
	status, err := job.Wait(ctx)
	if err != nil {
		return unavailable(eris.Wrapf(err, "bigquery: wait update %s", p.Key))
	}
	if err := status.Err(); err != nil {
		return unavailable(eris.Wrapf(err, "bigquery: update %s", p.Key))
	}
	if status.Statistics != nil {
		if qs, ok := status.Statistics.Details.(*bigquery.QueryStatistics); ok && qs.NumDMLAffectedRows == 0 {
			return eris.Wrapf(ErrRowNotFound, "bigquery: update %s", p.Key)
		}
	}
	return nil
}

type bqStatusRow struct {
	Status string `bigquery:"status"`
	N      int64  `bigquery:"n"`
}

func (s *BigQueryStore) Coverage(ctx context.Context) (*model.Coverage, error) {
	b, err := s.builder(ctx)
	if err != nil {
		return nil, err
	}
	cov := newCoverage(s.cfg.FullTable())

	sql, fields := b.coverage()
	counts, err := s.readInts(ctx, sql)
	if err != nil {
		return nil, unavailable(eris.Wrap(err, "bigquery: coverage"))
	}
	cov.Total = counts[0]
	for i, f := range fields {
		cov.ByField[f] = counts[i+1]
	}

	if sql := b.statusCounts(); sql != "" {
		it, err := s.query(sql, nil).Read(ctx)
		if err != nil {
			return nil, unavailable(eris.Wrap(err, "bigquery: status counts"))
		}
		for {
			var row bqStatusRow
			err := it.Next(&row)
			if err == iterator.Done {
				break
			}
			if err != nil {
				return nil, unavailable(eris.Wrap(err, "bigquery: read status counts"))
			}
			addStatus(cov, row.Status, row.N)
		}
	}

	if cov.Pending, err = s.CountPending(ctx); err != nil {
		return nil, err
	}
	return cov, nil
}

func (s *BigQueryStore) Info() Info {
	return Info{Driver: bigqueryDialect.name, Table: s.cfg.FullTable(), Location: s.cfg.Location}
}

// Ping fetches the table metadata, which checks credentials and existence.
func (s *BigQueryStore) Ping(ctx context.Context) error {
	_, err := s.client.Dataset(s.cfg.DatasetID).Table(s.cfg.Table).Metadata(ctx)
	return unavailable(eris.Wrap(err, "bigquery: ping"))
}

// Migrate is a no-op: warehouse tables are managed outside this tool.
func (s *BigQueryStore) Migrate(_ context.Context) error {
	zap.L().Warn("bigquery: migrate skipped, warehouse tables are managed externally",
		zap.String("table", s.cfg.FullTable()))
	return nil
}

func (s *BigQueryStore) Close() error {
	return s.client.Close()
}
