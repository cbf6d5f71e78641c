package store

import (
	"context"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/venue-enricher/internal/model"
)

// Pool is the subset of pgxpool.Pool the store uses. pgxmock pools satisfy
// it as well.
type Pool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Ping(ctx context.Context) error
}

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    Pool
	closeFn func()
	table   string
	base    *builder
	schema  schemaCache
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString, table string, cols Columns, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(4)
	minConns := int32(1)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, unavailable(eris.Wrap(err, "postgres: create pool"))
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, unavailable(eris.Wrap(err, "postgres: ping"))
	}
	s := newPostgresStore(pool, table, cols)
	s.closeFn = pool.Close
	return s, nil
}

func newPostgresStore(pool Pool, table string, cols Columns) *PostgresStore {
	if table == "" {
		table = "venues"
	}
	return &PostgresStore{
		pool:  pool,
		table: table,
		base:  newBuilder(postgresDialect, cols, doubleQuote(table)),
	}
}

// builder returns the statement builder restricted to the table's columns.
func (s *PostgresStore) builder(ctx context.Context) (*builder, error) {
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

func (s *PostgresStore) columns(ctx context.Context) ([]string, error) {
	schema, table := "", s.table
	if i := strings.LastIndex(table, "."); i >= 0 {
		schema, table = table[:i], table[i+1:]
	}
	query := `SELECT column_name FROM information_schema.columns WHERE table_name = $1 AND table_schema = COALESCE(NULLIF($2, ''), current_schema())`
	rows, err := s.pool.Query(ctx, query, table, schema)
	if err != nil {
		return nil, unavailable(eris.Wrap(err, "postgres: describe table"))
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, unavailable(eris.Wrap(err, "postgres: scan column"))
		}
		out = append(out, name)
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable(eris.Wrap(err, "postgres: describe table"))
	}
	return out, nil
}

func (s *PostgresStore) SelectPending(ctx context.Context, q Query) ([]*model.Venue, error) {
	b, err := s.builder(ctx)
	if err != nil {
		return nil, err
	}
	query, vals := b.selectPending(q)
	rows, err := s.pool.Query(ctx, query, vals...)
	if err != nil {
		return nil, unavailable(eris.Wrap(err, "postgres: select pending"))
	}
	defer rows.Close()

	var venues []*model.Venue
	for rows.Next() {
		v, err := scanVenue(rows)
		if err != nil {
			return nil, unavailable(eris.Wrap(err, "postgres: scan venue"))
		}
		venues = append(venues, v)
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable(eris.Wrap(err, "postgres: select pending"))
	}
	return venues, nil
}

func (s *PostgresStore) CountPending(ctx context.Context) (int64, error) {
	b, err := s.builder(ctx)
	if err != nil {
		return 0, err
	}
	var n int64
	if err := s.pool.QueryRow(ctx, b.countPending()).Scan(&n); err != nil {
		return 0, unavailable(eris.Wrap(err, "postgres: count pending"))
	}
	return n, nil
}

func (s *PostgresStore) ApplyPatch(ctx context.Context, p *model.Patch) error {
	b, err := s.builder(ctx)
	if err != nil {
		return err
	}
	query, vals, ok := b.update(p)
	if !ok {
		return nil
	}
	tag, err := s.pool.Exec(ctx, query, vals...)
	if err != nil {
		return unavailable(eris.Wrapf(err, "postgres: update %s", p.Key))
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrRowNotFound, "postgres: update %s", p.Key)
	}
	return nil
}

func (s *PostgresStore) Coverage(ctx context.Context) (*model.Coverage, error) {
	b, err := s.builder(ctx)
	if err != nil {
		return nil, err
	}
	cov := newCoverage(s.table)

	query, fields := b.coverage()
	counts := make([]int64, len(fields)+1)
	dest := make([]any, len(counts))
	for i := range counts {
		dest[i] = &counts[i]
	}
	if err := s.pool.QueryRow(ctx, query).Scan(dest...); err != nil {
		return nil, unavailable(eris.Wrap(err, "postgres: coverage"))
	}
	cov.Total = counts[0]
	for i, f := range fields {
		cov.ByField[f] = counts[i+1]
	}

	if query := b.statusCounts(); query != "" {
		rows, err := s.pool.Query(ctx, query)
		if err != nil {
			return nil, unavailable(eris.Wrap(err, "postgres: status counts"))
		}
		defer rows.Close()
		for rows.Next() {
			var status string
			var n int64
			if err := rows.Scan(&status, &n); err != nil {
				return nil, unavailable(eris.Wrap(err, "postgres: scan status count"))
			}
			addStatus(cov, status, n)
		}
		if err := rows.Err(); err != nil {
			return nil, unavailable(eris.Wrap(err, "postgres: status counts"))
		}
	}

	if cov.Pending, err = s.CountPending(ctx); err != nil {
		return nil, err
	}
	return cov, nil
}

func (s *PostgresStore) Info() Info {
	return Info{Driver: postgresDialect.name, Table: s.table}
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return unavailable(eris.Wrap(s.pool.Ping(ctx), "postgres: ping"))
}

// Migrate creates the venue table when it does not exist yet.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, s.base.createTable(s.table)); err != nil {
		return unavailable(eris.Wrap(err, "postgres: migrate"))
	}
	s.schema.reset()
	return nil
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}
