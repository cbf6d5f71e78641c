package store

import (
	"context"
	"database/sql"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/venue-enricher/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db     *sql.DB
	table  string
	base   *builder
	schema schemaCache
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn, table string, cols Columns) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, unavailable(eris.Wrap(err, "sqlite: open"))
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close() //nolint:errcheck
			return nil, unavailable(eris.Wrapf(err, "sqlite: exec %s", pragma))
		}
	}
	if table == "" {
		table = "venues"
	}
	return &SQLiteStore{
		db:    db,
		table: table,
		base:  newBuilder(sqliteDialect, cols, doubleQuote(table)),
	}, nil
}

// DB exposes the handle for seeding local databases.
func (s *SQLiteStore) DB() *sql.DB {
	return s.db
}

func (s *SQLiteStore) builder(ctx context.Context) (*builder, error) {
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

func (s *SQLiteStore) columns(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT name FROM pragma_table_info(?)`, s.table)
	if err != nil {
		return nil, unavailable(eris.Wrap(err, "sqlite: describe table"))
	}
	defer rows.Close() //nolint:errcheck

	var out []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, unavailable(eris.Wrap(err, "sqlite: scan column"))
		}
		out = append(out, name)
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable(eris.Wrap(err, "sqlite: describe table"))
	}
	return out, nil
}

func (s *SQLiteStore) SelectPending(ctx context.Context, q Query) ([]*model.Venue, error) {
	b, err := s.builder(ctx)
	if err != nil {
		return nil, err
	}
	query, vals := b.selectPending(q)
	rows, err := s.db.QueryContext(ctx, query, vals...)
	if err != nil {
		return nil, unavailable(eris.Wrap(err, "sqlite: select pending"))
	}
	defer rows.Close() //nolint:errcheck

	var venues []*model.Venue
	for rows.Next() {
		v, err := scanVenue(rows)
		if err != nil {
			return nil, unavailable(eris.Wrap(err, "sqlite: scan venue"))
		}
		venues = append(venues, v)
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable(eris.Wrap(err, "sqlite: select pending"))
	}
	return venues, nil
}

func (s *SQLiteStore) CountPending(ctx context.Context) (int64, error) {
	b, err := s.builder(ctx)
	if err != nil {
		return 0, err
	}
	var n int64
	if err := s.db.QueryRowContext(ctx, b.countPending()).Scan(&n); err != nil {
		return 0, unavailable(eris.Wrap(err, "sqlite: count pending"))
	}
	return n, nil
}

func (s *SQLiteStore) ApplyPatch(ctx context.Context, p *model.Patch) error {
	b, err := s.builder(ctx)
	if err != nil {
		return err
	}
	query, vals, ok := b.update(p)
	if !ok {
		return nil
	}
	res, err := s.db.ExecContext(ctx, query, vals...)
	if err != nil {
		return unavailable(eris.Wrapf(err, "sqlite: update %s", p.Key))
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return eris.Wrapf(ErrRowNotFound, "sqlite: update %s", p.Key)
	}
	return nil
}

func (s *SQLiteStore) Coverage(ctx context.Context) (*model.Coverage, error) {
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
	if err := s.db.QueryRowContext(ctx, query).Scan(dest...); err != nil {
		return nil, unavailable(eris.Wrap(err, "sqlite: coverage"))
	}
	cov.Total = counts[0]
	for i, f := range fields {
		cov.ByField[f] = counts[i+1]
	}

	if query := b.statusCounts(); query != "" {
		rows, err := s.db.QueryContext(ctx, query)
		if err != nil {
			return nil, unavailable(eris.Wrap(err, "sqlite: status counts"))
		}
		defer rows.Close() //nolint:errcheck
		for rows.Next() {
			var status string
			var n int64
			if err := rows.Scan(&status, &n); err != nil {
				return nil, unavailable(eris.Wrap(err, "sqlite: scan status count"))
			}
			addStatus(cov, status, n)
		}
		if err := rows.Err(); err != nil {
			return nil, unavailable(eris.Wrap(err, "sqlite: status counts"))
		}
	}

	if cov.Pending, err = s.CountPending(ctx); err != nil {
		return nil, err
	}
	return cov, nil
}

func (s *SQLiteStore) Info() Info {
	return Info{Driver: sqliteDialect.name, Table: s.table}
}

func (s *SQLiteStore) Ping(ctx context.Context) error {
	return unavailable(eris.Wrap(s.db.PingContext(ctx), "sqlite: ping"))
}

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, s.base.createTable(s.table)); err != nil {
		return unavailable(eris.Wrap(err, "sqlite: migrate"))
	}
	s.schema.reset()
	return nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
