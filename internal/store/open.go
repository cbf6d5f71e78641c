package store

import (
	"context"
	"strings"

	"github.com/rotisserie/eris"
)

// Drivers accepted by Open.
const (
	DriverBigQuery = "bigquery"
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// Config selects and configures a backend.
type Config struct {
	Driver      string
	DatabaseURL string
	ProjectID   string
	DatasetID   string
	Table       string
	Location    string
	Columns     Columns
	Pool        *PoolConfig
}

// Open connects to the configured backend.
func Open(ctx context.Context, cfg Config) (Store, error) {
	switch strings.ToLower(cfg.Driver) {
	case DriverBigQuery, "":
		bq := BigQueryConfig{
			ProjectID: cfg.ProjectID,
			DatasetID: cfg.DatasetID,
			Table:     cfg.Table,
			Location:  cfg.Location,
		}
		return NewBigQuery(ctx, bq, cfg.Columns)
	case DriverPostgres:
		return NewPostgres(ctx, cfg.DatabaseURL, cfg.Table, cfg.Columns, cfg.Pool)
	case DriverSQLite:
		dsn := cfg.DatabaseURL
		if dsn == "" {
			dsn = "venues.db"
		}
		return NewSQLite(dsn, cfg.Table, cfg.Columns)
	default:
		return nil, eris.Errorf("store: unknown driver %q", cfg.Driver)
	}
}
