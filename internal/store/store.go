package store

import (
	"context"
	"errors"
	"strings"

	"github.com/sells-group/venue-enricher/internal/model"
)

// ErrBackendUnavailable marks any failure to query or update the warehouse.
var ErrBackendUnavailable = errors.New("store: backend unavailable")

// ErrRowNotFound is returned by ApplyPatch when no row has the patch key.
var ErrRowNotFound = errors.New("row not found")

// Query selects a page of pending rows.
type Query struct {
	Limit int
	// After switches selection to keyset pagination: only keys greater
	// than After are returned, ordered by key.
	After string
}

// Info describes the backing table for readiness checks.
type Info struct {
	Driver   string `json:"driver"`
	Table    string `json:"table"`
	Location string `json:"location,omitempty"`
}

// Store defines the row persistence interface for the enrichment batch.
type Store interface {
	// Selection
	SelectPending(ctx context.Context, q Query) ([]*model.Venue, error)
	CountPending(ctx context.Context) (int64, error)

	// Writes
	ApplyPatch(ctx context.Context, p *model.Patch) error

	// Reporting
	Coverage(ctx context.Context) (*model.Coverage, error)
	Info() Info

	// Lifecycle
	Ping(ctx context.Context) error
	Migrate(ctx context.Context) error
	Close() error
}

// IsBackendUnavailable reports whether err came from a failed warehouse call.
func IsBackendUnavailable(err error) bool {
	return errors.Is(err, ErrBackendUnavailable)
}

// IsRowNotFound reports whether a write matched no row.
func IsRowNotFound(err error) bool {
	return errors.Is(err, ErrRowNotFound)
}

type unavailableError struct {
	err error
}

func (e *unavailableError) Error() string        { return e.err.Error() }
func (e *unavailableError) Unwrap() error        { return e.err }
func (e *unavailableError) Is(target error) bool { return target == ErrBackendUnavailable }

// unavailable marks err as a backend failure. A nil err stays nil.
func unavailable(err error) error {
	if err == nil {
		return nil
	}
	return &unavailableError{err: err}
}

func newCoverage(table string) *model.Coverage {
	return &model.Coverage{
		Table:    table,
		ByStatus: make(map[string]int64),
		ByField:  make(map[model.Field]int64),
	}
}

// addStatus folds a NULL or blank status into PENDING.
func addStatus(cov *model.Coverage, status string, n int64) {
	status = strings.ToUpper(strings.TrimSpace(status))
	if status == "" {
		status = string(model.StatusPending)
	}
	cov.ByStatus[status] += n
}
