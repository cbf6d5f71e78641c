package store

import (
	"context"
	"sync"

	"github.com/rotisserie/eris"
)

// schemaCache remembers the table's columns after the first successful
// lookup. Failed lookups are retried on the next call.
type schemaCache struct {
	mu   sync.Mutex
	cols []string
}

func (c *schemaCache) load(ctx context.Context, fetch func(context.Context) ([]string, error)) ([]string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cols != nil {
		return c.cols, nil
	}
	cols, err := fetch(ctx)
	if err != nil {
		return nil, err
	}
	if len(cols) == 0 {
		return nil, unavailable(eris.New("store: table not found or has no columns"))
	}
	c.cols = cols
	return cols, nil
}

func (c *schemaCache) reset() {
	c.mu.Lock()
	c.cols = nil
	c.mu.Unlock()
}
