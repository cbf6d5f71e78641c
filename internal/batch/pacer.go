package batch

import (
	"context"
	"math/rand/v2"
	"time"
)

// Pacer spaces rows out by a uniform random delay. It never sleeps before
// the first row.
type Pacer struct {
	min, max time.Duration
	sleep    func(ctx context.Context, d time.Duration) error
	rand     func(n int64) int64
}

// NewPacer builds a pacer over [minMs, maxMs]. A reversed range is swapped.
func NewPacer(minMs, maxMs int) *Pacer {
	if minMs < 0 {
		minMs = 0
	}
	if maxMs < minMs {
		minMs, maxMs = maxMs, minMs
		if minMs < 0 {
			minMs = 0
		}
	}
	return &Pacer{
		min:   time.Duration(minMs) * time.Millisecond,
		max:   time.Duration(maxMs) * time.Millisecond,
		sleep: sleepCtx,
		rand:  rand.Int64N,
	}
}

// WithSleep replaces the sleep function, for tests.
func (p *Pacer) WithSleep(fn func(ctx context.Context, d time.Duration) error) *Pacer {
	p.sleep = fn
	return p
}

// Delay draws one delay in [min, max].
func (p *Pacer) Delay() time.Duration {
	span := int64(p.max - p.min)
	if span <= 0 {
		return p.min
	}
	return p.min + time.Duration(p.rand(span+1))
}

// Wait sleeps before row i. Row 0 goes immediately.
func (p *Pacer) Wait(ctx context.Context, i int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if i == 0 {
		return nil
	}
	d := p.Delay()
	if d <= 0 {
		return nil
	}
	return p.sleep(ctx, d)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
