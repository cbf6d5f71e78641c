package llm

import (
	"context"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/venue-enricher/internal/resilience"
)

// DefaultCooldown applies when a 429 carries no reset hint.
const DefaultCooldown = 20 * time.Second

// Target is one model served by one provider.
type Target struct {
	Completer Completer
	Model     string
}

func (t Target) key() string { return t.Completer.Provider() + "/" + t.Model }

// Router tries targets in order and parks a target after a quota signal.
// Cooldowns live for the life of the process; they describe the provider's
// limits, not any venue row.
type Router struct {
	targets  []Target
	cooldown time.Duration

	mu    sync.Mutex
	until map[string]time.Time
	now   func() time.Time
}

// NewRouter builds a router over targets in priority order. Duplicate
// targets are dropped.
func NewRouter(targets []Target, cooldown time.Duration) *Router {
	if cooldown <= 0 {
		cooldown = DefaultCooldown
	}
	seen := make(map[string]bool)
	var uniq []Target
	for _, t := range targets {
		if t.Completer == nil || t.Model == "" || seen[t.key()] {
			continue
		}
		seen[t.key()] = true
		uniq = append(uniq, t)
	}
	return &Router{targets: uniq, cooldown: cooldown, until: make(map[string]time.Time), now: time.Now}
}

// Len returns the number of targets.
func (r *Router) Len() int { return len(r.targets) }

// Complete sends req to the first target not cooling down. A quota error
// parks that target and moves to the next. When every target is parked it
// returns a QuotaError carrying the shortest remaining wait.
func (r *Router) Complete(ctx context.Context, req Request) (*Response, error) {
	if len(r.targets) == 0 {
		return nil, eris.New("llm: no models configured")
	}

	var lastErr error
	for _, t := range r.targets {
		if r.cooling(t) {
			continue
		}
		resp, err := t.Completer.Complete(ctx, t.Model, req)
		if err == nil {
			return resp, nil
		}
		if !resilience.IsQuota(err) {
			return nil, err
		}
		lastErr = err
		r.park(t, err)
	}

	return nil, resilience.NewQuotaError("llm", r.shortestWait(), lastErr)
}

func (r *Router) cooling(t Target) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.now().Before(r.until[t.key()])
}

func (r *Router) park(t Target, err error) {
	wait := r.cooldown
	if qe, ok := resilience.AsQuota(err); ok && qe.RetryAfter > 0 {
		wait = qe.RetryAfter
	}
	r.mu.Lock()
	r.until[t.key()] = r.now().Add(wait)
	r.mu.Unlock()

	zap.L().Warn("llm: model rate limited, cooling down",
		zap.String("model", t.key()),
		zap.Duration("cooldown", wait),
	)
}

func (r *Router) shortestWait() time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := r.now()
	var best time.Duration
	for _, t := range r.targets {
		d := r.until[t.key()].Sub(now)
		if d > 0 && (best == 0 || d < best) {
			best = d
		}
	}
	return best
}
