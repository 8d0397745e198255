package proxy

import (
	"context"
	"math/rand"
	"sync"

	"github.com/entrhq/browserforge/pkg/forgeerr"
	"github.com/entrhq/browserforge/pkg/logging"
)

var debugLog *logging.Logger

func init() {
	var err error
	debugLog, err = logging.NewLogger("proxy")
	if err != nil {
		debugLog.Warnf("Failed to initialize proxy logger, using stderr fallback: %v", err)
	}
}

// Rotator hands out endpoints from a pool according to its policy and tracks
// per-endpoint usage and failures.
//
// A Rotator is not safe for concurrent use. Wrap it with NewLocked when it is
// shared between goroutines.
type Rotator struct {
	pool   Pool
	health *healthTable
	cursor int
	intn   func(n int) int
}

// NewRotator builds a rotator over pool. When health checking is enabled,
// every endpoint is probed once through prober and failing endpoints are
// removed from the pool; if none survive a config error is returned.
// A nil prober uses a default Validator.
func NewRotator(ctx context.Context, pool Pool, prober Prober) (*Rotator, error) {
	pool = pool.WithDefaults()
	if err := pool.Validate(); err != nil {
		return nil, err
	}

	// Copy so pruning never touches the caller's slice
	pool.Endpoints = append([]Endpoint(nil), pool.Endpoints...)

	if pool.HealthCheck.Enabled {
		if prober == nil {
			prober = NewValidator()
		}
		pool.Endpoints = probeAll(ctx, prober, pool)
		if len(pool.Endpoints) == 0 {
			return nil, forgeerr.Config(
				"no usable endpoints in rotation pool",
				"Check proxy configurations and network connectivity",
			).WithCode(forgeerr.CodeNoUsableProxy)
		}
	}

	return &Rotator{
		pool:   pool,
		health: newHealthTable(),
		intn:   rand.Intn,
	}, nil
}

func probeAll(ctx context.Context, prober Prober, pool Pool) []Endpoint {
	working := make([]Endpoint, 0, len(pool.Endpoints))
	for _, e := range pool.Endpoints {
		res := prober.Probe(ctx, e, pool.HealthCheck.URL, pool.HealthCheck.Timeout)
		if res.OK {
			working = append(working, e)
			continue
		}
		debugLog.Warnf("Dropping proxy %s: health check failed: %v", e, res.Err)
	}
	return working
}

// Next returns the next endpoint and counts one use of it. Endpoints at or
// over the failure ceiling are skipped; when all of them are, every failure
// counter is reset and the whole pool is eligible again.
func (r *Rotator) Next() Endpoint {
	candidates := r.candidates()

	var chosen Endpoint
	switch r.pool.Policy {
	case Random:
		chosen = candidates[r.intn(len(candidates))]
	case LeastUsed:
		chosen = r.leastUsed(candidates)
	default:
		chosen = candidates[r.cursor%len(candidates)]
		r.cursor++
	}

	r.health.use(chosen)
	return chosen
}

func (r *Rotator) candidates() []Endpoint {
	available := make([]Endpoint, 0, len(r.pool.Endpoints))
	for _, e := range r.pool.Endpoints {
		if r.health.healthy(e, r.pool.MaxFailures) {
			available = append(available, e)
		}
	}

	if len(available) == 0 {
		debugLog.Infof("All %d proxies reached %d failures, resetting failure counts", len(r.pool.Endpoints), r.pool.MaxFailures)
		r.health.clearFailures()
		return r.pool.Endpoints
	}
	return available
}

// leastUsed picks the minimum usage; ties go to the earliest in pool order.
func (r *Rotator) leastUsed(candidates []Endpoint) Endpoint {
	best := candidates[0]
	bestUsage := r.health.stats(best).Usage
	for _, e := range candidates[1:] {
		if u := r.health.stats(e).Usage; u < bestUsage {
			best, bestUsage = e, u
		}
	}
	return best
}

// ReportFailure increments the endpoint's failure counter.
func (r *Rotator) ReportFailure(e Endpoint) {
	r.health.fail(e)
}

// ReportSuccess resets the endpoint's failure counter to zero.
func (r *Rotator) ReportSuccess(e Endpoint) {
	r.health.recover(e)
}

// Statistics returns a snapshot of the counters of every pool endpoint.
func (r *Rotator) Statistics() map[string]Stats {
	stats := make(map[string]Stats, len(r.pool.Endpoints))
	for _, e := range r.pool.Endpoints {
		stats[e.Key()] = r.health.stats(e)
	}
	return stats
}

// Reset clears all counters and the round-robin cursor.
func (r *Rotator) Reset() {
	r.health.reset()
	r.cursor = 0
}

// Endpoints returns a copy of the current pool after health-check pruning.
func (r *Rotator) Endpoints() []Endpoint {
	return append([]Endpoint(nil), r.pool.Endpoints...)
}

// Policy returns the selection policy in effect.
func (r *Rotator) Policy() Policy {
	return r.pool.Policy
}

// Locked wraps a Rotator with a mutex.
type Locked struct {
	mu sync.Mutex
	r  *Rotator
}

// NewLocked returns a goroutine-safe view of r. r must not be used directly
// afterwards.
func NewLocked(r *Rotator) *Locked {
	return &Locked{r: r}
}

func (l *Locked) Next() Endpoint {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.r.Next()
}

func (l *Locked) ReportFailure(e Endpoint) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.r.ReportFailure(e)
}

func (l *Locked) ReportSuccess(e Endpoint) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.r.ReportSuccess(e)
}

func (l *Locked) Statistics() map[string]Stats {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.r.Statistics()
}

func (l *Locked) Reset() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.r.Reset()
}

func (l *Locked) Endpoints() []Endpoint {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.r.Endpoints()
}
