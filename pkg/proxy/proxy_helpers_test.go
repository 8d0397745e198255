package proxy

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"
)

// fakeProber answers from a fixed table keyed by endpoint identity.
type fakeProber struct {
	mu      sync.Mutex
	healthy map[string]bool
	calls   []string
	delay   time.Duration

	inFlight    atomic.Int32
	maxInFlight atomic.Int32
}

func newFakeProber(healthy ...string) *fakeProber {
	p := &fakeProber{healthy: make(map[string]bool)}
	for _, k := range healthy {
		p.healthy[k] = true
	}
	return p
}

func (p *fakeProber) Probe(ctx context.Context, e Endpoint, target string, timeout time.Duration) ProbeResult {
	n := p.inFlight.Add(1)
	defer p.inFlight.Add(-1)
	for {
		peak := p.maxInFlight.Load()
		if n <= peak || p.maxInFlight.CompareAndSwap(peak, n) {
			break
		}
	}

	if p.delay > 0 {
		time.Sleep(p.delay)
	}

	p.mu.Lock()
	p.calls = append(p.calls, e.Key())
	ok := p.healthy[e.Key()]
	p.mu.Unlock()

	if !ok {
		return ProbeResult{Endpoint: e, Err: errors.New("unreachable")}
	}
	return ProbeResult{Endpoint: e, OK: true, Status: 200}
}

func (p *fakeProber) callCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.calls)
}

func endpoints(keys ...string) []Endpoint {
	out := make([]Endpoint, len(keys))
	for i, k := range keys {
		out[i] = MustParseURL("http://" + k)
	}
	return out
}

func uncheckedPool(policy Policy, keys ...string) Pool {
	p := NewPool(endpoints(keys...)...)
	p.Policy = policy
	p.HealthCheck.Enabled = false
	return p
}
