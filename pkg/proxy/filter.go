package proxy

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"
)

// DefaultWorkers bounds concurrent probes in FilterWorking.
const DefaultWorkers = 10

// FilterWorking probes every endpoint with at most workers probes in flight
// and returns the ones that passed, in input order. Individual probe failures
// only exclude that endpoint.
func FilterWorking(ctx context.Context, prober Prober, endpoints []Endpoint, target string, timeout time.Duration, workers int) []Endpoint {
	results := ProbeAll(ctx, prober, endpoints, target, timeout, workers)

	working := make([]Endpoint, 0, len(endpoints))
	for _, res := range results {
		if res.OK {
			working = append(working, res.Endpoint)
		}
	}
	return working
}

// ProbeAll probes every endpoint concurrently and returns one result per
// endpoint, in input order.
func ProbeAll(ctx context.Context, prober Prober, endpoints []Endpoint, target string, timeout time.Duration, workers int) []ProbeResult {
	if prober == nil {
		prober = NewValidator()
	}
	if workers <= 0 {
		workers = DefaultWorkers
	}

	results := make([]ProbeResult, len(endpoints))

	var g errgroup.Group
	g.SetLimit(workers)
	for i, e := range endpoints {
		i, e := i, e
		g.Go(func() error {
			results[i] = prober.Probe(ctx, e, target, timeout)
			return nil
		})
	}
	_ = g.Wait()

	debugLog.Debugf("Probed %d proxies with %d workers", len(endpoints), workers)
	return results
}
