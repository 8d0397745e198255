package proxy

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFilterWorkingKeepsOrderAndDropsFailures(t *testing.T) {
	prober := newFakeProber("a:1", "c:3", "e:5")
	input := endpoints("a:1", "b:2", "c:3", "d:4", "e:5")

	got := FilterWorking(context.Background(), prober, input, "", time.Second, 3)

	assert.Equal(t, []string{"a:1", "c:3", "e:5"}, keysOf(got...))
	assert.Equal(t, 5, prober.callCount())
}

func TestFilterWorkingBoundsConcurrency(t *testing.T) {
	keys := []string{"a:1", "b:2", "c:3", "d:4", "e:5", "f:6", "g:7", "h:8"}
	prober := newFakeProber(keys...)
	prober.delay = 20 * time.Millisecond

	got := FilterWorking(context.Background(), prober, endpoints(keys...), "", time.Second, 2)

	assert.Len(t, got, len(keys))
	assert.LessOrEqual(t, prober.maxInFlight.Load(), int32(2))
	assert.GreaterOrEqual(t, prober.maxInFlight.Load(), int32(1))
}

func TestFilterWorkingEmptyInput(t *testing.T) {
	assert.Empty(t, FilterWorking(context.Background(), newFakeProber(), nil, "", time.Second, 0))
}

func TestProbeAllReturnsOneResultPerEndpoint(t *testing.T) {
	prober := newFakeProber("b:2")
	results := ProbeAll(context.Background(), prober, endpoints("a:1", "b:2"), "", time.Second, 0)

	assert.Len(t, results, 2)
	assert.False(t, results[0].OK)
	assert.True(t, results[1].OK)
	assert.Equal(t, "b:2", results[1].Endpoint.Key())
}
