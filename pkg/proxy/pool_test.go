package proxy

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestPoolYAMLKeepsDefaults(t *testing.T) {
	input := `
proxies:
  - http://a.example:8080
  - host: b.example
    port: 1080
    type: socks5
strategy: least-used
`
	var pool Pool
	require.NoError(t, yaml.Unmarshal([]byte(input), &pool))

	require.Len(t, pool.Endpoints, 2)
	assert.Equal(t, SOCKS5, pool.Endpoints[1].Type)
	assert.Equal(t, LeastUsed, pool.Policy)
	assert.Equal(t, DefaultMaxFailures, pool.MaxFailures)
	assert.True(t, pool.HealthCheck.Enabled)
	assert.Equal(t, DefaultHealthCheckURL, pool.HealthCheck.URL)
	assert.Equal(t, DefaultHealthCheckTimeout, pool.HealthCheck.Timeout)
}

func TestHealthCheckTimeoutFormats(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  time.Duration
	}{
		{"seconds", "timeout: 2", 2 * time.Second},
		{"fractional", "timeout: 1.5", 1500 * time.Millisecond},
		{"duration", "timeout: 750ms", 750 * time.Millisecond},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			hc := HealthCheck{Enabled: true, URL: "http://probe"}
			require.NoError(t, yaml.Unmarshal([]byte(tt.input), &hc))
			assert.Equal(t, tt.want, hc.Timeout)
			assert.True(t, hc.Enabled)
			assert.Equal(t, "http://probe", hc.URL)
		})
	}

	hc := HealthCheck{}
	assert.Error(t, yaml.Unmarshal([]byte("timeout: soon"), &hc))
}

func TestPoolValidate(t *testing.T) {
	assert.Error(t, Pool{}.Validate())

	pool := NewPool(MustParseURL("http://a.example:8080"))
	assert.NoError(t, pool.Validate())

	pool.Policy = "fastest"
	assert.Error(t, pool.Validate())
}

func TestPoolYAMLRoundTrip(t *testing.T) {
	pool := NewPool(MustParseURL("socks5://u:p@a.example:1080"))
	pool.HealthCheck.Timeout = 3 * time.Second

	data, err := yaml.Marshal(pool)
	require.NoError(t, err)

	var decoded Pool
	require.NoError(t, yaml.Unmarshal(data, &decoded))
	assert.Equal(t, pool, decoded)
}
