package proxy

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/entrhq/browserforge/pkg/forgeerr"
)

// Policy selects the next endpoint among the current candidates.
type Policy string

const (
	RoundRobin Policy = "round-robin"
	Random     Policy = "random"
	LeastUsed  Policy = "least-used"
)

// Pool defaults.
const (
	DefaultMaxFailures        = 3
	DefaultHealthCheckURL     = "https://httpbin.org/ip"
	DefaultHealthCheckTimeout = 5 * time.Second
)

// ParsePolicy converts a policy name. An empty name means round-robin.
func ParsePolicy(s string) (Policy, error) {
	switch p := Policy(strings.ToLower(strings.TrimSpace(s))); p {
	case "":
		return RoundRobin, nil
	case RoundRobin, Random, LeastUsed:
		return p, nil
	default:
		return "", fmt.Errorf("unknown rotation policy %q", s)
	}
}

// HealthCheck configures the probe run against every endpoint when a
// rotator is built.
type HealthCheck struct {
	Enabled bool          `yaml:"enabled" json:"enabled"`
	URL     string        `yaml:"url,omitempty" json:"url,omitempty"`
	Timeout time.Duration `yaml:"timeout,omitempty" json:"timeout,omitempty"`
}

// UnmarshalYAML overrides only the keys present. A timeout is either a
// duration string ("5s") or a number of seconds.
func (h *HealthCheck) UnmarshalYAML(value *yaml.Node) error {
	var raw struct {
		Enabled *bool   `yaml:"enabled"`
		URL     *string `yaml:"url"`
		Timeout *string `yaml:"timeout"`
	}
	if err := value.Decode(&raw); err != nil {
		return err
	}

	if raw.Enabled != nil {
		h.Enabled = *raw.Enabled
	}
	if raw.URL != nil {
		h.URL = *raw.URL
	}
	if raw.Timeout != nil {
		timeout, err := parseTimeout(*raw.Timeout)
		if err != nil {
			return forgeerr.Config(fmt.Sprintf("invalid health_check timeout %q", *raw.Timeout),
				"Use seconds (5) or a duration (5s, 1500ms)").WithCode(forgeerr.CodeInvalidConfig)
		}
		h.Timeout = timeout
	}
	return nil
}

// MarshalYAML writes the timeout as a duration string so it reads back
// unchanged.
func (h HealthCheck) MarshalYAML() (interface{}, error) {
	out := struct {
		Enabled bool   `yaml:"enabled"`
		URL     string `yaml:"url,omitempty"`
		Timeout string `yaml:"timeout,omitempty"`
	}{Enabled: h.Enabled, URL: h.URL}
	if h.Timeout > 0 {
		out.Timeout = h.Timeout.String()
	}
	return out, nil
}

func parseTimeout(s string) (time.Duration, error) {
	if secs, err := strconv.ParseFloat(s, 64); err == nil {
		return time.Duration(secs * float64(time.Second)), nil
	}
	return time.ParseDuration(s)
}

// Pool is an ordered set of endpoints plus its rotation settings.
type Pool struct {
	Endpoints   []Endpoint  `yaml:"proxies" json:"proxies"`
	Policy      Policy      `yaml:"strategy,omitempty" json:"strategy,omitempty"`
	MaxFailures int         `yaml:"max_failures,omitempty" json:"max_failures,omitempty"`
	HealthCheck HealthCheck `yaml:"health_check" json:"health_check"`
}

// NewPool returns a round-robin pool with health checking enabled and the
// default limits.
func NewPool(endpoints ...Endpoint) Pool {
	return Pool{
		Endpoints:   endpoints,
		Policy:      RoundRobin,
		MaxFailures: DefaultMaxFailures,
		HealthCheck: HealthCheck{
			Enabled: true,
			URL:     DefaultHealthCheckURL,
			Timeout: DefaultHealthCheckTimeout,
		},
	}
}

// UnmarshalYAML starts from NewPool so omitted settings keep their defaults.
func (p *Pool) UnmarshalYAML(value *yaml.Node) error {
	*p = NewPool()
	type plain Pool
	return value.Decode((*plain)(p))
}

// WithDefaults fills unset limits with their defaults.
func (p Pool) WithDefaults() Pool {
	if p.Policy == "" {
		p.Policy = RoundRobin
	}
	if p.MaxFailures <= 0 {
		p.MaxFailures = DefaultMaxFailures
	}
	if p.HealthCheck.URL == "" {
		p.HealthCheck.URL = DefaultHealthCheckURL
	}
	if p.HealthCheck.Timeout <= 0 {
		p.HealthCheck.Timeout = DefaultHealthCheckTimeout
	}
	return p
}

// Validate checks the policy and every endpoint.
func (p Pool) Validate() error {
	if len(p.Endpoints) == 0 {
		return forgeerr.Config("proxy pool is empty", "Add at least one proxy to the rotation pool").
			WithCode(forgeerr.CodeNoUsableProxy)
	}
	if _, err := ParsePolicy(string(p.Policy)); err != nil {
		return forgeerr.Config(err.Error(), "Use one of: round-robin, random, least-used").
			WithCode(forgeerr.CodeInvalidConfig)
	}
	if p.MaxFailures < 0 {
		return forgeerr.Configf("max_failures must not be negative, got %d", p.MaxFailures).
			WithCode(forgeerr.CodeInvalidConfig)
	}
	for i, e := range p.Endpoints {
		if err := e.Validate(); err != nil {
			return fmt.Errorf("proxy %d: %w", i, err)
		}
	}
	return nil
}
