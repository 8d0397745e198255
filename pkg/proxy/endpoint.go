package proxy

import (
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"

	"github.com/gobwas/glob"
	"gopkg.in/yaml.v3"

	"github.com/entrhq/browserforge/pkg/forgeerr"
)

// Type is the protocol spoken by a proxy endpoint.
type Type string

const (
	HTTP   Type = "http"
	HTTPS  Type = "https"
	SOCKS4 Type = "socks4"
	SOCKS5 Type = "socks5"
)

// ParseType converts a scheme name into a Type.
func ParseType(s string) (Type, error) {
	switch t := Type(strings.ToLower(strings.TrimSpace(s))); t {
	case HTTP, HTTPS, SOCKS4, SOCKS5:
		return t, nil
	case "":
		return HTTP, nil
	default:
		return "", fmt.Errorf("unsupported proxy type %q", s)
	}
}

// IsSOCKS reports whether the type is a SOCKS variant.
func (t Type) IsSOCKS() bool {
	return t == SOCKS4 || t == SOCKS5
}

// Endpoint is a single outbound proxy. Its identity is host:port; credentials
// and the no-proxy list do not take part in it.
type Endpoint struct {
	Host     string   `yaml:"host" json:"host"`
	Port     int      `yaml:"port" json:"port"`
	Type     Type     `yaml:"type" json:"type"`
	Username string   `yaml:"username,omitempty" json:"username,omitempty"`
	Password string   `yaml:"password,omitempty" json:"password,omitempty"`
	NoProxy  []string `yaml:"no_proxy,omitempty" json:"no_proxy,omitempty"`
}

// ParseURL parses "scheme://[user:pass@]host:port". A missing scheme means
// http.
func ParseURL(raw string) (Endpoint, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Endpoint{}, invalidURL(raw, "empty proxy URL")
	}
	if !strings.Contains(raw, "://") {
		raw = "http://" + raw
	}

	u, err := url.Parse(raw)
	if err != nil {
		return Endpoint{}, invalidURL(raw, err.Error())
	}

	typ, err := ParseType(u.Scheme)
	if err != nil {
		return Endpoint{}, invalidURL(raw, err.Error())
	}

	host := u.Hostname()
	if host == "" || u.Port() == "" {
		return Endpoint{}, invalidURL(raw, "host and port are required")
	}

	port, err := strconv.Atoi(u.Port())
	if err != nil {
		return Endpoint{}, invalidURL(raw, "port is not a number")
	}

	e := Endpoint{Host: host, Port: port, Type: typ}
	if u.User != nil {
		e.Username = u.User.Username()
		e.Password, _ = u.User.Password()
	}

	if err := e.Validate(); err != nil {
		return Endpoint{}, err
	}
	return e, nil
}

// MustParseURL is ParseURL for literals known to be valid.
func MustParseURL(raw string) Endpoint {
	e, err := ParseURL(raw)
	if err != nil {
		panic(err)
	}
	return e
}

func invalidURL(raw, reason string) error {
	return forgeerr.Config(
		fmt.Sprintf("invalid proxy URL %q: %s", raw, reason),
		"Format: protocol://[user:pass@]host:port",
	).WithCode(forgeerr.CodeInvalidProxy)
}

// Validate checks host, port range and protocol.
func (e Endpoint) Validate() error {
	if strings.TrimSpace(e.Host) == "" {
		return forgeerr.Config("proxy host is required", "Set the proxy host").
			WithCode(forgeerr.CodeInvalidProxy)
	}
	if e.Port < 1 || e.Port > 65535 {
		return forgeerr.Config(
			fmt.Sprintf("proxy port %d out of range", e.Port),
			"Port must be between 1 and 65535",
		).WithCode(forgeerr.CodeInvalidProxy).With("host", e.Host)
	}
	if _, err := ParseType(string(e.Type)); err != nil {
		return forgeerr.Config(err.Error(), "Use one of: http, https, socks4, socks5").
			WithCode(forgeerr.CodeInvalidProxy)
	}
	return nil
}

// Key returns the endpoint identity, host:port.
func (e Endpoint) Key() string {
	return net.JoinHostPort(e.Host, strconv.Itoa(e.Port))
}

// Scheme returns the protocol, defaulting to http.
func (e Endpoint) Scheme() Type {
	if e.Type == "" {
		return HTTP
	}
	return e.Type
}

// URL returns the endpoint as a URL including credentials.
func (e Endpoint) URL() *url.URL {
	u := &url.URL{Scheme: string(e.Scheme()), Host: e.Key()}
	switch {
	case e.Username != "" && e.Password != "":
		u.User = url.UserPassword(e.Username, e.Password)
	case e.Username != "":
		u.User = url.User(e.Username)
	}
	return u
}

// Server returns scheme://host:port without credentials, the form browsers
// accept on the command line.
func (e Endpoint) Server() string {
	return fmt.Sprintf("%s://%s", e.Scheme(), e.Key())
}

// HasAuth reports whether credentials are set.
func (e Endpoint) HasAuth() bool {
	return e.Username != ""
}

// String returns the URL with the password redacted.
func (e Endpoint) String() string {
	return e.URL().Redacted()
}

// Bypasses reports whether requests to host should skip the proxy according
// to the no-proxy list. Entries may be exact hosts, domain suffixes
// (".example.com" or "example.com" also match subdomains), glob patterns
// ("*.internal", "10.0.*") or "<local>" for dot-less host names.
func (e Endpoint) Bypasses(host string) bool {
	host = strings.ToLower(strings.TrimSpace(host))
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}
	if host == "" {
		return false
	}

	for _, pattern := range e.NoProxy {
		pattern = strings.ToLower(strings.TrimSpace(pattern))
		switch {
		case pattern == "":
			continue
		case pattern == "<local>":
			if !strings.Contains(host, ".") {
				return true
			}
		case strings.ContainsAny(pattern, "*?[{"):
			g, err := glob.Compile(pattern)
			if err == nil && g.Match(host) {
				return true
			}
		default:
			domain := strings.TrimPrefix(pattern, ".")
			if host == domain || strings.HasSuffix(host, "."+domain) {
				return true
			}
		}
	}
	return false
}

// UnmarshalYAML accepts either a proxy URL string or a mapping.
func (e *Endpoint) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind == yaml.ScalarNode {
		parsed, err := ParseURL(value.Value)
		if err != nil {
			return err
		}
		*e = parsed
		return nil
	}

	type plain Endpoint
	var p plain
	if err := value.Decode(&p); err != nil {
		return err
	}
	*e = Endpoint(p)
	t, err := ParseType(string(e.Type))
	if err != nil {
		return forgeerr.Config(err.Error(), "Use one of: http, https, socks4, socks5").
			WithCode(forgeerr.CodeInvalidProxy)
	}
	e.Type = t
	return nil
}
