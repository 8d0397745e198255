package proxy

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	xproxy "golang.org/x/net/proxy"
	"h12.io/socks"

	"github.com/entrhq/browserforge/pkg/forgeerr"
)

const (
	// DefaultPublicIPURL answers with {"ip": "..."}.
	DefaultPublicIPURL = "https://api.ipify.org?format=json"

	defaultRequestTimeout = 10 * time.Second
	maxBodyBytes          = 1 << 20
)

// ProbeResult is the outcome of one request through an endpoint.
type ProbeResult struct {
	Endpoint Endpoint
	OK       bool
	Status   int
	Latency  time.Duration
	Err      error
}

// Prober checks whether an endpoint can reach target within timeout.
// Implementations must return once timeout elapses.
type Prober interface {
	Probe(ctx context.Context, e Endpoint, target string, timeout time.Duration) ProbeResult
}

// Validator probes endpoints by sending real requests through them.
type Validator struct {
	// PublicIPURL is queried by PublicIP.
	PublicIPURL string
}

// NewValidator returns a Validator using the default lookup URLs.
func NewValidator() *Validator {
	return &Validator{PublicIPURL: DefaultPublicIPURL}
}

// Probe sends a GET to target through e. Anything other than a 200 response
// within timeout is a failure.
func (v *Validator) Probe(ctx context.Context, e Endpoint, target string, timeout time.Duration) ProbeResult {
	if target == "" {
		target = DefaultHealthCheckURL
	}
	if timeout <= 0 {
		timeout = DefaultHealthCheckTimeout
	}

	res := ProbeResult{Endpoint: e}
	start := time.Now()

	resp, err := v.get(ctx, e, target, timeout)
	res.Latency = time.Since(start)
	if err != nil {
		res.Err = err
		return res
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxBodyBytes))

	res.Status = resp.StatusCode
	if resp.StatusCode != http.StatusOK {
		res.Err = fmt.Errorf("HTTP %d", resp.StatusCode)
		return res
	}
	res.OK = true
	return res
}

// SpeedTest measures the time until a 200 response to target arrives through
// e.
func (v *Validator) SpeedTest(ctx context.Context, e Endpoint, target string) (time.Duration, error) {
	res := v.Probe(ctx, e, target, defaultRequestTimeout)
	if !res.OK {
		return 0, forgeerr.Retryable(fmt.Sprintf("speed test through %s failed", e), res.Err).
			With("proxy", e.Key())
	}
	return res.Latency, nil
}

// PublicIP returns the exit address seen by the outside world when going
// through e.
func (v *Validator) PublicIP(ctx context.Context, e Endpoint) (string, error) {
	lookup := v.PublicIPURL
	if lookup == "" {
		lookup = DefaultPublicIPURL
	}

	resp, err := v.get(ctx, e, lookup, defaultRequestTimeout)
	if err != nil {
		return "", forgeerr.Retryable("public IP lookup failed", err).With("proxy", e.Key())
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", forgeerr.Retryable(fmt.Sprintf("public IP lookup returned HTTP %d", resp.StatusCode), nil).
			With("proxy", e.Key())
	}

	var body struct {
		IP string `json:"ip"`
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxBodyBytes)).Decode(&body); err != nil {
		return "", forgeerr.Internal("failed to decode public IP response", err)
	}
	return body.IP, nil
}

func (v *Validator) get(ctx context.Context, e Endpoint, target string, timeout time.Duration) (*http.Response, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)

	client, err := httpClient(e, timeout)
	if err != nil {
		cancel()
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := client.Do(req)
	if err != nil {
		cancel()
		return nil, err
	}
	resp.Body = &cancelOnClose{ReadCloser: resp.Body, cancel: cancel}
	return resp, nil
}

// httpClient builds a client whose every connection goes through e.
func httpClient(e Endpoint, timeout time.Duration) (*http.Client, error) {
	dialer := &net.Dialer{Timeout: timeout}
	transport := &http.Transport{
		TLSHandshakeTimeout: timeout,
		DisableKeepAlives:   true,
	}

	switch e.Scheme() {
	case SOCKS5:
		var auth *xproxy.Auth
		if e.HasAuth() {
			auth = &xproxy.Auth{User: e.Username, Password: e.Password}
		}
		d, err := xproxy.SOCKS5("tcp", e.Key(), auth, dialer)
		if err != nil {
			return nil, fmt.Errorf("failed to create SOCKS5 dialer: %w", err)
		}
		cd, ok := d.(xproxy.ContextDialer)
		if !ok {
			return nil, fmt.Errorf("SOCKS5 dialer does not support contexts")
		}
		transport.DialContext = cd.DialContext
	case SOCKS4:
		dial := socks.Dial(fmt.Sprintf("%s?timeout=%s", e.URL().String(), timeout))
		transport.DialContext = func(ctx context.Context, network, addr string) (net.Conn, error) {
			return dialWithContext(ctx, dial, network, addr)
		}
	default:
		transport.Proxy = http.ProxyURL(e.URL())
		transport.DialContext = dialer.DialContext
	}

	return &http.Client{Transport: transport, Timeout: timeout}, nil
}

// dialWithContext runs a context-unaware dial function and abandons it when
// ctx is done.
func dialWithContext(ctx context.Context, dial func(string, string) (net.Conn, error), network, addr string) (net.Conn, error) {
	type result struct {
		conn net.Conn
		err  error
	}
	ch := make(chan result, 1)
	go func() {
		conn, err := dial(network, addr)
		ch <- result{conn, err}
	}()

	select {
	case r := <-ch:
		return r.conn, r.err
	case <-ctx.Done():
		go func() {
			if r := <-ch; r.conn != nil {
				r.conn.Close()
			}
		}()
		return nil, ctx.Err()
	}
}

type cancelOnClose struct {
	io.ReadCloser
	cancel context.CancelFunc
}

func (c *cancelOnClose) Close() error {
	err := c.ReadCloser.Close()
	c.cancel()
	return err
}
