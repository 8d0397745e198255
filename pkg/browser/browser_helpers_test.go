package browser

import (
	"context"
	"errors"
	"sync"

	"github.com/entrhq/browserforge/pkg/config"
	"github.com/entrhq/browserforge/pkg/platform"
)

type fakeDriver struct {
	mu      sync.Mutex
	name    platform.Browser
	url     string
	scripts []string
	closed  bool
	dead    bool
}

func (f *fakeDriver) Navigate(_ context.Context, url string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.url = url
	return nil
}

func (f *fakeDriver) URL() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.url
}

func (f *fakeDriver) Evaluate(context.Context, string) (interface{}, error) {
	if f.dead {
		return nil, errors.New("target closed")
	}
	return true, nil
}

func (f *fakeDriver) AddInitScript(_ context.Context, script string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.scripts = append(f.scripts, script)
	return nil
}

func (f *fakeDriver) SetUserAgent(context.Context, string) error { return nil }
func (f *fakeDriver) SetTimezone(context.Context, string) error  { return nil }
func (f *fakeDriver) SetLocale(context.Context, string) error    { return nil }
func (f *fakeDriver) IsChromium() bool                          { return f.name.IsChromiumFamily() }
func (f *fakeDriver) BrowserName() platform.Browser             { return f.name }

func (f *fakeDriver) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

// fakeLauncher records every driver it hands out.
type fakeLauncher struct {
	mu      sync.Mutex
	err     error
	drivers []*fakeDriver
	block   chan struct{}
}

func (l *fakeLauncher) Launch(_ context.Context, cfg *config.DriverConfig) (Driver, error) {
	if l.block != nil {
		<-l.block
	}
	if l.err != nil {
		return nil, l.err
	}
	d := &fakeDriver{name: cfg.Browser, url: "about:blank"}
	l.mu.Lock()
	l.drivers = append(l.drivers, d)
	l.mu.Unlock()
	return d, nil
}
