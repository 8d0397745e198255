package browser

import (
	"context"
	"time"

	"github.com/entrhq/browserforge/pkg/config"
	"github.com/entrhq/browserforge/pkg/platform"
	"github.com/entrhq/browserforge/pkg/stealth"
)

// Default values for sessions
const (
	DefaultMaxSessions = 10
	DefaultIdleTimeout = 5 * time.Minute
)

// Driver is a running browser with one active page.
type Driver interface {
	stealth.Target

	// Navigate loads url in the active page and waits for the load event.
	Navigate(ctx context.Context, url string) error
	// URL returns the address of the active page.
	URL() string
	BrowserName() platform.Browser
	// Close quits the browser and releases every resource it holds.
	Close() error
}

// Launcher starts drivers.
type Launcher interface {
	Launch(ctx context.Context, cfg *config.DriverConfig) (Driver, error)
}

// LauncherFunc adapts a function to the Launcher interface.
type LauncherFunc func(ctx context.Context, cfg *config.DriverConfig) (Driver, error)

// Launch calls f.
func (f LauncherFunc) Launch(ctx context.Context, cfg *config.DriverConfig) (Driver, error) {
	return f(ctx, cfg)
}

// Session is a driver tracked by a SessionManager.
type Session struct {
	// ID is the unique identifier for this session
	ID string

	Driver Driver

	// Config is the configuration the driver was launched with
	Config *config.DriverConfig

	// Stealth lists the measures applied at creation
	Stealth stealth.Report

	CreatedAt    time.Time
	LastActivity time.Time
}

// SessionInfo contains metadata about a session.
type SessionInfo struct {
	ID           string           `json:"session_id"`
	Browser      platform.Browser `json:"browser"`
	URL          string           `json:"url"`
	Headless     bool             `json:"headless"`
	Stealth      bool             `json:"stealth"`
	CreatedAt    time.Time        `json:"created_at"`
	LastActivity time.Time        `json:"last_activity"`
	IsActive     bool             `json:"is_active"`
}
