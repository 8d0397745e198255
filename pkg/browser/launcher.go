package browser

import (
	"context"
	"fmt"

	"github.com/entrhq/browserforge/pkg/config"
	"github.com/entrhq/browserforge/pkg/forgeerr"
	"github.com/entrhq/browserforge/pkg/logging"
	"github.com/entrhq/browserforge/pkg/platform"
	"github.com/entrhq/browserforge/pkg/stealth"
)

// DriverResolver returns the local path of a browser's driver, fetching it
// when needed. *drivers.Manager implements it.
type DriverResolver interface {
	GetPath(ctx context.Context, browser platform.Browser, version string) (string, error)
}

// DefaultLauncher starts real browsers: rod for the chromium family and
// playwright for firefox and safari.
type DefaultLauncher struct {
	resolver DriverResolver
	logger   *logging.Logger
}

// NewLauncher creates a launcher resolving executables through resolver.
func NewLauncher(resolver DriverResolver, logger *logging.Logger) *DefaultLauncher {
	if logger == nil {
		logger = logging.Nop()
	}
	return &DefaultLauncher{resolver: resolver, logger: logger}
}

// Launch starts the browser described by cfg.
func (l *DefaultLauncher) Launch(ctx context.Context, cfg *config.DriverConfig) (Driver, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	path, err := l.Resolve(ctx, cfg)
	if err != nil {
		return nil, err
	}
	l.logger.Infof("launching %s (executable %s)", cfg.Browser, path)

	var driver Driver
	if cfg.Browser.IsChromiumFamily() {
		driver, err = launchRod(ctx, path, cfg, l.logger)
	} else {
		driver, err = launchPlaywright(ctx, playwrightDir(cfg, path), cfg, playwrightUserAgent(cfg))
	}
	if err != nil {
		return nil, launchError(cfg.Browser, err)
	}
	return driver, nil
}

// launchError classifies a backend failure. Forge errors, such as an
// unknown mobile device, are configuration mistakes and pass through
// unchanged; anything else is a launch failure.
func launchError(b platform.Browser, err error) error {
	if _, ok := forgeerr.As(err); ok {
		return err
	}
	return forgeerr.Config(fmt.Sprintf("failed to launch %s: %v", b, err),
		"Check the browser installation, driver_path and proxy settings").
		WithCause(err).
		WithCode(forgeerr.CodeBrowserLaunch).
		With("browser", string(b))
}

// Resolve returns the executable, or for firefox the playwright driver
// directory, that Launch would use. An explicit driver_path wins, then
// binary_location for browsers launched directly, then the driver cache.
// browser_options.auto_download only controls the browser's download
// prompt, not driver resolution.
func (l *DefaultLauncher) Resolve(ctx context.Context, cfg *config.DriverConfig) (string, error) {
	if cfg.DriverPath != "" {
		return cfg.DriverPath, nil
	}
	if cfg.Browser.IsChromiumFamily() && cfg.BrowserOptions.BinaryLocation != "" {
		return cfg.BrowserOptions.BinaryLocation, nil
	}
	if l.resolver == nil {
		return "", forgeerr.Config(fmt.Sprintf("no driver available for %s", cfg.Browser),
			"Set driver_path or configure a driver cache").
			WithCode(forgeerr.CodeDriverNotFound)
	}
	return l.resolver.GetPath(ctx, cfg.Browser, cfg.DriverVersion)
}

// playwrightDir maps a resolved path to the playwright driver directory.
// Safari resolves to safaridriver, which playwright does not use.
func playwrightDir(cfg *config.DriverConfig, path string) string {
	if cfg.Browser == platform.Firefox {
		return path
	}
	return ""
}

// playwrightUserAgent is the stealth user agent, which playwright can only
// apply when the context is created.
func playwrightUserAgent(cfg *config.DriverConfig) string {
	if !cfg.StealthEnabled() {
		return ""
	}
	return stealth.New(cfg.Stealth).UserAgent()
}
