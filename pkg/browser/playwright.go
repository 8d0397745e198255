package browser

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/playwright-community/playwright-go"

	"github.com/entrhq/browserforge/pkg/config"
	"github.com/entrhq/browserforge/pkg/platform"
)

var errContextOnly = errors.New("only configurable when the browser context is created")

// playwrightDriver drives firefox or webkit through playwright.
type playwrightDriver struct {
	name    platform.Browser
	pw      *playwright.Playwright
	browser playwright.Browser
	context playwright.BrowserContext
	page    playwright.Page

	pageLoad float64
}

// launchPlaywright starts firefox, or webkit for safari. driverDir is the
// playwright driver installation to use; empty means playwright's default.
func launchPlaywright(ctx context.Context, driverDir string, cfg *config.DriverConfig, userAgent string) (*playwrightDriver, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	opts := cfg.BrowserOptions

	pw, err := playwright.Run(&playwright.RunOptions{
		DriverDirectory:     driverDir,
		SkipInstallBrowsers: true,
		Verbose:             false,
		Stdout:              io.Discard,
		Stderr:              io.Discard,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to start playwright: %w", err)
	}
	d := &playwrightDriver{name: cfg.Browser, pw: pw, pageLoad: cfg.PageLoadTimeout * 1000}

	launchOpts := playwright.BrowserTypeLaunchOptions{
		Headless: playwright.Bool(opts.Headless),
		Args:     append([]string(nil), opts.Arguments...),
		Proxy:    PlaywrightProxy(cfg.Proxy),
	}
	if opts.BinaryLocation != "" {
		launchOpts.ExecutablePath = playwright.String(opts.BinaryLocation)
	}
	if opts.DownloadDirectory != "" {
		launchOpts.DownloadsPath = playwright.String(opts.DownloadDirectory)
	}

	browserType := pw.Firefox
	if cfg.Browser == platform.Safari {
		browserType = pw.WebKit
	} else if prefs := FirefoxPrefs(opts); len(prefs) > 0 {
		launchOpts.FirefoxUserPrefs = prefs
	}

	b, err := browserType.Launch(launchOpts)
	if err != nil {
		_ = d.Close()
		return nil, fmt.Errorf("failed to launch %s: %w", cfg.Browser, err)
	}
	d.browser = b

	bc, err := b.NewContext(contextOptions(cfg, userAgent))
	if err != nil {
		_ = d.Close()
		return nil, fmt.Errorf("failed to create context: %w", err)
	}
	d.context = bc

	page, err := bc.NewPage()
	if err != nil {
		_ = d.Close()
		return nil, fmt.Errorf("failed to create page: %w", err)
	}
	d.page = page

	if cfg.PageLoadTimeout > 0 {
		page.SetDefaultNavigationTimeout(cfg.PageLoadTimeout * 1000)
	}
	if cfg.ScriptTimeout > 0 {
		page.SetDefaultTimeout(cfg.ScriptTimeout * 1000)
	}
	return d, nil
}

// contextOptions carries the settings playwright only accepts when a
// browser context is created, stealth overrides included.
func contextOptions(cfg *config.DriverConfig, userAgent string) playwright.BrowserNewContextOptions {
	opts := playwright.BrowserNewContextOptions{
		AcceptDownloads:   playwright.Bool(cfg.BrowserOptions.DownloadDirectory != ""),
		JavaScriptEnabled: playwright.Bool(!cfg.BrowserOptions.DisableJavaScript),
	}

	if w, h, ok := cfg.BrowserOptions.Viewport(); ok {
		opts.Viewport = &playwright.Size{Width: w, Height: h}
	}
	if device, ok, _ := MobileDevice(cfg.BrowserOptions); ok {
		opts.Viewport = &playwright.Size{Width: device.Width, Height: device.Height}
		opts.DeviceScaleFactor = playwright.Float(device.Scale)
		opts.UserAgent = playwright.String(device.UserAgent)
	}
	if userAgent != "" {
		opts.UserAgent = playwright.String(userAgent)
	}

	if cfg.StealthEnabled() {
		if cfg.Stealth.Timezone != "" {
			opts.TimezoneId = playwright.String(cfg.Stealth.Timezone)
		}
		if cfg.Stealth.Locale != "" {
			opts.Locale = playwright.String(cfg.Stealth.Locale)
		}
	}
	return opts
}

func (d *playwrightDriver) Navigate(ctx context.Context, url string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	gotoOpts := playwright.PageGotoOptions{WaitUntil: playwright.WaitUntilStateLoad}
	if d.pageLoad > 0 {
		gotoOpts.Timeout = playwright.Float(d.pageLoad)
	}
	if _, err := d.page.Goto(url, gotoOpts); err != nil {
		return fmt.Errorf("navigation failed: %w", err)
	}
	return nil
}

func (d *playwrightDriver) URL() string {
	return d.page.URL()
}

func (d *playwrightDriver) Evaluate(ctx context.Context, fn string) (interface{}, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	v, err := d.page.Evaluate(fn)
	if err != nil {
		return nil, fmt.Errorf("evaluation failed: %w", err)
	}
	return v, nil
}

func (d *playwrightDriver) AddInitScript(ctx context.Context, script string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return d.context.AddInitScript(playwright.Script{Content: playwright.String(script)})
}

// SetUserAgent changes the header sent with requests. navigator.userAgent
// keeps the value the context was created with.
func (d *playwrightDriver) SetUserAgent(ctx context.Context, userAgent string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return d.page.SetExtraHTTPHeaders(map[string]string{"User-Agent": userAgent})
}

func (d *playwrightDriver) SetTimezone(context.Context, string) error {
	return fmt.Errorf("timezone is %w", errContextOnly)
}

func (d *playwrightDriver) SetLocale(context.Context, string) error {
	return fmt.Errorf("locale is %w", errContextOnly)
}

func (d *playwrightDriver) IsChromium() bool { return false }

func (d *playwrightDriver) BrowserName() platform.Browser { return d.name }

func (d *playwrightDriver) Close() error {
	var errs []error
	if d.context != nil {
		if err := d.context.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if d.browser != nil {
		if err := d.browser.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if d.pw != nil {
		if err := d.pw.Stop(); err != nil {
			errs = append(errs, fmt.Errorf("failed to stop playwright: %w", err))
		}
	}
	return errors.Join(errs...)
}
