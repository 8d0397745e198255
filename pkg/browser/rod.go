package browser

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/launcher/flags"
	"github.com/go-rod/rod/lib/proto"
	"github.com/ysmood/gson"

	"github.com/entrhq/browserforge/pkg/config"
	"github.com/entrhq/browserforge/pkg/logging"
	"github.com/entrhq/browserforge/pkg/platform"
)

// rodDriver drives a chromium-family browser over the DevTools protocol.
type rodDriver struct {
	name     platform.Browser
	launcher *launcher.Launcher
	browser  *rod.Browser
	page     *rod.Page

	pageLoad time.Duration
	script   time.Duration

	// tempProfile is removed on Close when the profile was not user supplied
	tempProfile string
	stopAuth    context.CancelFunc
}

// launchRod starts the browser at bin and opens one blank page.
func launchRod(ctx context.Context, bin string, cfg *config.DriverConfig, logger *logging.Logger) (*rodDriver, error) {
	opts := cfg.BrowserOptions
	d := &rodDriver{
		name:     cfg.Browser,
		pageLoad: cfg.PageLoad(),
		script:   cfg.Script(),
	}

	profile := opts.ProfileDirectory
	if profile == "" {
		dir, err := os.MkdirTemp("", "browserforge-profile-*")
		if err != nil {
			return nil, fmt.Errorf("failed to create profile directory: %w", err)
		}
		profile = dir
		d.tempProfile = dir
	}

	if prefs := ChromiumPrefs(opts); len(prefs) > 0 {
		if err := writePreferences(profile, prefs); err != nil {
			d.cleanup()
			return nil, err
		}
	}

	// The launcher is not bound to ctx: cancelling a launch context must
	// not kill a session that outlives it.
	l := launcher.New().
		Bin(bin).
		Headless(false).
		UserDataDir(profile)

	for _, name := range ExcludedSwitches(opts) {
		l.Delete(flags.Flag(name))
	}
	args := append(ChromiumArgs(opts), ProxyArgs(cfg.Proxy)...)
	for _, arg := range args {
		name, value, hasValue := strings.Cut(strings.TrimLeft(arg, "-"), "=")
		if hasValue {
			l.Set(flags.Flag(name), value)
		} else {
			l.Set(flags.Flag(name))
		}
	}
	d.launcher = l

	if err := ctx.Err(); err != nil {
		d.cleanup()
		return nil, err
	}
	controlURL, err := l.Launch()
	if err != nil {
		d.cleanup()
		return nil, fmt.Errorf("failed to launch %s: %w", cfg.Browser, err)
	}

	b := rod.New().ControlURL(controlURL)
	if err := b.Connect(); err != nil {
		d.cleanup()
		return nil, fmt.Errorf("failed to connect to %s: %w", cfg.Browser, err)
	}
	d.browser = b

	if cfg.Proxy != nil && cfg.Proxy.HasAuth() {
		authCtx, cancel := context.WithCancel(context.Background())
		d.stopAuth = cancel
		go handleProxyAuth(authCtx, b, cfg.Proxy.Username, cfg.Proxy.Password, logger)
	}

	page, err := b.Page(proto.TargetCreateTarget{URL: "about:blank"})
	if err != nil {
		_ = d.Close()
		return nil, fmt.Errorf("failed to open page: %w", err)
	}
	d.page = page

	if err := d.configurePage(opts); err != nil {
		_ = d.Close()
		return nil, err
	}
	return d, nil
}

func (d *rodDriver) configurePage(opts config.BrowserOptions) error {
	if w, h, ok := opts.Viewport(); ok {
		if err := d.page.SetViewport(&proto.EmulationSetDeviceMetricsOverride{
			Width: w, Height: h, DeviceScaleFactor: 1,
		}); err != nil {
			return fmt.Errorf("failed to set viewport: %w", err)
		}
	}

	device, ok, err := MobileDevice(opts)
	if err != nil {
		return err
	}
	if ok {
		if err := d.page.SetViewport(&proto.EmulationSetDeviceMetricsOverride{
			Width: device.Width, Height: device.Height, DeviceScaleFactor: device.Scale, Mobile: true,
		}); err != nil {
			return fmt.Errorf("failed to emulate %s: %w", device.Name, err)
		}
		if err := d.page.SetUserAgent(&proto.NetworkSetUserAgentOverride{UserAgent: device.UserAgent}); err != nil {
			return fmt.Errorf("failed to emulate %s: %w", device.Name, err)
		}
	}

	if opts.DisableJavaScript {
		if err := (proto.EmulationSetScriptExecutionDisabled{Value: true}).Call(d.page); err != nil {
			return fmt.Errorf("failed to disable javascript: %w", err)
		}
	}

	if opts.DownloadDirectory != "" {
		if err := (proto.BrowserSetDownloadBehavior{
			Behavior:     proto.BrowserSetDownloadBehaviorBehaviorAllow,
			DownloadPath: opts.DownloadDirectory,
		}).Call(d.browser); err != nil {
			return fmt.Errorf("failed to set download directory: %w", err)
		}
	}
	return nil
}

// handleProxyAuth answers proxy authentication challenges until ctx ends.
func handleProxyAuth(ctx context.Context, b *rod.Browser, username, password string, logger *logging.Logger) {
	for ctx.Err() == nil {
		wait := b.Context(ctx).HandleAuth(username, password)
		if err := wait(); err != nil {
			if ctx.Err() == nil {
				logger.Warnf("proxy authentication failed: %v", err)
			}
			return
		}
	}
}

// writePreferences seeds the profile's Default/Preferences file.
func writePreferences(profile string, prefs map[string]interface{}) error {
	dir := filepath.Join(profile, "Default")
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create profile directory: %w", err)
	}

	path := filepath.Join(dir, "Preferences")
	merged := make(map[string]interface{})
	if existing, err := os.ReadFile(path); err == nil {
		_ = json.Unmarshal(existing, &merged)
	}
	mergeNested(merged, NestPrefs(prefs))

	data, err := json.Marshal(merged)
	if err != nil {
		return fmt.Errorf("failed to encode preferences: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write preferences: %w", err)
	}
	return nil
}

func mergeNested(dst, src map[string]interface{}) {
	for k, v := range src {
		srcMap, srcOK := v.(map[string]interface{})
		dstMap, dstOK := dst[k].(map[string]interface{})
		if srcOK && dstOK {
			mergeNested(dstMap, srcMap)
			continue
		}
		dst[k] = v
	}
}

func (d *rodDriver) Navigate(ctx context.Context, url string) error {
	p := d.page.Context(ctx)
	if d.pageLoad > 0 {
		p = p.Timeout(d.pageLoad)
	}
	if err := p.Navigate(url); err != nil {
		return fmt.Errorf("navigation failed: %w", err)
	}
	if err := p.WaitLoad(); err != nil {
		return fmt.Errorf("waiting for load failed: %w", err)
	}
	return nil
}

func (d *rodDriver) URL() string {
	info, err := d.page.Info()
	if err != nil {
		return ""
	}
	return info.URL
}

func (d *rodDriver) Evaluate(ctx context.Context, fn string) (interface{}, error) {
	p := d.page.Context(ctx)
	if d.script > 0 {
		p = p.Timeout(d.script)
	}
	res, err := p.Eval(fn)
	if err != nil {
		return nil, fmt.Errorf("evaluation failed: %w", err)
	}
	return jsonValue(res.Value), nil
}

func jsonValue(v gson.JSON) interface{} {
	if v.Nil() {
		return nil
	}
	return v.Val()
}

func (d *rodDriver) AddInitScript(ctx context.Context, script string) error {
	_, err := d.page.Context(ctx).EvalOnNewDocument(script)
	return err
}

func (d *rodDriver) SetUserAgent(ctx context.Context, userAgent string) error {
	return d.page.Context(ctx).SetUserAgent(&proto.NetworkSetUserAgentOverride{UserAgent: userAgent})
}

func (d *rodDriver) SetTimezone(ctx context.Context, timezone string) error {
	return proto.EmulationSetTimezoneOverride{TimezoneID: timezone}.Call(d.page.Context(ctx))
}

func (d *rodDriver) SetLocale(ctx context.Context, locale string) error {
	return proto.EmulationSetLocaleOverride{Locale: locale}.Call(d.page.Context(ctx))
}

func (d *rodDriver) IsChromium() bool { return true }

func (d *rodDriver) BrowserName() platform.Browser { return d.name }

func (d *rodDriver) Close() error {
	var err error
	if d.browser != nil {
		err = d.browser.Close()
	}
	d.cleanup()
	return err
}

func (d *rodDriver) cleanup() {
	if d.stopAuth != nil {
		d.stopAuth()
	}
	if d.launcher != nil {
		d.launcher.Kill()
	}
	if d.tempProfile != "" {
		_ = os.RemoveAll(d.tempProfile)
	}
}
