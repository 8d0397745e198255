package browser

import (
	"fmt"
	"strings"

	"github.com/playwright-community/playwright-go"

	"github.com/entrhq/browserforge/pkg/config"
	"github.com/entrhq/browserforge/pkg/proxy"
)

// Content setting value chromium uses for "block".
const chromiumBlock = 2

// ChromiumArgs returns the command line switches for a chromium-family
// browser. Profile and proxy switches are handled by the launcher.
func ChromiumArgs(opts config.BrowserOptions) []string {
	var args []string

	if opts.Headless {
		args = append(args, "--headless=new")
	}
	if w, h, ok := opts.Viewport(); ok {
		args = append(args, fmt.Sprintf("--window-size=%d,%d", w, h))
	}
	if opts.StartMaximized {
		args = append(args, "--start-maximized")
	}
	if len(opts.Extensions) > 0 {
		args = append(args, "--load-extension="+strings.Join(opts.Extensions, ","))
	}
	if opts.DisableImages {
		args = append(args, "--blink-settings=imagesEnabled=false")
	}
	if opts.DisablePlugins {
		args = append(args, "--disable-plugins")
	}

	return appendUnique(args, opts.Arguments...)
}

// ExcludedSwitches returns the switch names listed under the excludeSwitches
// experimental option, without leading dashes.
func ExcludedSwitches(opts config.BrowserOptions) []string {
	raw, ok := opts.ExperimentalOptions["excludeSwitches"]
	if !ok {
		return nil
	}
	items, ok := raw.([]interface{})
	if !ok {
		return nil
	}

	var out []string
	for _, item := range items {
		if s, ok := item.(string); ok && s != "" {
			out = append(out, strings.TrimLeft(s, "-"))
		}
	}
	return out
}

// ChromiumPrefs returns the profile preferences for a chromium-family
// browser as dotted keys. Explicit preferences override derived ones.
func ChromiumPrefs(opts config.BrowserOptions) map[string]interface{} {
	prefs := make(map[string]interface{})

	if opts.DisableImages {
		prefs["profile.managed_default_content_settings.images"] = chromiumBlock
	}
	if opts.DisableJavaScript {
		prefs["profile.managed_default_content_settings.javascript"] = chromiumBlock
	}
	if opts.DownloadDirectory != "" {
		prefs["download.default_directory"] = opts.DownloadDirectory
		prefs["download.prompt_for_download"] = !opts.AutoDownload
	}
	if extra, ok := opts.ExperimentalOptions["prefs"].(map[string]interface{}); ok {
		for k, v := range extra {
			prefs[k] = v
		}
	}
	for k, v := range opts.Preferences {
		prefs[k] = v
	}
	return prefs
}

// NestPrefs expands dotted keys into the nested form of a chromium
// Preferences file: {"a.b": 1} becomes {"a": {"b": 1}}.
func NestPrefs(flat map[string]interface{}) map[string]interface{} {
	nested := make(map[string]interface{})
	for key, value := range flat {
		parts := strings.Split(key, ".")
		node := nested
		for _, part := range parts[:len(parts)-1] {
			child, ok := node[part].(map[string]interface{})
			if !ok {
				child = make(map[string]interface{})
				node[part] = child
			}
			node = child
		}
		node[parts[len(parts)-1]] = value
	}
	return nested
}

// FirefoxPrefs returns the about:config preferences for firefox.
func FirefoxPrefs(opts config.BrowserOptions) map[string]interface{} {
	prefs := make(map[string]interface{})

	if opts.DisableImages {
		prefs["permissions.default.image"] = 2
	}
	if opts.DisableJavaScript {
		prefs["javascript.enabled"] = false
	}
	if opts.DownloadDirectory != "" {
		prefs["browser.download.dir"] = opts.DownloadDirectory
		prefs["browser.download.folderList"] = 2
		prefs["browser.download.manager.showWhenStarting"] = !opts.AutoDownload
	}
	for k, v := range opts.Preferences {
		prefs[k] = v
	}
	return prefs
}

// ProxyArgs returns the chromium switches routing traffic through e.
func ProxyArgs(e *proxy.Endpoint) []string {
	if e == nil {
		return nil
	}
	args := []string{"--proxy-server=" + e.Server()}
	if len(e.NoProxy) > 0 {
		args = append(args, "--proxy-bypass-list="+strings.Join(e.NoProxy, ";"))
	}
	return args
}

// PlaywrightProxy converts e into playwright's proxy settings.
func PlaywrightProxy(e *proxy.Endpoint) *playwright.Proxy {
	if e == nil {
		return nil
	}
	p := &playwright.Proxy{Server: e.Server()}
	if len(e.NoProxy) > 0 {
		p.Bypass = playwright.String(strings.Join(e.NoProxy, ","))
	}
	if e.HasAuth() {
		p.Username = playwright.String(e.Username)
		p.Password = playwright.String(e.Password)
	}
	return p
}

// Device describes a mobile emulation target.
type Device struct {
	Name      string
	Width     int
	Height    int
	Scale     float64
	UserAgent string
}

var devices = map[string]Device{
	"iPhone 12 Pro": {
		Name: "iPhone 12 Pro", Width: 390, Height: 844, Scale: 3,
		UserAgent: "Mozilla/5.0 (iPhone; CPU iPhone OS 14_4 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/14.0.3 Mobile/15E148 Safari/604.1",
	},
	"iPhone X": {
		Name: "iPhone X", Width: 375, Height: 812, Scale: 3,
		UserAgent: "Mozilla/5.0 (iPhone; CPU iPhone OS 11_0 like Mac OS X) AppleWebKit/604.1.38 (KHTML, like Gecko) Version/11.0 Mobile/15A372 Safari/604.1",
	},
	"Pixel 5": {
		Name: "Pixel 5", Width: 393, Height: 851, Scale: 2.75,
		UserAgent: "Mozilla/5.0 (Linux; Android 11; Pixel 5) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/90.0.4430.91 Mobile Safari/537.36",
	},
	"iPad Pro": {
		Name: "iPad Pro", Width: 1024, Height: 1366, Scale: 2,
		UserAgent: "Mozilla/5.0 (iPad; CPU OS 11_0 like Mac OS X) AppleWebKit/604.1.34 (KHTML, like Gecko) Version/11.0 Mobile/15A5341f Safari/604.1",
	},
}

// MobileDevice returns the device named by the mobileEmulation experimental
// option, if any.
func MobileDevice(opts config.BrowserOptions) (Device, bool, error) {
	raw, ok := opts.ExperimentalOptions["mobileEmulation"].(map[string]interface{})
	if !ok {
		return Device{}, false, nil
	}
	name, _ := raw["deviceName"].(string)
	d, ok := devices[name]
	if !ok {
		return Device{}, false, fmt.Errorf("unknown mobile emulation device %q", name)
	}
	return d, true, nil
}

func appendUnique(dst []string, items ...string) []string {
	seen := make(map[string]bool, len(dst))
	for _, s := range dst {
		seen[s] = true
	}
	for _, s := range items {
		if !seen[s] {
			seen[s] = true
			dst = append(dst, s)
		}
	}
	return dst
}
