package config

import (
	"sort"
	"strings"

	"github.com/entrhq/browserforge/pkg/forgeerr"
	"github.com/entrhq/browserforge/pkg/platform"
)

// Preset names accepted by Preset.
const (
	PresetHeadless    = "headless"
	PresetStealth     = "stealth"
	PresetPerformance = "performance"
	PresetTesting     = "testing"
	PresetMobile      = "mobile"
)

// Scenario names accepted by Scenario.
const (
	ScenarioWebScraping    = "web-scraping"
	ScenarioTesting        = "testing"
	ScenarioBot            = "bot"
	ScenarioDataCollection = "data-collection"
)

// Every layer is built by a function so callers always receive maps they
// are free to mutate.

func baseLayer() map[string]interface{} {
	return map[string]interface{}{
		"implicit_wait":     DefaultImplicitWait,
		"page_load_timeout": DefaultPageLoadTimeout,
		"script_timeout":    DefaultScriptTimeout,
		"log_level":         DefaultLogLevel,
		"enable_logging":    true,
		"browser_options": map[string]interface{}{
			"headless":           false,
			"start_maximized":    false,
			"disable_images":     false,
			"disable_javascript": false,
			"disable_css":        false,
			"auto_download":      true,
		},
	}
}

func chromeLayer(browser platform.Browser) map[string]interface{} {
	return map[string]interface{}{
		"browser":        string(browser),
		"driver_version": "latest",
		"browser_options": map[string]interface{}{
			"arguments": []interface{}{
				"--disable-blink-features=AutomationControlled",
				"--disable-dev-shm-usage",
				"--no-sandbox",
			},
			"preferences": map[string]interface{}{
				"profile.default_content_setting_values.notifications": 2,
				"credentials_enable_service":                           false,
				"profile.password_manager_enabled":                     false,
			},
			"experimental_options": map[string]interface{}{
				"excludeSwitches":        []interface{}{"enable-automation", "enable-logging"},
				"useAutomationExtension": false,
			},
		},
	}
}

func firefoxLayer() map[string]interface{} {
	return map[string]interface{}{
		"browser":        string(platform.Firefox),
		"driver_version": "latest",
		"browser_options": map[string]interface{}{
			"arguments": []interface{}{},
			"preferences": map[string]interface{}{
				"dom.webdriver.enabled":        false,
				"useAutomationExtension":       false,
				"marionette.enabled":           true,
				"dom.webnotifications.enabled": false,
			},
		},
	}
}

func edgeLayer() map[string]interface{} {
	return map[string]interface{}{
		"browser":        string(platform.Edge),
		"driver_version": "latest",
		"browser_options": map[string]interface{}{
			"arguments": []interface{}{
				"--disable-blink-features=AutomationControlled",
				"--disable-dev-shm-usage",
			},
			"preferences": map[string]interface{}{
				"profile.default_content_setting_values.notifications": 2,
			},
			"experimental_options": map[string]interface{}{
				"excludeSwitches":        []interface{}{"enable-automation"},
				"useAutomationExtension": false,
			},
		},
	}
}

func safariLayer() map[string]interface{} {
	return map[string]interface{}{
		"browser":        string(platform.Safari),
		"driver_version": "system",
		"browser_options": map[string]interface{}{
			"arguments": []interface{}{},
		},
	}
}

func headlessLayer() map[string]interface{} {
	return map[string]interface{}{
		"browser_options": map[string]interface{}{
			"headless":  true,
			"arguments": []interface{}{"--window-size=1920,1080", "--disable-gpu"},
		},
	}
}

func stealthLayer() map[string]interface{} {
	return map[string]interface{}{
		"stealth": map[string]interface{}{
			"enabled":                 true,
			"hide_webdriver":          true,
			"randomize_user_agent":    true,
			"mask_fingerprint":        true,
			"remove_automation_flags": true,
			"randomize_canvas":        true,
			"randomize_webgl":         true,
			"randomize_audio":         true,
		},
	}
}

func performanceLayer() map[string]interface{} {
	return map[string]interface{}{
		"browser_options": map[string]interface{}{
			"disable_images": true,
			"disable_css":    false,
			"arguments": []interface{}{
				"--disable-extensions",
				"--disable-plugins",
				"--disable-infobars",
				"--mute-audio",
			},
		},
	}
}

func testingLayer() map[string]interface{} {
	return map[string]interface{}{
		"browser_options": map[string]interface{}{
			"headless":  true,
			"arguments": []interface{}{"--no-sandbox", "--disable-dev-shm-usage", "--disable-gpu"},
		},
		"implicit_wait":     5.0,
		"page_load_timeout": 30.0,
	}
}

func mobileLayer() map[string]interface{} {
	return map[string]interface{}{
		"browser_options": map[string]interface{}{
			"experimental_options": map[string]interface{}{
				"mobileEmulation": map[string]interface{}{
					"deviceName": "iPhone 12 Pro",
				},
			},
		},
	}
}

var presets = map[string]func() map[string]interface{}{
	PresetHeadless:    headlessLayer,
	PresetStealth:     stealthLayer,
	PresetPerformance: performanceLayer,
	PresetTesting:     testingLayer,
	PresetMobile:      mobileLayer,
}

// PresetNames returns the known preset names, sorted.
func PresetNames() []string {
	names := make([]string, 0, len(presets))
	for name := range presets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// BrowserDefaults returns the default layer for browser: the shared base
// merged with the browser-specific settings. Chromium shares chrome's
// settings. Unknown browsers get chrome's settings under their own name and
// are rejected later by validation.
func BrowserDefaults(browser platform.Browser) map[string]interface{} {
	var layer map[string]interface{}
	switch platform.Browser(strings.ToLower(string(browser))) {
	case platform.Firefox:
		layer = firefoxLayer()
	case platform.Edge:
		layer = edgeLayer()
	case platform.Safari:
		layer = safariLayer()
	case platform.Chrome, platform.Chromium:
		layer = chromeLayer(platform.Browser(strings.ToLower(string(browser))))
	default:
		layer = chromeLayer(browser)
	}
	return Merge(baseLayer(), layer)
}

// Preset returns browser's defaults with the named preset applied.
func Preset(name string, browser platform.Browser) (map[string]interface{}, error) {
	overlay, ok := presets[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return nil, forgeerr.Config("unknown preset: "+name,
			"Valid presets: "+strings.Join(PresetNames(), ", ")).
			WithCode(forgeerr.CodeInvalidConfig)
	}
	return Merge(BrowserDefaults(browser), overlay()), nil
}

// Scenario returns a chrome configuration tuned for a common automation
// task. Unknown scenarios get chrome with stealth enabled.
func Scenario(name string) map[string]interface{} {
	return ScenarioFor(name, platform.Chrome)
}

// ScenarioFor is Scenario for an arbitrary browser.
func ScenarioFor(name string, browser platform.Browser) map[string]interface{} {
	return Merge(BrowserDefaults(browser), scenarioLayer(name))
}

// IsScenario reports whether name is a known scenario.
func IsScenario(name string) bool {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case ScenarioWebScraping, ScenarioTesting, ScenarioBot, ScenarioDataCollection:
		return true
	}
	return false
}

func scenarioLayer(name string) map[string]interface{} {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case ScenarioWebScraping:
		return Merge(stealthLayer(), performanceLayer())
	case ScenarioTesting:
		return testingLayer()
	case ScenarioBot:
		return Merge(stealthLayer(), map[string]interface{}{
			"browser_options": map[string]interface{}{"headless": true},
		})
	case ScenarioDataCollection:
		return Merge(performanceLayer(), map[string]interface{}{
			"browser_options": map[string]interface{}{"disable_images": true},
		})
	default:
		return stealthLayer()
	}
}
