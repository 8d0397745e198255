package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/entrhq/browserforge/pkg/forgeerr"
	"github.com/entrhq/browserforge/pkg/platform"
)

func TestBrowserDefaults(t *testing.T) {
	tests := []struct {
		browser       platform.Browser
		driverVersion string
		argument      string
	}{
		{platform.Chrome, "latest", "--no-sandbox"},
		{platform.Chromium, "latest", "--no-sandbox"},
		{platform.Edge, "latest", "--disable-dev-shm-usage"},
		{platform.Firefox, "latest", ""},
		{platform.Safari, "system", ""},
	}

	for _, tt := range tests {
		t.Run(string(tt.browser), func(t *testing.T) {
			cfg, err := ValidateMap(BrowserDefaults(tt.browser))
			require.NoError(t, err)

			assert.Equal(t, tt.browser, cfg.Browser)
			assert.Equal(t, tt.driverVersion, cfg.DriverVersion)
			assert.Equal(t, DefaultImplicitWait, cfg.ImplicitWait)
			assert.False(t, cfg.BrowserOptions.Headless)
			assert.True(t, cfg.BrowserOptions.AutoDownload)
			assert.Nil(t, cfg.Stealth)
			if tt.argument != "" {
				assert.Contains(t, cfg.BrowserOptions.Arguments, tt.argument)
			}
		})
	}
}

func TestBrowserDefaults_FreshMaps(t *testing.T) {
	first := BrowserDefaults(platform.Chrome)
	first["browser_options"].(map[string]interface{})["headless"] = true

	second := BrowserDefaults(platform.Chrome)
	assert.Equal(t, false, second["browser_options"].(map[string]interface{})["headless"])
}

func TestPreset(t *testing.T) {
	tests := []struct {
		preset string
		check  func(t *testing.T, cfg *DriverConfig)
	}{
		{PresetHeadless, func(t *testing.T, cfg *DriverConfig) {
			assert.True(t, cfg.BrowserOptions.Headless)
			assert.Contains(t, cfg.BrowserOptions.Arguments, "--disable-gpu")
		}},
		{PresetStealth, func(t *testing.T, cfg *DriverConfig) {
			require.NotNil(t, cfg.Stealth)
			assert.Equal(t, DefaultStealthConfig(), *cfg.Stealth)
		}},
		{PresetPerformance, func(t *testing.T, cfg *DriverConfig) {
			assert.True(t, cfg.BrowserOptions.DisableImages)
			assert.Contains(t, cfg.BrowserOptions.Arguments, "--mute-audio")
		}},
		{PresetTesting, func(t *testing.T, cfg *DriverConfig) {
			assert.True(t, cfg.BrowserOptions.Headless)
			assert.Equal(t, 5.0, cfg.ImplicitWait)
			assert.Equal(t, 30.0, cfg.PageLoadTimeout)
		}},
		{PresetMobile, func(t *testing.T, cfg *DriverConfig) {
			emulation, ok := cfg.BrowserOptions.ExperimentalOptions["mobileEmulation"].(map[string]interface{})
			require.True(t, ok)
			assert.Equal(t, "iPhone 12 Pro", emulation["deviceName"])
		}},
	}

	for _, tt := range tests {
		t.Run(tt.preset, func(t *testing.T) {
			data, err := Preset(tt.preset, platform.Chrome)
			require.NoError(t, err)
			cfg, err := ValidateMap(data)
			require.NoError(t, err)
			tt.check(t, cfg)
		})
	}
}

func TestPreset_Unknown(t *testing.T) {
	_, err := Preset("turbo", platform.Chrome)
	require.Error(t, err)
	assert.True(t, forgeerr.Is(err, forgeerr.KindConfig))
	assert.Contains(t, forgeerr.Suggestion(err), "headless")
}

func TestScenario(t *testing.T) {
	tests := []struct {
		scenario string
		stealth  bool
		headless bool
		images   bool
	}{
		{ScenarioWebScraping, true, false, true},
		{ScenarioTesting, false, true, false},
		{ScenarioBot, true, true, false},
		{ScenarioDataCollection, false, false, true},
		{"something-else", true, false, false},
	}

	for _, tt := range tests {
		t.Run(tt.scenario, func(t *testing.T) {
			cfg, err := ValidateMap(Scenario(tt.scenario))
			require.NoError(t, err)

			assert.Equal(t, platform.Chrome, cfg.Browser)
			assert.Equal(t, tt.stealth, cfg.StealthEnabled())
			assert.Equal(t, tt.headless, cfg.BrowserOptions.Headless)
			assert.Equal(t, tt.images, cfg.BrowserOptions.DisableImages)
		})
	}
}
