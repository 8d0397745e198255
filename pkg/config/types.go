// Package config builds validated driver configurations from layered
// sources: per-browser defaults, presets, scenarios, YAML files and runtime
// overrides. Layers are plain maps deep-merged in order, validated, then
// decoded into a DriverConfig.
package config

import (
	"fmt"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/entrhq/browserforge/pkg/forgeerr"
	"github.com/entrhq/browserforge/pkg/platform"
	"github.com/entrhq/browserforge/pkg/proxy"
)

// Timeout defaults, in seconds.
const (
	DefaultImplicitWait    = 10.0
	DefaultPageLoadTimeout = 60.0
	DefaultScriptTimeout   = 30.0
	DefaultLogLevel        = "INFO"
)

// ValidLogLevels are the accepted log_level values.
var ValidLogLevels = []string{"DEBUG", "INFO", "WARNING", "ERROR", "CRITICAL"}

// BrowserOptions controls how the browser process is launched.
type BrowserOptions struct {
	Headless       bool  `yaml:"headless" json:"headless"`
	WindowSize     []int `yaml:"window_size,omitempty" json:"window_size,omitempty"`
	StartMaximized bool  `yaml:"start_maximized" json:"start_maximized"`

	BinaryLocation   string   `yaml:"binary_location,omitempty" json:"binary_location,omitempty"`
	ProfileDirectory string   `yaml:"profile_directory,omitempty" json:"profile_directory,omitempty"`
	Extensions       []string `yaml:"extensions,omitempty" json:"extensions,omitempty"`

	DisableImages     bool `yaml:"disable_images" json:"disable_images"`
	DisableJavaScript bool `yaml:"disable_javascript" json:"disable_javascript"`
	DisableCSS        bool `yaml:"disable_css" json:"disable_css"`
	DisablePlugins    bool `yaml:"disable_plugins" json:"disable_plugins"`

	DownloadDirectory string `yaml:"download_directory,omitempty" json:"download_directory,omitempty"`
	AutoDownload      bool   `yaml:"auto_download" json:"auto_download"`

	ExperimentalOptions map[string]interface{} `yaml:"experimental_options,omitempty" json:"experimental_options,omitempty"`
	Arguments           []string               `yaml:"arguments,omitempty" json:"arguments,omitempty"`
	Preferences         map[string]interface{} `yaml:"preferences,omitempty" json:"preferences,omitempty"`
}

// Viewport returns the configured window size, if any.
func (o BrowserOptions) Viewport() (width, height int, ok bool) {
	if len(o.WindowSize) != 2 {
		return 0, 0, false
	}
	return o.WindowSize[0], o.WindowSize[1], true
}

// StealthConfig selects which fingerprint-evasion measures are applied.
type StealthConfig struct {
	Enabled               bool     `yaml:"enabled" json:"enabled"`
	HideWebdriver         bool     `yaml:"hide_webdriver" json:"hide_webdriver"`
	RandomizeUserAgent    bool     `yaml:"randomize_user_agent" json:"randomize_user_agent"`
	MaskFingerprint       bool     `yaml:"mask_fingerprint" json:"mask_fingerprint"`
	RemoveAutomationFlags bool     `yaml:"remove_automation_flags" json:"remove_automation_flags"`
	CustomUserAgent       string   `yaml:"custom_user_agent,omitempty" json:"custom_user_agent,omitempty"`
	CustomPatches         []string `yaml:"custom_patches,omitempty" json:"custom_patches,omitempty"`
	RandomizeCanvas       bool     `yaml:"randomize_canvas" json:"randomize_canvas"`
	RandomizeWebGL        bool     `yaml:"randomize_webgl" json:"randomize_webgl"`
	RandomizeAudio        bool     `yaml:"randomize_audio" json:"randomize_audio"`
	Timezone              string   `yaml:"timezone,omitempty" json:"timezone,omitempty"`
	Locale                string   `yaml:"locale,omitempty" json:"locale,omitempty"`
	Languages             []string `yaml:"languages,omitempty" json:"languages,omitempty"`
}

// DefaultStealthConfig enables every measure.
func DefaultStealthConfig() StealthConfig {
	return StealthConfig{
		Enabled:               true,
		HideWebdriver:         true,
		RandomizeUserAgent:    true,
		MaskFingerprint:       true,
		RemoveAutomationFlags: true,
		RandomizeCanvas:       true,
		RandomizeWebGL:        true,
		RandomizeAudio:        true,
	}
}

// UnmarshalYAML starts from DefaultStealthConfig so omitted keys stay enabled.
func (s *StealthConfig) UnmarshalYAML(value *yaml.Node) error {
	*s = DefaultStealthConfig()
	type plain StealthConfig
	return value.Decode((*plain)(s))
}

// DriverConfig is a complete, validated launch configuration.
type DriverConfig struct {
	Browser        platform.Browser `yaml:"browser" json:"browser"`
	BrowserOptions BrowserOptions   `yaml:"browser_options" json:"browser_options"`
	Proxy          *proxy.Endpoint  `yaml:"proxy,omitempty" json:"proxy,omitempty"`
	ProxyRotation  *proxy.Pool      `yaml:"proxy_rotation,omitempty" json:"proxy_rotation,omitempty"`
	Stealth        *StealthConfig   `yaml:"stealth,omitempty" json:"stealth,omitempty"`

	DriverVersion string `yaml:"driver_version,omitempty" json:"driver_version,omitempty"`
	DriverPath    string `yaml:"driver_path,omitempty" json:"driver_path,omitempty"`

	// Timeouts in seconds
	ImplicitWait    float64 `yaml:"implicit_wait" json:"implicit_wait"`
	PageLoadTimeout float64 `yaml:"page_load_timeout" json:"page_load_timeout"`
	ScriptTimeout   float64 `yaml:"script_timeout" json:"script_timeout"`

	Capabilities map[string]interface{} `yaml:"capabilities,omitempty" json:"capabilities,omitempty"`

	LogLevel      string `yaml:"log_level" json:"log_level"`
	EnableLogging bool   `yaml:"enable_logging" json:"enable_logging"`

	SessionID    string `yaml:"session_id,omitempty" json:"session_id,omitempty"`
	ReuseSession bool   `yaml:"reuse_session" json:"reuse_session"`
}

// DefaultDriverConfig returns the base configuration for browser.
func DefaultDriverConfig(browser platform.Browser) *DriverConfig {
	return &DriverConfig{
		Browser:         browser,
		BrowserOptions:  BrowserOptions{AutoDownload: true},
		DriverVersion:   "latest",
		ImplicitWait:    DefaultImplicitWait,
		PageLoadTimeout: DefaultPageLoadTimeout,
		ScriptTimeout:   DefaultScriptTimeout,
		LogLevel:        DefaultLogLevel,
		EnableLogging:   true,
	}
}

// StealthEnabled reports whether stealth patches should be applied.
func (c *DriverConfig) StealthEnabled() bool {
	return c.Stealth != nil && c.Stealth.Enabled
}

// PageLoad returns the page load timeout as a duration.
func (c *DriverConfig) PageLoad() time.Duration {
	return seconds(c.PageLoadTimeout)
}

// Script returns the script timeout as a duration.
func (c *DriverConfig) Script() time.Duration {
	return seconds(c.ScriptTimeout)
}

// Implicit returns the implicit wait as a duration.
func (c *DriverConfig) Implicit() time.Duration {
	return seconds(c.ImplicitWait)
}

func seconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}

// Clone returns a deep copy made through a YAML round trip.
func (c *DriverConfig) Clone() *DriverConfig {
	data, err := yaml.Marshal(c)
	if err != nil {
		cp := *c
		return &cp
	}
	clone := &DriverConfig{}
	if err := yaml.Unmarshal(data, clone); err != nil {
		cp := *c
		return &cp
	}
	return clone
}

// Validate checks a config built in code. Configs produced by Load are
// already validated.
func (c *DriverConfig) Validate() error {
	if _, err := platform.ParseBrowser(string(c.Browser)); err != nil {
		return invalid(err.Error(), "Valid browsers: "+platform.BrowserNames())
	}

	if len(c.BrowserOptions.WindowSize) != 0 {
		w, h, ok := c.BrowserOptions.Viewport()
		if !ok || w <= 0 || h <= 0 {
			return invalid(fmt.Sprintf("invalid window_size: %v", c.BrowserOptions.WindowSize),
				"window_size must be two positive integers: [width, height]")
		}
	}

	if c.Proxy != nil {
		if err := c.Proxy.Validate(); err != nil {
			return err
		}
	}
	if c.ProxyRotation != nil {
		if err := c.ProxyRotation.Validate(); err != nil {
			return err
		}
	}

	if !validLogLevel(c.LogLevel) {
		return invalid(fmt.Sprintf("invalid log level: %s", c.LogLevel),
			"Valid log levels: "+strings.Join(ValidLogLevels, ", "))
	}

	for name, v := range map[string]float64{
		"implicit_wait":     c.ImplicitWait,
		"page_load_timeout": c.PageLoadTimeout,
		"script_timeout":    c.ScriptTimeout,
	} {
		if v < 0 {
			return invalid(fmt.Sprintf("invalid %s: %v", name, v), name+" must be a non-negative number")
		}
	}
	return nil
}

func validLogLevel(level string) bool {
	for _, l := range ValidLogLevels {
		if strings.EqualFold(level, l) {
			return true
		}
	}
	return false
}

func invalid(message, suggestion string) *forgeerr.Error {
	return forgeerr.Config(message, suggestion).WithCode(forgeerr.CodeInvalidConfig)
}
