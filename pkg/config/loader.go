package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/entrhq/browserforge/pkg/forgeerr"
	"github.com/entrhq/browserforge/pkg/platform"
)

// DefaultFileName is the configuration file FindConfigFile looks for.
const DefaultFileName = "browserforge.yaml"

// Merge deep-merges layers into a new map. Later layers win; nested maps
// are merged key by key and every other value, lists included, is replaced.
// The inputs are never modified.
func Merge(layers ...map[string]interface{}) map[string]interface{} {
	merged := make(map[string]interface{})
	for _, layer := range layers {
		for key, value := range layer {
			existing, eok := merged[key].(map[string]interface{})
			incoming, iok := value.(map[string]interface{})
			if eok && iok {
				merged[key] = Merge(existing, incoming)
				continue
			}
			merged[key] = deepCopy(value)
		}
	}
	return merged
}

func deepCopy(v interface{}) interface{} {
	switch val := v.(type) {
	case map[string]interface{}:
		out := make(map[string]interface{}, len(val))
		for k, item := range val {
			out[k] = deepCopy(item)
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(val))
		for i, item := range val {
			out[i] = deepCopy(item)
		}
		return out
	default:
		return v
	}
}

// LoadYAML reads a configuration file that must hold a non-empty mapping.
func LoadYAML(path string) (map[string]interface{}, error) {
	info, err := os.Stat(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fileError(fmt.Sprintf("configuration file not found: %s", path),
			"Check that the file path is correct", nil)
	}
	if err != nil {
		return nil, fileError(fmt.Sprintf("failed to load configuration file: %s", path), "", err)
	}
	if info.IsDir() {
		return nil, fileError(fmt.Sprintf("configuration path is not a file: %s", path),
			"Provide a path to a YAML configuration file", nil)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fileError(fmt.Sprintf("failed to load configuration file: %s", path), "", err)
	}

	var raw interface{}
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fileError(fmt.Sprintf("invalid YAML syntax in configuration file: %v", err),
			"Check YAML syntax using a YAML validator", err)
	}
	if raw == nil {
		return nil, fileError("configuration file is empty",
			"Add configuration settings to the YAML file", nil)
	}
	mapping, ok := raw.(map[string]interface{})
	if !ok {
		return nil, fileError("configuration file must contain a YAML mapping",
			"Check YAML syntax - configuration should be key-value pairs", nil)
	}
	return mapping, nil
}

// SaveYAML writes data to path, creating parent directories as needed.
func SaveYAML(data interface{}, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fileError(fmt.Sprintf("failed to save configuration file: %s", path), "", err)
	}

	out, err := yaml.Marshal(data)
	if err != nil {
		return fileError(fmt.Sprintf("failed to save configuration file: %s", path), "", err)
	}

	if err := os.WriteFile(path, out, 0644); err != nil {
		return fileError(fmt.Sprintf("failed to save configuration file: %s", path), "", err)
	}
	return nil
}

func fileError(message, suggestion string, cause error) *forgeerr.Error {
	return forgeerr.Config(message, suggestion).
		WithCode(forgeerr.CodeConfigFile).
		WithCause(cause)
}

// LoadOptions lists the layers Load combines, lowest priority first.
type LoadOptions struct {
	// Defaults is the base layer, usually BrowserDefaults or a preset.
	Defaults map[string]interface{}
	// Path is an optional YAML file merged over the defaults.
	Path string
	// Overrides win over everything else.
	Overrides map[string]interface{}
}

// Load merges the layers in opts and returns the validated configuration.
func Load(opts LoadOptions) (*DriverConfig, error) {
	data := Merge(opts.Defaults)

	if opts.Path != "" {
		file, err := LoadYAML(opts.Path)
		if err != nil {
			return nil, err
		}
		data = Merge(data, file)
	}

	if len(opts.Overrides) > 0 {
		data = Merge(data, opts.Overrides)
	}

	return ValidateMap(data)
}

// FindConfigFile looks for name, or its hidden ".name" variant, in startDir
// and each of its parents, then in the user configuration directory. It
// returns "" when nothing is found. An empty startDir means the working
// directory and an empty name means DefaultFileName.
func FindConfigFile(startDir, name string) string {
	if name == "" {
		name = DefaultFileName
	}
	if startDir == "" {
		wd, err := os.Getwd()
		if err != nil {
			return ""
		}
		startDir = wd
	}

	dir, err := filepath.Abs(startDir)
	if err != nil {
		return ""
	}

	for {
		for _, candidate := range []string{name, "." + name} {
			path := filepath.Join(dir, candidate)
			if isFile(path) {
				return path
			}
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}

	if configDir, err := platform.ConfigDir(); err == nil {
		path := filepath.Join(configDir, name)
		if isFile(path) {
			return path
		}
	}
	return ""
}

func isFile(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

type templateFile struct {
	Browser        string           `yaml:"browser"`
	DriverVersion  string           `yaml:"driver_version"`
	BrowserOptions templateOptions  `yaml:"browser_options"`
	Stealth        *templateStealth `yaml:"stealth,omitempty"`
	Proxy          *templateProxy   `yaml:"proxy,omitempty"`
	ImplicitWait   *float64         `yaml:"implicit_wait,omitempty"`
	PageLoad       *float64         `yaml:"page_load_timeout,omitempty"`
	Script         *float64         `yaml:"script_timeout,omitempty"`
	LogLevel       string           `yaml:"log_level,omitempty"`
}

type templateOptions struct {
	Headless          bool                   `yaml:"headless"`
	StartMaximized    bool                   `yaml:"start_maximized"`
	WindowSize        []int                  `yaml:"window_size"`
	DisableImages     *bool                  `yaml:"disable_images,omitempty"`
	DisableJavaScript *bool                  `yaml:"disable_javascript,omitempty"`
	DownloadDirectory *string                `yaml:"download_directory,omitempty"`
	Arguments         []string               `yaml:"arguments,omitempty"`
	Preferences       map[string]interface{} `yaml:"preferences,omitempty"`
}

type templateStealth struct {
	Enabled            bool `yaml:"enabled"`
	HideWebdriver      bool `yaml:"hide_webdriver"`
	RandomizeUserAgent bool `yaml:"randomize_user_agent"`
	MaskFingerprint    bool `yaml:"mask_fingerprint"`
}

type templateProxy struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
	Type string `yaml:"type"`
}

// CreateTemplate writes a starter configuration for browser to path.
// Advanced templates also list stealth, proxy, timeout and logging settings.
func CreateTemplate(path string, browser platform.Browser, advanced bool) error {
	if _, err := platform.ParseBrowser(string(browser)); err != nil {
		return invalid(err.Error(), "Valid browsers: "+platform.BrowserNames())
	}

	tmpl := templateFile{
		Browser:       string(browser),
		DriverVersion: "latest",
		BrowserOptions: templateOptions{
			StartMaximized: true,
		},
	}

	if advanced {
		no := false
		empty := ""
		implicit, pageLoad, script := DefaultImplicitWait, DefaultPageLoadTimeout, DefaultScriptTimeout

		tmpl.BrowserOptions.DisableImages = &no
		tmpl.BrowserOptions.DisableJavaScript = &no
		tmpl.BrowserOptions.DownloadDirectory = &empty
		tmpl.Stealth = &templateStealth{
			HideWebdriver:      true,
			RandomizeUserAgent: true,
			MaskFingerprint:    true,
		}
		tmpl.Proxy = &templateProxy{Host: "proxy.example.com", Port: 8080, Type: "http"}
		tmpl.ImplicitWait = &implicit
		tmpl.PageLoad = &pageLoad
		tmpl.Script = &script
		tmpl.LogLevel = DefaultLogLevel
	}

	return SaveYAML(tmpl, path)
}

// ToMap converts cfg back into the layered map form accepted by Load.
func ToMap(cfg *DriverConfig) (map[string]interface{}, error) {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to encode config: %w", err)
	}
	out := make(map[string]interface{})
	if err := yaml.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	return out, nil
}
