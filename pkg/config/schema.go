package config

import (
	"fmt"
	"math"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/entrhq/browserforge/pkg/forgeerr"
	"github.com/entrhq/browserforge/pkg/platform"
	"github.com/entrhq/browserforge/pkg/proxy"
)

var stealthBoolFields = []string{
	"enabled",
	"hide_webdriver",
	"randomize_user_agent",
	"mask_fingerprint",
	"remove_automation_flags",
	"randomize_canvas",
	"randomize_webgl",
	"randomize_audio",
}

var stealthStringFields = []string{"custom_user_agent", "timezone", "locale"}

var timeoutFields = []string{"implicit_wait", "page_load_timeout", "script_timeout"}

// ValidateMap checks a merged configuration map and decodes it into a
// DriverConfig. Absent keys take their defaults; a missing browser is an
// error.
func ValidateMap(data map[string]interface{}) (*DriverConfig, error) {
	rawBrowser, ok := data["browser"]
	if !ok {
		return nil, invalid("missing required configuration field: browser",
			"Configuration must include: browser")
	}
	name, ok := rawBrowser.(string)
	if !ok {
		return nil, invalid(fmt.Sprintf("invalid browser type: %v", rawBrowser),
			"Valid browsers: "+platform.BrowserNames())
	}
	browser, err := platform.ParseBrowser(name)
	if err != nil {
		return nil, invalid(fmt.Sprintf("invalid browser type: %s", name),
			"Valid browsers: "+platform.BrowserNames())
	}

	data = Merge(data)
	data["browser"] = string(browser)

	if err := validateBrowserOptions(data["browser_options"]); err != nil {
		return nil, err
	}

	// Empty proxy and stealth sections mean "not configured".
	for _, key := range []string{"proxy", "stealth", "proxy_rotation"} {
		if isEmpty(data[key]) {
			delete(data, key)
		}
	}

	if raw, ok := data["proxy"]; ok {
		if err := validateProxy(raw); err != nil {
			return nil, err
		}
	}
	if raw, ok := data["stealth"]; ok {
		if err := validateStealth(raw); err != nil {
			return nil, err
		}
	}

	if raw, ok := data["log_level"]; ok {
		level, isString := raw.(string)
		if !isString || !validLogLevel(level) {
			return nil, invalid(fmt.Sprintf("invalid log level: %v", raw),
				"Valid log levels: "+strings.Join(ValidLogLevels, ", "))
		}
		data["log_level"] = strings.ToUpper(level)
	}

	for _, field := range timeoutFields {
		raw, ok := data[field]
		if !ok || raw == nil {
			delete(data, field)
			continue
		}
		v, isNumber := toFloat(raw)
		if !isNumber || v < 0 {
			return nil, invalid(fmt.Sprintf("invalid %s: %v", field, raw),
				field+" must be a non-negative number")
		}
		data[field] = v
	}

	cfg, err := decode(data, browser)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func decode(data map[string]interface{}, browser platform.Browser) (*DriverConfig, error) {
	encoded, err := yaml.Marshal(data)
	if err != nil {
		return nil, forgeerr.Internal("failed to encode configuration", err)
	}

	cfg := DefaultDriverConfig(browser)
	if err := yaml.Unmarshal(encoded, cfg); err != nil {
		if fe, ok := forgeerr.As(err); ok {
			return nil, fe
		}
		return nil, invalid(fmt.Sprintf("invalid configuration: %v", err),
			"Check value types against the configuration template (browserforge init-config)").
			WithCause(err)
	}
	return cfg, nil
}

func validateBrowserOptions(raw interface{}) error {
	if raw == nil {
		return nil
	}
	opts, ok := raw.(map[string]interface{})
	if !ok {
		return invalid("browser_options must be a mapping", "Example: browser_options: {headless: true}")
	}

	if ws, ok := opts["window_size"]; ok && ws != nil {
		items, isList := toList(ws)
		if !isList || (len(items) != 0 && len(items) != 2) {
			return invalid(fmt.Sprintf("invalid window_size: %v", ws),
				"window_size must be a list of two integers: [width, height]")
		}
		for _, item := range items {
			if n, isInt := toInt(item); !isInt || n <= 0 {
				return invalid("window size values must be positive integers",
					"Example: window_size: [1920, 1080]")
			}
		}
	}

	if ext, ok := opts["extensions"]; ok && ext != nil {
		if _, isList := toList(ext); !isList {
			return invalid("extensions must be a list of file paths",
				"Example: extensions: ['/path/to/ext1.crx', '/path/to/ext2.crx']")
		}
	}
	return nil
}

func validateProxy(raw interface{}) error {
	if s, ok := raw.(string); ok {
		_, err := proxy.ParseURL(s)
		return err
	}

	p, ok := raw.(map[string]interface{})
	if !ok {
		return invalid(fmt.Sprintf("invalid proxy configuration: %v", raw),
			"Use a proxy URL or a mapping with host and port")
	}

	for _, field := range []string{"host", "port"} {
		if _, ok := p[field]; !ok {
			return invalid("missing required proxy field: "+field,
				"Proxy config must include: host, port").
				WithCode(forgeerr.CodeInvalidProxy)
		}
	}

	if t, ok := p["type"]; ok && t != nil {
		s, isString := t.(string)
		if _, err := proxy.ParseType(s); !isString || err != nil {
			return invalid(fmt.Sprintf("invalid proxy type: %v", t),
				"Valid proxy types: http, https, socks4, socks5").
				WithCode(forgeerr.CodeInvalidProxy)
		}
	}

	if port, isInt := toInt(p["port"]); !isInt || port < 1 || port > 65535 {
		return invalid(fmt.Sprintf("invalid proxy port: %v", p["port"]),
			"Port must be an integer between 1 and 65535").
			WithCode(forgeerr.CodeInvalidProxy)
	}
	return nil
}

func validateStealth(raw interface{}) error {
	s, ok := raw.(map[string]interface{})
	if !ok {
		return invalid("stealth must be a mapping", "Example: stealth: {enabled: true}")
	}
	for _, field := range stealthBoolFields {
		if v, ok := s[field]; ok {
			if _, isBool := v.(bool); !isBool {
				return invalid(fmt.Sprintf("stealth config field '%s' must be a boolean", field),
					"Use true or false for "+field)
			}
		}
	}
	for _, field := range stealthStringFields {
		if v, ok := s[field]; ok && v != nil {
			if _, isString := v.(string); !isString {
				return invalid(fmt.Sprintf("stealth config field '%s' must be a string", field), "")
			}
		}
	}
	return nil
}

func isEmpty(v interface{}) bool {
	switch val := v.(type) {
	case nil:
		return true
	case string:
		return val == ""
	case map[string]interface{}:
		return len(val) == 0
	case bool:
		return !val
	}
	return false
}

func toList(v interface{}) ([]interface{}, bool) {
	switch val := v.(type) {
	case []interface{}:
		return val, true
	case []int:
		out := make([]interface{}, len(val))
		for i, n := range val {
			out[i] = n
		}
		return out, true
	case []string:
		out := make([]interface{}, len(val))
		for i, s := range val {
			out[i] = s
		}
		return out, true
	}
	return nil, false
}

func toInt(v interface{}) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case int32:
		return int(n), true
	case uint64:
		return int(n), true
	case float64:
		if n == math.Trunc(n) {
			return int(n), true
		}
	}
	return 0, false
}

func toFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	}
	return 0, false
}
