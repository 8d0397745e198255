package main

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/entrhq/browserforge/pkg/config"
	"github.com/entrhq/browserforge/pkg/forgeerr"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(append([]string{"--env-file", ""}, args...))
	err := cmd.Execute()
	return out.String(), err
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestValidateCommand(t *testing.T) {
	t.Run("valid", func(t *testing.T) {
		path := writeFile(t, "ok.yaml", `browser: firefox
browser_options:
  headless: true
proxy: socks5://127.0.0.1:1080
`)
		out, err := run(t, "validate", path)
		require.NoError(t, err)
		assert.Contains(t, out, "Configuration file is valid!")
		assert.Contains(t, out, "Browser: firefox")
		assert.Contains(t, out, "Headless: true")
		assert.Contains(t, out, "Proxy: true")
	})

	t.Run("invalid", func(t *testing.T) {
		path := writeFile(t, "bad.yaml", "browser: chrome\nimplicit_wait: -1\n")
		_, err := run(t, "validate", path)
		require.Error(t, err)
		assert.True(t, forgeerr.Is(err, forgeerr.KindConfig))
	})

	t.Run("missing argument", func(t *testing.T) {
		_, err := run(t, "validate")
		assert.Error(t, err)
	})
}

func TestInitConfigCommand(t *testing.T) {
	dir := t.TempDir()
	output := filepath.Join(dir, "browserforge.yaml")

	out, err := run(t, "init-config", "--output", output)
	require.NoError(t, err)
	assert.Contains(t, out, "Configuration file created")
	assert.FileExists(t, output)

	_, err = run(t, "init-config", "--output", output)
	require.Error(t, err)
	assert.True(t, forgeerr.HasCode(err, forgeerr.CodeConfigFile))

	_, err = run(t, "init-config", "--output", output, "--force", "--template", "stealth", "--browser", "edge")
	require.NoError(t, err)

	cfg, err := config.Load(config.LoadOptions{Path: output})
	require.NoError(t, err)
	assert.Equal(t, "edge", string(cfg.Browser))
	assert.True(t, cfg.StealthEnabled())

	_, err = run(t, "init-config", "--output", filepath.Join(dir, "other.yaml"), "--template", "turbo")
	assert.Error(t, err)

	_, err = run(t, "init-config", "--output", filepath.Join(dir, "other.yaml"), "--browser", "netscape")
	assert.True(t, forgeerr.HasCode(err, forgeerr.CodeUnsupportedBrowser))
}

func TestInitConfigScenarioTemplate(t *testing.T) {
	output := filepath.Join(t.TempDir(), "scraping.yaml")

	_, err := run(t, "init-config", "--output", output, "--template", config.ScenarioWebScraping)
	require.NoError(t, err)

	cfg, err := config.Load(config.LoadOptions{Path: output})
	require.NoError(t, err)
	assert.True(t, cfg.BrowserOptions.DisableImages)
}

func TestClearCacheCommand(t *testing.T) {
	cacheDir := t.TempDir()

	out, err := run(t, "clear-cache", "--cache-dir", cacheDir)
	require.NoError(t, err)
	assert.Contains(t, out, "Cleared 0 cached driver(s)")

	out, err = run(t, "clear-cache", "--cache-dir", cacheDir, "--browser", "chrome")
	require.NoError(t, err)
	assert.Contains(t, out, "No cached chrome driver found")

	_, err = run(t, "clear-cache", "--cache-dir", cacheDir, "--browser", "netscape")
	assert.Error(t, err)
}

func TestCacheDirFromEnvironment(t *testing.T) {
	cacheDir := filepath.Join(t.TempDir(), "from-env")
	t.Setenv("BROWSERFORGE_CACHE_DIR", cacheDir)

	_, err := run(t, "clear-cache")
	require.NoError(t, err)
	assert.DirExists(t, cacheDir)
}

func TestCacheDirFromEnvFile(t *testing.T) {
	cacheDir := filepath.Join(t.TempDir(), "from-dotenv")
	envFile := writeFile(t, ".env", "BROWSERFORGE_CACHE_DIR="+cacheDir+"\n")
	t.Cleanup(func() { os.Unsetenv("BROWSERFORGE_CACHE_DIR") })

	cmd := newRootCmd()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetArgs([]string{"clear-cache", "--env-file", envFile})
	require.NoError(t, cmd.Execute())
	assert.DirExists(t, cacheDir)
}

func TestCheckDriverCommand(t *testing.T) {
	out, err := run(t, "check-driver", "--cache-dir", t.TempDir(), "--browser", "firefox")
	require.NoError(t, err)
	assert.Contains(t, out, "Checking firefox driver...")
	assert.Contains(t, out, "Driver not available")
}

func TestSystemInfoCommand(t *testing.T) {
	out, err := run(t, "system-info")
	require.NoError(t, err)
	assert.Contains(t, out, "System Information:")
	assert.Contains(t, out, "Browsers:")

	out, err = run(t, "system-info", "--json")
	require.NoError(t, err)
	var info map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(out), &info))
	assert.NotEmpty(t, info["os"])
}

const proxyList = `# test pool
http://a.local:8080
http://b.local:8080
not a proxy
socks5://c.local:1080
`

func TestProxyStatsCommand(t *testing.T) {
	path := writeFile(t, "proxies.txt", proxyList)

	out, err := run(t, "proxy", "stats", path, "--picks", "4")
	require.NoError(t, err)
	assert.Contains(t, out, "Rotating over 3 proxies (round-robin)")
	assert.Contains(t, out, "  1  a.local:8080")
	assert.Contains(t, out, "  4  a.local:8080")
	assert.Regexp(t, `a\.local:8080\s+2\s+0`, out)
}

func TestProxyStatsCommandRoutesAroundFailures(t *testing.T) {
	path := writeFile(t, "proxies.txt", proxyList)

	out, err := run(t, "proxy", "stats", path, "--picks", "5", "--fail", "a.local:8080", "--max-failures", "1")
	require.NoError(t, err)
	assert.Equal(t, 1, strings.Count(out, "a.local:8080 ")-1, "picked once, then skipped")
	assert.Regexp(t, `a\.local:8080\s+1\s+1`, out)
}

func TestProxyStatsCommandMetrics(t *testing.T) {
	path := writeFile(t, "proxies.txt", proxyList)

	out, err := run(t, "proxy", "stats", path, "--picks", "3", "--metrics")
	require.NoError(t, err)
	assert.Contains(t, out, `browserforge_proxy_usage_total{endpoint="b.local:8080"} 1`)
	assert.Contains(t, out, `browserforge_proxy_failures{endpoint="c.local:1080"} 0`)
}

func TestProxyStatsCommandRejectsUnknownStrategy(t *testing.T) {
	path := writeFile(t, "proxies.txt", proxyList)

	_, err := run(t, "proxy", "stats", path, "--strategy", "fastest")
	require.Error(t, err)
	assert.True(t, forgeerr.HasCode(err, forgeerr.CodeInvalidConfig))
}

func TestProxyCheckCommand(t *testing.T) {
	target := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer target.Close()

	// Plain HTTP requests through a forward proxy arrive as absolute-URI
	// requests, so answering 200 is enough to act as a working proxy.
	fwd := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer fwd.Close()

	path := writeFile(t, "proxies.txt", fwd.URL+"\nhttp://127.0.0.1:1\n")
	output := filepath.Join(t.TempDir(), "working.txt")

	out, err := run(t, "proxy", "check", path, "--target", target.URL, "--timeout", "2s", "--output", output)
	require.NoError(t, err)
	assert.Contains(t, out, "1 of 2 proxies working")

	data, err := os.ReadFile(output)
	require.NoError(t, err)
	assert.Equal(t, fwd.URL+"\n", string(data))
}

func TestProxyCheckCommandEmptyList(t *testing.T) {
	path := writeFile(t, "proxies.txt", "# nothing here\n")

	_, err := run(t, "proxy", "check", path)
	require.Error(t, err)
	assert.True(t, forgeerr.HasCode(err, forgeerr.CodeProxyList))
}
