package browser

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/entrhq/browserforge/pkg/config"
	"github.com/entrhq/browserforge/pkg/drivers"
	"github.com/entrhq/browserforge/pkg/forgeerr"
	"github.com/entrhq/browserforge/pkg/platform"
)

type fakeResolver struct {
	calls []string
}

func (r *fakeResolver) GetPath(_ context.Context, b platform.Browser, version string) (string, error) {
	r.calls = append(r.calls, string(b)+"@"+version)
	return "/cache/" + string(b), nil
}

func TestResolve(t *testing.T) {
	tests := []struct {
		name   string
		cfg    func() *config.DriverConfig
		want   string
		calls  int
		errKey string
	}{
		{"explicit driver path", func() *config.DriverConfig {
			c := config.DefaultDriverConfig(platform.Chrome)
			c.DriverPath = "/opt/chrome"
			return c
		}, "/opt/chrome", 0, ""},
		{"binary location for chromium family", func() *config.DriverConfig {
			c := config.DefaultDriverConfig(platform.Edge)
			c.BrowserOptions.BinaryLocation = "/opt/msedge"
			return c
		}, "/opt/msedge", 0, ""},
		{"cache lookup", func() *config.DriverConfig {
			c := config.DefaultDriverConfig(platform.Firefox)
			c.DriverVersion = "1.52"
			return c
		}, "/cache/firefox", 1, ""},
		{"auto download off still resolves", func() *config.DriverConfig {
			c := config.DefaultDriverConfig(platform.Chrome)
			c.BrowserOptions.AutoDownload = false
			return c
		}, "/cache/chrome", 1, ""},
		{"auto download off for system driver", func() *config.DriverConfig {
			c := config.DefaultDriverConfig(platform.Safari)
			c.BrowserOptions.AutoDownload = false
			return c
		}, "/cache/safari", 1, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resolver := &fakeResolver{}
			l := NewLauncher(resolver, nil)

			got, err := l.Resolve(context.Background(), tt.cfg())
			if tt.errKey != "" {
				require.Error(t, err)
				assert.True(t, forgeerr.HasCode(err, tt.errKey))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Len(t, resolver.calls, tt.calls)
		})
	}
}

// countingDownloader writes one file per download into an afero fs.
type countingDownloader struct {
	fs    afero.Fs
	calls int
}

func (d *countingDownloader) Supports(b platform.Browser) bool { return b == platform.Chrome }

func (d *countingDownloader) Download(_ context.Context, b platform.Browser, version, dir string) (string, string, error) {
	d.calls++
	path := filepath.Join(dir, string(b), "chrome")
	if err := afero.WriteFile(d.fs, path, []byte(version), 0755); err != nil {
		return "", "", err
	}
	return path, "1234", nil
}

func TestResolveThroughDriverCache(t *testing.T) {
	fs := afero.NewMemMapFs()
	dl := &countingDownloader{fs: fs}
	mgr, err := drivers.NewManager("/cache", drivers.WithFs(fs), drivers.WithDownloader(dl))
	require.NoError(t, err)

	cfg := config.DefaultDriverConfig(platform.Chrome)
	cfg.BrowserOptions.AutoDownload = false
	cfg.BrowserOptions.DownloadDirectory = "/downloads"
	l := NewLauncher(mgr, nil)

	first, err := l.Resolve(context.Background(), cfg)
	require.NoError(t, err)
	assert.Equal(t, 1, dl.calls)

	second, err := l.Resolve(context.Background(), cfg)
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Equal(t, 1, dl.calls, "second resolve is a cache hit")

	// The flag keeps its job of suppressing the download prompt
	assert.Equal(t, true, ChromiumPrefs(cfg.BrowserOptions)["download.prompt_for_download"])
}

func TestLaunchError(t *testing.T) {
	t.Run("forge errors pass through", func(t *testing.T) {
		cause := forgeerr.Config("unknown mobile device: Nokia 3310", "Use one of the built-in devices").
			WithCode(forgeerr.CodeInvalidConfig)

		err := launchError(platform.Chrome, fmt.Errorf("configuring page: %w", cause))
		assert.True(t, forgeerr.HasCode(err, forgeerr.CodeInvalidConfig))
		assert.False(t, forgeerr.HasCode(err, forgeerr.CodeBrowserLaunch))
		assert.False(t, forgeerr.IsRetryable(err))
	})

	t.Run("backend failures are launch errors", func(t *testing.T) {
		cause := errors.New("chrome exited with status 1")

		err := launchError(platform.Chrome, cause)
		assert.True(t, forgeerr.Is(err, forgeerr.KindConfig))
		assert.True(t, forgeerr.HasCode(err, forgeerr.CodeBrowserLaunch))
		assert.ErrorIs(t, err, cause)
		assert.Contains(t, err.Error(), "failed to launch chrome")
	})
}

func TestResolveWithoutCache(t *testing.T) {
	l := NewLauncher(nil, nil)
	_, err := l.Resolve(context.Background(), config.DefaultDriverConfig(platform.Chrome))
	assert.True(t, forgeerr.HasCode(err, forgeerr.CodeDriverNotFound))
}

func TestLaunchRejectsInvalidConfig(t *testing.T) {
	l := NewLauncher(&fakeResolver{}, nil)
	cfg := config.DefaultDriverConfig(platform.Chrome)
	cfg.LogLevel = "NOISY"

	_, err := l.Launch(context.Background(), cfg)
	assert.True(t, forgeerr.Is(err, forgeerr.KindConfig))
}

func TestPlaywrightDir(t *testing.T) {
	assert.Equal(t, "/cache/firefox", playwrightDir(config.DefaultDriverConfig(platform.Firefox), "/cache/firefox"))
	assert.Empty(t, playwrightDir(config.DefaultDriverConfig(platform.Safari), "/usr/bin/safaridriver"))
}
