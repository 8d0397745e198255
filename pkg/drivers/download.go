package drivers

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"strconv"

	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/utils"
	"github.com/playwright-community/playwright-go"

	"github.com/entrhq/browserforge/pkg/forgeerr"
	"github.com/entrhq/browserforge/pkg/platform"
)

// Downloader fetches a driver into dir and reports where it ended up and
// which version it is.
type Downloader interface {
	Supports(browser platform.Browser) bool
	Download(ctx context.Context, browser platform.Browser, version, dir string) (path, reportedVersion string, err error)
}

// RodDownloader fetches chromium snapshots through rod's launcher. A numeric
// version selects that snapshot revision; anything else uses rod's default.
type RodDownloader struct{}

func (RodDownloader) Supports(browser platform.Browser) bool {
	return browser == platform.Chrome || browser == platform.Chromium
}

func (RodDownloader) Download(ctx context.Context, browser platform.Browser, version, dir string) (string, string, error) {
	b := launcher.NewBrowser()
	b.Context = ctx
	b.RootDir = filepath.Join(dir, string(browser))
	b.Logger = utils.LoggerQuiet
	if rev, err := strconv.Atoi(version); err == nil && rev > 0 {
		b.Revision = rev
	}

	path, err := b.Get()
	if err != nil {
		return "", "", forgeerr.Retryable(fmt.Sprintf("failed to download %s", browser), err).
			WithCode(forgeerr.CodeDriverDownload).
			With("revision", b.Revision)
	}
	return path, strconv.Itoa(b.Revision), nil
}

// PlaywrightDownloader installs the playwright driver plus the firefox build
// it drives. The recorded path is the driver directory.
type PlaywrightDownloader struct{}

func (PlaywrightDownloader) Supports(browser platform.Browser) bool {
	return browser == platform.Firefox
}

func (PlaywrightDownloader) Download(ctx context.Context, browser platform.Browser, version, dir string) (string, string, error) {
	driverDir := filepath.Join(dir, string(browser))
	opts := &playwright.RunOptions{
		DriverDirectory: driverDir,
		Browsers:        []string{string(browser)},
		Verbose:         false,
		Stdout:          io.Discard,
		Stderr:          io.Discard,
	}

	done := make(chan error, 1)
	go func() { done <- playwright.Install(opts) }()

	select {
	case err := <-done:
		if err != nil {
			return "", "", forgeerr.Retryable(fmt.Sprintf("failed to install playwright %s", browser), err).
				WithCode(forgeerr.CodeDriverDownload)
		}
	case <-ctx.Done():
		return "", "", forgeerr.Retryable(fmt.Sprintf("installing playwright %s interrupted", browser), ctx.Err()).
			WithCode(forgeerr.CodeDriverDownload)
	}

	return driverDir, version, nil
}

// MultiDownloader routes each browser to the first downloader that supports
// it.
type MultiDownloader []Downloader

// NewDefaultDownloader handles chromium-family browsers with rod and firefox
// with playwright.
func NewDefaultDownloader() MultiDownloader {
	return MultiDownloader{RodDownloader{}, PlaywrightDownloader{}}
}

func (m MultiDownloader) Supports(browser platform.Browser) bool {
	return m.pick(browser) != nil
}

func (m MultiDownloader) Download(ctx context.Context, browser platform.Browser, version, dir string) (string, string, error) {
	d := m.pick(browser)
	if d == nil {
		return "", "", forgeerr.Config(
			fmt.Sprintf("automatic driver download not supported for %s", browser), "",
		).WithCode(forgeerr.CodeUnsupportedBrowser)
	}
	return d.Download(ctx, browser, version, dir)
}

func (m MultiDownloader) pick(browser platform.Browser) Downloader {
	for _, d := range m {
		if d.Supports(browser) {
			return d
		}
	}
	return nil
}
