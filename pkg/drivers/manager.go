// Package drivers resolves the executables that the automation backends
// drive, downloading and caching them per browser.
//
// For chromium-family browsers the cached executable is the browser itself,
// driven over the DevTools protocol. For firefox it is the playwright driver
// directory. Safari and Edge are system-provided and never downloaded.
package drivers

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/spf13/afero"

	"github.com/entrhq/browserforge/pkg/forgeerr"
	"github.com/entrhq/browserforge/pkg/logging"
	"github.com/entrhq/browserforge/pkg/platform"
)

// MaxAge is how long a cached driver stays fresh.
const MaxAge = 7 * 24 * time.Hour

// LatestVersion requests whatever version the downloader considers current.
const LatestVersion = "latest"

var debugLog *logging.Logger

func init() {
	var err error
	debugLog, err = logging.NewLogger("drivers")
	if err != nil {
		debugLog.Warnf("Failed to initialize drivers logger, using stderr fallback: %v", err)
	}
}

// Manager resolves driver paths, consulting the on-disk cache before
// downloading. Its methods are safe for concurrent use.
type Manager struct {
	mu         sync.Mutex
	dir        string
	fs         afero.Fs
	store      *metadataStore
	downloader Downloader
	lookup     func(platform.Browser) string
	now        func() time.Time
	maxAge     time.Duration
}

// Option configures a Manager.
type Option func(*Manager)

// WithFs replaces the filesystem, mainly for tests.
func WithFs(fs afero.Fs) Option {
	return func(m *Manager) { m.fs = fs }
}

// WithDownloader replaces the download provider.
func WithDownloader(d Downloader) Option {
	return func(m *Manager) { m.downloader = d }
}

// WithSystemLookup replaces the lookup used for system-provided browsers.
func WithSystemLookup(lookup func(platform.Browser) string) Option {
	return func(m *Manager) { m.lookup = lookup }
}

// WithClock replaces the time source used for freshness.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// WithMaxAge overrides the freshness window.
func WithMaxAge(d time.Duration) Option {
	return func(m *Manager) { m.maxAge = d }
}

// NewManager creates a manager rooted at dir. An empty dir uses the per-user
// cache directory. Unreadable metadata is discarded and the cache starts
// empty.
func NewManager(dir string, opts ...Option) (*Manager, error) {
	if dir == "" {
		cacheDir, err := platform.CacheDir()
		if err != nil {
			return nil, forgeerr.Internal("failed to resolve cache directory", err)
		}
		dir = filepath.Join(cacheDir, "drivers")
	}

	m := &Manager{
		dir:    dir,
		fs:     afero.NewOsFs(),
		lookup: platform.FindSystemDriver,
		now:    time.Now,
		maxAge: MaxAge,
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.downloader == nil {
		m.downloader = NewDefaultDownloader()
	}

	if err := m.fs.MkdirAll(dir, 0750); err != nil {
		return nil, forgeerr.Internal(fmt.Sprintf("failed to create cache directory %s", dir), err)
	}

	m.store = newMetadataStore(m.fs, dir)
	if err := m.store.load(); err != nil {
		debugLog.Warnf("Ignoring unreadable driver metadata in %s: %v", dir, err)
		m.store.clear()
	}

	return m, nil
}

// Dir returns the cache directory.
func (m *Manager) Dir() string {
	return m.dir
}

// GetPath returns the driver for browser, downloading it when the cache has no
// fresh entry for the requested version. An empty version or "latest" accepts
// any cached version.
func (m *Manager) GetPath(ctx context.Context, browser platform.Browser, version string) (string, error) {
	if browser.IsSystemProvided() {
		return m.systemDriver(browser)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if path, ok := m.cached(browser, version); ok {
		debugLog.Debugf("Using cached %s driver at %s", browser, path)
		return path, nil
	}

	if !m.downloader.Supports(browser) {
		return "", forgeerr.Config(
			fmt.Sprintf("automatic driver download not supported for %s", browser),
			fmt.Sprintf("Install %s manually and set driver_path", browser),
		).WithCode(forgeerr.CodeUnsupportedBrowser)
	}

	debugLog.Infof("Downloading %s driver (version %s) into %s", browser, displayVersion(version), m.dir)
	path, reported, err := m.downloader.Download(ctx, browser, version, m.dir)
	if err != nil {
		return "", err
	}

	rec := Record{
		Browser:     browser,
		Version:     recordedVersion(version, reported),
		Path:        path,
		LastUpdated: m.now(),
	}
	m.store.put(rec)
	if err := m.store.save(); err != nil {
		debugLog.Warnf("Failed to persist driver metadata: %v", err)
	}

	return path, nil
}

// cached returns the recorded path when it matches version, is fresh and
// still exists.
func (m *Manager) cached(browser platform.Browser, version string) (string, bool) {
	rec, ok := m.store.get(browser)
	if !ok {
		return "", false
	}
	if isSpecific(version) && rec.Version != version {
		return "", false
	}
	if rec.Age(m.now()) > m.maxAge {
		return "", false
	}
	if exists, _ := afero.Exists(m.fs, rec.Path); !exists || rec.Path == "" {
		return "", false
	}
	return rec.Path, true
}

func (m *Manager) systemDriver(browser platform.Browser) (string, error) {
	if path := m.lookup(browser); path != "" {
		return path, nil
	}

	suggestion := fmt.Sprintf("Install %s or set driver_path in the configuration", browser)
	if browser == platform.Safari {
		suggestion = "safaridriver ships with macOS. Enable it with: sudo safaridriver --enable"
	}
	return "", forgeerr.Config(fmt.Sprintf("%s driver not found on this system", browser), suggestion).
		WithCode(forgeerr.CodeDriverNotFound).
		With("browser", string(browser))
}

// Info returns the cache record for browser.
func (m *Manager) Info(browser platform.Browser) (Record, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.store.get(browser)
}

// Records returns every cache record sorted by browser.
func (m *Manager) Records() []Record {
	m.mu.Lock()
	defer m.mu.Unlock()

	recs := make([]Record, 0, len(m.store.records))
	for _, rec := range m.store.records {
		recs = append(recs, rec)
	}
	sort.Slice(recs, func(i, j int) bool { return recs[i].Browser < recs[j].Browser })
	return recs
}

// IsAvailable reports whether a driver can be resolved without user action:
// system-provided and present, cached and fresh, or downloadable.
func (m *Manager) IsAvailable(browser platform.Browser) bool {
	if browser.IsSystemProvided() {
		return m.lookup(browser) != ""
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.cached(browser, ""); ok {
		return true
	}
	return m.downloader.Supports(browser)
}

// Clear removes the entry for browser and, best effort, its files. It
// returns 1 if an entry existed and 0 otherwise.
func (m *Manager) Clear(browser platform.Browser) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.store.get(browser)
	if !ok {
		return 0
	}

	if root, ok := m.cacheEntry(rec.Path); ok {
		if err := m.fs.RemoveAll(root); err != nil {
			debugLog.Warnf("Failed to delete cached %s driver at %s: %v", browser, root, err)
		}
	}

	m.store.remove(browser)
	if err := m.store.save(); err != nil {
		debugLog.Warnf("Failed to persist driver metadata: %v", err)
	}
	return 1
}

// ClearAll empties the cache directory and drops every entry. It returns
// the number of entries that were recorded.
func (m *Manager) ClearAll() (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entries, err := afero.ReadDir(m.fs, m.dir)
	if err != nil && !os.IsNotExist(err) {
		return 0, forgeerr.Internal("failed to list cache directory", err)
	}
	for _, entry := range entries {
		p := filepath.Join(m.dir, entry.Name())
		if err := m.fs.RemoveAll(p); err != nil {
			debugLog.Warnf("Failed to delete %s: %v", p, err)
		}
	}

	n := m.store.clear()
	if err := m.store.save(); err != nil {
		return n, forgeerr.Internal("failed to persist driver metadata", err)
	}
	return n, nil
}

// cacheEntry returns the top-level entry of the cache directory that holds
// path. Paths outside the cache directory are never deleted.
func (m *Manager) cacheEntry(path string) (string, bool) {
	if path == "" {
		return "", false
	}
	rel, err := filepath.Rel(m.dir, path)
	if err != nil || rel == "." || strings.HasPrefix(rel, "..") {
		return "", false
	}
	first := strings.SplitN(filepath.ToSlash(rel), "/", 2)[0]
	if first == MetadataFile {
		return "", false
	}
	return filepath.Join(m.dir, first), true
}

func isSpecific(version string) bool {
	return version != "" && version != LatestVersion
}

func displayVersion(version string) string {
	if isSpecific(version) {
		return version
	}
	return LatestVersion
}

// recordedVersion prefers the requested version so later lookups for the same
// request hit the cache.
func recordedVersion(requested, reported string) string {
	if isSpecific(requested) {
		return requested
	}
	if reported != "" {
		return reported
	}
	return LatestVersion
}
