package drivers

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/afero"

	"github.com/entrhq/browserforge/pkg/platform"
)

// MetadataFile is the name of the cache index inside the cache directory.
const MetadataFile = "metadata.json"

// Record describes one cached driver.
type Record struct {
	Browser     platform.Browser `json:"-"`
	Version     string           `json:"version"`
	Path        string           `json:"path"`
	LastUpdated time.Time        `json:"last_updated"`
}

// Age returns how long ago the record was written.
func (r Record) Age(now time.Time) time.Duration {
	return now.Sub(r.LastUpdated)
}

// metadataStore persists records as a single JSON object keyed by browser.
// The whole file is rewritten on every save.
type metadataStore struct {
	fs      afero.Fs
	path    string
	records map[platform.Browser]Record
}

func newMetadataStore(fs afero.Fs, dir string) *metadataStore {
	return &metadataStore{
		fs:      fs,
		path:    filepath.Join(dir, MetadataFile),
		records: make(map[platform.Browser]Record),
	}
}

// load replaces the in-memory records with the file contents. A missing file
// is an empty cache.
func (s *metadataStore) load() error {
	s.records = make(map[platform.Browser]Record)

	data, err := afero.ReadFile(s.fs, s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to read metadata: %w", err)
	}

	var raw map[string]Record
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("failed to decode metadata: %w", err)
	}

	for name, rec := range raw {
		rec.Browser = platform.Browser(name)
		s.records[rec.Browser] = rec
	}
	return nil
}

// save writes the records through a temp file and rename.
func (s *metadataStore) save() error {
	if err := s.fs.MkdirAll(filepath.Dir(s.path), 0750); err != nil {
		return fmt.Errorf("failed to create cache directory: %w", err)
	}

	raw := make(map[string]Record, len(s.records))
	for b, rec := range s.records {
		raw[string(b)] = rec
	}

	data, err := json.MarshalIndent(raw, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode metadata: %w", err)
	}

	tempPath := s.path + ".tmp"
	if err := afero.WriteFile(s.fs, tempPath, data, 0600); err != nil {
		_ = s.fs.Remove(tempPath)
		return fmt.Errorf("failed to write temp metadata file: %w", err)
	}

	if err := s.fs.Rename(tempPath, s.path); err != nil {
		_ = s.fs.Remove(tempPath)
		return fmt.Errorf("failed to rename temp metadata file: %w", err)
	}
	return nil
}

func (s *metadataStore) get(b platform.Browser) (Record, bool) {
	rec, ok := s.records[b]
	return rec, ok
}

func (s *metadataStore) put(rec Record) {
	s.records[rec.Browser] = rec
}

func (s *metadataStore) remove(b platform.Browser) bool {
	if _, ok := s.records[b]; !ok {
		return false
	}
	delete(s.records, b)
	return true
}

func (s *metadataStore) clear() int {
	n := len(s.records)
	s.records = make(map[platform.Browser]Record)
	return n
}
