package watermark

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/zenjabba/cephgeorep/internal/rctime"
)

// FlatFileStore is a human-readable, single-scalar [Store] backed by a plain
// text file holding the "sec.nsec" form (see rctime.Time.String). Save writes
// to a temp file in the same directory and renames it over the target, so a
// crash mid-write can never leave a torn or partially-written watermark.
type FlatFileStore struct {
	path string
}

// OpenFlatFileStore returns a FlatFileStore for the file at path. The file
// need not exist yet; Load returns rctime.Zero in that case.
func OpenFlatFileStore(path string) (*FlatFileStore, error) {
	if path == "" {
		return nil, fmt.Errorf("watermark: flatfile: empty path")
	}
	return &FlatFileStore{path: path}, nil
}

// Load implements Store.
func (f *FlatFileStore) Load() (rctime.Time, error) {
	data, err := os.ReadFile(f.path)
	if os.IsNotExist(err) {
		return rctime.Zero, nil
	}
	if err != nil {
		return rctime.Time{}, fmt.Errorf("watermark: flatfile load %q: %w", f.path, err)
	}
	t, err := rctime.Parse(string(data))
	if err != nil {
		return rctime.Time{}, fmt.Errorf("watermark: flatfile load %q: %w", f.path, err)
	}
	return t, nil
}

// Save implements Store using write-temp-then-rename for atomicity.
func (f *FlatFileStore) Save(t rctime.Time) error {
	dir := filepath.Dir(f.path)
	tmp, err := os.CreateTemp(dir, ".last_rctime-*.tmp")
	if err != nil {
		return fmt.Errorf("watermark: flatfile create temp: %w", err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.WriteString(t.String()); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("watermark: flatfile write temp: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("watermark: flatfile close temp: %w", err)
	}
	if err := os.Rename(tmpPath, f.path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("watermark: flatfile rename: %w", err)
	}
	return nil
}

// Close implements Store; the flat-file store holds no open resources.
func (f *FlatFileStore) Close() error {
	return nil
}
