// Package snapshot manages the point-in-time, read-only views the crawler
// walks instead of the live tree, so that a directory mutated mid-walk can
// never produce a torn file list. See spec.md §4.2.
package snapshot

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/zenjabba/cephgeorep/internal/rctime"
)

// Handle identifies an open snapshot: its filesystem path and the watermark
// it was taken against.
type Handle struct {
	Path   string
	Rctime rctime.Time
}

// Create takes a snapshot of basePath at rc and returns a Handle pointing at
// it. The snapshot is addressed by a name unique to this process and
// watermark, `<basePath>/.snap/<pid>snapshot<rctime>`, so concurrent crawler
// instances (or a restart mid-cycle) never collide.
func Create(basePath string, rc rctime.Time, logger *slog.Logger) (Handle, error) {
	name := fmt.Sprintf("%dsnapshot%s", os.Getpid(), rc.String())
	path := filepath.Join(basePath, ".snap", name)

	logger.Debug("creating snapshot", slog.String("path", path))
	if err := os.MkdirAll(path, 0o755); err != nil {
		return Handle{}, fmt.Errorf("snapshot: create %q: %w", path, err)
	}
	return Handle{Path: path, Rctime: rc}, nil
}

// Destroy removes the snapshot directory. CephFS treats an rmdir under
// .snap/ as the snapshot-deletion operation; a plain directory tree has
// nothing left to remove once the crawl has finished reading from it.
func Destroy(h Handle, logger *slog.Logger) error {
	logger.Debug("removing snapshot", slog.String("path", h.Path))
	if err := os.Remove(h.Path); err != nil {
		return fmt.Errorf("snapshot: destroy %q: %w", h.Path, err)
	}
	return nil
}
