package watermark_test

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/zenjabba/cephgeorep/internal/rctime"
	"github.com/zenjabba/cephgeorep/internal/watermark"
)

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

func openMemSQLiteStore(t *testing.T) *watermark.SQLiteStore {
	t.Helper()
	s, err := watermark.OpenSQLiteStore(":memory:")
	if err != nil {
		t.Fatalf("OpenSQLiteStore(:memory:): %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

// ---------------------------------------------------------------------------
// SQLiteStore
// ---------------------------------------------------------------------------

func TestSQLiteStore_LoadEmpty(t *testing.T) {
	s := openMemSQLiteStore(t)
	got, err := s.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got != rctime.Zero {
		t.Errorf("Load on empty store = %v, want Zero", got)
	}
}

func TestSQLiteStore_SaveLoadRoundTrip(t *testing.T) {
	s := openMemSQLiteStore(t)
	want := rctime.Time{Sec: 1700000000, Nsec: 42}
	if err := s.Save(want); err != nil {
		t.Fatalf("Save: %v", err)
	}
	got, err := s.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got != want {
		t.Errorf("Load = %v, want %v", got, want)
	}
}

func TestSQLiteStore_SaveOverwrites(t *testing.T) {
	s := openMemSQLiteStore(t)
	_ = s.Save(rctime.Time{Sec: 1})
	_ = s.Save(rctime.Time{Sec: 2})
	got, err := s.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got != (rctime.Time{Sec: 2}) {
		t.Errorf("Load after two saves = %v, want {Sec:2}", got)
	}
}

func TestSQLiteStore_FileBacked(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "watermark.db")

	s, err := watermark.OpenSQLiteStore(path)
	if err != nil {
		t.Fatalf("OpenSQLiteStore(%q): %v", path, err)
	}
	if err := s.Save(rctime.Time{Sec: 500}); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	reopened, err := watermark.OpenSQLiteStore(path)
	if err != nil {
		t.Fatalf("reopen OpenSQLiteStore(%q): %v", path, err)
	}
	defer reopened.Close()
	got, err := reopened.Load()
	if err != nil {
		t.Fatalf("Load after reopen: %v", err)
	}
	if got != (rctime.Time{Sec: 500}) {
		t.Errorf("Load after reopen = %v, want {Sec:500}", got)
	}
}

// ---------------------------------------------------------------------------
// FlatFileStore
// ---------------------------------------------------------------------------

func TestFlatFileStore_LoadMissingIsZero(t *testing.T) {
	dir := t.TempDir()
	s, err := watermark.OpenFlatFileStore(filepath.Join(dir, "last_rctime"))
	if err != nil {
		t.Fatalf("OpenFlatFileStore: %v", err)
	}
	got, err := s.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got != rctime.Zero {
		t.Errorf("Load on missing file = %v, want Zero", got)
	}
}

func TestFlatFileStore_SaveLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	s, err := watermark.OpenFlatFileStore(filepath.Join(dir, "last_rctime"))
	if err != nil {
		t.Fatalf("OpenFlatFileStore: %v", err)
	}
	want := rctime.Time{Sec: 1700000001, Nsec: 7}
	if err := s.Save(want); err != nil {
		t.Fatalf("Save: %v", err)
	}
	got, err := s.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got != want {
		t.Errorf("Load = %v, want %v", got, want)
	}
}

func TestFlatFileStore_EmptyPathRejected(t *testing.T) {
	if _, err := watermark.OpenFlatFileStore(""); err == nil {
		t.Error("expected error for empty path")
	}
}

// ---------------------------------------------------------------------------
// Cell
// ---------------------------------------------------------------------------

func TestCell_OpenSeedsFromStore(t *testing.T) {
	s := openMemSQLiteStore(t)
	_ = s.Save(rctime.Time{Sec: 100})

	c, err := watermark.Open(s, "")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if got := c.Rctime(); got != (rctime.Time{Sec: 100}) {
		t.Errorf("Rctime after Open = %v, want {Sec:100}", got)
	}
}

func TestCell_UpdateDoesNotFlush(t *testing.T) {
	s := openMemSQLiteStore(t)
	c, err := watermark.Open(s, "")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	c.Update(rctime.Time{Sec: 200})
	if got := c.Rctime(); got != (rctime.Time{Sec: 200}) {
		t.Errorf("Rctime = %v, want {Sec:200}", got)
	}

	persisted, err := s.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if persisted != rctime.Zero {
		t.Errorf("store was flushed by Update alone: got %v, want Zero", persisted)
	}
}

func TestCell_FlushPersists(t *testing.T) {
	s := openMemSQLiteStore(t)
	c, err := watermark.Open(s, "")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	c.Update(rctime.Time{Sec: 300})
	if err := c.Flush(); err != nil {
		t.Fatalf("Flush: %v", err)
	}

	persisted, err := s.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if persisted != (rctime.Time{Sec: 300}) {
		t.Errorf("Load after Flush = %v, want {Sec:300}", persisted)
	}
}

func TestCell_MaybeFlush_Throttled(t *testing.T) {
	s := openMemSQLiteStore(t)
	c, err := watermark.Open(s, "", watermark.WithFlushInterval(time.Hour))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	c.Update(rctime.Time{Sec: 400})

	flushed, err := c.MaybeFlush()
	if err != nil {
		t.Fatalf("MaybeFlush: %v", err)
	}
	if flushed {
		t.Error("MaybeFlush flushed before the interval elapsed")
	}

	persisted, _ := s.Load()
	if persisted != rctime.Zero {
		t.Errorf("store was flushed despite throttle: got %v", persisted)
	}
}

func TestCell_MaybeFlush_AfterIntervalElapsed(t *testing.T) {
	s := openMemSQLiteStore(t)
	c, err := watermark.Open(s, "", watermark.WithFlushInterval(time.Millisecond))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	c.Update(rctime.Time{Sec: 500})

	time.Sleep(5 * time.Millisecond)

	flushed, err := c.MaybeFlush()
	if err != nil {
		t.Fatalf("MaybeFlush: %v", err)
	}
	if !flushed {
		t.Error("MaybeFlush did not flush after the interval elapsed")
	}

	persisted, _ := s.Load()
	if persisted != (rctime.Time{Sec: 500}) {
		t.Errorf("Load after throttled flush = %v, want {Sec:500}", persisted)
	}
}

func TestCell_CheckForChange_MissingAttrOnRootIsFatal(t *testing.T) {
	s := openMemSQLiteStore(t)
	c, err := watermark.Open(s, "")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	dir := t.TempDir()
	if _, _, err := c.CheckForChange(dir); err == nil {
		t.Error("expected error when the tree root lacks the rctime attribute")
	}
}

func TestCell_IsNewer_MissingAttrOnDescendantIsNotNewer(t *testing.T) {
	s := openMemSQLiteStore(t)
	c, err := watermark.Open(s, "")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	dir := t.TempDir()
	if c.IsNewer(filepath.Join(dir, "missing-attr-file"), false) {
		t.Error("expected IsNewer to return false when the attribute is missing")
	}
}
