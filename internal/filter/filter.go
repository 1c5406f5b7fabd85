// Package filter decides which directory entries the walker records,
// implementing spec.md §4.3. Rules are evaluated cheapest-first; the
// freshness test against the Watermark Cell is the most expensive (it reads
// an extended attribute) and is always evaluated last, so a hidden or
// swap file is rejected before that attribute lookup ever happens.
package filter

import (
	"path/filepath"
	"strings"
)

// Freshness reports whether path (a directory, regular file, or symlink) is
// newer than the current watermark. Implemented by *watermark.Cell.
type Freshness interface {
	IsNewer(path string, isSymlink bool) bool
}

// Filter holds the ignore rules from config and the freshness oracle they
// defer to.
type Filter struct {
	IgnoreHidden  bool
	IgnoreWinLock bool
	IgnoreVimSwap bool
	Fresh         Freshness
}

// New returns a Filter wired to fresh for its freshness test.
func New(ignoreHidden, ignoreWinLock, ignoreVimSwap bool, fresh Freshness) *Filter {
	return &Filter{
		IgnoreHidden:  ignoreHidden,
		IgnoreWinLock: ignoreWinLock,
		IgnoreVimSwap: ignoreVimSwap,
		Fresh:         fresh,
	}
}

// Ignore reports whether path should be skipped by the walker. isSymlink
// selects the no-follow attribute read used by the freshness test.
func (f *Filter) Ignore(path string, isSymlink bool) bool {
	name := filepath.Base(path)

	if f.IgnoreHidden && strings.HasPrefix(name, ".") {
		return true
	}
	if f.IgnoreWinLock && strings.HasPrefix(name, "~$") {
		return true
	}
	if f.IgnoreVimSwap && strings.HasPrefix(name, ".") {
		ext := filepath.Ext(name)
		if ext == ".swp" || ext == ".swpx" {
			return true
		}
	}

	// Most expensive check last: an extended-attribute read per entry.
	return !f.Fresh.IsNewer(path, isSymlink)
}
