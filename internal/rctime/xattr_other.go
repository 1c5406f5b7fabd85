// Stub implementation of xattr access for platforms without the CephFS
// recursive change-time attribute. Per spec.md §1, filesystems lacking this
// feature are unsupported; this file only exists so the package builds on
// every GOOS, returning an explicit error at call time rather than failing
// the whole module at compile time.
//
//go:build !linux

package rctime

import (
	"fmt"
	"runtime"
)

// Read always fails on non-Linux platforms: the recursive change-time
// extended attribute this package reads is exposed only via the Linux xattr
// syscalls against a CephFS mount.
func Read(path, attrName string) (Time, error) {
	return Time{}, fmt.Errorf("rctime: recursive change-time attribute is not supported on %s", runtime.GOOS)
}

// ReadLink always fails on non-Linux platforms; see Read.
func ReadLink(path, attrName string) (Time, error) {
	return Time{}, fmt.Errorf("rctime: recursive change-time attribute is not supported on %s", runtime.GOOS)
}
