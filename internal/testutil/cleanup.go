// Package testutil provides fixtures and helpers shared by package tests and
// examples.
package testutil

import "os"

// RemoveAll removes the path and any children. Errors are ignored.
//
// Usage:
//
//	defer testutil.RemoveAll(tmpDir)
func RemoveAll(path string) { _ = os.RemoveAll(path) }
