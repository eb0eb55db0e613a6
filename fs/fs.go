// Package fs defines the filesystem abstraction used for checkouts, build
// outputs and the local run record store. The billy subpackage provides OS
// and in-memory implementations.
package fs

import (
	"os"
)

// Filesystem is the set of filesystem operations the release engine needs.
// Paths use forward slashes.
type Filesystem interface {
	Exists(path string) (bool, error)
	MkdirAll(path string, perm os.FileMode) error
	Open(name string) (File, error)
	ReadDir(dirname string) ([]os.FileInfo, error)
	ReadFile(path string) ([]byte, error)
	// RemoveAll clears a job or checkout directory. A missing path is not
	// an error.
	RemoveAll(path string) error
	Stat(name string) (os.FileInfo, error)
	// WriteFile creates missing parent directories.
	WriteFile(filename string, data []byte, perm os.FileMode) error
}
