package billy

import (
	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/osfs"
)

// HostFS is a billy.Filesystem over the host filesystem that accepts
// absolute paths. The CLI uses it for work roots given on the command line.
type HostFS struct {
	osfs.ChrootOS
}

// Chroot returns a new filesystem rooted at the provided path.
//
//nolint:ireturn // billy.Filesystem is an interface; signature is dictated by upstream.
func (h *HostFS) Chroot(path string) (billy.Filesystem, error) {
	return osfs.New(path), nil
}

// Root returns the root path for this filesystem.
func (h *HostFS) Root() string {
	return "/"
}

// NewHostFS creates a filesystem that resolves paths like the host does.
func NewHostFS() *FS {
	return &FS{
		fs: &HostFS{},
	}
}
