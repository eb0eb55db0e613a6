// Package fsbridge lets go-git store repositories on the engine's
// fs.Filesystem, so checkouts and job directories share one filesystem.
package fsbridge

import (
	"fmt"

	"github.com/go-git/go-billy/v5"

	"github.com/charmed-kubernetes/jenkins-sub000/fs"
	fsb "github.com/charmed-kubernetes/jenkins-sub000/fs/billy"
)

// ToBillyFilesystem returns the billy.Filesystem behind fsys, which must be
// a *billy.FS from the fs/billy package.
//
//nolint:ireturn // returns interface as required by billy.Filesystem interface
func ToBillyFilesystem(fsys fs.Filesystem) (billy.Filesystem, error) {
	billyFS, ok := fsys.(*fsb.FS)
	if !ok {
		return nil, fmt.Errorf("filesystem must be a billy.FS from fs/billy package, got %T", fsys)
	}

	return billyFS.Raw(), nil
}
