package record

import (
	"context"
	"path"

	"github.com/charmed-kubernetes/jenkins-sub000/errors"
	"github.com/charmed-kubernetes/jenkins-sub000/fs"
)

// Local keeps records as files under a directory of a filesystem.
type Local struct {
	fs   fs.Filesystem
	root string
}

var _ Store = (*Local)(nil)

// NewLocal returns a Local store rooted at root.
func NewLocal(fsys fs.Filesystem, root string) *Local {
	return &Local{fs: fsys, root: root}
}

// Get implements Store.
func (l *Local) Get(_ context.Context, key string) (*Record, error) {
	p := path.Join(l.root, key)
	ok, err := l.fs.Exists(p)
	if err != nil {
		return nil, errors.Wrapf(err, errors.CodeInternal, "failed to stat %s", p)
	}
	if !ok {
		return nil, notFound(key)
	}
	data, err := l.fs.ReadFile(p)
	if err != nil {
		return nil, errors.Wrapf(err, errors.CodeInternal, "failed to read %s", p)
	}
	return decode(key, data)
}

// Put implements Store.
func (l *Local) Put(_ context.Context, rec *Record) error {
	data, err := encode(rec)
	if err != nil {
		return err
	}
	p := path.Join(l.root, rec.Key)
	if err := l.fs.MkdirAll(path.Dir(p), 0o755); err != nil {
		return errors.Wrapf(err, errors.CodeInternal, "failed to create %s", path.Dir(p))
	}
	if err := l.fs.WriteFile(p, data, 0o644); err != nil {
		return errors.Wrapf(err, errors.CodeInternal, "failed to write %s", p)
	}
	return nil
}
