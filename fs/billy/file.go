package billy

import (
	"errors"
	"fmt"
	"io"
	"io/fs"

	"github.com/go-git/go-billy/v5"
)

// File adapts a billy.File to fs.File. Errors other than io.EOF carry the
// file name.
type File struct {
	file billy.File
	fs   *FS
}

func (f *File) Close() error {
	return f.wrap("close", f.file.Close())
}

func (f *File) Name() string {
	return f.file.Name()
}

func (f *File) Read(p []byte) (int, error) {
	n, err := f.file.Read(p)
	if errors.Is(err, io.EOF) {
		return n, io.EOF
	}
	return n, f.wrap("read", err)
}

// Stat goes through the owning filesystem; billy files have no Stat.
func (f *File) Stat() (fs.FileInfo, error) {
	info, err := f.fs.Stat(f.file.Name())
	if err != nil {
		return nil, f.wrap("stat", err)
	}
	return info, nil
}

func (f *File) Write(p []byte) (int, error) {
	n, err := f.file.Write(p)
	return n, f.wrap("write", err)
}

func (f *File) wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("billy: %s %q: %w", op, f.file.Name(), err)
}
