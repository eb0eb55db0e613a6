package fs

import "io/fs"

// File is an open file. Build outputs are sniffed through it and run
// records are written through it.
type File interface {
	Close() error
	Name() string
	Read(p []byte) (n int, err error)
	Stat() (fs.FileInfo, error)
	Write(p []byte) (n int, err error)
}
