// Package storage defines the library file-system abstraction.
package storage

import (
	"io"
	"io/fs"
)

// Provider is the interface for document file operations. All paths are
// slash-separated and relative to the library root.
type Provider interface {
	// Root returns the absolute library root directory.
	Root() string
	// FS returns a read-only view of the library tree.
	FS() fs.FS
	// Stat returns file info for path.
	Stat(path string) (fs.FileInfo, error)
	// Open opens path for reading and seeking.
	Open(path string) (io.ReadSeekCloser, fs.FileInfo, error)
	// WriteStream atomically writes everything read from r to path and
	// returns the number of bytes written.
	WriteStream(path string, r io.Reader) (int64, error)
	// Delete removes the file at path.
	Delete(path string) error
	// Move renames oldPath to newPath.
	Move(oldPath, newPath string) error
}
