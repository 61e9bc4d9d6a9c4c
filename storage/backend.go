// Package storage turns a synchronous [Backend] into the asynchronous,
// callback-based [entryfs.Storage] capability.
//
// Every operation runs on the storage's event loop: the backend call and the
// success or failure callback execute together as one loop task, in the order
// the operations were started. Callbacks must not block on other operations of
// the same storage.
package storage

import (
	"time"

	"github.com/brettbedarf/entryfs"
)

// Info describes a backend node
type Info struct {
	Name    string
	Kind    entryfs.EntryKind
	Size    int64
	ModTime time.Time
}

// Backend is a synchronous hierarchical store addressed by absolute,
// cleaned, slash-separated paths ("/" is the root). Failures must be
// *entryfs.OperationError values so their kind survives to the caller.
type Backend interface {
	Stat(p string) (Info, error)

	// Mkdir creates a directory whose parent exists; PathExists if p exists
	Mkdir(p string) error
	// CreateFile creates an empty file whose parent exists; PathExists if p exists
	CreateFile(p string) error

	ReadFile(p string) ([]byte, error)
	// WriteAt writes data at off, zero-filling any gap, and returns the new file length
	WriteAt(p string, off int64, data []byte) (int64, error)
	Truncate(p string, size int64) error

	// Copy duplicates the subtree at src to dst; dst must not exist
	Copy(src, dst string) error
	// Rename moves the subtree at src to dst; dst must not exist
	Rename(src, dst string) error

	// Remove deletes a file or an empty directory
	Remove(p string) error
	RemoveAll(p string) error

	// List returns the children of a directory sorted by name
	List(p string) ([]Info, error)
}
