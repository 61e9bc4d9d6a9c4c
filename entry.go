// Package entryfs contains core domain types and interfaces for a hierarchical,
// callback-based storage namespace and the operations chained against it.
package entryfs

import (
	"strings"
	"time"
)

// EntryKind valid kinds are DirectoryKind and FileKind
type EntryKind int

const (
	DirectoryKind EntryKind = iota + 1
	FileKind
)

func (k EntryKind) String() string {
	switch k {
	case DirectoryKind:
		return "dir"
	case FileKind:
		return "file"
	default:
		return "unknown"
	}
}

// Entry is a handle to a directory or file node within a storage namespace.
// Handles are only ever produced by a [Storage]; existence is derived from
// the outcome of queries against it, never stored.
type Entry interface {
	// Name returns the last path component ("" for the root)
	Name() string

	// FullPath returns the absolute slash-separated path from the namespace
	// root, i.e. "/test/file.txt". The root is "/".
	FullPath() string

	Kind() EntryKind

	// URL returns the entry location including the storage root URL
	URL() string
}

// IsDir reports whether e is a directory handle
func IsDir(e Entry) bool {
	return e != nil && e.Kind() == DirectoryKind
}

// IsFile reports whether e is a file handle
func IsFile(e Entry) bool {
	return e != nil && e.Kind() == FileKind
}

// RelPath returns the entry path relative to the namespace root, i.e.
// "test/file.txt" for "/test/file.txt". The root returns "".
func RelPath(e Entry) string {
	return strings.TrimPrefix(e.FullPath(), "/")
}

// CreateOptions controls lookups that may create the entry
type CreateOptions struct {
	// Create a missing entry instead of failing with NotFound
	Create bool
	// Exclusive fails with PathExists if the entry already exists (only with Create)
	Exclusive bool
}

// Metadata is the information available for any entry
type Metadata struct {
	Size         int64
	LastModified time.Time
}

// File is a point-in-time snapshot of a file entry's content used as
// the input of a [FileReader]
type File struct {
	Name         string
	FullPath     string
	Type         string // MIME type derived from the name; "" if unknown
	Size         int64
	LastModified time.Time
	Data         []byte
}
