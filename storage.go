package entryfs

import "strings"

// Storage is the callback-based storage capability. Every asynchronous
// operation reports exactly one outcome: success or fail is invoked once,
// never both. Failures are *OperationError values.
type Storage interface {
	// Name returns the storage instance name (i.e. "persistent")
	Name() string

	// Root returns the handle of the namespace root directory
	Root() Entry

	// GetDirectory looks up, or with opts.Create creates, the directory at path.
	// path is relative to dir unless it starts with "/".
	GetDirectory(dir Entry, path string, opts CreateOptions, success func(Entry), fail func(error))

	// GetFile looks up, or with opts.Create creates, the file at path.
	// path is relative to dir unless it starts with "/".
	GetFile(dir Entry, path string, opts CreateOptions, success func(Entry), fail func(error))

	GetParent(entry Entry, success func(Entry), fail func(error))
	GetMetadata(entry Entry, success func(Metadata), fail func(error))

	// CreateWriter opens a Writer positioned at the start of file
	CreateWriter(file Entry, success func(Writer), fail func(error))

	// File snapshots the current content of file for use with a FileReader
	File(file Entry, success func(*File), fail func(error))

	// CopyTo copies entry into dest as newName ("" keeps the name)
	CopyTo(entry, dest Entry, newName string, success func(Entry), fail func(error))

	// MoveTo moves entry into dest as newName ("" keeps the name)
	MoveTo(entry, dest Entry, newName string, success func(Entry), fail func(error))

	// Remove deletes a file or an empty directory
	Remove(entry Entry, success func(), fail func(error))
	RemoveRecursively(dir Entry, success func(), fail func(error))

	// CreateReader returns a one-shot listing reader for dir
	CreateReader(dir Entry) DirectoryReader

	// NewFileReader returns a reader that may have one read in flight
	NewFileReader() FileReader
}

// Writer writes to a single file. Write and Truncate only start the
// operation; completion is signalled through the OnWriteEnd handler.
// Starting an operation while another is in flight returns an InvalidState
// error immediately.
type Writer interface {
	Write(data []byte) error
	Truncate(size int64) error
	// Seek moves the write position; negative offsets count from the end
	Seek(offset int64) error
	Abort()

	Position() int64
	Length() int64

	// Handlers replace any previously set handler of the same event
	OnWriteStart(fn func())
	OnWrite(fn func())
	OnError(fn func(err error))
	// OnWriteEnd always fires last; err is nil on success
	OnWriteEnd(fn func(err error))
}

// DirectoryReader lists a directory. The first ReadEntries call returns
// every entry; later calls return an empty batch.
type DirectoryReader interface {
	ReadEntries(success func([]Entry), fail func(error))
}

// ReadMode selects the representation produced by a FileReader
type ReadMode int

const (
	ReadText ReadMode = iota + 1
	ReadDataURL
	ReadArrayBuffer
	ReadBinaryString
)

func (m ReadMode) String() string {
	switch m {
	case ReadText:
		return "text"
	case ReadDataURL:
		return "dataURL"
	case ReadArrayBuffer:
		return "arrayBuffer"
	case ReadBinaryString:
		return "binaryString"
	default:
		return "unknown"
	}
}

// Op returns the name of the FileReader method for the mode, i.e. "readAsText"
func (m ReadMode) Op() string {
	name := m.String()
	return "readAs" + strings.ToUpper(name[:1]) + name[1:]
}

// ReadResult holds the output of a completed read.
// Text is set for every mode except ReadArrayBuffer, which sets Bytes.
type ReadResult struct {
	Mode  ReadMode
	Text  string
	Bytes []byte
}

// FileReader reads a File snapshot in one of four modes. The read methods
// return an InvalidState error immediately if a read is already in flight;
// otherwise the outcome is delivered to the OnLoadEnd handler.
type FileReader interface {
	ReadAsText(f *File) error
	ReadAsDataURL(f *File) error
	ReadAsArrayBuffer(f *File) error
	ReadAsBinaryString(f *File) error
	Abort()

	OnLoadEnd(fn func(res ReadResult, err error))
}

// StorageRoot is the resolved handle of a storage namespace
type StorageRoot struct {
	URL     string
	Storage Storage
}

// Root returns the root directory handle
func (r StorageRoot) Root() Entry {
	return r.Storage.Root()
}

// RootResolver resolves a well-known root URL to a StorageRoot
type RootResolver interface {
	ResolveURL(url string, success func(StorageRoot), fail func(error))
}
