package filesystem

import (
	"sync"
	"time"

	"github.com/hanwen/go-fuse/v2/fuse"
)

// Inode holds the attributes and, for files, the content of a node
type Inode struct {
	// Low-level fuse wire protocol attributes; Only access directly if
	// handling locks manually
	fuseAttr *fuse.Attr
	data     []byte
	mu       sync.RWMutex
}

func NewInode(attr *fuse.Attr) *Inode {
	return &Inode{fuseAttr: attr}
}

// CopyAttr returns a thread-safe copy of the inode's attributes
func (n *Inode) CopyAttr() fuse.Attr {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return *n.fuseAttr
}

// IsDir reports whether the inode's mode is a directory
func (n *Inode) IsDir() bool {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return SysAttrType(n.fuseAttr.Mode)&typeMask == DirAttr
}

// ModTime returns the last modification time
func (n *Inode) ModTime() time.Time {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return time.Unix(int64(n.fuseAttr.Mtime), int64(n.fuseAttr.Mtimensec))
}

// ReadAll returns a copy of the content
func (n *Inode) ReadAll() []byte {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return append([]byte(nil), n.data...)
}

// WriteAt writes p at off, zero-filling any gap past the current end,
// and returns the new size
func (n *Inode) WriteAt(off int64, p []byte) int64 {
	n.mu.Lock()
	defer n.mu.Unlock()
	end := off + int64(len(p))
	if end > int64(len(n.data)) {
		grown := make([]byte, end)
		copy(grown, n.data)
		n.data = grown
	}
	copy(n.data[off:end], p)
	n.touchLocked()
	return int64(len(n.data))
}

// Truncate shrinks or zero-extends the content to size
func (n *Inode) Truncate(size int64) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if size <= int64(len(n.data)) {
		n.data = n.data[:size:size]
	} else {
		grown := make([]byte, size)
		copy(grown, n.data)
		n.data = grown
	}
	n.touchLocked()
}

// Clone returns an independent copy with a new inode number
func (n *Inode) Clone(ino uint64) *Inode {
	n.mu.RLock()
	defer n.mu.RUnlock()
	attr := *n.fuseAttr
	attr.Ino = ino
	attr.Nlink = 1
	clone := NewInode(&attr)
	clone.data = append([]byte(nil), n.data...)
	return clone
}

// touchLocked updates size and mtime; caller must hold n.mu.Lock()
func (n *Inode) touchLocked() {
	now := time.Now()
	n.fuseAttr.Size = uint64(len(n.data))
	n.fuseAttr.Blocks = (n.fuseAttr.Size + 511) / 512
	n.fuseAttr.Mtime = uint64(now.Unix())
	n.fuseAttr.Mtimensec = uint32(now.Nanosecond())
	n.fuseAttr.Ctime = n.fuseAttr.Mtime
	n.fuseAttr.Ctimensec = n.fuseAttr.Mtimensec
}
