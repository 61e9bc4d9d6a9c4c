// Package filesystem is an in-memory node tree implementing [storage.Backend].
// Nodes carry fuse wire attributes so a tree can be inspected the same way a
// mounted filesystem would report it.
package filesystem

import (
	"os"
	"strings"
	"sync/atomic"
	"time"

	"github.com/hanwen/go-fuse/v2/fuse"

	"github.com/brettbedarf/entryfs"
	"github.com/brettbedarf/entryfs/storage"
)

type FileSystem struct {
	root    *Node         // Root of node tree
	lastIno atomic.Uint64 // Last fuse Attr.Ino assigned; incremented when new nodes are created
}

var _ storage.Backend = (*FileSystem)(nil)

func NewFS() *FileSystem {
	rootAttr := newDefaultAttr(fuse.FUSE_ROOT_ID)
	rootAttr.Mode = uint32(DirAttr) | DefaultDirPerms

	rootNode, _ := NewNode("", NewInode(rootAttr))
	rootNode.isRoot = true

	fs := FileSystem{root: rootNode}
	fs.lastIno.Store(fuse.FUSE_ROOT_ID)
	return &fs
}

func (fs *FileSystem) Root() *Node {
	return fs.root
}

// walk returns the node at the absolute path p. A missing element is
// NotFound and a file in the middle of the path is TypeMismatch.
func (fs *FileSystem) walk(op, p string) (*Node, error) {
	cur := fs.root
	for _, name := range splitPath(p) {
		if !cur.IsDir() {
			return nil, entryfs.NewError(entryfs.TypeMismatch, op, p)
		}
		child, ok := cur.GetChild(name)
		if !ok {
			return nil, entryfs.NewError(entryfs.NotFound, op, p)
		}
		cur = child
	}
	return cur, nil
}

// parentOf returns the directory that holds p and p's final element
func (fs *FileSystem) parentOf(op, p string) (*Node, string, error) {
	if p == "/" {
		return nil, "", entryfs.NewError(entryfs.NoModificationAllowed, op, p)
	}
	dir, name := storage.Split(p)
	parent, err := fs.walk(op, dir)
	if err != nil {
		return nil, "", err
	}
	if !parent.IsDir() {
		return nil, "", entryfs.NewError(entryfs.TypeMismatch, op, dir)
	}
	return parent, name, nil
}

func (fs *FileSystem) Stat(p string) (storage.Info, error) {
	n, err := fs.walk("stat", p)
	if err != nil {
		return storage.Info{}, err
	}
	return infoOf(n), nil
}

func (fs *FileSystem) Mkdir(p string) error {
	_, err := fs.addNode("mkdir", p, DirAttr|DefaultDirPerms)
	return err
}

func (fs *FileSystem) CreateFile(p string) error {
	_, err := fs.addNode("createFile", p, FileAttr|DefaultFilePerms)
	return err
}

// addNode links a new empty node at p; PathExists if the name is taken
func (fs *FileSystem) addNode(op, p string, mode SysAttrType) (*Node, error) {
	parent, name, err := fs.parentOf(op, p)
	if err != nil {
		return nil, err
	}
	attr := newDefaultAttr(fs.lastIno.Add(1))
	attr.Mode = uint32(mode)
	node, err := NewNode(name, NewInode(attr))
	if err != nil {
		return nil, entryfs.WrapError(entryfs.Unknown, op, p, err)
	}
	if _, added := parent.AddChildIfAbsent(node); !added {
		return nil, entryfs.NewError(entryfs.PathExists, op, p)
	}
	return node, nil
}

func (fs *FileSystem) file(op, p string) (*Node, error) {
	n, err := fs.walk(op, p)
	if err != nil {
		return nil, err
	}
	if n.IsDir() {
		return nil, entryfs.NewError(entryfs.TypeMismatch, op, p)
	}
	return n, nil
}

func (fs *FileSystem) ReadFile(p string) ([]byte, error) {
	n, err := fs.file("readFile", p)
	if err != nil {
		return nil, err
	}
	return n.ReadAll(), nil
}

func (fs *FileSystem) WriteAt(p string, off int64, data []byte) (int64, error) {
	const op = "writeAt"
	if off < 0 {
		return 0, entryfs.NewError(entryfs.InvalidModification, op, p)
	}
	n, err := fs.file(op, p)
	if err != nil {
		return 0, err
	}
	return n.Inode.WriteAt(off, data), nil
}

func (fs *FileSystem) Truncate(p string, size int64) error {
	const op = "truncate"
	if size < 0 {
		return entryfs.NewError(entryfs.InvalidModification, op, p)
	}
	n, err := fs.file(op, p)
	if err != nil {
		return err
	}
	n.Inode.Truncate(size)
	return nil
}

func (fs *FileSystem) Copy(src, dst string) error {
	const op = "copy"
	n, err := fs.walk(op, src)
	if err != nil {
		return err
	}
	if n.IsRoot() || isWithin(dst, src) {
		return entryfs.NewError(entryfs.InvalidModification, op, dst)
	}
	parent, name, err := fs.parentOf(op, dst)
	if err != nil {
		return err
	}
	clone, err := fs.clone(n, name)
	if err != nil {
		return entryfs.WrapError(entryfs.Unknown, op, dst, err)
	}
	if _, added := parent.AddChildIfAbsent(clone); !added {
		return entryfs.NewError(entryfs.PathExists, op, dst)
	}
	return nil
}

// clone deep-copies the subtree at n under a new name
func (fs *FileSystem) clone(n *Node, name string) (*Node, error) {
	c, err := NewNode(name, n.Inode.Clone(fs.lastIno.Add(1)))
	if err != nil {
		return nil, err
	}
	for _, ch := range n.Children() {
		cc, err := fs.clone(ch, ch.Name())
		if err != nil {
			return nil, err
		}
		c.AddChild(cc)
	}
	return c, nil
}

func (fs *FileSystem) Rename(src, dst string) error {
	const op = "rename"
	if src == "/" || isWithin(dst, src) {
		return entryfs.NewError(entryfs.InvalidModification, op, dst)
	}
	oldParent, oldName, err := fs.parentOf(op, src)
	if err != nil {
		return err
	}
	newParent, newName, err := fs.parentOf(op, dst)
	if err != nil {
		return err
	}
	if _, ok := newParent.GetChild(newName); ok {
		return entryfs.NewError(entryfs.PathExists, op, dst)
	}
	n, ok := oldParent.RemoveChild(oldName)
	if !ok {
		return entryfs.NewError(entryfs.NotFound, op, src)
	}
	n.rename(newName)
	if _, added := newParent.AddChildIfAbsent(n); !added {
		// restore the source
		n.rename(oldName)
		oldParent.AddChild(n)
		return entryfs.NewError(entryfs.PathExists, op, dst)
	}
	return nil
}

func (fs *FileSystem) Remove(p string) error {
	const op = "remove"
	parent, name, err := fs.parentOf(op, p)
	if err != nil {
		return err
	}
	n, ok := parent.GetChild(name)
	if !ok {
		return entryfs.NewError(entryfs.NotFound, op, p)
	}
	if n.IsDir() && n.ChildCount() > 0 {
		return entryfs.NewError(entryfs.InvalidModification, op, p)
	}
	if n, ok := parent.RemoveChild(name); ok {
		n.Del()
	}
	return nil
}

func (fs *FileSystem) RemoveAll(p string) error {
	const op = "removeAll"
	parent, name, err := fs.parentOf(op, p)
	if err != nil {
		return err
	}
	n, ok := parent.RemoveChild(name)
	if !ok {
		return entryfs.NewError(entryfs.NotFound, op, p)
	}
	n.Del()
	return nil
}

func (fs *FileSystem) List(p string) ([]storage.Info, error) {
	const op = "list"
	n, err := fs.walk(op, p)
	if err != nil {
		return nil, err
	}
	if !n.IsDir() {
		return nil, entryfs.NewError(entryfs.TypeMismatch, op, p)
	}
	children := n.Children()
	infos := make([]storage.Info, 0, len(children))
	for _, ch := range children {
		infos = append(infos, infoOf(ch))
	}
	return infos, nil
}

func infoOf(n *Node) storage.Info {
	attr := n.CopyAttr()
	kind := entryfs.FileKind
	if SysAttrType(attr.Mode)&typeMask == DirAttr {
		kind = entryfs.DirectoryKind
	}
	return storage.Info{
		Name:    n.Name(),
		Kind:    kind,
		Size:    int64(attr.Size),
		ModTime: time.Unix(int64(attr.Mtime), int64(attr.Mtimensec)),
	}
}

// splitPath returns the non-empty elements of an absolute path
func splitPath(p string) []string {
	p = strings.Trim(p, "/")
	if p == "" {
		return nil
	}
	return strings.Split(p, "/")
}

// isWithin reports whether p is dir or lies below it
func isWithin(p, dir string) bool {
	return p == dir || dir == "/" || strings.HasPrefix(p, dir+"/")
}

// newDefaultAttr returns the default attributes for a new node
// NOTE: Make sure to set the Mode field appropriately
func newDefaultAttr(ino uint64) *fuse.Attr {
	now := time.Now()
	return &fuse.Attr{
		Ino:   ino,
		Nlink: 1,
		Owner: fuse.Owner{
			Uid: uint32(os.Getuid()),
			Gid: uint32(os.Getgid()),
		},
		Atime:     uint64(now.Unix()),
		Mtime:     uint64(now.Unix()),
		Ctime:     uint64(now.Unix()),
		Atimensec: uint32(now.Nanosecond()),
		Mtimensec: uint32(now.Nanosecond()),
		Ctimensec: uint32(now.Nanosecond()),
		Blksize:   4096, // preferred size for fs ops
	}
}
