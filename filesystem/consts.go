package filesystem

import "syscall"

type SysAttrType uint32

const (
	DirAttr  SysAttrType = syscall.S_IFDIR
	FileAttr SysAttrType = syscall.S_IFREG
	typeMask SysAttrType = syscall.S_IFMT
)

// Default permission bits for new nodes
const (
	DefaultDirPerms  = 0o755
	DefaultFilePerms = 0o644
)
