package storage

import (
	"strings"

	"github.com/google/uuid"

	"github.com/brettbedarf/entryfs"
	"github.com/brettbedarf/entryfs/internal/loop"
	"github.com/brettbedarf/entryfs/internal/util"
)

// Storage implements [entryfs.Storage] over a Backend
type Storage struct {
	name    string
	rootURL string // always ends in "/"
	backend Backend
	loop    *loop.Loop
	root    *entry
}

var _ entryfs.Storage = (*Storage)(nil)

// New creates a Storage named name serving backend under rootURL
func New(name, rootURL string, backend Backend) *Storage {
	if !strings.HasSuffix(rootURL, "/") {
		rootURL += "/"
	}
	s := &Storage{
		name:    name,
		rootURL: rootURL,
		backend: backend,
		loop:    loop.New(),
	}
	s.root = &entry{s: s, path: "/", kind: entryfs.DirectoryKind}
	return s
}

// Close drains pending operations and stops the event loop. Operations
// started afterwards fail with InvalidState.
func (s *Storage) Close() {
	s.loop.Close()
}

func (s *Storage) Name() string {
	return s.name
}

func (s *Storage) Root() entryfs.Entry {
	return s.root
}

// Backend returns the underlying synchronous backend
func (s *Storage) Backend() Backend {
	return s.backend
}

// entry implements [entryfs.Entry] for a Storage
type entry struct {
	s    *Storage
	path string
	kind entryfs.EntryKind
}

func (e *entry) Name() string {
	_, name := Split(e.path)
	return name
}

func (e *entry) FullPath() string {
	return e.path
}

func (e *entry) Kind() entryfs.EntryKind {
	return e.kind
}

func (e *entry) URL() string {
	u := e.s.rootURL + strings.TrimPrefix(e.path, "/")
	if e.kind == entryfs.DirectoryKind && !strings.HasSuffix(u, "/") {
		u += "/"
	}
	return u
}

func (e *entry) String() string {
	return e.kind.String() + ":" + e.path
}

func (s *Storage) newEntry(p string, kind entryfs.EntryKind) *entry {
	if p == "/" {
		return s.root
	}
	return &entry{s: s, path: p, kind: kind}
}

// own converts a foreign handle into this storage's entry type.
// Handles from another storage instance are rejected.
func (s *Storage) own(op string, e entryfs.Entry) (*entry, error) {
	if e == nil {
		return nil, entryfs.NewError(entryfs.TypeMismatch, op, "")
	}
	en, ok := e.(*entry)
	if !ok || en.s != s {
		return nil, entryfs.NewError(entryfs.InvalidModification, op, e.FullPath())
	}
	return en, nil
}

// run executes fn as a loop task and reports its outcome to exactly one callback
func run[T any](s *Storage, op, p string, fn func() (T, error), success func(T), fail func(error)) {
	task := func() {
		v, err := fn()
		if err != nil {
			reportFail(fail, entryfs.AsOperationError(err, op, p))
			return
		}
		if success != nil {
			success(v)
		}
	}
	if !s.loop.Post(task) {
		go reportFail(fail, entryfs.NewError(entryfs.InvalidState, op, p))
	}
}

func reportFail(fail func(error), err error) {
	if fail != nil {
		fail(err)
		return
	}
	logger := util.GetLogger("Storage")
	logger.Debug().Err(err).Msg("Unhandled operation failure")
}

func (s *Storage) GetDirectory(dir entryfs.Entry, p string, opts entryfs.CreateOptions, success func(entryfs.Entry), fail func(error)) {
	const op = "getDirectory"
	run(s, op, p, func() (entryfs.Entry, error) {
		return s.lookup(op, dir, p, opts, entryfs.DirectoryKind)
	}, success, fail)
}

func (s *Storage) GetFile(dir entryfs.Entry, p string, opts entryfs.CreateOptions, success func(entryfs.Entry), fail func(error)) {
	const op = "getFile"
	run(s, op, p, func() (entryfs.Entry, error) {
		return s.lookup(op, dir, p, opts, entryfs.FileKind)
	}, success, fail)
}

// lookup resolves p against dir and fetches or creates an entry of kind want.
// A missing intermediate directory is NotFound; an intermediate file or a
// leaf of the wrong kind is TypeMismatch.
func (s *Storage) lookup(op string, dir entryfs.Entry, p string, opts entryfs.CreateOptions, want entryfs.EntryKind) (entryfs.Entry, error) {
	base, err := s.own(op, dir)
	if err != nil {
		return nil, err
	}
	if base.kind != entryfs.DirectoryKind {
		return nil, entryfs.NewError(entryfs.TypeMismatch, op, base.path)
	}
	abs, err := resolvePath(op, base.path, p)
	if err != nil {
		return nil, err
	}

	if abs == "/" {
		switch {
		case want != entryfs.DirectoryKind:
			return nil, entryfs.NewError(entryfs.TypeMismatch, op, abs)
		case opts.Create && opts.Exclusive:
			return nil, entryfs.NewError(entryfs.PathExists, op, abs)
		}
		return s.root, nil
	}

	for _, anc := range Ancestors(abs) {
		info, err := s.backend.Stat(anc)
		if err != nil {
			if entryfs.IsKind(err, entryfs.NotFound) {
				return nil, entryfs.WrapError(entryfs.NotFound, op, abs, err)
			}
			return nil, err
		}
		if info.Kind != entryfs.DirectoryKind {
			return nil, entryfs.NewError(entryfs.TypeMismatch, op, anc)
		}
	}

	info, err := s.backend.Stat(abs)
	switch {
	case err == nil:
		if opts.Create && opts.Exclusive {
			return nil, entryfs.NewError(entryfs.PathExists, op, abs)
		}
		if info.Kind != want {
			return nil, entryfs.NewError(entryfs.TypeMismatch, op, abs)
		}
		return s.newEntry(abs, want), nil
	case !entryfs.IsKind(err, entryfs.NotFound):
		return nil, err
	case !opts.Create:
		return nil, entryfs.WrapError(entryfs.NotFound, op, abs, err)
	}

	if want == entryfs.DirectoryKind {
		err = s.backend.Mkdir(abs)
	} else {
		err = s.backend.CreateFile(abs)
	}
	if err != nil {
		// lost a create race; non-exclusive create still gets the entry
		if !entryfs.IsKind(err, entryfs.PathExists) || opts.Exclusive {
			return nil, err
		}
		info, serr := s.backend.Stat(abs)
		if serr != nil {
			return nil, serr
		}
		if info.Kind != want {
			return nil, entryfs.NewError(entryfs.TypeMismatch, op, abs)
		}
	}
	logger := util.GetLogger("Storage.lookup")
	logger.Trace().Str("op", op).Str("path", abs).Msg("Created entry")
	return s.newEntry(abs, want), nil
}

func (s *Storage) GetParent(e entryfs.Entry, success func(entryfs.Entry), fail func(error)) {
	const op = "getParent"
	run(s, op, pathOf(e), func() (entryfs.Entry, error) {
		en, err := s.own(op, e)
		if err != nil {
			return nil, err
		}
		dir, _ := Split(en.path)
		return s.newEntry(dir, entryfs.DirectoryKind), nil
	}, success, fail)
}

func (s *Storage) GetMetadata(e entryfs.Entry, success func(entryfs.Metadata), fail func(error)) {
	const op = "getMetadata"
	run(s, op, pathOf(e), func() (entryfs.Metadata, error) {
		en, err := s.own(op, e)
		if err != nil {
			return entryfs.Metadata{}, err
		}
		info, err := s.stat(op, en)
		if err != nil {
			return entryfs.Metadata{}, err
		}
		return entryfs.Metadata{Size: info.Size, LastModified: info.ModTime}, nil
	}, success, fail)
}

// stat checks that the node behind en still exists with the handle's kind
func (s *Storage) stat(op string, en *entry) (Info, error) {
	info, err := s.backend.Stat(en.path)
	if err != nil {
		return Info{}, err
	}
	if info.Kind != en.kind {
		return Info{}, entryfs.NewError(entryfs.TypeMismatch, op, en.path)
	}
	return info, nil
}

func (s *Storage) File(e entryfs.Entry, success func(*entryfs.File), fail func(error)) {
	const op = "file"
	run(s, op, pathOf(e), func() (*entryfs.File, error) {
		en, err := s.own(op, e)
		if err != nil {
			return nil, err
		}
		if en.kind != entryfs.FileKind {
			return nil, entryfs.NewError(entryfs.TypeMismatch, op, en.path)
		}
		info, err := s.stat(op, en)
		if err != nil {
			return nil, err
		}
		data, err := s.backend.ReadFile(en.path)
		if err != nil {
			return nil, entryfs.WrapError(entryfs.NotReadable, op, en.path, err)
		}
		return &entryfs.File{
			Name:         info.Name,
			FullPath:     en.path,
			Type:         fileType(info.Name, data),
			Size:         int64(len(data)),
			LastModified: info.ModTime,
			Data:         data,
		}, nil
	}, success, fail)
}

func (s *Storage) CopyTo(e, dest entryfs.Entry, newName string, success func(entryfs.Entry), fail func(error)) {
	const op = "copyTo"
	run(s, op, pathOf(e), func() (entryfs.Entry, error) {
		return s.transfer(op, e, dest, newName, false)
	}, success, fail)
}

func (s *Storage) MoveTo(e, dest entryfs.Entry, newName string, success func(entryfs.Entry), fail func(error)) {
	const op = "moveTo"
	run(s, op, pathOf(e), func() (entryfs.Entry, error) {
		return s.transfer(op, e, dest, newName, true)
	}, success, fail)
}

// transfer implements CopyTo and MoveTo. An existing target of the same kind
// is replaced; a target directory must be empty. The target is set aside
// under a backup name until the copy or move succeeds and restored otherwise.
func (s *Storage) transfer(op string, e, dest entryfs.Entry, newName string, move bool) (entryfs.Entry, error) {
	logger := util.GetLogger("Storage.transfer")
	src, err := s.own(op, e)
	if err != nil {
		return nil, err
	}
	dst, err := s.own(op, dest)
	if err != nil {
		return nil, err
	}
	if src.path == "/" {
		return nil, entryfs.NewError(entryfs.NoModificationAllowed, op, src.path)
	}
	if dst.kind != entryfs.DirectoryKind {
		return nil, entryfs.NewError(entryfs.TypeMismatch, op, dst.path)
	}
	name := newName
	if name == "" {
		name = src.Name()
	}
	if !validName(name) {
		return nil, entryfs.NewError(entryfs.InvalidModification, op, name)
	}
	target := Join(dst.path, name)
	if target == src.path || strings.HasPrefix(target, src.path+"/") {
		return nil, entryfs.NewError(entryfs.InvalidModification, op, target)
	}

	if _, err := s.stat(op, src); err != nil {
		return nil, err
	}
	if _, err := s.stat(op, dst); err != nil {
		return nil, err
	}

	var backup string
	existing, err := s.backend.Stat(target)
	switch {
	case err == nil:
		if existing.Kind != src.kind {
			return nil, entryfs.NewError(entryfs.InvalidModification, op, target)
		}
		if existing.Kind == entryfs.DirectoryKind {
			children, err := s.backend.List(target)
			if err != nil {
				return nil, err
			}
			if len(children) > 0 {
				return nil, entryfs.NewError(entryfs.InvalidModification, op, target)
			}
		}
		backup = Join(dst.path, "."+name+"."+uuid.NewString())
		if err := s.backend.Rename(target, backup); err != nil {
			return nil, err
		}
	case !entryfs.IsKind(err, entryfs.NotFound):
		return nil, err
	}

	if move {
		err = s.backend.Rename(src.path, target)
	} else {
		err = s.backend.Copy(src.path, target)
	}
	if err != nil {
		if backup != "" {
			s.restore(target, backup)
		}
		return nil, err
	}
	if backup != "" {
		if err := s.backend.RemoveAll(backup); err != nil {
			logger.Warn().Err(err).Str("backup", backup).Msg("Failed to remove replaced target")
		}
	}
	return s.newEntry(target, src.kind), nil
}

// restore puts the replaced target back after a failed copy or move,
// dropping whatever the failed operation left at target
func (s *Storage) restore(target, backup string) {
	logger := util.GetLogger("Storage.restore")
	if _, err := s.backend.Stat(target); err == nil {
		if err := s.backend.RemoveAll(target); err != nil {
			logger.Error().Err(err).Str("path", target).Msg("Failed to remove partial target")
			return
		}
	}
	if err := s.backend.Rename(backup, target); err != nil {
		logger.Error().Err(err).Str("path", target).Str("backup", backup).Msg("Failed to restore replaced target")
		return
	}
	logger.Debug().Str("path", target).Msg("Restored replaced target")
}

func (s *Storage) Remove(e entryfs.Entry, success func(), fail func(error)) {
	const op = "remove"
	s.remove(op, e, false, success, fail)
}

func (s *Storage) RemoveRecursively(dir entryfs.Entry, success func(), fail func(error)) {
	const op = "removeRecursively"
	s.remove(op, dir, true, success, fail)
}

func (s *Storage) remove(op string, e entryfs.Entry, recursive bool, success func(), fail func(error)) {
	run(s, op, pathOf(e), func() (struct{}, error) {
		en, err := s.own(op, e)
		if err != nil {
			return struct{}{}, err
		}
		if en.path == "/" {
			return struct{}{}, entryfs.NewError(entryfs.NoModificationAllowed, op, en.path)
		}
		if recursive && en.kind != entryfs.DirectoryKind {
			return struct{}{}, entryfs.NewError(entryfs.TypeMismatch, op, en.path)
		}
		if _, err := s.stat(op, en); err != nil {
			return struct{}{}, err
		}
		if recursive {
			return struct{}{}, s.backend.RemoveAll(en.path)
		}
		return struct{}{}, s.backend.Remove(en.path)
	}, func(struct{}) {
		if success != nil {
			success()
		}
	}, fail)
}

func pathOf(e entryfs.Entry) string {
	if e == nil {
		return ""
	}
	return e.FullPath()
}
