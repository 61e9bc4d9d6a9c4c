// Package localfs implements [storage.Backend] on a directory of the local
// filesystem. Storage paths are resolved beneath the base directory.
package localfs

import (
	"errors"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"syscall"

	"github.com/brettbedarf/entryfs"
	"github.com/brettbedarf/entryfs/internal/util"
	"github.com/brettbedarf/entryfs/storage"
)

const (
	dirPerm  os.FileMode = 0o755
	filePerm os.FileMode = 0o644
)

// Dir is a backend rooted at a local directory
type Dir struct {
	base string
}

var _ storage.Backend = (*Dir)(nil)

// New returns a backend rooted at base, creating the directory if needed
func New(base string) (*Dir, error) {
	abs, err := filepath.Abs(base)
	if err != nil {
		return nil, entryfs.WrapError(entryfs.Encoding, "open", base, err)
	}
	if err := os.MkdirAll(abs, dirPerm); err != nil {
		return nil, mapErr("open", "/", err)
	}
	logger := util.GetLogger("LocalFS.New")
	logger.Debug().Str("base", abs).Msg("Opened local storage")
	return &Dir{base: abs}, nil
}

// Base returns the absolute base directory
func (d *Dir) Base() string {
	return d.base
}

func (d *Dir) real(p string) string {
	return filepath.Join(d.base, filepath.FromSlash(p))
}

func (d *Dir) Stat(p string) (storage.Info, error) {
	fi, err := os.Stat(d.real(p))
	if err != nil {
		return storage.Info{}, mapErr("stat", p, err)
	}
	info := infoOf(fi)
	if p == "/" {
		info.Name = ""
	}
	return info, nil
}

func (d *Dir) Mkdir(p string) error {
	if err := os.Mkdir(d.real(p), dirPerm); err != nil {
		return mapErr("mkdir", p, err)
	}
	return nil
}

func (d *Dir) CreateFile(p string) error {
	f, err := os.OpenFile(d.real(p), os.O_CREATE|os.O_EXCL|os.O_WRONLY, filePerm)
	if err != nil {
		return mapErr("createFile", p, err)
	}
	return f.Close()
}

func (d *Dir) ReadFile(p string) ([]byte, error) {
	data, err := os.ReadFile(d.real(p))
	if err != nil {
		return nil, mapErr("readFile", p, err)
	}
	return data, nil
}

func (d *Dir) WriteAt(p string, off int64, data []byte) (int64, error) {
	const op = "writeAt"
	if off < 0 {
		return 0, entryfs.NewError(entryfs.InvalidModification, op, p)
	}
	f, err := os.OpenFile(d.real(p), os.O_WRONLY, 0)
	if err != nil {
		return 0, mapErr(op, p, err)
	}
	size, err := writeAndClose(f, off, data)
	if err != nil {
		return 0, mapErr(op, p, err)
	}
	return size, nil
}

// writableFile is the part of *os.File used by writeAndClose
type writableFile interface {
	io.WriterAt
	io.Closer
	Stat() (os.FileInfo, error)
}

// writeAndClose writes data at off and returns the resulting file size.
// A failed Close is reported when the write itself succeeded.
func writeAndClose(f writableFile, off int64, data []byte) (size int64, err error) {
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			size, err = 0, cerr
		}
	}()
	if _, err := f.WriteAt(data, off); err != nil {
		return 0, err
	}
	fi, err := f.Stat()
	if err != nil {
		return 0, err
	}
	return fi.Size(), nil
}

func (d *Dir) Truncate(p string, size int64) error {
	if size < 0 {
		return entryfs.NewError(entryfs.InvalidModification, "truncate", p)
	}
	if err := os.Truncate(d.real(p), size); err != nil {
		return mapErr("truncate", p, err)
	}
	return nil
}

func (d *Dir) Copy(src, dst string) error {
	const op = "copy"
	from, to := d.real(src), d.real(dst)
	if _, err := os.Lstat(to); err == nil {
		return entryfs.NewError(entryfs.PathExists, op, dst)
	}
	err := filepath.WalkDir(from, func(path string, de fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(from, path)
		if err != nil {
			return err
		}
		target := filepath.Join(to, rel)
		if de.IsDir() {
			return os.Mkdir(target, dirPerm)
		}
		return copyFile(path, target)
	})
	if err != nil {
		return mapErr(op, dst, err)
	}
	return nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_EXCL|os.O_WRONLY, filePerm)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

func (d *Dir) Rename(src, dst string) error {
	const op = "rename"
	to := d.real(dst)
	// os.Rename replaces files silently
	if _, err := os.Lstat(to); err == nil {
		return entryfs.NewError(entryfs.PathExists, op, dst)
	}
	if err := os.Rename(d.real(src), to); err != nil {
		return mapErr(op, src, err)
	}
	return nil
}

func (d *Dir) Remove(p string) error {
	if p == "/" {
		return entryfs.NewError(entryfs.NoModificationAllowed, "remove", p)
	}
	if err := os.Remove(d.real(p)); err != nil {
		return mapErr("remove", p, err)
	}
	return nil
}

func (d *Dir) RemoveAll(p string) error {
	const op = "removeAll"
	if p == "/" {
		return entryfs.NewError(entryfs.NoModificationAllowed, op, p)
	}
	full := d.real(p)
	if _, err := os.Lstat(full); err != nil {
		return mapErr(op, p, err)
	}
	if err := os.RemoveAll(full); err != nil {
		return mapErr(op, p, err)
	}
	return nil
}

func (d *Dir) List(p string) ([]storage.Info, error) {
	const op = "list"
	des, err := os.ReadDir(d.real(p))
	if err != nil {
		return nil, mapErr(op, p, err)
	}
	infos := make([]storage.Info, 0, len(des))
	for _, de := range des {
		fi, err := de.Info()
		if err != nil {
			// removed between ReadDir and Info
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return nil, mapErr(op, p, err)
		}
		infos = append(infos, infoOf(fi))
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Name < infos[j].Name })
	return infos, nil
}

func infoOf(fi fs.FileInfo) storage.Info {
	kind := entryfs.FileKind
	size := fi.Size()
	if fi.IsDir() {
		kind = entryfs.DirectoryKind
		size = 0
	}
	return storage.Info{
		Name:    fi.Name(),
		Kind:    kind,
		Size:    size,
		ModTime: fi.ModTime(),
	}
}

// mapErr converts an os error into an OperationError of the matching kind
func mapErr(op, p string, err error) error {
	var kind entryfs.ErrorKind
	switch {
	// ENOTEMPTY also matches fs.ErrExist
	case errors.Is(err, syscall.ENOTEMPTY):
		kind = entryfs.InvalidModification
	case errors.Is(err, fs.ErrNotExist):
		kind = entryfs.NotFound
	case errors.Is(err, fs.ErrExist):
		kind = entryfs.PathExists
	case errors.Is(err, fs.ErrPermission):
		kind = entryfs.Security
	case errors.Is(err, syscall.ENOTDIR), errors.Is(err, syscall.EISDIR):
		kind = entryfs.TypeMismatch
	case errors.Is(err, syscall.ENOSPC), errors.Is(err, syscall.EDQUOT):
		kind = entryfs.QuotaExceeded
	case errors.Is(err, syscall.EROFS):
		kind = entryfs.NoModificationAllowed
	default:
		kind = entryfs.Unknown
	}
	return entryfs.WrapError(kind, op, p, err)
}
