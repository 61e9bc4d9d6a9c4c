package adapters

import (
	"net/url"
	"path"
	"strings"

	"github.com/puzpuzpuz/xsync/v4"

	"github.com/brettbedarf/entryfs"
	"github.com/brettbedarf/entryfs/filesystem"
	"github.com/brettbedarf/entryfs/internal/util"
	"github.com/brettbedarf/entryfs/localfs"
	"github.com/brettbedarf/entryfs/storage"
)

type BuiltInScheme = string

const (
	MemScheme  BuiltInScheme = "mem"
	FileScheme BuiltInScheme = "file"
)

// RegisterBuiltins registers all built-in providers by default
// or only the specific ones if schemes are provided
func RegisterBuiltins(r *Registry, schemes ...BuiltInScheme) {
	if len(schemes) == 0 {
		schemes = append(schemes, MemScheme, FileScheme)
	}

	for _, scheme := range schemes {
		switch scheme {
		case MemScheme:
			r.Register(MemScheme, NewMemProvider())
		case FileScheme:
			r.Register(FileScheme, NewFileProvider())
		}
	}
}

// MemProvider serves mem://<name>/ roots from in-memory filesystems.
// Every URL with the same name resolves to the same storage.
type MemProvider struct {
	storages *xsync.Map[string, *storage.Storage]
}

func NewMemProvider() *MemProvider {
	return &MemProvider{storages: xsync.NewMap[string, *storage.Storage]()}
}

func (p *MemProvider) Root(u *url.URL) (entryfs.StorageRoot, error) {
	const op = "resolveURL"
	name := strings.ToLower(u.Host)
	if name == "" || (u.Path != "" && u.Path != "/") {
		return entryfs.StorageRoot{}, entryfs.NewError(entryfs.Syntax, op, u.String())
	}
	rootURL := MemScheme + "://" + name + "/"
	s, loaded := p.storages.LoadOrStore(name, storage.New(name, rootURL, filesystem.NewFS()))
	if !loaded {
		logger := util.GetLogger("MemProvider.Root")
		logger.Debug().Str("name", name).Msg("Created in-memory storage")
	}
	return entryfs.StorageRoot{URL: rootURL, Storage: s}, nil
}

// Close stops every storage created by p
func (p *MemProvider) Close() {
	p.storages.Range(func(_ string, s *storage.Storage) bool {
		s.Close()
		return true
	})
}

// FileProvider serves file:///<dir>/ roots from directories on the local
// disk. The directory is created if missing.
type FileProvider struct {
	storages *xsync.Map[string, *storage.Storage]
}

func NewFileProvider() *FileProvider {
	return &FileProvider{storages: xsync.NewMap[string, *storage.Storage]()}
}

func (p *FileProvider) Root(u *url.URL) (entryfs.StorageRoot, error) {
	const op = "resolveURL"
	if u.Host != "" && u.Host != "localhost" {
		return entryfs.StorageRoot{}, entryfs.NewError(entryfs.Syntax, op, u.String())
	}
	if !strings.HasPrefix(u.Path, "/") {
		return entryfs.StorageRoot{}, entryfs.NewError(entryfs.Syntax, op, u.String())
	}
	base := path.Clean(u.Path)
	if s, ok := p.storages.Load(base); ok {
		return entryfs.StorageRoot{URL: rootURLOf(base), Storage: s}, nil
	}

	dir, err := localfs.New(base)
	if err != nil {
		return entryfs.StorageRoot{}, entryfs.AsOperationError(err, op, u.String())
	}
	s, loaded := p.storages.LoadOrStore(base, storage.New(path.Base(base), rootURLOf(base), dir))
	if !loaded {
		logger := util.GetLogger("FileProvider.Root")
		logger.Debug().Str("base", dir.Base()).Msg("Created file storage")
	}
	return entryfs.StorageRoot{URL: rootURLOf(base), Storage: s}, nil
}

// Close stops every storage opened by p
func (p *FileProvider) Close() {
	p.storages.Range(func(_ string, s *storage.Storage) bool {
		s.Close()
		return true
	})
}

func rootURLOf(base string) string {
	u := url.URL{Scheme: FileScheme, Path: base}
	return strings.TrimSuffix(u.String(), "/") + "/"
}
