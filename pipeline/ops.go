package pipeline

import (
	"context"
	"fmt"

	"github.com/brettbedarf/entryfs"
)

// ResolveRoot awaits RootResolver.ResolveURL
func ResolveRoot(ctx context.Context, r entryfs.RootResolver, url string) (entryfs.StorageRoot, error) {
	return Await(ctx, "resolveURL", func(ok func(entryfs.StorageRoot), fail func(error)) {
		r.ResolveURL(url, ok, fail)
	})
}

func GetDirectory(ctx context.Context, s entryfs.Storage, dir entryfs.Entry, path string, opts entryfs.CreateOptions) (entryfs.Entry, error) {
	return Await(ctx, "getDirectory", func(ok func(entryfs.Entry), fail func(error)) {
		s.GetDirectory(dir, path, opts, ok, fail)
	})
}

func GetFile(ctx context.Context, s entryfs.Storage, dir entryfs.Entry, path string, opts entryfs.CreateOptions) (entryfs.Entry, error) {
	return Await(ctx, "getFile", func(ok func(entryfs.Entry), fail func(error)) {
		s.GetFile(dir, path, opts, ok, fail)
	})
}

func GetParent(ctx context.Context, s entryfs.Storage, e entryfs.Entry) (entryfs.Entry, error) {
	return Await(ctx, "getParent", func(ok func(entryfs.Entry), fail func(error)) {
		s.GetParent(e, ok, fail)
	})
}

func GetMetadata(ctx context.Context, s entryfs.Storage, e entryfs.Entry) (entryfs.Metadata, error) {
	return Await(ctx, "getMetadata", func(ok func(entryfs.Metadata), fail func(error)) {
		s.GetMetadata(e, ok, fail)
	})
}

func CreateWriter(ctx context.Context, s entryfs.Storage, file entryfs.Entry) (entryfs.Writer, error) {
	return Await(ctx, "createWriter", func(ok func(entryfs.Writer), fail func(error)) {
		s.CreateWriter(file, ok, fail)
	})
}

// Write writes data at the writer's position and returns once the writer
// reports writeend, so the data is visible to the next operation
func Write(ctx context.Context, w entryfs.Writer, data []byte) error {
	return awaitWriteEnd(ctx, "write", w, func() error { return w.Write(data) })
}

// Truncate truncates through w and returns once writeend fires
func Truncate(ctx context.Context, w entryfs.Writer, size int64) error {
	return awaitWriteEnd(ctx, "truncate", w, func() error { return w.Truncate(size) })
}

func awaitWriteEnd(ctx context.Context, op string, w entryfs.Writer, start func() error) error {
	err := AwaitDone(ctx, op, func(ok func(), fail func(error)) {
		w.OnWriteEnd(func(err error) {
			if err != nil {
				fail(err)
				return
			}
			ok()
		})
		if err := start(); err != nil {
			fail(err)
		}
	})
	if entryfs.IsKind(err, entryfs.Aborted) && ctx.Err() != nil {
		w.Abort()
	}
	return err
}

func CopyTo(ctx context.Context, s entryfs.Storage, e, dest entryfs.Entry, newName string) (entryfs.Entry, error) {
	return Await(ctx, "copyTo", func(ok func(entryfs.Entry), fail func(error)) {
		s.CopyTo(e, dest, newName, ok, fail)
	})
}

func MoveTo(ctx context.Context, s entryfs.Storage, e, dest entryfs.Entry, newName string) (entryfs.Entry, error) {
	return Await(ctx, "moveTo", func(ok func(entryfs.Entry), fail func(error)) {
		s.MoveTo(e, dest, newName, ok, fail)
	})
}

func Remove(ctx context.Context, s entryfs.Storage, e entryfs.Entry) error {
	return AwaitDone(ctx, "remove", func(ok func(), fail func(error)) {
		s.Remove(e, ok, fail)
	})
}

func RemoveRecursively(ctx context.Context, s entryfs.Storage, dir entryfs.Entry) error {
	return AwaitDone(ctx, "removeRecursively", func(ok func(), fail func(error)) {
		s.RemoveRecursively(dir, ok, fail)
	})
}

// ReadEntries drains a directory reader until it returns an empty batch
func ReadEntries(ctx context.Context, s entryfs.Storage, dir entryfs.Entry) ([]entryfs.Entry, error) {
	r := s.CreateReader(dir)
	var all []entryfs.Entry
	for {
		batch, err := Await(ctx, "readEntries", r.ReadEntries)
		if err != nil {
			return nil, err
		}
		if len(batch) == 0 {
			return all, nil
		}
		all = append(all, batch...)
	}
}

func File(ctx context.Context, s entryfs.Storage, e entryfs.Entry) (*entryfs.File, error) {
	return Await(ctx, "file", func(ok func(*entryfs.File), fail func(error)) {
		s.File(e, ok, fail)
	})
}

// Read reads f in the given mode with a fresh FileReader
func Read(ctx context.Context, s entryfs.Storage, f *entryfs.File, mode entryfs.ReadMode) (entryfs.ReadResult, error) {
	r := s.NewFileReader()
	res, err := Await(ctx, mode.Op(), func(ok func(entryfs.ReadResult), fail func(error)) {
		r.OnLoadEnd(func(res entryfs.ReadResult, err error) {
			if err != nil {
				fail(err)
				return
			}
			ok(res)
		})
		var err error
		switch mode {
		case entryfs.ReadText:
			err = r.ReadAsText(f)
		case entryfs.ReadDataURL:
			err = r.ReadAsDataURL(f)
		case entryfs.ReadArrayBuffer:
			err = r.ReadAsArrayBuffer(f)
		case entryfs.ReadBinaryString:
			err = r.ReadAsBinaryString(f)
		default:
			err = fmt.Errorf("unknown read mode: %d", mode)
		}
		if err != nil {
			fail(err)
		}
	})
	if entryfs.IsKind(err, entryfs.Aborted) && ctx.Err() != nil {
		r.Abort()
	}
	return res, err
}

// WriteFile creates or opens name under dir and replaces its content with data
func WriteFile(ctx context.Context, s entryfs.Storage, dir entryfs.Entry, name string, data []byte) (entryfs.Entry, error) {
	file, err := GetFile(ctx, s, dir, name, entryfs.CreateOptions{Create: true})
	if err != nil {
		return nil, err
	}
	w, err := CreateWriter(ctx, s, file)
	if err != nil {
		return nil, err
	}
	if w.Length() > 0 {
		if err := Truncate(ctx, w, 0); err != nil {
			return nil, err
		}
	}
	if err := Write(ctx, w, data); err != nil {
		return nil, err
	}
	return file, nil
}
