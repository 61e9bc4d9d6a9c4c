// Package mkdir ensures nested directories exist on an asynchronous storage,
// creating missing ancestors on demand.
package mkdir

import (
	"context"
	"strings"

	"github.com/brettbedarf/entryfs"
	"github.com/brettbedarf/entryfs/internal/util"
	"github.com/brettbedarf/entryfs/pipeline"
)

const op = "ensureDirectory"

var create = entryfs.CreateOptions{Create: true}

// EnsureDirectory ensures every directory on path exists below the root of
// the namespace and returns the handle of the deepest one.
func EnsureDirectory(ctx context.Context, root entryfs.StorageRoot, path string) (entryfs.Entry, error) {
	return Ensure(ctx, root.Storage, root.Root(), path)
}

// Ensure ensures every directory on the slash-separated path exists below
// base and returns the handle of the deepest one.
//
// The full path is requested first. Only when that fails with NotFound is the
// parent path ensured, after which the full path is retried once. Any other
// failure is returned unchanged. Calls are idempotent, and a path that
// normalises to base itself returns base without touching the storage.
func Ensure(ctx context.Context, s entryfs.Storage, base entryfs.Entry, path string) (entryfs.Entry, error) {
	segs, err := normalize(path)
	if err != nil {
		return nil, err
	}
	if len(segs) == 0 {
		return base, nil
	}
	return ensure(ctx, s, base, segs)
}

func ensure(ctx context.Context, s entryfs.Storage, base entryfs.Entry, segs []string) (entryfs.Entry, error) {
	logger := util.GetLogger("Mkdir.Ensure")
	p := strings.Join(segs, "/")

	dir, err := pipeline.GetDirectory(ctx, s, base, p, create)
	if err == nil {
		return dir, nil
	}
	if !entryfs.IsKind(err, entryfs.NotFound) || len(segs) == 1 {
		return nil, err
	}

	logger.Debug().Str("path", p).Msg("Missing ancestor, ensuring parent")
	if _, err := ensure(ctx, s, base, segs[:len(segs)-1]); err != nil {
		return nil, err
	}

	dir, err = pipeline.GetDirectory(ctx, s, base, p, create)
	if entryfs.IsKind(err, entryfs.PathExists) || entryfs.IsKind(err, entryfs.InvalidModification) {
		// lost a create race; the directory exists now
		logger.Debug().Err(err).Str("path", p).Msg("Concurrent create, fetching existing directory")
		return pipeline.GetDirectory(ctx, s, base, p, entryfs.CreateOptions{})
	}
	return dir, err
}

// normalize splits a relative path into segments, dropping empty and "."
// segments and resolving "..". Absolute and empty paths are Syntax errors and
// climbing above base is a Security error.
func normalize(path string) ([]string, error) {
	if strings.TrimSpace(path) == "" || strings.HasPrefix(path, "/") {
		return nil, entryfs.NewError(entryfs.Syntax, op, path)
	}
	var segs []string
	for _, seg := range strings.Split(path, "/") {
		switch seg {
		case "", ".":
		case "..":
			if len(segs) == 0 {
				return nil, entryfs.NewError(entryfs.Security, op, path)
			}
			segs = segs[:len(segs)-1]
		default:
			segs = append(segs, seg)
		}
	}
	return segs, nil
}
