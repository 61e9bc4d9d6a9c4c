package storage

import (
	"path"
	"strings"

	"github.com/brettbedarf/entryfs"
)

// Join appends name to the absolute directory path dir
func Join(dir, name string) string {
	if dir == "/" {
		return "/" + name
	}
	return dir + "/" + name
}

// Split returns the parent directory and the final element of an absolute path.
// The root splits into ("/", "").
func Split(p string) (dir, name string) {
	if p == "/" {
		return "/", ""
	}
	i := strings.LastIndex(p, "/")
	if i == 0 {
		return "/", p[1:]
	}
	return p[:i], p[i+1:]
}

// Ancestors returns every proper ancestor of p below the root, outermost first.
// Ancestors("/a/b/c") is ["/a", "/a/b"].
func Ancestors(p string) []string {
	var out []string
	for i := 1; i < len(p); i++ {
		if p[i] == '/' {
			out = append(out, p[:i])
		}
	}
	return out
}

// resolvePath resolves rel against the absolute directory base.
// A leading "/" makes rel absolute. ".." segments that would climb above
// the root are rejected with Security.
func resolvePath(op, base, rel string) (string, error) {
	if rel == "" {
		return "", entryfs.NewError(entryfs.Syntax, op, rel)
	}
	if strings.ContainsRune(rel, 0) {
		return "", entryfs.NewError(entryfs.Encoding, op, rel)
	}
	if strings.HasPrefix(rel, "/") {
		base = "/"
	}

	var segs []string
	for _, seg := range strings.Split(strings.TrimPrefix(base, "/")+"/"+rel, "/") {
		switch seg {
		case "", ".":
		case "..":
			if len(segs) == 0 {
				return "", entryfs.NewError(entryfs.Security, op, rel)
			}
			segs = segs[:len(segs)-1]
		default:
			segs = append(segs, seg)
		}
	}
	return "/" + strings.Join(segs, "/"), nil
}

// validName reports whether name can be used as a single path element
func validName(name string) bool {
	return name != "" && name != "." && name != ".." &&
		!strings.ContainsAny(name, "/\x00") && path.Clean(name) == name
}
