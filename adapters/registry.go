package adapters

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/puzpuzpuz/xsync/v4"

	"github.com/brettbedarf/entryfs"
	"github.com/brettbedarf/entryfs/internal/util"
)

// RootProvider opens the storage namespace named by a parsed root URL
type RootProvider interface {
	Root(u *url.URL) (entryfs.StorageRoot, error)
}

// Registry maps URL schemes to their [RootProvider] and resolves root URLs.
// It implements [entryfs.RootResolver].
type Registry struct {
	providers *xsync.Map[string, RootProvider]
}

var _ entryfs.RootResolver = (*Registry)(nil)

func NewRegistry() *Registry {
	return &Registry{
		providers: xsync.NewMap[string, RootProvider](),
	}
}

// Register ties a provider to a URL scheme. The first provider registered
// for a scheme is kept.
func (r *Registry) Register(scheme string, p RootProvider) {
	logger := util.GetLogger("Registry.Register")
	scheme = strings.ToLower(scheme)
	if _, loaded := r.providers.LoadOrStore(scheme, p); loaded {
		logger.Warn().Str("scheme", scheme).Msg("Provider already registered, ignoring")
		return
	}
	logger.Debug().Str("scheme", scheme).Msg("Registered provider")
}

// GetProvider returns the provider registered for scheme
func (r *Registry) GetProvider(scheme string) (RootProvider, error) {
	p, ok := r.providers.Load(strings.ToLower(scheme))
	if !ok {
		return nil, fmt.Errorf("no provider for scheme %q", scheme)
	}
	return p, nil
}

// Resolve resolves rawURL to its storage root synchronously
func (r *Registry) Resolve(rawURL string) (entryfs.StorageRoot, error) {
	const op = "resolveURL"
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return entryfs.StorageRoot{}, entryfs.WrapError(entryfs.Encoding, op, rawURL, err)
	}
	if u.Scheme == "" {
		return entryfs.StorageRoot{}, entryfs.NewError(entryfs.Syntax, op, rawURL)
	}
	p, err := r.GetProvider(u.Scheme)
	if err != nil {
		return entryfs.StorageRoot{}, entryfs.WrapError(entryfs.Syntax, op, rawURL, err)
	}
	return p.Root(u)
}

// ResolveURL resolves rawURL on its own goroutine and reports the root
// through success or the failure through fail
func (r *Registry) ResolveURL(rawURL string, success func(entryfs.StorageRoot), fail func(error)) {
	go func() {
		logger := util.GetLogger("Registry.ResolveURL")
		root, err := r.Resolve(rawURL)
		if err != nil {
			logger.Debug().Err(err).Str("url", rawURL).Msg("Failed to resolve root")
			fail(err)
			return
		}
		logger.Trace().Str("url", root.URL).Msg("Resolved root")
		success(root)
	}()
}

// Close closes every registered provider that holds open storages
func (r *Registry) Close() {
	r.providers.Range(func(scheme string, p RootProvider) bool {
		if c, ok := p.(interface{ Close() }); ok {
			c.Close()
		}
		return true
	})
}
