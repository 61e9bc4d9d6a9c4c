package adapters

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/pkg/errors"

	"github.com/brettbedarf/entryfs"
	"github.com/brettbedarf/entryfs/internal/util"
	"github.com/brettbedarf/entryfs/pipeline"
)

const (
	DefaultHTTPTimeout = 30 * time.Second
	DefaultHTTPRetries = 2
	defaultBackoff     = 500 * time.Millisecond
)

// HTTPClient is the subset of *http.Client used by [HTTPTransfer]
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// HTTPTransfer implements [entryfs.Transfer] for http and https sources.
// The body is fetched in full and then written through the storage.
type HTTPTransfer struct {
	client  HTTPClient
	headers map[string]string
	retries int
	backoff time.Duration
}

var _ entryfs.Transfer = (*HTTPTransfer)(nil)

type HTTPOption func(*HTTPTransfer)

// WithClient replaces the default client, e.g. with a mock
func WithClient(c HTTPClient) HTTPOption {
	return func(t *HTTPTransfer) { t.client = c }
}

// WithRetries sets how many times a connection failure is retried
func WithRetries(n int) HTTPOption {
	return func(t *HTTPTransfer) { t.retries = max(n, 0) }
}

func WithBackoff(d time.Duration) HTTPOption {
	return func(t *HTTPTransfer) { t.backoff = d }
}

// WithHeader adds a header sent with every request
func WithHeader(key, value string) HTTPOption {
	return func(t *HTTPTransfer) { t.headers[key] = value }
}

// NewHTTPTransfer creates a transfer whose requests time out after timeout.
// A non-positive timeout uses [DefaultHTTPTimeout].
func NewHTTPTransfer(timeout time.Duration, opts ...HTTPOption) *HTTPTransfer {
	if timeout <= 0 {
		timeout = DefaultHTTPTimeout
	}
	t := &HTTPTransfer{
		client: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				MaxIdleConns:    10,
				IdleConnTimeout: 90 * time.Second,
			},
		},
		headers: map[string]string{},
		retries: DefaultHTTPRetries,
		backoff: defaultBackoff,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Download fetches source and stores it at target, a slash-separated path
// relative to root. The parent directory of target must already exist.
func (t *HTTPTransfer) Download(ctx context.Context, source string, root entryfs.StorageRoot, target string, success func(entryfs.Entry), fail func(error)) {
	go func() {
		file, err := t.download(ctx, source, root, target)
		if err != nil {
			fail(err)
			return
		}
		success(file)
	}()
}

func (t *HTTPTransfer) download(ctx context.Context, source string, root entryfs.StorageRoot, target string) (entryfs.Entry, error) {
	logger := util.GetLogger("HTTPTransfer.Download")
	src, err := validateURL(source)
	if err != nil {
		return nil, &entryfs.TransferError{Kind: entryfs.InvalidURLErr, Source: source, Target: target, Err: err}
	}

	dir, name := path.Split(strings.TrimPrefix(path.Clean("/"+target), "/"))
	if name == "" {
		return nil, &entryfs.TransferError{
			Kind: entryfs.FileNotFoundErr, Source: src, Target: target,
			Err: entryfs.NewError(entryfs.Syntax, "download", target),
		}
	}

	data, status, err := t.fetch(ctx, src)
	if err != nil {
		return nil, &entryfs.TransferError{Kind: classify(ctx, status), Source: src, Target: target, HTTPStatus: status, Err: err}
	}
	logger.Debug().Str("url", src).Str("size", humanize.Bytes(uint64(len(data)))).Msg("Fetched")

	s := root.Storage
	parent := s.Root()
	if dir != "" {
		parent, err = pipeline.GetDirectory(ctx, s, parent, strings.TrimSuffix(dir, "/"), entryfs.CreateOptions{})
		if err != nil {
			return nil, storeError(ctx, src, target, status, err)
		}
	}
	file, err := pipeline.WriteFile(ctx, s, parent, name, data)
	if err != nil {
		return nil, storeError(ctx, src, target, status, err)
	}
	logger.Info().Str("url", src).Str("target", file.FullPath()).
		Str("size", humanize.Bytes(uint64(len(data)))).Msg("Download complete")
	return file, nil
}

// fetch GETs src, retrying connection failures and 5xx responses
func (t *HTTPTransfer) fetch(ctx context.Context, src string) ([]byte, int, error) {
	logger := util.GetLogger("HTTPTransfer.fetch")
	for attempt := 0; ; attempt++ {
		data, status, err := t.get(ctx, src)
		if err == nil {
			return data, status, nil
		}
		if ctx.Err() != nil || attempt >= t.retries || (status != 0 && status < 500) {
			return nil, status, err
		}
		wait := t.backoff * time.Duration(attempt+1)
		logger.Warn().Err(err).Str("url", src).Int("attempt", attempt+1).Dur("wait", wait).Msg("Retrying")
		select {
		case <-ctx.Done():
			return nil, status, errors.Wrap(ctx.Err(), "waiting to retry")
		case <-time.After(wait):
		}
	}
}

func (t *HTTPTransfer) get(ctx context.Context, src string) ([]byte, int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, src, nil)
	if err != nil {
		return nil, 0, errors.Wrapf(err, "create request for %s", src)
	}
	for k, v := range t.headers {
		req.Header.Set(k, v)
	}

	resp, err := t.client.Do(req)
	if err != nil {
		return nil, 0, errors.Wrapf(err, "request %s", src)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, resp.StatusCode, errors.Errorf("unexpected status: %s", resp.Status)
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, errors.Wrapf(err, "read body of %s", src)
	}
	return data, resp.StatusCode, nil
}

func classify(ctx context.Context, status int) entryfs.TransferErrorKind {
	switch {
	case ctx.Err() != nil:
		return entryfs.AbortErr
	case status == http.StatusNotModified:
		return entryfs.NotModifiedErr
	case status == http.StatusNotFound || status == http.StatusGone:
		return entryfs.FileNotFoundErr
	default:
		return entryfs.ConnectionErr
	}
}

// storeError reports a failure to write the downloaded body. The storage
// error stays in the chain so its kind remains visible.
func storeError(ctx context.Context, src, target string, status int, err error) error {
	kind := entryfs.FileNotFoundErr
	if ctx.Err() != nil || entryfs.IsKind(err, entryfs.Aborted) {
		kind = entryfs.AbortErr
	}
	return &entryfs.TransferError{Kind: kind, Source: src, Target: target, HTTPStatus: status, Err: err}
}

// validateURL trims raw and checks it is an absolute http(s) URL without
// user info
func validateURL(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", errors.New("empty URL")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", errors.Wrap(err, "parse URL")
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", errors.Errorf("unsupported scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return "", errors.Errorf("missing host in %q", raw)
	}
	if u.User != nil {
		return "", errors.New("user info not allowed in URL")
	}
	return u.String(), nil
}
