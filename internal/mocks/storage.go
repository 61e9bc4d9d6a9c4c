package mocks

import (
	"context"
	"net/url"
	"path"

	"github.com/stretchr/testify/mock"

	"github.com/brettbedarf/entryfs"
)

// Entry is a plain handle for tests that never reach a real storage
type Entry struct {
	Path      string
	EntryKind entryfs.EntryKind
}

// Dir returns a directory handle for p
func Dir(p string) *Entry {
	return &Entry{Path: p, EntryKind: entryfs.DirectoryKind}
}

// FileEntry returns a file handle for p
func FileEntry(p string) *Entry {
	return &Entry{Path: p, EntryKind: entryfs.FileKind}
}

func (e *Entry) Name() string {
	if e.Path == "/" {
		return ""
	}
	return path.Base(e.Path)
}

func (e *Entry) FullPath() string        { return e.Path }
func (e *Entry) Kind() entryfs.EntryKind { return e.EntryKind }
func (e *Entry) URL() string             { return "mock://" + e.Path }

var _ entryfs.Entry = (*Entry)(nil)

// MockStorage implements entryfs.Storage for testing across packages.
// Asynchronous operations report synchronously: the first return value is
// passed to success unless the error return is non-nil.
type MockStorage struct {
	mock.Mock
}

func (m *MockStorage) Name() string {
	return m.Called().String(0)
}

func (m *MockStorage) Root() entryfs.Entry {
	args := m.Called()
	if args.Get(0) == nil {
		return nil
	}
	return args.Get(0).(entryfs.Entry)
}

// report invokes fail with err if set, otherwise success with the value
func report[T any](args mock.Arguments, success func(T), fail func(error)) {
	if err := args.Error(1); err != nil {
		fail(err)
		return
	}
	var v T
	if args.Get(0) != nil {
		v = args.Get(0).(T)
	}
	success(v)
}

func (m *MockStorage) GetDirectory(dir entryfs.Entry, p string, opts entryfs.CreateOptions, success func(entryfs.Entry), fail func(error)) {
	report(m.Called(dir, p, opts), success, fail)
}

func (m *MockStorage) GetFile(dir entryfs.Entry, p string, opts entryfs.CreateOptions, success func(entryfs.Entry), fail func(error)) {
	report(m.Called(dir, p, opts), success, fail)
}

func (m *MockStorage) GetParent(e entryfs.Entry, success func(entryfs.Entry), fail func(error)) {
	report(m.Called(e), success, fail)
}

func (m *MockStorage) GetMetadata(e entryfs.Entry, success func(entryfs.Metadata), fail func(error)) {
	report(m.Called(e), success, fail)
}

func (m *MockStorage) CreateWriter(file entryfs.Entry, success func(entryfs.Writer), fail func(error)) {
	report(m.Called(file), success, fail)
}

func (m *MockStorage) File(file entryfs.Entry, success func(*entryfs.File), fail func(error)) {
	report(m.Called(file), success, fail)
}

func (m *MockStorage) CopyTo(e, dest entryfs.Entry, newName string, success func(entryfs.Entry), fail func(error)) {
	report(m.Called(e, dest, newName), success, fail)
}

func (m *MockStorage) MoveTo(e, dest entryfs.Entry, newName string, success func(entryfs.Entry), fail func(error)) {
	report(m.Called(e, dest, newName), success, fail)
}

func (m *MockStorage) Remove(e entryfs.Entry, success func(), fail func(error)) {
	if err := m.Called(e).Error(0); err != nil {
		fail(err)
		return
	}
	success()
}

func (m *MockStorage) RemoveRecursively(dir entryfs.Entry, success func(), fail func(error)) {
	if err := m.Called(dir).Error(0); err != nil {
		fail(err)
		return
	}
	success()
}

func (m *MockStorage) CreateReader(dir entryfs.Entry) entryfs.DirectoryReader {
	return m.Called(dir).Get(0).(entryfs.DirectoryReader)
}

func (m *MockStorage) NewFileReader() entryfs.FileReader {
	return m.Called().Get(0).(entryfs.FileReader)
}

var _ entryfs.Storage = (*MockStorage)(nil)

// MockResolver implements entryfs.RootResolver
type MockResolver struct {
	mock.Mock
}

func (m *MockResolver) ResolveURL(url string, success func(entryfs.StorageRoot), fail func(error)) {
	report(m.Called(url), success, fail)
}

var _ entryfs.RootResolver = (*MockResolver)(nil)

// MockRootProvider satisfies adapters.RootProvider
type MockRootProvider struct {
	mock.Mock
}

func (m *MockRootProvider) Root(u *url.URL) (entryfs.StorageRoot, error) {
	args := m.Called(u)
	return args.Get(0).(entryfs.StorageRoot), args.Error(1)
}

// MockTransfer implements entryfs.Transfer
type MockTransfer struct {
	mock.Mock
}

func (m *MockTransfer) Download(ctx context.Context, source string, root entryfs.StorageRoot, target string, success func(entryfs.Entry), fail func(error)) {
	report(m.Called(source, root, target), success, fail)
}

var _ entryfs.Transfer = (*MockTransfer)(nil)
