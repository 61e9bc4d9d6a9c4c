package storage_test

import (
	"encoding/base64"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brettbedarf/entryfs"
	"github.com/brettbedarf/entryfs/storage"
)

func newWriter(t *testing.T, s *storage.Storage, name string) (entryfs.Entry, entryfs.Writer) {
	t.Helper()
	f, err := getFile(t, s, s.Root(), name, create)
	require.NoError(t, err)
	w, err := call(t, func(ok func(entryfs.Writer), fail func(error)) { s.CreateWriter(f, ok, fail) })
	require.NoError(t, err)
	return f, w
}

// waitEnd runs start and waits for the writer's writeend event
func waitEnd(t *testing.T, w entryfs.Writer, start func() error) error {
	t.Helper()
	done := make(chan error, 1)
	w.OnWriteEnd(func(err error) { done <- err })
	require.NoError(t, start())
	select {
	case err := <-done:
		return err
	case <-time.After(5 * time.Second):
		t.Fatal("writeend not fired")
	}
	return nil
}

func TestWriter_WriteAndEvents(t *testing.T) {
	t.Parallel()
	s := newStorage(t)
	_, w := newWriter(t, s, "file.txt")

	var events []string
	w.OnWriteStart(func() { events = append(events, "writestart") })
	w.OnWrite(func() { events = append(events, "write") })
	w.OnError(func(error) { events = append(events, "error") })

	err := waitEnd(t, w, func() error { return w.Write([]byte("TEST")) })
	require.NoError(t, err)
	assert.Equal(t, []string{"writestart", "write"}, events)
	assert.Equal(t, int64(4), w.Position())
	assert.Equal(t, int64(4), w.Length())

	data, err := s.Backend().ReadFile("/file.txt")
	require.NoError(t, err)
	assert.Equal(t, []byte("TEST"), data)
}

func TestWriter_BusyRejectsSecondOperation(t *testing.T) {
	t.Parallel()
	s := newStorage(t)
	_, w := newWriter(t, s, "f")

	release := make(chan struct{})
	done := make(chan error, 1)
	w.OnWriteStart(func() { <-release })
	w.OnWriteEnd(func(err error) { done <- err })
	require.NoError(t, w.Write([]byte("a")))
	err := w.Write([]byte("b"))
	assert.True(t, entryfs.IsKind(err, entryfs.InvalidState))
	assert.True(t, entryfs.IsKind(w.Seek(0), entryfs.InvalidState))
	close(release)
	require.NoError(t, <-done)

	// writeend handler may chain the next write
	next := make(chan error, 1)
	w.OnWriteEnd(func(err error) {
		w.OnWriteEnd(func(err error) { next <- err })
		if err := w.Write([]byte("c")); err != nil {
			next <- err
		}
	})
	require.NoError(t, w.Write([]byte("b")))
	require.NoError(t, <-next)

	data, _ := s.Backend().ReadFile("/f")
	assert.Equal(t, []byte("abc"), data)
}

func TestWriter_SeekAndTruncate(t *testing.T) {
	t.Parallel()
	s := newStorage(t)
	_, w := newWriter(t, s, "f")

	require.NoError(t, waitEnd(t, w, func() error { return w.Write([]byte("hello")) }))

	require.NoError(t, w.Seek(-2))
	assert.Equal(t, int64(3), w.Position())
	require.NoError(t, w.Seek(99))
	assert.Equal(t, int64(5), w.Position(), "clamped to length")
	require.NoError(t, w.Seek(1))

	require.NoError(t, waitEnd(t, w, func() error { return w.Write([]byte("EL")) }))
	data, _ := s.Backend().ReadFile("/f")
	assert.Equal(t, []byte("hELlo"), data)

	require.NoError(t, waitEnd(t, w, func() error { return w.Truncate(2) }))
	assert.Equal(t, int64(2), w.Length())
	assert.Equal(t, int64(2), w.Position())
	data, _ = s.Backend().ReadFile("/f")
	assert.Equal(t, []byte("hE"), data)

	assert.True(t, entryfs.IsKind(w.Truncate(-1), entryfs.InvalidModification))
}

func TestWriter_ExistingFileLength(t *testing.T) {
	t.Parallel()
	s := newStorage(t)
	_, w := newWriter(t, s, "f")
	require.NoError(t, waitEnd(t, w, func() error { return w.Write([]byte("abc")) }))

	_, w2 := newWriter(t, s, "f")
	assert.Equal(t, int64(3), w2.Length())
	assert.Equal(t, int64(0), w2.Position())
}

func TestWriter_ErrorFiresOnError(t *testing.T) {
	t.Parallel()
	s := newStorage(t)
	_, w := newWriter(t, s, "f")
	require.NoError(t, s.Backend().Remove("/f"))

	var got error
	w.OnError(func(err error) { got = err })
	err := waitEnd(t, w, func() error { return w.Write([]byte("x")) })
	require.Error(t, err)
	assert.True(t, entryfs.IsKind(err, entryfs.NotFound))
	assert.Equal(t, err, got)

	var opErr *entryfs.OperationError
	require.ErrorAs(t, err, &opErr)
	assert.Equal(t, "writeAt", opErr.Op)
}

func TestWriter_CreateWriterOnDirectory(t *testing.T) {
	t.Parallel()
	s := newStorage(t)
	_, err := call(t, func(ok func(entryfs.Writer), fail func(error)) { s.CreateWriter(s.Root(), ok, fail) })
	assert.True(t, entryfs.IsKind(err, entryfs.TypeMismatch))
}

func TestFileReader_Modes(t *testing.T) {
	t.Parallel()
	s := newStorage(t)
	f, w := newWriter(t, s, "file.txt")
	require.NoError(t, waitEnd(t, w, func() error { return w.Write([]byte("TEST")) }))

	snap, err := call(t, func(ok func(*entryfs.File), fail func(error)) { s.File(f, ok, fail) })
	require.NoError(t, err)
	assert.Equal(t, "file.txt", snap.Name)
	assert.Equal(t, "text/plain", snap.Type)
	assert.Equal(t, int64(4), snap.Size)

	read := func(start func(entryfs.FileReader) error) (entryfs.ReadResult, error) {
		r := s.NewFileReader()
		type result struct {
			res entryfs.ReadResult
			err error
		}
		ch := make(chan result, 1)
		r.OnLoadEnd(func(res entryfs.ReadResult, err error) { ch <- result{res, err} })
		require.NoError(t, start(r))
		out := <-ch
		return out.res, out.err
	}

	res, err := read(func(r entryfs.FileReader) error { return r.ReadAsText(snap) })
	require.NoError(t, err)
	assert.Equal(t, "TEST", res.Text)

	res, err = read(func(r entryfs.FileReader) error { return r.ReadAsDataURL(snap) })
	require.NoError(t, err)
	assert.Equal(t, "data:text/plain;base64,"+base64.StdEncoding.EncodeToString([]byte("TEST")), res.Text)

	res, err = read(func(r entryfs.FileReader) error { return r.ReadAsArrayBuffer(snap) })
	require.NoError(t, err)
	assert.Equal(t, []byte("TEST"), res.Bytes)

	res, err = read(func(r entryfs.FileReader) error { return r.ReadAsBinaryString(snap) })
	require.NoError(t, err)
	assert.Equal(t, "TEST", res.Text)
	content, err := res.Content()
	require.NoError(t, err)
	assert.Equal(t, []byte("TEST"), content)
}

func TestFileReader_BinaryContent(t *testing.T) {
	t.Parallel()
	s := newStorage(t)
	raw := []byte{0x89, 'P', 'N', 'G', 0xff, 0x00}
	snap := &entryfs.File{Name: "blob", FullPath: "/blob", Data: raw}

	r := s.NewFileReader()
	done := make(chan struct {
		res entryfs.ReadResult
		err error
	}, 1)
	r.OnLoadEnd(func(res entryfs.ReadResult, err error) {
		done <- struct {
			res entryfs.ReadResult
			err error
		}{res, err}
	})

	require.NoError(t, r.ReadAsText(snap))
	out := <-done
	assert.True(t, entryfs.IsKind(out.err, entryfs.Encoding))

	require.NoError(t, r.ReadAsBinaryString(snap))
	out = <-done
	require.NoError(t, out.err)
	content, err := out.res.Content()
	require.NoError(t, err)
	assert.Equal(t, raw, content)

	require.NoError(t, r.ReadAsDataURL(snap))
	out = <-done
	require.NoError(t, out.err)
	assert.Contains(t, out.res.Text, "data:application/octet-stream;base64,")
}
