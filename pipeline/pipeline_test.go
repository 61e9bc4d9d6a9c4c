package pipeline

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brettbedarf/entryfs"
	"github.com/brettbedarf/entryfs/filesystem"
	"github.com/brettbedarf/entryfs/internal/mocks"
	"github.com/brettbedarf/entryfs/storage"
)

func newMemStorage(t *testing.T) *storage.Storage {
	t.Helper()
	s := storage.New("pipeline", "mem://pipeline/", filesystem.NewFS())
	t.Cleanup(s.Close)
	return s
}

func TestAwait_SettlesOnce(t *testing.T) {
	t.Parallel()
	v, err := Await(context.Background(), "op", func(ok func(int), fail func(error)) {
		ok(1)
		ok(2)
		fail(errors.New("late"))
	})
	require.NoError(t, err)
	assert.Equal(t, 1, v)
}

func TestAwait_AsyncFailure(t *testing.T) {
	t.Parallel()
	want := entryfs.NewError(entryfs.NotFound, "getFile", "/x")
	_, err := Await(context.Background(), "getFile", func(ok func(string), fail func(error)) {
		go func() {
			time.Sleep(10 * time.Millisecond)
			fail(want)
		}()
	})
	assert.Same(t, want, err)
}

func TestAwait_ContextCancelled(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	var late func(int)
	_, err := Await(ctx, "never", func(ok func(int), fail func(error)) {
		late = ok
	})
	require.Error(t, err)
	assert.True(t, entryfs.IsKind(err, entryfs.Aborted))
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	// a callback after cancellation is dropped without blocking
	late(1)
}

func TestChain_StopsAtFirstFailure(t *testing.T) {
	t.Parallel()
	var ran []string
	boom := entryfs.NewError(entryfs.InvalidState, "write", "/f")

	results, err := NewChain("main").
		Then("one", func(context.Context) error { ran = append(ran, "one"); return nil }).
		Then("two", func(context.Context) error { ran = append(ran, "two"); return boom }).
		Then("three", func(context.Context) error { ran = append(ran, "three"); return nil }).
		Run(context.Background())

	assert.Equal(t, []string{"one", "two"}, ran)
	require.Len(t, results, 2)
	assert.True(t, results[0].OK())
	assert.Equal(t, 2, results[1].Seq)
	assert.Equal(t, boom, results[1].Err)

	var stepErr *StepError
	require.ErrorAs(t, err, &stepErr)
	assert.Equal(t, "main", stepErr.Chain)
	assert.Equal(t, "two", stepErr.Step)
	assert.True(t, entryfs.IsKind(err, entryfs.InvalidState))
	assert.Contains(t, err.Error(), `step "two" failed`)
}

func TestChain_CancelledBeforeStep(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	results, err := NewChain("c", Step{Name: "s", Fn: func(context.Context) error { return nil }}).Run(ctx)
	assert.Empty(t, results)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestSideChains_CollectFailures(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	var side SideChains

	side.Go(ctx, NewChain("ok").Then("a", func(context.Context) error { return nil }))
	side.Go(ctx, NewChain("bad1").Then("b", func(context.Context) error { return errors.New("x") }))
	side.Go(ctx, NewChain("bad2").Then("c", func(context.Context) error { return errors.New("y") }))

	results, err := side.Wait()
	assert.Len(t, results, 3)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "2 errors occurred")

	var stepErr *StepError
	assert.ErrorAs(t, err, &stepErr)
}

func TestSideChains_AllSucceed(t *testing.T) {
	t.Parallel()
	var side SideChains
	side.Go(context.Background(), NewChain("ok").Then("a", func(context.Context) error { return nil }))
	_, err := side.Wait()
	assert.NoError(t, err)
}

func TestOps_WriteCompletesBeforeCopyAndMove(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := newMemStorage(t)

	var dir, file, copied, moved entryfs.Entry
	var w entryfs.Writer
	_, err := NewChain("main").
		Then("get-dir", func(ctx context.Context) (err error) {
			dir, err = GetDirectory(ctx, s, s.Root(), "test", entryfs.CreateOptions{Create: true})
			return err
		}).
		Then("get-file", func(ctx context.Context) (err error) {
			file, err = GetFile(ctx, s, dir, "file.txt", entryfs.CreateOptions{Create: true})
			return err
		}).
		Then("create-writer", func(ctx context.Context) (err error) {
			w, err = CreateWriter(ctx, s, file)
			return err
		}).
		Then("write", func(ctx context.Context) error {
			return Write(ctx, w, []byte("TEST"))
		}).
		Then("copy", func(ctx context.Context) (err error) {
			copied, err = CopyTo(ctx, s, file, dir, "file-copy.txt")
			return err
		}).
		Then("move", func(ctx context.Context) (err error) {
			moved, err = MoveTo(ctx, s, copied, dir, "file-move.txt")
			return err
		}).
		Run(ctx)
	require.NoError(t, err)

	for _, name := range []string{"file.txt", "file-move.txt"} {
		f, err := GetFile(ctx, s, dir, name, entryfs.CreateOptions{})
		require.NoError(t, err, name)
		snap, err := File(ctx, s, f)
		require.NoError(t, err)
		assert.Equal(t, []byte("TEST"), snap.Data, name)
	}
	assert.Equal(t, "/test/file-move.txt", moved.FullPath())
	_, err = GetFile(ctx, s, dir, "file-copy.txt", entryfs.CreateOptions{})
	assert.True(t, entryfs.IsKind(err, entryfs.NotFound), "copy was moved away")
}

func TestOps_ParentAndMetadata(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := newMemStorage(t)

	f, err := WriteFile(ctx, s, s.Root(), "meta.txt", []byte("12345"))
	require.NoError(t, err)

	md, err := GetMetadata(ctx, s, f)
	require.NoError(t, err)
	assert.Equal(t, int64(5), md.Size)

	parent, err := GetParent(ctx, s, f)
	require.NoError(t, err)
	assert.Equal(t, "/", parent.FullPath())

	require.NoError(t, Remove(ctx, s, f))
	_, err = GetMetadata(ctx, s, f)
	assert.True(t, entryfs.IsKind(err, entryfs.NotFound))
}

func TestOps_FailureStopsDependentSteps(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := newMemStorage(t)

	called := false
	_, err := NewChain("main").
		Then("get-file", func(ctx context.Context) error {
			_, err := GetFile(ctx, s, s.Root(), "missing/file.txt", entryfs.CreateOptions{Create: true})
			return err
		}).
		Then("create-writer", func(context.Context) error { called = true; return nil }).
		Run(ctx)

	assert.False(t, called)
	var stepErr *StepError
	require.ErrorAs(t, err, &stepErr)
	assert.Equal(t, "get-file", stepErr.Step)
	var opErr *entryfs.OperationError
	require.ErrorAs(t, err, &opErr)
	assert.Equal(t, entryfs.NotFound, opErr.Kind)
	assert.Equal(t, "getFile", opErr.Op)
	assert.Equal(t, "/missing/file.txt", opErr.Path)
}

func TestOps_TruncateAndReadModes(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := newMemStorage(t)

	file, err := WriteFile(ctx, s, s.Root(), "f.txt", []byte("TEST"))
	require.NoError(t, err)

	// WriteFile replaces existing content
	file, err = WriteFile(ctx, s, s.Root(), "f.txt", []byte("TEST"))
	require.NoError(t, err)

	snap, err := File(ctx, s, file)
	require.NoError(t, err)
	for _, mode := range []entryfs.ReadMode{entryfs.ReadText, entryfs.ReadDataURL, entryfs.ReadArrayBuffer, entryfs.ReadBinaryString} {
		res, err := Read(ctx, s, snap, mode)
		require.NoError(t, err, mode.String())
		content, err := res.Content()
		require.NoError(t, err, mode.String())
		assert.Equal(t, []byte("TEST"), content, mode.String())
	}

	w, err := CreateWriter(ctx, s, file)
	require.NoError(t, err)
	require.NoError(t, Truncate(ctx, w, 2))
	snap, err = File(ctx, s, file)
	require.NoError(t, err)
	assert.Equal(t, []byte("TE"), snap.Data)
}

func TestOps_ReadEntriesDrainsReader(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := newMemStorage(t)
	for _, n := range []string{"b", "a"} {
		_, err := GetDirectory(ctx, s, s.Root(), n, entryfs.CreateOptions{Create: true})
		require.NoError(t, err)
	}

	entries, err := ReadEntries(ctx, s, s.Root())
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "a", entries[0].Name())
}

func TestOps_RemoveRecursively(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := newMemStorage(t)
	dir, err := GetDirectory(ctx, s, s.Root(), "d", entryfs.CreateOptions{Create: true})
	require.NoError(t, err)
	_, err = WriteFile(ctx, s, dir, "f", []byte("x"))
	require.NoError(t, err)

	assert.True(t, entryfs.IsKind(Remove(ctx, s, dir), entryfs.InvalidModification))
	require.NoError(t, RemoveRecursively(ctx, s, dir))
	_, err = GetDirectory(ctx, s, s.Root(), "d", entryfs.CreateOptions{})
	assert.True(t, entryfs.IsKind(err, entryfs.NotFound))
}

func TestOps_ResolveRoot(t *testing.T) {
	t.Parallel()
	s := &mocks.MockStorage{}
	r := &mocks.MockResolver{}
	want := entryfs.StorageRoot{URL: "mem://x/", Storage: s}
	r.On("ResolveURL", "mem://x/").Return(want, nil)

	got, err := ResolveRoot(context.Background(), r, "mem://x/")
	require.NoError(t, err)
	assert.Equal(t, want, got)
	r.AssertExpectations(t)
}

func TestOps_ConcurrentChainsOnOneStorage(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := newMemStorage(t)

	var wg sync.WaitGroup
	for _, name := range []string{"x", "y", "z"} {
		wg.Add(1)
		go func(name string) {
			defer wg.Done()
			_, err := WriteFile(ctx, s, s.Root(), name, []byte(name))
			assert.NoError(t, err)
		}(name)
	}
	wg.Wait()

	entries, err := ReadEntries(ctx, s, s.Root())
	require.NoError(t, err)
	assert.Len(t, entries, 3)
}
