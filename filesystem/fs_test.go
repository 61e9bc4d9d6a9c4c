package filesystem

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brettbedarf/entryfs"
)

func TestFS_MkdirAndCreateFile(t *testing.T) {
	t.Parallel()
	fs := NewFS()

	require.NoError(t, fs.Mkdir("/test"))
	require.NoError(t, fs.CreateFile("/test/file.txt"))

	info, err := fs.Stat("/test")
	require.NoError(t, err)
	assert.Equal(t, entryfs.DirectoryKind, info.Kind)
	assert.Equal(t, "test", info.Name)

	info, err = fs.Stat("/test/file.txt")
	require.NoError(t, err)
	assert.Equal(t, entryfs.FileKind, info.Kind)
	assert.Equal(t, int64(0), info.Size)

	err = fs.Mkdir("/test")
	assert.True(t, entryfs.IsKind(err, entryfs.PathExists))
	err = fs.CreateFile("/test/file.txt")
	assert.True(t, entryfs.IsKind(err, entryfs.PathExists))
}

func TestFS_PathErrors(t *testing.T) {
	t.Parallel()
	fs := NewFS()
	require.NoError(t, fs.CreateFile("/f"))

	tests := []struct {
		name string
		fn   func() error
		kind entryfs.ErrorKind
	}{
		{"missing parent", func() error { return fs.Mkdir("/a/b") }, entryfs.NotFound},
		{"file as parent", func() error { return fs.Mkdir("/f/b") }, entryfs.TypeMismatch},
		{"stat missing", func() error { _, err := fs.Stat("/nope"); return err }, entryfs.NotFound},
		{"read directory", func() error { _, err := fs.ReadFile("/"); return err }, entryfs.TypeMismatch},
		{"list file", func() error { _, err := fs.List("/f"); return err }, entryfs.TypeMismatch},
		{"remove root", func() error { return fs.Remove("/") }, entryfs.NoModificationAllowed},
		{"negative truncate", func() error { return fs.Truncate("/f", -1) }, entryfs.InvalidModification},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.fn()
			require.Error(t, err)
			assert.Equal(t, tt.kind, entryfs.KindOf(err))
		})
	}
}

func TestFS_WriteReadTruncate(t *testing.T) {
	t.Parallel()
	fs := NewFS()
	require.NoError(t, fs.CreateFile("/f"))

	n, err := fs.WriteAt("/f", 0, []byte("TEST"))
	require.NoError(t, err)
	assert.Equal(t, int64(4), n)

	n, err = fs.WriteAt("/f", 6, []byte("X"))
	require.NoError(t, err)
	assert.Equal(t, int64(7), n)

	data, err := fs.ReadFile("/f")
	require.NoError(t, err)
	assert.Equal(t, []byte("TEST\x00\x00X"), data)

	require.NoError(t, fs.Truncate("/f", 2))
	data, _ = fs.ReadFile("/f")
	assert.Equal(t, []byte("TE"), data)

	info, _ := fs.Stat("/f")
	assert.Equal(t, int64(2), info.Size)

	require.NoError(t, fs.Truncate("/f", 4))
	data, _ = fs.ReadFile("/f")
	assert.Equal(t, []byte("TE\x00\x00"), data)
}

func TestFS_CopyIsIndependent(t *testing.T) {
	t.Parallel()
	fs := NewFS()
	require.NoError(t, fs.Mkdir("/src"))
	require.NoError(t, fs.Mkdir("/src/sub"))
	require.NoError(t, fs.CreateFile("/src/sub/f"))
	_, err := fs.WriteAt("/src/sub/f", 0, []byte("abc"))
	require.NoError(t, err)

	require.NoError(t, fs.Copy("/src", "/dst"))

	data, err := fs.ReadFile("/dst/sub/f")
	require.NoError(t, err)
	assert.Equal(t, []byte("abc"), data)

	_, err = fs.WriteAt("/dst/sub/f", 0, []byte("z"))
	require.NoError(t, err)
	data, _ = fs.ReadFile("/src/sub/f")
	assert.Equal(t, []byte("abc"), data, "source unchanged by write to copy")

	assert.True(t, entryfs.IsKind(fs.Copy("/src", "/dst"), entryfs.PathExists))
	assert.True(t, entryfs.IsKind(fs.Copy("/src", "/src/sub/x"), entryfs.InvalidModification))
}

func TestFS_Rename(t *testing.T) {
	t.Parallel()
	fs := NewFS()
	require.NoError(t, fs.Mkdir("/d"))
	require.NoError(t, fs.CreateFile("/d/a"))
	require.NoError(t, fs.CreateFile("/d/b"))

	require.NoError(t, fs.Rename("/d/a", "/moved"))
	_, err := fs.Stat("/d/a")
	assert.True(t, entryfs.IsKind(err, entryfs.NotFound))
	info, err := fs.Stat("/moved")
	require.NoError(t, err)
	assert.Equal(t, "moved", info.Name)

	err = fs.Rename("/moved", "/d/b")
	assert.True(t, entryfs.IsKind(err, entryfs.PathExists))
	_, err = fs.Stat("/moved")
	assert.NoError(t, err, "failed rename leaves source in place")

	err = fs.Rename("/d", "/d/inner")
	assert.True(t, entryfs.IsKind(err, entryfs.InvalidModification))
}

func TestFS_RemoveAndList(t *testing.T) {
	t.Parallel()
	fs := NewFS()
	require.NoError(t, fs.Mkdir("/x"))
	require.NoError(t, fs.Mkdir("/x/y"))
	require.NoError(t, fs.CreateFile("/b"))

	infos, err := fs.List("/")
	require.NoError(t, err)
	require.Len(t, infos, 2)
	assert.Equal(t, "b", infos[0].Name)
	assert.Equal(t, "x", infos[1].Name)

	err = fs.Remove("/x")
	assert.True(t, entryfs.IsKind(err, entryfs.InvalidModification), "non-empty dir")

	require.NoError(t, fs.RemoveAll("/x"))
	require.NoError(t, fs.Remove("/b"))
	infos, err = fs.List("/")
	require.NoError(t, err)
	assert.Empty(t, infos)

	assert.True(t, entryfs.IsKind(fs.RemoveAll("/x"), entryfs.NotFound))
}
