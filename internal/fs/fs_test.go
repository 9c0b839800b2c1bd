package fs

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFilesRoundTrip(t *testing.T) {
	ctx := context.Background()
	files := NewFiles(afero.NewMemMapFs())

	ok, err := files.Exists(ctx, "/w/pkg/a.txt")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, files.WriteFile(ctx, "/w/pkg/a.txt", []byte("hello")))
	data, err := files.ReadFile(ctx, "/w/pkg/a.txt")
	require.NoError(t, err)
	assert.Equal(t, "hello", string(data))

	require.NoError(t, files.RemoveFile(ctx, "/w/pkg/a.txt"))
	ok, err = files.Exists(ctx, "/w/pkg/a.txt")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestFilesErrorsAreNormalized(t *testing.T) {
	ctx := context.Background()
	files := NewFiles(afero.NewMemMapFs())

	_, err := files.ReadFile(ctx, "/missing.txt")
	require.Error(t, err)
	var fe *FileError
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, "read", fe.Op)
	assert.True(t, strings.HasPrefix(err.Error(), "failed to read file: /missing.txt"))
	assert.True(t, IsNotExist(err))

	canceled, cancel := context.WithCancel(ctx)
	cancel()
	err = files.WriteFile(canceled, "/a.txt", nil)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Contains(t, err.Error(), "failed to write file: /a.txt")
}

func TestWrapErrorKeepsExisting(t *testing.T) {
	inner := &FileError{Op: "read", Path: "/a", Err: os.ErrNotExist}
	assert.Same(t, inner, WrapError("write", "/b", inner).(*FileError))
	assert.Nil(t, WrapError("read", "/a", nil))
}

func TestPathResolver(t *testing.T) {
	fsys := afero.NewMemMapFs()
	writeFile(t, fsys, "/second/only_here.go")

	r, err := NewPathResolver(fsys, []string{"/first", "/second"})
	require.NoError(t, err)

	assert.Equal(t, "/second/only_here.go", r.Resolve("only_here.go"))
	assert.Equal(t, "/first/new.go", r.Resolve("new.go"))
	assert.Equal(t, "", r.ResolveExisting("new.go"))
	assert.Equal(t, "/abs/x.go", r.Resolve("/abs/x.go"))
	assert.Equal(t, "pkg/a.go", r.Relative("/first/pkg/a.go"))
	assert.Equal(t, "/elsewhere/a.go", r.Relative("/elsewhere/a.go"))
}

func TestMissingDirs(t *testing.T) {
	fsys := afero.NewMemMapFs()
	require.NoError(t, fsys.MkdirAll("/w/existing", 0o755))

	dirs := MissingDirs(fsys, []string{"/w/existing/a.go", "/w/new/b.go", "/w/new/c.go", "/w/z/d.go"})
	assert.Equal(t, []string{"/w/new", "/w/z"}, dirs)
}

func TestConfirmDirs(t *testing.T) {
	assert.True(t, ConfirmDirs(nil, strings.NewReader("")))
	assert.True(t, ConfirmDirs([]string{"/w/new"}, strings.NewReader("y\n")))
	assert.False(t, ConfirmDirs([]string{"/w/new"}, strings.NewReader("n\n")))
}

func TestWalkSkipsFolders(t *testing.T) {
	fsys := afero.NewMemMapFs()
	for _, p := range []string{
		"/p/app.py",
		"/p/pkg/util.py",
		"/p/.venv/lib/site.py",
		"/p/pkg/__pycache__/util.cpython.pyc",
		"/p/notes.log",
	} {
		writeFile(t, fsys, p)
	}

	skip := map[string]struct{}{".venv": {}, "__pycache__": {}}
	files, err := Walk(fsys, "/p", skip, suffixMatcher(".log"))
	require.NoError(t, err)
	assert.Equal(t, []string{"app.py", "pkg/util.py"}, files)
}

func TestLoadIgnore(t *testing.T) {
	fsys := afero.NewMemMapFs()
	root := "/p"
	m, err := LoadIgnore(fsys, root)
	require.NoError(t, err)
	assert.Nil(t, m)

	require.NoError(t, afero.WriteFile(fsys, filepath.Join(root, ".gitignore"), []byte("*.log\r\n"), 0o644))
	require.NoError(t, afero.WriteFile(fsys, filepath.Join(root, ".qcodeignore"), []byte("*.pem\n"), 0o644))
	m, err = LoadIgnore(fsys, root)
	require.NoError(t, err)
	require.NotNil(t, m)
	assert.True(t, m.MatchesPath("build.log"))
	assert.True(t, m.MatchesPath("secrets/key.pem"))
	assert.False(t, m.MatchesPath("main.go"))
}

func TestWalkHonorsIgnoreFilesOnFs(t *testing.T) {
	fsys := afero.NewMemMapFs()
	writeFile(t, fsys, "/p/main.go")
	writeFile(t, fsys, "/p/debug.log")
	writeFile(t, fsys, "/p/tmp/cache.bin")
	require.NoError(t, afero.WriteFile(fsys, "/p/.gitignore", []byte("*.log\ntmp/\n"), 0o644))

	ignored, err := LoadIgnore(fsys, "/p")
	require.NoError(t, err)
	files, err := Walk(fsys, "/p", nil, ignored)
	require.NoError(t, err)
	assert.Equal(t, []string{".gitignore", "main.go"}, files)
}

func TestHashBytes(t *testing.T) {
	assert.Equal(t, "ba7816bf8f01cfea414140de5dae2223b00361a396177a9cb410ff61f20015ad", HashBytes([]byte("abc")))
	assert.NotEqual(t, HashBytes([]byte("abc")), HashBytes([]byte("abd")))
}

func writeFile(t *testing.T, fsys afero.Fs, path string) {
	t.Helper()
	require.NoError(t, fsys.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, afero.WriteFile(fsys, path, []byte("x"), 0o644))
}

type suffixMatcher string

func (s suffixMatcher) MatchesPath(p string) bool { return strings.HasSuffix(p, string(s)) }
