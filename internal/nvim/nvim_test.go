package nvim

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/qlinetech/qcode/internal/fs"
	"github.com/qlinetech/qcode/internal/workflow"
)

// startNvim runs the tests against a private headless instance.
func startNvim(t *testing.T) *Manager {
	t.Helper()
	if _, err := exec.LookPath("nvim"); err != nil {
		t.Skip("nvim not in PATH")
	}
	t.Setenv("NVIM", "")
	t.Setenv("NVIM_LISTEN_ADDRESS", "")
	t.Setenv("HOME", t.TempDir())

	m, err := New("")
	require.NoError(t, err)
	t.Cleanup(m.Close)
	require.True(t, m.SelfStarted())
	return m
}

func TestBufferFileAccess(t *testing.T) {
	m := startNvim(t)
	ctx := context.Background()
	dir := t.TempDir()
	path := filepath.Join(dir, "sub", "a.txt")

	exists, err := m.Exists(ctx, path)
	require.NoError(t, err)
	assert.False(t, exists)

	_, err = m.ReadFile(ctx, path)
	var fileErr *fs.FileError
	require.ErrorAs(t, err, &fileErr)
	assert.True(t, fs.IsNotExist(err))

	require.NoError(t, m.WriteFile(ctx, path, []byte("one\ntwo\n")))
	exists, err = m.Exists(ctx, path)
	require.NoError(t, err)
	assert.True(t, exists, "a modified buffer counts as existing")

	data, err := m.ReadFile(ctx, path)
	require.NoError(t, err)
	assert.Equal(t, "one\ntwo\n", string(data))

	require.NoError(t, m.SaveAll(ctx))
	onDisk, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "one\ntwo\n", string(onDisk))

	require.NoError(t, m.WriteFile(ctx, path, []byte("no newline")))
	require.NoError(t, m.SaveAll(ctx))
	onDisk, err = os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "no newline", string(onDisk))

	require.NoError(t, m.RemoveFile(ctx, path))
	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err))
	assert.True(t, fs.IsNotExist(m.RemoveFile(ctx, path)))
}

func TestReadFileLoadsFromDisk(t *testing.T) {
	m := startNvim(t)
	path := filepath.Join(t.TempDir(), "disk.txt")
	require.NoError(t, os.WriteFile(path, []byte("from disk\n"), 0o644))

	data, err := m.ReadFile(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, "from disk\n", string(data))
}

func TestEditorContext(t *testing.T) {
	m := startNvim(t)
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "main.py")
	require.NoError(t, os.WriteFile(path, []byte("import os\nprint(os.sep)\n"), 0o644))

	require.NoError(t, m.nvim.Command("edit "+path))
	require.NoError(t, m.nvim.Command("call cursor(2, 3)"))

	ec, err := m.EditorContext(ctx)
	require.NoError(t, err)
	assert.Equal(t, path, ec.FilePath)
	assert.Equal(t, "python", ec.Language)
	assert.Equal(t, "import os\nprint(os.sep)\n", ec.Content)
	require.NotNil(t, ec.Cursor)
	assert.Equal(t, 2, ec.Cursor.Line)
	assert.Equal(t, 2, ec.Cursor.Column)
}

func TestFormatFallsBackToIndent(t *testing.T) {
	m := startNvim(t)
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "a.txt")
	require.NoError(t, os.WriteFile(path, []byte("x\n"), 0o644))

	require.NoError(t, m.WriteFile(ctx, path, []byte("y\n")))
	assert.True(t, workflow.Formatter{Host: m}.Format(ctx, path))
	onDisk, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "y\n", string(onDisk), "formatting writes the buffer")

	_, err = m.Hover(ctx, path, 1, 0)
	assert.ErrorIs(t, err, ErrNoLanguageServer)
}

func TestTerminal(t *testing.T) {
	m := startNvim(t)
	ctx := context.Background()

	term, err := m.CreateTerminal(ctx, t.TempDir())
	require.NoError(t, err)
	require.NoError(t, term.Show(ctx))
	require.NoError(t, term.SendText(ctx, "echo hi\n"))
}

func TestStopDebuggingWithoutDap(t *testing.T) {
	m := startNvim(t)
	assert.False(t, workflow.Debugger{Host: m}.Stop(context.Background()))
}
