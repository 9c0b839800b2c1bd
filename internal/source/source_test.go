package source

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/qlinetech/qcode/internal/ui"
)

func quiet(t *testing.T) {
	t.Helper()
	old := ui.Output
	ui.Output = &bytes.Buffer{}
	t.Cleanup(func() { ui.Output = old })
}

func TestReadsPipedStdin(t *testing.T) {
	quiet(t)
	path := filepath.Join(t.TempDir(), "in.md")
	require.NoError(t, os.WriteFile(path, []byte("```go\nx\n```\n"), 0o644))
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	sp := &SourceProvider{Stdin: f, Clipboard: func() (string, error) {
		t.Fatal("clipboard read while stdin is piped")
		return "", nil
	}}
	assert.True(t, sp.IsPiped())
	content, err := sp.GetContent()
	require.NoError(t, err)
	assert.Equal(t, "```go\nx\n```\n", content)
}

func TestFallsBackToClipboard(t *testing.T) {
	quiet(t)
	sp := &SourceProvider{Clipboard: func() (string, error) { return "from clipboard", nil }}
	content, err := sp.GetContent()
	require.NoError(t, err)
	assert.Equal(t, "from clipboard", content)
}

func TestEmptyClipboard(t *testing.T) {
	quiet(t)
	sp := &SourceProvider{Clipboard: func() (string, error) { return "  \n", nil }}
	content, err := sp.GetContent()
	require.NoError(t, err)
	assert.Empty(t, content)
}

func TestClipboardError(t *testing.T) {
	quiet(t)
	sp := &SourceProvider{Clipboard: func() (string, error) { return "", errors.New("no display") }}
	_, err := sp.GetContent()
	assert.ErrorContains(t, err, "no display")
}
