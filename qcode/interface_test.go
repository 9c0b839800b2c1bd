package qcode_test

import (
	"context"
	"errors"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/qlinetech/qcode/qcode"
)

func TestLibraryInterface(t *testing.T) {
	mem := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(mem, "/work/dummy.go", []byte("package main\n\nfunc main() {}\n"), 0o644))
	noEditor := qcode.WithEditor(func() (qcode.Editor, error) { return nil, errors.New("no editor") })

	content := "`dummy.go`\n\n```go\npackage main\n\nfunc main() {\n\t// new content\n}\n```\n\n`notes.md`\n\n```md\nskip me\n```\n"
	result, err := qcode.Apply(context.Background(), content, qcode.Config{
		Extensions: []string{"go"},
		LookupDirs: []string{"/work"},
	}, qcode.WithFs(mem), noEditor)
	require.NoError(t, err)
	assert.Equal(t, []string{"/work/dummy.go"}, result["Modified"])
	assert.Empty(t, result["Failed"])

	data, err := afero.ReadFile(mem, "/work/dummy.go")
	require.NoError(t, err)
	assert.Equal(t, "package main\n\nfunc main() {\n\t// new content\n}\n", string(data))

	exists, _ := afero.Exists(mem, "/work/notes.md")
	assert.False(t, exists)
}

func TestLibraryBufferModeNeedsEditor(t *testing.T) {
	noEditor := qcode.WithEditor(func() (qcode.Editor, error) { return nil, errors.New("no editor") })
	_, err := qcode.Apply(context.Background(), "`a.go`\n\n```go\npackage a\n```\n", qcode.Config{
		Buffer:     true,
		LookupDirs: []string{"/work"},
	}, qcode.WithFs(afero.NewMemMapFs()), noEditor)
	assert.ErrorContains(t, err, "buffer mode needs a running Neovim")
}
