package parser

import (
	"context"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/qlinetech/qcode/internal/apply"
	"github.com/qlinetech/qcode/internal/fs"
	"github.com/qlinetech/qcode/model"
)

func newOptions(t *testing.T, extensions ...string) (Options, afero.Fs) {
	t.Helper()
	fsys := afero.NewMemMapFs()
	require.NoError(t, fsys.MkdirAll("/p", 0o755))
	resolver, err := fs.NewPathResolver(fsys, []string{"/p"})
	require.NoError(t, err)
	return Options{Resolver: resolver, Files: fs.NewFiles(fsys), Extensions: extensions}, fsys
}

func TestExtractCodeBlocks(t *testing.T) {
	src := "Intro.\n\n### `cmd/main.go`\n\n```go title\npackage main\n```\n\nUpdate `lib.py`:\n```python\nx = 1\n```\n\n```diff\n-a\n+b\n```\n"
	blocks, err := ExtractCodeBlocks([]byte(src))
	require.NoError(t, err)
	require.Len(t, blocks, 3)

	assert.Equal(t, "go", blocks[0].Lang)
	assert.Equal(t, "`cmd/main.go`", blocks[0].Hint)
	assert.Equal(t, "package main\n", blocks[0].Content)

	assert.Equal(t, "python", blocks[1].Lang)
	assert.Equal(t, "Update `lib.py`:", blocks[1].Hint)

	assert.Equal(t, "diff", blocks[2].Lang)
	assert.Equal(t, "-a\n+b\n", blocks[2].Content)
}

func TestExtractPathFromHint(t *testing.T) {
	assert.Equal(t, "src/app.go", extractPathFromHint("File: `src/app.go`"))
	assert.Equal(t, "", extractPathFromHint("Run `go run main.go` to start"))
	assert.Equal(t, "", extractPathFromHint("no path here"))
}

func TestCreatePlanJSONChanges(t *testing.T) {
	opts, fsys := newOptions(t)
	require.NoError(t, afero.WriteFile(fsys, "/p/app.py", []byte("print(1)\n"), 0o644))

	response := "Here you go:\n\n```json\n" + `{"changes": [
  {"file": "app.py", "action": "add", "line": 1, "position": 0, "finishLine": 1, "finishPosition": 0, "reason": "import", "newCode": "import os\n"},
  {"file": "app.py", "action": "create", "line": 1, "position": null, "finishLine": null, "finishPosition": null, "reason": "bad"},
  {"file": "/p/other.py", "action": "remove_file", "reason": "unused"}
]}` + "\n```\n"

	plan, err := CreatePlan(context.Background(), response, opts)
	require.NoError(t, err)
	require.Len(t, plan.Changes, 2)
	require.Len(t, plan.Failed, 1)
	assert.ErrorIs(t, plan.Failed[0].Err, model.ErrInvalidChange)

	add := plan.Changes[0]
	assert.Equal(t, "/p/app.py", add.File)
	require.NotNil(t, add.RelativePath)
	assert.Equal(t, "app.py", *add.RelativePath)

	remove := plan.Changes[1]
	assert.Equal(t, model.ActionRemoveFile, remove.Action)
	require.NotNil(t, remove.RelativePath)
	assert.Equal(t, "other.py", *remove.RelativePath)

	assert.Equal(t, []string{"/p/app.py", "/p/other.py"}, plan.Files())
}

func TestCreatePlanAddWithoutFinish(t *testing.T) {
	opts, _ := newOptions(t)
	response := "```json\n" + `[{"file": "app.py", "action": "add", "line": 3, "position": 2, "reason": "log", "newCode": "x"}]` + "\n```\n"

	plan, err := CreatePlan(context.Background(), response, opts)
	require.NoError(t, err)
	require.Empty(t, plan.Failed)
	require.Len(t, plan.Changes, 1)

	add := plan.Changes[0]
	require.NotNil(t, add.FinishLine)
	require.NotNil(t, add.FinishPosition)
	assert.Equal(t, 3, *add.FinishLine)
	assert.Equal(t, 2, *add.FinishPosition)
}

func TestCreatePlanJSONArrayAndBadJSON(t *testing.T) {
	opts, _ := newOptions(t)
	response := "```json\n[{\"file\": \"a.go\", \"action\": \"create\", \"reason\": \"new\", \"newCode\": \"package a\\n\"}]\n```\n\n```json\n{not json\n```\n"

	plan, err := CreatePlan(context.Background(), response, opts)
	require.NoError(t, err)
	require.Len(t, plan.Changes, 1)
	assert.Equal(t, "/p/a.go", plan.Changes[0].File)
	require.Len(t, plan.Failed, 1)
}

func TestCreatePlanWholeFileBlocks(t *testing.T) {
	opts, fsys := newOptions(t)
	require.NoError(t, afero.WriteFile(fsys, "/p/main.go", []byte("package old\n\nfunc f() {}\n"), 0o644))

	response := "`main.go`\n```go\npackage main\n```\n\n`docs/new.md`\n```markdown\n# New\n```\n"
	plan, err := CreatePlan(context.Background(), response, opts)
	require.NoError(t, err)
	require.Len(t, plan.Changes, 2)

	replace := plan.Changes[0]
	assert.Equal(t, model.ActionReplace, replace.Action)
	assert.Equal(t, "/p/main.go", replace.File)

	create := plan.Changes[1]
	assert.Equal(t, model.ActionCreate, create.Action)
	assert.Equal(t, "/p/docs/new.md", create.File)
	assert.Equal(t, "# New\n", create.NewCode)

	// The full-range replace yields exactly the block content.
	results := apply.New(opts.Files, apply.Options{}).ApplyCodeChanges(context.Background(), plan.Changes)
	for _, r := range results {
		require.NoError(t, r.Err)
	}
	data, err := afero.ReadFile(fsys, "/p/main.go")
	require.NoError(t, err)
	assert.Equal(t, "package main\n", string(data))
}

func TestCreatePlanDiffs(t *testing.T) {
	opts, fsys := newOptions(t)
	require.NoError(t, afero.WriteFile(fsys, "/p/a.txt", []byte("one\n"), 0o644))

	response := "```diff\n--- a/a.txt\n+++ b/a.txt\n@@ -1 +1 @@\n-one\n+1\n```\n\n```diff\n@@ -1 +1 @@\n-x\n+y\n```\n"
	plan, err := CreatePlan(context.Background(), response, opts)
	require.NoError(t, err)
	require.Len(t, plan.Diffs, 1)
	require.Len(t, plan.Failed, 1)

	d := plan.Diffs[0]
	assert.Equal(t, "/p/a.txt", d.File)
	assert.Equal(t, model.DiffModify, d.Action)
	assert.False(t, d.IsValidated())
}

func TestCreatePlanWholeFileWinsOverDiff(t *testing.T) {
	opts, _ := newOptions(t)
	response := "```diff\n--- /dev/null\n+++ b/x.go\n@@ -0,0 +1 @@\n+package x\n```\n\n`x.go`\n```go\npackage y\n```\n"

	plan, err := CreatePlan(context.Background(), response, opts)
	require.NoError(t, err)
	assert.Empty(t, plan.Diffs)
	require.Len(t, plan.Changes, 1)
	assert.Equal(t, "package y\n", plan.Changes[0].NewCode)
}

func TestCreatePlanExtensionFilter(t *testing.T) {
	response := "`a.go`\n```go\npackage a\n```\n\n`b.py`\n```python\nb = 1\n```\n\n```diff\n--- /dev/null\n+++ b/c.txt\n@@ -0,0 +1 @@\n+c\n```\n"

	opts, _ := newOptions(t, ".go")
	plan, err := CreatePlan(context.Background(), response, opts)
	require.NoError(t, err)
	require.Len(t, plan.Changes, 1)
	assert.Equal(t, "/p/a.go", plan.Changes[0].File)
	assert.Empty(t, plan.Diffs)

	opts, _ = newOptions(t, DiffOnly)
	plan, err = CreatePlan(context.Background(), response, opts)
	require.NoError(t, err)
	assert.Empty(t, plan.Changes)
	require.Len(t, plan.Diffs, 1)
	assert.Equal(t, model.DiffCreate, plan.Diffs[0].Action)
}

func TestCreatePlanNothing(t *testing.T) {
	opts, _ := newOptions(t)
	plan, err := CreatePlan(context.Background(), "Just prose, and `a command` with\n```sh\nls\n```\n", opts)
	assert.ErrorIs(t, err, ErrNoChanges)
	assert.True(t, plan.Empty())
}
