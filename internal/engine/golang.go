package engine

import (
	"context"
	"regexp"
	"strings"
)

// goImportRegex matches single imports and the lines of an import block.
// A line holding only a string literal outside an import block matches
// too; callers needing exactness should parse the file.
var goImportRegex = regexp.MustCompile(`(?m)^[ \t]*(?:import[ \t]+(?:\([ \t]*)?)?(?:[\w.]+[ \t]+)?"(?P<module>[^"\n]+)"[ \t]*\)?[ \t]*(?://.*)?$`)

// hostsWithOwner are code hosts whose module roots are host/owner/repo.
var hostsWithOwner = map[string]struct{}{
	"github.com":    {},
	"gitlab.com":    {},
	"bitbucket.org": {},
	"golang.org":    {},
	"codeberg.org":  {},
}

// GoEngine targets Go modules. ModulePath, when known, marks imports of
// the module itself as local.
type GoEngine struct {
	ModulePath string
}

func NewGoEngine(modulePath string) *GoEngine { return &GoEngine{ModulePath: modulePath} }

func (e *GoEngine) Language() Language { return Go }

func (e *GoEngine) ProcessPrompt(ctx context.Context, prompt string, editor *EditorContext, ext *ExtensionContext, chat ChatStates) (*AIPrompt, error) {
	conventions := []string{
		"Code must be gofmt formatted.",
		"Return errors explicitly and wrap them with fmt.Errorf and %w.",
		"Accept interfaces, return structs; take context.Context first on blocking calls.",
	}
	modulePath := e.ModulePath
	if modulePath == "" && ext != nil {
		modulePath = ext.ModulePath
	}
	if modulePath != "" {
		conventions = append(conventions, "The module path is "+modulePath+".")
	}
	return buildPrompt(ctx, promptSpec{
		engine:      e,
		system:      "You are an expert Go developer. You write simple, idiomatic Go that reads like the standard library.",
		fence:       "go",
		conventions: conventions,
	}, prompt, editor, ext, chat)
}

func (e *GoEngine) ImportRegex() *regexp.Regexp { return goImportRegex }

// IsExternalImport is true for paths whose first element looks like a
// host name and that are not inside ModulePath. Standard library and
// relative imports are not external.
func (e *GoEngine) IsExternalImport(path string) bool {
	if path == "" || strings.HasPrefix(path, ".") || strings.HasPrefix(path, "/") {
		return false
	}
	if e.ModulePath != "" && (path == e.ModulePath || strings.HasPrefix(path, e.ModulePath+"/")) {
		return false
	}
	first, _, _ := strings.Cut(path, "/")
	return strings.Contains(first, ".")
}

// ExtractPackageName returns the module root of an external import.
func (e *GoEngine) ExtractPackageName(path string) (string, bool) {
	if !e.IsExternalImport(path) {
		return "", false
	}
	parts := strings.Split(path, "/")
	switch {
	case parts[0] == "gopkg.in" && len(parts) >= 2:
		return strings.Join(parts[:2], "/"), true
	case len(parts) >= 3:
		if _, ok := hostsWithOwner[parts[0]]; ok {
			return strings.Join(parts[:3], "/"), true
		}
	}
	return path, true
}

func (e *GoEngine) FoldersToSkip() map[string]struct{} {
	return skipSet("vendor", "bin", "testdata", "node_modules", "dist")
}
