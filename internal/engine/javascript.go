package engine

import (
	"context"
	"regexp"
	"strings"
)

var jsImportRegex = regexp.MustCompile(
	`(?m)(?:\bimport\s+(?:type\s+)?(?:[\w*${}\s,]+?\s+from\s+)?|\bexport\s+(?:type\s+)?[\w*${}\s,]+?\s+from\s+|\brequire\s*\(\s*|\bimport\s*\(\s*)` +
		`['"](?P<module>[^'"\n]+)['"]`)

// JavaScriptEngine targets JavaScript and TypeScript projects.
type JavaScriptEngine struct {
	lang Language
}

func NewJavaScriptEngine() *JavaScriptEngine { return &JavaScriptEngine{lang: JavaScript} }

func NewTypeScriptEngine() *JavaScriptEngine { return &JavaScriptEngine{lang: TypeScript} }

func (e *JavaScriptEngine) Language() Language { return e.lang }

func (e *JavaScriptEngine) ProcessPrompt(ctx context.Context, prompt string, editor *EditorContext, ext *ExtensionContext, chat ChatStates) (*AIPrompt, error) {
	spec := promptSpec{
		engine: e,
		system: "You are an expert JavaScript developer. You write modern ES modules, " +
			"prefer const and async/await, and keep edits minimal.",
		fence: "javascript",
		conventions: []string{
			"Use ES module syntax unless the file already uses require.",
			"Do not introduce new dependencies without saying so in the reason.",
		},
	}
	if e.lang == TypeScript {
		spec.system = "You are an expert TypeScript developer. You write strictly typed, modern TypeScript " +
			"without any, and keep edits minimal."
		spec.fence = "typescript"
		spec.conventions = append(spec.conventions, "Keep the code compiling under strict mode.")
	}
	return buildPrompt(ctx, spec, prompt, editor, ext, chat)
}

func (e *JavaScriptEngine) ImportRegex() *regexp.Regexp { return jsImportRegex }

// IsExternalImport is false for relative and absolute paths and for
// node: builtins.
func (e *JavaScriptEngine) IsExternalImport(path string) bool {
	if path == "" {
		return false
	}
	return !strings.HasPrefix(path, ".") && !strings.HasPrefix(path, "/") && !strings.HasPrefix(path, "node:")
}

// ExtractPackageName returns the npm package, keeping the scope of
// scoped packages.
func (e *JavaScriptEngine) ExtractPackageName(path string) (string, bool) {
	if !e.IsExternalImport(path) {
		return "", false
	}
	parts := strings.Split(path, "/")
	if strings.HasPrefix(path, "@") {
		if len(parts) < 2 || parts[1] == "" {
			return "", false
		}
		return parts[0] + "/" + parts[1], true
	}
	return parts[0], true
}

func (e *JavaScriptEngine) FoldersToSkip() map[string]struct{} {
	return skipSet("node_modules", "dist", "build", "coverage", ".next", ".nuxt", ".turbo", ".cache", "out")
}
