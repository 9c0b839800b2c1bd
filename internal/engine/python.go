package engine

import (
	"context"
	"regexp"
	"strings"
)

// pythonImportRegex captures the module of a from-import, or the whole
// module list of an import statement ("os, numpy as np").
var pythonImportRegex = regexp.MustCompile(`(?m)^[ \t]*(?:from[ \t]+|import[ \t]+)(?P<module>(?:\.*[A-Za-z_][\w.]*|\.+)(?:[ \t]+as[ \t]+\w+)?(?:[ \t]*,[ \t]*[A-Za-z_][\w.]*(?:[ \t]+as[ \t]+\w+)?)*)`)

// PythonEngine targets Python projects.
type PythonEngine struct{}

func NewPythonEngine() *PythonEngine { return &PythonEngine{} }

func (e *PythonEngine) Language() Language { return Python }

func (e *PythonEngine) ProcessPrompt(ctx context.Context, prompt string, editor *EditorContext, ext *ExtensionContext, chat ChatStates) (*AIPrompt, error) {
	return buildPrompt(ctx, promptSpec{
		engine: e,
		system: "You are an expert Python developer. You write idiomatic, PEP 8 compliant code " +
			"with type hints and docstrings where they help, and you keep edits minimal and precise.",
		fence: "python",
		conventions: []string{
			"Follow PEP 8 naming and 4-space indentation.",
			"Prefer the standard library before adding dependencies.",
			"Keep imports at the top of the module, grouped stdlib, third-party, local.",
		},
	}, prompt, editor, ext, chat)
}

func (e *PythonEngine) ImportRegex() *regexp.Regexp { return pythonImportRegex }

// IsExternalImport treats every import not starting with "." as external.
func (e *PythonEngine) IsExternalImport(path string) bool {
	return !strings.HasPrefix(path, ".")
}

// splitImport turns "os, numpy as np" into its module names.
func (e *PythonEngine) splitImport(match string) []string {
	var out []string
	for _, part := range strings.Split(match, ",") {
		if fields := strings.Fields(part); len(fields) > 0 {
			out = append(out, fields[0])
		}
	}
	return out
}

func (e *PythonEngine) ExtractPackageName(path string) (string, bool) {
	if !e.IsExternalImport(path) {
		return "", false
	}
	name, _, _ := strings.Cut(path, ".")
	if name == "" {
		return "", false
	}
	return name, true
}

func (e *PythonEngine) FoldersToSkip() map[string]struct{} {
	return skipSet(
		"__pycache__", ".venv", "venv", "env", ".env", "build", "dist",
		".mypy_cache", ".pytest_cache", ".ruff_cache", ".tox", ".eggs", "site-packages",
	)
}
