package engine

import (
	"context"
	"regexp"
	"strings"
)

var rustImportRegex = regexp.MustCompile(`(?m)^[ \t]*(?:pub(?:\([\w:]+\))?[ \t]+)?(?:use|extern[ \t]+crate)[ \t]+(?:::)?(?P<module>[A-Za-z_][\w]*(?:::[A-Za-z_][\w]*)*)`)

var rustLocalRoots = map[string]struct{}{
	"crate": {}, "self": {}, "super": {}, "std": {}, "core": {}, "alloc": {},
}

// RustEngine targets Cargo projects.
type RustEngine struct{}

func NewRustEngine() *RustEngine { return &RustEngine{} }

func (e *RustEngine) Language() Language { return Rust }

func (e *RustEngine) ProcessPrompt(ctx context.Context, prompt string, editor *EditorContext, ext *ExtensionContext, chat ChatStates) (*AIPrompt, error) {
	return buildPrompt(ctx, promptSpec{
		engine: e,
		system: "You are an expert Rust developer. You write safe, idiomatic Rust that passes clippy.",
		fence:  "rust",
		conventions: []string{
			"Code must be rustfmt formatted.",
			"Propagate errors with ? and Result; avoid unwrap outside tests.",
		},
	}, prompt, editor, ext, chat)
}

func (e *RustEngine) ImportRegex() *regexp.Regexp { return rustImportRegex }

func (e *RustEngine) IsExternalImport(path string) bool {
	if path == "" {
		return false
	}
	root, _, _ := strings.Cut(path, "::")
	_, local := rustLocalRoots[root]
	return !local
}

func (e *RustEngine) ExtractPackageName(path string) (string, bool) {
	if !e.IsExternalImport(path) {
		return "", false
	}
	root, _, _ := strings.Cut(path, "::")
	return root, true
}

func (e *RustEngine) FoldersToSkip() map[string]struct{} {
	return skipSet("target")
}
