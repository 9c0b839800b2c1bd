package engine

import (
	"bufio"
	"bytes"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"
)

// Registry maps project languages to engines.
type Registry struct {
	engines map[Language]PromptEngine
}

// NewRegistry registers engines by their Language. Later engines replace
// earlier ones for the same language.
func NewRegistry(engines ...PromptEngine) *Registry {
	r := &Registry{engines: make(map[Language]PromptEngine, len(engines))}
	for _, e := range engines {
		r.engines[e.Language()] = e
	}
	return r
}

// Default returns a registry with every built-in engine.
func Default(goModulePath string) *Registry {
	return NewRegistry(
		NewPythonEngine(),
		NewGoEngine(goModulePath),
		NewJavaScriptEngine(),
		NewTypeScriptEngine(),
		NewRustEngine(),
	)
}

// Get returns the engine for lang.
func (r *Registry) Get(lang Language) (PromptEngine, error) {
	e, ok := r.engines[Language(strings.ToLower(string(lang)))]
	if !ok {
		return nil, fmt.Errorf("%w %q", ErrUnknownLanguage, lang)
	}
	return e, nil
}

var extensionLanguages = map[string]Language{
	".py":  Python,
	".pyi": Python,
	".go":  Go,
	".js":  JavaScript,
	".jsx": JavaScript,
	".mjs": JavaScript,
	".cjs": JavaScript,
	".ts":  TypeScript,
	".tsx": TypeScript,
	".rs":  Rust,
}

// filetypeLanguages maps editor filetypes to languages.
var filetypeLanguages = map[string]Language{
	"python":          Python,
	"go":              Go,
	"javascript":      JavaScript,
	"javascriptreact": JavaScript,
	"typescript":      TypeScript,
	"typescriptreact": TypeScript,
	"rust":            Rust,
}

// LanguageForFile guesses the language from a file name or an editor
// filetype.
func LanguageForFile(path, filetype string) (Language, bool) {
	if lang, ok := filetypeLanguages[filetype]; ok {
		return lang, true
	}
	lang, ok := extensionLanguages[strings.ToLower(filepath.Ext(path))]
	return lang, ok
}

// ForEditor picks the engine for the active editor.
func (r *Registry) ForEditor(editor *EditorContext) (PromptEngine, error) {
	if editor == nil {
		return nil, fmt.Errorf("%w: no active editor", ErrMissingEditorState)
	}
	lang, ok := LanguageForFile(editor.FilePath, editor.Language)
	if !ok {
		return nil, fmt.Errorf("%w for %s", ErrUnknownLanguage, editor.FilePath)
	}
	return r.Get(lang)
}

// manifests lists, in priority order, the files that identify a project.
var manifests = []struct {
	file string
	lang Language
}{
	{"go.mod", Go},
	{"Cargo.toml", Rust},
	{"tsconfig.json", TypeScript},
	{"package.json", JavaScript},
	{"pyproject.toml", Python},
	{"setup.py", Python},
	{"requirements.txt", Python},
	{"Pipfile", Python},
}

// Detect returns the project language declared by manifest files in root.
func Detect(fsys afero.Fs, root string) (Language, bool) {
	for _, m := range manifests {
		if ok, _ := afero.Exists(fsys, filepath.Join(root, m.file)); ok {
			return m.lang, true
		}
	}
	return "", false
}

// GoModulePath reads the module path from root/go.mod, or "" if absent.
func GoModulePath(fsys afero.Fs, root string) string {
	data, err := afero.ReadFile(fsys, filepath.Join(root, "go.mod"))
	if err != nil {
		return ""
	}
	scanner := bufio.NewScanner(bytes.NewReader(data))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if rest, ok := strings.CutPrefix(line, "module"); ok && (rest == "" || rest[0] == ' ' || rest[0] == '\t') {
			return strings.Trim(strings.TrimSpace(rest), `"`)
		}
	}
	return ""
}
