// Package engine builds model prompts and import metadata for the
// programming language of the project being edited.
package engine

import (
	"context"
	"errors"
	"regexp"
	"sort"
	"time"
)

// Language identifies the language of the analyzed project.
type Language string

const (
	Python     Language = "python"
	Go         Language = "go"
	JavaScript Language = "javascript"
	TypeScript Language = "typescript"
	Rust       Language = "rust"
)

var (
	ErrMissingEditorState = errors.New("missing editor state")
	ErrEmptyPrompt        = errors.New("empty prompt")
	ErrUnknownLanguage    = errors.New("no engine for language")
)

// Role of a prompt message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one turn of a structured prompt.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// AIPrompt is the structured prompt handed to inference.
type AIPrompt struct {
	Language      Language  `json:"language"`
	Messages      []Message `json:"messages"`
	TokenEstimate int       `json:"tokenEstimate"`
	CreatedAt     time.Time `json:"createdAt"`
}

// Position is a cursor location, 1-based line and 0-based column.
type Position struct {
	Line   int `json:"line" msgpack:"line"`
	Column int `json:"column" msgpack:"column"`
}

// Selection is the visual selection in the active editor.
type Selection struct {
	Start Position `json:"start" msgpack:"start"`
	End   Position `json:"end" msgpack:"end"`
	Text  string   `json:"text" msgpack:"text"`
}

// EditorContext is the state of the active editor at prompt time.
type EditorContext struct {
	FilePath  string     `json:"filePath" msgpack:"path"`
	Language  string     `json:"language" msgpack:"filetype"`
	Content   string     `json:"content" msgpack:"content"`
	Cursor    *Position  `json:"cursor,omitempty" msgpack:"cursor"`
	Selection *Selection `json:"selection,omitempty" msgpack:"selection"`
}

// ExtensionContext carries process-wide settings.
type ExtensionContext struct {
	WorkspaceRoot    string `json:"workspaceRoot"`
	ModulePath       string `json:"modulePath,omitempty"`
	Model            string `json:"model,omitempty"`
	MaxContextTokens int    `json:"maxContextTokens,omitempty"`
	// Files lists project files relative to WorkspaceRoot.
	Files []string `json:"files,omitempty"`
}

// ChatTurn is one previous exchange in the chat panel.
type ChatTurn struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// ChatStates is the chat history that precedes a prompt.
type ChatStates struct {
	Turns []ChatTurn `json:"turns"`
}

// PromptEngine is the per-language strategy. Implementations are
// stateless and safe for concurrent use.
type PromptEngine interface {
	Language() Language
	// ProcessPrompt composes the system instruction, the editor and
	// project context, the chat history and the user prompt.
	// It never mutates its inputs.
	ProcessPrompt(ctx context.Context, prompt string, editor *EditorContext, ext *ExtensionContext, chat ChatStates) (*AIPrompt, error)
	// ImportRegex matches import statements; the imported module is the
	// "module" submatch. Use it with FindAll* for whole files.
	ImportRegex() *regexp.Regexp
	IsExternalImport(path string) bool
	// ExtractPackageName returns the distributable package of an
	// external import, or false when none can be derived.
	ExtractPackageName(path string) (string, bool)
	// FoldersToSkip returns a fresh set of directory names to leave out
	// when walking a project.
	FoldersToSkip() map[string]struct{}
}

// ExtractImports returns every imported module found in src, in order.
func ExtractImports(e PromptEngine, src string) []string {
	re := e.ImportRegex()
	idx := re.SubexpIndex("module")
	if idx < 0 {
		return nil
	}
	splitter, _ := e.(importSplitter)
	var out []string
	for _, m := range re.FindAllStringSubmatch(src, -1) {
		switch {
		case m[idx] == "":
		case splitter != nil:
			out = append(out, splitter.splitImport(m[idx])...)
		default:
			out = append(out, m[idx])
		}
	}
	return out
}

// importSplitter is implemented by engines whose import statements can
// name several modules in one match.
type importSplitter interface {
	splitImport(match string) []string
}

// ExternalPackages returns the sorted, de-duplicated distributable
// packages imported by src.
func ExternalPackages(e PromptEngine, src string) []string {
	seen := make(map[string]struct{})
	for _, imp := range ExtractImports(e, src) {
		if !e.IsExternalImport(imp) {
			continue
		}
		if name, ok := e.ExtractPackageName(imp); ok {
			seen[name] = struct{}{}
		}
	}
	pkgs := make([]string, 0, len(seen))
	for name := range seen {
		pkgs = append(pkgs, name)
	}
	sort.Strings(pkgs)
	return pkgs
}

func skipSet(names ...string) map[string]struct{} {
	set := make(map[string]struct{}, len(names)+len(commonSkip))
	for _, n := range commonSkip {
		set[n] = struct{}{}
	}
	for _, n := range names {
		set[n] = struct{}{}
	}
	return set
}

var commonSkip = []string{".git", ".hg", ".svn", ".idea", ".vscode", ".qcode"}
