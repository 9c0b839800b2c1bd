package engine

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"
)

// DefaultMaxContextTokens bounds the file content sent with a prompt when
// the extension context does not say otherwise.
const DefaultMaxContextTokens = 6000

const responseFormat = `## Response Format

Answer with a short explanation followed by ONE fenced json block:

` + "```json" + `
{"changes": [
  {"file": "/abs/path", "action": "replace", "line": 3, "position": 0,
   "finishLine": 5, "finishPosition": 12, "reason": "why", "newCode": "..."}
]}
` + "```" + `

- action is one of add, replace, remove, create, remove_file.
- line and finishLine are 1-based, position and finishPosition are 0-based columns; the range is inclusive.
- create and remove_file must set line, position, finishLine and finishPosition to null.
- Every change needs a reason.
- A unified diff in a fenced diff block is accepted instead of json for large rewrites.
`

// maxListedFiles caps the project file listing of a prompt.
const maxListedFiles = 200

// promptSpec is what a language variant contributes to the shared
// prompt layout.
type promptSpec struct {
	engine      PromptEngine
	system      string
	fence       string
	conventions []string
}

// buildPrompt assembles the prompt shared by every engine.
func buildPrompt(ctx context.Context, spec promptSpec, prompt string, editor *EditorContext, ext *ExtensionContext, chat ChatStates) (*AIPrompt, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		return nil, ErrEmptyPrompt
	}
	if editor == nil {
		return nil, fmt.Errorf("%w: no active editor", ErrMissingEditorState)
	}
	if editor.FilePath == "" {
		return nil, fmt.Errorf("%w: active editor has no file path", ErrMissingEditorState)
	}

	var root string
	var files []string
	budget := DefaultMaxContextTokens
	if ext != nil {
		root = ext.WorkspaceRoot
		files = ext.Files
		if ext.MaxContextTokens > 0 {
			budget = ext.MaxContextTokens
		}
	}

	var sys strings.Builder
	sys.WriteString(spec.system)
	sys.WriteString("\n\n")
	if len(spec.conventions) > 0 {
		sys.WriteString("## Conventions\n")
		for _, c := range spec.conventions {
			sys.WriteString("- " + c + "\n")
		}
		sys.WriteString("\n")
	}
	sys.WriteString(responseFormat)

	var user strings.Builder
	user.WriteString("## Editor Context\n\n")
	user.WriteString(fmt.Sprintf("**File:** %s\n", editor.FilePath))
	if root != "" {
		if rel, err := filepath.Rel(root, editor.FilePath); err == nil && !strings.HasPrefix(rel, "..") {
			user.WriteString(fmt.Sprintf("**Project path:** %s\n", filepath.ToSlash(rel)))
		}
		user.WriteString(fmt.Sprintf("**Workspace:** %s\n", root))
	}
	user.WriteString(fmt.Sprintf("**Language:** %s\n", spec.engine.Language()))
	if editor.Cursor != nil {
		user.WriteString(fmt.Sprintf("**Cursor:** line %d, column %d\n", editor.Cursor.Line, editor.Cursor.Column))
	}
	if pkgs := ExternalPackages(spec.engine, editor.Content); len(pkgs) > 0 {
		user.WriteString(fmt.Sprintf("**External packages:** %s\n", strings.Join(pkgs, ", ")))
	}
	user.WriteString("\n")

	if sel := editor.Selection; sel != nil && sel.Text != "" {
		user.WriteString(fmt.Sprintf("### Selection (line %d:%d to %d:%d)\n\n", sel.Start.Line, sel.Start.Column, sel.End.Line, sel.End.Column))
		user.WriteString("```" + spec.fence + "\n" + sel.Text + "\n```\n\n")
	}

	if editor.Content != "" {
		content, truncated := truncateToTokens(editor.Content, budget)
		user.WriteString("### File Content\n\n")
		user.WriteString("```" + spec.fence + "\n")
		user.WriteString(numberLines(content))
		user.WriteString("\n```\n")
		if truncated {
			user.WriteString("(file truncated to fit the context window)\n")
		}
		user.WriteString("\n")
	}

	if len(files) > 0 {
		user.WriteString("### Project Files\n\n")
		for i, f := range files {
			if i == maxListedFiles {
				user.WriteString(fmt.Sprintf("- ... and %d more\n", len(files)-maxListedFiles))
				break
			}
			user.WriteString("- " + f + "\n")
		}
		user.WriteString("\n")
	}

	user.WriteString("## Request\n\n")
	user.WriteString(prompt)
	user.WriteString("\n")

	messages := make([]Message, 0, len(chat.Turns)+2)
	messages = append(messages, Message{Role: RoleSystem, Content: sys.String()})
	for _, turn := range chat.Turns {
		if strings.TrimSpace(turn.Content) == "" {
			continue
		}
		role := turn.Role
		if role != RoleAssistant {
			role = RoleUser
		}
		messages = append(messages, Message{Role: role, Content: turn.Content})
	}
	messages = append(messages, Message{Role: RoleUser, Content: user.String()})

	return &AIPrompt{
		Language:      spec.engine.Language(),
		Messages:      messages,
		TokenEstimate: MessagesTokenEstimate(messages),
		CreatedAt:     time.Now().UTC(),
	}, nil
}

// numberLines prefixes each line with its 1-based number so the model can
// address coordinates.
func numberLines(content string) string {
	lines := strings.Split(strings.TrimRight(content, "\n"), "\n")
	width := len(fmt.Sprint(len(lines)))
	var b strings.Builder
	for i, line := range lines {
		if i > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(fmt.Sprintf("%*d| %s", width, i+1, line))
	}
	return b.String()
}
