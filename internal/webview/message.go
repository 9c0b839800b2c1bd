package webview

import (
	"context"

	"github.com/qlinetech/qcode/internal/engine"
	"github.com/qlinetech/qcode/internal/workflow"
	"github.com/qlinetech/qcode/model"
)

// Inbound message types sent by the page.
const (
	TypeSwitchPage = "switchPage"
	TypePrompt     = "prompt"
	TypeApply      = "apply"
	TypeFormat     = "format"
	TypeRunCommand = "runCommand"
	TypeStartDebug = "startDebug"
	TypeStopDebug  = "stopDebug"
)

// Outbound message types sent to the page.
const (
	TypeRender = "render"
	TypeResult = "result"
	TypeError  = "error"
)

// Message is a message from the page to the panel.
type Message struct {
	Type    string                `json:"type"`
	Page    string                `json:"page,omitempty"`
	Text    string                `json:"text,omitempty"`
	Path    string                `json:"path,omitempty"`
	Cwd     string                `json:"cwd,omitempty"`
	Command string                `json:"command,omitempty"`
	Folder  string                `json:"folder,omitempty"`
	Config  *workflow.DebugConfig `json:"config,omitempty"`
}

// Outbound is a message from the panel to the page.
type Outbound struct {
	Type    string         `json:"type"`
	Page    string         `json:"page,omitempty"`
	HTML    string         `json:"html,omitempty"`
	Request string         `json:"request,omitempty"`
	OK      bool           `json:"ok,omitempty"`
	Summary *model.Summary `json:"summary,omitempty"`
	Error   string         `json:"error,omitempty"`
}

// HistoryItem is one applied batch as shown on the history page.
type HistoryItem struct {
	ID      string
	When    string
	Summary string
	Files   []string
}

// Actions is what the panel can ask the application to do. Every method
// receives the panel's context, which is cancelled when it is disposed.
type Actions interface {
	Ask(ctx context.Context, prompt string, chat engine.ChatStates) (string, error)
	Preview(ctx context.Context, response string) (string, error)
	Apply(ctx context.Context, response string) (model.Summary, error)
	Format(ctx context.Context, path string) bool
	Run(ctx context.Context, cwd, command string) bool
	StartDebug(ctx context.Context, folder string, config workflow.DebugConfig) bool
	StopDebug(ctx context.Context) bool
	History(ctx context.Context) ([]HistoryItem, error)
	Settings() map[string]string
}
