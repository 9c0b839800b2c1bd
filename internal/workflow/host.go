// Package workflow wraps editor services used around an AI edit:
// formatting, debugging, terminals and hover lookups. Every utility
// checks its inputs before touching the host and reports failures as a
// notification plus a false result.
package workflow

import "context"

// Level is the severity of a host notification.
type Level int

const (
	LevelInfo Level = iota
	LevelWarn
	LevelError
)

func (l Level) String() string {
	switch l {
	case LevelWarn:
		return "warn"
	case LevelError:
		return "error"
	default:
		return "info"
	}
}

// Notifier shows a message to the user.
type Notifier interface {
	Notify(ctx context.Context, msg string, level Level)
}

// FormatHost formats documents.
type FormatHost interface {
	Notifier
	FormatDocument(ctx context.Context, path string) error
}

// DebugConfig is a debug launch configuration. Extra carries
// adapter-specific keys such as program or args.
type DebugConfig struct {
	Type    string         `json:"type" msgpack:"type"`
	Request string         `json:"request" msgpack:"request"`
	Name    string         `json:"name" msgpack:"name"`
	Extra   map[string]any `json:"extra,omitempty" msgpack:"-"`
}

// Map flattens the configuration into the shape debug adapters expect.
func (c DebugConfig) Map() map[string]any {
	m := make(map[string]any, len(c.Extra)+3)
	for k, v := range c.Extra {
		m[k] = v
	}
	m["type"] = c.Type
	m["request"] = c.Request
	m["name"] = c.Name
	return m
}

// DebugHost starts and stops debug sessions.
type DebugHost interface {
	Notifier
	StartDebugging(ctx context.Context, folder string, config DebugConfig) error
	StopDebugging(ctx context.Context) error
}

// Terminal is an integrated terminal owned by the host.
type Terminal interface {
	SendText(ctx context.Context, text string) error
	Show(ctx context.Context) error
}

// TerminalHost creates terminals.
type TerminalHost interface {
	Notifier
	CreateTerminal(ctx context.Context, cwd string) (Terminal, error)
}

// HoverHost asks the language server about a symbol.
type HoverHost interface {
	Notifier
	Hover(ctx context.Context, path string, line, col int) (string, error)
}

// Host is everything the workflow utilities need from an editor.
type Host interface {
	FormatHost
	DebugHost
	TerminalHost
	HoverHost
}
