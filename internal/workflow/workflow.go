package workflow

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

var (
	ErrEmptyPath    = errors.New("no file path given")
	ErrEmptyCommand = errors.New("no command given")
	ErrEmptyFolder  = errors.New("no workspace folder given")
	ErrBadConfig    = errors.New("debug configuration needs type, request and name")
	ErrBadPosition  = errors.New("position must be a 1-based line and a 0-based column")
)

func report(ctx context.Context, n Notifier, err error) bool {
	n.Notify(ctx, err.Error(), LevelError)
	return false
}

// Formatter formats documents through the host.
type Formatter struct {
	Host FormatHost
}

// Format formats the document at path.
func (f Formatter) Format(ctx context.Context, path string) bool {
	if strings.TrimSpace(path) == "" {
		return report(ctx, f.Host, fmt.Errorf("format: %w", ErrEmptyPath))
	}
	if err := f.Host.FormatDocument(ctx, path); err != nil {
		return report(ctx, f.Host, fmt.Errorf("failed to format %s: %w", path, err))
	}
	return true
}

// Debugger starts and stops debug sessions.
type Debugger struct {
	Host DebugHost
}

// Start launches config in folder.
func (d Debugger) Start(ctx context.Context, folder string, config DebugConfig) bool {
	if strings.TrimSpace(folder) == "" {
		return report(ctx, d.Host, fmt.Errorf("start debugging: %w", ErrEmptyFolder))
	}
	if config.Type == "" || config.Request == "" || config.Name == "" {
		return report(ctx, d.Host, fmt.Errorf("start debugging: %w", ErrBadConfig))
	}
	if err := d.Host.StartDebugging(ctx, folder, config); err != nil {
		return report(ctx, d.Host, fmt.Errorf("failed to start debugging %q: %w", config.Name, err))
	}
	return true
}

// Stop ends the active debug session.
func (d Debugger) Stop(ctx context.Context) bool {
	if err := d.Host.StopDebugging(ctx); err != nil {
		return report(ctx, d.Host, fmt.Errorf("failed to stop debugging: %w", err))
	}
	return true
}

// Runner runs shell commands in a new host terminal.
type Runner struct {
	Host TerminalHost
}

// Run opens a terminal in cwd, shows it and sends command followed by a
// newline.
func (r Runner) Run(ctx context.Context, cwd, command string) bool {
	if strings.TrimSpace(command) == "" {
		return report(ctx, r.Host, fmt.Errorf("run: %w", ErrEmptyCommand))
	}
	term, err := r.Host.CreateTerminal(ctx, cwd)
	if err != nil {
		return report(ctx, r.Host, fmt.Errorf("failed to create terminal: %w", err))
	}
	if err := term.Show(ctx); err != nil {
		return report(ctx, r.Host, fmt.Errorf("failed to show terminal: %w", err))
	}
	if !strings.HasSuffix(command, "\n") {
		command += "\n"
	}
	if err := term.SendText(ctx, command); err != nil {
		return report(ctx, r.Host, fmt.Errorf("failed to send command: %w", err))
	}
	return true
}

// Inspector looks up symbol information.
type Inspector struct {
	Host HoverHost
}

// Hover returns the hover text at line (1-based) and col (0-based) of
// path.
func (i Inspector) Hover(ctx context.Context, path string, line, col int) (string, bool) {
	if strings.TrimSpace(path) == "" {
		return "", report(ctx, i.Host, fmt.Errorf("hover: %w", ErrEmptyPath))
	}
	if line < 1 || col < 0 {
		return "", report(ctx, i.Host, fmt.Errorf("hover: %w", ErrBadPosition))
	}
	text, err := i.Host.Hover(ctx, path, line, col)
	if err != nil {
		return "", report(ctx, i.Host, fmt.Errorf("failed to get hover for %s:%d:%d: %w", path, line, col, err))
	}
	if text == "" {
		i.Host.Notify(ctx, fmt.Sprintf("no hover information at %s:%d:%d", path, line, col), LevelInfo)
	}
	return text, true
}
