// Package source reads the model response to apply.
package source

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/atotto/clipboard"

	"github.com/qlinetech/qcode/internal/ui"
)

// SourceProvider determines and retrieves the source content.
type SourceProvider struct {
	Stdin     *os.File
	Clipboard func() (string, error)
}

// New creates a new SourceProvider.
func New() *SourceProvider {
	return &SourceProvider{Stdin: os.Stdin, Clipboard: clipboard.ReadAll}
}

// IsPiped reports whether stdin is a pipe or file rather than a terminal.
func (sp *SourceProvider) IsPiped() bool {
	if sp.Stdin == nil {
		return false
	}
	stat, err := sp.Stdin.Stat()
	if err != nil {
		return false
	}
	return (stat.Mode() & os.ModeCharDevice) == 0
}

// GetContent retrieves content from stdin (if piped) or the clipboard.
func (sp *SourceProvider) GetContent() (string, error) {
	if sp.IsPiped() {
		ui.Header("--- Reading from stdin ---")
		content, err := io.ReadAll(sp.Stdin)
		if err != nil {
			return "", fmt.Errorf("failed to read from stdin: %w", err)
		}
		return string(content), nil
	}

	ui.Header("--- Reading from clipboard ---")
	content, err := sp.Clipboard()
	if err != nil {
		return "", fmt.Errorf("failed to read from clipboard: %w", err)
	}
	if strings.TrimSpace(content) == "" {
		ui.Warning("Clipboard is empty. Nothing to process.")
		return "", nil
	}
	return content, nil
}

