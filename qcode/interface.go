package qcode

import (
	"context"
	"fmt"

	"github.com/qlinetech/qcode/cli"
)

// Config for using qcode as a library.
type Config struct {
	// Update buffers without saving them to disk.
	Buffer bool
	// Allow create blocks to replace existing files.
	Overwrite bool
	// Filter by extension. Use 'diff' to process only diff blocks (e.g., 'py', 'js', 'diff').
	Extensions []string
	// Directories to look for files in (default: current directory).
	LookupDirs []string
}

// Apply parses the given content string and applies the changes to files.
// It returns a summary of the operations in a map.
func Apply(ctx context.Context, content string, config Config, opts ...Option) (map[string][]string, error) {
	cliCfg := &cli.Config{Settings: cli.Settings{
		Buffer:      config.Buffer,
		Overwrite:   config.Overwrite,
		VerifyDiffs: true,
		Extensions:  normalizeExtensions(config.Extensions),
		LookupDirs:  config.LookupDirs,
	}}

	// Library callers cannot answer prompts.
	opts = append([]Option{WithConfirm(func([]string) bool { return true })}, opts...)
	app, err := New(cliCfg, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize qcode app: %w", err)
	}
	defer app.Close()

	summary, err := app.ApplyResponse(ctx, content)
	if err != nil {
		return nil, err
	}

	result := map[string][]string{
		"Created":  summary.Created,
		"Modified": summary.Modified,
		"Deleted":  summary.Deleted,
		"Failed":   summary.Failed,
	}

	return result, nil
}

func normalizeExtensions(exts []string) []string {
	out := make([]string, 0, len(exts))
	for _, ext := range exts {
		if len(ext) > 0 && ext[0] != '.' {
			ext = "." + ext
		}
		out = append(out, ext)
	}
	return out
}
