package patcher

import (
	"bytes"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/bluekeyes/go-gitdiff/gitdiff"

	"github.com/qlinetech/qcode/model"
)

// ErrNoPath means neither file header of a diff names a file.
var ErrNoPath = errors.New("could not determine file path from diff")

var pathRegex = regexp.MustCompile(`(?m)^\+\+\+ (?:b/)?(\S+)`)
var oldPathRegex = regexp.MustCompile(`(?m)^--- (?:a/)?(\S+)`)

// ExtractPathFromDiff returns the path a diff applies to. Deletions fall
// back to the old name.
func ExtractPathFromDiff(diffContent string) (string, error) {
	if m := pathRegex.FindStringSubmatch(diffContent); len(m) > 1 && m[1] != devNull {
		return m[1], nil
	}
	if m := oldPathRegex.FindStringSubmatch(diffContent); len(m) > 1 && m[1] != devNull {
		return m[1], nil
	}
	return "", ErrNoPath
}

// Classify reports what a diff does to its file.
func Classify(diffContent string) model.DiffAction {
	oldPath, newPath := headerPaths(diffContent)
	switch {
	case oldPath == devNull && newPath != devNull:
		return model.DiffCreate
	case newPath == devNull && oldPath != devNull:
		return model.DiffDelete
	case oldPath != "" && newPath != "":
		return model.DiffModify
	default:
		return model.DiffOther
	}
}

// SplitLines splits file content into lines for CorrectDiff. Empty content
// has no lines.
func SplitLines(content []byte) []string {
	if len(content) == 0 {
		return nil
	}
	return strings.Split(strings.TrimSuffix(string(content), "\n"), "\n")
}

// Patch is a corrected single-file diff ready to apply.
type Patch struct {
	Path   string
	Action model.DiffAction
	Diff   string
	file   *gitdiff.File
}

// Prepare corrects raw against the current content of path and parses the
// result. source is nil when the file does not exist.
func Prepare(path, raw string, source []byte) (*Patch, error) {
	corrected, err := CorrectDiff(path, raw, SplitLines(source))
	if err != nil {
		return nil, fmt.Errorf("failed to correct diff for %s: %w", path, err)
	}
	if corrected == "" {
		return nil, fmt.Errorf("diff for %s has no hunks", path)
	}

	files, _, err := gitdiff.Parse(strings.NewReader(corrected))
	if err != nil {
		return nil, fmt.Errorf("failed to parse diff for %s: %w", path, err)
	}
	if len(files) != 1 {
		return nil, fmt.Errorf("diff for %s touches %d files, want 1", path, len(files))
	}

	return &Patch{
		Path:   path,
		Action: Classify(corrected),
		Diff:   corrected,
		file:   files[0],
	}, nil
}

// Apply returns source with the patch applied. It never touches the disk,
// so a failed call doubles as a dry run.
func (p *Patch) Apply(source []byte) ([]byte, error) {
	var out bytes.Buffer
	if err := gitdiff.Apply(&out, bytes.NewReader(source), p.file); err != nil {
		return nil, fmt.Errorf("failed to apply diff to %s: %w", p.Path, err)
	}
	return out.Bytes(), nil
}

// Verify checks that raw applies cleanly to source.
func Verify(path, raw string, source []byte) error {
	p, err := Prepare(path, raw, source)
	if err != nil {
		return err
	}
	_, err = p.Apply(source)
	return err
}
