package parser

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/qlinetech/qcode/internal/fs"
	"github.com/qlinetech/qcode/internal/patcher"
	"github.com/qlinetech/qcode/model"
)

// DiffOnly as the only extension limits a plan to diff blocks.
const DiffOnly = ".diff"

// ErrNoChanges means a response contained nothing to apply.
var ErrNoChanges = errors.New("no changes found in response")

// Failure is a block that could not be turned into a change record.
type Failure struct {
	Source string
	Err    error
}

// Plan holds the change records extracted from one response.
type Plan struct {
	Changes []*model.CodeChange
	Diffs   []*model.GitDiffChange
	Failed  []Failure
}

// Empty reports whether the plan has nothing to apply.
func (p *Plan) Empty() bool {
	return len(p.Changes) == 0 && len(p.Diffs) == 0
}

// Files returns the sorted set of absolute paths the plan touches.
func (p *Plan) Files() []string {
	seen := make(map[string]struct{})
	for _, c := range p.Changes {
		seen[c.File] = struct{}{}
	}
	for _, d := range p.Diffs {
		seen[d.File] = struct{}{}
	}
	files := make([]string, 0, len(seen))
	for f := range seen {
		files = append(files, f)
	}
	sort.Strings(files)
	return files
}

// Options configures CreatePlan.
type Options struct {
	Resolver *fs.PathResolver
	// Files is used to size whole-file replacements of existing files.
	Files fs.FileAccess
	// Extensions filters target files; empty means no filter.
	Extensions []string
}

var pathInHintRegex = regexp.MustCompile("`([^`\n]+)`")

// CreatePlan parses a markdown response into change records.
//
// JSON blocks carry CodeChange records, diff blocks become unvalidated
// GitDiffChange records and any other block preceded by a backticked path
// replaces that file whole. A whole-file block wins over a diff for the
// same file.
func CreatePlan(ctx context.Context, content string, opts Options) (*Plan, error) {
	blocks, err := ExtractCodeBlocks([]byte(content))
	if err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}

	// If '.diff' is the ONLY extension, we are in a special diff-only mode.
	diffOnly := len(opts.Extensions) == 1 && opts.Extensions[0] == DiffOnly
	extensions := opts.Extensions
	if diffOnly {
		extensions = nil
	}

	plan := &Plan{}
	wholeFiles := make(map[string]struct{})
	for _, block := range blocks {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		hintPath := extractPathFromHint(block.Hint)

		switch {
		case block.Lang == "diff":
			d, err := diffChange(block.Content, opts.Resolver)
			if err != nil {
				plan.Failed = append(plan.Failed, Failure{Source: "diff block", Err: err})
				continue
			}
			if hasAllowedExtension(d.File, extensions) {
				plan.Diffs = append(plan.Diffs, d)
			}

		case diffOnly:
			continue

		case block.Lang == "json" && hintPath == "":
			changes, failures := jsonChanges(block.Content, opts.Resolver)
			plan.Failed = append(plan.Failed, failures...)
			for _, c := range changes {
				if hasAllowedExtension(c.File, extensions) {
					plan.Changes = append(plan.Changes, c)
				}
			}

		case hintPath != "":
			if !hasAllowedExtension(hintPath, extensions) {
				continue
			}
			c, err := wholeFileChange(ctx, hintPath, block.Content, opts)
			if err != nil {
				plan.Failed = append(plan.Failed, Failure{Source: hintPath, Err: err})
				continue
			}
			wholeFiles[c.File] = struct{}{}
			plan.Changes = append(plan.Changes, c)
		}
	}

	diffs := plan.Diffs[:0]
	for _, d := range plan.Diffs {
		if _, ok := wholeFiles[d.File]; !ok {
			diffs = append(diffs, d)
		}
	}
	plan.Diffs = diffs

	if plan.Empty() && len(plan.Failed) == 0 {
		return plan, ErrNoChanges
	}
	return plan, nil
}

func diffChange(raw string, resolver *fs.PathResolver) (*model.GitDiffChange, error) {
	raw = strings.TrimSpace(raw)
	path, err := patcher.ExtractPathFromDiff(raw)
	if err != nil {
		return nil, err
	}
	rel := path
	return &model.GitDiffChange{
		File:         resolver.Resolve(path),
		Diff:         raw,
		RelativePath: &rel,
		Action:       patcher.Classify(raw),
	}, nil
}

func jsonChanges(raw string, resolver *fs.PathResolver) ([]*model.CodeChange, []Failure) {
	var changes []*model.CodeChange
	raw = strings.TrimSpace(raw)

	var err error
	if strings.HasPrefix(raw, "[") {
		err = json.Unmarshal([]byte(raw), &changes)
	} else {
		var envelope struct {
			Changes []*model.CodeChange `json:"changes"`
		}
		err = json.Unmarshal([]byte(raw), &envelope)
		changes = envelope.Changes
	}
	if err != nil {
		return nil, []Failure{{Source: "json block", Err: fmt.Errorf("%w: %v", model.ErrInvalidChange, err)}}
	}

	var valid []*model.CodeChange
	var failures []Failure
	for _, c := range changes {
		if c == nil {
			continue
		}
		if c.File == "" && c.RelativePath != nil {
			c.File = *c.RelativePath
		}
		if c.File != "" && !filepath.IsAbs(c.File) {
			rel := filepath.ToSlash(c.File)
			c.RelativePath = &rel
			c.File = resolver.Resolve(c.File)
		} else if c.File != "" && c.RelativePath == nil {
			c.ResolveRelativePath(resolver.Root())
		}
		// An add is a point: its finish defaults to its start.
		if c.Action == model.ActionAdd {
			if c.FinishLine == nil && c.Line != nil {
				l := *c.Line
				c.FinishLine = &l
			}
			if c.FinishPosition == nil && c.Position != nil {
				p := *c.Position
				c.FinishPosition = &p
			}
		}
		if err := c.Validate(); err != nil {
			failures = append(failures, Failure{Source: c.File, Err: err})
			continue
		}
		valid = append(valid, c)
	}
	return valid, failures
}

// wholeFileChange creates the file, or replaces its full range if it
// exists.
func wholeFileChange(ctx context.Context, hintPath, content string, opts Options) (*model.CodeChange, error) {
	reason := "write " + hintPath + " from response"
	rel := filepath.ToSlash(hintPath)

	existing := opts.Resolver.ResolveExisting(hintPath)
	if existing == "" {
		c := model.NewCreate(opts.Resolver.Resolve(hintPath), content, reason)
		c.RelativePath = &rel
		return c, nil
	}

	data, err := opts.Files.ReadFile(ctx, existing)
	if err != nil {
		return nil, err
	}
	lines := strings.Split(string(data), "\n")
	lastLine := len(lines)
	c := model.NewReplace(existing, 1, 0, lastLine, utf8.RuneCountInString(lines[lastLine-1]), content, reason)
	c.RelativePath = &rel
	return c, nil
}

func extractPathFromHint(hint string) string {
	hint = strings.TrimSpace(hint)

	// A path hint must be enclosed in backticks, e.g., `path/to/file.go`
	if match := pathInHintRegex.FindStringSubmatch(hint); len(match) > 1 {
		path := strings.TrimSpace(match[1])
		// Disallow spaces to avoid capturing commands like `go run main.go` as a path.
		if !strings.Contains(path, " ") {
			return path
		}
	}

	return ""
}

func hasAllowedExtension(path string, extensions []string) bool {
	if len(extensions) == 0 {
		return true
	}
	ext := filepath.Ext(path)
	for _, allowedExt := range extensions {
		if ext == allowedExt {
			return true
		}
	}
	return false
}
