// Package apply writes change records to files.
package apply

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pmezard/go-difflib/difflib"

	"github.com/qlinetech/qcode/internal/fs"
	"github.com/qlinetech/qcode/internal/patcher"
	"github.com/qlinetech/qcode/model"
)

var (
	// ErrFileExists means a create change targets an existing file.
	ErrFileExists = errors.New("file already exists")
	// ErrNotValidated means a diff was submitted without validation.
	ErrNotValidated = errors.New("diff has not been validated")
	// ErrSkipped marks files left alone after an earlier failure.
	ErrSkipped = errors.New("skipped after an earlier failure")
	// ErrConflict means a file received a whole-file change together with
	// other changes.
	ErrConflict = errors.New("conflicting changes")
)

// Options controls an Applier.
type Options struct {
	// Overwrite lets create replace an existing file.
	Overwrite bool
	// VerifyUnvalidated dry-runs unvalidated diffs and applies them if
	// they pass, instead of rejecting them.
	VerifyUnvalidated bool
	// StopOnError skips remaining files after the first failure.
	StopOnError bool
}

// Operation is the effect of applying changes to one file.
type Operation struct {
	Path   string
	Action model.DiffAction
	// Before is nil when the file did not exist.
	Before []byte
	// After is nil when the file was deleted.
	After []byte
}

// Applier applies change records through a FileAccess.
type Applier struct {
	files   fs.FileAccess
	opts    Options
	observe func(Operation)
	now     func() time.Time
}

// New creates an Applier.
func New(files fs.FileAccess, opts Options) *Applier {
	return &Applier{files: files, opts: opts, now: time.Now}
}

// OnApply registers fn to be called after every file write or removal.
func (a *Applier) OnApply(fn func(Operation)) {
	a.observe = fn
}

type group struct {
	file    string
	changes []*model.CodeChange
}

func groupByFile(changes []*model.CodeChange) []*group {
	var groups []*group
	byFile := make(map[string]*group)
	for _, c := range changes {
		g, ok := byFile[c.File]
		if !ok {
			g = &group{file: c.File}
			byFile[c.File] = g
			groups = append(groups, g)
		}
		g.changes = append(g.changes, c)
	}
	return groups
}

// ApplyCodeChanges applies changes file by file and returns one result
// per file in order of first appearance. Each file is read and written
// at most once.
func (a *Applier) ApplyCodeChanges(ctx context.Context, changes []*model.CodeChange) []model.ChangeResult {
	var results []model.ChangeResult
	failed := false
	for _, g := range groupByFile(changes) {
		if failed && a.opts.StopOnError {
			results = append(results, a.finish(g, string(model.DiffModify), ErrSkipped))
			continue
		}
		op, err := a.plan(ctx, g)
		if err == nil {
			err = a.commit(ctx, op)
		}
		action := string(model.DiffModify)
		if op != nil {
			action = resultAction(g, op)
		}
		if err != nil {
			failed = true
		}
		results = append(results, a.finish(g, action, err))
	}
	return results
}

func resultAction(g *group, op *Operation) string {
	if len(g.changes) == 1 && g.changes[0].IsWholeFile() {
		return string(g.changes[0].Action)
	}
	return string(op.Action)
}

func (a *Applier) finish(g *group, action string, err error) model.ChangeResult {
	now := a.now()
	for _, c := range g.changes {
		c.MarkApplied(err == nil)
		if err == nil && c.Timestamp == nil {
			c.Timestamp = &now
		}
	}
	return model.ChangeResult{File: g.file, Action: action, Err: err}
}

// plan computes the new content of one file without writing it.
func (a *Applier) plan(ctx context.Context, g *group) (*Operation, error) {
	for _, c := range g.changes {
		if err := c.Validate(); err != nil {
			return nil, err
		}
		if c.IsWholeFile() && len(g.changes) > 1 {
			return nil, fmt.Errorf("%w: %s on %s must be the only change to the file", ErrConflict, c.Action, g.file)
		}
	}

	exists, err := a.files.Exists(ctx, g.file)
	if err != nil {
		return nil, err
	}
	var before []byte
	if exists {
		if before, err = a.files.ReadFile(ctx, g.file); err != nil {
			return nil, err
		}
	}

	first := g.changes[0]
	switch first.Action {
	case model.ActionCreate:
		if exists && !a.opts.Overwrite {
			return nil, fmt.Errorf("%w: %s", ErrFileExists, g.file)
		}
		action := model.DiffCreate
		if exists {
			action = model.DiffModify
		}
		return &Operation{Path: g.file, Action: action, Before: before, After: []byte(first.NewCode)}, nil

	case model.ActionRemoveFile:
		if !exists {
			return nil, fs.WrapError("remove", g.file, os.ErrNotExist)
		}
		return &Operation{Path: g.file, Action: model.DiffDelete, Before: before}, nil
	}

	if !exists {
		return nil, fs.WrapError("read", g.file, os.ErrNotExist)
	}
	after, err := ApplyText(string(before), g.changes)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", g.file, err)
	}
	return &Operation{Path: g.file, Action: model.DiffModify, Before: before, After: []byte(after)}, nil
}

func (a *Applier) commit(ctx context.Context, op *Operation) error {
	var err error
	if op.Action == model.DiffDelete {
		err = a.files.RemoveFile(ctx, op.Path)
	} else {
		err = a.files.WriteFile(ctx, op.Path, op.After)
	}
	if err != nil {
		return err
	}
	if a.observe != nil {
		a.observe(*op)
	}
	return nil
}

// ApplyDiffs applies validated diffs, one result per diff. Unvalidated
// diffs are rejected before their file is read, unless VerifyUnvalidated
// is set and a dry run succeeds.
func (a *Applier) ApplyDiffs(ctx context.Context, diffs []*model.GitDiffChange) []model.ChangeResult {
	var results []model.ChangeResult
	failed := false
	for _, d := range diffs {
		action := string(d.Action)
		if action == "" {
			action = string(model.DiffModify)
		}
		if failed && a.opts.StopOnError {
			results = append(results, model.ChangeResult{File: d.File, Action: action, Err: ErrSkipped})
			continue
		}
		op, err := a.applyDiff(ctx, d)
		if op != nil {
			action = string(op.Action)
		}
		if err != nil {
			failed = true
		} else if d.Timestamp == nil {
			now := a.now()
			d.Timestamp = &now
		}
		results = append(results, model.ChangeResult{File: d.File, Action: action, Err: err})
	}
	return results
}

func (a *Applier) applyDiff(ctx context.Context, d *model.GitDiffChange) (*Operation, error) {
	if err := d.Validate(); err != nil {
		return nil, err
	}
	if !d.IsValidated() && !a.opts.VerifyUnvalidated {
		return nil, fmt.Errorf("%w: %s", ErrNotValidated, d.File)
	}

	exists, err := a.files.Exists(ctx, d.File)
	if err != nil {
		return nil, err
	}
	var before []byte
	if exists {
		if before, err = a.files.ReadFile(ctx, d.File); err != nil {
			return nil, err
		}
	}

	p, err := patcher.Prepare(diffPath(d), d.Diff, before)
	if err != nil {
		if !d.IsValidated() {
			d.MarkValidated(false)
		}
		return nil, err
	}
	after, err := p.Apply(before)
	if err != nil {
		if !d.IsValidated() {
			d.MarkValidated(false)
		}
		return nil, err
	}
	d.MarkValidated(true)
	if d.Action == "" {
		d.Action = p.Action
	}

	op := &Operation{Path: d.File, Action: p.Action, Before: before, After: after}
	switch {
	case p.Action == model.DiffCreate && exists && !a.opts.Overwrite:
		return nil, fmt.Errorf("%w: %s", ErrFileExists, d.File)
	case p.Action == model.DiffCreate && exists:
		op.Action = model.DiffModify
	case p.Action != model.DiffCreate && p.Action != model.DiffDelete:
		if !exists {
			return nil, fs.WrapError("read", d.File, os.ErrNotExist)
		}
		op.Action = model.DiffModify
	}
	if op.Action == model.DiffDelete {
		op.After = nil
	}
	return op, a.commit(ctx, op)
}

// previewLines splits content for difflib. Absent or empty content has no
// lines, and a missing final newline is supplied.
func previewLines(content []byte) []string {
	if len(content) == 0 {
		return nil
	}
	lines := strings.SplitAfter(string(content), "\n")
	if last := len(lines) - 1; lines[last] == "" {
		lines = lines[:last]
	} else {
		lines[last] += "\n"
	}
	return lines
}

func diffPath(d *model.GitDiffChange) string {
	if d.RelativePath != nil && *d.RelativePath != "" {
		return filepath.ToSlash(*d.RelativePath)
	}
	return filepath.Base(d.File)
}

// Preview renders the changes as a unified diff without writing
// anything. Files that cannot be planned are reported inline.
func (a *Applier) Preview(ctx context.Context, changes []*model.CodeChange) (string, error) {
	var sb strings.Builder
	for _, g := range groupByFile(changes) {
		op, err := a.plan(ctx, g)
		if err != nil {
			fmt.Fprintf(&sb, "# %s: %v\n", g.file, err)
			continue
		}
		fromFile, toFile := g.file, g.file
		if op.Before == nil {
			fromFile = "/dev/null"
		}
		if op.Action == model.DiffDelete {
			toFile = "/dev/null"
		}
		diff, err := difflib.GetUnifiedDiffString(difflib.UnifiedDiff{
			A:        previewLines(op.Before),
			B:        previewLines(op.After),
			FromFile: fromFile,
			ToFile:   toFile,
			Context:  3,
		})
		if err != nil {
			return "", err
		}
		sb.WriteString(diff)
	}
	return sb.String(), nil
}
