package model

import (
	"errors"
	"fmt"
	"path/filepath"
	"time"
)

// Action tags the shape of a CodeChange.
type Action string

const (
	ActionAdd        Action = "add"
	ActionReplace    Action = "replace"
	ActionRemove     Action = "remove"
	ActionCreate     Action = "create"
	ActionRemoveFile Action = "remove_file"
)

// IsWholeFile reports whether the action operates on a file as a whole
// and therefore carries no coordinates.
func (a Action) IsWholeFile() bool {
	return a == ActionCreate || a == ActionRemoveFile
}

func (a Action) valid() bool {
	switch a {
	case ActionAdd, ActionReplace, ActionRemove, ActionCreate, ActionRemoveFile:
		return true
	}
	return false
}

// DiffAction is the coarse classification of a GitDiffChange.
type DiffAction string

const (
	DiffCreate DiffAction = "create"
	DiffModify DiffAction = "modify"
	DiffDelete DiffAction = "delete"
	DiffOther  DiffAction = "other"
)

// ErrInvalidChange is wrapped by every validation failure of a change record.
var ErrInvalidChange = errors.New("invalid change")

// CodeChange is a single proposed edit to one file.
//
// Line and FinishLine are 1-based. Position and FinishPosition are 0-based
// rune columns. All four are nil exactly when Action is create or
// remove_file.
type CodeChange struct {
	File           string     `json:"file"`
	RelativePath   *string    `json:"relativePath"`
	Action         Action     `json:"action"`
	Line           *int       `json:"line"`
	Position       *int       `json:"position"`
	FinishLine     *int       `json:"finishLine"`
	FinishPosition *int       `json:"finishPosition"`
	Reason         string     `json:"reason"`
	NewCode        string     `json:"newCode"`
	Applied        *bool      `json:"applied,omitempty"`
	Timestamp      *time.Time `json:"timestamp,omitempty"`
}

func intPtr(v int) *int { return &v }

// NewAdd proposes inserting code at (line, position).
func NewAdd(file string, line, position int, code, reason string) *CodeChange {
	return &CodeChange{
		File:           file,
		Action:         ActionAdd,
		Line:           intPtr(line),
		Position:       intPtr(position),
		FinishLine:     intPtr(line),
		FinishPosition: intPtr(position),
		NewCode:        code,
		Reason:         reason,
	}
}

// NewReplace proposes replacing the inclusive range with code.
func NewReplace(file string, line, position, finishLine, finishPosition int, code, reason string) *CodeChange {
	return &CodeChange{
		File:           file,
		Action:         ActionReplace,
		Line:           intPtr(line),
		Position:       intPtr(position),
		FinishLine:     intPtr(finishLine),
		FinishPosition: intPtr(finishPosition),
		NewCode:        code,
		Reason:         reason,
	}
}

// NewRemove proposes removing the inclusive range.
func NewRemove(file string, line, position, finishLine, finishPosition int, reason string) *CodeChange {
	c := NewReplace(file, line, position, finishLine, finishPosition, "", reason)
	c.Action = ActionRemove
	return c
}

// NewCreate proposes creating file with content.
func NewCreate(file, content, reason string) *CodeChange {
	return &CodeChange{File: file, Action: ActionCreate, NewCode: content, Reason: reason}
}

// NewRemoveFile proposes deleting file.
func NewRemoveFile(file, reason string) *CodeChange {
	return &CodeChange{File: file, Action: ActionRemoveFile, Reason: reason}
}

// IsWholeFile reports whether the change addresses the file as a whole.
func (c *CodeChange) IsWholeFile() bool {
	return c.Action.IsWholeFile()
}

// Start returns the start coordinate. It must only be called on a valid,
// ranged change.
func (c *CodeChange) Start() (line, position int) {
	return *c.Line, *c.Position
}

// Finish returns the end coordinate. It must only be called on a valid,
// ranged change.
func (c *CodeChange) Finish() (line, position int) {
	return *c.FinishLine, *c.FinishPosition
}

// MarkApplied records the outcome of an apply attempt.
func (c *CodeChange) MarkApplied(ok bool) {
	c.Applied = &ok
}

// ResolveRelativePath fills RelativePath from root if it is not set yet.
func (c *CodeChange) ResolveRelativePath(root string) string {
	if c.RelativePath != nil {
		return *c.RelativePath
	}
	rel, err := filepath.Rel(root, c.File)
	if err != nil {
		rel = c.File
	}
	c.RelativePath = &rel
	return rel
}

// Validate checks the schema invariants of the record.
func (c *CodeChange) Validate() error {
	if c.File == "" {
		return fmt.Errorf("%w: empty file path", ErrInvalidChange)
	}
	if !c.Action.valid() {
		return fmt.Errorf("%w: unknown action %q for %s", ErrInvalidChange, c.Action, c.File)
	}
	if c.Reason == "" {
		return fmt.Errorf("%w: missing reason for %s", ErrInvalidChange, c.File)
	}

	coords := []*int{c.Line, c.Position, c.FinishLine, c.FinishPosition}
	if c.Action.IsWholeFile() {
		for _, v := range coords {
			if v != nil {
				return fmt.Errorf("%w: %s on %s must not carry coordinates", ErrInvalidChange, c.Action, c.File)
			}
		}
		return nil
	}

	for _, v := range coords {
		if v == nil {
			return fmt.Errorf("%w: %s on %s requires line, position, finishLine and finishPosition", ErrInvalidChange, c.Action, c.File)
		}
		if *v < 0 {
			return fmt.Errorf("%w: negative coordinate in %s on %s", ErrInvalidChange, c.Action, c.File)
		}
	}
	if *c.Line < 1 || *c.FinishLine < 1 {
		return fmt.Errorf("%w: lines are 1-based in %s on %s", ErrInvalidChange, c.Action, c.File)
	}
	if c.Action != ActionAdd {
		if *c.FinishLine < *c.Line || (*c.FinishLine == *c.Line && *c.FinishPosition < *c.Position) {
			return fmt.Errorf("%w: range ends before it starts in %s on %s", ErrInvalidChange, c.Action, c.File)
		}
	}
	return nil
}

// GitDiffChange is a change expressed as a unified diff.
type GitDiffChange struct {
	File         string     `json:"file"`
	Diff         string     `json:"diff"`
	RelativePath *string    `json:"relativePath,omitempty"`
	Validated    *bool      `json:"validated,omitempty"`
	Action       DiffAction `json:"action,omitempty"`
	Timestamp    *time.Time `json:"timestamp,omitempty"`
	Description  string     `json:"description,omitempty"`
}

// IsValidated reports whether the diff has been explicitly validated.
func (d *GitDiffChange) IsValidated() bool {
	return d.Validated != nil && *d.Validated
}

// MarkValidated records the outcome of a validation pass.
func (d *GitDiffChange) MarkValidated(ok bool) {
	d.Validated = &ok
}

// Validate checks the mandatory fields of the record.
func (d *GitDiffChange) Validate() error {
	if d.File == "" {
		return fmt.Errorf("%w: diff without file", ErrInvalidChange)
	}
	if d.Diff == "" {
		return fmt.Errorf("%w: empty diff for %s", ErrInvalidChange, d.File)
	}
	switch d.Action {
	case "", DiffCreate, DiffModify, DiffDelete, DiffOther:
		return nil
	}
	return fmt.Errorf("%w: unknown diff action %q for %s", ErrInvalidChange, d.Action, d.File)
}

// ChangeResult is the per-record outcome of an apply step.
type ChangeResult struct {
	File   string
	Action string
	Err    error
}

// OK reports whether the record was applied.
func (r ChangeResult) OK() bool { return r.Err == nil }

// Summary holds the results of an operation for display.
type Summary struct {
	Created  []string
	Modified []string
	Deleted  []string
	Failed   []string
	Message  string
}

// Add files a result into the summary bucket matching its action.
func (s *Summary) Add(r ChangeResult) {
	if !r.OK() {
		s.Failed = append(s.Failed, r.File)
		return
	}
	switch r.Action {
	case string(ActionCreate):
		s.Created = append(s.Created, r.File)
	case string(ActionRemoveFile), string(DiffDelete):
		s.Deleted = append(s.Deleted, r.File)
	default:
		s.Modified = append(s.Modified, r.File)
	}
}
