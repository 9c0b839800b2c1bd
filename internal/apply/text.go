package apply

import (
	"errors"
	"fmt"
	"sort"

	"github.com/qlinetech/qcode/model"
)

var (
	// ErrOverlap means two changes to the same file touch the same text.
	ErrOverlap = errors.New("overlapping changes")
	// ErrOutOfRange means a coordinate does not exist in the file.
	ErrOutOfRange = errors.New("position out of range")
)

// text is file content indexed by line for rune-offset lookups.
type text struct {
	runes      []rune
	lineStarts []int
}

func newText(content string) *text {
	t := &text{runes: []rune(content), lineStarts: []int{0}}
	for i, r := range t.runes {
		if r == '\n' {
			t.lineStarts = append(t.lineStarts, i+1)
		}
	}
	return t
}

func (t *text) lineLen(line int) int {
	end := len(t.runes)
	if line < len(t.lineStarts) {
		end = t.lineStarts[line] - 1
	}
	return end - t.lineStarts[line-1]
}

// offset converts a 1-based line and 0-based column to a rune offset. A
// column equal to the line length addresses the line break.
func (t *text) offset(line, position int) (int, error) {
	if line < 1 || line > len(t.lineStarts) {
		return 0, fmt.Errorf("%w: line %d of %d", ErrOutOfRange, line, len(t.lineStarts))
	}
	if position < 0 || position > t.lineLen(line) {
		return 0, fmt.Errorf("%w: column %d of line %d", ErrOutOfRange, position, line)
	}
	return t.lineStarts[line-1] + position, nil
}

// edit is a change resolved to rune offsets. For inserts end is -1;
// otherwise [start, end] is inclusive.
type edit struct {
	start, end int
	code       []rune
	index      int
}

func (e edit) isInsert() bool { return e.end < 0 }

func overlaps(a, b edit) bool {
	switch {
	case a.isInsert() && b.isInsert():
		return false
	case a.isInsert():
		return b.start < a.start && a.start <= b.end
	case b.isInsert():
		return a.start < b.start && b.start <= a.end
	default:
		return a.start <= b.end && b.start <= a.end
	}
}

func (t *text) resolve(c *model.CodeChange, index int) (edit, error) {
	if c.IsWholeFile() {
		return edit{}, fmt.Errorf("%w: %s is a whole-file action", model.ErrInvalidChange, c.Action)
	}
	line, pos := c.Start()
	start, err := t.offset(line, pos)
	if err != nil {
		return edit{}, err
	}
	e := edit{start: start, end: -1, index: index}
	if c.Action == model.ActionAdd {
		e.code = []rune(c.NewCode)
		return e, nil
	}

	finishLine, finishPos := c.Finish()
	end, err := t.offset(finishLine, finishPos)
	if err != nil {
		return edit{}, err
	}
	// The break after the last line does not exist.
	if end >= len(t.runes) {
		end = len(t.runes) - 1
	}
	if end < start {
		if start != len(t.runes) {
			return edit{}, fmt.Errorf("%w: empty range at line %d", ErrOutOfRange, line)
		}
		// Replacing "nothing" at end of file degenerates to an insert.
		end = -1
	}
	e.end = end
	if c.Action == model.ActionReplace {
		e.code = []rune(c.NewCode)
	}
	return e, nil
}

// ApplyText applies add, replace and remove changes to content. The
// changes must all address the same file; coordinates refer to content
// before any of them is applied.
//
// Edits run from the end of the file towards the start so earlier
// offsets stay valid. Inserts at the same point keep their input order,
// and an insert at the start of a replaced range lands before the
// replacement.
func ApplyText(content string, changes []*model.CodeChange) (string, error) {
	t := newText(content)

	edits := make([]edit, 0, len(changes))
	for i, c := range changes {
		if err := c.Validate(); err != nil {
			return "", err
		}
		e, err := t.resolve(c, i)
		if err != nil {
			return "", fmt.Errorf("change %d (%s): %w", i+1, c.Action, err)
		}
		edits = append(edits, e)
	}

	for i := range edits {
		for j := i + 1; j < len(edits); j++ {
			if overlaps(edits[i], edits[j]) {
				return "", fmt.Errorf("%w: changes %d and %d", ErrOverlap, edits[i].index+1, edits[j].index+1)
			}
		}
	}

	sort.SliceStable(edits, func(i, j int) bool {
		a, b := edits[i], edits[j]
		if a.start != b.start {
			return a.start > b.start
		}
		if a.isInsert() != b.isInsert() {
			return !a.isInsert()
		}
		return a.index > b.index
	})

	out := t.runes
	for _, e := range edits {
		tail := e.start
		if !e.isInsert() {
			tail = e.end + 1
		}
		next := make([]rune, 0, len(out)-(tail-e.start)+len(e.code))
		next = append(next, out[:e.start]...)
		next = append(next, e.code...)
		next = append(next, out[tail:]...)
		out = next
	}
	return string(out), nil
}
