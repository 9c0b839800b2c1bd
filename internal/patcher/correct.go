package patcher

import (
	"errors"
	"fmt"
	"strings"
)

// ErrHunkNotFound means a hunk's context could not be located in the
// current file content.
var ErrHunkNotFound = errors.New("hunk context not found in file")

const devNull = "/dev/null"

// hunk is the body of one hunk: lines starting with '+', '-', ' ' or '\\'.
type hunk []string

func onOldSide(line string) bool {
	return strings.HasPrefix(line, "-") || strings.HasPrefix(line, " ")
}

// anchor is the old-side text of h without blank lines. It is what must
// be found in the file for the hunk to apply.
func (h hunk) anchor() []string {
	var out []string
	for _, line := range h {
		if onOldSide(line) && strings.TrimSpace(line[1:]) != "" {
			out = append(out, line[1:])
		}
	}
	return out
}

// blankLead counts the old-side blank lines before the anchor starts.
func (h hunk) blankLead() int {
	n := 0
	for _, line := range h {
		if !onOldSide(line) {
			continue
		}
		if strings.TrimSpace(line[1:]) != "" {
			break
		}
		n++
	}
	return n
}

// span returns how many lines h covers in the old and new file.
func (h hunk) span() (oldLen, newLen int) {
	for _, line := range h {
		switch line[0] {
		case '+':
			newLen++
		case '-':
			oldLen++
		case ' ':
			oldLen++
			newLen++
		}
	}
	return oldLen, newLen
}

// squash collapses runs of whitespace so indentation drift in model
// output does not prevent a match.
func squash(line string) string {
	return strings.Join(strings.Fields(line), " ")
}

// lineIndex is the file content with blank lines dropped and whitespace
// squashed, remembering each kept line's 1-based number.
type lineIndex struct {
	text   []string
	lineNo []int
}

func indexLines(source []string) lineIndex {
	var idx lineIndex
	for i, line := range source {
		if sq := squash(line); sq != "" {
			idx.text = append(idx.text, sq)
			idx.lineNo = append(idx.lineNo, i+1)
		}
	}
	return idx
}

// find returns the line number where anchor first occurs, or -1.
func (idx lineIndex) find(anchor []string) int {
	if len(anchor) == 0 {
		return -1
	}
	want := make([]string, len(anchor))
	for i, line := range anchor {
		want[i] = squash(line)
	}
outer:
	for i := 0; i+len(want) <= len(idx.text); i++ {
		for j, line := range want {
			if idx.text[i+j] != line {
				continue outer
			}
		}
		return idx.lineNo[i]
	}
	return -1
}

// splitHunks splits the body of a diff into hunks, dropping file headers
// and the hunk headers, which models often get wrong. A bare empty line
// inside a hunk is an empty context line whose leading space was lost.
func splitHunks(diffLines []string) []hunk {
	var hunks []hunk
	var current hunk
	inHunk := false

	flush := func() {
		for len(current) > 0 && current[len(current)-1] == " " {
			current = current[:len(current)-1]
		}
		if len(current) > 0 {
			hunks = append(hunks, current)
		}
		current = nil
	}

	for _, line := range diffLines {
		line = strings.TrimRight(line, "\r")
		switch {
		case strings.HasPrefix(line, "---") && !inHunk, strings.HasPrefix(line, "+++") && !inHunk:
			continue
		case strings.HasPrefix(line, "diff --git"), strings.HasPrefix(line, "index "):
			flush()
			inHunk = false
		case strings.HasPrefix(line, "@@"):
			flush()
			inHunk = true
		case !inHunk:
			continue
		case line == "":
			current = append(current, " ")
		case strings.HasPrefix(line, "+"), strings.HasPrefix(line, "-"), strings.HasPrefix(line, " "), strings.HasPrefix(line, `\`):
			current = append(current, line)
		}
	}
	flush()
	return hunks
}

// headerPaths returns the old and new names from the file headers of a
// diff, with a/ and b/ prefixes removed.
func headerPaths(raw string) (oldPath, newPath string) {
	for _, line := range strings.Split(raw, "\n") {
		switch {
		case strings.HasPrefix(line, "--- ") && oldPath == "":
			oldPath = cleanHeaderPath(line[4:])
		case strings.HasPrefix(line, "+++ ") && newPath == "":
			newPath = cleanHeaderPath(line[4:])
		}
		if strings.HasPrefix(line, "@@") {
			break
		}
	}
	return oldPath, newPath
}

func cleanHeaderPath(p string) string {
	p = strings.TrimSpace(p)
	if tab := strings.IndexByte(p, '\t'); tab >= 0 {
		p = p[:tab]
	}
	if p == devNull {
		return p
	}
	if strings.HasPrefix(p, "a/") || strings.HasPrefix(p, "b/") {
		p = p[2:]
	}
	return p
}

// CorrectDiff rebuilds a unified diff for path whose hunk headers match
// source, the current content of the file split into lines (nil for a
// new file). Hunks are located by their context.
func CorrectDiff(path, raw string, source []string) (string, error) {
	hunks := splitHunks(strings.Split(raw, "\n"))
	if len(hunks) == 0 {
		return "", nil
	}

	oldPath, newPath := headerPaths(raw)
	from, to := "a/"+path, "b/"+path
	if oldPath == devNull {
		from = devNull
	}
	if newPath == devNull {
		to = devNull
	}

	var out strings.Builder
	fmt.Fprintf(&out, "--- %s\n+++ %s\n", from, to)

	idx := indexLines(source)
	shift := 0
	for _, h := range hunks {
		oldLen, newLen := h.span()

		oldStart := 0
		if oldLen > 0 || len(source) > 0 {
			at := idx.find(h.anchor())
			if at == -1 {
				return "", ErrHunkNotFound
			}
			oldStart = max(at-h.blankLead(), 1)
		}

		// An empty side is addressed by the line before it.
		newStart := oldStart + shift
		if oldLen == 0 {
			newStart++
		}
		if newLen == 0 {
			newStart--
		}

		fmt.Fprintf(&out, "@@ -%d,%d +%d,%d @@\n", oldStart, oldLen, newStart, newLen)
		for _, line := range h {
			out.WriteString(line + "\n")
		}
		shift += newLen - oldLen
	}
	return out.String(), nil
}
