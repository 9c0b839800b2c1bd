package workflow

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type notification struct {
	msg   string
	level Level
}

type fakeTerminal struct {
	sent    []string
	shown   bool
	sendErr error
}

func (t *fakeTerminal) SendText(_ context.Context, text string) error {
	if t.sendErr != nil {
		return t.sendErr
	}
	t.sent = append(t.sent, text)
	return nil
}

func (t *fakeTerminal) Show(context.Context) error {
	t.shown = true
	return nil
}

type fakeHost struct {
	notes    []notification
	calls    []string
	err      error
	hover    string
	terminal *fakeTerminal
	started  DebugConfig
}

func (h *fakeHost) Notify(_ context.Context, msg string, level Level) {
	h.notes = append(h.notes, notification{msg, level})
}

func (h *fakeHost) FormatDocument(_ context.Context, path string) error {
	h.calls = append(h.calls, "format "+path)
	return h.err
}

func (h *fakeHost) StartDebugging(_ context.Context, folder string, config DebugConfig) error {
	h.calls = append(h.calls, "debug "+folder)
	h.started = config
	return h.err
}

func (h *fakeHost) StopDebugging(context.Context) error {
	h.calls = append(h.calls, "stop")
	return h.err
}

func (h *fakeHost) CreateTerminal(_ context.Context, cwd string) (Terminal, error) {
	h.calls = append(h.calls, "terminal "+cwd)
	if h.err != nil {
		return nil, h.err
	}
	return h.terminal, nil
}

func (h *fakeHost) Hover(_ context.Context, path string, _, _ int) (string, error) {
	h.calls = append(h.calls, "hover "+path)
	return h.hover, h.err
}

var _ Host = (*fakeHost)(nil)

func TestFormatter(t *testing.T) {
	ctx := context.Background()

	h := &fakeHost{}
	assert.True(t, Formatter{Host: h}.Format(ctx, "/p/a.go"))
	assert.Equal(t, []string{"format /p/a.go"}, h.calls)
	assert.Empty(t, h.notes)

	h = &fakeHost{}
	assert.False(t, Formatter{Host: h}.Format(ctx, "  "))
	assert.Empty(t, h.calls, "invalid input must not reach the host")
	require.Len(t, h.notes, 1)
	assert.Equal(t, LevelError, h.notes[0].level)

	h = &fakeHost{err: errors.New("no formatter")}
	assert.False(t, Formatter{Host: h}.Format(ctx, "/p/a.go"))
	require.Len(t, h.notes, 1)
	assert.Contains(t, h.notes[0].msg, "no formatter")
}

func TestDebugger(t *testing.T) {
	ctx := context.Background()
	cfg := DebugConfig{Type: "go", Request: "launch", Name: "main", Extra: map[string]any{"program": "."}}

	h := &fakeHost{}
	d := Debugger{Host: h}
	assert.True(t, d.Start(ctx, "/p", cfg))
	assert.True(t, d.Stop(ctx))
	assert.Equal(t, []string{"debug /p", "stop"}, h.calls)
	assert.Equal(t, map[string]any{"type": "go", "request": "launch", "name": "main", "program": "."}, h.started.Map())

	h = &fakeHost{}
	d = Debugger{Host: h}
	assert.False(t, d.Start(ctx, "", cfg))
	assert.False(t, d.Start(ctx, "/p", DebugConfig{Type: "go"}))
	assert.Empty(t, h.calls)
	assert.Len(t, h.notes, 2)

	h = &fakeHost{err: errors.New("no session")}
	assert.False(t, Debugger{Host: h}.Stop(ctx))
	require.Len(t, h.notes, 1)
}

func TestRunner(t *testing.T) {
	ctx := context.Background()

	term := &fakeTerminal{}
	h := &fakeHost{terminal: term}
	assert.True(t, Runner{Host: h}.Run(ctx, "/p", "go test ./..."))
	assert.True(t, term.shown)
	assert.Equal(t, []string{"go test ./...\n"}, term.sent)

	h = &fakeHost{terminal: &fakeTerminal{}}
	assert.False(t, Runner{Host: h}.Run(ctx, "/p", " "))
	assert.Empty(t, h.calls)

	h = &fakeHost{terminal: &fakeTerminal{sendErr: errors.New("closed")}}
	assert.False(t, Runner{Host: h}.Run(ctx, "/p", "ls"))
	require.Len(t, h.notes, 1)
	assert.Contains(t, h.notes[0].msg, "closed")

	h = &fakeHost{err: errors.New("no shell")}
	assert.False(t, Runner{Host: h}.Run(ctx, "/p", "ls"))
}

func TestInspector(t *testing.T) {
	ctx := context.Background()

	h := &fakeHost{hover: "func Println(a ...any)"}
	text, ok := Inspector{Host: h}.Hover(ctx, "/p/a.go", 3, 5)
	assert.True(t, ok)
	assert.Equal(t, "func Println(a ...any)", text)

	h = &fakeHost{}
	_, ok = Inspector{Host: h}.Hover(ctx, "/p/a.go", 0, 0)
	assert.False(t, ok)
	_, ok = Inspector{Host: h}.Hover(ctx, "/p/a.go", 1, -1)
	assert.False(t, ok)
	assert.Empty(t, h.calls)

	text, ok = Inspector{Host: h}.Hover(ctx, "/p/a.go", 1, 0)
	assert.True(t, ok)
	assert.Empty(t, text)
	require.Len(t, h.notes, 3)
	assert.Equal(t, LevelInfo, h.notes[2].level)
}
