package qcode

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"runtime/debug"
	"strings"
	"sync"

	"github.com/spf13/afero"

	"github.com/qlinetech/qcode/cli"
	"github.com/qlinetech/qcode/internal/apply"
	"github.com/qlinetech/qcode/internal/engine"
	"github.com/qlinetech/qcode/internal/fs"
	"github.com/qlinetech/qcode/internal/inference"
	"github.com/qlinetech/qcode/internal/logging"
	"github.com/qlinetech/qcode/internal/nvim"
	"github.com/qlinetech/qcode/internal/parser"
	"github.com/qlinetech/qcode/internal/patcher"
	"github.com/qlinetech/qcode/internal/source"
	"github.com/qlinetech/qcode/internal/state"
	"github.com/qlinetech/qcode/internal/ui"
	"github.com/qlinetech/qcode/internal/webview"
	"github.com/qlinetech/qcode/internal/workflow"
	"github.com/qlinetech/qcode/model"
)

var errNoRunningEditor = errors.New("no running Neovim instance found")

// Editor is the running editor: its buffers, its context and its tools.
type Editor interface {
	workflow.Host
	fs.FileAccess
	EditorContext(ctx context.Context) (*engine.EditorContext, error)
	SaveAll(ctx context.Context) error
	// SelfStarted reports whether the editor is a headless instance this
	// process spawned, which nobody can see.
	SelfStarted() bool
	Close()
}

// Completer answers prompts.
type Completer interface {
	Complete(ctx context.Context, prompt *engine.AIPrompt) (string, error)
}

// App orchestrates the entire application logic.
type App struct {
	cfg            *cli.Config
	afs            afero.Fs
	files          *fs.Files
	stateManager   *state.Manager
	pathResolver   *fs.PathResolver
	sourceProvider *source.SourceProvider
	out            io.Writer
	logger         *slog.Logger
	confirm        func(dirs []string) bool
	connect        func() (Editor, error)

	mu        sync.Mutex
	editor    Editor
	completer Completer
}

// DetailedError enhances a standard error with a stack trace.
type DetailedError struct {
	Err   error
	Stack []byte
}

func (e *DetailedError) Error() string {
	return e.Err.Error()
}

func (e *DetailedError) Unwrap() error { return e.Err }

// StackTrace returns the stack captured when the panic was recovered.
func (e *DetailedError) StackTrace() string { return string(e.Stack) }

// Option customizes an App.
type Option func(*App)

// WithFs sets the filesystem for disk access and history.
func WithFs(fsys afero.Fs) Option { return func(a *App) { a.afs = fsys } }

// WithEditor replaces the Neovim connection.
func WithEditor(connect func() (Editor, error)) Option {
	return func(a *App) { a.connect = connect }
}

// WithCompleter replaces the inference client.
func WithCompleter(c Completer) Option { return func(a *App) { a.completer = c } }

// WithSource replaces where responses are read from.
func WithSource(sp *source.SourceProvider) Option {
	return func(a *App) { a.sourceProvider = sp }
}

// WithOutput sets where printing modes write.
func WithOutput(w io.Writer) Option { return func(a *App) { a.out = w } }

// WithConfirm sets how directory creation is confirmed.
func WithConfirm(fn func(dirs []string) bool) Option { return func(a *App) { a.confirm = fn } }

// WithLogger sets the logger of the chat panel server.
func WithLogger(l *slog.Logger) Option { return func(a *App) { a.logger = l } }

// New creates a new App instance.
func New(cfg *cli.Config, opts ...Option) (*App, error) {
	a := &App{
		cfg:            cfg,
		afs:            afero.NewOsFs(),
		sourceProvider: source.New(),
		out:            os.Stdout,
		logger:         logging.Nop(),
	}
	a.connect = func() (Editor, error) {
		m, err := nvim.New(cfg.NvimAddr)
		if err != nil {
			return nil, err
		}
		return m, nil
	}
	a.confirm = a.confirmOnTerminal
	for _, opt := range opts {
		opt(a)
	}
	a.files = fs.NewFiles(a.afs)

	pathResolver, err := fs.NewPathResolver(a.afs, cfg.LookupDirs)
	if err != nil {
		return nil, err
	}
	a.pathResolver = pathResolver

	root := pathResolver.Root()
	if len(cfg.LookupDirs) == 0 {
		if r, err := state.ProjectRoot(); err == nil {
			root = r
		}
	}
	stateManager, err := state.New(a.afs, root)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize state manager: %w", err)
	}
	a.stateManager = stateManager
	return a, nil
}

// Close releases the editor connection.
func (a *App) Close() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.editor != nil {
		a.editor.Close()
		a.editor = nil
	}
}

func (a *App) getEditor() (Editor, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.editor != nil {
		return a.editor, nil
	}
	ed, err := a.connect()
	if err != nil {
		return nil, err
	}
	a.editor = ed
	return ed, nil
}

// targetFiles picks where changes are written: the editor's buffers when
// one is reachable, otherwise the disk. Buffer mode needs the editor.
func (a *App) targetFiles() (fs.FileAccess, Editor, error) {
	ed, err := a.getEditor()
	if err == nil {
		// Buffers of a headless instance are gone once it exits.
		if a.cfg.Buffer && ed.SelfStarted() {
			return nil, nil, fmt.Errorf("buffer mode needs a running Neovim: %w", errNoRunningEditor)
		}
		return ed, ed, nil
	}
	if a.cfg.Buffer {
		return nil, nil, fmt.Errorf("buffer mode needs a running Neovim: %w", err)
	}
	a.logger.Debug("editor unavailable, writing to disk", "err", err)
	return a.files, nil, nil
}

func (a *App) confirmOnTerminal(dirs []string) bool {
	if len(dirs) == 0 {
		return true
	}
	in := io.Reader(os.Stdin)
	if a.sourceProvider.IsPiped() {
		tty, err := os.Open("/dev/tty")
		if err != nil {
			ui.Warning("Cannot ask for confirmation without a terminal.")
			return false
		}
		defer tty.Close()
		in = tty
	}
	return fs.ConfirmDirs(dirs, in)
}

// Execute executes the main application logic based on parsed flags.
func (a *App) Execute(ctx context.Context) (summary model.Summary, err error) {
	// Centralized panic recovery.
	defer func() {
		if r := recover(); r != nil {
			err = &DetailedError{
				Err:   fmt.Errorf("internal panic: %v", r),
				Stack: debug.Stack(),
			}
		}
	}()

	switch a.cfg.Mode {
	case cli.ModeUndo:
		return a.Undo(ctx)
	case cli.ModeRedo:
		return a.Redo(ctx)
	case cli.ModeDiffFix:
		return a.fixAndPrintDiffs(ctx)
	case cli.ModePrompt:
		return a.printPrompt(ctx)
	case cli.ModeAsk:
		response, err := a.Ask(ctx, a.cfg.Prompt, engine.ChatStates{})
		if err != nil {
			return model.Summary{}, err
		}
		return a.ApplyResponse(ctx, response)
	case cli.ModeServe:
		return model.Summary{}, a.Serve(ctx)
	case cli.ModeFormat:
		path := a.absolute(a.cfg.FormatPath)
		return a.toolSummary(path, a.Format(ctx, path), "Formatted "+a.cfg.FormatPath)
	case cli.ModeDebug:
		folder := a.absolute(a.cfg.DebugFolder)
		return a.toolSummary(folder, a.StartDebug(ctx, folder, a.debugConfig(folder)), "Debugging "+a.cfg.DebugFolder)
	case cli.ModeStopDebug:
		return a.toolSummary("debug session", a.StopDebug(ctx), "Debug session stopped.")
	case cli.ModeRun:
		return a.toolSummary(a.cfg.Command, a.Run(ctx, a.pathResolver.Root(), a.cfg.Command), "Running: "+a.cfg.Command)
	case cli.ModeHover:
		return a.printHover(ctx)
	default:
		return a.processContent(ctx)
	}
}

func (a *App) absolute(path string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	if existing := a.pathResolver.ResolveExisting(path); existing != "" {
		return existing
	}
	return a.pathResolver.Resolve(path)
}

func (a *App) toolSummary(subject string, ok bool, message string) (model.Summary, error) {
	if !ok {
		return model.Summary{Failed: []string{subject}}, nil
	}
	return model.Summary{Message: message}, nil
}

// processContent handles the core logic of reading the source and
// applying what it proposes.
func (a *App) processContent(ctx context.Context) (model.Summary, error) {
	content, err := a.sourceProvider.GetContent()
	if err != nil {
		return model.Summary{}, err
	}
	if content == "" {
		return model.Summary{Message: "Source is empty. Nothing to process."}, nil
	}
	return a.ApplyResponse(ctx, content)
}

// ApplyResponse parses a model response and applies its changes. Saved
// changes are recorded for undo.
func (a *App) ApplyResponse(ctx context.Context, content string) (model.Summary, error) {
	files, ed, err := a.targetFiles()
	if err != nil {
		return model.Summary{}, err
	}

	plan, err := parser.CreatePlan(ctx, content, parser.Options{
		Resolver:   a.pathResolver,
		Files:      files,
		Extensions: a.cfg.Extensions,
	})
	if errors.Is(err, parser.ErrNoChanges) {
		return model.Summary{Message: "No valid changes were generated. Nothing to do."}, nil
	}
	if err != nil {
		return model.Summary{}, fmt.Errorf("failed to create execution plan: %w", err)
	}

	dirs := fs.MissingDirs(a.afs, plan.Files())
	if !a.confirm(dirs) {
		return model.Summary{Message: "Directory creation declined. Nothing was changed."}, nil
	}
	for _, dir := range dirs {
		if err := a.afs.MkdirAll(dir, 0o755); err != nil {
			return model.Summary{}, fmt.Errorf("could not create directory %s: %w", dir, err)
		}
	}

	var ops []state.Change
	applier := apply.New(files, apply.Options{
		Overwrite:         a.cfg.Overwrite,
		VerifyUnvalidated: a.cfg.VerifyDiffs,
	})
	applier.OnApply(func(op apply.Operation) {
		ops = append(ops, state.Change{Path: op.Path, Action: op.Action, Before: op.Before, After: op.After})
	})
	results := applier.ApplyCodeChanges(ctx, plan.Changes)
	results = append(results, applier.ApplyDiffs(ctx, plan.Diffs)...)

	var summary model.Summary
	for _, f := range plan.Failed {
		a.logger.Warn("block skipped", "source", f.Source, "err", f.Err)
		summary.Failed = append(summary.Failed, f.Source)
	}
	for _, r := range results {
		if !r.OK() {
			a.logger.Warn("change failed", "file", r.File, "err", r.Err)
		}
		summary.Add(r)
	}

	if len(ops) > 0 && !a.cfg.Buffer { // Save by default
		if ed != nil {
			if err := ed.SaveAll(ctx); err != nil {
				return summary, err
			}
		}
		if _, err := a.stateManager.Record(ops); err != nil {
			return summary, err
		}
	}

	a.relativizeSummaryPaths(&summary)
	return summary, nil
}

// Preview renders what a response would change without writing.
func (a *App) Preview(ctx context.Context, response string) (string, error) {
	files, _, err := a.targetFiles()
	if err != nil {
		return "", err
	}
	plan, err := parser.CreatePlan(ctx, response, parser.Options{
		Resolver:   a.pathResolver,
		Files:      files,
		Extensions: a.cfg.Extensions,
	})
	if err != nil {
		return "", err
	}

	preview, err := apply.New(files, apply.Options{Overwrite: a.cfg.Overwrite}).Preview(ctx, plan.Changes)
	if err != nil {
		return "", err
	}
	var b strings.Builder
	b.WriteString(preview)
	for _, d := range plan.Diffs {
		rel := a.pathResolver.Relative(d.File)
		corrected, source, err := a.correctDiff(ctx, files, d)
		if err != nil {
			fmt.Fprintf(&b, "# %s: %v\n", rel, err)
			continue
		}
		if err := patcher.Verify(rel, corrected, source); err != nil {
			fmt.Fprintf(&b, "# %s: does not apply: %v\n", rel, err)
		}
		b.WriteString(corrected)
		if !strings.HasSuffix(corrected, "\n") {
			b.WriteString("\n")
		}
	}
	for _, f := range plan.Failed {
		fmt.Fprintf(&b, "# %s: %v\n", f.Source, f.Err)
	}
	return b.String(), nil
}

// correctDiff recomputes the hunk headers of d against the current file,
// which it also returns.
func (a *App) correctDiff(ctx context.Context, files fs.FileAccess, d *model.GitDiffChange) (string, []byte, error) {
	var source []byte
	if ok, _ := files.Exists(ctx, d.File); ok {
		data, err := files.ReadFile(ctx, d.File)
		if err != nil {
			return "", nil, err
		}
		source = data
	}
	corrected, err := patcher.CorrectDiff(a.pathResolver.Relative(d.File), d.Diff, patcher.SplitLines(source))
	return corrected, source, err
}

// fixAndPrintDiffs corrects diffs from the source and prints them to stdout.
func (a *App) fixAndPrintDiffs(ctx context.Context) (model.Summary, error) {
	content, err := a.sourceProvider.GetContent()
	if err != nil {
		return model.Summary{}, err
	}
	if content == "" {
		return model.Summary{}, nil
	}

	plan, err := parser.CreatePlan(ctx, content, parser.Options{
		Resolver:   a.pathResolver,
		Files:      a.files,
		Extensions: []string{parser.DiffOnly},
	})
	if err != nil && !errors.Is(err, parser.ErrNoChanges) {
		return model.Summary{}, err
	}
	for _, d := range plan.Diffs {
		corrected, _, err := a.correctDiff(ctx, a.files, d)
		if err != nil {
			// Silently skip failures for this mode.
			continue
		}
		if corrected != "" {
			fmt.Fprint(a.out, corrected)
		}
	}
	return model.Summary{}, nil
}

// BuildPrompt composes the prompt for request from the active editor.
func (a *App) BuildPrompt(ctx context.Context, request string, chat engine.ChatStates) (*engine.AIPrompt, error) {
	ed, err := a.getEditor()
	if err != nil {
		return nil, err
	}
	editorCtx, err := ed.EditorContext(ctx)
	if err != nil {
		return nil, err
	}

	root := a.pathResolver.Root()
	modulePath := engine.GoModulePath(a.afs, root)
	registry := engine.Default(modulePath)

	var eng engine.PromptEngine
	switch {
	case a.cfg.Language != "":
		eng, err = registry.Get(engine.Language(a.cfg.Language))
	default:
		eng, err = registry.ForEditor(editorCtx)
		if errors.Is(err, engine.ErrUnknownLanguage) {
			if lang, ok := engine.Detect(a.afs, root); ok {
				eng, err = registry.Get(lang)
			}
		}
	}
	if err != nil {
		return nil, err
	}

	return eng.ProcessPrompt(ctx, request, editorCtx, &engine.ExtensionContext{
		WorkspaceRoot:    root,
		ModulePath:       modulePath,
		Model:            a.cfg.Model,
		MaxContextTokens: a.cfg.MaxContextTokens,
		Files:            a.projectFiles(root, eng),
	}, chat)
}

// projectFiles lists the files under root that the engine and the ignore
// files do not exclude. A failed walk only costs the listing.
func (a *App) projectFiles(root string, eng engine.PromptEngine) []string {
	ignored, err := fs.LoadIgnore(a.afs, root)
	if err != nil {
		a.logger.Warn("could not load ignore files", "root", root, "err", err)
	}
	files, err := fs.Walk(a.afs, root, eng.FoldersToSkip(), ignored)
	if err != nil {
		a.logger.Warn("could not list project files", "root", root, "err", err)
		return nil
	}
	return files
}

func (a *App) getCompleter() (Completer, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.completer != nil {
		return a.completer, nil
	}
	c, err := inference.New(inference.Config{
		BaseURL:     a.cfg.BaseURL,
		APIKey:      a.cfg.APIKey,
		Model:       a.cfg.Model,
		Temperature: float32(a.cfg.Temperature),
	})
	if err != nil {
		return nil, err
	}
	a.completer = c
	return c, nil
}

// Ask builds the prompt for request and returns the model's answer.
func (a *App) Ask(ctx context.Context, request string, chat engine.ChatStates) (string, error) {
	prompt, err := a.BuildPrompt(ctx, request, chat)
	if err != nil {
		return "", err
	}
	c, err := a.getCompleter()
	if err != nil {
		return "", err
	}
	a.logger.Info("sending prompt", "language", prompt.Language, "tokens", prompt.TokenEstimate)
	return c.Complete(ctx, prompt)
}

func (a *App) printPrompt(ctx context.Context) (model.Summary, error) {
	prompt, err := a.BuildPrompt(ctx, a.cfg.Prompt, engine.ChatStates{})
	if err != nil {
		return model.Summary{}, err
	}
	for _, m := range prompt.Messages {
		fmt.Fprintf(a.out, "### %s\n\n%s\n\n", m.Role, m.Content)
	}
	return model.Summary{}, nil
}

func (a *App) printHover(ctx context.Context) (model.Summary, error) {
	ed, ok := a.liveEditor("hover")
	if !ok {
		return model.Summary{Failed: []string{a.cfg.HoverPath}}, nil
	}
	path := a.absolute(a.cfg.HoverPath)
	text, ok := workflow.Inspector{Host: ed}.Hover(ctx, path, a.cfg.HoverLine, a.cfg.HoverColumn)
	if !ok {
		return model.Summary{Failed: []string{a.cfg.HoverPath}}, nil
	}
	fmt.Fprintln(a.out, text)
	return model.Summary{}, nil
}

// liveEditor returns the editor for workflow tools. Their results show up
// in the editor, so a headless instance spawned by this process will not
// do.
func (a *App) liveEditor(tool string) (Editor, bool) {
	ed, err := a.getEditor()
	if err == nil && ed.SelfStarted() {
		err = errNoRunningEditor
	}
	if err != nil {
		ui.Error("%s needs a running Neovim: %v", tool, err)
		a.logger.Warn("no editor", "tool", tool, "err", err)
		return nil, false
	}
	return ed, true
}

// Format formats path with the editor's formatter.
func (a *App) Format(ctx context.Context, path string) bool {
	ed, ok := a.liveEditor("format")
	if !ok {
		return false
	}
	return workflow.Formatter{Host: ed}.Format(ctx, path)
}

// Run runs command in a new editor terminal.
func (a *App) Run(ctx context.Context, cwd, command string) bool {
	ed, ok := a.liveEditor("run")
	if !ok {
		return false
	}
	return workflow.Runner{Host: ed}.Run(ctx, cwd, command)
}

// StartDebug starts a debug session.
func (a *App) StartDebug(ctx context.Context, folder string, config workflow.DebugConfig) bool {
	ed, ok := a.liveEditor("debug")
	if !ok {
		return false
	}
	return workflow.Debugger{Host: ed}.Start(ctx, folder, config)
}

// StopDebug stops the active debug session.
func (a *App) StopDebug(ctx context.Context) bool {
	ed, ok := a.liveEditor("stop-debug")
	if !ok {
		return false
	}
	return workflow.Debugger{Host: ed}.Stop(ctx)
}

// debugAdapters maps project languages to nvim-dap adapter names.
var debugAdapters = map[engine.Language]string{
	engine.Python:     "python",
	engine.Go:         "go",
	engine.JavaScript: "pwa-node",
	engine.TypeScript: "pwa-node",
	engine.Rust:       "codelldb",
}

func (a *App) debugConfig(folder string) workflow.DebugConfig {
	typ := a.cfg.DebugType
	if typ == "" {
		lang := engine.Language(a.cfg.Language)
		if lang == "" {
			lang, _ = engine.Detect(a.afs, folder)
		}
		typ = debugAdapters[lang]
	}
	return workflow.DebugConfig{
		Type:    typ,
		Request: "launch",
		Name:    a.cfg.DebugName,
		Extra:   map[string]any{"program": folder, "cwd": folder},
	}
}

// Undo reverts the last recorded operation.
func (a *App) Undo(ctx context.Context) (model.Summary, error) {
	return a.restore(ctx, a.stateManager.Undo, "Undid last operation.", "No operation to undo.", state.ErrNothingToUndo)
}

// Redo re-applies the last undone operation.
func (a *App) Redo(ctx context.Context) (model.Summary, error) {
	return a.restore(ctx, a.stateManager.Redo, "Redid last undone operation.", "No operation to redo.", state.ErrNothingToRedo)
}

func (a *App) restore(ctx context.Context, step func(context.Context, fs.FileAccess) ([]model.ChangeResult, error), done, nothing string, errNothing error) (model.Summary, error) {
	files, ed, err := a.targetFiles()
	if err != nil {
		return model.Summary{}, err
	}
	results, err := step(ctx, files)
	if errors.Is(err, errNothing) {
		return model.Summary{Message: nothing}, nil
	}
	if err != nil {
		return model.Summary{}, err
	}
	if ed != nil {
		if err := ed.SaveAll(ctx); err != nil {
			return model.Summary{}, err
		}
	}

	summary := model.Summary{Message: done}
	for _, r := range results {
		summary.Add(r)
	}
	a.relativizeSummaryPaths(&summary)
	return summary, nil
}

// History lists recorded operations, newest first.
func (a *App) History(ctx context.Context) ([]webview.HistoryItem, error) {
	entries, applied := a.stateManager.Entries()
	items := make([]webview.HistoryItem, 0, len(entries))
	for i, e := range entries {
		var s model.Summary
		files := make([]string, 0, len(e.Operations))
		for _, op := range e.Operations {
			rel := a.pathResolver.Relative(op.Path)
			files = append(files, rel)
			s.Add(model.ChangeResult{File: rel, Action: string(op.Action)})
		}
		summary := describe(s)
		if i < len(entries)-applied {
			summary += " (undone)"
		}
		items = append(items, webview.HistoryItem{
			ID:      e.ID,
			When:    e.Timestamp.Local().Format("2006-01-02 15:04"),
			Summary: summary,
			Files:   files,
		})
	}
	return items, nil
}

func describe(s model.Summary) string {
	var parts []string
	if n := len(s.Created); n > 0 {
		parts = append(parts, fmt.Sprintf("%d created", n))
	}
	if n := len(s.Modified); n > 0 {
		parts = append(parts, fmt.Sprintf("%d modified", n))
	}
	if n := len(s.Deleted); n > 0 {
		parts = append(parts, fmt.Sprintf("%d deleted", n))
	}
	return strings.Join(parts, ", ")
}

// Settings returns the effective configuration for display.
func (a *App) Settings() map[string]string {
	key := "unset"
	if a.cfg.APIKey != "" || os.Getenv("OPENAI_API_KEY") != "" {
		key = "set"
	}
	modelName := a.cfg.Model
	if modelName == "" {
		modelName = inference.DefaultModel
	}
	return map[string]string{
		"model":              modelName,
		"base_url":           a.cfg.BaseURL,
		"api_key":            key,
		"buffer":             fmt.Sprint(a.cfg.Buffer),
		"overwrite":          fmt.Sprint(a.cfg.Overwrite),
		"verify_diffs":       fmt.Sprint(a.cfg.VerifyDiffs),
		"language":           a.cfg.Language,
		"max_context_tokens": fmt.Sprint(a.cfg.MaxContextTokens),
		"workspace":          a.pathResolver.Root(),
		"config_file":        a.cfg.ConfigFile,
	}
}

// Apply is the chat panel's apply action.
func (a *App) Apply(ctx context.Context, response string) (model.Summary, error) {
	return a.ApplyResponse(ctx, response)
}

var _ webview.Actions = (*App)(nil)

// Serve runs the chat panel until ctx is done.
func (a *App) Serve(ctx context.Context) error {
	logger, closer := logging.New(logging.Options{Path: a.cfg.LogFile, Level: a.cfg.LogLevel})
	defer closer.Close()
	a.logger = logger
	// Directory prompts cannot be answered from the panel.
	a.confirm = func([]string) bool { return true }

	ln, err := net.Listen("tcp", a.cfg.Listen)
	if err != nil {
		return fmt.Errorf("could not listen on %s: %w", a.cfg.Listen, err)
	}
	shell := webview.NewShell(a, webview.Options{Title: "qcode", Logger: logger})
	url := "http://" + ln.Addr().String() + "/"
	ui.Success("Chat panel at %s", url)
	logger.Info("serving chat panel", "addr", ln.Addr().String())
	return shell.Serve(ctx, ln)
}

// relativizeSummaryPaths converts absolute file paths in a summary to be
// relative to the current working directory for cleaner display.
func (a *App) relativizeSummaryPaths(summary *model.Summary) {
	wd, err := os.Getwd()
	if err != nil {
		// Cannot get CWD, so we can't make paths relative.
		return
	}

	makeRelative := func(paths []string) []string {
		relPaths := make([]string, len(paths))
		for i, p := range paths {
			if !filepath.IsAbs(p) {
				relPaths[i] = p
				continue
			}
			rel, err := filepath.Rel(wd, p)
			if err != nil || strings.HasPrefix(rel, "..") {
				relPaths[i] = p // Fallback to absolute path
			} else {
				relPaths[i] = rel
			}
		}
		return relPaths
	}

	summary.Created = makeRelative(summary.Created)
	summary.Modified = makeRelative(summary.Modified)
	summary.Deleted = makeRelative(summary.Deleted)
	summary.Failed = makeRelative(summary.Failed)
}
