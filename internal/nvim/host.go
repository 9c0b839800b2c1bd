package nvim

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/qlinetech/qcode/internal/engine"
	"github.com/qlinetech/qcode/internal/ui"
	"github.com/qlinetech/qcode/internal/workflow"
)

// ErrNoLanguageServer means no LSP client is attached to the buffer.
var ErrNoLanguageServer = errors.New("no language server attached")

const lspClients = `
local function clients(b)
  if vim.lsp.get_clients then return vim.lsp.get_clients({ bufnr = b }) end
  return vim.lsp.get_active_clients({ bufnr = b })
end
`

const formatLua = bufferHelpers + lspClients + `
local path = ...
local b = load(path)
local how = 'indent'
for _, c in ipairs(clients(b)) do
  if c.server_capabilities and c.server_capabilities.documentFormattingProvider then
    how = 'lsp'
    break
  end
end
vim.api.nvim_buf_call(b, function()
  if how == 'lsp' then
    vim.lsp.buf.format({ bufnr = b, async = false, timeout_ms = 5000 })
  else
    vim.cmd('silent keepjumps normal! gg=G')
  end
  if vim.bo[b].modified then vim.cmd('silent write') end
end)
return how
`

const hoverLua = bufferHelpers + lspClients + `
local path, line, col = ...
local b = load(path)
if #clients(b) == 0 then return vim.NIL end
local params = {
  textDocument = { uri = vim.uri_from_bufnr(b) },
  position = { line = line - 1, character = col },
}
local results = vim.lsp.buf_request_sync(b, 'textDocument/hover', params, 2000) or {}
local out = {}
for _, r in pairs(results) do
  local c = r.result and r.result.contents
  if type(c) == 'string' then
    table.insert(out, c)
  elseif type(c) == 'table' and c.value then
    table.insert(out, c.value)
  elseif type(c) == 'table' then
    for _, item in ipairs(c) do
      table.insert(out, type(item) == 'string' and item or (item.value or ''))
    end
  end
end
return table.concat(out, '\n\n')
`

const startDebugLua = `
local folder, config = ...
local ok, dap = pcall(require, 'dap')
if not ok then error('nvim-dap is not installed') end
vim.cmd('cd ' .. vim.fn.fnameescape(folder))
if config.cwd == nil then config.cwd = folder end
dap.run(config)
`

const stopDebugLua = `
local ok, dap = pcall(require, 'dap')
if not ok then error('nvim-dap is not installed') end
if not dap.session() then error('no active debug session') end
dap.terminate()
`

const terminalLua = `
local cwd = ...
vim.cmd('botright split')
local b = vim.api.nvim_create_buf(true, false)
vim.api.nvim_win_set_buf(0, b)
local opts = {}
if cwd ~= '' then opts.cwd = cwd end
local chan = vim.fn.termopen(vim.o.shell, opts)
if chan <= 0 then error('could not start a shell') end
return { chan = chan, buf = b }
`

const showLua = `
local b = ...
for _, w in ipairs(vim.api.nvim_list_wins()) do
  if vim.api.nvim_win_get_buf(w) == b then
    vim.api.nvim_set_current_win(w)
    return
  end
end
vim.cmd('botright split')
vim.api.nvim_win_set_buf(0, b)
`

const notifyLua = `
local msg, level = ...
vim.notify(msg, vim.log.levels[level])
`

// FormatDocument formats path with the attached language server, falling
// back to reindenting the buffer. A changed buffer is written.
func (m *Manager) FormatDocument(ctx context.Context, path string) error {
	abs, err := absPath(path)
	if err != nil {
		return err
	}
	var how string
	if err := m.exec(ctx, formatLua, &how, abs); err != nil {
		return err
	}
	ui.Info("Formatted %s (%s)", abs, how)
	return nil
}

// Hover returns the language server's hover text at line (1-based) and
// col (0-based).
func (m *Manager) Hover(ctx context.Context, path string, line, col int) (string, error) {
	abs, err := absPath(path)
	if err != nil {
		return "", err
	}
	var text *string
	if err := m.exec(ctx, hoverLua, &text, abs, line, col); err != nil {
		return "", err
	}
	if text == nil {
		return "", fmt.Errorf("%w to %s", ErrNoLanguageServer, abs)
	}
	return strings.TrimSpace(*text), nil
}

// StartDebugging launches config through nvim-dap with folder as the
// working directory.
func (m *Manager) StartDebugging(ctx context.Context, folder string, config workflow.DebugConfig) error {
	abs, err := absPath(folder)
	if err != nil {
		return err
	}
	return m.exec(ctx, startDebugLua, nil, abs, config.Map())
}

// StopDebugging terminates the active nvim-dap session.
func (m *Manager) StopDebugging(ctx context.Context) error {
	return m.exec(ctx, stopDebugLua, nil)
}

type terminalInfo struct {
	Chan int `msgpack:"chan"`
	Buf  int `msgpack:"buf"`
}

// terminal is a Neovim terminal buffer and its job channel.
type terminal struct {
	m    *Manager
	info terminalInfo
}

// CreateTerminal opens a shell in a terminal buffer rooted at cwd.
func (m *Manager) CreateTerminal(ctx context.Context, cwd string) (workflow.Terminal, error) {
	if cwd != "" {
		abs, err := absPath(cwd)
		if err != nil {
			return nil, err
		}
		cwd = abs
	}
	var info terminalInfo
	if err := m.exec(ctx, terminalLua, &info, cwd); err != nil {
		return nil, err
	}
	return &terminal{m: m, info: info}, nil
}

func (t *terminal) SendText(ctx context.Context, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	var written int
	return t.m.nvim.Call("chansend", &written, t.info.Chan, text)
}

func (t *terminal) Show(ctx context.Context) error {
	return t.m.exec(ctx, showLua, nil, t.info.Buf)
}

var notifyLevels = map[workflow.Level]string{
	workflow.LevelInfo:  "INFO",
	workflow.LevelWarn:  "WARN",
	workflow.LevelError: "ERROR",
}

// Notify shows msg with vim.notify. If Neovim cannot be reached the
// message goes to the console instead.
func (m *Manager) Notify(ctx context.Context, msg string, level workflow.Level) {
	if err := m.exec(ctx, notifyLua, nil, "qcode: "+msg, notifyLevels[level]); err != nil {
		switch level {
		case workflow.LevelError:
			ui.Error("%s", msg)
		case workflow.LevelWarn:
			ui.Warning("%s", msg)
		default:
			ui.Info("%s", msg)
		}
	}
}

var _ workflow.Host = (*Manager)(nil)

const editorLua = `
local b = vim.api.nvim_get_current_buf()
local lines = vim.api.nvim_buf_get_lines(b, 0, -1, false)
local cur = vim.api.nvim_win_get_cursor(0)
local ctx = {
  path = vim.api.nvim_buf_get_name(b),
  filetype = vim.bo[b].filetype,
  content = table.concat(lines, '\n') .. '\n',
  cursor = { line = cur[1], column = vim.fn.charcol('.') - 1 },
}
local mode = vim.fn.mode()
local s, e
if mode == 'v' or mode == 'V' or mode == '\22' then
  s, e = vim.fn.getpos('v'), vim.fn.getpos('.')
else
  s, e = vim.fn.getpos("'<"), vim.fn.getpos("'>")
end
if s[2] > 0 and e[2] > 0 then
  if s[2] > e[2] or (s[2] == e[2] and s[3] > e[3]) then s, e = e, s end
  local first, last = lines[s[2]] or '', lines[e[2]] or ''
  local text = ''
  if vim.fn.getregion then text = table.concat(vim.fn.getregion(s, e), '\n') end
  ctx.selection = {
    start = { line = s[2], column = vim.fn.charidx(first, math.min(s[3] - 1, #first)) },
    ['end'] = { line = e[2], column = vim.fn.charidx(last, math.min(e[3] - 1, #last)) },
    text = text,
  }
end
return ctx
`

// EditorContext snapshots the current buffer, cursor and the active or
// last visual selection. Every call reads fresh state.
func (m *Manager) EditorContext(ctx context.Context) (*engine.EditorContext, error) {
	var ec engine.EditorContext
	if err := m.exec(ctx, editorLua, &ec); err != nil {
		return nil, fmt.Errorf("failed to read editor state: %w", err)
	}
	if ec.FilePath == "" {
		return nil, fmt.Errorf("%w: current buffer has no file", engine.ErrMissingEditorState)
	}
	return &ec, nil
}
