package nvim

import (
	"context"
	"os"

	"github.com/qlinetech/qcode/internal/fs"
)

// bufferHelpers is prepended to chunks that look buffers up by name.
// bufnr() treats its argument as a pattern, so names are compared
// literally instead.
const bufferHelpers = `
local function find(path)
  for _, b in ipairs(vim.api.nvim_list_bufs()) do
    if vim.api.nvim_buf_get_name(b) == path then return b end
  end
  return -1
end
local function load(path)
  local b = find(path)
  if b == -1 then b = vim.fn.bufadd(path) end
  if not vim.api.nvim_buf_is_loaded(b) then vim.fn.bufload(b) end
  return b
end
`

const readLua = bufferHelpers + `
local path = ...
local b = find(path)
if (b == -1 or not vim.api.nvim_buf_is_loaded(b)) and vim.fn.filereadable(path) == 0 then
  return { exists = false, text = '' }
end
b = load(path)
local lines = vim.api.nvim_buf_get_lines(b, 0, -1, false)
local text = table.concat(lines, '\n')
if vim.bo[b].eol and not (#lines == 1 and lines[1] == '') then text = text .. '\n' end
return { exists = true, text = text }
`

const writeLua = bufferHelpers + `
local path, text = ...
vim.fn.mkdir(vim.fn.fnamemodify(path, ':h'), 'p')
local b = load(path)
local eol = text:sub(-1) == '\n'
if eol then text = text:sub(1, -2) end
vim.api.nvim_buf_set_lines(b, 0, -1, false, vim.split(text, '\n', { plain = true }))
vim.bo[b].eol = eol
vim.bo[b].fixeol = eol
`

const removeLua = bufferHelpers + `
local path = ...
local b = find(path)
if b ~= -1 then vim.api.nvim_buf_delete(b, { force = true }) end
if vim.fn.filereadable(path) == 1 then
  if vim.fn.delete(path) ~= 0 then error('could not delete ' .. path) end
  return true
end
return b ~= -1
`

const existsLua = bufferHelpers + `
local path = ...
if vim.fn.filereadable(path) == 1 then return true end
local b = find(path)
return b ~= -1 and vim.api.nvim_buf_is_loaded(b) and vim.bo[b].modified
`

type readResult struct {
	Exists bool   `msgpack:"exists"`
	Text   string `msgpack:"text"`
}

// ReadFile returns the buffer content for path, loading it from disk if
// no buffer holds it yet.
func (m *Manager) ReadFile(ctx context.Context, path string) ([]byte, error) {
	abs, err := absPath(path)
	if err != nil {
		return nil, fs.WrapError("read", path, err)
	}
	var res readResult
	if err := m.exec(ctx, readLua, &res, abs); err != nil {
		return nil, fs.WrapError("read", abs, err)
	}
	if !res.Exists {
		return nil, fs.WrapError("read", abs, os.ErrNotExist)
	}
	return []byte(res.Text), nil
}

// WriteFile replaces the buffer content for path. Buffers reach the disk
// on SaveAll.
func (m *Manager) WriteFile(ctx context.Context, path string, data []byte) error {
	abs, err := absPath(path)
	if err != nil {
		return fs.WrapError("write", path, err)
	}
	return fs.WrapError("write", abs, m.exec(ctx, writeLua, nil, abs, string(data)))
}

// RemoveFile wipes the buffer for path and deletes the file.
func (m *Manager) RemoveFile(ctx context.Context, path string) error {
	abs, err := absPath(path)
	if err != nil {
		return fs.WrapError("remove", path, err)
	}
	var removed bool
	if err := m.exec(ctx, removeLua, &removed, abs); err != nil {
		return fs.WrapError("remove", abs, err)
	}
	if !removed {
		return fs.WrapError("remove", abs, os.ErrNotExist)
	}
	return nil
}

// Exists reports whether path is on disk or held by a modified buffer.
func (m *Manager) Exists(ctx context.Context, path string) (bool, error) {
	abs, err := absPath(path)
	if err != nil {
		return false, fs.WrapError("stat", path, err)
	}
	var exists bool
	if err := m.exec(ctx, existsLua, &exists, abs); err != nil {
		return false, fs.WrapError("stat", abs, err)
	}
	return exists, nil
}

var _ fs.FileAccess = (*Manager)(nil)

