// Package nvim drives a Neovim instance over msgpack-RPC. It is the host
// editor: buffers, LSP formatting and hover, nvim-dap sessions,
// terminals and notifications all go through a Manager.
package nvim

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/neovim/go-client/nvim"

	"github.com/qlinetech/qcode/internal/ui"
)

const (
	undoDir = "~/.local/state/nvim/undo/"
)

// Manager handles the connection and interaction with a Neovim instance.
type Manager struct {
	nvim          *nvim.Nvim
	isSelfStarted bool
	cmd           *exec.Cmd
	socketPath    string
}

// listenAddress returns the address of the Neovim instance this process
// runs under, if any.
func listenAddress() string {
	for _, key := range []string{"NVIM", "NVIM_LISTEN_ADDRESS"} {
		if addr := os.Getenv(key); addr != "" {
			return addr
		}
	}
	return ""
}

// New creates a new Neovim manager, connecting to addr, to the instance
// named by $NVIM or $NVIM_LISTEN_ADDRESS, or else to a new headless one.
func New(addr string) (*Manager, error) {
	if addr == "" {
		addr = listenAddress()
	}
	if addr != "" {
		v, err := nvim.Dial(addr)
		if err == nil {
			return &Manager{nvim: v}, nil
		}
		ui.Warning("Could not connect to Neovim at %s, starting a headless instance: %v", addr, err)
	}

	// If that fails, start a temporary headless instance.
	tmpDir, err := os.MkdirTemp("", "qcode-nvim-")
	if err != nil {
		return nil, fmt.Errorf("failed to create temp dir for nvim: %w", err)
	}
	socketPath := filepath.Join(tmpDir, "nvim.sock")

	cmd := exec.Command("nvim", "--headless", "--clean", "--listen", socketPath)
	if err := cmd.Start(); err != nil {
		os.RemoveAll(tmpDir)
		return nil, fmt.Errorf("failed to start headless nvim: %w. Is 'nvim' in your PATH?", err)
	}

	// Wait for the socket file to appear.
	for i := 0; i < 40; i++ {
		if _, err := os.Stat(socketPath); err == nil {
			break
		}
		time.Sleep(50 * time.Millisecond)
	}

	v, err := nvim.Dial(socketPath)
	if err != nil {
		cmd.Process.Kill()
		cmd.Wait()
		os.RemoveAll(tmpDir)
		return nil, fmt.Errorf("failed to connect to headless nvim: %w", err)
	}

	m := &Manager{
		nvim:          v,
		isSelfStarted: true,
		cmd:           cmd,
		socketPath:    socketPath,
	}
	m.configureTempInstance()
	return m, nil
}

// configureTempInstance sets up undofile for persistent history.
func (m *Manager) configureTempInstance() {
	home, _ := os.UserHomeDir()
	expandedUndoDir := strings.Replace(undoDir, "~", home, 1)
	os.MkdirAll(expandedUndoDir, 0o755)

	b := m.nvim.NewBatch()
	b.Command("set undofile")
	b.Command(fmt.Sprintf("set undodir=%s", expandedUndoDir))
	b.Command("set noswapfile")
	b.Command("set hidden")
	if err := b.Execute(); err != nil {
		ui.Warning("Could not configure headless Neovim: %v", err)
	}
}

// SelfStarted reports whether the Manager runs its own headless instance.
func (m *Manager) SelfStarted() bool { return m.isSelfStarted }

// Close disconnects from Neovim and cleans up if it was self-started.
func (m *Manager) Close() {
	if m.nvim != nil {
		m.nvim.Close()
	}
	if m.isSelfStarted && m.cmd != nil && m.cmd.Process != nil {
		if err := m.cmd.Process.Kill(); err == nil {
			m.cmd.Wait()
			os.RemoveAll(filepath.Dir(m.socketPath))
		}
	}
}

// exec runs a Lua chunk once ctx allows it. The chunk receives args as ...
func (m *Manager) exec(ctx context.Context, code string, result any, args ...any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return m.nvim.ExecLua(code, result, args...)
}

// SaveAll writes all modified buffers to disk.
func (m *Manager) SaveAll(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := m.nvim.Command("silent! wa!"); err != nil {
		return fmt.Errorf("failed to save buffers: %w", err)
	}
	return nil
}

func absPath(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}
	return filepath.Clean(abs), nil
}
