// Package state keeps the undo/redo history of applied changes.
package state

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	toml "github.com/pelletier/go-toml/v2"
	"github.com/spf13/afero"

	"github.com/qlinetech/qcode/internal/fs"
	"github.com/qlinetech/qcode/model"
)

const (
	stateDirName  = ".qcode"
	stateFileName = "state.toml"
	snapshotDir   = "snapshots"
	maxEntries    = 50
)

var (
	ErrNothingToUndo = errors.New("nothing to undo")
	ErrNothingToRedo = errors.New("nothing to redo")
	// ErrChangedSince means a file no longer has the content the history
	// expects, so restoring it would lose work.
	ErrChangedSince = errors.New("file changed since it was recorded")
)

// Operation is what one apply did to one file.
type Operation struct {
	Path       string           `toml:"path"`
	Action     model.DiffAction `toml:"action"`
	BeforeHash string           `toml:"before_hash,omitempty"`
	AfterHash  string           `toml:"after_hash,omitempty"`
}

// HistoryEntry is one applied batch.
type HistoryEntry struct {
	ID         string      `toml:"id"`
	Timestamp  time.Time   `toml:"timestamp"`
	Operations []Operation `toml:"operations"`
}

// State is the content of the state file.
type State struct {
	CurrentIndex int            `toml:"current_index"`
	History      []HistoryEntry `toml:"history"`
}

// Change is the input to Record: a file and its content around an apply.
// Before is nil for created files and After is nil for deleted ones.
type Change struct {
	Path   string
	Action model.DiffAction
	Before []byte
	After  []byte
}

// Manager handles the lifecycle of the state file. It is safe for
// concurrent use.
type Manager struct {
	fs        afero.Fs
	statePath string
	StateDir  string
	now       func() time.Time

	mu    sync.Mutex
	state *State
}

// findGitRoot finds the root of the git repository.
func findGitRoot() (string, error) {
	cmd := exec.Command("git", "rev-parse", "--show-toplevel")
	output, err := cmd.Output()
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(output)), nil
}

// ProjectRoot is the git top level, or the working directory outside a
// repository.
func ProjectRoot() (string, error) {
	if root, err := findGitRoot(); err == nil {
		return root, nil
	}
	wd, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("could not get current working directory: %w", err)
	}
	return wd, nil
}

// New creates and loads a state manager for the project at root.
func New(fsys afero.Fs, root string) (*Manager, error) {
	if fsys == nil {
		fsys = afero.NewOsFs()
	}
	stateDir := filepath.Join(root, stateDirName)
	if err := fsys.MkdirAll(stateDir, 0o755); err != nil {
		return nil, fmt.Errorf("could not create state directory: %w", err)
	}
	m := &Manager{
		fs:        fsys,
		statePath: filepath.Join(stateDir, stateFileName),
		StateDir:  stateDir,
		now:       time.Now,
	}
	if err := m.load(); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *Manager) load() error {
	data, err := afero.ReadFile(m.fs, m.statePath)
	if err != nil {
		if os.IsNotExist(err) {
			m.state = &State{CurrentIndex: -1}
			return nil
		}
		return fmt.Errorf("reading state file: %w", err)
	}

	var st State
	if err := toml.Unmarshal(data, &st); err != nil {
		return fmt.Errorf("parsing state file %s: %w", m.statePath, err)
	}
	if st.CurrentIndex < -1 || st.CurrentIndex >= len(st.History) {
		return fmt.Errorf("invalid state file %s: index %d outside history of %d", m.statePath, st.CurrentIndex, len(st.History))
	}
	m.state = &st
	return nil
}

func (m *Manager) save() error {
	data, err := toml.Marshal(m.state)
	if err != nil {
		return fmt.Errorf("marshaling state: %w", err)
	}
	tmp := m.statePath + ".tmp"
	if err := afero.WriteFile(m.fs, tmp, data, 0o644); err != nil {
		return fmt.Errorf("writing temp state file: %w", err)
	}
	if err := m.fs.Rename(tmp, m.statePath); err != nil {
		m.fs.Remove(tmp)
		return fmt.Errorf("renaming state file: %w", err)
	}
	return nil
}

// Entries returns the history, newest first, and how many of them are
// currently applied.
func (m *Manager) Entries() (entries []HistoryEntry, applied int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := len(m.state.History) - 1; i >= 0; i-- {
		entries = append(entries, m.state.History[i])
	}
	return entries, m.state.CurrentIndex + 1
}

func (m *Manager) snapshotPath(id string, i int, kind string) string {
	return filepath.Join(m.StateDir, snapshotDir, id, strconv.Itoa(i)+"."+kind)
}

func (m *Manager) readSnapshot(id string, i int, kind string) ([]byte, error) {
	return afero.ReadFile(m.fs, m.snapshotPath(id, i, kind))
}

// Record adds a batch to the history, dropping entries that were undone.
func (m *Manager) Record(changes []Change) (*HistoryEntry, error) {
	if len(changes) == 0 {
		return nil, nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, e := range m.state.History[m.state.CurrentIndex+1:] {
		m.fs.RemoveAll(filepath.Join(m.StateDir, snapshotDir, e.ID))
	}
	m.state.History = m.state.History[:m.state.CurrentIndex+1]

	entry := HistoryEntry{ID: uuid.NewString(), Timestamp: m.now().UTC().Truncate(time.Second)}
	if err := m.fs.MkdirAll(filepath.Join(m.StateDir, snapshotDir, entry.ID), 0o755); err != nil {
		return nil, fmt.Errorf("creating snapshot directory: %w", err)
	}
	for i, c := range changes {
		op := Operation{Path: c.Path, Action: c.Action}
		if c.Before != nil {
			op.BeforeHash = fs.HashBytes(c.Before)
			if err := afero.WriteFile(m.fs, m.snapshotPath(entry.ID, i, "before"), c.Before, 0o644); err != nil {
				return nil, fmt.Errorf("writing snapshot: %w", err)
			}
		}
		if c.After != nil {
			op.AfterHash = fs.HashBytes(c.After)
			if err := afero.WriteFile(m.fs, m.snapshotPath(entry.ID, i, "after"), c.After, 0o644); err != nil {
				return nil, fmt.Errorf("writing snapshot: %w", err)
			}
		}
		entry.Operations = append(entry.Operations, op)
	}

	m.state.History = append(m.state.History, entry)
	m.state.CurrentIndex++
	if over := len(m.state.History) - maxEntries; over > 0 {
		for _, e := range m.state.History[:over] {
			m.fs.RemoveAll(filepath.Join(m.StateDir, snapshotDir, e.ID))
		}
		m.state.History = m.state.History[over:]
		m.state.CurrentIndex -= over
	}
	if err := m.save(); err != nil {
		return nil, err
	}
	return &entry, nil
}

// currentHash returns the hash of path, or "" if it does not exist.
func currentHash(ctx context.Context, files fs.FileAccess, path string) (string, error) {
	exists, err := files.Exists(ctx, path)
	if err != nil || !exists {
		return "", err
	}
	data, err := files.ReadFile(ctx, path)
	if err != nil {
		return "", err
	}
	return fs.HashBytes(data), nil
}

// restore puts path back to the content with hash want, taken from the
// given snapshot, provided the file currently has hash have.
func (m *Manager) restore(ctx context.Context, files fs.FileAccess, entry HistoryEntry, i int, have, want, kind string) error {
	op := entry.Operations[i]
	got, err := currentHash(ctx, files, op.Path)
	if err != nil {
		return err
	}
	if got != have {
		return fs.WrapError("restore", op.Path, ErrChangedSince)
	}
	if want == "" {
		return files.RemoveFile(ctx, op.Path)
	}
	data, err := m.readSnapshot(entry.ID, i, kind)
	if err != nil {
		return fs.WrapError("restore", op.Path, err)
	}
	return files.WriteFile(ctx, op.Path, data)
}

// Undo reverts the current entry through files. Each file is restored
// only if it still has the content the entry produced.
func (m *Manager) Undo(ctx context.Context, files fs.FileAccess) ([]model.ChangeResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state.CurrentIndex < 0 {
		return nil, ErrNothingToUndo
	}
	entry := m.state.History[m.state.CurrentIndex]

	var results []model.ChangeResult
	for i := len(entry.Operations) - 1; i >= 0; i-- {
		op := entry.Operations[i]
		err := m.restore(ctx, files, entry, i, op.AfterHash, op.BeforeHash, "before")
		results = append(results, model.ChangeResult{File: op.Path, Action: string(inverse(op.Action)), Err: err})
	}

	m.state.CurrentIndex--
	return results, m.save()
}

// Redo re-applies the next undone entry through files.
func (m *Manager) Redo(ctx context.Context, files fs.FileAccess) ([]model.ChangeResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	next := m.state.CurrentIndex + 1
	if next >= len(m.state.History) {
		return nil, ErrNothingToRedo
	}
	entry := m.state.History[next]

	var results []model.ChangeResult
	for i, op := range entry.Operations {
		err := m.restore(ctx, files, entry, i, op.BeforeHash, op.AfterHash, "after")
		results = append(results, model.ChangeResult{File: op.Path, Action: string(op.Action), Err: err})
	}

	m.state.CurrentIndex = next
	return results, m.save()
}

func inverse(a model.DiffAction) model.DiffAction {
	switch a {
	case model.DiffCreate:
		return model.DiffDelete
	case model.DiffDelete:
		return model.DiffCreate
	default:
		return a
	}
}
