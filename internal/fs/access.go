package fs

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/afero"
)

// FileAccess reads and writes whole files. Implementations exist for the
// local disk and for Neovim buffers.
type FileAccess interface {
	ReadFile(ctx context.Context, path string) ([]byte, error)
	WriteFile(ctx context.Context, path string, data []byte) error
	RemoveFile(ctx context.Context, path string) error
	Exists(ctx context.Context, path string) (bool, error)
}

// FileError is the normalized error returned by every FileAccess
// implementation in this module.
type FileError struct {
	Op   string
	Path string
	Err  error
}

func (e *FileError) Error() string {
	return fmt.Sprintf("failed to %s file: %s: %v", e.Op, e.Path, e.Err)
}

func (e *FileError) Unwrap() error { return e.Err }

// WrapError builds a FileError unless err is nil or already one.
func WrapError(op, path string, err error) error {
	if err == nil {
		return nil
	}
	var fe *FileError
	if errors.As(err, &fe) {
		return err
	}
	return &FileError{Op: op, Path: path, Err: err}
}

// IsNotExist reports whether err says the file is missing.
func IsNotExist(err error) bool {
	return errors.Is(err, os.ErrNotExist)
}

// Files implements FileAccess over an afero filesystem.
type Files struct {
	fs afero.Fs
}

// NewFiles wraps fsys. A nil fsys means the OS filesystem.
func NewFiles(fsys afero.Fs) *Files {
	if fsys == nil {
		fsys = afero.NewOsFs()
	}
	return &Files{fs: fsys}
}

// Fs exposes the underlying filesystem.
func (f *Files) Fs() afero.Fs { return f.fs }

func (f *Files) ReadFile(ctx context.Context, path string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, WrapError("read", path, err)
	}
	data, err := afero.ReadFile(f.fs, path)
	return data, WrapError("read", path, err)
}

// WriteFile writes data, creating parent directories as needed.
func (f *Files) WriteFile(ctx context.Context, path string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return WrapError("write", path, err)
	}
	mode := os.FileMode(0o644)
	if info, err := f.fs.Stat(path); err == nil {
		mode = info.Mode().Perm()
	}
	if err := f.fs.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return WrapError("write", path, err)
	}
	return WrapError("write", path, afero.WriteFile(f.fs, path, data, mode))
}

func (f *Files) RemoveFile(ctx context.Context, path string) error {
	if err := ctx.Err(); err != nil {
		return WrapError("remove", path, err)
	}
	return WrapError("remove", path, f.fs.Remove(path))
}

func (f *Files) Exists(ctx context.Context, path string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, WrapError("stat", path, err)
	}
	ok, err := afero.Exists(f.fs, path)
	return ok, WrapError("stat", path, err)
}
