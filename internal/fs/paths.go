package fs

import (
	"bufio"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/spf13/afero"

	"github.com/qlinetech/qcode/internal/ui"
)

// PathResolver finds absolute paths for files.
type PathResolver struct {
	fs         afero.Fs
	lookupDirs []string
}

// NewPathResolver creates a new PathResolver. With no lookup dirs it
// resolves against the current working directory.
func NewPathResolver(fsys afero.Fs, lookupDirs []string) (*PathResolver, error) {
	if fsys == nil {
		fsys = afero.NewOsFs()
	}
	if len(lookupDirs) == 0 {
		wd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("could not get current working directory: %w", err)
		}
		return &PathResolver{fs: fsys, lookupDirs: []string{wd}}, nil
	}

	absDirs := make([]string, 0, len(lookupDirs))
	for _, dir := range lookupDirs {
		abs, err := filepath.Abs(dir)
		if err != nil {
			ui.Warning("Invalid lookup directory '%s', ignoring: %v", dir, err)
			continue
		}
		absDirs = append(absDirs, abs)
	}
	if len(absDirs) == 0 {
		return nil, fmt.Errorf("no usable lookup directory in %v", lookupDirs)
	}
	return &PathResolver{fs: fsys, lookupDirs: absDirs}, nil
}

// Root is the first lookup directory, where new files are created.
func (r *PathResolver) Root() string {
	return r.lookupDirs[0]
}

// Resolve finds an absolute path, assuming a new file in the first lookup
// directory if it doesn't exist.
func (r *PathResolver) Resolve(relativePath string) string {
	if filepath.IsAbs(relativePath) {
		return filepath.Clean(relativePath)
	}
	if existing := r.ResolveExisting(relativePath); existing != "" {
		return existing
	}
	return filepath.Join(r.lookupDirs[0], relativePath)
}

// ResolveExisting finds an absolute path only if the file exists.
func (r *PathResolver) ResolveExisting(relativePath string) string {
	if filepath.IsAbs(relativePath) {
		if ok, _ := afero.Exists(r.fs, relativePath); ok {
			return filepath.Clean(relativePath)
		}
		return ""
	}
	for _, dir := range r.lookupDirs {
		absPath := filepath.Join(dir, relativePath)
		if ok, _ := afero.Exists(r.fs, absPath); ok {
			return absPath
		}
	}
	return ""
}

// Relative returns path relative to the root, or path itself when that
// is not possible.
func (r *PathResolver) Relative(path string) string {
	rel, err := filepath.Rel(r.Root(), path)
	if err != nil || strings.HasPrefix(rel, "..") {
		return path
	}
	return rel
}

// MissingDirs lists the parent directories of targetPaths that do not
// exist yet, sorted.
func MissingDirs(fsys afero.Fs, targetPaths []string) []string {
	seen := make(map[string]struct{})
	for _, path := range targetPaths {
		dir := filepath.Dir(path)
		if dir == "." || dir == "/" {
			continue
		}
		if ok, _ := afero.DirExists(fsys, dir); !ok {
			seen[dir] = struct{}{}
		}
	}
	dirs := make([]string, 0, len(seen))
	for dir := range seen {
		dirs = append(dirs, dir)
	}
	sort.Strings(dirs)
	return dirs
}

// ConfirmDirs asks the user on in whether directories may be created.
// It returns true immediately when there is nothing to create.
func ConfirmDirs(dirs []string, in io.Reader) bool {
	if len(dirs) == 0 {
		return true
	}

	ui.Info("\nThe following directories need to be created:")
	for _, dir := range dirs {
		ui.Path("- %s", dir)
	}

	fmt.Fprint(ui.Output, ui.Prompt("Do you want to create all these directories? (y/N): "))
	response, _ := bufio.NewReader(in).ReadString('\n')
	if strings.TrimSpace(strings.ToLower(response)) != "y" {
		ui.Warning("Directory creation declined. Exiting.")
		return false
	}
	return true
}

// HashBytes returns the hex SHA-256 of data.
func HashBytes(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
