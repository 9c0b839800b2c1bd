package fs

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	ignore "github.com/sabhiram/go-gitignore"
	"github.com/spf13/afero"
)

// IgnoreFiles are read from the project root, in order, when walking it.
var IgnoreFiles = []string{".gitignore", ".qcodeignore"}

// Matcher decides whether a project-relative path is ignored.
type Matcher interface {
	MatchesPath(path string) bool
}

type matchers []Matcher

func (m matchers) MatchesPath(path string) bool {
	for _, each := range m {
		if each.MatchesPath(path) {
			return true
		}
	}
	return false
}

// LoadIgnore compiles the ignore files present in root on fsys. It returns
// nil when there are none.
func LoadIgnore(fsys afero.Fs, root string) (Matcher, error) {
	var all matchers
	for _, name := range IgnoreFiles {
		data, err := afero.ReadFile(fsys, filepath.Join(root, name))
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return nil, fmt.Errorf("error reading %s file: %w", name, err)
		}
		lines := strings.Split(strings.ReplaceAll(string(data), "\r\n", "\n"), "\n")
		all = append(all, ignore.CompileIgnoreLines(lines...))
	}
	if len(all) == 0 {
		return nil, nil
	}
	return all, nil
}

// Walk lists the files under root as sorted, slash-separated relative
// paths. Directories whose base name is in skip are not entered, and
// paths matched by ignored (which may be nil) are left out.
func Walk(fsys afero.Fs, root string, skip map[string]struct{}, ignored Matcher) ([]string, error) {
	var files []string
	err := afero.Walk(fsys, root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if path == root {
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)

		if info.IsDir() {
			if _, ok := skip[info.Name()]; ok {
				return filepath.SkipDir
			}
			if ignored != nil && ignored.MatchesPath(rel+"/") {
				return filepath.SkipDir
			}
			return nil
		}
		if ignored != nil && ignored.MatchesPath(rel) {
			return nil
		}
		files = append(files, rel)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walking %s: %w", root, err)
	}
	sort.Strings(files)
	return files, nil
}
