// Package scan expands include and exclude glob patterns into the list of
// files a run processes.
package scan

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"

	"github.com/bmatcuk/doublestar/v4"
)

// Options describes a file set. Patterns are doublestar globs relative to Root.
type Options struct {
	Root    string
	Include []string
	Exclude []string
	Limit   int // 0 = no limit
}

// Files returns the absolute paths of regular files under Root matching at
// least one include pattern and no exclude pattern, sorted and capped at
// Limit.
func Files(opts Options) ([]string, error) {
	root, err := filepath.Abs(opts.Root)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve root %s: %w", opts.Root, err)
	}
	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("failed to stat root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("root %s is not a directory", root)
	}

	for _, p := range append(append([]string{}, opts.Include...), opts.Exclude...) {
		if !doublestar.ValidatePattern(p) {
			return nil, fmt.Errorf("invalid file pattern: %q", p)
		}
	}

	fsys := os.DirFS(root)
	seen := make(map[string]bool)
	var files []string

	for _, pattern := range opts.Include {
		err := doublestar.GlobWalk(fsys, pattern, func(path string, d fs.DirEntry) error {
			if d.IsDir() || seen[path] || excluded(path, opts.Exclude) {
				return nil
			}
			seen[path] = true
			files = append(files, path)
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("failed to expand %q: %w", pattern, err)
		}
	}

	sort.Strings(files)
	if opts.Limit > 0 && len(files) > opts.Limit {
		files = files[:opts.Limit]
	}

	paths := make([]string, len(files))
	for i, f := range files {
		paths[i] = filepath.Join(root, filepath.FromSlash(f))
	}
	return paths, nil
}

// excluded reports whether path, or any directory containing it, matches an
// exclude pattern.
func excluded(path string, patterns []string) bool {
	for _, p := range patterns {
		for dir := path; dir != "." && dir != "/"; dir = filepath.ToSlash(filepath.Dir(dir)) {
			if ok, _ := doublestar.Match(p, dir); ok {
				return true
			}
		}
	}
	return false
}
