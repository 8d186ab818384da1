// Package fsys implements spec.md §6.2: the filesystem contract
// (readFile/writeFile/exists/isDirectory/readdir), plus optional fuzzy
// path matching for readFile when a directive requests it.
//
// Grounded in the teacher's runtime/planner.Planner, which resolves
// user-typed target names against the real filesystem using
// github.com/lithammer/fuzzysearch when an exact path misses; this
// package adapts that same "exact match first, fuzzy fallback second"
// shape to mlld's <./path> load-content syntax.
package fsys

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/lithammer/fuzzysearch/fuzzy"
)

// FS is the §6.2 filesystem contract. A real implementation wraps the OS;
// tests substitute an in-memory fake.
type FS interface {
	ReadFile(path string) ([]byte, error)
	WriteFile(path string, content []byte, mode os.FileMode) error
	Exists(path string) bool
	IsDirectory(path string) bool
	Readdir(path string) ([]string, error)
}

// OSFileSystem is the default FS, backed directly by the os package.
type OSFileSystem struct{}

func (OSFileSystem) ReadFile(path string) ([]byte, error) { return os.ReadFile(path) }

func (OSFileSystem) WriteFile(path string, content []byte, mode os.FileMode) error {
	if mode == 0 {
		mode = 0o644
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("fsys: mkdir %s: %w", dir, err)
		}
	}
	return os.WriteFile(path, content, mode)
}

func (OSFileSystem) Exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func (OSFileSystem) IsDirectory(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}

func (OSFileSystem) Readdir(path string) ([]string, error) {
	entries, err := os.ReadDir(path)
	if err != nil {
		return nil, err
	}
	names := make([]string, len(entries))
	for i, e := range entries {
		names[i] = e.Name()
	}
	return names, nil
}

// ContentLoader resolves a `<./path>` load-content expression (§4's
// LoadContent node) into raw bytes, optionally fuzzy-matching the
// requested path against sibling files in its directory when an exact
// read misses and fuzzy mode is enabled (§6.2: "engine requests fuzzy
// mode when localFileFuzzyMatch is enabled").
type ContentLoader struct {
	fs            FS
	fuzzyEnabled  bool
}

// NewContentLoader constructs a loader. fuzzyEnabled mirrors the
// localFileFuzzyMatch option mlld's CLI/config surface toggles.
func NewContentLoader(fs FS, fuzzyEnabled bool) *ContentLoader {
	return &ContentLoader{fs: fs, fuzzyEnabled: fuzzyEnabled}
}

// Load reads path relative to baseDir, returning the raw file content. On
// an exact miss, with fuzzy matching enabled, it falls back to the
// closest-matching filename in path's containing directory.
func (l *ContentLoader) Load(baseDir, path string) ([]byte, string, error) {
	resolved := path
	if !filepath.IsAbs(path) {
		resolved = filepath.Join(baseDir, path)
	}

	content, err := l.fs.ReadFile(resolved)
	if err == nil {
		return content, resolved, nil
	}
	if !l.fuzzyEnabled {
		return nil, "", fmt.Errorf("fsys: read %s: %w", resolved, err)
	}

	match, matchErr := l.fuzzyMatch(resolved)
	if matchErr != nil {
		return nil, "", fmt.Errorf("fsys: read %s: %w", resolved, err)
	}
	content, err = l.fs.ReadFile(match)
	if err != nil {
		return nil, "", fmt.Errorf("fsys: fuzzy match %s resolved to %s but read failed: %w", resolved, match, err)
	}
	return content, match, nil
}

// fuzzyMatch ranks the sibling entries of target's directory by Levenshtein
// rank against target's basename and returns the closest candidate.
func (l *ContentLoader) fuzzyMatch(target string) (string, error) {
	dir := filepath.Dir(target)
	base := filepath.Base(target)

	names, err := l.fs.Readdir(dir)
	if err != nil {
		return "", fmt.Errorf("no sibling files to fuzzy-match against: %w", err)
	}
	if len(names) == 0 {
		return "", fmt.Errorf("directory %s is empty", dir)
	}

	ranks := fuzzy.RankFindNormalizedFold(base, names)
	if len(ranks) == 0 {
		return "", fmt.Errorf("no fuzzy match for %q among %d candidates", base, len(names))
	}
	sort.Sort(ranks)
	return filepath.Join(dir, ranks[0].Target), nil
}
