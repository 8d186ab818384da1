package module

import (
	"fmt"
	"os"
	"sync"

	"golang.org/x/mod/semver"
	"gopkg.in/yaml.v3"
)

// lockDocument is the on-disk shape of the §6.6 lock file, grounded in
// the teacher's own config-through-yaml.v3 discipline (core/types uses
// yaml.v3 struct tags throughout for its schema/config documents).
type lockDocument struct {
	Version int                        `yaml:"version"`
	Modules map[string]lockFileEntry   `yaml:"modules"`
}

type lockFileEntry struct {
	Version   string `yaml:"version"`
	Resolved  string `yaml:"resolved"`
	Integrity string `yaml:"integrity"`
	Source    string `yaml:"source"`
}

// YAMLLockFile implements LockFile against a mlld.lock.yaml document on
// disk (§6.6).
type YAMLLockFile struct {
	path string
	mu   sync.Mutex
	doc  lockDocument
}

// LoadLockFile reads (or initializes, if absent) the lock file at path.
func LoadLockFile(path string) (*YAMLLockFile, error) {
	l := &YAMLLockFile{path: path, doc: lockDocument{Version: 1, Modules: map[string]lockFileEntry{}}}
	raw, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return l, nil
	}
	if err != nil {
		return nil, fmt.Errorf("lock file: %w", err)
	}
	if err := yaml.Unmarshal(raw, &l.doc); err != nil {
		return nil, fmt.Errorf("lock file: parse %s: %w", path, err)
	}
	if l.doc.Modules == nil {
		l.doc.Modules = map[string]lockFileEntry{}
	}
	return l, nil
}

// Lookup implements LockFile.
func (l *YAMLLockFile) Lookup(specifier string) (LockEntry, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	e, ok := l.doc.Modules[specifier]
	if !ok {
		return LockEntry{}, false
	}
	return LockEntry{Version: e.Version, Integrity: e.Integrity, Resolved: e.Resolved, Source: e.Source}, true
}

// Record implements LockFile: pins specifier to entry, rejecting a
// version downgrade against an already-locked entry (§7's
// LockVersionConflict — "/import attempts to record a version for an
// already-locked specifier that semver-compares lower than what is
// pinned").
func (l *YAMLLockFile) Record(specifier string, entry LockEntry) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if existing, ok := l.doc.Modules[specifier]; ok && existing.Version != "" && entry.Version != "" {
		v1, v2 := normalizeSemver(existing.Version), normalizeSemver(entry.Version)
		if semver.IsValid(v1) && semver.IsValid(v2) && semver.Compare(v2, v1) < 0 {
			return fmt.Errorf("lock version conflict: %q is locked at %s, cannot record lower version %s",
				specifier, existing.Version, entry.Version)
		}
	}

	l.doc.Modules[specifier] = lockFileEntry{
		Version: entry.Version, Resolved: entry.Resolved,
		Integrity: entry.Integrity, Source: entry.Source,
	}
	return l.flush()
}

func (l *YAMLLockFile) flush() error {
	raw, err := yaml.Marshal(l.doc)
	if err != nil {
		return fmt.Errorf("lock file: encode: %w", err)
	}
	return os.WriteFile(l.path, raw, 0o644)
}

func normalizeSemver(v string) string {
	if v == "" {
		return v
	}
	if v[0] != 'v' {
		return "v" + v
	}
	return v
}
