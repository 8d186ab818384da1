package module

import (
	"testing"

	"github.com/mlld-lang/mlld/internal/ast"
	"github.com/mlld-lang/mlld/internal/errs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassifySpecifier(t *testing.T) {
	t.Parallel()
	cases := []struct {
		raw  string
		kind SpecifierKind
		spec string
	}{
		{"@input", SpecBuiltin, "@input"},
		{"@base", SpecBuiltin, "@base"},
		{"<https://example.com/m.mld>", SpecURL, "https://example.com/m.mld"},
		{`"http://example.com/m.mld"`, SpecURL, "http://example.com/m.mld"},
		{"@author/name", SpecRegistry, "@author/name"},
		{"<./local/path.mld>", SpecFile, "./local/path.mld"},
		{`"./local/path.mld"`, SpecFile, "./local/path.mld"},
	}
	for _, c := range cases {
		kind, spec := ClassifySpecifier(c.raw)
		assert.Equal(t, c.kind, kind, c.raw)
		assert.Equal(t, c.spec, spec, c.raw)
	}
}

func TestDetectCircularRefNoCycle(t *testing.T) {
	t.Parallel()
	assert.NoError(t, DetectCircularRef([]string{"a", "b"}, "c"))
}

func TestDetectCircularRefDetectsCycle(t *testing.T) {
	t.Parallel()
	err := DetectCircularRef([]string{"a", "b"}, "a")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "a")
}

func TestLoaderFetchFailsWithNoResolver(t *testing.T) {
	t.Parallel()
	loader := New(nil, fakeParser{}, fakeEval{}, nil, nil)

	_, err := loader.Load("./missing.mld", ast.SourceLocation{}, newTestParent())
	require.Error(t, err)
	assert.True(t, errs.Is(err, errs.KindModuleNotFound))
}

type fakeLock struct {
	entries map[string]LockEntry
	records map[string]LockEntry
}

func (l *fakeLock) Lookup(specifier string) (LockEntry, bool) {
	e, ok := l.entries[specifier]
	return e, ok
}

func (l *fakeLock) Record(specifier string, entry LockEntry) error {
	if l.records == nil {
		l.records = map[string]LockEntry{}
	}
	l.records[specifier] = entry
	return nil
}

func TestLoaderRegistryIntegrityMismatchFails(t *testing.T) {
	t.Parallel()
	resolver := &integrityResolver{hash: "actual-hash"}
	lock := &fakeLock{entries: map[string]LockEntry{
		"@author/name": {Version: "1.0.0", Integrity: "expected-hash"},
	}}
	loader := New(resolver, fakeParser{}, fakeEval{}, lock, nil)

	_, err := loader.Load("@author/name", ast.SourceLocation{}, newTestParent())
	require.Error(t, err)
	assert.True(t, errs.Is(err, errs.KindIntegrityMismatch))
}

func TestLoaderRegistryRecordsLockEntryOnFirstResolve(t *testing.T) {
	t.Parallel()
	resolver := &registryResolver{}
	lock := &fakeLock{entries: map[string]LockEntry{}}
	loader := New(resolver, fakeParser{}, fakeEval{}, lock, nil)

	_, err := loader.Load("@author/name", ast.SourceLocation{}, newTestParent())
	require.NoError(t, err)
	require.Contains(t, lock.records, "@author/name")
	assert.Equal(t, "2.0.0", lock.records["@author/name"].Version)
}

// registryResolver serves a registry-kind module whose metadata carries a
// resolved version, for the lock-record-on-first-resolve path.
type registryResolver struct{}

func (registryResolver) Resolve(kind SpecifierKind, specifier string, loc ast.SourceLocation) (Content, error) {
	return Content{Bytes: []byte(""), Meta: map[string]interface{}{"version": "2.0.0"}}, nil
}

// integrityResolver serves a fixed content hash regardless of specifier, so
// tests can force a mismatch against a locked entry's declared hash.
type integrityResolver struct{ hash string }

func (r *integrityResolver) Resolve(kind SpecifierKind, specifier string, loc ast.SourceLocation) (Content, error) {
	return Content{Bytes: []byte(""), Integrity: r.hash}, nil
}
