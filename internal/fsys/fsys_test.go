package fsys

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeFS is an in-memory FS for tests, grounded in the teacher's own
// practice of substituting a map-backed fake for the planner's real
// filesystem lookups in runtime/planner tests.
type fakeFS struct {
	files map[string][]byte
	dirs  map[string][]string
}

func (f *fakeFS) ReadFile(path string) ([]byte, error) {
	b, ok := f.files[path]
	if !ok {
		return nil, os.ErrNotExist
	}
	return b, nil
}
func (f *fakeFS) WriteFile(path string, content []byte, mode os.FileMode) error {
	f.files[path] = content
	return nil
}
func (f *fakeFS) Exists(path string) bool          { _, ok := f.files[path]; return ok }
func (f *fakeFS) IsDirectory(path string) bool     { _, ok := f.dirs[path]; return ok }
func (f *fakeFS) Readdir(path string) ([]string, error) {
	names, ok := f.dirs[path]
	if !ok {
		return nil, os.ErrNotExist
	}
	return names, nil
}

func TestContentLoaderExactMatch(t *testing.T) {
	t.Parallel()
	fs := &fakeFS{files: map[string][]byte{"docs/readme.md": []byte("hello")}}
	loader := NewContentLoader(fs, false)

	content, resolved, err := loader.Load("docs", "readme.md")
	require.NoError(t, err)
	assert.Equal(t, "hello", string(content))
	assert.Equal(t, "docs/readme.md", resolved)
}

func TestContentLoaderExactMissWithoutFuzzyFails(t *testing.T) {
	t.Parallel()
	fs := &fakeFS{files: map[string][]byte{}}
	loader := NewContentLoader(fs, false)

	_, _, err := loader.Load("docs", "readme.md")
	assert.Error(t, err)
}

func TestContentLoaderFuzzyFallback(t *testing.T) {
	t.Parallel()
	fs := &fakeFS{
		files: map[string][]byte{"docs/README.md": []byte("hi")},
		dirs:  map[string][]string{"docs": {"README.md", "CHANGELOG.md"}},
	}
	loader := NewContentLoader(fs, true)

	content, resolved, err := loader.Load("docs", "readme.md")
	require.NoError(t, err)
	assert.Equal(t, "hi", string(content))
	assert.Equal(t, "docs/README.md", resolved)
}

func TestExtractMarkdownSection(t *testing.T) {
	t.Parallel()
	doc := "# Title\n\nintro\n\n## Usage\n\nbody text\n\n## Notes\n\nmore\n"

	body, ok := ExtractMarkdownSection(doc, "Usage")
	require.True(t, ok)
	assert.Contains(t, body, "body text")
	assert.NotContains(t, body, "more")
}

func TestExtractMarkdownSectionNotFound(t *testing.T) {
	t.Parallel()
	_, ok := ExtractMarkdownSection("# Title\n\nbody\n", "Missing")
	assert.False(t, ok)
}

func TestLoadSectionPlumbsThroughLoad(t *testing.T) {
	t.Parallel()
	fs := &fakeFS{files: map[string][]byte{
		"notes.md": []byte("# Title\n\n## A\n\nfirst\n\n## B\n\nsecond\n"),
	}}
	loader := NewContentLoader(fs, false)

	body, err := loader.LoadSection("", "notes.md", "B")
	require.NoError(t, err)
	assert.Contains(t, body, "second")
	assert.NotContains(t, body, "first")
}
