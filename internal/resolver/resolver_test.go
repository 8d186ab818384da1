package resolver

import (
	"testing"

	"github.com/mlld-lang/mlld/internal/ast"
	"github.com/mlld-lang/mlld/internal/module"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassifySpecifier(t *testing.T) {
	t.Parallel()
	cases := []struct {
		raw  string
		kind module.SpecifierKind
	}{
		{"@alice/greet", module.SpecRegistry},
		{"@input", module.SpecBuiltin},
		{"@base", module.SpecBuiltin},
		{"https://example.com/mod.mld", module.SpecURL},
		{"./local/file.mld", module.SpecFile},
	}
	for _, c := range cases {
		kind, _ := module.ClassifySpecifier(c.raw)
		assert.Equal(t, c.kind, kind, "specifier %q", c.raw)
	}
}

func TestManagerRoutesToFileResolver(t *testing.T) {
	t.Parallel()
	mgr := NewManager(Context{BaseDir: "/base"}, InputResolver{}, BaseResolver{}, FileResolver{BaseDir: "/base"})

	_, err := mgr.Resolve(module.SpecFile, "/does/not/exist.mld", ast.SourceLocation{})
	require.Error(t, err)
}

func TestManagerBuiltins(t *testing.T) {
	t.Parallel()
	mgr := NewManager(Context{BaseDir: "/proj", InputText: "payload"}, InputResolver{}, BaseResolver{})

	content, err := mgr.Resolve(module.SpecBuiltin, "@input", ast.SourceLocation{})
	require.NoError(t, err)
	assert.Equal(t, "payload", string(content.Bytes))

	content, err = mgr.Resolve(module.SpecBuiltin, "@base", ast.SourceLocation{})
	require.NoError(t, err)
	assert.Equal(t, "/proj", string(content.Bytes))
}

func TestManagerNoResolverClaims(t *testing.T) {
	t.Parallel()
	mgr := NewManager(Context{})
	_, err := mgr.Resolve(module.SpecRegistry, "@a/b", ast.SourceLocation{})
	assert.Error(t, err)
}

func TestManagerPriorityOrdering(t *testing.T) {
	t.Parallel()
	// Two resolvers both claim the same kind; lower Priority wins.
	lo := stubResolver{name: "lo", priority: 1, claim: true, out: "lo"}
	hi := stubResolver{name: "hi", priority: 5, claim: true, out: "hi"}
	mgr := NewManager(Context{}, hi, lo)

	content, err := mgr.Resolve(module.SpecFile, "anything", ast.SourceLocation{})
	require.NoError(t, err)
	assert.Equal(t, "lo", string(content.Bytes))
}

type stubResolver struct {
	name     string
	priority int
	claim    bool
	out      string
}

func (s stubResolver) Name() string  { return s.name }
func (s stubResolver) Priority() int { return s.priority }
func (s stubResolver) CanResolve(kind module.SpecifierKind, specifier string) bool {
	return s.claim
}
func (s stubResolver) Resolve(specifier string, ctx Context) (module.Content, error) {
	return module.Content{Bytes: []byte(s.out)}, nil
}
