package errs

import (
	"errors"
	"fmt"
	"testing"

	"github.com/mlld-lang/mlld/internal/ast"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewFormatsMessageAndLocation(t *testing.T) {
	t.Parallel()
	err := New(KindUnknownVariable, ast.SourceLocation{File: "doc.mld", Line: 3, Column: 5}, "no such variable %q", "x")
	assert.Equal(t, "UnknownVariable: no such variable \"x\" at doc.mld:3:5", err.Error())
}

func TestNewWithoutLocationOmitsPosition(t *testing.T) {
	t.Parallel()
	err := New(KindTypeMismatch, ast.SourceLocation{}, "bad type")
	assert.Equal(t, "TypeMismatch: bad type", err.Error())
}

func TestWrapPreservesCauseForUnwrap(t *testing.T) {
	t.Parallel()
	cause := fmt.Errorf("underlying failure")
	err := Wrap(KindCommandExecution, ast.SourceLocation{}, cause, "command failed")
	assert.True(t, errors.Is(err, cause))
}

func TestIsMatchesKind(t *testing.T) {
	t.Parallel()
	err := New(KindReservedName, ast.SourceLocation{}, "reserved")
	assert.True(t, Is(err, KindReservedName))
	assert.False(t, Is(err, KindTypeMismatch))
}

func TestIsFalseForPlainError(t *testing.T) {
	t.Parallel()
	assert.False(t, Is(fmt.Errorf("plain"), KindReservedName))
}

func TestKindOf(t *testing.T) {
	t.Parallel()
	err := New(KindModuleNotFound, ast.SourceLocation{}, "missing")
	assert.Equal(t, KindModuleNotFound, KindOf(err))
	assert.Equal(t, Kind(""), KindOf(fmt.Errorf("plain")))
}

func TestWithImportChainAnnotatesExistingError(t *testing.T) {
	t.Parallel()
	err := New(KindCircularImport, ast.SourceLocation{}, "cycle")
	annotated := WithImportChain(err, []string{"./a.mld", "./b.mld"})

	require.True(t, Is(annotated, KindCircularImport))
	assert.Contains(t, annotated.Error(), "import chain: [./a.mld ./b.mld]")

	// the original error must be untouched (WithImportChain clones).
	assert.NotContains(t, err.Error(), "import chain")
}

func TestWithImportChainWrapsPlainError(t *testing.T) {
	t.Parallel()
	plain := fmt.Errorf("resolver exploded")
	annotated := WithImportChain(plain, []string{"./a.mld"})

	assert.True(t, Is(annotated, KindModuleNotFound))
	assert.Contains(t, annotated.Error(), "resolver exploded")
	assert.Contains(t, annotated.Error(), "import chain: [./a.mld]")
}
