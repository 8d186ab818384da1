package invariant

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPreconditionPassesSilently(t *testing.T) {
	t.Parallel()
	assert.NotPanics(t, func() { Precondition(true, "should not fire") })
}

func TestPreconditionPanicsOnViolation(t *testing.T) {
	t.Parallel()
	assert.PanicsWithValue(t, "PRECONDITION VIOLATION: got 3, want positive", func() {
		Precondition(false, "got %d, want positive", 3)
	})
}

func TestPostconditionPanicsOnViolation(t *testing.T) {
	t.Parallel()
	assert.PanicsWithValue(t, "POSTCONDITION VIOLATION: result missing", func() {
		Postcondition(false, "result missing")
	})
}

func TestInvariantPanicsOnViolation(t *testing.T) {
	t.Parallel()
	assert.PanicsWithValue(t, "INVARIANT VIOLATION: scope stack empty", func() {
		Invariant(false, "scope stack empty")
	})
}
