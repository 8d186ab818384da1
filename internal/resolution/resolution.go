// Package resolution implements spec.md §4.1 rule 4: variable reference
// resolution through a resolution-context-aware unwrapper. Four contexts
// control auto-unwrap/auto-execution/null-vs-error behavior: FieldAccess,
// StringInterpolation, Equality, Condition.
//
// Grounded in the teacher's context-threading style (every decorator call
// carries a *decorators.Ctx/*ir.Ctx that changes how values are read
// depending on call site — runtime/execution/context/context.go), applied
// here to the one axis spec.md calls out explicitly: how a resolved
// variable's value should be unwrapped before use.
package resolution

import (
	"fmt"

	"github.com/mlld-lang/mlld/internal/value"
)

// Context is the resolution context controlling unwrap/auto-exec/null
// semantics for one variable-reference resolution.
type Context string

const (
	FieldAccess       Context = "field-access"
	StringInterp      Context = "string-interpolation"
	Equality          Context = "equality"
	Condition         Context = "condition"
)

// Unwrap renders v appropriately for ctx. Executables are auto-invoked by
// the caller (internal/evaluator) before Unwrap is reached; this function
// only handles the StructuredValue / LoadContentResult unwrap rules.
//
// - StringInterpolation: always unwraps to the canonical Text form
//   (§3.4), and a LoadContentResult-like structured value unwraps
//   element-wise if it is an array (§4.3).
// - FieldAccess: never unwraps — callers need the Data form to keep
//   indexing into it.
// - Equality: per the Open Question decision in DESIGN.md, does not
//   auto-unwrap a LoadContentResult; two structured values compare by
//   their Text form (their identity-preserving canonical string), not by
//   silently coercing one side.
// - Condition: missing/null is falsy, never an error (§4.1 tie-break,
//   §8.1); structured values are truthy if their Text is non-empty.
func Unwrap(ctx Context, v interface{}) (interface{}, error) {
	switch ctx {
	case StringInterp:
		return unwrapForInterpolation(v), nil
	case FieldAccess:
		return v, nil
	case Equality:
		return v, nil
	case Condition:
		return v, nil
	default:
		return nil, fmt.Errorf("resolution: unknown context %q", ctx)
	}
}

func unwrapForInterpolation(v interface{}) interface{} {
	switch t := v.(type) {
	case *value.Structured:
		if t == nil {
			return ""
		}
		return t.Text
	case []interface{}:
		out := make([]interface{}, len(t))
		for i, e := range t {
			out[i] = unwrapForInterpolation(e)
		}
		return out
	default:
		return v
	}
}

// Truthy implements §4.1's condition semantics: missing/nil/false/0/""/
// empty-collection are falsy; everything else (including a structured
// value with non-empty Text) is truthy.
func Truthy(v interface{}) bool {
	switch t := v.(type) {
	case nil:
		return false
	case bool:
		return t
	case string:
		return t != ""
	case int:
		return t != 0
	case int64:
		return t != 0
	case float64:
		return t != 0
	case []interface{}:
		return len(t) > 0
	case map[string]interface{}:
		return len(t) > 0
	case *value.Structured:
		if t == nil {
			return false
		}
		return t.Text != ""
	default:
		return true
	}
}
