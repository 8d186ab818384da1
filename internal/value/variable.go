// Package value implements spec.md §3.2–§3.4: the polymorphic Variable
// model, executable definitions, and structured-value wrappers.
//
// Grounded in the teacher's own closed-union modeling style for
// execution-time values (runtime/execution/context's Ctx.Vars being a
// flat string map is deliberately NOT followed here — mlld's variables
// are richer than devcmd's CLI-variable strings, so this package borrows
// the *shape* of core/types.ParamType's closed enum instead and widens it
// to the kinds spec.md §3.2 requires).
package value

import (
	"github.com/mlld-lang/mlld/internal/ast"
	"github.com/mlld-lang/mlld/internal/security"
)

// Kind enumerates the closed set of variable kinds (§3.2).
type Kind string

const (
	KindSimpleText       Kind = "simple-text"
	KindInterpolatedText Kind = "interpolated-text"
	KindPrimitive        Kind = "primitive"
	KindObject           Kind = "object"
	KindArray            Kind = "array"
	KindPath             Kind = "path"
	KindExecutable       Kind = "executable"
	KindPipelineInput    Kind = "pipeline-input"
	KindStructured       Kind = "structured"
	KindImported         Kind = "imported"
)

// Source records how a variable was defined.
type Source struct {
	Directive     ast.DirectiveKind
	SyntaxKind    string // e.g. "command", "code", "template"
	Interpolated  bool
}

// Metadata carries the per-variable bookkeeping from §3.2.
type Metadata struct {
	DefinedAt          ast.SourceLocation
	Security           *security.Descriptor
	ExecutableDef      *ExecutableDef // not set by the evaluator; an executable's definition is its Value
	CapturedModuleEnv  *ModuleScope   // set for every /exe at definition time: a snapshot of the defining frame
	TemplateInterp     ast.InterpolationFlavor
	IsSystem           bool
	IsParameter        bool
	IsPipelineResult   bool
	IsRetryable        bool
	Signature          *security.Signature // set by `/sign`, consulted by `/verify` and autoverify
}

// Variable is one named slot in an Environment frame.
type Variable struct {
	Name     string
	Kind     Kind
	Value    interface{} // primitive, string, *Structured, []interface{}, map[string]interface{}, *ExecutableDef, ast.Node
	Source   Source
	Metadata Metadata
}

// ModuleScope is the serialized deep-scope snapshot described in §4.6.5:
// a module's complete top-level scope plus its shadow environments,
// captured recursively so an exported executable can resolve its own
// module's identifiers without ever consulting the caller's scope. It is
// held in memory only (the module cache persists raw source bytes, not
// this struct); internal/module and internal/execengine share this shape.
type ModuleScope struct {
	Specifier  string
	Variables  map[string]*Variable
	ShadowEnvs map[string]map[string]*ExecutableDef
	// Circular marks a back-edge that was cut during serialization rather
	// than followed, per §4.6.5 "circular structures are cut with a
	// Circular sentinel".
	Circular bool
}
