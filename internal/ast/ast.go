// Package ast defines the closed tagged-union node tree the parser (an
// external collaborator per spec.md §1/§6.1) is contracted to produce.
// The interpreter never constructs these except in tests; it only walks
// them. Modeled as a sealed interface + concrete struct set the way the
// teacher models its own IR in runtime/ir and core/ast — a small marker
// method per node plus a SourceLocation on every node, rather than a
// reflection-driven visitor.
package ast

// SourceLocation locates a node in its source document.
type SourceLocation struct {
	File   string
	Line   int
	Column int
	Offset int
}

// Node is the sealed interface implemented by every AST node kind.
type Node interface {
	nodeTag()
	Loc() SourceLocation
}

type base struct{ Location SourceLocation }

func (base) nodeTag()              {}
func (b base) Loc() SourceLocation { return b.Location }

// Text is literal document text emitted verbatim as a doc effect.
type Text struct {
	base
	Value string
}

// CodeFence is a fenced code block rendered verbatim into doc output.
type CodeFence struct {
	base
	Language string
	Body     string
}

// DirectiveKind enumerates the slash-prefixed directive families.
type DirectiveKind string

const (
	DirVar     DirectiveKind = "var"
	DirExe     DirectiveKind = "exe"
	DirRun     DirectiveKind = "run"
	DirShow    DirectiveKind = "show"
	DirImport  DirectiveKind = "import"
	DirExport  DirectiveKind = "export"
	DirWhen    DirectiveKind = "when"
	DirFor     DirectiveKind = "for"
	DirOutput  DirectiveKind = "output"
	DirGuard   DirectiveKind = "guard"
	DirSign    DirectiveKind = "sign"
	DirVerify  DirectiveKind = "verify"
	DirPolicy  DirectiveKind = "policy"
	DirLog     DirectiveKind = "log"
)

// Directive is a slash-prefixed statement.
type Directive struct {
	base
	Kind    DirectiveKind
	Subtype string // e.g. "command", "code", "template", "section", "resolver"
	Values  map[string]Node
	Meta    map[string]interface{}
}

// VariableReference is a bare @identifier, optionally with field access,
// condensed pipes, and a tail expression.
type VariableReference struct {
	base
	Identifier string
	Fields     []FieldAccessor
	Pipes      []PipeStage
}

// VariableReferenceWithTail is a VariableReference immediately followed by
// a non-field tail construct (e.g. an ExecInvocation's argument list).
type VariableReferenceWithTail struct {
	base
	Ref  VariableReference
	Tail Node
}

// FieldAccessor is one step of a field-access chain: .name, [index],
// [start:end], or ["key"]. Exactly one of the fields is set.
type FieldAccessor struct {
	DotName    string
	BracketIdx *int
	SliceStart *int
	SliceEnd   *int
	StringKey  *string
	Optional   bool // trailing `?` — missing yields null instead of erroring
}

// PipeStage is one condensed-pipe stage: `| @name(args)`.
type PipeStage struct {
	Name string
	Args []Node
}

// ExecInvocation is `@fn(args)` possibly with a with-clause.
type ExecInvocation struct {
	base
	CommandRef VariableReference
	Args       []Node
	With       *WithClause
}

// WithClause carries the `with { ... }` options attached to an invocation.
type WithClause struct {
	Pipeline     []PipeStageSpec
	Stdin        Node
	Stream       bool
	StreamFormat string
	Trust        string // "always" | "never" | "verify"
	Needs        *NeedsClause
}

// PipeStageSpec is one stage of a with-clause pipeline: the producer
// invocation plus any inline effects attached to it.
type PipeStageSpec struct {
	Stage         Node // ExecInvocation or VariableReference
	InlineEffects []InlineEffect
}

// InlineEffect is `| log`, `| output`, or `| show` attached to a stage.
type InlineEffect struct {
	Kind string // "log" | "output" | "show"
	Args []Node
}

// NeedsClause is the `needs: { file: ... }` precondition block.
type NeedsClause struct {
	File Node
}

// InterpolationFlavor distinguishes template delimiter styles.
type InterpolationFlavor string

const (
	InterpAt        InterpolationFlavor = "at"
	InterpMustache  InterpolationFlavor = "mustache"
	InterpBacktick  InterpolationFlavor = "backtick"
)

// Template is a sequence of literal/interpolated nodes with a delimiter flavor.
type Template struct {
	base
	Nodes       []Node
	Interp      InterpolationFlavor
}

// LoadContent is a `<./path>` or `<https://...>` content-load expression.
type LoadContent struct {
	base
	Source  Node
	Section string
	Options map[string]interface{}
}

// ObjectLiteral is `{ key: value, ... }`.
type ObjectLiteral struct {
	base
	Fields map[string]Node
	Order  []string // preserves source field order
}

// ArrayLiteral is `[a, b, c]`.
type ArrayLiteral struct {
	base
	Elements []Node
}

// LabelModification is `+label`, `-label`, `clear`, `trusted`, `untrusted`,
// `trusted!` attached to a value.
type LabelModification struct {
	base
	Op     string // "add" | "remove" | "clear" | "trusted" | "untrusted" | "trusted!"
	Labels []string
	Target Node
}

// BinaryOp / UnaryOp / Ternary model basic expression forms.
type BinaryOp struct {
	base
	Op          string
	Left, Right Node
}

type UnaryOp struct {
	base
	Op      string
	Operand Node
}

type Ternary struct {
	base
	Cond, Then, Else Node
}

// WhenExpression is the `when [ cond => action, ... ]` construct used by
// both `/when` directives and guard blocks.
type WhenExpression struct {
	base
	Arms    []WhenArm
	IsFirst bool // "first match wins" vs "all matches run"
}

// WhenArm is one `cond => action` arm.
type WhenArm struct {
	Condition Node // nil for a bare `default`/`*` arm
	Action    Node
}

// ForExpression is `/for @x in @collection => body`.
type ForExpression struct {
	base
	VarName    string
	Collection Node
	Body       Node
}

// ForeachCommand models `foreach @cmd(...)` cross-product invocation used
// inside structured-value construction.
type ForeachCommand struct {
	base
	Command Node
	Sources []Node
}

// ExpressionNode is a generic fallback wrapper for a sub-expression that
// doesn't need its own concrete type (kept for forward compatibility with
// parser constructs not enumerated above).
type ExpressionNode struct {
	base
	Raw interface{}
}
