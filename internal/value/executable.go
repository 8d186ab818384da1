package value

import "github.com/mlld-lang/mlld/internal/ast"

// Language enumerates the code-executable languages (§3.3).
type Language string

const (
	LangJS         Language = "js"
	LangNode       Language = "node"
	LangPython     Language = "python"
	LangSh         Language = "sh"
	LangBash       Language = "bash"
	LangForeach    Language = "mlld-foreach"
	LangWhen       Language = "mlld-when"
)

// ExecutableDefKind is the closed tag for ExecutableDef's union.
type ExecutableDefKind string

const (
	ExecCommand    ExecutableDefKind = "command"
	ExecCode       ExecutableDefKind = "code"
	ExecTemplate   ExecutableDefKind = "template"
	ExecSection    ExecutableDefKind = "section"
	ExecCommandRef ExecutableDefKind = "commandRef"
	ExecResolver   ExecutableDefKind = "resolver"
)

// ExecutableDef is the tagged union from §3.3. Exactly the fields for
// Kind are meaningful; others are zero.
type ExecutableDef struct {
	Kind ExecutableDefKind

	ParamNames []string // ordered, unique

	// command
	CommandTemplate ast.Node

	// code
	CodeTemplate ast.Node
	CodeLanguage Language

	// template
	TemplateNodes []ast.Node
	Interp        ast.InterpolationFlavor

	// section
	PathTemplate    ast.Node
	SectionTemplate ast.Node
	RenameTemplate  ast.Node

	// commandRef
	RefTarget ast.VariableReference
	RefArgs   []ast.Node

	// resolver
	ResolverPath    ast.Node
	ResolverPayload ast.Node

	// CapturedShadowEnvs holds, per language, the callables captured at
	// `/exe` definition time (§4.4 step 2).
	CapturedShadowEnvs map[Language]map[string]*ExecutableDef
}

// ParamIndex returns the index of name in ParamNames, or -1.
func (e *ExecutableDef) ParamIndex(name string) int {
	for i, n := range e.ParamNames {
		if n == name {
			return i
		}
	}
	return -1
}
