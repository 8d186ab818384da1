// Package execengine implements spec.md §4.4: executable definition and
// invocation across all ExecutableDef kinds, with captured scope and
// shadow environments.
//
// Grounded in the teacher's NodeEvaluator (runtime/execution/evaluator.go):
// the same dispatch-by-kind shape (EvaluateNode switching on
// ir.CommandSeq/Wrapper/Pattern) reappears here as Engine.Invoke switching
// on value.ExecutableDefKind, and the command/code execution path below
// (executeShell/executeWithStreaming) is adapted directly from that
// file's real-time-streaming subprocess runner.
//
// Engine depends on an Evaluator interface rather than importing
// internal/evaluator directly — the same inversion the teacher itself
// uses for action/block decorators needing to call back into node
// evaluation (NodeEvaluator.ExecuteAction/ExecuteBlock go through
// decorators.Ctx.Executor, an injected ExecutionDelegate, rather than a
// hard import). This keeps the C1/C4 dependency cycle the spec calls out
// ("executables carry captured environments") from becoming a Go import
// cycle.
package execengine

import (
	"fmt"

	"github.com/mlld-lang/mlld/internal/ast"
	"github.com/mlld-lang/mlld/internal/env"
	"github.com/mlld-lang/mlld/internal/errs"
	"github.com/mlld-lang/mlld/internal/value"
)

// Evaluator is the subset of internal/evaluator.Evaluator that Engine
// needs: rendering template node sequences and evaluating argument
// expressions. Implemented by *evaluator.Evaluator.
type Evaluator interface {
	Interpolate(nodes []ast.Node, e *env.Environment, ctx InterpOptions) (string, error)
	EvaluateArg(node ast.Node, e *env.Environment) (interface{}, error)
}

// InterpOptions controls template rendering (expression-context
// suppression, shell-escaping, etc.) — kept as a plain struct rather than
// a full evaluator.Context type to avoid execengine depending on
// evaluator's internals.
type InterpOptions struct {
	IsExpression bool
	ShellEscape  bool
}

// ResolverInvoker is the subset of internal/resolver.Manager the engine
// needs to serve an `/exe` resolver executable's payload to a named
// resolver (§6.4, §3.3's resolver ExecutableDefKind).
type ResolverInvoker interface {
	InvokeResolver(path, payload string, loc ast.SourceLocation) (interface{}, error)
}

// SectionLoader is the subset of internal/fsys.ContentLoader the engine
// needs to serve a `section` executable (§3.3): load a file and extract
// one markdown section from it.
type SectionLoader interface {
	LoadSection(baseDir, path, section string) (string, error)
}

// Engine invokes ExecutableDef values (§4.4).
type Engine struct {
	eval     Evaluator
	resolver ResolverInvoker
	sections SectionLoader
}

func New(eval Evaluator) *Engine {
	return &Engine{eval: eval}
}

// SetResolver wires the resolver manager after construction, same
// rationale as evaluator.Evaluator's SetPipeline/SetModule: the resolver
// manager in turn may need to call back into document evaluation for
// module-backed resolvers, so it is injected rather than imported.
func (g *Engine) SetResolver(r ResolverInvoker) { g.resolver = r }

// SetSectionLoader wires the filesystem-backed section loader after
// construction, same rationale as SetResolver.
func (g *Engine) SetSectionLoader(s SectionLoader) { g.sections = s }

// Invoke resolves args against paramNames in a fresh child environment and
// dispatches by ExecutableDef.Kind (§4.4 invocation steps 1-5).
func (g *Engine) Invoke(fnName string, def *value.ExecutableDef, capturedScope *value.ModuleScope, capturedShadow map[string]map[string]*value.ExecutableDef, args []interface{}, callerEnv *env.Environment, loc ast.SourceLocation) (interface{}, error) {
	child := callerEnv.CreateChild("")

	// Bind positional args; missing trailing args become undefined (nil),
	// never an error (§4.4 step 2, §8.1 universal invariant).
	for i, name := range def.ParamNames {
		var argVal interface{}
		if i < len(args) {
			argVal = args[i]
		}
		child.SetParameterVariable(name, &value.Variable{
			Name:  name,
			Kind:  kindOf(argVal),
			Value: argVal,
			Metadata: value.Metadata{
				DefinedAt:   loc,
				IsParameter: true,
			},
		})
	}

	switch def.Kind {
	case value.ExecCommand:
		return g.invokeCommand(def, child, loc)
	case value.ExecCode:
		return g.invokeCode(fnName, def, capturedShadow, child, loc)
	case value.ExecTemplate:
		return g.invokeTemplate(def, capturedScope, child, loc)
	case value.ExecSection:
		return g.invokeSection(def, child, loc)
	case value.ExecCommandRef:
		return nil, fmt.Errorf("commandRef invocation must be resolved by the caller (circular-ref detection needs the call stack)")
	case value.ExecResolver:
		return g.invokeResolver(def, child, loc)
	default:
		return nil, errs.New(errs.KindUnknownNodeKind, loc, "unknown executable def kind %q", def.Kind)
	}
}

func kindOf(v interface{}) value.Kind {
	switch v.(type) {
	case nil:
		return value.KindPrimitive
	case string:
		return value.KindSimpleText
	case *value.Structured:
		return value.KindStructured
	case []interface{}:
		return value.KindArray
	case map[string]interface{}:
		return value.KindObject
	default:
		return value.KindPrimitive
	}
}

func (g *Engine) invokeTemplate(def *value.ExecutableDef, scope *value.ModuleScope, child *env.Environment, loc ast.SourceLocation) (interface{}, error) {
	// Template executables never touch a process; they interpolate their
	// nodes against the bound params plus the captured module scope (§4.4
	// step 3 "template"; §4.6 key isolation property). Every captured
	// variable that is not a parameter is bound into the child frame, so
	// it shadows a same-named variable of the caller. A name that is
	// neither a parameter nor captured still resolves through the caller's
	// frames.
	if scope != nil {
		for name, v := range scope.Variables {
			if _, isParam := child.GetLocalVariable(name); isParam || v.Metadata.IsSystem {
				continue
			}
			if err := child.SetVariable(name, v); err != nil {
				return nil, err
			}
		}
	}
	text, err := g.eval.Interpolate(def.TemplateNodes, child, InterpOptions{})
	if err != nil {
		return nil, err
	}
	return text, nil
}

func (g *Engine) invokeCommand(def *value.ExecutableDef, child *env.Environment, loc ast.SourceLocation) (interface{}, error) {
	text, err := g.renderCommandTemplate(def.CommandTemplate, child)
	if err != nil {
		return nil, err
	}
	return g.runShell(text, child, loc)
}

func (g *Engine) renderCommandTemplate(n ast.Node, e *env.Environment) (string, error) {
	switch t := n.(type) {
	case *ast.Template:
		return g.eval.Interpolate(t.Nodes, e, InterpOptions{ShellEscape: true})
	default:
		return g.eval.Interpolate([]ast.Node{n}, e, InterpOptions{ShellEscape: true})
	}
}

func (g *Engine) invokeSection(def *value.ExecutableDef, child *env.Environment, loc ast.SourceLocation) (interface{}, error) {
	path, err := g.renderCommandTemplate(def.PathTemplate, child)
	if err != nil {
		return nil, err
	}
	section, err := g.renderCommandTemplate(def.SectionTemplate, child)
	if err != nil {
		return nil, err
	}
	if g.sections == nil {
		return nil, errs.New(errs.KindResolverFailure, loc, "section executable for %q#%q requires a filesystem contract wired by the caller", path, section)
	}
	return g.sections.LoadSection(child.PathContext().FileDirectory, path, section)
}

func (g *Engine) invokeResolver(def *value.ExecutableDef, child *env.Environment, loc ast.SourceLocation) (interface{}, error) {
	payload := ""
	if def.ResolverPayload != nil {
		rendered, err := g.renderCommandTemplate(def.ResolverPayload, child)
		if err != nil {
			return nil, err
		}
		payload = rendered
	}
	path, err := g.renderCommandTemplate(def.ResolverPath, child)
	if err != nil {
		return nil, err
	}
	if g.resolver == nil {
		return nil, errs.New(errs.KindResolverFailure, loc, "resolver invocation for %q requires internal/resolver wired by the caller", path)
	}
	return g.resolver.InvokeResolver(path, payload, loc)
}
