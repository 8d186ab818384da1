// Package evaluator implements spec.md §4.1/§4.6: the C1 evaluator that
// walks a parsed document, threading variable resolution, interpolation,
// and directive dispatch through an internal/env.Environment.
//
// Grounded in the teacher's NodeEvaluator (runtime/execution/evaluator.go):
// the same "one exported entry point that type-switches on the IR and
// delegates everything effectful to an injected executor/decorator"
// shape reappears here, generalized from devcmd's fixed command/block/
// decorator IR to mlld's richer document/directive/expression tree.
//
// This package sits at the center of the C1/C4/C5/C6 cycle the spec
// calls out: it implements execengine.Evaluator (so the executable engine
// can render templates without importing this package) and
// security.GuardRunner (so policy guards can run `/when` arms without
// internal/security importing this package), and it owns *using*
// internal/pipeline and internal/module by depending on small
// locally-defined interfaces those packages satisfy structurally.
package evaluator

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/mlld-lang/mlld/internal/ast"
	"github.com/mlld-lang/mlld/internal/effect"
	"github.com/mlld-lang/mlld/internal/env"
	"github.com/mlld-lang/mlld/internal/errs"
	"github.com/mlld-lang/mlld/internal/execengine"
	"github.com/mlld-lang/mlld/internal/resolution"
	"github.com/mlld-lang/mlld/internal/security"
	"github.com/mlld-lang/mlld/internal/value"
)

// Context carries per-call evaluation mode (§4.1 rule 4's resolution
// contexts plus the expression/statement distinction from §3.5).
type Context struct {
	// IsExpression suppresses doc-stream effects: true while evaluating a
	// nested expression (template interpolation, when-condition, pipeline
	// argument) rather than a top-level document node.
	IsExpression bool

	// Resolution is which of resolution.Context applies to the value this
	// call produces; defaults to FieldAccess (no unwrap) when zero.
	Resolution resolution.Context
}

// PipelineRunner is the subset of internal/pipeline.Runner the evaluator
// needs to thread a with-clause through an invocation result. Defined
// here rather than imported so internal/pipeline can in turn depend on
// the Evaluator interface below without a cycle.
type PipelineRunner interface {
	RunPipeline(spec *ast.WithClause, produce func() (interface{}, error), e *env.Environment, loc ast.SourceLocation) (interface{}, error)
}

// ModuleLoader is the subset of internal/module.Loader the evaluator
// needs for `/import`.
type ModuleLoader interface {
	Load(path string, loc ast.SourceLocation, parent *env.Environment) (exports map[string]*value.Variable, err error)
}

// ContentLoader is the subset of internal/fsys.ContentLoader the
// evaluator needs for a `<./path>` LoadContent node (§6.2).
type ContentLoader interface {
	Load(baseDir, path string) (content []byte, resolvedPath string, err error)
}

// Evaluator is the C1 document walker.
type Evaluator struct {
	engine   *execengine.Engine
	pipeline PipelineRunner
	module   ModuleLoader
	content  ContentLoader
	sigStore *security.Store
}

// New constructs an Evaluator with its executable engine wired
// immediately (the engine only needs the Evaluator, not the reverse, so
// no two-step init is required there). Pipeline and module support are
// wired afterward via SetPipeline/SetModule, because both of those in
// turn depend on this Evaluator as their callback target — internal/interp
// is expected to call:
//
//	ev := evaluator.New()
//	ev.SetPipeline(pipeline.New(ev))
//	ev.SetModule(module.New(ev, ...))
//
// A nil pipeline runner makes with-clauses a no-op passthrough and a nil
// module loader makes `/import` fail with ModuleNotFound — both are safe
// zero values for unit tests that only exercise expression evaluation.
func New() *Evaluator {
	ev := &Evaluator{}
	ev.engine = execengine.New(ev)
	return ev
}

// SetPipeline wires the pipeline runner after construction (breaks the
// evaluator/pipeline mutual-dependency cycle at the value level, not the
// package level).
func (ev *Evaluator) SetPipeline(p PipelineRunner) { ev.pipeline = p }

// SetModule wires the module loader after construction, same rationale
// as SetPipeline.
func (ev *Evaluator) SetModule(m ModuleLoader) { ev.module = m }

// SetContentLoader wires the `<./path>` load-content handler after
// construction, same rationale as SetPipeline/SetModule.
func (ev *Evaluator) SetContentLoader(c ContentLoader) { ev.content = c }

// SetSignatureStore wires on-disk persistence for `/sign`/`/verify`
// (§6.6's `.sig` directory layout). A nil store (the default) keeps
// signatures in-memory only on the variable's Metadata, which is enough
// for a single-run `/sign ...; /verify ...` pair within the same
// document but does not survive process restarts.
func (ev *Evaluator) SetSignatureStore(s *security.Store) { ev.sigStore = s }

// Engine exposes the wired executable engine, for internal/interp to hand
// to a module loader that needs to invoke captured scope executables.
func (ev *Evaluator) Engine() *execengine.Engine { return ev.engine }

// EvaluateDocument walks a whole parsed document (§3.5 lifecycle step 3),
// emitting doc effects as it goes and leaving its bindings in root; the
// first evaluation error stops the walk and is returned.
func (ev *Evaluator) EvaluateDocument(nodes []ast.Node, root *env.Environment) error {
	for _, n := range nodes {
		if _, err := ev.Evaluate(n, root, Context{}); err != nil {
			return err
		}
	}
	return nil
}

// Evaluate dispatches on node's concrete type (§4.1 rule 1: every AST
// node kind has exactly one handler; an unrecognized kind is always a
// defect, never silently ignored).
func (ev *Evaluator) Evaluate(node ast.Node, e *env.Environment, ctx Context) (interface{}, error) {
	switch n := node.(type) {
	case *ast.Text:
		if !ctx.IsExpression {
			e.EmitEffect(effect.StreamDoc, n.Value, n.Loc())
		}
		return n.Value, nil

	case *ast.CodeFence:
		if !ctx.IsExpression {
			e.EmitEffect(effect.StreamDoc, "```"+n.Language+"\n"+n.Body+"\n```", n.Loc())
		}
		return n.Body, nil

	case *ast.Directive:
		return ev.evalDirective(n, e, ctx)

	case *ast.VariableReference:
		return ev.evalVariableReference(n, e, ctx)

	case *ast.VariableReferenceWithTail:
		return ev.evalVariableReferenceWithTail(n, e, ctx)

	case *ast.ExecInvocation:
		return ev.evalExecInvocation(n, e, ctx)

	case *ast.Template:
		text, err := ev.Interpolate(n.Nodes, e, execengine.InterpOptions{IsExpression: true})
		if err != nil {
			return nil, err
		}
		return text, nil

	case *ast.ObjectLiteral:
		return ev.evalObjectLiteral(n, e, ctx)

	case *ast.ArrayLiteral:
		out := make([]interface{}, len(n.Elements))
		for i, el := range n.Elements {
			v, err := ev.Evaluate(el, e, Context{IsExpression: true})
			if err != nil {
				return nil, err
			}
			out[i] = v
		}
		return out, nil

	case *ast.BinaryOp:
		return ev.evalBinaryOp(n, e)

	case *ast.UnaryOp:
		return ev.evalUnaryOp(n, e)

	case *ast.Ternary:
		cond, err := ev.Evaluate(n.Cond, e, Context{IsExpression: true, Resolution: resolution.Condition})
		if err != nil {
			return nil, err
		}
		if resolution.Truthy(cond) {
			return ev.Evaluate(n.Then, e, Context{IsExpression: true})
		}
		return ev.Evaluate(n.Else, e, Context{IsExpression: true})

	case *ast.WhenExpression:
		return ev.evalWhenExpression(n, e)

	case *ast.ForExpression:
		return ev.evalForExpression(n, e)

	case *ast.LoadContent:
		return ev.evalLoadContent(n, e)

	case *ast.LabelModification:
		return ev.evalLabelModification(n, e)

	case *ast.ForeachCommand:
		return ev.evalForeachCommand(n, e)

	case *ast.ExpressionNode:
		return n.Raw, nil

	default:
		return nil, errs.New(errs.KindUnknownNodeKind, node.Loc(), "unhandled node type %T", node)
	}
}

// EvaluateArg implements execengine.Evaluator: executable invocation
// arguments always evaluate in expression context with field-access
// (no-unwrap) resolution, since the callee may need the raw structured
// value.
func (ev *Evaluator) EvaluateArg(node ast.Node, e *env.Environment) (interface{}, error) {
	return ev.Evaluate(node, e, Context{IsExpression: true, Resolution: resolution.FieldAccess})
}

// Interpolate implements execengine.Evaluator and is also the general
// template-rendering entry point (§3.4, §4.1 rule 4's StringInterp
// context): every non-Text node is evaluated, unwrapped for
// interpolation, stringified, and concatenated with the literal runs.
func (ev *Evaluator) Interpolate(nodes []ast.Node, e *env.Environment, opts execengine.InterpOptions) (string, error) {
	var b strings.Builder
	for _, n := range nodes {
		if t, ok := n.(*ast.Text); ok {
			b.WriteString(t.Value)
			continue
		}
		v, err := ev.Evaluate(n, e, Context{IsExpression: true, Resolution: resolution.StringInterp})
		if err != nil {
			return "", err
		}
		unwrapped, err := resolution.Unwrap(resolution.StringInterp, v)
		if err != nil {
			return "", err
		}
		s := Stringify(unwrapped)
		if opts.ShellEscape {
			s = shellEscape(s)
		}
		b.WriteString(s)
	}
	return b.String(), nil
}

// Stringify renders an interpreted value for text output (§3.4's
// canonical-text rules): strings pass through, nil becomes empty,
// everything else falls back to a Go-syntax-free representation.
func Stringify(v interface{}) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case bool:
		return strconv.FormatBool(t)
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	case float64:
		return strconv.FormatFloat(t, 'g', -1, 64)
	case []interface{}, map[string]interface{}:
		return jsonCompact(t)
	default:
		return fmt.Sprintf("%v", t)
	}
}

// shellEscape single-quotes a string for safe inclusion in a POSIX shell
// command line, the way the teacher's own command-template renderer
// escapes interpolated arguments before handing them to os/exec.
func shellEscape(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}

// CleanNamespaceForDisplay strips internal bookkeeping keys (those
// prefixed with "_", plus the reserved ambient names) before an imported
// namespace object is shown or JSON-serialized for a human (§6.6).
func CleanNamespaceForDisplay(obj map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(obj))
	for k, v := range obj {
		if strings.HasPrefix(k, "_") {
			continue
		}
		switch k {
		case "now", "debug", "input", "base", "p", "mx", "ctx":
			continue
		}
		out[k] = v
	}
	return out
}

// GuardRunner lets a *Evaluator satisfy security.GuardRunner
// without exporting the signature mismatch (GuardRunner is a function
// type, not an interface).
func (ev *Evaluator) GuardRunner() security.GuardRunner {
	return func(g *security.Guard, opCtx security.OperationContext, desc *security.Descriptor) (security.GuardOutcome, error) {
		return ev.runGuardProgram(g, opCtx, desc)
	}
}
