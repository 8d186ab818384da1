package evaluator

import (
	"github.com/mlld-lang/mlld/internal/ast"
	"github.com/mlld-lang/mlld/internal/env"
	"github.com/mlld-lang/mlld/internal/errs"
	"github.com/mlld-lang/mlld/internal/resolution"
	"github.com/mlld-lang/mlld/internal/value"
)

// evalVariableReference resolves `@name`, applies its field-access
// chain, then runs any condensed pipe stages (§4.1 rules 1-4, §4.3).
func (ev *Evaluator) evalVariableReference(n *ast.VariableReference, e *env.Environment, ctx Context) (interface{}, error) {
	v, err := ev.resolveIdentifier(n.Identifier, e, n.Loc())
	if err != nil {
		return nil, err
	}

	resolved := v.Value

	// Auto-execute a bare reference to an executable with no declared
	// parameters (§4.4's "zero-arg auto-invoke" convenience). This happens
	// whether or not the reference carries field access; any field access
	// below then indexes into the invocation's result.
	if def, ok := resolved.(*value.ExecutableDef); ok && len(def.ParamNames) == 0 {
		invoked, err := ev.engine.Invoke(n.Identifier, def, nil, nil, nil, e, n.Loc())
		if err != nil {
			return nil, err
		}
		resolved = invoked
	}

	if len(n.Fields) > 0 {
		chain := make([]value.Accessor, len(n.Fields))
		for i, f := range n.Fields {
			chain[i] = value.Accessor{
				DotName:    f.DotName,
				BracketIdx: f.BracketIdx,
				SliceStart: f.SliceStart,
				SliceEnd:   f.SliceEnd,
				StringKey:  f.StringKey,
				Optional:   f.Optional,
			}
		}
		fieldVal, err := value.Access(resolved, chain)
		if err != nil {
			return nil, errs.Wrap(errs.KindFieldAccess, n.Loc(), err, "field access on %q failed", n.Identifier)
		}
		resolved = fieldVal
	}

	for _, pipe := range n.Pipes {
		staged, err := ev.runPipeStage(pipe, resolved, e, n.Loc())
		if err != nil {
			return nil, err
		}
		resolved = staged
	}

	resCtx := ctx.Resolution
	if resCtx == "" {
		resCtx = resolution.FieldAccess
	}
	return resolution.Unwrap(resCtx, resolved)
}

func capturedScopeOf(v *value.Variable) *value.ModuleScope {
	return v.Metadata.CapturedModuleEnv
}

func capturedShadowOf(v *value.Variable) map[string]map[string]*value.ExecutableDef {
	if v.Metadata.CapturedModuleEnv == nil {
		return nil
	}
	return v.Metadata.CapturedModuleEnv.ShadowEnvs
}

func (ev *Evaluator) resolveIdentifier(name string, e *env.Environment, loc ast.SourceLocation) (*value.Variable, error) {
	switch name {
	case "now", "input", "base", "p", "mx", "ctx":
		if v, ok := e.GetVariable(name); ok {
			return v, nil
		}
		return &value.Variable{Name: name, Kind: value.KindPrimitive, Value: nil}, nil
	}
	v, ok := e.GetVariable(name)
	if !ok {
		return nil, errs.New(errs.KindUnknownVariable, loc, "undefined variable %q", name)
	}
	return v, nil
}

// runPipeStage invokes a condensed-pipe stage (`| @name(args)`) with input
// as its implicit first argument prepended to any explicit args.
func (ev *Evaluator) runPipeStage(p ast.PipeStage, input interface{}, e *env.Environment, loc ast.SourceLocation) (interface{}, error) {
	fnVar, err := ev.resolveIdentifier(p.Name, e, loc)
	if err != nil {
		return nil, err
	}
	def, ok := fnVar.Value.(*value.ExecutableDef)
	if !ok {
		return nil, errs.New(errs.KindTypeMismatch, loc, "pipe stage %q is not an executable", p.Name)
	}
	args := make([]interface{}, 0, len(p.Args)+1)
	args = append(args, input)
	for _, a := range p.Args {
		v, err := ev.EvaluateArg(a, e)
		if err != nil {
			return nil, err
		}
		args = append(args, v)
	}
	return ev.engine.Invoke(p.Name, def, capturedScopeOf(fnVar), capturedShadowOf(fnVar), args, e, loc)
}

// InvokeStage implements pipeline.StageInvoker: runs one pipeline stage
// node with input prepended as its implicit first argument.
func (ev *Evaluator) InvokeStage(stage ast.Node, input interface{}, e *env.Environment, loc ast.SourceLocation) (interface{}, error) {
	switch s := stage.(type) {
	case *ast.ExecInvocation:
		merged := *s
		merged.Args = append([]ast.Node{&ast.ExpressionNode{Raw: input}}, s.Args...)
		return ev.evalExecInvocation(&merged, e, Context{IsExpression: true})
	case *ast.VariableReference:
		fnVar, err := ev.resolveIdentifier(s.Identifier, e, loc)
		if err != nil {
			return nil, err
		}
		def, ok := fnVar.Value.(*value.ExecutableDef)
		if !ok {
			return ev.Evaluate(stage, e, Context{IsExpression: true})
		}
		return ev.engine.Invoke(s.Identifier, def, capturedScopeOf(fnVar), capturedShadowOf(fnVar), []interface{}{input}, e, loc)
	default:
		return ev.Evaluate(stage, e, Context{IsExpression: true})
	}
}

func (ev *Evaluator) evalVariableReferenceWithTail(n *ast.VariableReferenceWithTail, e *env.Environment, ctx Context) (interface{}, error) {
	switch tail := n.Tail.(type) {
	case *ast.ExecInvocation:
		merged := *tail
		merged.CommandRef = n.Ref
		return ev.evalExecInvocation(&merged, e, ctx)
	default:
		return ev.Evaluate(n.Tail, e, ctx)
	}
}

// evalExecInvocation invokes `@fn(args)` (§4.4), threading any with-clause
// through the pipeline runner (§4.5).
func (ev *Evaluator) evalExecInvocation(n *ast.ExecInvocation, e *env.Environment, ctx Context) (interface{}, error) {
	fnVar, err := ev.resolveIdentifier(n.CommandRef.Identifier, e, n.Loc())
	if err != nil {
		return nil, err
	}
	def, ok := fnVar.Value.(*value.ExecutableDef)
	if !ok {
		return nil, errs.New(errs.KindTypeMismatch, n.Loc(), "%q is not an executable", n.CommandRef.Identifier)
	}

	args := make([]interface{}, len(n.Args))
	for i, a := range n.Args {
		v, err := ev.EvaluateArg(a, e)
		if err != nil {
			return nil, err
		}
		args[i] = v
	}

	produce := func() (interface{}, error) {
		return ev.engine.Invoke(n.CommandRef.Identifier, def, capturedScopeOf(fnVar), capturedShadowOf(fnVar), args, e, n.Loc())
	}

	var result interface{}
	var err error
	if n.With != nil && ev.pipeline != nil {
		result, err = ev.pipeline.RunPipeline(n.With, produce, e, n.Loc())
	} else {
		result, err = produce()
	}
	if err != nil {
		return nil, err
	}

	resCtx := ctx.Resolution
	if resCtx == "" {
		resCtx = resolution.FieldAccess
	}
	return resolution.Unwrap(resCtx, result)
}
