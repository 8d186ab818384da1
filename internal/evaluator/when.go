package evaluator

import (
	"fmt"
	"sort"

	"github.com/mlld-lang/mlld/internal/ast"
	"github.com/mlld-lang/mlld/internal/env"
	"github.com/mlld-lang/mlld/internal/errs"
	"github.com/mlld-lang/mlld/internal/resolution"
	"github.com/mlld-lang/mlld/internal/security"
	"github.com/mlld-lang/mlld/internal/value"
)

// evalWhenExpression implements §4.1's `when [ cond => action, ... ]`:
// IsFirst picks the first matching arm and stops; otherwise every
// matching arm runs in order and the expression's value is the last
// action's result.
func (ev *Evaluator) evalWhenExpression(n *ast.WhenExpression, e *env.Environment) (interface{}, error) {
	var result interface{}
	matchedAny := false
	for _, arm := range n.Arms {
		matched := true
		if arm.Condition != nil {
			cond, err := ev.Evaluate(arm.Condition, e, Context{IsExpression: true, Resolution: resolution.Condition})
			if err != nil {
				return nil, err
			}
			matched = resolution.Truthy(cond)
		}
		if !matched {
			continue
		}
		matchedAny = true
		v, err := ev.Evaluate(arm.Action, e, Context{IsExpression: true})
		if err != nil {
			return nil, err
		}
		result = v
		if n.IsFirst {
			break
		}
	}
	if !matchedAny {
		return nil, nil
	}
	return result, nil
}

// evalForExpression implements `/for @x in @collection => body` (§4.1):
// iterates a resolved collection (an array in index order, an object in
// sorted key order, since an object value keeps no source order),
// binding VarName in a fresh child frame per iteration, and collects
// each body result into an array.
func (ev *Evaluator) evalForExpression(n *ast.ForExpression, e *env.Environment) (interface{}, error) {
	coll, err := ev.Evaluate(n.Collection, e, Context{IsExpression: true, Resolution: resolution.FieldAccess})
	if err != nil {
		return nil, err
	}
	coll = unwrapForIteration(coll)

	var results []interface{}
	switch c := coll.(type) {
	case []interface{}:
		for _, item := range c {
			v, err := ev.runForBody(n, item, e)
			if err != nil {
				return nil, err
			}
			results = append(results, v)
		}
	case map[string]interface{}:
		keys := make([]string, 0, len(c))
		for k := range c {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			v, err := ev.runForBody(n, c[k], e)
			if err != nil {
				return nil, err
			}
			results = append(results, v)
		}
	default:
		return nil, errs.New(errs.KindTypeMismatch, n.Loc(), "/for requires an array or object collection")
	}
	return results, nil
}

func unwrapForIteration(v interface{}) interface{} {
	if s, ok := v.(*value.Structured); ok && s != nil {
		return s.Data
	}
	return v
}

func (ev *Evaluator) runForBody(n *ast.ForExpression, item interface{}, e *env.Environment) (interface{}, error) {
	child := e.CreateChild("")
	child.SetParameterVariable(n.VarName, &value.Variable{
		Name: n.VarName, Kind: value.KindPrimitive, Value: item,
	})
	return ev.Evaluate(n.Body, child, Context{IsExpression: true})
}

// evalLabelModification applies a security label op (§4.7) to the
// descriptor attached to a resolved variable, without mutating data.
// Targets that aren't a bare variable reference are evaluated for value
// but carry no descriptor to modify (labels attach at definition time).
func (ev *Evaluator) evalLabelModification(n *ast.LabelModification, e *env.Environment) (interface{}, error) {
	ref, isRef := n.Target.(*ast.VariableReference)
	if !isRef {
		return ev.Evaluate(n.Target, e, Context{IsExpression: true})
	}
	v, err := ev.resolveIdentifier(ref.Identifier, e, n.Loc())
	if err != nil {
		return nil, err
	}
	desc := v.Metadata.Security
	var ok bool
	switch n.Op {
	case "add":
		desc = desc.WithLabels(n.Labels...)
	case "remove":
		desc, ok = desc.RemoveLabels(false, n.Labels...)
		if !ok {
			return nil, errs.New(errs.KindProtectedLabelRemoval, n.Loc(), "removing protected labels from %q requires a capability", ref.Identifier)
		}
	case "clear":
		desc = &security.Descriptor{}
	case "trusted":
		desc = desc.WithLabels("trusted")
	case "untrusted":
		desc = desc.WithLabels("untrusted-origin")
	case "trusted!":
		desc, ok = desc.RemoveLabels(true, "untrusted-origin")
		if !ok {
			return nil, errs.New(errs.KindProtectedLabelRemoval, n.Loc(), "removing untrusted-origin from %q failed", ref.Identifier)
		}
	default:
		return nil, fmt.Errorf("unknown label operation %q", n.Op)
	}
	v.Metadata.Security = desc
	return v.Value, nil
}

// evalForeachCommand implements the cross-product `foreach @cmd(...)`
// form used inside array/object construction (§4.4): invokes cmd once
// per combination of its source arrays' elements, in row-major order.
func (ev *Evaluator) evalForeachCommand(n *ast.ForeachCommand, e *env.Environment) (interface{}, error) {
	sources := make([][]interface{}, len(n.Sources))
	for i, s := range n.Sources {
		v, err := ev.Evaluate(s, e, Context{IsExpression: true})
		if err != nil {
			return nil, err
		}
		arr, ok := unwrapForIteration(v).([]interface{})
		if !ok {
			return nil, errs.New(errs.KindTypeMismatch, n.Loc(), "foreach source %d is not an array", i)
		}
		sources[i] = arr
	}

	invocation, ok := n.Command.(*ast.ExecInvocation)
	if !ok {
		return nil, errs.New(errs.KindTypeMismatch, n.Loc(), "foreach command must be an invocation")
	}

	var results []interface{}
	var walk func(depth int, row []interface{}) error
	walk = func(depth int, row []interface{}) error {
		if depth == len(sources) {
			merged := *invocation
			merged.Args = append(append([]ast.Node{}, invocation.Args...), literalRow(row)...)
			v, err := ev.evalExecInvocation(&merged, e, Context{IsExpression: true})
			if err != nil {
				return err
			}
			results = append(results, v)
			return nil
		}
		for _, item := range sources[depth] {
			if err := walk(depth+1, append(row, item)); err != nil {
				return err
			}
		}
		return nil
	}
	if err := walk(0, nil); err != nil {
		return nil, err
	}
	return results, nil
}

func literalRow(row []interface{}) []ast.Node {
	nodes := make([]ast.Node, len(row))
	for i, v := range row {
		nodes[i] = &ast.ExpressionNode{Raw: v}
	}
	return nodes
}

// runGuardProgram evaluates a guard's when-expression body (§4.7's guard
// block semantics): each arm's action must be a LabelModification (for
// `let`), a bare `allow`/`deny` identifier reference, or an
// ExpressionNode carrying an EnvProfile string literal.
func (ev *Evaluator) runGuardProgram(g *security.Guard, opCtx security.OperationContext, desc *security.Descriptor) (security.GuardOutcome, error) {
	whenExpr, ok := g.Program.(*ast.WhenExpression)
	if !ok {
		return security.GuardOutcome{}, fmt.Errorf("guard %q program is not a when-expression", g.Name)
	}

	guardEnv := env.NewRoot(env.Options{})
	guardEnv.SetSystemVariable("input", &value.Variable{Name: "input", Kind: value.KindPrimitive, Value: opCtx.Metadata})

	for _, arm := range whenExpr.Arms {
		matched := true
		if arm.Condition != nil {
			cond, err := ev.Evaluate(arm.Condition, guardEnv, Context{IsExpression: true, Resolution: resolution.Condition})
			if err != nil {
				return security.GuardOutcome{}, err
			}
			matched = resolution.Truthy(cond)
		}
		if !matched {
			continue
		}
		return ev.guardArmOutcome(arm.Action, guardEnv)
	}
	return security.GuardOutcome{}, nil
}

func (ev *Evaluator) guardArmOutcome(action ast.Node, e *env.Environment) (security.GuardOutcome, error) {
	switch a := action.(type) {
	case *ast.VariableReference:
		switch a.Identifier {
		case "allow":
			return security.GuardOutcome{Decision: "allow"}, nil
		case "deny":
			return security.GuardOutcome{Decision: "deny"}, nil
		}
	case *ast.LabelModification:
		if a.Op == "add" && len(a.Labels) > 0 {
			return security.GuardOutcome{LetLabel: a.Labels[0]}, nil
		}
	}
	v, err := ev.Evaluate(action, e, Context{IsExpression: true})
	if err != nil {
		return security.GuardOutcome{}, err
	}
	if s, ok := v.(string); ok {
		return security.GuardOutcome{EnvProfile: s}, nil
	}
	return security.GuardOutcome{}, nil
}
