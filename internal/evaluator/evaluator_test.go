package evaluator

import (
	"testing"

	"github.com/mlld-lang/mlld/internal/ast"
	"github.com/mlld-lang/mlld/internal/env"
	"github.com/mlld-lang/mlld/internal/errs"
	"github.com/mlld-lang/mlld/internal/execengine"
	"github.com/mlld-lang/mlld/internal/resolution"
	"github.com/mlld-lang/mlld/internal/value"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func textNode(s string) *ast.Text { return &ast.Text{Value: s} }

func TestEvaluateTextReturnsItsValue(t *testing.T) {
	t.Parallel()
	ev := New()
	e := env.NewRoot(env.Options{})
	v, err := ev.Evaluate(textNode("hi"), e, Context{})
	require.NoError(t, err)
	assert.Equal(t, "hi", v)
}

func TestEvaluateArrayLiteral(t *testing.T) {
	t.Parallel()
	ev := New()
	e := env.NewRoot(env.Options{})
	node := &ast.ArrayLiteral{Elements: []ast.Node{textNode("a"), textNode("b")}}
	v, err := ev.Evaluate(node, e, Context{IsExpression: true})
	require.NoError(t, err)
	assert.Equal(t, []interface{}{"a", "b"}, v)
}

func TestEvaluateObjectLiteralPreservesOrderValues(t *testing.T) {
	t.Parallel()
	ev := New()
	e := env.NewRoot(env.Options{})
	node := &ast.ObjectLiteral{
		Order:  []string{"b", "a"},
		Fields: map[string]ast.Node{"a": textNode("1"), "b": textNode("2")},
	}
	v, err := ev.Evaluate(node, e, Context{IsExpression: true})
	require.NoError(t, err)
	obj := v.(map[string]interface{})
	assert.Equal(t, "1", obj["a"])
	assert.Equal(t, "2", obj["b"])
}

func TestEvaluateBinaryOpArithmetic(t *testing.T) {
	t.Parallel()
	ev := New()
	e := env.NewRoot(env.Options{})
	node := &ast.BinaryOp{Op: "+", Left: &ast.ExpressionNode{Raw: 2}, Right: &ast.ExpressionNode{Raw: 3}}
	v, err := ev.Evaluate(node, e, Context{IsExpression: true})
	require.NoError(t, err)
	assert.Equal(t, float64(5), v)
}

func TestEvaluateBinaryOpDivisionByZero(t *testing.T) {
	t.Parallel()
	ev := New()
	e := env.NewRoot(env.Options{})
	node := &ast.BinaryOp{Op: "/", Left: &ast.ExpressionNode{Raw: 1}, Right: &ast.ExpressionNode{Raw: 0}}
	_, err := ev.Evaluate(node, e, Context{IsExpression: true})
	assert.Error(t, err)
}

func TestEvaluateBinaryOpShortCircuitsAnd(t *testing.T) {
	t.Parallel()
	ev := New()
	e := env.NewRoot(env.Options{})
	// right side would fail type-checking as arithmetic if evaluated; && must
	// short-circuit on a falsy left without evaluating it as an operator.
	node := &ast.BinaryOp{Op: "&&", Left: &ast.ExpressionNode{Raw: false}, Right: &ast.ExpressionNode{Raw: "anything"}}
	v, err := ev.Evaluate(node, e, Context{IsExpression: true})
	require.NoError(t, err)
	assert.Equal(t, false, v)
}

func TestEvaluateBinaryOpOrShortCircuits(t *testing.T) {
	t.Parallel()
	ev := New()
	e := env.NewRoot(env.Options{})
	node := &ast.BinaryOp{Op: "||", Left: &ast.ExpressionNode{Raw: "truthy"}, Right: &ast.ExpressionNode{Raw: "unused"}}
	v, err := ev.Evaluate(node, e, Context{IsExpression: true})
	require.NoError(t, err)
	assert.Equal(t, "truthy", v)
}

func TestEvaluateBinaryOpEquality(t *testing.T) {
	t.Parallel()
	ev := New()
	e := env.NewRoot(env.Options{})
	node := &ast.BinaryOp{Op: "==", Left: &ast.ExpressionNode{Raw: "a"}, Right: &ast.ExpressionNode{Raw: "a"}}
	v, err := ev.Evaluate(node, e, Context{IsExpression: true})
	require.NoError(t, err)
	assert.Equal(t, true, v)
}

func TestEvaluateBinaryOpEqualityComparesStructuredByText(t *testing.T) {
	t.Parallel()
	ev := New()
	e := env.NewRoot(env.Options{})
	left := &value.Structured{Text: "same"}
	right := &value.Structured{Text: "same"}
	node := &ast.BinaryOp{Op: "==", Left: &ast.ExpressionNode{Raw: left}, Right: &ast.ExpressionNode{Raw: right}}
	v, err := ev.Evaluate(node, e, Context{IsExpression: true})
	require.NoError(t, err)
	assert.Equal(t, true, v)
}

func TestEvaluateUnaryNot(t *testing.T) {
	t.Parallel()
	ev := New()
	e := env.NewRoot(env.Options{})
	node := &ast.UnaryOp{Op: "!", Operand: &ast.ExpressionNode{Raw: ""}}
	v, err := ev.Evaluate(node, e, Context{IsExpression: true})
	require.NoError(t, err)
	assert.Equal(t, true, v, "empty string is falsy, so !x is true")
}

func TestEvaluateUnaryNegate(t *testing.T) {
	t.Parallel()
	ev := New()
	e := env.NewRoot(env.Options{})
	node := &ast.UnaryOp{Op: "-", Operand: &ast.ExpressionNode{Raw: 5}}
	v, err := ev.Evaluate(node, e, Context{IsExpression: true})
	require.NoError(t, err)
	assert.Equal(t, -5, v)
}

func TestEvaluateTernary(t *testing.T) {
	t.Parallel()
	ev := New()
	e := env.NewRoot(env.Options{})
	node := &ast.Ternary{
		Cond: &ast.ExpressionNode{Raw: true},
		Then: textNode("yes"),
		Else: textNode("no"),
	}
	v, err := ev.Evaluate(node, e, Context{IsExpression: true})
	require.NoError(t, err)
	assert.Equal(t, "yes", v)
}

func TestEvaluateVariableReferenceUnknownVariable(t *testing.T) {
	t.Parallel()
	ev := New()
	e := env.NewRoot(env.Options{})
	_, err := ev.Evaluate(&ast.VariableReference{Identifier: "nope"}, e, Context{})
	require.Error(t, err)
	assert.True(t, errs.Is(err, errs.KindUnknownVariable))
}

func TestEvaluateVariableReferenceFieldAccess(t *testing.T) {
	t.Parallel()
	ev := New()
	e := env.NewRoot(env.Options{})
	require.NoError(t, e.SetVariable("obj", &value.Variable{
		Kind:  value.KindObject,
		Value: map[string]interface{}{"name": "ada"},
	}))

	node := &ast.VariableReference{
		Identifier: "obj",
		Fields:     []ast.FieldAccessor{{DotName: "name"}},
	}
	v, err := ev.Evaluate(node, e, Context{})
	require.NoError(t, err)
	assert.Equal(t, "ada", v)
}

func TestStringify(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "", Stringify(nil))
	assert.Equal(t, "hi", Stringify("hi"))
	assert.Equal(t, "true", Stringify(true))
	assert.Equal(t, "42", Stringify(42))
	assert.Equal(t, `["a","b"]`, Stringify([]interface{}{"a", "b"}))
}

func TestInterpolateMixesLiteralAndEvaluatedNodes(t *testing.T) {
	t.Parallel()
	ev := New()
	e := env.NewRoot(env.Options{})
	require.NoError(t, e.SetVariable("name", &value.Variable{Kind: value.KindSimpleText, Value: "world"}))

	nodes := []ast.Node{
		textNode("hello "),
		&ast.VariableReference{Identifier: "name"},
		textNode("!"),
	}
	out, err := ev.Interpolate(nodes, e, execengine.InterpOptions{})
	require.NoError(t, err)
	assert.Equal(t, "hello world!", out)
}

func TestInterpolateShellEscapesWhenRequested(t *testing.T) {
	t.Parallel()
	ev := New()
	e := env.NewRoot(env.Options{})
	require.NoError(t, e.SetVariable("arg", &value.Variable{Kind: value.KindSimpleText, Value: "it's here"}))

	nodes := []ast.Node{&ast.VariableReference{Identifier: "arg"}}
	out, err := ev.Interpolate(nodes, e, execengine.InterpOptions{ShellEscape: true})
	require.NoError(t, err)
	assert.Equal(t, `'it'\''s here'`, out)
}

func TestCleanNamespaceForDisplayStripsUnderscoreKeys(t *testing.T) {
	t.Parallel()
	in := map[string]interface{}{"greet": "hi", "_internal": "secret"}
	out := CleanNamespaceForDisplay(in)
	assert.Equal(t, map[string]interface{}{"greet": "hi"}, out)
}

func TestEvaluateArgUsesFieldAccessResolution(t *testing.T) {
	t.Parallel()
	ev := New()
	e := env.NewRoot(env.Options{})
	s := &value.Structured{Text: "canonical", Data: map[string]interface{}{"k": "v"}}
	require.NoError(t, e.SetVariable("s", &value.Variable{Kind: value.KindStructured, Value: s}))

	v, err := ev.EvaluateArg(&ast.VariableReference{Identifier: "s"}, e)
	require.NoError(t, err)
	assert.Same(t, s, v, "EvaluateArg must not auto-unwrap a structured value")
}

func TestResolutionConditionTreatsMissingAsFalsy(t *testing.T) {
	t.Parallel()
	assert.False(t, resolution.Truthy(nil))
}
