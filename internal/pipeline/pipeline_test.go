package pipeline

import (
	"testing"

	"github.com/mlld-lang/mlld/internal/ast"
	"github.com/mlld-lang/mlld/internal/env"
	"github.com/mlld-lang/mlld/internal/errs"
	"github.com/mlld-lang/mlld/internal/value"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeInvoker drives stages from a queue of canned outputs keyed by the
// *ast.VariableReference.Identifier naming the stage, so tests can script
// a producer/stage sequence without a real evaluator.
type fakeInvoker struct {
	outputs map[string][]interface{} // identifier -> queue of successive results
	evalArg func(node ast.Node, e *env.Environment) (interface{}, error)
}

func (f *fakeInvoker) InvokeStage(stage ast.Node, input interface{}, e *env.Environment, loc ast.SourceLocation) (interface{}, error) {
	ref := stage.(*ast.VariableReference)
	q := f.outputs[ref.Identifier]
	if len(q) == 0 {
		return nil, nil
	}
	out := q[0]
	f.outputs[ref.Identifier] = q[1:]
	return out, nil
}

func (f *fakeInvoker) EvaluateArg(node ast.Node, e *env.Environment) (interface{}, error) {
	if f.evalArg != nil {
		return f.evalArg(node, e)
	}
	return nil, nil
}

func ref(name string) *ast.VariableReference { return &ast.VariableReference{Identifier: name} }

func TestRunPipelineNoSpecCallsProducerOnce(t *testing.T) {
	t.Parallel()
	calls := 0
	r := New(&fakeInvoker{outputs: map[string][]interface{}{}})

	out, err := r.RunPipeline(nil, func() (interface{}, error) {
		calls++
		return "direct", nil
	}, env.NewRoot(env.Options{}), ast.SourceLocation{})

	require.NoError(t, err)
	assert.Equal(t, "direct", out)
	assert.Equal(t, 1, calls)
}

func TestRunPipelineThreadsOutputThroughStages(t *testing.T) {
	t.Parallel()
	inv := &fakeInvoker{outputs: map[string][]interface{}{
		"upper": {"PRODUCED"},
		"trim":  {"PRODUCED-trimmed"},
	}}
	r := New(inv)
	spec := &ast.WithClause{Pipeline: []ast.PipeStageSpec{
		{Stage: ref("upper")},
		{Stage: ref("trim")},
	}}

	out, err := r.RunPipeline(spec, func() (interface{}, error) { return "seed", nil },
		env.NewRoot(env.Options{}), ast.SourceLocation{})

	require.NoError(t, err)
	assert.Equal(t, "PRODUCED-trimmed", out)
}

func TestRunPipelineRetryReplaysProducer(t *testing.T) {
	t.Parallel()
	produceCalls := 0
	inv := &fakeInvoker{outputs: map[string][]interface{}{
		"gate": {
			map[string]interface{}{"retry": true, "hint": "try again"},
			"accepted",
		},
	}}
	r := New(inv)
	spec := &ast.WithClause{Pipeline: []ast.PipeStageSpec{{Stage: ref("gate")}}}

	out, err := r.RunPipeline(spec, func() (interface{}, error) {
		produceCalls++
		return "seed", nil
	}, env.NewRoot(env.Options{}), ast.SourceLocation{})

	require.NoError(t, err)
	assert.Equal(t, "accepted", out)
	assert.Equal(t, 2, produceCalls, "the producer (stage 0) must re-run once on the gate's retry request")
}

func TestRunPipelineRetryAgainstNonRetryableStageFails(t *testing.T) {
	t.Parallel()
	inv := &fakeInvoker{outputs: map[string][]interface{}{
		"second": {map[string]interface{}{"retry": true}},
	}}
	// stage 1 (the first pipeline entry) is a literal ObjectLiteral, not
	// retryable, so stage 2's retry request targeting it (redo = i-1 = 1)
	// must fail.
	spec := &ast.WithClause{Pipeline: []ast.PipeStageSpec{
		{Stage: &ast.ObjectLiteral{}},
		{Stage: ref("second")},
	}}

	// the first pipeline stage is a literal, so InvokeStage would be
	// called with an *ast.ObjectLiteral which fakeInvoker can't type-assert;
	// route it through a tiny wrapper invoker instead.
	wrapped := New(&literalAwareInvoker{inner: inv})
	_, err := wrapped.RunPipeline(spec, func() (interface{}, error) { return "seed", nil },
		env.NewRoot(env.Options{}), ast.SourceLocation{})
	require.Error(t, err)
	assert.True(t, errs.Is(err, errs.KindPipelineStageFailure))
}

// literalAwareInvoker passes *ast.ObjectLiteral stages through unchanged
// (returns a fixed value) and delegates *ast.VariableReference stages to
// inner, so the non-retryable-literal test above can exercise a mixed
// stage chain without teaching fakeInvoker about every node kind.
type literalAwareInvoker struct{ inner *fakeInvoker }

func (l *literalAwareInvoker) InvokeStage(stage ast.Node, input interface{}, e *env.Environment, loc ast.SourceLocation) (interface{}, error) {
	if _, isLiteral := stage.(*ast.ObjectLiteral); isLiteral {
		return "literal-output", nil
	}
	return l.inner.InvokeStage(stage, input, e, loc)
}

func (l *literalAwareInvoker) EvaluateArg(node ast.Node, e *env.Environment) (interface{}, error) {
	return l.inner.EvaluateArg(node, e)
}

func TestRunPipelineExceedsRetryLimit(t *testing.T) {
	t.Parallel()
	inv := &infiniteRetryInvoker{}
	r := New(inv)
	spec := &ast.WithClause{Pipeline: []ast.PipeStageSpec{{Stage: ref("loopy")}}}

	_, err := r.RunPipeline(spec, func() (interface{}, error) { return "seed", nil },
		env.NewRoot(env.Options{}), ast.SourceLocation{})

	require.Error(t, err)
	assert.True(t, errs.Is(err, errs.KindRetryLimitExceeded))
}

type infiniteRetryInvoker struct{}

func (infiniteRetryInvoker) InvokeStage(stage ast.Node, input interface{}, e *env.Environment, loc ast.SourceLocation) (interface{}, error) {
	return map[string]interface{}{"retry": true, "hint": "again"}, nil
}

func (infiniteRetryInvoker) EvaluateArg(node ast.Node, e *env.Environment) (interface{}, error) {
	return nil, nil
}

func TestCheckNeedsFailsOnEmptyFile(t *testing.T) {
	t.Parallel()
	inv := &fakeInvoker{outputs: map[string][]interface{}{}, evalArg: func(node ast.Node, e *env.Environment) (interface{}, error) {
		return "", nil
	}}
	r := New(inv)
	spec := &ast.WithClause{Needs: &ast.NeedsClause{File: ref("path")}}

	_, err := r.RunPipeline(spec, func() (interface{}, error) { return "x", nil },
		env.NewRoot(env.Options{}), ast.SourceLocation{})
	require.Error(t, err)
	assert.True(t, errs.Is(err, errs.KindPipelineStageFailure))
}

func TestCheckNeedsPassesWhenFileTruthy(t *testing.T) {
	t.Parallel()
	inv := &fakeInvoker{outputs: map[string][]interface{}{}, evalArg: func(node ast.Node, e *env.Environment) (interface{}, error) {
		return "/tmp/x", nil
	}}
	r := New(inv)
	spec := &ast.WithClause{Needs: &ast.NeedsClause{File: ref("path")}}

	out, err := r.RunPipeline(spec, func() (interface{}, error) { return "x", nil },
		env.NewRoot(env.Options{}), ast.SourceLocation{})
	require.NoError(t, err)
	assert.Equal(t, "x", out)
}

func TestBindPipelineContextSetsPAndMx(t *testing.T) {
	t.Parallel()
	e := env.NewRoot(env.Options{})
	bindPipelineContext(e, 1, "in", 2, "hint-text", []retryRecord{{Stage: 0, Hint: "h", Attempt: 1}})

	p, ok := e.GetVariable("p")
	require.True(t, ok)
	pm := p.Value.(map[string]interface{})
	assert.Equal(t, "in", pm["input"])
	assert.Equal(t, 1, pm["stage"])
	assert.Equal(t, 2, pm["try"])

	mx, ok := e.GetVariable("mx")
	require.True(t, ok)
	mxm := mx.Value.(map[string]interface{})
	assert.Equal(t, "hint-text", mxm["hint"])
	assert.Equal(t, 2, mxm["attempt"])
}

func TestIsRetryable(t *testing.T) {
	t.Parallel()
	assert.True(t, isRetryable(&ast.ExecInvocation{}))
	assert.True(t, isRetryable(&ast.VariableReference{}))
	assert.False(t, isRetryable(&ast.ObjectLiteral{}))
}

func TestRetryRequestUnwrapsStructured(t *testing.T) {
	t.Parallel()
	hint, ok := retryRequest(&value.Structured{Data: map[string]interface{}{"retry": true, "hint": "h"}})
	assert.True(t, ok)
	assert.Equal(t, "h", hint)

	_, ok = retryRequest("plain string")
	assert.False(t, ok)

	_, ok = retryRequest(map[string]interface{}{"retry": false})
	assert.False(t, ok)
}
