// Package pipeline implements spec.md §4.5: condensed-pipe and
// with-clause pipeline threading, the retry engine, and inline effect
// stages.
//
// Grounded in the teacher's decorator composition model
// (runtime/execution/decorators' retry/when/parallel builtins wrapping
// an inner action and re-invoking it under controlled conditions) —
// generalized here from "decorators wrap a command" to "pipeline stages
// thread a value", with the teacher's retry decorator's attempt-count
// cap adapted into the with-clause's bounded retry loop.
//
// Retry-hint semantics (§4.5, §8.1's "@mx.hint is non-null only inside
// the body of a stage whose previous attempt requested retry", and the
// end-to-end scenario in §8.4.3) are under-specified enough in prose
// that this package records its exact interpretation here rather than
// guessing silently (see DESIGN.md's Open Question decisions too): a
// stage's result is inspected structurally for a retry request — an
// object shaped like {retry: true, hint: "..."}. When stage i (0-indexed,
// where stage 0 is the with-clause's own producer invocation and stages
// 1..n are the declared `pipeline: [...]` entries) emits such a request,
// the engine re-executes stage i's own producer — stage i-1, or stage i
// itself when i==0 — carrying the hint into that stage's next attempt
// only, then replays forward through i again with the fresh output.
// This is the only reading that makes the worked example in §8.4.3
// converge: @gate requests a retry, but it is @flaky (its producer) that
// must actually run again to produce a different value.
package pipeline

import (
	"fmt"

	"github.com/mlld-lang/mlld/internal/ast"
	"github.com/mlld-lang/mlld/internal/effect"
	"github.com/mlld-lang/mlld/internal/env"
	"github.com/mlld-lang/mlld/internal/errs"
	"github.com/mlld-lang/mlld/internal/value"
)

// MaxRetryAttempts is the hard cap on retry attempts for one pipeline
// stage (Open Question decision recorded in DESIGN.md: 20, matching the
// teacher's own retry decorator's documented sane-default ceiling).
const MaxRetryAttempts = 20

// StageInvoker is the subset of internal/evaluator.Evaluator that
// pipeline needs: invoking one stage node with an implicit input value,
// and evaluating a plain expression (stdin/needs-file templates).
type StageInvoker interface {
	InvokeStage(stage ast.Node, input interface{}, e *env.Environment, loc ast.SourceLocation) (interface{}, error)
	EvaluateArg(node ast.Node, e *env.Environment) (interface{}, error)
}

// Producer is the with-clause's own invocation, already bound to its
// arguments and captured scope; calling it re-runs the underlying
// executable from scratch (§4.5 "restores the stage's input" for stage 0).
// Declared as an alias so callers across package boundaries (evaluator's
// PipelineRunner interface) can pass a plain func literal without
// depending on this package's named type.
type Producer = func() (interface{}, error)

// Runner implements evaluator.PipelineRunner.
type Runner struct {
	eval StageInvoker
}

func New(eval StageInvoker) *Runner {
	return &Runner{eval: eval}
}

// retryRecord is one entry of the aggregate retry history exposed as
// `@p.retries.all` (§4.5).
type retryRecord struct {
	Stage   int
	Hint    string
	Attempt int
}

func (r retryRecord) toMap() map[string]interface{} {
	return map[string]interface{}{"stage": r.Stage, "hint": r.Hint, "attempt": r.Attempt}
}

// stage is one node in the unified [producer, ...pipeline] chain.
type stage struct {
	invoke        func(input interface{}) (interface{}, error)
	retryable     bool
	inlineEffects []ast.InlineEffect
}

// RunPipeline threads a with-clause's producer through its declared
// pipeline stages (§4.5). produce is called for stage 0 and replayed
// verbatim whenever a later stage requests a retry targeting it.
func (r *Runner) RunPipeline(spec *ast.WithClause, produce Producer, e *env.Environment, loc ast.SourceLocation) (interface{}, error) {
	if spec == nil {
		return produce()
	}

	if spec.Needs != nil {
		if err := r.checkNeeds(spec.Needs, e); err != nil {
			return nil, err
		}
	}

	stages := make([]stage, 0, len(spec.Pipeline)+1)
	stages = append(stages, stage{
		invoke:    func(interface{}) (interface{}, error) { return produce() },
		retryable: true,
	})
	for _, s := range spec.Pipeline {
		st := s
		stages = append(stages, stage{
			invoke: func(input interface{}) (interface{}, error) {
				return r.eval.InvokeStage(st.Stage, input, e, loc)
			},
			retryable:     isRetryable(st.Stage),
			inlineEffects: st.InlineEffects,
		})
	}

	return r.run(stages, e, loc)
}

// checkNeeds evaluates a `needs: { file: ... }` precondition and fails
// fast (before any stage runs) if the referenced file expression is
// falsy (§4.5).
func (r *Runner) checkNeeds(n *ast.NeedsClause, e *env.Environment) error {
	if n.File == nil {
		return nil
	}
	v, err := r.eval.EvaluateArg(n.File, e)
	if err != nil {
		return err
	}
	if v == nil || v == "" {
		return errs.New(errs.KindPipelineStageFailure, ast.SourceLocation{}, "needs precondition failed: file not available")
	}
	return nil
}

// run drives the unified stage chain, implementing the retry-hint cascade
// documented in the package comment.
func (r *Runner) run(stages []stage, e *env.Environment, loc ast.SourceLocation) (interface{}, error) {
	attempts := make([]int, len(stages))
	outputs := make([]interface{}, len(stages))
	pendingHint := make([]string, len(stages))
	var history []retryRecord

	var runFrom func(start int) (interface{}, error)
	runFrom = func(start int) (interface{}, error) {
		var input interface{}
		if start > 0 {
			input = outputs[start-1]
		}
		for i := start; i < len(stages); i++ {
			st := stages[i]
			attempts[i]++
			if attempts[i] > MaxRetryAttempts {
				return nil, errs.New(errs.KindRetryLimitExceeded, loc,
					"pipeline stage %d exceeded %d retry attempts", i, MaxRetryAttempts)
			}

			hint := pendingHint[i]
			pendingHint[i] = ""
			// §4.5: inline effects see @mx.hint as null; only the stage
			// body sees the hint.
			bindPipelineContext(e, i, input, attempts[i], "", history)
			r.runInlineEffects(st.inlineEffects, input, e, loc)
			bindPipelineContext(e, i, input, attempts[i], hint, history)

			out, err := st.invoke(input)
			if err != nil {
				return nil, err
			}

			if reqHint, isRetry := retryRequest(out); isRetry {
				history = append(history, retryRecord{Stage: i, Hint: reqHint, Attempt: attempts[i]})
				redo := i
				if i > 0 {
					redo = i - 1
				}
				if !stages[redo].retryable {
					return nil, errs.New(errs.KindPipelineStageFailure, loc,
						"stage %d requested a retry but its producer (stage %d) is not retryable", i, redo)
				}
				pendingHint[redo] = reqHint
				return runFrom(redo)
			}

			outputs[i] = out
			input = out
		}
		return outputs[len(stages)-1], nil
	}

	return runFrom(0)
}

// bindPipelineContext sets the ambient `@p` (immediate input + stage
// index + retry history) and `@mx` (retry hint + attempt + history)
// variables for the stage about to execute (§4.5).
func bindPipelineContext(e *env.Environment, stageIdx int, input interface{}, attempt int, hint string, history []retryRecord) {
	historyMaps := make([]interface{}, len(history))
	for i, h := range history {
		historyMaps[i] = h.toMap()
	}

	var hintVal interface{}
	if hint != "" {
		hintVal = hint
	}

	e.SetSystemVariable("p", &value.Variable{
		Name: "p", Kind: value.KindObject,
		Value: map[string]interface{}{
			"input": input,
			"stage": stageIdx,
			"try":   attempt,
			"retries": map[string]interface{}{
				"all": historyMaps,
			},
		},
	})
	e.SetSystemVariable("mx", &value.Variable{
		Name: "mx", Kind: value.KindObject,
		Value: map[string]interface{}{
			"hint":    hintVal,
			"attempt": attempt,
			"history": historyMaps,
		},
	})
}

// retryRequest reports whether out is a retry-directive object
// ({retry: true, hint?: "..."}), unwrapping a *value.Structured wrapper
// first since a code stage's result may arrive either way.
func retryRequest(out interface{}) (hint string, ok bool) {
	m := out
	if s, isStruct := out.(*value.Structured); isStruct && s != nil {
		m = s.Data
	}
	obj, isObj := m.(map[string]interface{})
	if !isObj {
		return "", false
	}
	retry, _ := obj["retry"].(bool)
	if !retry {
		return "", false
	}
	h, _ := obj["hint"].(string)
	return h, true
}

// isRetryable reports whether stage's underlying reference carries a
// traceable source (§4.5): a named invocation or bare reference is
// retryable, an anonymous literal is not.
func isRetryable(stage ast.Node) bool {
	switch stage.(type) {
	case *ast.ExecInvocation, *ast.VariableReference:
		return true
	default:
		return false
	}
}

// runInlineEffects fires `| log`, `| output`, `| show` attached to a
// stage, evaluating each effect's args against the stage's current
// input value (§4.5).
func (r *Runner) runInlineEffects(effects []ast.InlineEffect, input interface{}, e *env.Environment, loc ast.SourceLocation) {
	for _, ie := range effects {
		text := stringifyArgs(r, ie.Args, e, loc, input)
		switch ie.Kind {
		case "log":
			e.EmitEffect(effect.StreamStderr, text, loc)
		case "output":
			e.EmitEffect(effect.StreamStdout, text, loc)
		case "show":
			e.EmitEffect(effect.StreamDoc, text, loc)
		}
	}
}

func stringifyArgs(r *Runner, args []ast.Node, e *env.Environment, loc ast.SourceLocation, input interface{}) string {
	if len(args) == 0 {
		return stringifyValue(input)
	}
	v, err := r.eval.EvaluateArg(args[0], e)
	if err != nil {
		return ""
	}
	return stringifyValue(v)
}

func stringifyValue(v interface{}) string {
	switch t := v.(type) {
	case string:
		return t
	case *value.Structured:
		if t == nil {
			return ""
		}
		return t.Text
	case nil:
		return ""
	default:
		return fmt.Sprintf("%v", t)
	}
}
