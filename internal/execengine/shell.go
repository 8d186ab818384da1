package execengine

import (
	"strings"

	"github.com/mlld-lang/mlld/internal/ast"
	"github.com/mlld-lang/mlld/internal/env"
	"github.com/mlld-lang/mlld/internal/errs"
	"github.com/mlld-lang/mlld/internal/security"
	"github.com/mlld-lang/mlld/internal/value"
)

// commandOpLabels builds the op:cmd:<verb> label chain (§4.7) a policy
// rule or guard matches against: the bare "op:cmd" label plus one
// narrowed by the command's first whitespace-delimited token, so a rule
// on "op:cmd:rm" targets `rm` invocations without matching every shell
// command. No label goes past the verb, so a pattern with a further
// segment, such as "op:cmd:rm:*", matches none of these labels.
func commandOpLabels(command string) []string {
	labels := []string{"op:cmd"}
	verb := strings.Fields(command)
	if len(verb) > 0 {
		labels = append(labels, "op:cmd:"+verb[0])
	}
	return labels
}

// runShell dispatches a rendered command string to the injected
// CommandExecutor (§6.3), the way the teacher's decorators never touch
// os/exec directly but go through ctx.Executor. The operation is checked
// against the environment's active policy (§4.7) before the executor
// ever runs.
func (g *Engine) runShell(command string, e *env.Environment, loc ast.SourceLocation) (interface{}, error) {
	opCtx := security.OperationContext{Type: "cmd", OpLabels: commandOpLabels(command)}
	e.PushOperation(opCtx)
	defer e.PopOperation()
	if err := e.CheckPolicy(loc, opCtx); err != nil {
		return nil, err
	}

	executor := e.CommandExecutor()
	if executor == nil {
		return nil, errs.New(errs.KindCommandExecution, loc, "no command executor configured")
	}
	res, err := executor.ExecuteCommand(command, env.CommandOptions{
		Cwd:           e.PathContext().ExecutionDir,
		DirectiveType: "run",
	})
	if err != nil {
		return nil, errs.Wrap(errs.KindCommandExecution, loc, err, "command failed: %s", command)
	}
	if res.ExitCode != 0 {
		return nil, errs.New(errs.KindCommandExecution, loc,
			"command exited %d: %s\n%s", res.ExitCode, command, res.Stderr)
	}
	return res.Stdout, nil
}

// invokeCode renders the code body, resolves the per-language shadow
// environment (the captured definition-time callables, falling back to
// the nearest frame of the calling env that has callables for the
// language), and dispatches to the injected CodeExecutor.
func (g *Engine) invokeCode(fnName string, def *value.ExecutableDef, capturedShadow map[string]map[string]*value.ExecutableDef, e *env.Environment, loc ast.SourceLocation) (interface{}, error) {
	body, err := g.renderCommandTemplate(def.CodeTemplate, e)
	if err != nil {
		return nil, err
	}

	opCtx := security.OperationContext{Type: "code", Subtype: string(def.CodeLanguage), OpLabels: []string{"op:code", "op:code:" + string(def.CodeLanguage)}}
	e.PushOperation(opCtx)
	defer e.PopOperation()
	if err := e.CheckPolicy(loc, opCtx); err != nil {
		return nil, err
	}

	executor := e.CodeExecutor()
	if executor == nil {
		return nil, errs.New(errs.KindCodeExecution, loc, "no code executor configured")
	}

	params := map[string]interface{}{}
	for _, name := range def.ParamNames {
		if v, ok := e.GetVariable(name); ok {
			params[name] = v.Value
		}
	}

	shadow := capturedShadow[string(def.CodeLanguage)]
	if shadow == nil {
		shadow = def.CapturedShadowEnvs[def.CodeLanguage]
	}
	if shadow == nil {
		for f := e; f != nil; f = f.Parent() {
			if f.HasShadowEnvs(def.CodeLanguage) {
				shadow = f.ShadowEnv(def.CodeLanguage)
				break
			}
		}
	}

	result, err := executor.ExecuteCode(body, def.CodeLanguage, params, env.CodeOptions{
		ShadowEnv: shadow,
		Cwd:       e.PathContext().ExecutionDir,
	})
	if err != nil {
		return nil, errs.Wrap(errs.KindCodeExecution, loc, err, "code executable %q failed", fnName)
	}
	return result, nil
}
