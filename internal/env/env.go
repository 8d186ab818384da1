// Package env implements spec.md §3.5 and §4.2: the Environment frame —
// variable storage, parent/child scoping, the effect handler, shadow
// environments, import bindings, and the security/policy hooks C4–C7
// plug into.
//
// Grounded in the teacher's runtime/execution/context.Ctx (the
// environment-snapshot + IO-stream + UI-config bundle passed through
// every decorator call) and runtime/vault.Vault's scope-trie lookup
// model (current → parent → root, with isolation at module/import
// boundaries) — generalized from Vault's "everything is a secret, scope
// is a pathStack trie" to spec.md's richer named-variable model.
package env

import (
	"fmt"
	"io"
	"sync"

	"github.com/mlld-lang/mlld/internal/ast"
	"github.com/mlld-lang/mlld/internal/debug"
	"github.com/mlld-lang/mlld/internal/effect"
	"github.com/mlld-lang/mlld/internal/errs"
	"github.com/mlld-lang/mlld/internal/security"
	"github.com/mlld-lang/mlld/internal/value"
)

// reservedNames may never be defined as user variables (§4.2).
var reservedNames = map[string]bool{
	"now": true, "debug": true, "input": true, "base": true,
	"p": true, "mx": true, "ctx": true,
}

// PathContext locates the document and process on disk (§3.5).
type PathContext struct {
	ProjectRoot       string
	FileDirectory     string
	ExecutionDir      string
	InvocationDir     string
	CurrentFilePath   string
}

// ImportBinding records where an imported name came from, for collision
// detection (§3.5, §4.6.6).
type ImportBinding struct {
	Source            string
	DirectiveLocation ast.SourceLocation
}

// CommandExecutor is the shell executor contract (§6.3), injected so
// internal/env never imports internal/shell directly (avoids a cycle
// with internal/execengine, which owns the actual call sites).
type CommandExecutor interface {
	ExecuteCommand(command string, opts CommandOptions) (CommandResultData, error)
}

// CodeExecutor is the JS/Node/Python executor contract (§6.3).
type CodeExecutor interface {
	ExecuteCode(code string, language value.Language, params map[string]interface{}, opts CodeOptions) (interface{}, error)
}

// CommandOptions mirrors §6.3's executeCommand options.
type CommandOptions struct {
	Env           map[string]string
	Cwd           string
	Stdin         io.Reader
	Stream        bool
	DirectiveType string
	Timeout       int64 // milliseconds; 0 = no timeout
}

// CodeOptions mirrors §6.3's executeCode options.
type CodeOptions struct {
	ShadowEnv map[string]*value.ExecutableDef
	Cwd       string
	Timeout   int64
}

// CommandResultData is what a shell invocation returns.
type CommandResultData struct {
	Stdout   string
	Stderr   string
	ExitCode int
}

// Environment is one scoping frame (§3.5).
type Environment struct {
	mu sync.RWMutex

	parent *Environment

	variables      map[string]*value.Variable
	varOrder       []string
	importBindings map[string]ImportBinding
	exportManifest map[string]bool
	autoExport     bool

	shadowEnvs map[value.Language]map[string]*value.ExecutableDef

	effectHandler effect.Handler

	pathCtx PathContext

	isImporting bool

	opStack []security.OperationContext

	policy        *security.Policy
	guardRunner   security.GuardRunner
	commandExec   CommandExecutor
	codeExec      CodeExecutor

	debug *debug.Sink
}

// Options configures a freshly rooted Environment.
type Options struct {
	PathContext   PathContext
	EffectHandler effect.Handler
	Policy        *security.Policy
	GuardRunner   security.GuardRunner
	CommandExec   CommandExecutor
	CodeExec      CodeExecutor
	Debug         *debug.Sink
}

// NewRoot creates the root Environment for a document run (§3.5 lifecycle).
func NewRoot(opts Options) *Environment {
	return &Environment{
		variables:      make(map[string]*value.Variable),
		importBindings: make(map[string]ImportBinding),
		exportManifest: make(map[string]bool),
		shadowEnvs:     make(map[value.Language]map[string]*value.ExecutableDef),
		effectHandler:  opts.EffectHandler,
		pathCtx:        opts.PathContext,
		policy:         opts.Policy,
		guardRunner:    opts.GuardRunner,
		commandExec:    opts.CommandExec,
		codeExec:       opts.CodeExec,
		debug:          opts.Debug,
	}
}

// CreateChild creates a lexically-scoped child frame (§3.5, §4.2).
// dir overrides ExecutionDir for the child when non-empty.
func (e *Environment) CreateChild(dir string) *Environment {
	pc := e.pathCtx
	if dir != "" {
		pc.ExecutionDir = dir
	}
	child := &Environment{
		parent:         e,
		variables:      make(map[string]*value.Variable),
		importBindings: make(map[string]ImportBinding),
		exportManifest: make(map[string]bool),
		shadowEnvs:     make(map[value.Language]map[string]*value.ExecutableDef),
		effectHandler:  e.effectHandler,
		pathCtx:        pc,
		policy:         e.policy,
		guardRunner:    e.guardRunner,
		commandExec:    e.commandExec,
		codeExec:       e.codeExec,
		debug:          e.debug,
	}
	return child
}

// Parent returns the lexical parent, or nil at the root.
func (e *Environment) Parent() *Environment { return e.parent }

// PathContext returns this frame's path context.
func (e *Environment) PathContext() PathContext { return e.pathCtx }

// Debug returns the debug sink (possibly nil).
func (e *Environment) Debug() *debug.Sink { return e.debug }

// Policy returns the active security policy (possibly nil).
func (e *Environment) Policy() *security.Policy { return e.policy }

// GuardRunner returns the injected guard evaluator.
func (e *Environment) GuardRunner() security.GuardRunner { return e.guardRunner }

// CommandExecutor / CodeExecutor expose the injected executors (§6.3).
func (e *Environment) CommandExecutor() CommandExecutor { return e.commandExec }
func (e *Environment) CodeExecutor() CodeExecutor       { return e.codeExec }

// SetImporting toggles side-effect suppression for module evaluation (§4.6).
func (e *Environment) SetImporting(v bool) { e.isImporting = v }

// IsImporting reports whether this frame suppresses side effects.
func (e *Environment) IsImporting() bool { return e.isImporting }

// SetVariable defines name in this frame. Reserved names are rejected.
func (e *Environment) SetVariable(name string, v *value.Variable) error {
	if reservedNames[name] {
		return errs.New(errs.KindReservedName, v.Metadata.DefinedAt, "%q is a reserved name", name)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, exists := e.variables[name]; !exists {
		e.varOrder = append(e.varOrder, name)
	}
	e.variables[name] = v
	return nil
}

// SetSystemVariable binds one of the reserved ambient names (now, input,
// base, p, mx, ctx) directly, bypassing the user-facing reserved-name
// rejection in SetVariable. Only the evaluator/pipeline runtime calls
// this — user directives always go through SetVariable.
func (e *Environment) SetSystemVariable(name string, v *value.Variable) {
	v.Metadata.IsSystem = true
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, exists := e.variables[name]; !exists {
		e.varOrder = append(e.varOrder, name)
	}
	e.variables[name] = v
}

// SetParameterVariable binds a parameter, always shadowing any
// same-named variable in this frame without a conflict error (§4.4 step 2
// deliberately shadows; §3.2 "parameters shadow parent names deliberately").
func (e *Environment) SetParameterVariable(name string, v *value.Variable) {
	v.Metadata.IsParameter = true
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, exists := e.variables[name]; !exists {
		e.varOrder = append(e.varOrder, name)
	}
	e.variables[name] = v
}

// CheckParamConflict checks for a same-frame conflict before binding an
// /exe parameter name (§4.4 step 1): a name already bound in THIS frame
// (not an ancestor) is an ExecParameterConflict.
func (e *Environment) CheckParamConflict(loc ast.SourceLocation, name string) error {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if _, exists := e.variables[name]; exists {
		return errs.New(errs.KindExecParameterConflict, loc, "parameter %q conflicts with an existing variable in this scope", name)
	}
	return nil
}

// GetVariable resolves name by walking the parent chain from this frame to
// the root. The walk does not stop at import or invocation frames; a
// template executable sees its captured module scope because
// internal/execengine binds those names into the invocation frame itself.
func (e *Environment) GetVariable(name string) (*value.Variable, bool) {
	for f := e; f != nil; f = f.parent {
		f.mu.RLock()
		v, ok := f.variables[name]
		f.mu.RUnlock()
		if ok {
			return v, true
		}
	}
	return nil, false
}

// GetLocalVariable looks up name only in this frame.
func (e *Environment) GetLocalVariable(name string) (*value.Variable, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	v, ok := e.variables[name]
	return v, ok
}

// LocalNames returns the names defined directly in this frame, in
// definition order (used for legacy auto-export, §4.6.4).
func (e *Environment) LocalNames() []string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]string, len(e.varOrder))
	copy(out, e.varOrder)
	return out
}

// TrackImportedBinding records where name was imported from, failing with
// ImportNameConflict if already bound by a different import (§4.6.6).
func (e *Environment) TrackImportedBinding(name string, b ImportBinding) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if existing, ok := e.importBindings[name]; ok {
		return errs.New(errs.KindImportNameConflict, b.DirectiveLocation,
			"%q was already imported from %q at %v; cannot import again from %q",
			name, existing.Source, existing.DirectiveLocation, b.Source)
	}
	e.importBindings[name] = b
	return nil
}

// EnsureImportBindingAvailable is a read-only existence check used before
// performing a namespaced (`as`) import merge.
func (e *Environment) EnsureImportBindingAvailable(name string) bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	_, ok := e.importBindings[name]
	return !ok
}

// SetExport marks name (or "*") for export (§3.5, §4.6.4).
func (e *Environment) SetExport(name string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if name == "*" {
		e.autoExport = true
		return
	}
	e.exportManifest[name] = true
}

// ExportManifest returns the explicit export set and whether auto-export
// (empty manifest, or wildcard `/export { * }`) is in effect.
func (e *Environment) ExportManifest() (names map[string]bool, auto bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make(map[string]bool, len(e.exportManifest))
	for k := range e.exportManifest {
		out[k] = true
	}
	return out, e.autoExport || len(out) == 0
}

// SetShadowEnv registers name → def in language's shadow environment (§4.4 step 3).
func (e *Environment) SetShadowEnv(lang value.Language, name string, def *value.ExecutableDef) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.shadowEnvs[lang] == nil {
		e.shadowEnvs[lang] = make(map[string]*value.ExecutableDef)
	}
	e.shadowEnvs[lang][name] = def
}

// HasShadowEnvs reports whether lang has any registered shadow callables.
func (e *Environment) HasShadowEnvs(lang value.Language) bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.shadowEnvs[lang]) > 0
}

// ShadowEnv returns the shadow environment for lang (lexical: walks to the
// defining frame only if asked; callers needing "captured > dynamic
// current" per §4.4 step 3 should prefer the captured map on the
// ExecutableDef and fall back to this).
func (e *Environment) ShadowEnv(lang value.Language) map[string]*value.ExecutableDef {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make(map[string]*value.ExecutableDef, len(e.shadowEnvs[lang]))
	for k, v := range e.shadowEnvs[lang] {
		out[k] = v
	}
	return out
}

// CaptureAllShadowEnvs produces a deep snapshot of every language's shadow
// environment, for embedding into an executable/template Variable's
// CapturedModuleEnv at `/exe` definition time (§4.4 step 2).
func (e *Environment) CaptureAllShadowEnvs() map[value.Language]map[string]*value.ExecutableDef {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make(map[value.Language]map[string]*value.ExecutableDef, len(e.shadowEnvs))
	for lang, m := range e.shadowEnvs {
		inner := make(map[string]*value.ExecutableDef, len(m))
		for k, v := range m {
			inner[k] = v
		}
		out[lang] = inner
	}
	return out
}

// EmitEffect appends to the effect handler, unless this frame is
// currently importing (side-effect suppression, §4.6 step 3) or has no
// handler attached.
func (e *Environment) EmitEffect(stream effect.Stream, content string, loc ast.SourceLocation) {
	if e.isImporting || e.effectHandler == nil {
		return
	}
	e.effectHandler.Emit(effect.Effect{Stream: stream, Content: content, Loc: loc})
}

// EffectHandler exposes the raw handler (e.g. for pipeline streaming hookup).
func (e *Environment) EffectHandler() effect.Handler { return e.effectHandler }

// PushOperation pushes an operation context for the duration of one
// effectful call (§4.7); callers must Pop when done.
func (e *Environment) PushOperation(op security.OperationContext) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.opStack = append(e.opStack, op)
}

// PopOperation pops the most recent operation context.
func (e *Environment) PopOperation() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if len(e.opStack) > 0 {
		e.opStack = e.opStack[:len(e.opStack)-1]
	}
}

// CurrentOperation returns the innermost active operation context, if any.
func (e *Environment) CurrentOperation() (security.OperationContext, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if len(e.opStack) == 0 {
		return security.OperationContext{}, false
	}
	return e.opStack[len(e.opStack)-1], true
}

// MergeSecurityDescriptors unions labels/taint/sources across descs and
// keeps the strictest capability (§4.2).
func MergeSecurityDescriptors(descs ...*security.Descriptor) *security.Descriptor {
	return security.Merge(descs...)
}

// CheckPolicy evaluates opCtx against the active policy, returning a
// PolicyViolation error if denied, before any executor is invoked (§4.7).
func (e *Environment) CheckPolicy(loc ast.SourceLocation, opCtx security.OperationContext) error {
	if e.policy == nil {
		return nil
	}
	if err := e.policy.Evaluate(loc, opCtx); err != nil {
		if e.debug != nil {
			e.debug.Logf(debug.PhasePolicy, "denied: %v", err)
		}
		return err
	}
	return nil
}

// String renders a one-line summary, useful in debug traces.
func (e *Environment) String() string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return fmt.Sprintf("Environment{vars=%d, importing=%v}", len(e.variables), e.isImporting)
}
