// Package interp is the top-level wiring point spec.md's PACKAGE LAYOUT
// calls for: `Interpret(doc, opts) (Result, error)`, assembling the
// evaluator (C1), environment (C2), executable engine (C4), pipeline
// (C5), module loader (C6), and security policy (C7) into one call a
// host program (cmd/mlld, or any embedder) can make.
//
// Grounded in the teacher's own composition root (runtime/cli's command
// building a fully-wired NodeEvaluator + LocalSession + decorator
// registry before running a plan) — generalized here from "build one
// devcmd plan executor" to "build one mlld document interpreter".
package interp

import (
	"fmt"

	"github.com/mlld-lang/mlld/internal/ast"
	"github.com/mlld-lang/mlld/internal/debug"
	"github.com/mlld-lang/mlld/internal/effect"
	"github.com/mlld-lang/mlld/internal/env"
	"github.com/mlld-lang/mlld/internal/evaluator"
	"github.com/mlld-lang/mlld/internal/fsys"
	"github.com/mlld-lang/mlld/internal/module"
	"github.com/mlld-lang/mlld/internal/pipeline"
	"github.com/mlld-lang/mlld/internal/resolver"
	"github.com/mlld-lang/mlld/internal/security"
	"github.com/mlld-lang/mlld/internal/shell"
)

// Options configures one interpreter run (§3.5 lifecycle, §6 external
// interfaces).
type Options struct {
	PathContext env.PathContext

	// Parser is the external §6.1 parser contract, needed only if the
	// document (or an imported module) must be parsed from raw source;
	// when Doc is already a parsed node slice and no /import is reached,
	// Parser may be nil.
	Parser module.Parser

	// ModuleResolver supplies the §6.4 resolver backends used for
	// `/import` specifiers. When nil, a *resolver.Manager wired with the
	// built-in file/http/input/base/registry resolvers is installed.
	// Resolver-kind executables are wired to it only when it is a
	// *resolver.Manager; any other ModuleResolver leaves them unwired.
	ModuleResolver module.Resolver

	// LockFilePath, CacheDir locate the persistent §6.6 state; both may be
	// "" to run with an in-memory-only lock/cache (fine for one-shot CLI
	// invocations with no registry imports).
	LockFilePath string
	CacheDir     string

	// SigDir locates the §6.6 `.sig` directory `/sign`/`/verify` persist
	// signature artifacts under. "" keeps signatures in-memory only,
	// sufficient for one-shot runs that sign and verify within the same
	// document.
	SigDir string

	Policy *security.Policy

	CommandExecutor env.CommandExecutor
	CodeExecutor    env.CodeExecutor

	FuzzyFileMatch bool

	Debug       *debug.Sink
	LiveWriters map[effect.Stream]func(string)

	// InputText backs the `@input` builtin resolver specifier (§6.4).
	InputText string
}

// Result is what one document interpretation produces (§3.6's assembled
// effect log plus the root environment, for a host that wants to inspect
// top-level bindings afterward).
type Result struct {
	Output string
	Root   *env.Environment
}

// Interpret runs doc to completion against a freshly built Environment
// and wiring, per §3.5's lifecycle: parse (already done by the caller) →
// evaluate → finalize effects.
func Interpret(doc []ast.Node, opts Options) (Result, error) {
	handler := effect.NewBuffered(opts.LiveWriters)

	cmdExec := opts.CommandExecutor
	if cmdExec == nil {
		cmdExec = shell.NewCommandExecutor()
	}
	codeExec := opts.CodeExecutor
	if codeExec == nil {
		codeExec = shell.NewCodeExecutor()
	}

	ev := evaluator.New()

	root := env.NewRoot(env.Options{
		PathContext:   opts.PathContext,
		EffectHandler: handler,
		Policy:        opts.Policy,
		GuardRunner:   ev.GuardRunner(),
		CommandExec:   cmdExec,
		CodeExec:      codeExec,
		Debug:         opts.Debug,
	})

	pl := pipeline.New(ev)
	ev.SetPipeline(pl)

	contentLoader := fsys.NewContentLoader(fsys.OSFileSystem{}, opts.FuzzyFileMatch)
	ev.SetContentLoader(contentLoader)
	ev.Engine().SetSectionLoader(contentLoader)

	if opts.SigDir != "" {
		ev.SetSignatureStore(security.NewStore(opts.SigDir))
	}

	res := opts.ModuleResolver
	if res == nil {
		res = resolver.NewManager(resolver.Context{
			BaseDir:   opts.PathContext.ProjectRoot,
			InputText: opts.InputText,
		}, resolver.InputResolver{}, resolver.BaseResolver{}, resolver.FileResolver{BaseDir: opts.PathContext.FileDirectory}, resolver.HTTPResolver{}, resolver.RegistryResolver{})
	}
	if mgr, ok := res.(*resolver.Manager); ok {
		ev.Engine().SetResolver(mgr)
	}

	var lock module.LockFile
	if opts.LockFilePath != "" {
		lf, err := module.LoadLockFile(opts.LockFilePath)
		if err != nil {
			return Result{}, fmt.Errorf("interp: %w", err)
		}
		lock = lf
	}
	cache, err := module.NewCache(opts.CacheDir)
	if err != nil {
		return Result{}, fmt.Errorf("interp: %w", err)
	}

	loader := module.New(res, opts.Parser, ev, lock, cache)
	ev.SetModule(loader)

	if err := ev.EvaluateDocument(doc, root); err != nil {
		return Result{}, err
	}

	output, err := handler.Finalize()
	if err != nil {
		return Result{}, fmt.Errorf("interp: finalize effects: %w", err)
	}
	return Result{Output: output, Root: root}, nil
}
