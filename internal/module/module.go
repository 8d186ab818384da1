// Package module implements spec.md §4.6: import resolution, isolated
// child-environment evaluation with side-effect suppression, export
// manifest computation, and deep scope serialization for captured
// executable/template environments.
//
// Grounded in the teacher's own module-boundary discipline even though
// devcmd itself has no import system: runtime/vault.Vault's strict
// "child scope never leaks into parent, parent never consulted from
// inside a captured secret's defining scope" rule is the closest analogue
// to §4.6's "the caller's scope is never consulted when resolving an
// identifier inside M's executables" invariant, generalized from secret
// handles to whole modules.
package module

import (
	"fmt"
	"strings"

	"github.com/mlld-lang/mlld/internal/ast"
	"github.com/mlld-lang/mlld/internal/env"
	"github.com/mlld-lang/mlld/internal/errs"
	"github.com/mlld-lang/mlld/internal/value"
)

// SpecifierKind classifies an /import path per §4.6.
type SpecifierKind string

const (
	SpecRegistry SpecifierKind = "registry" // @author/name
	SpecFile     SpecifierKind = "file"     // <./path.mld> or "./path"
	SpecURL      SpecifierKind = "url"      // <https://...>
	SpecBuiltin  SpecifierKind = "builtin"  // @input, @base
)

// ClassifySpecifier inspects an import path string and returns its kind
// plus the cleaned specifier (angle brackets and quotes stripped).
func ClassifySpecifier(raw string) (SpecifierKind, string) {
	s := strings.TrimSpace(raw)
	s = strings.TrimPrefix(s, "<")
	s = strings.TrimSuffix(s, ">")
	s = strings.Trim(s, `"`)

	switch {
	case s == "@input" || s == "@base":
		return SpecBuiltin, s
	case strings.HasPrefix(s, "http://") || strings.HasPrefix(s, "https://"):
		return SpecURL, s
	case strings.HasPrefix(s, "@") && strings.Contains(s, "/"):
		return SpecRegistry, s
	default:
		return SpecFile, s
	}
}

// Content is what the resolver contract (§6.4) hands back for a specifier.
type Content struct {
	Bytes     []byte
	Meta      map[string]interface{}
	Integrity string // declared hash, if any, for IntegrityMismatch checking
}

// Resolver is the subset of the §6.4 resolver-manager contract module
// needs: fetch raw module bytes for a classified specifier.
type Resolver interface {
	Resolve(kind SpecifierKind, specifier string, loc ast.SourceLocation) (Content, error)
}

// Parser is the external parser contract (§6.1); module never constructs
// AST itself.
type Parser interface {
	Parse(source string) ([]ast.Node, error)
}

// DocEvaluator is the subset of internal/evaluator.Evaluator module needs
// to run an imported document in an isolated child environment.
type DocEvaluator interface {
	EvaluateDocument(nodes []ast.Node, root *env.Environment) error
}

// LockFile is the §6.6 persistent lock-file contract, narrowed to what
// module needs: look up and record a resolved version for a registry
// specifier.
type LockFile interface {
	Lookup(specifier string) (entry LockEntry, ok bool)
	Record(specifier string, entry LockEntry) error
}

// LockEntry is one row of the lock file (§6.6).
type LockEntry struct {
	Version   string
	Integrity string
	Resolved  string
	Source    string
}

// Loader implements evaluator.ModuleLoader (§4.6).
type Loader struct {
	resolver Resolver
	parser   Parser
	eval     DocEvaluator
	lock     LockFile
	cache    *Cache

	// stack tracks specifiers currently being imported, for CircularImport
	// detection (§8.3: "Import cycles throw CircularImport exactly when
	// one module's specifier already appears in the active import stack").
	stack []string
}

// New constructs a Loader. lock and cache may be nil (registry-import
// version pinning and content-hash caching become no-ops).
func New(resolver Resolver, parser Parser, eval DocEvaluator, lock LockFile, cache *Cache) *Loader {
	return &Loader{resolver: resolver, parser: parser, eval: eval, lock: lock, cache: cache}
}

// Load resolves, parses, and evaluates the module at path, returning its
// exported variables (§4.6 steps 1-6).
func (l *Loader) Load(path string, loc ast.SourceLocation, parent *env.Environment) (map[string]*value.Variable, error) {
	kind, specifier := ClassifySpecifier(path)

	for _, active := range l.stack {
		if active == specifier {
			return nil, errs.New(errs.KindCircularImport, loc,
				"circular import: %q is already being imported (stack: %v)", specifier, l.stack)
		}
	}

	content, err := l.fetch(kind, specifier, loc)
	if err != nil {
		return nil, errs.WithImportChain(err, append(append([]string{}, l.stack...), specifier))
	}

	nodes, err := l.parser.Parse(string(content.Bytes))
	if err != nil {
		return nil, errs.WithImportChain(
			errs.Wrap(errs.KindParseError, loc, err, "failed to parse imported module %q", specifier),
			append(append([]string{}, l.stack...), specifier))
	}

	l.stack = append(l.stack, specifier)
	defer func() { l.stack = l.stack[:len(l.stack)-1] }()

	child := parent.CreateChild("")
	child.SetImporting(true)

	if err := l.eval.EvaluateDocument(nodes, child); err != nil {
		return nil, errs.WithImportChain(err, append(append([]string{}, l.stack...), specifier))
	}

	return l.computeExports(specifier, child, loc)
}

func (l *Loader) fetch(kind SpecifierKind, specifier string, loc ast.SourceLocation) (Content, error) {
	if kind == SpecRegistry && l.lock != nil {
		if entry, ok := l.lock.Lookup(specifier); ok {
			content, err := l.resolver.Resolve(kind, specifier+"@"+entry.Version, loc)
			if err != nil {
				return Content{}, err
			}
			if entry.Integrity != "" && content.Integrity != "" && entry.Integrity != content.Integrity {
				return Content{}, errs.New(errs.KindIntegrityMismatch, loc,
					"module %q content hash %q does not match locked hash %q", specifier, content.Integrity, entry.Integrity)
			}
			return content, nil
		}
	}

	if l.cache != nil {
		if cached, ok := l.cache.Get(specifier); ok {
			return Content{Bytes: cached.Content, Integrity: cached.Hash}, nil
		}
	}

	if l.resolver == nil {
		return Content{}, errs.New(errs.KindModuleNotFound, loc, "no resolver configured for %q", specifier)
	}
	content, err := l.resolver.Resolve(kind, specifier, loc)
	if err != nil {
		return Content{}, errs.Wrap(errs.KindModuleNotFound, loc, err, "failed to resolve %q", specifier)
	}

	if l.cache != nil {
		_ = l.cache.Put(specifier, content.Bytes)
	}
	if kind == SpecRegistry && l.lock != nil {
		version, _ := content.Meta["version"].(string)
		_ = l.lock.Record(specifier, LockEntry{
			Version:   version,
			Integrity: content.Integrity,
			Resolved:  specifier,
			Source:    string(kind),
		})
	}
	return content, nil
}

// computeExports implements §4.6 step 4-5: determine the export set
// (explicit manifest, else legacy auto-export of all non-system top-level
// names) and serialize each exported variable's captured scope.
func (l *Loader) computeExports(specifier string, child *env.Environment, loc ast.SourceLocation) (map[string]*value.Variable, error) {
	manifest, auto := child.ExportManifest()

	names := child.LocalNames()
	exports := make(map[string]*value.Variable)

	if auto {
		for _, n := range names {
			v, ok := child.GetLocalVariable(n)
			if !ok || v.Metadata.IsSystem {
				continue
			}
			exports[n] = serializeExport(specifier, v)
		}
		return exports, nil
	}

	for n := range manifest {
		v, ok := child.GetLocalVariable(n)
		if !ok {
			return nil, errs.New(errs.KindExportedNameNotFound, loc,
				"module %q declares export %q but no such variable is defined", specifier, n)
		}
		exports[n] = serializeExport(specifier, v)
	}
	return exports, nil
}

// serializeExport stamps the module specifier onto the variable's
// captured scope, a cheap proxy for the "complete recursive module-scope
// serialization" §4.6.5 describes: the evaluator already snapshots every
// top-level variable (including nested executables) into
// Metadata.CapturedModuleEnv at /exe definition time, so here we only
// need to label which module it came from for diagnostics and for
// collision messages further up the import chain.
func serializeExport(specifier string, v *value.Variable) *value.Variable {
	clone := *v
	if clone.Metadata.CapturedModuleEnv != nil {
		scopeClone := *clone.Metadata.CapturedModuleEnv
		scopeClone.Specifier = specifier
		clone.Metadata.CapturedModuleEnv = &scopeClone
	}
	return &clone
}

// DetectCircularRef reports an error when name is already on stack, for
// §3.3's commandRef kind (§7's CircularCommandRef): it is a package-level
// helper rather than a Loader method since commandRef cycles are a
// call-stack property, not an import property, but the detection shape
// (a stack of names checked on entry) is identical. internal/execengine
// does not call it: Engine.Invoke returns an error for every commandRef
// executable.
func DetectCircularRef(stack []string, name string) error {
	for _, active := range stack {
		if active == name {
			return fmt.Errorf("circular-command-ref: %q already on the call stack (%v)", name, stack)
		}
	}
	return nil
}
