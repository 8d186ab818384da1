// Package resolver implements spec.md §6.4: the pluggable resolver
// contract (canResolve/resolve) and a priority-ordered Manager routing
// `@author/name`, `@base/...`, `@input`, `http(s)://`, and local-path
// specifiers to the right backend.
//
// Grounded in the teacher's runtime/vault design of pluggable named
// backends behind one narrow interface (vault.Store's Get/Put contract,
// selected by a registered-by-prefix scheme lookup) — generalized here
// from secret-store backends to module-content backends.
package resolver

import (
	"fmt"
	"io"
	"net/http"
	"os"
	"sort"
	"time"

	"github.com/mlld-lang/mlld/internal/ast"
	"github.com/mlld-lang/mlld/internal/errs"
	"github.com/mlld-lang/mlld/internal/module"
)

// Context carries resolution-time parameters a resolver may need (§6.4
// resolve(spec, ctx)).
type Context struct {
	BaseDir   string
	InputText string
}

// Resolver is one pluggable backend (§6.4).
type Resolver interface {
	Name() string
	CanResolve(kind module.SpecifierKind, specifier string) bool
	Resolve(specifier string, ctx Context) (module.Content, error)
	// Priority orders resolvers when more than one claims a specifier;
	// lower runs first.
	Priority() int
}

// Manager routes a classified specifier to the highest-priority resolver
// that claims it, implementing module.Resolver.
type Manager struct {
	resolvers []Resolver
	ctx       Context
}

// NewManager builds a Manager from an unordered resolver set, sorting by
// Priority ascending once at construction time.
func NewManager(ctx Context, resolvers ...Resolver) *Manager {
	sorted := append([]Resolver(nil), resolvers...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Priority() < sorted[j].Priority() })
	return &Manager{resolvers: sorted, ctx: ctx}
}

// Resolve implements module.Resolver.
func (m *Manager) Resolve(kind module.SpecifierKind, specifier string, loc ast.SourceLocation) (module.Content, error) {
	for _, r := range m.resolvers {
		if r.CanResolve(kind, specifier) {
			content, err := r.Resolve(specifier, m.ctx)
			if err != nil {
				return module.Content{}, errs.Wrap(errs.KindResolverFailure, loc, err, "resolver %q failed for %q", r.Name(), specifier)
			}
			return content, nil
		}
	}
	return module.Content{}, errs.New(errs.KindModuleNotFound, loc, "no resolver claims specifier %q (kind %s)", specifier, kind)
}

// InvokeResolver implements execengine.ResolverInvoker: an `/exe ... =
// resolver` executable hands its rendered path and payload to the
// matching resolver and returns its raw content as a string (resolver
// executables are expected to return text; structured resolvers should
// parse their own payload format downstream via a pipeline stage).
func (m *Manager) InvokeResolver(path, payload string, loc ast.SourceLocation) (interface{}, error) {
	kind, specifier := module.ClassifySpecifier(path)
	ctx := m.ctx
	if payload != "" {
		ctx.InputText = payload
	}
	for _, r := range m.resolvers {
		if r.CanResolve(kind, specifier) {
			content, err := r.Resolve(specifier, ctx)
			if err != nil {
				return nil, errs.Wrap(errs.KindResolverFailure, loc, err, "resolver %q failed for %q", r.Name(), specifier)
			}
			return string(content.Bytes), nil
		}
	}
	return nil, errs.New(errs.KindModuleNotFound, loc, "no resolver claims specifier %q", specifier)
}

// FileResolver resolves local-file specifiers (§6.4's "local paths").
type FileResolver struct{ BaseDir string }

func (FileResolver) Name() string     { return "file" }
func (FileResolver) Priority() int    { return 10 }
func (r FileResolver) CanResolve(kind module.SpecifierKind, specifier string) bool {
	return kind == module.SpecFile
}

func (r FileResolver) Resolve(specifier string, ctx Context) (module.Content, error) {
	path := specifier
	base := r.BaseDir
	if base == "" {
		base = ctx.BaseDir
	}
	if base != "" && !isAbs(path) {
		path = base + string(os.PathSeparator) + path
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return module.Content{}, fmt.Errorf("file resolver: %w", err)
	}
	return module.Content{Bytes: data, Meta: map[string]interface{}{"path": path}}, nil
}

func isAbs(p string) bool { return len(p) > 0 && p[0] == '/' }

// HTTPResolver resolves `http(s)://` specifiers (§6.4).
type HTTPResolver struct {
	Client  *http.Client
	Timeout time.Duration
}

func (HTTPResolver) Name() string  { return "http" }
func (HTTPResolver) Priority() int { return 20 }
func (HTTPResolver) CanResolve(kind module.SpecifierKind, specifier string) bool {
	return kind == module.SpecURL
}

func (r HTTPResolver) Resolve(specifier string, ctx Context) (module.Content, error) {
	client := r.Client
	if client == nil {
		timeout := r.Timeout
		if timeout == 0 {
			timeout = 30 * time.Second
		}
		client = &http.Client{Timeout: timeout}
	}
	resp, err := client.Get(specifier)
	if err != nil {
		return module.Content{}, fmt.Errorf("http resolver: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return module.Content{}, fmt.Errorf("http resolver: %s returned status %d", specifier, resp.StatusCode)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return module.Content{}, fmt.Errorf("http resolver: read body: %w", err)
	}
	return module.Content{Bytes: body, Meta: map[string]interface{}{"url": specifier, "status": resp.StatusCode}}, nil
}

// InputResolver serves the `@input` builtin specifier: the raw stdin/CLI
// payload the interpreter was invoked with (§4.2's reserved `input` name).
type InputResolver struct{}

func (InputResolver) Name() string  { return "input" }
func (InputResolver) Priority() int { return 0 }
func (InputResolver) CanResolve(kind module.SpecifierKind, specifier string) bool {
	return kind == module.SpecBuiltin && specifier == "@input"
}

func (InputResolver) Resolve(specifier string, ctx Context) (module.Content, error) {
	return module.Content{Bytes: []byte(ctx.InputText)}, nil
}

// BaseResolver serves the `@base` builtin specifier: the project root
// directory path as a bare string payload, for modules that only need
// the path rather than file content.
type BaseResolver struct{}

func (BaseResolver) Name() string  { return "base" }
func (BaseResolver) Priority() int { return 0 }
func (BaseResolver) CanResolve(kind module.SpecifierKind, specifier string) bool {
	return kind == module.SpecBuiltin && specifier == "@base"
}

func (r BaseResolver) Resolve(specifier string, ctx Context) (module.Content, error) {
	return module.Content{Bytes: []byte(ctx.BaseDir)}, nil
}

// RegistryResolver resolves `@author/name` specifiers against the public
// mlld module registry over HTTPS, following the same prefix-based
// dispatch §6.4 describes ("routes @author/… ... accordingly").
type RegistryResolver struct {
	RegistryBaseURL string
	Client          *http.Client
}

func (RegistryResolver) Name() string  { return "registry" }
func (RegistryResolver) Priority() int { return 15 }
func (RegistryResolver) CanResolve(kind module.SpecifierKind, specifier string) bool {
	return kind == module.SpecRegistry
}

func (r RegistryResolver) Resolve(specifier string, ctx Context) (module.Content, error) {
	base := r.RegistryBaseURL
	if base == "" {
		base = "https://registry.mlld.dev"
	}
	client := r.Client
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	url := base + "/" + specifier[1:] // strip leading '@'
	resp, err := client.Get(url)
	if err != nil {
		return module.Content{}, fmt.Errorf("registry resolver: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return module.Content{}, fmt.Errorf("registry resolver: %s returned status %d", specifier, resp.StatusCode)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return module.Content{}, fmt.Errorf("registry resolver: read body: %w", err)
	}
	return module.Content{Bytes: body, Meta: map[string]interface{}{"specifier": specifier}}, nil
}
