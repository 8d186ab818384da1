package evaluator

import (
	"strings"

	"github.com/mlld-lang/mlld/internal/ast"
	"github.com/mlld-lang/mlld/internal/env"
	"github.com/mlld-lang/mlld/internal/errs"
	"github.com/mlld-lang/mlld/internal/fsys"
	"github.com/mlld-lang/mlld/internal/resolution"
	"github.com/mlld-lang/mlld/internal/value"
)

// evalLoadContent resolves a `<./path>` expression (§4, §6.2) into a
// LoadContentResult — a *value.Structured carrying both the raw text and
// file metadata, so later field access (`.content`, `.filename`, `.path`)
// and auto-unwrap-on-interpolation both work off the same value.
func (ev *Evaluator) evalLoadContent(n *ast.LoadContent, e *env.Environment) (interface{}, error) {
	if ev.content == nil {
		return nil, errs.New(errs.KindResolverFailure, n.Loc(), "content loading requires internal/fsys wired by the caller")
	}

	pathVal, err := ev.Evaluate(n.Source, e, Context{IsExpression: true, Resolution: resolution.StringInterp})
	if err != nil {
		return nil, err
	}
	unwrapped, err := resolution.Unwrap(resolution.StringInterp, pathVal)
	if err != nil {
		return nil, err
	}
	path := Stringify(unwrapped)

	raw, resolved, err := ev.content.Load(e.PathContext().FileDirectory, path)
	if err != nil {
		return nil, errs.Wrap(errs.KindResolverFailure, n.Loc(), err, "failed to load content %q", path)
	}

	text := string(raw)
	if n.Section != "" {
		section, ok := fsys.ExtractMarkdownSection(text, n.Section)
		if !ok {
			return nil, errs.New(errs.KindResolverFailure, n.Loc(), "section %q not found in %q", n.Section, resolved)
		}
		text = section
	}

	result := &value.Structured{
		Kind: value.StructuredText,
		Text: text,
		Data: map[string]interface{}{
			"content":  text,
			"filename": filenameOf(resolved),
			"path":     resolved,
		},
		Metadata: map[string]interface{}{
			"path":    resolved,
			"section": n.Section,
		},
	}
	return result, nil
}

func filenameOf(path string) string {
	if i := strings.LastIndexByte(path, '/'); i >= 0 {
		return path[i+1:]
	}
	return path
}
