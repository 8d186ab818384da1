// Policy implements spec.md §4.7's capability allow/deny glob matching
// over op:* labels plus guard blocks. Most-specific pattern wins; ties
// prefer deny.
//
// Pattern matching uses the standard library's path.Match: the pack
// carries no dedicated glob library (jsonschema/semver/fuzzysearch all
// solve different problems), and path.Match's shell-glob semantics are
// exactly what op:cmd:echo:* style patterns need, so this is the one
// place in internal/security that is deliberately stdlib-only — see
// DESIGN.md.
package security

import (
	"path"
	"sort"
	"strings"

	"github.com/mlld-lang/mlld/internal/ast"
	"github.com/mlld-lang/mlld/internal/errs"
)

// OperationContext describes one effectful operation for policy matching
// and observability (spec.md §4.7, §6.7).
type OperationContext struct {
	Type     string // "cmd" | "code" | "fs-read" | "fs-write" | "resolver" | "llm-exec"
	Subtype  string
	OpLabels []string // e.g. "op:cmd", "op:cmd:echo", "op:cmd:echo:interpolated"
	Sources  []string
	Metadata map[string]interface{}
}

// CapabilityRule is one allow/deny glob entry.
type CapabilityRule struct {
	Pattern string
	Allow   bool
}

// Policy is a compiled set of allow/deny rules plus guard bindings and
// autoverify configuration.
type Policy struct {
	Name       string
	Rules      []CapabilityRule
	Guards     map[string]*Guard // keyed by op:* label they guard
	Autoverify bool
	VerifyTemplate string // custom verify-instructions template; "" = default
}

// Guard is a `/guard @g for op:X = when [ ... ]` block.
type Guard struct {
	Name    string
	ForOp   string
	Program ast.Node // a WhenExpression
}

// Union merges rule lists from multiple policies, as the teacher-derived
// `union({...})` combinator in spec.md's example 4 implies: later
// policies' rules are appended, so ties still resolve by specificity
// across the whole merged set.
func Union(policies ...*Policy) *Policy {
	out := &Policy{Name: "union"}
	for _, p := range policies {
		if p == nil {
			continue
		}
		out.Rules = append(out.Rules, p.Rules...)
		out.Autoverify = out.Autoverify || p.Autoverify
		if out.Guards == nil {
			out.Guards = map[string]*Guard{}
		}
		for k, v := range p.Guards {
			out.Guards[k] = v
		}
	}
	return out
}

// specificity scores a glob pattern by how many literal (non-wildcard)
// path segments it has and its total length, so "op:cmd:echo:blocked"
// outranks "op:cmd:echo:*" which outranks "op:cmd:*".
func specificity(pattern string) (literalSegs, length int) {
	segs := strings.Split(pattern, ":")
	for _, s := range segs {
		if !strings.ContainsAny(s, "*?[") {
			literalSegs++
		}
	}
	return literalSegs, len(pattern)
}

// Evaluate checks an operation context's labels against the policy and
// returns nil if allowed, or a PolicyViolation error if denied. When no
// rule matches any label at all, the operation is allowed by default
// (an empty policy imposes no restriction).
func (p *Policy) Evaluate(loc ast.SourceLocation, opCtx OperationContext) error {
	if p == nil {
		return nil
	}

	type match struct {
		rule    CapabilityRule
		label   string
		litSegs int
		length  int
	}
	var matches []match

	for _, label := range opCtx.OpLabels {
		for _, rule := range p.Rules {
			ok, err := path.Match(rule.Pattern, label)
			if err != nil || !ok {
				continue
			}
			lit, length := specificity(rule.Pattern)
			matches = append(matches, match{rule, label, lit, length})
		}
	}

	if len(matches) == 0 {
		return nil
	}

	sort.SliceStable(matches, func(i, j int) bool {
		if matches[i].litSegs != matches[j].litSegs {
			return matches[i].litSegs > matches[j].litSegs
		}
		if matches[i].length != matches[j].length {
			return matches[i].length > matches[j].length
		}
		// Tie: deny wins.
		return !matches[i].rule.Allow && matches[j].rule.Allow
	})

	winner := matches[0]
	if !winner.rule.Allow {
		return errs.New(errs.KindPolicyViolation, loc,
			"operation %q denied by policy rule %q", winner.label, winner.rule.Pattern)
	}
	return nil
}
