// Package security implements spec.md §4.7 and §7's security error
// kinds: operation context, op:* capability policy, label/taint
// propagation, guard blocks, and sign/verify.
//
// The taint-tracking model is grounded in the teacher's
// core/sdk/secret.Handle (runtime/vault's "ALL value decorators produce
// secrets" rule, and handle.go's tainted bool + Capability token gate on
// unsafe unwrap). mlld generalizes that from "every value is a secret"
// to "every value carries an origin-tracking label set", which is
// exactly spec.md §4.7's Label model.
package security

import "sort"

// Descriptor is spec.md §4.7's SecurityDescriptor.
type Descriptor struct {
	Labels     []string
	Taint      []string
	Sources    []string
	Capability *Capability
	PolicyCtx  *PolicyContext
}

// Capability mirrors the teacher's core/sdk/secret.Capability: an opaque
// token gating privileged operations, issued only by the executor/policy
// layer, never constructible by user-level code.
type Capability struct {
	token uint64
}

// PolicyContext records which policy document produced a descriptor's
// current capability decision, for diagnostics.
type PolicyContext struct {
	PolicyName string
}

// protectedLabels cannot be removed without a Capability gate (Unprivileged
// otherwise). "secret" and "untrusted-origin" are the two the runtime itself
// depends on for correctness; hosts may extend this set via NewDescriptor.
var protectedLabels = map[string]bool{
	"secret":           true,
	"untrusted-origin": true,
}

// IsProtected reports whether label requires a Capability to remove.
func IsProtected(label string) bool { return protectedLabels[label] }

func dedupSorted(in []string) []string {
	seen := make(map[string]bool, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s == "" || seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

// Merge unions labels/taint/sources across descriptors and keeps the
// strictest (non-nil, first-seen) capability context — mirrors
// env.mergeSecurityDescriptors from spec.md §4.2.
func Merge(descs ...*Descriptor) *Descriptor {
	var labels, taint, sources []string
	var cap *Capability
	var pc *PolicyContext
	for _, d := range descs {
		if d == nil {
			continue
		}
		labels = append(labels, d.Labels...)
		taint = append(taint, d.Taint...)
		sources = append(sources, d.Sources...)
		if cap == nil && d.Capability != nil {
			cap = d.Capability
		}
		if pc == nil && d.PolicyCtx != nil {
			pc = d.PolicyCtx
		}
	}
	return &Descriptor{
		Labels:     dedupSorted(labels),
		Taint:      dedupSorted(taint),
		Sources:    dedupSorted(sources),
		Capability: cap,
		PolicyCtx:  pc,
	}
}

// WithLabels returns a copy of d with labels added (deduped).
func (d *Descriptor) WithLabels(add ...string) *Descriptor {
	if d == nil {
		d = &Descriptor{}
	}
	clone := *d
	clone.Labels = dedupSorted(append(append([]string{}, d.Labels...), add...))
	return &clone
}

// RemoveLabels strips labels from d. Protected labels require priv to be
// true (a held Capability token), else returns ok=false (ProtectedLabelRemoval).
func (d *Descriptor) RemoveLabels(priv bool, remove ...string) (out *Descriptor, ok bool) {
	if d == nil {
		return &Descriptor{}, true
	}
	for _, r := range remove {
		if IsProtected(r) && !priv {
			return d, false
		}
	}
	removeSet := make(map[string]bool, len(remove))
	for _, r := range remove {
		removeSet[r] = true
	}
	clone := *d
	kept := make([]string, 0, len(d.Labels))
	for _, l := range d.Labels {
		if !removeSet[l] {
			kept = append(kept, l)
		}
	}
	clone.Labels = kept
	return &clone, true
}

// Has reports whether d carries label.
func (d *Descriptor) Has(label string) bool {
	if d == nil {
		return false
	}
	for _, l := range d.Labels {
		if l == label {
			return true
		}
	}
	return false
}
