package security

// GuardOutcome is the result of evaluating a guard's `when [...]` body:
// either an allow/deny verdict, or a `let` binding that mutates the
// operation's input labels (subject to the privileged gate below).
type GuardOutcome struct {
	Decision  string // "allow" | "deny" | ""
	LetLabel  string // non-empty when the arm bound a label via `let`
	LetValue  string
	EnvProfile string // value from an `env "profile"` arm action
}

// GuardRunner evaluates a Guard's when-expression body against an
// operation context and the descriptor currently attached to the value
// flowing through it. It is implemented by internal/evaluator (which owns
// `/when` arm evaluation) and injected here to avoid an import cycle
// between security and evaluator.
type GuardRunner func(g *Guard, opCtx OperationContext, desc *Descriptor) (GuardOutcome, error)

// RunGuard looks up the guard registered for opCtx's most specific op
// label and runs it, applying privileged gating to any `let` outcome that
// targets a protected label.
func (p *Policy) RunGuard(run GuardRunner, opCtx OperationContext, desc *Descriptor, privileged bool) (*Descriptor, error) {
	if p == nil || len(p.Guards) == 0 {
		return desc, nil
	}
	var g *Guard
	for _, label := range opCtx.OpLabels {
		if candidate, ok := p.Guards[label]; ok {
			g = candidate
			break
		}
	}
	if g == nil {
		return desc, nil
	}

	outcome, err := run(g, opCtx, desc)
	if err != nil {
		return desc, err
	}

	switch outcome.Decision {
	case "deny":
		return desc, &deniedByGuard{guard: g.Name}
	case "allow":
		return desc, nil
	}

	if outcome.LetLabel != "" {
		if IsProtected(outcome.LetLabel) && !privileged {
			return desc, &unprivilegedLabelWrite{guard: g.Name, label: outcome.LetLabel}
		}
		return desc.WithLabels(outcome.LetLabel), nil
	}

	return desc, nil
}

type deniedByGuard struct{ guard string }

func (e *deniedByGuard) Error() string { return "denied by guard " + e.guard }

type unprivilegedLabelWrite struct {
	guard string
	label string
}

func (e *unprivilegedLabelWrite) Error() string {
	return "guard " + e.guard + " attempted unprivileged write to protected label " + e.label
}
