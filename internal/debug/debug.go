// Package debug provides the observability surface described in spec.md §6.7:
// structured debug sinks keyed by phase, with no wire protocol — the
// runtime is invoked in-process. This mirrors the teacher's own
// ctx.Debug-gated fmt.Printf("[DEBUG] ...") convention
// (runtime/execution/evaluator.go), generalized to multiple phases and
// an injectable writer instead of a hardcoded stdout print.
package debug

import (
	"fmt"
	"io"
	"os"
	"sync"
)

// Phase names used across the runtime.
const (
	PhaseExec     = "exec"
	PhasePipeline = "pipeline"
	PhaseImport   = "import"
	PhasePolicy   = "policy"
)

// Sink receives debug lines for a given phase.
type Sink struct {
	mu      sync.Mutex
	out     io.Writer
	enabled map[string]bool
	all     bool
}

// NewSink builds a Sink writing to w. If phases is empty, all phases are enabled.
func NewSink(w io.Writer, phases ...string) *Sink {
	if w == nil {
		w = os.Stderr
	}
	s := &Sink{out: w, enabled: make(map[string]bool)}
	if len(phases) == 0 {
		s.all = true
	}
	for _, p := range phases {
		s.enabled[p] = true
	}
	return s
}

// Disabled returns a sink that discards everything; the zero value behaves
// the same way, so a nil *Sink is always safe to call methods on.
func Disabled() *Sink { return nil }

// Logf writes a formatted line tagged with phase, if that phase is enabled.
func (s *Sink) Logf(phase, format string, args ...interface{}) {
	if s == nil || s.out == nil {
		return
	}
	if !s.all && !s.enabled[phase] {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	fmt.Fprintf(s.out, "[%s] %s\n", phase, fmt.Sprintf(format, args...))
}
