// Package effect implements spec.md §3.6 and §6.5: the append-only
// effect stream and the handler/streaming contract. Output is never
// returned by handlers as a string — it's emitted through this sink and
// assembled at the end of a run, mirroring the teacher's own streaming
// execution model in runtime/execution/evaluator.go's executeWithStreaming
// (live stdout/stderr writers fed line-by-line alongside a captured
// buffer), generalized from "one shell command's output" to "the whole
// document's effect log".
package effect

import (
	"strings"
	"sync"

	"github.com/mlld-lang/mlld/internal/ast"
)

// Stream enumerates the effect destinations from §3.6.
type Stream string

const (
	StreamDoc    Stream = "doc"
	StreamStdout Stream = "stdout"
	StreamStderr Stream = "stderr"
	StreamFile   Stream = "file"
	StreamBoth   Stream = "both"
)

// Effect is one append-only record in the effect log.
type Effect struct {
	Stream  Stream
	Content string
	Loc     ast.SourceLocation
	Meta    map[string]interface{}
}

// Handler is the pluggable effect sink (§6.5). Implementations must
// append atomically per call (§5 "Shared resources").
type Handler interface {
	Emit(e Effect)
	Flush() error
	Finalize() (string, error)
}

// Buffered is the default in-process Handler: it records every effect and
// assembles `doc`/`both` effects into the final output with blank-line
// normalization (§3.6). It also forwards stdout/stderr/file effects to
// injected live writers when streaming is enabled, the way the teacher's
// executeWithStreaming forwards to ctx.Stdout/ctx.Stderr while still
// capturing into a buffer for the final CommandResult.
type Buffered struct {
	mu      sync.Mutex
	log     []Effect
	live    map[Stream]func(string)
}

// NewBuffered creates an effect handler. liveWriters maps a Stream to a
// callback invoked immediately for every effect on that stream (for
// interactive progress); it may be nil or partial.
func NewBuffered(liveWriters map[Stream]func(string)) *Buffered {
	return &Buffered{live: liveWriters}
}

func (h *Buffered) Emit(e Effect) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.log = append(h.log, e)
	if h.live != nil {
		if w, ok := h.live[e.Stream]; ok && w != nil {
			w(e.Content)
		}
		if e.Stream == StreamBoth {
			if w, ok := h.live[StreamStdout]; ok && w != nil {
				w(e.Content)
			}
		}
	}
}

func (h *Buffered) Flush() error { return nil }

// Finalize concatenates doc/both effects with blank-line normalization:
// runs of 3+ consecutive newlines collapse to exactly 2 (one blank line),
// matching the teacher's own output-assembly convention of never letting
// directive boundaries produce runaway blank regions.
func (h *Buffered) Finalize() (string, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	var b strings.Builder
	for _, e := range h.log {
		if e.Stream == StreamDoc || e.Stream == StreamBoth {
			b.WriteString(e.Content)
		}
	}
	return normalizeBlankLines(b.String()), nil
}

// Log returns a copy of the recorded effects, for inspection by tests and
// by the partial-failure surface described in §7.
func (h *Buffered) Log() []Effect {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]Effect, len(h.log))
	copy(out, h.log)
	return out
}

func normalizeBlankLines(s string) string {
	for strings.Contains(s, "\n\n\n") {
		s = strings.ReplaceAll(s, "\n\n\n", "\n\n")
	}
	return s
}
