package effect

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFinalizeConcatenatesDocAndBothEffects(t *testing.T) {
	t.Parallel()
	h := NewBuffered(nil)
	h.Emit(Effect{Stream: StreamDoc, Content: "hello "})
	h.Emit(Effect{Stream: StreamStdout, Content: "ignored"})
	h.Emit(Effect{Stream: StreamBoth, Content: "world"})

	out, err := h.Finalize()
	require.NoError(t, err)
	assert.Equal(t, "hello world", out)
}

func TestFinalizeCollapsesRunawayBlankLines(t *testing.T) {
	t.Parallel()
	h := NewBuffered(nil)
	h.Emit(Effect{Stream: StreamDoc, Content: "a\n\n\n\n\nb"})

	out, err := h.Finalize()
	require.NoError(t, err)
	assert.Equal(t, "a\n\nb", out)
}

func TestEmitForwardsToLiveWriter(t *testing.T) {
	t.Parallel()
	var captured []string
	h := NewBuffered(map[Stream]func(string){
		StreamStdout: func(s string) { captured = append(captured, s) },
	})

	h.Emit(Effect{Stream: StreamStdout, Content: "line one"})
	h.Emit(Effect{Stream: StreamStderr, Content: "not forwarded, no writer registered"})

	assert.Equal(t, []string{"line one"}, captured)
}

func TestEmitBothForwardsToStdoutLiveWriterToo(t *testing.T) {
	t.Parallel()
	var captured []string
	h := NewBuffered(map[Stream]func(string){
		StreamStdout: func(s string) { captured = append(captured, s) },
	})

	h.Emit(Effect{Stream: StreamBoth, Content: "dual"})
	assert.Equal(t, []string{"dual"}, captured)
}

func TestLogReturnsACopy(t *testing.T) {
	t.Parallel()
	h := NewBuffered(nil)
	h.Emit(Effect{Stream: StreamDoc, Content: "x"})

	log := h.Log()
	log[0].Content = "mutated"

	assert.Equal(t, "x", h.Log()[0].Content, "Log() must return a defensive copy")
}
