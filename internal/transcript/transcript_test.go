package transcript_test

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/HendryAvila/larvling/internal/transcript"
)

func writeTranscript(t *testing.T, lines ...string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "transcript.jsonl")
	require.NoError(t, os.WriteFile(path, []byte(strings.Join(lines, "\n")+"\n"), 0o644))
	return path
}

var conversation = []string{
	`{"type":"user","message":{"role":"user","content":"first question"}}`,
	`{"type":"assistant","message":{"content":[{"type":"text","text":"old answer"}]}}`,
	`{"type":"user","message":{"content":[{"type":"text","text":"How do I"},{"type":"text","text":"borrow twice?"}]}}`,
	`{"type":"assistant","message":{"content":[{"type":"text","text":"  Let me check. "},{"type":"tool_use","name":"Read"}]}}`,
	`{"type":"user","message":{"content":[{"type":"tool_result","content":"file body"}]}}`,
	`this line is garbage`,
	``,
	`{"type":"assistant","message":{"content":[{"type":"tool_use","name":"Bash"},{"type":"tool_use","name":"Read"},{"type":"tool_use"}]}}`,
	`{"type":"assistant","message":{"content":[{"type":"text","text":"Use two shared refs."},"plain block"]}}`,
	`{"type":"summary","summary":"x"}`,
}

func TestLastUserText(t *testing.T) {
	path := writeTranscript(t, conversation...)
	got, err := transcript.LastUserText(path)
	require.NoError(t, err)
	assert.Equal(t, "How do I borrow twice?", got)
}

func TestLastUserText_PlainString(t *testing.T) {
	path := writeTranscript(t, conversation[:2]...)
	got, err := transcript.LastUserText(path)
	require.NoError(t, err)
	assert.Equal(t, "first question", got)
}

func TestLastTurn(t *testing.T) {
	path := writeTranscript(t, conversation...)
	turn, err := transcript.LastTurn(path)
	require.NoError(t, err)

	assert.Equal(t, "Let me check.\n\nUse two shared refs.\nplain block", turn.Text)
	assert.Equal(t, map[string]int{"Read": 2, "Bash": 1, "unknown": 1}, turn.Tools)
}

func TestMissingTranscript(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "nope.jsonl")

	text, err := transcript.LastUserText(missing)
	require.NoError(t, err)
	assert.Empty(t, text)

	turn, err := transcript.LastTurn("")
	require.NoError(t, err)
	assert.Empty(t, turn.Text)
	assert.Empty(t, turn.Tools)
}

func TestWaitStable_QuietFileReturnsQuickly(t *testing.T) {
	path := writeTranscript(t, conversation...)

	start := time.Now()
	transcript.WaitStable(context.Background(), path, 20*time.Millisecond, 2*time.Second)
	assert.Less(t, time.Since(start), time.Second)
}

func TestWaitStable_WaitsForWriter(t *testing.T) {
	path := writeTranscript(t, conversation[0])

	done := make(chan struct{})
	go func() {
		defer close(done)
		f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return
		}
		defer func() { _ = f.Close() }()
		for i := 0; i < 5; i++ {
			_, _ = f.WriteString(conversation[1] + "\n")
			time.Sleep(30 * time.Millisecond)
		}
	}()

	start := time.Now()
	transcript.WaitStable(context.Background(), path, 100*time.Millisecond, 3*time.Second)
	elapsed := time.Since(start)
	<-done

	assert.GreaterOrEqual(t, elapsed, 100*time.Millisecond)
	assert.Less(t, elapsed, 3*time.Second)
}

func TestWaitStable_MaxWaitBounds(t *testing.T) {
	path := writeTranscript(t, conversation[0])
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		for ctx.Err() == nil {
			_ = os.WriteFile(path, []byte(conversation[0]+"\n"), 0o644)
			time.Sleep(5 * time.Millisecond)
		}
	}()

	start := time.Now()
	transcript.WaitStable(ctx, path, 200*time.Millisecond, 300*time.Millisecond)
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestWaitStable_MissingFile(t *testing.T) {
	start := time.Now()
	transcript.WaitStable(context.Background(), filepath.Join(t.TempDir(), "x"), time.Second, 5*time.Second)
	assert.Less(t, time.Since(start), 500*time.Millisecond)
}
