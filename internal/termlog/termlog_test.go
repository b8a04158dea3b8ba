package termlog

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSanitize(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"plain", "hello", "hello"},
		{"color codes and carriage return", "\x1b[32m✓\x1b[39m built in \x1b[1m120ms\x1b[22m\r", "✓ built in 120ms"},
		{"cursor movement", "\x1b[2K\x1b[1Gready", "ready"},
		{"osc title", "\x1b]0;npm run dev\x07VITE v5", "VITE v5"},
		{"osc with st terminator", "\x1b]2;title\x1b\\done", "done"},
		{"bell and backspace", "a\x07b\x08c", "abc"},
		{"keeps tabs inside", "key\tvalue", "key\tvalue"},
		{"only escapes", "\x1b[0m\x1b[?25l", ""},
		{"whitespace only", "  \t \r\n", ""},
		{"unicode survives", "  ➜  Local:   http://localhost:5173/  ", "➜  Local:   http://localhost:5173/"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Sanitize(tt.input)
			assert.Equal(t, tt.want, got)
			assert.NotContains(t, got, "\x1b")
		})
	}
}

func TestLogBounded(t *testing.T) {
	l := New(100)
	for i := 0; i < 250; i++ {
		l.Append(fmt.Sprintf("line %d", i))
	}

	lines := l.Lines()
	require.Len(t, lines, 100)
	assert.Equal(t, "line 150", lines[0])
	assert.Equal(t, "line 249", lines[99])
	for i := 1; i < len(lines); i++ {
		var prev, cur int
		fmt.Sscanf(lines[i-1], "line %d", &prev)
		fmt.Sscanf(lines[i], "line %d", &cur)
		assert.Equal(t, prev+1, cur)
	}
}

func TestLogSkipsEmpty(t *testing.T) {
	l := New(10)
	assert.Equal(t, 0, l.Append("\x1b[0m"))
	assert.Equal(t, 0, l.Append(""))
	assert.Equal(t, 0, l.Len())
}

func TestLogSplitsChunks(t *testing.T) {
	l := New(10)
	n := l.Append("first\n\n\x1b[31msecond\x1b[0m\nprogress 10%\rprogress 90%\r\n")
	assert.Equal(t, 3, n)
	assert.Equal(t, []string{"first", "second", "progress 90%"}, l.Lines())
}

func TestLogDefaultCap(t *testing.T) {
	assert.Equal(t, DefaultMaxLines, New(0).Cap())
}

func TestLogReset(t *testing.T) {
	l := New(5)
	l.Append("a\nb")
	l.Reset()
	assert.Empty(t, l.Lines())
}

func TestLogPipe(t *testing.T) {
	l := New(10)
	calls := 0
	err := l.Pipe(strings.NewReader("added 10 packages\n\x1b[2K\nfound 0 vulnerabilities\n"), func() { calls++ })
	require.NoError(t, err)
	assert.Equal(t, 2, calls)
	assert.Equal(t, []string{"added 10 packages", "found 0 vulnerabilities"}, l.Lines())
}

func TestLogPipeTruncatesOverlongLine(t *testing.T) {
	l := New(10)
	huge := "before\n" + strings.Repeat("x", 2*1024*1024) + "\nafter-1\nafter-2"
	require.NoError(t, l.Pipe(strings.NewReader(huge), nil))

	lines := l.Lines()
	require.Len(t, lines, 4)
	assert.Equal(t, "before", lines[0])
	assert.Equal(t, strings.Repeat("x", MaxLineBytes), lines[1])
	assert.Equal(t, []string{"after-1", "after-2"}, lines[2:])
}
