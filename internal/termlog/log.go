package termlog

import (
	"bufio"
	"io"
	"strings"
	"sync"
)

// DefaultMaxLines is the scrollback kept when no cap is configured.
const DefaultMaxLines = 100

// Log is an append-only scrollback holding at most Cap lines. The oldest
// lines are evicted first. It is safe for concurrent use.
type Log struct {
	mu    sync.Mutex
	lines []string
	max   int
}

// New returns an empty log holding at most max lines.
func New(max int) *Log {
	if max <= 0 {
		max = DefaultMaxLines
	}
	return &Log{max: max, lines: make([]string, 0, max)}
}

// Cap returns the maximum number of lines kept.
func (l *Log) Cap() int {
	return l.max
}

// Append sanitizes raw output and appends every non-empty line it contains.
// It returns the number of lines appended.
func (l *Log) Append(raw string) int {
	clean := splitLines(raw)
	if len(clean) == 0 {
		return 0
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	l.lines = append(l.lines, clean...)
	if over := len(l.lines) - l.max; over > 0 {
		n := copy(l.lines, l.lines[over:])
		clear(l.lines[n:])
		l.lines = l.lines[:n]
	}
	return len(clean)
}

// Lines returns a copy of the current scrollback, oldest first.
func (l *Log) Lines() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]string, len(l.lines))
	copy(out, l.lines)
	return out
}

// Len returns the number of lines held.
func (l *Log) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.lines)
}

// Reset drops all lines.
func (l *Log) Reset() {
	l.mu.Lock()
	defer l.mu.Unlock()
	clear(l.lines)
	l.lines = l.lines[:0]
}

// MaxLineBytes is the longest line Pipe keeps. The rest of a longer line is
// dropped and streaming carries on with the next line.
const MaxLineBytes = 64 * 1024

// Pipe reads r line by line until EOF, appending each sanitized line and
// calling onAppend after every line that made it into the log.
func (l *Log) Pipe(r io.Reader, onAppend func()) error {
	br := bufio.NewReaderSize(r, MaxLineBytes)
	for {
		line, err := readLine(br)
		if line != "" && l.Append(line) > 0 && onAppend != nil {
			onAppend()
		}
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
	}
}

// readLine returns the next line without its newline, cut at the reader's
// buffer size.
func readLine(br *bufio.Reader) (string, error) {
	frag, err := br.ReadSlice('\n')
	line := strings.TrimSuffix(string(frag), "\n")
	for err == bufio.ErrBufferFull {
		_, err = br.ReadSlice('\n')
	}
	return line, err
}

// splitLines breaks raw output into sanitized display lines. Carriage-return
// redraws keep only the final non-empty frame of each line.
func splitLines(raw string) []string {
	var out []string
	for _, line := range strings.Split(raw, "\n") {
		frames := strings.Split(line, "\r")
		for i := len(frames) - 1; i >= 0; i-- {
			if s := Sanitize(frames[i]); s != "" {
				out = append(out, s)
				break
			}
		}
	}
	return out
}
