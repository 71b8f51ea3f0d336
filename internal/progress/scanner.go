package progress

import (
	"bufio"
	"bytes"
	"io"
)

// MaxLineBytes bounds a single buffered line. yt-dlp lines are short; the
// limit only matters for runaway output without separators.
const MaxLineBytes = 1024 * 1024

// NewScanner returns a scanner yielding one line per token, where both '\n'
// and '\r' end a line. Partial lines are buffered across reads.
func NewScanner(r io.Reader) *bufio.Scanner {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), MaxLineBytes)
	scanner.Split(SplitLines)
	return scanner
}

// SplitLines is a bufio.SplitFunc treating CR and LF as equivalent line
// terminators. Runs of separators are consumed in one step, so empty lines
// never surface as tokens and a line is never dropped after EOF.
func SplitLines(data []byte, atEOF bool) (advance int, token []byte, err error) {
	start := 0
	for start < len(data) && (data[start] == '\r' || data[start] == '\n') {
		start++
	}
	if start == len(data) {
		return len(data), nil, nil
	}
	rest := data[start:]
	if i := bytes.IndexAny(rest, "\r\n"); i >= 0 {
		return start + i + 1, rest[:i], nil
	}
	if atEOF {
		return len(data), rest, nil
	}
	return start, nil, nil
}
