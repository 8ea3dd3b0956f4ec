package errors

import (
	"fmt"
	"strings"
)

// DefaultFrameRadius is the number of lines shown around the failing line.
const DefaultFrameRadius = 2

// NewCodeFrame extracts the lines around line (1-based) from source and
// marks the failing line and column. It returns nil when line is outside
// the source.
func NewCodeFrame(source []byte, line, column, radius int) []string {
	if line <= 0 || len(source) == 0 {
		return nil
	}

	lines := strings.Split(strings.ReplaceAll(string(source), "\r\n", "\n"), "\n")
	if line > len(lines) {
		return nil
	}

	index := line - 1
	start := max(0, index-radius)
	end := min(len(lines), index+radius+1)
	return formatFrame(lines[start:end], start+1, line, column)
}

// NewLineFrame renders a single source line, for tools that only report the
// failing line's text.
func NewLineFrame(line, column int, text string) []string {
	if line <= 0 {
		return nil
	}
	return formatFrame([]string{text}, line, line, column)
}

func formatFrame(lines []string, first, target, column int) []string {
	width := len(fmt.Sprint(first + len(lines) - 1))

	frame := make([]string, 0, len(lines)+1)
	for i, text := range lines {
		n := first + i
		prefix := "  "
		if n == target {
			prefix = "→ "
		}
		frame = append(frame, fmt.Sprintf("%s%*d | %s", prefix, width, n, text))

		if n == target && column > 0 {
			frame = append(frame, fmt.Sprintf("  %s | %s^", strings.Repeat(" ", width), caretPadding(text, column)))
		}
	}

	return frame
}

// caretPadding keeps tabs from the source line so the caret lines up.
func caretPadding(line string, column int) string {
	var b strings.Builder
	for i, r := range line {
		if i >= column-1 {
			break
		}
		if r == '\t' {
			b.WriteRune('\t')
		} else {
			b.WriteRune(' ')
		}
	}
	return b.String()
}
