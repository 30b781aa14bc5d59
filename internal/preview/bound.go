package preview

import (
	"strings"

	"github.com/charmbracelet/x/ansi"
)

// Bound downsamples captured text to at most rows lines of at most cols
// display cells. Trailing blank lines are dropped first so the preview shows
// the bottom of the screen where the cursor usually is. ANSI sequences are
// preserved and do not count towards the width.
func Bound(lines []string, cols, rows int) []string {
	if cols < 1 {
		cols = 1
	}
	if rows < 1 {
		rows = 1
	}

	end := len(lines)
	for end > 0 && strings.TrimSpace(ansi.Strip(lines[end-1])) == "" {
		end--
	}
	start := 0
	if end > rows {
		start = end - rows
	}

	out := make([]string, 0, end-start)
	for _, line := range lines[start:end] {
		line = strings.TrimRight(line, "\r")
		if ansi.StringWidth(line) > cols {
			line = ansi.Truncate(line, cols, "")
		}
		out = append(out, line)
	}
	return out
}
