package extract

import (
	"strings"
	"unicode"
)

// cleanText normalizes extracted text: trims each line, drops lines that are
// only page numbers or other bare digits, and collapses runs of blank lines
// into a single paragraph break.
func cleanText(text string) string {
	if text == "" {
		return ""
	}

	lines := strings.Split(text, "\n")
	out := make([]string, 0, len(lines))
	blank := false

	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line == "" {
			blank = true
			continue
		}
		if isDigitsOnly(line) {
			// Page numbers and footer counters carry no meaning for retrieval.
			continue
		}
		if blank && len(out) > 0 {
			out = append(out, "")
		}
		blank = false
		out = append(out, line)
	}

	return strings.Join(out, "\n")
}

func isDigitsOnly(s string) bool {
	for _, r := range s {
		if !unicode.IsDigit(r) {
			return false
		}
	}
	return len(s) > 0
}
