package classifier

import (
	"regexp"
	"strings"
)

// MaxStructuredLines is the largest number of non-empty lines that is still
// translated line by line.
const MaxStructuredLines = 60

var listLineRe = regexp.MustCompile(`(?m)^\s*(?:\p{Nd}+[.)]|[-•—*]|[A-Za-zА-Яа-я]\))\s+`)

// IsStructured reports whether text looks like a list, a table or multi-line
// content whose line layout must survive translation.
func IsStructured(text string) bool {
	if strings.Count(text, "\n") >= 3 {
		return true
	}
	if strings.Contains(text, "\t") {
		return true
	}
	return listLineRe.MatchString(text)
}

// CountNonEmptyLines counts lines that hold anything besides whitespace.
func CountNonEmptyLines(text string) int {
	n := 0
	for _, line := range SplitLines(text) {
		if strings.TrimSpace(line) != "" {
			n++
		}
	}
	return n
}

// SplitLines splits on "\r\n", "\n" and "\r".
func SplitLines(text string) []string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")
	return strings.Split(text, "\n")
}

// UseLineByLine reports whether text should go through the line splitter.
func UseLineByLine(text string) bool {
	return IsStructured(text) && CountNonEmptyLines(text) <= MaxStructuredLines
}
