package runtime

import (
	"regexp"
	"strings"
)

// ansiRegex is a compiled regex for ANSI escape sequences
var ansiRegex = regexp.MustCompile(`\x1b\[[0-9;]*[a-zA-Z]`)

// cleanLogLine removes ANSI escape sequences and filters out binary/control
// characters from a single line of container output.
func cleanLogLine(line string) string {
	if len(line) == 0 {
		return ""
	}

	// Remove ANSI escape sequences (colors, formatting, etc.)
	line = ansiRegex.ReplaceAllString(line, "")

	// Remove common control characters
	line = strings.ReplaceAll(line, "\x00", "")
	line = strings.ReplaceAll(line, "\x01", "")
	line = strings.ReplaceAll(line, "\x02", "")
	line = strings.ReplaceAll(line, "\x03", "")

	line = strings.TrimSpace(line)
	if len(line) == 0 {
		return ""
	}

	// Filter out lines that are mostly binary/control characters
	printableChars := 0
	for _, r := range line {
		if r >= 32 && r <= 126 { // printable ASCII range
			printableChars++
		}
	}

	if float64(printableChars)/float64(len(line)) < 0.5 {
		return ""
	}

	return line
}
