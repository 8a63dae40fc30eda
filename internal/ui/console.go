package ui

import (
	"fmt"
	"os"
	"strings"
)

// Style selects the severity coloring of a console message.
type Style int

const (
	StylePlain Style = iota
	StyleError
	StyleWarning
	StyleSuccess
	StyleInfo
)

const (
	ansiReset  = "\033[0m"
	ansiRed    = "\033[31m"
	ansiYellow = "\033[33m"
	ansiGreen  = "\033[32m"
	ansiBlue   = "\033[34m"
	ansiBold   = "\033[1m"
)

// Console writes user-facing messages to the terminal. Colors are enabled
// only when stderr is a TTY and NO_COLOR is unset.
type Console struct {
	useColors bool
}

func NewConsole() *Console {
	_, noColor := os.LookupEnv("NO_COLOR")
	return &Console{
		useColors: !noColor && isTerminal(),
	}
}

func isTerminal() bool {
	stat, _ := os.Stderr.Stat()
	return (stat.Mode() & os.ModeCharDevice) != 0
}

func (c *Console) paint(style Style, message string) string {
	if !c.useColors {
		return message
	}

	var color string
	switch style {
	case StyleError:
		color = ansiRed + ansiBold
	case StyleWarning:
		color = ansiYellow
	case StyleSuccess:
		color = ansiGreen
	case StyleInfo:
		color = ansiBlue
	default:
		return message
	}

	return color + message + ansiReset
}

// Errorf writes an error message to stderr.
func (c *Console) Errorf(format string, args ...any) {
	message := fmt.Sprintf(format, args...)
	fmt.Fprintf(os.Stderr, "%s\n", c.paint(StyleError, "Error: "+message))
}

// Warnf writes a warning message to stderr.
func (c *Console) Warnf(format string, args ...any) {
	message := fmt.Sprintf(format, args...)
	fmt.Fprintf(os.Stderr, "%s\n", c.paint(StyleWarning, "Warning: "+message))
}

// Successf writes a success message to stdout.
func (c *Console) Successf(format string, args ...any) {
	fmt.Printf("%s\n", c.paint(StyleSuccess, fmt.Sprintf(format, args...)))
}

// Infof writes an informational message to stdout.
func (c *Console) Infof(format string, args ...any) {
	fmt.Printf("%s\n", c.paint(StyleInfo, fmt.Sprintf(format, args...)))
}

// ErrorDetail formats a structured error block: what was being done, what
// went wrong, and how the user might fix it. Empty fields are omitted.
func (c *Console) ErrorDetail(context, cause, suggestion string) string {
	var parts []string

	if context != "" {
		parts = append(parts, context)
	}
	if cause != "" {
		parts = append(parts, fmt.Sprintf("Cause: %s", cause))
	}
	if suggestion != "" {
		parts = append(parts, fmt.Sprintf("Suggestion: %s", suggestion))
	}

	return strings.Join(parts, "\n")
}
