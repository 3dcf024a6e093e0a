// Package printer renders stash CLI output: colored status lines on stdout and
// structured error reports on stderr.
package printer

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/fatih/color"
)

func init() {
	// Force color output even when not connected to TTY
	// Users can disable with NO_COLOR environment variable
	if os.Getenv("NO_COLOR") == "" {
		color.NoColor = false
	}
}

var (
	green  = color.New(color.FgGreen)
	yellow = color.New(color.FgYellow)
	red    = color.New(color.FgRed, color.Bold)
	cyan   = color.New(color.FgCyan)

	stdout io.Writer = os.Stdout
	stderr io.Writer = os.Stderr
)

// SetOutput redirects normal and error output. Nil writers restore the
// process defaults.
func SetOutput(out, errOut io.Writer) {
	if out == nil {
		out = os.Stdout
	}
	if errOut == nil {
		errOut = os.Stderr
	}
	stdout = out
	stderr = errOut
}

// Out returns the writer used for normal output.
func Out() io.Writer {
	return stdout
}

// marked writes msg in c, adding mark unless msg already starts with it.
func marked(c *color.Color, mark, sep, msg string) {
	if strings.HasPrefix(msg, mark) {
		c.Fprint(stdout, msg)
		return
	}
	c.Fprint(stdout, mark+sep+msg)
}

// Success prints a green line prefixed with a checkmark.
func Success(format string, a ...any) {
	marked(green, "✓", " ", fmt.Sprintf(format, a...))
}

// Warning prints a yellow line prefixed with a warning sign.
func Warning(format string, a ...any) {
	marked(yellow, "⚠️", "  ", fmt.Sprintf(format, a...))
}

// Step prints a cyan progress line.
func Step(format string, a ...any) {
	marked(cyan, "→", " ", fmt.Sprintf(format, a...))
}

// Info prints uncolored output.
func Info(format string, a ...any) {
	fmt.Fprintf(stdout, format, a...)
}

// Println prints a plain line, used for machine-readable output.
func Println(a ...any) {
	fmt.Fprintln(stdout, a...)
}

// Error reports a failure on stderr and returns an error whose text is title,
// for cobra to return with SilenceErrors set.
func Error(title string, explanation string, suggestions []string) error {
	return ErrorWithContext(title, explanation, nil, suggestions)
}

// ErrorWithContext is Error with a block of "key: value" details, printed in
// key order.
func ErrorWithContext(title string, explanation string, context map[string]string, suggestions []string) error {
	red.Fprintf(stderr, "%s\n\n", title)
	if explanation != "" {
		fmt.Fprintln(stderr, explanation)
	}
	writeContext(stderr, context)
	writeSuggestions(stderr, suggestions)
	return fmt.Errorf("%s", title)
}

func writeContext(w io.Writer, context map[string]string) {
	if len(context) == 0 {
		return
	}
	keys := make([]string, 0, len(context))
	for key := range context {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	fmt.Fprintln(w)
	for _, key := range keys {
		fmt.Fprintf(w, "  %s: %s\n", key, context[key])
	}
}

func writeSuggestions(w io.Writer, suggestions []string) {
	switch len(suggestions) {
	case 0:
		return
	case 1:
		fmt.Fprintf(w, "\n%s\n", suggestions[0])
	default:
		fmt.Fprint(w, "\nEither:\n")
		for i, suggestion := range suggestions {
			fmt.Fprintf(w, "  %d. %s\n", i+1, suggestion)
		}
	}
}
