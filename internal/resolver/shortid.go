// Package resolver matches short operation id prefixes against relayed
// completions.
package resolver

import (
	"fmt"
	"strings"

	"github.com/dyluth/stash/internal/relay"
)

// MinShortIDLength is the minimum required length for short ID prefixes.
const MinShortIDLength = 6

// ResolveOperation finds the completion whose operation id starts with
// shortID. A full UUID must match exactly.
func ResolveOperation(history []relay.Message, shortID string) (*relay.Message, error) {
	shortID = strings.ToLower(strings.TrimSpace(shortID))

	if len(shortID) == 36 && strings.Count(shortID, "-") == 4 {
		for i := range history {
			if history[i].OperationID() == shortID {
				return &history[i], nil
			}
		}
		return nil, &NotFoundError{ShortID: shortID}
	}

	if len(shortID) < MinShortIDLength {
		return nil, fmt.Errorf("short ID must be at least %d characters (got %d)", MinShortIDLength, len(shortID))
	}

	var matches []*relay.Message
	for i := range history {
		if strings.HasPrefix(history[i].OperationID(), shortID) {
			matches = append(matches, &history[i])
		}
	}

	switch len(matches) {
	case 0:
		return nil, &NotFoundError{ShortID: shortID}
	case 1:
		return matches[0], nil
	default:
		ids := make([]string, len(matches))
		for i, m := range matches {
			ids[i] = m.OperationID()
		}
		return nil, &AmbiguousError{ShortID: shortID, Matches: ids}
	}
}

// NotFoundError indicates no operation matched the short ID.
type NotFoundError struct {
	ShortID string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("no operations found matching '%s'", e.ShortID)
}

// AmbiguousError indicates multiple operations matched the short ID.
type AmbiguousError struct {
	ShortID string
	Matches []string
}

func (e *AmbiguousError) Error() string {
	return fmt.Sprintf("ambiguous short ID '%s' matches %d operations", e.ShortID, len(e.Matches))
}

// FormatAmbiguousError lists the matching ids (up to 10, then "...and N more").
func FormatAmbiguousError(err *AmbiguousError) string {
	var b strings.Builder
	fmt.Fprintf(&b, "ambiguous short ID '%s' matches %d operations:\n", err.ShortID, len(err.Matches))

	displayCount := min(len(err.Matches), 10)
	for i := 0; i < displayCount; i++ {
		fmt.Fprintf(&b, "  %s\n", err.Matches[i])
	}
	if len(err.Matches) > 10 {
		fmt.Fprintf(&b, "  ...and %d more\n", len(err.Matches)-10)
	}

	b.WriteString("\nUse a longer prefix to uniquely identify the operation.")
	return b.String()
}

// IsNotFoundError checks if an error is a NotFoundError.
func IsNotFoundError(err error) bool {
	_, ok := err.(*NotFoundError)
	return ok
}

// IsAmbiguousError checks if an error is an AmbiguousError.
func IsAmbiguousError(err error) bool {
	_, ok := err.(*AmbiguousError)
	return ok
}
