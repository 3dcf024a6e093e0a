// Package watch renders relayed save and load completions as they happen.
package watch

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/dyluth/stash/internal/relay"
)

// OutputFormat specifies how streamed events are written.
type OutputFormat string

const (
	// OutputFormatDefault is human-readable output with timestamps and emojis
	OutputFormatDefault OutputFormat = "default"

	// OutputFormatJSON writes one JSON object per line
	OutputFormatJSON OutputFormat = "json"
)

// formatter writes one relayed message.
type formatter interface {
	FormatMessage(m *relay.Message) error
}

func newFormatter(format OutputFormat, w io.Writer) (formatter, error) {
	switch format {
	case OutputFormatDefault, "":
		return &defaultFormatter{writer: w}, nil
	case OutputFormatJSON:
		return &jsonFormatter{writer: w}, nil
	default:
		return nil, fmt.Errorf("unknown output format: %s", format)
	}
}

// defaultFormatter writes one human-readable line per event.
type defaultFormatter struct {
	writer io.Writer
}

func (f *defaultFormatter) FormatMessage(m *relay.Message) error {
	ts := time.Now().Format("15:04:05")

	var line string
	switch {
	case m.Save != nil:
		e := m.Save
		if e.Success {
			line = fmt.Sprintf("[%s] 💾 Saved slot=%d systems=%d op=%s", ts, e.SaveSlot, e.SystemsSaved, shortID(e.OperationID))
		} else {
			line = fmt.Sprintf("[%s] ❌ Save failed slot=%d systems=%d op=%s: %s", ts, e.SaveSlot, e.SystemsSaved, shortID(e.OperationID), e.ErrorMessage)
		}
	case m.Load != nil:
		e := m.Load
		if e.Success {
			line = fmt.Sprintf("[%s] 📂 Loaded slot=%d systems=%d op=%s", ts, e.SaveSlot, e.SystemsLoaded, shortID(e.OperationID))
		} else {
			line = fmt.Sprintf("[%s] ❌ Load failed slot=%d op=%s: %s", ts, e.SaveSlot, shortID(e.OperationID), e.ErrorMessage)
		}
		line += formatWarnings(e.Warnings)
	default:
		line = fmt.Sprintf("[%s] ❓ Unknown event kind=%s", ts, m.Kind)
	}

	_, err := fmt.Fprintln(f.writer, line)
	return err
}

// jsonFormatter writes each message as one JSON line.
type jsonFormatter struct {
	writer io.Writer
}

func (f *jsonFormatter) FormatMessage(m *relay.Message) error {
	data, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}
	_, err = fmt.Fprintf(f.writer, "%s\n", data)
	return err
}

// WriteMessage writes a single message in the given format.
func WriteMessage(w io.Writer, format OutputFormat, m *relay.Message) error {
	f, err := newFormatter(format, w)
	if err != nil {
		return err
	}
	return f.FormatMessage(m)
}

func formatWarnings(warnings []string) string {
	if len(warnings) == 0 {
		return ""
	}
	return fmt.Sprintf(" (warnings: %s)", strings.Join(warnings, "; "))
}

// shortID truncates an operation ID to its first 8 characters.
func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

// StreamEvents writes every message from sub to w until ctx is cancelled or
// the subscription ends. Unreadable payloads are reported to errW and skipped.
func StreamEvents(ctx context.Context, sub *relay.Subscription, format OutputFormat, w, errW io.Writer) error {
	f, err := newFormatter(format, w)
	if err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return nil

		case err, ok := <-sub.Errors():
			if !ok {
				return nil
			}
			fmt.Fprintf(errW, "⚠️  %v\n", err)

		case m, ok := <-sub.Events():
			if !ok {
				return nil
			}
			if err := f.FormatMessage(m); err != nil {
				return fmt.Errorf("failed to write event: %w", err)
			}
		}
	}
}

// WaitForOperation waits for the completion of operationID on sub.
// Returns the message or an error if timeout occurs.
func WaitForOperation(ctx context.Context, sub *relay.Subscription, operationID string, timeout time.Duration) (*relay.Message, error) {
	timeoutCh := time.After(timeout)

	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()

		case <-timeoutCh:
			return nil, fmt.Errorf("timeout waiting for operation %s after %v", operationID, timeout)

		case m, ok := <-sub.Events():
			if !ok {
				return nil, fmt.Errorf("subscription closed before operation %s completed", operationID)
			}
			if m.OperationID() == operationID {
				return m, nil
			}
		}
	}
}
