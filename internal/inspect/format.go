package inspect

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/dyluth/stash/internal/slot"
	"github.com/olekukonko/tablewriter"
)

// FormatTable writes slots as a formatted table to the provided writer.
// The table includes columns: SLOT, STATUS, SIZE, SAVED, BACKUP and LOCATION.
// Returns the number of slots formatted.
func FormatTable(w io.Writer, slots []slot.Info, where string) (int, error) {
	if len(slots) == 0 {
		fmt.Fprintf(w, "No save slots found in %s\n", where)
		return 0, nil
	}

	fmt.Fprintf(w, "Save slots in %s:\n\n", where)

	table := tablewriter.NewWriter(w)
	table.Header("Slot", "Status", "Size", "Saved", "Backup", "Location")
	for _, info := range slots {
		row := []string{
			strconv.Itoa(info.Slot),
			string(info.Status),
			formatSize(info.Size, info.Exists),
			formatAge(info.ModTime),
			formatBackup(info.HasBackup),
			info.Location,
		}
		if err := table.Append(row); err != nil {
			return 0, fmt.Errorf("failed to build slot table: %w", err)
		}
	}
	if err := table.Render(); err != nil {
		return 0, fmt.Errorf("failed to render slot table: %w", err)
	}

	countMsg := "slot"
	if len(slots) != 1 {
		countMsg = "slots"
	}
	fmt.Fprintf(w, "\n%d %s found\n", len(slots), countMsg)

	return len(slots), nil
}

// FormatJSONL writes slots as line-delimited JSON (JSONL) to the provided writer.
// Each slot is written as a single JSON object on its own line.
func FormatJSONL(w io.Writer, slots []slot.Info) error {
	for _, info := range slots {
		data, err := json.Marshal(info)
		if err != nil {
			return fmt.Errorf("failed to marshal slot to JSON: %w", err)
		}

		_, err = fmt.Fprintf(w, "%s\n", string(data))
		if err != nil {
			return fmt.Errorf("failed to write JSONL output: %w", err)
		}
	}

	return nil
}

// FormatReportJSON writes a slot report as pretty-printed JSON to the provided writer.
func FormatReportJSON(w io.Writer, report *Report) error {
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal report to JSON: %w", err)
	}

	_, err = w.Write(data)
	if err != nil {
		return fmt.Errorf("failed to write JSON output: %w", err)
	}

	fmt.Fprintln(w)

	return nil
}

// formatSize renders a byte count, "-" when the slot holds nothing.
func formatSize(size int64, exists bool) string {
	if !exists {
		return "-"
	}
	switch {
	case size < 1024:
		return fmt.Sprintf("%dB", size)
	case size < 1024*1024:
		return fmt.Sprintf("%.1fK", float64(size)/1024)
	default:
		return fmt.Sprintf("%.1fM", float64(size)/(1024*1024))
	}
}

func formatBackup(has bool) string {
	if has {
		return "yes"
	}
	return "-"
}

// formatAge shows relative time like "2m ago", "1h ago", etc.
func formatAge(t time.Time) string {
	if t.IsZero() {
		return "-"
	}

	diff := time.Since(t)
	if diff < 0 {
		diff = 0
	}

	if diff < time.Minute {
		return fmt.Sprintf("%ds ago", int(diff.Seconds()))
	} else if diff < time.Hour {
		return fmt.Sprintf("%dm ago", int(diff.Minutes()))
	} else if diff < 24*time.Hour {
		return fmt.Sprintf("%dh ago", int(diff.Hours()))
	}
	return fmt.Sprintf("%dd ago", int(diff.Hours()/24))
}

// formatPreview truncates a blob to its first 40 characters for display.
// Empty blobs return "-".
func formatPreview(blob string) string {
	if blob == "" {
		return "-"
	}
	r := []rune(blob)
	if len(r) > 40 {
		return string(r[:37]) + "..."
	}
	return blob
}
