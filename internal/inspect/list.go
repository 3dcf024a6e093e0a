// Package inspect renders save slots for operators: a listing of every slot
// and a decoded view of a single slot's package.
package inspect

import (
	"context"
	"fmt"
	"io"
	"sort"

	"github.com/dyluth/stash/internal/slot"
)

// OutputFormat specifies how to format the slot list output.
type OutputFormat string

const (
	// OutputFormatDefault uses a table format
	OutputFormatDefault OutputFormat = "default"

	// OutputFormatJSONL outputs one slot description per line as JSON
	OutputFormatJSONL OutputFormat = "jsonl"
)

// FilterCriteria defines filtering options for the slot listing.
// All filters are ANDed together.
type FilterCriteria struct {
	SinceTimestampMs int64       // Unix timestamp in milliseconds, 0 = no filter
	UntilTimestampMs int64       // Unix timestamp in milliseconds, 0 = no filter
	Status           slot.Status // empty = no filter
}

// matchesFilter returns true if the slot matches all filter criteria.
// Time filters only match slots that have a modification time.
func (fc *FilterCriteria) matchesFilter(info slot.Info) bool {
	if fc.SinceTimestampMs > 0 || fc.UntilTimestampMs > 0 {
		if info.ModTime.IsZero() {
			return false
		}
		ms := info.ModTime.UnixMilli()
		if fc.SinceTimestampMs > 0 && ms < fc.SinceTimestampMs {
			return false
		}
		if fc.UntilTimestampMs > 0 && ms > fc.UntilTimestampMs {
			return false
		}
	}

	if fc.Status != "" && info.Status != fc.Status {
		return false
	}

	return true
}

// ListSlots describes every slot in the store and writes them to w, ordered
// by slot number. where names the store in the table heading.
func ListSlots(ctx context.Context, store slot.Store, where string, format OutputFormat, filters *FilterCriteria, w io.Writer) error {
	all, err := store.List(ctx)
	if err != nil {
		return fmt.Errorf("failed to list slots: %w", err)
	}

	slots := make([]slot.Info, 0, len(all))
	for _, info := range all {
		if filters != nil && !filters.matchesFilter(info) {
			continue
		}
		slots = append(slots, info)
	}

	sort.Slice(slots, func(i, j int) bool {
		return slots[i].Slot < slots[j].Slot
	})

	switch format {
	case OutputFormatDefault, "":
		if _, err := FormatTable(w, slots, where); err != nil {
			return err
		}
	case OutputFormatJSONL:
		if err := FormatJSONL(w, slots); err != nil {
			return fmt.Errorf("failed to format JSONL output: %w", err)
		}
	default:
		return fmt.Errorf("unknown output format: %s", format)
	}

	return nil
}
