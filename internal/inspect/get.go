package inspect

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/dyluth/stash/internal/slot"
	"github.com/dyluth/stash/pkg/codec"
	"github.com/dyluth/stash/pkg/savepkg"
)

// Report is the decoded view of one slot.
type Report struct {
	Slot             int            `json:"slot"`
	Location         string         `json:"location"`
	Size             int64          `json:"size"`
	HasBackup        bool           `json:"has_backup"`
	FormatVersion    int            `json:"format_version"`
	SaveTime         time.Time      `json:"save_time"`
	SceneName        string         `json:"scene_name"`
	GameVersion      string         `json:"game_version"`
	OperationID      string         `json:"operation_id"`
	TotalSystems     int            `json:"total_systems"`
	SystemsResponded int            `json:"systems_responded"`
	Checksum         int            `json:"checksum"`
	ChecksumValid    bool           `json:"checksum_valid"`
	Systems          []SystemReport `json:"systems"`
	Warnings         []string       `json:"warnings,omitempty"`
}

// SystemReport describes one system entry in a package.
type SystemReport struct {
	Name    string `json:"name"`
	Size    int    `json:"size"`
	Preview string `json:"preview"`
	Data    string `json:"data,omitempty"`
}

// BuildReport reads and decodes one slot. With full set, each system's
// complete blob is included; otherwise only a preview.
func BuildReport(ctx context.Context, store slot.Store, c *codec.Codec, slotNum int, full bool) (*Report, error) {
	info, err := store.Describe(ctx, slotNum)
	if err != nil {
		return nil, fmt.Errorf("failed to describe slot: %w", err)
	}
	if !info.Exists {
		return nil, &SlotNotFoundError{Slot: slotNum, HasBackup: info.HasBackup}
	}

	data, err := store.Read(ctx, slotNum)
	if err != nil {
		if slot.IsNotFound(err) {
			return nil, &SlotNotFoundError{Slot: slotNum, HasBackup: info.HasBackup}
		}
		return nil, fmt.Errorf("failed to read slot: %w", err)
	}

	pkg, warnings, err := savepkg.Unmarshal(data, c)
	if err != nil {
		return nil, fmt.Errorf("failed to decode slot %d: %w", slotNum, err)
	}

	report := &Report{
		Slot:             slotNum,
		Location:         info.Location,
		Size:             info.Size,
		HasBackup:        info.HasBackup,
		FormatVersion:    pkg.FormatVersion,
		SaveTime:         pkg.SaveTime,
		SceneName:        pkg.SceneName,
		GameVersion:      pkg.GameVersion,
		OperationID:      pkg.OperationID,
		TotalSystems:     pkg.TotalSystems,
		SystemsResponded: pkg.SystemsResponded,
		Checksum:         pkg.Checksum,
		ChecksumValid:    pkg.VerifyChecksum(),
		Systems:          []SystemReport{},
	}
	for _, e := range pkg.Entries() {
		sr := SystemReport{Name: e.Name, Size: len(e.Data), Preview: formatPreview(e.Data)}
		if full {
			sr.Data = e.Data
		}
		report.Systems = append(report.Systems, sr)
	}
	for _, w := range warnings {
		report.Warnings = append(report.Warnings, w.Error())
	}

	return report, nil
}

// InspectSlot writes the decoded report of one slot as pretty-printed JSON.
// Returns a SlotNotFoundError if the slot holds no save.
func InspectSlot(ctx context.Context, store slot.Store, c *codec.Codec, slotNum int, full bool, w io.Writer) error {
	report, err := BuildReport(ctx, store, c, slotNum, full)
	if err != nil {
		return err
	}

	if err := FormatReportJSON(w, report); err != nil {
		return fmt.Errorf("failed to format report: %w", err)
	}

	return nil
}

// SlotNotFoundError represents a specific "slot not found" error.
// This allows callers to distinguish not-found errors from other failures.
type SlotNotFoundError struct {
	Slot      int
	HasBackup bool
}

func (e *SlotNotFoundError) Error() string {
	if e.HasBackup {
		return fmt.Sprintf("slot %d is empty (a backup exists)", e.Slot)
	}
	return fmt.Sprintf("slot %d is empty", e.Slot)
}

// IsNotFound returns true if the error is a SlotNotFoundError.
func IsNotFound(err error) bool {
	_, ok := err.(*SlotNotFoundError)
	return ok
}
