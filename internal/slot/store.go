// Package slot persists save packages to numbered slots.
//
// A Store maps a slot number to one opaque byte payload. Writes never replace
// an existing slot unless the caller asks for it with Replace; a replaced
// payload is kept as the slot's backup until the next replace or delete.
package slot

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotFound is returned when a slot has never been written or was deleted.
	ErrNotFound = errors.New("save slot not found")

	// ErrSlotOccupied is returned by a CreateOnly write to an existing slot.
	ErrSlotOccupied = errors.New("save slot already exists")

	// ErrInvalidSlot is returned for negative slot numbers.
	ErrInvalidSlot = errors.New("save slot must be >= 0")
)

// WriteMode states the caller's intent when the slot already exists.
type WriteMode int

const (
	// CreateOnly fails with ErrSlotOccupied if the slot exists.
	CreateOnly WriteMode = iota

	// Replace overwrites the slot, keeping the previous payload as a backup.
	Replace
)

// Status is a human-readable summary of a slot.
type Status string

const (
	StatusEmpty      Status = "empty"
	StatusSaved      Status = "saved"
	StatusBackupOnly Status = "backup-only"
)

// Info describes one slot. It is computed on demand and never persisted.
type Info struct {
	Slot      int       `json:"slot"`
	Exists    bool      `json:"exists"`
	Location  string    `json:"location"` // file path or Redis key
	Size      int64     `json:"size"`
	ModTime   time.Time `json:"mod_time"`
	HasBackup bool      `json:"has_backup"`
	Status    Status    `json:"status"`
}

func statusOf(exists, hasBackup bool) Status {
	switch {
	case exists:
		return StatusSaved
	case hasBackup:
		return StatusBackupOnly
	default:
		return StatusEmpty
	}
}

// Store reads and writes slot payloads.
type Store interface {
	Exists(ctx context.Context, slot int) (bool, error)
	Read(ctx context.Context, slot int) ([]byte, error)
	Write(ctx context.Context, slot int, data []byte, mode WriteMode) error
	Delete(ctx context.Context, slot int) error
	RestoreBackup(ctx context.Context, slot int) error
	Describe(ctx context.Context, slot int) (Info, error)
	List(ctx context.Context) ([]Info, error)
}

// IsNotFound reports whether err means the slot does not exist.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

func validSlot(slot int) error {
	if slot < 0 {
		return ErrInvalidSlot
	}
	return nil
}
