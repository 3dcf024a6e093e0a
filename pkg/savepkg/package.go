// Package savepkg defines the versioned envelope written to one save slot.
//
// A Package holds the aggregated state of every responding subsystem as two
// parallel arrays: SystemNames and SystemData. The Checksum is the sum of the
// lengths of every SystemData entry. It is a corruption smoke-test, not a
// cryptographic guarantee, and it is recomputed on every mutation of the pair.
package savepkg

import (
	"errors"
	"fmt"
	"sort"
	"time"
)

// FormatVersion is the newest envelope layout this package reads and the one it writes.
const FormatVersion = 1

var (
	// ErrDuplicateSystem is returned when a system name is added twice.
	ErrDuplicateSystem = errors.New("system name already present in package")

	// ErrEmptySystemName is returned when a system name is empty.
	ErrEmptySystemName = errors.New("system name cannot be empty")
)

// Entry is one (system name, blob) pair.
type Entry struct {
	Name string
	Data string
}

// Package is the persisted save envelope for one slot.
type Package struct {
	FormatVersion    int       `json:"format_version"`
	SaveSlot         int       `json:"save_slot"`
	SaveTime         time.Time `json:"save_time"`
	SceneName        string    `json:"scene_name"`
	SystemNames      []string  `json:"-"` // persisted as codec blocks, see Marshal
	SystemData       []string  `json:"-"`
	TotalSystems     int       `json:"total_systems"`     // systems expected to respond
	SystemsResponded int       `json:"systems_responded"` // systems that actually responded
	GameVersion      string    `json:"game_version"`
	OperationID      string    `json:"operation_id"`
	Checksum         int       `json:"checksum"`
}

// New creates an empty package for slot stamped with the current time.
func New(slot int, scene string) *Package {
	return &Package{
		FormatVersion: FormatVersion,
		SaveSlot:      slot,
		SaveTime:      time.Now().UTC(),
		SceneName:     scene,
		SystemNames:   []string{},
		SystemData:    []string{},
	}
}

// FromEntries builds a package preserving the order of entries.
// Entries with an empty or repeated name are skipped.
func FromEntries(slot int, scene string, entries []Entry) *Package {
	p := New(slot, scene)
	for _, e := range entries {
		_ = p.AddSystem(e.Name, e.Data)
	}
	p.SystemsResponded = len(p.SystemNames)
	p.TotalSystems = len(p.SystemNames)
	return p
}

// FromMap builds a package from a name→blob mapping. Names are sorted so the
// result does not depend on map iteration order.
func FromMap(slot int, scene string, m map[string]string) *Package {
	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, name)
	}
	sort.Strings(names)

	entries := make([]Entry, 0, len(names))
	for _, name := range names {
		entries = append(entries, Entry{Name: name, Data: m[name]})
	}
	return FromEntries(slot, scene, entries)
}

// AddSystem appends one system's blob and recomputes the checksum.
func (p *Package) AddSystem(name, data string) error {
	if name == "" {
		return ErrEmptySystemName
	}
	for _, existing := range p.SystemNames {
		if existing == name {
			return fmt.Errorf("%w: %q", ErrDuplicateSystem, name)
		}
	}
	p.SystemNames = append(p.SystemNames, name)
	p.SystemData = append(p.SystemData, data)
	p.RecomputeChecksum()
	return nil
}

// SetSystemData replaces both arrays and recomputes the checksum. The slices
// are copied; mismatched lengths are kept as given and resolved by ToMap.
func (p *Package) SetSystemData(names, data []string) {
	p.SystemNames = append([]string(nil), names...)
	p.SystemData = append([]string(nil), data...)
	p.RecomputeChecksum()
}

// RecomputeChecksum sets Checksum from the current SystemData.
func (p *Package) RecomputeChecksum() {
	p.Checksum = ComputeChecksum(p.SystemData)
}

// VerifyChecksum reports whether the stored checksum matches SystemData.
func (p *Package) VerifyChecksum() bool {
	return p.Checksum == ComputeChecksum(p.SystemData)
}

// ComputeChecksum returns the sum of the byte lengths of data.
func ComputeChecksum(data []string) int {
	sum := 0
	for _, d := range data {
		sum += len(d)
	}
	return sum
}

// Entries returns the (name, data) pairs up to the shorter array length,
// skipping empty names.
func (p *Package) Entries() []Entry {
	n := min(len(p.SystemNames), len(p.SystemData))
	out := make([]Entry, 0, n)
	for i := 0; i < n; i++ {
		if p.SystemNames[i] == "" {
			continue
		}
		out = append(out, Entry{Name: p.SystemNames[i], Data: p.SystemData[i]})
	}
	return out
}

// ToMap rebuilds the name→blob mapping. It pairs entries up to the shorter
// of the two arrays, drops unmatched trailing names and skips empty names.
func (p *Package) ToMap() map[string]string {
	entries := p.Entries()
	m := make(map[string]string, len(entries))
	for _, e := range entries {
		if _, seen := m[e.Name]; seen {
			continue
		}
		m[e.Name] = e.Data
	}
	return m
}
