package savepkg

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/dyluth/stash/pkg/codec"
)

// ErrCorruptPackage is returned when the envelope cannot be parsed at all.
var ErrCorruptPackage = errors.New("corrupt save package")

const (
	namesBlock = "system_names"
	dataBlock  = "system_data"
)

// wire is the on-disk layout: package metadata plus the two parallel arrays
// as codec blocks, so names and blobs are enciphered field by field.
type wire struct {
	*Package
	Encrypted bool         `json:"encrypted"`
	Names     *codec.Block `json:"system_names"`
	Data      *codec.Block `json:"system_data"`
}

// Marshal serializes p. When c has a cipher, every system name and every
// blob is enciphered independently; metadata stays readable.
func Marshal(p *Package, c *codec.Codec) ([]byte, error) {
	if p == nil {
		return nil, fmt.Errorf("package cannot be nil")
	}
	p.RecomputeChecksum()

	names, err := c.EncodeStrings(namesBlock, p.SystemNames)
	if err != nil {
		return nil, fmt.Errorf("failed to encode system names: %w", err)
	}
	data, err := c.EncodeStrings(dataBlock, p.SystemData)
	if err != nil {
		return nil, fmt.Errorf("failed to encode system data: %w", err)
	}

	w := wire{Package: p, Encrypted: c.Enabled(), Names: &names, Data: &data}
	out, err := json.MarshalIndent(w, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal package: %w", err)
	}
	return out, nil
}

// Unmarshal parses bytes written by Marshal.
//
// Entries that fail to decipher are not fatal: the affected name or blob is
// left empty (an empty name is dropped by ToMap) and a warning is returned
// for each. ErrCorruptPackage is returned when the envelope is not valid
// JSON, was written by a newer format, or no entry at all could be decoded.
func Unmarshal(data []byte, c *codec.Codec) (*Package, []error, error) {
	w := wire{Package: &Package{}}
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrCorruptPackage, err)
	}
	p := w.Package

	if p.FormatVersion > FormatVersion {
		return nil, nil, fmt.Errorf("%w: format version %d is newer than supported version %d",
			ErrCorruptPackage, p.FormatVersion, FormatVersion)
	}
	if w.Names == nil || w.Data == nil {
		return nil, nil, fmt.Errorf("%w: missing system arrays", ErrCorruptPackage)
	}
	if w.Encrypted != c.Enabled() {
		if w.Encrypted {
			return nil, nil, fmt.Errorf("%w: package is encrypted but encryption is disabled", ErrCorruptPackage)
		}
		return nil, nil, fmt.Errorf("%w: package is not encrypted but encryption is enabled", ErrCorruptPackage)
	}

	var warnings []error
	_, names, err := c.DecodeStrings(*w.Names)
	if err != nil {
		warnings = append(warnings, flatten(err)...)
	}
	_, blobs, err := c.DecodeStrings(*w.Data)
	if err != nil {
		warnings = append(warnings, flatten(err)...)
	}

	total := len(w.Names.Values) + len(w.Data.Values)
	if total > 0 && failedValues(warnings) >= total {
		return nil, warnings, fmt.Errorf("%w: no entry could be decoded", ErrCorruptPackage)
	}

	if len(names) != len(blobs) {
		warnings = append(warnings, fmt.Errorf("system array length mismatch: %d names, %d data entries",
			len(names), len(blobs)))
	}

	// Keep the stored checksum; SetSystemData would overwrite it.
	stored := p.Checksum
	p.SetSystemData(names, blobs)
	p.Checksum = stored
	if !p.VerifyChecksum() {
		warnings = append(warnings, fmt.Errorf("checksum mismatch: stored %d, computed %d",
			stored, ComputeChecksum(p.SystemData)))
	}

	return p, warnings, nil
}

// failedValues counts value-level decode failures, ignoring block names.
func failedValues(errs []error) int {
	n := 0
	for _, err := range errs {
		var fe *codec.FieldError
		if errors.As(err, &fe) && fe.Index >= 0 {
			n++
		}
	}
	return n
}

// flatten unpacks a joined error into its parts.
func flatten(err error) []error {
	if joined, ok := err.(interface{ Unwrap() []error }); ok {
		return joined.Unwrap()
	}
	return []error{err}
}
