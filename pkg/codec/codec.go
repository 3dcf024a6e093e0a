// Package codec encodes typed primitive arrays into "array blocks": a name plus
// one string per source value, each optionally passed through a cipher.
//
// Multi-field values (Vector2, Color, timestamps) are flattened into a single
// Delimiter-joined string before ciphering, so a block value is always one
// opaque string. Decoding never panics: a value that cannot be deciphered,
// split or parsed decodes to its zero value and is reported in the returned
// error, so one bad field never aborts the caller.
package codec

import (
	"errors"
	"fmt"

	"github.com/dyluth/stash/pkg/cipher"
)

// Delimiter joins the fields of composite values.
const Delimiter = "|"

// ErrCipherMismatch is returned when a block written with encryption is
// decoded by a plain codec, or the other way round. Every value of such a
// block decodes to its zero value.
var ErrCipherMismatch = errors.New("codec: block cipher mode does not match codec")

// Block is the encoded form of one named array.
type Block struct {
	Name      string   `json:"name"`
	Values    []string `json:"values"`
	Encrypted bool     `json:"encrypted,omitempty"`
}

// FieldError reports one value (Index >= 0) or the block name (Index == -1)
// that failed to decode.
type FieldError struct {
	Block string
	Index int
	Err   error
}

func (e *FieldError) Error() string {
	if e.Index < 0 {
		return fmt.Sprintf("block %q: name: %v", e.Block, e.Err)
	}
	return fmt.Sprintf("block %q: value %d: %v", e.Block, e.Index, e.Err)
}

func (e *FieldError) Unwrap() error { return e.Err }

// Codec encodes and decodes blocks. A Codec without a cipher works in plain mode.
type Codec struct {
	cipher cipher.Cipher
}

// New creates a codec. Passing a nil cipher disables encryption.
func New(c cipher.Cipher) *Codec {
	return &Codec{cipher: c}
}

// Enabled reports whether values are enciphered.
func (c *Codec) Enabled() bool {
	return c != nil && c.cipher != nil
}

// Seal enciphers one string when encryption is enabled.
func (c *Codec) Seal(s string) (string, error) {
	if !c.Enabled() {
		return s, nil
	}
	return c.cipher.Encrypt(s)
}

// Open reverses Seal.
func (c *Codec) Open(s string) (string, error) {
	if !c.Enabled() {
		return s, nil
	}
	return c.cipher.Decrypt(s)
}

func encode[T any](c *Codec, name string, values []T, format func(T) string) (Block, error) {
	sealedName, err := c.Seal(name)
	if err != nil {
		return Block{}, fmt.Errorf("failed to encrypt block name %q: %w", name, err)
	}

	b := Block{
		Name:      sealedName,
		Values:    make([]string, len(values)),
		Encrypted: c.Enabled(),
	}
	for i, v := range values {
		s, err := c.Seal(format(v))
		if err != nil {
			return Block{}, fmt.Errorf("failed to encrypt %q value %d: %w", name, i, err)
		}
		b.Values[i] = s
	}
	return b, nil
}

func decode[T any](c *Codec, b Block, parse func(string) (T, error)) (string, []T, error) {
	values := make([]T, len(b.Values))

	if b.Encrypted != c.Enabled() {
		return "", values, ErrCipherMismatch
	}

	var errs []error
	name, err := c.Open(b.Name)
	if err != nil {
		name = ""
		errs = append(errs, &FieldError{Block: b.Name, Index: -1, Err: err})
	}

	label := name
	if label == "" {
		label = b.Name
	}

	for i, raw := range b.Values {
		plain, err := c.Open(raw)
		if err != nil {
			errs = append(errs, &FieldError{Block: label, Index: i, Err: err})
			continue
		}
		v, err := parse(plain)
		if err != nil {
			errs = append(errs, &FieldError{Block: label, Index: i, Err: err})
			continue
		}
		values[i] = v
	}

	return name, values, errors.Join(errs...)
}
