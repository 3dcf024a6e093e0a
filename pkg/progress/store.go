// Package progress holds game-progress state as a bag of named primitives.
//
// Each primitive kind is stored as a parallel key/value array pair. Keys are
// unique within a kind; the same key may appear once in every kind.
package progress

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/dyluth/stash/pkg/codec"
)

// ListDelimiter joins list items into a single stored string.
const ListDelimiter = ";"

var (
	// ErrInvalidListItem is returned when a list item contains ListDelimiter,
	// or when a list holds a single empty item (it would read back as empty).
	ErrInvalidListItem = errors.New("invalid list item")

	// ErrEmptyKey is returned when a value is stored under an empty key.
	ErrEmptyKey = errors.New("progress key cannot be empty")
)

// Store is a typed value store. The zero value is ready to use.
type Store struct {
	BoolKeys     []string
	BoolValues   []bool
	IntKeys      []string
	IntValues    []int
	FloatKeys    []string
	FloatValues  []float64
	StringKeys   []string
	StringValues []string
	ListKeys     []string
	ListValues   []string
}

func indexOf(keys []string, key string) int {
	for i, k := range keys {
		if k == key {
			return i
		}
	}
	return -1
}

func set[T any](keys *[]string, values *[]T, key string, v T) error {
	if key == "" {
		return ErrEmptyKey
	}
	if i := indexOf(*keys, key); i >= 0 {
		(*values)[i] = v
		return nil
	}
	*keys = append(*keys, key)
	*values = append(*values, v)
	return nil
}

func get[T any](keys []string, values []T, key string) (T, bool) {
	var zero T
	i := indexOf(keys, key)
	if i < 0 || i >= len(values) {
		return zero, false
	}
	return values[i], true
}

func remove[T any](keys *[]string, values *[]T, key string) bool {
	i := indexOf(*keys, key)
	if i < 0 {
		return false
	}
	*keys = append((*keys)[:i], (*keys)[i+1:]...)
	if i < len(*values) {
		*values = append((*values)[:i], (*values)[i+1:]...)
	}
	return true
}

// SetBool stores a bool under key.
func (s *Store) SetBool(key string, v bool) error { return set(&s.BoolKeys, &s.BoolValues, key, v) }

// SetInt stores an int under key.
func (s *Store) SetInt(key string, v int) error { return set(&s.IntKeys, &s.IntValues, key, v) }

// SetFloat stores a float under key.
func (s *Store) SetFloat(key string, v float64) error {
	return set(&s.FloatKeys, &s.FloatValues, key, v)
}

// SetString stores a string under key.
func (s *Store) SetString(key string, v string) error {
	return set(&s.StringKeys, &s.StringValues, key, v)
}

func (s *Store) Bool(key string) (bool, bool) { return get(s.BoolKeys, s.BoolValues, key) }

func (s *Store) Int(key string) (int, bool) { return get(s.IntKeys, s.IntValues, key) }

func (s *Store) Float(key string) (float64, bool) { return get(s.FloatKeys, s.FloatValues, key) }

func (s *Store) String(key string) (string, bool) { return get(s.StringKeys, s.StringValues, key) }

// SetList stores items joined by ListDelimiter. Items may not contain the
// delimiter, and a list of exactly one empty item is rejected.
func (s *Store) SetList(key string, items []string) error {
	if len(items) == 1 && items[0] == "" {
		return fmt.Errorf("%w: single empty item", ErrInvalidListItem)
	}
	for _, it := range items {
		if strings.Contains(it, ListDelimiter) {
			return fmt.Errorf("%w: %q contains %q", ErrInvalidListItem, it, ListDelimiter)
		}
	}
	return set(&s.ListKeys, &s.ListValues, key, strings.Join(items, ListDelimiter))
}

// List returns the items stored under key. An empty stored list yields an
// empty, non-nil slice.
func (s *Store) List(key string) ([]string, bool) {
	joined, ok := get(s.ListKeys, s.ListValues, key)
	if !ok {
		return nil, false
	}
	if joined == "" {
		return []string{}, true
	}
	return strings.Split(joined, ListDelimiter), true
}

// Increment adds delta to the int stored under key, starting from zero.
func (s *Store) Increment(key string, delta int) (int, error) {
	v, _ := s.Int(key)
	v += delta
	if err := s.SetInt(key, v); err != nil {
		return 0, err
	}
	return v, nil
}

// Delete removes key from every kind. It reports whether anything was removed.
func (s *Store) Delete(key string) bool {
	removed := remove(&s.BoolKeys, &s.BoolValues, key)
	removed = remove(&s.IntKeys, &s.IntValues, key) || removed
	removed = remove(&s.FloatKeys, &s.FloatValues, key) || removed
	removed = remove(&s.StringKeys, &s.StringValues, key) || removed
	removed = remove(&s.ListKeys, &s.ListValues, key) || removed
	return removed
}

// Len returns the total number of stored values across all kinds.
func (s *Store) Len() int {
	return len(s.BoolKeys) + len(s.IntKeys) + len(s.FloatKeys) + len(s.StringKeys) + len(s.ListKeys)
}

// Block names inside a marshaled store.
const (
	blockBools   = "bools"
	blockInts    = "ints"
	blockFloats  = "floats"
	blockStrings = "strings"
	blockLists   = "lists"
)

// envelope is the serialized form: one key block and one value block per kind.
type envelope struct {
	Keys   map[string]codec.Block `json:"keys"`
	Values map[string]codec.Block `json:"values"`
}

// Marshal encodes the store into a single text blob using c for every value.
func (s *Store) Marshal(c *codec.Codec) (string, error) {
	env := envelope{
		Keys:   make(map[string]codec.Block, 5),
		Values: make(map[string]codec.Block, 5),
	}

	add := func(kind string, keys []string, values codec.Block, err error) error {
		if err != nil {
			return fmt.Errorf("failed to encode %s: %w", kind, err)
		}
		kb, err := c.EncodeStrings(kind, keys)
		if err != nil {
			return fmt.Errorf("failed to encode %s keys: %w", kind, err)
		}
		env.Keys[kind] = kb
		env.Values[kind] = values
		return nil
	}

	b, err := c.EncodeBools(blockBools, s.BoolValues)
	if err := add(blockBools, s.BoolKeys, b, err); err != nil {
		return "", err
	}
	b, err = c.EncodeInts(blockInts, s.IntValues)
	if err := add(blockInts, s.IntKeys, b, err); err != nil {
		return "", err
	}
	b, err = c.EncodeFloats(blockFloats, s.FloatValues)
	if err := add(blockFloats, s.FloatKeys, b, err); err != nil {
		return "", err
	}
	b, err = c.EncodeStrings(blockStrings, s.StringValues)
	if err := add(blockStrings, s.StringKeys, b, err); err != nil {
		return "", err
	}
	b, err = c.EncodeStrings(blockLists, s.ListValues)
	if err := add(blockLists, s.ListKeys, b, err); err != nil {
		return "", err
	}

	data, err := json.Marshal(env)
	if err != nil {
		return "", fmt.Errorf("failed to marshal progress store: %w", err)
	}
	return string(data), nil
}

// Unmarshal decodes a blob produced by Marshal. A blob that is not valid JSON
// returns an error and an empty store. Otherwise the store is always
// returned: values that fail to decode hold their zero value, keys that fail
// to decode are dropped, and the joined error describes both.
func Unmarshal(c *codec.Codec, blob string) (*Store, error) {
	s := &Store{}
	if blob == "" {
		return s, nil
	}

	var env envelope
	if err := json.Unmarshal([]byte(blob), &env); err != nil {
		return s, fmt.Errorf("failed to parse progress store: %w", err)
	}

	var errs []error
	present := func(kind string) bool {
		_, hasKeys := env.Keys[kind]
		_, hasValues := env.Values[kind]
		return hasKeys && hasValues
	}
	keysOf := func(kind string) []string {
		_, keys, err := c.DecodeStrings(env.Keys[kind])
		if err != nil {
			errs = append(errs, err)
		}
		return keys
	}
	check := func(err error) {
		if err != nil {
			errs = append(errs, err)
		}
	}

	if present(blockBools) {
		_, values, err := c.DecodeBools(env.Values[blockBools])
		check(err)
		s.BoolKeys, s.BoolValues = zip(keysOf(blockBools), values)
	}
	if present(blockInts) {
		_, values, err := c.DecodeInts(env.Values[blockInts])
		check(err)
		s.IntKeys, s.IntValues = zip(keysOf(blockInts), values)
	}
	if present(blockFloats) {
		_, values, err := c.DecodeFloats(env.Values[blockFloats])
		check(err)
		s.FloatKeys, s.FloatValues = zip(keysOf(blockFloats), values)
	}
	if present(blockStrings) {
		_, values, err := c.DecodeStrings(env.Values[blockStrings])
		check(err)
		s.StringKeys, s.StringValues = zip(keysOf(blockStrings), values)
	}
	if present(blockLists) {
		_, values, err := c.DecodeStrings(env.Values[blockLists])
		check(err)
		s.ListKeys, s.ListValues = zip(keysOf(blockLists), values)
	}

	return s, errors.Join(errs...)
}

// zip pairs keys with values up to the shorter length, dropping empty or
// repeated keys.
func zip[T any](keys []string, values []T) ([]string, []T) {
	n := min(len(keys), len(values))
	outKeys := make([]string, 0, n)
	outValues := make([]T, 0, n)
	seen := make(map[string]bool, n)
	for i := 0; i < n; i++ {
		k := keys[i]
		if k == "" || seen[k] {
			continue
		}
		seen[k] = true
		outKeys = append(outKeys, k)
		outValues = append(outValues, values[i])
	}
	return outKeys, outValues
}
