package systems

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dyluth/stash/pkg/codec"
)

// SettingsValues are the player preferences kept in a save.
type SettingsValues struct {
	MasterVolume     float64
	Fullscreen       bool
	PlayerName       string
	Difficulty       int
	AutosaveInterval time.Duration
	WindowPosition   codec.Vector2
	AccentColor      codec.Color
	LastPlayed       time.Time
}

// DefaultSettings returns the values used before anything is loaded.
func DefaultSettings() SettingsValues {
	return SettingsValues{
		MasterVolume:     0.8,
		Fullscreen:       true,
		PlayerName:       "Player",
		Difficulty:       1,
		AutosaveInterval: 5 * time.Minute,
		AccentColor:      codec.Color{R: 1, G: 1, B: 1, A: 1},
	}
}

// Block names of the serialized settings.
const (
	settingVolume     = "master_volume"
	settingFullscreen = "fullscreen"
	settingPlayerName = "player_name"
	settingDifficulty = "difficulty"
	settingAutosave   = "autosave_interval"
	settingWindowPos  = "window_position"
	settingAccent     = "accent_color"
	settingLastPlayed = "last_played"
)

// Settings saves player preferences, one codec block per value.
type Settings struct {
	name  string
	codec *codec.Codec

	mu     sync.Mutex
	values SettingsValues
}

// NewSettings creates settings with DefaultSettings saved under name. A nil
// codec means plain values.
func NewSettings(name string, c *codec.Codec) *Settings {
	if c == nil {
		c = codec.New(nil)
	}
	return &Settings{name: name, codec: c, values: DefaultSettings()}
}

func (s *Settings) SystemName() string { return s.name }

// Values returns the current settings.
func (s *Settings) Values() SettingsValues {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.values
}

// Set replaces the current settings.
func (s *Settings) Set(v SettingsValues) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values = v
}

func (s *Settings) CaptureState() (string, error) {
	v := s.Values()
	c := s.codec

	fields := []struct {
		key    string
		encode func() (codec.Block, error)
	}{
		{settingVolume, func() (codec.Block, error) { return c.EncodeFloats(settingVolume, []float64{v.MasterVolume}) }},
		{settingFullscreen, func() (codec.Block, error) { return c.EncodeBools(settingFullscreen, []bool{v.Fullscreen}) }},
		{settingPlayerName, func() (codec.Block, error) { return c.EncodeStrings(settingPlayerName, []string{v.PlayerName}) }},
		{settingDifficulty, func() (codec.Block, error) { return c.EncodeInts(settingDifficulty, []int{v.Difficulty}) }},
		{settingAutosave, func() (codec.Block, error) {
			return c.EncodeDurations(settingAutosave, []time.Duration{v.AutosaveInterval})
		}},
		{settingWindowPos, func() (codec.Block, error) {
			return c.EncodeVectors(settingWindowPos, []codec.Vector2{v.WindowPosition})
		}},
		{settingAccent, func() (codec.Block, error) { return c.EncodeColors(settingAccent, []codec.Color{v.AccentColor}) }},
		{settingLastPlayed, func() (codec.Block, error) {
			return c.EncodeTimestamps(settingLastPlayed, []time.Time{v.LastPlayed})
		}},
	}

	blocks := make(map[string]codec.Block, len(fields))
	for _, f := range fields {
		b, err := f.encode()
		if err != nil {
			return "", fmt.Errorf("failed to encode setting %s: %w", f.key, err)
		}
		blocks[f.key] = b
	}

	// Keyed by the plain name; the block name inside may be enciphered.
	data, err := json.Marshal(blocks)
	if err != nil {
		return "", fmt.Errorf("failed to marshal settings: %w", err)
	}
	return string(data), nil
}

// RestoreState applies every setting that decodes. A setting that is missing
// or fails to decode keeps its default, and the failure is reported in the
// returned error.
func (s *Settings) RestoreState(blob string) error {
	var blocks map[string]codec.Block
	if err := json.Unmarshal([]byte(blob), &blocks); err != nil {
		return fmt.Errorf("failed to parse settings: %w", err)
	}

	c := s.codec
	v := DefaultSettings()
	var errs []error

	restore(blocks, settingVolume, c.DecodeFloats, &v.MasterVolume, &errs)
	restore(blocks, settingFullscreen, c.DecodeBools, &v.Fullscreen, &errs)
	restore(blocks, settingPlayerName, c.DecodeStrings, &v.PlayerName, &errs)
	restore(blocks, settingDifficulty, c.DecodeInts, &v.Difficulty, &errs)
	restore(blocks, settingAutosave, c.DecodeDurations, &v.AutosaveInterval, &errs)
	restore(blocks, settingWindowPos, c.DecodeVectors, &v.WindowPosition, &errs)
	restore(blocks, settingAccent, c.DecodeColors, &v.AccentColor, &errs)
	restore(blocks, settingLastPlayed, c.DecodeTimestamps, &v.LastPlayed, &errs)

	s.Set(v)
	return errors.Join(errs...)
}

// restore decodes the single-value block key into dst. dst keeps its value
// when the block is missing or its value fails to decode.
func restore[T any](blocks map[string]codec.Block, key string, decode func(codec.Block) (string, []T, error), dst *T, errs *[]error) {
	b, ok := blocks[key]
	if !ok {
		*errs = append(*errs, fmt.Errorf("setting %s missing", key))
		return
	}
	_, values, err := decode(b)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("setting %s: %w", key, err))
		return
	}
	if len(values) != 1 {
		*errs = append(*errs, fmt.Errorf("setting %s: expected 1 value, got %d", key, len(values)))
		return
	}
	*dst = values[0]
}
