package codec

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Vector2 is a 2D vector.
type Vector2 struct {
	X, Y float64
}

// Color is an RGBA color with float components, usually in [0,1].
type Color struct {
	R, G, B, A float64
}

const (
	vector2Fields   = 2
	colorFields     = 4
	timestampFields = 7
)

func formatFloat(f float64) string { return strconv.FormatFloat(f, 'g', -1, 64) }

func parseFloat(s string) (float64, error) { return strconv.ParseFloat(s, 64) }

func formatBool(b bool) string { return strconv.FormatBool(b) }

func formatInt(i int) string { return strconv.Itoa(i) }

func formatString(s string) string { return s }

func parseString(s string) (string, error) { return s, nil }

func formatDuration(d time.Duration) string { return strconv.FormatInt(int64(d), 10) }

func parseDuration(s string) (time.Duration, error) {
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, err
	}
	return time.Duration(n), nil
}

// splitFloats splits s into exactly n parsed floats.
func splitFloats(s string, n int) ([]float64, error) {
	parts := strings.Split(s, Delimiter)
	if len(parts) != n {
		return nil, fmt.Errorf("expected %d fields, got %d", n, len(parts))
	}
	out := make([]float64, n)
	for i, p := range parts {
		f, err := parseFloat(p)
		if err != nil {
			return nil, fmt.Errorf("field %d: %w", i, err)
		}
		out[i] = f
	}
	return out, nil
}

// FormatVector2 renders v as "x|y".
func FormatVector2(v Vector2) string {
	return formatFloat(v.X) + Delimiter + formatFloat(v.Y)
}

func parseVector2(s string) (Vector2, error) {
	f, err := splitFloats(s, vector2Fields)
	if err != nil {
		return Vector2{}, err
	}
	return Vector2{X: f[0], Y: f[1]}, nil
}

// ParseVector2 parses the output of FormatVector2. ok is false and the zero
// vector is returned when s is malformed.
func ParseVector2(s string) (Vector2, bool) {
	v, err := parseVector2(s)
	return v, err == nil
}

// FormatColor renders c as "r|g|b|a".
func FormatColor(c Color) string {
	return strings.Join([]string{
		formatFloat(c.R), formatFloat(c.G), formatFloat(c.B), formatFloat(c.A),
	}, Delimiter)
}

func parseColor(s string) (Color, error) {
	f, err := splitFloats(s, colorFields)
	if err != nil {
		return Color{}, err
	}
	return Color{R: f[0], G: f[1], B: f[2], A: f[3]}, nil
}

// ParseColor parses the output of FormatColor.
func ParseColor(s string) (Color, bool) {
	c, err := parseColor(s)
	return c, err == nil
}

// FormatTimestamp renders t in UTC as "year|month|day|hour|minute|second|millisecond".
// Precision below one millisecond is dropped.
func FormatTimestamp(t time.Time) string {
	t = t.UTC()
	fields := []int{
		t.Year(), int(t.Month()), t.Day(),
		t.Hour(), t.Minute(), t.Second(),
		t.Nanosecond() / int(time.Millisecond),
	}
	parts := make([]string, len(fields))
	for i, f := range fields {
		parts[i] = strconv.Itoa(f)
	}
	return strings.Join(parts, Delimiter)
}

var timestampLimits = [timestampFields][2]int{
	{1, 9999}, // year
	{1, 12},   // month
	{1, 31},   // day
	{0, 23},   // hour
	{0, 59},   // minute
	{0, 59},   // second
	{0, 999},  // millisecond
}

func parseTimestamp(s string) (time.Time, error) {
	parts := strings.Split(s, Delimiter)
	if len(parts) != timestampFields {
		return time.Time{}, fmt.Errorf("expected %d fields, got %d", timestampFields, len(parts))
	}
	var f [timestampFields]int
	for i, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil {
			return time.Time{}, fmt.Errorf("field %d: %w", i, err)
		}
		if n < timestampLimits[i][0] || n > timestampLimits[i][1] {
			return time.Time{}, fmt.Errorf("field %d: %d out of range", i, n)
		}
		f[i] = n
	}
	t := time.Date(f[0], time.Month(f[1]), f[2], f[3], f[4], f[5], f[6]*int(time.Millisecond), time.UTC)
	if t.Day() != f[2] {
		return time.Time{}, fmt.Errorf("invalid date %04d-%02d-%02d", f[0], f[1], f[2])
	}
	return t, nil
}

// ParseTimestamp parses the output of FormatTimestamp.
func ParseTimestamp(s string) (time.Time, bool) {
	t, err := parseTimestamp(s)
	return t, err == nil
}

// EncodeBools encodes a named bool array.
func (c *Codec) EncodeBools(name string, values []bool) (Block, error) {
	return encode(c, name, values, formatBool)
}

// DecodeBools decodes a block written by EncodeBools.
func (c *Codec) DecodeBools(b Block) (string, []bool, error) {
	return decode(c, b, strconv.ParseBool)
}

// EncodeInts encodes a named int array.
func (c *Codec) EncodeInts(name string, values []int) (Block, error) {
	return encode(c, name, values, formatInt)
}

// DecodeInts decodes a block written by EncodeInts.
func (c *Codec) DecodeInts(b Block) (string, []int, error) {
	return decode(c, b, strconv.Atoi)
}

// EncodeFloats encodes a named float64 array. Values round-trip exactly.
func (c *Codec) EncodeFloats(name string, values []float64) (Block, error) {
	return encode(c, name, values, formatFloat)
}

// DecodeFloats decodes a block written by EncodeFloats.
func (c *Codec) DecodeFloats(b Block) (string, []float64, error) {
	return decode(c, b, parseFloat)
}

// EncodeStrings encodes a named string array.
func (c *Codec) EncodeStrings(name string, values []string) (Block, error) {
	return encode(c, name, values, formatString)
}

// DecodeStrings decodes a block written by EncodeStrings.
func (c *Codec) DecodeStrings(b Block) (string, []string, error) {
	return decode(c, b, parseString)
}

// EncodeDurations encodes a named duration array as integer nanoseconds.
func (c *Codec) EncodeDurations(name string, values []time.Duration) (Block, error) {
	return encode(c, name, values, formatDuration)
}

// DecodeDurations decodes a block written by EncodeDurations.
func (c *Codec) DecodeDurations(b Block) (string, []time.Duration, error) {
	return decode(c, b, parseDuration)
}

// EncodeVectors encodes a named Vector2 array.
func (c *Codec) EncodeVectors(name string, values []Vector2) (Block, error) {
	return encode(c, name, values, FormatVector2)
}

// DecodeVectors decodes a block written by EncodeVectors.
func (c *Codec) DecodeVectors(b Block) (string, []Vector2, error) {
	return decode(c, b, parseVector2)
}

// EncodeColors encodes a named Color array.
func (c *Codec) EncodeColors(name string, values []Color) (Block, error) {
	return encode(c, name, values, FormatColor)
}

// DecodeColors decodes a block written by EncodeColors.
func (c *Codec) DecodeColors(b Block) (string, []Color, error) {
	return decode(c, b, parseColor)
}

// EncodeTimestamps encodes a named timestamp array at millisecond precision, in UTC.
func (c *Codec) EncodeTimestamps(name string, values []time.Time) (Block, error) {
	return encode(c, name, values, FormatTimestamp)
}

// DecodeTimestamps decodes a block written by EncodeTimestamps.
func (c *Codec) DecodeTimestamps(b Block) (string, []time.Time, error) {
	return decode(c, b, parseTimestamp)
}
