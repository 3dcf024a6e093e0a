package progress

import (
	"testing"

	"github.com/dyluth/stash/pkg/cipher"
	"github.com/dyluth/stash/pkg/codec"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func encryptedCodec(t *testing.T, secret string) *codec.Codec {
	t.Helper()
	key, err := cipher.KeyFromSecret(secret)
	require.NoError(t, err)
	aes, err := cipher.NewAES(key)
	require.NoError(t, err)
	return codec.New(aes)
}

func sampleStore(t *testing.T) *Store {
	t.Helper()
	s := &Store{}
	s.SetBool("seenIntro", true)
	s.SetBool("bossDefeated", false)
	s.SetInt("deaths", 3)
	s.SetFloat("playtimeHours", 12.75)
	s.SetString("lastCheckpoint", "cave-entrance")
	require.NoError(t, s.SetList("visited", []string{"village", "cave", "tower"}))
	require.NoError(t, s.SetList("empty", nil))
	return s
}

func TestStore_SetGet(t *testing.T) {
	s := sampleStore(t)

	v, ok := s.Bool("seenIntro")
	assert.True(t, ok)
	assert.True(t, v)

	n, ok := s.Int("deaths")
	assert.True(t, ok)
	assert.Equal(t, 3, n)

	_, ok = s.Int("missing")
	assert.False(t, ok)

	list, ok := s.List("visited")
	assert.True(t, ok)
	assert.Equal(t, []string{"village", "cave", "tower"}, list)

	empty, ok := s.List("empty")
	assert.True(t, ok)
	assert.Empty(t, empty)
}

func TestStore_KeysUniquePerKind(t *testing.T) {
	s := &Store{}
	s.SetBool("x", true)
	s.SetBool("x", false)
	s.SetInt("x", 7)

	assert.Equal(t, []string{"x"}, s.BoolKeys)
	assert.Equal(t, []bool{false}, s.BoolValues)
	assert.Equal(t, []string{"x"}, s.IntKeys)
	assert.Equal(t, 2, s.Len())
}

func TestStore_SetListRejectsDelimiter(t *testing.T) {
	s := &Store{}
	err := s.SetList("bad", []string{"a;b"})
	assert.ErrorIs(t, err, ErrInvalidListItem)
	_, ok := s.List("bad")
	assert.False(t, ok)
}

func TestStore_SetListRejectsSingleEmptyItem(t *testing.T) {
	s := &Store{}
	err := s.SetList("bad", []string{""})
	assert.ErrorIs(t, err, ErrInvalidListItem)
	_, ok := s.List("bad")
	assert.False(t, ok)

	require.NoError(t, s.SetList("empty", nil))
	got, ok := s.List("empty")
	assert.True(t, ok)
	assert.Empty(t, got)

	require.NoError(t, s.SetList("blanks", []string{"", ""}))
	got, _ = s.List("blanks")
	assert.Equal(t, []string{"", ""}, got)
}

func TestStore_RejectsEmptyKey(t *testing.T) {
	s := &Store{}
	assert.ErrorIs(t, s.SetBool("", true), ErrEmptyKey)
	assert.ErrorIs(t, s.SetInt("", 1), ErrEmptyKey)
	assert.ErrorIs(t, s.SetFloat("", 1.5), ErrEmptyKey)
	assert.ErrorIs(t, s.SetString("", "v"), ErrEmptyKey)
	assert.ErrorIs(t, s.SetList("", []string{"a"}), ErrEmptyKey)
	_, err := s.Increment("", 1)
	assert.ErrorIs(t, err, ErrEmptyKey)
	assert.Equal(t, 0, s.Len())
}

func TestStore_IncrementAndDelete(t *testing.T) {
	s := &Store{}
	n, err := s.Increment("kills", 1)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	n, err = s.Increment("kills", 5)
	require.NoError(t, err)
	assert.Equal(t, 6, n)

	s.SetBool("kills", true)
	assert.True(t, s.Delete("kills"))
	assert.False(t, s.Delete("kills"))
	assert.Equal(t, 0, s.Len())
}

func TestStore_MarshalRoundTrip(t *testing.T) {
	codecs := map[string]*codec.Codec{
		"plain":     codec.New(nil),
		"encrypted": encryptedCodec(t, "progress"),
	}

	for mode, c := range codecs {
		t.Run(mode, func(t *testing.T) {
			in := sampleStore(t)

			blob, err := in.Marshal(c)
			require.NoError(t, err)
			if mode == "encrypted" {
				assert.NotContains(t, blob, "cave-entrance")
			}

			out, err := Unmarshal(c, blob)
			require.NoError(t, err)
			assert.Equal(t, in, out)
		})
	}
}

func TestUnmarshal_Empty(t *testing.T) {
	s, err := Unmarshal(codec.New(nil), "")
	require.NoError(t, err)
	assert.Equal(t, 0, s.Len())
}

func TestUnmarshal_InvalidJSON(t *testing.T) {
	s, err := Unmarshal(codec.New(nil), "{not json")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse progress store")
	assert.Equal(t, 0, s.Len())
}

func TestUnmarshal_WrongKeyFailsClosed(t *testing.T) {
	blob, err := sampleStore(t).Marshal(encryptedCodec(t, "right"))
	require.NoError(t, err)

	out, err := Unmarshal(encryptedCodec(t, "wrong"), blob)
	require.Error(t, err)
	assert.Equal(t, 0, out.Len(), "no key decodes, so nothing is restored")
}

func TestUnmarshal_MismatchedLengthsPairToShorter(t *testing.T) {
	c := codec.New(nil)
	s := &Store{
		IntKeys:   []string{"a", "b", "c"},
		IntValues: []int{1, 2},
	}
	blob, err := s.Marshal(c)
	require.NoError(t, err)

	out, err := Unmarshal(c, blob)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, out.IntKeys)
	assert.Equal(t, []int{1, 2}, out.IntValues)
}
