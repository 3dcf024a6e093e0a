package cipher

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCipher(t *testing.T, secret string) *AES {
	t.Helper()
	key, err := KeyFromSecret(secret)
	require.NoError(t, err)
	c, err := NewAES(key)
	require.NoError(t, err)
	return c
}

func TestAES_RoundTrip(t *testing.T) {
	c := newTestCipher(t, "round-trip")

	inputs := []string{
		"",
		"Inventory",
		"A=1;B=2",
		"0.1|0.2|0.3|1",
		"2025|10|29|13|0|0|250",
		"ünïcødé ✓",
		string(make([]byte, 4096)),
	}

	for _, in := range inputs {
		enc, err := c.Encrypt(in)
		require.NoError(t, err)
		if in != "" {
			assert.NotEqual(t, in, enc)
		}

		dec, err := c.Decrypt(enc)
		require.NoError(t, err)
		assert.Equal(t, in, dec)
	}
}

func TestAES_FreshNonce(t *testing.T) {
	c := newTestCipher(t, "nonce")

	a, err := c.Encrypt("same")
	require.NoError(t, err)
	b, err := c.Encrypt("same")
	require.NoError(t, err)

	assert.NotEqual(t, a, b)
}

func TestAES_WrongKeyFails(t *testing.T) {
	enc, err := newTestCipher(t, "key-one").Encrypt("secret")
	require.NoError(t, err)

	_, err = newTestCipher(t, "key-two").Decrypt(enc)
	assert.ErrorIs(t, err, ErrDecrypt)
}

func TestAES_DecryptRejectsPlainText(t *testing.T) {
	c := newTestCipher(t, "plain")

	for _, in := range []string{"", "true", "3.14", "not base64 !!", "AAAA"} {
		_, err := c.Decrypt(in)
		assert.ErrorIs(t, err, ErrDecrypt, "input %q", in)
	}
}

func TestDeriveKey(t *testing.T) {
	t.Run("deterministic", func(t *testing.T) {
		a, err := DeriveKey([]byte("s"))
		require.NoError(t, err)
		b, err := DeriveKey([]byte("s"))
		require.NoError(t, err)
		assert.Equal(t, a, b)
	})

	t.Run("rejects empty secret", func(t *testing.T) {
		_, err := DeriveKey(nil)
		assert.Error(t, err)
	})

	t.Run("secret is trimmed", func(t *testing.T) {
		a, err := KeyFromSecret("abc\n")
		require.NoError(t, err)
		b, err := KeyFromSecret("abc")
		require.NoError(t, err)
		assert.Equal(t, a, b)
	})
}

func TestKeyFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "keys", "stash.key")

	written, err := WriteKeyFile(path)
	require.NoError(t, err)

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())

	loaded, err := LoadKeyFile(path)
	require.NoError(t, err)
	assert.Equal(t, written, loaded)

	_, err = WriteKeyFile(path)
	assert.Error(t, err, "existing key file must not be replaced")
}

func TestLoadKeyFile_Missing(t *testing.T) {
	_, err := LoadKeyFile(filepath.Join(t.TempDir(), "missing.key"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read key file")
}
