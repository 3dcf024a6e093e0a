package cipher

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/crypto/hkdf"
)

// KeySize is the length in bytes of an AES-256 key.
const KeySize = 32

// secretSize is the length of a generated key file secret, before hex encoding.
const secretSize = 32

const keyInfo = "stash save-field cipher v1"

// Key is the process-wide symmetric key.
type Key [KeySize]byte

// DeriveKey stretches an arbitrary secret into a Key with HKDF-SHA256.
// The same secret always yields the same key.
func DeriveKey(secret []byte) (Key, error) {
	var k Key
	if len(secret) == 0 {
		return k, fmt.Errorf("encryption secret cannot be empty")
	}
	r := hkdf.New(sha256.New, secret, nil, []byte(keyInfo))
	if _, err := io.ReadFull(r, k[:]); err != nil {
		return k, fmt.Errorf("failed to derive key: %w", err)
	}
	return k, nil
}

// KeyFromSecret derives a key from a secret string, typically taken from the
// environment.
func KeyFromSecret(secret string) (Key, error) {
	return DeriveKey([]byte(strings.TrimSpace(secret)))
}

// LoadKeyFile reads a secret written by WriteKeyFile and derives the key.
func LoadKeyFile(path string) (Key, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Key{}, fmt.Errorf("failed to read key file: %w", err)
	}
	return KeyFromSecret(string(data))
}

// WriteKeyFile generates a random secret, writes it hex-encoded to path with
// owner-only permissions and returns the derived key. An existing file is
// never replaced.
func WriteKeyFile(path string) (Key, error) {
	secret := make([]byte, secretSize)
	if _, err := rand.Read(secret); err != nil {
		return Key{}, fmt.Errorf("failed to generate secret: %w", err)
	}
	encoded := hex.EncodeToString(secret)

	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0700); err != nil {
			return Key{}, fmt.Errorf("failed to create key directory: %w", err)
		}
	}

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0600)
	if err != nil {
		return Key{}, fmt.Errorf("failed to create key file: %w", err)
	}
	defer f.Close()

	if _, err := f.WriteString(encoded + "\n"); err != nil {
		return Key{}, fmt.Errorf("failed to write key file: %w", err)
	}

	return KeyFromSecret(encoded)
}
