// Package cipher provides the symmetric, field-level transform applied to save
// package names and values.
//
// Each field is enciphered independently, so the structure of a package
// (field boundaries, array lengths, empty markers) stays visible even when
// the values are not. The key is process configuration: it is loaded once and
// passed to constructors explicitly. Rotating it makes every save written
// with the previous key unreadable.
package cipher

import (
	"crypto/aes"
	stdcipher "crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
)

// ErrDecrypt is returned when a value cannot be deciphered: it was not
// produced by this cipher, it was written with another key, or it was altered.
var ErrDecrypt = errors.New("cipher: value cannot be decrypted")

// Cipher is a reversible string transform. Decrypt(Encrypt(s)) == s for every s.
type Cipher interface {
	Encrypt(plain string) (string, error)
	Decrypt(text string) (string, error)
}

// AES enciphers strings with AES-256-GCM. Output is URL-safe base64 of the
// nonce followed by the sealed bytes.
type AES struct {
	aead stdcipher.AEAD
}

// NewAES creates an AES-GCM cipher for key.
func NewAES(key Key) (*AES, error) {
	block, err := aes.NewCipher(key[:])
	if err != nil {
		return nil, fmt.Errorf("failed to create block cipher: %w", err)
	}
	aead, err := stdcipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}
	return &AES{aead: aead}, nil
}

// Encrypt seals plain under a fresh random nonce.
func (c *AES) Encrypt(plain string) (string, error) {
	nonce := make([]byte, c.aead.NonceSize(), c.aead.NonceSize()+len(plain)+c.aead.Overhead())
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}
	sealed := c.aead.Seal(nonce, nonce, []byte(plain), nil)
	return base64.RawURLEncoding.EncodeToString(sealed), nil
}

// Decrypt reverses Encrypt. Any failure is reported as ErrDecrypt.
func (c *AES) Decrypt(text string) (string, error) {
	raw, err := base64.RawURLEncoding.DecodeString(text)
	if err != nil {
		return "", ErrDecrypt
	}
	ns := c.aead.NonceSize()
	if len(raw) < ns+c.aead.Overhead() {
		return "", ErrDecrypt
	}
	plain, err := c.aead.Open(nil, raw[:ns], raw[ns:], nil)
	if err != nil {
		return "", ErrDecrypt
	}
	return string(plain), nil
}
