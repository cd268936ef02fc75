// Package crypto provides encryption of provider credentials at rest.
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strings"
)

var (
	// ErrInvalidKey is returned when the encryption key is invalid.
	ErrInvalidKey = errors.New("encryption key must be 32 bytes")
	// ErrInvalidCiphertext is returned when the ciphertext is invalid.
	ErrInvalidCiphertext = errors.New("invalid ciphertext")
)

// Encryptor handles encryption and decryption of credentials.
// A zero-key Encryptor stores values in plaintext, which is only meant for local development.
type Encryptor struct {
	aead cipher.AEAD
}

// New builds an Encryptor. An empty key yields a passthrough Encryptor.
func New(key string) (*Encryptor, error) {
	if key == "" {
		return &Encryptor{}, nil
	}
	if len(key) != 32 {
		return nil, ErrInvalidKey
	}

	block, err := aes.NewCipher([]byte(key))
	if err != nil {
		return nil, fmt.Errorf("create cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("create gcm: %w", err)
	}
	return &Encryptor{aead: gcm}, nil
}

// Enabled reports whether values are actually encrypted.
func (e *Encryptor) Enabled() bool {
	return e != nil && e.aead != nil
}

// Encrypt encrypts plaintext using AES-256-GCM. The nonce is prepended to the sealed bytes.
func (e *Encryptor) Encrypt(plaintext string) (string, error) {
	if !e.Enabled() {
		return plaintext, nil
	}

	nonce := make([]byte, e.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", err
	}

	sealed := e.aead.Seal(nonce, nonce, []byte(plaintext), nil)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

// Decrypt reverses Encrypt. Values that are not valid ciphertext are returned
// unchanged so rows seeded before encryption was configured keep working.
func (e *Encryptor) Decrypt(ciphertext string) (string, error) {
	if !e.Enabled() {
		return ciphertext, nil
	}

	data, err := base64.StdEncoding.DecodeString(ciphertext)
	if err != nil {
		return ciphertext, nil
	}

	nonceSize := e.aead.NonceSize()
	if len(data) < nonceSize+e.aead.Overhead() {
		return ciphertext, nil
	}

	nonce, sealed := data[:nonceSize], data[nonceSize:]
	plaintext, err := e.aead.Open(nil, nonce, sealed, nil)
	if err != nil {
		return ciphertext, nil
	}

	return string(plaintext), nil
}

// Mask renders a secret for display, keeping only a short prefix and suffix.
func Mask(secret string) string {
	if secret == "" {
		return ""
	}
	if len(secret) <= 8 {
		return strings.Repeat("*", len(secret))
	}
	return secret[:4] + strings.Repeat("*", 8) + secret[len(secret)-4:]
}
