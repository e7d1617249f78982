// Package secrets seals reward payloads at rest with AES-256-GCM.
package secrets

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"strings"

	"golang.org/x/crypto/argon2"
)

var (
	ErrInvalidKey       = errors.New("invalid encryption key")
	ErrDecryptionFailed = errors.New("decryption failed")
)

// sealedPrefix marks values produced by Seal so plaintext written by older
// records is still readable.
const sealedPrefix = "enc:v1:"

// Sealer encrypts and decrypts short string payloads.
type Sealer struct {
	gcm cipher.AEAD
}

// Config for the sealer
type Config struct {
	Key string // 32-byte hex key, or a passphrase run through argon2id
}

// NewSealer creates a sealer from a hex key or a passphrase.
func NewSealer(config Config) (*Sealer, error) {
	if config.Key == "" {
		return nil, ErrInvalidKey
	}

	key, err := hex.DecodeString(config.Key)
	if err != nil || len(key) != 32 {
		salt := []byte("typeers-golden-reward-salt")
		key = argon2.IDKey([]byte(config.Key), salt, 3, 64*1024, 4, 32)
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("cipher init: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("gcm init: %w", err)
	}

	return &Sealer{gcm: gcm}, nil
}

// Seal encrypts plaintext into a printable token.
func (s *Sealer) Seal(plaintext string) (string, error) {
	nonce := make([]byte, s.gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}

	out := s.gcm.Seal(nonce, nonce, []byte(plaintext), nil)
	return sealedPrefix + base64.StdEncoding.EncodeToString(out), nil
}

// Open reverses Seal. Values without the sealed prefix are returned unchanged.
func (s *Sealer) Open(token string) (string, error) {
	if !strings.HasPrefix(token, sealedPrefix) {
		return token, nil
	}

	raw, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(token, sealedPrefix))
	if err != nil {
		return "", ErrDecryptionFailed
	}

	n := s.gcm.NonceSize()
	if len(raw) < n {
		return "", ErrDecryptionFailed
	}

	plaintext, err := s.gcm.Open(nil, raw[:n], raw[n:], nil)
	if err != nil {
		return "", ErrDecryptionFailed
	}
	return string(plaintext), nil
}
