// Package crypto seals small secrets (OAuth tokens) at rest with AES-256-GCM.
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"io"
)

var (
	ErrKeyEncoding = errors.New("ROOT_ENCRYPTION_KEY must be hex-encoded")
	ErrKeyLength   = errors.New("ROOT_ENCRYPTION_KEY must be 32 bytes (64 hex chars)")
	ErrCiphertext  = errors.New("ciphertext too short")
)

// Encryptor seals and opens byte slices with a single 32-byte key.
type Encryptor struct {
	aead cipher.AEAD
}

// NewEncryptor creates an Encryptor from a hex-encoded 32-byte key.
func NewEncryptor(keyHex string) (*Encryptor, error) {
	key, err := hex.DecodeString(keyHex)
	if err != nil {
		return nil, ErrKeyEncoding
	}
	if len(key) != 32 {
		return nil, ErrKeyLength
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	return &Encryptor{aead: aead}, nil
}

// GenerateKey returns a random key in the hex form NewEncryptor expects.
func GenerateKey() (string, error) {
	key := make([]byte, 32)
	if _, err := io.ReadFull(rand.Reader, key); err != nil {
		return "", err
	}
	return hex.EncodeToString(key), nil
}

// Seal encrypts plaintext. Output format: [nonce(12) | ciphertext+tag].
func (e *Encryptor) Seal(plaintext []byte) ([]byte, error) {
	nonce := make([]byte, e.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, err
	}
	return e.aead.Seal(nonce, nonce, plaintext, nil), nil
}

// Open reverses Seal. It fails if data was modified or sealed with another key.
func (e *Encryptor) Open(data []byte) ([]byte, error) {
	n := e.aead.NonceSize()
	if len(data) < n {
		return nil, ErrCiphertext
	}
	return e.aead.Open(nil, data[:n], data[n:], nil)
}
