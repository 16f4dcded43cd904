package storage

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
)

// ErrCiphertextTooShort is returned when a stored credential cannot hold a nonce
var ErrCiphertextTooShort = errors.New("ciphertext too short")

// Encryption seals provider credentials with AES-GCM.
// Ciphertexts are base64(nonce || sealed) so they fit a TEXT column.
type Encryption struct {
	aead cipher.AEAD
}

// NewEncryption creates an encryption service from a raw key of 16, 24 or 32 bytes
func NewEncryption(key []byte) (*Encryption, error) {
	switch len(key) {
	case 16, 24, 32:
	default:
		return nil, fmt.Errorf("invalid key size: must be 16, 24, or 32 bytes, got %d", len(key))
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}
	return &Encryption{aead: aead}, nil
}

// NewEncryptionFromHex creates an encryption service from a hex-encoded key,
// the format ENCRYPTION_KEY is configured in
func NewEncryptionFromHex(encodedKey string) (*Encryption, error) {
	encodedKey = strings.TrimSpace(encodedKey)
	if encodedKey == "" {
		return nil, errors.New("encryption key cannot be empty")
	}

	key, err := hex.DecodeString(encodedKey)
	if err != nil {
		return nil, fmt.Errorf("failed to decode hex key: %w", err)
	}
	return NewEncryption(key)
}

// GenerateKey returns a new random key of keySize bytes, hex-encoded
func GenerateKey(keySize int) (string, error) {
	switch keySize {
	case 16, 24, 32:
	default:
		return "", fmt.Errorf("invalid key size: must be 16, 24, or 32 bytes")
	}

	key := make([]byte, keySize)
	if _, err := io.ReadFull(rand.Reader, key); err != nil {
		return "", fmt.Errorf("failed to generate random key: %w", err)
	}
	return hex.EncodeToString(key), nil
}

// Encrypt seals plaintext and returns it base64-encoded
func (e *Encryption) Encrypt(plaintext []byte) (string, error) {
	nonce := make([]byte, e.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}

	sealed := e.aead.Seal(nonce, nonce, plaintext, nil)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

// Decrypt opens a ciphertext produced by Encrypt
func (e *Encryption) Decrypt(ciphertextBase64 string) ([]byte, error) {
	data, err := base64.StdEncoding.DecodeString(ciphertextBase64)
	if err != nil {
		return nil, fmt.Errorf("failed to decode base64: %w", err)
	}

	nonceSize := e.aead.NonceSize()
	if len(data) < nonceSize {
		return nil, ErrCiphertextTooShort
	}

	plaintext, err := e.aead.Open(nil, data[:nonceSize], data[nonceSize:], nil)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt: %w", err)
	}
	return plaintext, nil
}

// EncryptCredential seals an API key. An empty credential stays empty.
func (e *Encryption) EncryptCredential(credential string) (string, error) {
	if credential == "" {
		return "", nil
	}
	return e.Encrypt([]byte(credential))
}
