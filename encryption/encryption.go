package encryption

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"io"

	"golang.org/x/crypto/chacha20poly1305"
)

// Encryptor seals and opens string secrets.
type Encryptor interface {
	Encrypt(plaintext string) (string, error)
	Decrypt(ciphertext string) (string, error)
}

// Algorithm names a supported AEAD cipher.
type Algorithm string

const (
	AlgorithmChaCha20 Algorithm = "chacha20-poly1305"
	AlgorithmAESGCM   Algorithm = "aes-256-gcm"
)

// New creates an Encryptor for the passphrase. An empty algorithm selects
// ChaCha20-Poly1305.
func New(passphrase string, alg Algorithm) (Encryptor, error) {
	if passphrase == "" {
		return nil, fmt.Errorf("encryption: passphrase is required")
	}
	key := deriveKey(passphrase)

	var (
		aead cipher.AEAD
		err  error
	)
	switch alg {
	case "", AlgorithmChaCha20:
		aead, err = chacha20poly1305.New(key)
	case AlgorithmAESGCM:
		var block cipher.Block
		block, err = aes.NewCipher(key)
		if err == nil {
			aead, err = cipher.NewGCM(block)
		}
	default:
		return nil, fmt.Errorf("encryption: unsupported algorithm %q", alg)
	}
	if err != nil {
		return nil, fmt.Errorf("encryption: create %s: %w", alg, err)
	}
	return &sealer{aead: aead}, nil
}

// deriveKey hashes the passphrase into a 32-byte key usable by both ciphers.
func deriveKey(passphrase string) []byte {
	sum := sha256.Sum256([]byte(passphrase))
	return sum[:]
}

type sealer struct {
	aead cipher.AEAD
}

// Encrypt seals plaintext behind a random nonce and base64-encodes the result.
func (s *sealer) Encrypt(plaintext string) (string, error) {
	nonce := make([]byte, s.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("generate nonce: %w", err)
	}
	sealed := s.aead.Seal(nonce, nonce, []byte(plaintext), nil)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

// Decrypt opens a value produced by Encrypt.
func (s *sealer) Decrypt(ciphertext string) (string, error) {
	data, err := base64.StdEncoding.DecodeString(ciphertext)
	if err != nil {
		return "", fmt.Errorf("decode base64: %w", err)
	}

	nonceSize := s.aead.NonceSize()
	if len(data) < nonceSize {
		return "", fmt.Errorf("ciphertext too short")
	}

	plaintext, err := s.aead.Open(nil, data[:nonceSize], data[nonceSize:], nil)
	if err != nil {
		return "", fmt.Errorf("decrypt: %w", err)
	}
	return string(plaintext), nil
}
