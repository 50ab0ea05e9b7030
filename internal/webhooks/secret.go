package webhooks

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"

	"golang.org/x/crypto/chacha20poly1305"
)

// SecretBox encrypts subscription secrets at rest. Secrets have to be
// recoverable in plaintext to sign outbound payloads, so hashing is not an
// option; instead every secret is sealed with an AEAD keyed from the service
// configuration.
type SecretBox struct {
	key []byte
}

// NewSecretBox builds a SecretBox from a hex-encoded 256-bit key.
func NewSecretBox(hexKey string) (*SecretBox, error) {
	key, err := hex.DecodeString(hexKey)
	if err != nil {
		return nil, fmt.Errorf("decoding webhook secret key: %w", err)
	}
	if len(key) != chacha20poly1305.KeySize {
		return nil, fmt.Errorf("webhook secret key must be %d bytes, got %d", chacha20poly1305.KeySize, len(key))
	}
	return &SecretBox{key: key}, nil
}

// GenerateSecret returns a fresh random secret for a new subscription. The
// caller shows it to the operator exactly once.
func GenerateSecret() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generating webhook secret: %w", err)
	}
	return "whsec_" + hex.EncodeToString(buf), nil
}

// Seal encrypts a plaintext secret. The random nonce is prepended to the
// ciphertext.
func (b *SecretBox) Seal(secret string) ([]byte, error) {
	aead, err := chacha20poly1305.NewX(b.key)
	if err != nil {
		return nil, fmt.Errorf("initializing cipher: %w", err)
	}

	nonce := make([]byte, aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("generating nonce: %w", err)
	}

	return aead.Seal(nonce, nonce, []byte(secret), nil), nil
}

// Open decrypts a sealed secret.
func (b *SecretBox) Open(sealed []byte) (string, error) {
	aead, err := chacha20poly1305.NewX(b.key)
	if err != nil {
		return "", fmt.Errorf("initializing cipher: %w", err)
	}
	if len(sealed) < aead.NonceSize() {
		return "", fmt.Errorf("sealed secret too short")
	}

	nonce, ciphertext := sealed[:aead.NonceSize()], sealed[aead.NonceSize():]
	plaintext, err := aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", fmt.Errorf("decrypting webhook secret: %w", err)
	}
	return string(plaintext), nil
}
