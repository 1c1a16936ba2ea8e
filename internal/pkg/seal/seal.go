// Package seal encrypts onboarding payloads at rest.
//
// Each message gets a fresh random salt; the AES-256 key is derived from the
// configured secret with HKDF-SHA256, so the secret itself never keys the
// cipher directly. Output is base64(salt || nonce || ciphertext).
package seal

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"
)

const (
	saltSize = 16
	keySize  = 32
)

var hkdfInfo = []byte("onboarding-session")

// ErrOpen is returned when a sealed value cannot be decrypted.
var ErrOpen = errors.New("seal: cannot open value")

// Cipher seals and opens strings with a password-derived key.
type Cipher struct {
	secret []byte
}

// New returns a Cipher for secret. An empty secret is rejected.
func New(secret string) (*Cipher, error) {
	if secret == "" {
		return nil, errors.New("seal: secret is required")
	}
	return &Cipher{secret: []byte(secret)}, nil
}

// Seal encrypts plaintext.
func (c *Cipher) Seal(plaintext []byte) (string, error) {
	salt := make([]byte, saltSize)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("seal: salt: %w", err)
	}
	gcm, err := c.aead(salt)
	if err != nil {
		return "", err
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("seal: nonce: %w", err)
	}
	out := make([]byte, 0, saltSize+len(nonce)+len(plaintext)+gcm.Overhead())
	out = append(out, salt...)
	out = append(out, nonce...)
	out = gcm.Seal(out, nonce, plaintext, nil)
	return base64.StdEncoding.EncodeToString(out), nil
}

// Open decrypts a value produced by Seal. Any malformed input, wrong key or
// tampering yields ErrOpen.
func (c *Cipher) Open(sealed string) ([]byte, error) {
	raw, err := base64.StdEncoding.DecodeString(sealed)
	if err != nil {
		return nil, ErrOpen
	}
	if len(raw) < saltSize {
		return nil, ErrOpen
	}
	gcm, err := c.aead(raw[:saltSize])
	if err != nil {
		return nil, err
	}
	rest := raw[saltSize:]
	if len(rest) < gcm.NonceSize()+gcm.Overhead() {
		return nil, ErrOpen
	}
	plain, err := gcm.Open(nil, rest[:gcm.NonceSize()], rest[gcm.NonceSize():], nil)
	if err != nil {
		return nil, ErrOpen
	}
	return plain, nil
}

func (c *Cipher) aead(salt []byte) (cipher.AEAD, error) {
	key := make([]byte, keySize)
	if _, err := io.ReadFull(hkdf.New(sha256.New, c.secret, salt, hkdfInfo), key); err != nil {
		return nil, fmt.Errorf("seal: derive key: %w", err)
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("seal: cipher: %w", err)
	}
	return cipher.NewGCM(block)
}
