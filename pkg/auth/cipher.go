package auth

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

// keyInfo binds derived keys to this use; changing it invalidates all
// previously issued tokens.
const keyInfo = "uplink-auth-token-v1"

// Token errors.
var (
	ErrEmptySecret  = errors.New("secret key must not be empty")
	ErrTokenTooShort = errors.New("token shorter than nonce")
)

// Seal ciphers plaintext under secretKey and returns the base64 token.
// The nonce is prepended to the ciphertext, so every call yields a
// different token for the same input. Seal satisfies wire.CipherFunc.
func Seal(plaintext []byte, secretKey string) (string, error) {
	aead, err := newAEAD(secretKey)
	if err != nil {
		return "", err
	}

	nonce := make([]byte, aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}

	sealed := aead.Seal(nonce, nonce, plaintext, nil)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

// Open reverses Seal. It exists for the receiving side and for tests;
// the client itself only seals.
func Open(token string, secretKey string) ([]byte, error) {
	aead, err := newAEAD(secretKey)
	if err != nil {
		return nil, err
	}

	sealed, err := base64.StdEncoding.DecodeString(token)
	if err != nil {
		return nil, fmt.Errorf("token is not base64: %w", err)
	}
	if len(sealed) < aead.NonceSize() {
		return nil, ErrTokenTooShort
	}

	nonce, ciphertext := sealed[:aead.NonceSize()], sealed[aead.NonceSize():]
	plaintext, err := aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to open token: %w", err)
	}
	return plaintext, nil
}

// newAEAD derives a 256-bit key from the secret and builds the AES-GCM AEAD.
func newAEAD(secretKey string) (cipher.AEAD, error) {
	if secretKey == "" {
		return nil, ErrEmptySecret
	}

	key := make([]byte, 32)
	kdf := hkdf.New(sha256.New, []byte(secretKey), nil, []byte(keyInfo))
	if _, err := io.ReadFull(kdf, key); err != nil {
		return nil, fmt.Errorf("key derivation failed: %w", err)
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}
	return cipher.NewGCM(block)
}
