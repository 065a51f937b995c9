// Package credential seals shop access tokens before they are persisted.
//
// An envelope is base64(nonce[12] || tag[16] || ciphertext) produced by AES-256-GCM
// with a key derived as SHA-256(passphrase).
package credential

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"

	"shopifybridge/pkg/config"
)

const (
	nonceSize = 12
	tagSize   = 16
)

// Encrypt seals plaintext under passphrase with a fresh random nonce.
func Encrypt(plaintext, passphrase string) (string, error) {
	aead, err := newAEAD(passphrase)
	if err != nil {
		return "", err
	}

	nonce := make([]byte, nonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("credential nonce: %w", err)
	}

	// Seal appends the tag after the ciphertext; the envelope stores it in front.
	sealed := aead.Seal(nil, nonce, []byte(plaintext), nil)
	ct, tag := sealed[:len(sealed)-tagSize], sealed[len(sealed)-tagSize:]

	out := make([]byte, 0, nonceSize+tagSize+len(ct))
	out = append(out, nonce...)
	out = append(out, tag...)
	out = append(out, ct...)
	return base64.StdEncoding.EncodeToString(out), nil
}

// Decrypt opens an envelope. It reports false for malformed input, a wrong passphrase,
// or tampered bytes; false means the secret could not be recovered, not that it is absent.
func Decrypt(envelope, passphrase string) (string, bool) {
	b, err := base64.StdEncoding.DecodeString(envelope)
	if err != nil || len(b) < nonceSize+tagSize {
		return "", false
	}
	aead, err := newAEAD(passphrase)
	if err != nil {
		return "", false
	}

	nonce := b[:nonceSize]
	tag := b[nonceSize : nonceSize+tagSize]
	ct := b[nonceSize+tagSize:]

	sealed := make([]byte, 0, len(ct)+tagSize)
	sealed = append(sealed, ct...)
	sealed = append(sealed, tag...)

	out, err := aead.Open(nil, nonce, sealed, nil)
	if err != nil {
		return "", false
	}
	return string(out), true
}

func newAEAD(passphrase string) (cipher.AEAD, error) {
	key := sha256.Sum256([]byte(passphrase))
	block, err := aes.NewCipher(key[:])
	if err != nil {
		return nil, err
	}
	return cipher.NewGCMWithNonceSize(block, nonceSize)
}

// Sealer is the at-rest transform applied to credentials by the store.
type Sealer interface {
	Seal(plaintext string) (string, error)
	Open(stored string) (string, bool)
	Mode() config.CredentialMode
}

// NewSealer resolves the configured mode once at startup.
func NewSealer(mode config.CredentialMode, passphrase string) (Sealer, error) {
	switch mode {
	case config.CredentialPlaintext:
		return Plaintext{}, nil
	case config.CredentialEncrypted:
		if passphrase == "" {
			return nil, fmt.Errorf("credential: encrypted mode requires a passphrase")
		}
		return AEAD{passphrase: passphrase}, nil
	default:
		return nil, fmt.Errorf("credential: unknown mode %q", mode)
	}
}

// Plaintext stores credentials as-is. It is an explicit opt-out for local development.
type Plaintext struct{}

func (Plaintext) Seal(plaintext string) (string, error) { return plaintext, nil }
func (Plaintext) Open(stored string) (string, bool) { return stored, true }
func (Plaintext) Mode() config.CredentialMode { return config.CredentialPlaintext }

// AEAD seals credentials with Encrypt/Decrypt.
type AEAD struct {
	passphrase string
}

func (a AEAD) Seal(plaintext string) (string, error) { return Encrypt(plaintext, a.passphrase) }
func (a AEAD) Open(stored string) (string, bool) { return Decrypt(stored, a.passphrase) }
func (AEAD) Mode() config.CredentialMode { return config.CredentialEncrypted }
