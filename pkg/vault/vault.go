// Package vault encrypts credential material at rest. Every plaintext is
// sealed with NaCl secretbox under a key derived from the configured secret,
// with a fresh random nonce per ciphertext.
package vault

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"

	"golang.org/x/crypto/nacl/secretbox"

	"github.com/termgate/termgate/pkg/models"
)

const nonceSize = 24

// Vault seals and opens small secrets with a symmetric key.
type Vault struct {
	key [32]byte
}

// New derives a vault from the given secret. The secret is hashed so any
// length is accepted, but it must not be empty.
func New(secret string) (*Vault, error) {
	if secret == "" {
		return nil, fmt.Errorf("encryption secret is required")
	}
	v := &Vault{key: sha256.Sum256([]byte(secret))}
	return v, nil
}

// Seal encrypts plaintext and returns a self-contained base64 token carrying
// the nonce. Sealing the same plaintext twice yields different tokens.
func (v *Vault) Seal(plaintext []byte) (string, error) {
	var nonce [nonceSize]byte
	if _, err := io.ReadFull(rand.Reader, nonce[:]); err != nil {
		return "", fmt.Errorf("generating nonce: %w", err)
	}
	sealed := secretbox.Seal(nonce[:], plaintext, &nonce, &v.key)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

// Open decrypts a token produced by Seal. Any tampering or a wrong key
// yields models.ErrCrypto without detail.
func (v *Vault) Open(token string) ([]byte, error) {
	sealed, err := base64.StdEncoding.DecodeString(token)
	if err != nil {
		return nil, models.ErrCrypto
	}
	if len(sealed) < nonceSize+secretbox.Overhead {
		return nil, models.ErrCrypto
	}
	var nonce [nonceSize]byte
	copy(nonce[:], sealed[:nonceSize])
	plaintext, ok := secretbox.Open(nil, sealed[nonceSize:], &nonce, &v.key)
	if !ok {
		return nil, models.ErrCrypto
	}
	return plaintext, nil
}

// SealCredentials encrypts a credentials blob for storage on a profile.
func (v *Vault) SealCredentials(c *models.Credentials) (string, error) {
	if err := validateNotEmpty(c); err != nil {
		return "", err
	}
	plaintext, err := json.Marshal(c)
	if err != nil {
		return "", fmt.Errorf("encoding credentials: %w", err)
	}
	return v.Seal(plaintext)
}

// OpenCredentials decrypts a credentials blob stored on a profile.
func (v *Vault) OpenCredentials(token string) (*models.Credentials, error) {
	plaintext, err := v.Open(token)
	if err != nil {
		return nil, err
	}
	var c models.Credentials
	if err := json.Unmarshal(plaintext, &c); err != nil {
		return nil, models.ErrCrypto
	}
	return &c, nil
}

func validateNotEmpty(c *models.Credentials) error {
	if c.Empty() {
		return fmt.Errorf("credentials are empty")
	}
	return nil
}
