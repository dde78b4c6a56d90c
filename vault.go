package sshgateplus


import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/chacha20poly1305"
)

var ErrMissingSecret = errors.New("vault has no secret configured")
var ErrBadCiphertext = errors.New("ciphertext is malformed or was sealed with a different secret")

/*
A Vault seals and opens the private keys held in server
records. The cipher key is derived from a server-side
secret; ciphertexts are base64 strings so they can live
inside JSON records.

Opening a ciphertext with the wrong secret fails loudly
with ErrBadCiphertext instead of yielding garbage key
material that would only surface later as a confusing
remote auth failure.
*/
type Vault struct {
	key []byte
}

func MakeNewVault(secret string) *Vault {
	if secret == "" {
		return &Vault{}
	}
	key := sha256.Sum256([]byte(secret))
	return &Vault{key: key[:]}
}

// Encrypt seals plaintext and returns base64(nonce || sealed).
func (vault *Vault) Encrypt(plaintext []byte) (string, error) {
	if vault.key == nil {
		return "", ErrMissingSecret
	}
	aead, err := chacha20poly1305.NewX(vault.key)
	if err != nil {
		return "", fmt.Errorf("init cipher: %w", err)
	}
	nonce := make([]byte, aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("generate nonce: %w", err)
	}
	sealed := aead.Seal(nonce, nonce, plaintext, nil)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

// Decrypt inverts Encrypt. The returned key material must never
// be logged or persisted; callers discard it after a single
// connection attempt.
func (vault *Vault) Decrypt(ciphertext string) ([]byte, error) {
	if vault.key == nil {
		return nil, ErrMissingSecret
	}
	raw, err := base64.StdEncoding.DecodeString(ciphertext)
	if err != nil {
		return nil, ErrBadCiphertext
	}
	aead, err := chacha20poly1305.NewX(vault.key)
	if err != nil {
		return nil, fmt.Errorf("init cipher: %w", err)
	}
	if len(raw) < aead.NonceSize() {
		return nil, ErrBadCiphertext
	}
	nonce, sealed := raw[:aead.NonceSize()], raw[aead.NonceSize():]
	plaintext, err := aead.Open(nil, nonce, sealed, nil)
	if err != nil {
		return nil, ErrBadCiphertext
	}
	return plaintext, nil
}
