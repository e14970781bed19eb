package profile

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/pbkdf2"
)

// Key derivation parameters. The iteration count is the work factor
// protecting the sealed token against offline guessing.
const (
	pbkdf2Iterations = 100_000
	saltSize         = 16
)

// ErrWrongPassword is returned when the seal fails to authenticate. The
// caller cannot distinguish a wrong password from a tampered ciphertext,
// which is the point.
var ErrWrongPassword = errors.New("wrong password or corrupted credential seal")

// NewSalt produces the per-profile random salt written next to the
// profile's config.
func NewSalt() ([]byte, error) {
	salt := make([]byte, saltSize)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("generate salt: %w", err)
	}
	return salt, nil
}

func deriveKey(password string, salt []byte) []byte {
	return pbkdf2.Key([]byte(password), salt, pbkdf2Iterations, chacha20poly1305.KeySize, sha256.New)
}

// Seal encrypts the plaintext token under a password-derived key with an
// authenticated cipher. Output is base64(nonce || ciphertext).
func Seal(token, password string, salt []byte) (string, error) {
	aead, err := chacha20poly1305.NewX(deriveKey(password, salt))
	if err != nil {
		return "", err
	}
	nonce := make([]byte, aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("generate nonce: %w", err)
	}
	sealed := aead.Seal(nonce, nonce, []byte(token), nil)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

// Unseal reverses Seal. A wrong password yields ErrWrongPassword, never
// plaintext.
func Unseal(sealed, password string, salt []byte) (string, error) {
	raw, err := base64.StdEncoding.DecodeString(sealed)
	if err != nil {
		return "", fmt.Errorf("decode credential seal: %w", err)
	}
	aead, err := chacha20poly1305.NewX(deriveKey(password, salt))
	if err != nil {
		return "", err
	}
	if len(raw) < aead.NonceSize() {
		return "", ErrWrongPassword
	}
	nonce, ciphertext := raw[:aead.NonceSize()], raw[aead.NonceSize():]
	plain, err := aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", ErrWrongPassword
	}
	return string(plain), nil
}
