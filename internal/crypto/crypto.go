// Package crypto encrypts texts on the client before they are uploaded. The ciphertext uses
// the OpenSSL "Salted__" passphrase format (AES-256-CBC, EVP_BytesToKey with MD5, PKCS#7) so
// the CLI and the browser client can read each other's texts.
package crypto

import (
	"bytes"
	"crypto/aes"
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"unicode/utf8"

	openssl "github.com/Luzifer/go-openssl/v4"
)

const (
	keyBytes  = 32
	saltBytes = 8
)

var saltedMagic = []byte("Salted__")

var (
	ErrMalformed   = errors.New("malformed ciphertext")
	ErrWrongKey    = errors.New("decryption failed: wrong key or corrupted ciphertext")
	ErrEmptyKey    = errors.New("encryption key is empty")
	ErrInvalidUTF8 = errors.New("decrypted text is not valid UTF-8")
)

// CryptoJS derives with a single MD5 round, so the newer PBKDF2 generators would not interoperate.
var creds = openssl.BytesToKeyMD5

// GenerateKey returns a random 256-bit passphrase as 64 hex characters.
func GenerateKey() (string, error) {
	b := make([]byte, keyBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate key: %w", err)
	}
	return hex.EncodeToString(b), nil
}

// Encrypt encrypts plaintext with passphrase and returns base64 ciphertext.
func Encrypt(plaintext, passphrase string) (string, error) {
	if passphrase == "" {
		return "", ErrEmptyKey
	}

	out, err := openssl.New().EncryptBytes(passphrase, []byte(plaintext), creds)
	if err != nil {
		return "", fmt.Errorf("encrypt: %w", err)
	}
	return string(out), nil
}

// Decrypt reverses Encrypt.
func Decrypt(ciphertext, passphrase string) (string, error) {
	if passphrase == "" {
		return "", ErrEmptyKey
	}

	raw, err := base64.StdEncoding.DecodeString(ciphertext)
	if err != nil {
		return "", ErrMalformed
	}
	header := len(saltedMagic) + saltBytes
	if len(raw) < header+aes.BlockSize || !bytes.Equal(raw[:len(saltedMagic)], saltedMagic) {
		return "", ErrMalformed
	}
	if (len(raw)-header)%aes.BlockSize != 0 {
		return "", ErrMalformed
	}

	plain, err := openssl.New().DecryptBytes(passphrase, []byte(ciphertext), creds)
	if err != nil {
		return "", ErrWrongKey
	}
	if !utf8.Valid(plain) {
		return "", ErrInvalidUTF8
	}
	return string(plain), nil
}
