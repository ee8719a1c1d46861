// Package crypto seals credentials at rest. A sealed secret is a small JSON
// document holding an AES-256-GCM ciphertext whose key is derived from a
// passphrase with PBKDF2-HMAC-SHA256.
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"golang.org/x/crypto/pbkdf2"
)

const (
	// DefaultIterations is the OWASP minimum for PBKDF2-HMAC-SHA256.
	DefaultIterations = 480_000
	saltLen           = 16
	aesKeyLen         = 32
	sealVersion       = 1
)

// ErrWrongPassphrase is returned when a sealed secret fails authentication.
var ErrWrongPassphrase = errors.New("crypto: wrong passphrase or corrupted secret")

type sealedJSON struct {
	Version    int    `json:"version"`
	Iterations int    `json:"iterations"`
	Salt       string `json:"salt"`
	Nonce      string `json:"nonce"`
	Ciphertext string `json:"ciphertext"`
}

// Seal encrypts plaintext under passphrase and returns the JSON document.
func Seal(plaintext, passphrase string) ([]byte, error) {
	return seal(plaintext, passphrase, DefaultIterations)
}

func seal(plaintext, passphrase string, iterations int) ([]byte, error) {
	if passphrase == "" {
		return nil, errors.New("crypto: passphrase must not be empty")
	}
	if plaintext == "" {
		return nil, errors.New("crypto: nothing to seal")
	}

	salt := make([]byte, saltLen)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("crypto: generating salt: %w", err)
	}
	gcm, err := newGCM(passphrase, salt, iterations)
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("crypto: generating nonce: %w", err)
	}

	return json.MarshalIndent(sealedJSON{
		Version:    sealVersion,
		Iterations: iterations,
		Salt:       base64.StdEncoding.EncodeToString(salt),
		Nonce:      base64.StdEncoding.EncodeToString(nonce),
		Ciphertext: base64.StdEncoding.EncodeToString(gcm.Seal(nil, nonce, []byte(plaintext), nil)),
	}, "", "  ")
}

// Open decrypts a document produced by Seal.
func Open(sealed []byte, passphrase string) (string, error) {
	if passphrase == "" {
		return "", errors.New("crypto: passphrase must not be empty")
	}

	var doc sealedJSON
	if err := json.Unmarshal(sealed, &doc); err != nil {
		return "", fmt.Errorf("crypto: parsing sealed secret: %w", err)
	}
	if doc.Version != sealVersion {
		return "", fmt.Errorf("crypto: unsupported version %d", doc.Version)
	}
	if doc.Iterations <= 0 {
		return "", fmt.Errorf("crypto: invalid iteration count %d", doc.Iterations)
	}

	salt, err := base64.StdEncoding.DecodeString(doc.Salt)
	if err != nil {
		return "", fmt.Errorf("crypto: decoding salt: %w", err)
	}
	nonce, err := base64.StdEncoding.DecodeString(doc.Nonce)
	if err != nil {
		return "", fmt.Errorf("crypto: decoding nonce: %w", err)
	}
	ciphertext, err := base64.StdEncoding.DecodeString(doc.Ciphertext)
	if err != nil {
		return "", fmt.Errorf("crypto: decoding ciphertext: %w", err)
	}

	gcm, err := newGCM(passphrase, salt, doc.Iterations)
	if err != nil {
		return "", err
	}
	if len(nonce) != gcm.NonceSize() {
		return "", fmt.Errorf("crypto: nonce length %d", len(nonce))
	}
	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", ErrWrongPassphrase
	}
	return string(plaintext), nil
}

func newGCM(passphrase string, salt []byte, iterations int) (cipher.AEAD, error) {
	key := pbkdf2.Key([]byte(passphrase), salt, iterations, aesKeyLen, sha256.New)
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("crypto: creating cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("crypto: creating GCM: %w", err)
	}
	return gcm, nil
}

// SecretSource describes where a credential comes from.
type SecretSource struct {
	// Plain is used as-is when set.
	Plain string
	// SealedPath points at a file written by Seal.
	SealedPath string
	Passphrase string
}

// Resolve returns the credential described by src. Plain wins over
// SealedPath; an empty source resolves to "".
func Resolve(src SecretSource) (string, error) {
	if src.Plain != "" {
		return src.Plain, nil
	}
	if src.SealedPath == "" {
		return "", nil
	}
	data, err := os.ReadFile(src.SealedPath)
	if err != nil {
		return "", fmt.Errorf("crypto: reading sealed secret: %w", err)
	}
	secret, err := Open(data, src.Passphrase)
	if err != nil {
		return "", fmt.Errorf("crypto: %s: %w", src.SealedPath, err)
	}
	return strings.TrimRight(secret, "\r\n"), nil
}

// SealFile seals plaintext and writes it to path with owner-only permissions.
func SealFile(path, plaintext, passphrase string) error {
	data, err := Seal(plaintext, passphrase)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("crypto: writing sealed secret: %w", err)
	}
	return nil
}
