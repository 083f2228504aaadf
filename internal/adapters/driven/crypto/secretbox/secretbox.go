// Package secretbox encrypts secrets at rest with NaCl secretbox
// (XSalsa20-Poly1305) under a 32-byte master key.
//
// Ciphertexts have the form base64(nonce)|base64(sealed).
package secretbox

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/crypto/nacl/secretbox"

	"github.com/custodia-labs/sercha-connect/internal/core/ports/driven"
)

// EnvVar holds the master key (base64 or hex of 32 bytes).
const EnvVar = "SERCHA_CONNECT_MASTER_KEY"

const (
	keySize   = 32
	nonceSize = 24
	sep       = "|"
)

// ErrMalformed is returned for ciphertexts not produced by this package.
var ErrMalformed = errors.New("secretbox: malformed ciphertext")

// Cipher implements driven.Cipher.
type Cipher struct {
	key  [keySize]byte
	rand io.Reader
}

var _ driven.Cipher = (*Cipher)(nil)

// New creates a Cipher from a raw 32-byte key.
func New(key []byte) (*Cipher, error) {
	if len(key) != keySize {
		return nil, fmt.Errorf("secretbox: key must be %d bytes, got %d", keySize, len(key))
	}
	c := &Cipher{rand: rand.Reader}
	copy(c.key[:], key)
	return c, nil
}

// FromEnv creates a Cipher from the key in EnvVar.
func FromEnv(lookup func(string) (string, bool)) (*Cipher, error) {
	if lookup == nil {
		lookup = os.LookupEnv
	}
	encoded, ok := lookup(EnvVar)
	if !ok || strings.TrimSpace(encoded) == "" {
		return nil, fmt.Errorf("%s is not set; generate one with: openssl rand -base64 32", EnvVar)
	}
	key, err := ParseKey(encoded)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", EnvVar, err)
	}
	return New(key)
}

// FromFile creates a Cipher from the key stored at path, generating and
// writing a new key with mode 0600 when the file does not exist.
func FromFile(path string) (*Cipher, error) {
	raw, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		encoded, genErr := GenerateKey()
		if genErr != nil {
			return nil, genErr
		}
		if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
			return nil, fmt.Errorf("creating key directory: %w", err)
		}
		if err := os.WriteFile(path, []byte(encoded+"\n"), 0600); err != nil {
			return nil, fmt.Errorf("writing key file: %w", err)
		}
		raw = []byte(encoded)
	} else if err != nil {
		return nil, fmt.Errorf("reading key file: %w", err)
	}

	key, err := ParseKey(string(raw))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return New(key)
}

// ParseKey decodes a base64 (padded or raw) or hex encoded 32-byte key.
func ParseKey(encoded string) ([]byte, error) {
	encoded = strings.TrimSpace(encoded)

	if b, err := base64.StdEncoding.DecodeString(encoded); err == nil && len(b) == keySize {
		return b, nil
	}
	if b, err := base64.RawStdEncoding.DecodeString(encoded); err == nil && len(b) == keySize {
		return b, nil
	}
	if len(encoded) == 2*keySize {
		if b, err := hex.DecodeString(encoded); err == nil {
			return b, nil
		}
	}
	return nil, fmt.Errorf("key must decode to %d bytes", keySize)
}

// GenerateKey returns a new random key, base64 encoded.
func GenerateKey() (string, error) {
	key := make([]byte, keySize)
	if _, err := io.ReadFull(rand.Reader, key); err != nil {
		return "", fmt.Errorf("generating key: %w", err)
	}
	return base64.StdEncoding.EncodeToString(key), nil
}

// Encrypt seals plaintext under a fresh random nonce.
func (c *Cipher) Encrypt(plaintext string) (string, error) {
	var nonce [nonceSize]byte
	if _, err := io.ReadFull(c.rand, nonce[:]); err != nil {
		return "", fmt.Errorf("secretbox: nonce: %w", err)
	}

	sealed := secretbox.Seal(nil, []byte(plaintext), &nonce, &c.key)
	return base64.StdEncoding.EncodeToString(nonce[:]) + sep +
		base64.StdEncoding.EncodeToString(sealed), nil
}

// Decrypt opens a ciphertext produced by Encrypt.
func (c *Cipher) Decrypt(ciphertext string) (string, error) {
	nonceB64, sealedB64, ok := strings.Cut(ciphertext, sep)
	if !ok {
		return "", ErrMalformed
	}

	rawNonce, err := base64.StdEncoding.DecodeString(nonceB64)
	if err != nil || len(rawNonce) != nonceSize {
		return "", ErrMalformed
	}
	sealed, err := base64.StdEncoding.DecodeString(sealedB64)
	if err != nil || len(sealed) < secretbox.Overhead {
		return "", ErrMalformed
	}

	var nonce [nonceSize]byte
	copy(nonce[:], rawNonce)

	plaintext, ok := secretbox.Open(nil, sealed, &nonce, &c.key)
	if !ok {
		return "", errors.New("secretbox: authentication failed")
	}
	return string(plaintext), nil
}
