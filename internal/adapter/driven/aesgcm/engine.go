// Package aesgcm implements the Cipher port with PBKDF2-SHA256 key derivation
// and AES-256-GCM authenticated encryption.
//
// An encrypted value is the standard base64 encoding of
//
//	salt (16 bytes) || nonce (12 bytes) || ciphertext || tag (16 bytes)
//
// and is fully self-describing given the password.
package aesgcm

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"regexp"
	"runtime"

	"golang.org/x/crypto/pbkdf2"

	"github.com/ericfisherdev/notevault/internal/domain/port/driven"
)

const (
	// KeyLength is the derived key length in bytes (AES-256).
	KeyLength = 32

	// SaltLength is the per-blob random salt length in bytes.
	SaltLength = 16

	// NonceLength is the GCM nonce length in bytes.
	NonceLength = 12

	// DefaultIterations is the PBKDF2 round count used when none is configured.
	DefaultIterations = 100000

	// minEncodedLength is the base64 length of salt, nonce and a single byte.
	minEncodedLength = ((SaltLength+NonceLength+1)*4 + 2) / 3
)

// ErrInvalidKeyLength is returned by the raw-key helpers for keys that are
// not KeyLength bytes.
var ErrInvalidKeyLength = errors.New("aesgcm: invalid key length, must be 32 bytes")

var base64Shape = regexp.MustCompile(`^[A-Za-z0-9+/]+={0,2}$`)

// Compile-time interface satisfaction check.
var _ driven.Cipher = (*Engine)(nil)

// Engine is the password-based CipherEngine. It holds no mutable state and
// is safe for concurrent use.
type Engine struct {
	iterations int
}

// NewEngine creates an Engine that runs the given number of PBKDF2 rounds.
// A non-positive value selects DefaultIterations.
func NewEngine(iterations int) *Engine {
	if iterations <= 0 {
		iterations = DefaultIterations
	}
	return &Engine{iterations: iterations}
}

// DeriveKey returns the 32-byte key for password and salt. The result is
// deterministic for equal inputs.
func (e *Engine) DeriveKey(password string, salt []byte) []byte {
	return pbkdf2.Key([]byte(password), salt, e.iterations, KeyLength, sha256.New)
}

// Encrypt seals plaintext under a key derived from password with a fresh
// random salt and nonce.
func (e *Engine) Encrypt(plaintext, password string) (string, error) {
	salt := make([]byte, SaltLength)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("generate salt: %w", err)
	}
	nonce := make([]byte, NonceLength)
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("generate nonce: %w", err)
	}

	key := e.DeriveKey(password, salt)
	defer SecureWipe(key)

	gcm, err := newGCM(key)
	if err != nil {
		return "", err
	}

	out := make([]byte, 0, SaltLength+NonceLength+len(plaintext)+gcm.Overhead())
	out = append(out, salt...)
	out = append(out, nonce...)
	out = gcm.Seal(out, nonce, []byte(plaintext), nil)

	return base64.StdEncoding.EncodeToString(out), nil
}

// Decrypt opens a blob produced by Encrypt. Every failure is reported as
// driven.ErrDecryptionFailed.
func (e *Engine) Decrypt(blob, password string) (string, error) {
	data, err := base64.StdEncoding.DecodeString(blob)
	if err != nil {
		return "", driven.ErrDecryptionFailed
	}
	if len(data) < SaltLength+NonceLength+16 {
		return "", driven.ErrDecryptionFailed
	}

	salt := data[:SaltLength]
	nonce := data[SaltLength : SaltLength+NonceLength]
	sealed := data[SaltLength+NonceLength:]

	key := e.DeriveKey(password, salt)
	defer SecureWipe(key)

	gcm, err := newGCM(key)
	if err != nil {
		return "", driven.ErrDecryptionFailed
	}

	plaintext, err := gcm.Open(nil, nonce, sealed, nil)
	if err != nil {
		return "", driven.ErrDecryptionFailed
	}
	return string(plaintext), nil
}

// LooksEncrypted reports whether value is shaped like an Encrypt output:
// the standard base64 alphabet with optional padding, long enough to hold a
// salt, a nonce and at least one byte.
func (e *Engine) LooksEncrypted(value string) bool {
	return len(value) >= minEncodedLength && base64Shape.MatchString(value)
}

// SealWithKey encrypts plaintext with a raw 32-byte key and returns the
// base64 encoding of nonce || ciphertext || tag.
func SealWithKey(key, plaintext []byte) (string, error) {
	if len(key) != KeyLength {
		return "", ErrInvalidKeyLength
	}
	gcm, err := newGCM(key)
	if err != nil {
		return "", err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("generate nonce: %w", err)
	}

	// Seal appends to nonce, producing nonce || ciphertext || tag.
	sealed := gcm.Seal(nonce, nonce, plaintext, nil)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

// OpenWithKey reverses SealWithKey.
func OpenWithKey(key []byte, encoded string) ([]byte, error) {
	if len(key) != KeyLength {
		return nil, ErrInvalidKeyLength
	}
	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, driven.ErrDecryptionFailed
	}
	gcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}
	if len(data) < gcm.NonceSize()+gcm.Overhead() {
		return nil, driven.ErrDecryptionFailed
	}

	nonce, sealed := data[:gcm.NonceSize()], data[gcm.NonceSize():]
	plaintext, err := gcm.Open(nil, nonce, sealed, nil)
	if err != nil {
		return nil, driven.ErrDecryptionFailed
	}
	return plaintext, nil
}

// SecureWipe zeroes b in place.
func SecureWipe(b []byte) {
	for i := range b {
		b[i] = 0
	}
	runtime.KeepAlive(b)
}

func newGCM(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("aes.NewCipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("cipher.NewGCM: %w", err)
	}
	return gcm, nil
}
