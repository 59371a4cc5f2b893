package driven

import "errors"

// ErrDecryptionFailed is the only error a Cipher reports for a blob it cannot
// open. Malformed encoding, truncation, a wrong password and a tampered
// ciphertext are indistinguishable to the caller.
var ErrDecryptionFailed = errors.New("decryption failed")

// Cipher defines the driven port for password-based encryption of note
// content.
type Cipher interface {
	// Encrypt seals plaintext under a key derived from password. Each call
	// uses a fresh salt and nonce, so equal inputs give different outputs.
	Encrypt(plaintext, password string) (string, error)

	// Decrypt opens a blob produced by Encrypt. Any failure is
	// ErrDecryptionFailed.
	Decrypt(blob, password string) (string, error)

	// LooksEncrypted reports whether value has the shape of an Encrypt
	// output. It is a dispatch hint and may report false positives.
	LooksEncrypted(value string) bool
}
