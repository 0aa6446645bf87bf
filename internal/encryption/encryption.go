// Package encryption encrypts blobs at rest. Encryption needs only the public
// key; reading blobs back requires unlocking the private key with a passphrase.
package encryption

import (
	"errors"
	"io"
)

// ErrKeysExist is returned by Setup when a key pair is already present.
var ErrKeysExist = errors.New("encryption keys already exist")

// Encryptor encrypts content with a stored public key and unlocks the
// matching private key for decryption.
type Encryptor interface {
	// Setup generates a key pair, storing the public key in plaintext and the
	// private key encrypted with passphrase. Called by `minix keys init`.
	Setup(passphrase string) error

	// Encrypt encrypts data read from r and writes ciphertext to w.
	Encrypt(r io.Reader, w io.Writer) error

	// Unlock decrypts the private key with passphrase. The returned context
	// decrypts blobs for the lifetime of the process.
	Unlock(passphrase string) (DecryptionContext, error)

	// IsConfigured reports whether both key files exist.
	IsConfigured() bool
}

// DecryptionContext holds an unlocked private key in memory only.
type DecryptionContext interface {
	Decrypt(r io.Reader, w io.Writer) error
}
