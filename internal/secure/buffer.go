// Package secure holds fetched secret material in protected memory until it
// is needed. Values live inside a memguard enclave (encrypted at rest,
// mlocked where the OS allows it) rather than in ordinary Go strings.
package secure

import (
	"errors"

	"github.com/awnumar/memguard"
)

// Buffer wraps a memguard enclave containing one secret value.
type Buffer struct {
	enclave *memguard.Enclave
}

// NewBuffer seals the given bytes into protected memory. The input slice is
// wiped by memguard as part of sealing; callers must not reuse it.
func NewBuffer(data []byte) *Buffer {
	return &Buffer{enclave: memguard.NewEnclave(data)}
}

// NewBufferFromString seals a string value. The original string cannot be
// wiped (Go strings are immutable); prefer NewBuffer when the caller owns
// the bytes.
func NewBufferFromString(value string) *Buffer {
	return &Buffer{enclave: memguard.NewEnclave([]byte(value))}
}

// Open decrypts the value into a locked buffer. The caller must call
// Destroy on the result as soon as the plaintext is no longer needed.
func (b *Buffer) Open() (*memguard.LockedBuffer, error) {
	if b == nil || b.enclave == nil {
		return nil, errors.New("secure: buffer is empty")
	}
	return b.enclave.Open()
}

// Reveal decrypts the value, copies it into a string, and wipes the locked
// buffer. Use only at the final display boundary.
func (b *Buffer) Reveal() (string, error) {
	locked, err := b.Open()
	if err != nil {
		return "", err
	}
	// LockedBuffer.String aliases the protected pages, which Destroy unmaps.
	// The string conversion copies out of them first.
	value := string(locked.Bytes())
	locked.Destroy()
	return value, nil
}

// Purge wipes all memguard-managed memory. Called once at process exit.
func Purge() {
	memguard.Purge()
}
