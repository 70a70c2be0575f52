// Package sealer encrypts session snapshots at rest with XChaCha20-Poly1305.
//
// Sealed blob layout:
//
//	[version: 1 byte] [nonce: 24 bytes] [ciphertext+tag]
//
// The version byte and the sealer's context label are authenticated as AAD,
// so a blob sealed for one purpose cannot be opened as another.
package sealer

import (
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"golang.org/x/crypto/chacha20poly1305"
)

// KeySize is the sealing key length in bytes
const KeySize = chacha20poly1305.KeySize

// BlobVersion is the format version prepended to every sealed blob
const BlobVersion byte = 0x01

// Overhead is the size added to every plaintext by Seal
const Overhead = 1 + chacha20poly1305.NonceSizeX + chacha20poly1305.Overhead

// ErrOpenFailed is returned when a blob cannot be authenticated
var ErrOpenFailed = errors.New("sealed blob failed authentication")

// Sealer seals and opens blobs with one key and context label
type Sealer struct {
	key     []byte
	context []byte
}

// New creates a sealer from a 32-byte key. The label is bound into every blob.
func New(key []byte, label string) (*Sealer, error) {
	if len(key) != KeySize {
		return nil, fmt.Errorf("sealing key must be %d bytes, got %d", KeySize, len(key))
	}
	k := make([]byte, KeySize)
	copy(k, key)
	return &Sealer{key: k, context: []byte(label)}, nil
}

// NewFromKeyFile loads the key at path, creating a fresh random key (mode 0600) when the file does not exist
func NewFromKeyFile(path, label string) (*Sealer, error) {
	key, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		key, err = generateKeyFile(path)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load sealing key %s: %w", path, err)
	}
	return New(key, label)
}

func generateKeyFile(path string) ([]byte, error) {
	key := make([]byte, KeySize)
	if _, err := io.ReadFull(rand.Reader, key); err != nil {
		return nil, fmt.Errorf("generating sealing key: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, err
	}
	if err := os.WriteFile(path, key, 0600); err != nil {
		return nil, err
	}
	return key, nil
}

// Seal encrypts plaintext into a versioned blob with a random nonce
func (s *Sealer) Seal(plaintext []byte) ([]byte, error) {
	aead, err := chacha20poly1305.NewX(s.key)
	if err != nil {
		return nil, fmt.Errorf("creating XChaCha20-Poly1305 cipher: %w", err)
	}

	var nonce [chacha20poly1305.NonceSizeX]byte
	if _, err := io.ReadFull(rand.Reader, nonce[:]); err != nil {
		return nil, fmt.Errorf("generating random nonce: %w", err)
	}

	out := make([]byte, 1+len(nonce), Overhead+len(plaintext))
	out[0] = BlobVersion
	copy(out[1:], nonce[:])

	return aead.Seal(out, nonce[:], plaintext, s.aad(BlobVersion)), nil
}

// Open authenticates and decrypts a blob produced by Seal
func (s *Sealer) Open(blob []byte) ([]byte, error) {
	if len(blob) < Overhead {
		return nil, fmt.Errorf("%w: blob is %d bytes, minimum is %d", ErrOpenFailed, len(blob), Overhead)
	}
	if blob[0] != BlobVersion {
		return nil, fmt.Errorf("%w: unsupported version %d", ErrOpenFailed, blob[0])
	}

	aead, err := chacha20poly1305.NewX(s.key)
	if err != nil {
		return nil, fmt.Errorf("creating XChaCha20-Poly1305 cipher: %w", err)
	}

	nonce := blob[1 : 1+chacha20poly1305.NonceSizeX]
	plaintext, err := aead.Open(nil, nonce, blob[1+chacha20poly1305.NonceSizeX:], s.aad(blob[0]))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrOpenFailed, err)
	}
	return plaintext, nil
}

func (s *Sealer) aad(version byte) []byte {
	aad := make([]byte, 1+len(s.context))
	aad[0] = version
	copy(aad[1:], s.context)
	return aad
}
