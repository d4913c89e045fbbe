package adaptive

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"

	"golang.org/x/crypto/hkdf"
)

// KeySize is the size of keys produced by LoadKey and DeriveKey.
const KeySize = 32

const hkdfInfo = "dirstore file envelope v1"

var ErrEmptyPassphrase = errors.New("adaptive: empty passphrase")

// LoadKey reads a key file. The file holds either exactly KeySize raw bytes
// or their hex encoding; surrounding whitespace around hex is ignored.
func LoadKey(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("adaptive: read key file: %w", err)
	}
	return ParseKey(data)
}

// ParseKey accepts KeySize raw bytes or 2*KeySize hex characters.
func ParseKey(data []byte) ([]byte, error) {
	if len(data) == KeySize {
		return append([]byte(nil), data...), nil
	}
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == hex.EncodedLen(KeySize) {
		key := make([]byte, KeySize)
		if _, err := hex.Decode(key, trimmed); err != nil {
			return nil, fmt.Errorf("adaptive: decode hex key: %w", err)
		}
		return key, nil
	}
	return nil, fmt.Errorf("%w: want %d raw bytes or %d hex characters, got %d bytes",
		ErrInvalidKeySize, KeySize, hex.EncodedLen(KeySize), len(data))
}

// DeriveKey stretches a passphrase into a KeySize key with HKDF-SHA256.
// The salt may be nil.
func DeriveKey(passphrase, salt []byte) ([]byte, error) {
	if len(passphrase) == 0 {
		return nil, ErrEmptyPassphrase
	}
	key := make([]byte, KeySize)
	r := hkdf.New(sha256.New, passphrase, salt, []byte(hkdfInfo))
	if _, err := io.ReadFull(r, key); err != nil {
		return nil, fmt.Errorf("adaptive: derive key: %w", err)
	}
	return key, nil
}
