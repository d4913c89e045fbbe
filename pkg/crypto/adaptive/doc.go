// Package adaptive provides authenticated encryption for stored files.
//
// A Cipher seals whole file bodies. The algorithm is picked from the
// hardware:
//
//   - AES-256-GCM where the Go runtime has AES acceleration (amd64, arm64)
//   - ChaCha20-Poly1305 everywhere else
//
// Keys come from a key file (32 raw bytes or 64 hex characters) or are
// derived from a passphrase with HKDF-SHA256.
//
// Usage:
//
//	key, err := adaptive.LoadKey("/etc/dirstore/key")
//	c, err := adaptive.New(key)
//	sealed, err := c.Encrypt(plaintext, []byte(name))
//	plaintext, err := c.Decrypt(sealed, []byte(name))
package adaptive
