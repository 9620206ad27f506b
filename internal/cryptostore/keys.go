package cryptostore

import (
	"crypto/sha256"
	"fmt"
	"io"
	"sync/atomic"

	"golang.org/x/crypto/hkdf"
)

const keySize = 32 // chacha20poly1305.KeySize

// keyHandle is the value swapped atomically on rotation (spec §9: "confine
// to a small value type passed by handle... swap the handle atomically so
// in-flight reads complete with the old key and new reads use the new
// one").
type keyHandle struct {
	master      [keySize]byte
	fingerprint string
}

// KeyRing holds the current master key behind an atomic pointer so rotation
// never blocks or races in-flight reads.
type KeyRing struct {
	current atomic.Pointer[keyHandle]
}

// NewKeyRing returns a KeyRing seeded with masterKey, which must be exactly
// 32 bytes.
func NewKeyRing(masterKey []byte) (*KeyRing, error) {
	if len(masterKey) != keySize {
		return nil, fmt.Errorf("master key must be %d bytes, got %d", keySize, len(masterKey))
	}
	kr := &KeyRing{}
	kr.Rotate(masterKey)
	return kr, nil
}

// Rotate atomically installs a new master key. Reads already in flight keep
// using the handle they loaded; new reads see the new key immediately.
func (kr *KeyRing) Rotate(masterKey []byte) {
	h := &keyHandle{}
	copy(h.master[:], masterKey)
	h.fingerprint = Fingerprint(masterKey)
	kr.current.Store(h)
}

// Fingerprint is the first 8 bytes of sha256(key), hex-encoded. KeyRing keeps
// it beside the active key and returns it from MasterKey; this package does
// not persist it anywhere, so nothing here compares it across restarts.
func Fingerprint(key []byte) string {
	sum := sha256.Sum256(key)
	return fmt.Sprintf("%x", sum[:8])
}

// MasterKey returns the currently active 32-byte master key and its
// fingerprint.
func (kr *KeyRing) MasterKey() (key [keySize]byte, fingerprint string) {
	h := kr.current.Load()
	return h.master, h.fingerprint
}

// DerivedKey returns the per-release AEAD key for releaseID: HKDF(master,
// salt=releaseID) — spec glossary "Derived key".
func (kr *KeyRing) DerivedKey(releaseID string) ([keySize]byte, error) {
	h := kr.current.Load()
	reader := hkdf.New(sha256.New, h.master[:], []byte(releaseID), []byte("bae-derived-file-key"))
	var out [keySize]byte
	if _, err := io.ReadFull(reader, out[:]); err != nil {
		return out, fmt.Errorf("hkdf derive: %w", err)
	}
	return out, nil
}
