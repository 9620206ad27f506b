// Package cryptostore layers transparent XChaCha20-Poly1305 encryption over
// an objstore.ObjectStore, per spec §4.5: cloud profiles are always
// encrypted, local profiles never are — this package is what the storage
// service wraps a backend with when a profile says encrypted=true.
package cryptostore

import (
	"bytes"
	"context"
	"crypto/rand"
	"encoding/binary"
	"fmt"
	"io"

	"golang.org/x/crypto/chacha20poly1305"

	"github.com/baebaebaebaebae/bae-core/internal/baeerr"
	"github.com/baebaebaebaebae/bae-core/internal/objstore"
)

// NonceSize is the on-wire nonce length — spec §4.5/§6: "24-byte XChaCha20
// nonce".
const NonceSize = chacha20poly1305.NonceSizeX

// TagSize is the Poly1305 authentication tag length.
const TagSize = chacha20poly1305.Overhead

// Scheme selects which key protects a file.
type Scheme int

const (
	// SchemeMaster: a single process key encrypts all files.
	SchemeMaster Scheme = iota
	// SchemeDerived: per-release key = HKDF(master, salt=release_id).
	SchemeDerived
)

// Policy controls whether a file is sealed as one large AEAD payload or
// split into independently-authenticated chunks. Left as an explicit,
// per-call choice rather than a single global default — spec §9 open
// question: "a policy toggle... should remain configurable per profile."
type Policy int

const (
	// PolicySingle seals the whole file in one AEAD call: simplest, but a
	// range read must decrypt (and therefore fetch) the entire object.
	PolicySingle Policy = iota
	// PolicyChunked splits the file into fixed-size chunks, each with its
	// own nonce (nonce_base XOR counter) and tag, so a ranged read only
	// decrypts the chunks it spans.
	PolicyChunked
)

// DefaultChunkSize is the plaintext size of one chunk under PolicyChunked.
const DefaultChunkSize = 4 << 20 // 4 MiB

// Store wraps an objstore.ObjectStore, encrypting on Put and decrypting on
// GetRange/GetAll. Its methods take the scheme/policy/release-id every
// encrypted write and read needs, which a bare objstore.ObjectStore call
// can't express — callers pick this type explicitly for profiles with
// encrypted=true rather than through the plain ObjectStore interface.
type Store struct {
	backing   objstore.ObjectStore
	keys      *KeyRing
	chunkSize int64
}

// New returns a Store wrapping backing, using keys for key material and
// chunkSize as the PolicyChunked chunk size (DefaultChunkSize if zero).
func New(backing objstore.ObjectStore, keys *KeyRing, chunkSize int64) *Store {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	return &Store{backing: backing, keys: keys, chunkSize: chunkSize}
}

func (s *Store) cipherFor(scheme Scheme, releaseID string) (aead interface {
	Seal(dst, nonce, plaintext, additionalData []byte) []byte
	Open(dst, nonce, ciphertext, additionalData []byte) ([]byte, error)
	NonceSize() int
	Overhead() int
}, err error) {
	var key [32]byte
	switch scheme {
	case SchemeMaster:
		key, _ = s.keys.MasterKey()
	case SchemeDerived:
		key, err = s.keys.DerivedKey(releaseID)
		if err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("unknown encryption scheme %d", scheme)
	}
	c, err := chacha20poly1305.NewX(key[:])
	if err != nil {
		return nil, fmt.Errorf("%w: %v", baeerr.ErrKeyUnavailable, err)
	}
	return c, nil
}

// PutEncrypted encrypts r under the given scheme/policy and stores it at
// key, returning the randomly-generated base nonce (24 bytes) that must be
// persisted on the File row so future range reads don't need a preflight
// fetch (spec §4.5).
func (s *Store) PutEncrypted(ctx context.Context, key string, r io.Reader, scheme Scheme, releaseID string, policy Policy) (nonceBase []byte, err error) {
	aead, err := s.cipherFor(scheme, releaseID)
	if err != nil {
		return nil, err
	}
	nonceBase = make([]byte, NonceSize)
	if _, err := rand.Read(nonceBase); err != nil {
		return nil, fmt.Errorf("generate nonce: %w", err)
	}

	var buf bytes.Buffer
	if policy == PolicySingle {
		plaintext, err := io.ReadAll(r)
		if err != nil {
			return nil, fmt.Errorf("read plaintext: %w", err)
		}
		buf.Write(aead.Seal(nil, nonceBase, plaintext, nil))
	} else {
		chunk := make([]byte, s.chunkSize)
		var counter uint64
		for {
			n, readErr := io.ReadFull(r, chunk)
			if n > 0 {
				nonce := chunkNonce(nonceBase, counter)
				buf.Write(aead.Seal(nil, nonce, chunk[:n], nil))
				counter++
			}
			if readErr == io.EOF || readErr == io.ErrUnexpectedEOF {
				break
			}
			if readErr != nil {
				return nil, fmt.Errorf("read plaintext: %w", readErr)
			}
		}
	}

	if err := s.backing.Put(ctx, key, &buf, int64(buf.Len())); err != nil {
		return nil, fmt.Errorf("%w: %v", baeerr.ErrEncrypt, err)
	}
	return nonceBase, nil
}

// GetAllDecrypted reads and decrypts the entire object at key.
func (s *Store) GetAllDecrypted(ctx context.Context, key string, scheme Scheme, releaseID string, nonceBase []byte, policy Policy) ([]byte, error) {
	size, err := s.backing.Size(ctx, key)
	if err != nil {
		return nil, err
	}
	// size counts ciphertext plus tags; the range read takes plaintext bytes.
	length := size - TagSize
	if policy == PolicyChunked {
		sealedChunkSize := s.chunkSize + TagSize
		length = (size / sealedChunkSize) * s.chunkSize
		if rem := size % sealedChunkSize; rem > TagSize {
			length += rem - TagSize
		}
	}
	return s.GetRangeDecrypted(ctx, key, scheme, releaseID, nonceBase, policy, 0, length)
}

// GetRangeDecrypted returns the decrypted plaintext for [offset, offset+length)
// of the object at key, fetching and decrypting only the chunk(s) spanning
// that range under PolicyChunked. Under PolicySingle the full ciphertext
// must be fetched and decrypted regardless of the requested range.
func (s *Store) GetRangeDecrypted(ctx context.Context, key string, scheme Scheme, releaseID string, nonceBase []byte, policy Policy, offset, length int64) ([]byte, error) {
	aead, err := s.cipherFor(scheme, releaseID)
	if err != nil {
		return nil, err
	}

	if policy == PolicySingle {
		rc, err := s.backing.GetAll(ctx, key)
		if err != nil {
			return nil, err
		}
		defer rc.Close()
		ciphertext, err := io.ReadAll(rc)
		if err != nil {
			return nil, err
		}
		plaintext, err := aead.Open(nil, nonceBase, ciphertext, nil)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", baeerr.ErrDecrypt, err)
		}
		if offset+length > int64(len(plaintext)) {
			return nil, &baeerr.ByteRangeOutOfBoundsError{Start: offset, End: offset + length, Size: int64(len(plaintext))}
		}
		return plaintext[offset : offset+length], nil
	}

	sealedChunkSize := s.chunkSize + TagSize
	firstChunk := offset / s.chunkSize
	lastChunk := (offset + length - 1) / s.chunkSize

	cipherStart := firstChunk * sealedChunkSize
	cipherLen := (lastChunk - firstChunk + 1) * sealedChunkSize

	rc, err := s.backing.GetRange(ctx, key, cipherStart, cipherLen)
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	ciphertext, err := io.ReadAll(rc)
	if err != nil {
		return nil, err
	}

	var plaintext bytes.Buffer
	for i := firstChunk; i <= lastChunk; i++ {
		start := (i - firstChunk) * sealedChunkSize
		end := start + sealedChunkSize
		if end > int64(len(ciphertext)) {
			end = int64(len(ciphertext))
		}
		if start >= end {
			break
		}
		nonce := chunkNonce(nonceBase, uint64(i))
		chunkPlain, err := aead.Open(nil, nonce, ciphertext[start:end], nil)
		if err != nil {
			return nil, fmt.Errorf("%w: chunk %d: %v", baeerr.ErrDecrypt, i, err)
		}
		plaintext.Write(chunkPlain)
	}

	skip := offset - firstChunk*s.chunkSize
	all := plaintext.Bytes()
	if skip+length > int64(len(all)) {
		return nil, &baeerr.ByteRangeOutOfBoundsError{Start: offset, End: offset + length, Size: int64(len(all)) + firstChunk*s.chunkSize}
	}
	return all[skip : skip+length], nil
}

// chunkNonce XORs a little-endian counter into the low 8 bytes of nonceBase,
// per spec §6: "nonce_chunk = nonce_base XOR counter_le64" — the spec names
// the counter little-endian; the XOR target bytes are the trailing 8 of the
// 24-byte nonce regardless of that counter's own endianness.
func chunkNonce(nonceBase []byte, counter uint64) []byte {
	nonce := make([]byte, len(nonceBase))
	copy(nonce, nonceBase)
	var counterBytes [8]byte
	binary.LittleEndian.PutUint64(counterBytes[:], counter)
	off := len(nonce) - 8
	for i := 0; i < 8; i++ {
		nonce[off+i] ^= counterBytes[i]
	}
	return nonce
}
