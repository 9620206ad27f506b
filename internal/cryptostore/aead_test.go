package cryptostore

import (
	"bytes"
	"context"
	"testing"

	"github.com/baebaebaebaebae/bae-core/internal/objstore"
)

func testKeyRing(t *testing.T) *KeyRing {
	t.Helper()
	master := bytes.Repeat([]byte{0x42}, keySize)
	kr, err := NewKeyRing(master)
	if err != nil {
		t.Fatalf("NewKeyRing: %v", err)
	}
	return kr
}

func TestSingleRoundTrip(t *testing.T) {
	dir := t.TempDir()
	backing, err := objstore.NewLocalFS(dir)
	if err != nil {
		t.Fatalf("NewLocalFS: %v", err)
	}
	store := New(backing, testKeyRing(t), 0)
	ctx := context.Background()
	key := objstore.Key("11112222-3333-4444-5555-666677778888")
	plaintext := []byte("a whole flac file, or close enough for a test")

	nonce, err := store.PutEncrypted(ctx, key, bytes.NewReader(plaintext), SchemeMaster, "", PolicySingle)
	if err != nil {
		t.Fatalf("PutEncrypted: %v", err)
	}

	got, err := store.GetAllDecrypted(ctx, key, SchemeMaster, "", nonce, PolicySingle)
	if err != nil {
		t.Fatalf("GetAllDecrypted: %v", err)
	}
	if !bytes.Equal(got, plaintext) {
		t.Errorf("round trip = %q, want %q", got, plaintext)
	}
}

func TestChunkedRoundTripAndRangeRead(t *testing.T) {
	dir := t.TempDir()
	backing, err := objstore.NewLocalFS(dir)
	if err != nil {
		t.Fatalf("NewLocalFS: %v", err)
	}
	const chunkSize = 16
	store := New(backing, testKeyRing(t), chunkSize)
	ctx := context.Background()
	key := objstore.Key("aaaabbbb-cccc-dddd-eeee-ffffaaaabbbb")

	// Three full chunks plus a short final chunk.
	plaintext := []byte("0123456789abcdef0123456789abcdef0123456789abcdefXYZ")

	nonce, err := store.PutEncrypted(ctx, key, bytes.NewReader(plaintext), SchemeDerived, "release-1", PolicyChunked)
	if err != nil {
		t.Fatalf("PutEncrypted: %v", err)
	}

	got, err := store.GetAllDecrypted(ctx, key, SchemeDerived, "release-1", nonce, PolicyChunked)
	if err != nil {
		t.Fatalf("GetAllDecrypted: %v", err)
	}
	if !bytes.Equal(got, plaintext) {
		t.Fatalf("round trip = %q, want %q", got, plaintext)
	}

	// A range entirely inside the second chunk must decrypt to the matching
	// plaintext slice without touching the other chunks' authentication.
	gotRange, err := store.GetRangeDecrypted(ctx, key, SchemeDerived, "release-1", nonce, PolicyChunked, 20, 5)
	if err != nil {
		t.Fatalf("GetRangeDecrypted: %v", err)
	}
	want := plaintext[20:25]
	if !bytes.Equal(gotRange, want) {
		t.Errorf("ranged decrypt = %q, want %q", gotRange, want)
	}

	// A range spanning the chunk boundary into the short final chunk.
	gotTail, err := store.GetRangeDecrypted(ctx, key, SchemeDerived, "release-1", nonce, PolicyChunked, 40, 11)
	if err != nil {
		t.Fatalf("GetRangeDecrypted (tail): %v", err)
	}
	wantTail := plaintext[40:51]
	if !bytes.Equal(gotTail, wantTail) {
		t.Errorf("ranged decrypt (tail) = %q, want %q", gotTail, wantTail)
	}
}

func TestDerivedKeysDifferPerRelease(t *testing.T) {
	kr := testKeyRing(t)
	a, err := kr.DerivedKey("release-a")
	if err != nil {
		t.Fatalf("DerivedKey: %v", err)
	}
	b, err := kr.DerivedKey("release-b")
	if err != nil {
		t.Fatalf("DerivedKey: %v", err)
	}
	if a == b {
		t.Errorf("derived keys for different releases must differ")
	}
}

func TestDecryptFailsAfterRotation(t *testing.T) {
	dir := t.TempDir()
	backing, err := objstore.NewLocalFS(dir)
	if err != nil {
		t.Fatalf("NewLocalFS: %v", err)
	}
	kr := testKeyRing(t)
	store := New(backing, kr, 0)
	ctx := context.Background()
	key := objstore.Key("99990000-1111-2222-3333-444455556666")

	nonce, err := store.PutEncrypted(ctx, key, bytes.NewReader([]byte("secret")), SchemeMaster, "", PolicySingle)
	if err != nil {
		t.Fatalf("PutEncrypted: %v", err)
	}

	kr.Rotate(bytes.Repeat([]byte{0x99}, keySize))

	if _, err := store.GetAllDecrypted(ctx, key, SchemeMaster, "", nonce, PolicySingle); err == nil {
		t.Errorf("expected decrypt failure after key rotation, got nil error")
	}
}
