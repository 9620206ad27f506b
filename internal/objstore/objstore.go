// Package objstore provides a storage-backend abstraction for release
// payloads: local filesystem and S3-compatible object storage behind one
// capability interface, picked at release-open time from the profile row.
package objstore

import (
	"context"
	"fmt"
	"io"
	"strings"
)

// ObjectStore is the capability interface every storage backend implements.
// Implementations own their own connection pools; none of them hold
// cross-call state beyond that.
type ObjectStore interface {
	// Put stores a new object, overwriting any existing one at key. r is
	// read exactly once; size is the total byte count (-1 when unknown,
	// e.g. a pipe).
	Put(ctx context.Context, key string, r io.Reader, size int64) error
	// GetRange returns a reader for [offset, offset+length) bytes of key.
	GetRange(ctx context.Context, key string, offset, length int64) (io.ReadCloser, error)
	// GetAll returns a reader for the entire object.
	GetAll(ctx context.Context, key string) (io.ReadCloser, error)
	// Delete removes an object. A non-existent key is not an error.
	Delete(ctx context.Context, key string) error
	// Exists reports whether the object with the given key is present.
	Exists(ctx context.Context, key string) (bool, error)
	// Size returns the byte length of the object.
	Size(ctx context.Context, key string) (int64, error)
}

// Key returns the deterministic storage key for a file ID, scattering
// objects across subdirectories/prefixes so no single directory (or S3
// "folder") accumulates every file in the library: storage/{ab}/{cd}/{file_id}
// where ab/cd are the first two hex byte-pairs of the ID — a UUID's hex
// digits are used directly without re-encoding.
func Key(fileID string) string {
	hex := strings.ReplaceAll(fileID, "-", "")
	if len(hex) < 4 {
		return fmt.Sprintf("storage/%s", fileID)
	}
	return fmt.Sprintf("storage/%s/%s/%s", hex[0:2], hex[2:4], fileID)
}

// DeleteRelease removes every object for a release's files from the given
// store. Errors from individual deletes are collected but do not stop the
// sweep — Delete is defined to treat a missing key as success, so any
// error here reflects a real backend problem worth surfacing.
func DeleteRelease(ctx context.Context, store ObjectStore, fileIDs []string) error {
	var firstErr error
	for _, id := range fileIDs {
		if err := store.Delete(ctx, Key(id)); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
