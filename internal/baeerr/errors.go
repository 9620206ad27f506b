// Package baeerr defines the error vocabulary shared across the import,
// storage, and playback pipelines, so callers can branch on errors.Is /
// errors.As instead of parsing messages.
package baeerr

import "fmt"

// Sentinel errors for the classification stage.
var (
	ErrEmptyFolder     = fmt.Errorf("empty folder")
	ErrAllAudioCorrupt = fmt.Errorf("all audio files corrupt")
	ErrCueFlacMismatch = fmt.Errorf("cue sheet does not match any flac file")
	ErrMultipleFileCue = fmt.Errorf("cue sheet references more than one FILE")
)

// Sentinel errors for DiscID computation.
var (
	ErrDiscIDEmpty       = fmt.Errorf("no track offsets available for discid")
	ErrDiscIDLookupFailed = fmt.Errorf("discid lookup failed")
)

// Sentinel errors for catalog access.
var (
	ErrConcurrent = fmt.Errorf("concurrent modification")
)

// Sentinel errors for storage and crypto.
var (
	ErrStorageAuth     = fmt.Errorf("storage authentication failed")
	ErrStorageNotFound = fmt.Errorf("storage object not found")
	ErrKeyUnavailable  = fmt.Errorf("encryption key unavailable")
	ErrDecrypt         = fmt.Errorf("decryption failed")
	ErrEncrypt         = fmt.Errorf("encryption failed")
)

// Sentinel errors for lifecycle control.
var (
	ErrCancelled = fmt.Errorf("operation cancelled")
	ErrTimeout   = fmt.Errorf("operation timed out")
)

// UnsupportedAudioError reports an audio file with a rejected extension.
type UnsupportedAudioError struct {
	Extension string
}

func (e *UnsupportedAudioError) Error() string {
	return fmt.Sprintf("unsupported audio extension %q", e.Extension)
}

// TrackCountMismatchError reports a mismatch between the catalog's expected
// track count and the files/CUE entries actually found.
type TrackCountMismatchError struct {
	Expected int
	Found    int
}

func (e *TrackCountMismatchError) Error() string {
	return fmt.Sprintf("track count mismatch: expected %d, found %d", e.Expected, e.Found)
}

// SeektableOutOfBoundsError reports a sample lookup past the end of a dense
// seektable.
type SeektableOutOfBoundsError struct {
	Sample int64
	Max    int64
}

func (e *SeektableOutOfBoundsError) Error() string {
	return fmt.Sprintf("seektable lookup for sample %d exceeds max sample %d", e.Sample, e.Max)
}

// ByteRangeOutOfBoundsError reports a byte range request outside a file's
// bounds.
type ByteRangeOutOfBoundsError struct {
	Start, End, Size int64
}

func (e *ByteRangeOutOfBoundsError) Error() string {
	return fmt.Sprintf("byte range [%d,%d) out of bounds for size %d", e.Start, e.End, e.Size)
}

// ConstraintError reports a catalog unique/foreign-key violation.
type ConstraintError struct {
	Name string
}

func (e *ConstraintError) Error() string {
	return fmt.Sprintf("constraint violation: %s", e.Name)
}

// NotFoundError reports a missing catalog entity.
type NotFoundError struct {
	Kind string
	ID   string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Kind, e.ID)
}

// DiscIDParseError reports a failure to locate offsets in a CUE sheet or log.
type DiscIDParseError struct {
	Source string // "log" | "cue"
	Reason string
}

func (e *DiscIDParseError) Error() string {
	return fmt.Sprintf("discid parse error from %s: %s", e.Source, e.Reason)
}

// CorruptAudioError reports that a leaf had audio files, but all of them
// failed validation.
type CorruptAudioError struct {
	Count int
}

func (e *CorruptAudioError) Error() string {
	return fmt.Sprintf("all %d audio file(s) in folder are corrupt", e.Count)
}

// DuplicateReleaseError reports a re-import of a release already on file.
type DuplicateReleaseError struct {
	ExistingReleaseID string
}

func (e *DuplicateReleaseError) Error() string {
	return fmt.Sprintf("release already imported: %s", e.ExistingReleaseID)
}
