package catalog

import "time"

// Artist is a performer, composer, or other credited party.
type Artist struct {
	ID            string  `json:"id"`
	Name          string  `json:"name"`
	SortName      *string `json:"sort_name,omitempty"`
	DiscogsID     *string `json:"discogs_id,omitempty"`
	MusicbrainzID *string `json:"musicbrainz_id,omitempty"`
	BandcampID    *string `json:"bandcamp_id,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Album is the logical work an artist released, independent of any one
// pressing.
type Album struct {
	ID           string  `json:"id"`
	Title        string  `json:"title"`
	Year         *int    `json:"year,omitempty"`
	IsCompilation bool   `json:"is_compilation"`

	DiscogsMasterID    *string `json:"discogs_master_id,omitempty"`
	DiscogsReleaseID   *string `json:"discogs_release_id,omitempty"`
	MBReleaseGroupID   *string `json:"mb_release_group_id,omitempty"`
	MBReleaseID        *string `json:"mb_release_id,omitempty"`
	CoverReleaseID     *string `json:"cover_release_id,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// StorageMode enumerates where a release's bytes live.
type StorageMode string

const (
	StorageManaged     StorageMode = "managed"
	StorageUnmanaged   StorageMode = "unmanaged"
	StorageTransferring StorageMode = "transferring"
)

// ImportStatus tracks a release's progress through the import pipeline. It
// only ever advances forward.
type ImportStatus string

const (
	StatusQueued    ImportStatus = "queued"
	StatusImporting ImportStatus = "importing"
	StatusComplete  ImportStatus = "complete"
	StatusFailed    ImportStatus = "failed"
)

// Release is a specific pressing of an Album.
type Release struct {
	ID                 string  `json:"id"`
	AlbumID            string  `json:"album_id"`
	ReleaseName        *string `json:"release_name,omitempty"`
	Year               *int    `json:"year,omitempty"`
	Format             *string `json:"format,omitempty"`
	Label              *string `json:"label,omitempty"`
	CatalogNumber      *string `json:"catalog_number,omitempty"`
	Country            *string `json:"country,omitempty"`
	Barcode            *string `json:"barcode,omitempty"`
	ExternalReleaseID  *string `json:"external_release_id,omitempty"`
	DiscID             *string `json:"disc_id,omitempty"`
	Private            bool    `json:"private"`

	ImportStatus ImportStatus `json:"import_status"`

	StorageMode      StorageMode `json:"storage_mode"`
	StorageProfileID *string     `json:"storage_profile_id,omitempty"` // set iff Managed
	UnmanagedPath    *string     `json:"unmanaged_path,omitempty"`     // set iff Unmanaged

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Track is one logical song on a Release.
type Track struct {
	ID             string  `json:"id"`
	ReleaseID      string  `json:"release_id"`
	Title          string  `json:"title"`
	DiscNumber     *int    `json:"disc_number,omitempty"`
	TrackNumber    *int    `json:"track_number,omitempty"`
	DurationMs     *int    `json:"duration_ms,omitempty"`
	SourcePosition *string `json:"source_position,omitempty"` // e.g. "A1", "1-1"

	ImportStatus ImportStatus `json:"import_status"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// EncryptionScheme identifies how a File's bytes are protected at rest.
type EncryptionScheme string

const (
	EncryptionNone    EncryptionScheme = "none"
	EncryptionMaster  EncryptionScheme = "master"
	EncryptionDerived EncryptionScheme = "derived"
)

// File is one stored payload belonging to a Release — either a single track
// or a shared CUE/FLAC image spanning several tracks.
type File struct {
	ID               string           `json:"id"`
	ReleaseID        string           `json:"release_id"`
	OriginalFilename string           `json:"original_filename"`
	FileSize         int64            `json:"file_size"`
	ContentType      string           `json:"content_type"`
	EncryptionNonce  []byte           `json:"encryption_nonce,omitempty"` // 24 bytes when set
	EncryptionScheme EncryptionScheme `json:"encryption_scheme"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// SeekPoint is one entry in a dense, track-relative seektable.
type SeekPoint struct {
	Sample int64 `json:"sample"`
	Byte   int64 `json:"byte"`
}

// AudioFormat is the 1:1 playback plan for a Track.
type AudioFormat struct {
	TrackID     string  `json:"track_id"`
	FileID      *string `json:"file_id,omitempty"`
	ContentType string  `json:"content_type"`

	FLACHeaders []byte `json:"flac_headers,omitempty"`
	NeedsHeaders bool  `json:"needs_headers"`

	StartByteOffset    *int64 `json:"start_byte_offset,omitempty"`
	EndByteOffset      *int64 `json:"end_byte_offset,omitempty"`
	PregapMs           *int64 `json:"pregap_ms,omitempty"`
	FrameOffsetSamples *int64 `json:"frame_offset_samples,omitempty"`
	ExactSampleCount   *int64 `json:"exact_sample_count,omitempty"`

	SampleRate     int         `json:"sample_rate"`
	BitsPerSample  int         `json:"bits_per_sample"`
	AudioDataStart int64       `json:"audio_data_start"`
	Seektable      []SeekPoint `json:"seektable"`
}

// ImageType distinguishes a release cover from an artist portrait.
type ImageType string

const (
	ImageCover  ImageType = "cover"
	ImageArtist ImageType = "artist"
)

// ImageSource records where a LibraryImage's bytes came from.
type ImageSource string

const (
	ImageSourceLocal       ImageSource = "local"
	ImageSourceMusicBrainz ImageSource = "musicbrainz"
	ImageSourceDiscogs     ImageSource = "discogs"
)

// LibraryImage is cover or artist art stored at a deterministic path keyed
// by release or artist ID.
type LibraryImage struct {
	ID          string      `json:"id"` // release_id or artist_id
	ImageType   ImageType   `json:"image_type"`
	ContentType string      `json:"content_type"`
	FileSize    int64       `json:"file_size"`
	Width       *int        `json:"width,omitempty"`
	Height      *int        `json:"height,omitempty"`
	Source      ImageSource `json:"source"`
	SourceURL   *string     `json:"source_url,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}

// StorageProfileKind identifies a storage backend family.
type StorageProfileKind string

const (
	ProfileLocal StorageProfileKind = "local"
	ProfileCloud StorageProfileKind = "cloud"
)

// StorageProfile describes one configured storage destination. Cloud
// profiles are always encrypted; local profiles never are (enforced at
// write, not just here).
type StorageProfile struct {
	ID        string             `json:"id"`
	Name      string             `json:"name"`
	Kind      StorageProfileKind `json:"kind"`
	Path      *string            `json:"path,omitempty"`   // Local
	Bucket    *string            `json:"bucket,omitempty"` // Cloud
	Region    *string            `json:"region,omitempty"`
	Endpoint  *string            `json:"endpoint,omitempty"`
	Encrypted bool               `json:"encrypted"`
	IsDefault bool               `json:"is_default"`

	CreatedAt time.Time `json:"created_at"`
}

// ImportOperationStatus is the coarse lifecycle state of a user-visible
// import record (preparing, importing, complete, failed).
type ImportOperationStatus string

const (
	OpPreparing ImportOperationStatus = "preparing"
	OpImporting ImportOperationStatus = "importing"
	OpComplete  ImportOperationStatus = "complete"
	OpFailed    ImportOperationStatus = "failed"
)

// ImportOperation is the user-visible record of one import attempt.
type ImportOperation struct {
	ID           string                `json:"id"`
	AlbumTitle   string                `json:"album_title"`
	ArtistName   string                `json:"artist_name"`
	FolderPath   string                `json:"folder_path"`
	Status       ImportOperationStatus `json:"status"`
	ReleaseID    *string               `json:"release_id,omitempty"`
	ErrorMessage *string               `json:"error_message,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// PendingDeletion is one entry in the pending-deletion WAL: a path or key
// scheduled for removal once its grace period elapses and the new copy (for
// transfers) is confirmed readable.
type PendingDeletion struct {
	ID            string
	ProfileID     *string // nil for unmanaged paths removed outside any profile
	Key           string
	ScheduledAt   time.Time
	LeasedUntil   *time.Time
}

// --- Params structs for write operations ---

// UpsertArtistParams upserts an artist by ID (the merge policy in the
// importer resolves which ID an incoming artist maps to before calling
// this).
type UpsertArtistParams struct {
	ID            string
	Name          string
	SortName      *string
	DiscogsID     *string
	MusicbrainzID *string
	BandcampID    *string
}

// UpsertAlbumParams upserts an album.
type UpsertAlbumParams struct {
	ID               string
	Title            string
	Year             *int
	IsCompilation    bool
	DiscogsMasterID  *string
	DiscogsReleaseID *string
	MBReleaseGroupID *string
	MBReleaseID      *string
}

// AlbumArtistParams links an album to an artist at a given ordinal position.
type AlbumArtistParams struct {
	AlbumID  string
	ArtistID string
	Position int
}

// InsertReleaseParams inserts a new release row.
type InsertReleaseParams struct {
	ID                string
	AlbumID           string
	ReleaseName       *string
	Year              *int
	Format            *string
	Label             *string
	CatalogNumber     *string
	Country           *string
	Barcode           *string
	ExternalReleaseID *string
	DiscID            *string
	Private           bool
	StorageMode       StorageMode
	StorageProfileID  *string
	UnmanagedPath     *string
}

// InsertTrackParams inserts a new track row.
type InsertTrackParams struct {
	ID             string
	ReleaseID      string
	Title          string
	DiscNumber     *int
	TrackNumber    *int
	DurationMs     *int
	SourcePosition *string
}

// TrackArtistParams links a track to an artist with an optional role.
type TrackArtistParams struct {
	TrackID  string
	ArtistID string
	Position int
	Role     *string
}

// InsertFileParams inserts a new file row.
type InsertFileParams struct {
	ID               string
	ReleaseID        string
	OriginalFilename string
	FileSize         int64
	ContentType      string
	EncryptionNonce  []byte
	EncryptionScheme EncryptionScheme
}

// UpsertAudioFormatParams upserts the one AudioFormat row for a track.
type UpsertAudioFormatParams struct {
	TrackID            string
	FileID             *string
	ContentType        string
	FLACHeaders        []byte
	NeedsHeaders       bool
	StartByteOffset    *int64
	EndByteOffset      *int64
	PregapMs           *int64
	FrameOffsetSamples *int64
	ExactSampleCount   *int64
	SampleRate         int
	BitsPerSample      int
	AudioDataStart     int64
	Seektable          []SeekPoint
}

// UpsertLibraryImageParams upserts a cover or artist image row.
type UpsertLibraryImageParams struct {
	ID          string
	ImageType   ImageType
	ContentType string
	FileSize    int64
	Width       *int
	Height      *int
	Source      ImageSource
	SourceURL   *string
}

// UpsertStorageProfileParams upserts a storage profile.
type UpsertStorageProfileParams struct {
	ID        string
	Name      string
	Kind      StorageProfileKind
	Path      *string
	Bucket    *string
	Region    *string
	Endpoint  *string
	Encrypted bool
	IsDefault bool
}

// InsertImportOperationParams inserts a new import-operation record.
type InsertImportOperationParams struct {
	ID         string
	AlbumTitle string
	ArtistName string
	FolderPath string
}

// EnqueuePendingDeletionParams appends one entry to the pending-deletion WAL.
type EnqueuePendingDeletionParams struct {
	ID          string
	ProfileID   *string
	Key         string
}
